package messaging

import (
	"context"
	"log/slog"
	"sync"

	"github.com/presentagent/present-agent/internal/models"
	"github.com/presentagent/present-agent/internal/twiliowhatsapp"
)

// TwilioService implements Service using the Twilio REST API. Twilio is a
// send-only transport here: inbound WhatsApp messages arrive through the
// HTTP webhook and are injected via InjectResponse.
type TwilioService struct {
	client    twiliowhatsapp.Sender
	responses chan models.Response
	done      chan struct{}
	mu        sync.RWMutex
	stopped   bool
}

// NewTwilioService creates a new TwilioService with the given sender.
func NewTwilioService(client twiliowhatsapp.Sender) *TwilioService {
	return &TwilioService{
		client:    client,
		responses: make(chan models.Response, DefaultChannelBufferSize),
		done:      make(chan struct{}),
	}
}

// ValidateAndCanonicalizeRecipient reduces the recipient to a bare phone number.
func (s *TwilioService) ValidateAndCanonicalizeRecipient(recipient string) (string, error) {
	canonical, err := canonicalizePhoneNumber(recipient)
	if err != nil {
		return "", err
	}
	if canonical != recipient {
		slog.Debug("TwilioService canonicalized recipient", "original", recipient, "canonical", canonical)
	}
	return canonical, nil
}

// Start is a no-op for Twilio (no live connection).
func (s *TwilioService) Start(ctx context.Context) error {
	return nil
}

// Stop closes channels and stops the service.
func (s *TwilioService) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return nil
	}
	s.stopped = true
	close(s.done)
	close(s.responses)
	return nil
}

// SendMessage sends a message via the Twilio API.
func (s *TwilioService) SendMessage(ctx context.Context, to string, body string) error {
	s.mu.RLock()
	if s.stopped {
		s.mu.RUnlock()
		return ErrServiceStopped
	}
	s.mu.RUnlock()

	canonical, err := s.ValidateAndCanonicalizeRecipient(to)
	if err != nil {
		slog.Error("TwilioService SendMessage validation error", "error", err, "to", to)
		return err
	}
	if err := s.client.SendMessage(ctx, canonical, body); err != nil {
		slog.Error("TwilioService SendMessage error", "error", err, "to", canonical)
		return err
	}
	slog.Info("TwilioService message sent", "to", canonical)
	return nil
}

// Responses returns a channel of incoming message events.
func (s *TwilioService) Responses() <-chan models.Response {
	return s.responses
}

// InjectResponse feeds an inbound message received via the HTTP webhook into
// the responses channel. Returns false if the service is stopped or the
// channel is full.
func (s *TwilioService) InjectResponse(response models.Response) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.stopped {
		return false
	}
	select {
	case s.responses <- response:
		return true
	default:
		slog.Warn("TwilioService responses channel full, dropping message", "from", response.From)
		return false
	}
}
