package messaging

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/presentagent/present-agent/internal/models"
)

// fakeTransport is a minimal Service for testing the loop.
type fakeTransport struct {
	responses chan models.Response
	mu        sync.Mutex
	sent      []struct{ To, Body string }
	sendErr   error
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{responses: make(chan models.Response, 10)}
}

func (f *fakeTransport) ValidateAndCanonicalizeRecipient(recipient string) (string, error) {
	return recipient, nil
}

func (f *fakeTransport) SendMessage(ctx context.Context, to string, body string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, struct{ To, Body string }{to, body})
	return f.sendErr
}

func (f *fakeTransport) Start(ctx context.Context) error { return nil }
func (f *fakeTransport) Stop() error                     { return nil }

func (f *fakeTransport) Responses() <-chan models.Response { return f.responses }

func (f *fakeTransport) sentMessages() []struct{ To, Body string } {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]struct{ To, Body string }, len(f.sent))
	copy(out, f.sent)
	return out
}

// echoProcessor replies with a fixed prefix and records what it saw.
type echoProcessor struct {
	mu       sync.Mutex
	received []string
	platform models.Platform
}

func (p *echoProcessor) ProcessMessage(ctx context.Context, platformUserID, message string, platform models.Platform) string {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.received = append(p.received, message)
	p.platform = platform
	return "reply to " + message
}

func TestResponseLoopProcessesAndReplies(t *testing.T) {
	transport := newFakeTransport()
	proc := &echoProcessor{}
	loop := NewResponseLoop(transport, proc, models.PlatformWhatsApp)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() {
		loop.Run(ctx)
		close(done)
	}()

	transport.responses <- models.Response{From: "15551234567", Body: "hello"}
	transport.responses <- models.Response{From: "15551234567", Body: "again"}
	close(transport.responses)

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("loop did not exit after channel close")
	}

	sent := transport.sentMessages()
	if len(sent) != 2 {
		t.Fatalf("expected 2 sends, got %d", len(sent))
	}
	if sent[0].To != "15551234567" || sent[0].Body != "reply to hello" {
		t.Errorf("unexpected first send: %+v", sent[0])
	}
	if sent[1].Body != "reply to again" {
		t.Errorf("unexpected second send: %+v", sent[1])
	}
	if proc.platform != models.PlatformWhatsApp {
		t.Errorf("expected platform %q, got %q", models.PlatformWhatsApp, proc.platform)
	}
}

func TestResponseLoopStopsOnContextCancel(t *testing.T) {
	transport := newFakeTransport()
	loop := NewResponseLoop(transport, &echoProcessor{}, models.PlatformWhatsApp)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		loop.Run(ctx)
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("loop did not exit after context cancel")
	}
}

func TestResponseLoopSurvivesSendFailure(t *testing.T) {
	transport := newFakeTransport()
	transport.sendErr = errors.New("send failed")
	loop := NewResponseLoop(transport, &echoProcessor{}, models.PlatformWhatsApp)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() {
		loop.Run(ctx)
		close(done)
	}()

	transport.responses <- models.Response{From: "15551234567", Body: "first"}
	transport.responses <- models.Response{From: "15551234567", Body: "second"}
	close(transport.responses)

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("loop did not exit after channel close")
	}

	// Both messages were still processed despite the send failures.
	if sent := transport.sentMessages(); len(sent) != 2 {
		t.Fatalf("expected 2 send attempts, got %d", len(sent))
	}
}
