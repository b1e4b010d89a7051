// Package api provides webhook handlers for inbound Instagram and Twilio
// message events.
package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/presentagent/present-agent/internal/flow"
	"github.com/presentagent/present-agent/internal/models"
)

// nonTextInboundReply is sent when an Instagram event carries no text
// (image, audio, sticker, etc.).
const nonTextInboundReply = "Hi! I can help you find the perfect gift. Just send me a text message describing what you're looking for! 🎁"

// emptyTwiML acknowledges a Twilio webhook without queueing an immediate reply.
const emptyTwiML = `<?xml version="1.0" encoding="UTF-8"?><Response></Response>`

// instagramWebhookPayload mirrors the Meta webhook event envelope.
type instagramWebhookPayload struct {
	Entry []struct {
		Messaging []instagramMessagingEvent `json:"messaging"`
	} `json:"entry"`
}

// instagramMessagingEvent is one messaging event inside a webhook entry.
// Message is a pointer so an absent message block can be told apart from a
// message without text.
type instagramMessagingEvent struct {
	Sender struct {
		ID string `json:"id"`
	} `json:"sender"`
	Message *struct {
		Text string `json:"text"`
	} `json:"message"`
}

// verifyInstagramWebhookHandler handles the GET /webhook/instagram
// verification handshake.
func (s *Server) verifyInstagramWebhookHandler(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	mode := query.Get("hub.mode")
	challenge := query.Get("hub.challenge")
	token := query.Get("hub.verify_token")

	slog.Info("Server.verifyInstagramWebhookHandler: verification attempt", "mode", mode, "token_set", token != "")

	if mode == "subscribe" && s.verifyToken != "" && token == s.verifyToken {
		slog.Info("Server.verifyInstagramWebhookHandler: webhook verified")
		w.Header().Set("Content-Type", "text/plain")
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write([]byte(challenge)); err != nil {
			slog.Error("Server.verifyInstagramWebhookHandler: failed to write challenge", "error", err)
		}
		return
	}

	slog.Warn("Server.verifyInstagramWebhookHandler: verification failed", "mode", mode)
	writeJSONResponse(w, http.StatusForbidden, models.Error("Verification failed"))
}

// instagramWebhookHandler handles POST /webhook/instagram message events.
func (s *Server) instagramWebhookHandler(w http.ResponseWriter, r *http.Request) {
	if r.Body != nil {
		defer r.Body.Close()
	}

	var payload instagramWebhookPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		slog.Warn("Server.instagramWebhookHandler: failed to decode JSON", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
		return
	}

	slog.Debug("Server.instagramWebhookHandler: webhook received", "entries", len(payload.Entry))

	// One failing event must never abort the rest of the batch.
	for _, entry := range payload.Entry {
		for _, event := range entry.Messaging {
			s.processMessagingEvent(r.Context(), event)
		}
	}

	writeJSONResponse(w, http.StatusOK, map[string]string{"status": "ok"})
}

// processMessagingEvent handles a single Instagram messaging event. Any
// panic is contained and answered with the technical-difficulty reply so the
// remaining events in the batch still run.
func (s *Server) processMessagingEvent(ctx context.Context, event instagramMessagingEvent) {
	senderID := event.Sender.ID

	defer func() {
		if rec := recover(); rec != nil {
			slog.Error("Server.processMessagingEvent: panic while handling event", "panic", rec, "sender_id", senderID)
			if senderID != "" {
				s.sendInstagramReply(ctx, senderID, flow.ReplyTechnicalDifficulty)
			}
		}
	}()

	if senderID == "" || event.Message == nil {
		slog.Warn("Server.processMessagingEvent: invalid messaging event", "sender_id_set", senderID != "")
		return
	}

	messageText := strings.TrimSpace(event.Message.Text)
	if messageText == "" {
		slog.Info("Server.processMessagingEvent: non-text message received", "sender_id", senderID)
		s.sendInstagramReply(ctx, senderID, nonTextInboundReply)
		return
	}

	slog.Info("Server.processMessagingEvent: processing message", "sender_id", senderID, "message_length", len(messageText))
	reply := s.handler.ProcessMessage(ctx, senderID, messageText, models.PlatformInstagram)
	s.sendInstagramReply(ctx, senderID, reply)
}

// sendInstagramReply delivers a reply, logging failures without propagating
// them into the webhook response.
func (s *Server) sendInstagramReply(ctx context.Context, recipientID, text string) {
	if s.instagram == nil {
		slog.Error("Server.sendInstagramReply: no Instagram sender configured, dropping message", "recipient_id", recipientID)
		return
	}
	if err := s.instagram.SendMessage(ctx, recipientID, text); err != nil {
		slog.Error("Server.sendInstagramReply: send failed", "error", err, "recipient_id", recipientID)
	}
}

// twilioWebhookHandler handles POST /webhook/twilio inbound WhatsApp
// messages delivered by Twilio as form parameters.
func (s *Server) twilioWebhookHandler(w http.ResponseWriter, r *http.Request) {
	if s.twilioSvc == nil {
		slog.Warn("Server.twilioWebhookHandler: Twilio transport not configured")
		writeJSONResponse(w, http.StatusServiceUnavailable, models.Error("Twilio transport not configured"))
		return
	}
	if err := r.ParseForm(); err != nil {
		slog.Warn("Server.twilioWebhookHandler: failed to parse form", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid form data"))
		return
	}

	from := strings.TrimPrefix(r.PostFormValue("From"), "whatsapp:")
	body := r.PostFormValue("Body")
	if from == "" || body == "" {
		slog.Warn("Server.twilioWebhookHandler: missing From or Body")
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Missing required fields: From, Body"))
		return
	}

	response := models.Response{From: from, Body: body, Time: time.Now().Unix()}
	if !s.twilioSvc.InjectResponse(response) {
		slog.Warn("Server.twilioWebhookHandler: message dropped", "from", from)
	}

	// Replies are sent asynchronously by the response loop; acknowledge with
	// an empty TwiML document.
	w.Header().Set("Content-Type", "text/xml")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write([]byte(emptyTwiML)); err != nil {
		slog.Error("Server.twilioWebhookHandler: failed to write TwiML response", "error", err)
	}
}
