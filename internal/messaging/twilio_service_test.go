package messaging

import (
	"context"
	"testing"

	"github.com/presentagent/present-agent/internal/models"
	"github.com/presentagent/present-agent/internal/twiliowhatsapp"
)

func TestTwilioServiceValidateAndCanonicalizeRecipient(t *testing.T) {
	svc := NewTwilioService(twiliowhatsapp.NewMockClient())

	tests := []struct {
		name      string
		recipient string
		want      string
		wantErr   bool
	}{
		{name: "plus prefix stripped", recipient: "+15551234567", want: "15551234567"},
		{name: "formatting stripped", recipient: "+1 (555) 123-4567", want: "15551234567"},
		{name: "already canonical", recipient: "15551234567", want: "15551234567"},
		{name: "empty", recipient: "", wantErr: true},
		{name: "no digits", recipient: "whatsapp:", wantErr: true},
		{name: "too short", recipient: "12345", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := svc.ValidateAndCanonicalizeRecipient(tt.recipient)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error for %q, got %q", tt.recipient, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestTwilioServiceSendMessage(t *testing.T) {
	mock := twiliowhatsapp.NewMockClient()
	svc := NewTwilioService(mock)

	if err := svc.SendMessage(context.Background(), "+1 555 123 4567", "hello"); err != nil {
		t.Fatalf("SendMessage returned error: %v", err)
	}
	if len(mock.SentMessages) != 1 {
		t.Fatalf("expected 1 sent message, got %d", len(mock.SentMessages))
	}
	if mock.SentMessages[0].To != "15551234567" {
		t.Errorf("expected canonical recipient, got %q", mock.SentMessages[0].To)
	}
	if mock.SentMessages[0].Body != "hello" {
		t.Errorf("expected body %q, got %q", "hello", mock.SentMessages[0].Body)
	}
}

func TestTwilioServiceSendAfterStop(t *testing.T) {
	svc := NewTwilioService(twiliowhatsapp.NewMockClient())
	if err := svc.Stop(); err != nil {
		t.Fatalf("Stop returned error: %v", err)
	}
	if err := svc.SendMessage(context.Background(), "15551234567", "hello"); err != ErrServiceStopped {
		t.Errorf("expected ErrServiceStopped, got %v", err)
	}
	// Stop is idempotent.
	if err := svc.Stop(); err != nil {
		t.Errorf("second Stop returned error: %v", err)
	}
}

func TestTwilioServiceInjectResponse(t *testing.T) {
	svc := NewTwilioService(twiliowhatsapp.NewMockClient())

	if ok := svc.InjectResponse(models.Response{From: "15551234567", Body: "hi"}); !ok {
		t.Fatal("expected InjectResponse to succeed")
	}
	select {
	case got := <-svc.Responses():
		if got.From != "15551234567" || got.Body != "hi" {
			t.Errorf("unexpected response: %+v", got)
		}
	default:
		t.Fatal("expected response on channel")
	}
}

func TestTwilioServiceInjectResponseAfterStop(t *testing.T) {
	svc := NewTwilioService(twiliowhatsapp.NewMockClient())
	if err := svc.Stop(); err != nil {
		t.Fatalf("Stop returned error: %v", err)
	}
	if ok := svc.InjectResponse(models.Response{From: "15551234567", Body: "hi"}); ok {
		t.Error("expected InjectResponse to fail after Stop")
	}
}

func TestTwilioServiceInjectResponseFullChannel(t *testing.T) {
	svc := NewTwilioService(twiliowhatsapp.NewMockClient())
	for i := 0; i < DefaultChannelBufferSize; i++ {
		if ok := svc.InjectResponse(models.Response{From: "15551234567", Body: "fill"}); !ok {
			t.Fatalf("expected inject %d to succeed", i)
		}
	}
	if ok := svc.InjectResponse(models.Response{From: "15551234567", Body: "overflow"}); ok {
		t.Error("expected inject into full channel to be dropped")
	}
}
