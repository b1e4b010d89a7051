package messaging

import (
	"context"
	"log/slog"

	"github.com/presentagent/present-agent/internal/models"
)

// MessageProcessor is the conversation core seen from the transport side.
type MessageProcessor interface {
	ProcessMessage(ctx context.Context, platformUserID, message string, platform models.Platform) string
}

// ResponseLoop consumes inbound messages from a Service, runs them through
// the conversation core, and sends the reply back over the same transport.
// Send failures are logged and never stop the loop.
type ResponseLoop struct {
	svc      Service
	handler  MessageProcessor
	platform models.Platform
}

// NewResponseLoop creates a loop binding a transport to the conversation core.
func NewResponseLoop(svc Service, handler MessageProcessor, platform models.Platform) *ResponseLoop {
	return &ResponseLoop{svc: svc, handler: handler, platform: platform}
}

// Run processes messages until the context is cancelled or the transport's
// response channel closes.
func (l *ResponseLoop) Run(ctx context.Context) {
	slog.Info("ResponseLoop.Run: starting", "platform", l.platform)
	for {
		select {
		case <-ctx.Done():
			slog.Info("ResponseLoop.Run: context cancelled", "platform", l.platform)
			return
		case response, ok := <-l.svc.Responses():
			if !ok {
				slog.Info("ResponseLoop.Run: responses channel closed", "platform", l.platform)
				return
			}
			l.handleResponse(ctx, response)
		}
	}
}

func (l *ResponseLoop) handleResponse(ctx context.Context, response models.Response) {
	slog.Debug("ResponseLoop.handleResponse: processing", "from", response.From, "platform", l.platform)
	reply := l.handler.ProcessMessage(ctx, response.From, response.Body, l.platform)
	if err := l.svc.SendMessage(ctx, response.From, reply); err != nil {
		slog.Error("ResponseLoop.handleResponse: send failed", "error", err, "to", response.From)
	}
}
