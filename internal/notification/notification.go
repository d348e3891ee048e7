package notification

import (
	"context"
	"log/slog"
	"sync"
)

const (
	// KindForcedLogout is emitted when the backend rejects the session.
	KindForcedLogout     = "forced_logout"
	// KindTransferSent is emitted after a transfer is accepted.
	KindTransferSent     = "transfer_sent"
	// KindTransferReceived is emitted by the sandbox to the credited user.
	KindTransferReceived = "transfer_received"
)

// Message describes a client event worth surfacing outside the core.
type Message struct {
	Kind        string
	Destination string
	Body        string
}

// Notifier delivers notifications to whoever embeds the client.
type Notifier interface {
	Send(ctx context.Context, message Message) error
}

// LoggerNotifier writes notifications to the structured logger.
type LoggerNotifier struct {
	logger *slog.Logger
}

// NewLoggerNotifier constructs a logging notifier.
func NewLoggerNotifier(logger *slog.Logger) *LoggerNotifier {
	return &LoggerNotifier{logger: logger}
}

// Send writes the message to the structured logger.
func (n *LoggerNotifier) Send(_ context.Context, message Message) error {
	if n == nil || n.logger == nil {
		return nil
	}
	n.logger.Info("notification", "kind", message.Kind, "destination", message.Destination, "body", message.Body)
	return nil
}

// Recorder keeps every message in memory.
type Recorder struct {
	mu       sync.Mutex
	messages []Message
}

// Send records the message.
func (r *Recorder) Send(_ context.Context, message Message) error {
	r.mu.Lock()
	r.messages = append(r.messages, message)
	r.mu.Unlock()
	return nil
}

// Messages returns a copy of what has been recorded.
func (r *Recorder) Messages() []Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Message(nil), r.messages...)
}
