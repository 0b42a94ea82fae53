package notification

import (
	"context"
	"log/slog"
)

// LogSender writes messages to the log instead of sending them. It is the
// sender used when no mail provider is configured.
type LogSender struct {
	logger *slog.Logger
}

func NewLogSender(logger *slog.Logger) *LogSender {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogSender{logger: logger}
}

func (s *LogSender) Send(ctx context.Context, msg Message) error {
	s.logger.InfoContext(ctx, "email",
		"to", msg.To.Email,
		"subject", msg.Subject,
		"body", msg.Text,
	)
	return nil
}
