package notify

import (
	"context"

	"go.uber.org/zap"
)

// LogSink writes alerts to the logger instead of an external channel.
type LogSink struct {
	Logger *zap.Logger
}

// Name returns "log".
func (s *LogSink) Name() string { return "log" }

// Deliver logs msg.
func (s *LogSink) Deliver(_ context.Context, msg Message) error {
	logger := s.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	logger.Info("alert",
		zap.String("chain", msg.Chain),
		zap.String("address", msg.Address),
		zap.Any("metrics", msg.Metrics),
		zap.String("link", msg.Link))
	return nil
}
