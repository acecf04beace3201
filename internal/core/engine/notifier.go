package engine

import (
	"context"

	"go.uber.org/zap"

	"github.com/visitlens/visitlens/internal/core"
)

// Notifier delivers structured updates to the subscriber channel. The
// presentation layer (chat embeds, plain text) lives behind this interface;
// implementations report delivery failures by wrapping the core delivery
// sentinels so the tracker can classify them.
type Notifier interface {
	Notify(ctx context.Context, n core.Notification) error
}

// LogNotifier writes notifications to the structured log. It is the default
// sink when no chat-platform binding is configured and never fails.
type LogNotifier struct {
	Logger *zap.Logger
}

func (l *LogNotifier) Notify(ctx context.Context, n core.Notification) error {
	logger := l.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	logger.Info("notification",
		zap.String("id", n.ID),
		zap.String("kind", string(n.Kind)),
		zap.String("target", n.TargetID),
		zap.Int64("players", n.Reading.PlayerCount),
		zap.Int64("visits", n.Reading.VisitCount),
		zap.Int64("goal", n.Goal),
		zap.Float64("progress", n.Progress),
		zap.Bool("synthetic", n.Reading.Synthetic),
		zap.String("message", n.Message))
	return nil
}
