// Package notify delivers user-visible notices produced by the engine.
// Delivery is fire-and-forget: a failing channel is logged and never
// affects the operation that produced the notice.
package notify

import (
	"context"
	"encoding/json"
	"runtime/debug"

	"go.uber.org/zap"

	"github.com/alem-hub/study-pace/internal/application/resilience"
	"github.com/alem-hub/study-pace/pkg/logger"
)

// Notifier delivers a notice to one user.
type Notifier interface {
	Notify(ctx context.Context, userID string, n resilience.Notice)
}

// Dispatch hands every notice to n in order.
func Dispatch(ctx context.Context, n Notifier, userID string, notices []resilience.Notice) {
	if n == nil {
		return
	}
	for _, notice := range notices {
		n.Notify(ctx, userID, notice)
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// LOG NOTIFIER
// ══════════════════════════════════════════════════════════════════════════════

// LogNotifier writes notices to the log. Used by the CLI and as the fallback
// channel of the worker.
type LogNotifier struct {
	log *zap.Logger
}

// NewLogNotifier creates a LogNotifier.
func NewLogNotifier(log *zap.Logger) *LogNotifier {
	if log == nil {
		log = zap.NewNop()
	}
	return &LogNotifier{log: log.With(logger.Component("notify"))}
}

// Notify implements Notifier.
func (l *LogNotifier) Notify(_ context.Context, userID string, n resilience.Notice) {
	fields := []zap.Field{
		logger.UserID(userID),
		zap.String("type", string(n.Type)),
		zap.String("message", n.Message),
		zap.Int("duration_ms", n.DurationMs),
	}
	switch n.Type {
	case resilience.NoticeError:
		l.log.Error("notice", fields...)
	case resilience.NoticeWarning:
		l.log.Warn("notice", fields...)
	default:
		l.log.Info("notice", fields...)
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// PUB/SUB NOTIFIER
// ══════════════════════════════════════════════════════════════════════════════

// Publisher sends a payload to a user's channel.
type Publisher interface {
	Publish(ctx context.Context, userID string, payload []byte) (int64, error)
}

// PubSubNotifier publishes notices as JSON to the user's channel, where
// connected clients pick them up.
type PubSubNotifier struct {
	pub Publisher
	log *zap.Logger
}

// NewPubSubNotifier creates a PubSubNotifier.
func NewPubSubNotifier(pub Publisher, log *zap.Logger) *PubSubNotifier {
	if log == nil {
		log = zap.NewNop()
	}
	return &PubSubNotifier{pub: pub, log: log.With(logger.Component("notify"))}
}

// Notify implements Notifier.
func (p *PubSubNotifier) Notify(ctx context.Context, userID string, n resilience.Notice) {
	payload, err := json.Marshal(n)
	if err != nil {
		p.log.Error("failed to encode notice", logger.UserID(userID), zap.Error(err))
		return
	}
	receivers, err := p.pub.Publish(ctx, userID, payload)
	if err != nil {
		p.log.Warn("failed to publish notice", logger.UserID(userID), zap.Error(err))
		return
	}
	if receivers == 0 {
		p.log.Debug("notice published without subscribers", logger.UserID(userID))
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// FAN-OUT
// ══════════════════════════════════════════════════════════════════════════════

// Multi delivers every notice to all channels. A panicking channel is
// recovered so the others still receive the notice.
type Multi struct {
	channels []Notifier
	log      *zap.Logger
}

// NewMulti creates a fan-out notifier.
func NewMulti(log *zap.Logger, channels ...Notifier) *Multi {
	if log == nil {
		log = zap.NewNop()
	}
	return &Multi{channels: channels, log: log.With(logger.Component("notify"))}
}

// Notify implements Notifier.
func (m *Multi) Notify(ctx context.Context, userID string, n resilience.Notice) {
	for _, ch := range m.channels {
		m.deliver(ctx, ch, userID, n)
	}
}

func (m *Multi) deliver(ctx context.Context, ch Notifier, userID string, n resilience.Notice) {
	defer func() {
		if r := recover(); r != nil {
			m.log.Error("notifier panicked",
				logger.UserID(userID),
				zap.Any("panic", r),
				zap.String("stack", string(debug.Stack())),
			)
		}
	}()
	ch.Notify(ctx, userID, n)
}
