package resilience

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/alem-hub/study-pace/internal/domain/backend"
	"github.com/alem-hub/study-pace/internal/domain/shared"
	"github.com/alem-hub/study-pace/internal/infrastructure/syncqueue"
	"github.com/alem-hub/study-pace/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// NOTICES
// ══════════════════════════════════════════════════════════════════════════════

// NoticeType is the visual kind of a notice.
type NoticeType string

const (
	NoticeInfo    NoticeType = "info"
	NoticeSuccess NoticeType = "success"
	NoticeWarning NoticeType = "warning"
	NoticeError   NoticeType = "error"
)

// Notice is a user-visible message. The core returns notices as values and
// callers hand them to a notify.Notifier.
type Notice struct {
	Type       NoticeType `json:"type"`
	Message    string     `json:"message"`
	DurationMs int        `json:"duration_ms"`
}

// Display durations.
const (
	shortNoticeMs = 3000
	noticeMs      = 5000
	longNoticeMs  = 8000
)

// Messages shown to the student.
const (
	MsgSavedLocally    = "Saved locally. Changes will sync when you're back online."
	MsgOfflineRead     = "You're offline. Showing what we have; refresh when you're back online."
	MsgSaveFailed      = "Could not save your changes. Please try again."
	MsgSessionExpired  = "Your session has expired. Please sign in again."
	MsgCheckInput      = "Please check your input and try again."
	MsgGenericLow      = "Something went wrong."
	MsgGenericMedium   = "Something went wrong. Please try again."
	MsgGenericHigh     = "We couldn't complete that action. Please try again later."
	MsgGenericCritical = "A critical error occurred. Please restart the app or contact support."
)

// InfoNotice builds an informational notice.
func InfoNotice(msg string) Notice {
	return Notice{Type: NoticeInfo, Message: msg, DurationMs: shortNoticeMs}
}

// WarningNotice builds a warning notice.
func WarningNotice(msg string) Notice {
	return Notice{Type: NoticeWarning, Message: msg, DurationMs: noticeMs}
}

// ErrorNotice builds an error notice.
func ErrorNotice(msg string) Notice {
	return Notice{Type: NoticeError, Message: msg, DurationMs: noticeMs}
}

// ══════════════════════════════════════════════════════════════════════════════
// POLICY
// ══════════════════════════════════════════════════════════════════════════════

// Enqueuer accepts writes for later replay.
type Enqueuer interface {
	Enqueue(ctx context.Context, w backend.Write) (syncqueue.Item, error)
}

// FailureRecorder counts classified failures. Used for metrics.
type FailureRecorder interface {
	Failure(category shared.Category)
}

// Options describe the caller's intent for one failure.
type Options struct {
	// Op names the failed operation in logs.
	Op string
	// Hint overrides classification when set.
	Hint shared.Category
	// Queue is the write to replay if the failure is a network one.
	Queue *backend.Write
	// Notify forces a notice for categories that are silent by default.
	Notify bool
	// Severity selects the generic message. Defaults to medium.
	Severity shared.Severity
}

// Outcome is what the policy decided.
type Outcome struct {
	Category shared.Category
	Severity shared.Severity
	Queued   bool
	Item     *syncqueue.Item
	Notices  []Notice
}

// Policy maps failures to outcomes.
type Policy struct {
	queue    Enqueuer
	log      *zap.Logger
	recorder FailureRecorder
}

// PolicyOption configures a Policy.
type PolicyOption func(*Policy)

// WithRecorder sets the failure recorder.
func WithRecorder(r FailureRecorder) PolicyOption {
	return func(p *Policy) {
		p.recorder = r
	}
}

// NewPolicy creates a policy. queue may be nil, in which case nothing is
// ever queued.
func NewPolicy(queue Enqueuer, log *zap.Logger, opts ...PolicyOption) *Policy {
	if log == nil {
		log = zap.NewNop()
	}
	p := &Policy{queue: queue, log: log.With(logger.Component("resilience"))}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Handle classifies err and acts on it.
func (p *Policy) Handle(ctx context.Context, err error, opts Options) Outcome {
	out := Outcome{
		Category: Classify(err, opts.Hint),
		Severity: opts.Severity,
	}
	if out.Severity == "" {
		out.Severity = shared.SeverityMedium
	}

	p.log.Error("operation failed",
		logger.Operation(opts.Op),
		logger.Category(string(out.Category)),
		zap.String("severity", string(out.Severity)),
		zap.Bool("queue_intent", opts.Queue != nil),
		zap.Error(err),
	)
	if p.recorder != nil {
		p.recorder.Failure(out.Category)
	}

	switch out.Category {
	case shared.CategoryNetwork:
		p.handleNetwork(ctx, opts, &out)

	case shared.CategoryValidation:
		out.Notices = append(out.Notices, WarningNotice(validationMessage(err)))

	case shared.CategoryAuthentication:
		out.Notices = append(out.Notices, ErrorNotice(MsgSessionExpired))

	default:
		if out.Severity == shared.SeverityCritical || opts.Notify {
			n := ErrorNotice(genericMessage(out.Severity))
			if out.Severity == shared.SeverityCritical {
				n.DurationMs = longNoticeMs
			}
			out.Notices = append(out.Notices, n)
		}
	}

	return out
}

func (p *Policy) handleNetwork(ctx context.Context, opts Options, out *Outcome) {
	if opts.Queue == nil {
		out.Notices = append(out.Notices, WarningNotice(MsgOfflineRead))
		return
	}
	if p.queue == nil {
		out.Notices = append(out.Notices, ErrorNotice(MsgSaveFailed))
		return
	}

	item, err := p.queue.Enqueue(ctx, *opts.Queue)
	if err != nil {
		p.log.Error("failed to queue write",
			logger.Operation(opts.Op),
			logger.Table(opts.Queue.Table),
			zap.Error(err),
		)
		out.Notices = append(out.Notices, ErrorNotice(MsgSaveFailed))
		return
	}

	out.Queued = true
	out.Item = &item
	out.Notices = append(out.Notices, InfoNotice(MsgSavedLocally))
}

func validationMessage(err error) string {
	var ce *shared.CategorizedError
	if errors.As(err, &ce) {
		if msg, ok := ce.FirstFieldMessage(); ok {
			return msg
		}
	}
	var de *shared.DomainError
	if errors.As(err, &de) && de.Message != "" {
		return de.Message
	}
	return MsgCheckInput
}

func genericMessage(s shared.Severity) string {
	switch s {
	case shared.SeverityLow:
		return MsgGenericLow
	case shared.SeverityHigh:
		return MsgGenericHigh
	case shared.SeverityCritical:
		return MsgGenericCritical
	default:
		return MsgGenericMedium
	}
}
