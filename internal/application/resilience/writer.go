package resilience

import (
	"context"

	"go.uber.org/zap"

	"github.com/alem-hub/study-pace/internal/domain/backend"
	"github.com/alem-hub/study-pace/pkg/logger"
)

// WriteResult reports how a write ended.
type WriteResult struct {
	// Row is the stored row when the write reached the backend.
	Row backend.Row
	// Queued is true when the write was saved for later replay.
	Queued  bool
	Notices []Notice
}

// Writer applies writes to the backend and falls back to the queue when the
// backend is unreachable.
type Writer struct {
	store  backend.Store
	policy *Policy
	log    *zap.Logger
}

// NewWriter creates a writer.
func NewWriter(store backend.Store, policy *Policy, log *zap.Logger) *Writer {
	if log == nil {
		log = zap.NewNop()
	}
	return &Writer{store: store, policy: policy, log: log.With(logger.Component("writer"))}
}

// Write applies w. A network failure is not an error for the caller: the
// write is queued and the result carries the "saved locally" notice. Any
// other failure is returned together with the notices the policy chose.
func (w *Writer) Write(ctx context.Context, op string, wr backend.Write) (WriteResult, error) {
	row, err := backend.ApplyRow(ctx, w.store, wr)
	if err == nil {
		return WriteResult{Row: row}, nil
	}

	out := w.policy.Handle(ctx, err, Options{Op: op, Queue: &wr})
	if out.Queued {
		w.log.Info("write queued for replay",
			logger.Operation(op),
			logger.Table(wr.Table),
			logger.ItemID(out.Item.ID),
		)
		return WriteResult{Queued: true, Notices: out.Notices}, nil
	}
	return WriteResult{Notices: out.Notices}, err
}

// Policy returns the policy used for failures.
func (w *Writer) Policy() *Policy {
	return w.policy
}
