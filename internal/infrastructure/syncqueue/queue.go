// Package syncqueue keeps writes that failed to reach the backend and replays
// them later. The whole item list is stored as one serialized value under a
// single key, so every change is a read-modify-write guarded by a mutex, and
// concurrent Drain calls share one in-flight pass.
package syncqueue

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/alem-hub/study-pace/internal/domain/backend"
	"github.com/alem-hub/study-pace/pkg/clock"
	"github.com/alem-hub/study-pace/pkg/logger"
)

// DefaultKey is the storage key of the item list.
const DefaultKey = "study-pace:sync-queue"

// mergeTimeout bounds saving a pass's results once the caller's context is gone.
const mergeTimeout = 10 * time.Second

// DefaultMaxRetries is the retry ceiling: an item whose failure count
// reaches it is dropped.
const DefaultMaxRetries = 5

// Item is a write waiting to be replayed.
type Item struct {
	ID         string        `json:"id" cbor:"id"`
	Payload    backend.Write `json:"payload" cbor:"payload"`
	EnqueuedAt time.Time     `json:"enqueued_at" cbor:"enqueued_at"`
	RetryCount int           `json:"retry_count" cbor:"retry_count"`
}

// Storage persists the serialized item list.
type Storage interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte) error
}

// Observer receives queue events. Used for metrics.
type Observer interface {
	Enqueued()
	Drained(n int)
	Failed(n int)
	Dropped(n int)
	Depth(n int)
}

type nopObserver struct{}

func (nopObserver) Enqueued()   {}
func (nopObserver) Drained(int) {}
func (nopObserver) Failed(int)  {}
func (nopObserver) Dropped(int) {}
func (nopObserver) Depth(int)   {}

// DrainReport summarizes one pass.
type DrainReport struct {
	Attempted int
	Succeeded int
	Retried   int
	Dropped   []Item
	Remaining int
}

// Config holds queue configuration.
type Config struct {
	Key        string
	MaxRetries int
	Codec      Codec
	Clock      clock.Clock
	Observer   Observer
}

// Queue is the durable write queue.
type Queue struct {
	storage Storage
	target  backend.Store
	config  Config
	log     *zap.Logger

	mu     sync.Mutex
	flight singleflight.Group
}

// New creates a Queue that replays writes into target.
func New(storage Storage, target backend.Store, log *zap.Logger, cfg Config) *Queue {
	if cfg.Key == "" {
		cfg.Key = DefaultKey
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = DefaultMaxRetries
	}
	if cfg.Codec == nil {
		cfg.Codec = JSONCodec{}
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.Real()
	}
	if cfg.Observer == nil {
		cfg.Observer = nopObserver{}
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Queue{
		storage: storage,
		target:  target,
		config:  cfg,
		log:     log.With(logger.Component("syncqueue")),
	}
}

// Enqueue appends w with a zero retry count.
func (q *Queue) Enqueue(ctx context.Context, w backend.Write) (Item, error) {
	item := Item{
		ID:         uuid.NewString(),
		Payload:    w,
		EnqueuedAt: q.config.Clock.Now().UTC(),
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	items, err := q.load(ctx)
	if err != nil {
		return Item{}, err
	}
	items = append(items, item)
	if err := q.save(ctx, items); err != nil {
		return Item{}, err
	}

	q.config.Observer.Enqueued()
	q.config.Observer.Depth(len(items))
	q.log.Info("write queued",
		logger.ItemID(item.ID),
		logger.Table(w.Table),
		zap.String("op", string(w.Op)),
		zap.Int("depth", len(items)),
	)
	return item, nil
}

// Pending returns the queued items in order.
func (q *Queue) Pending(ctx context.Context) ([]Item, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.load(ctx)
}

// Len returns the number of queued items.
func (q *Queue) Len(ctx context.Context) (int, error) {
	items, err := q.Pending(ctx)
	if err != nil {
		return 0, err
	}
	return len(items), nil
}

// Drain replays every queued item once. Calls that arrive while a pass is
// running wait for it and receive its report instead of starting another.
func (q *Queue) Drain(ctx context.Context) (DrainReport, error) {
	v, err, shared := q.flight.Do("drain", func() (any, error) {
		return q.drain(ctx)
	})
	if shared {
		q.log.Debug("drain coalesced into in-flight pass")
	}
	if err != nil {
		return DrainReport{}, err
	}
	return v.(DrainReport), nil
}

type outcome int

const (
	outcomeRemove outcome = iota
	outcomeRetry
	outcomeDrop
)

func (q *Queue) drain(ctx context.Context) (DrainReport, error) {
	start := q.config.Clock.Now()

	q.mu.Lock()
	snapshot, err := q.load(ctx)
	q.mu.Unlock()
	if err != nil {
		return DrainReport{}, err
	}
	if len(snapshot) == 0 {
		q.config.Observer.Depth(0)
		return DrainReport{}, nil
	}

	report := DrainReport{}
	results := make(map[string]outcome, len(snapshot))

	for _, item := range snapshot {
		if ctx.Err() != nil {
			break
		}
		report.Attempted++

		err := backend.Apply(ctx, q.target, item.Payload)
		if err == nil {
			results[item.ID] = outcomeRemove
			report.Succeeded++
			continue
		}

		if item.RetryCount+1 >= q.config.MaxRetries {
			results[item.ID] = outcomeDrop
			item.RetryCount++
			report.Dropped = append(report.Dropped, item)
			q.log.Warn("queued write dropped after max retries",
				logger.ItemID(item.ID),
				logger.Table(item.Payload.Table),
				logger.RetryCount(item.RetryCount),
				zap.Time("enqueued_at", item.EnqueuedAt),
				zap.Error(err),
			)
			continue
		}

		results[item.ID] = outcomeRetry
		report.Retried++
		q.log.Info("queued write failed, will retry",
			logger.ItemID(item.ID),
			logger.Table(item.Payload.Table),
			logger.RetryCount(item.RetryCount+1),
			zap.Error(err),
		)
	}

	// Merge into the current list: items enqueued during the pass are kept.
	// Writes already applied must leave the queue even if ctx has ended.
	mctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), mergeTimeout)
	defer cancel()

	q.mu.Lock()
	defer q.mu.Unlock()

	current, err := q.load(mctx)
	if err != nil {
		return report, err
	}

	kept := make([]Item, 0, len(current))
	for _, item := range current {
		switch res, seen := results[item.ID]; {
		case !seen:
			kept = append(kept, item)
		case res == outcomeRetry:
			item.RetryCount++
			kept = append(kept, item)
		}
	}

	if err := q.save(mctx, kept); err != nil {
		return report, err
	}
	report.Remaining = len(kept)

	q.config.Observer.Drained(report.Succeeded)
	q.config.Observer.Failed(report.Retried)
	q.config.Observer.Dropped(len(report.Dropped))
	q.config.Observer.Depth(len(kept))

	q.log.Info("sync queue drained",
		zap.Int("attempted", report.Attempted),
		zap.Int("succeeded", report.Succeeded),
		zap.Int("retried", report.Retried),
		zap.Int("dropped", len(report.Dropped)),
		zap.Int("remaining", report.Remaining),
		logger.Latency(q.config.Clock.Now().Sub(start)),
	)
	return report, nil
}

// load must be called with mu held.
func (q *Queue) load(ctx context.Context) ([]Item, error) {
	data, ok, err := q.storage.Get(ctx, q.config.Key)
	if err != nil {
		return nil, fmt.Errorf("syncqueue: load: %w", err)
	}
	if !ok || len(data) == 0 {
		return nil, nil
	}

	var items []Item
	if err := q.config.Codec.Unmarshal(data, &items); err != nil {
		return nil, fmt.Errorf("syncqueue: decode %s: %w", q.config.Codec.Name(), err)
	}
	return items, nil
}

// save must be called with mu held.
func (q *Queue) save(ctx context.Context, items []Item) error {
	if items == nil {
		items = []Item{}
	}
	data, err := q.config.Codec.Marshal(items)
	if err != nil {
		return fmt.Errorf("syncqueue: encode %s: %w", q.config.Codec.Name(), err)
	}
	if err := q.storage.Set(ctx, q.config.Key, data); err != nil {
		return fmt.Errorf("syncqueue: save: %w", err)
	}
	return nil
}
