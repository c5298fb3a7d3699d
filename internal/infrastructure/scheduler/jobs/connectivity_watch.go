package jobs

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/alem-hub/study-pace/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// CONNECTIVITY WATCH JOB
// Probes the backend and drains the sync queue as soon as it comes back.
// ══════════════════════════════════════════════════════════════════════════════

// Prober checks that the backend is reachable.
type Prober interface {
	Ping(ctx context.Context) error
}

// ConnectivityWatchJob tracks backend reachability. An offline → online
// transition triggers a drain, which coalesces with any periodic drain
// already in flight.
type ConnectivityWatchJob struct {
	prober  Prober
	queue   Drainer
	log     *zap.Logger
	timeout time.Duration

	mu     sync.Mutex
	known  bool
	online bool
}

// NewConnectivityWatchJob creates a new watch job. timeout bounds a probe.
func NewConnectivityWatchJob(prober Prober, queue Drainer, log *zap.Logger, timeout time.Duration) *ConnectivityWatchJob {
	if log == nil {
		log = zap.NewNop()
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &ConnectivityWatchJob{
		prober:  prober,
		queue:   queue,
		log:     log.With(logger.Component("connectivity")),
		timeout: timeout,
	}
}

// Name returns the job name.
func (j *ConnectivityWatchJob) Name() string {
	return "connectivity_watch"
}

// Description returns a human-readable description.
func (j *ConnectivityWatchJob) Description() string {
	return "Drains the sync queue when the backend becomes reachable again"
}

// Run probes once.
func (j *ConnectivityWatchJob) Run(ctx context.Context) error {
	probeCtx, cancel := context.WithTimeout(ctx, j.timeout)
	err := j.prober.Ping(probeCtx)
	cancel()

	online := err == nil
	reconnected := j.transition(online)

	if !online {
		j.log.Debug("backend unreachable", zap.Error(err))
		return nil
	}
	if !reconnected {
		return nil
	}

	j.log.Info("backend reachable again, draining sync queue")
	report, err := j.queue.Drain(ctx)
	if err != nil {
		return err
	}
	j.log.Info("reconnect drain finished",
		zap.Int("succeeded", report.Succeeded),
		zap.Int("remaining", report.Remaining),
	)
	return nil
}

// transition records the probe result and reports an offline → online change.
func (j *ConnectivityWatchJob) transition(online bool) bool {
	j.mu.Lock()
	defer j.mu.Unlock()

	reconnected := j.known && !j.online && online
	if j.known && j.online != online {
		j.log.Info("connectivity changed", zap.Bool("online", online))
	}
	j.known = true
	j.online = online
	return reconnected
}

// Online reports the last observed state. Unknown before the first probe.
func (j *ConnectivityWatchJob) Online() (online, known bool) {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.online, j.known
}
