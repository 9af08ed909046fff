package backup

import (
	"context"
	"time"

	"livecast/internal/core/domain"
	"livecast/pkg/backup"

	"go.uber.org/zap"
)

// CounterSource is a counter store that can be copied out and refilled.
// The in-process store implements it; Redis persists on its own.
type CounterSource interface {
	Snapshot() map[domain.CounterKey]int64
	Restore(values map[domain.CounterKey]int64)
}

type Config struct {
	Interval time.Duration
	Keep     int
}

// Scheduler snapshots counters on an interval and once more on stop.
type Scheduler struct {
	service    *backup.Service
	source     CounterSource
	instanceID string
	cfg        Config
	logger     *zap.SugaredLogger
}

func NewScheduler(service *backup.Service, source CounterSource, instanceID string, cfg Config, logger *zap.SugaredLogger) *Scheduler {
	if cfg.Keep < 1 {
		cfg.Keep = 1
	}
	return &Scheduler{
		service:    service,
		source:     source,
		instanceID: instanceID,
		cfg:        cfg,
		logger:     logger,
	}
}

// Run blocks until ctx is done.
func (s *Scheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.snapshot(ctx)
		case <-ctx.Done():
			finalCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			s.snapshot(finalCtx)
			cancel()
			return
		}
	}
}

func (s *Scheduler) snapshot(ctx context.Context) {
	name, err := s.SnapshotNow(ctx)
	if err != nil {
		s.logger.Errorw("failed to snapshot counters", "error", err)
		return
	}
	s.logger.Debugw("counter snapshot written", "snapshot", name)

	if removed, err := s.service.Prune(ctx, s.cfg.Keep); err != nil {
		s.logger.Warnw("failed to prune counter snapshots", "error", err)
	} else if removed > 0 {
		s.logger.Debugw("pruned counter snapshots", "removed", removed)
	}
}

// SnapshotNow writes the current counters and returns the snapshot name.
func (s *Scheduler) SnapshotNow(ctx context.Context) (string, error) {
	values := s.source.Snapshot()
	counters := make(map[string]int64, len(values))
	for k, v := range values {
		counters[k.String()] = v
	}
	return s.service.Create(ctx, &backup.Snapshot{
		InstanceID: s.instanceID,
		Counters:   counters,
	})
}
