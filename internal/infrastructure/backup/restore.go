package backup

import (
	"context"
	"errors"
	"fmt"

	"livecast/internal/core/domain"
	"livecast/pkg/backup"

	"go.uber.org/zap"
)

// RestoreLatest loads the newest snapshot into target and returns the
// number of counters restored. Having no snapshot yet is not an error.
// Malformed entries are skipped.
func RestoreLatest(ctx context.Context, service *backup.Service, target CounterSource, logger *zap.SugaredLogger) (int, error) {
	snap, name, err := service.Latest(ctx)
	if errors.Is(err, backup.ErrNoSnapshots) {
		logger.Info("no counter snapshot to restore")
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to load latest snapshot: %w", err)
	}

	values := make(map[domain.CounterKey]int64, len(snap.Counters))
	for raw, v := range snap.Counters {
		key, err := domain.ParseCounterKey(raw)
		if err != nil {
			logger.Warnw("skipping malformed counter in snapshot", "snapshot", name, "key", raw)
			continue
		}
		if v < 0 {
			v = 0
		}
		values[key] = v
	}
	target.Restore(values)

	logger.Infow("restored counters from snapshot",
		"snapshot", name,
		"taken_at", snap.Timestamp,
		"counters", len(values),
	)
	return len(values), nil
}
