package backup

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/goccy/go-json"
)

// FormatVersion is written into every snapshot. Load rejects other versions.
const FormatVersion = 1

const (
	namePrefix = "snapshot-"
	nameSuffix = ".json"
	nameLayout = "20060102-150405.000"
)

var ErrNoSnapshots = errors.New("no snapshots found")

// Snapshot is a point-in-time copy of counter values keyed by their
// string form.
type Snapshot struct {
	Version    int              `json:"version"`
	Timestamp  time.Time        `json:"timestamp"`
	InstanceID string           `json:"instance_id,omitempty"`
	Counters   map[string]int64 `json:"counters"`
}

// Storage defines interface for snapshot storage
type Storage interface {
	Save(ctx context.Context, name string, data io.Reader) error
	Load(ctx context.Context, name string) (io.ReadCloser, error)
	List(ctx context.Context, prefix string) ([]string, error)
	Delete(ctx context.Context, name string) error
}

type Service struct {
	storage Storage
	now     func() time.Time
}

func NewService(storage Storage) *Service {
	return &Service{
		storage: storage,
		now:     time.Now,
	}
}

// Create stamps and saves snap, returning the name it was stored under.
func (s *Service) Create(ctx context.Context, snap *Snapshot) (string, error) {
	snap.Version = FormatVersion
	snap.Timestamp = s.now().UTC()
	if snap.Counters == nil {
		snap.Counters = map[string]int64{}
	}

	data, err := json.Marshal(snap)
	if err != nil {
		return "", fmt.Errorf("failed to marshal snapshot: %w", err)
	}

	name := namePrefix + snap.Timestamp.Format(nameLayout) + nameSuffix
	if err := s.storage.Save(ctx, name, bytes.NewReader(data)); err != nil {
		return "", fmt.Errorf("failed to save snapshot: %w", err)
	}
	return name, nil
}

func (s *Service) Load(ctx context.Context, name string) (*Snapshot, error) {
	reader, err := s.storage.Load(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("failed to load snapshot: %w", err)
	}
	defer reader.Close()

	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("failed to read snapshot: %w", err)
	}

	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("failed to unmarshal snapshot %s: %w", name, err)
	}
	if snap.Version != FormatVersion {
		return nil, fmt.Errorf("snapshot %s has unsupported version %d", name, snap.Version)
	}
	return &snap, nil
}

// List returns snapshot names oldest first. The timestamp in the name
// sorts lexically.
func (s *Service) List(ctx context.Context) ([]string, error) {
	names, err := s.storage.List(ctx, namePrefix)
	if err != nil {
		return nil, err
	}
	out := names[:0]
	for _, name := range names {
		if strings.HasSuffix(name, nameSuffix) {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out, nil
}

// Latest loads the newest snapshot.
func (s *Service) Latest(ctx context.Context) (*Snapshot, string, error) {
	names, err := s.List(ctx)
	if err != nil {
		return nil, "", err
	}
	if len(names) == 0 {
		return nil, "", ErrNoSnapshots
	}
	name := names[len(names)-1]
	snap, err := s.Load(ctx, name)
	return snap, name, err
}

// Prune deletes all but the newest keep snapshots and returns how many
// were removed.
func (s *Service) Prune(ctx context.Context, keep int) (int, error) {
	names, err := s.List(ctx)
	if err != nil {
		return 0, err
	}
	if keep < 1 {
		keep = 1
	}
	removed := 0
	for len(names)-removed > keep {
		if err := s.storage.Delete(ctx, names[removed]); err != nil {
			return removed, fmt.Errorf("failed to delete snapshot %s: %w", names[removed], err)
		}
		removed++
	}
	return removed, nil
}
