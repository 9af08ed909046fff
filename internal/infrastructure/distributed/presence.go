package distributed

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"livecast/internal/core/domain"
	"livecast/internal/core/ports"
	"livecast/pkg/distributed"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	presencePrefix = "livecast:presence:"
	reaperLockKey  = "presence-reaper"
)

// PresenceTracker counts room members across instances. Each instance
// keeps a heartbeat key alive; members owned by an instance whose
// heartbeat expired are removed by whichever instance holds the reaper
// lock.
type PresenceTracker struct {
	client     redis.UniversalClient
	instanceID string
	heartbeat  time.Duration
	ttl        time.Duration
	locks      *distributed.LockManager
	logger     *zap.SugaredLogger

	// local holds the ownership entries of members joined through this
	// instance, so a beat can restore them after a reaper removed them.
	// mu also serializes this instance's presence writes.
	mu    sync.Mutex
	local map[string]struct{}
}

var _ ports.PresenceTracker = (*PresenceTracker)(nil)

func NewPresenceTracker(
	client redis.UniversalClient,
	instanceID string,
	heartbeat, ttl time.Duration,
	logger *zap.SugaredLogger,
) *PresenceTracker {
	return &PresenceTracker{
		client:     client,
		instanceID: instanceID,
		heartbeat:  heartbeat,
		ttl:        ttl,
		locks:      distributed.NewLockManager(client, "livecast:lock:"),
		logger:     logger,
		local:      make(map[string]struct{}),
	}
}

func roomKey(room domain.RoomID) string {
	return presencePrefix + "room:" + string(room)
}

func instanceKey(id string) string {
	return presencePrefix + "instance:" + id
}

func instanceMembersKey(id string) string {
	return presencePrefix + "instance:" + id + ":members"
}

func instancesKey() string {
	return presencePrefix + "instances"
}

func (p *PresenceTracker) member(session domain.SessionID) string {
	return p.instanceID + "/" + string(session)
}

// ownership entries are "<room>|<member>"; room ids never contain '|'.
func ownership(room domain.RoomID, member string) string {
	return string(room) + "|" + member
}

func (p *PresenceTracker) Join(ctx context.Context, room domain.RoomID, session domain.SessionID) (int64, error) {
	member := p.member(session)
	p.mu.Lock()
	defer p.mu.Unlock()

	var card *redis.IntCmd
	_, err := p.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.SAdd(ctx, roomKey(room), member)
		pipe.SAdd(ctx, instanceMembersKey(p.instanceID), ownership(room, member))
		card = pipe.SCard(ctx, roomKey(room))
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("presence join %s: %w", room, err)
	}
	p.local[ownership(room, member)] = struct{}{}
	return card.Val(), nil
}

func (p *PresenceTracker) Leave(ctx context.Context, room domain.RoomID, session domain.SessionID) (int64, error) {
	member := p.member(session)
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.local, ownership(room, member))

	var card *redis.IntCmd
	_, err := p.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.SRem(ctx, roomKey(room), member)
		pipe.SRem(ctx, instanceMembersKey(p.instanceID), ownership(room, member))
		card = pipe.SCard(ctx, roomKey(room))
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("presence leave %s: %w", room, err)
	}
	return card.Val(), nil
}

func (p *PresenceTracker) Count(ctx context.Context, room domain.RoomID) (int64, error) {
	n, err := p.client.SCard(ctx, roomKey(room)).Result()
	if err != nil {
		return 0, fmt.Errorf("presence count %s: %w", room, err)
	}
	return n, nil
}

// Beat marks this instance alive and re-registers its local members,
// which another instance may have reaped while heartbeats were failing.
func (p *PresenceTracker) Beat(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	_, err := p.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, instanceKey(p.instanceID), time.Now().Unix(), p.ttl)
		pipe.SAdd(ctx, instancesKey(), p.instanceID)
		for entry := range p.local {
			room, member, ok := strings.Cut(entry, "|")
			if !ok {
				continue
			}
			pipe.SAdd(ctx, roomKey(domain.RoomID(room)), member)
			pipe.SAdd(ctx, instanceMembersKey(p.instanceID), entry)
		}
		return nil
	})
	return err
}

// Run beats and reaps every heartbeat interval until ctx is done, then
// withdraws this instance's members.
func (p *PresenceTracker) Run(ctx context.Context) {
	if err := p.Beat(ctx); err != nil {
		p.logger.Warnw("presence heartbeat failed", "error", err)
	}

	ticker := time.NewTicker(p.heartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			cleanupCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			if err := p.Withdraw(cleanupCtx); err != nil {
				p.logger.Warnw("failed to withdraw presence", "error", err)
			}
			cancel()
			return
		case <-ticker.C:
			if err := p.Beat(ctx); err != nil {
				p.logger.Warnw("presence heartbeat failed", "error", err)
				continue
			}
			if n, err := p.Reap(ctx); err != nil {
				p.logger.Warnw("presence reap failed", "error", err)
			} else if n > 0 {
				p.logger.Infow("reaped stale presence", "members", n)
			}
		}
	}
}

// Reap removes members of instances whose heartbeat expired. It returns
// the number of members removed, or 0 when another instance holds the
// reaper lock.
func (p *PresenceTracker) Reap(ctx context.Context) (int, error) {
	lock := p.locks.NewLock(reaperLockKey, p.ttl)
	acquired, err := lock.TryLock(ctx)
	if err != nil || !acquired {
		return 0, err
	}
	defer func() {
		if err := lock.Unlock(ctx); err != nil && !errors.Is(err, distributed.ErrNotHeld) {
			p.logger.Debugw("failed to release reaper lock", "error", err)
		}
	}()

	instances, err := p.client.SMembers(ctx, instancesKey()).Result()
	if err != nil {
		return 0, err
	}

	removed := 0
	for _, id := range instances {
		alive, err := p.client.Exists(ctx, instanceKey(id)).Result()
		if err != nil {
			return removed, err
		}
		if alive > 0 {
			continue
		}
		n, err := p.withdrawInstance(ctx, id)
		removed += n
		if err != nil {
			return removed, err
		}
		p.logger.Infow("removed expired instance", "instance_id", id, "members", n)
	}
	return removed, nil
}

// Withdraw removes every member owned by this instance.
func (p *PresenceTracker) Withdraw(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	clear(p.local)
	_, err := p.withdrawInstance(ctx, p.instanceID)
	return err
}

func (p *PresenceTracker) withdrawInstance(ctx context.Context, id string) (int, error) {
	entries, err := p.client.SMembers(ctx, instanceMembersKey(id)).Result()
	if err != nil {
		return 0, err
	}

	_, err = p.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, entry := range entries {
			room, member, ok := strings.Cut(entry, "|")
			if !ok {
				continue
			}
			pipe.SRem(ctx, roomKey(domain.RoomID(room)), member)
		}
		pipe.Del(ctx, instanceMembersKey(id), instanceKey(id))
		pipe.SRem(ctx, instancesKey(), id)
		return nil
	})
	if err != nil {
		return 0, err
	}
	return len(entries), nil
}
