package utils

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
)

var (
	entropyMu sync.Mutex
	entropy   io.Reader = ulid.Monotonic(rand.Reader, 0)
)

// NewSessionID returns a random UUIDv4, unique for the life of the process.
func NewSessionID() string {
	return uuid.NewString()
}

// NewMessageID returns a ULID. IDs minted by one process sort in creation
// order, including IDs minted within the same millisecond.
func NewMessageID(now time.Time) string {
	entropyMu.Lock()
	defer entropyMu.Unlock()
	return ulid.MustNew(ulid.Timestamp(now), entropy).String()
}

// MessageTime extracts the embedded timestamp from a message ID.
func MessageTime(id string) (time.Time, error) {
	parsed, err := ulid.ParseStrict(id)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse message id: %w", err)
	}
	return ulid.Time(parsed.Time()), nil
}

func NewRequestID() string {
	b := make([]byte, 4)
	_, _ = rand.Read(b)
	return fmt.Sprintf("req_%d_%s", time.Now().UnixNano(), hex.EncodeToString(b))
}

// NewInstanceID identifies this process in cross-instance fanout and
// presence. The hostname prefix only aids debugging.
func NewInstanceID() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "livecast"
	}
	return host + "-" + uuid.NewString()[:8]
}
