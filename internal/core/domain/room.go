package domain

import (
	"fmt"
	"strings"
)

type RoomID string

// RoomSnapshot is a point-in-time view of one room.
type RoomSnapshot struct {
	ID      RoomID `json:"room"`
	Members int    `json:"members"`
	Likes   int64  `json:"likes"`
}

type CounterKind string

const CounterLikes CounterKind = "likes"

// CounterKey identifies one shared counter.
type CounterKey struct {
	Room RoomID
	Kind CounterKind
}

func LikesKey(room RoomID) CounterKey {
	return CounterKey{Room: room, Kind: CounterLikes}
}

func (k CounterKey) String() string {
	return fmt.Sprintf("%s:%s", k.Kind, k.Room)
}

// ParseCounterKey reverses String. Room ids may themselves contain ':'.
func ParseCounterKey(s string) (CounterKey, error) {
	kind, room, ok := strings.Cut(s, ":")
	if !ok || kind == "" || room == "" {
		return CounterKey{}, fmt.Errorf("malformed counter key %q", s)
	}
	return CounterKey{Room: RoomID(room), Kind: CounterKind(kind)}, nil
}

// DeliveryReport counts the outcome of one room broadcast.
type DeliveryReport struct {
	Delivered int
	Failed    int
}

func (r DeliveryReport) Add(other DeliveryReport) DeliveryReport {
	return DeliveryReport{
		Delivered: r.Delivered + other.Delivered,
		Failed:    r.Failed + other.Failed,
	}
}
