package domain

import "time"

type ChatMessage struct {
	ID              string
	RoomID          RoomID
	SenderSessionID SessionID
	UserID          UserID
	Username        string
	Content         string
	SentAt          time.Time
}

// RoomEvent is an encoded outbound frame addressed to every member of a
// room. It is what crosses instances on the fanout bus.
type RoomEvent struct {
	Origin  string    `json:"origin"`
	Room    RoomID    `json:"room"`
	Type    string    `json:"type"`
	Exclude SessionID `json:"exclude,omitempty"`
	Payload []byte    `json:"payload"`
}
