package types

import (
	"time"
)

// Identity is the authenticated principal attached to a connection at
// handshake time. It is never re-derived from later frames.
type Identity struct {
	Id    int    `json:"id"`
	Email string `json:"email,omitempty"`
	Role  string `json:"role,omitempty"`
}

type ChatRoom struct {
	Id            int       `json:"id"`
	ExternalId    string    `json:"external_id"`
	Name          string    `json:"name"`
	Description   string    `json:"description"`
	CoordinatorId int       `json:"coordinator_id"`
	CreatedAt     time.Time `json:"created_at,omitempty"`
}

// Participant is the persisted membership record authorizing a user to
// join and send in a room. The realtime core only ever reads it.
type Participant struct {
	Id         int       `json:"id"`
	ChatRoomId int       `json:"chat_room_id"`
	UserId     int       `json:"user_id"`
	CreatedAt  time.Time `json:"created_at,omitempty"`
}

type Message struct {
	Id         int       `json:"id"`
	SeqId      int       `json:"seq_id"`
	ChatRoomId string    `json:"chat_room_id"`
	SenderId   int       `json:"sender_id"`
	Content    string    `json:"content"`
	CreatedAt  time.Time `json:"created_at"`
}

type Notification struct {
	Id          int       `json:"id"`
	UserId      int       `json:"user_id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Type        string    `json:"type"`
	Read        bool      `json:"read"`
	CreatedAt   time.Time `json:"created_at"`
}
