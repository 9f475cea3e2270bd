package database

import "time"

type ChatRoom struct {
	Id            int
	ExternalId    string
	Name          string
	Description   string
	SeqId         int
	CoordinatorId int
	CreatedAt     time.Time
}

type Participant struct {
	Id         int
	ChatRoomId int
	UserId     int
	CreatedAt  time.Time
}

type Message struct {
	Id         int
	SeqId      int
	ChatRoomId int
	SenderId   int
	Content    string
	CreatedAt  time.Time
}

type Notification struct {
	Id          int
	UserId      int
	Title       string
	Description string
	Type        string
	Read        bool
	CreatedAt   time.Time
}

type CreateMessageParams struct {
	SeqId      int
	ChatRoomId int
	SenderId   int
	Content    string
	CreatedAt  time.Time
}

type CreateNotificationParams struct {
	UserId      int
	Title       string
	Description string
	Type        string
}
