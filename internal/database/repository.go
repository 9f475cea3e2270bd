package database

// TripChatRepository is the persisted-store contract consumed by the
// realtime core. Chat rooms and participants are created elsewhere in the
// platform; this layer only ever reads them.
type TripChatRepository interface {
	Ping() error
	GetChatRoomByExternalId(externalId string) (ChatRoom, error)
	GetParticipant(chatRoomId, userId int) (Participant, error)
	CreateMessage(params CreateMessageParams) (Message, error)
	ListMessages(chatRoomId, since, before, limit int) ([]Message, error)
	CreateNotification(params CreateNotificationParams) (Notification, error)
	GetNotification(id int) (Notification, error)
	ListNotifications(userId int, unreadOnly bool) ([]Notification, error)
	SetNotificationRead(id int, read bool) (Notification, error)
	MarkAllNotificationsRead(userId int) (int64, error)
}
