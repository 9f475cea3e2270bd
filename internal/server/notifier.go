package server

import (
	"database/sql"
	"errors"
	"fmt"
	"log"

	"github.com/tripware/tripchat/internal/database"
	"github.com/tripware/tripchat/internal/types"
)

var (
	ErrNotificationNotFound = errors.New("notification not found")
	ErrNotNotificationOwner = errors.New("notification belongs to another user")
)

// Notifier persists notification records and fans them out to every live
// connection of the target user. Any server-side event producer may call
// it; the messaging path is just one of them.
type Notifier struct {
	log *log.Logger
	db  database.TripChatRepository
	cs  *ChatServer
}

func NewNotifier(logger *log.Logger, db database.TripChatRepository, cs *ChatServer) *Notifier {
	return &Notifier{
		log: logger,
		db:  db,
		cs:  cs,
	}
}

// CreateNotification persists the record first, then pushes it to each of
// the user's live connections. No connections online is not an error; the
// row remains for later retrieval.
func (n *Notifier) CreateNotification(userId int, title, description, notificationType string) (types.Notification, error) {
	dbNotif, err := n.db.CreateNotification(database.CreateNotificationParams{
		UserId:      userId,
		Title:       title,
		Description: description,
		Type:        notificationType,
	})
	if err != nil {
		return types.Notification{}, fmt.Errorf("create notification: %w", err)
	}

	notif := notificationFromDB(dbNotif)
	n.cs.stats.Incr(numNotificationsMetric)
	n.cs.PushToUser(userId, &ServerMessage{
		BaseMessage: BaseMessage{
			Timestamp: notif.CreatedAt,
		},
		Notification: &notif,
	})

	return notif, nil
}

// SetNotificationRead sets the read flag to the requested state after
// verifying ownership. Setting an already-set flag is a no-op success.
func (n *Notifier) SetNotificationRead(notificationId, requestingUserId int, read bool) (types.Notification, error) {
	dbNotif, err := n.db.GetNotification(notificationId)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.Notification{}, ErrNotificationNotFound
		}
		return types.Notification{}, fmt.Errorf("get notification: %w", err)
	}

	if dbNotif.UserId != requestingUserId {
		return types.Notification{}, ErrNotNotificationOwner
	}

	updated, err := n.db.SetNotificationRead(notificationId, read)
	if err != nil {
		return types.Notification{}, fmt.Errorf("set notification read: %w", err)
	}

	return notificationFromDB(updated), nil
}

// MarkAllRead bulk-sets read=true for the user's unread notifications and
// returns the number affected. No push happens; clients pick the change up
// on their next fetch.
func (n *Notifier) MarkAllRead(userId int) (int64, error) {
	count, err := n.db.MarkAllNotificationsRead(userId)
	if err != nil {
		return 0, fmt.Errorf("mark all notifications read: %w", err)
	}

	return count, nil
}

func notificationFromDB(n database.Notification) types.Notification {
	return types.Notification{
		Id:          n.Id,
		UserId:      n.UserId,
		Title:       n.Title,
		Description: n.Description,
		Type:        n.Type,
		Read:        n.Read,
		CreatedAt:   n.CreatedAt,
	}
}
