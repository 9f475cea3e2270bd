package database

import (
	"fmt"
	"time"
)

func (db *PgTripChatRepository) GetChatRoomByExternalId(externalId string) (ChatRoom, error) {
	row := db.conn.QueryRow(
		"SELECT id, external_id, name, description, seq_id, coordinator_id, created_at FROM chat_rooms "+
			"WHERE external_id = $1 LIMIT 1",
		externalId,
	)

	var room ChatRoom
	err := row.Scan(
		&room.Id,
		&room.ExternalId,
		&room.Name,
		&room.Description,
		&room.SeqId,
		&room.CoordinatorId,
		&room.CreatedAt,
	)

	return room, err
}

func (db *PgTripChatRepository) GetParticipant(chatRoomId, userId int) (Participant, error) {
	row := db.conn.QueryRow(
		"SELECT id, chat_room_id, user_id, created_at FROM participants "+
			"WHERE chat_room_id = $1 AND user_id = $2 LIMIT 1",
		chatRoomId,
		userId,
	)

	var p Participant
	err := row.Scan(
		&p.Id,
		&p.ChatRoomId,
		&p.UserId,
		&p.CreatedAt,
	)

	return p, err
}

// CreateMessage persists a message and advances the room's sequence in a
// single transaction, so a committed row is always visible at its seq_id.
func (db *PgTripChatRepository) CreateMessage(params CreateMessageParams) (Message, error) {
	tx, err := db.conn.Begin()
	if err != nil {
		return Message{}, err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	_, err = tx.Exec(
		"UPDATE chat_rooms SET seq_id = $1 WHERE id = $2",
		params.SeqId,
		params.ChatRoomId,
	)
	if err != nil {
		return Message{}, err
	}

	res := tx.QueryRow(
		"INSERT INTO messages (seq_id, chat_room_id, sender_id, content, created_at) "+
			"VALUES ($1, $2, $3, $4, $5) RETURNING id, seq_id, chat_room_id, sender_id, content, created_at",
		params.SeqId,
		params.ChatRoomId,
		params.SenderId,
		params.Content,
		params.CreatedAt,
	)

	var msg Message
	err = res.Scan(
		&msg.Id,
		&msg.SeqId,
		&msg.ChatRoomId,
		&msg.SenderId,
		&msg.Content,
		&msg.CreatedAt,
	)
	if err != nil {
		return Message{}, err
	}

	if err = tx.Commit(); err != nil {
		return Message{}, err
	}

	return msg, nil
}

func (db *PgTripChatRepository) ListMessages(chatRoomId, since, before, limit int) ([]Message, error) {
	var upper, lower int = 1<<31 - 1, 0
	if before > 0 {
		upper = before - 1
	}

	if since > 0 {
		lower = since
	}

	if limit <= 0 {
		limit = 20
	}

	rows, err := db.conn.Query(
		"SELECT id, seq_id, chat_room_id, sender_id, content, created_at FROM messages "+
			"WHERE chat_room_id = $1 AND seq_id BETWEEN $2 AND $3 ORDER BY seq_id DESC LIMIT $4",
		chatRoomId,
		lower,
		upper,
		limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var messages = make([]Message, 0, limit)
	for rows.Next() {
		var msg Message
		if err = rows.Scan(&msg.Id, &msg.SeqId, &msg.ChatRoomId, &msg.SenderId, &msg.Content, &msg.CreatedAt); err != nil {
			break
		}

		messages = append(messages, msg)
	}
	return messages, err
}

func (db *PgTripChatRepository) CreateNotification(params CreateNotificationParams) (Notification, error) {
	res := db.conn.QueryRow(
		"INSERT INTO notifications (user_id, title, description, type, read, created_at) "+
			"VALUES ($1, $2, $3, $4, FALSE, $5) RETURNING id, user_id, title, description, type, read, created_at",
		params.UserId,
		params.Title,
		params.Description,
		params.Type,
		time.Now().UTC(),
	)

	var n Notification
	err := res.Scan(
		&n.Id,
		&n.UserId,
		&n.Title,
		&n.Description,
		&n.Type,
		&n.Read,
		&n.CreatedAt,
	)

	return n, err
}

func (db *PgTripChatRepository) GetNotification(id int) (Notification, error) {
	row := db.conn.QueryRow(
		"SELECT id, user_id, title, description, type, read, created_at FROM notifications "+
			"WHERE id = $1 LIMIT 1",
		id,
	)

	var n Notification
	err := row.Scan(
		&n.Id,
		&n.UserId,
		&n.Title,
		&n.Description,
		&n.Type,
		&n.Read,
		&n.CreatedAt,
	)

	return n, err
}

func (db *PgTripChatRepository) ListNotifications(userId int, unreadOnly bool) ([]Notification, error) {
	query := "SELECT id, user_id, title, description, type, read, created_at FROM notifications " +
		"WHERE user_id = $1"
	if unreadOnly {
		query += " AND read = FALSE"
	}
	query += " ORDER BY created_at DESC"

	rows, err := db.conn.Query(query, userId)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var notifications = make([]Notification, 0)
	for rows.Next() {
		var n Notification
		if err = rows.Scan(&n.Id, &n.UserId, &n.Title, &n.Description, &n.Type, &n.Read, &n.CreatedAt); err != nil {
			break
		}

		notifications = append(notifications, n)
	}
	return notifications, err
}

func (db *PgTripChatRepository) SetNotificationRead(id int, read bool) (Notification, error) {
	res := db.conn.QueryRow(
		"UPDATE notifications SET read = $2 WHERE id = $1 "+
			"RETURNING id, user_id, title, description, type, read, created_at",
		id,
		read,
	)

	var n Notification
	err := res.Scan(
		&n.Id,
		&n.UserId,
		&n.Title,
		&n.Description,
		&n.Type,
		&n.Read,
		&n.CreatedAt,
	)

	return n, err
}

func (db *PgTripChatRepository) MarkAllNotificationsRead(userId int) (int64, error) {
	res, err := db.conn.Exec(
		"UPDATE notifications SET read = TRUE WHERE user_id = $1 AND read = FALSE",
		userId,
	)
	if err != nil {
		return 0, err
	}

	count, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}

	return count, nil
}
