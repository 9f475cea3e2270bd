package api

import (
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"slices"
	"strconv"

	"github.com/gorilla/websocket"
	"github.com/samber/lo"
	"github.com/tripware/tripchat/internal/database"
	"github.com/tripware/tripchat/internal/server"
	"github.com/tripware/tripchat/internal/types"
)

// roles allowed to create notifications over the REST surface
var notificationProducerRoles = []string{"admin", "coordinator"}

type SetNotificationReadRequest struct {
	Id   int  `json:"id"`
	Read bool `json:"read"`
}

type CreateNotificationRequest struct {
	UserId      int    `json:"user_id"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Type        string `json:"type"`
}

func (s *TripChatApp) writeJson(w http.ResponseWriter, statusCode int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if v == nil {
		return
	}

	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Printf("json encode: %v", err)
	}
}

// getMessages returns persisted message history for a room. Only a
// persisted participant of the room may read it.
func (s *TripChatApp) getMessages(w http.ResponseWriter, r *http.Request) {
	identity, ok := Identity(r.Context())
	if !ok {
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	externalId := r.URL.Query().Get("room_id")
	if externalId == "" {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	room, err := s.db.GetChatRoomByExternalId(externalId)
	if err != nil {
		var errResp *ApiError
		if errors.Is(err, sql.ErrNoRows) {
			errResp = NewNotFoundError()
		} else {
			errResp = NewInternalServerError(err)
		}
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	if _, err := s.db.GetParticipant(room.Id, identity.Id); err != nil {
		var errResp *ApiError
		if errors.Is(err, sql.ErrNoRows) {
			errResp = NewForbiddenError()
		} else {
			errResp = NewInternalServerError(err)
		}
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	var before, after, limit int
	for param, dst := range map[string]*int{
		"before": &before,
		"after":  &after,
		"limit":  &limit,
	} {
		value := r.URL.Query().Get(param)
		if value == "" {
			continue
		}

		*dst, err = strconv.Atoi(value)
		if err != nil {
			errResp := NewBadRequestError()
			s.writeJson(w, errResp.StatusCode, errResp)
			return
		}
	}

	messages, err := s.db.ListMessages(room.Id, after, before, limit)
	if err != nil {
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	userMessages := lo.Map(messages, func(msg database.Message, _ int) types.Message {
		return types.Message{
			Id:         msg.Id,
			SeqId:      msg.SeqId,
			ChatRoomId: room.ExternalId,
			SenderId:   msg.SenderId,
			Content:    msg.Content,
			CreatedAt:  msg.CreatedAt,
		}
	})

	s.writeJson(w, http.StatusOK, userMessages)
}

func (s *TripChatApp) listNotifications(w http.ResponseWriter, r *http.Request) {
	identity, ok := Identity(r.Context())
	if !ok {
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	unreadOnly := r.URL.Query().Get("unread") == "true"

	notifications, err := s.db.ListNotifications(identity.Id, unreadOnly)
	if err != nil {
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	resp := lo.Map(notifications, func(n database.Notification, _ int) types.Notification {
		return types.Notification{
			Id:          n.Id,
			UserId:      n.UserId,
			Title:       n.Title,
			Description: n.Description,
			Type:        n.Type,
			Read:        n.Read,
			CreatedAt:   n.CreatedAt,
		}
	})

	s.writeJson(w, http.StatusOK, resp)
}

// createNotification lets privileged platform roles (trip status changes,
// application review and the like) produce notifications over REST.
func (s *TripChatApp) createNotification(w http.ResponseWriter, r *http.Request) {
	identity, ok := Identity(r.Context())
	if !ok {
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	if !slices.Contains(notificationProducerRoles, identity.Role) {
		errResp := NewForbiddenError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	var req CreateNotificationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	if req.UserId == 0 || req.Title == "" || req.Type == "" {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	notification, err := s.notifier.CreateNotification(req.UserId, req.Title, req.Description, req.Type)
	if err != nil {
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	s.writeJson(w, http.StatusCreated, notification)
}

func (s *TripChatApp) setNotificationRead(w http.ResponseWriter, r *http.Request) {
	identity, ok := Identity(r.Context())
	if !ok {
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	var req SetNotificationReadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	notification, err := s.notifier.SetNotificationRead(req.Id, identity.Id, req.Read)
	if err != nil {
		var errResp *ApiError
		switch {
		case errors.Is(err, server.ErrNotificationNotFound):
			errResp = NewNotFoundError()
		case errors.Is(err, server.ErrNotNotificationOwner):
			errResp = NewForbiddenError()
		default:
			errResp = NewInternalServerError(err)
		}
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	s.writeJson(w, http.StatusOK, notification)
}

func (s *TripChatApp) markAllNotificationsRead(w http.ResponseWriter, r *http.Request) {
	identity, ok := Identity(r.Context())
	if !ok {
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	count, err := s.notifier.MarkAllRead(identity.Id)
	if err != nil {
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	s.writeJson(w, http.StatusOK, map[string]int64{"count": count})
}

// serveWs is the handshake: the bearer credential has already been
// verified by the middleware, so the connection is admitted with its
// identity fixed for its whole lifetime.
func (s *TripChatApp) serveWs(w http.ResponseWriter, r *http.Request) {
	identity, ok := Identity(r.Context())
	if !ok {
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	upgrader := websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if origin == "" {
				return true
			}

			return slices.Contains(s.allowedOrigins, origin)
		},
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Println("error upgrading connection:", err)
		return
	}

	client := server.NewClient(identity, conn, s.cs, s.log, s.stats)

	s.cs.RegisterClient(client)
	go client.Write()
	go client.Read()
}
