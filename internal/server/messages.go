package server

import (
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/tripware/tripchat/internal/types"
)

// Error kinds carried on the outbound error event.
const (
	KindAuth          = "auth"
	KindAuthorization = "authorization"
	KindValidation    = "validation"
	KindPersistence   = "persistence"
	KindNotFound      = "not_found"
)

var validate = validator.New()

type BaseMessage struct {
	Id        int       `json:"id,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// ClientMessage is the tagged union of inbound events. Exactly one of the
// event fields is expected to be set; payloads are validated before
// dispatch.
type ClientMessage struct {
	BaseMessage
	Join    *Join    `json:"chat:join,omitempty"`
	Leave   *Leave   `json:"chat:leave,omitempty"`
	Publish *Publish `json:"message:send,omitempty"`
	UserId  int      `json:"-"`
	client  *Client  `json:"-"`
}

type Join struct {
	ChatRoomId string `json:"chat_room_id" validate:"required"`
}

type Leave struct {
	ChatRoomId string `json:"chat_room_id" validate:"required"`
}

type Publish struct {
	ChatRoomId string `json:"chat_room_id" validate:"required"`
	Content    string `json:"content" validate:"required,min=1,max=5000"`
}

// ServerMessage is the tagged union of outbound events. UserId targets
// user-scoped fan-out and is never serialized.
type ServerMessage struct {
	BaseMessage
	Response     *Response           `json:"response,omitempty"`
	Message      *types.Message      `json:"message:new,omitempty"`
	Notification *types.Notification `json:"notification:new,omitempty"`
	Error        *ErrorEvent         `json:"error,omitempty"`
	UserId       int                 `json:"-"`
}

// Response is the id-correlated acknowledgement for a client request.
type Response struct {
	ResponseCode int `json:"response_code"`
	Data         any `json:"data,omitempty"`
}

type ErrorEvent struct {
	Message string `json:"message"`
	Kind    string `json:"kind"`
}

func NoErrOK(id int, data any) *ServerMessage {
	return &ServerMessage{
		BaseMessage: BaseMessage{
			Id:        id,
			Timestamp: Now(),
		},
		Response: &Response{
			ResponseCode: http.StatusOK,
			Data:         data,
		},
	}
}

func NoErrAccepted(id int) *ServerMessage {
	return &ServerMessage{
		BaseMessage: BaseMessage{
			Id:        id,
			Timestamp: Now(),
		},
		Response: &Response{
			ResponseCode: http.StatusAccepted,
		},
	}
}

func errEvent(id int, kind, message string) *ServerMessage {
	msg := &ServerMessage{
		BaseMessage: BaseMessage{
			Timestamp: Now(),
		},
		Error: &ErrorEvent{
			Message: message,
			Kind:    kind,
		},
	}

	if id > 0 {
		msg.Id = id
	}
	return msg
}

func ErrAuthorization(id int, message string) *ServerMessage {
	return errEvent(id, KindAuthorization, message)
}

func ErrValidation(id int, message string) *ServerMessage {
	return errEvent(id, KindValidation, message)
}

func ErrPersistence(id int, message string) *ServerMessage {
	return errEvent(id, KindPersistence, message)
}

func ErrRoomNotFound(id int) *ServerMessage {
	return errEvent(id, KindNotFound, "room not found")
}

func ErrInvalidMessage(id int) *ServerMessage {
	return errEvent(id, KindValidation, "invalid message format")
}

func Now() time.Time {
	return time.Now().UTC().Round(time.Millisecond)
}
