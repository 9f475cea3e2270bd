package server

import (
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/teris-io/shortid"
	"github.com/tripware/tripchat/internal/stats"
	"github.com/tripware/tripchat/internal/types"
)

const (
	writeWait    = 10 * time.Second
	pongWait     = 60 * time.Second
	pingInterval = (pongWait * 9) / 10

	// enough for a max-length message of 4-byte runes plus the frame
	// envelope
	maxMessageSize = 24576
)

// Client is one live authenticated connection. The identity is fixed at
// handshake and never re-derived from inbound frames.
type Client struct {
	sessionId  string
	conn       *websocket.Conn
	chatServer *ChatServer
	log        *log.Logger
	stats      stats.StatsProvider
	user       types.Identity
	send       chan *ServerMessage
	rooms      map[string]*Room
	roomsLock  sync.RWMutex
	stop       chan struct{}
	stopOnce   sync.Once
	cleanupOne sync.Once
}

func NewClient(user types.Identity, conn *websocket.Conn, cs *ChatServer, l *log.Logger, su stats.StatsProvider) *Client {
	return &Client{
		sessionId:  shortid.MustGenerate(),
		conn:       conn,
		chatServer: cs,
		log:        l,
		stats:      su,
		user:       user,
		send:       make(chan *ServerMessage, 256),
		rooms:      make(map[string]*Room),
		stop:       make(chan struct{}),
	}
}

func (c *Client) Write() {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			if !ok {
				return
			}

			bytes, err := json.Marshal(msg)
			if err != nil {
				c.log.Println("failed to serialize message:", err)
				continue
			}

			if !c.sendMessage(websocket.TextMessage, bytes) {
				return
			}
		case <-c.stop:
			return
		case <-ticker.C:
			if !c.sendMessage(websocket.PingMessage, nil) {
				return
			}
		}
	}
}

func (c *Client) Read() {
	defer func() {
		c.conn.Close()
		c.cleanup()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(appData string) error { c.conn.SetReadDeadline(time.Now().Add(pongWait)); return nil })
	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure,
				websocket.CloseNormalClosure) {
				c.log.Printf("ws: read: %v", err)
			}
			break
		}

		var msg ClientMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			c.log.Println("error parsing message:", err)
			c.queueMessage(ErrInvalidMessage(-1))
			continue
		}

		msg.client = c
		msg.UserId = c.user.Id
		msg.Timestamp = Now()

		c.dispatch(&msg)
	}
}

// dispatch validates the event payload at the boundary and routes it to
// the owning processing unit.
func (c *Client) dispatch(msg *ClientMessage) {
	switch {
	case msg.Join != nil:
		if err := validate.Struct(msg.Join); err != nil {
			c.queueMessage(ErrValidation(msg.Id, "invalid join payload"))
			return
		}
		c.joinRoom(msg)
	case msg.Leave != nil:
		if err := validate.Struct(msg.Leave); err != nil {
			c.queueMessage(ErrValidation(msg.Id, "invalid leave payload"))
			return
		}
		c.leaveRoom(msg)
	case msg.Publish != nil:
		if err := validate.Struct(msg.Publish); err != nil {
			c.queueMessage(ErrValidation(msg.Id, "content must be between 1 and 5000 characters"))
			return
		}
		c.publish(msg)
	default:
		c.queueMessage(ErrInvalidMessage(msg.Id))
	}
}

func (c *Client) joinRoom(msg *ClientMessage) {
	select {
	case c.chatServer.joinChan <- msg:
	default:
		c.log.Printf("joinChan full")
		c.queueMessage(ErrPersistence(msg.Id, "service unavailable"))
	}
}

// leaveRoom is a no-op success when the room was never joined.
func (c *Client) leaveRoom(msg *ClientMessage) {
	r := c.getRoom(msg.Leave.ChatRoomId)
	if r == nil {
		c.queueMessage(NoErrOK(msg.Id, nil))
		return
	}

	select {
	case r.leaveChan <- msg:
	default:
		c.log.Printf("leaveChan full for room %q", r.externalId)
		c.queueMessage(ErrPersistence(msg.Id, "service unavailable"))
	}
}

// publish requires a prior join; sending to a room outside the joined set
// is an authorization failure, persisted nowhere and broadcast to no one.
func (c *Client) publish(msg *ClientMessage) {
	r := c.getRoom(msg.Publish.ChatRoomId)
	if r == nil {
		c.queueMessage(ErrAuthorization(msg.Id, "join the room before sending"))
		return
	}

	select {
	case r.publishChan <- msg:
	default:
		c.log.Printf("publishChan full for room %q", r.externalId)
		c.queueMessage(ErrPersistence(msg.Id, "service unavailable"))
	}
}

// queueMessage enqueues a frame for the write pump, dropping it for this
// client only when the buffer is full.
func (c *Client) queueMessage(msg *ServerMessage) bool {
	select {
	case c.send <- msg:
	default:
		c.log.Printf("send buffer full for connection %q, dropping message", c.sessionId)
		return false
	}

	return true
}

func (c *Client) sendMessage(msgType int, msg []byte) bool {
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))

	if err := c.conn.WriteMessage(msgType, msg); err != nil {
		if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure,
			websocket.CloseNormalClosure) {
			c.log.Printf("write message: %s", err)
		}
		return false
	}

	return true
}

func (c *Client) stopClient() {
	c.stopOnce.Do(func() {
		close(c.stop)
	})
}

// cleanup tears down all registry state for the connection. Idempotent: a
// duplicate disconnect signal is a no-op.
func (c *Client) cleanup() {
	c.cleanupOne.Do(func() {
		c.leaveAllRooms()
		c.chatServer.DeregisterClient(c)
		c.stopClient()
	})
}

func (c *Client) leaveAllRooms() {
	c.roomsLock.RLock()
	rooms := make([]*Room, 0, len(c.rooms))
	for _, room := range c.rooms {
		rooms = append(rooms, room)
	}
	c.roomsLock.RUnlock()

	for _, room := range rooms {
		room.leaveChan <- &ClientMessage{
			Leave:  &Leave{ChatRoomId: room.externalId},
			UserId: c.user.Id,
			client: c,
		}
	}
}

func (c *Client) delRoom(id string) {
	c.roomsLock.Lock()
	defer c.roomsLock.Unlock()

	delete(c.rooms, id)
}

func (c *Client) addRoom(r *Room) {
	c.roomsLock.Lock()
	defer c.roomsLock.Unlock()

	c.rooms[r.externalId] = r
}

func (c *Client) getRoom(id string) *Room {
	c.roomsLock.RLock()
	defer c.roomsLock.RUnlock()

	if room, ok := c.rooms[id]; ok {
		return room
	}

	return nil
}
