package server

import (
	"database/sql"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/tripware/tripchat/internal/database"
	"github.com/tripware/tripchat/internal/types"
)

const idleRoomTimeout = time.Second * 5

type exitReq struct {
	done chan string
}

// Room serializes every join, leave and persist+broadcast for a single
// chat room on one goroutine, so message visibility order always equals
// persistence order and subscriber-set reads are never partial. Distinct
// rooms run independently.
type Room struct {
	id          int
	externalId  string
	name        string
	description string
	seqId       int
	cs          *ChatServer
	db          database.TripChatRepository
	log         *log.Logger
	clients     map[*Client]struct{}
	clientLock  sync.RWMutex
	joinChan    chan *ClientMessage
	leaveChan   chan *ClientMessage
	publishChan chan *ClientMessage
	// killTimer unloads the room once the last subscriber is gone
	killTimer *time.Timer
	exit      chan exitReq
}

func newRoom(cs *ChatServer, dbRoom database.ChatRoom) *Room {
	return &Room{
		id:          dbRoom.Id,
		externalId:  dbRoom.ExternalId,
		name:        dbRoom.Name,
		description: dbRoom.Description,
		seqId:       dbRoom.SeqId,
		cs:          cs,
		db:          cs.db,
		log:         cs.log,
		clients:     make(map[*Client]struct{}),
		joinChan:    make(chan *ClientMessage, 256),
		leaveChan:   make(chan *ClientMessage, 256),
		publishChan: make(chan *ClientMessage, 256),
		exit:        make(chan exitReq),
	}
}

func (r *Room) start() {
	r.log.Printf("starting room %q", r.externalId)
	r.killTimer = time.NewTimer(idleRoomTimeout)
	r.killTimer.Stop()

	for {
		select {
		case join := <-r.joinChan:
			r.handleJoin(join)
		case leaveMsg := <-r.leaveChan:
			r.handleLeave(leaveMsg)
		case msg := <-r.publishChan:
			r.saveAndBroadcast(msg)
		case <-r.killTimer.C:
			r.handleRoomTimeout()
		case e := <-r.exit:
			r.handleRoomExit(e)
			return
		}
	}
}

// handleJoin admits a connection into the subscriber set only if a
// persisted participant record exists for its user. Rejoining an
// already-joined room is a no-op success.
func (r *Room) handleJoin(join *ClientMessage) {
	r.killTimer.Stop()

	c := join.client
	if r.hasClient(c) {
		c.queueMessage(NoErrOK(join.Id, r.info()))
		return
	}

	if _, err := r.db.GetParticipant(r.id, join.UserId); err != nil {
		if len(r.clients) == 0 {
			r.killTimer.Reset(idleRoomTimeout)
		}

		if errors.Is(err, sql.ErrNoRows) {
			c.queueMessage(ErrAuthorization(join.Id, "not a participant of this room"))
		} else {
			r.log.Println("GetParticipant:", err)
			c.queueMessage(ErrPersistence(join.Id, "internal server error"))
		}
		return
	}

	r.addClient(c)
	c.queueMessage(NoErrOK(join.Id, r.info()))
}

// handleLeave removes the connection from the subscriber set. Leaving a
// room the connection never joined is a no-op, not an error.
func (r *Room) handleLeave(leaveMsg *ClientMessage) {
	r.removeClient(leaveMsg.client)

	if leaveMsg.Id > 0 {
		leaveMsg.client.queueMessage(NoErrOK(leaveMsg.Id, nil))
	}
}

func (r *Room) handleRoomTimeout() {
	r.log.Printf("room %q timed out", r.externalId)
	select {
	case r.cs.unloadRoomChan <- unloadRoomRequest{roomId: r.externalId}:
	default:
		// retry on the next tick rather than block the room
		r.killTimer.Reset(idleRoomTimeout)
	}
}

func (r *Room) handleRoomExit(e exitReq) {
	r.log.Printf("room %q is exiting", r.externalId)

	r.clientLock.Lock()
	for c := range r.clients {
		delete(r.clients, c)
		c.delRoom(r.externalId)
	}
	r.clientLock.Unlock()

	if e.done != nil {
		e.done <- r.externalId
	}
}

// saveAndBroadcast persists the message and, only once the write has
// committed, fans it out to every current subscriber including the
// sender. A persistence failure is reported to the sender alone and
// nothing becomes visible.
func (r *Room) saveAndBroadcast(msg *ClientMessage) {
	if !r.hasClient(msg.client) {
		msg.client.queueMessage(ErrAuthorization(msg.Id, "join the room before sending"))
		return
	}

	dbMsg, err := r.db.CreateMessage(database.CreateMessageParams{
		SeqId:      r.seqId + 1,
		ChatRoomId: r.id,
		SenderId:   msg.UserId,
		Content:    msg.Publish.Content,
		CreatedAt:  Now(),
	})
	if err != nil {
		r.log.Println("CreateMessage:", err)
		msg.client.queueMessage(ErrPersistence(msg.Id, "failed to save message"))
		return
	}

	r.seqId = dbMsg.SeqId
	r.cs.stats.Incr(numMessagesMetric)
	msg.client.queueMessage(NoErrAccepted(msg.Id))

	r.broadcast(&ServerMessage{
		BaseMessage: BaseMessage{
			Id:        msg.Id,
			Timestamp: dbMsg.CreatedAt,
		},
		Message: &types.Message{
			Id:         dbMsg.Id,
			SeqId:      dbMsg.SeqId,
			ChatRoomId: r.externalId,
			SenderId:   dbMsg.SenderId,
			Content:    dbMsg.Content,
			CreatedAt:  dbMsg.CreatedAt,
		},
	})
}

func (r *Room) broadcast(msg *ServerMessage) {
	r.clientLock.RLock()
	defer r.clientLock.RUnlock()

	for client := range r.clients {
		client.queueMessage(msg)
	}
}

func (r *Room) info() types.ChatRoom {
	return types.ChatRoom{
		Id:          r.id,
		ExternalId:  r.externalId,
		Name:        r.name,
		Description: r.description,
	}
}

func (r *Room) addClient(c *Client) {
	r.clientLock.Lock()
	defer r.clientLock.Unlock()

	r.clients[c] = struct{}{}
	c.addRoom(r)
}

func (r *Room) removeClient(c *Client) {
	r.clientLock.Lock()
	defer r.clientLock.Unlock()

	if _, ok := r.clients[c]; !ok {
		return
	}

	r.log.Printf("removing connection %q from room %q", c.sessionId, r.externalId)
	delete(r.clients, c)
	c.delRoom(r.externalId)

	if len(r.clients) == 0 {
		r.log.Printf("no connections in %q, starting kill timer", r.externalId)
		r.killTimer.Reset(idleRoomTimeout)
	}
}

func (r *Room) hasClient(c *Client) bool {
	r.clientLock.RLock()
	defer r.clientLock.RUnlock()

	_, ok := r.clients[c]
	return ok
}

func (r *Room) clientCount() int {
	r.clientLock.RLock()
	defer r.clientLock.RUnlock()

	return len(r.clients)
}
