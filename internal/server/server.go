package server

import (
	"context"
	"database/sql"
	"errors"
	"log"
	"sync"

	"github.com/tripware/tripchat/internal/database"
	"github.com/tripware/tripchat/internal/stats"
)

const (
	numConnectionsMetric   = "NumConnections"
	numActiveRoomsMetric   = "NumActiveRooms"
	numMessagesMetric      = "NumMessages"
	numNotificationsMetric = "NumNotifications"
)

type unloadRoomRequest struct {
	roomId string
}

type stopRequest struct {
	done chan struct{}
}

// ChatServer owns the room table and the user connection registry. All
// room lifecycle changes flow through its run loop; each loaded room runs
// its own goroutine so unrelated rooms never contend.
type ChatServer struct {
	log            *log.Logger
	db             database.TripChatRepository
	stats          stats.StatsProvider
	rooms          map[string]*Room
	clients        map[*Client]struct{}
	clientsLock    sync.Mutex
	userMap        map[int]map[*Client]struct{}
	userMapLock    sync.RWMutex
	joinChan       chan *ClientMessage
	registerChan   chan *Client
	deregisterChan chan *Client
	unloadRoomChan chan unloadRoomRequest
	stop           chan stopRequest
	done           chan struct{}
}

func NewChatServer(logger *log.Logger, db database.TripChatRepository, su stats.StatsProvider) (*ChatServer, error) {
	cs := &ChatServer{
		log:            logger,
		db:             db,
		stats:          su,
		rooms:          make(map[string]*Room),
		clients:        make(map[*Client]struct{}),
		userMap:        make(map[int]map[*Client]struct{}),
		joinChan:       make(chan *ClientMessage, 256),
		registerChan:   make(chan *Client),
		deregisterChan: make(chan *Client),
		unloadRoomChan: make(chan unloadRoomRequest, 256),
		stop:           make(chan stopRequest),
		done:           make(chan struct{}),
	}

	for _, name := range []string{
		numConnectionsMetric,
		numActiveRoomsMetric,
		numMessagesMetric,
		numNotificationsMetric,
	} {
		su.RegisterMetric(name)
	}

	return cs, nil
}

func (cs *ChatServer) Run() {
	for {
		select {
		case joinMsg := <-cs.joinChan:
			cs.handleJoinRequest(joinMsg)
		case client := <-cs.registerChan:
			cs.addClient(client)
		case client := <-cs.deregisterChan:
			cs.removeClient(client)
		case req := <-cs.unloadRoomChan:
			cs.handleUnloadRoom(req)
		case req := <-cs.stop:
			cs.log.Println("shutting down rooms")
			for _, r := range cs.rooms {
				exit := exitReq{done: make(chan string)}
				r.exit <- exit
				<-exit.done
			}
			cs.rooms = make(map[string]*Room)

			close(cs.done)
			close(req.done)
			return
		}
	}
}

// handleJoinRequest routes a join to the room's goroutine, loading the
// room from the store on first use.
func (cs *ChatServer) handleJoinRequest(joinMsg *ClientMessage) {
	if room, ok := cs.rooms[joinMsg.Join.ChatRoomId]; ok {
		select {
		case room.joinChan <- joinMsg:
		default:
			cs.log.Printf("join channel full on room %q", room.externalId)
			joinMsg.client.queueMessage(ErrPersistence(joinMsg.Id, "service unavailable"))
		}
		return
	}

	dbRoom, err := cs.db.GetChatRoomByExternalId(joinMsg.Join.ChatRoomId)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			joinMsg.client.queueMessage(ErrRoomNotFound(joinMsg.Id))
		} else {
			cs.log.Println("GetChatRoomByExternalId:", err)
			joinMsg.client.queueMessage(ErrPersistence(joinMsg.Id, "internal server error"))
		}
		return
	}

	room := newRoom(cs, dbRoom)
	cs.rooms[room.externalId] = room
	cs.stats.Incr(numActiveRoomsMetric)
	room.joinChan <- joinMsg

	go room.start()
}

func (cs *ChatServer) handleUnloadRoom(req unloadRoomRequest) {
	r, ok := cs.rooms[req.roomId]
	if !ok {
		return
	}

	// a client may have rejoined between the idle timeout firing and this
	// request being processed
	if r.clientCount() > 0 {
		return
	}

	delete(cs.rooms, req.roomId)
	cs.stats.Decr(numActiveRoomsMetric)

	exit := exitReq{done: make(chan string)}
	r.exit <- exit
	<-exit.done
}

// RegisterClient admits an authenticated connection into the registries.
func (cs *ChatServer) RegisterClient(c *Client) {
	select {
	case cs.registerChan <- c:
	case <-cs.done:
	}
}

// DeregisterClient removes a connection from the registries. Safe to call
// more than once for the same connection, and after shutdown: a read pump
// tearing down behind a stopped run loop must not block.
func (cs *ChatServer) DeregisterClient(c *Client) {
	select {
	case cs.deregisterChan <- c:
	case <-cs.done:
	}
}

func (cs *ChatServer) addClient(c *Client) {
	cs.log.Printf("adding connection %q for user %d", c.sessionId, c.user.Id)

	cs.clientsLock.Lock()
	cs.clients[c] = struct{}{}
	cs.clientsLock.Unlock()

	cs.userMapLock.Lock()
	if cs.userMap[c.user.Id] == nil {
		cs.userMap[c.user.Id] = make(map[*Client]struct{})
	}
	cs.userMap[c.user.Id][c] = struct{}{}
	cs.userMapLock.Unlock()

	cs.stats.Incr(numConnectionsMetric)
}

func (cs *ChatServer) removeClient(c *Client) {
	cs.clientsLock.Lock()
	_, ok := cs.clients[c]
	delete(cs.clients, c)
	cs.clientsLock.Unlock()

	if !ok {
		// duplicate disconnect signal
		return
	}

	cs.log.Printf("removing connection %q for user %d", c.sessionId, c.user.Id)

	cs.userMapLock.Lock()
	if userClients, ok := cs.userMap[c.user.Id]; ok {
		delete(userClients, c)
		if len(userClients) == 0 {
			delete(cs.userMap, c.user.Id)
		}
	}
	cs.userMapLock.Unlock()

	cs.stats.Decr(numConnectionsMetric)
}

// PushToUser delivers a message to every live connection of a user.
// Distinct users only share a read lock, so their pushes do not serialize
// behind one another. Zero live connections is not an error.
func (cs *ChatServer) PushToUser(userId int, msg *ServerMessage) {
	msg.UserId = userId

	cs.userMapLock.RLock()
	defer cs.userMapLock.RUnlock()

	for client := range cs.userMap[userId] {
		client.queueMessage(msg)
	}
}

func (cs *ChatServer) Shutdown(ctx context.Context) error {
	cs.clientsLock.Lock()
	for c := range cs.clients {
		c.stopClient()
	}
	cs.clientsLock.Unlock()

	req := stopRequest{done: make(chan struct{})}

	select {
	case cs.stop <- req:
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case <-req.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
