package relay

import (
	"context"
	"errors"
	"log/slog"
	"sort"
)

// DefaultMaxMembers bounds the size of a room.
const DefaultMaxMembers = 16

// ErrHubStopped is returned by queries made after the hub stopped.
var ErrHubStopped = errors.New("relay hub stopped")

// Hub is the central brain of the relay server.
// It manages all active rooms and clients.
type Hub struct {
	// rooms maps room IDs to Room instances.
	rooms map[string]*Room

	// clients holds every registered connection.
	clients map[*Client]bool

	// register is a channel for registering new clients.
	register chan *Client

	// unregister is a channel for unregistering clients.
	unregister chan *Client

	// broadcast carries inbound frames from clients to the hub.
	broadcast chan *Message

	// queries carries snapshot requests from HTTP handlers.
	queries chan func()

	maxMembers int
	log        *slog.Logger
	done       chan struct{}
}

// NewHub creates a new Hub instance. maxMembers <= 0 means DefaultMaxMembers.
func NewHub(maxMembers int, log *slog.Logger) *Hub {
	if maxMembers <= 0 {
		maxMembers = DefaultMaxMembers
	}
	if log == nil {
		log = slog.Default()
	}
	return &Hub{
		rooms:      make(map[string]*Room),
		clients:    make(map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan *Message),
		queries:    make(chan func()),
		maxMembers: maxMembers,
		log:        log,
		done:       make(chan struct{}),
	}
}

// Register hands a new connection to the hub. It reports false once the
// hub has stopped.
func (h *Hub) Register(c *Client) bool {
	select {
	case h.register <- c:
		return true
	case <-h.done:
		return false
	}
}

func (h *Hub) unregisterClient(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.done:
	}
}

func (h *Hub) dispatch(m *Message) bool {
	select {
	case h.broadcast <- m:
		return true
	case <-h.done:
		return false
	}
}

// query runs fn on the hub goroutine.
func (h *Hub) query(ctx context.Context, fn func()) error {
	ran := make(chan struct{})
	select {
	case h.queries <- func() { fn(); close(ran) }:
	case <-h.done:
		return ErrHubStopped
	case <-ctx.Done():
		return ctx.Err()
	}
	<-ran
	return nil
}

// Rooms returns a snapshot of all live rooms sorted by id.
func (h *Hub) Rooms(ctx context.Context) ([]RoomInfo, error) {
	var infos []RoomInfo
	err := h.query(ctx, func() {
		infos = make([]RoomInfo, 0, len(h.rooms))
		for _, r := range h.rooms {
			infos = append(infos, r.Info())
		}
	})
	sort.Slice(infos, func(i, j int) bool { return infos[i].ID < infos[j].ID })
	return infos, err
}

// Room returns a snapshot of one room.
func (h *Hub) Room(ctx context.Context, id string) (RoomInfo, bool, error) {
	var (
		info RoomInfo
		ok   bool
	)
	err := h.query(ctx, func() {
		var r *Room
		if r, ok = h.rooms[id]; ok {
			info = r.Info()
		}
	})
	return info, ok, err
}

// Run starts the hub's main processing loop.
// This is the single goroutine that safely manages all state (rooms, clients).
func (h *Hub) Run(ctx context.Context) {
	defer func() {
		for c := range h.clients {
			h.closeClient(c)
		}
		close(h.done)
	}()

	for {
		select {
		case <-ctx.Done():
			return

		case client := <-h.register:
			h.clients[client] = true
			h.log.Debug("Client registered", "clients", len(h.clients))

		case client := <-h.unregister:
			h.log.Debug("Client unregistered", "room", client.RoomID, "participant", client.ParticipantID)
			h.leave(client)
			h.closeClient(client)
			delete(h.clients, client)

		case fn := <-h.queries:
			fn()

		case message := <-h.broadcast:
			h.handle(message)
		}
	}
}

func (h *Hub) handle(message *Message) {
	client := message.client

	switch message.Type {

	case TypeJoinRoom:
		h.join(client, message.RoomID, message.ParticipantID)

	case TypeSignal:
		room, ok := h.rooms[client.RoomID]
		if client.RoomID == "" || !ok || room.Members[client.ParticipantID] != client {
			h.send(client, ErrorMessage("You must join a room first"))
			return
		}

		out := &Message{
			Type:    TypeSignal,
			From:    client.ParticipantID,
			To:      message.To,
			Payload: message.Payload,
		}

		if message.To != "" {
			target, ok := room.Members[message.To]
			if !ok {
				h.log.Debug("Signal target not in room", "room", room.ID, "from", client.ParticipantID, "to", message.To)
				return
			}
			h.send(target, out)
			return
		}

		for _, target := range room.others(client.ParticipantID) {
			h.send(target, out)
		}

	default:
		h.log.Debug("Unknown message type", "type", message.Type)
	}
}

func (h *Hub) join(client *Client, roomID, participantID string) {
	switch {
	case roomID == "" || participantID == "":
		h.send(client, ErrorMessage("room_id and participant_id are required"))
		return
	case client.RoomID != "":
		h.send(client, ErrorMessage("Already in a room"))
		return
	}

	room, ok := h.rooms[roomID]
	if !ok {
		room = newRoom(roomID)
		h.rooms[roomID] = room
		h.log.Info("Room created", "room", roomID)
	}

	if old, ok := room.Members[participantID]; ok {
		h.log.Info("Participant rejoined, replacing old connection", "room", roomID, "participant", participantID)
		h.send(old, ErrorMessage("Replaced by a newer connection"))
		h.leave(old)
		h.closeClient(old)
		if _, ok := h.rooms[roomID]; !ok {
			h.rooms[roomID] = room
		}
	}

	if len(room.Members) >= h.maxMembers {
		h.log.Info("Room join failed: room is full", "room", roomID, "participant", participantID)
		h.send(client, ErrorMessage("Room is full"))
		return
	}

	members := room.memberIDs("")
	room.Members[participantID] = client
	client.RoomID = roomID
	client.ParticipantID = participantID

	h.log.Info("Participant joined", "room", roomID, "participant", participantID, "members", len(room.Members))

	// Confirm to the joiner before anyone can address it.
	h.send(client, &Message{
		Type:    TypeJoinSuccess,
		RoomID:  roomID,
		Members: members,
	})

	for _, other := range room.others(participantID) {
		h.send(other, &Message{Type: TypePeerJoined, RoomID: roomID, ParticipantID: participantID})
	}
}

// leave removes client from its room, announcing the departure.
func (h *Hub) leave(client *Client) {
	if client.RoomID == "" {
		return
	}
	room, ok := h.rooms[client.RoomID]
	roomID, participantID := client.RoomID, client.ParticipantID
	client.RoomID = ""

	if !ok || room.Members[participantID] != client {
		return
	}
	delete(room.Members, participantID)

	if len(room.Members) == 0 {
		delete(h.rooms, roomID)
		h.log.Info("Room deleted", "room", roomID)
		return
	}

	h.log.Info("Participant left", "room", roomID, "participant", participantID)
	for _, other := range room.others("") {
		h.send(other, &Message{Type: TypePeerLeft, RoomID: roomID, ParticipantID: participantID})
	}
}

// send delivers m without blocking the hub. A client whose buffer is full is
// dropped.
func (h *Hub) send(c *Client, m *Message) {
	if c.closed {
		return
	}
	select {
	case c.Send <- m:
	default:
		h.log.Warn("Dropping slow client", "room", c.RoomID, "participant", c.ParticipantID)
		h.closeClient(c)
		h.leave(c)
	}
}

// closeClient closes the send channel once, which stops the write pump.
func (h *Hub) closeClient(c *Client) {
	if c.closed {
		return
	}
	c.closed = true
	close(c.Send)
}
