package app

import (
	"errors"
	"sync"

	"course_messaging_service/internal/chat/domain"
)

// ErrUnknownConnection join before register, or after unregister
var ErrUnknownConnection = errors.New("connection is not registered")

// Client one live connection as seen by the router
type Client struct {
	ConnID        string
	ParticipantID string

	mu     sync.RWMutex
	send   chan []byte
	closed bool
}

// NewClient buffer is the outbound queue size
func NewClient(connID, participantID string, buffer int) *Client {
	if buffer <= 0 {
		buffer = 64
	}
	return &Client{
		ConnID:        connID,
		ParticipantID: participantID,
		send:          make(chan []byte, buffer),
	}
}

// Outbound closed after Close, the writer drains it until then
func (c *Client) Outbound() <-chan []byte {
	return c.send
}

// Enqueue never blocks; false when the client is closed or its queue is full
func (c *Client) Enqueue(frame []byte) (ok bool, full bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return false, false
	}
	select {
	case c.send <- frame:
		return true, false
	default:
		return false, true
	}
}

// Close idempotent
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
}

// Closed reports whether Close was called
func (c *Client) Closed() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.closed
}

// Receipt result of one broadcast
type Receipt struct {
	// Reached participant id -> connections the frame was enqueued on
	Reached map[string]int
	Dropped int
}

// ReachedParticipant at least one connection of participantID got the frame
func (r Receipt) ReachedParticipant(participantID string) bool {
	return r.Reached[participantID] > 0
}

// RoomKeyFor room of a 1:1 conversation, same value as the conversation id
func RoomKeyFor(a, b string) string {
	return domain.ConversationIDFor(a, b)
}

// ConversationRouter room membership of live connections on this instance
type ConversationRouter struct {
	mu        sync.RWMutex
	clients   map[string]*Client
	rooms     map[string]map[string]*Client   // room key -> connection id -> client
	connRooms map[string]map[string]struct{} // connection id -> room keys

	metrics *Metrics
}

// NewConversationRouter nil metrics are dropped
func NewConversationRouter(metrics *Metrics) *ConversationRouter {
	return &ConversationRouter{
		clients:   make(map[string]*Client),
		rooms:     make(map[string]map[string]*Client),
		connRooms: make(map[string]map[string]struct{}),
		metrics:   metricsOrDiscard(metrics),
	}
}

// Register track a live connection
func (r *ConversationRouter) Register(c *Client) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.clients[c.ConnID] = c
}

// Unregister leave every room of the connection and forget it, returns the rooms left
func (r *ConversationRouter) Unregister(connID string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	var left []string
	for key := range r.connRooms[connID] {
		r.leaveLocked(key, connID)
		left = append(left, key)
	}
	delete(r.connRooms, connID)
	delete(r.clients, connID)
	return left
}

// Join idempotent; the connection must be registered
func (r *ConversationRouter) Join(roomKey, connID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.clients[connID]
	if !ok || c.Closed() {
		return ErrUnknownConnection
	}

	members, ok := r.rooms[roomKey]
	if !ok {
		members = make(map[string]*Client)
		r.rooms[roomKey] = members
	}
	if _, already := members[connID]; already {
		return nil
	}
	members[connID] = c

	keys, ok := r.connRooms[connID]
	if !ok {
		keys = make(map[string]struct{})
		r.connRooms[connID] = keys
	}
	keys[roomKey] = struct{}{}
	r.metrics.JoinedRooms.Inc()
	return nil
}

// Leave no-op when the connection is not in the room
func (r *ConversationRouter) Leave(roomKey, connID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.leaveLocked(roomKey, connID)
	if keys, ok := r.connRooms[connID]; ok {
		delete(keys, roomKey)
		if len(keys) == 0 {
			delete(r.connRooms, connID)
		}
	}
}

func (r *ConversationRouter) leaveLocked(roomKey, connID string) {
	members, ok := r.rooms[roomKey]
	if !ok {
		return
	}
	if _, in := members[connID]; !in {
		return
	}
	delete(members, connID)
	r.metrics.JoinedRooms.Dec()
	// 空房間直接移除
	if len(members) == 0 {
		delete(r.rooms, roomKey)
	}
}

// Broadcast enqueue frame on every member except exceptConnID, never blocks
func (r *ConversationRouter) Broadcast(roomKey string, frame []byte, exceptConnID string) Receipt {
	r.mu.RLock()
	targets := make([]*Client, 0, len(r.rooms[roomKey]))
	for id, c := range r.rooms[roomKey] {
		if id == exceptConnID {
			continue
		}
		targets = append(targets, c)
	}
	r.mu.RUnlock()

	receipt := Receipt{Reached: make(map[string]int)}
	for _, c := range targets {
		ok, full := c.Enqueue(frame)
		switch {
		case ok:
			receipt.Reached[c.ParticipantID]++
			r.metrics.Deliveries.Inc()
		case full:
			receipt.Dropped++
			r.metrics.Drops.Inc()
		}
	}
	return receipt
}

// Members connection ids currently in the room
func (r *ConversationRouter) Members(roomKey string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.rooms[roomKey]))
	for id := range r.rooms[roomKey] {
		out = append(out, id)
	}
	return out
}

// RoomsOf room keys the connection belongs to
func (r *ConversationRouter) RoomsOf(connID string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.connRooms[connID]))
	for key := range r.connRooms[connID] {
		out = append(out, key)
	}
	return out
}

// HasParticipant room holds a live connection of participantID
func (r *ConversationRouter) HasParticipant(roomKey, participantID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, c := range r.rooms[roomKey] {
		if c.ParticipantID == participantID && !c.Closed() {
			return true
		}
	}
	return false
}
