/*
Package chat contains the core logic for the single shared chat room: sessions,
presence and message fan-out.

This file defines the Hub, the one event loop that owns the set of connected
sessions. Every write to a session's send buffer happens inside that loop, so
frames reach each client in the order they were submitted.
*/
package chat

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"hichat/internal/app/store"
	"hichat/internal/pkg/logx"
)

const (
	inboxBuffer = 1024

	// sendBuffer is the per-session outbound queue length.
	sendBuffer = 256
)

// Delivery selects what happens when a session's send buffer is full.
type Delivery int

const (
	// Reliable frames (chat, delete, history) disconnect a session that cannot keep up.
	Reliable Delivery = iota

	// BestEffort frames (typing, presence, leave/rename notices) are dropped for that session.
	BestEffort
)

type commandKind int

const (
	cmdRegister commandKind = iota
	cmdUnregister
	cmdDeliver
	cmdPresence
)

type audience int

const (
	audienceAll audience = iota
	audienceAllExcept
	audienceOne
)

type command struct {
	kind     commandKind
	session  *Session
	audience audience
	data     []byte
	delivery Delivery
}

// Hub fans frames out to connected sessions.
type Hub struct {
	presence *Registry

	inbox    chan command
	sessions map[*Session]struct{} // owned by Run
	online   atomic.Int64

	// orderMu makes "persist then enqueue" atomic for chat messages.
	orderMu sync.Mutex
	lastTS  int64
	now     func() time.Time

	stop     chan struct{}
	done     chan struct{}
	stopOnce sync.Once

	logger zerolog.Logger
}

// NewHub creates a Hub whose presence announcements read from presence.
// Call Run to start it.
func NewHub(presence *Registry) *Hub {
	return &Hub{
		presence: presence,
		inbox:    make(chan command, inboxBuffer),
		sessions: make(map[*Session]struct{}),
		now:      time.Now,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
		logger:   logx.Component("hub"),
	}
}

// Run processes commands until Stop is called.
func (h *Hub) Run() {
	h.logger.Info().Msg("Hub event loop started.")
	defer h.shutdown()

	for {
		select {
		case cmd := <-h.inbox:
			h.handle(cmd)

		case <-h.stop:
			h.logger.Info().Msg("Hub forced stop initiated.")
			return
		}
	}
}

// Stop terminates Run, closes every session's send buffer and waits for the loop to exit.
func (h *Hub) Stop() {
	h.stopOnce.Do(func() { close(h.stop) })
	<-h.done
}

// Done is closed once the hub has stopped.
func (h *Hub) Done() <-chan struct{} {
	return h.done
}

// Online returns the number of registered sessions, authenticated or not.
func (h *Hub) Online() int {
	return int(h.online.Load())
}

// Register adds s to the fan-out set. It returns false if the hub has stopped.
func (h *Hub) Register(s *Session) bool {
	return h.submit(command{kind: cmdRegister, session: s})
}

// Unregister removes s and closes its send buffer. Unknown sessions are ignored.
func (h *Hub) Unregister(s *Session) {
	h.submit(command{kind: cmdUnregister, session: s})
}

// Broadcast delivers an event to every connected session.
func (h *Hub) Broadcast(event EventType, payload any, d Delivery) {
	h.enqueue(command{kind: cmdDeliver, audience: audienceAll, delivery: d}, event, payload)
}

// BroadcastExcept delivers an event to every connected session except sender.
func (h *Hub) BroadcastExcept(sender *Session, event EventType, payload any, d Delivery) {
	h.enqueue(command{kind: cmdDeliver, audience: audienceAllExcept, session: sender, delivery: d}, event, payload)
}

// Send delivers an event to s alone.
func (h *Hub) Send(s *Session, event EventType, payload any, d Delivery) {
	h.enqueue(command{kind: cmdDeliver, audience: audienceOne, session: s, delivery: d}, event, payload)
}

// AnnouncePresence broadcasts the registry snapshot as it stands when the loop reaches it.
func (h *Hub) AnnouncePresence() {
	h.submit(command{kind: cmdPresence})
}

// PublishChat assigns the next timestamp, runs persist and, only if it succeeds,
// broadcasts the stored message to everyone. Broadcast order equals persist order.
func (h *Hub) PublishChat(persist func(ts int64) (store.Message, error)) (store.Message, error) {
	h.orderMu.Lock()
	defer h.orderMu.Unlock()

	msg, err := persist(h.nextTimestamp())
	if err != nil {
		return store.Message{}, err
	}

	h.enqueue(command{kind: cmdDeliver, audience: audienceAll, delivery: Reliable}, EventChatMessage, msg)
	return msg, nil
}

// Replay runs fetch and queues its result for s as recentMessages while no chat
// message can be published. Every later chatMessage reaches s after the replay,
// and none of them is also in it.
func (h *Hub) Replay(s *Session, fetch func() ([]store.Message, error)) error {
	h.orderMu.Lock()
	defer h.orderMu.Unlock()

	msgs, err := fetch()
	if err != nil {
		return err
	}
	if msgs == nil {
		msgs = []store.Message{}
	}

	h.enqueue(command{kind: cmdDeliver, audience: audienceOne, session: s, delivery: Reliable}, EventRecentMessages, msgs)
	return nil
}

// SeedClock makes later timestamps strictly greater than ts.
func (h *Hub) SeedClock(ts int64) {
	h.orderMu.Lock()
	if ts > h.lastTS {
		h.lastTS = ts
	}
	h.orderMu.Unlock()
}

// nextTimestamp returns wall-clock milliseconds, bumped to stay strictly ascending.
// Callers hold orderMu.
func (h *Hub) nextTimestamp() int64 {
	ts := h.now().UnixMilli()
	if ts <= h.lastTS {
		ts = h.lastTS + 1
	}
	h.lastTS = ts
	return ts
}

func (h *Hub) enqueue(cmd command, event EventType, payload any) {
	data, err := encodeFrame(event, payload)
	if err != nil {
		h.logger.Error().Err(err).Str("event", string(event)).Msg("Dropping frame that failed to encode.")
		return
	}
	cmd.data = data
	h.submit(cmd)
}

func (h *Hub) submit(cmd command) bool {
	select {
	case <-h.done:
		return false
	default:
	}

	select {
	case h.inbox <- cmd:
		return true
	case <-h.done:
		return false
	}
}

func (h *Hub) handle(cmd command) {
	switch cmd.kind {
	case cmdRegister:
		h.sessions[cmd.session] = struct{}{}
		h.online.Add(1)
		h.logger.Debug().Str("conn_id", cmd.session.id).Int("online", len(h.sessions)).Msg("Session registered.")

	case cmdUnregister:
		if _, ok := h.sessions[cmd.session]; ok {
			h.drop(cmd.session)
			h.logger.Debug().Str("conn_id", cmd.session.id).Int("online", len(h.sessions)).Msg("Session unregistered.")
		}

	case cmdPresence:
		data, err := encodeFrame(EventUsersOnline, presencePayload(h.presence.Snapshot()))
		if err != nil {
			h.logger.Error().Err(err).Msg("Failed to encode presence snapshot.")
			return
		}
		for s := range h.sessions {
			h.deliver(s, data, BestEffort)
		}

	case cmdDeliver:
		switch cmd.audience {
		case audienceOne:
			if _, ok := h.sessions[cmd.session]; ok {
				h.deliver(cmd.session, cmd.data, cmd.delivery)
			}
		case audienceAllExcept:
			for s := range h.sessions {
				if s != cmd.session {
					h.deliver(s, cmd.data, cmd.delivery)
				}
			}
		default:
			for s := range h.sessions {
				h.deliver(s, cmd.data, cmd.delivery)
			}
		}
	}
}

func (h *Hub) deliver(s *Session, data []byte, d Delivery) {
	select {
	case s.send <- data:
		return
	default:
	}

	if d == BestEffort {
		h.logger.Debug().Str("conn_id", s.id).Msg("Send buffer full, dropping best-effort frame.")
		return
	}

	h.logger.Warn().
		Str("conn_id", s.id).
		Int("queue_len", len(s.send)).
		Msg("Send buffer full on reliable frame, disconnecting slow client.")
	h.drop(s)
}

// drop removes s from the fan-out set. Closing send makes the write pump close the connection.
func (h *Hub) drop(s *Session) {
	delete(h.sessions, s)
	close(s.send)
	h.online.Add(-1)
}

func (h *Hub) shutdown() {
	for s := range h.sessions {
		h.drop(s)
	}
	close(h.done)
	h.logger.Info().Msg("Hub event loop finished.")
}
