package chat

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"hichat/internal/app/store"
	"hichat/internal/app/user"
	"hichat/internal/pkg/errs"
	"hichat/internal/pkg/randx"
)

const (
	// timeout duration for writing to the WebSocket connection.
	writeWait = 10 * time.Second

	// maximum time allowed for the server to wait for a Pong message from the client.
	pongWait = 60 * time.Second

	// frequency at which the server sends a Ping message.
	pingPeriod = (pongWait * 9) / 10

	// maximum allowed size (in bytes) of a frame sent by the client.
	maxFrameSize = 8192

	// MaxMessageRunes is the length chat text is cut to before it is stored.
	MaxMessageRunes = 500
)

type sessionState int

const (
	stateConnected sessionState = iota
	stateActive
	stateClosed
)

func (s sessionState) String() string {
	switch s {
	case stateConnected:
		return "connected"
	case stateActive:
		return "active"
	default:
		return "closed"
	}
}

var (
	errSessionClosed = errors.New("chat: session closed")
	errNoIdentity    = errors.New("chat: credential resolved to no identity")
)

// Session is one websocket connection and its protocol state.
// State moves Connected -> Active -> Closed and never leaves Closed.
type Session struct {
	id   string
	conn *websocket.Conn
	send chan []byte
	mgr  *Manager

	mu       sync.Mutex
	state    sessionState
	identity user.Identity

	closeOnce sync.Once
	logger    zerolog.Logger
}

func newSession(m *Manager, conn *websocket.Conn) *Session {
	id := randx.ConnectionID()
	return &Session{
		id:     id,
		conn:   conn,
		send:   make(chan []byte, sendBuffer),
		mgr:    m,
		logger: m.logger.With().Str("conn_id", id).Logger(),
	}
}

// ID returns the connection ID.
func (s *Session) ID() string {
	return s.id
}

// current returns the state and identity under the session lock.
func (s *Session) current() (sessionState, user.Identity) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state, s.identity
}

func (s *Session) isClosed() bool {
	state, _ := s.current()
	return state == stateClosed
}

// activate moves the session to Active with id and upserts its presence entry.
// It returns false if the session closed in the meantime.
func (s *Session) activate(id user.Identity) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == stateClosed {
		return false
	}
	s.state = stateActive
	s.identity = id
	s.mgr.presence.Add(s.id, id)
	return true
}

// close runs the disconnect transition exactly once.
func (s *Session) close() {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		prev := s.state
		id := s.identity
		s.state = stateClosed
		s.mu.Unlock()

		hub := s.mgr.hub
		hub.Unregister(s)

		s.mgr.presence.Remove(s.id)
		hub.AnnouncePresence()
		if prev == stateActive {
			hub.Broadcast(EventUserLeft, id.Username, BestEffort)
		}

		if err := s.conn.Close(); err != nil && !errors.Is(err, websocket.ErrCloseSent) {
			s.logger.Debug().Err(err).Msg("Connection close error")
		}
		s.logger.Info().Str("from_state", prev.String()).Msg("Session closed.")
	})
}

// ReadPump reads frames until the connection fails, then runs the disconnect transition.
func (s *Session) ReadPump() {
	defer s.close()

	s.conn.SetReadLimit(maxFrameSize)

	if err := s.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		s.logger.Error().Err(err).Msg("Failed to set read deadline")
		return
	}

	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.logger.Info().Err(err).Msg("Error reading message (client close/going away)")
			}
			return
		}

		s.handleFrame(data)
	}
}

// WritePump drains the send buffer onto the connection and keeps the heartbeat going.
func (s *Session) WritePump() {
	ticker := time.NewTicker(pingPeriod)

	defer func() {
		ticker.Stop()
		if err := s.conn.Close(); err != nil {
			s.logger.Debug().Err(err).Msg("Connection close error in WritePump")
		}
	}()

	for {
		select {
		case message, ok := <-s.send:
			if !s.writeQueuedMessage(message, ok) {
				return
			}

		case <-ticker.C:
			if !s.writePingMessage() {
				return
			}
		}
	}
}

// writeQueuedMessage returns false when the pump should stop.
func (s *Session) writeQueuedMessage(message []byte, ok bool) bool {
	if err := s.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		s.logger.Error().Err(err).Msg("Failed to set write deadline")
		return false
	}

	if !ok {
		// The hub closed the buffer.
		if err := s.conn.WriteMessage(websocket.CloseMessage, []byte{}); err != nil {
			s.logger.Debug().Err(err).Msg("Error writing close message")
		}
		return false
	}

	if err := s.conn.WriteMessage(websocket.TextMessage, message); err != nil {
		s.logger.Warn().Err(err).Msg("Error writing message")
		return false
	}
	return true
}

func (s *Session) writePingMessage() bool {
	if err := s.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		s.logger.Error().Err(err).Msg("Failed to set write deadline on ping")
		return false
	}

	if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
		s.logger.Debug().Err(err).Msg("Error writing ping")
		return false
	}
	return true
}

func (s *Session) handleFrame(data []byte) {
	var frame InboundFrame
	if err := json.Unmarshal(data, &frame); err != nil {
		s.logger.Warn().Err(err).Int("frame_bytes", len(data)).Msg("Client sent invalid JSON")
		s.sendError(errs.ErrInvalidJSONFormat)
		return
	}

	switch frame.Type {
	case EventAuthenticate:
		s.handleAuthenticate(frame.Payload)
	case EventChatMessage:
		s.handleChatMessage(frame.Payload)
	case EventDeleteMessage:
		s.handleDeleteMessage(frame.Payload)
	case EventTyping:
		s.handleTyping(frame.Payload)
	case EventSetName:
		s.handleSetName(frame.Payload)
	default:
		s.logger.Warn().Str("event", string(frame.Type)).Msg("Client sent unsupported event")
		s.sendError(errs.ErrUnsupportedEvent)
	}
}

// handleAuthenticate accepts {"token": "..."} or a bare string.
func (s *Session) handleAuthenticate(payload json.RawMessage) {
	if s.isClosed() {
		return
	}

	credential := decodeString(payload)
	if credential == "" {
		var p AuthenticatePayload
		if err := json.Unmarshal(payload, &p); err == nil {
			credential = p.Token
		}
	}

	ctx, cancel := s.mgr.persistContext()
	defer cancel()

	id, err := s.mgr.policy.Authenticate(ctx, s.id, credential)
	if err == nil && id.IsZero() {
		err = errNoIdentity
	}
	if err != nil {
		s.logger.Info().Err(err).Msg("Authentication failed")
		s.mgr.hub.Send(s, EventAuthError, authErrorMessage(err), Reliable)
		return
	}

	if !s.activate(id) {
		s.logger.Debug().Msg("Session closed during authentication; presence not registered")
		return
	}
	s.logger.Info().Str("user_id", id.ID).Str("username", id.Username).Msg("Session authenticated.")

	s.mgr.hub.AnnouncePresence()
	s.replayHistory(ctx)
	s.mgr.hub.Send(s, EventAuthenticated, AuthenticatedPayload{Username: id.Username}, Reliable)
}

// replayHistory sends the recent window to this session only.
func (s *Session) replayHistory(ctx context.Context) {
	err := s.mgr.hub.Replay(s, func() ([]store.Message, error) {
		return s.mgr.store.RecentMessages(ctx, s.mgr.opts.HistoryLimit)
	})
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to load recent messages")
		s.sendError(errs.ErrPersistenceFailure)
	}
}

func (s *Session) handleChatMessage(payload json.RawMessage) {
	state, id := s.current()
	if state != stateActive {
		s.sendError(errs.ErrNotAuthenticated)
		return
	}

	text, ok := chatText(payload)
	if !ok {
		s.sendError(errs.ErrInvalidParams)
		return
	}
	if strings.TrimSpace(text) == "" {
		return
	}
	text = truncateRunes(text, MaxMessageRunes)

	ctx, cancel := s.mgr.persistContext()
	defer cancel()

	msg, err := s.mgr.hub.PublishChat(func(ts int64) (store.Message, error) {
		if s.isClosed() {
			return store.Message{}, errSessionClosed
		}
		return s.mgr.store.AppendMessage(ctx, store.Message{
			ID:        randx.MessageID(),
			AuthorID:  id.ID,
			Author:    id.Username,
			Text:      text,
			Timestamp: ts,
		})
	})
	if errors.Is(err, errSessionClosed) {
		return
	}
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to persist chat message")
		s.sendError(errs.ErrPersistenceFailure)
		return
	}

	s.logger.Debug().Str("message_id", msg.ID).Int("runes", utf8.RuneCountInString(msg.Text)).Msg("Chat message published.")
}

func (s *Session) handleDeleteMessage(payload json.RawMessage) {
	state, id := s.current()
	if state != stateActive {
		s.sendError(errs.ErrNotAuthenticated)
		return
	}

	msgID := strings.TrimSpace(decodeString(payload))
	if msgID == "" {
		s.sendError(errs.ErrInvalidParams)
		return
	}

	ctx, cancel := s.mgr.persistContext()
	defer cancel()

	existing, err := s.mgr.store.FindMessage(ctx, msgID)
	switch {
	case errors.Is(err, store.ErrNotFound):
		// Deleting an unknown id still broadcasts.
	case err != nil:
		s.logger.Error().Err(err).Str("message_id", msgID).Msg("Failed to look up message for deletion")
		s.sendError(errs.ErrPersistenceFailure)
		return
	case existing.AuthorID != id.ID:
		// Guest ids are per connection, so a reconnected guest never owns its earlier messages.
		ev := s.logger.Warn()
		if id.Guest {
			ev = s.logger.Debug()
		}
		ev.
			Str("message_id", msgID).
			Str("author_id", existing.AuthorID).
			Str("requester_id", id.ID).
			Bool("enforced", s.mgr.opts.EnforceDeleteOwnership).
			Msg("Delete requested by someone other than the author")
		if s.mgr.opts.EnforceDeleteOwnership {
			s.sendError(errs.ErrNotMessageAuthor)
			return
		}
	}

	if err := s.mgr.store.SoftDeleteMessage(ctx, msgID); err != nil {
		s.logger.Error().Err(err).Str("message_id", msgID).Msg("Failed to tombstone message")
		s.sendError(errs.ErrPersistenceFailure)
		return
	}

	s.mgr.hub.Broadcast(EventMessageDeleted, msgID, Reliable)
}

func (s *Session) handleTyping(payload json.RawMessage) {
	state, id := s.current()
	if state != stateActive {
		s.sendError(errs.ErrNotAuthenticated)
		return
	}

	s.mgr.hub.BroadcastExcept(s, EventTyping, TypingPayload{
		Username: id.Username,
		IsTyping: truthy(payload),
	}, BestEffort)
}

func (s *Session) handleSetName(payload json.RawMessage) {
	state, current := s.current()
	if state != stateActive {
		s.sendError(errs.ErrNotAuthenticated)
		return
	}

	renamed, err := s.mgr.policy.Rename(current, decodeString(payload))
	if errors.Is(err, ErrRenameNotAllowed) {
		s.sendError(errs.ErrRenameNotAllowed)
		return
	}
	if err != nil {
		s.sendError(errs.ErrInvalidParams)
		return
	}

	if !s.activate(renamed) {
		return
	}

	hub := s.mgr.hub
	hub.Send(s, EventNameAccepted, renamed.Username, Reliable)
	hub.AnnouncePresence()
	hub.Broadcast(EventUserNameChanged, renamed, BestEffort)
}

func (s *Session) sendError(code int) {
	s.mgr.hub.Send(s, EventError, errorPayload(code), BestEffort)
}

// decodeString reads a JSON string payload; anything else yields "".
func decodeString(raw json.RawMessage) string {
	var v string
	if err := json.Unmarshal(raw, &v); err != nil {
		return ""
	}
	return v
}

// chatText reads a chatMessage payload. Numbers and true are taken as their text,
// while false, zero, null and a missing payload read as empty. Objects and arrays are rejected.
func chatText(raw json.RawMessage) (string, bool) {
	if len(raw) == 0 {
		return "", true
	}

	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return "", false
	}

	switch t := v.(type) {
	case string:
		return t, true
	case nil:
		return "", true
	case bool:
		if t {
			return "true", true
		}
		return "", true
	case float64:
		if t == 0 {
			return "", true
		}
		return strconv.FormatFloat(t, 'f', -1, 64), true
	default:
		return "", false
	}
}

// truncateRunes cuts s to at most n characters without splitting a UTF-8 sequence.
func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	i := 0
	for pos := range s {
		if i == n {
			return s[:pos]
		}
		i++
	}
	return s
}

func authErrorMessage(err error) string {
	if errors.Is(err, user.ErrInvalidDisplayName) {
		return user.ErrInvalidDisplayName.Error()
	}
	return errs.NewError(errs.ErrInvalidOrExpiredCredential).Message
}
