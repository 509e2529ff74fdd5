package chat

import (
	"context"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"hichat/internal/app/store"
	"hichat/internal/pkg/logx"
)

// Options tunes session behaviour.
type Options struct {
	// HistoryLimit is the size of the replay window sent after authentication.
	HistoryLimit int

	// PersistTimeout bounds every gateway call made on behalf of a session.
	PersistTimeout time.Duration

	// EnforceDeleteOwnership rejects deletes from anyone but the author.
	EnforceDeleteOwnership bool
}

// DefaultOptions matches the reference deployment.
func DefaultOptions() Options {
	return Options{HistoryLimit: 100, PersistTimeout: 5 * time.Second}
}

// Manager wires sessions to the hub, the presence registry, the gateway and the identity policy.
type Manager struct {
	hub      *Hub
	presence *Registry
	store    store.Gateway
	policy   IdentityPolicy
	opts     Options

	ctx    context.Context
	cancel context.CancelFunc

	logger zerolog.Logger
}

// NewManager starts the hub and seeds its clock from the newest stored message.
func NewManager(ctx context.Context, gw store.Gateway, policy IdentityPolicy, opts Options) *Manager {
	if opts.HistoryLimit <= 0 {
		opts.HistoryLimit = DefaultOptions().HistoryLimit
	}
	if opts.PersistTimeout <= 0 {
		opts.PersistTimeout = DefaultOptions().PersistTimeout
	}

	presence := NewRegistry()
	m := &Manager{
		hub:      NewHub(presence),
		presence: presence,
		store:    gw,
		policy:   policy,
		opts:     opts,
		logger:   logx.Component("chat"),
	}
	m.ctx, m.cancel = context.WithCancel(context.WithoutCancel(ctx))

	go m.hub.Run()

	m.seedClock(ctx)
	return m
}

func (m *Manager) seedClock(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, m.opts.PersistTimeout)
	defer cancel()

	recent, err := m.store.RecentMessages(ctx, 1)
	if err != nil {
		m.logger.Warn().Err(err).Msg("Could not read newest message; timestamps start from the wall clock.")
		return
	}
	if len(recent) > 0 {
		m.hub.SeedClock(recent[len(recent)-1].Timestamp)
	}
}

// Hub exposes the fan-out for callers that need to observe it.
func (m *Manager) Hub() *Hub {
	return m.hub
}

// Presence returns the current online list.
func (m *Manager) Presence() []PresenceEntry {
	return m.presence.Snapshot()
}

// Attach runs a session on conn and blocks until it ends.
func (m *Manager) Attach(conn *websocket.Conn) {
	s := newSession(m, conn)

	if !m.hub.Register(s) {
		s.logger.Warn().Msg("Hub stopped; refusing connection.")
		_ = conn.Close()
		return
	}

	go s.WritePump()

	s.logger.Info().Msg("Session connected.")

	if id, ok := m.policy.Connect(s.id); ok && s.activate(id) {
		ctx, cancel := m.persistContext()
		m.hub.Send(s, EventNameAccepted, id.Username, Reliable)
		m.hub.AnnouncePresence()
		s.replayHistory(ctx)
		cancel()
	}

	s.ReadPump()
}

// Shutdown cancels in-flight session work and stops the hub, which closes every connection.
func (m *Manager) Shutdown() {
	m.logger.Info().
		Int("online", m.hub.Online()).
		Int("present", m.presence.Len()).
		Msg("Shutting down chat.")
	m.cancel()
	m.hub.Stop()
}

func (m *Manager) persistContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(m.ctx, m.opts.PersistTimeout)
}
