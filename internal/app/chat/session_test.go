package chat

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"hichat/internal/app/store"
	"hichat/internal/app/user"
	"hichat/internal/pkg/errs"
)

// tokenVerifier accepts tokens of the form "token-<name>".
type tokenVerifier struct{}

func (tokenVerifier) Verify(token string) (user.Identity, error) {
	name, ok := strings.CutPrefix(token, "token-")
	if !ok || name == "" {
		return user.Identity{}, errors.New("bad token")
	}
	return user.Identity{ID: "id-" + name, Username: name}, nil
}

type failingAppend struct {
	store.Gateway
}

func (failingAppend) AppendMessage(context.Context, store.Message) (store.Message, error) {
	return store.Message{}, errors.New("disk full")
}

type testEnv struct {
	t   *testing.T
	mgr *Manager
	gw  store.Gateway
	url string
}

func newTestEnv(t *testing.T, gw store.Gateway, policy IdentityPolicy, opts Options) *testEnv {
	t.Helper()

	mgr := NewManager(context.Background(), gw, policy, opts)
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		mgr.Attach(conn)
	}))
	t.Cleanup(srv.Close)
	t.Cleanup(mgr.Shutdown)

	return &testEnv{t: t, mgr: mgr, gw: gw, url: "ws" + strings.TrimPrefix(srv.URL, "http")}
}

func newVerifiedEnv(t *testing.T, opts Options) *testEnv {
	return newTestEnv(t, store.NewMemory(), NewVerifiedAccountIdentity(tokenVerifier{}), opts)
}

type testClient struct {
	t    *testing.T
	conn *websocket.Conn
}

func (e *testEnv) dial() *testClient {
	e.t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(e.url, nil)
	if err != nil {
		e.t.Fatalf("dial: %v", err)
	}
	e.t.Cleanup(func() { conn.Close() })
	return &testClient{t: e.t, conn: conn}
}

func (c *testClient) emit(event EventType, payload any) {
	c.t.Helper()
	raw, err := json.Marshal(payload)
	if err != nil {
		c.t.Fatal(err)
	}
	if err := c.conn.WriteJSON(InboundFrame{Type: event, Payload: raw}); err != nil {
		c.t.Fatalf("write %s: %v", event, err)
	}
}

// presenceNoise are frames that other clients' activity may interleave at any point.
var presenceNoise = []EventType{EventUsersOnline, EventUserLeft, EventUserNameChanged}

// expect reads until it sees want, skipping presence noise. Any other frame fails the test.
func (c *testClient) expect(want EventType, into any) {
	c.t.Helper()
	for {
		_ = c.conn.SetReadDeadline(time.Now().Add(3 * time.Second))
		var f decodedFrame
		if err := c.conn.ReadJSON(&f); err != nil {
			c.t.Fatalf("waiting for %s: %v", want, err)
		}
		if f.Type == want {
			if into != nil {
				if err := json.Unmarshal(f.Payload, into); err != nil {
					c.t.Fatalf("decode %s: %v", want, err)
				}
			}
			return
		}
		skip := false
		for _, n := range presenceNoise {
			skip = skip || f.Type == n
		}
		if !skip {
			c.t.Fatalf("waiting for %s, got %s %s", want, f.Type, f.Payload)
		}
	}
}

func (c *testClient) authenticate(token string) []store.Message {
	c.t.Helper()
	c.emit(EventAuthenticate, AuthenticatePayload{Token: token})

	var history []store.Message
	c.expect(EventRecentMessages, &history)
	c.expect(EventAuthenticated, nil)
	return history
}

func (c *testClient) expectError(code int) {
	c.t.Helper()
	var p ErrorPayload
	c.expect(EventError, &p)
	if p.Code != code {
		c.t.Fatalf("error code = %d (%s), want %d", p.Code, p.Message, code)
	}
}

func TestChatDeleteAndReplay(t *testing.T) {
	env := newVerifiedEnv(t, DefaultOptions())
	a, b := env.dial(), env.dial()
	a.authenticate("token-alice")
	b.authenticate("token-bob")

	a.emit(EventChatMessage, "hello")

	var gotA, gotB store.Message
	a.expect(EventChatMessage, &gotA)
	b.expect(EventChatMessage, &gotB)
	if gotA.ID == "" || gotA != gotB {
		t.Fatalf("clients disagree: %+v vs %+v", gotA, gotB)
	}
	if gotA.Text != "hello" || gotA.Author != "alice" || gotA.AuthorID != "id-alice" {
		t.Fatalf("unexpected message %+v", gotA)
	}

	a.emit(EventDeleteMessage, gotA.ID)
	var deletedA, deletedB string
	a.expect(EventMessageDeleted, &deletedA)
	b.expect(EventMessageDeleted, &deletedB)
	if deletedA != gotA.ID || deletedB != gotA.ID {
		t.Fatalf("deleted ids %q/%q, want %q", deletedA, deletedB, gotA.ID)
	}

	// Deleting again is idempotent and still broadcast.
	a.emit(EventDeleteMessage, gotA.ID)
	b.expect(EventMessageDeleted, &deletedB)

	c := env.dial()
	for _, m := range c.authenticate("token-carol") {
		if m.ID == gotA.ID {
			t.Fatal("tombstoned message replayed to reconnecting client")
		}
	}
}

func TestUnauthenticatedChatIsRejected(t *testing.T) {
	env := newVerifiedEnv(t, DefaultOptions())
	watcher := env.dial()
	watcher.authenticate("token-watcher")

	anon := env.dial()
	anon.emit(EventChatMessage, "sneaky")
	anon.expectError(errs.ErrNotAuthenticated)

	anon.emit(EventDeleteMessage, "whatever")
	anon.expectError(errs.ErrNotAuthenticated)

	watcher.emit(EventChatMessage, "legit")
	var got store.Message
	watcher.expect(EventChatMessage, &got)
	if got.Text != "legit" {
		t.Fatalf("watcher saw %q first", got.Text)
	}

	stored, err := env.gw.RecentMessages(context.Background(), 100)
	if err != nil {
		t.Fatal(err)
	}
	if len(stored) != 1 {
		t.Fatalf("store has %d messages, want 1", len(stored))
	}
}

func TestAuthErrorKeepsSessionConnected(t *testing.T) {
	env := newVerifiedEnv(t, DefaultOptions())
	c := env.dial()

	c.emit(EventAuthenticate, AuthenticatePayload{Token: "forged"})
	var msg string
	c.expect(EventAuthError, &msg)
	if msg == "" {
		t.Fatal("empty authError")
	}

	c.emit(EventTyping, true)
	c.expectError(errs.ErrNotAuthenticated)

	// The same connection can still authenticate afterwards.
	c.authenticate("token-dana")
	if n := len(env.mgr.Presence()); n != 1 {
		t.Fatalf("presence has %d entries, want 1", n)
	}
}

func TestLongMessageIsTruncated(t *testing.T) {
	env := newVerifiedEnv(t, DefaultOptions())
	c := env.dial()
	c.authenticate("token-erin")

	c.emit(EventChatMessage, strings.Repeat("é", 600))
	var got store.Message
	c.expect(EventChatMessage, &got)
	if n := len([]rune(got.Text)); n != MaxMessageRunes {
		t.Fatalf("broadcast text has %d characters, want %d", n, MaxMessageRunes)
	}

	stored, _ := env.gw.FindMessage(context.Background(), got.ID)
	if stored.Text != got.Text {
		t.Fatal("stored text differs from broadcast text")
	}

	// Whitespace-only text is ignored; the next frame must be the following message.
	c.emit(EventChatMessage, "   ")
	c.emit(EventChatMessage, "after")
	c.expect(EventChatMessage, &got)
	if got.Text != "after" {
		t.Fatalf("got %q", got.Text)
	}
}

func TestTypingExcludesSender(t *testing.T) {
	env := newVerifiedEnv(t, DefaultOptions())
	a, b := env.dial(), env.dial()
	a.authenticate("token-alice")
	b.authenticate("token-bob")

	a.emit(EventTyping, true)
	var p TypingPayload
	b.expect(EventTyping, &p)
	if p.Username != "alice" || !p.IsTyping {
		t.Fatalf("typing payload %+v", p)
	}

	// Had alice received her own typing frame, expect would fail on it.
	a.emit(EventChatMessage, "done typing")
	a.expect(EventChatMessage, nil)
}

func TestHistoryReplayWindow(t *testing.T) {
	gw := store.NewMemory()
	for i := range 120 {
		_, _ = gw.AppendMessage(context.Background(), store.Message{
			ID: string(rune(0x4e00 + i)), AuthorID: "id-old", Author: "old", Text: "x", Timestamp: int64(1000 + i),
		})
	}
	_ = gw.SoftDeleteMessage(context.Background(), string(rune(0x4e00+119)))

	env := newTestEnv(t, gw, NewVerifiedAccountIdentity(tokenVerifier{}), DefaultOptions())
	history := env.dial().authenticate("token-frank")

	if len(history) != 100 {
		t.Fatalf("replayed %d messages, want 100", len(history))
	}
	for i := 1; i < len(history); i++ {
		if history[i].Timestamp <= history[i-1].Timestamp {
			t.Fatalf("history not strictly ascending at %d", i)
		}
	}
	if history[99].Timestamp != 1118 {
		t.Fatalf("newest replayed ts = %d, want 1118", history[99].Timestamp)
	}

	// New messages sort after everything already stored.
	c := env.dial()
	c.authenticate("token-gina")
	c.emit(EventChatMessage, "fresh")
	var fresh store.Message
	c.expect(EventChatMessage, &fresh)
	if fresh.Timestamp <= 1119 {
		t.Fatalf("fresh timestamp %d not after stored history", fresh.Timestamp)
	}
}

func TestDeleteOwnershipEnforced(t *testing.T) {
	opts := DefaultOptions()
	opts.EnforceDeleteOwnership = true
	env := newVerifiedEnv(t, opts)

	a, b := env.dial(), env.dial()
	a.authenticate("token-alice")
	b.authenticate("token-bob")

	a.emit(EventChatMessage, "mine")
	var msg store.Message
	a.expect(EventChatMessage, &msg)
	b.expect(EventChatMessage, nil)

	b.emit(EventDeleteMessage, msg.ID)
	b.expectError(errs.ErrNotMessageAuthor)

	stored, err := env.gw.FindMessage(context.Background(), msg.ID)
	if err != nil || stored.Deleted {
		t.Fatalf("message was tombstoned by a non-author: %+v, %v", stored, err)
	}

	a.emit(EventDeleteMessage, msg.ID)
	a.expect(EventMessageDeleted, nil)
}

func TestPersistenceFailureReportsToSender(t *testing.T) {
	env := newTestEnv(t, failingAppend{Gateway: store.NewMemory()}, NewVerifiedAccountIdentity(tokenVerifier{}), DefaultOptions())
	c := env.dial()
	c.authenticate("token-hank")

	c.emit(EventChatMessage, "lost")
	c.expectError(errs.ErrPersistenceFailure)
}

func TestVerifiedSessionsCannotRename(t *testing.T) {
	env := newVerifiedEnv(t, DefaultOptions())
	c := env.dial()
	c.authenticate("token-ivy")

	c.emit(EventSetName, "someone-else")
	c.expectError(errs.ErrRenameNotAllowed)
}

func TestAnonymousNameClaims(t *testing.T) {
	env := newTestEnv(t, store.NewMemory(), AnonymousNameClaim{}, DefaultOptions())

	a := env.dial()
	var guest string
	a.expect(EventNameAccepted, &guest)
	if !strings.HasPrefix(guest, "Guest_") {
		t.Fatalf("guest name %q", guest)
	}
	a.expect(EventRecentMessages, nil)

	// Anonymous sessions may chat straight away.
	a.emit(EventChatMessage, "hi")
	var first store.Message
	a.expect(EventChatMessage, &first)
	if first.Author != guest {
		t.Fatalf("author %q, want %q", first.Author, guest)
	}

	a.emit(EventSetName, "  Night Owl ")
	var accepted string
	a.expect(EventNameAccepted, &accepted)
	if accepted != "Night Owl" {
		t.Fatalf("accepted %q", accepted)
	}

	a.emit(EventChatMessage, "renamed")
	var second store.Message
	a.expect(EventChatMessage, &second)
	if second.Author != "Night Owl" || second.AuthorID != first.AuthorID {
		t.Fatalf("rename did not keep the id: %+v vs %+v", second, first)
	}

	entries := env.mgr.Presence()
	if len(entries) != 1 || entries[0].Username != "Night Owl" {
		t.Fatalf("presence %+v", entries)
	}
}

func TestDisconnectRemovesPresence(t *testing.T) {
	env := newVerifiedEnv(t, DefaultOptions())
	a, b := env.dial(), env.dial()
	a.authenticate("token-alice")
	b.authenticate("token-bob")

	_ = b.conn.Close()

	var left string
	for {
		_ = a.conn.SetReadDeadline(time.Now().Add(3 * time.Second))
		var f decodedFrame
		if err := a.conn.ReadJSON(&f); err != nil {
			t.Fatalf("waiting for userLeft: %v", err)
		}
		if f.Type == EventUserLeft {
			_ = json.Unmarshal(f.Payload, &left)
			break
		}
	}
	if left != "bob" {
		t.Fatalf("userLeft %q", left)
	}

	deadline := time.Now().Add(2 * time.Second)
	for len(env.mgr.Presence()) != 1 {
		if time.Now().After(deadline) {
			t.Fatalf("presence still has %d entries", len(env.mgr.Presence()))
		}
		time.Sleep(10 * time.Millisecond)
	}
}

// gatedHistory holds the next RecentMessages result until released.
type gatedHistory struct {
	store.Gateway

	mu      sync.Mutex
	entered chan struct{}
	release chan struct{}
}

func (g *gatedHistory) arm() (entered, release chan struct{}) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.entered, g.release = make(chan struct{}), make(chan struct{})
	return g.entered, g.release
}

func (g *gatedHistory) RecentMessages(ctx context.Context, limit int) ([]store.Message, error) {
	msgs, err := g.Gateway.RecentMessages(ctx, limit)

	g.mu.Lock()
	entered, release := g.entered, g.release
	g.entered, g.release = nil, nil
	g.mu.Unlock()

	if entered != nil {
		close(entered)
		select {
		case <-release:
		case <-ctx.Done():
		}
	}
	return msgs, err
}

func TestReplayIsOrderedAgainstLiveChat(t *testing.T) {
	gw := &gatedHistory{Gateway: store.NewMemory()}
	env := newTestEnv(t, gw, NewVerifiedAccountIdentity(tokenVerifier{}), DefaultOptions())

	alice := env.dial()
	alice.authenticate("token-alice")

	entered, release := gw.arm()
	bob := env.dial()
	bob.emit(EventAuthenticate, AuthenticatePayload{Token: "token-bob"})

	select {
	case <-entered:
	case <-time.After(3 * time.Second):
		t.Fatal("bob's history fetch never started")
	}

	// alice publishes while bob's history is being read.
	alice.emit(EventChatMessage, "hello")
	time.Sleep(200 * time.Millisecond)
	close(release)

	var (
		order       []EventType
		seen        int
		gotAuth     bool
		gotLiveChat bool
	)
	for !gotAuth || !gotLiveChat {
		_ = bob.conn.SetReadDeadline(time.Now().Add(3 * time.Second))
		var f decodedFrame
		if err := bob.conn.ReadJSON(&f); err != nil {
			t.Fatalf("frames so far %v: %v", order, err)
		}

		switch f.Type {
		case EventRecentMessages:
			var history []store.Message
			if err := json.Unmarshal(f.Payload, &history); err != nil {
				t.Fatal(err)
			}
			for _, m := range history {
				if m.Text == "hello" {
					seen++
				}
			}
		case EventChatMessage:
			var m store.Message
			if err := json.Unmarshal(f.Payload, &m); err != nil {
				t.Fatal(err)
			}
			if m.Text == "hello" {
				seen++
			}
			gotLiveChat = true
		case EventAuthenticated:
			gotAuth = true
		default:
			continue
		}
		order = append(order, f.Type)
	}

	if order[0] != EventRecentMessages {
		t.Fatalf("bob's frames %v, want recentMessages first", order)
	}
	if seen != 1 {
		t.Fatalf("bob saw hello %d times, want exactly once", seen)
	}
}

// emptyVerifier accepts every credential but attributes it to nobody.
type emptyVerifier struct{}

func (emptyVerifier) Verify(string) (user.Identity, error) {
	return user.Identity{}, nil
}

func TestEmptyIdentityIsAnAuthError(t *testing.T) {
	env := newTestEnv(t, store.NewMemory(), NewVerifiedAccountIdentity(emptyVerifier{}), DefaultOptions())
	c := env.dial()

	c.emit(EventAuthenticate, AuthenticatePayload{Token: "anything"})
	c.expect(EventAuthError, nil)

	c.emit(EventChatMessage, "hi")
	c.expectError(errs.ErrNotAuthenticated)

	if n := len(env.mgr.Presence()); n != 0 {
		t.Fatalf("presence has %d entries, want 0", n)
	}
}

func TestChatPayloadCoercion(t *testing.T) {
	env := newVerifiedEnv(t, DefaultOptions())
	c := env.dial()
	c.authenticate("token-kim")

	tests := map[string]struct {
		payload any
		want    string
	}{
		"integer": {42, "42"},
		"float":   {2.5, "2.5"},
		"true":    {true, "true"},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			c.emit(EventChatMessage, tt.payload)
			var got store.Message
			c.expect(EventChatMessage, &got)
			if got.Text != tt.want {
				t.Fatalf("text = %q, want %q", got.Text, tt.want)
			}
		})
	}

	c.emit(EventChatMessage, map[string]string{"text": "nested"})
	c.expectError(errs.ErrInvalidParams)

	c.emit(EventChatMessage, []string{"a"})
	c.expectError(errs.ErrInvalidParams)

	// Falsy scalars read as empty text and are ignored like blank messages.
	c.emit(EventChatMessage, false)
	c.emit(EventChatMessage, 0)
	c.emit(EventChatMessage, "after")
	var got store.Message
	c.expect(EventChatMessage, &got)
	if got.Text != "after" {
		t.Fatalf("got %q", got.Text)
	}
}

func TestGuestMayDeleteAnotherGuestsMessage(t *testing.T) {
	env := newTestEnv(t, store.NewMemory(), AnonymousNameClaim{}, DefaultOptions())

	a := env.dial()
	a.expect(EventNameAccepted, nil)
	a.expect(EventRecentMessages, nil)
	a.emit(EventChatMessage, "first")
	var msg store.Message
	a.expect(EventChatMessage, &msg)

	b := env.dial()
	b.expect(EventNameAccepted, nil)
	b.expect(EventRecentMessages, nil)
	b.emit(EventDeleteMessage, msg.ID)

	var deleted string
	a.expect(EventMessageDeleted, &deleted)
	if deleted != msg.ID {
		t.Fatalf("deleted %q, want %q", deleted, msg.ID)
	}
}
