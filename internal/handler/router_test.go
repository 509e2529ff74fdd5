package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"hichat/internal/app/chat"
	"hichat/internal/app/identity"
	"hichat/internal/app/order"
	"hichat/internal/app/store"
	"hichat/internal/configs"
	"hichat/internal/pkg/errs"
	"hichat/internal/pkg/pow"
)

type envelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

type testServer struct {
	t   *testing.T
	srv *httptest.Server
}

func newTestServer(t *testing.T, powDifficulty int) *testServer {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	cfg := &configs.AppConfig{
		Environment:   "development",
		JWTSecret:     "handler-test-secret",
		PowDifficulty: powDifficulty,
		StoreBackend:  configs.BackendMemory,
	}

	gw := store.NewMemory()
	ids := identity.NewService(gw, cfg.JWTSecret)
	mgr := chat.NewManager(ctx, gw, chat.NewVerifiedAccountIdentity(ids), chat.DefaultOptions())

	deps := &AppDeps{
		Chat:     mgr,
		Config:   cfg,
		Store:    gw,
		Identity: ids,
		Orders:   order.NewService(gw),
		Pow:      pow.NewManager(ctx, cfg.PowDifficulty),
	}

	srv := httptest.NewServer(Router(ctx, deps))
	t.Cleanup(cancel)
	t.Cleanup(srv.Close)
	t.Cleanup(mgr.Shutdown)

	return &testServer{t: t, srv: srv}
}

func (s *testServer) do(method, path, token string, body any, header http.Header) (int, envelope) {
	s.t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			s.t.Fatal(err)
		}
	}

	r, err := http.NewRequest(method, s.srv.URL+path, &buf)
	if err != nil {
		s.t.Fatal(err)
	}
	if body != nil {
		r.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		r.Header.Set("Authorization", "Bearer "+token)
	}
	for k, v := range header {
		r.Header[k] = v
	}

	res, err := http.DefaultClient.Do(r)
	if err != nil {
		s.t.Fatalf("%s %s: %v", method, path, err)
	}
	defer res.Body.Close()

	var env envelope
	if err := json.NewDecoder(res.Body).Decode(&env); err != nil {
		s.t.Fatalf("%s %s: decode: %v", method, path, err)
	}
	return res.StatusCode, env
}

func (s *testServer) register(username, password string) identity.Credential {
	s.t.Helper()
	status, env := s.do("POST", "/api/register", "", CredentialsInput{Username: username, Password: password}, nil)
	if status != http.StatusOK || env.Code != 0 {
		s.t.Fatalf("register %s: status=%d code=%d %s", username, status, env.Code, env.Message)
	}
	var cred identity.Credential
	if err := json.Unmarshal(env.Data, &cred); err != nil {
		s.t.Fatal(err)
	}
	return cred
}

func TestHealth(t *testing.T) {
	s := newTestServer(t, 0)

	status, env := s.do("GET", "/health", "", nil, nil)
	if status != http.StatusOK {
		t.Fatalf("status = %d", status)
	}

	var data struct {
		Status string `json:"status"`
		Online int    `json:"online"`
	}
	if err := json.Unmarshal(env.Data, &data); err != nil {
		t.Fatal(err)
	}
	if data.Status != "ok" || data.Online != 0 {
		t.Fatalf("unexpected health %+v", data)
	}
}

func TestRegisterLoginMe(t *testing.T) {
	s := newTestServer(t, 0)

	cred := s.register("alice", "secret1")
	if cred.Token == "" || cred.Username != "alice" {
		t.Fatalf("unexpected credential %+v", cred)
	}

	status, env := s.do("POST", "/api/register", "", CredentialsInput{Username: "alice", Password: "other12"}, nil)
	if status != http.StatusBadRequest || env.Code != errs.ErrDuplicateUsername {
		t.Fatalf("duplicate register: status=%d code=%d", status, env.Code)
	}

	status, env = s.do("POST", "/api/login", "", CredentialsInput{Username: "alice", Password: "wrong!!"}, nil)
	if status != http.StatusUnauthorized || env.Code != errs.ErrInvalidCredentials {
		t.Fatalf("bad login: status=%d code=%d", status, env.Code)
	}

	status, env = s.do("POST", "/api/login", "", CredentialsInput{Username: "alice", Password: "secret1"}, nil)
	if status != http.StatusOK {
		t.Fatalf("login: status=%d code=%d", status, env.Code)
	}
	var login identity.Credential
	if err := json.Unmarshal(env.Data, &login); err != nil {
		t.Fatal(err)
	}

	status, env = s.do("GET", "/api/me", login.Token, nil, nil)
	if status != http.StatusOK {
		t.Fatalf("me: status=%d code=%d", status, env.Code)
	}
	var me struct {
		ID       string `json:"id"`
		Username string `json:"username"`
	}
	if err := json.Unmarshal(env.Data, &me); err != nil {
		t.Fatal(err)
	}
	if me.ID == "" || me.Username != "alice" {
		t.Fatalf("unexpected identity %+v", me)
	}
}

func TestRegisterValidation(t *testing.T) {
	s := newTestServer(t, 0)

	tests := map[string]struct {
		input CredentialsInput
		code  int
	}{
		"short username": {CredentialsInput{Username: "al", Password: "secret1"}, errs.ErrInvalidUsername},
		"bad characters": {CredentialsInput{Username: "al ice", Password: "secret1"}, errs.ErrInvalidUsername},
		"short password": {CredentialsInput{Username: "alice", Password: "123"}, errs.ErrInvalidPassword},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			status, env := s.do("POST", "/api/register", "", tt.input, nil)
			if status != http.StatusBadRequest || env.Code != tt.code {
				t.Fatalf("status=%d code=%d, want 400/%d", status, env.Code, tt.code)
			}
		})
	}
}

func TestProtectedRoutesRequireCredential(t *testing.T) {
	s := newTestServer(t, 0)

	for _, route := range []struct{ method, path string }{
		{"GET", "/api/me"},
		{"GET", "/api/orders"},
		{"POST", "/api/history/export"},
	} {
		status, env := s.do(route.method, route.path, "", nil, nil)
		if status != http.StatusUnauthorized || env.Code != errs.ErrUnauthorized {
			t.Errorf("%s %s: status=%d code=%d", route.method, route.path, status, env.Code)
		}
	}
}

func TestRegisterWithProofOfWork(t *testing.T) {
	s := newTestServer(t, 1)

	status, env := s.do("POST", "/api/register", "", CredentialsInput{Username: "bob", Password: "secret1"}, nil)
	if status != http.StatusForbidden || env.Code != errs.ErrPowChallengeRequired {
		t.Fatalf("register without proof: status=%d code=%d", status, env.Code)
	}

	_, env = s.do("GET", "/api/pow/challenge", "", nil, nil)
	var challenge pow.Challenge
	if err := json.Unmarshal(env.Data, &challenge); err != nil {
		t.Fatal(err)
	}
	if challenge.Nonce == "" || challenge.Difficulty != 1 {
		t.Fatalf("unexpected challenge %+v", challenge)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	counter, err := pow.Solve(ctx, challenge.Nonce, challenge.Difficulty)
	if err != nil {
		t.Fatal(err)
	}

	status, env = s.do("POST", "/api/pow/verify", "", PowSolutionInput{Nonce: challenge.Nonce, Counter: counter}, nil)
	if status != http.StatusOK {
		t.Fatalf("verify: status=%d code=%d", status, env.Code)
	}
	var proof struct {
		Token string `json:"token"`
	}
	if err := json.Unmarshal(env.Data, &proof); err != nil {
		t.Fatal(err)
	}

	status, env = s.do("POST", "/api/register", "", CredentialsInput{Username: "bob", Password: "secret1"},
		http.Header{pow.TokenHeaderKey: {proof.Token}})
	if status != http.StatusOK || env.Code != 0 {
		t.Fatalf("register with proof: status=%d code=%d %s", status, env.Code, env.Message)
	}
}

func TestPowDisabled(t *testing.T) {
	s := newTestServer(t, 0)

	status, env := s.do("GET", "/api/pow/challenge", "", nil, nil)
	if status != http.StatusNotFound || env.Code != errs.ErrFeatureDisabled {
		t.Fatalf("status=%d code=%d", status, env.Code)
	}
}

func TestOrders(t *testing.T) {
	s := newTestServer(t, 0)
	cred := s.register("carol", "secret1")

	status, env := s.do("POST", "/api/orders", cred.Token, order.Input{Item: "noodles", Quantity: 0}, nil)
	if status != http.StatusBadRequest || env.Code != errs.ErrInvalidOrder {
		t.Fatalf("invalid order: status=%d code=%d", status, env.Code)
	}
	if !strings.Contains(env.Message, "quantity") {
		t.Fatalf("message %q does not name the field", env.Message)
	}

	status, env = s.do("POST", "/api/orders", cred.Token, order.Input{Item: "  noodles ", Quantity: 2, Note: "extra chili"}, nil)
	if status != http.StatusCreated {
		t.Fatalf("place order: status=%d code=%d %s", status, env.Code, env.Message)
	}
	var placed store.Order
	if err := json.Unmarshal(env.Data, &placed); err != nil {
		t.Fatal(err)
	}
	if placed.ID == "" || placed.Item != "noodles" || placed.Username != "carol" {
		t.Fatalf("unexpected order %+v", placed)
	}

	status, env = s.do("GET", "/api/orders", cred.Token, nil, nil)
	if status != http.StatusOK {
		t.Fatalf("list: status=%d", status)
	}
	var list struct {
		Orders []store.Order `json:"orders"`
	}
	if err := json.Unmarshal(env.Data, &list); err != nil {
		t.Fatal(err)
	}
	if len(list.Orders) != 1 || list.Orders[0].ID != placed.ID {
		t.Fatalf("unexpected list %+v", list.Orders)
	}
}

func TestExportDisabledWithoutObjectStore(t *testing.T) {
	s := newTestServer(t, 0)
	cred := s.register("dave", "secret1")

	status, env := s.do("POST", "/api/history/export", cred.Token, nil, nil)
	if status != http.StatusNotFound || env.Code != errs.ErrFeatureDisabled {
		t.Fatalf("status=%d code=%d", status, env.Code)
	}
}

func TestWebSocketAuthenticatesWithIssuedCredential(t *testing.T) {
	s := newTestServer(t, 0)
	cred := s.register("erin", "secret1")

	url := "ws" + strings.TrimPrefix(s.srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	payload, _ := json.Marshal(chat.AuthenticatePayload{Token: cred.Token})
	if err := conn.WriteJSON(chat.InboundFrame{Type: chat.EventAuthenticate, Payload: payload}); err != nil {
		t.Fatal(err)
	}

	for {
		_ = conn.SetReadDeadline(time.Now().Add(3 * time.Second))
		var f struct {
			Type    chat.EventType  `json:"type"`
			Payload json.RawMessage `json:"payload"`
		}
		if err := conn.ReadJSON(&f); err != nil {
			t.Fatalf("waiting for authenticated: %v", err)
		}
		if f.Type == chat.EventAuthError {
			t.Fatalf("credential rejected: %s", f.Payload)
		}
		if f.Type != chat.EventAuthenticated {
			continue
		}

		var p chat.AuthenticatedPayload
		if err := json.Unmarshal(f.Payload, &p); err != nil {
			t.Fatal(err)
		}
		if p.Username != "erin" {
			t.Fatalf("username = %q", p.Username)
		}
		return
	}
}
