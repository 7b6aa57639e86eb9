// SherChat - Real-Time Chat Relay
// Copyright 2026 SherChat Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/sherchat/relay

package api

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/goccy/go-json"

	"github.com/sherchat/relay/internal/auth"
	"github.com/sherchat/relay/internal/config"
	"github.com/sherchat/relay/internal/logging"
	"github.com/sherchat/relay/internal/models"
	"github.com/sherchat/relay/internal/relay"
	"github.com/sherchat/relay/internal/store"
)

//nolint:gochecknoinits // init ensures consistent logging for tests
func init() {
	logging.Init(logging.Config{
		Level:  "info",
		Format: "console",
		Output: io.Discard,
	})
}

func testConfig() *config.Config {
	return &config.Config{
		Server: config.ServerConfig{
			Host:        "127.0.0.1",
			Port:        0,
			Environment: "development",
		},
		Security: config.SecurityConfig{
			JWTSecret:       "test-secret-at-least-32-characters-long",
			SessionTimeout:  time.Hour,
			CORSOrigins:     []string{"*"},
			RateLimitReqs:   0, // disabled in tests
			RateLimitWindow: time.Minute,
		},
		Typing: config.TypingConfig{
			TTL:           2 * time.Second,
			SweepInterval: 100 * time.Millisecond,
		},
		Relay: config.RelayConfig{
			SendBuffer:     256,
			MaxMessageSize: 64 * 1024,
			InboundRate:    200,
			InboundBurst:   400,
		},
	}
}

type testServer struct {
	server *httptest.Server
	store  store.Store
	relay  *relay.Relay
	jwt    *auth.JWTManager
}

// newTestServer assembles the full HTTP stack over an in-memory store.
func newTestServer(t *testing.T) *testServer {
	t.Helper()
	return newTestServerWithConfig(t, testConfig())
}

func newTestServerWithConfig(t *testing.T, cfg *config.Config) *testServer {
	t.Helper()

	s, err := store.Open(store.Options{InMemory: true})
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })

	jwt, err := auth.NewJWTManager(&cfg.Security)
	if err != nil {
		t.Fatalf("failed to create jwt manager: %v", err)
	}
	authenticator := auth.NewAuthenticator(jwt, s)

	rl := relay.New(s, cfg)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go func() { _ = rl.Hub().RunWithContext(ctx) }()
	go func() { _ = rl.Typing().Serve(ctx) }()

	handler := NewHandler(s, authenticator, jwt, rl, cfg)
	router := NewRouter(handler, NewChiMiddleware(&cfg.Security), authenticator)

	server := httptest.NewServer(router.Setup())
	t.Cleanup(server.Close)

	return &testServer{server: server, store: s, relay: rl, jwt: jwt}
}

// doJSON performs a JSON request and decodes the standard envelope.
func (ts *testServer) doJSON(t *testing.T, method, path, token string, body interface{}) (int, *models.APIResponse) {
	t.Helper()

	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("failed to marshal body: %v", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, ts.server.URL+path, reqBody)
	if err != nil {
		t.Fatalf("failed to build request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := ts.server.Client().Do(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()

	var envelope models.APIResponse
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	return resp.StatusCode, &envelope
}

// registerUser creates an account through the API and returns its token and
// user id.
func (ts *testServer) registerUser(t *testing.T, username string) (token, userID string) {
	t.Helper()

	status, envelope := ts.doJSON(t, http.MethodPost, "/api/v1/auth/register", "", RegisterRequest{
		Username: username,
		Password: "password-123",
	})
	if status != http.StatusCreated {
		t.Fatalf("register returned %d: %+v", status, envelope.Error)
	}

	data := envelope.Data.(map[string]interface{})
	token = data["token"].(string)
	userID = data["user"].(map[string]interface{})["id"].(string)
	return token, userID
}

func TestRegisterAndLogin(t *testing.T) {
	ts := newTestServer(t)

	token, userID := ts.registerUser(t, "alice")
	if token == "" || userID == "" {
		t.Fatal("register returned empty session")
	}

	t.Run("duplicate username", func(t *testing.T) {
		status, envelope := ts.doJSON(t, http.MethodPost, "/api/v1/auth/register", "", RegisterRequest{
			Username: "alice",
			Password: "password-456",
		})
		if status != http.StatusConflict {
			t.Fatalf("expected 409, got %d", status)
		}
		if envelope.Error.Code != "USERNAME_TAKEN" {
			t.Errorf("unexpected error code %s", envelope.Error.Code)
		}
	})

	t.Run("short password rejected", func(t *testing.T) {
		status, _ := ts.doJSON(t, http.MethodPost, "/api/v1/auth/register", "", RegisterRequest{
			Username: "bob",
			Password: "short",
		})
		if status != http.StatusBadRequest {
			t.Fatalf("expected 400, got %d", status)
		}
	})

	t.Run("login success", func(t *testing.T) {
		status, envelope := ts.doJSON(t, http.MethodPost, "/api/v1/auth/login", "", LoginRequest{
			Username: "alice",
			Password: "password-123",
		})
		if status != http.StatusOK {
			t.Fatalf("expected 200, got %d: %+v", status, envelope.Error)
		}
	})

	t.Run("login wrong password", func(t *testing.T) {
		status, _ := ts.doJSON(t, http.MethodPost, "/api/v1/auth/login", "", LoginRequest{
			Username: "alice",
			Password: "wrong-password",
		})
		if status != http.StatusUnauthorized {
			t.Fatalf("expected 401, got %d", status)
		}
	})

	t.Run("me", func(t *testing.T) {
		status, envelope := ts.doJSON(t, http.MethodGet, "/api/v1/auth/me", token, nil)
		if status != http.StatusOK {
			t.Fatalf("expected 200, got %d", status)
		}
		data := envelope.Data.(map[string]interface{})
		if data["username"] != "alice" {
			t.Errorf("unexpected profile: %+v", data)
		}
	})

	t.Run("me without token", func(t *testing.T) {
		status, _ := ts.doJSON(t, http.MethodGet, "/api/v1/auth/me", "", nil)
		if status != http.StatusUnauthorized {
			t.Fatalf("expected 401, got %d", status)
		}
	})

	t.Run("token for deleted user rejected", func(t *testing.T) {
		ghost, err := ts.jwt.GenerateToken("ghost-id", "ghost")
		if err != nil {
			t.Fatal(err)
		}
		status, _ := ts.doJSON(t, http.MethodGet, "/api/v1/auth/me", ghost, nil)
		if status != http.StatusUnauthorized {
			t.Fatalf("expected 401, got %d", status)
		}
	})
}

func TestRooms(t *testing.T) {
	ts := newTestServer(t)

	aliceToken, aliceID := ts.registerUser(t, "alice")
	bobToken, bobID := ts.registerUser(t, "bob")
	_, eveID := ts.registerUser(t, "eve")

	var roomID string

	t.Run("create group room", func(t *testing.T) {
		status, envelope := ts.doJSON(t, http.MethodPost, "/api/v1/rooms", aliceToken, CreateRoomRequest{
			Name:    "general",
			Type:    "group",
			Members: []string{bobID},
		})
		if status != http.StatusCreated {
			t.Fatalf("expected 201, got %d: %+v", status, envelope.Error)
		}
		data := envelope.Data.(map[string]interface{})
		roomID = data["id"].(string)
		members := data["members"].([]interface{})
		if len(members) != 2 {
			t.Errorf("expected caller plus one member, got %v", members)
		}
	})

	t.Run("unknown member rejected", func(t *testing.T) {
		status, _ := ts.doJSON(t, http.MethodPost, "/api/v1/rooms", aliceToken, CreateRoomRequest{
			Name:    "bad",
			Type:    "group",
			Members: []string{"nobody"},
		})
		if status != http.StatusBadRequest {
			t.Fatalf("expected 400, got %d", status)
		}
	})

	t.Run("private room needs two members", func(t *testing.T) {
		status, _ := ts.doJSON(t, http.MethodPost, "/api/v1/rooms", aliceToken, CreateRoomRequest{
			Type:    "private",
			Members: []string{bobID, eveID},
		})
		if status != http.StatusBadRequest {
			t.Fatalf("expected 400, got %d", status)
		}
	})

	t.Run("list includes membership", func(t *testing.T) {
		status, envelope := ts.doJSON(t, http.MethodGet, "/api/v1/rooms", bobToken, nil)
		if status != http.StatusOK {
			t.Fatalf("expected 200, got %d", status)
		}
		rooms := envelope.Data.([]interface{})
		if len(rooms) != 1 {
			t.Fatalf("expected 1 room for bob, got %d", len(rooms))
		}
	})

	t.Run("non-member forbidden", func(t *testing.T) {
		status, envelope := ts.doJSON(t, http.MethodPost, "/api/v1/auth/login", "", LoginRequest{
			Username: "eve", Password: "password-123",
		})
		if status != http.StatusOK {
			t.Fatal("login failed for eve")
		}
		eveToken := envelope.Data.(map[string]interface{})["token"].(string)

		status, _ = ts.doJSON(t, http.MethodGet, "/api/v1/rooms/"+roomID+"/messages", eveToken, nil)
		if status != http.StatusForbidden {
			t.Fatalf("expected 403, got %d", status)
		}
	})

	t.Run("message history pages newest first", func(t *testing.T) {
		ctx := context.Background()
		for _, content := range []string{"one", "two", "three"} {
			msg := &models.Message{SenderID: aliceID, RoomID: roomID, Content: content, Kind: models.MessageKindText}
			if err := ts.store.SaveMessage(ctx, msg); err != nil {
				t.Fatalf("failed to seed message: %v", err)
			}
			time.Sleep(2 * time.Millisecond)
		}

		status, envelope := ts.doJSON(t, http.MethodGet, "/api/v1/rooms/"+roomID+"/messages?limit=2", aliceToken, nil)
		if status != http.StatusOK {
			t.Fatalf("expected 200, got %d", status)
		}
		messages := envelope.Data.([]interface{})
		if len(messages) != 2 {
			t.Fatalf("expected 2 messages, got %d", len(messages))
		}
		first := messages[0].(map[string]interface{})
		if first["content"] != "three" {
			t.Errorf("expected newest first, got %v", first["content"])
		}
		if first["sender"].(map[string]interface{})["username"] != "alice" {
			t.Error("sender not populated")
		}
	})

	t.Run("unknown room 404", func(t *testing.T) {
		status, _ := ts.doJSON(t, http.MethodGet, "/api/v1/rooms/missing/messages", aliceToken, nil)
		if status != http.StatusNotFound {
			t.Fatalf("expected 404, got %d", status)
		}
	})
}

func TestSearchUsers(t *testing.T) {
	ts := newTestServer(t)

	aliceToken, _ := ts.registerUser(t, "alice")
	ts.registerUser(t, "alina")
	ts.registerUser(t, "bob")

	status, envelope := ts.doJSON(t, http.MethodGet, "/api/v1/users?q=ali", aliceToken, nil)
	if status != http.StatusOK {
		t.Fatalf("expected 200, got %d", status)
	}
	results := envelope.Data.([]interface{})

	// The caller is excluded from their own search results.
	if len(results) != 1 {
		t.Fatalf("expected 1 result, got %d", len(results))
	}
	if results[0].(map[string]interface{})["username"] != "alina" {
		t.Errorf("unexpected result: %+v", results[0])
	}

	t.Run("missing query", func(t *testing.T) {
		status, _ := ts.doJSON(t, http.MethodGet, "/api/v1/users", aliceToken, nil)
		if status != http.StatusBadRequest {
			t.Fatalf("expected 400, got %d", status)
		}
	})
}

func TestStickers(t *testing.T) {
	ts := newTestServer(t)
	aliceToken, _ := ts.registerUser(t, "alice")

	status, envelope := ts.doJSON(t, http.MethodPost, "/api/v1/stickers", aliceToken, CreateStickerRequest{
		Name: "wave",
		URL:  "/stickers/wave.png",
	})
	if status != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %+v", status, envelope.Error)
	}

	status, envelope = ts.doJSON(t, http.MethodGet, "/api/v1/stickers", aliceToken, nil)
	if status != http.StatusOK {
		t.Fatalf("expected 200, got %d", status)
	}
	stickers := envelope.Data.([]interface{})
	if len(stickers) != 1 {
		t.Fatalf("expected 1 sticker, got %d", len(stickers))
	}
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t)

	status, _ := ts.doJSON(t, http.MethodGet, "/api/v1/health/live", "", nil)
	if status != http.StatusOK {
		t.Fatalf("live returned %d", status)
	}

	status, envelope := ts.doJSON(t, http.MethodGet, "/api/v1/health/ready", "", nil)
	if status != http.StatusOK {
		t.Fatalf("ready returned %d: %+v", status, envelope.Error)
	}
}
