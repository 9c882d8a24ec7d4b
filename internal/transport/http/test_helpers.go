package http

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/rs/zerolog"

	"github.com/VRMX2/USTHB-APP/internal/auth"
	"github.com/VRMX2/USTHB-APP/internal/config"
	"github.com/VRMX2/USTHB-APP/internal/core"
	"github.com/VRMX2/USTHB-APP/internal/proto"
	"github.com/VRMX2/USTHB-APP/internal/service/notify"
	"github.com/VRMX2/USTHB-APP/internal/store"
	"github.com/VRMX2/USTHB-APP/internal/store/sqlite"
)

// testEnv is a complete server wired against an in-memory store.
type testEnv struct {
	ts    *httptest.Server
	hub   *core.Hub
	store *sqlite.SQLiteStore
	auth  *auth.Service
}

func startTestEnv(t *testing.T) *testEnv {
	t.Helper()

	st, err := sqlite.New(":memory:")
	if err != nil {
		t.Fatalf("failed to create test store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	jwtConfig := &auth.JWTConfig{
		Secret:   []byte("test-secret"),
		Issuer:   "test",
		Audience: "test",
		TTL:      24 * time.Hour,
	}
	authService := auth.NewService(st, jwtConfig)

	disabledLogger := zerolog.New(nil)
	hub := core.NewHub(&disabledLogger)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go hub.Run(ctx)

	notifier := notify.New(st, hub)

	cfg := config.Default()
	cfg.Addr = ":0"
	cfg.ReadHeaderTimeout = time.Second
	cfg.ShutdownTimeout = time.Second
	cfg.JWTSecret = "test-secret"
	cfg.ResolveRetryDelay = 50 * time.Millisecond
	cfg.WSIdleTimeout = 10 * time.Second

	server := NewServer(hub, authService, notifier, st, &cfg, &disabledLogger)
	ts := httptest.NewServer(server.Handler)
	t.Cleanup(ts.Close)

	return &testEnv{ts: ts, hub: hub, store: st, auth: authService}
}

// register creates an account and returns its token and user id.
func (e *testEnv) register(t *testing.T, username, role, department string) (string, int64) {
	t.Helper()

	token, err := e.auth.Register(context.Background(), username, "password123", role, department)
	if err != nil {
		t.Fatalf("register %s: %v", username, err)
	}
	user, err := e.store.GetUserByUsername(context.Background(), username)
	if err != nil {
		t.Fatalf("lookup %s: %v", username, err)
	}
	return token, user.ID
}

// createCourse stores a course and returns its id.
func (e *testEnv) createCourse(t *testing.T, code, title, department string) int64 {
	t.Helper()

	course, err := e.store.CreateCourse(context.Background(), code, title, department)
	if err != nil {
		t.Fatalf("create course %s: %v", code, err)
	}
	return course.ID
}

// setMembership enrolls or assigns a user to a course.
func (e *testEnv) setMembership(t *testing.T, courseID, userID int64, role store.MembershipRole) {
	t.Helper()

	if err := e.store.SetMembership(context.Background(), courseID, userID, role); err != nil {
		t.Fatalf("set membership: %v", err)
	}
}

// dialWS opens an authenticated socket against the test server.
func (e *testEnv) dialWS(t *testing.T, ctx context.Context, token string) *websocket.Conn {
	t.Helper()

	wsURL := strings.Replace(e.ts.URL, "http", "ws", 1) + "/ws?token=" + token
	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	if err != nil {
		t.Fatalf("dial ws: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close(websocket.StatusNormalClosure, "done") })
	return conn
}

// rxEnvelope mirrors proto.Outbound with the payload kept raw so tests can
// decode it into the expected event type.
type rxEnvelope struct {
	Type  string          `json:"type"`
	Event string          `json:"event,omitempty"`
	Data  json.RawMessage `json:"data,omitempty"`
	Error *proto.Error    `json:"error,omitempty"`
}

// readEnvelope reads a single frame.
func readEnvelope(t *testing.T, ctx context.Context, conn *websocket.Conn) rxEnvelope {
	t.Helper()

	var env rxEnvelope
	if err := wsjson.Read(ctx, conn, &env); err != nil {
		t.Fatalf("read envelope: %v", err)
	}
	return env
}

// awaitEnvelope reads frames until one satisfies the predicate. Presence
// churn interleaves with almost everything, so tests match on what they
// care about and let the rest pass by.
func awaitEnvelope(t *testing.T, ctx context.Context, conn *websocket.Conn, what string, match func(rxEnvelope) bool) rxEnvelope {
	t.Helper()

	for {
		var env rxEnvelope
		if err := wsjson.Read(ctx, conn, &env); err != nil {
			t.Fatalf("waiting for %s: %v", what, err)
		}
		if match(env) {
			return env
		}
	}
}

// awaitEvent waits for a typed event frame and decodes its payload.
func awaitEvent(t *testing.T, ctx context.Context, conn *websocket.Conn, event string, out any) {
	t.Helper()

	env := awaitEnvelope(t, ctx, conn, event, func(env rxEnvelope) bool {
		return env.Type == proto.OutboundTypeEvent && env.Event == event
	})
	if err := json.Unmarshal(env.Data, out); err != nil {
		t.Fatalf("decode %s payload: %v", event, err)
	}
}

// decodeInto unmarshals a raw payload, failing the test on error.
func decodeInto(t *testing.T, data []byte, out any) {
	t.Helper()

	if err := json.Unmarshal(data, out); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
}

// awaitWelcome reads frames until the welcome arrives. Used to make sure a
// connection is attached before the test lets anyone signal at it.
func awaitWelcome(t *testing.T, ctx context.Context, conn *websocket.Conn) proto.WelcomeData {
	t.Helper()

	env := awaitEnvelope(t, ctx, conn, "welcome", func(env rxEnvelope) bool {
		return env.Type == proto.OutboundTypeWelcome
	})
	var welcome proto.WelcomeData
	decodeInto(t, env.Data, &welcome)
	return welcome
}

// sendInbound writes one client frame.
func sendInbound(t *testing.T, ctx context.Context, conn *websocket.Conn, msgType string, data any) {
	t.Helper()

	payload, err := json.Marshal(data)
	if err != nil {
		t.Fatalf("marshal %s payload: %v", msgType, err)
	}
	if err := wsjson.Write(ctx, conn, proto.Inbound{Type: msgType, Data: payload}); err != nil {
		t.Fatalf("send %s: %v", msgType, err)
	}
}

// mustQuietWS asserts no frame matching the predicate arrives within the
// grace window. Non-matching frames are ignored.
func mustQuietWS(t *testing.T, conn *websocket.Conn, grace time.Duration, what string, match func(rxEnvelope) bool) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), grace)
	defer cancel()
	for {
		var env rxEnvelope
		if err := wsjson.Read(ctx, conn, &env); err != nil {
			return // timeout: nothing matched, as expected
		}
		if match(env) {
			t.Fatalf("unexpected %s: %+v", what, env)
		}
	}
}
