package ws

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/onetask/onetask-api/internal/config"
	"github.com/onetask/onetask-api/internal/domain"
	"github.com/onetask/onetask-api/internal/service/auth"
)

func testWebSocketConfig() config.WebSocketConfig {
	return config.WebSocketConfig{
		SendBufferSize:        16,
		WriteTimeoutSeconds:   5,
		PongTimeoutSeconds:    30,
		MaxMessageBytes:       64 * 1024,
		MaxConnectionsPerUser: 10,
	}
}

type handlerFixture struct {
	server      *httptest.Server
	registry    *Registry
	dispatcher  *Dispatcher
	store       *fakeNotificationStore
	memberships *fakeMembershipStore
}

func newHandlerFixture(t *testing.T, memberships *fakeMembershipStore) *handlerFixture {
	t.Helper()

	registry := NewRegistry(10, slog.Default())
	notifications := &fakeNotificationStore{}
	dispatcher := NewDispatcher(notifications, memberships, registry, nil, slog.Default())

	handler := NewHandler(
		auth.MustCreateTestJWTService(),
		memberships,
		registry,
		testWebSocketConfig(),
		slog.Default(),
	)

	r := chi.NewRouter()
	handler.RegisterRoutes(r)
	server := httptest.NewServer(r)
	t.Cleanup(server.Close)
	t.Cleanup(registry.Close)

	return &handlerFixture{
		server:      server,
		registry:    registry,
		dispatcher:  dispatcher,
		store:       notifications,
		memberships: memberships,
	}
}

// dial opens a WebSocket connection against the fixture server.
func (f *handlerFixture) dial(t *testing.T, path, token string) (*websocket.Conn, error) {
	t.Helper()
	url := strings.Replace(f.server.URL, "http", "ws", 1) + path
	if token != "" {
		url += "?token=" + token
	}
	ws, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if resp != nil && resp.Body != nil {
		defer func() { _ = resp.Body.Close() }()
	}
	if err == nil {
		t.Cleanup(func() { _ = ws.Close() })
	}
	return ws, err
}

// waitForConnections polls until the registry holds n connections for the
// user, since registration races the dialer's handshake completing.
func (f *handlerFixture) waitForConnections(t *testing.T, userID uuid.UUID, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if f.registry.ConnectionCount(userID) == n {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("registry never reached %d connections for user %s", n, userID)
}

// expectClose reads until the server closes the connection and returns the
// close code.
func expectClose(t *testing.T, ws *websocket.Conn) int {
	t.Helper()
	require.NoError(t, ws.SetReadDeadline(time.Now().Add(2*time.Second)))
	for {
		_, _, err := ws.ReadMessage()
		if err == nil {
			continue
		}
		closeErr, ok := err.(*websocket.CloseError)
		require.True(t, ok, "expected close error, got %v", err)
		return closeErr.Code
	}
}

func TestHandlerPersonalRoundTrip(t *testing.T) {
	t.Parallel()

	fixture := newHandlerFixture(t, &fakeMembershipStore{})
	userID := uuid.New()
	token, err := auth.GenerateTokenForTesting(userID)
	require.NoError(t, err)

	ws, err := fixture.dial(t, "/ws/notifications", token)
	require.NoError(t, err)
	fixture.waitForConnections(t, userID, 1)

	_, err = fixture.dispatcher.PublishSystemEvent(context.Background(), &domain.SystemNotice{
		TargetUserID: userID,
		Title:        "Welcome back",
		Content:      "You have 3 tasks due today",
	})
	require.NoError(t, err)

	require.NoError(t, ws.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, payload, err := ws.ReadMessage()
	require.NoError(t, err)

	decoded := decodePayload(t, payload)
	assert.Equal(t, "notification", decoded["type"])
	assert.Equal(t, "Welcome back", decoded["title"])

	// The row persisted regardless of delivery.
	assert.Len(t, fixture.store.rowsForUser(userID), 1)
}

func TestHandlerRejectsMissingToken(t *testing.T) {
	t.Parallel()

	fixture := newHandlerFixture(t, &fakeMembershipStore{})

	ws, err := fixture.dial(t, "/ws/notifications", "")
	require.NoError(t, err, "upgrade succeeds; rejection arrives as a close frame")

	assert.Equal(t, websocket.ClosePolicyViolation, expectClose(t, ws))
	assert.Equal(t, 0, fixture.registry.Len())
}

func TestHandlerRejectsExpiredToken(t *testing.T) {
	t.Parallel()

	fixture := newHandlerFixture(t, &fakeMembershipStore{})
	userID := uuid.New()
	token, err := auth.GenerateExpiredTokenForTesting(userID)
	require.NoError(t, err)

	ws, err := fixture.dial(t, "/ws/notifications", token)
	require.NoError(t, err)

	assert.Equal(t, websocket.ClosePolicyViolation, expectClose(t, ws))

	// Nothing was registered: a publish reaches zero connections.
	result, err := fixture.dispatcher.PublishSystemEvent(context.Background(), &domain.SystemNotice{
		TargetUserID: userID,
		Title:        "Missed",
	})
	require.NoError(t, err)
	assert.Equal(t, 0, result.DeliveredCount)
}

func TestHandlerWorkspaceMembershipGate(t *testing.T) {
	t.Parallel()

	workspaceID := uuid.New()
	member := uuid.New()
	outsider := uuid.New()
	fixture := newHandlerFixture(t, &fakeMembershipStore{
		workspaces: map[uuid.UUID][]uuid.UUID{
			workspaceID: {member},
		},
	})

	t.Run("member connects", func(t *testing.T) {
		token, err := auth.GenerateTokenForTesting(member)
		require.NoError(t, err)

		_, err = fixture.dial(t, "/ws/tasks/"+workspaceID.String(), token)
		require.NoError(t, err)
		fixture.waitForConnections(t, member, 1)
	})

	t.Run("outsider is refused", func(t *testing.T) {
		token, err := auth.GenerateTokenForTesting(outsider)
		require.NoError(t, err)

		ws, err := fixture.dial(t, "/ws/tasks/"+workspaceID.String(), token)
		require.NoError(t, err)
		assert.Equal(t, websocket.ClosePolicyViolation, expectClose(t, ws))
		assert.Equal(t, 0, fixture.registry.ConnectionCount(outsider))
	})

	t.Run("unknown workspace is refused", func(t *testing.T) {
		token, err := auth.GenerateTokenForTesting(member)
		require.NoError(t, err)

		ws, err := fixture.dial(t, "/ws/tasks/"+uuid.NewString(), token)
		require.NoError(t, err)
		assert.Equal(t, websocket.ClosePolicyViolation, expectClose(t, ws))
	})

	t.Run("malformed workspace id fails before upgrade", func(t *testing.T) {
		token, err := auth.GenerateTokenForTesting(member)
		require.NoError(t, err)

		_, err = fixture.dial(t, "/ws/tasks/not-a-uuid", token)
		assert.Error(t, err)
	})
}

func TestHandlerFocusSessionGate(t *testing.T) {
	t.Parallel()

	sessionID := uuid.New()
	participant := uuid.New()
	fixture := newHandlerFixture(t, &fakeMembershipStore{
		sessions: map[uuid.UUID][]uuid.UUID{
			sessionID: {participant},
		},
	})

	token, err := auth.GenerateTokenForTesting(participant)
	require.NoError(t, err)

	_, err = fixture.dial(t, "/ws/focus-session/"+sessionID.String(), token)
	require.NoError(t, err)
	fixture.waitForConnections(t, participant, 1)

	// A session-scoped connection still receives personal events.
	_, err = fixture.dispatcher.PublishLevelUp(context.Background(), &domain.LevelUp{
		UserID:   participant,
		NewLevel: 3,
	})
	require.NoError(t, err)
}

func TestOriginChecker(t *testing.T) {
	t.Parallel()

	request := func(origin, host string) *http.Request {
		r := httptest.NewRequest(http.MethodGet, "/ws/notifications", nil)
		r.Host = host
		if origin != "" {
			r.Header.Set("Origin", origin)
		}
		return r
	}

	t.Run("empty allowlist permits only same-host origins", func(t *testing.T) {
		t.Parallel()
		check := originChecker(nil)
		assert.True(t, check(request("", "app.onetask.io")), "non-browser client")
		assert.True(t, check(request("https://app.onetask.io", "app.onetask.io")))
		assert.False(t, check(request("https://evil.example", "app.onetask.io")))
		assert.False(t, check(request("not a url", "app.onetask.io")))
	})

	t.Run("allowlist entries match exactly", func(t *testing.T) {
		t.Parallel()
		check := originChecker([]string{"https://app.onetask.io"})
		assert.True(t, check(request("https://app.onetask.io", "api.onetask.io")))
		assert.True(t, check(request("HTTPS://APP.ONETASK.IO", "api.onetask.io")))
		assert.False(t, check(request("https://evil.example", "api.onetask.io")))
	})

	t.Run("wildcard opens every origin", func(t *testing.T) {
		t.Parallel()
		check := originChecker([]string{"*"})
		assert.True(t, check(request("https://anywhere.example", "api.onetask.io")))
	})
}

func TestHandlerRejectsForeignOrigin(t *testing.T) {
	t.Parallel()

	fixture := newHandlerFixture(t, &fakeMembershipStore{})
	userID := uuid.New()
	token, err := auth.GenerateTokenForTesting(userID)
	require.NoError(t, err)

	url := strings.Replace(fixture.server.URL, "http", "ws", 1) +
		"/ws/notifications?token=" + token
	header := http.Header{"Origin": []string{"https://evil.example"}}
	ws, resp, err := websocket.DefaultDialer.Dial(url, header)
	if resp != nil && resp.Body != nil {
		defer func() { _ = resp.Body.Close() }()
	}

	// The upgrade itself is refused; no close-frame handshake happens.
	require.Error(t, err)
	require.Nil(t, ws)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	assert.Equal(t, 0, fixture.registry.Len())
}

func TestHandlerDisconnectUnregisters(t *testing.T) {
	t.Parallel()

	fixture := newHandlerFixture(t, &fakeMembershipStore{})
	userID := uuid.New()
	token, err := auth.GenerateTokenForTesting(userID)
	require.NoError(t, err)

	ws, err := fixture.dial(t, "/ws/notifications", token)
	require.NoError(t, err)
	fixture.waitForConnections(t, userID, 1)

	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	require.NoError(t, ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second)))
	require.NoError(t, ws.Close())

	fixture.waitForConnections(t, userID, 0)
}
