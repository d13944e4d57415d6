package ws

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/onetask/onetask-api/internal/config"
	"github.com/onetask/onetask-api/internal/platform/logger"
	"github.com/onetask/onetask-api/internal/service/auth"
	"github.com/onetask/onetask-api/internal/store"
)

// Close reasons sent alongside close codes. Policy violations (1008) tell
// the client to re-authenticate; going-away (1001) means reconnect; internal
// error (1011) means retry later.
const (
	closeReasonAuthFailed     = "authentication failed"
	closeReasonNotMember      = "not a member"
	closeReasonMembershipFail = "membership resolution failed"
	closeReasonLimitExceeded  = "connection limit exceeded"
)

// Handler accepts WebSocket upgrade requests on the three scope endpoints,
// authenticates them, and owns each connection's lifetime: register on
// successful auth, guaranteed unregister on every exit path.
//
// The token is carried in the "token" query parameter because browser
// WebSocket clients cannot set custom headers on the upgrade request; an
// Authorization bearer header is honored as a fallback for non-browser
// clients. Authentication failures close the socket with a policy-violation
// code after the upgrade, so clients can observe the close code and know to
// re-authenticate rather than blindly reconnect.
type Handler struct {
	jwtService  auth.JWTService
	memberships store.MembershipStore
	registry    *Registry
	upgrader    websocket.Upgrader
	cfg         config.WebSocketConfig
	logger      *slog.Logger
}

// NewHandler creates a WebSocket handler wired to the given collaborators.
func NewHandler(
	jwtService auth.JWTService,
	memberships store.MembershipStore,
	registry *Registry,
	cfg config.WebSocketConfig,
	log *slog.Logger,
) *Handler {
	if log == nil {
		log = slog.Default()
	}
	return &Handler{
		jwtService:  jwtService,
		memberships: memberships,
		registry:    registry,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     originChecker(cfg.AllowedOrigins),
		},
		cfg:    cfg,
		logger: log.With(slog.String("component", "ws_handler")),
	}
}

// RegisterRoutes mounts the scope endpoints on the router.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/ws/notifications", h.HandleNotifications)
	r.Get("/ws/tasks/{workspaceID}", h.HandleWorkspaceTasks)
	r.Get("/ws/focus-session/{sessionID}", h.HandleFocusSession)
}

// HandleNotifications serves personal-scope connections.
func (h *Handler) HandleNotifications(w http.ResponseWriter, r *http.Request) {
	h.serve(w, r, func(ctx context.Context, userID uuid.UUID) (Scope, int, string) {
		return PersonalScope(), 0, ""
	})
}

// HandleWorkspaceTasks serves workspace-scope connections. Only the
// workspace's owner and members may connect.
func (h *Handler) HandleWorkspaceTasks(w http.ResponseWriter, r *http.Request) {
	workspaceID, err := uuid.Parse(chi.URLParam(r, "workspaceID"))
	if err != nil {
		http.Error(w, "invalid workspace ID", http.StatusBadRequest)
		return
	}

	h.serve(w, r, func(ctx context.Context, userID uuid.UUID) (Scope, int, string) {
		member, err := h.memberships.IsWorkspaceMember(ctx, workspaceID, userID)
		if err != nil {
			if store.IsNotFoundError(err) {
				return Scope{}, websocket.ClosePolicyViolation, closeReasonNotMember
			}
			return Scope{}, websocket.CloseInternalServerErr, closeReasonMembershipFail
		}
		if !member {
			return Scope{}, websocket.ClosePolicyViolation, closeReasonNotMember
		}
		return WorkspaceScope(workspaceID), 0, ""
	})
}

// HandleFocusSession serves session-scope connections. Only the session's
// host and participants may connect.
func (h *Handler) HandleFocusSession(w http.ResponseWriter, r *http.Request) {
	sessionID, err := uuid.Parse(chi.URLParam(r, "sessionID"))
	if err != nil {
		http.Error(w, "invalid session ID", http.StatusBadRequest)
		return
	}

	h.serve(w, r, func(ctx context.Context, userID uuid.UUID) (Scope, int, string) {
		participant, err := h.memberships.IsSessionParticipant(ctx, sessionID, userID)
		if err != nil {
			if store.IsNotFoundError(err) {
				return Scope{}, websocket.ClosePolicyViolation, closeReasonNotMember
			}
			return Scope{}, websocket.CloseInternalServerErr, closeReasonMembershipFail
		}
		if !participant {
			return Scope{}, websocket.ClosePolicyViolation, closeReasonNotMember
		}
		return SessionScope(sessionID), 0, ""
	})
}

// serve runs one connection through its lifecycle: upgrade, authenticate,
// resolve scope, register, pump until disconnect, then tear down. The
// deferred unregister runs on every exit path, so a connection is never
// leaked in the registry.
func (h *Handler) serve(
	w http.ResponseWriter,
	r *http.Request,
	resolveScope func(ctx context.Context, userID uuid.UUID) (Scope, int, string),
) {
	ctx := r.Context()
	log := logger.FromContextOrDefault(ctx, h.logger)

	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote an HTTP error response.
		log.Debug("websocket upgrade failed", slog.String("error", err.Error()))
		return
	}

	token := bearerToken(r)
	if token == "" {
		log.Debug("connection rejected: missing token")
		closeRaw(ws, websocket.ClosePolicyViolation, closeReasonAuthFailed)
		return
	}

	claims, err := h.jwtService.ValidateToken(ctx, token)
	if err != nil {
		log.Debug("connection rejected: invalid token", slog.String("error", err.Error()))
		closeRaw(ws, websocket.ClosePolicyViolation, closeReasonAuthFailed)
		return
	}

	scope, closeCode, closeReason := resolveScope(ctx, claims.UserID)
	if closeCode != 0 {
		log.Debug("connection rejected",
			slog.String("user_id", claims.UserID.String()),
			slog.String("reason", closeReason))
		closeRaw(ws, closeCode, closeReason)
		return
	}

	conn := newConn(ws, claims.UserID, scope, h.cfg, h.logger)
	if err := h.registry.Register(conn); err != nil {
		log.Warn("connection rejected by registry",
			slog.String("error", err.Error()),
			slog.String("user_id", claims.UserID.String()))
		closeRaw(ws, websocket.ClosePolicyViolation, closeReasonLimitExceeded)
		return
	}

	log.Info("connection opened",
		slog.String("connection_id", conn.ID().String()),
		slog.String("user_id", claims.UserID.String()),
		slog.String("scope", string(scope.Kind)))

	defer func() {
		h.registry.Unregister(conn.ID())
		conn.close(websocket.CloseNormalClosure, "")
		log.Info("connection closed",
			slog.String("connection_id", conn.ID().String()),
			slog.String("user_id", claims.UserID.String()))
	}()

	go conn.writePump()
	conn.readPump()
}

// bearerToken extracts the credential from the token query parameter, falling
// back to an Authorization bearer header.
func bearerToken(r *http.Request) string {
	if token := r.URL.Query().Get("token"); token != "" {
		return token
	}
	header := r.Header.Get("Authorization")
	if after, ok := strings.CutPrefix(header, "Bearer "); ok {
		return after
	}
	return ""
}

// closeRaw sends a close frame on a not-yet-registered connection and closes
// the transport. Used for rejections before the connection reaches the
// registry.
func closeRaw(ws *websocket.Conn, code int, reason string) {
	msg := websocket.FormatCloseMessage(code, reason)
	_ = ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(controlWriteTimeout))
	_ = ws.Close()
}

// originChecker builds the upgrade origin policy. With an empty allowlist
// only same-host origins are accepted; cross-origin browsers need an explicit
// allowlist entry, or "*" to open the endpoint to every origin. The token
// rides in a query parameter, so a permissive default would hand any website
// a scriptable cross-site connection.
// Requests without an Origin header (non-browser clients) are always allowed.
func originChecker(allowed []string) func(r *http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		if len(allowed) == 0 {
			u, err := url.Parse(origin)
			if err != nil {
				return false
			}
			return strings.EqualFold(u.Host, r.Host)
		}
		for _, a := range allowed {
			if a == "*" || strings.EqualFold(a, origin) {
				return true
			}
		}
		return false
	}
}
