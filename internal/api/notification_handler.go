package api

import (
	"log/slog"
	"net/http"

	"github.com/onetask/onetask-api/internal/api/shared"
	"github.com/onetask/onetask-api/internal/platform/logger"
	"github.com/onetask/onetask-api/internal/store"
)

// maxListLimit caps the page size a client may request.
const maxListLimit = 200

// NotificationHandler handles the notification REST endpoints.
type NotificationHandler struct {
	notificationStore store.NotificationStore
	logger            *slog.Logger
}

// NewNotificationHandler creates a new NotificationHandler with the given dependencies.
func NewNotificationHandler(
	notificationStore store.NotificationStore,
	log *slog.Logger,
) *NotificationHandler {
	if log == nil {
		log = slog.Default()
	}
	return &NotificationHandler{
		notificationStore: notificationStore,
		logger:            log.With(slog.String("component", "notification_handler")),
	}
}

// List handles GET /api/notifications.
// Supports unread_only, limit, and offset query parameters.
func (h *NotificationHandler) List(w http.ResponseWriter, r *http.Request) {
	userID, ok := getUserIDFromContext(w, r)
	if !ok {
		return
	}

	opts := store.ListOptions{
		UnreadOnly: queryBool(r, "unread_only"),
		Limit:      queryInt(r, "limit", 0),
		Offset:     queryInt(r, "offset", 0),
	}
	if opts.Limit > maxListLimit {
		opts.Limit = maxListLimit
	}

	notifications, err := h.notificationStore.ListByUser(r.Context(), userID, opts)
	if err != nil {
		shared.RespondWithErrorAndLog(w, r,
			MapErrorToStatusCode(err), GetSafeErrorMessage(err), err)
		return
	}

	responses := make([]NotificationResponse, 0, len(notifications))
	for _, n := range notifications {
		responses = append(responses, ToNotificationResponse(n))
	}

	shared.RespondWithJSON(w, r, http.StatusOK, NotificationListResponse{
		Notifications: responses,
		Limit:         opts.Limit,
		Offset:        opts.Offset,
	})
}

// UnreadCount handles GET /api/notifications/unread-count.
func (h *NotificationHandler) UnreadCount(w http.ResponseWriter, r *http.Request) {
	userID, ok := getUserIDFromContext(w, r)
	if !ok {
		return
	}

	count, err := h.notificationStore.CountUnread(r.Context(), userID)
	if err != nil {
		shared.RespondWithErrorAndLog(w, r,
			MapErrorToStatusCode(err), GetSafeErrorMessage(err), err)
		return
	}

	shared.RespondWithJSON(w, r, http.StatusOK, UnreadCountResponse{Count: count})
}

// MarkRead handles POST /api/notifications/{id}/read.
// The update is scoped to the authenticated user, so marking another user's
// notification returns 404 rather than revealing its existence.
func (h *NotificationHandler) MarkRead(w http.ResponseWriter, r *http.Request) {
	userID, ok := getUserIDFromContext(w, r)
	if !ok {
		return
	}

	notificationID, ok := getPathUUID(w, r, "id")
	if !ok {
		return
	}

	if err := h.notificationStore.MarkRead(r.Context(), userID, notificationID); err != nil {
		shared.RespondWithErrorAndLog(w, r,
			MapErrorToStatusCode(err), GetSafeErrorMessage(err), err)
		return
	}

	log := logger.FromContextOrDefault(r.Context(), h.logger)
	log.Debug("notification marked read",
		slog.String("notification_id", notificationID.String()),
		slog.String("user_id", userID.String()))

	w.WriteHeader(http.StatusNoContent)
}

// MarkAllRead handles POST /api/notifications/read-all.
func (h *NotificationHandler) MarkAllRead(w http.ResponseWriter, r *http.Request) {
	userID, ok := getUserIDFromContext(w, r)
	if !ok {
		return
	}

	updated, err := h.notificationStore.MarkAllRead(r.Context(), userID)
	if err != nil {
		shared.RespondWithErrorAndLog(w, r,
			MapErrorToStatusCode(err), GetSafeErrorMessage(err), err)
		return
	}

	log := logger.FromContextOrDefault(r.Context(), h.logger)
	log.Debug("all notifications marked read",
		slog.String("user_id", userID.String()),
		slog.Int64("updated", updated))

	shared.RespondWithJSON(w, r, http.StatusOK, MarkAllReadResponse{Updated: updated})
}
