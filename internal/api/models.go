package api

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/onetask/onetask-api/internal/domain"
)

// NotificationResponse is the API representation of a notification.
type NotificationResponse struct {
	ID                uuid.UUID       `json:"id"`
	Type              string          `json:"type"`
	Title             string          `json:"title"`
	Content           string          `json:"content"`
	RelatedEntityType string          `json:"related_entity_type,omitempty"`
	RelatedEntityID   *uuid.UUID      `json:"related_entity_id,omitempty"`
	Data              json.RawMessage `json:"data,omitempty"`
	Read              bool            `json:"read"`
	CreatedAt         time.Time       `json:"created_at"`
	ReadAt            *time.Time      `json:"read_at,omitempty"`
}

// NotificationListResponse wraps a page of notifications.
type NotificationListResponse struct {
	Notifications []NotificationResponse `json:"notifications"`
	Limit         int                    `json:"limit"`
	Offset        int                    `json:"offset"`
}

// UnreadCountResponse reports the number of unread notifications.
type UnreadCountResponse struct {
	Count int64 `json:"count"`
}

// MarkAllReadResponse reports how many notifications were marked read.
type MarkAllReadResponse struct {
	Updated int64 `json:"updated"`
}

// ToNotificationResponse converts a domain notification to its API shape.
func ToNotificationResponse(n *domain.Notification) NotificationResponse {
	return NotificationResponse{
		ID:                n.ID,
		Type:              string(n.Type),
		Title:             n.Title,
		Content:           n.Content,
		RelatedEntityType: n.RelatedEntityType,
		RelatedEntityID:   n.RelatedEntityID,
		Data:              n.Data,
		Read:              n.Read,
		CreatedAt:         n.CreatedAt,
		ReadAt:            n.ReadAt,
	}
}
