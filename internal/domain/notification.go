package domain

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
)

// NotificationType classifies a notification for filtering and client rendering.
type NotificationType string

// Known notification types. These mirror the event variants that produce them.
const (
	NotificationTypeTask                NotificationType = "task"
	NotificationTypeWorkspace           NotificationType = "workspace"
	NotificationTypeSystem              NotificationType = "system"
	NotificationTypeAchievement         NotificationType = "achievement"
	NotificationTypeAchievementProgress NotificationType = "achievement_progress"
	NotificationTypeStreak              NotificationType = "streak"
	NotificationTypeLevelUp             NotificationType = "level_up"
)

// Notification-specific validation errors
var (
	// ErrNotificationIDEmpty is returned when a notification ID is empty or nil.
	ErrNotificationIDEmpty = errors.New("notification ID cannot be empty")

	// ErrNotificationUserIDEmpty is returned when a notification's recipient ID is empty or nil.
	ErrNotificationUserIDEmpty = errors.New("notification user ID cannot be empty")

	// ErrNotificationTitleEmpty is returned when a notification's title is empty.
	ErrNotificationTitleEmpty = errors.New("notification title cannot be empty")
)

// validNotificationTypes is the set of types accepted by Validate.
var validNotificationTypes = map[NotificationType]bool{
	NotificationTypeTask:                true,
	NotificationTypeWorkspace:           true,
	NotificationTypeSystem:              true,
	NotificationTypeAchievement:         true,
	NotificationTypeAchievementProgress: true,
	NotificationTypeStreak:              true,
	NotificationTypeLevelUp:             true,
}

// Notification is the durable projection of an event for one recipient.
// It is the system of record: live WebSocket delivery is a best-effort
// acceleration, a notification row always exists regardless of whether any
// connection was open at publish time. Read is the only mutable field.
type Notification struct {
	ID                uuid.UUID        `json:"id"`
	UserID            uuid.UUID        `json:"user_id"`
	Type              NotificationType `json:"type"`
	Title             string           `json:"title"`
	Content           string           `json:"content"`
	RelatedEntityType string           `json:"related_entity_type,omitempty"`
	RelatedEntityID   *uuid.UUID       `json:"related_entity_id,omitempty"`
	Data              json.RawMessage  `json:"data,omitempty"`
	Read              bool             `json:"read"`
	CreatedAt         time.Time        `json:"created_at"`
	ReadAt            *time.Time       `json:"read_at,omitempty"`
}

// NewNotification creates a Notification for the given recipient.
// It generates a new UUID and sets the creation timestamp.
// Returns an error if validation fails.
func NewNotification(
	userID uuid.UUID,
	typ NotificationType,
	title, content string,
) (*Notification, error) {
	n := &Notification{
		ID:        uuid.New(),
		UserID:    userID,
		Type:      typ,
		Title:     title,
		Content:   content,
		Read:      false,
		CreatedAt: time.Now().UTC(),
	}

	if err := n.Validate(); err != nil {
		return nil, err
	}

	return n, nil
}

// Validate checks if the Notification has valid data.
// Returns an error if any field fails validation.
func (n *Notification) Validate() error {
	if n.ID == uuid.Nil {
		return ErrNotificationIDEmpty
	}

	if n.UserID == uuid.Nil {
		return ErrNotificationUserIDEmpty
	}

	if n.Title == "" {
		return ErrNotificationTitleEmpty
	}

	if !validNotificationTypes[n.Type] {
		return ErrInvalidNotificationType
	}

	return nil
}

// MarkRead flips the read flag and records the read timestamp.
// Marking an already-read notification is a no-op.
func (n *Notification) MarkRead(at time.Time) {
	if n.Read {
		return
	}
	n.Read = true
	t := at.UTC()
	n.ReadAt = &t
}
