// Package api contains the HTTP handlers for the notification REST surface.
// The real-time delivery path lives in internal/ws; these handlers cover the
// persisted side of the same notifications (listing, unread counts, read
// state transitions).
package api
