package ws

import "errors"

// Errors surfaced by the registry and dispatcher.
var (
	// ErrPersistence indicates the notification store write failed.
	// Publish aborts before any delivery is attempted.
	ErrPersistence = errors.New("notification persistence failed")

	// ErrRecipientResolution indicates the membership resolver failed, so the
	// recipient set could not be determined. Treated like a persistence
	// failure: the publish fails rather than delivering to a possibly-wrong
	// set.
	ErrRecipientResolution = errors.New("recipient resolution failed")

	// ErrDuplicateConnection indicates a connection ID was registered twice.
	// Connection IDs are generated per connection, so this is a programmer
	// error.
	ErrDuplicateConnection = errors.New("connection already registered")

	// ErrTooManyConnections indicates the per-user connection limit was hit.
	ErrTooManyConnections = errors.New("too many connections for user")

	// ErrRegistryClosed indicates the registry has been shut down.
	ErrRegistryClosed = errors.New("registry is closed")
)
