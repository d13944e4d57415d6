package config

// Config holds all application configuration.
// It organizes settings into logical groups for better maintainability.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"    validate:"required"`
	Database  DatabaseConfig  `mapstructure:"database"  validate:"required"`
	Auth      AuthConfig      `mapstructure:"auth"      validate:"required"`
	WebSocket WebSocketConfig `mapstructure:"websocket" validate:"required"`
}

// ServerConfig contains all HTTP server related configuration settings.
type ServerConfig struct {
	Port     int    `mapstructure:"port"      validate:"required,gt=0,lt=65536"`
	LogLevel string `mapstructure:"log_level" validate:"required,oneof=debug info warn error"`
}

// DatabaseConfig contains all database-related configuration settings.
type DatabaseConfig struct {
	URL string `mapstructure:"url" validate:"required"`
}

// AuthConfig contains all authentication and authorization settings.
type AuthConfig struct {
	// JWTSecret is the HMAC signing key for access and refresh tokens.
	// Must be at least 32 characters.
	JWTSecret string `mapstructure:"jwt_secret" validate:"required,min=32"`

	// TokenLifetimeMinutes is the access token lifetime in minutes.
	TokenLifetimeMinutes int `mapstructure:"token_lifetime_minutes" validate:"required,gt=0"`

	// RefreshTokenLifetimeMinutes is the refresh token lifetime in minutes.
	RefreshTokenLifetimeMinutes int `mapstructure:"refresh_token_lifetime_minutes" validate:"required,gt=0"`
}

// WebSocketConfig contains the realtime transport settings.
type WebSocketConfig struct {
	// AllowedOrigins restricts browser origins for the upgrade handshake.
	// Empty permits only same-host origins; a single "*" allows all.
	AllowedOrigins []string `mapstructure:"allowed_origins"`

	// SendBufferSize is the per-connection outbound queue length. A
	// connection whose queue is full when an event arrives is considered
	// stalled and is evicted. Must be positive: an unbuffered queue would
	// treat every concurrent delivery as a stall.
	SendBufferSize int `mapstructure:"send_buffer_size" validate:"required,gt=0"`

	// WriteTimeoutSeconds bounds a single frame write to a client.
	// Must be positive; a zero deadline fails every write immediately.
	WriteTimeoutSeconds int `mapstructure:"write_timeout_seconds" validate:"required,gt=0"`

	// PongTimeoutSeconds is how long a connection may stay silent (no pong,
	// no message) before it is considered dead. Must be positive; the ping
	// interval is derived from it.
	PongTimeoutSeconds int `mapstructure:"pong_timeout_seconds" validate:"required,gt=0"`

	// MaxMessageBytes limits the size of inbound client frames.
	MaxMessageBytes int64 `mapstructure:"max_message_bytes" validate:"gte=0"`

	// MaxConnectionsPerUser caps simultaneous connections per user (0 = unlimited).
	MaxConnectionsPerUser int `mapstructure:"max_connections_per_user" validate:"gte=0"`
}
