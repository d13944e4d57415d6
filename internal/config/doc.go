// Package config defines the application configuration structures and the
// logic to load them from environment variables and config files.
package config
