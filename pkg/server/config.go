package server

import (
	"net/http"
	"time"
)

// Config holds the sync server's settings.
type Config struct {
	// Address is the listen address (default ":8420").
	Address string

	// ReadTimeout, WriteTimeout and IdleTimeout apply to the HTTP
	// server.
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration

	// ShutdownTimeout bounds graceful shutdown.
	ShutdownTimeout time.Duration

	// ReadBufferSize and WriteBufferSize size the websocket buffers.
	ReadBufferSize  int
	WriteBufferSize int

	// CheckOrigin validates websocket upgrade origins. The default
	// accepts same-origin requests only.
	CheckOrigin func(r *http.Request) bool

	// PingInterval is how often the live stream pings idle clients.
	PingInterval time.Duration

	// PongTimeout is how long to wait for a pong before dropping the
	// connection.
	PongTimeout time.Duration

	// SendBuffer is the per-session outbound event buffer. When a
	// client cannot keep up, excess events are dropped with a warning.
	SendBuffer int

	// EnableMetrics mounts Prometheus middleware and /metrics.
	EnableMetrics bool

	// EnableTracing mounts OpenTelemetry middleware.
	EnableTracing bool
}

// DefaultConfig returns the default server configuration.
func DefaultConfig() *Config {
	return &Config{
		Address:         ":8420",
		ReadTimeout:     15 * time.Second,
		WriteTimeout:    15 * time.Second,
		IdleTimeout:     60 * time.Second,
		ShutdownTimeout: 10 * time.Second,
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		PingInterval:    30 * time.Second,
		PongTimeout:     60 * time.Second,
		SendBuffer:      64,
	}
}

// withDefaults fills unset fields from DefaultConfig.
func (c *Config) withDefaults() *Config {
	if c == nil {
		return DefaultConfig()
	}
	defaults := DefaultConfig()
	if c.Address == "" {
		c.Address = defaults.Address
	}
	if c.ReadTimeout == 0 {
		c.ReadTimeout = defaults.ReadTimeout
	}
	if c.WriteTimeout == 0 {
		c.WriteTimeout = defaults.WriteTimeout
	}
	if c.IdleTimeout == 0 {
		c.IdleTimeout = defaults.IdleTimeout
	}
	if c.ShutdownTimeout == 0 {
		c.ShutdownTimeout = defaults.ShutdownTimeout
	}
	if c.ReadBufferSize == 0 {
		c.ReadBufferSize = defaults.ReadBufferSize
	}
	if c.WriteBufferSize == 0 {
		c.WriteBufferSize = defaults.WriteBufferSize
	}
	if c.PingInterval == 0 {
		c.PingInterval = defaults.PingInterval
	}
	if c.PongTimeout == 0 {
		c.PongTimeout = defaults.PongTimeout
	}
	if c.SendBuffer == 0 {
		c.SendBuffer = defaults.SendBuffer
	}
	return c
}
