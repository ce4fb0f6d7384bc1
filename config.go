package relay

import (
	"time"

	"golang.org/x/time/rate"
)

const (
	DefaultPort = 5555
	DefaultHost = "localhost"

	defaultDialTimeout  = 5 * time.Second
	defaultWriteTimeout = 10 * time.Second
	outboxSize          = 256
)

type (
	ServerConfig struct {
		// Network interface to listen on; "" listens on all interfaces.
		Endpoint string

		// TCP port for framed text clients.
		Port int

		// When nonzero, WebSocket clients are also accepted on this port at /ws.
		WsPort int

		// Inbound message limit applied to every connection. nil uses DefaultRateLimitConfig().
		RateLimit *RateLimitConfig

		WriteTimeout time.Duration
	}

	ClientConfig struct {
		Host         string
		Port         int
		DialTimeout  time.Duration
		WriteTimeout time.Duration
	}

	// RateLimitConfig defines the token bucket applied to each connection's
	// inbound messages. A connection that exceeds it is dropped.
	RateLimitConfig struct {
		MessagesPerSecond rate.Limit
		Burst             int
		Enabled           bool
	}
)

// Allows 100 messages per second with a burst of 200.
func DefaultRateLimitConfig() *RateLimitConfig {
	return &RateLimitConfig{
		MessagesPerSecond: 100,
		Burst:             200,
		Enabled:           true,
	}
}

func NoRateLimit() *RateLimitConfig {
	return &RateLimitConfig{Enabled: false}
}

func (rlc *RateLimitConfig) newLimiter() *rate.Limiter {
	if rlc == nil || !rlc.Enabled {
		return nil
	}
	return rate.NewLimiter(rlc.MessagesPerSecond, rlc.Burst)
}

func (cfg *ServerConfig) withDefaults() *ServerConfig {
	out := ServerConfig{}
	if cfg != nil {
		out = *cfg
	}
	if out.Port == 0 {
		out.Port = DefaultPort
	}
	if out.RateLimit == nil {
		out.RateLimit = DefaultRateLimitConfig()
	}
	if out.WriteTimeout <= 0 {
		out.WriteTimeout = defaultWriteTimeout
	}
	return &out
}

func (cfg *ClientConfig) withDefaults() *ClientConfig {
	out := ClientConfig{}
	if cfg != nil {
		out = *cfg
	}
	if out.Host == "" {
		out.Host = DefaultHost
	}
	if out.Port == 0 {
		out.Port = DefaultPort
	}
	if out.DialTimeout <= 0 {
		out.DialTimeout = defaultDialTimeout
	}
	if out.WriteTimeout <= 0 {
		out.WriteTimeout = defaultWriteTimeout
	}
	return &out
}
