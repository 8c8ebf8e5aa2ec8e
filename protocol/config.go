package protocol

import (
	"time"

	"go.uber.org/zap"
)

const (
	// DefaultBufferSize is the working buffer size used when none is given.
	DefaultBufferSize = 16384 // 16KB
	// MinimumBufferSize is the smallest request/header buffer accepted.
	MinimumBufferSize = 1024 // 1KB
	// MaximumBufferSize is the largest request/header buffer accepted.
	MaximumBufferSize = 1048576 // 1MB

	// DefaultIdleTimeout is the tolerated gap between non-empty receives.
	DefaultIdleTimeout = 10 * time.Millisecond
	// DefaultHeaderTimeout bounds how long the status line and headers may take.
	DefaultHeaderTimeout = 30 * time.Second

	// UserAgent is sent with every request that does not set its own.
	UserAgent = "httpc-stream"
)

// Clock returns the current time. Only differences between two readings are
// ever used, so a clock that always returns the same instant is valid.
type Clock func() time.Time

// SystemClock reads the wall clock.
func SystemClock() time.Time { return time.Now() }

// ZeroClock always returns the zero time. With it, elapsed time is always
// zero: only a zero IdleTimeout ends a stalled read, and the header phase
// waits until data or a transport error arrives.
func ZeroClock() time.Time { return time.Time{} }

// Config holds the settings shared by a protocol handler and the response
// streams it creates.
type Config struct {
	BufferSize    int
	IdleTimeout   time.Duration
	HeaderTimeout time.Duration
	Clock         Clock
	Logger        *zap.Logger
}

// DefaultConfig returns the configuration used when none is provided.
func DefaultConfig() Config {
	return Config{
		BufferSize:    DefaultBufferSize,
		IdleTimeout:   DefaultIdleTimeout,
		HeaderTimeout: DefaultHeaderTimeout,
		Clock:         SystemClock,
		Logger:        zap.NewNop(),
	}
}

// normalize fills zero fields with defaults and clamps the buffer size.
func (c Config) normalize() Config {
	d := DefaultConfig()
	if c.BufferSize <= 0 {
		c.BufferSize = d.BufferSize
	} else if c.BufferSize < MinimumBufferSize {
		c.BufferSize = MinimumBufferSize
	} else if c.BufferSize > MaximumBufferSize {
		c.BufferSize = MaximumBufferSize
	}
	if c.IdleTimeout < 0 {
		c.IdleTimeout = 0
	}
	if c.HeaderTimeout <= 0 {
		c.HeaderTimeout = d.HeaderTimeout
	}
	if c.Clock == nil {
		c.Clock = d.Clock
	}
	if c.Logger == nil {
		c.Logger = d.Logger
	}
	return c
}
