package transport

import "time"

// DefaultReadTimeout bounds how long a single Read waits for data before
// reporting that nothing is available yet. It is a poll interval: callers
// that want to wait longer call Read again.
const DefaultReadTimeout = 10 * time.Millisecond

// Transport defines the interface for network transports.
//
// Read follows the receive-primitive contract used by the response body
// engine: a positive count means bytes were placed at the start of buf,
// (0, nil) means no data arrived within the read timeout, and an error is a
// transport failure. A peer close is reported as TransportErrorConnectionClosed.
// The io_uring transports use non-blocking sockets and return (0, nil) as
// soon as no data is pending.
type Transport interface {
	// Connect establishes a connection to the specified host and port.
	// For Unix sockets, the host parameter is the socket path and port is ignored.
	Connect(host string, port int) error

	// Write sends data over the connection
	// Returns the number of bytes written
	Write(buf []byte) (int, error)

	// Read receives data from the connection
	// Returns the number of bytes read
	Read(buf []byte) (int, error)

	// Close closes the connection
	Close() error
}

// Option configures a transport.
type Option func(*options)

type options struct {
	readTimeout time.Duration
}

// WithReadTimeout sets how long a single Read blocks before returning (0, nil).
func WithReadTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.readTimeout = d
		}
	}
}

func buildOptions(opts []Option) options {
	o := options{readTimeout: DefaultReadTimeout}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}
