package transport

import (
	"net"
	"time"

	httperrors "github.com/nczempin/httpc-stream/errors"
)

// UnixTransport implements the Transport interface using Unix domain sockets
type UnixTransport struct {
	conn        net.Conn
	readTimeout time.Duration
}

// NewUnixTransport creates a new UnixTransport instance
func NewUnixTransport(opts ...Option) *UnixTransport {
	o := buildOptions(opts)
	return &UnixTransport{
		conn:        nil,
		readTimeout: o.readTimeout,
	}
}

// Connect establishes a Unix domain socket connection to the specified path.
// The port parameter is ignored for Unix sockets.
func (t *UnixTransport) Connect(path string, port int) error {
	if t.conn != nil {
		return httperrors.NewTransportError(
			httperrors.TransportErrorSocketConnectFailure,
			"already connected",
			nil,
		)
	}

	conn, err := net.Dial("unix", path)
	if err != nil {
		return httperrors.NewTransportError(
			httperrors.TransportErrorSocketConnectFailure,
			"failed to connect to unix socket",
			err,
		)
	}

	t.conn = conn
	return nil
}

// Write sends data over the Unix domain socket
func (t *UnixTransport) Write(buf []byte) (int, error) {
	return writeConn(t.conn, buf)
}

// Read receives data from the Unix domain socket
func (t *UnixTransport) Read(buf []byte) (int, error) {
	return readConn(t.conn, buf, t.readTimeout)
}

// Close closes the Unix domain socket connection
func (t *UnixTransport) Close() error {
	return closeConn(&t.conn)
}
