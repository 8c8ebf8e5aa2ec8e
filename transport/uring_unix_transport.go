//go:build linux

package transport

import (
	"syscall"

	"github.com/nczempin/httpc-stream/errors"
)

// UringUnixTransport implements Transport using Unix domain sockets with io_uring
type UringUnixTransport struct {
	ringSocket
}

// NewUringUnixTransport creates a new Unix domain socket transport with io_uring
func NewUringUnixTransport() (*UringUnixTransport, error) {
	sock, err := newRingSocket()
	if err != nil {
		return nil, err
	}
	return &UringUnixTransport{ringSocket: sock}, nil
}

// Connect establishes a connection to a Unix domain socket
// For Unix sockets, the host parameter is the socket path, and port is ignored
func (t *UringUnixTransport) Connect(path string, port int) error {
	if t.fd >= 0 {
		return errors.NewTransportError(
			errors.TransportErrorSocketConnectFailure,
			"already connected",
			nil,
		)
	}

	fd, err := syscall.Socket(syscall.AF_UNIX, syscall.SOCK_STREAM, 0)
	if err != nil {
		return errors.NewTransportError(
			errors.TransportErrorSocketCreateFailure,
			"failed to create socket",
			err,
		)
	}

	// Use blocking connect (io_uring connect support is limited)
	if err := syscall.Connect(fd, &syscall.SockaddrUnix{Name: path}); err != nil {
		syscall.Close(fd)
		return errors.NewTransportError(
			errors.TransportErrorSocketConnectFailure,
			"failed to connect to unix socket",
			err,
		)
	}

	return t.attach(fd)
}

// Write sends data over the Unix socket using io_uring
func (t *UringUnixTransport) Write(buf []byte) (int, error) {
	return t.write(buf)
}

// Read receives data from the Unix socket using io_uring
func (t *UringUnixTransport) Read(buf []byte) (int, error) {
	return t.read(buf)
}

// Close closes the Unix socket connection
func (t *UringUnixTransport) Close() error {
	return t.close()
}

// Destroy cleans up resources including the io_uring instance
func (t *UringUnixTransport) Destroy() {
	t.destroy()
}
