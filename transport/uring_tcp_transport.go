//go:build linux

package transport

import (
	"fmt"
	"net"
	"syscall"

	"github.com/iceber/iouring-go"
	"github.com/nczempin/httpc-stream/errors"
)

// UringTcpTransport implements Transport using io_uring for async I/O
type UringTcpTransport struct {
	ringSocket
}

// NewUringTcpTransport creates a new TCP transport with io_uring
func NewUringTcpTransport() (*UringTcpTransport, error) {
	sock, err := newRingSocket()
	if err != nil {
		return nil, err
	}
	return &UringTcpTransport{ringSocket: sock}, nil
}

// Connect establishes a TCP connection using io_uring
func (t *UringTcpTransport) Connect(host string, port int) error {
	if t.fd >= 0 {
		return errors.NewTransportError(
			errors.TransportErrorSocketConnectFailure,
			"already connected",
			nil,
		)
	}

	// Resolve the address
	addr := net.JoinHostPort(host, fmt.Sprintf("%d", port))
	tcpAddr, err := net.ResolveTCPAddr("tcp", addr)
	if err != nil {
		return errors.NewTransportError(
			errors.TransportErrorDnsFailure,
			fmt.Sprintf("failed to resolve %s", addr),
			err,
		)
	}

	sa, family := sockaddrFor(tcpAddr)

	fd, err := syscall.Socket(family, syscall.SOCK_STREAM, 0)
	if err != nil {
		return errors.NewTransportError(
			errors.TransportErrorSocketCreateFailure,
			"failed to create socket",
			err,
		)
	}

	// Set TCP_NODELAY
	if err := syscall.SetsockoptInt(fd, syscall.IPPROTO_TCP, syscall.TCP_NODELAY, 1); err != nil {
		syscall.Close(fd)
		return errors.NewTransportError(
			errors.TransportErrorSocketCreateFailure,
			"failed to set TCP_NODELAY",
			err,
		)
	}

	// Submit connect operation via io_uring
	ch := make(chan iouring.Result, 1)
	prepReq, err := iouring.Connect(fd, sa)
	if err != nil {
		syscall.Close(fd)
		return errors.NewTransportError(
			errors.TransportErrorIoUringSubmit,
			"failed to prepare connect request",
			err,
		)
	}
	if _, err := t.iour.SubmitRequest(prepReq, ch); err != nil {
		syscall.Close(fd)
		return errors.NewTransportError(
			errors.TransportErrorIoUringSubmit,
			"failed to submit connect request",
			err,
		)
	}

	// Connect completions carry only an error, no return value
	result := <-ch
	if err := result.Err(); err != nil {
		syscall.Close(fd)
		return errors.NewTransportError(
			errors.TransportErrorSocketConnectFailure,
			fmt.Sprintf("failed to connect to %s", addr),
			err,
		)
	}

	return t.attach(fd)
}

// Write sends data over the connection using io_uring
func (t *UringTcpTransport) Write(buf []byte) (int, error) {
	return t.write(buf)
}

// Read receives data from the connection using io_uring
func (t *UringTcpTransport) Read(buf []byte) (int, error) {
	return t.read(buf)
}

// Close closes the connection
func (t *UringTcpTransport) Close() error {
	return t.close()
}

// Destroy cleans up resources including the io_uring instance
func (t *UringTcpTransport) Destroy() {
	t.destroy()
}

func sockaddrFor(tcpAddr *net.TCPAddr) (syscall.Sockaddr, int) {
	if ip4 := tcpAddr.IP.To4(); ip4 != nil {
		sa4 := &syscall.SockaddrInet4{Port: tcpAddr.Port}
		copy(sa4.Addr[:], ip4)
		return sa4, syscall.AF_INET
	}
	sa6 := &syscall.SockaddrInet6{Port: tcpAddr.Port}
	copy(sa6.Addr[:], tcpAddr.IP.To16())
	return sa6, syscall.AF_INET6
}
