//go:build linux

package transport

import (
	"fmt"
	"net"
	"os"
	"syscall"

	"github.com/godzie44/go-uring/uring"
	"github.com/nczempin/httpc-stream/errors"
)

// UringTcpTransportV2 implements Transport using godzie44/go-uring for async I/O
type UringTcpTransportV2 struct {
	ring *uring.Ring
	fd   int
	file *os.File
}

// NewUringTcpTransportV2 creates a new TCP transport with io_uring (v2 using godzie44/go-uring)
func NewUringTcpTransportV2() (*UringTcpTransportV2, error) {
	// Create io_uring instance with queue depth of 32
	ring, err := uring.New(32)
	if err != nil {
		return nil, errors.NewTransportError(
			errors.TransportErrorIoUringInit,
			"failed to initialize io_uring",
			err,
		)
	}

	return &UringTcpTransportV2{
		ring: ring,
		fd:   -1,
	}, nil
}

// Connect establishes a TCP connection
func (t *UringTcpTransportV2) Connect(host string, port int) error {
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

	// Use blocking connect for now
	if err := syscall.Connect(fd, sa); err != nil {
		syscall.Close(fd)
		return errors.NewTransportError(
			errors.TransportErrorSocketConnectFailure,
			fmt.Sprintf("failed to connect to %s", addr),
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

	// Non-blocking so a read with nothing pending completes with EAGAIN
	if err := syscall.SetNonblock(fd, true); err != nil {
		syscall.Close(fd)
		return errors.NewTransportError(
			errors.TransportErrorSocketCreateFailure,
			"failed to set non-blocking mode",
			err,
		)
	}

	t.fd = fd
	t.file = os.NewFile(uintptr(fd), "socket")
	return nil
}

// sockFd is the raw descriptor for submissions. File.Fd would put the
// socket back into blocking mode.
func (t *UringTcpTransportV2) sockFd() uintptr {
	return uintptr(t.fd)
}

// submit queues one operation through queue and waits for its completion result.
func (t *UringTcpTransportV2) submit(queue func() error, failure errors.TransportError, verb string) (int, error) {
	if err := queue(); err != nil {
		return 0, errors.NewTransportError(
			errors.TransportErrorIoUringSubmit,
			fmt.Sprintf("failed to queue %s request", verb),
			err,
		)
	}

	if _, err := t.ring.Submit(); err != nil {
		return 0, errors.NewTransportError(
			errors.TransportErrorIoUringSubmit,
			fmt.Sprintf("failed to submit %s request", verb),
			err,
		)
	}

	cqe, err := t.ring.WaitCQEvents(1)
	if err != nil {
		return 0, errors.NewTransportError(
			failure,
			fmt.Sprintf("failed to wait for %s completion", verb),
			err,
		)
	}
	defer t.ring.SeenCQE(cqe)

	if err := cqe.Error(); err != nil {
		return 0, err
	}

	return int(cqe.Res), nil
}

// Write sends data over the connection using io_uring
func (t *UringTcpTransportV2) Write(buf []byte) (int, error) {
	if t.fd < 0 {
		return 0, errors.NewTransportError(
			errors.TransportErrorSocketWriteFailure,
			"not connected",
			nil,
		)
	}

	totalWritten := 0
	for totalWritten < len(buf) {
		n, err := t.submit(func() error {
			return t.ring.QueueSQE(uring.Write(t.sockFd(), buf[totalWritten:], 0), 0, 0)
		}, errors.TransportErrorSocketWriteFailure, "write")
		if err != nil {
			if _, ok := errors.As(err); ok {
				return totalWritten, err
			}
			return totalWritten, errors.NewTransportError(
				errors.TransportErrorSocketWriteFailure,
				"write operation failed",
				err,
			)
		}

		if n <= 0 {
			return totalWritten, errors.NewTransportError(
				errors.TransportErrorConnectionClosed,
				"connection closed during write",
				nil,
			)
		}

		totalWritten += n
	}

	return totalWritten, nil
}

// Read receives data from the connection using io_uring
func (t *UringTcpTransportV2) Read(buf []byte) (int, error) {
	if t.fd < 0 {
		return 0, errors.NewTransportError(
			errors.TransportErrorSocketReadFailure,
			"not connected",
			nil,
		)
	}

	n, err := t.submit(func() error {
		// A plain read op waits in the kernel for data whatever the socket mode.
		return t.ring.QueueSQE(uring.Recv(t.sockFd(), buf, syscall.MSG_DONTWAIT), 0, 0)
	}, errors.TransportErrorSocketReadFailure, "read")
	if err != nil {
		if _, ok := errors.As(err); ok {
			return 0, err
		}
		if wouldBlock(err) {
			return 0, nil
		}
		return 0, errors.NewTransportError(
			errors.TransportErrorSocketReadFailure,
			"read operation failed",
			err,
		)
	}

	if n == 0 && len(buf) > 0 {
		return 0, errors.NewTransportError(
			errors.TransportErrorConnectionClosed,
			"connection closed by peer",
			nil,
		)
	}

	return n, nil
}

// Close closes the connection
func (t *UringTcpTransportV2) Close() error {
	if t.fd < 0 {
		return nil
	}

	var err error
	if t.file != nil {
		err = t.file.Close()
		t.file = nil
	}
	t.fd = -1

	if err != nil {
		return errors.NewTransportError(
			errors.TransportErrorSocketCloseFailure,
			"failed to close socket",
			err,
		)
	}
	return nil
}

// Destroy cleans up resources including the io_uring instance
func (t *UringTcpTransportV2) Destroy() {
	t.Close()
	if t.ring != nil {
		t.ring.Close()
		t.ring = nil
	}
}
