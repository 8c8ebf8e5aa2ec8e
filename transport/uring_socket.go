//go:build linux

package transport

import (
	stderrors "errors"
	"syscall"

	"github.com/iceber/iouring-go"
	"github.com/nczempin/httpc-stream/errors"
)

// ringSocket is a connected socket whose I/O is submitted through an
// iouring-go ring. Both the TCP and Unix io_uring transports embed it.
type ringSocket struct {
	iour   *iouring.IOURing
	fd     int
	closed bool
}

func newRingSocket() (ringSocket, error) {
	// Create io_uring instance with queue depth of 32
	iour, err := iouring.New(32)
	if err != nil {
		return ringSocket{}, errors.NewTransportError(
			errors.TransportErrorIoUringInit,
			"failed to initialize io_uring",
			err,
		)
	}

	return ringSocket{
		iour: iour,
		fd:   -1,
	}, nil
}

// attach adopts a connected fd and switches it to non-blocking mode so a
// receive with nothing pending completes with EAGAIN.
func (s *ringSocket) attach(fd int) error {
	if err := syscall.SetNonblock(fd, true); err != nil {
		syscall.Close(fd)
		return errors.NewTransportError(
			errors.TransportErrorSocketCreateFailure,
			"failed to set non-blocking mode",
			err,
		)
	}
	s.fd = fd
	s.closed = false
	return nil
}

func (s *ringSocket) checkOpen(kind errors.TransportError) error {
	if s.fd < 0 {
		return errors.NewTransportError(kind, "not connected", nil)
	}
	if s.closed {
		return errors.NewTransportError(
			errors.TransportErrorConnectionClosed,
			"connection closed",
			nil,
		)
	}
	return nil
}

func (s *ringSocket) write(buf []byte) (int, error) {
	if err := s.checkOpen(errors.TransportErrorSocketWriteFailure); err != nil {
		return 0, err
	}

	totalWritten := 0
	for totalWritten < len(buf) {
		ch := make(chan iouring.Result, 1)
		prepReq := iouring.Send(s.fd, buf[totalWritten:], 0)
		if _, err := s.iour.SubmitRequest(prepReq, ch); err != nil {
			return totalWritten, errors.NewTransportError(
				errors.TransportErrorIoUringSubmit,
				"failed to submit write request",
				err,
			)
		}

		result := <-ch
		n, err := result.ReturnInt()
		if err != nil {
			return totalWritten, errors.NewTransportError(
				errors.TransportErrorSocketWriteFailure,
				"write failed",
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

func (s *ringSocket) read(buf []byte) (int, error) {
	if err := s.checkOpen(errors.TransportErrorSocketReadFailure); err != nil {
		return 0, err
	}

	ch := make(chan iouring.Result, 1)
	prepReq := iouring.Recv(s.fd, buf, syscall.MSG_DONTWAIT)
	if _, err := s.iour.SubmitRequest(prepReq, ch); err != nil {
		return 0, errors.NewTransportError(
			errors.TransportErrorIoUringSubmit,
			"failed to submit read request",
			err,
		)
	}

	result := <-ch
	n, err := result.ReturnInt()
	if err != nil {
		if wouldBlock(err) {
			return 0, nil
		}
		return 0, errors.NewTransportError(
			errors.TransportErrorSocketReadFailure,
			"read failed",
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

func (s *ringSocket) close() error {
	if s.fd < 0 {
		return nil // Already closed or never connected
	}

	if !s.closed {
		s.closed = true
		fd := s.fd
		s.fd = -1
		if err := syscall.Close(fd); err != nil {
			return errors.NewTransportError(
				errors.TransportErrorSocketCloseFailure,
				"failed to close socket",
				err,
			)
		}
	}

	return nil
}

func (s *ringSocket) destroy() {
	s.close()
	if s.iour != nil {
		s.iour.Close()
		s.iour = nil
	}
}

// wouldBlock reports a receive that ended without data rather than failing.
func wouldBlock(err error) bool {
	return stderrors.Is(err, syscall.EAGAIN) ||
		stderrors.Is(err, syscall.EWOULDBLOCK) ||
		stderrors.Is(err, syscall.EINTR)
}
