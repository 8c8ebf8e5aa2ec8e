package transport

import (
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"syscall"
	"time"

	httperrors "github.com/nczempin/httpc-stream/errors"
)

// TcpTransport implements the Transport interface using TCP sockets
type TcpTransport struct {
	conn        net.Conn
	readTimeout time.Duration
}

// NewTcpTransport creates a new TcpTransport instance
func NewTcpTransport(opts ...Option) *TcpTransport {
	o := buildOptions(opts)
	return &TcpTransport{
		conn:        nil,
		readTimeout: o.readTimeout,
	}
}

// Connect establishes a TCP connection to the specified host and port
func (t *TcpTransport) Connect(host string, port int) error {
	if t.conn != nil {
		return httperrors.NewTransportError(
			httperrors.TransportErrorSocketConnectFailure,
			"already connected",
			nil,
		)
	}

	addr := net.JoinHostPort(host, fmt.Sprintf("%d", port))

	conn, err := net.Dial("tcp", addr)
	if err != nil {
		// Classify network errors using type assertions
		var dnsErr *net.DNSError
		if errors.As(err, &dnsErr) && (dnsErr.IsNotFound || dnsErr.IsTemporary) {
			return httperrors.NewTransportError(
				httperrors.TransportErrorDnsFailure,
				fmt.Sprintf("failed to resolve %s", addr),
				err,
			)
		}
		return httperrors.NewTransportError(
			httperrors.TransportErrorSocketConnectFailure,
			fmt.Sprintf("failed to connect to %s", addr),
			err,
		)
	}

	// Set TCP_NODELAY to disable Nagle's algorithm for lower latency
	if tcpConn, ok := conn.(*net.TCPConn); ok {
		if err := tcpConn.SetNoDelay(true); err != nil {
			conn.Close()
			return httperrors.NewTransportError(
				httperrors.TransportErrorSocketCreateFailure,
				"failed to set TCP_NODELAY",
				err,
			)
		}
	}

	t.conn = conn
	return nil
}

// Write sends data over the TCP connection
func (t *TcpTransport) Write(buf []byte) (int, error) {
	return writeConn(t.conn, buf)
}

// Read receives data from the TCP connection.
// It returns (0, nil) when nothing arrives within the read timeout.
func (t *TcpTransport) Read(buf []byte) (int, error) {
	return readConn(t.conn, buf, t.readTimeout)
}

// Close closes the TCP connection
func (t *TcpTransport) Close() error {
	return closeConn(&t.conn)
}

func writeConn(conn net.Conn, buf []byte) (int, error) {
	if conn == nil {
		return 0, httperrors.NewTransportError(
			httperrors.TransportErrorSocketWriteFailure,
			"not connected",
			nil,
		)
	}

	n, err := conn.Write(buf)
	if err != nil {
		// Check for broken pipe or connection reset
		if errors.Is(err, syscall.EPIPE) || errors.Is(err, syscall.ECONNRESET) {
			return n, httperrors.NewTransportError(
				httperrors.TransportErrorConnectionClosed,
				"connection closed during write",
				err,
			)
		}
		return n, httperrors.NewTransportError(
			httperrors.TransportErrorSocketWriteFailure,
			"write failed",
			err,
		)
	}

	return n, nil
}

func readConn(conn net.Conn, buf []byte, timeout time.Duration) (int, error) {
	if conn == nil {
		return 0, httperrors.NewTransportError(
			httperrors.TransportErrorSocketReadFailure,
			"not connected",
			nil,
		)
	}

	if err := conn.SetReadDeadline(time.Now().Add(timeout)); err != nil {
		return 0, httperrors.NewTransportError(
			httperrors.TransportErrorSocketReadFailure,
			"failed to set read deadline",
			err,
		)
	}

	n, err := conn.Read(buf)
	if err != nil {
		if errors.Is(err, os.ErrDeadlineExceeded) {
			// Nothing arrived in time; not a failure.
			return n, nil
		}
		if errors.Is(err, io.EOF) {
			if n > 0 {
				return n, nil
			}
			return 0, httperrors.NewTransportError(
				httperrors.TransportErrorConnectionClosed,
				"connection closed by peer",
				err,
			)
		}
		if errors.Is(err, syscall.ECONNRESET) {
			// A reset is not an orderly end of data.
			return n, httperrors.NewTransportError(
				httperrors.TransportErrorSocketReadFailure,
				"connection reset by peer",
				err,
			)
		}
		return n, httperrors.NewTransportError(
			httperrors.TransportErrorSocketReadFailure,
			"read failed",
			err,
		)
	}

	return n, nil
}

func closeConn(conn *net.Conn) error {
	if *conn == nil {
		return nil // Idempotent close
	}

	err := (*conn).Close()
	*conn = nil

	if err != nil {
		return httperrors.NewTransportError(
			httperrors.TransportErrorSocketCloseFailure,
			"failed to close socket",
			err,
		)
	}

	return nil
}
