package protocol

import (
	"time"

	"go.uber.org/zap"

	"github.com/nczempin/httpc-stream/errors"
	"github.com/nczempin/httpc-stream/transport"
)

// origin says where a fill got its bytes from.
type origin int

const (
	originNone origin = iota
	originCache
	originNetwork
)

func (o origin) String() string {
	switch o {
	case originCache:
		return "cache"
	case originNetwork:
		return "network"
	default:
		return "none"
	}
}

// idleClock remembers when data last arrived.
type idleClock struct {
	now     Clock
	timeout time.Duration
	last    time.Time
}

func (c *idleClock) reset() {
	c.last = c.now()
}

// expired compares elapsed time, never absolute time, so a clock stuck at
// one instant simply never expires a non-zero timeout.
func (c *idleClock) expired() bool {
	return c.now().Sub(c.last) >= c.timeout
}

// recvWithRetry keeps calling Read until buf is full, the idle timeout
// passes without data, or the transport fails. It may return fewer bytes
// than len(buf), including zero, without an error.
func recvWithRetry(t transport.Transport, buf []byte, clock *idleClock) (int, error) {
	total := 0
	clock.reset()
	for total < len(buf) {
		n, err := t.Read(buf[total:])
		if err != nil {
			return total, err
		}
		if n > 0 {
			total += n
			clock.reset()
			continue
		}
		if clock.expired() {
			break
		}
	}
	return total, nil
}

// cachedSource replays body bytes captured while the headers were parsed.
type cachedSource struct {
	data   []byte
	offset int
}

func (c *cachedSource) remaining() int {
	return len(c.data) - c.offset
}

func (c *cachedSource) fill(buf []byte) int {
	n := copy(buf, c.data[c.offset:])
	c.offset += n
	return n
}

// networkSource reads from the transport through recvWithRetry.
type networkSource struct {
	transport transport.Transport
	clock     idleClock
	closed    bool
	log       *zap.Logger
}

func (s *networkSource) fill(buf []byte) (int, error) {
	if s.closed || len(buf) == 0 {
		return 0, nil
	}
	n, err := recvWithRetry(s.transport, buf, &s.clock)
	if err != nil {
		if errors.IsConnectionClosed(err) {
			// Peer close ends the data; later fills return nothing at once.
			s.closed = true
			return n, nil
		}
		s.log.Error("Failed to receive HTTP data",
			zap.Int("received", n),
			zap.Error(err))
		if _, ok := errors.As(err); ok {
			return n, err
		}
		return n, errors.NewTransportError(
			errors.TransportErrorSocketReadFailure,
			"transport receive failed",
			err,
		)
	}
	return n, nil
}

// bodySource serves cached bytes first and only then touches the network.
type bodySource struct {
	cache   cachedSource
	network networkSource

	cacheServed   int64
	networkServed int64
	networkFills  int64
}

// fill copies up to len(buf) bytes from exactly one origin.
func (s *bodySource) fill(buf []byte) (int, origin, error) {
	if len(buf) == 0 {
		return 0, originNone, nil
	}
	if s.cache.remaining() > 0 {
		n := s.cache.fill(buf)
		s.cacheServed += int64(n)
		return n, originCache, nil
	}
	s.networkFills++
	n, err := s.network.fill(buf)
	s.networkServed += int64(n)
	return n, originNetwork, err
}
