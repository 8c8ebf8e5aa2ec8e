package protocol

import (
	"bytes"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"github.com/nczempin/httpc-stream/errors"
)

// step is one scripted Read outcome: data, an empty read, or an error.
type step struct {
	data []byte
	err  error
}

func recv(s string) step { return step{data: []byte(s)} }
func idle() step { return step{} }

// scriptedTransport replays steps from Read and records writes. When the
// script runs out it reports a peer close, or empty reads if stall is set.
type scriptedTransport struct {
	steps   []step
	stall   bool
	reads   int
	written bytes.Buffer
	closed  bool
}

func (t *scriptedTransport) Connect(host string, port int) error { return nil }

func (t *scriptedTransport) Write(buf []byte) (int, error) {
	return t.written.Write(buf)
}

func (t *scriptedTransport) Read(buf []byte) (int, error) {
	t.reads++
	if len(t.steps) == 0 {
		if t.stall {
			return 0, nil
		}
		return 0, errors.NewTransportError(
			errors.TransportErrorConnectionClosed,
			"connection closed by peer",
			nil,
		)
	}
	st := &t.steps[0]
	if st.err != nil {
		t.steps = t.steps[1:]
		return 0, st.err
	}
	if len(st.data) == 0 {
		t.steps = t.steps[1:]
		return 0, nil
	}
	n := copy(buf, st.data)
	st.data = st.data[n:]
	if len(st.data) == 0 {
		t.steps = t.steps[1:]
	}
	return n, nil
}

func (t *scriptedTransport) Close() error {
	t.closed = true
	return nil
}

// bytewise splits s into one step per byte.
func bytewise(s string) []step {
	steps := make([]step, 0, len(s))
	for i := 0; i < len(s); i++ {
		steps = append(steps, recv(s[i:i+1]))
	}
	return steps
}

// fakeClock advances by tick on every reading.
type fakeClock struct {
	now  time.Time
	tick time.Duration
}

func (c *fakeClock) Now() time.Time {
	c.now = c.now.Add(c.tick)
	return c.now
}

func testConfig(t *testing.T, clock *fakeClock) Config {
	t.Helper()
	return Config{
		BufferSize:    DefaultBufferSize,
		IdleTimeout:   10 * time.Millisecond,
		HeaderTimeout: time.Second,
		Clock:         clock.Now,
		Logger:        zaptest.NewLogger(t),
	}
}

func newTestStream(t *testing.T, tr *scriptedTransport, cache string, length ContentLength, headers Headers) *ResponseStream {
	t.Helper()
	clock := &fakeClock{tick: time.Millisecond}
	var c []byte
	if cache != "" {
		c = []byte(cache)
	}
	return NewResponseStream(tr, c, length, headers, testConfig(t, clock))
}

// stalled returns n empty reads, enough to end one bounded read when n
// covers the idle timeout at the fake clock's tick.
func stalled(n int) []step {
	steps := make([]step, n)
	for i := range steps {
		steps[i] = idle()
	}
	return steps
}

func join(parts ...[]step) []step {
	var out []step
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}
