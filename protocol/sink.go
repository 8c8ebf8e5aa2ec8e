package protocol

import "github.com/valyala/bytebufferpool"

// Sink consumes decoded body bytes. p is only valid for the duration of the
// call; implementations that keep it must copy it. Returning an error
// abandons the read.
type Sink interface {
	Accept(p []byte) error
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(p []byte) error

// Accept calls f(p).
func (f SinkFunc) Accept(p []byte) error {
	return f(p)
}

// BufferSink accumulates everything it accepts in a pooled buffer.
type BufferSink struct {
	buf *bytebufferpool.ByteBuffer
}

// NewBufferSink returns an empty accumulating sink. Call Release when done.
func NewBufferSink() *BufferSink {
	return &BufferSink{buf: bytebufferpool.Get()}
}

// Accept appends p to the buffer.
func (s *BufferSink) Accept(p []byte) error {
	_, err := s.buf.Write(p)
	return err
}

// Len returns the number of bytes accumulated so far.
func (s *BufferSink) Len() int {
	if s.buf == nil {
		return 0
	}
	return s.buf.Len()
}

// Bytes returns a copy of the accumulated bytes.
func (s *BufferSink) Bytes() []byte {
	if s.buf == nil {
		return nil
	}
	out := make([]byte, s.buf.Len())
	copy(out, s.buf.B)
	return out
}

// Release returns the buffer to the pool. The sink must not be used after.
func (s *BufferSink) Release() {
	if s.buf != nil {
		bytebufferpool.Put(s.buf)
		s.buf = nil
	}
}

// countingSink forwards to a sink, counts delivered bytes and keeps the
// sink's own error apart from engine errors.
type countingSink struct {
	sink      Sink
	delivered int64
	err       error
}

func (c *countingSink) Accept(p []byte) error {
	if len(p) == 0 {
		return nil
	}
	if err := c.sink.Accept(p); err != nil {
		c.err = err
		return err
	}
	c.delivered += int64(len(p))
	return nil
}
