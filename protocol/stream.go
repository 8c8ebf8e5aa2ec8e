package protocol

import (
	"fmt"
	"io"

	"go.uber.org/zap"

	"github.com/nczempin/httpc-stream/errors"
	"github.com/nczempin/httpc-stream/transport"
)

// ContentLength is a declared body length, or one of LengthUnknown and
// LengthChunked.
type ContentLength int64

const (
	LengthUnknown ContentLength = -1
	LengthChunked ContentLength = -2
)

// Known reports whether l is an actual byte count.
func (l ContentLength) Known() bool {
	return l >= 0
}

// Progress is passed to a ProgressFunc after every fill that returned data.
// Read counts body bytes taken from the wire, framing included for chunked
// bodies. Total is only meaningful when TotalKnown is set.
type Progress struct {
	Total      int64
	TotalKnown bool
	Read       int64
}

// ProgressFunc observes body reads.
type ProgressFunc func(p Progress)

// Result describes a completed or abandoned body read.
type Result struct {
	// Body holds the decoded body when no sink was supplied.
	Body []byte
	// Payload counts body bytes after removing chunk framing and before
	// decompression.
	Payload int64
	// Delivered counts bytes handed to the sink.
	Delivered int64
}

// ResponseStream reads the body of one HTTP/1.1 response from a transport.
// It is not safe for concurrent use.
type ResponseStream struct {
	cfg           Config
	log           *zap.Logger
	transport     transport.Transport
	source        bodySource
	headers       Headers
	length        ContentLength
	bodyBytesRead int64
	done          bool
}

// NewResponseStream creates a stream over t whose headers were already
// parsed. cache holds body bytes read along with the headers; it is replayed
// before any further network reads.
func NewResponseStream(t transport.Transport, cache []byte, length ContentLength, headers Headers, cfg Config) *ResponseStream {
	s := newStream(t, cfg)
	s.setHead(cache, length, headers)
	return s
}

func newStream(t transport.Transport, cfg Config) *ResponseStream {
	cfg = cfg.normalize()
	log := cfg.Logger.Named("protocol.stream")
	return &ResponseStream{
		cfg:       cfg,
		log:       log,
		transport: t,
		source: bodySource{
			network: networkSource{
				transport: t,
				clock:     idleClock{now: cfg.Clock, timeout: cfg.IdleTimeout},
				log:       log,
			},
		},
		length: LengthUnknown,
	}
}

func (s *ResponseStream) setHead(cache []byte, length ContentLength, headers Headers) {
	s.source.cache = cachedSource{data: cache}
	s.length = length
	s.headers = headers
}

// ContentLength returns the declared length, LengthUnknown or LengthChunked.
func (s *ResponseStream) ContentLength() ContentLength {
	return s.length
}

// IsChunked reports whether the body uses chunked transfer encoding.
func (s *ResponseStream) IsChunked() bool {
	return s.length == LengthChunked
}

// Headers returns the response headers.
func (s *ResponseStream) Headers() Headers {
	return s.headers
}

// Done reports whether the body has been read to its end.
func (s *ResponseStream) Done() bool {
	return s.done
}

// BytesRead returns how many body bytes were taken from the wire so far.
func (s *ResponseStream) BytesRead() int64 {
	return s.bodyBytesRead
}

// CacheBytesServed and NetworkBytesServed split BytesRead by origin.
func (s *ResponseStream) CacheBytesServed() int64   { return s.source.cacheServed }
func (s *ResponseStream) NetworkBytesServed() int64 { return s.source.networkServed }

func (s *ResponseStream) String() string {
	if s.IsChunked() {
		return "response (chunked)"
	}
	if !s.length.Known() {
		return "response (unknown length)"
	}
	return fmt.Sprintf("response (%d bytes)", int64(s.length))
}

// fill reads into buf from the cache or the network. A declared empty body
// never touches either.
func (s *ResponseStream) fill(buf []byte) (int, error) {
	if s.length == 0 {
		return 0, nil
	}
	n, from, err := s.source.fill(buf)
	if n > 0 {
		s.log.Debug("Body fill",
			zap.Stringer("origin", from),
			zap.Int("requested", len(buf)),
			zap.Int("received", n))
	}
	return n, err
}

func (s *ResponseStream) report(progress ProgressFunc) {
	if progress == nil {
		return
	}
	p := Progress{Read: s.bodyBytesRead}
	if s.length.Known() {
		p.Total = int64(s.length)
		p.TotalKnown = true
	}
	progress(p)
}

// ReadRaw performs one bounded read of at most maxBytes raw body bytes. No
// chunk decoding or decompression is applied. It returns io.EOF once the
// declared length has been read, there is no body, or the peer closed an
// unknown-length body. A peer close short of a declared length is an
// IncompleteBodyError. An empty slice with a nil error means nothing
// arrived before the idle timeout.
func (s *ResponseStream) ReadRaw(maxBytes int) ([]byte, error) {
	if maxBytes <= 0 {
		return nil, errors.NewInvalidArgumentError("maxBytes must be positive")
	}
	if s.done || s.length == 0 {
		return nil, io.EOF
	}
	if s.length.Known() {
		remaining := int64(s.length) - s.bodyBytesRead
		if remaining <= 0 {
			s.done = true
			return nil, io.EOF
		}
		if remaining < int64(maxBytes) {
			maxBytes = int(remaining)
		}
	}
	buf := make([]byte, maxBytes)
	n, err := s.fill(buf)
	s.bodyBytesRead += int64(n)
	if err != nil {
		return buf[:n], err
	}
	if n == 0 && s.source.cache.remaining() == 0 && s.source.network.closed {
		// The peer closed and nothing is left to replay.
		s.done = true
		if s.length.Known() {
			return nil, errors.NewIncompleteBodyError(int64(s.length), s.bodyBytesRead)
		}
		return nil, io.EOF
	}
	if s.length.Known() && s.bodyBytesRead >= int64(s.length) {
		s.done = true
	}
	return buf[:n], nil
}

// ReadContent reads the body up to the declared Content-Length, or until the
// end of data when no length was declared.
func (s *ResponseStream) ReadContent(opts ...ReadOption) (Result, error) {
	o := s.readOptions(opts, 1)
	buf := make([]byte, o.bufferSize)
	return s.pump(newContentReader(s, buf, o.progress), o)
}

// ReadChunkedContent reads a body framed with chunked transfer encoding.
func (s *ResponseStream) ReadChunkedContent(opts ...ReadOption) (Result, error) {
	o := s.readOptions(opts, MinimumChunkedBufferSize)
	buf := make([]byte, o.bufferSize)
	return s.pump(newChunkedReader(s, buf, o.progress), o)
}

// ReadBody picks ReadChunkedContent or ReadContent from the response framing.
func (s *ResponseStream) ReadBody(opts ...ReadOption) (Result, error) {
	if s.IsChunked() {
		return s.ReadChunkedContent(opts...)
	}
	return s.ReadContent(opts...)
}

// Close releases the transport. It is safe to call more than once.
func (s *ResponseStream) Close() error {
	if s.transport == nil {
		return nil
	}
	t := s.transport
	s.transport = nil
	s.source.network.closed = true
	return t.Close()
}

// pump drives src to the end, through a decoder when one is selected, and
// delivers the output to the chosen sink. The decoder is released on every
// exit path.
func (s *ResponseStream) pump(src segmentSource, o readOptions) (Result, error) {
	var res Result
	if s.done {
		return res, nil
	}

	var buffered *BufferSink
	sink := o.sink
	if sink == nil {
		buffered = NewBufferSink()
		defer buffered.Release()
		sink = buffered
	}
	counter := &countingSink{sink: sink}
	payload := &payloadCounter{src: src}

	err := s.decodeInto(payload, counter, o)

	res.Payload = payload.n
	res.Delivered = counter.delivered
	if buffered != nil && err == nil {
		res.Body = buffered.Bytes()
	}
	if err != nil {
		s.log.Debug("Body read failed",
			zap.Int64("payload", res.Payload),
			zap.Int64("delivered", res.Delivered),
			zap.Error(err))
	}
	return res, err
}

func (s *ResponseStream) decodeInto(src segmentSource, counter *countingSink, o readOptions) error {
	encoding := o.encoding
	if o.decompress {
		encoding = ParseEncoding(s.headers.Get("Content-Encoding"))
	}
	if encoding == EncodingIdentity {
		return forward(src, counter)
	}

	reader := &segmentReader{src: src}
	dec := newDecoder(encoding, reader, o.bufferSize)
	defer dec.Close()

	if err := dec.pump(counter); err != nil {
		if counter.err != nil {
			return counter.err
		}
		if ferr := reader.failure(); ferr != nil {
			return ferr
		}
		return decompressionError(err)
	}
	if ferr := reader.failure(); ferr != nil {
		return ferr
	}
	// The compressed stream ended; whatever follows is discarded.
	return drain(src)
}

// payloadCounter counts the raw payload bytes passed through it.
type payloadCounter struct {
	src segmentSource
	n   int64
}

func (p *payloadCounter) next() ([]byte, error) {
	seg, err := p.src.next()
	p.n += int64(len(seg))
	return seg, err
}
