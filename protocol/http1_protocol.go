package protocol

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/nczempin/httpc-stream/errors"
	"github.com/nczempin/httpc-stream/transport"
)

// Option configures an Http1Protocol.
type Option func(*Config)

// WithConfig replaces the whole configuration.
func WithConfig(cfg Config) Option {
	return func(c *Config) { *c = cfg }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(c *Config) { c.Logger = l }
}

// WithIdleTimeout sets the tolerated gap between non-empty receives.
func WithIdleTimeout(d time.Duration) Option {
	return func(c *Config) { c.IdleTimeout = d }
}

// WithHeaderTimeout bounds the wait for the status line and headers.
func WithHeaderTimeout(d time.Duration) Option {
	return func(c *Config) { c.HeaderTimeout = d }
}

// WithProtocolBufferSize sets the request, header and default body buffer size.
func WithProtocolBufferSize(n int) Option {
	return func(c *Config) { c.BufferSize = n }
}

// WithClock sets the time source used for timeouts.
func WithClock(clock Clock) Option {
	return func(c *Config) { c.Clock = clock }
}

// Response is a parsed status line and header section with a body that has
// not been read yet.
type Response struct {
	StatusCode    int
	StatusMessage string
	Headers       Headers
	ContentLength ContentLength
	Body          *ResponseStream
}

// Close releases the underlying transport.
func (r *Response) Close() error {
	if r.Body == nil {
		return nil
	}
	return r.Body.Close()
}

// HttpResponse represents a fully read HTTP response
type HttpResponse struct {
	StatusCode    int
	StatusMessage string
	Headers       Headers
	Body          []byte
	ContentLength ContentLength
}

// Http1Protocol implements HTTP/1.1 protocol over a transport
type Http1Protocol struct {
	transport transport.Transport
	cfg       Config
	log       *zap.Logger
	host      string
	buffer    []byte
}

// NewHttp1Protocol creates a new HTTP/1.1 protocol handler
func NewHttp1Protocol(t transport.Transport, opts ...Option) *Http1Protocol {
	cfg := DefaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	cfg = cfg.normalize()
	return &Http1Protocol{
		transport: t,
		cfg:       cfg,
		log:       cfg.Logger.Named("protocol.http1"),
		buffer:    make([]byte, 0, cfg.BufferSize),
	}
}

// Config returns the effective configuration.
func (p *Http1Protocol) Config() Config {
	return p.cfg
}

// Connect establishes a connection to the specified host and port
func (p *Http1Protocol) Connect(host string, port int) error {
	p.host = host
	return p.transport.Connect(host, port)
}

// Disconnect closes the connection
func (p *Http1Protocol) Disconnect() error {
	return p.transport.Close()
}

// buildRequest formats an HTTP request into the internal buffer
func (p *Http1Protocol) buildRequest(req *HttpRequest) error {
	if req.Path == "" {
		return errors.NewInvalidArgumentError("request path is empty")
	}
	if req.Body != nil && req.WriteBody != nil {
		return errors.NewInvalidArgumentError("request cannot have both Body and WriteBody")
	}

	p.buffer = p.buffer[:0] // Reset buffer

	// Request line
	p.buffer = append(p.buffer, fmt.Sprintf("%s %s HTTP/1.1\r\n", req.Method, req.Path)...)

	headers := Headers(req.Headers)
	if !headers.Has("Host") && p.host != "" {
		p.appendHeader("Host", p.host)
	}
	if !headers.Has("User-Agent") {
		p.appendHeader("User-Agent", UserAgent)
	}
	if !headers.Has("Connection") {
		if req.KeepAlive {
			p.appendHeader("Connection", "keep-alive")
		} else {
			p.appendHeader("Connection", "close")
		}
	}
	if req.Range != nil {
		if req.Range.Start < 0 || req.Range.End < 0 {
			return errors.NewInvalidArgumentError("range start and end must be non-negative")
		}
		if req.Range.Start > req.Range.End {
			return errors.NewInvalidArgumentError("range start is after range end")
		}
		p.appendHeader("Range", fmt.Sprintf("bytes=%d-%d", req.Range.Start, req.Range.End))
	}

	// Headers
	for _, header := range req.Headers {
		p.appendHeader(header.Key, header.Value)
	}
	if len(req.Body) > 0 && !headers.Has("Content-Length") {
		p.appendHeader("Content-Length", strconv.Itoa(len(req.Body)))
	}

	// Blank line
	p.buffer = append(p.buffer, "\r\n"...)

	if len(req.Body) > 0 {
		p.buffer = append(p.buffer, req.Body...)
	}
	return nil
}

func (p *Http1Protocol) appendHeader(key, value string) {
	p.buffer = append(p.buffer, key...)
	p.buffer = append(p.buffer, ": "...)
	p.buffer = append(p.buffer, value...)
	p.buffer = append(p.buffer, "\r\n"...)
}

// transportWriter writes all of p, looping over short writes.
type transportWriter struct {
	t transport.Transport
}

func (w transportWriter) Write(p []byte) (int, error) {
	written := 0
	for written < len(p) {
		n, err := w.t.Write(p[written:])
		written += n
		if err != nil {
			return written, err
		}
		if n == 0 {
			return written, errors.NewTransportError(
				errors.TransportErrorSocketWriteFailure,
				"transport accepted no bytes",
				nil,
			)
		}
	}
	return written, nil
}

// PerformRequest sends req and reads the status line and headers. The body
// is left on the wire for the returned Response.Body to read.
func (p *Http1Protocol) PerformRequest(req *HttpRequest) (*Response, error) {
	if err := p.buildRequest(req); err != nil {
		return nil, err
	}

	w := transportWriter{t: p.transport}
	if _, err := w.Write(p.buffer); err != nil {
		return nil, err
	}
	if req.WriteBody != nil {
		if err := req.WriteBody(w); err != nil {
			return nil, err
		}
	}

	stream := newStream(p.transport, p.cfg)
	resp, err := p.readHead(stream, req)
	if err != nil {
		return nil, err
	}
	p.log.Debug("Response head",
		zap.Int("status", resp.StatusCode),
		zap.Int64("content_length", int64(resp.ContentLength)),
		zap.Int("cached", stream.source.cache.remaining()))
	return resp, nil
}

// PerformRequestSafe performs an HTTP request and reads the whole body
func (p *Http1Protocol) PerformRequestSafe(req *HttpRequest, opts ...ReadOption) (*HttpResponse, error) {
	resp, err := p.PerformRequest(req)
	if err != nil {
		return nil, err
	}

	result, err := resp.Body.ReadBody(opts...)
	if err != nil {
		return nil, err
	}

	return &HttpResponse{
		StatusCode:    resp.StatusCode,
		StatusMessage: resp.StatusMessage,
		Headers:       resp.Headers,
		Body:          result.Body,
		ContentLength: resp.ContentLength,
	}, nil
}

// readHead receives until the end of the header section and hands any
// over-read body bytes to the stream as its cache.
func (p *Http1Protocol) readHead(stream *ResponseStream, req *HttpRequest) (*Response, error) {
	buf := make([]byte, p.cfg.BufferSize)
	filled := 0
	start := p.cfg.Clock()
	network := &stream.source.network

	for {
		if end, sepLen := findHeaderEnd(buf[:filled]); end >= 0 {
			resp, err := parseHead(buf[:end], req)
			if err != nil {
				return nil, err
			}
			bodyStart := end + sepLen
			stream.setHead(buf[bodyStart:filled], resp.ContentLength, resp.Headers)
			resp.Body = stream
			return resp, nil
		}

		if filled == len(buf) {
			return nil, errors.NewProtocolError(
				errors.ProtocolErrorHeaderTooLarge,
				fmt.Sprintf("response headers exceed %d bytes", len(buf)),
			)
		}

		n, err := network.fill(buf[filled:])
		if err != nil {
			return nil, err
		}
		filled += n
		if n > 0 {
			continue
		}

		if network.closed {
			if filled == 0 {
				return nil, errors.NewTransportError(
					errors.TransportErrorConnectionClosed,
					"connection closed before response",
					nil,
				)
			}
			return nil, errors.NewProtocolError(
				errors.ProtocolErrorInvalidHeader,
				"connection closed inside response headers",
			)
		}
		if p.cfg.Clock().Sub(start) >= p.cfg.HeaderTimeout {
			return nil, errors.NewTransportError(
				errors.TransportErrorTimeout,
				"timed out waiting for response headers",
				nil,
			)
		}
	}
}

// findHeaderEnd returns the offset of the blank line ending the header
// section and the length of its terminator, or -1. "\r\n\r\n", "\r\n\n",
// "\n\r\n" and "\n\n" are all accepted.
func findHeaderEnd(buf []byte) (int, int) {
	for i := 0; i < len(buf); i++ {
		if buf[i] != '\n' {
			continue
		}
		sepLen := 0
		if i+1 < len(buf) && buf[i+1] == '\n' {
			sepLen = 2
		} else if i+2 < len(buf) && buf[i+1] == '\r' && buf[i+2] == '\n' {
			sepLen = 3
		}
		if sepLen == 0 {
			continue
		}
		if i > 0 && buf[i-1] == '\r' {
			return i - 1, sepLen + 1
		}
		return i, sepLen
	}
	return -1, 0
}

// parseHead parses the status line and header fields.
func parseHead(head []byte, req *HttpRequest) (*Response, error) {
	lines := bytes.Split(head, []byte("\n"))
	statusLine := bytes.TrimSuffix(lines[0], []byte("\r"))

	// Parse status line: "HTTP/1.1 200 OK"
	statusParts := bytes.SplitN(statusLine, []byte(" "), 3)
	if len(statusParts) < 2 || !bytes.HasPrefix(statusParts[0], []byte("HTTP/")) {
		return nil, errors.NewProtocolError(
			errors.ProtocolErrorInvalidStatusLine,
			fmt.Sprintf("invalid status line %q", statusLine),
		)
	}

	statusCode, err := strconv.Atoi(string(statusParts[1]))
	if err != nil || statusCode < 100 || statusCode > 999 {
		return nil, errors.NewProtocolError(
			errors.ProtocolErrorInvalidStatusLine,
			fmt.Sprintf("invalid status code: %s", statusParts[1]),
		)
	}

	statusMessage := ""
	if len(statusParts) >= 3 {
		statusMessage = string(statusParts[2])
	}

	resp := &Response{
		StatusCode:    statusCode,
		StatusMessage: statusMessage,
		ContentLength: LengthUnknown,
	}

	chunked := false
	for _, line := range lines[1:] {
		line = bytes.TrimSuffix(line, []byte("\r"))
		if len(line) == 0 {
			continue
		}

		colon := bytes.IndexByte(line, ':')
		if colon <= 0 {
			return nil, errors.NewProtocolError(
				errors.ProtocolErrorInvalidHeader,
				fmt.Sprintf("malformed header line %q", line),
			)
		}
		key := string(bytes.TrimSpace(line[:colon]))
		value := string(bytes.TrimSpace(line[colon+1:]))
		resp.Headers = append(resp.Headers, HttpHeader{Key: key, Value: value})
		if req != nil && req.OnHeader != nil {
			req.OnHeader(key, value)
		}

		switch {
		case strings.EqualFold(key, "Content-Length"):
			n, err := strconv.ParseInt(value, 10, 64)
			if err != nil || n < 0 {
				return nil, errors.NewProtocolError(
					errors.ProtocolErrorInvalidHeader,
					fmt.Sprintf("invalid Content-Length %q", value),
				)
			}
			resp.ContentLength = ContentLength(n)
		case strings.EqualFold(key, "Transfer-Encoding"):
			if strings.EqualFold(value, "chunked") {
				chunked = true
			}
		}
	}

	if chunked {
		resp.ContentLength = LengthChunked
	}
	if bodyless(statusCode, req) {
		resp.ContentLength = 0
	}
	return resp, nil
}

// bodyless reports responses that never carry a body.
func bodyless(statusCode int, req *HttpRequest) bool {
	if req != nil && req.Method == MethodHead {
		return true
	}
	return statusCode < 200 || statusCode == 204 || statusCode == 304
}
