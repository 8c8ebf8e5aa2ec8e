package protocol

// ReadOption configures a single body read.
type ReadOption func(*readOptions)

type readOptions struct {
	sink       Sink
	progress   ProgressFunc
	bufferSize int
	encoding   Encoding
	decompress bool
}

// WithSink streams the body into sink instead of accumulating it.
func WithSink(sink Sink) ReadOption {
	return func(o *readOptions) { o.sink = sink }
}

// WithSinkFunc streams the body into f.
func WithSinkFunc(f func(p []byte) error) ReadOption {
	return WithSink(SinkFunc(f))
}

// WithProgress calls f after every fill that returned data.
func WithProgress(f ProgressFunc) ReadOption {
	return func(o *readOptions) { o.progress = f }
}

// WithBufferSize sets the working buffer capacity for this read.
func WithBufferSize(n int) ReadOption {
	return func(o *readOptions) { o.bufferSize = n }
}

// WithDecompression decodes the body according to its Content-Encoding
// header. Unrecognised encodings are passed through unchanged.
func WithDecompression() ReadOption {
	return func(o *readOptions) { o.decompress = true }
}

// WithEncoding decodes the body as e regardless of the response headers.
func WithEncoding(e Encoding) ReadOption {
	return func(o *readOptions) {
		o.encoding = e
		o.decompress = false
	}
}

func (s *ResponseStream) readOptions(opts []ReadOption, minBuffer int) readOptions {
	o := readOptions{bufferSize: s.cfg.BufferSize}
	for _, opt := range opts {
		opt(&o)
	}
	if o.bufferSize <= 0 {
		o.bufferSize = s.cfg.BufferSize
	}
	if o.bufferSize < minBuffer {
		o.bufferSize = minBuffer
	}
	return o
}
