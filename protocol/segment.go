package protocol

import "io"

// segmentSource yields raw payload segments in order. A segment is a view
// into the caller-owned working buffer and is only valid until the next
// call. io.EOF marks the end of the payload.
type segmentSource interface {
	next() ([]byte, error)
}

// segmentReader exposes a segmentSource as an io.Reader so a decompressor
// can pull payload from it. The first non-EOF error is kept in err so it is
// reported as itself rather than as a decoding failure.
type segmentReader struct {
	src     segmentSource
	pending []byte
	err     error
}

func (r *segmentReader) Read(p []byte) (int, error) {
	for len(r.pending) == 0 {
		if r.err != nil {
			return 0, r.err
		}
		seg, err := r.src.next()
		if err != nil {
			r.err = err
			return 0, err
		}
		r.pending = seg
	}
	n := copy(p, r.pending)
	r.pending = r.pending[n:]
	return n, nil
}

// failure returns the source's own error, ignoring a clean end of payload.
func (r *segmentReader) failure() error {
	if r.err == io.EOF {
		return nil
	}
	return r.err
}

// forward copies every segment from src into sink.
func forward(src segmentSource, sink Sink) error {
	for {
		seg, err := src.next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		if err := sink.Accept(seg); err != nil {
			return err
		}
	}
}

// drain consumes the rest of src, discarding payload but still validating
// framing and declared length.
func drain(src segmentSource) error {
	return forward(src, SinkFunc(func([]byte) error { return nil }))
}
