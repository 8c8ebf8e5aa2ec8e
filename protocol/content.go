package protocol

import (
	"io"

	"go.uber.org/zap"

	"github.com/nczempin/httpc-stream/errors"
)

// contentReader reads a body delimited by Content-Length, or by the end of
// data when no length was declared.
type contentReader struct {
	s        *ResponseStream
	buf      []byte
	progress ProgressFunc
	finished bool
}

func newContentReader(s *ResponseStream, buf []byte, progress ProgressFunc) *contentReader {
	return &contentReader{s: s, buf: buf, progress: progress}
}

func (r *contentReader) next() ([]byte, error) {
	if r.finished {
		return nil, io.EOF
	}
	s := r.s

	toRead := len(r.buf)
	if s.length.Known() {
		remaining := int64(s.length) - s.bodyBytesRead
		if remaining <= 0 {
			r.finish()
			return nil, io.EOF
		}
		if remaining < int64(toRead) {
			toRead = int(remaining)
		}
	}

	n, err := s.fill(r.buf[:toRead])
	if err != nil {
		return nil, err
	}
	if n == 0 {
		// End of data.
		if s.length.Known() && s.bodyBytesRead < int64(s.length) {
			s.log.Warn("Body ended before declared length",
				zap.Int64("expected", int64(s.length)),
				zap.Int64("actual", s.bodyBytesRead))
			r.finished = true
			return nil, errors.NewIncompleteBodyError(int64(s.length), s.bodyBytesRead)
		}
		r.finish()
		return nil, io.EOF
	}

	s.bodyBytesRead += int64(n)
	s.report(r.progress)
	return r.buf[:n], nil
}

func (r *contentReader) finish() {
	r.finished = true
	r.s.done = true
}
