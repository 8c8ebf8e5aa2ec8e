package protocol

import (
	"bytes"
	"fmt"
	"io"
	"strconv"

	"go.uber.org/zap"

	"github.com/nczempin/httpc-stream/errors"
)

const (
	// MinimumChunkedBufferSize is the smallest working buffer the chunked
	// reader accepts; it must at least hold a chunk trailer and a short size line.
	MinimumChunkedBufferSize = 16

	// headerProbeSize is how much is requested when a size line is incomplete.
	// "0\r\n" is the shortest size line, so asking for more could stall on the
	// last chunk until the idle timeout.
	headerProbeSize = 3
	trailerSize     = 2
)

type chunkState int

const (
	awaitingHeader chunkState = iota
	inData
	awaitingTrailer
	chunkDone
)

func (s chunkState) String() string {
	switch s {
	case awaitingHeader:
		return "awaiting-header"
	case inData:
		return "in-data"
	case awaitingTrailer:
		return "awaiting-trailer"
	default:
		return "done"
	}
}

// chunkedReader decodes Transfer-Encoding: chunked framing. Unparsed bytes
// live in buf[offset:length]; everything before offset is consumed and is
// discarded by compact before each top-up.
type chunkedReader struct {
	s        *ResponseStream
	buf      []byte
	offset   int
	length   int
	state    chunkState
	remain   int64
	payload  int64
	progress ProgressFunc
	log      *zap.Logger
}

func newChunkedReader(s *ResponseStream, buf []byte, progress ProgressFunc) *chunkedReader {
	return &chunkedReader{
		s:        s,
		buf:      buf,
		state:    awaitingHeader,
		progress: progress,
		log:      s.log,
	}
}

func (r *chunkedReader) buffered() int {
	return r.length - r.offset
}

// compact moves the unconsumed region to the start of the buffer.
func (r *chunkedReader) compact() {
	if r.offset == 0 {
		return
	}
	copy(r.buf, r.buf[r.offset:r.length])
	r.length -= r.offset
	r.offset = 0
}

// topUp compacts and reads up to want more bytes. It reports false when the
// source had nothing more to give.
func (r *chunkedReader) topUp(want int64) (bool, error) {
	r.compact()
	room := len(r.buf) - r.length
	if room == 0 {
		// Only a size line can fill the whole buffer without a terminator.
		return false, errors.NewProtocolError(
			errors.ProtocolErrorChunkHeaderTooLong,
			"chunk header too long",
		)
	}
	n := room
	if want > 0 && want < int64(room) {
		n = int(want)
	}
	got, err := r.s.fill(r.buf[r.length : r.length+n])
	if err != nil {
		return false, err
	}
	if got == 0 {
		return false, nil
	}
	r.length += got
	r.s.bodyBytesRead += int64(got)
	r.s.report(r.progress)
	return true, nil
}

func (r *chunkedReader) unexpectedEOF() error {
	return errors.NewProtocolError(
		errors.ProtocolErrorUnexpectedEOF,
		fmt.Sprintf("unexpected end of stream while %s", r.state),
	)
}

func (r *chunkedReader) next() ([]byte, error) {
	for {
		switch r.state {
		case chunkDone:
			return nil, io.EOF

		case awaitingHeader:
			idx := bytes.IndexByte(r.buf[r.offset:r.length], '\n')
			if idx < 0 {
				ok, err := r.topUp(headerProbeSize)
				if err != nil {
					return nil, err
				}
				if !ok {
					if r.buffered() == 0 {
						// Nothing in flight: the stream simply ended.
						r.finish()
						return nil, io.EOF
					}
					return nil, r.unexpectedEOF()
				}
				continue
			}
			line := r.buf[r.offset : r.offset+idx+1]
			size, err := parseChunkSize(line)
			if err != nil {
				return nil, err
			}
			r.offset += idx + 1
			if size == 0 {
				// Trailers after the last chunk are left unread.
				r.finish()
				return nil, io.EOF
			}
			r.log.Debug("Chunk header", zap.Int64("size", size))
			r.state = inData
			r.remain = size

		case inData:
			if r.buffered() == 0 {
				ok, err := r.topUp(r.remain + trailerSize + headerProbeSize)
				if err != nil {
					return nil, err
				}
				if !ok {
					return nil, r.unexpectedEOF()
				}
				continue
			}
			take := r.buffered()
			if int64(take) > r.remain {
				take = int(r.remain)
			}
			seg := r.buf[r.offset : r.offset+take]
			r.offset += take
			r.remain -= int64(take)
			r.payload += int64(take)
			if r.remain == 0 {
				r.state = awaitingTrailer
			}
			return seg, nil

		case awaitingTrailer:
			if have := r.buffered(); have < trailerSize {
				ok, err := r.topUp(int64(trailerSize - have))
				if err != nil {
					return nil, err
				}
				if !ok {
					return nil, r.unexpectedEOF()
				}
				continue
			}
			if r.buf[r.offset] != '\r' || r.buf[r.offset+1] != '\n' {
				return nil, errors.NewProtocolError(
					errors.ProtocolErrorMissingChunkTrailer,
					fmt.Sprintf("expected CRLF after chunk data, got %q", r.buf[r.offset:r.offset+trailerSize]),
				)
			}
			r.offset += trailerSize
			r.state = awaitingHeader
		}
	}
}

func (r *chunkedReader) finish() {
	r.state = chunkDone
	r.s.done = true
}

// parseChunkSize parses "<hex>[;ext]\r\n". The size token ends at the first
// ';', '\r' or '\n'.
func parseChunkSize(line []byte) (int64, error) {
	end := bytes.IndexAny(line, ";\r\n")
	if end < 0 {
		end = len(line)
	}
	token := bytes.Trim(line[:end], " \t")
	if len(token) == 0 {
		return 0, errors.NewProtocolError(
			errors.ProtocolErrorInvalidChunkSize,
			"empty chunk size",
		)
	}
	size, err := strconv.ParseUint(string(token), 16, 63)
	if err != nil {
		return 0, errors.NewProtocolError(
			errors.ProtocolErrorInvalidChunkSize,
			fmt.Sprintf("invalid chunk size %q", token),
		)
	}
	return int64(size), nil
}
