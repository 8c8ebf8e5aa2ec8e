package protocol

import (
	"bufio"
	"compress/flate"
	"compress/gzip"
	"compress/zlib"
	"io"
	"strings"

	"github.com/nczempin/httpc-stream/errors"
)

// Encoding is a Content-Encoding the body can be decompressed from.
type Encoding int

const (
	EncodingIdentity Encoding = iota
	EncodingGzip
	EncodingDeflate
)

func (e Encoding) String() string {
	switch e {
	case EncodingGzip:
		return "gzip"
	case EncodingDeflate:
		return "deflate"
	default:
		return "identity"
	}
}

// ParseEncoding maps a Content-Encoding value to an Encoding. Anything other
// than gzip or deflate means no decompression.
func ParseEncoding(value string) Encoding {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "gzip":
		return EncodingGzip
	case "deflate":
		return EncodingDeflate
	default:
		return EncodingIdentity
	}
}

// decoder turns compressed payload pulled from src into decompressed
// segments. It belongs to a single read call and is closed by it.
type decoder struct {
	encoding Encoding
	src      io.Reader
	zr       io.ReadCloser
	out      []byte
	ended    bool
}

func newDecoder(encoding Encoding, src io.Reader, outSize int) *decoder {
	return &decoder{
		encoding: encoding,
		src:      src,
		out:      make([]byte, outSize),
	}
}

// open builds the decompressor on first use. gzip reads its header here.
func (d *decoder) open() error {
	switch d.encoding {
	case EncodingGzip:
		zr, err := gzip.NewReader(d.src)
		if err != nil {
			return err
		}
		// Stop at the end of the first member.
		zr.Multistream(false)
		d.zr = zr
	case EncodingDeflate:
		br := bufio.NewReader(d.src)
		if _, err := br.Peek(1); err != nil {
			// io.EOF here is an empty body, which is reported as such.
			return err
		}
		if isZlibHeader(br) {
			zr, err := zlib.NewReader(br)
			if err != nil {
				return err
			}
			d.zr = zr
		} else {
			d.zr = flate.NewReader(br)
		}
	}
	return nil
}

// isZlibHeader peeks for a zlib stream header (RFC 1950) so that "deflate"
// bodies work whether or not the server wrapped them.
func isZlibHeader(br *bufio.Reader) bool {
	hdr, err := br.Peek(2)
	if err != nil {
		return false
	}
	cmf, flg := hdr[0], hdr[1]
	return cmf&0x0f == 8 && cmf>>4 <= 7 && (uint16(cmf)<<8|uint16(flg))%31 == 0
}

// pump decodes until the compressed stream reports its logical end or the
// input runs out. The output buffer is drained into sink after every step.
func (d *decoder) pump(sink Sink) error {
	if d.ended {
		return nil
	}
	if d.zr == nil {
		if err := d.open(); err != nil {
			if err == io.EOF {
				// Empty body; nothing to decode.
				d.ended = true
				return nil
			}
			return err
		}
	}
	for {
		n, err := d.zr.Read(d.out)
		if n > 0 {
			if serr := sink.Accept(d.out[:n]); serr != nil {
				return serr
			}
		}
		if err == io.EOF {
			d.ended = true
			return nil
		}
		if err != nil {
			return err
		}
	}
}

// Close releases decoder state. Safe to call more than once.
func (d *decoder) Close() error {
	if d.zr == nil {
		return nil
	}
	err := d.zr.Close()
	d.zr = nil
	return err
}

func decompressionError(err error) error {
	return errors.NewDecompressionError("failed to decode body", err)
}
