package protocol

import "strings"

// HttpMethod represents HTTP request methods
type HttpMethod int

const (
	MethodGet HttpMethod = iota
	MethodPost
	MethodPut
	MethodDelete
	MethodHead
)

func (m HttpMethod) String() string {
	switch m {
	case MethodPost:
		return "POST"
	case MethodPut:
		return "PUT"
	case MethodDelete:
		return "DELETE"
	case MethodHead:
		return "HEAD"
	default:
		return "GET"
	}
}

// HttpHeader represents an HTTP header key-value pair
type HttpHeader struct {
	Key   string
	Value string
}

// Headers is an ordered header list with case-insensitive lookup.
type Headers []HttpHeader

// Get returns the first value for key, or "" if absent.
func (h Headers) Get(key string) string {
	v, _ := h.Lookup(key)
	return v
}

// Lookup returns the first value for key and whether it was present.
func (h Headers) Lookup(key string) (string, bool) {
	for _, header := range h {
		if strings.EqualFold(header.Key, key) {
			return header.Value, true
		}
	}
	return "", false
}

// Has reports whether key is present.
func (h Headers) Has(key string) bool {
	_, ok := h.Lookup(key)
	return ok
}

// BodyWriter streams a request body after the request headers are sent.
type BodyWriter interface {
	Write(p []byte) (int, error)
}

// ByteRange asks the server for bytes [Start, End] of the resource.
type ByteRange struct {
	Start int64
	End   int64
}

// HttpRequest represents an HTTP request
type HttpRequest struct {
	Method  HttpMethod
	Path    string
	Headers []HttpHeader
	Body    []byte

	// WriteBody, when set, is called after the headers are sent and writes
	// the body itself. No Content-Length is added for it.
	WriteBody func(w BodyWriter) error

	// KeepAlive adds "Connection: keep-alive" instead of "Connection: close".
	KeepAlive bool

	// Range, when set, adds a "Range: bytes=Start-End" header.
	Range *ByteRange

	// OnHeader, when set, is called for each response header in order.
	OnHeader func(key, value string)
}
