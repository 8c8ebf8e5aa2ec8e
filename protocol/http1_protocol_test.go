package protocol

import (
	"strings"
	"testing"
	"time"

	"github.com/nczempin/httpc-stream/errors"
)

func newTestProtocol(t *testing.T, tr *scriptedTransport, opts ...Option) *Http1Protocol {
	t.Helper()
	clock := &fakeClock{tick: time.Millisecond}
	opts = append([]Option{WithConfig(testConfig(t, clock))}, opts...)
	return NewHttp1Protocol(tr, opts...)
}

func TestHttp1Protocol_BuildRequest_DefaultHeaders(t *testing.T) {
	p := newTestProtocol(t, &scriptedTransport{})
	if err := p.Connect("example.com", 80); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}

	if err := p.buildRequest(&HttpRequest{Method: MethodGet, Path: "/index.html"}); err != nil {
		t.Fatalf("buildRequest failed: %v", err)
	}
	want := "GET /index.html HTTP/1.1\r\n" +
		"Host: example.com\r\n" +
		"User-Agent: httpc-stream\r\n" +
		"Connection: close\r\n" +
		"\r\n"
	if string(p.buffer) != want {
		t.Errorf("Expected request:\n%q\ngot:\n%q", want, p.buffer)
	}
}

func TestHttp1Protocol_BuildRequest_UserHeadersWin(t *testing.T) {
	p := newTestProtocol(t, &scriptedTransport{})
	p.Connect("example.com", 80)

	req := &HttpRequest{
		Method:    MethodGet,
		Path:      "/",
		KeepAlive: true,
		Headers: []HttpHeader{
			{Key: "host", Value: "other.example"},
			{Key: "User-Agent", Value: "custom/1.0"},
		},
	}
	if err := p.buildRequest(req); err != nil {
		t.Fatalf("buildRequest failed: %v", err)
	}
	got := string(p.buffer)
	if strings.Contains(got, "Host: example.com") {
		t.Error("Automatic Host should not be added when the request sets one")
	}
	if strings.Count(got, "User-Agent") != 1 || !strings.Contains(got, "User-Agent: custom/1.0\r\n") {
		t.Errorf("Expected only the custom User-Agent, got %q", got)
	}
	if !strings.Contains(got, "Connection: keep-alive\r\n") {
		t.Errorf("Expected keep-alive, got %q", got)
	}
}

func TestHttp1Protocol_BuildRequest_BodyAndRange(t *testing.T) {
	p := newTestProtocol(t, &scriptedTransport{})

	req := &HttpRequest{
		Method: MethodPost,
		Path:   "/upload",
		Body:   []byte("payload"),
		Range:  &ByteRange{Start: 10, End: 19},
	}
	if err := p.buildRequest(req); err != nil {
		t.Fatalf("buildRequest failed: %v", err)
	}
	got := string(p.buffer)
	for _, want := range []string{"POST /upload HTTP/1.1\r\n", "Range: bytes=10-19\r\n", "Content-Length: 7\r\n"} {
		if !strings.Contains(got, want) {
			t.Errorf("Expected %q in %q", want, got)
		}
	}
	if !strings.HasSuffix(got, "\r\n\r\npayload") {
		t.Errorf("Expected body after the blank line, got %q", got)
	}
}

func TestHttp1Protocol_BuildRequest_Invalid(t *testing.T) {
	p := newTestProtocol(t, &scriptedTransport{})

	cases := map[string]*HttpRequest{
		"empty path":     {Method: MethodGet},
		"reversed range": {Method: MethodGet, Path: "/", Range: &ByteRange{Start: 5, End: 1}},
		"negative range": {Method: MethodGet, Path: "/", Range: &ByteRange{Start: -1, End: 1}},
		"two bodies": {
			Method:    MethodPost,
			Path:      "/",
			Body:      []byte("x"),
			WriteBody: func(BodyWriter) error { return nil },
		},
	}
	for name, req := range cases {
		err := p.buildRequest(req)
		httpErr, ok := errors.As(err)
		if !ok || httpErr.Type != errors.ErrorInvalidArgument {
			t.Errorf("%s: expected invalid argument error, got %v", name, err)
		}
	}
}

func TestFindHeaderEnd(t *testing.T) {
	tests := []struct {
		in     string
		end    int
		sepLen int
	}{
		{"HTTP/1.1 200 OK\r\nA: b\r\n\r\nbody", 21, 4},
		{"HTTP/1.1 200 OK\nA: b\n\nbody", 20, 2},
		{"HTTP/1.1 200 OK\r\n\nbody", 15, 3},
		{"HTTP/1.1 200 OK\n\r\nbody", 15, 3},
		{"HTTP/1.1 200 OK\r\nA: b\r\n", -1, 0},
		{"HTTP/1.1 200 OK\r\n\r", -1, 0},
		{"", -1, 0},
	}
	for _, tc := range tests {
		end, sepLen := findHeaderEnd([]byte(tc.in))
		if end != tc.end || sepLen != tc.sepLen {
			t.Errorf("%q: expected (%d, %d), got (%d, %d)", tc.in, tc.end, tc.sepLen, end, sepLen)
		}
	}
}

func TestParseHead_Framing(t *testing.T) {
	tests := []struct {
		name   string
		head   string
		req    *HttpRequest
		length ContentLength
	}{
		{"content length", "HTTP/1.1 200 OK\r\nContent-Length: 42", nil, 42},
		{"chunked", "HTTP/1.1 200 OK\r\nTransfer-Encoding: Chunked", nil, LengthChunked},
		{"chunked wins", "HTTP/1.1 200 OK\r\nContent-Length: 3\r\nTransfer-Encoding: chunked", nil, LengthChunked},
		{"unknown", "HTTP/1.0 200 OK\r\nServer: test", nil, LengthUnknown},
		{"no content", "HTTP/1.1 204 No Content\r\nContent-Length: 10", nil, 0},
		{"not modified", "HTTP/1.1 304 Not Modified", nil, 0},
		{"informational", "HTTP/1.1 100 Continue", nil, 0},
		{"head", "HTTP/1.1 200 OK\r\nContent-Length: 100", &HttpRequest{Method: MethodHead}, 0},
	}
	for _, tc := range tests {
		resp, err := parseHead([]byte(tc.head), tc.req)
		if err != nil {
			t.Errorf("%s: parseHead failed: %v", tc.name, err)
			continue
		}
		if resp.ContentLength != tc.length {
			t.Errorf("%s: expected length %d, got %d", tc.name, tc.length, resp.ContentLength)
		}
	}
}

func TestParseHead_StatusAndHeaders(t *testing.T) {
	resp, err := parseHead([]byte("HTTP/1.1 404 Not Found\r\nX-One: 1\r\nx-two:  spaced value \r\n"), nil)
	if err != nil {
		t.Fatalf("parseHead failed: %v", err)
	}
	if resp.StatusCode != 404 || resp.StatusMessage != "Not Found" {
		t.Errorf("Expected 404 Not Found, got %d %s", resp.StatusCode, resp.StatusMessage)
	}
	if len(resp.Headers) != 2 {
		t.Fatalf("Expected 2 headers, got %d", len(resp.Headers))
	}
	if got := resp.Headers.Get("X-Two"); got != "spaced value" {
		t.Errorf("Expected trimmed value, got %q", got)
	}
}

func TestParseHead_Errors(t *testing.T) {
	tests := []struct {
		head string
		kind errors.ProtocolError
	}{
		{"FOO 200 OK", errors.ProtocolErrorInvalidStatusLine},
		{"HTTP/1.1", errors.ProtocolErrorInvalidStatusLine},
		{"HTTP/1.1 abc OK", errors.ProtocolErrorInvalidStatusLine},
		{"HTTP/1.1 99 Low", errors.ProtocolErrorInvalidStatusLine},
		{"HTTP/1.1 200 OK\r\nno colon here", errors.ProtocolErrorInvalidHeader},
		{"HTTP/1.1 200 OK\r\n: empty key", errors.ProtocolErrorInvalidHeader},
		{"HTTP/1.1 200 OK\r\nContent-Length: ten", errors.ProtocolErrorInvalidHeader},
		{"HTTP/1.1 200 OK\r\nContent-Length: -4", errors.ProtocolErrorInvalidHeader},
	}
	for _, tc := range tests {
		_, err := parseHead([]byte(tc.head), nil)
		if !errors.IsProtocolKind(err, tc.kind) {
			t.Errorf("%q: expected %v, got %v", tc.head, tc.kind, err)
		}
	}
}

func TestHttp1Protocol_PerformRequest_CachesOverRead(t *testing.T) {
	tr := &scriptedTransport{steps: join(
		[]step{recv("HTTP/1.1 200 OK\r\nContent-Length: 5\r\n\r\nhel")},
		stalled(10),
		[]step{recv("lo")},
	)}
	p := newTestProtocol(t, tr)

	resp, err := p.PerformRequest(&HttpRequest{Method: MethodGet, Path: "/"})
	if err != nil {
		t.Fatalf("PerformRequest failed: %v", err)
	}
	if resp.StatusCode != 200 || resp.ContentLength != 5 {
		t.Errorf("Expected 200 with length 5, got %d with %d", resp.StatusCode, resp.ContentLength)
	}

	res, err := resp.Body.ReadContent()
	if err != nil {
		t.Fatalf("ReadContent failed: %v", err)
	}
	if string(res.Body) != "hello" {
		t.Errorf("Expected %q, got %q", "hello", res.Body)
	}
	if resp.Body.CacheBytesServed() != 3 || resp.Body.NetworkBytesServed() != 2 {
		t.Errorf("Expected 3 cached and 2 network bytes, got %d and %d",
			resp.Body.CacheBytesServed(), resp.Body.NetworkBytesServed())
	}
	if !strings.HasPrefix(tr.written.String(), "GET / HTTP/1.1\r\n") {
		t.Errorf("Unexpected request %q", tr.written.String())
	}
}

func TestHttp1Protocol_PerformRequest_HeadersSplitAcrossReads(t *testing.T) {
	tr := &scriptedTransport{steps: bytewise("HTTP/1.1 200 OK\r\nTransfer-Encoding: chunked\r\n\r\n3\r\nabc\r\n0\r\n\r\n")}
	p := newTestProtocol(t, tr)

	resp, err := p.PerformRequest(&HttpRequest{Method: MethodGet, Path: "/"})
	if err != nil {
		t.Fatalf("PerformRequest failed: %v", err)
	}
	if !resp.Body.IsChunked() {
		t.Fatal("Expected a chunked body")
	}
	res, err := resp.Body.ReadBody()
	if err != nil {
		t.Fatalf("ReadBody failed: %v", err)
	}
	if string(res.Body) != "abc" {
		t.Errorf("Expected %q, got %q", "abc", res.Body)
	}
}

func TestHttp1Protocol_PerformRequest_OnHeader(t *testing.T) {
	tr := &scriptedTransport{steps: []step{recv("HTTP/1.1 200 OK\r\nA: 1\r\nB: 2\r\nContent-Length: 0\r\n\r\n")}}
	p := newTestProtocol(t, tr)

	var seen []string
	_, err := p.PerformRequest(&HttpRequest{
		Method: MethodGet,
		Path:   "/",
		OnHeader: func(key, value string) {
			seen = append(seen, key+"="+value)
		},
	})
	if err != nil {
		t.Fatalf("PerformRequest failed: %v", err)
	}
	want := "A=1,B=2,Content-Length=0"
	if got := strings.Join(seen, ","); got != want {
		t.Errorf("Expected %q, got %q", want, got)
	}
}

func TestHttp1Protocol_PerformRequest_WriteBody(t *testing.T) {
	tr := &scriptedTransport{steps: []step{recv("HTTP/1.1 201 Created\r\nContent-Length: 0\r\n\r\n")}}
	p := newTestProtocol(t, tr)

	resp, err := p.PerformRequest(&HttpRequest{
		Method:  MethodPost,
		Path:    "/items",
		Headers: []HttpHeader{{Key: "Content-Length", Value: "11"}},
		WriteBody: func(w BodyWriter) error {
			if _, err := w.Write([]byte("hello ")); err != nil {
				return err
			}
			_, err := w.Write([]byte("world"))
			return err
		},
	})
	if err != nil {
		t.Fatalf("PerformRequest failed: %v", err)
	}
	if resp.StatusCode != 201 {
		t.Errorf("Expected 201, got %d", resp.StatusCode)
	}
	if !strings.HasSuffix(tr.written.String(), "\r\n\r\nhello world") {
		t.Errorf("Expected streamed body after headers, got %q", tr.written.String())
	}
}

func TestHttp1Protocol_PerformRequest_HeadIgnoresLength(t *testing.T) {
	tr := &scriptedTransport{steps: []step{recv("HTTP/1.1 200 OK\r\nContent-Length: 100\r\n\r\n")}, stall: true}
	p := newTestProtocol(t, tr)

	resp, err := p.PerformRequest(&HttpRequest{Method: MethodHead, Path: "/"})
	if err != nil {
		t.Fatalf("PerformRequest failed: %v", err)
	}
	reads := tr.reads
	res, err := resp.Body.ReadContent()
	if err != nil || len(res.Body) != 0 {
		t.Errorf("Expected empty body, got %q, %v", res.Body, err)
	}
	if tr.reads != reads {
		t.Error("HEAD response body must not be read from the network")
	}
}

func TestHttp1Protocol_PerformRequest_HeaderTooLarge(t *testing.T) {
	huge := "HTTP/1.1 200 OK\r\nX-Big: " + strings.Repeat("a", 2*MinimumBufferSize)
	tr := &scriptedTransport{steps: []step{recv(huge)}}
	p := newTestProtocol(t, tr, WithProtocolBufferSize(MinimumBufferSize))

	_, err := p.PerformRequest(&HttpRequest{Method: MethodGet, Path: "/"})
	if !errors.IsProtocolKind(err, errors.ProtocolErrorHeaderTooLarge) {
		t.Fatalf("Expected HeaderTooLarge, got %v", err)
	}
}

func TestHttp1Protocol_PerformRequest_ClosedBeforeResponse(t *testing.T) {
	p := newTestProtocol(t, &scriptedTransport{})

	_, err := p.PerformRequest(&HttpRequest{Method: MethodGet, Path: "/"})
	if !errors.IsConnectionClosed(err) {
		t.Fatalf("Expected ConnectionClosed, got %v", err)
	}
}

func TestHttp1Protocol_PerformRequest_ClosedInsideHeaders(t *testing.T) {
	p := newTestProtocol(t, &scriptedTransport{steps: []step{recv("HTTP/1.1 200 OK\r\nContent-")}})

	_, err := p.PerformRequest(&HttpRequest{Method: MethodGet, Path: "/"})
	if !errors.IsProtocolKind(err, errors.ProtocolErrorInvalidHeader) {
		t.Fatalf("Expected InvalidHeader, got %v", err)
	}
}

func TestHttp1Protocol_PerformRequest_HeaderTimeout(t *testing.T) {
	tr := &scriptedTransport{stall: true}
	p := newTestProtocol(t, tr, WithHeaderTimeout(50*time.Millisecond))

	_, err := p.PerformRequest(&HttpRequest{Method: MethodGet, Path: "/"})
	httpErr, ok := errors.As(err)
	if !ok || httpErr.TransportErr != errors.TransportErrorTimeout {
		t.Fatalf("Expected header timeout, got %v", err)
	}
}

func TestHttp1Protocol_PerformRequestSafe_Gzip(t *testing.T) {
	body := gzipped(t, fox)
	head := "HTTP/1.1 200 OK\r\nContent-Encoding: gzip\r\nTransfer-Encoding: chunked\r\n\r\n"
	tr := &scriptedTransport{steps: []step{recv(head + chunk(body, 16))}}
	p := newTestProtocol(t, tr)

	resp, err := p.PerformRequestSafe(&HttpRequest{Method: MethodGet, Path: "/"}, WithDecompression())
	if err != nil {
		t.Fatalf("PerformRequestSafe failed: %v", err)
	}
	if string(resp.Body) != fox {
		t.Errorf("Expected %q, got %q", fox, resp.Body)
	}
	if resp.ContentLength != LengthChunked {
		t.Errorf("Expected chunked length marker, got %d", resp.ContentLength)
	}
}

func TestConfig_Normalize(t *testing.T) {
	cfg := Config{BufferSize: 10, IdleTimeout: -time.Second}.normalize()
	if cfg.BufferSize != MinimumBufferSize {
		t.Errorf("Expected buffer clamped to %d, got %d", MinimumBufferSize, cfg.BufferSize)
	}
	if cfg.IdleTimeout != 0 {
		t.Errorf("Expected negative idle timeout clamped to 0, got %v", cfg.IdleTimeout)
	}
	if cfg.HeaderTimeout != DefaultHeaderTimeout || cfg.Clock == nil || cfg.Logger == nil {
		t.Error("Expected defaults for unset fields")
	}

	cfg = Config{BufferSize: 10 * MaximumBufferSize}.normalize()
	if cfg.BufferSize != MaximumBufferSize {
		t.Errorf("Expected buffer clamped to %d, got %d", MaximumBufferSize, cfg.BufferSize)
	}
}
