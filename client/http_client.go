package client

import (
	"go.uber.org/zap"

	"github.com/nczempin/httpc-stream/errors"
	"github.com/nczempin/httpc-stream/protocol"
)

// HttpClient provides a high-level HTTP client API
type HttpClient struct {
	protocol *protocol.Http1Protocol
	log      *zap.Logger
}

// NewHttpClient creates a new HTTP client with the given protocol
func NewHttpClient(proto *protocol.Http1Protocol) *HttpClient {
	return &HttpClient{
		protocol: proto,
		log:      proto.Config().Logger.Named("client"),
	}
}

// Connect establishes a connection to the specified host and port
func (c *HttpClient) Connect(host string, port int) error {
	if err := c.protocol.Connect(host, port); err != nil {
		c.log.Error("Connect failed",
			zap.String("host", host),
			zap.Int("port", port),
			zap.Error(err))
		return err
	}
	return nil
}

// Disconnect closes the connection
func (c *HttpClient) Disconnect() error {
	return c.protocol.Disconnect()
}

// Get performs a GET request and returns the response with its body unread
func (c *HttpClient) Get(req *protocol.HttpRequest) (*protocol.Response, error) {
	if err := validateBodyless(req, "GET"); err != nil {
		return nil, err
	}
	req.Method = protocol.MethodGet
	return c.protocol.PerformRequest(req)
}

// GetSafe performs a GET request and reads the whole body.
// Read options such as protocol.WithDecompression apply to that body read.
func (c *HttpClient) GetSafe(req *protocol.HttpRequest, opts ...protocol.ReadOption) (*protocol.HttpResponse, error) {
	if err := validateBodyless(req, "GET"); err != nil {
		return nil, err
	}
	req.Method = protocol.MethodGet
	return c.protocol.PerformRequestSafe(req, opts...)
}

// Head performs a HEAD request. The returned response never has a body.
func (c *HttpClient) Head(req *protocol.HttpRequest) (*protocol.Response, error) {
	if err := validateBodyless(req, "HEAD"); err != nil {
		return nil, err
	}
	req.Method = protocol.MethodHead
	return c.protocol.PerformRequest(req)
}

// Post performs a POST request and returns the response with its body unread
func (c *HttpClient) Post(req *protocol.HttpRequest) (*protocol.Response, error) {
	if err := c.validatePostRequest(req); err != nil {
		return nil, err
	}
	req.Method = protocol.MethodPost
	return c.protocol.PerformRequest(req)
}

// PostSafe performs a POST request and reads the whole body
func (c *HttpClient) PostSafe(req *protocol.HttpRequest, opts ...protocol.ReadOption) (*protocol.HttpResponse, error) {
	if err := c.validatePostRequest(req); err != nil {
		return nil, err
	}
	req.Method = protocol.MethodPost
	return c.protocol.PerformRequestSafe(req, opts...)
}

// Do performs req with its own method
func (c *HttpClient) Do(req *protocol.HttpRequest) (*protocol.Response, error) {
	return c.protocol.PerformRequest(req)
}

func validateBodyless(req *protocol.HttpRequest, method string) error {
	if len(req.Body) > 0 || req.WriteBody != nil {
		return errors.NewInvalidArgumentError(method + " request cannot have a body")
	}
	return nil
}

// validatePostRequest validates that a POST request has a body
func (c *HttpClient) validatePostRequest(req *protocol.HttpRequest) error {
	if len(req.Body) == 0 && req.WriteBody == nil {
		return errors.NewInvalidArgumentError("POST request must have a body")
	}
	return nil
}
