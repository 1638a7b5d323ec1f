package network

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/shehryarbajwa/devicecloud-mini/internal/metrics"
	"github.com/shehryarbajwa/devicecloud-mini/pkg/models"
)

// Executor performs authenticated REST calls.
type Executor interface {
	Perform(ctx context.Context, req Request, auth *models.Authentication) ([]byte, error)
}

// SocketFactory creates unopened message sockets.
type SocketFactory interface {
	MakeSocket(req Request, auth *models.Authentication) (Socket, error)
}

// Endpoints resolves the base URL (scheme and host) for a service.
type Endpoints interface {
	BaseURL(service Service, auth *models.Authentication) (string, error)
}

// StaticEndpoints serves every request from fixed base URLs.
type StaticEndpoints struct {
	API      string
	Accounts string
}

func (s StaticEndpoints) BaseURL(service Service, _ *models.Authentication) (string, error) {
	if service == ServiceAccounts && s.Accounts != "" {
		return s.Accounts, nil
	}
	return s.API, nil
}

var validSuccessCodes = map[int]bool{
	http.StatusOK:        true,
	http.StatusCreated:   true,
	http.StatusNoContent: true,
}

// Client executes requests over HTTP and dials message sockets.
type Client struct {
	httpClient *http.Client
	dialer     *websocket.Dialer
	endpoints  Endpoints
	logger     zerolog.Logger
}

// ClientOption customizes a Client.
type ClientOption func(*Client)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) { c.httpClient = hc }
}

// WithDialer replaces the default websocket dialer.
func WithDialer(d *websocket.Dialer) ClientOption {
	return func(c *Client) { c.dialer = d }
}

// WithLogger sets the client logger.
func WithLogger(l zerolog.Logger) ClientOption {
	return func(c *Client) { c.logger = l }
}

// NewClient creates a Client resolving hosts through endpoints.
func NewClient(endpoints Endpoints, opts ...ClientOption) *Client {
	c := &Client{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: 15 * time.Second,
		},
		endpoints: endpoints,
		logger:    zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Perform executes req and returns the raw response body. Requests that
// need a bearer token fail with ErrUnauthorized when auth is nil, without
// touching the network. 200, 201 and 204 are treated as success.
func (c *Client) Perform(ctx context.Context, req Request, auth *models.Authentication) (data []byte, err error) {
	defer func() { metrics.RecordRequest(req.Name, err) }()

	if !req.SkipAuth && auth == nil {
		return nil, ErrUnauthorized
	}

	target, err := c.resolve(req, auth, false)
	if err != nil {
		return nil, err
	}

	var body io.Reader
	if req.Body != nil {
		body = bytes.NewReader(req.Body)
	}
	httpReq, err := http.NewRequestWithContext(ctx, req.Method, target, body)
	if err != nil {
		return nil, &Error{Kind: KindInvalidURL, Err: err}
	}
	for k, v := range req.Headers {
		httpReq.Header.Set(k, v)
	}
	if httpReq.Header.Get("Content-Type") == "" {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	if !req.SkipAuth {
		httpReq.Header.Set("Authorization", "Bearer "+auth.Token.TokenID)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		c.logger.Error().Err(err).Str("request", req.Name).Msg("request failed")
		return nil, unknown(err)
	}
	defer resp.Body.Close()

	data, err = io.ReadAll(resp.Body)
	if err != nil {
		return nil, &Error{Kind: KindInvalidServerResponse, Err: err}
	}

	if !validSuccessCodes[resp.StatusCode] {
		c.logger.Debug().
			Str("request", req.Name).
			Int("status", resp.StatusCode).
			Str("response", string(data)).
			Msg("request failed")
		return nil, &Error{Kind: KindRequestFailure, StatusCode: resp.StatusCode, Body: data}
	}

	if req.Debug {
		c.logger.Debug().Str("request", req.Name).Str("response", string(data)).Msg("request succeeded")
	}
	return data, nil
}

// MakeSocket builds an unopened socket for req. The socket dials when
// Resume is called.
func (c *Client) MakeSocket(req Request, auth *models.Authentication) (Socket, error) {
	target, err := c.resolve(req, auth, true)
	if err != nil {
		return nil, err
	}

	header := http.Header{}
	for k, v := range req.Headers {
		header.Set(k, v)
	}
	if !req.SkipAuth && auth != nil {
		header.Set("Authorization", "Bearer "+auth.Token.TokenID)
	}

	return newWebSocket(c.dialer, target, header), nil
}

func (c *Client) resolve(req Request, auth *models.Authentication, socket bool) (string, error) {
	base, err := c.endpoints.BaseURL(req.Service, auth)
	if err != nil {
		return "", &Error{Kind: KindInvalidURL, Err: err}
	}

	u, err := url.Parse(strings.TrimRight(base, "/") + req.Path)
	if err != nil {
		return "", &Error{Kind: KindInvalidURL, Err: err}
	}
	if u.Host == "" {
		return "", &Error{Kind: KindInvalidURL, Err: fmt.Errorf("missing host in %q", base)}
	}
	if len(req.Query) > 0 {
		u.RawQuery = req.Query.Encode()
	}

	if socket {
		switch u.Scheme {
		case "https":
			u.Scheme = "wss"
		case "http":
			u.Scheme = "ws"
		}
	}
	return u.String(), nil
}

// Decode performs req and unmarshals the response body into T.
func Decode[T any](ctx context.Context, exec Executor, req Request, auth *models.Authentication) (T, error) {
	var out T
	data, err := exec.Perform(ctx, req, auth)
	if err != nil {
		return out, err
	}
	if err := json.Unmarshal(data, &out); err != nil {
		return out, &Error{Kind: KindParseFailure, Err: err}
	}
	return out, nil
}

// Send performs req and discards the response body.
func Send(ctx context.Context, exec Executor, req Request, auth *models.Authentication) error {
	_, err := exec.Perform(ctx, req, auth)
	return err
}
