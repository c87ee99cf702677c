package gateway

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// DefaultHost is the gateway address used when none is configured.
const DefaultHost = "http://192.168.0.38"

// maxResponseBody bounds how much of a REST response body is kept.
const maxResponseBody = 64 * 1024

// HTTPDoer describes the HTTP client used for REST calls.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Client talks to a single gateway.
type Client struct {
	baseURL string
	http    HTTPDoer
	stream  *http.Client
	logger  *logrus.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient sets the client used for REST calls.
func WithHTTPClient(doer HTTPDoer) Option {
	return func(c *Client) {
		c.http = doer
	}
}

// WithStreamClient sets the client used for event streams. It must not carry a request timeout.
func WithStreamClient(hc *http.Client) Option {
	return func(c *Client) {
		c.stream = hc
	}
}

// WithRequestTimeout sets a timeout on the default REST client.
func WithRequestTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.http = &http.Client{Timeout: d}
	}
}

// NewClient creates a client for the gateway at host ("http://192.168.0.38" or "192.168.0.38").
func NewClient(host string, logger *logrus.Logger, opts ...Option) (*Client, error) {
	base, err := normalizeHost(host)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = logrus.New()
	}

	c := &Client{
		baseURL: base,
		http:    http.DefaultClient,
		stream:  &http.Client{},
		logger:  logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

func normalizeHost(host string) (string, error) {
	host = strings.TrimSpace(host)
	if host == "" {
		host = DefaultHost
	}
	if !strings.Contains(host, "://") {
		host = "http://" + host
	}
	u, err := url.Parse(host)
	if err != nil {
		return "", fmt.Errorf("invalid gateway host %q: %w", host, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("invalid gateway host %q: unsupported scheme %q", host, u.Scheme)
	}
	if u.Host == "" {
		return "", fmt.Errorf("invalid gateway host %q: missing host", host)
	}
	return strings.TrimRight(u.String(), "/"), nil
}

// BaseURL returns the normalized gateway URL.
func (c *Client) BaseURL() string {
	return c.baseURL
}

func (c *Client) endpoint(query url.Values, segments ...string) string {
	escaped := make([]string, len(segments))
	for i, s := range segments {
		escaped[i] = url.PathEscape(s)
	}
	u := c.baseURL + "/" + strings.Join(escaped, "/")
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	return u
}

// Connect asks the gateway to connect to deviceID. The gateway gives up after timeout.
// The response body is returned verbatim on success.
func (c *Client) Connect(ctx context.Context, deviceID string, kind AddressKind, timeout time.Duration) (string, error) {
	if kind == "" {
		kind = AddressPublic
	}
	payload, err := json.Marshal(struct {
		Timeout int64       `json:"timeout"`
		Type    AddressKind `json:"type"`
	}{
		Timeout: timeout.Milliseconds(),
		Type:    kind,
	})
	if err != nil {
		return "", fmt.Errorf("encode connect request: %w", err)
	}

	return c.do(ctx, "connect", http.MethodPost, c.endpoint(nil, "gap", "nodes", deviceID, "connection"), payload)
}

// Disconnect drops the connection to deviceID.
func (c *Client) Disconnect(ctx context.Context, deviceID string) (string, error) {
	return c.do(ctx, "disconnect", http.MethodDelete, c.endpoint(nil, "gap", "nodes", deviceID, "connection"), nil)
}

// WriteHandle writes a hex-encoded value to the attribute at handle.
func (c *Client) WriteHandle(ctx context.Context, deviceID string, handle int, value string) (string, error) {
	if handle <= 0 {
		return "", fmt.Errorf("invalid handle %d", handle)
	}
	if _, err := hex.DecodeString(value); err != nil {
		return "", fmt.Errorf("invalid hex value %q: %w", value, err)
	}
	u := c.endpoint(nil, "gatt", "nodes", deviceID, "handle", strconv.Itoa(handle), "value", value)
	return c.do(ctx, "write", http.MethodGet, u, nil)
}

// ReadHandle reads the attribute at handle and returns its hex-encoded value.
func (c *Client) ReadHandle(ctx context.Context, deviceID string, handle int) (string, error) {
	if handle <= 0 {
		return "", fmt.Errorf("invalid handle %d", handle)
	}
	body, err := c.do(ctx, "read", http.MethodGet, c.endpoint(nil, "gatt", "nodes", deviceID, "handle", strconv.Itoa(handle), "value"), nil)
	if err != nil {
		return "", err
	}

	var resp struct {
		Handle int    `json:"handle"`
		Value  string `json:"value"`
	}
	if err := json.Unmarshal([]byte(body), &resp); err != nil {
		return "", fmt.Errorf("decode read response: %w", err)
	}
	return resp.Value, nil
}

// ConnectedDevices lists the devices currently connected to the gateway.
func (c *Client) ConnectedDevices(ctx context.Context) ([]ConnectedNode, error) {
	q := url.Values{}
	q.Set("connection_state", "connected")
	body, err := c.do(ctx, "list connected", http.MethodGet, c.endpoint(q, "gap", "nodes"), nil)
	if err != nil {
		return nil, err
	}

	var resp struct {
		Nodes []ConnectedNode `json:"nodes"`
	}
	if err := json.Unmarshal([]byte(body), &resp); err != nil {
		return nil, fmt.Errorf("decode connected devices: %w", err)
	}
	return resp.Nodes, nil
}

func (c *Client) do(ctx context.Context, op, method, u string, payload []byte) (string, error) {
	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return "", fmt.Errorf("build %s request: %w", op, err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	c.logger.WithFields(logrus.Fields{
		"op":     op,
		"method": method,
		"url":    u,
	}).Debug("Gateway request")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return "", fmt.Errorf("%s: read response: %w", op, err)
	}
	text := strings.TrimSpace(string(data))

	// Any 2xx counts as success, not only 200.
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return "", NormalizeError(&StatusError{Op: op, StatusCode: resp.StatusCode, Body: text})
	}
	return text, nil
}
