package replay

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"chronotick/internal/models"

	"github.com/gorilla/websocket"
)

const (
	writeWait         = 2 * time.Second
	maxMessageSize    = 1024 * 1024
	defaultFlushDelay = 100 * time.Millisecond
	replayPath        = "/ws/replay"
)

// Dialer opens websocket connections. *websocket.Dialer satisfies it.
type Dialer interface {
	DialContext(ctx context.Context, urlStr string, requestHeader http.Header) (*websocket.Conn, *http.Response, error)
}

// Client opens replay streams against the replay backend
type Client struct {
	baseURL    string
	dialer     Dialer
	flushDelay time.Duration
	nextID     atomic.Uint64
}

// ClientOption customizes a Client
type ClientOption func(*Client)

// WithDialer replaces the default websocket dialer
func WithDialer(d Dialer) ClientOption {
	return func(c *Client) {
		c.dialer = d
	}
}

// WithFlushDelay sets how long Close waits before dropping the transport
// so the close command can flush
func WithFlushDelay(d time.Duration) ClientOption {
	return func(c *Client) {
		if d >= 0 {
			c.flushDelay = d
		}
	}
}

// WithHandshakeTimeout bounds the websocket handshake of the default dialer
func WithHandshakeTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		if wd, ok := c.dialer.(*websocket.Dialer); ok && d > 0 {
			dialer := *wd
			dialer.HandshakeTimeout = d
			c.dialer = &dialer
		}
	}
}

// NewClient creates a stream client for a backend such as ws://127.0.0.1:8000
func NewClient(baseURL string, opts ...ClientOption) *Client {
	defaultDialer := *websocket.DefaultDialer
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		dialer:     &defaultDialer,
		flushDelay: defaultFlushDelay,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ReplayURL builds the stream URL for a session
func (c *Client) ReplayURL(params models.ReplaySessionParams) (string, error) {
	u, err := url.Parse(c.baseURL + replayPath)
	if err != nil {
		return "", fmt.Errorf("invalid replay url %q: %w", c.baseURL, err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return "", fmt.Errorf("unsupported replay url scheme %q", u.Scheme)
	}

	q := u.Query()
	q.Set("symbol", params.Symbol)
	q.Set("start", params.RangeStart)
	q.Set("end", params.RangeEnd)
	q.Set("realtime", "false")
	q.Set("time_scale", strconv.Itoa(params.SpeedMs))
	q.Set("gap_scale", strconv.Itoa(params.GapSpeedFactor))
	u.RawQuery = q.Encode()

	return u.String(), nil
}

// Open starts connecting a new stream and returns its handle right away.
// Connection success or failure is reported to handler as a status event;
// Open itself never fails and never retries.
func (c *Client) Open(ctx context.Context, params models.ReplaySessionParams, handler EventHandler) *Handle {
	ctx, cancel := context.WithCancel(ctx)
	h := &Handle{
		id:      c.nextID.Add(1),
		params:  params,
		client:  c,
		state:   models.ConnectionConnecting,
		handler: handler,
		cancel:  cancel,
		done:    make(chan struct{}),
	}

	go h.run(ctx)
	return h
}
