package feed

import (
	"context"
	"net/url"
	"strings"
	"sync"
	"time"

	"nhooyr.io/websocket"
)

// Status is the passive connection indicator. The engine keeps running on
// polls alone while the stream is down.
type Status string

const (
	StatusConnected Status = "connected"
	StatusDegraded  Status = "degraded"
)

// StreamOption configures the stream connection.
type StreamOption func(*Conn)

// WithAPIKey sets the bearer token sent on the upgrade request.
func WithAPIKey(key string) StreamOption {
	return func(c *Conn) { c.apiKey = key }
}

// WithBackoff overrides the reconnect backoff bounds. Tests shrink these.
func WithBackoff(initial, max time.Duration) StreamOption {
	return func(c *Conn) {
		c.backoffMin = initial
		c.backoffMax = max
	}
}

// Conn owns the long-lived websocket to the event feed. Every received frame
// is offered to the router; the read loop reconnects with exponential
// backoff and never surfaces a fatal error.
type Conn struct {
	baseURL    string
	apiKey     string
	router     *Router
	backoffMin time.Duration
	backoffMax time.Duration

	mu     sync.RWMutex
	status Status
	conn   *websocket.Conn
	done   chan struct{}
}

func NewConn(baseURL string, router *Router, opts ...StreamOption) *Conn {
	c := &Conn{
		baseURL:    baseURL,
		router:     router,
		backoffMin: time.Second,
		backoffMax: 30 * time.Second,
		status:     StatusDegraded,
		done:       make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Conn) Status() Status {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.status
}

func (c *Conn) setStatus(s Status) {
	c.mu.Lock()
	c.status = s
	c.mu.Unlock()
}

// Start dials the feed and runs the read loop until ctx ends or Close is
// called. The initial dial failing is not an error; the loop keeps retrying.
func (c *Conn) Start(ctx context.Context) {
	go c.run(ctx)
}

func (c *Conn) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	select {
	case <-c.done:
	default:
		close(c.done)
	}
	if c.conn != nil {
		c.conn.Close(websocket.StatusNormalClosure, "client closing")
		c.conn = nil
	}
}

func (c *Conn) run(ctx context.Context) {
	backoff := c.backoffMin
	for {
		select {
		case <-c.done:
			return
		case <-ctx.Done():
			return
		default:
		}

		conn, err := c.dial(ctx)
		if err != nil {
			c.setStatus(StatusDegraded)
			select {
			case <-c.done:
				return
			case <-ctx.Done():
				return
			case <-time.After(backoff):
			}
			backoff *= 2
			if backoff > c.backoffMax {
				backoff = c.backoffMax
			}
			continue
		}

		c.mu.Lock()
		c.conn = conn
		c.mu.Unlock()
		c.setStatus(StatusConnected)
		backoff = c.backoffMin

		c.readLoop(ctx, conn)
		c.setStatus(StatusDegraded)
	}
}

func (c *Conn) dial(ctx context.Context) (*websocket.Conn, error) {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return nil, err
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	}
	u.Path = "/ws/events"
	names := make([]string, len(Streams))
	for i, s := range Streams {
		names[i] = string(s)
	}
	q := u.Query()
	q.Set("streams", strings.Join(names, ","))
	u.RawQuery = q.Encode()

	opts := &websocket.DialOptions{}
	if c.apiKey != "" {
		opts.HTTPHeader = map[string][]string{
			"Authorization": {"Bearer " + c.apiKey},
		}
	}
	conn, _, err := websocket.Dial(ctx, u.String(), opts)
	return conn, err
}

func (c *Conn) readLoop(ctx context.Context, conn *websocket.Conn) {
	for {
		select {
		case <-c.done:
			return
		case <-ctx.Done():
			return
		default:
		}
		_, data, err := conn.Read(ctx)
		if err != nil {
			return
		}
		c.router.Offer(data)
	}
}
