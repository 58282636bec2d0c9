package client

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/inkwell-labs/inkwell/internal/collab"
)

const (
	defaultReconnectDelay    = time.Second
	defaultMaxReconnectDelay = 30 * time.Second
)

// Observer receives transport lifecycle events and inbound frames. All
// callbacks are invoked from the transport's read goroutine, one at a time.
type Observer interface {
	HandleConnected(sessionID string)
	HandleDisconnected(err error)
	HandleFrame(frame collab.Frame)
}

// TransportConfig describes one collaboration channel connection.
type TransportConfig struct {
	// URL is the websocket endpoint, e.g. ws://host/collab.
	URL string
	// Token is the bearer token presented during the handshake.
	Token string
	// Observer receives lifecycle events and frames. Required.
	Observer Observer
	// OnAuthFailure is invoked once when the server rejects the token. The
	// transport stops permanently; the caller is expected to redirect to the
	// login flow.
	OnAuthFailure func(error)
	Dialer        *websocket.Dialer
	// ReconnectDelay is the initial retry interval after a dropped
	// connection. The interval doubles up to MaxReconnectDelay; attempts are
	// unbounded.
	ReconnectDelay    time.Duration
	MaxReconnectDelay time.Duration
	Logger            *zap.Logger
}

// Transport owns a single long-lived collaboration channel connection and
// its reconnect lifecycle. One Transport per open editor view.
type Transport struct {
	cfg    TransportConfig
	dialer *websocket.Dialer
	logger *zap.Logger

	mu     sync.Mutex
	conn   *websocket.Conn
	closed bool

	stop     chan struct{}
	stopOnce sync.Once
	done     chan struct{}
}

// NewTransport constructs a transport. Run must be called to connect.
func NewTransport(cfg TransportConfig) (*Transport, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("%w: endpoint url required", ErrTransport)
	}
	if cfg.Observer == nil {
		return nil, fmt.Errorf("%w: observer required", ErrTransport)
	}
	if cfg.ReconnectDelay <= 0 {
		cfg.ReconnectDelay = defaultReconnectDelay
	}
	if cfg.MaxReconnectDelay < cfg.ReconnectDelay {
		cfg.MaxReconnectDelay = defaultMaxReconnectDelay
	}
	dialer := cfg.Dialer
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Transport{
		cfg:    cfg,
		dialer: dialer,
		logger: logger,
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}, nil
}

// Run drives the connect/read/reconnect loop until Close is called, the
// context is cancelled, or the server rejects the token. Reconnection after
// a transport failure is automatic with capped exponential delay.
func (t *Transport) Run(ctx context.Context) {
	defer close(t.done)
	delay := t.cfg.ReconnectDelay

	for {
		if t.stopped() || ctx.Err() != nil {
			return
		}

		conn, err := t.dial(ctx)
		if err != nil {
			if errors.Is(err, ErrAuthenticationFailed) {
				t.logger.Warn("collab handshake rejected", zap.Error(err))
				if t.cfg.OnAuthFailure != nil {
					t.cfg.OnAuthFailure(err)
				}
				return
			}
			t.logger.Debug("collab dial failed", zap.Error(err), zap.Duration("retry_in", delay))
			if !t.sleep(ctx, delay) {
				return
			}
			delay = nextDelay(delay, t.cfg.MaxReconnectDelay)
			continue
		}
		delay = t.cfg.ReconnectDelay

		t.setConn(conn)
		readErr := t.readLoop(conn)
		t.setConn(nil)
		t.cfg.Observer.HandleDisconnected(readErr)

		if t.stopped() || ctx.Err() != nil {
			return
		}
		if !t.sleep(ctx, delay) {
			return
		}
		delay = nextDelay(delay, t.cfg.MaxReconnectDelay)
	}
}

// Send enqueues a frame on the active connection. Fire-and-forget: callers
// treat ErrNotConnected as a skipped broadcast, not a failure.
func (t *Transport) Send(frame collab.Frame) error {
	t.mu.Lock()
	conn := t.conn
	t.mu.Unlock()
	if conn == nil {
		return ErrNotConnected
	}
	if err := conn.WriteJSON(frame); err != nil {
		return fmt.Errorf("%w: %v", ErrTransport, err)
	}
	return nil
}

// Close stops the reconnect loop and releases the connection. Idempotent.
// Closing the connection releases room memberships server-side.
func (t *Transport) Close() {
	t.stopOnce.Do(func() {
		close(t.stop)
	})
	t.mu.Lock()
	t.closed = true
	conn := t.conn
	t.conn = nil
	t.mu.Unlock()
	if conn != nil {
		_ = conn.Close()
	}
	<-t.done
}

func (t *Transport) dial(ctx context.Context) (*websocket.Conn, error) {
	header := http.Header{}
	if t.cfg.Token != "" {
		header.Set("Authorization", "Bearer "+t.cfg.Token)
	}
	conn, resp, err := t.dialer.DialContext(ctx, t.cfg.URL, header)
	if err != nil {
		if resp != nil && (resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden) {
			return nil, fmt.Errorf("%w: handshake status %d", ErrAuthenticationFailed, resp.StatusCode)
		}
		return nil, fmt.Errorf("%w: %v", ErrTransport, err)
	}
	return conn, nil
}

// readLoop delivers inbound frames to the observer. The first frame is the
// hub's session:ready carrying this connection's session identifier.
func (t *Transport) readLoop(conn *websocket.Conn) error {
	for {
		var frame collab.Frame
		if err := conn.ReadJSON(&frame); err != nil {
			return fmt.Errorf("%w: %v", ErrTransport, err)
		}
		if frame.Type == collab.FrameSessionReady {
			t.cfg.Observer.HandleConnected(frame.SenderID)
			continue
		}
		t.cfg.Observer.HandleFrame(frame)
	}
}

func (t *Transport) setConn(conn *websocket.Conn) {
	t.mu.Lock()
	if t.closed && conn != nil {
		t.mu.Unlock()
		_ = conn.Close()
		return
	}
	old := t.conn
	t.conn = conn
	t.mu.Unlock()
	if old != nil && old != conn {
		_ = old.Close()
	}
}

func (t *Transport) stopped() bool {
	select {
	case <-t.stop:
		return true
	default:
		return false
	}
}

func (t *Transport) sleep(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-t.stop:
		return false
	case <-ctx.Done():
		return false
	}
}

func nextDelay(current, ceiling time.Duration) time.Duration {
	next := current * 2
	if next > ceiling {
		return ceiling
	}
	return next
}
