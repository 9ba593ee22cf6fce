// Package transport implements a long-lived, full-duplex streaming
// transport over a websocket connection with automatic reconnection,
// exponential backoff, and ping/pong keepalive.
package transport

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// ErrMaxReconnectsExceeded is returned (and surfaced as a Disconnected
// frame) once the configured reconnect attempt budget is exhausted.
var ErrMaxReconnectsExceeded = errors.New("transport: max reconnect attempts exceeded")

// FrameKind distinguishes the variants of an inbound Frame.
type FrameKind int

const (
	// Text carries a decoded text payload.
	Text FrameKind = iota
	// Binary carries a raw binary payload.
	Binary
	// Connected signals a freshly established connection.
	Connected
	// Disconnected signals the transport has given up and will not
	// reconnect again.
	Disconnected
	// Reconnecting signals a reconnect attempt is underway; Attempt is
	// the 1-based attempt counter.
	Reconnecting
)

// Frame is a single event emitted on the inbound channel.
type Frame struct {
	Kind    FrameKind
	Payload []byte
	Attempt int
}

// Config holds the recognized reconnecting-transport options.
type Config struct {
	URL                   string
	MaxReconnectAttempts  int // 0 = unbounded
	InitialReconnectDelay time.Duration
	MaxReconnectDelay     time.Duration
	PingInterval          time.Duration
	PongTimeout           time.Duration
}

// DefaultConfig returns sane reconnect/keepalive defaults.
func DefaultConfig(url string) Config {
	return Config{
		URL:                   url,
		MaxReconnectAttempts:  0,
		InitialReconnectDelay: time.Second,
		MaxReconnectDelay:     60 * time.Second,
		PingInterval:          30 * time.Second,
		PongTimeout:           10 * time.Second,
	}
}

// Conn is a reusable websocket client with automatic reconnection.
type Conn struct {
	cfg Config
	log *zap.SugaredLogger
}

// New creates a Conn from the given configuration.
func New(cfg Config, log *zap.SugaredLogger) *Conn {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Conn{cfg: cfg, log: log}
}

// Connect starts the background connection-management loop and
// returns a bounded receive-only channel of inbound frames.
func (c *Conn) Connect(ctx context.Context) <-chan Frame {
	out := make(chan Frame, 1024)
	go c.runLoop(ctx, out, nil)
	return out
}

// ConnectBidirectional additionally returns a send channel for
// outbound text frames, used by feeds that must subscribe after
// connecting.
func (c *Conn) ConnectBidirectional(ctx context.Context) (<-chan Frame, chan<- string) {
	out := make(chan Frame, 1024)
	send := make(chan string, 256)
	go c.runLoop(ctx, out, send)
	return out, send
}

func (c *Conn) runLoop(ctx context.Context, out chan<- Frame, send <-chan string) {
	defer close(out)

	attempts := 0
	delay := c.cfg.InitialReconnectDelay

	for {
		err := c.connectAndStream(ctx, out, send)
		if err == nil {
			return
		}
		if ctx.Err() != nil {
			return
		}

		attempts++
		c.log.Warnw("transport reconnecting", "attempt", attempts, "error", err)

		if c.cfg.MaxReconnectAttempts > 0 && attempts >= c.cfg.MaxReconnectAttempts {
			c.log.Errorw("transport giving up", "attempts", attempts)
			select {
			case out <- Frame{Kind: Disconnected}:
			case <-ctx.Done():
			}
			return
		}

		select {
		case out <- Frame{Kind: Reconnecting, Attempt: attempts}:
		case <-ctx.Done():
			return
		}

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return
		}
		delay *= 2
		if delay > c.cfg.MaxReconnectDelay {
			delay = c.cfg.MaxReconnectDelay
		}
	}
}

func (c *Conn) connectAndStream(ctx context.Context, out chan<- Frame, send <-chan string) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, c.cfg.URL, nil)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer conn.Close()

	select {
	case out <- Frame{Kind: Connected}:
	case <-ctx.Done():
		return nil
	}

	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(c.cfg.PongTimeout + c.cfg.PingInterval))
	})
	_ = conn.SetReadDeadline(time.Now().Add(c.cfg.PongTimeout + c.cfg.PingInterval))

	readErrCh := make(chan error, 1)
	go func() {
		for {
			kind, data, err := conn.ReadMessage()
			if err != nil {
				readErrCh <- err
				return
			}
			frame := Frame{Payload: data}
			switch kind {
			case websocket.TextMessage:
				frame.Kind = Text
			case websocket.BinaryMessage:
				frame.Kind = Binary
			default:
				continue
			}
			select {
			case out <- frame:
			case <-ctx.Done():
				return
			}
		}
	}()

	pingTicker := time.NewTicker(c.cfg.PingInterval)
	defer pingTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-readErrCh:
			return err
		case <-pingTicker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second)); err != nil {
				return fmt.Errorf("ping: %w", err)
			}
		case msg, ok := <-send:
			if !ok {
				send = nil
				continue
			}
			if err := conn.WriteMessage(websocket.TextMessage, []byte(msg)); err != nil {
				return fmt.Errorf("write: %w", err)
			}
		}
	}
}
