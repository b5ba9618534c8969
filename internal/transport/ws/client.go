package ws

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/wirechat-client/internal/core"
	"github.com/vovakirdan/wirechat-client/internal/metrics"
	"github.com/vovakirdan/wirechat-client/internal/proto"
)

var (
	ErrRateLimited = errors.New("typing frames rate limited")
	ErrClosed      = errors.New("push channel closed")
)

// Options tunes the push channel.
type Options struct {
	// MaxTypingPerMinute caps typing frames; 0 disables the cap.
	MaxTypingPerMinute int
	// EventBuffer is the capacity of the Events channel.
	EventBuffer int
}

// Client is the push channel: it decodes server frames into core events and
// implements core.Emitter for outbound frames.
type Client struct {
	conn    *websocket.Conn
	log     *zerolog.Logger
	limiter *rateLimiter
	events  chan *core.Event

	stop      chan struct{}
	closeOnce sync.Once
}

// Dial connects to the push endpoint and introduces the session.
func Dial(ctx context.Context, url, token string, logger *zerolog.Logger, opts Options) (*Client, error) {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	if opts.EventBuffer <= 0 {
		opts.EventBuffer = 64
	}

	header := http.Header{}
	if token != "" {
		header.Set("Authorization", "Bearer "+token)
	}
	conn, _, err := websocket.Dial(ctx, url, &websocket.DialOptions{HTTPHeader: header})
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", url, err)
	}

	l := logger.With().Str("component", "ws").Logger()
	c := &Client{
		conn:    conn,
		log:     &l,
		limiter: newRateLimiter(opts.MaxTypingPerMinute),
		events:  make(chan *core.Event, opts.EventBuffer),
		stop:    make(chan struct{}),
	}
	c.limiter.startReset(c.stop)

	hello, err := json.Marshal(proto.HelloData{Token: token, Protocol: proto.ProtocolVersion})
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("marshal hello: %w", err)
	}
	if err := wsjson.Write(ctx, conn, proto.Inbound{Type: proto.InboundTypeHello, Data: hello}); err != nil {
		c.Close()
		return nil, fmt.Errorf("send hello: %w", err)
	}
	return c, nil
}

// Events yields decoded push events in receipt order. It is closed when Run returns.
func (c *Client) Events() <-chan *core.Event {
	return c.events
}

// Run reads frames until ctx is done or the server closes the socket.
// A normal close returns nil.
func (c *Client) Run(ctx context.Context) error {
	defer close(c.events)

	for {
		var out proto.Outbound
		if err := wsjson.Read(ctx, c.conn, &out); err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, io.EOF) {
				return nil
			}
			switch websocket.CloseStatus(err) {
			case websocket.StatusNormalClosure, websocket.StatusGoingAway:
				return nil
			}
			c.log.Warn().Err(err).Msg("read ws outbound")
			return err
		}

		if out.Type == proto.OutboundTypeError && out.Error != nil {
			c.log.Warn().Str("code", out.Error.Code).Str("msg", out.Error.Msg).Msg("server error frame")
			continue
		}

		ev, err := outboundToEvent(out)
		if err != nil {
			c.log.Warn().Err(err).Str("event", out.Event).Msg("failed to map outbound")
			continue
		}
		if ev == nil {
			c.log.Debug().Str("event", out.Event).Msg("ignored outbound")
			continue
		}

		select {
		case c.events <- ev:
		case <-ctx.Done():
			return nil
		}
	}
}

// Emit writes a command as an inbound frame.
func (c *Client) Emit(ctx context.Context, cmd *core.Command) error {
	select {
	case <-c.stop:
		return ErrClosed
	default:
	}

	if cmd.Kind == core.CommandTypingStart || cmd.Kind == core.CommandTypingStop {
		if !c.limiter.allow() {
			metrics.EmitsDropped.Inc()
			return ErrRateLimited
		}
	}

	in, err := commandToInbound(cmd)
	if err != nil {
		return err
	}
	if err := wsjson.Write(ctx, c.conn, in); err != nil {
		return fmt.Errorf("write %s: %w", in.Type, err)
	}
	return nil
}

// Close shuts the socket down with a normal closure.
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		close(c.stop)
		_ = c.conn.Close(websocket.StatusNormalClosure, "bye")
	})
}
