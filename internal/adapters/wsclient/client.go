// Package wsclient is the endpoint side of the signaling websocket: it
// registers an identity, sends envelopes for the call coordinator and
// dispatches what the relay pushes back.
package wsclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dkeye/Tandem/internal/call"
	"github.com/dkeye/Tandem/internal/domain"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	dialTimeout = 10 * time.Second
	writeWait   = 10 * time.Second
	readLimit   = 64 << 10
)

var (
	ErrClosed       = errors.New("wsclient: closed")
	ErrNotConfirmed = errors.New("wsclient: registration not confirmed")
)

// EnvelopeHandler receives relayed signaling envelopes; *call.Coordinator
// satisfies it.
type EnvelopeHandler interface {
	HandleEnvelope(env domain.Envelope)
}

// ServerError is an error frame sent by the relay.
type ServerError struct {
	Code string
}

func (e *ServerError) Error() string { return "relay error: " + e.Code }

type Client struct {
	ws   *websocket.Conn
	self domain.UserID
	log  zerolog.Logger

	writeMu sync.Mutex
	early   [][]byte

	mu         sync.Mutex
	closed     bool
	onPresence func(domain.PresenceEvent)
	onChat     func(domain.ChatEvent)
	onError    func(*ServerError)
}

var _ call.Signaler = (*Client)(nil)

// Dial connects to the relay and registers self. It returns once the relay
// confirmed the registration.
func Dial(ctx context.Context, url string, self domain.UserID) (*Client, error) {
	dialCtx, cancel := context.WithTimeout(ctx, dialTimeout)
	defer cancel()

	dialer := websocket.Dialer{HandshakeTimeout: dialTimeout}
	ws, resp, err := dialer.DialContext(dialCtx, url, nil)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", url, err)
	}
	ws.SetReadLimit(readLimit)

	c := &Client{
		ws:   ws,
		self: self,
		log:  log.With().Str("module", "wsclient").Str("self", self.String()).Logger(),
	}
	if err := c.register(dialCtx); err != nil {
		_ = ws.Close()
		return nil, err
	}
	return c, nil
}

func (c *Client) register(ctx context.Context) error {
	if err := c.writeJSON(map[string]string{"type": "register-user", "userId": c.self.String()}); err != nil {
		return err
	}
	if dl, ok := ctx.Deadline(); ok {
		_ = c.ws.SetReadDeadline(dl)
		defer c.ws.SetReadDeadline(time.Time{})
	}
	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			return fmt.Errorf("register: %w", err)
		}
		var reply struct {
			Type   string        `json:"type"`
			UserID domain.UserID `json:"userId"`
			Error  string        `json:"error"`
		}
		if err := json.Unmarshal(data, &reply); err != nil {
			return fmt.Errorf("register: %w", err)
		}
		switch reply.Type {
		case "error":
			return &ServerError{Code: reply.Error}
		case "registered":
			if reply.UserID != c.self {
				return fmt.Errorf("%w: registered as %q", ErrNotConfirmed, reply.UserID)
			}
		default:
			// relayed before the confirmation; Run dispatches it first
			c.early = append(c.early, data)
			continue
		}
		break
	}
	c.log.Info().Msg("registered")
	return nil
}

func (c *Client) Self() domain.UserID { return c.self }

func (c *Client) OnPresence(fn func(domain.PresenceEvent)) {
	c.mu.Lock()
	c.onPresence = fn
	c.mu.Unlock()
}

func (c *Client) OnChat(fn func(domain.ChatEvent)) {
	c.mu.Lock()
	c.onChat = fn
	c.mu.Unlock()
}

func (c *Client) OnError(fn func(*ServerError)) {
	c.mu.Lock()
	c.onError = fn
	c.mu.Unlock()
}

// Send implements call.Signaler.
func (c *Client) Send(env domain.Envelope) error {
	return c.writeJSON(env)
}

func (c *Client) SendChat(ev domain.ChatEvent) error {
	ev.From = c.self
	if err := ev.Validate(); err != nil {
		return err
	}
	return c.writeJSON(ev)
}

func (c *Client) writeJSON(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return ErrClosed
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := c.ws.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return c.ws.WriteMessage(websocket.TextMessage, data)
}

// Run reads frames until ctx is done or the connection drops, handing
// signaling envelopes to h.
func (c *Client) Run(ctx context.Context, h EnvelopeHandler) error {
	stop := context.AfterFunc(ctx, func() { _ = c.Close() })
	defer stop()

	for _, data := range c.early {
		c.dispatch(h, data)
	}
	c.early = nil

	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			c.mu.Lock()
			closed := c.closed
			c.mu.Unlock()
			if closed {
				return ErrClosed
			}
			return err
		}
		c.dispatch(h, data)
	}
}

func (c *Client) dispatch(h EnvelopeHandler, data []byte) {
	var head struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		c.log.Warn().Err(err).Msg("bad frame")
		return
	}

	switch t := head.Type; {
	case domain.EnvelopeType(t).IsSignaling():
		var env domain.Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			c.log.Warn().Err(err).Str("type", t).Msg("bad envelope")
			return
		}
		h.HandleEnvelope(env)
	case t == string(domain.PresenceOnline) || t == string(domain.PresenceOffline):
		var ev domain.PresenceEvent
		if err := json.Unmarshal(data, &ev); err != nil {
			return
		}
		c.log.Info().Str("contact", ev.UserID.String()).Bool("online", ev.Online()).Msg("presence")
		c.mu.Lock()
		fn := c.onPresence
		c.mu.Unlock()
		if fn != nil {
			fn(ev)
		}
	case domain.ChatEventType(t).IsChat():
		var ev domain.ChatEvent
		if err := json.Unmarshal(data, &ev); err != nil {
			return
		}
		c.mu.Lock()
		fn := c.onChat
		c.mu.Unlock()
		if fn != nil {
			fn(ev)
		}
	case t == "error":
		var e struct {
			Error string `json:"error"`
		}
		_ = json.Unmarshal(data, &e)
		c.log.Warn().Str("code", e.Error).Msg("relay error")
		c.mu.Lock()
		fn := c.onError
		c.mu.Unlock()
		if fn != nil {
			fn(&ServerError{Code: e.Error})
		}
	case t == "pong" || t == "registered":
	default:
		c.log.Debug().Str("type", t).Msg("ignored frame")
	}
}

// Ping sends an application-level ping; the relay answers with a pong frame.
func (c *Client) Ping() error {
	return c.writeJSON(map[string]string{"type": "ping"})
}

func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	_ = c.ws.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(writeWait))
	return c.ws.Close()
}
