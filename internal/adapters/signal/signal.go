package signal

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/dkeye/Tandem/internal/app"
	"github.com/dkeye/Tandem/internal/config"
	"github.com/dkeye/Tandem/internal/core"
	"github.com/dkeye/Tandem/internal/domain"
	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
)

var (
	ErrBackpressure = errors.New("backpressure")
	ErrConnClosed   = errors.New("connection closed")
)

// SessionUserKey is the cookie session key holding the identity set by
// POST /api/identify.
const SessionUserKey = "user_id"

type Options struct {
	ReadLimit   int64
	PingPeriod  time.Duration
	PongWait    time.Duration
	WriteWait   time.Duration
	SendBuffer  int
	SignalRate  float64
	SignalBurst int
}

func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		ReadLimit:   cfg.ReadLimit,
		PingPeriod:  cfg.PingPeriod,
		PongWait:    cfg.PongWait,
		WriteWait:   cfg.WriteWait,
		SendBuffer:  cfg.SendBuffer,
		SignalRate:  cfg.SignalRate,
		SignalBurst: cfg.SignalBurst,
	}
}

type SignalWSController struct {
	Registry *app.Registry
	Relay    *app.Relay
	Opts     Options
}

func NewSignalWSController(reg *app.Registry, relay *app.Relay, opts Options) *SignalWSController {
	return &SignalWSController{Registry: reg, Relay: relay, Opts: opts}
}

// WsSignalConn is one attached websocket. It implements core.SignalConnection.
type WsSignalConn struct {
	id      core.ConnID
	conn    *websocket.Conn
	send    chan core.Frame
	limiter *rate.Limiter

	mu     sync.RWMutex
	closed bool
}

func (c *WsSignalConn) ID() core.ConnID { return c.id }

func (c *WsSignalConn) TrySend(f core.Frame) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return ErrConnClosed
	}
	select {
	case c.send <- f:
	default:
		return ErrBackpressure
	}
	return nil
}

func (c *WsSignalConn) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	close(c.send)
	_ = c.conn.Close()
	c.mu.Unlock()
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

func (ctl *SignalWSController) HandleSignal(ctx context.Context, c *gin.Context) {
	token := c.GetString("client_token")

	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("ws upgrade")
		return
	}

	conn := &WsSignalConn{
		id:      core.NewConnID(),
		conn:    ws,
		send:    make(chan core.Frame, ctl.Opts.SendBuffer),
		limiter: newLimiter(ctl.Opts.SignalRate, ctl.Opts.SignalBurst),
	}
	log.Info().Str("module", "signal").Str("conn", string(conn.id)).Str("client_token", token).Msg("new WS connection")

	ctx, cancel := context.WithCancel(ctx)

	// an identity stored by /api/identify registers before any frame is read
	if raw, ok := sessions.Default(c).Get(SessionUserKey).(string); ok {
		if uid, err := domain.ParseUserID(raw); err == nil {
			ctl.register(ctx, conn, uid)
		}
	}

	go ctl.writePump(ctx, conn)
	go ctl.readPump(ctx, cancel, conn)
}
