package signal

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/dkeye/watchparty/internal/app/orch"
	"github.com/dkeye/watchparty/internal/core"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

const (
	defaultSendBuffer = 32
	defaultPingPeriod = 54 * time.Second
	defaultReadLimit  = 32 << 10
	writeWait         = 5 * time.Second
)

type Options struct {
	ReadLimit  int64
	PingPeriod time.Duration
	SendBuffer int
	// ChatLimit messages per ChatInterval per user; zero disables the limit.
	ChatLimit    int
	ChatInterval time.Duration
}

type SignalWSController struct {
	Orch    *orch.Orchestrator
	Limiter *ChatLimiter

	readLimit  int64
	pingPeriod time.Duration
	sendBuffer int
}

func NewSignalWSController(o *orch.Orchestrator, opts Options) *SignalWSController {
	ctl := &SignalWSController{
		Orch:       o,
		readLimit:  opts.ReadLimit,
		pingPeriod: opts.PingPeriod,
		sendBuffer: opts.SendBuffer,
	}
	if ctl.readLimit <= 0 {
		ctl.readLimit = defaultReadLimit
	}
	if ctl.pingPeriod <= 0 {
		ctl.pingPeriod = defaultPingPeriod
	}
	if ctl.sendBuffer <= 0 {
		ctl.sendBuffer = defaultSendBuffer
	}
	if opts.ChatLimit > 0 && opts.ChatInterval > 0 {
		ctl.Limiter = NewChatLimiter(opts.ChatLimit, opts.ChatInterval)
	}
	return ctl
}

// WsSignalConn is the core.SignalConnection of one websocket.
type WsSignalConn struct {
	conn *websocket.Conn
	send chan core.Frame

	mu     sync.RWMutex
	closed bool
}

var _ core.SignalConnection = (*WsSignalConn)(nil)

func NewWsSignalConn(ws *websocket.Conn, buffer int) *WsSignalConn {
	return &WsSignalConn{
		conn: ws,
		send: make(chan core.Frame, buffer),
	}
}

func (c *WsSignalConn) TrySend(f core.Frame) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return core.ErrConnClosed
	}
	select {
	case c.send <- f:
	default:
		return core.ErrBackpressure
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

// HandleSignal upgrades the request and runs the connection until the
// transport closes. Every connection gets its own session id; the client
// token only tags the log lines.
func (ctl *SignalWSController) HandleSignal(ctx context.Context, c *gin.Context) {
	sid := core.SessionID(uuid.NewString())
	logger := log.With().Str("module", "signal").Str("sid", string(sid)).Str("client", c.GetString(ClientTokenKey)).Logger()
	logger.Info().Msg("new WS connection")

	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logger.Error().Err(err).Msg("ws upgrade")
		return
	}

	conn := NewWsSignalConn(ws, ctl.sendBuffer)
	ctx, cancel := context.WithCancel(ctx)
	ctl.Orch.Registry.Register(sid, conn, cancel)

	ctl.sendJSON(conn, Connected{Type: TypeConnected, SID: sid})

	go ctl.writePump(ctx, conn)
	go ctl.readPump(ctx, sid, conn)
}
