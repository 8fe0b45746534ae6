package websocket

import (
	"context"
	"errors"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

const (
	defaultWebsocketReadBufferSize     = 10000
	defaultWebsocketWriteBufferSize    = 10000
	defaultWebSocketMaxMessageSize     = 64 * 1024
	defaultWebSocketHandshakeTimeout   = 5 * time.Second
	defaultWebSocketCloseWriteDeadline = 2 * time.Second
	defaultWebSocketWriteDeadline      = 5 * time.Second
	defaultWebSocketReadTimeout        = 20 * time.Second

	defaultSendQueueSize = 256
)

var (
	ErrDial      = errors.New("websocket dial failed")
	ErrClosed    = errors.New("connection is closed")
	ErrQueueFull = errors.New("send queue is full")
)

type (
	// Handler receives connection events. Both methods are called from
	// connection goroutines; OnClose is called exactly once, after the last OnMessage.
	Handler interface {
		OnMessage(msg []byte)
		OnClose(clean bool, err error)
	}

	Config struct {
		Logger *zerolog.Logger
		Header http.Header
		// ReadTimeout bounds the silence tolerated from the peer. Any inbound
		// frame extends it; on expiry the connection closes as lost.
		ReadTimeout time.Duration
	}

	Dialer struct {
		ws          *websocket.Dialer
		header      http.Header
		readTimeout time.Duration
		logger      zerolog.Logger
	}

	// Conn is one live websocket. It owns the socket exclusively: one goroutine
	// writes, one reads, and Close is the only way to stop both.
	Conn struct {
		id          string
		conn        *websocket.Conn
		handler     Handler
		readTimeout time.Duration
		tx          chan []byte
		ctx     context.Context
		cancel  context.CancelFunc
		closing atomic.Bool

		logger zerolog.Logger
	}
)

func NewDialer(cfg Config) *Dialer {
	readTimeout := cfg.ReadTimeout
	if readTimeout == 0 {
		readTimeout = defaultWebSocketReadTimeout
	}
	return &Dialer{
		logger:      cfg.Logger.With().Str("component", "websocket-transport").Logger(),
		header:      cfg.Header,
		readTimeout: readTimeout,
		ws: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: defaultWebSocketHandshakeTimeout,
			ReadBufferSize:   defaultWebsocketReadBufferSize,
			WriteBufferSize:  defaultWebsocketWriteBufferSize,
		},
	}
}

// Dial opens a websocket to url and starts its read and write loops.
// The handshake is bounded by ctx; a failed handshake leaves nothing open.
func (d *Dialer) Dial(ctx context.Context, url string, h Handler) (*Conn, error) {
	id := uuid.NewString()
	logger := d.logger.With().Str("conn", id).Str("url", url).Logger()

	conn, resp, err := d.ws.DialContext(ctx, url, d.header)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		logger.Debug().Err(err).Msg("dial failed")
		return nil, errors.Join(ErrDial, err)
	}

	cCtx, cancel := context.WithCancel(context.Background())
	c := &Conn{
		id:          id,
		conn:        conn,
		handler:     h,
		readTimeout: d.readTimeout,
		tx:          make(chan []byte, defaultSendQueueSize),
		ctx:         cCtx,
		cancel:      cancel,
		logger:      logger,
	}
	logger.Debug().Msg("connection established")

	go c.run()
	return c, nil
}

// ID returns the connection id used in logs.
func (c *Conn) ID() string {
	return c.id
}

// Send queues msg for the writer goroutine. It never blocks.
func (c *Conn) Send(msg []byte) error {
	select {
	case <-c.ctx.Done():
		return ErrClosed
	default:
	}
	select {
	case c.tx <- msg:
		return nil
	default:
		return ErrQueueFull
	}
}

// Close performs a clean, locally initiated close.
func (c *Conn) Close() {
	c.closing.Store(true)
	c.cancel()
}

func (c *Conn) run() {
	var (
		wg      = &sync.WaitGroup{}
		flushed = make(chan struct{})
		recvErr error
	)

	wg.Add(1)
	go func() {
		defer wg.Done()
		recvErr = webSocketReceiver(c.ctx, c.conn, c.handler, c.readTimeout, &c.logger)
		c.cancel()
	}()
	go func() {
		defer close(flushed)
		webSocketSender(c.ctx, c.conn, c.tx, &c.logger)
		c.cancel()
	}()

	<-c.ctx.Done()
	// Queued messages go out before the close frame.
	<-flushed
	webSocketCloser(c.conn, &c.logger)
	wg.Wait()

	clean := c.closing.Load() || websocket.IsCloseError(recvErr,
		websocket.CloseNormalClosure,
		websocket.CloseGoingAway)
	c.logger.Debug().Bool("clean", clean).Err(recvErr).Msg("connection closed")
	c.handler.OnClose(clean, recvErr)
}

func webSocketSender(
	ctx context.Context,
	conn *websocket.Conn,
	tx <-chan []byte,
	logger *zerolog.Logger,
) {
SendLoop:
	for {
		select {
		case <-ctx.Done():
			for {
				select {
				case msg := <-tx:
					if wsErr := writeMessage(conn, msg); wsErr != nil {
						logger.Trace().Err(wsErr).Msg("unable to flush outgoing message")
						break SendLoop
					}
				default:
					break SendLoop
				}
			}
		case msg := <-tx:
			if wsErr := writeMessage(conn, msg); wsErr != nil {
				logger.Error().Err(wsErr).Msg("failed to write outgoing message")
				break SendLoop
			}
		}
	}
}

func writeMessage(conn *websocket.Conn, msg []byte) error {
	if err := conn.SetWriteDeadline(time.Now().Add(defaultWebSocketWriteDeadline)); err != nil {
		return err
	}
	w, err := conn.NextWriter(websocket.TextMessage)
	if err != nil {
		return err
	}
	if _, err = w.Write(msg); err != nil {
		return err
	}
	return w.Close()
}

func webSocketReceiver(
	ctx context.Context,
	conn *websocket.Conn,
	h Handler,
	readTimeout time.Duration,
	logger *zerolog.Logger,
) error {
	conn.SetReadLimit(defaultWebSocketMaxMessageSize)
	readDeadLineFunc := func() error {
		return conn.SetReadDeadline(time.Now().Add(readTimeout))
	}
	conn.SetPongHandler(func(string) error {
		logger.Trace().Msg("got pong")
		return readDeadLineFunc()
	})
	if err := readDeadLineFunc(); err != nil {
		logger.Error().Err(err).Msg("unable to set read deadline")
		return err
	}
	for {
		_, msg, wsErr := conn.ReadMessage()
		if wsErr != nil {
			var netErr net.Error
			switch {
			case ctx.Err() != nil:
				logger.Trace().Err(wsErr).Msg("receiver stopped")
			case websocket.IsCloseError(wsErr,
				websocket.CloseNormalClosure,
				websocket.CloseGoingAway):
				logger.Warn().Err(wsErr).Msg("connection closed by server")
			case errors.As(wsErr, &netErr) && netErr.Timeout():
				logger.Warn().Dur("timeout", readTimeout).Msg("peer is silent, dropping connection")
			default:
				logger.Error().Err(wsErr).Msg("unexpected error during receive")
			}
			return wsErr
		}
		if err := readDeadLineFunc(); err != nil {
			logger.Error().Err(err).Msg("unable to extend read deadline")
			return err
		}
		h.OnMessage(msg)
	}
}

// webSocketCloser runs after the sender has stopped.
func webSocketCloser(conn *websocket.Conn, logger *zerolog.Logger) {
	wsErr := conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(defaultWebSocketCloseWriteDeadline))
	if wsErr != nil {
		logger.Trace().Err(wsErr).Msg("failed to send close frame")
	}
	wsErr = conn.Close()
	if wsErr != nil {
		logger.Error().Err(wsErr).Msg("failed to close websocket connection")
	}
}
