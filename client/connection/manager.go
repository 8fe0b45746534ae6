package connection

import (
	"context"
	"errors"
	"os"
	"sync"
	"time"

	"github.com/adwski/scribble-client/client/metrics"
	"github.com/adwski/scribble-client/client/model"
	"github.com/adwski/scribble-client/client/protocol"
	"github.com/adwski/scribble-client/client/timer"
	"github.com/adwski/scribble-client/client/transport/websocket"
	"github.com/rs/zerolog"
)

const (
	defaultConnectTimeout    = 5 * time.Second
	defaultHeartbeatInterval = 10 * time.Second
	defaultBackoffBase       = 2 * time.Second
	defaultMaxAttempts       = 5
)

var (
	ErrConnectTimeout = errors.New("connection timeout")
	ErrTransport      = errors.New("transport error")
	ErrBusy           = errors.New("connection already active")
	ErrAborted        = errors.New("connection attempt aborted")
	ErrNoEndpoint     = errors.New("no endpoint to reconnect to")
	ErrClosedByUser   = errors.New("connection was closed by user")
)

type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateReconnecting
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateReconnecting:
		return "reconnecting"
	case StateFailed:
		return "failed"
	}
	return "unknown"
}

type (
	// Transport is the live socket as seen by the manager.
	Transport interface {
		Send(msg []byte) error
		Close()
	}

	DialFunc func(ctx context.Context, url string, h websocket.Handler) (Transport, error)

	// Listener receives lifecycle notifications outside of any manager lock.
	Listener interface {
		OnConnected(resumed bool)
		OnDisconnected(clean bool)
		OnReconnecting(attempt int, delay time.Duration)
		OnMaxAttempts()
	}

	Config struct {
		Logger    *zerolog.Logger
		Metrics   *metrics.Metrics
		Dial      DialFunc
		Scheduler timer.Scheduler

		ConnectTimeout    time.Duration
		HeartbeatInterval time.Duration
		BackoffBase       time.Duration
		MaxAttempts       int
	}

	// Manager owns the single connection of a session: it connects, keeps it
	// alive with heartbeats and re-establishes it after unclean closes.
	Manager struct {
		mx        *sync.Mutex
		dial      DialFunc
		scheduler timer.Scheduler
		metrics   *metrics.Metrics
		listener  Listener
		inbound   func([]byte)

		url          string
		state        State
		transport    Transport
		gen          uint64
		attempts     int
		closedByUser bool
		reconnect    timer.Task
		heartbeat    timer.Task
		pingSent     time.Time

		connectTimeout    time.Duration
		heartbeatInterval time.Duration
		backoffBase       time.Duration
		maxAttempts       int

		logger zerolog.Logger
	}

	// link binds transport callbacks to the dial generation that created them.
	link struct {
		m      *Manager
		gen    uint64
		closed bool
	}

	noopListener struct{}
)

// WebsocketDialer adapts the websocket transport to a DialFunc.
func WebsocketDialer(d *websocket.Dialer) DialFunc {
	return func(ctx context.Context, url string, h websocket.Handler) (Transport, error) {
		c, err := d.Dial(ctx, url, h)
		if err != nil {
			return nil, err
		}
		return c, nil
	}
}

func NewManager(cfg Config) *Manager {
	m := &Manager{
		mx:                &sync.Mutex{},
		dial:              cfg.Dial,
		scheduler:         cfg.Scheduler,
		metrics:           cfg.Metrics,
		listener:          noopListener{},
		inbound:           func([]byte) {},
		connectTimeout:    cfg.ConnectTimeout,
		heartbeatInterval: cfg.HeartbeatInterval,
		backoffBase:       cfg.BackoffBase,
		maxAttempts:       cfg.MaxAttempts,
		logger:            cfg.Logger.With().Str("component", "connection").Logger(),
	}
	if m.scheduler == nil {
		m.scheduler = timer.Real{}
	}
	if m.connectTimeout == 0 {
		m.connectTimeout = defaultConnectTimeout
	}
	if m.heartbeatInterval == 0 {
		m.heartbeatInterval = defaultHeartbeatInterval
	}
	if m.backoffBase == 0 {
		m.backoffBase = defaultBackoffBase
	}
	if m.maxAttempts == 0 {
		m.maxAttempts = defaultMaxAttempts
	}
	return m
}

// Bind sets the inbound frame consumer and the lifecycle listener.
// It must be called before Connect.
func (m *Manager) Bind(inbound func(frame []byte), l Listener) {
	m.mx.Lock()
	defer m.mx.Unlock()
	if inbound != nil {
		m.inbound = inbound
	}
	if l != nil {
		m.listener = l
	}
}

// RegisterRoutes adds the keep-alive handlers the manager answers itself.
func (m *Manager) RegisterRoutes(b *protocol.Builder) {
	protocol.OnSignal(b, model.TypePing, func() {
		m.Send(model.TypePong, nil)
	})
	protocol.OnSignal(b, model.TypePong, m.pong)
}

func (m *Manager) State() State {
	m.mx.Lock()
	defer m.mx.Unlock()
	return m.state
}

func (m *Manager) Connected() bool {
	return m.State() == StateConnected
}

// Attempts returns the number of reconnection attempts scheduled since the last successful connect.
func (m *Manager) Attempts() int {
	m.mx.Lock()
	defer m.mx.Unlock()
	return m.attempts
}

// Connect opens the connection and waits for the handshake, at most ConnectTimeout.
func (m *Manager) Connect(ctx context.Context, url string) error {
	m.mx.Lock()
	if m.state == StateConnected || m.state == StateConnecting {
		m.mx.Unlock()
		return ErrBusy
	}
	m.stopTasksLocked()
	m.url = url
	m.attempts = 0
	m.closedByUser = false
	m.setStateLocked(StateConnecting)
	gen := m.nextGenLocked()
	m.mx.Unlock()

	return m.open(ctx, gen, false)
}

// Reconnect is the manual retry: it restarts the attempt counter and dials the last endpoint.
// A failure here re-enters the automatic backoff cycle. After Close only Connect
// opens the connection again.
func (m *Manager) Reconnect(ctx context.Context) error {
	m.mx.Lock()
	switch {
	case m.state == StateConnected || m.state == StateConnecting:
		m.mx.Unlock()
		return ErrBusy
	case m.url == "":
		m.mx.Unlock()
		return ErrNoEndpoint
	case m.closedByUser:
		m.mx.Unlock()
		return ErrClosedByUser
	}
	m.stopTasksLocked()
	m.attempts = 0
	m.setStateLocked(StateConnecting)
	gen := m.nextGenLocked()
	m.mx.Unlock()

	return m.open(ctx, gen, true)
}

// Close tears the connection down cleanly and cancels any pending reconnect.
func (m *Manager) Close() {
	m.mx.Lock()
	m.closedByUser = true
	m.stopTasksLocked()
	m.nextGenLocked()
	t := m.transport
	m.transport = nil
	m.setStateLocked(StateDisconnected)
	m.mx.Unlock()

	if t != nil {
		t.Close()
	}
	m.logger.Debug().Msg("connection closed by user")
}

// Send encodes and queues one message. It reports false, without side effects,
// when not connected, and false on any encoding or transport failure.
func (m *Manager) Send(t model.MessageType, data any) bool {
	m.mx.Lock()
	tr := m.transport
	connected := m.state == StateConnected
	m.mx.Unlock()
	if !connected || tr == nil {
		m.logger.Debug().Stringer("type", t).Msg("send while not connected")
		return false
	}

	b, err := protocol.Encode(t, data)
	if err != nil {
		m.logger.Error().Err(err).Stringer("type", t).Msg("failed to encode outgoing message")
		return false
	}
	if err = tr.Send(b); err != nil {
		m.logger.Error().Err(err).Stringer("type", t).Msg("failed to queue outgoing message")
		return false
	}
	m.metrics.MessageSent(t.String())
	return true
}

func (m *Manager) open(ctx context.Context, gen uint64, resumed bool) error {
	m.mx.Lock()
	url := m.url
	m.mx.Unlock()

	dCtx, cancel := context.WithTimeout(ctx, m.connectTimeout)
	defer cancel()

	l := &link{m: m, gen: gen}
	t, err := m.dial(dCtx, url, l)

	m.mx.Lock()
	if gen != m.gen {
		// Superseded by Close or another Connect while dialing.
		m.mx.Unlock()
		if t != nil {
			t.Close()
		}
		return ErrAborted
	}
	if err == nil && l.closed {
		t.Close()
		err = websocket.ErrClosed
	}
	if err != nil {
		if errors.Is(dCtx.Err(), context.DeadlineExceeded) || errors.Is(err, os.ErrDeadlineExceeded) {
			err = errors.Join(ErrConnectTimeout, err)
		} else {
			err = errors.Join(ErrTransport, err)
		}
		m.logger.Warn().Err(err).Str("url", url).Bool("resumed", resumed).Msg("connection attempt failed")
		if !resumed {
			m.setStateLocked(StateDisconnected)
			m.mx.Unlock()
			return err
		}
		notify := m.scheduleReconnectLocked()
		m.mx.Unlock()
		notify()
		return err
	}

	m.transport = t
	m.attempts = 0
	m.setStateLocked(StateConnected)
	m.scheduleHeartbeatLocked(gen)
	listener := m.listener
	m.mx.Unlock()

	m.logger.Info().Str("url", url).Bool("resumed", resumed).Msg("connected")
	listener.OnConnected(resumed)
	return nil
}

func (l *link) OnMessage(msg []byte) {
	l.m.mx.Lock()
	current := l.gen == l.m.gen
	inbound := l.m.inbound
	l.m.mx.Unlock()
	if current {
		inbound(msg)
	}
}

func (l *link) OnClose(clean bool, err error) {
	m := l.m
	m.mx.Lock()
	l.closed = true
	if l.gen != m.gen || m.transport == nil {
		m.mx.Unlock()
		return
	}
	m.transport = nil
	m.stopTasksLocked()
	listener := m.listener

	if clean || m.closedByUser {
		m.setStateLocked(StateDisconnected)
		m.mx.Unlock()
		m.logger.Info().Msg("connection closed cleanly")
		listener.OnDisconnected(true)
		return
	}

	m.logger.Warn().Err(err).Msg("connection lost")
	notify := m.scheduleReconnectLocked()
	m.mx.Unlock()
	listener.OnDisconnected(false)
	notify()
}

// scheduleReconnectLocked arms the next attempt, or gives up once MaxAttempts
// attempts have failed. The returned func delivers the notification and must
// be called after unlocking.
func (m *Manager) scheduleReconnectLocked() func() {
	listener := m.listener
	if m.attempts >= m.maxAttempts {
		m.setStateLocked(StateFailed)
		m.logger.Error().Int("attempts", m.attempts).Msg("max reconnect attempts reached")
		return listener.OnMaxAttempts
	}

	m.attempts++
	attempt := m.attempts
	delay := m.backoffBase * time.Duration(attempt)
	gen := m.nextGenLocked()
	m.setStateLocked(StateReconnecting)
	m.reconnect = m.scheduler.AfterFunc(delay, func() {
		m.fireReconnect(gen)
	})
	m.metrics.ReconnectAttempt()
	m.logger.Info().Int("attempt", attempt).Dur("delay", delay).Msg("reconnect scheduled")

	return func() {
		listener.OnReconnecting(attempt, delay)
	}
}

func (m *Manager) fireReconnect(gen uint64) {
	m.mx.Lock()
	if gen != m.gen || m.state != StateReconnecting {
		m.mx.Unlock()
		return
	}
	m.reconnect = nil
	m.mx.Unlock()

	_ = m.open(context.Background(), gen, true)
}

func (m *Manager) scheduleHeartbeatLocked(gen uint64) {
	m.heartbeat = m.scheduler.AfterFunc(m.heartbeatInterval, func() {
		m.mx.Lock()
		if gen != m.gen || m.state != StateConnected {
			m.mx.Unlock()
			return
		}
		m.pingSent = time.Now()
		m.scheduleHeartbeatLocked(gen)
		m.mx.Unlock()

		m.logger.Trace().Msg("heartbeat")
		m.Send(model.TypePing, nil)
	})
}

func (m *Manager) pong() {
	m.mx.Lock()
	sent := m.pingSent
	m.pingSent = time.Time{}
	m.mx.Unlock()
	if sent.IsZero() {
		return
	}
	rtt := time.Since(sent)
	m.metrics.HeartbeatRTT(rtt)
	m.logger.Trace().Dur("rtt", rtt).Msg("got pong")
}

func (m *Manager) stopTasksLocked() {
	if m.reconnect != nil {
		m.reconnect.Stop()
		m.reconnect = nil
	}
	if m.heartbeat != nil {
		m.heartbeat.Stop()
		m.heartbeat = nil
	}
}

func (m *Manager) nextGenLocked() uint64 {
	m.gen++
	return m.gen
}

func (m *Manager) setStateLocked(s State) {
	if m.state != s {
		m.logger.Debug().Stringer("from", m.state).Stringer("to", s).Msg("state change")
	}
	m.state = s
	m.metrics.ConnectionState(int(s))
}

func (noopListener) OnConnected(bool)                  {}
func (noopListener) OnDisconnected(bool)               {}
func (noopListener) OnReconnecting(int, time.Duration) {}
func (noopListener) OnMaxAttempts()                    {}
