package connection

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/golang/glog"
	"github.com/gorilla/websocket"

	"ideasync/internal/events"
)

// State of the single logical connection to the relay.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	default:
		return "unknown"
	}
}

var (
	ErrNotConnected = errors.New("not connected")
	ErrClosed       = errors.New("connection manager closed")
)

// TransportError wraps a failure of the underlying websocket. It is only
// ever delivered through an error notification.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// Settings tune the connection. Zero values are replaced by defaults.
type Settings struct {
	URL               string
	Header            http.Header
	HeartbeatInterval time.Duration
	ReconnectDelay    time.Duration
	HandshakeTimeout  time.Duration
	WriteTimeout      time.Duration
}

func DefaultSettings() *Settings {
	return &Settings{
		HeartbeatInterval: 30 * time.Second,
		ReconnectDelay:    3 * time.Second,
		HandshakeTimeout:  5 * time.Second,
		WriteTimeout:      5 * time.Second,
	}
}

func (s *Settings) withDefaults() *Settings {
	out := *DefaultSettings()
	if s == nil {
		return &out
	}
	out.URL = s.URL
	out.Header = s.Header
	if s.HeartbeatInterval > 0 {
		out.HeartbeatInterval = s.HeartbeatInterval
	}
	if s.ReconnectDelay > 0 {
		out.ReconnectDelay = s.ReconnectDelay
	}
	if s.HandshakeTimeout > 0 {
		out.HandshakeTimeout = s.HandshakeTimeout
	}
	if s.WriteTimeout > 0 {
		out.WriteTimeout = s.WriteTimeout
	}
	return &out
}

// Dialer opens websocket connections. *websocket.Dialer satisfies it.
type Dialer interface {
	DialContext(ctx context.Context, urlStr string, requestHeader http.Header) (*websocket.Conn, *http.Response, error)
}

// Manager owns the one persistent connection of a client process: dialing,
// heartbeats, failure detection and reconnect scheduling. Transport failures
// surface as notifications followed by an automatic reconnect.
type Manager struct {
	ctx    context.Context
	cancel context.CancelFunc

	settings *Settings
	dialer   Dialer
	onFrame  func([]byte)

	mu             sync.Mutex
	state          State
	conn           *websocket.Conn
	connDone       chan struct{}
	reconnectTimer *time.Timer
	closed         bool

	writeMu sync.Mutex

	listenersMu  sync.Mutex
	listeners    map[int]func(Notification)
	nextListener int
}

type Option func(*Manager)

// WithDialer replaces the default gorilla dialer.
func WithDialer(d Dialer) Option {
	return func(m *Manager) { m.dialer = d }
}

// NewManager builds a manager in the disconnected state. onFrame receives
// every inbound text or binary frame, in arrival order.
func NewManager(ctx context.Context, settings *Settings, onFrame func([]byte), opts ...Option) *Manager {
	cancelCtx, cancel := context.WithCancel(ctx)
	s := settings.withDefaults()
	m := &Manager{
		ctx:       cancelCtx,
		cancel:    cancel,
		settings:  s,
		onFrame:   onFrame,
		listeners: make(map[int]func(Notification)),
		dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: s.HandshakeTimeout,
		},
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// State returns the current connection state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Connect starts a connection attempt unless one is already running,
// established or scheduled.
func (m *Manager) Connect() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrClosed
	}
	if m.state != StateDisconnected || m.reconnectTimer != nil {
		m.mu.Unlock()
		return nil
	}
	m.state = StateConnecting
	m.mu.Unlock()

	go m.dial()
	return nil
}

// WaitConnected blocks until the manager reports connected or ctx ends.
func (m *Manager) WaitConnected(ctx context.Context) error {
	ready := make(chan struct{}, 1)
	cancel := m.Notify(func(n Notification) {
		if n.Kind == NotifyConnected {
			select {
			case ready <- struct{}{}:
			default:
			}
		}
	})
	defer cancel()
	if m.State() == StateConnected {
		return nil
	}
	select {
	case <-ready:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Send writes one frame. It fails with ErrNotConnected when there is no open
// socket; a write failure tears the socket down and schedules a reconnect.
func (m *Manager) Send(frame []byte) error {
	m.mu.Lock()
	conn := m.conn
	m.mu.Unlock()
	if conn == nil {
		return ErrNotConnected
	}
	if err := m.write(conn, frame); err != nil {
		terr := &TransportError{Op: "write", Err: err}
		m.handleClosed(conn, terr)
		return terr
	}
	glog.V(2).Infof("[conn]-> %d bytes", len(frame))
	return nil
}

// Close tears the connection down for good, cancelling the heartbeat and any
// pending reconnect.
func (m *Manager) Close() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	m.cancel()
	if m.reconnectTimer != nil {
		m.reconnectTimer.Stop()
		m.reconnectTimer = nil
	}
	conn := m.conn
	m.conn = nil
	if m.connDone != nil {
		close(m.connDone)
		m.connDone = nil
	}
	m.state = StateDisconnected
	m.mu.Unlock()

	if conn != nil {
		m.writeMu.Lock()
		conn.SetWriteDeadline(time.Now().Add(m.settings.WriteTimeout))
		_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		m.writeMu.Unlock()
		conn.Close()
		m.notify(Notification{Kind: NotifyDisconnected})
	}
}

func (m *Manager) dial() {
	ctx, cancel := context.WithTimeout(m.ctx, m.settings.HandshakeTimeout)
	defer cancel()

	glog.V(1).Infof("[conn]dial %s", m.settings.URL)
	conn, _, err := m.dialer.DialContext(ctx, m.settings.URL, m.settings.Header)

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		if conn != nil {
			conn.Close()
		}
		return
	}
	if err != nil {
		m.state = StateDisconnected
		m.mu.Unlock()
		glog.Infof("[conn]dial %s error = %v", m.settings.URL, err)
		m.notify(Notification{Kind: NotifyError, Err: &TransportError{Op: "dial", Err: err}})
		m.scheduleReconnect()
		return
	}
	done := make(chan struct{})
	m.conn = conn
	m.connDone = done
	m.state = StateConnected
	m.mu.Unlock()

	glog.Infof("[conn]connected %s", m.settings.URL)
	m.notify(Notification{Kind: NotifyConnected})
	go m.heartbeat(conn, done)
	go m.readLoop(conn)
}

func (m *Manager) readLoop(conn *websocket.Conn) {
	for {
		messageType, message, err := conn.ReadMessage()
		if err != nil {
			m.handleClosed(conn, err)
			return
		}
		switch messageType {
		case websocket.TextMessage, websocket.BinaryMessage:
			glog.V(2).Infof("[conn]<- %d bytes", len(message))
			if m.onFrame != nil {
				m.onFrame(message)
			}
		default:
			glog.V(2).Infof("[conn]other=%d", messageType)
		}
	}
}

// heartbeat writes a ping frame on a fixed interval while conn is current.
// There is no pong deadline: a half-open socket is only found when a write
// fails.
func (m *Manager) heartbeat(conn *websocket.Conn, done chan struct{}) {
	ticker := time.NewTicker(m.settings.HeartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			if err := m.write(conn, events.EncodePing()); err != nil {
				m.handleClosed(conn, &TransportError{Op: "heartbeat", Err: err})
				return
			}
			glog.V(2).Infof("[conn]ping->")
		}
	}
}

func (m *Manager) write(conn *websocket.Conn, frame []byte) error {
	m.writeMu.Lock()
	defer m.writeMu.Unlock()
	conn.SetWriteDeadline(time.Now().Add(m.settings.WriteTimeout))
	return conn.WriteMessage(websocket.TextMessage, frame)
}

// handleClosed is the single exit path of an established connection. Only
// the first caller for a given conn has any effect.
func (m *Manager) handleClosed(conn *websocket.Conn, err error) {
	m.mu.Lock()
	if m.conn != conn {
		m.mu.Unlock()
		return
	}
	m.conn = nil
	if m.connDone != nil {
		close(m.connDone)
		m.connDone = nil
	}
	m.state = StateDisconnected
	closed := m.closed
	m.mu.Unlock()

	conn.Close()
	if closed {
		return
	}
	if err != nil && !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
		var terr *TransportError
		if !errors.As(err, &terr) {
			terr = &TransportError{Op: "read", Err: err}
		}
		glog.Infof("[conn]closed: %v", terr)
		m.notify(Notification{Kind: NotifyError, Err: terr})
	}
	m.notify(Notification{Kind: NotifyDisconnected})
	m.scheduleReconnect()
}

func (m *Manager) scheduleReconnect() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed || m.reconnectTimer != nil {
		return
	}
	if err := m.ctx.Err(); err != nil {
		glog.V(1).Infof("[conn]no reconnect: %v", err)
		return
	}
	glog.V(1).Infof("[conn]reconnect in %s", m.settings.ReconnectDelay)
	m.reconnectTimer = time.AfterFunc(m.settings.ReconnectDelay, m.reconnect)
}

func (m *Manager) reconnect() {
	m.mu.Lock()
	m.reconnectTimer = nil
	if m.closed || m.state != StateDisconnected {
		m.mu.Unlock()
		return
	}
	m.state = StateConnecting
	m.mu.Unlock()
	m.dial()
}
