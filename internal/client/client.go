package client

import (
	"context"
	"errors"
	"net/http"
	"net/url"

	"github.com/golang/glog"

	"ideasync/internal/collab"
	"ideasync/internal/config"
	"ideasync/internal/connection"
	"ideasync/internal/events"
	"ideasync/internal/models"
	"ideasync/internal/projector"
)

// UserHeader carries the caller-supplied identity to the relay. It is
// trusted as is.
const UserHeader = "X-User-ID"

// Client is one process's handle on the collaboration core: a single relay
// connection, the local session store, the event router and the state
// projector.
type Client struct {
	me projector.Identity

	bus       *events.Bus
	store     *collab.Store
	svc       *collab.Service
	router    *events.Router
	conn      *connection.Manager
	proj      *projector.Projector
	directory *Directory

	connCancel func()
}

type options struct {
	dialer     connection.Dialer
	httpClient *http.Client
	svcOpts    []collab.Option
}

type Option func(*options)

func WithDialer(d connection.Dialer) Option {
	return func(o *options) { o.dialer = d }
}

func WithHTTPClient(hc *http.Client) Option {
	return func(o *options) { o.httpClient = hc }
}

func WithServiceOptions(opts ...collab.Option) Option {
	return func(o *options) { o.svcOpts = append(o.svcOpts, opts...) }
}

// New wires the collaboration core for the user me. Nothing is dialed until
// Connect is called.
func New(ctx context.Context, cfg config.ClientConfig, me projector.Identity, opts ...Option) *Client {
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}

	c := &Client{me: me}
	c.bus = events.NewBus()
	c.store = collab.NewStore()
	broadcaster := &relayBroadcaster{bus: c.bus}
	c.svc = collab.NewService(c.store, broadcaster, o.svcOpts...)
	c.router = events.NewRouter(collab.NewReplayer(c.svc), c.bus)

	header := http.Header{}
	header.Set(UserHeader, me.UserID)
	settings := &connection.Settings{
		URL:               relayURL(cfg.RelayURL, me.UserID),
		Header:            header,
		HeartbeatInterval: cfg.HeartbeatInterval(),
		ReconnectDelay:    cfg.ReconnectDelay(),
	}
	var connOpts []connection.Option
	if o.dialer != nil {
		connOpts = append(connOpts, connection.WithDialer(o.dialer))
	}
	c.conn = connection.NewManager(ctx, settings, c.router.HandleFrame, connOpts...)
	broadcaster.sender = c.conn
	c.connCancel = c.conn.Notify(c.onConnection)

	c.directory = NewDirectory(cfg.DirectoryURL, o.httpClient)
	c.proj = projector.New(c, c.bus, me, projector.WithTypingTimeout(cfg.TypingTimeout()))
	c.proj.AttachConnection(c.conn)
	return c
}

func relayURL(raw, userID string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	q := u.Query()
	q.Set("user_id", userID)
	u.RawQuery = q.Encode()
	return u.String()
}

// Identity returns the local user.
func (c *Client) Identity() projector.Identity {
	return c.me
}

// Projector returns the derived client state.
func (c *Client) Projector() *projector.Projector {
	return c.proj
}

// Connection exposes the relay connection for lifecycle observers.
func (c *Client) Connection() *connection.Manager {
	return c.conn
}

// Connect starts dialing the relay in the background.
func (c *Client) Connect() error {
	return c.conn.Connect()
}

// WaitConnected blocks until the relay connection is up.
func (c *Client) WaitConnected(ctx context.Context) error {
	return c.conn.WaitConnected(ctx)
}

// Disconnect closes the connection and clears every subscription.
func (c *Client) Disconnect() {
	c.proj.Close()
	if c.connCancel != nil {
		c.connCancel()
	}
	c.conn.Close()
	c.conn.ClearListeners()
	c.bus.Clear()
}

// Subscribe registers fn for one event kind.
func (c *Client) Subscribe(typ models.EventType, fn events.Listener) events.Subscription {
	return c.bus.Subscribe(typ, fn)
}

// SubscribeAll registers fn for every event kind.
func (c *Client) SubscribeAll(fn events.Listener) events.Subscription {
	return c.bus.SubscribeAll(fn)
}

func (c *Client) Unsubscribe(id events.Subscription) {
	c.bus.Unsubscribe(id)
}

func (c *Client) CreateSession(ctx context.Context, req collab.CreateRequest) (*models.Session, error) {
	session, err := c.svc.CreateSession(ctx, req)
	if err != nil {
		return nil, err
	}
	c.subscribe(session.ID)
	c.announce(session)
	return session, nil
}

func (c *Client) JoinSession(ctx context.Context, req collab.JoinRequest) (*models.Session, error) {
	session, err := c.svc.JoinSession(ctx, req)
	if err != nil {
		return nil, err
	}
	c.subscribe(session.ID)
	c.announce(session)
	return session, nil
}

func (c *Client) LeaveSession(ctx context.Context, sessionID, userID string) error {
	if err := c.svc.LeaveSession(ctx, sessionID, userID); err != nil {
		return err
	}
	c.announceID(sessionID)
	if userID == c.me.UserID {
		c.unsubscribe(sessionID)
	}
	return nil
}

func (c *Client) EndSession(ctx context.Context, sessionID, hostUserID string) error {
	if err := c.svc.EndSession(ctx, sessionID, hostUserID); err != nil {
		return err
	}
	c.announceID(sessionID)
	return nil
}

func (c *Client) TransferOwnership(ctx context.Context, sessionID, fromUserID, toUserID string) error {
	if err := c.svc.TransferOwnership(ctx, sessionID, fromUserID, toUserID); err != nil {
		return err
	}
	c.announceID(sessionID)
	return nil
}

func (c *Client) UpdateIdeaInSession(ctx context.Context, sessionID, userID, idea string) error {
	if err := c.svc.UpdateIdeaInSession(ctx, sessionID, userID, idea); err != nil {
		return err
	}
	c.announceID(sessionID)
	return nil
}

func (c *Client) UpdateCursorPosition(ctx context.Context, sessionID, userID string, cursor models.Cursor) {
	c.svc.UpdateCursorPosition(ctx, sessionID, userID, cursor)
}

func (c *Client) AddComment(ctx context.Context, sessionID, userID, text string) (*models.Comment, error) {
	comment, err := c.svc.AddComment(ctx, sessionID, userID, text)
	if err != nil {
		return nil, err
	}
	c.announceID(sessionID)
	return comment, nil
}

func (c *Client) SetTyping(ctx context.Context, sessionID, userID string, typing bool) {
	c.svc.SetTyping(ctx, sessionID, userID, typing)
}

func (c *Client) GetSession(sessionID string) (*models.Session, bool) {
	return c.svc.GetSession(sessionID)
}

func (c *Client) GetUserSessions(userID string) []*models.Session {
	return c.svc.GetUserSessions(userID)
}

// FetchSession looks a session up in the relay directory and imports it into
// the local store, so sessions created by other processes can be joined. A
// session already known locally is returned from the store.
func (c *Client) FetchSession(ctx context.Context, sessionID string) (*models.Session, error) {
	if se, ok := c.store.Get(sessionID); ok {
		return se, nil
	}
	se, err := c.directory.Session(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	c.store.Import(se)
	local, ok := c.store.Get(sessionID)
	if !ok {
		return nil, collab.ErrSessionNotFound
	}
	return local, nil
}

// RemoteSessions lists what the relay directory knows about userID.
func (c *Client) RemoteSessions(ctx context.Context, userID string) ([]*models.Session, error) {
	return c.directory.UserSessions(ctx, userID)
}

// onConnection re-subscribes to every session the local user is still part
// of whenever the relay connection comes (back) up.
func (c *Client) onConnection(n connection.Notification) {
	if n.Kind != connection.NotifyConnected {
		return
	}
	for _, se := range c.store.SessionsFor(c.me.UserID) {
		p := se.Participant(c.me.UserID)
		if !se.IsActive() || p == nil || p.Status == models.PresenceOffline {
			continue
		}
		c.subscribe(se.ID)
	}
}

func (c *Client) subscribe(sessionID string) {
	frame, err := events.EncodeSubscribe(sessionID)
	if err != nil {
		glog.Errorf("[client]encode subscribe: %v", err)
		return
	}
	c.send(frame, "subscribe", sessionID)
}

func (c *Client) unsubscribe(sessionID string) {
	frame, err := events.EncodeUnsubscribe(sessionID)
	if err != nil {
		glog.Errorf("[client]encode unsubscribe: %v", err)
		return
	}
	c.send(frame, "unsubscribe", sessionID)
}

func (c *Client) announceID(sessionID string) {
	if se, ok := c.store.Get(sessionID); ok {
		c.announce(se)
	}
}

// announce publishes the snapshot to the relay directory.
func (c *Client) announce(session *models.Session) {
	frame, err := events.EncodeAnnounce(session)
	if err != nil {
		glog.Errorf("[client]encode announce: %v", err)
		return
	}
	c.send(frame, "announce", session.ID)
}

func (c *Client) send(frame []byte, what, sessionID string) {
	if err := c.conn.Send(frame); err != nil {
		if errors.Is(err, connection.ErrNotConnected) {
			glog.V(1).Infof("[client]%s %s deferred: not connected", what, sessionID)
			return
		}
		glog.Warningf("[client]%s %s: %v", what, sessionID, err)
	}
}
