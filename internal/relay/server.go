package relay

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang/glog"
	"github.com/gorilla/websocket"
	"github.com/oklog/ulid/v2"

	"ideasync/internal/auth"
	"ideasync/internal/config"
	"ideasync/internal/events"
	"ideasync/internal/models"
	"ideasync/internal/redis"
)

// Server forwards session events between connected clients and serves the
// session directory.
type Server struct {
	cfg        *config.Config
	instanceID string
	engine     *gin.Engine
	hub        *Hub
	dir        Directory
	fan        *fanout
	upgrader   websocket.Upgrader
}

type Option func(*Server)

// WithRedis enables cross-instance fan-out over client.
func WithRedis(client *redis.Client) Option {
	return func(s *Server) {
		if client != nil {
			s.fan = newFanout(client, s.instanceID)
		}
	}
}

// NewServer builds the relay. A nil dir keeps snapshots in memory.
func NewServer(cfg *config.Config, dir Directory, opts ...Option) *Server {
	if cfg == nil {
		cfg = config.Default()
	}
	if dir == nil {
		dir = NewMemoryDirectory()
	}
	s := &Server{
		cfg:        cfg,
		instanceID: ulid.Make().String(),
		hub:        NewHub(),
		dir:        dir,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			// identity is asserted by the fronting proxy, not by origin
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
	for _, opt := range opts {
		opt(s)
	}

	engine := gin.New()
	engine.Use(gin.Recovery(), requestLogger())
	s.engine = engine
	s.RegisterRoutes(engine)
	return s
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		glog.V(1).Infof("[relay]%s %s %d %s", c.Request.Method, c.Request.URL.Path, c.Writer.Status(), time.Since(start))
	}
}

// RegisterRoutes attaches all HTTP routes to the router.
func (s *Server) RegisterRoutes(router *gin.Engine) {
	router.GET("/healthz", s.health)
	router.GET("/ws", auth.Middleware(), s.serveWS)
	api := router.Group("/api")
	api.GET("/sessions/:session_id", s.getSession)
	api.GET("/users/:user_id/sessions", s.listUserSessions)
}

// Handler exposes the gin engine.
func (s *Server) Handler() http.Handler {
	return s.engine
}

func (s *Server) Hub() *Hub {
	return s.hub
}

func (s *Server) InstanceID() string {
	return s.instanceID
}

// Start launches background work that outlives single requests.
func (s *Server) Start(ctx context.Context) error {
	return s.fan.listen(ctx, func(sessionID string, event []byte) {
		n := s.hub.deliver(sessionID, event, nil)
		glog.V(2).Infof("[relay]fanout %s -> %d peers", sessionID, n)
	})
}

// Run serves on the configured address until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	if err := s.Start(ctx); err != nil {
		return err
	}
	srv := &http.Server{
		Addr:    s.cfg.BasicConfig.ServerAddress,
		Handler: s.engine,
	}
	errCh := make(chan error, 1)
	go func() {
		glog.Infof("[relay]instance %s listening on %s", s.instanceID, srv.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		s.hub.Close()
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	s.hub.Close()
	return srv.Shutdown(shutdownCtx)
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":   "ok",
		"instance": s.instanceID,
		"peers":    s.hub.PeerCount(),
	})
}

func (s *Server) getSession(c *gin.Context) {
	sessionID := c.Param("session_id")
	se, err := s.dir.Load(c.Request.Context(), sessionID)
	if errors.Is(err, ErrUnknownSession) {
		c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"session": se})
}

func (s *Server) listUserSessions(c *gin.Context) {
	list, err := s.dir.ListByUser(c.Request.Context(), c.Param("user_id"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if list == nil {
		list = make([]*models.Session, 0)
	}
	c.JSON(http.StatusOK, gin.H{"session_list": list})
}

func (s *Server) serveWS(c *gin.Context) {
	userID, _ := auth.UserIDFromContext(c)
	conn, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		glog.Warningf("[relay]upgrade for %s: %v", userID, err)
		return
	}
	p := newPeer(conn, userID, s.cfg.BasicConfig.SendQueueSize, s.cfg.BasicConfig.WriteTimeout())
	s.hub.register(p)
	glog.V(1).Infof("[relay]peer %s connected as %s", p.id, userID)

	go p.writeLoop()
	s.readLoop(p)
}

func (s *Server) readLoop(p *peer) {
	defer func() {
		s.hub.unregister(p)
		p.close()
		glog.V(1).Infof("[relay]peer %s disconnected", p.id)
	}()
	p.conn.SetReadLimit(maxFrameSize)
	for {
		_, frame, err := p.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				glog.V(1).Infof("[relay]peer %s read: %v", p.id, err)
			}
			return
		}
		s.handleFrame(p, frame)
	}
}

func (s *Server) handleFrame(p *peer, frame []byte) {
	cf, err := events.DecodeControl(frame)
	if err != nil {
		s.replyError(p, err.Error())
		return
	}
	glog.V(2).Infof("[relay]peer %s action %s session %s", p.id, cf.Action, cf.SessionID)

	switch cf.Action {
	case events.ActionPing:
		p.enqueue(events.EncodePong())
	case events.ActionSubscribe:
		if cf.SessionID == "" {
			s.replyError(p, "subscribe requires sessionId")
			return
		}
		s.hub.join(cf.SessionID, p)
	case events.ActionUnsubscribe:
		if cf.SessionID == "" {
			s.replyError(p, "unsubscribe requires sessionId")
			return
		}
		s.hub.leave(cf.SessionID, p)
	case events.ActionBroadcast:
		s.forward(p, cf)
	case events.ActionAnnounce:
		s.announce(p, cf)
	default:
		s.replyError(p, "unknown action "+cf.Action)
	}
}

// forward relays the event verbatim to the other peers of its session.
func (s *Server) forward(p *peer, cf events.ControlFrame) {
	ev, err := events.DecodeEvent(cf.Event)
	if err != nil {
		s.replyError(p, err.Error())
		return
	}
	sessionID := cf.SessionID
	if sessionID == "" {
		sessionID = ev.SessionID
	}
	if sessionID != ev.SessionID {
		s.replyError(p, "sessionId does not match event")
		return
	}
	s.hub.join(sessionID, p)
	n := s.hub.deliver(sessionID, cf.Event, p)
	glog.V(2).Infof("[relay]%s for %s -> %d peers", ev.Type, sessionID, n)
	s.fan.publish(context.Background(), sessionID, cf.Event)
}

func (s *Server) announce(p *peer, cf events.ControlFrame) {
	if cf.Session == nil || cf.Session.ID == "" {
		s.replyError(p, "announce requires session")
		return
	}
	if cf.SessionID != "" && cf.SessionID != cf.Session.ID {
		s.replyError(p, "sessionId does not match session")
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.dir.Save(ctx, cf.Session); err != nil {
		glog.Errorf("[relay]save snapshot %s: %v", cf.Session.ID, err)
		s.replyError(p, "announce failed")
	}
}

func (s *Server) replyError(p *peer, msg string) {
	p.enqueue(events.EncodeError(msg))
}
