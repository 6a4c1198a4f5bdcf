package projector

import (
	"context"
	"sync"
	"time"

	"github.com/golang/glog"

	"ideasync/internal/collab"
	"ideasync/internal/connection"
	"ideasync/internal/events"
	"ideasync/internal/models"
)

const DefaultTypingTimeout = 3 * time.Second

// API is the subset of the lifecycle and content operations the projector's
// actions call into. *collab.Service satisfies it.
type API interface {
	CreateSession(ctx context.Context, req collab.CreateRequest) (*models.Session, error)
	JoinSession(ctx context.Context, req collab.JoinRequest) (*models.Session, error)
	LeaveSession(ctx context.Context, sessionID, userID string) error
	EndSession(ctx context.Context, sessionID, hostUserID string) error
	UpdateIdeaInSession(ctx context.Context, sessionID, userID, idea string) error
	UpdateCursorPosition(ctx context.Context, sessionID, userID string, cursor models.Cursor)
	AddComment(ctx context.Context, sessionID, userID, text string) (*models.Comment, error)
	SetTyping(ctx context.Context, sessionID, userID string, typing bool)
}

// Notifier delivers connection lifecycle notifications.
// *connection.Manager satisfies it.
type Notifier interface {
	Notify(fn func(connection.Notification)) (cancel func())
}

// Identity is the local user as supplied by the caller.
type Identity struct {
	UserID   string
	Username string
}

// Projector folds connection notifications and domain events into a State.
// It never writes to the session store; its actions go through API and the
// resulting events come back through the bus.
type Projector struct {
	api           API
	bus           *events.Bus
	me            Identity
	typingTimeout time.Duration

	mu        sync.Mutex
	state     State
	observers map[int]func(State)
	nextObs   int

	typingTimers map[string]*time.Timer
	typingGen    map[string]uint64
	typingSentAt time.Time

	subs       []events.Subscription
	connCancel func()
	closed     bool
}

type Option func(*Projector)

// WithTypingTimeout overrides the typing indicator debounce.
func WithTypingTimeout(d time.Duration) Option {
	return func(p *Projector) {
		if d > 0 {
			p.typingTimeout = d
		}
	}
}

// New subscribes a projector to every event kind on bus.
func New(api API, bus *events.Bus, me Identity, opts ...Option) *Projector {
	p := &Projector{
		api:           api,
		bus:           bus,
		me:            me,
		typingTimeout: DefaultTypingTimeout,
		state:         emptyState(),
		observers:     make(map[int]func(State)),
		typingTimers:  make(map[string]*time.Timer),
		typingGen:     make(map[string]uint64),
	}
	for _, opt := range opts {
		opt(p)
	}
	if bus != nil {
		for _, typ := range models.EventTypes {
			p.subs = append(p.subs, bus.Subscribe(typ, p.apply))
		}
	}
	return p
}

// AttachConnection follows the connection flags of n.
func (p *Projector) AttachConnection(n Notifier) {
	cancel := n.Notify(p.onConnection)
	p.mu.Lock()
	if p.connCancel != nil {
		p.connCancel()
	}
	p.connCancel = cancel
	p.mu.Unlock()
}

// State returns a copy of the current state.
func (p *Projector) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state.clone()
}

// OnChange registers fn to observe every state transition.
func (p *Projector) OnChange(fn func(State)) (cancel func()) {
	p.mu.Lock()
	p.nextObs++
	id := p.nextObs
	p.observers[id] = fn
	p.mu.Unlock()
	return func() {
		p.mu.Lock()
		delete(p.observers, id)
		p.mu.Unlock()
	}
}

// Close cancels every timer and subscription.
func (p *Projector) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	for userID, t := range p.typingTimers {
		t.Stop()
		delete(p.typingTimers, userID)
	}
	subs := p.subs
	p.subs = nil
	connCancel := p.connCancel
	p.connCancel = nil
	p.mu.Unlock()

	if p.bus != nil {
		for _, id := range subs {
			p.bus.Unsubscribe(id)
		}
	}
	if connCancel != nil {
		connCancel()
	}
}

// transition applies fn to a copy of the state and publishes the result.
func (p *Projector) transition(fn func(State) State) {
	p.mu.Lock()
	next := fn(p.state.clone())
	p.state = next
	observers := make([]func(State), 0, len(p.observers))
	for _, o := range p.observers {
		observers = append(observers, o)
	}
	p.mu.Unlock()

	for _, o := range observers {
		o(next.clone())
	}
}

func (p *Projector) onConnection(n connection.Notification) {
	p.transition(func(s State) State {
		switch n.Kind {
		case connection.NotifyConnected:
			s.IsConnected = true
		case connection.NotifyDisconnected:
			s.IsConnected = false
		case connection.NotifyError:
			if n.Err != nil {
				s.Error = n.Err.Error()
			}
		}
		return s
	})
}

func (p *Projector) currentSessionID() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state.CurrentSession == nil {
		return ""
	}
	return p.state.CurrentSession.ID
}

func (p *Projector) apply(ev models.Event) {
	if ev.SessionID == "" || ev.SessionID != p.currentSessionID() {
		return
	}
	switch ev.Type {
	case models.EventUserTyping:
		var data models.UserTypingData
		if err := ev.DecodeData(&data); err != nil {
			glog.Warningf("[projector]%v", err)
			return
		}
		if data.Typing {
			p.markTyping(ev.UserID)
		} else {
			p.clearTyping(ev.UserID)
		}
		return
	case models.EventUserLeft:
		p.cancelTypingTimer(ev.UserID)
	}

	p.transition(func(s State) State {
		se := s.CurrentSession
		if se == nil || se.ID != ev.SessionID {
			return s
		}
		if err := fold(&s, se, ev); err != nil {
			glog.Warningf("[projector]fold %s: %v", ev.Type, err)
			return s
		}
		return s.withSession(se)
	})
}

// fold applies ev to se (a private copy) and to the cursor and typing maps.
func fold(s *State, se *models.Session, ev models.Event) error {
	switch ev.Type {
	case models.EventUserJoined:
		var data models.UserJoinedData
		if err := ev.DecodeData(&data); err != nil {
			return err
		}
		at := data.JoinedAt
		if at.IsZero() {
			at = ev.Timestamp
		}
		se.AddParticipant(ev.UserID, data.Username, at)
	case models.EventUserLeft:
		se.MarkOffline(ev.UserID)
		delete(s.Cursors, ev.UserID)
		delete(s.TypingUsers, ev.UserID)
	case models.EventIdeaUpdated:
		var data models.IdeaUpdatedData
		if err := ev.DecodeData(&data); err != nil {
			return err
		}
		se.CurrentIdea = data.Idea
		se.UpdatedAt = ev.Timestamp
	case models.EventCommentAdded:
		var data models.CommentAddedData
		if err := ev.DecodeData(&data); err != nil {
			return err
		}
		se.Comments = append(se.Comments, models.Comment{
			ID:        data.CommentID,
			UserID:    ev.UserID,
			Text:      data.Text,
			CreatedAt: ev.Timestamp,
		})
	case models.EventCursorMoved:
		var data models.CursorMovedData
		if err := ev.DecodeData(&data); err != nil {
			return err
		}
		participant := se.Participant(ev.UserID)
		if participant == nil || !se.IsActive() {
			return nil
		}
		c := data.Cursor
		participant.Cursor = &c
		s.Cursors[ev.UserID] = c
	case models.EventSessionEnded:
		se.Status = models.SessionCompleted
	case models.EventOwnershipTransferred:
		var data models.OwnershipTransferredData
		if err := ev.DecodeData(&data); err != nil {
			return err
		}
		se.TransferOwnership(data.FromUserID, data.ToUserID)
	}
	return nil
}
