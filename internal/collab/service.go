package collab

import (
	"context"
	"strings"
	"time"

	"github.com/golang/glog"
	"github.com/google/uuid"

	"ideasync/internal/models"
)

// Broadcaster delivers an event produced by a local mutation to the rest of
// the session. Implementations must not block on the network for long and
// never report transport failures back to the caller.
type Broadcaster interface {
	Broadcast(ctx context.Context, ev models.Event)
}

type nopBroadcaster struct{}

func (nopBroadcaster) Broadcast(context.Context, models.Event) {}

// CreateRequest describes a new session.
type CreateRequest struct {
	UserID      string
	Username    string
	Title       string
	InitialIdea string
	Permissions *models.Permissions
}

// JoinRequest describes a user entering an existing session.
type JoinRequest struct {
	SessionID string
	UserID    string
	Username  string
}

// Service is the session lifecycle API and the only writer of the Store.
type Service struct {
	store       *Store
	broadcaster Broadcaster
	now         func() time.Time
	newID       func() string
}

type Option func(*Service)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithIDGenerator overrides session and comment id generation.
func WithIDGenerator(fn func() string) Option {
	return func(s *Service) { s.newID = fn }
}

// NewService builds the lifecycle API over store. A nil broadcaster keeps
// every mutation local.
func NewService(store *Store, broadcaster Broadcaster, opts ...Option) *Service {
	if broadcaster == nil {
		broadcaster = nopBroadcaster{}
	}
	s := &Service{
		store:       store,
		broadcaster: broadcaster,
		now:         func() time.Time { return time.Now().UTC() },
		newID:       func() string { return uuid.NewString() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Store exposes the backing session table.
func (s *Service) Store() *Store {
	return s.store
}

// CreateSession registers a new active session owned by the caller. It is
// never acknowledged by a remote authority.
func (s *Service) CreateSession(ctx context.Context, req CreateRequest) (*models.Session, error) {
	now := s.now()
	perms := models.DefaultPermissions()
	if req.Permissions != nil {
		perms = *req.Permissions
	}
	session := &models.Session{
		ID:          s.newID(),
		Title:       strings.TrimSpace(req.Title),
		CreatedBy:   req.UserID,
		CreatedAt:   now,
		UpdatedAt:   now,
		CurrentIdea: req.InitialIdea,
		Status:      models.SessionActive,
		Permissions: perms,
		Participants: []models.Participant{{
			UserID:      req.UserID,
			Username:    req.Username,
			Role:        models.RoleOwner,
			Status:      models.PresenceOnline,
			JoinedAt:    now,
			Permissions: models.OwnerPermissions(),
		}},
	}
	s.store.Put(session)
	s.store.Index(req.UserID, session.ID)
	glog.V(1).Infof("[collab]session %s created by %s", session.ID, req.UserID)
	return session.Clone(), nil
}

// JoinSession adds the caller as an editor, or marks an existing member
// online again without duplicating the record.
func (s *Service) JoinSession(ctx context.Context, req JoinRequest) (*models.Session, error) {
	at := s.now()
	session, added, err := s.applyJoin(req.SessionID, req.UserID, req.Username, at)
	if err != nil {
		return nil, err
	}
	if added {
		s.broadcast(ctx, models.EventUserJoined, req.SessionID, req.UserID, models.UserJoinedData{
			Username: req.Username,
			Role:     models.RoleEditor,
			JoinedAt: at,
		})
	}
	return session, nil
}

// LeaveSession marks the caller offline, moving ownership or completing the
// session as needed.
func (s *Service) LeaveSession(ctx context.Context, sessionID, userID string) error {
	_, newOwner, err := s.applyLeave(sessionID, userID)
	if err != nil {
		return err
	}
	s.broadcast(ctx, models.EventUserLeft, sessionID, userID, models.UserLeftData{NewOwnerID: newOwner})
	return nil
}

// EndSession completes the session. Only the current owner may end it.
func (s *Service) EndSession(ctx context.Context, sessionID, hostUserID string) error {
	changed, err := s.applyEnd(sessionID, hostUserID)
	if err != nil {
		return err
	}
	if changed {
		s.broadcast(ctx, models.EventSessionEnded, sessionID, hostUserID, models.SessionEndedData{EndedBy: hostUserID})
	}
	return nil
}

// TransferOwnership hands the owner role to another participant.
func (s *Service) TransferOwnership(ctx context.Context, sessionID, fromUserID, toUserID string) error {
	if err := s.applyTransfer(sessionID, fromUserID, toUserID); err != nil {
		return err
	}
	s.broadcast(ctx, models.EventOwnershipTransferred, sessionID, fromUserID, models.OwnershipTransferredData{
		FromUserID: fromUserID,
		ToUserID:   toUserID,
	})
	return nil
}

// GetSession returns a copy of a locally known session.
func (s *Service) GetSession(sessionID string) (*models.Session, bool) {
	return s.store.Get(sessionID)
}

// GetUserSessions returns the sessions userID created or joined, in the
// order they were added.
func (s *Service) GetUserSessions(userID string) []*models.Session {
	return s.store.SessionsFor(userID)
}

func (s *Service) applyJoin(sessionID, userID, username string, at time.Time) (*models.Session, bool, error) {
	var added bool
	session, err := s.store.Update(sessionID, func(se *models.Session) error {
		if !se.IsActive() {
			return ErrSessionEnded
		}
		added = se.AddParticipant(userID, username, at)
		se.UpdatedAt = at
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	s.store.Index(userID, sessionID)
	return session, added, nil
}

func (s *Service) applyLeave(sessionID, userID string) (*models.Session, string, error) {
	var newOwner string
	session, err := s.store.Update(sessionID, func(se *models.Session) error {
		if se.Participant(userID) == nil {
			return ErrParticipantNotFound
		}
		newOwner = se.MarkOffline(userID)
		se.UpdatedAt = s.now()
		return nil
	})
	if err != nil {
		return nil, "", err
	}
	if newOwner != "" {
		glog.V(1).Infof("[collab]session %s ownership %s -> %s", sessionID, userID, newOwner)
	}
	return session, newOwner, nil
}

func (s *Service) applyEnd(sessionID, userID string) (bool, error) {
	var changed bool
	_, err := s.store.Update(sessionID, func(se *models.Session) error {
		if !IsOwner(se.Participant(userID)) {
			return ErrNotOwner
		}
		if se.Status == models.SessionCompleted {
			return nil
		}
		se.Status = models.SessionCompleted
		se.UpdatedAt = s.now()
		changed = true
		return nil
	})
	return changed, err
}

func (s *Service) applyTransfer(sessionID, fromUserID, toUserID string) error {
	_, err := s.store.Update(sessionID, func(se *models.Session) error {
		if !se.IsActive() {
			return ErrSessionEnded
		}
		if !IsOwner(se.Participant(fromUserID)) {
			return ErrNotOwner
		}
		if !se.TransferOwnership(fromUserID, toUserID) {
			return ErrParticipantNotFound
		}
		se.UpdatedAt = s.now()
		return nil
	})
	return err
}

func (s *Service) broadcast(ctx context.Context, typ models.EventType, sessionID, userID string, payload any) {
	ev, err := models.NewEvent(typ, sessionID, userID, payload)
	if err != nil {
		glog.Errorf("[collab]build %s event: %v", typ, err)
		return
	}
	s.broadcaster.Broadcast(ctx, ev)
}
