package projector

import (
	"context"
	"errors"

	"ideasync/internal/collab"
	"ideasync/internal/models"
)

var ErrNoSession = errors.New("no current session")

// CreateSession creates a session owned by the local user and makes it current.
func (p *Projector) CreateSession(ctx context.Context, title, initialIdea string, perms *models.Permissions) (*models.Session, error) {
	p.transition(func(s State) State {
		s.IsCreating = true
		s.Error = ""
		return s
	})
	session, err := p.api.CreateSession(ctx, collab.CreateRequest{
		UserID:      p.me.UserID,
		Username:    p.me.Username,
		Title:       title,
		InitialIdea: initialIdea,
		Permissions: perms,
	})
	p.transition(func(s State) State {
		s.IsCreating = false
		if err != nil {
			s.Error = err.Error()
			return s
		}
		s.Cursors = map[string]models.Cursor{}
		s.TypingUsers = map[string]struct{}{}
		return s.withSession(session.Clone())
	})
	return session, err
}

// JoinSession joins sessionID as the local user and makes it current.
func (p *Projector) JoinSession(ctx context.Context, sessionID string) (*models.Session, error) {
	p.transition(func(s State) State {
		s.IsJoining = true
		s.Error = ""
		return s
	})
	session, err := p.api.JoinSession(ctx, collab.JoinRequest{
		SessionID: sessionID,
		UserID:    p.me.UserID,
		Username:  p.me.Username,
	})
	p.transition(func(s State) State {
		s.IsJoining = false
		if err != nil {
			s.Error = err.Error()
			return s
		}
		s.Cursors = map[string]models.Cursor{}
		s.TypingUsers = map[string]struct{}{}
		return s.withSession(session.Clone())
	})
	return session, err
}

// LeaveSession leaves the current session and clears it.
func (p *Projector) LeaveSession(ctx context.Context) error {
	sessionID := p.currentSessionID()
	if sessionID == "" {
		return ErrNoSession
	}
	p.cancelTypingTimer(p.me.UserID)
	if err := p.api.LeaveSession(ctx, sessionID, p.me.UserID); err != nil {
		p.fail(err)
		return err
	}
	p.transition(func(s State) State {
		return s.withSession(nil)
	})
	return nil
}

// EndSession completes the current session; the resulting event marks it
// completed in the state.
func (p *Projector) EndSession(ctx context.Context) error {
	sessionID := p.currentSessionID()
	if sessionID == "" {
		return ErrNoSession
	}
	if err := p.api.EndSession(ctx, sessionID, p.me.UserID); err != nil {
		p.fail(err)
		return err
	}
	return nil
}

// UpdateIdea replaces the idea text of the current session.
func (p *Projector) UpdateIdea(ctx context.Context, idea string) error {
	sessionID := p.currentSessionID()
	if sessionID == "" {
		return ErrNoSession
	}
	if err := p.api.UpdateIdeaInSession(ctx, sessionID, p.me.UserID, idea); err != nil {
		p.fail(err)
		return err
	}
	return nil
}

// MoveCursor reports the local pointer position. It never fails.
func (p *Projector) MoveCursor(ctx context.Context, cursor models.Cursor) {
	sessionID := p.currentSessionID()
	if sessionID == "" {
		return
	}
	p.api.UpdateCursorPosition(ctx, sessionID, p.me.UserID, cursor)
}

// AddComment comments on the current session.
func (p *Projector) AddComment(ctx context.Context, text string) error {
	sessionID := p.currentSessionID()
	if sessionID == "" {
		return ErrNoSession
	}
	if _, err := p.api.AddComment(ctx, sessionID, p.me.UserID, text); err != nil {
		p.fail(err)
		return err
	}
	return nil
}

// ClearError resets the error message.
func (p *Projector) ClearError() {
	p.transition(func(s State) State {
		s.Error = ""
		return s
	})
}

func (p *Projector) fail(err error) {
	p.transition(func(s State) State {
		s.Error = err.Error()
		return s
	})
}
