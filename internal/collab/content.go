package collab

import (
	"context"
	"strings"
	"time"

	"ideasync/internal/models"
)

// UpdateIdeaInSession replaces the idea text wholesale. Concurrent updates
// are not merged; whichever this process applies last wins.
func (s *Service) UpdateIdeaInSession(ctx context.Context, sessionID, userID, idea string) error {
	if err := s.applyIdea(sessionID, userID, idea, s.now()); err != nil {
		return err
	}
	s.broadcast(ctx, models.EventIdeaUpdated, sessionID, userID, models.IdeaUpdatedData{Idea: idea})
	return nil
}

// UpdateCursorPosition records the caller's pointer. Cursor telemetry is
// lossy: unknown sessions or participants are ignored without error.
func (s *Service) UpdateCursorPosition(ctx context.Context, sessionID, userID string, cursor models.Cursor) {
	if !s.applyCursor(sessionID, userID, cursor) {
		return
	}
	s.broadcast(ctx, models.EventCursorMoved, sessionID, userID, models.CursorMovedData{Cursor: cursor})
}

// AddComment appends a comment to the session.
func (s *Service) AddComment(ctx context.Context, sessionID, userID, text string) (*models.Comment, error) {
	comment := models.Comment{
		ID:        s.newID(),
		UserID:    userID,
		Text:      strings.TrimSpace(text),
		CreatedAt: s.now(),
	}
	if err := s.applyComment(sessionID, comment); err != nil {
		return nil, err
	}
	s.broadcast(ctx, models.EventCommentAdded, sessionID, userID, models.CommentAddedData{
		CommentID: comment.ID,
		Text:      comment.Text,
	})
	return &comment, nil
}

// SetTyping toggles the caller's typing presence. Like cursors it is best
// effort and never fails.
func (s *Service) SetTyping(ctx context.Context, sessionID, userID string, typing bool) {
	if !s.applyTyping(sessionID, userID, typing) {
		return
	}
	s.broadcast(ctx, models.EventUserTyping, sessionID, userID, models.UserTypingData{Typing: typing})
}

func (s *Service) applyIdea(sessionID, userID, idea string, at time.Time) error {
	_, err := s.store.Update(sessionID, func(se *models.Session) error {
		if !se.IsActive() {
			return ErrSessionEnded
		}
		if !CanEditContent(se.Participant(userID), se) {
			return ErrEditDenied
		}
		se.CurrentIdea = idea
		se.UpdatedAt = at
		return nil
	})
	return err
}

func (s *Service) applyCursor(sessionID, userID string, cursor models.Cursor) bool {
	applied := false
	_, _ = s.store.Update(sessionID, func(se *models.Session) error {
		p := se.Participant(userID)
		if p == nil || !se.IsActive() {
			return nil
		}
		c := cursor
		p.Cursor = &c
		applied = true
		return nil
	})
	return applied
}

func (s *Service) applyComment(sessionID string, comment models.Comment) error {
	_, err := s.store.Update(sessionID, func(se *models.Session) error {
		if !se.IsActive() {
			return ErrSessionEnded
		}
		if !CanComment(se.Participant(comment.UserID), se) {
			return ErrCommentDenied
		}
		se.Comments = append(se.Comments, comment)
		se.UpdatedAt = comment.CreatedAt
		return nil
	})
	return err
}

func (s *Service) applyTyping(sessionID, userID string, typing bool) bool {
	applied := false
	_, _ = s.store.Update(sessionID, func(se *models.Session) error {
		p := se.Participant(userID)
		if p == nil || p.Status == models.PresenceOffline || !se.IsActive() {
			return nil
		}
		if typing {
			p.Status = models.PresenceTyping
		} else {
			p.Status = models.PresenceOnline
		}
		applied = true
		return nil
	})
	return applied
}
