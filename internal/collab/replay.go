package collab

import (
	"errors"

	"ideasync/internal/events"
	"ideasync/internal/models"
)

// Replayer applies events received from peers through the same domain rules
// as the local operations, without broadcasting them again.
type Replayer struct {
	svc *Service
}

var _ events.Handler = (*Replayer)(nil)

func NewReplayer(svc *Service) *Replayer {
	return &Replayer{svc: svc}
}

func (r *Replayer) UserJoined(ev models.Event) error {
	var data models.UserJoinedData
	if err := ev.DecodeData(&data); err != nil {
		return err
	}
	at := data.JoinedAt
	if at.IsZero() {
		at = ev.Timestamp
	}
	_, _, err := r.svc.applyJoin(ev.SessionID, ev.UserID, data.Username, at)
	return err
}

func (r *Replayer) UserLeft(ev models.Event) error {
	_, _, err := r.svc.applyLeave(ev.SessionID, ev.UserID)
	return err
}

func (r *Replayer) IdeaUpdated(ev models.Event) error {
	var data models.IdeaUpdatedData
	if err := ev.DecodeData(&data); err != nil {
		return err
	}
	return r.svc.applyIdea(ev.SessionID, ev.UserID, data.Idea, ev.Timestamp)
}

func (r *Replayer) CommentAdded(ev models.Event) error {
	var data models.CommentAddedData
	if err := ev.DecodeData(&data); err != nil {
		return err
	}
	return r.svc.applyComment(ev.SessionID, models.Comment{
		ID:        data.CommentID,
		UserID:    ev.UserID,
		Text:      data.Text,
		CreatedAt: ev.Timestamp,
	})
}

func (r *Replayer) CursorMoved(ev models.Event) error {
	var data models.CursorMovedData
	if err := ev.DecodeData(&data); err != nil {
		return err
	}
	r.svc.applyCursor(ev.SessionID, ev.UserID, data.Cursor)
	return nil
}

func (r *Replayer) SessionEnded(ev models.Event) error {
	_, err := r.svc.applyEnd(ev.SessionID, ev.UserID)
	return err
}

func (r *Replayer) OwnershipTransferred(ev models.Event) error {
	var data models.OwnershipTransferredData
	if err := ev.DecodeData(&data); err != nil {
		return err
	}
	if data.FromUserID == "" {
		data.FromUserID = ev.UserID
	}
	if data.ToUserID == "" {
		return errors.New("ownership transfer without target")
	}
	return r.svc.applyTransfer(ev.SessionID, data.FromUserID, data.ToUserID)
}

func (r *Replayer) UserTyping(ev models.Event) error {
	var data models.UserTypingData
	if err := ev.DecodeData(&data); err != nil {
		return err
	}
	r.svc.applyTyping(ev.SessionID, ev.UserID, data.Typing)
	return nil
}
