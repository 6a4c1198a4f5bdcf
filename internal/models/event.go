package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// EventType enumerates every notification exchanged between peers.
type EventType string

const (
	EventUserJoined           EventType = "user_joined"
	EventUserLeft             EventType = "user_left"
	EventIdeaUpdated          EventType = "idea_updated"
	EventCommentAdded         EventType = "comment_added"
	EventCursorMoved          EventType = "cursor_moved"
	EventSessionEnded         EventType = "session_ended"
	EventOwnershipTransferred EventType = "ownership_transferred"
	EventUserTyping           EventType = "user_typing"
)

// EventTypes lists the closed set of event kinds.
var EventTypes = []EventType{
	EventUserJoined,
	EventUserLeft,
	EventIdeaUpdated,
	EventCommentAdded,
	EventCursorMoved,
	EventSessionEnded,
	EventOwnershipTransferred,
	EventUserTyping,
}

// Valid reports whether t belongs to the closed set.
func (t EventType) Valid() bool {
	for _, known := range EventTypes {
		if t == known {
			return true
		}
	}
	return false
}

// Event is both the wire message and the local notification.
type Event struct {
	Type      EventType       `json:"type"`
	SessionID string          `json:"sessionId"`
	UserID    string          `json:"userId"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data,omitempty"`
}

// NewEvent builds an event stamped with the current time.
func NewEvent(typ EventType, sessionID, userID string, payload any) (Event, error) {
	ev := Event{
		Type:      typ,
		SessionID: sessionID,
		UserID:    userID,
		Timestamp: time.Now().UTC(),
	}
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return Event{}, fmt.Errorf("encode %s payload: %w", typ, err)
		}
		ev.Data = data
	}
	return ev, nil
}

// DecodeData unmarshals the payload into v. An empty payload leaves v untouched.
func (e Event) DecodeData(v any) error {
	if len(e.Data) == 0 || string(e.Data) == "null" {
		return nil
	}
	if err := json.Unmarshal(e.Data, v); err != nil {
		return fmt.Errorf("decode %s payload: %w", e.Type, err)
	}
	return nil
}

type UserJoinedData struct {
	Username string    `json:"username"`
	Role     Role      `json:"role"`
	JoinedAt time.Time `json:"joinedAt"`
}

type UserLeftData struct {
	NewOwnerID string `json:"newOwnerId,omitempty"`
}

type IdeaUpdatedData struct {
	Idea string `json:"idea"`
}

type CommentAddedData struct {
	CommentID string `json:"commentId"`
	Text      string `json:"text"`
}

type CursorMovedData struct {
	Cursor
}

type SessionEndedData struct {
	EndedBy string `json:"endedBy"`
}

type OwnershipTransferredData struct {
	FromUserID string `json:"fromUserId"`
	ToUserID   string `json:"toUserId"`
}

type UserTypingData struct {
	Typing bool `json:"typing"`
}
