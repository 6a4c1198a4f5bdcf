package events

import (
	"encoding/json"
	"errors"
	"fmt"

	"ideasync/internal/models"
)

// Control frame actions.
const (
	ActionBroadcast   = "broadcast"
	ActionPing        = "ping"
	ActionPong        = "pong"
	ActionSubscribe   = "subscribe"
	ActionUnsubscribe = "unsubscribe"
	ActionAnnounce    = "announce"
	ActionError       = "error"
)

var (
	ErrMalformedFrame = errors.New("malformed frame")
	ErrUnknownEvent   = errors.New("unknown event type")
)

// ControlFrame is the envelope for every frame that carries an action.
type ControlFrame struct {
	Action    string          `json:"action"`
	SessionID string          `json:"sessionId,omitempty"`
	Event     json.RawMessage `json:"event,omitempty"`
	Session   *models.Session `json:"session,omitempty"`
	Error     string          `json:"error,omitempty"`
}

// DecodeControl parses a frame carrying an action.
func DecodeControl(frame []byte) (ControlFrame, error) {
	var cf ControlFrame
	if err := json.Unmarshal(frame, &cf); err != nil {
		return ControlFrame{}, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}
	if cf.Action == "" {
		return ControlFrame{}, fmt.Errorf("%w: missing action", ErrMalformedFrame)
	}
	return cf, nil
}

// DecodeEvent parses a domain event frame and validates its envelope.
func DecodeEvent(frame []byte) (models.Event, error) {
	var ev models.Event
	if err := json.Unmarshal(frame, &ev); err != nil {
		return models.Event{}, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}
	if ev.Type == "" || ev.SessionID == "" {
		return models.Event{}, fmt.Errorf("%w: missing type or sessionId", ErrMalformedFrame)
	}
	if !ev.Type.Valid() {
		return models.Event{}, fmt.Errorf("%w: %q", ErrUnknownEvent, ev.Type)
	}
	return ev, nil
}

// IsControl reports whether the frame is a control frame rather than an event.
func IsControl(frame []byte) bool {
	var envelope struct {
		Action string `json:"action"`
	}
	if err := json.Unmarshal(frame, &envelope); err != nil {
		return false
	}
	return envelope.Action != ""
}

func EncodeBroadcast(ev models.Event) ([]byte, error) {
	raw, err := json.Marshal(ev)
	if err != nil {
		return nil, fmt.Errorf("encode event: %w", err)
	}
	return json.Marshal(ControlFrame{Action: ActionBroadcast, SessionID: ev.SessionID, Event: raw})
}

func EncodePing() []byte {
	return []byte(`{"action":"ping"}`)
}

func EncodePong() []byte {
	return []byte(`{"action":"pong"}`)
}

func EncodeSubscribe(sessionID string) ([]byte, error) {
	return json.Marshal(ControlFrame{Action: ActionSubscribe, SessionID: sessionID})
}

func EncodeUnsubscribe(sessionID string) ([]byte, error) {
	return json.Marshal(ControlFrame{Action: ActionUnsubscribe, SessionID: sessionID})
}

func EncodeAnnounce(session *models.Session) ([]byte, error) {
	if session == nil {
		return nil, errors.New("session required")
	}
	return json.Marshal(ControlFrame{Action: ActionAnnounce, SessionID: session.ID, Session: session})
}

func EncodeError(msg string) []byte {
	data, err := json.Marshal(ControlFrame{Action: ActionError, Error: msg})
	if err != nil {
		return []byte(`{"action":"error"}`)
	}
	return data
}
