package events

import (
	"fmt"

	"github.com/golang/glog"

	"ideasync/internal/models"
)

// Handler has one method per event kind. Adding a kind to models.EventTypes
// requires a method here and a case in Router.dispatch.
type Handler interface {
	UserJoined(models.Event) error
	UserLeft(models.Event) error
	IdeaUpdated(models.Event) error
	CommentAdded(models.Event) error
	CursorMoved(models.Event) error
	SessionEnded(models.Event) error
	OwnershipTransferred(models.Event) error
	UserTyping(models.Event) error
}

// Router turns inbound transport frames into domain events, applies them
// through the handler table and re-emits them on the local bus.
type Router struct {
	handler Handler
	bus     *Bus
}

func NewRouter(handler Handler, bus *Bus) *Router {
	return &Router{handler: handler, bus: bus}
}

// HandleFrame processes one inbound frame. Malformed frames are logged and
// dropped.
func (r *Router) HandleFrame(frame []byte) {
	if IsControl(frame) {
		r.handleControl(frame)
		return
	}
	ev, err := DecodeEvent(frame)
	if err != nil {
		glog.Warningf("[router]drop inbound frame: %v", err)
		return
	}
	r.Route(ev)
}

// Route dispatches an already decoded event.
func (r *Router) Route(ev models.Event) {
	if r.handler != nil {
		if err := r.dispatch(ev); err != nil {
			glog.Warningf("[router]apply %s for session %s from %s: %v", ev.Type, ev.SessionID, ev.UserID, err)
		}
	}
	if r.bus != nil {
		r.bus.Publish(ev)
	}
}

func (r *Router) dispatch(ev models.Event) error {
	switch ev.Type {
	case models.EventUserJoined:
		return r.handler.UserJoined(ev)
	case models.EventUserLeft:
		return r.handler.UserLeft(ev)
	case models.EventIdeaUpdated:
		return r.handler.IdeaUpdated(ev)
	case models.EventCommentAdded:
		return r.handler.CommentAdded(ev)
	case models.EventCursorMoved:
		return r.handler.CursorMoved(ev)
	case models.EventSessionEnded:
		return r.handler.SessionEnded(ev)
	case models.EventOwnershipTransferred:
		return r.handler.OwnershipTransferred(ev)
	case models.EventUserTyping:
		return r.handler.UserTyping(ev)
	default:
		return fmt.Errorf("%w: %q", ErrUnknownEvent, ev.Type)
	}
}

func (r *Router) handleControl(frame []byte) {
	cf, err := DecodeControl(frame)
	if err != nil {
		glog.Warningf("[router]drop control frame: %v", err)
		return
	}
	switch cf.Action {
	case ActionPong:
		glog.V(2).Infof("[router]pong")
	case ActionError:
		glog.Warningf("[router]relay error: %s", cf.Error)
	case ActionBroadcast:
		// a relay may forward the whole broadcast envelope
		if len(cf.Event) == 0 {
			glog.Warningf("[router]broadcast frame without event")
			return
		}
		ev, err := DecodeEvent(cf.Event)
		if err != nil {
			glog.Warningf("[router]drop broadcast frame: %v", err)
			return
		}
		r.Route(ev)
	default:
		glog.V(2).Infof("[router]ignore control action %q", cf.Action)
	}
}
