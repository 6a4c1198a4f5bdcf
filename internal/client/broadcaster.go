package client

import (
	"context"
	"errors"

	"github.com/golang/glog"

	"ideasync/internal/connection"
	"ideasync/internal/events"
	"ideasync/internal/models"
)

// Sender writes frames to the relay. *connection.Manager satisfies it.
type Sender interface {
	Send(frame []byte) error
}

// relayBroadcaster delivers locally produced events to local subscribers and
// to the relay. Transport failures are logged and swallowed; the connection
// manager recovers on its own.
type relayBroadcaster struct {
	bus    *events.Bus
	sender Sender
}

func (b *relayBroadcaster) Broadcast(ctx context.Context, ev models.Event) {
	b.bus.Publish(ev)
	if b.sender == nil {
		return
	}
	frame, err := events.EncodeBroadcast(ev)
	if err != nil {
		glog.Errorf("[client]encode %s: %v", ev.Type, err)
		return
	}
	if err := b.sender.Send(frame); err != nil {
		if errors.Is(err, connection.ErrNotConnected) {
			glog.V(1).Infof("[client]drop %s for %s: not connected", ev.Type, ev.SessionID)
			return
		}
		glog.Warningf("[client]send %s for %s: %v", ev.Type, ev.SessionID, err)
	}
}
