package relay

import (
	"context"
	"encoding/json"

	"github.com/golang/glog"

	"ideasync/internal/redis"
)

const fanoutChannel = "ideasync:relay"

type fanoutMessage struct {
	Origin    string          `json:"origin"`
	SessionID string          `json:"sessionId"`
	Event     json.RawMessage `json:"event"`
}

// fanout spreads broadcasts to the other relay instances sharing a Redis.
type fanout struct {
	client     *redis.Client
	instanceID string
}

func newFanout(client *redis.Client, instanceID string) *fanout {
	return &fanout{client: client, instanceID: instanceID}
}

func (f *fanout) publish(ctx context.Context, sessionID string, event json.RawMessage) {
	if f == nil || f.client == nil {
		return
	}
	payload, err := json.Marshal(fanoutMessage{Origin: f.instanceID, SessionID: sessionID, Event: event})
	if err != nil {
		glog.Errorf("[relay]fanout marshal: %v", err)
		return
	}
	if err := f.client.Publish(ctx, fanoutChannel, payload); err != nil {
		glog.Warningf("[relay]fanout publish %s: %v", sessionID, err)
	}
}

// listen delivers messages published by other instances until ctx is done.
func (f *fanout) listen(ctx context.Context, deliver func(sessionID string, event []byte)) error {
	if f == nil || f.client == nil {
		return nil
	}
	ps, err := f.client.Subscribe(ctx, fanoutChannel)
	if err != nil {
		return err
	}
	go func() {
		defer ps.Close()
		ch := ps.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				var m fanoutMessage
				if err := json.Unmarshal([]byte(msg.Payload), &m); err != nil {
					glog.Warningf("[relay]fanout decode: %v", err)
					continue
				}
				if m.Origin == f.instanceID || m.SessionID == "" {
					continue
				}
				deliver(m.SessionID, m.Event)
			}
		}
	}()
	return nil
}
