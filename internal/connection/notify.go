package connection

import "github.com/golang/glog"

type NotificationKind int

const (
	NotifyConnected NotificationKind = iota + 1
	NotifyDisconnected
	NotifyError
)

func (k NotificationKind) String() string {
	switch k {
	case NotifyConnected:
		return "connected"
	case NotifyDisconnected:
		return "disconnected"
	case NotifyError:
		return "error"
	default:
		return "unknown"
	}
}

// Notification reports a connection lifecycle change. Err is set for
// NotifyError and is always a *TransportError.
type Notification struct {
	Kind NotificationKind
	Err  error
}

// Notify registers fn for lifecycle notifications and returns a function
// that removes it. fn runs on the goroutine that observed the change and
// must not block.
func (m *Manager) Notify(fn func(Notification)) (cancel func()) {
	m.listenersMu.Lock()
	m.nextListener++
	id := m.nextListener
	m.listeners[id] = fn
	m.listenersMu.Unlock()
	return func() {
		m.listenersMu.Lock()
		delete(m.listeners, id)
		m.listenersMu.Unlock()
	}
}

// ClearListeners drops every registered notification listener.
func (m *Manager) ClearListeners() {
	m.listenersMu.Lock()
	m.listeners = make(map[int]func(Notification))
	m.listenersMu.Unlock()
}

func (m *Manager) notify(n Notification) {
	m.listenersMu.Lock()
	targets := make([]func(Notification), 0, len(m.listeners))
	for _, fn := range m.listeners {
		targets = append(targets, fn)
	}
	m.listenersMu.Unlock()

	glog.V(1).Infof("[conn]notify %s", n.Kind)
	for _, fn := range targets {
		fn(n)
	}
}
