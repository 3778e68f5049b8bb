// FilePath: internal/store/subscriptions.go
package store

import (
	"sync"

	nuts "github.com/vaudience/go-nuts"

	"github.com/hydroguard/hydroguard/internal/loop"
)

// SubscriptionManager owns the lifecycle of live listeners for one session.
// It guarantees at most one live handler per (path, owner), detaches every
// handle it handed out when the session ends, and serializes all handler
// callbacks onto the session loop.
type SubscriptionManager struct {
	client Client
	loop   *loop.Loop

	mu      sync.Mutex
	handles map[string]*Handle
}

// Handle is a detachable live listener obtained from the manager.
type Handle struct {
	key  string
	mgr  *SubscriptionManager
	sub  Subscription
	once sync.Once
}

// Detach removes the listener. Idempotent: a second call is a no-op and
// never double-decrements the manager's registry.
func (h *Handle) Detach() {
	h.once.Do(func() {
		if h.sub != nil {
			h.sub.Detach()
		}
		h.mgr.forget(h.key, h)
	})
}

// NewSubscriptionManager creates a manager delivering callbacks on l.
func NewSubscriptionManager(client Client, l *loop.Loop) *SubscriptionManager {
	return &SubscriptionManager{
		client:  client,
		loop:    l,
		handles: make(map[string]*Handle),
	}
}

// Subscribe attaches a live value listener for (path, owner). If the owner
// already holds a listener on the path, the old one is detached first. An
// establishment failure is surfaced to h.OnError exactly once; the returned
// handle is dead but safe to detach. There is no automatic retry.
func (m *SubscriptionManager) Subscribe(owner, path string, h Handler) *Handle {
	return m.attach(owner, path, h, func(wrapped Handler) (Subscription, error) {
		return m.client.Watch(path, wrapped)
	})
}

// SubscribeChildren attaches a live child-collection listener for
// (path, owner), replaying existing children with timestamp >= since.
func (m *SubscriptionManager) SubscribeChildren(owner, path string, since int64, h Handler) *Handle {
	return m.attach(owner, path, h, func(wrapped Handler) (Subscription, error) {
		return m.client.WatchChildren(path, since, wrapped)
	})
}

func (m *SubscriptionManager) attach(owner, path string, h Handler, establish func(Handler) (Subscription, error)) *Handle {
	key := owner + "|" + path

	m.mu.Lock()
	if old, ok := m.handles[key]; ok {
		m.mu.Unlock()
		old.Detach()
		m.mu.Lock()
	}
	handle := &Handle{key: key, mgr: m}
	m.handles[key] = handle
	m.mu.Unlock()

	sub, err := establish(m.onLoop(h))
	if err != nil {
		handle.Detach()
		m.dispatchError(h, err)
		return handle
	}

	handle.sub = sub
	return handle
}

// UnsubscribeAll detaches every live handle held by owner, in no particular
// order. Called when a session ends.
func (m *SubscriptionManager) UnsubscribeAll(owner string) {
	prefix := owner + "|"

	m.mu.Lock()
	var doomed []*Handle
	for key, h := range m.handles {
		if len(key) >= len(prefix) && key[:len(prefix)] == prefix {
			doomed = append(doomed, h)
		}
	}
	m.mu.Unlock()

	for _, h := range doomed {
		h.Detach()
	}
	if len(doomed) > 0 {
		nuts.L.Debugf("[Subscriptions] detached %d listeners for %s", len(doomed), owner)
	}
}

// onLoop rewraps a handler so both event and error callbacks run as tasks
// on the session loop.
func (m *SubscriptionManager) onLoop(h Handler) Handler {
	return Handler{
		OnEvent: func(evt Event) {
			if h.OnEvent == nil {
				return
			}
			if err := m.loop.Dispatch(func() { h.OnEvent(evt) }); err != nil {
				nuts.L.Debugf("[Subscriptions] dropping event for %s: %v", evt.Path, err)
			}
		},
		OnError: func(err error) {
			m.dispatchError(h, err)
		},
	}
}

func (m *SubscriptionManager) dispatchError(h Handler, err error) {
	if h.OnError == nil {
		nuts.L.Errorf("[Subscriptions] unhandled subscription error: %v", err)
		return
	}
	if derr := m.loop.Dispatch(func() { h.OnError(err) }); derr != nil {
		nuts.L.Errorf("[Subscriptions] subscription error after loop stop: %v", err)
	}
}

func (m *SubscriptionManager) forget(key string, h *Handle) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if current, ok := m.handles[key]; ok && current == h {
		delete(m.handles, key)
	}
}
