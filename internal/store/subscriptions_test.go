package store

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hydroguard/hydroguard/internal/loop"
)

// fakeClient hands out recordable subscriptions and can be told to fail
// establishment.
type fakeClient struct {
	mu         sync.Mutex
	subs       []*fakeSub
	establish  error
	lastHandle Handler
}

type fakeSub struct {
	mu       sync.Mutex
	detached int
	handler  Handler
}

func (s *fakeSub) Detach() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.detached++
}

func (s *fakeSub) detachCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.detached
}

func (f *fakeClient) Get(ctx context.Context, path string) (Document, error) {
	return Document{}, nil
}

func (f *fakeClient) Update(ctx context.Context, path string, fields map[string]any) error {
	return nil
}

func (f *fakeClient) Append(ctx context.Context, path string, fields map[string]any) (string, error) {
	return "", nil
}

func (f *fakeClient) Children(ctx context.Context, path string, since int64) ([]Child, error) {
	return nil, nil
}

func (f *fakeClient) Watch(path string, h Handler) (Subscription, error) {
	return f.attach(h)
}

func (f *fakeClient) WatchChildren(path string, since int64, h Handler) (Subscription, error) {
	return f.attach(h)
}

func (f *fakeClient) attach(h Handler) (Subscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.establish != nil {
		return nil, f.establish
	}
	sub := &fakeSub{handler: h}
	f.subs = append(f.subs, sub)
	f.lastHandle = h
	return sub, nil
}

func (f *fakeClient) Close() error { return nil }

func newTestManager(t *testing.T) (*SubscriptionManager, *fakeClient, *loop.Loop) {
	t.Helper()
	client := &fakeClient{}
	l := loop.New()
	t.Cleanup(l.Stop)
	return NewSubscriptionManager(client, l), client, l
}

func TestSubscribeDeliversOnLoop(t *testing.T) {
	mgr, client, l := newTestManager(t)

	events := make(chan Event, 1)
	mgr.Subscribe("owner", "control/HG-01", Handler{
		OnEvent: func(evt Event) { events <- evt },
	})

	client.lastHandle.OnEvent(Event{Type: EventChanged, Path: "control/HG-01"})

	select {
	case evt := <-events:
		assert.Equal(t, EventChanged, evt.Type)
	case <-time.After(time.Second):
		t.Fatal("event never delivered")
	}

	// Delivery went through the loop, so a queued probe runs after it.
	require.NoError(t, l.DispatchWait(func() {}))
}

func TestResubscribeDetachesPrevious(t *testing.T) {
	mgr, client, _ := newTestManager(t)

	mgr.Subscribe("owner", "control/HG-01", Handler{})
	mgr.Subscribe("owner", "control/HG-01", Handler{})

	require.Len(t, client.subs, 2)
	assert.Equal(t, 1, client.subs[0].detachCount())
	assert.Equal(t, 0, client.subs[1].detachCount())
}

func TestHandleDetachIsIdempotent(t *testing.T) {
	mgr, client, _ := newTestManager(t)

	h := mgr.Subscribe("owner", "control/HG-01", Handler{})
	h.Detach()
	h.Detach()

	assert.Equal(t, 1, client.subs[0].detachCount())
}

func TestUnsubscribeAllOnlyTouchesOwner(t *testing.T) {
	mgr, client, _ := newTestManager(t)

	mgr.Subscribe("session:A", "control/HG-01", Handler{})
	mgr.Subscribe("session:A", "telemetry/HG-01/latest", Handler{})
	mgr.Subscribe("session:B", "control/HG-02", Handler{})

	mgr.UnsubscribeAll("session:A")

	assert.Equal(t, 1, client.subs[0].detachCount())
	assert.Equal(t, 1, client.subs[1].detachCount())
	assert.Equal(t, 0, client.subs[2].detachCount())
}

func TestEstablishFailureSurfacesErrorOnce(t *testing.T) {
	mgr, client, _ := newTestManager(t)
	client.establish = errors.New("connection refused")

	errs := make(chan error, 2)
	h := mgr.Subscribe("owner", "control/HG-01", Handler{
		OnError: func(err error) { errs <- err },
	})

	select {
	case err := <-errs:
		assert.ErrorContains(t, err, "connection refused")
	case <-time.After(time.Second):
		t.Fatal("error never surfaced")
	}

	// The dead handle is safe to detach and the error does not repeat.
	h.Detach()
	select {
	case <-errs:
		t.Fatal("error surfaced twice")
	case <-time.After(50 * time.Millisecond):
	}
}
