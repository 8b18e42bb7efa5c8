package recorder

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"segment-recorder/internal/platform/logger"
)

type fakeRelay struct {
	mu      sync.Mutex
	next    int
	started []PushTarget
	stopped []string
	err     error
}

func (r *fakeRelay) StartPush(ctx context.Context, stream string, target PushTarget) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return "", r.err
	}
	r.next++
	r.started = append(r.started, target)
	return fmt.Sprintf("push-%d", r.next), nil
}

func (r *fakeRelay) StopPush(ctx context.Context, sessionID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stopped = append(r.stopped, sessionID)
	return nil
}

func (r *fakeRelay) snapshot() ([]PushTarget, []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]PushTarget(nil), r.started...), append([]string(nil), r.stopped...)
}

// withPush rebuilds fx.svc with a relay pushing to relay.local:1935.
func withPush(fx serviceFixture, relay Relay, app string) (serviceFixture, *InMemoryPushStore) {
	pushes := NewInMemoryPushStore()
	fx.svc = NewService(fx.store, fx.fetcher, fx.fin, fx.media,
		ServiceConfig{StoragePath: "/content", Location: time.UTC, PushHost: "relay.local:1935", PushApp: app},
		logger.Discard(), nil, WithRelay(relay, pushes))
	return fx, pushes
}

func TestInMemoryPushStore(t *testing.T) {
	s := NewInMemoryPushStore()
	s.Put("cam1", PushSession{ID: "a"})
	s.Put("cam1", PushSession{ID: "b"})
	if s.Len() != 1 {
		t.Errorf("Len = %d, want 1", s.Len())
	}
	ps, ok := s.Take("cam1")
	if !ok || ps.ID != "b" {
		t.Errorf("Take = %+v, %v", ps, ok)
	}
	if _, ok := s.Take("cam1"); ok {
		t.Error("Take should remove the session")
	}
}

func TestPushTarget_URL(t *testing.T) {
	got := PushTarget{Host: "relay.local:1935", App: "live", Stream: "cam1"}.URL()
	if got != "rtmp://relay.local:1935/live/cam1" {
		t.Errorf("URL = %q", got)
	}
}

func TestService_push_lifecycle(t *testing.T) {
	relay := &fakeRelay{}
	fx, pushes := withPush(newServiceFixture(t, "/content", map[string]Policy{"cam1": {AutoRecord: true}}), relay, "")

	if err := fx.svc.OnPublish(context.Background(), "cam1", FetchOptions{}); err != nil {
		t.Fatalf("OnPublish: %v", err)
	}
	started, _ := relay.snapshot()
	if len(started) != 1 || started[0].URL() != "rtmp://relay.local:1935/live/cam1" {
		t.Fatalf("started = %+v", started)
	}
	if fx.svc.ActivePushes() != 1 {
		t.Errorf("ActivePushes = %d", fx.svc.ActivePushes())
	}

	// A manual stop ends recording only.
	if err := fx.svc.StopRecording(context.Background(), "cam1"); err != nil {
		t.Fatal(err)
	}
	if pushes.Len() != 1 {
		t.Error("StopRecording should leave the push running")
	}

	if err := fx.svc.OnUnpublish(context.Background(), "cam1"); err != nil {
		t.Fatalf("OnUnpublish: %v", err)
	}
	_, stopped := relay.snapshot()
	if len(stopped) != 1 || stopped[0] != "push-1" {
		t.Errorf("stopped = %v", stopped)
	}
	if pushes.Len() != 0 {
		t.Error("push session should be removed")
	}
}

func TestService_push_independent_of_policy(t *testing.T) {
	relay := &fakeRelay{}
	fx, _ := withPush(newServiceFixture(t, "/content", nil), relay, "backup")
	fx.fetcher.err = fmt.Errorf("%w: timeout", ErrPolicyFetch)

	err := fx.svc.OnPublish(context.Background(), "cam1", FetchOptions{})
	if !errors.Is(err, ErrPolicyFetch) {
		t.Fatalf("expected ErrPolicyFetch, got %v", err)
	}
	started, _ := relay.snapshot()
	if len(started) != 1 || started[0].App != "backup" {
		t.Errorf("push should start without a policy, started = %+v", started)
	}
}

func TestService_push_replaced_on_republish(t *testing.T) {
	relay := &fakeRelay{}
	fx, pushes := withPush(newServiceFixture(t, "/content", map[string]Policy{"cam1": {}}), relay, "")

	_ = fx.svc.OnPublish(context.Background(), "cam1", FetchOptions{})
	_ = fx.svc.OnPublish(context.Background(), "cam1", FetchOptions{})

	started, stopped := relay.snapshot()
	if len(started) != 2 || len(stopped) != 1 || stopped[0] != "push-1" {
		t.Errorf("started=%d stopped=%v", len(started), stopped)
	}
	if ps, ok := pushes.Take("cam1"); !ok || ps.ID != "push-2" {
		t.Errorf("current session = %+v, %v", ps, ok)
	}
}

func TestService_push_error_does_not_block_recording(t *testing.T) {
	relay := &fakeRelay{err: errors.New("relay refused")}
	fx, pushes := withPush(newServiceFixture(t, "/content", map[string]Policy{"cam1": {AutoRecord: true}}), relay, "")

	if err := fx.svc.OnPublish(context.Background(), "cam1", FetchOptions{}); err == nil {
		t.Fatal("expected push error")
	}
	if _, ok := fx.media.startedWith("cam1"); !ok {
		t.Error("recording should start despite the push failure")
	}
	if pushes.Len() != 0 {
		t.Error("failed push should not be stored")
	}
	if err := fx.svc.OnUnpublish(context.Background(), "cam1"); err != nil {
		t.Errorf("OnUnpublish: %v", err)
	}
}

func TestService_push_disabled_without_host(t *testing.T) {
	relay := &fakeRelay{}
	fx := newServiceFixture(t, "/content", map[string]Policy{"cam1": {AutoRecord: true}})
	fx.svc = NewService(fx.store, fx.fetcher, fx.fin, fx.media,
		ServiceConfig{StoragePath: "/content"}, logger.Discard(), nil, WithRelay(relay, NewInMemoryPushStore()))

	_ = fx.svc.OnPublish(context.Background(), "cam1", FetchOptions{})
	_ = fx.svc.OnUnpublish(context.Background(), "cam1")

	if started, stopped := relay.snapshot(); len(started) != 0 || len(stopped) != 0 {
		t.Errorf("relay should be unused, started=%v stopped=%v", started, stopped)
	}
}
