package recorder

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"segment-recorder/internal/platform/metrics"
)

// MediaServer controls segmented recording on the media server.
type MediaServer interface {
	StartRecording(ctx context.Context, stream string, params RecordParams) error
	StopRecording(ctx context.Context, stream string) error
}

// Service ties stream lifecycle events to the policy store, the media server
// and the segment finalizer.
type Service struct {
	store       PolicyStore
	fetcher     PolicyFetcher
	finalizer   *Finalizer
	media       MediaServer
	relay       Relay
	pushes      PushStore
	push        PushTarget
	queue       *streamQueue
	storagePath string
	loc         *time.Location
	now         func() time.Time
	log         *slog.Logger
	metrics     *metrics.Metrics
}

// ServiceConfig holds the Service settings that come from configuration.
type ServiceConfig struct {
	// StoragePath is where the media server writes segments, and the default
	// directory for finalized files.
	StoragePath string
	// Location is the zone segment times are rendered in. Nil means local time.
	Location *time.Location
	// PushHost enables relaying every published stream to that host.
	PushHost string
	// PushApp is the destination application, DefaultPushApp when empty.
	PushApp string
}

// ServiceOption configures optional Service collaborators.
type ServiceOption func(*Service)

// WithRelay injects the relay used to push published streams and the store
// that tracks their sessions.
func WithRelay(relay Relay, pushes PushStore) ServiceOption {
	return func(s *Service) {
		s.relay = relay
		s.pushes = pushes
	}
}

// NewService returns a Service. media may be nil, in which case recording is
// never started or stopped and only the policy store is maintained.
// Metrics may be nil.
func NewService(store PolicyStore, fetcher PolicyFetcher, finalizer *Finalizer, media MediaServer, cfg ServiceConfig, log *slog.Logger, m *metrics.Metrics, opts ...ServiceOption) *Service {
	loc := cfg.Location
	if loc == nil {
		loc = time.Local
	}
	pushApp := cfg.PushApp
	if pushApp == "" {
		pushApp = DefaultPushApp
	}
	s := &Service{
		store:       store,
		fetcher:     fetcher,
		finalizer:   finalizer,
		media:       media,
		push:        PushTarget{Host: cfg.PushHost, App: pushApp},
		queue:       newStreamQueue(),
		storagePath: cfg.StoragePath,
		loc:         loc,
		now:         time.Now,
		log:         log.With("component", "service"),
		metrics:     m,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.pushes == nil {
		s.pushes = NewInMemoryPushStore()
	}
	return s
}

// Publish queues OnPublish and returns at once. Lifecycle events of one
// stream run in the order they were queued, so an unpublish that arrives
// while the publish is still fetching its policy runs after it.
// ctx is detached from cancellation; its values are kept.
func (s *Service) Publish(ctx context.Context, stream string, opts FetchOptions) {
	ctx = context.WithoutCancel(ctx)
	s.queue.enqueue(stream, func() {
		// Errors are logged where they happen.
		_ = s.OnPublish(ctx, stream, opts)
	})
}

// Unpublish queues OnUnpublish behind any pending event of the stream.
func (s *Service) Unpublish(ctx context.Context, stream string) {
	ctx = context.WithoutCancel(ctx)
	s.queue.enqueue(stream, func() {
		_ = s.OnUnpublish(ctx, stream)
	})
}

// Wait blocks until every queued lifecycle event has run or ctx is done.
func (s *Service) Wait(ctx context.Context) error {
	return s.queue.wait(ctx)
}

// OnPublish relays the stream when a push host is configured, then fetches
// the stream's policy, stores it and, unless the policy is manual-start, asks
// the media server to record. The push does not depend on the policy. A fetch
// error leaves any previous policy for the stream untouched.
func (s *Service) OnPublish(ctx context.Context, stream string, opts FetchOptions) error {
	pushErr := s.startPush(ctx, stream)

	p, err := s.loadPolicy(ctx, stream, opts)
	if err != nil {
		return errors.Join(err, pushErr)
	}
	if !p.AutoRecord {
		s.log.Info("stream is manual-start, not recording", slog.String("stream", stream))
		return pushErr
	}
	return errors.Join(s.startRecorder(ctx, stream, p), pushErr)
}

// OnUnpublish forgets the stream's policy, stops its recorder and ends its
// push. Segments already being finalized keep the policy they resolved.
func (s *Service) OnUnpublish(ctx context.Context, stream string) error {
	return errors.Join(s.StopRecording(ctx, stream), s.stopPush(ctx, stream))
}

// OnSegmentEnd hands a closed segment to the finalizer and returns at once.
// A zero End means now and an empty StoragePath means the configured one.
func (s *Service) OnSegmentEnd(stream string, info SegmentInfo) {
	if info.End.IsZero() {
		info.End = s.now()
	}
	info.End = info.End.In(s.loc)
	if info.StoragePath == "" {
		info.StoragePath = s.storagePath
	}
	s.log.Debug("segment ended",
		slog.String("stream", stream),
		slog.Int("segment", info.Number),
		slog.String("file", info.RecordedFile()),
		slog.Duration("duration", info.Duration))
	s.finalizer.Submit(stream, info)
}

// StartRecording fetches a fresh policy with the given hints and starts the
// recorder whatever the policy's auto-record flag says.
func (s *Service) StartRecording(ctx context.Context, stream string, opts FetchOptions) error {
	p, err := s.loadPolicy(ctx, stream, opts)
	if err != nil {
		return err
	}
	return s.startRecorder(ctx, stream, p)
}

// StopRecording forgets the stream's policy and stops its recorder.
func (s *Service) StopRecording(ctx context.Context, stream string) error {
	s.store.Remove(stream)
	s.metrics.SetActivePolicies(s.store.Len())
	s.log.Info("policy removed", slog.String("stream", stream))

	if s.media == nil {
		return nil
	}
	if err := s.media.StopRecording(ctx, stream); err != nil {
		s.log.Error("stop recording failed", slog.String("stream", stream), slog.String("error", err.Error()))
		return fmt.Errorf("stop recording %s: %w", stream, err)
	}
	s.log.Info("recording stopped", slog.String("stream", stream))
	return nil
}

// ActivePolicies returns the number of streams holding a policy.
func (s *Service) ActivePolicies() int {
	return s.store.Len()
}

// ActivePushes returns the number of streams being relayed.
func (s *Service) ActivePushes() int {
	return s.pushes.Len()
}

func (s *Service) startPush(ctx context.Context, stream string) error {
	if s.push.Host == "" {
		return nil
	}
	if s.relay == nil {
		s.log.Warn("relay not configured, cannot push stream", slog.String("stream", stream))
		return nil
	}
	// A re-publish replaces the previous push.
	if err := s.stopPush(ctx, stream); err != nil {
		s.log.Warn("previous push not stopped", slog.String("stream", stream), slog.String("error", err.Error()))
	}

	target := s.push
	target.Stream = stream
	s.log.Info("pushing stream", slog.String("stream", stream), slog.String("target", target.URL()))
	id, err := s.relay.StartPush(ctx, stream, target)
	if err != nil {
		s.log.Error("start push failed", slog.String("stream", stream), slog.String("error", err.Error()))
		return fmt.Errorf("start push %s: %w", stream, err)
	}
	s.pushes.Put(stream, PushSession{ID: id, Target: target, StartedAt: s.now()})
	return nil
}

func (s *Service) stopPush(ctx context.Context, stream string) error {
	ps, ok := s.pushes.Take(stream)
	if !ok || s.relay == nil {
		return nil
	}
	if err := s.relay.StopPush(ctx, ps.ID); err != nil {
		s.log.Error("stop push failed", slog.String("stream", stream), slog.String("error", err.Error()))
		return fmt.Errorf("stop push %s: %w", stream, err)
	}
	s.log.Info("push stopped", slog.String("stream", stream), slog.String("target", ps.Target.URL()))
	return nil
}

func (s *Service) loadPolicy(ctx context.Context, stream string, opts FetchOptions) (Policy, error) {
	p, err := s.fetcher.FetchPolicy(ctx, stream, opts)
	if err != nil {
		s.log.Error("policy fetch failed", slog.String("stream", stream), slog.String("error", err.Error()))
		return Policy{}, err
	}
	s.store.Put(stream, p)
	s.metrics.SetActivePolicies(s.store.Len())
	s.log.Info("policy stored", slog.String("stream", stream), slog.Any("policy", p))
	return p, nil
}

func (s *Service) startRecorder(ctx context.Context, stream string, p Policy) error {
	if s.media == nil {
		s.log.Warn("media server not configured, cannot start recording", slog.String("stream", stream))
		return nil
	}
	params := NewRecordParams(p, s.storagePath)
	if err := s.media.StartRecording(ctx, stream, params); err != nil {
		s.log.Error("start recording failed", slog.String("stream", stream), slog.String("error", err.Error()))
		return fmt.Errorf("start recording %s: %w", stream, err)
	}
	s.log.Info("recording started",
		slog.String("stream", stream),
		slog.Duration("segment_duration", params.SegmentDuration),
		slog.String("path", params.OutputPath))
	return nil
}
