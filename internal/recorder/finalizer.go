package recorder

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"segment-recorder/internal/platform/metrics"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"
)

// Stage is a step of the segment pipeline.
type Stage string

const (
	StageLookup  Stage = "lookup"
	StageRender  Stage = "render"
	StageRename  Stage = "rename"
	StageUpload  Stage = "upload"
	StageCleanup Stage = "cleanup"
	StageDone    Stage = "done"
)

// Outcome is how a segment pipeline ended.
type Outcome string

const (
	// OutcomeUploaded: renamed, uploaded and (normally) deleted.
	OutcomeUploaded Outcome = "uploaded"
	// OutcomeKept: renamed but the policy has no destination.
	OutcomeKept Outcome = "kept"
	// OutcomeSkipped: the stream had no policy, the file was not touched.
	OutcomeSkipped Outcome = "skipped"
	// OutcomeFailed: Stage names where the pipeline stopped.
	OutcomeFailed Outcome = "failed"
)

// Result is the record of one segment pipeline.
type Result struct {
	ID      string
	Stream  string
	Stage   Stage
	Outcome Outcome
	// File is where the segment is on disk now: the temporary path until the
	// rename succeeds, the rendered path afterwards.
	File   string
	Upload UploadResult
	Err    error
}

// Finalizer renames, uploads and cleans up finished segments, one goroutine
// per segment.
type Finalizer struct {
	store    PolicyStore
	uploader Uploader
	sem      *semaphore.Weighted
	log      *slog.Logger
	metrics  *metrics.Metrics
	wg       sync.WaitGroup
}

// NewFinalizer returns a Finalizer. maxUploads bounds concurrent uploads
// across all streams; 0 means no bound. Metrics may be nil.
func NewFinalizer(store PolicyStore, uploader Uploader, maxUploads int, log *slog.Logger, m *metrics.Metrics) *Finalizer {
	f := &Finalizer{
		store:    store,
		uploader: uploader,
		log:      log.With("component", "finalizer"),
		metrics:  m,
	}
	if maxUploads > 0 {
		f.sem = semaphore.NewWeighted(int64(maxUploads))
	}
	return f
}

// Submit starts the pipeline for a finished segment and returns immediately.
// The pipeline is not tied to any request and cannot be cancelled.
func (f *Finalizer) Submit(stream string, info SegmentInfo) {
	f.wg.Add(1)
	go func() {
		defer f.wg.Done()
		f.Finalize(context.Background(), stream, info)
	}()
}

// Wait blocks until every submitted pipeline has finished or ctx is done.
func (f *Finalizer) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		f.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Finalize runs the pipeline for one segment synchronously.
//
// A segment whose stream has no policy is skipped without error; segments
// can still arrive after unpublish. A failed rename keeps the temporary file
// and a failed upload keeps the renamed one. Nothing is retried.
func (f *Finalizer) Finalize(ctx context.Context, stream string, info SegmentInfo) (res Result) {
	res = Result{ID: uuid.NewString(), Stream: stream, File: info.RecordedFile()}
	log := f.log.With(
		slog.String("pipeline_id", res.ID),
		slog.String("stream", stream),
		slog.Int("segment", info.Number))

	f.metrics.SegmentStarted()
	defer func() {
		var failed string
		if res.Outcome == OutcomeFailed {
			failed = string(res.Stage)
			log.Error("segment pipeline failed",
				slog.String("stage", failed),
				slog.String("file", res.File),
				slog.String("error", res.Err.Error()))
		}
		f.metrics.SegmentFinished(string(res.Outcome), failed)
	}()

	var (
		policy Policy
		target string
	)
	for stage := StageLookup; ; {
		res.Stage = stage
		switch stage {
		case StageLookup:
			p, ok := f.store.Get(stream)
			if !ok {
				log.Info("no policy for stream, segment left in place", slog.String("file", res.File))
				res.Outcome = OutcomeSkipped
				return res
			}
			policy = p
			stage = StageRender

		case StageRender:
			target = RenderFilename(policy.FilenameTemplate, info)
			stage = StageRename

		case StageRename:
			log.Info("moving segment", slog.String("from", res.File), slog.String("to", target))
			if err := os.Rename(res.File, target); err != nil {
				res.Outcome, res.Err = OutcomeFailed, fmt.Errorf("%w: %w", ErrRename, err)
				return res
			}
			res.File = target
			stage = StageUpload

		case StageUpload:
			up, err := f.upload(ctx, res.File, policy)
			res.Upload = up
			if err != nil {
				res.Outcome, res.Err = OutcomeFailed, err
				return res
			}
			if up.Skipped {
				res.Stage, res.Outcome = StageDone, OutcomeKept
				log.Info("segment kept locally", slog.String("file", res.File))
				return res
			}
			stage = StageCleanup

		case StageCleanup:
			if res.Upload.DeleteErr != nil {
				log.Warn("uploaded segment still on disk", slog.String("file", res.File))
			}
			stage = StageDone

		case StageDone:
			res.Outcome = OutcomeUploaded
			log.Info("segment finalized",
				slog.String("file", res.File),
				slog.String("endpoint", res.Upload.Endpoint),
				slog.Int("status", res.Upload.Status))
			return res
		}
	}
}

func (f *Finalizer) upload(ctx context.Context, path string, p Policy) (UploadResult, error) {
	if f.sem != nil {
		if err := f.sem.Acquire(ctx, 1); err != nil {
			return UploadResult{}, fmt.Errorf("%w: %w", ErrUpload, err)
		}
		defer f.sem.Release(1)
	}
	return f.uploader.Upload(ctx, path, p)
}
