// Package pipeline transcribes the chunks of a split input concurrently,
// tracks their progress and merges the results into one caption track.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/mgpai22/captionstitch/internal/audio"
	"github.com/mgpai22/captionstitch/internal/cache"
	"github.com/mgpai22/captionstitch/internal/caption"
	"github.com/mgpai22/captionstitch/internal/logging"
	"github.com/mgpai22/captionstitch/internal/merge"
	"github.com/mgpai22/captionstitch/internal/progress"
	"github.com/mgpai22/captionstitch/internal/segment"
	"github.com/mgpai22/captionstitch/internal/transcribe"
)

// Cache stores successful segment results between runs.
type Cache interface {
	Get(ctx context.Context, key cache.Key) ([]caption.Caption, bool, error)
	Put(ctx context.Context, key cache.Key, captions []caption.Caption) error
}

type Options struct {
	Concurrency int
	// Attempts is the number of tries per segment, including the first.
	Attempts int
	// Backoff is the wait before the second attempt; it doubles after that.
	Backoff        time.Duration
	SegmentTimeout time.Duration
	Merge          merge.Options

	// Cache is consulted before dispatch when set. Fingerprint, Language
	// and Overlap complete the cache key.
	Cache       Cache
	Fingerprint string
	Language    string
	Overlap     float64

	OnUpdate progress.UpdateFunc
	Logger   *logging.Logger
}

func DefaultOptions() Options {
	return Options{
		Concurrency: 3,
		Attempts:    3,
		Backoff:     2 * time.Second,
		Merge:       merge.DefaultOptions(),
	}
}

// Result is the outcome of one run. Outcomes is indexed by segment.
type Result struct {
	RunID     string
	Merge     merge.Result
	Outcomes  []segment.Outcome
	Failed    []int
	CacheHits int
	Elapsed   time.Duration
}

// Runner dispatches segments to a transcriber. Starting a new Run
// supersedes any run still in flight: progress from the older run is
// discarded.
type Runner struct {
	transcriber transcribe.SegmentTranscriber
	opts        Options
	logger      *logging.Logger

	mu      sync.Mutex
	tracker *progress.Tracker

	sleep func(ctx context.Context, d time.Duration) error
	now   func() time.Time
}

func NewRunner(t transcribe.SegmentTranscriber, opts Options) (*Runner, error) {
	if t == nil {
		return nil, errors.New("transcriber is required")
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = 1
	}
	if opts.Attempts <= 0 {
		opts.Attempts = 1
	}
	if opts.Merge.DuplicateWindow <= 0 {
		opts.Merge.DuplicateWindow = merge.DefaultDuplicateWindow
	}
	return &Runner{
		transcriber: t,
		opts:        opts,
		logger:      logging.OrNop(opts.Logger),
		sleep:       sleepContext,
		now:         time.Now,
	}, nil
}

// Run transcribes every chunk and merges the results. A failing segment
// never stops its siblings. When ctx is cancelled, undispatched segments are
// recorded as failed and Run returns the partial result together with the
// context error.
func (r *Runner) Run(ctx context.Context, chunks []audio.Chunk) (*Result, error) {
	if len(chunks) == 0 {
		return nil, fmt.Errorf("%w: no chunks to transcribe", segment.ErrInvalidArgument)
	}

	started := r.now()
	runID := uuid.NewString()
	logger := r.logger.With("run_id", runID)

	tracker, gen, err := r.startTracking(len(chunks), logger)
	if err != nil {
		return nil, err
	}

	logger.Infow("Transcribing segments",
		"segments", len(chunks),
		"concurrency", r.opts.Concurrency,
		"transcriber", r.transcriber.Name(),
	)

	outcomes := make([]segment.Outcome, len(chunks))
	for i, c := range chunks {
		outcomes[i] = segment.Outcome{Segment: c.Segment, Status: segment.StatusPending}
	}

	var hits atomic.Int64
	jobs := make(chan int)
	var wg sync.WaitGroup
	for w := 0; w < r.opts.Concurrency; w++ {
		wg.Go(func() {
			for i := range jobs {
				job := segmentJob{tracker: tracker, gen: gen, index: i, chunk: chunks[i], logger: logger}
				outcomes[i] = r.process(ctx, job, &hits)
			}
		})
	}

dispatch:
	for i := range chunks {
		if ctx.Err() != nil {
			break
		}
		select {
		case <-ctx.Done():
			break dispatch
		case jobs <- i:
		}
	}
	close(jobs)
	wg.Wait()

	for i := range outcomes {
		if outcomes[i].Status.Terminal() {
			continue
		}
		cause := context.Cause(ctx)
		if cause == nil {
			cause = context.Canceled
		}
		outcomes[i] = segment.Failed(chunks[i].Segment, fmt.Errorf("not dispatched: %w", cause))
		r.track(logger, tracker.MarkFailed(gen, i, outcomes[i].Err))
	}

	res := &Result{
		RunID:     runID,
		Merge:     merge.Merge(outcomes, r.opts.Merge),
		Outcomes:  outcomes,
		CacheHits: int(hits.Load()),
		Elapsed:   r.now().Sub(started),
	}
	for i, o := range outcomes {
		if o.Status == segment.StatusFailed {
			res.Failed = append(res.Failed, i)
		}
	}

	logger.Infow("Run finished",
		"captions", len(res.Merge.Captions),
		"failed", len(res.Failed),
		"cache_hits", res.CacheHits,
		"dropped", res.Merge.Dropped,
		"duplicates", res.Merge.Duplicates,
		"trimmed", res.Merge.Trimmed,
		"elapsed", res.Elapsed.Round(time.Millisecond).String(),
	)

	if err := ctx.Err(); err != nil {
		return res, err
	}
	return res, nil
}

// startTracking creates the tracker on first use and restarts it for later
// runs so a superseded run's updates are rejected.
func (r *Runner) startTracking(total int, logger *logging.Logger) (*progress.Tracker, progress.Generation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.tracker == nil {
		t, err := progress.New(total, r.opts.OnUpdate, progress.WithLogger(logger))
		if err != nil {
			return nil, 0, err
		}
		r.tracker = t
		return t, t.Generation(), nil
	}
	gen, err := r.tracker.Restart(total)
	if err != nil {
		return nil, 0, err
	}
	return r.tracker, gen, nil
}

// Tracker exposes the progress tracker of the most recent run.
func (r *Runner) Tracker() *progress.Tracker {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.tracker
}

type segmentJob struct {
	tracker *progress.Tracker
	gen     progress.Generation
	index   int
	chunk   audio.Chunk
	logger  *logging.Logger
}

func (r *Runner) process(ctx context.Context, job segmentJob, hits *atomic.Int64) segment.Outcome {
	seg := job.chunk.Segment
	logger := job.logger.With("segment", job.index)

	key := cache.KeyFor(r.opts.Fingerprint, seg, r.opts.Overlap, r.transcriber.Name(), r.opts.Language)
	if r.opts.Cache != nil {
		captions, ok, err := r.opts.Cache.Get(ctx, key)
		if err != nil {
			logger.Warnw("Cache lookup failed", "error", err)
		}
		if ok {
			hits.Add(1)
			logger.Debugw("Segment served from cache", "captions", len(captions))
			r.track(logger, job.tracker.MarkComplete(job.gen, job.index))
			return segment.Succeeded(seg, captions)
		}
	}

	r.track(logger, job.tracker.Update(job.gen, job.index, 0, segment.StatusRunning))

	captions, err := r.attempt(ctx, job, logger)
	if err != nil {
		logger.Warnw("Segment failed", "error", err)
		r.track(logger, job.tracker.MarkFailed(job.gen, job.index, err))
		return segment.Failed(seg, err)
	}

	if r.opts.Cache != nil {
		if err := r.opts.Cache.Put(ctx, key, captions); err != nil {
			logger.Warnw("Failed to cache segment result", "error", err)
		}
	}
	r.track(logger, job.tracker.MarkComplete(job.gen, job.index))
	logger.Debugw("Segment transcribed", "captions", len(captions))
	return segment.Succeeded(seg, captions)
}

func (r *Runner) attempt(ctx context.Context, job segmentJob, logger *logging.Logger) ([]caption.Caption, error) {
	report := func(percent float64) {
		percent = min(max(percent, 0), 100)
		r.track(logger, job.tracker.Update(job.gen, job.index, percent, segment.StatusRunning))
	}

	var lastErr error
	backoff := r.opts.Backoff
	for attempt := 1; attempt <= r.opts.Attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		captions, err := r.call(ctx, job.chunk, report)
		if err == nil {
			return captions, nil
		}
		lastErr = err

		if ctx.Err() != nil || errors.Is(err, transcribe.ErrPermanent) || attempt == r.opts.Attempts {
			break
		}
		logger.Warnw("Segment attempt failed, retrying",
			"attempt", attempt,
			"max_attempts", r.opts.Attempts,
			"backoff", backoff.String(),
			"error", err,
		)
		if err := r.sleep(ctx, backoff); err != nil {
			break
		}
		backoff *= 2
	}
	return nil, lastErr
}

func (r *Runner) call(ctx context.Context, chunk audio.Chunk, report func(float64)) ([]caption.Caption, error) {
	if r.opts.SegmentTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.opts.SegmentTimeout)
		defer cancel()
	}
	return r.transcriber.TranscribeSegment(ctx, transcribe.Request{Chunk: chunk, Report: report})
}

// track logs tracker rejections. A stale generation means a newer run took
// over and is expected.
func (r *Runner) track(logger *logging.Logger, err error) {
	switch {
	case err == nil:
	case errors.Is(err, progress.ErrStaleGeneration):
		logger.Debugw("Progress update from superseded run ignored")
	default:
		logger.Warnw("Progress update rejected", "error", err)
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
