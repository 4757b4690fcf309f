// Package progress aggregates per-segment progress reported by concurrent
// transcription calls into one overall percentage and time estimate.
package progress

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/mgpai22/captionstitch/internal/logging"
	"github.com/mgpai22/captionstitch/internal/segment"
)

var (
	// ErrStaleGeneration is returned, and nothing is recorded, when a call
	// carries the token of a run that has since been restarted.
	ErrStaleGeneration = errors.New("stale progress generation")

	// ErrStatusRegression is returned when an update would move a slot
	// backwards, e.g. from Succeeded to Running.
	ErrStatusRegression = errors.New("segment status cannot regress")
)

// Generation identifies one processing run of a Tracker.
type Generation uint64

// UpdateFunc receives every snapshot the tracker emits. It may be called
// concurrently from several goroutines and must not block for long.
type UpdateFunc func(Snapshot)

type slot struct {
	status  segment.Status
	percent float64
	err     error
}

// Tracker holds the per-segment state of a run. Writers for different
// indices may call it concurrently; the aggregate is recomputed inside a
// short critical section so snapshots always reflect a consistent state.
type Tracker struct {
	mu       sync.Mutex
	gen      Generation
	seq      uint64
	slots    []slot
	started  time.Time
	onUpdate UpdateFunc
	now      func() time.Time
	logger   *logging.Logger
}

type Option func(*Tracker)

// WithClock replaces time.Now, mainly for tests.
func WithClock(now func() time.Time) Option {
	return func(t *Tracker) {
		t.now = now
	}
}

func WithLogger(logger *logging.Logger) Option {
	return func(t *Tracker) {
		t.logger = logging.OrNop(logger)
	}
}

func New(total int, onUpdate UpdateFunc, opts ...Option) (*Tracker, error) {
	t := &Tracker{
		onUpdate: onUpdate,
		now:      time.Now,
		logger:   logging.Nop(),
	}
	for _, opt := range opts {
		opt(t)
	}
	if _, err := t.Restart(total); err != nil {
		return nil, err
	}
	return t, nil
}

// Restart begins a new run with total pending slots. Calls still carrying
// the previous generation become no-ops.
func (t *Tracker) Restart(total int) (Generation, error) {
	if total < 1 {
		return 0, fmt.Errorf("%w: total segments must be at least 1, got %d", segment.ErrInvalidArgument, total)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	t.gen++
	t.seq = 0
	t.slots = make([]slot, total)
	t.started = t.now()

	t.logger.Debugw("Progress run started",
		"generation", t.gen,
		"segments", total,
	)
	return t.gen, nil
}

func (t *Tracker) Generation() Generation {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.gen
}

// Update records percent and status for one segment and emits a snapshot.
func (t *Tracker) Update(gen Generation, index int, percent float64, status segment.Status) error {
	return t.apply(gen, index, percent, status, nil)
}

// MarkComplete marks a segment as succeeded at 100%.
func (t *Tracker) MarkComplete(gen Generation, index int) error {
	return t.apply(gen, index, 100, segment.StatusSucceeded, nil)
}

// MarkFailed marks a segment as failed. A failed segment has finished its
// work, so it counts as 100% toward the overall percentage; the emitted
// snapshot carries the failure so callers can react immediately.
// OverallPercent is therefore a completion measure, not a success ratio;
// use HasFailures or FailedIndices to tell the two apart.
func (t *Tracker) MarkFailed(gen Generation, index int, err error) error {
	if err == nil {
		err = errors.New("segment failed")
	}
	return t.apply(gen, index, 100, segment.StatusFailed, err)
}

func (t *Tracker) apply(gen Generation, index int, percent float64, status segment.Status, failure error) error {
	if math.IsNaN(percent) || percent < 0 || percent > 100 {
		return fmt.Errorf("%w: percent must be within [0, 100], got %v", segment.ErrInvalidArgument, percent)
	}

	t.mu.Lock()
	if gen != t.gen {
		current := t.gen
		t.mu.Unlock()
		t.logger.Debugw("Ignoring stale progress update",
			"generation", gen,
			"current_generation", current,
			"segment", index,
		)
		return ErrStaleGeneration
	}
	if index < 0 || index >= len(t.slots) {
		n := len(t.slots)
		t.mu.Unlock()
		return fmt.Errorf("%w: segment index %d out of range (0-%d)", segment.ErrInvalidArgument, index, n-1)
	}

	s := &t.slots[index]
	if !segment.CanTransition(s.status, status) {
		from := s.status
		t.mu.Unlock()
		return fmt.Errorf("%w: segment %d from %s to %s", ErrStatusRegression, index, from, status)
	}
	s.status = status
	s.percent = percent
	if failure != nil {
		s.err = failure
	}

	snap := t.snapshotLocked()
	if failure != nil {
		snap.Failure = &Failure{SegmentIndex: index, Err: failure}
	}
	onUpdate := t.onUpdate
	t.mu.Unlock()

	if onUpdate != nil {
		onUpdate(snap)
	}
	return nil
}

// Snapshot returns the current aggregate without emitting it.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.buildLocked(t.seq)
}

func (t *Tracker) snapshotLocked() Snapshot {
	t.seq++
	return t.buildLocked(t.seq)
}

func (t *Tracker) buildLocked(seq uint64) Snapshot {
	n := len(t.slots)
	snap := Snapshot{
		Generation:        t.gen,
		Seq:               seq,
		PerSegmentPercent: make([]float64, n),
		PerSegmentStatus:  make([]segment.Status, n),
		ElapsedMs:         t.now().Sub(t.started).Milliseconds(),
	}

	var sum float64
	for i, s := range t.slots {
		snap.PerSegmentPercent[i] = s.percent
		snap.PerSegmentStatus[i] = s.status
		sum += s.percent
	}
	if n > 0 {
		snap.OverallPercent = sum / float64(n)
	}
	snap.EstimatedRemainingMs = remaining(snap.ElapsedMs, snap.OverallPercent)
	return snap
}

// remaining extrapolates linearly from elapsed time. The result is raw and
// may be negative; nil means unknown.
func remaining(elapsedMs int64, overall float64) *int64 {
	if overall == 0 {
		return nil
	}
	total := float64(elapsedMs) / (overall / 100)
	r := int64(math.Round(total)) - elapsedMs
	return &r
}

// IsDone reports whether every segment has succeeded or failed.
func (t *Tracker) IsDone() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, s := range t.slots {
		if !s.status.Terminal() {
			return false
		}
	}
	return true
}

func (t *Tracker) HasFailures() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, s := range t.slots {
		if s.status == segment.StatusFailed {
			return true
		}
	}
	return false
}

// FailedIndices returns the failed segment indices in ascending order.
func (t *Tracker) FailedIndices() []int {
	t.mu.Lock()
	defer t.mu.Unlock()
	var failed []int
	for i, s := range t.slots {
		if s.status == segment.StatusFailed {
			failed = append(failed, i)
		}
	}
	sort.Ints(failed)
	return failed
}

// Errors returns the recorded error of every failed segment keyed by index.
func (t *Tracker) Errors() map[int]error {
	t.mu.Lock()
	defer t.mu.Unlock()
	errs := make(map[int]error)
	for i, s := range t.slots {
		if s.err != nil {
			errs[i] = s.err
		}
	}
	return errs
}
