package progress

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/mgpai22/captionstitch/internal/segment"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
}

type recorder struct {
	mu    sync.Mutex
	snaps []Snapshot
}

func (r *recorder) record(s Snapshot) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.snaps = append(r.snaps, s)
}

func (r *recorder) last() Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.snaps[len(r.snaps)-1]
}

func (r *recorder) len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.snaps)
}

func TestNewInitializesPending(t *testing.T) {
	tr, err := New(3, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	snap := tr.Snapshot()
	if len(snap.PerSegmentStatus) != 3 {
		t.Fatalf("expected 3 slots, got %d", len(snap.PerSegmentStatus))
	}
	for i, st := range snap.PerSegmentStatus {
		if st != segment.StatusPending || snap.PerSegmentPercent[i] != 0 {
			t.Errorf("slot %d = %v/%v, want pending/0", i, st, snap.PerSegmentPercent[i])
		}
	}
	if snap.EstimatedRemainingMs != nil {
		t.Error("remaining should be unknown at 0%")
	}
	if tr.IsDone() {
		t.Error("fresh tracker should not be done")
	}
}

func TestNewRejectsZeroSegments(t *testing.T) {
	if _, err := New(0, nil); !errors.Is(err, segment.ErrInvalidArgument) {
		t.Errorf("expected ErrInvalidArgument, got %v", err)
	}
}

func TestOverallPercentIsMean(t *testing.T) {
	rec := &recorder{}
	tr, _ := New(4, rec.record)
	gen := tr.Generation()

	for i := 0; i < 3; i++ {
		if err := tr.Update(gen, i, 100, segment.StatusRunning); err != nil {
			t.Fatalf("update %d: %v", i, err)
		}
	}

	if got := rec.last().OverallPercent; got != 75 {
		t.Errorf("overall = %v, want 75", got)
	}
}

func TestEstimatedRemaining(t *testing.T) {
	clock := newClock()
	rec := &recorder{}
	tr, _ := New(2, rec.record, WithClock(clock.Now))
	gen := tr.Generation()

	clock.Advance(10 * time.Second)
	if err := tr.MarkComplete(gen, 0); err != nil {
		t.Fatalf("mark complete: %v", err)
	}

	snap := rec.last()
	if snap.ElapsedMs != 10000 {
		t.Errorf("elapsed = %d, want 10000", snap.ElapsedMs)
	}
	if snap.EstimatedRemainingMs == nil {
		t.Fatal("remaining should be known at 50%")
	}
	if *snap.EstimatedRemainingMs != 10000 {
		t.Errorf("remaining = %d, want 10000", *snap.EstimatedRemainingMs)
	}
}

func TestRemainingMayBeNegative(t *testing.T) {
	if got := remaining(1000, 100); got == nil || *got != 0 {
		t.Errorf("remaining at 100%% = %v, want 0", got)
	}

	r := int64(-5)
	snap := Snapshot{EstimatedRemainingMs: &r}
	if d, ok := snap.Remaining(); !ok || d != 0 {
		t.Errorf("Remaining() = %v, %v; want clamped 0", d, ok)
	}
}

func TestStatusNeverRegresses(t *testing.T) {
	tr, _ := New(1, nil)
	gen := tr.Generation()

	if err := tr.MarkComplete(gen, 0); err != nil {
		t.Fatalf("mark complete: %v", err)
	}
	err := tr.Update(gen, 0, 50, segment.StatusRunning)
	if !errors.Is(err, ErrStatusRegression) {
		t.Errorf("expected ErrStatusRegression, got %v", err)
	}
	if st := tr.Snapshot().PerSegmentStatus[0]; st != segment.StatusSucceeded {
		t.Errorf("status = %v, want succeeded", st)
	}
}

func TestUpdateValidation(t *testing.T) {
	tr, _ := New(2, nil)
	gen := tr.Generation()

	tests := []struct {
		name    string
		index   int
		percent float64
	}{
		{"negative index", -1, 10},
		{"index past end", 2, 10},
		{"percent above 100", 0, 101},
		{"negative percent", 0, -1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tr.Update(gen, tt.index, tt.percent, segment.StatusRunning)
			if !errors.Is(err, segment.ErrInvalidArgument) {
				t.Errorf("expected ErrInvalidArgument, got %v", err)
			}
		})
	}
}

func TestMarkFailedEmitsFailure(t *testing.T) {
	rec := &recorder{}
	tr, _ := New(3, rec.record)
	gen := tr.Generation()

	boom := errors.New("quota exceeded")
	if err := tr.MarkFailed(gen, 1, boom); err != nil {
		t.Fatalf("mark failed: %v", err)
	}

	snap := rec.last()
	if snap.Failure == nil {
		t.Fatal("snapshot should carry the failure")
	}
	if snap.Failure.SegmentIndex != 1 || !errors.Is(snap.Failure.Err, boom) {
		t.Errorf("failure = %+v", snap.Failure)
	}
	// finished counts toward completion even though it failed
	if snap.OverallPercent < 33.33 || snap.OverallPercent > 33.34 {
		t.Errorf("overall = %v, want one third", snap.OverallPercent)
	}
	if !tr.HasFailures() {
		t.Error("HasFailures() = false")
	}
	if got := tr.FailedIndices(); len(got) != 1 || got[0] != 1 {
		t.Errorf("FailedIndices() = %v, want [1]", got)
	}
	if !errors.Is(tr.Errors()[1], boom) {
		t.Errorf("Errors()[1] = %v", tr.Errors()[1])
	}

	if err := tr.MarkComplete(gen, 0); err != nil {
		t.Fatalf("mark complete: %v", err)
	}
	if rec.last().Failure != nil {
		t.Error("later snapshots should not repeat the failure")
	}
}

func TestIsDone(t *testing.T) {
	tr, _ := New(2, nil)
	gen := tr.Generation()

	_ = tr.MarkComplete(gen, 0)
	if tr.IsDone() {
		t.Error("done with one pending slot")
	}
	_ = tr.MarkFailed(gen, 1, errors.New("x"))
	if !tr.IsDone() {
		t.Error("not done after all slots finished")
	}
	if got := tr.Snapshot().OverallPercent; got != 100 {
		t.Errorf("overall = %v, want 100", got)
	}
}

func TestRestartInvalidatesStaleGeneration(t *testing.T) {
	rec := &recorder{}
	tr, _ := New(2, rec.record)
	old := tr.Generation()

	next, err := tr.Restart(3)
	if err != nil {
		t.Fatalf("restart: %v", err)
	}
	if next == old {
		t.Fatal("restart should change the generation")
	}

	err = tr.MarkComplete(old, 0)
	if !errors.Is(err, ErrStaleGeneration) {
		t.Errorf("expected ErrStaleGeneration, got %v", err)
	}
	if rec.len() != 0 {
		t.Errorf("stale update emitted %d snapshots", rec.len())
	}
	if st := tr.Snapshot().PerSegmentStatus[0]; st != segment.StatusPending {
		t.Errorf("stale update changed slot 0 to %v", st)
	}

	if err := tr.MarkComplete(next, 2); err != nil {
		t.Fatalf("current generation update: %v", err)
	}
	if rec.last().Generation != next {
		t.Errorf("snapshot generation = %d, want %d", rec.last().Generation, next)
	}
}

func TestConcurrentUpdates(t *testing.T) {
	const n = 64
	rec := &recorder{}
	tr, _ := New(n, rec.record)
	gen := tr.Generation()

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Go(func() {
			for p := 0; p <= 90; p += 10 {
				if err := tr.Update(gen, i, float64(p), segment.StatusRunning); err != nil {
					t.Errorf("update %d: %v", i, err)
					return
				}
			}
			if i%8 == 0 {
				_ = tr.MarkFailed(gen, i, errors.New("failed"))
			} else {
				_ = tr.MarkComplete(gen, i)
			}
		})
	}
	wg.Wait()

	if !tr.IsDone() {
		t.Fatal("tracker not done after all writers finished")
	}
	if got := len(tr.FailedIndices()); got != n/8 {
		t.Errorf("failed = %d, want %d", got, n/8)
	}

	// every emitted snapshot must be internally consistent
	rec.mu.Lock()
	defer rec.mu.Unlock()
	seen := make(map[uint64]bool)
	for _, s := range rec.snaps {
		if seen[s.Seq] {
			t.Fatalf("duplicate seq %d", s.Seq)
		}
		seen[s.Seq] = true

		var sum float64
		for _, p := range s.PerSegmentPercent {
			sum += p
		}
		if mean := sum / n; mean != s.OverallPercent {
			t.Fatalf("snapshot %d: overall %v != mean %v", s.Seq, s.OverallPercent, mean)
		}
	}
}

func TestSnapshotNewer(t *testing.T) {
	a := Snapshot{Generation: 1, Seq: 5}
	b := Snapshot{Generation: 1, Seq: 6}
	c := Snapshot{Generation: 2, Seq: 1}

	if !b.Newer(a) || a.Newer(b) {
		t.Error("higher seq should be newer within a generation")
	}
	if !c.Newer(b) {
		t.Error("later generation should be newer")
	}
}

func TestFormatETA(t *testing.T) {
	tests := []struct {
		d    time.Duration
		want string
	}{
		{0, "0s"},
		{45 * time.Second, "45s"},
		{64 * time.Second, "1m4s"},
		{time.Hour + 2*time.Minute + 3*time.Second, "1h2m3s"},
		{2 * time.Hour, "2h0m"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			if got := FormatETA(tt.d); got != tt.want {
				t.Errorf("FormatETA(%v) = %q, want %q", tt.d, got, tt.want)
			}
		})
	}
}
