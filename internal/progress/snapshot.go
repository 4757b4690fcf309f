package progress

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/mgpai22/captionstitch/internal/segment"
)

// Snapshot is an immutable view of a run's aggregate progress. Consumers
// should treat each one as the whole current state, not a delta.
type Snapshot struct {
	Generation           Generation       `json:"generation"`
	Seq                  uint64           `json:"seq"`
	OverallPercent       float64          `json:"overall_percent"`
	PerSegmentPercent    []float64        `json:"per_segment_percent"`
	PerSegmentStatus     []segment.Status `json:"per_segment_status"`
	ElapsedMs            int64            `json:"elapsed_ms"`
	EstimatedRemainingMs *int64           `json:"estimated_remaining_ms"`
	Failure              *Failure         `json:"failure,omitempty"`
}

// Failure identifies the segment whose failure triggered a snapshot.
type Failure struct {
	SegmentIndex int
	Err          error
}

func (f Failure) MarshalJSON() ([]byte, error) {
	msg := ""
	if f.Err != nil {
		msg = f.Err.Error()
	}
	return json.Marshal(struct {
		SegmentIndex int    `json:"segment_index"`
		Error        string `json:"error"`
	}{f.SegmentIndex, msg})
}

// Newer reports whether s supersedes other: a later generation, or a later
// sequence number within the same generation.
func (s Snapshot) Newer(other Snapshot) bool {
	if s.Generation != other.Generation {
		return s.Generation > other.Generation
	}
	return s.Seq > other.Seq
}

// Remaining is the estimated time left clamped at zero for display. The
// boolean is false while the estimate is unknown.
func (s Snapshot) Remaining() (time.Duration, bool) {
	if s.EstimatedRemainingMs == nil {
		return 0, false
	}
	ms := *s.EstimatedRemainingMs
	if ms < 0 {
		ms = 0
	}
	return time.Duration(ms) * time.Millisecond, true
}

// Counts returns how many segments are in each status.
func (s Snapshot) Counts() map[segment.Status]int {
	counts := make(map[segment.Status]int, 4)
	for _, st := range s.PerSegmentStatus {
		counts[st]++
	}
	return counts
}

// String renders a one-line summary, e.g. "62.5% (5/8 done, 1 failed, ETA 1m4s)".
func (s Snapshot) String() string {
	counts := s.Counts()
	done := counts[segment.StatusSucceeded] + counts[segment.StatusFailed]

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%.1f%% (%d/%d done", s.OverallPercent, done, len(s.PerSegmentStatus)))
	if failed := counts[segment.StatusFailed]; failed > 0 {
		sb.WriteString(fmt.Sprintf(", %d failed", failed))
	}
	if eta, ok := s.Remaining(); ok && done < len(s.PerSegmentStatus) {
		sb.WriteString(", ETA ")
		sb.WriteString(FormatETA(eta))
	}
	sb.WriteString(")")
	return sb.String()
}

// FormatETA renders a duration as a compact "1h2m3s" string.
func FormatETA(d time.Duration) string {
	if d <= 0 {
		return "0s"
	}
	d = d.Round(time.Second)
	hours := d / time.Hour
	d -= hours * time.Hour
	minutes := d / time.Minute
	d -= minutes * time.Minute
	seconds := d / time.Second

	parts := make([]string, 0, 3)
	if hours > 0 {
		parts = append(parts, fmt.Sprintf("%dh", hours))
	}
	if minutes > 0 || hours > 0 {
		parts = append(parts, fmt.Sprintf("%dm", minutes))
	}
	if seconds > 0 || (hours == 0 && minutes == 0) {
		parts = append(parts, fmt.Sprintf("%ds", seconds))
	}
	return strings.Join(parts, "")
}
