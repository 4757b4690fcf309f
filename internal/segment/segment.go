// Package segment splits a time range into sub-ranges that respect the
// transcription service's per-call duration limit.
package segment

import (
	"errors"
	"fmt"
	"math"
)

// ErrInvalidArgument is returned for structural argument errors such as a
// non-positive maximum duration.
var ErrInvalidArgument = errors.New("invalid argument")

// TimeRange is a span of seconds. Outputs treat it as half-open [Start, End).
type TimeRange struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
}

func NewTimeRange(start, end float64) (TimeRange, error) {
	r := TimeRange{Start: start, End: end}
	if err := r.Validate(); err != nil {
		return TimeRange{}, err
	}
	return r, nil
}

func (r TimeRange) Validate() error {
	if !finite(r.Start) || !finite(r.End) {
		return fmt.Errorf("%w: time range [%v, %v] is not finite", ErrInvalidArgument, r.Start, r.End)
	}
	if r.Start < 0 {
		return fmt.Errorf("%w: time range start %v is negative", ErrInvalidArgument, r.Start)
	}
	if r.End <= r.Start {
		return fmt.Errorf("%w: time range end %v must be after start %v", ErrInvalidArgument, r.End, r.Start)
	}
	return nil
}

func (r TimeRange) Duration() float64 {
	return r.End - r.Start
}

// Segment is one contiguous slice of the requested range. It is handed to
// exactly one transcription call and never modified afterwards.
type Segment struct {
	TimeRange
	Index    int       `json:"index"`
	Total    int       `json:"total"`
	Parallel bool      `json:"parallel"`
	Request  TimeRange `json:"request"`
}

func (s Segment) String() string {
	return fmt.Sprintf("segment %d/%d [%.3f, %.3f)", s.Index+1, s.Total, s.Start, s.End)
}

// Split partitions r into the fewest equal sub-ranges no longer than
// maxDuration. The last segment always ends exactly at r.End.
func Split(r TimeRange, maxDuration float64) ([]Segment, error) {
	if !finite(maxDuration) || maxDuration <= 0 {
		return nil, fmt.Errorf("%w: max duration must be positive, got %v", ErrInvalidArgument, maxDuration)
	}
	if err := r.Validate(); err != nil {
		return nil, err
	}

	duration := r.Duration()
	if duration <= maxDuration {
		return []Segment{{
			TimeRange: r,
			Index:     0,
			Total:     1,
			Parallel:  false,
			Request:   r,
		}}, nil
	}

	n := int(math.Ceil(duration / maxDuration))
	step := duration / float64(n)

	// shared boundaries keep seg[i].End == seg[i+1].Start exactly
	bounds := make([]float64, n+1)
	for i := 0; i < n; i++ {
		bounds[i] = r.Start + float64(i)*step
	}
	bounds[n] = r.End

	segments := make([]Segment, n)
	for i := 0; i < n; i++ {
		segments[i] = Segment{
			TimeRange: TimeRange{Start: bounds[i], End: bounds[i+1]},
			Index:     i,
			Total:     n,
			Parallel:  true,
			Request:   r,
		}
	}
	return segments, nil
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
