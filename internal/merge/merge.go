// Package merge stitches the captions produced for independent segments
// into one sorted, de-duplicated track on the original timeline.
package merge

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/mgpai22/captionstitch/internal/caption"
	"github.com/mgpai22/captionstitch/internal/segment"
)

// DefaultDuplicateWindow is how close two start times must be, in seconds,
// for identical text to count as the same utterance.
const DefaultDuplicateWindow = 0.1

// OverlapPolicy decides what happens when two captions from the same
// segment overlap.
type OverlapPolicy string

const (
	// PassThrough keeps both captions unchanged; overlapping speech is
	// assumed to be genuine.
	PassThrough OverlapPolicy = "pass-through"
	// Trim shortens the earlier caption so it ends where the next begins,
	// the same treatment captions across a segment boundary receive.
	Trim OverlapPolicy = "trim"
)

func ParseOverlapPolicy(s string) (OverlapPolicy, error) {
	switch OverlapPolicy(strings.ToLower(strings.TrimSpace(s))) {
	case "", PassThrough, "passthrough":
		return PassThrough, nil
	case Trim:
		return Trim, nil
	default:
		return "", fmt.Errorf("unknown overlap policy %q: use pass-through or trim", s)
	}
}

type Options struct {
	SameSegment     OverlapPolicy
	DuplicateWindow float64
	// Slack widens each segment's clip window by this many seconds on both
	// sides. It should match the overlap padding applied when the audio for
	// each segment was cut, since providers hear that padding.
	Slack float64
}

func DefaultOptions() Options {
	return Options{
		SameSegment:     PassThrough,
		DuplicateWindow: DefaultDuplicateWindow,
	}
}

// Result is the merged track plus counters for what the merge discarded.
type Result struct {
	Captions []caption.Caption
	// Dropped counts captions that were malformed or became empty after
	// clipping or trimming.
	Dropped int
	// Duplicates counts captions collapsed into an earlier identical one.
	Duplicates int
	// Trimmed counts captions whose end was moved back to resolve an overlap.
	Trimmed int
}

type entry struct {
	caption.Tagged
	order int
}

// Merge combines the outcomes of a run. Only succeeded outcomes contribute;
// failed segments simply leave a gap. Merge never fails: malformed captions
// are dropped and counted.
//
// Output is ordered by start time but not strictly: under PassThrough two
// captions from the same segment may share a start time when their text
// differs. Equal start and equal text always collapse to one caption.
func Merge(outcomes []segment.Outcome, opts Options) Result {
	kept, res := stitch(outcomes, opts)
	res.Captions = make([]caption.Caption, len(kept))
	for i, k := range kept {
		res.Captions[i] = k.Caption
	}
	return res
}

// stitch runs the merge and returns the kept captions still tagged.
func stitch(outcomes []segment.Outcome, opts Options) ([]caption.Tagged, Result) {
	if opts.DuplicateWindow <= 0 {
		opts.DuplicateWindow = DefaultDuplicateWindow
	}

	var res Result
	slack := opts.Slack
	if math.IsNaN(slack) || slack < 0 {
		slack = 0
	}
	entries := collect(outcomes, slack, &res)

	sort.SliceStable(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]
		if a.Start != b.Start {
			return a.Start < b.Start
		}
		if a.Source != b.Source {
			return a.Source < b.Source
		}
		return a.order < b.order
	})

	kept := make([]caption.Tagged, 0, len(entries))
	for _, e := range entries {
		c := e.Tagged
		if duplicateOf(kept, c, opts.DuplicateWindow) {
			res.Duplicates++
			continue
		}

		for len(kept) > 0 {
			prev := &kept[len(kept)-1]
			if c.Start >= prev.End {
				break
			}
			if prev.Source == c.Source && opts.SameSegment != Trim {
				break
			}
			prev.End = math.Min(prev.End, c.Start)
			if prev.End > prev.Start {
				res.Trimmed++
				break
			}
			// trimmed away entirely; resolve against the caption before it
			kept = kept[:len(kept)-1]
			res.Dropped++
		}
		kept = append(kept, c)
	}
	return kept, res
}

// collect clips each succeeded outcome's captions into its segment bounds
// and flattens them, remembering insertion order for tie-breaking.
func collect(outcomes []segment.Outcome, slack float64, res *Result) []entry {
	var entries []entry
	order := 0
	for _, o := range outcomes {
		if o.Status != segment.StatusSucceeded {
			continue
		}
		for _, c := range o.Captions {
			clipped, ok := clip(c, window(o.Segment, slack))
			if !ok {
				res.Dropped++
				continue
			}
			entries = append(entries, entry{Tagged: clipped, order: order})
			order++
		}
	}
	return entries
}

// window is the segment's bounds widened by slack, never reaching outside
// the originally requested range.
func window(s segment.Segment, slack float64) segment.TimeRange {
	w := segment.TimeRange{Start: s.Start - slack, End: s.End + slack}
	if s.Request.End > s.Request.Start {
		w.Start = math.Max(w.Start, s.Request.Start)
		w.End = math.Min(w.End, s.Request.End)
	}
	return w
}

func clip(c caption.Tagged, bounds segment.TimeRange) (caption.Tagged, bool) {
	if math.IsNaN(c.Start) || math.IsNaN(c.End) {
		return c, false
	}
	c.Start = math.Max(c.Start, bounds.Start)
	c.End = math.Min(c.End, bounds.End)
	if c.Start >= c.End {
		return c, false
	}
	return c, true
}

func isDuplicate(prev, c caption.Tagged, window float64) bool {
	return math.Abs(c.Start-prev.Start) < window && c.Text == prev.Text
}

// duplicateOf checks c against every kept caption starting within window of
// it. Kept captions are in start order, so the scan stops at the first one
// that starts too early.
func duplicateOf(kept []caption.Tagged, c caption.Tagged, window float64) bool {
	for i := len(kept) - 1; i >= 0; i-- {
		if c.Start-kept[i].Start >= window {
			return false
		}
		if isDuplicate(kept[i], c, window) {
			return true
		}
	}
	return false
}
