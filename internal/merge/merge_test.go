package merge

import (
	"errors"
	"math"
	"math/rand"
	"reflect"
	"testing"

	"github.com/mgpai22/captionstitch/internal/caption"
	"github.com/mgpai22/captionstitch/internal/segment"
)

func seg(index, total int, start, end float64) segment.Segment {
	return segment.Segment{
		TimeRange: segment.TimeRange{Start: start, End: end},
		Index:     index,
		Total:     total,
		Parallel:  total > 1,
	}
}

func ok(s segment.Segment, caps ...caption.Caption) segment.Outcome {
	return segment.Succeeded(s, caps)
}

func c(start, end float64, text string) caption.Caption {
	return caption.Caption{Start: start, End: end, Text: text}
}

func TestMergeBoundaryTrim(t *testing.T) {
	// providers hear one second of padding on each side of a segment
	opts := DefaultOptions()
	opts.Slack = 1

	res := Merge([]segment.Outcome{
		ok(seg(0, 2, 0, 10), c(0, 10, "hello")),
		ok(seg(1, 2, 10, 20), c(9, 12, "hello world")),
	}, opts)

	want := []caption.Caption{
		c(0, 9, "hello"),
		c(9, 12, "hello world"),
	}
	if !reflect.DeepEqual(res.Captions, want) {
		t.Errorf("Merge() = %+v, want %+v", res.Captions, want)
	}
	if res.Trimmed != 1 {
		t.Errorf("trimmed = %d, want 1", res.Trimmed)
	}
}

func TestMergeWithoutSlackClipsAtBoundary(t *testing.T) {
	res := Merge([]segment.Outcome{
		ok(seg(0, 2, 0, 10), c(0, 10, "hello")),
		ok(seg(1, 2, 10, 20), c(9, 12, "hello world")),
	}, DefaultOptions())

	want := []caption.Caption{
		c(0, 10, "hello"),
		c(10, 12, "hello world"),
	}
	if !reflect.DeepEqual(res.Captions, want) {
		t.Errorf("Merge() = %+v, want %+v", res.Captions, want)
	}
}

func TestMergeSlackStaysInsideRequest(t *testing.T) {
	s := seg(0, 2, 0, 10)
	s.Request = segment.TimeRange{Start: 0, End: 20}

	opts := DefaultOptions()
	opts.Slack = 2
	res := Merge([]segment.Outcome{ok(s, c(-1.5, 1, "intro"))}, opts)

	if len(res.Captions) != 1 || res.Captions[0].Start != 0 {
		t.Errorf("Merge() = %+v, want start clipped to 0", res.Captions)
	}
}

func TestMergeDuplicateCollapse(t *testing.T) {
	res := Merge([]segment.Outcome{
		ok(seg(0, 2, 0, 10), c(5.00, 6.0, "hi")),
		ok(seg(1, 2, 0, 10), c(5.05, 6.0, "hi")),
	}, DefaultOptions())

	if len(res.Captions) != 1 {
		t.Fatalf("expected 1 caption, got %d: %+v", len(res.Captions), res.Captions)
	}
	if res.Captions[0] != c(5.00, 6.0, "hi") {
		t.Errorf("kept %+v, want the earlier caption", res.Captions[0])
	}
	if res.Duplicates != 1 {
		t.Errorf("duplicates = %d, want 1", res.Duplicates)
	}
}

func TestMergeDuplicateNeedsSameText(t *testing.T) {
	res := Merge([]segment.Outcome{
		ok(seg(0, 1, 0, 10),
			c(5.00, 6.0, "hi"),
			c(5.05, 6.0, "hey"),
		),
	}, DefaultOptions())

	if len(res.Captions) != 2 {
		t.Errorf("expected both captions kept, got %+v", res.Captions)
	}
}

func TestMergeSingleOutcomeUnchanged(t *testing.T) {
	caps := []caption.Caption{
		c(0.5, 2, "one"),
		c(2, 4.25, "two"),
		c(4.25, 9, "three"),
	}
	res := Merge([]segment.Outcome{ok(seg(0, 1, 0, 10), caps...)}, DefaultOptions())

	if !reflect.DeepEqual(res.Captions, caps) {
		t.Errorf("Merge() = %+v, want %+v", res.Captions, caps)
	}
}

func TestMergeClipsToSegmentBounds(t *testing.T) {
	res := Merge([]segment.Outcome{
		ok(seg(0, 2, 0, 10),
			c(8, 12, "spills over"),
			c(10, 11, "outside"),
			c(-1, 1, "before start"),
		),
	}, DefaultOptions())

	want := []caption.Caption{
		c(0, 1, "before start"),
		c(8, 10, "spills over"),
	}
	if !reflect.DeepEqual(res.Captions, want) {
		t.Errorf("Merge() = %+v, want %+v", res.Captions, want)
	}
	if res.Dropped != 1 {
		t.Errorf("dropped = %d, want 1", res.Dropped)
	}
}

func TestMergeSkipsFailedOutcomes(t *testing.T) {
	failed := segment.Failed(seg(1, 3, 10, 20), errors.New("timeout"))
	failed.Captions = caption.Tag([]caption.Caption{c(11, 12, "ghost")}, 1)

	res := Merge([]segment.Outcome{
		ok(seg(0, 3, 0, 10), c(1, 2, "first")),
		failed,
		ok(seg(2, 3, 20, 30), c(21, 22, "third")),
	}, DefaultOptions())

	want := []caption.Caption{c(1, 2, "first"), c(21, 22, "third")}
	if !reflect.DeepEqual(res.Captions, want) {
		t.Errorf("Merge() = %+v, want %+v", res.Captions, want)
	}
}

func TestMergeSameSegmentPolicy(t *testing.T) {
	outcomes := []segment.Outcome{
		ok(seg(0, 1, 0, 10),
			c(1, 4, "speaker one"),
			c(2, 5, "speaker two"),
		),
	}

	tests := []struct {
		policy OverlapPolicy
		want   []caption.Caption
	}{
		{PassThrough, []caption.Caption{c(1, 4, "speaker one"), c(2, 5, "speaker two")}},
		{Trim, []caption.Caption{c(1, 2, "speaker one"), c(2, 5, "speaker two")}},
	}

	for _, tt := range tests {
		t.Run(string(tt.policy), func(t *testing.T) {
			opts := DefaultOptions()
			opts.SameSegment = tt.policy
			res := Merge(outcomes, opts)
			if !reflect.DeepEqual(res.Captions, tt.want) {
				t.Errorf("Merge() = %+v, want %+v", res.Captions, tt.want)
			}
		})
	}
}

func TestMergePassThroughKeepsEqualStarts(t *testing.T) {
	res := Merge([]segment.Outcome{
		ok(seg(0, 1, 0, 10),
			c(2, 4, "yes"),
			c(2, 3, "no"),
			c(2, 3.5, "yes"),
		),
	}, DefaultOptions())

	want := []caption.Caption{c(2, 4, "yes"), c(2, 3, "no")}
	if !reflect.DeepEqual(res.Captions, want) {
		t.Errorf("Merge() = %+v, want %+v", res.Captions, want)
	}
	if res.Duplicates != 1 {
		t.Errorf("duplicates = %d, want 1", res.Duplicates)
	}
}

func TestMergeTrimToZeroRemovesCaption(t *testing.T) {
	a := seg(0, 2, 0, 20)
	b := seg(1, 2, 0, 20)

	res := Merge([]segment.Outcome{
		ok(a, c(5, 8, "alpha")),
		ok(b, c(5, 9, "beta")),
	}, DefaultOptions())

	want := []caption.Caption{c(5, 9, "beta")}
	if !reflect.DeepEqual(res.Captions, want) {
		t.Errorf("Merge() = %+v, want %+v", res.Captions, want)
	}
	if res.Dropped != 1 || res.Trimmed != 0 {
		t.Errorf("dropped = %d trimmed = %d, want 1 and 0", res.Dropped, res.Trimmed)
	}
}

func TestMergeDuplicateBehindOtherCaption(t *testing.T) {
	res := Merge([]segment.Outcome{
		ok(seg(0, 3, 0, 20), c(5.00, 6, "hi")),
		ok(seg(1, 3, 0, 20), c(5.04, 6, "um")),
		ok(seg(2, 3, 0, 20), c(5.04, 7, "hi")),
	}, DefaultOptions())

	want := []caption.Caption{c(5.00, 5.04, "hi"), c(5.04, 6, "um")}
	if !reflect.DeepEqual(res.Captions, want) {
		t.Errorf("Merge() = %+v, want %+v", res.Captions, want)
	}
	if res.Duplicates != 1 {
		t.Errorf("duplicates = %d, want 1", res.Duplicates)
	}
}

func TestMergeDuplicateAfterTrimToZero(t *testing.T) {
	// "um" is trimmed away by "hey"; the later "hi" must then collapse into
	// the first one instead of landing next to it
	res := Merge([]segment.Outcome{
		ok(seg(0, 3, 0, 20), c(5.00, 6, "hi")),
		ok(seg(1, 3, 0, 20), c(5.02, 6, "um")),
		ok(seg(2, 3, 0, 20), c(5.02, 7, "hey"), c(5.08, 7, "hi")),
	}, DefaultOptions())

	for i := 1; i < len(res.Captions); i++ {
		prev, cur := res.Captions[i-1], res.Captions[i]
		if cur.Text == prev.Text && cur.Start-prev.Start < DefaultDuplicateWindow {
			t.Errorf("near-duplicates survived at %d: %+v %+v", i, prev, cur)
		}
	}
	hits := 0
	for _, cur := range res.Captions {
		if cur.Text == "hi" {
			hits++
		}
	}
	if hits != 1 || res.Duplicates != 1 {
		t.Errorf("Merge() = %+v duplicates = %d, want one \"hi\" and 1 duplicate", res.Captions, res.Duplicates)
	}
}

func TestMergeDropsNaN(t *testing.T) {
	res := Merge([]segment.Outcome{
		ok(seg(0, 1, 0, 10), c(math.NaN(), 2, "bad"), c(1, 2, "good")),
	}, DefaultOptions())

	if len(res.Captions) != 1 || res.Dropped != 1 {
		t.Errorf("Merge() = %+v", res)
	}
}

func TestMergeIndependentOfCompletionOrder(t *testing.T) {
	segs, _ := segment.Split(segment.TimeRange{Start: 0, End: 90}, 30)
	outcomes := []segment.Outcome{
		ok(segs[0], c(0, 5, "a"), c(28, 31, "boundary"), c(25, 28, "b")),
		ok(segs[1], c(29.95, 33, "boundary"), c(40, 45, "c")),
		ok(segs[2], c(59, 62, "d"), c(70, 75, "e")),
	}

	want := Merge(outcomes, DefaultOptions())

	reversed := []segment.Outcome{outcomes[2], outcomes[1], outcomes[0]}
	if got := Merge(reversed, DefaultOptions()); !reflect.DeepEqual(got, want) {
		t.Errorf("order-dependent result:\n got %+v\nwant %+v", got, want)
	}
}

func TestMergeInvariants(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	words := []string{"hi", "hello", "ok", "yes", "no", "well"}

	for iter := 0; iter < 200; iter++ {
		segs, _ := segment.Split(segment.TimeRange{Start: 0, End: 120}, 25)
		outcomes := make([]segment.Outcome, len(segs))
		for i, s := range segs {
			var caps []caption.Caption
			for k := 0; k < 8; k++ {
				start := s.Start - 2 + rng.Float64()*(s.Duration()+4)
				caps = append(caps, c(start, start+rng.Float64()*6, words[rng.Intn(len(words))]))
			}
			outcomes[i] = ok(s, caps...)
		}

		res := Merge(outcomes, DefaultOptions())
		again := Merge(outcomes, DefaultOptions())
		if !reflect.DeepEqual(res, again) {
			t.Fatal("Merge is not deterministic")
		}

		tagged, _ := stitch(outcomes, DefaultOptions())
		src := make([]int, len(tagged))
		for i, tg := range tagged {
			src[i] = tg.Source
		}

		for i, cur := range res.Captions {
			if cur.End <= cur.Start {
				t.Fatalf("iter %d: degenerate caption %+v", iter, cur)
			}
			if i == 0 {
				continue
			}
			prev := res.Captions[i-1]
			if cur.Start < prev.Start {
				t.Fatalf("iter %d: not sorted at %d", iter, i)
			}
			if cur.Start == prev.Start && cur.Text == prev.Text {
				t.Fatalf("iter %d: duplicate (start, text) at %d", iter, i)
			}
			if src[i] != src[i-1] && prev.End > cur.Start {
				t.Fatalf("iter %d: cross-segment overlap at %d", iter, i)
			}
			for j := i - 1; j >= 0 && cur.Start-res.Captions[j].Start < DefaultDuplicateWindow; j-- {
				if res.Captions[j].Text == cur.Text {
					t.Fatalf("iter %d: near-duplicate %q at %d and %d", iter, cur.Text, j, i)
				}
			}
		}
	}
}

func TestParseOverlapPolicy(t *testing.T) {
	tests := []struct {
		in      string
		want    OverlapPolicy
		wantErr bool
	}{
		{"", PassThrough, false},
		{"pass-through", PassThrough, false},
		{"PassThrough", PassThrough, false},
		{" trim ", Trim, false},
		{"extend", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseOverlapPolicy(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}
