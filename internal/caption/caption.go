// Package caption holds the timestamped text spans exchanged between the
// transcription providers, the merge engine and the subtitle writers.
package caption

import "strings"

// Caption is a single timestamped text span. Times are seconds on the
// original, unsplit timeline.
type Caption struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Text  string  `json:"text"`
}

func (c Caption) Duration() float64 {
	return c.End - c.Start
}

// Tagged is a caption that remembers which segment produced it. The tag is
// only used while merging and never leaves the merge engine.
type Tagged struct {
	Caption
	Source int
}

// Tag marks every caption with the index of the segment that produced it.
func Tag(captions []Caption, source int) []Tagged {
	out := make([]Tagged, len(captions))
	for i, c := range captions {
		out[i] = Tagged{Caption: c, Source: source}
	}
	return out
}

// Rebase shifts segment-relative captions onto the original timeline.
func Rebase(captions []Caption, offset float64) []Caption {
	out := make([]Caption, len(captions))
	for i, c := range captions {
		out[i] = Caption{
			Start: c.Start + offset,
			End:   c.End + offset,
			Text:  c.Text,
		}
	}
	return out
}

// Clean trims whitespace and drops captions without text.
func Clean(captions []Caption) []Caption {
	out := make([]Caption, 0, len(captions))
	for _, c := range captions {
		c.Text = strings.TrimSpace(c.Text)
		if c.Text == "" {
			continue
		}
		out = append(out, c)
	}
	return out
}
