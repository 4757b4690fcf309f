package subtitle

import (
	"strings"
	"unicode/utf8"

	"github.com/mgpai22/captionstitch/internal/caption"
)

// Layout splits captions that are too long to read and wraps their text.
type Layout struct {
	MaxCharsPerLine int
	MaxLines        int
	// MaxDuration is the longest a caption may stay on screen, in seconds.
	MaxDuration float64
}

func DefaultLayout() Layout {
	return Layout{
		MaxCharsPerLine: 42, // standard subtitle line length
		MaxLines:        2,  // most players show two lines
		MaxDuration:     7,
	}
}

// Apply returns display-ready captions. Captions that exceed the character
// or duration limits are split on word boundaries with time shared evenly;
// the pieces still cover the original span exactly.
func (l Layout) Apply(captions []caption.Caption) []caption.Caption {
	l = l.normalized()
	out := make([]caption.Caption, 0, len(captions))
	for _, c := range captions {
		text := strings.Join(strings.Fields(c.Text), " ")
		if text == "" {
			continue
		}
		c.Text = text
		for _, piece := range l.split(c) {
			piece.Text = l.wrap(piece.Text)
			out = append(out, piece)
		}
	}
	return out
}

func (l Layout) normalized() Layout {
	def := DefaultLayout()
	if l.MaxCharsPerLine < 1 {
		l.MaxCharsPerLine = def.MaxCharsPerLine
	}
	if l.MaxLines < 1 {
		l.MaxLines = def.MaxLines
	}
	if !(l.MaxDuration > 0) {
		l.MaxDuration = def.MaxDuration
	}
	return l
}

func (l Layout) split(c caption.Caption) []caption.Caption {
	words := strings.Fields(c.Text)
	maxChars := l.MaxCharsPerLine * l.MaxLines

	pieces := (utf8.RuneCountInString(c.Text) + maxChars - 1) / maxChars
	if byTime := int(c.Duration()/l.MaxDuration) + 1; c.Duration() > l.MaxDuration && byTime > pieces {
		pieces = byTime
	}
	pieces = min(max(pieces, 1), len(words))
	if pieces == 1 {
		return []caption.Caption{c}
	}

	perPiece := (len(words) + pieces - 1) / pieces
	step := c.Duration() / float64(pieces)

	out := make([]caption.Caption, 0, pieces)
	start := c.Start
	for i := 0; len(words) > 0; i++ {
		n := min(perPiece, len(words))
		end := start + step
		if n == len(words) {
			end = c.End
		}
		out = append(out, caption.Caption{Start: start, End: end, Text: strings.Join(words[:n], " ")})
		words = words[n:]
		start = end
	}
	return out
}

// wrap breaks text that does not fit one line at the word boundary closest
// to its middle.
func (l Layout) wrap(text string) string {
	runes := utf8.RuneCountInString(text)
	if runes <= l.MaxCharsPerLine || l.MaxLines < 2 {
		return text
	}
	words := strings.Fields(text)
	if len(words) < 2 {
		return text
	}

	middle := runes / 2
	best, bestDiff := 0, runes
	length := 0
	for i, w := range words[:len(words)-1] {
		length += utf8.RuneCountInString(w)
		if i > 0 {
			length++
		}
		diff := length - middle
		if diff < 0 {
			diff = -diff
		}
		if diff < bestDiff {
			best, bestDiff = i+1, diff
		}
	}
	return strings.Join(words[:best], " ") + "\n" + strings.Join(words[best:], " ")
}
