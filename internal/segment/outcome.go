package segment

import "github.com/mgpai22/captionstitch/internal/caption"

// Status is the lifecycle state of one segment's transcription.
type Status int

const (
	StatusPending Status = iota
	StatusRunning
	StatusSucceeded
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusRunning:
		return "running"
	case StatusSucceeded:
		return "succeeded"
	case StatusFailed:
		return "failed"
	default:
		return "unknown"
	}
}

func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s Status) Terminal() bool {
	return s == StatusSucceeded || s == StatusFailed
}

// CanTransition reports whether a slot may move from one status to another.
// Statuses only move forward; repeating a non-terminal status is allowed so
// that running segments can report new percentages.
func CanTransition(from, to Status) bool {
	switch from {
	case StatusPending:
		return to == StatusPending || to == StatusRunning || to.Terminal()
	case StatusRunning:
		return to == StatusRunning || to.Terminal()
	default:
		return false
	}
}

// Outcome is the result of transcribing one segment.
type Outcome struct {
	Segment  Segment
	Captions []caption.Tagged
	Status   Status
	Err      error
}

// Succeeded builds the outcome of a successful call, tagging every caption
// with the segment index.
func Succeeded(seg Segment, captions []caption.Caption) Outcome {
	return Outcome{
		Segment:  seg,
		Captions: caption.Tag(captions, seg.Index),
		Status:   StatusSucceeded,
	}
}

func Failed(seg Segment, err error) Outcome {
	return Outcome{
		Segment: seg,
		Status:  StatusFailed,
		Err:     err,
	}
}
