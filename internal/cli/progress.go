package cli

import (
	"fmt"
	"io"
	"sync"

	"github.com/mgpai22/captionstitch/internal/logging"
	"github.com/mgpai22/captionstitch/internal/progress"
	"github.com/mgpai22/captionstitch/internal/segment"
)

// consoleProgress renders snapshots as a single rewritten line on a
// terminal and as log entries otherwise.
type consoleProgress struct {
	mu       sync.Mutex
	out      io.Writer
	tty      bool
	label    string
	logger   *logging.Logger
	last     progress.Snapshot
	seen     bool
	lastDone int
}

func newConsoleProgress(out io.Writer, label string, logger *logging.Logger) *consoleProgress {
	return &consoleProgress{
		out:      out,
		tty:      isTerminal(out),
		label:    label,
		logger:   logging.OrNop(logger),
		lastDone: -1,
	}
}

func (p *consoleProgress) update(s progress.Snapshot) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.seen && !s.Newer(p.last) {
		return
	}
	p.last, p.seen = s, true

	if p.tty {
		fmt.Fprintf(p.out, "\r\033[K%s %s", p.label, s)
		return
	}

	counts := s.Counts()
	done := counts[segment.StatusSucceeded] + counts[segment.StatusFailed]
	if done == p.lastDone {
		return
	}
	p.lastDone = done
	p.logger.Infow("Progress",
		"task", p.label,
		"done", done,
		"total", len(s.PerSegmentStatus),
		"failed", counts[segment.StatusFailed],
		"percent", fmt.Sprintf("%.1f", s.OverallPercent),
	)
}

// finish ends the progress line so later output starts on a fresh line.
func (p *consoleProgress) finish() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.tty && p.seen {
		fmt.Fprintln(p.out)
	}
}

// fanOut delivers each snapshot to every non-nil listener in order.
func fanOut(listeners ...progress.UpdateFunc) progress.UpdateFunc {
	active := make([]progress.UpdateFunc, 0, len(listeners))
	for _, l := range listeners {
		if l != nil {
			active = append(active, l)
		}
	}
	return func(s progress.Snapshot) {
		for _, l := range active {
			l(s)
		}
	}
}
