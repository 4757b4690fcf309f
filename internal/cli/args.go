package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/mgpai22/captionstitch/internal/audio"
	"github.com/mgpai22/captionstitch/internal/segment"
)

// outputPathFor replaces the extension of input with ext.
func outputPathFor(input, ext string) string {
	if !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	return strings.TrimSuffix(input, filepath.Ext(input)) + ext
}

// parseTimestamp accepts plain seconds ("90.5"), M:SS or H:MM:SS with an
// optional fractional part.
func parseTimestamp(s string) (float64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("empty timestamp")
	}
	parts := strings.Split(s, ":")
	if len(parts) > 3 {
		return 0, fmt.Errorf("invalid timestamp %q", s)
	}

	var total float64
	for i, part := range parts {
		v, err := strconv.ParseFloat(part, 64)
		if err != nil || v < 0 {
			return 0, fmt.Errorf("invalid timestamp %q", s)
		}
		last := i == len(parts)-1
		if !last && v != float64(int64(v)) {
			return 0, fmt.Errorf("invalid timestamp %q", s)
		}
		if i > 0 && v >= 60 {
			return 0, fmt.Errorf("invalid timestamp %q: field out of range", s)
		}
		total = total*60 + v
	}
	return total, nil
}

// requestRange resolves --start and --end against the media duration.
// Empty values mean the start and the end of the media.
func requestRange(start, end string, mediaDuration float64) (segment.TimeRange, error) {
	r := segment.TimeRange{Start: 0, End: mediaDuration}
	if start != "" {
		v, err := parseTimestamp(start)
		if err != nil {
			return segment.TimeRange{}, fmt.Errorf("--start: %w", err)
		}
		r.Start = v
	}
	if end != "" {
		v, err := parseTimestamp(end)
		if err != nil {
			return segment.TimeRange{}, fmt.Errorf("--end: %w", err)
		}
		r.End = v
	}
	if mediaDuration > 0 && r.End > mediaDuration {
		r.End = mediaDuration
	}
	if err := r.Validate(); err != nil {
		return segment.TimeRange{}, err
	}
	return r, nil
}

func checkMediaFile(path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return fmt.Errorf("file not found: %s", path)
	}
	if !audio.IsMediaFile(path) {
		return fmt.Errorf("unsupported file type: %s (expected audio or video file)", filepath.Ext(path))
	}
	return nil
}
