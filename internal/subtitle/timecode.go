package subtitle

import (
	"fmt"
	"math"
	"strconv"
)

type timecode struct {
	hours, minutes, seconds, millis int64
}

// split rounds seconds to the nearest millisecond. Negative and NaN values
// clamp to zero.
func split(seconds float64) timecode {
	if math.IsNaN(seconds) || seconds < 0 {
		seconds = 0
	}
	ms := int64(math.Round(seconds * 1000))
	return timecode{
		hours:   ms / 3_600_000,
		minutes: ms / 60_000 % 60,
		seconds: ms / 1000 % 60,
		millis:  ms % 1000,
	}
}

func formatSRTTime(seconds float64) string {
	t := split(seconds)
	return fmt.Sprintf("%02d:%02d:%02d,%03d", t.hours, t.minutes, t.seconds, t.millis)
}

func formatVTTTime(seconds float64) string {
	t := split(seconds)
	return fmt.Sprintf("%02d:%02d:%02d.%03d", t.hours, t.minutes, t.seconds, t.millis)
}

func formatASSTime(seconds float64) string {
	t := split(seconds)
	return fmt.Sprintf("%d:%02d:%02d.%02d", t.hours, t.minutes, t.seconds, t.millis/10)
}

// parseClock turns clock fields into seconds. The fraction is a decimal
// fraction of a second, so "5" and "50" both mean half a second; digits past
// milliseconds are ignored.
func parseClock(hours, minutes, secs, fraction string) (float64, error) {
	var h int64
	if hours != "" {
		v, err := strconv.ParseInt(hours, 10, 64)
		if err != nil {
			return 0, err
		}
		h = v
	}
	m, err := strconv.ParseInt(minutes, 10, 64)
	if err != nil {
		return 0, err
	}
	s, err := strconv.ParseInt(secs, 10, 64)
	if err != nil {
		return 0, err
	}
	if m > 59 || s > 59 {
		return 0, fmt.Errorf("minutes and seconds must be below 60, got %s:%s", minutes, secs)
	}

	var ms int64
	if fraction != "" {
		fraction = (fraction + "00")[:3]
		v, err := strconv.ParseInt(fraction, 10, 64)
		if err != nil {
			return 0, err
		}
		ms = v
	}
	return float64((h*3600+m*60+s)*1000+ms) / 1000, nil
}
