package subtitle

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"regexp"
	"strings"

	"github.com/mgpai22/captionstitch/internal/caption"
)

// cue timing line shared by SRT and WebVTT; hours are optional in WebVTT and
// anything after the end time is cue settings
var timingRe = regexp.MustCompile(
	`^\s*(?:(\d+):)?(\d{1,2}):(\d{2})[.,](\d{1,3})\s*-->\s*(?:(\d+):)?(\d{1,2}):(\d{2})[.,](\d{1,3})`,
)

var assTimeRe = regexp.MustCompile(`^\s*(\d+):(\d{2}):(\d{2})(?:\.(\d{1,3}))?\s*$`)

var assOverrideRe = regexp.MustCompile(`\{[^}]*\}`)

// ReadFile decodes the subtitle file at path, picking the format from its
// extension.
func ReadFile(path string) (*Track, error) {
	format, err := FormatFromPath(path)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open subtitle file: %w", err)
	}
	defer func() {
		_ = f.Close()
	}()

	captions, err := Decode(f, format)
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return &Track{Format: format, Captions: captions}, nil
}

// Decode parses a subtitle stream. ASS override tags are stripped and line
// breaks become newlines.
func Decode(r io.Reader, format Format) ([]caption.Caption, error) {
	switch format {
	case FormatSRT, FormatVTT:
		return decodeCues(r)
	case FormatASS:
		return decodeASS(r)
	default:
		return nil, fmt.Errorf("unsupported subtitle format: %s", format)
	}
}

// decodeCues reads blank-line separated blocks. Blocks without a timing line
// (the WEBVTT header, NOTE, STYLE and REGION blocks) are skipped.
func decodeCues(r io.Reader) ([]caption.Caption, error) {
	var (
		captions []caption.Caption
		block    []string
		blockAt  int
	)

	flush := func() error {
		defer func() { block = block[:0] }()
		for i, line := range block {
			m := timingRe.FindStringSubmatch(line)
			if m == nil {
				continue
			}
			start, err := parseClock(m[1], m[2], m[3], m[4])
			if err != nil {
				return fmt.Errorf("invalid start time at line %d: %w", blockAt+i, err)
			}
			end, err := parseClock(m[5], m[6], m[7], m[8])
			if err != nil {
				return fmt.Errorf("invalid end time at line %d: %w", blockAt+i, err)
			}
			text := strings.Join(block[i+1:], "\n")
			if strings.TrimSpace(text) == "" {
				return nil
			}
			captions = append(captions, caption.Caption{Start: start, End: end, Text: text})
			return nil
		}
		return nil
	}

	scanner := bufio.NewScanner(r)
	lineNum := 0
	for scanner.Scan() {
		line := scanner.Text()
		lineNum++
		if lineNum == 1 {
			line = strings.TrimPrefix(line, "\ufeff")
		}

		if strings.TrimSpace(line) == "" {
			if err := flush(); err != nil {
				return nil, err
			}
			continue
		}
		if len(block) == 0 {
			blockAt = lineNum
		}
		block = append(block, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("error reading subtitles: %w", err)
	}
	if err := flush(); err != nil {
		return nil, err
	}
	return captions, nil
}

// decodeASS reads the Dialogue lines of the [Events] section using the
// section's Format line to locate the Start, End and Text columns.
func decodeASS(r io.Reader) ([]caption.Caption, error) {
	var (
		captions []caption.Caption
		inEvents bool
		columns  []string
		startCol = -1
		endCol   = -1
		textCol  = -1
	)

	scanner := bufio.NewScanner(r)
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())
		if lineNum == 1 {
			line = strings.TrimPrefix(line, "\ufeff")
		}

		if strings.HasPrefix(line, "[") && strings.HasSuffix(line, "]") {
			inEvents = strings.EqualFold(line, "[events]")
			continue
		}
		if !inEvents {
			continue
		}

		switch {
		case strings.HasPrefix(line, "Format:"):
			columns = strings.Split(strings.TrimPrefix(line, "Format:"), ",")
			for i, col := range columns {
				switch strings.ToLower(strings.TrimSpace(col)) {
				case "start":
					startCol = i
				case "end":
					endCol = i
				case "text":
					textCol = i
				}
			}
			if startCol < 0 || endCol < 0 || textCol != len(columns)-1 {
				return nil, fmt.Errorf("line %d: Format must list Start and End and end with Text", lineNum)
			}

		case strings.HasPrefix(line, "Dialogue:"):
			if columns == nil {
				return nil, fmt.Errorf("line %d: Dialogue before Format", lineNum)
			}
			fields := strings.SplitN(strings.TrimPrefix(line, "Dialogue:"), ",", len(columns))
			if len(fields) != len(columns) {
				return nil, fmt.Errorf("line %d: expected %d fields, got %d", lineNum, len(columns), len(fields))
			}
			start, err := parseASSTime(fields[startCol])
			if err != nil {
				return nil, fmt.Errorf("line %d: invalid start time: %w", lineNum, err)
			}
			end, err := parseASSTime(fields[endCol])
			if err != nil {
				return nil, fmt.Errorf("line %d: invalid end time: %w", lineNum, err)
			}
			text := assText(fields[textCol])
			if text == "" {
				continue
			}
			captions = append(captions, caption.Caption{Start: start, End: end, Text: text})
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("error reading subtitles: %w", err)
	}
	return captions, nil
}

func parseASSTime(s string) (float64, error) {
	m := assTimeRe.FindStringSubmatch(s)
	if m == nil {
		return 0, fmt.Errorf("malformed timestamp %q", s)
	}
	return parseClock(m[1], m[2], m[3], m[4])
}

func assText(s string) string {
	s = assOverrideRe.ReplaceAllString(s, "")
	s = strings.NewReplacer(`\N`, "\n", `\n`, "\n", `\h`, " ").Replace(s)
	return strings.TrimSpace(s)
}
