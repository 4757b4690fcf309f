// Package subtitle reads and writes caption tracks as SRT, WebVTT and ASS
// files, and lays captions out for on-screen display.
package subtitle

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/mgpai22/captionstitch/internal/caption"
)

// supported subtitle file formats
type Format string

const (
	FormatSRT Format = "srt"
	FormatVTT Format = "vtt"
	FormatASS Format = "ass"
)

func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.TrimPrefix(strings.ToLower(strings.TrimSpace(s)), ".")); f {
	case FormatSRT, FormatVTT, FormatASS:
		return f, nil
	case "ssa":
		return FormatASS, nil
	default:
		return "", fmt.Errorf("unsupported subtitle format: %s", s)
	}
}

// FormatFromPath picks the format from the file extension.
func FormatFromPath(path string) (Format, error) {
	ext := filepath.Ext(path)
	if ext == "" {
		return "", fmt.Errorf("subtitle file %s has no extension", path)
	}
	return ParseFormat(ext)
}

func (f Format) Extension() string {
	return "." + string(f)
}

// Track is a caption list read from or destined for a subtitle file.
type Track struct {
	Format   Format
	Captions []caption.Caption
}
