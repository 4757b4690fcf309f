package subtitle

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/mgpai22/captionstitch/internal/caption"
)

// EncodeOptions only affect ASS output.
type EncodeOptions struct {
	Title    string
	FontName string
	FontSize int
}

func DefaultEncodeOptions() EncodeOptions {
	return EncodeOptions{
		Title:    "captionstitch",
		FontName: "Arial",
		FontSize: 20,
	}
}

// Encode writes captions to w in the given format. Captions are written in
// the order given and numbered from 1.
func Encode(w io.Writer, format Format, captions []caption.Caption, opts EncodeOptions) error {
	bw := bufio.NewWriter(w)
	switch format {
	case FormatSRT:
		encodeSRT(bw, captions)
	case FormatVTT:
		encodeVTT(bw, captions)
	case FormatASS:
		encodeASS(bw, captions, opts)
	default:
		return fmt.Errorf("unsupported subtitle format: %s", format)
	}
	return bw.Flush()
}

// WriteFile encodes captions into path, creating parent directories.
func WriteFile(path string, format Format, captions []caption.Caption, opts EncodeOptions) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create subtitle file: %w", err)
	}
	if err := Encode(f, format, captions, opts); err != nil {
		_ = f.Close()
		return fmt.Errorf("failed to write subtitle file: %w", err)
	}
	return f.Close()
}

func encodeSRT(w *bufio.Writer, captions []caption.Caption) {
	for i, c := range captions {
		fmt.Fprintf(w, "%d\n%s --> %s\n%s\n\n", i+1, formatSRTTime(c.Start), formatSRTTime(c.End), c.Text)
	}
}

func encodeVTT(w *bufio.Writer, captions []caption.Caption) {
	w.WriteString("WEBVTT\n\n")
	for i, c := range captions {
		fmt.Fprintf(w, "%d\n%s --> %s\n%s\n\n", i+1, formatVTTTime(c.Start), formatVTTTime(c.End), c.Text)
	}
}

func encodeASS(w *bufio.Writer, captions []caption.Caption, opts EncodeOptions) {
	def := DefaultEncodeOptions()
	if opts.Title == "" {
		opts.Title = def.Title
	}
	if opts.FontName == "" {
		opts.FontName = def.FontName
	}
	if opts.FontSize <= 0 {
		opts.FontSize = def.FontSize
	}

	w.WriteString("[Script Info]\n")
	fmt.Fprintf(w, "Title: %s\n", opts.Title)
	w.WriteString("ScriptType: v4.00+\nCollisions: Normal\nPlayDepth: 0\n\n")

	w.WriteString("[V4+ Styles]\n")
	w.WriteString("Format: Name, Fontname, Fontsize, PrimaryColour, SecondaryColour, OutlineColour, BackColour, Bold, Italic, Underline, StrikeOut, ScaleX, ScaleY, Spacing, Angle, BorderStyle, Outline, Shadow, Alignment, MarginL, MarginR, MarginV, Encoding\n")
	fmt.Fprintf(w, "Style: Default,%s,%d,&H00FFFFFF,&H000000FF,&H00000000,&H00000000,0,0,0,0,100,100,0,0,1,2,2,2,10,10,10,1\n\n",
		opts.FontName, opts.FontSize)

	w.WriteString("[Events]\n")
	w.WriteString("Format: Layer, Start, End, Style, Name, MarginL, MarginR, MarginV, Effect, Text\n")
	for _, c := range captions {
		fmt.Fprintf(w, "Dialogue: 0,%s,%s,Default,,0,0,0,,%s\n",
			formatASSTime(c.Start), formatASSTime(c.End), strings.ReplaceAll(c.Text, "\n", `\N`))
	}
}
