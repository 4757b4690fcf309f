package audio

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"sync"

	ffmpeg "github.com/u2takey/ffmpeg-go"

	"github.com/mgpai22/captionstitch/internal/logging"
	"github.com/mgpai22/captionstitch/internal/segment"
)

// Chunk is the audio file cut for one segment. The file starts at Offset
// seconds on the original timeline and may extend past the segment bounds
// by the configured overlap.
type Chunk struct {
	segment.Segment
	Path   string
	Offset float64
	// Span is the padded range actually contained in the file.
	Span segment.TimeRange
}

type CutOptions struct {
	// Overlap pads each chunk on both sides, in seconds.
	Overlap float64
	// MediaDuration bounds the padding at the end of the file. Zero means
	// the segment's request end is used.
	MediaDuration float64
	Concurrency   int
	Logger        *logging.Logger
}

// CutSegments writes one chunk per segment into outputDir. Chunks are
// returned in segment order. The first cut error cancels the remaining cuts.
func CutSegments(
	ctx context.Context,
	audioPath string,
	segs []segment.Segment,
	outputDir string,
	opts CutOptions,
) ([]Chunk, error) {
	if len(segs) == 0 {
		return nil, nil
	}
	if _, err := os.Stat(audioPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("audio file not found: %s", audioPath)
	}
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}

	concurrency := opts.Concurrency
	if concurrency <= 0 {
		concurrency = 10
	}
	logger := logging.OrNop(opts.Logger)

	baseName := strings.TrimSuffix(filepath.Base(audioPath), filepath.Ext(audioPath))
	ext := filepath.Ext(audioPath)

	chunks := make([]Chunk, len(segs))
	for i, seg := range segs {
		span := paddedSpan(seg, opts.Overlap, opts.MediaDuration)
		chunks[i] = Chunk{
			Segment: seg,
			Path:    filepath.Join(outputDir, fmt.Sprintf("%s_seg_%03d%s", baseName, seg.Index, ext)),
			Offset:  span.Start,
			Span:    span,
		}
	}

	ctx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	var wg sync.WaitGroup
	sem := make(chan struct{}, concurrency)
	for i := range chunks {
		wg.Go(func() {
			select {
			case sem <- struct{}{}:
			case <-ctx.Done():
				return
			}
			defer func() { <-sem }()

			c := chunks[i]
			if err := cutOne(ctx, audioPath, c); err != nil {
				cancel(fmt.Errorf("failed to create chunk %d: %w", c.Index, err))
				return
			}
			logger.Debugw("Cut segment audio",
				"segment", c.Index,
				"start", c.Span.Start,
				"end", c.Span.End,
				"path", c.Path,
			)
		})
	}
	wg.Wait()

	if err := context.Cause(ctx); err != nil {
		return nil, err
	}
	return chunks, nil
}

func cutOne(ctx context.Context, audioPath string, c Chunk) error {
	stream := ffmpeg.Input(audioPath, ffmpeg.KwArgs{"ss": seconds(c.Span.Start)}).
		Output(c.Path, ffmpeg.KwArgs{
			"t": seconds(c.Span.Duration()),
			"c": "copy",
		}).
		OverWriteOutput()
	return run(ctx, stream)
}

// paddedSpan widens the segment by overlap on both sides, staying within
// the media.
func paddedSpan(seg segment.Segment, overlap, mediaDuration float64) segment.TimeRange {
	if math.IsNaN(overlap) || overlap < 0 {
		overlap = 0
	}
	end := mediaDuration
	if end <= 0 {
		end = seg.Request.End
	}
	if end <= 0 {
		end = seg.End
	}
	return segment.TimeRange{
		Start: math.Max(0, seg.Start-overlap),
		End:   math.Min(end, seg.End+overlap),
	}
}

// seconds formats a timestamp for ffmpeg with millisecond precision.
func seconds(v float64) string {
	return fmt.Sprintf("%.3f", v)
}

// removes all chunk files
func CleanupChunks(chunks []Chunk) error {
	var errs []error
	for _, chunk := range chunks {
		if err := os.Remove(chunk.Path); err != nil && !os.IsNotExist(err) {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
