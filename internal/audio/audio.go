// Package audio prepares media for transcription: it probes duration,
// extracts a compressed mono track, and cuts it into per-segment chunks.
package audio

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	ffmpeg "github.com/u2takey/ffmpeg-go"

	ffmpegbin "github.com/mgpai22/captionstitch/internal/ffmpeg"
)

// settings for audio extraction and compression
type CompressionOptions struct {
	Format     string // mp3, aac, flac or wav
	SampleRate int    // Hz
	Channels   int    // 1=mono, 2=stereo
	Bitrate    string // lossy formats only, e.g. "64k"
}

// defaults for transcription
func DefaultCompressionOptions() CompressionOptions {
	return CompressionOptions{
		Format:     "mp3",
		SampleRate: 16000,
		Channels:   1,
		Bitrate:    "64k",
	}
}

// JSON output from ffprobe
type ffprobeOutput struct {
	Format struct {
		Duration string `json:"duration"`
	} `json:"format"`
	Streams []struct {
		CodecType string `json:"codec_type"`
		CodecName string `json:"codec_name"`
		Width     int    `json:"width"`
		Height    int    `json:"height"`
	} `json:"streams"`
}

// media file information
type MediaInfo struct {
	Duration   time.Duration
	HasAudio   bool
	HasVideo   bool
	AudioCodec string
	VideoCodec string
	Width      int
	Height     int
}

// Probe reads container and stream information with ffprobe.
func Probe(ctx context.Context, filePath string) (*MediaInfo, error) {
	if _, err := os.Stat(filePath); os.IsNotExist(err) {
		return nil, fmt.Errorf("file not found: %s", filePath)
	}

	ffprobePath, err := ffmpegbin.FFprobePath()
	if err != nil {
		return nil, err
	}

	cmd := exec.CommandContext(ctx, ffprobePath,
		"-v", "quiet",
		"-print_format", "json",
		"-show_format",
		"-show_streams",
		filePath,
	)

	var out bytes.Buffer
	cmd.Stdout = &out
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("ffprobe failed: %w", err)
	}

	return parseProbe(out.Bytes())
}

// duration of an audio/video file
func GetDuration(ctx context.Context, filePath string) (time.Duration, error) {
	info, err := Probe(ctx, filePath)
	if err != nil {
		return 0, err
	}
	return info.Duration, nil
}

func parseProbe(data []byte) (*MediaInfo, error) {
	var probe ffprobeOutput
	if err := json.Unmarshal(data, &probe); err != nil {
		return nil, fmt.Errorf("failed to parse ffprobe output: %w", err)
	}
	seconds, err := strconv.ParseFloat(strings.TrimSpace(probe.Format.Duration), 64)
	if err != nil {
		return nil, fmt.Errorf("failed to parse duration %q: %w", probe.Format.Duration, err)
	}
	if seconds <= 0 {
		return nil, fmt.Errorf("media has no duration (%v)", seconds)
	}

	info := &MediaInfo{Duration: time.Duration(seconds * float64(time.Second))}
	for _, st := range probe.Streams {
		switch st.CodecType {
		case "audio":
			if !info.HasAudio {
				info.HasAudio = true
				info.AudioCodec = st.CodecName
			}
		case "video":
			if !info.HasVideo {
				info.HasVideo = true
				info.VideoCodec = st.CodecName
				info.Width, info.Height = st.Width, st.Height
			}
		}
	}
	return info, nil
}

// Extract writes the audio track of inputPath (audio or video) to outputPath
// re-encoded with opts. Video streams are dropped.
func Extract(ctx context.Context, inputPath, outputPath string, opts CompressionOptions) error {
	if _, err := os.Stat(inputPath); os.IsNotExist(err) {
		return fmt.Errorf("input file not found: %s", inputPath)
	}
	if err := os.MkdirAll(filepath.Dir(outputPath), 0o755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	stream := ffmpeg.Input(inputPath).
		Output(outputPath, extractArgs(opts)).
		OverWriteOutput()
	if err := run(ctx, stream); err != nil {
		return fmt.Errorf("audio extraction failed: %w", err)
	}
	return nil
}

func extractArgs(opts CompressionOptions) ffmpeg.KwArgs {
	kwargs := ffmpeg.KwArgs{
		"vn": "",
		"ar": opts.SampleRate,
		"ac": opts.Channels,
	}

	switch opts.Format {
	case "aac":
		kwargs["acodec"] = "aac"
	case "flac":
		kwargs["acodec"] = "flac"
		return kwargs
	case "wav":
		kwargs["acodec"] = "pcm_s16le"
		return kwargs
	default:
		kwargs["acodec"] = "libmp3lame"
	}
	if opts.Bitrate != "" {
		kwargs["b:a"] = opts.Bitrate
	}
	return kwargs
}

// run executes a compiled ffmpeg-go stream under ctx so cancellation kills
// the child process.
func run(ctx context.Context, stream *ffmpeg.Stream) error {
	ffmpegPath, err := ffmpegbin.FFmpegPath()
	if err != nil {
		return err
	}

	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, ffmpegPath, stream.GetArgs()...)
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("%w: %s", err, lastLine(stderr.String()))
	}
	return nil
}

func lastLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.LastIndexByte(s, '\n'); i >= 0 {
		return s[i+1:]
	}
	return s
}

var (
	videoExts = map[string]bool{
		".mp4": true, ".mkv": true, ".avi": true, ".mov": true,
		".wmv": true, ".flv": true, ".webm": true, ".m4v": true,
		".mpeg": true, ".mpg": true, ".3gp": true,
	}
	audioExts = map[string]bool{
		".mp3": true, ".wav": true, ".aac": true, ".flac": true,
		".ogg": true, ".m4a": true, ".wma": true, ".aiff": true,
	}
)

// checks if the file is a video based on extension
func IsVideoFile(path string) bool {
	return videoExts[strings.ToLower(filepath.Ext(path))]
}

// checks if the file is an audio file based on extension
func IsAudioFile(path string) bool {
	return audioExts[strings.ToLower(filepath.Ext(path))]
}

func IsMediaFile(path string) bool {
	return IsAudioFile(path) || IsVideoFile(path)
}
