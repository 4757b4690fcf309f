// Package ffmpeg locates the ffmpeg and ffprobe executables.
package ffmpeg

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"sync"
)

const (
	ffmpegEnv  = "CAPTIONSTITCH_FFMPEG_PATH"
	ffprobeEnv = "CAPTIONSTITCH_FFPROBE_PATH"
)

var ErrNotFound = errors.New("ffmpeg binaries not found")

type BinaryPaths struct {
	FFmpeg  string
	FFprobe string
}

var (
	ensureOnce sync.Once
	ensureErr  error
	ensurePath BinaryPaths
)

// Ensure resolves both binaries once per process.
func Ensure() (BinaryPaths, error) {
	ensureOnce.Do(func() {
		ensurePath, ensureErr = resolve(os.Getenv, exec.LookPath)
	})
	return ensurePath, ensureErr
}

func FFmpegPath() (string, error) {
	paths, err := Ensure()
	if err != nil {
		return "", err
	}
	return paths.FFmpeg, nil
}

func FFprobePath() (string, error) {
	paths, err := Ensure()
	if err != nil {
		return "", err
	}
	return paths.FFprobe, nil
}

// resolve prefers the environment overrides, then PATH.
func resolve(getenv func(string) string, lookPath func(string) (string, error)) (BinaryPaths, error) {
	paths := BinaryPaths{
		FFmpeg:  getenv(ffmpegEnv),
		FFprobe: getenv(ffprobeEnv),
	}

	var missing []string
	if paths.FFmpeg == "" {
		found, err := lookPath("ffmpeg")
		if err != nil {
			missing = append(missing, "ffmpeg")
		}
		paths.FFmpeg = found
	}
	if paths.FFprobe == "" {
		found, err := lookPath("ffprobe")
		if err != nil {
			missing = append(missing, "ffprobe")
		}
		paths.FFprobe = found
	}

	if len(missing) > 0 {
		return BinaryPaths{}, fmt.Errorf("%w: %v not on PATH (install ffmpeg or set %s and %s)",
			ErrNotFound, missing, ffmpegEnv, ffprobeEnv)
	}
	return paths, nil
}
