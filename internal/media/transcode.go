// ABOUTME: Best-effort H.264 MP4 transcoding of uploaded videos via ffmpeg
// ABOUTME: A circuit breaker stops calling ffmpeg after repeated failures

package media

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/sony/gobreaker"
)

// Transcoder converts uploaded videos to H.264 MP4 so every browser can play
// them. Failures never fail the upload: the original bytes are used instead.
type Transcoder struct {
	ffmpeg  string
	timeout time.Duration
	cb      *gobreaker.CircuitBreaker
	logger  *slog.Logger

	// run executes ffmpeg; replaced in tests
	run func(ctx context.Context, bin string, args ...string) error
}

// NewTranscoder creates a transcoder calling the ffmpeg binary at ffmpegPath.
func NewTranscoder(ffmpegPath string, timeout time.Duration, logger *slog.Logger) *Transcoder {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "transcoder")

	st := gobreaker.Settings{
		Name:        "ffmpeg",
		MaxRequests: 1,
		Interval:    0,
		Timeout:     time.Minute,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.Warn("transcoder breaker state changed", "from", from.String(), "to", to.String())
		},
	}

	return &Transcoder{
		ffmpeg:  ffmpegPath,
		timeout: timeout,
		cb:      gobreaker.NewCircuitBreaker(st),
		logger:  logger,
		run:     runCommand,
	}
}

func runCommand(ctx context.Context, bin string, args ...string) error {
	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, bin, args...)
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		tail := stderr.Bytes()
		if len(tail) > 500 {
			tail = tail[len(tail)-500:]
		}
		return fmt.Errorf("ffmpeg: %w: %s", err, tail)
	}
	return nil
}

// Prepared is the file to store for an upload.
type Prepared struct {
	io.Reader
	// Transcoded is true when Reader yields MP4 output rather than the input.
	Transcoded bool
	cleanup    func()
}

// Close releases temp files behind the reader.
func (p *Prepared) Close() {
	if p.cleanup != nil {
		p.cleanup()
	}
}

// Prepare returns what to store for an upload of the given MIME type. Only
// video/* is transcoded; everything else passes through untouched. The
// caller must Close the result.
func (t *Transcoder) Prepare(ctx context.Context, r io.Reader, mimeType string) (*Prepared, error) {
	if !IsVideo(mimeType) {
		return &Prepared{Reader: r}, nil
	}

	dir, err := os.MkdirTemp("", "chorale-transcode-*")
	if err != nil {
		return nil, fmt.Errorf("creating transcode dir: %w", err)
	}
	cleanup := func() { os.RemoveAll(dir) }

	in := filepath.Join(dir, "in."+ExtForMIME(mimeType))
	out := filepath.Join(dir, "out.mp4")
	if err := writeFile(in, r); err != nil {
		cleanup()
		return nil, err
	}

	_, err = t.cb.Execute(func() (interface{}, error) {
		runCtx, cancel := context.WithTimeout(ctx, t.timeout)
		defer cancel()
		return nil, t.run(runCtx, t.ffmpeg,
			"-i", in,
			"-c:v", "libx264", "-preset", "fast", "-crf", "23",
			"-c:a", "aac", "-movflags", "+faststart",
			"-y", out)
	})

	path, transcoded := out, true
	if err != nil {
		t.logger.Warn("video transcode failed, storing original", "mime", mimeType, "error", err)
		path, transcoded = in, false
	}

	f, err := os.Open(path)
	if err != nil {
		cleanup()
		return nil, fmt.Errorf("opening transcode output: %w", err)
	}
	return &Prepared{
		Reader:     f,
		Transcoded: transcoded,
		cleanup: func() {
			f.Close()
			cleanup()
		},
	}, nil
}

func writeFile(name string, r io.Reader) error {
	f, err := os.Create(name)
	if err != nil {
		return fmt.Errorf("creating transcode input: %w", err)
	}
	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		return fmt.Errorf("writing transcode input: %w", err)
	}
	return f.Close()
}

// State reports the breaker state, for health output.
func (t *Transcoder) State() string {
	return t.cb.State().String()
}
