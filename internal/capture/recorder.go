package capture

import (
	"fmt"
	"io"
	"os/exec"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"
)

// CheckFFmpeg verifies ffmpeg is installed and on PATH.
func CheckFFmpeg() error {
	if err := exec.Command("ffmpeg", "-version").Run(); err != nil {
		return fmt.Errorf("ffmpeg is not installed or not in PATH: %w", err)
	}
	return nil
}

// recorder feeds raw media into an ffmpeg encode process over stdin
// and finalizes the output file on Close.
type recorder struct {
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	logger *zap.Logger

	mu     sync.Mutex
	closed bool
	failed bool
}

// newVideoRecorder encodes an MJPEG frame stream into an mp4 file.
func newVideoRecorder(path string, fps int, logger *zap.Logger) (*recorder, error) {
	cmd := exec.Command("ffmpeg",
		"-y",
		"-f", "mjpeg",
		"-framerate", strconv.Itoa(fps),
		"-i", "-",
		"-c:v", "libx264",
		"-pix_fmt", "yuv420p",
		"-preset", "veryfast",
		path,
	)
	return startRecorder(cmd, logger)
}

// newAudioRecorder encodes a mono float32 PCM stream into a wav file.
func newAudioRecorder(path string, sampleRate int, logger *zap.Logger) (*recorder, error) {
	cmd := exec.Command("ffmpeg",
		"-y",
		"-f", "f32le",
		"-ar", strconv.Itoa(sampleRate),
		"-ac", "1",
		"-i", "-",
		"-c:a", "pcm_s16le",
		path,
	)
	return startRecorder(cmd, logger)
}

func startRecorder(cmd *exec.Cmd, logger *zap.Logger) (*recorder, error) {
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("recorder stdin pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start ffmpeg encoder: %w", err)
	}
	return &recorder{cmd: cmd, stdin: stdin, logger: logger}, nil
}

// Write appends one unit of raw media. A failed encoder is remembered
// so a dead ffmpeg does not spam the log on every frame.
func (r *recorder) Write(b []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed || r.failed {
		return
	}
	if _, err := r.stdin.Write(b); err != nil {
		r.failed = true
		r.logger.Warn("durable encoder write failed, recording stops", zap.Error(err))
	}
}

// Close flushes the encoder by closing stdin and waits for ffmpeg to
// finalize the file, bounded so a wedged process cannot block stop.
func (r *recorder) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	r.mu.Unlock()

	if err := r.stdin.Close(); err != nil {
		r.logger.Warn("closing encoder stdin", zap.Error(err))
	}

	done := make(chan error, 1)
	go func() { done <- r.cmd.Wait() }()

	select {
	case err := <-done:
		return err
	case <-time.After(5 * time.Second):
		if r.cmd.Process != nil {
			_ = r.cmd.Process.Kill()
		}
		return fmt.Errorf("encoder did not exit, killed")
	}
}
