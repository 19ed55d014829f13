// Package capture owns the media device handles: camera and microphone
// sources backed by ffmpeg processes, plus the durable encoders each
// source multiplexes into.
package capture

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"
)

// CameraConfig describes the capture device and nominal rate.
type CameraConfig struct {
	Device    string // e.g. /dev/video0
	Input     string // ffmpeg input format, e.g. v4l2, avfoundation
	FrameRate int
}

// CameraSource reads MJPEG frames from a camera via an ffmpeg capture
// process. Every frame is teed into a durable mp4 encoder and into the
// latest-frame slot consumed by the live pull stream.
type CameraSource struct {
	cfg       CameraConfig
	videoPath string
	logger    *zap.Logger

	cmd     *exec.Cmd
	stdout  io.ReadCloser
	scanner *mjpegScanner
	rec     *recorder
	latest  latestSlot

	mu     sync.Mutex
	opened bool
	closed bool
}

func NewCameraSource(cfg CameraConfig, videoPath string, logger *zap.Logger) *CameraSource {
	return &CameraSource{cfg: cfg, videoPath: videoPath, logger: logger}
}

func (c *CameraSource) Open() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.opened {
		return nil
	}

	cmd := exec.Command("ffmpeg",
		"-f", c.cfg.Input,
		"-framerate", strconv.Itoa(c.cfg.FrameRate),
		"-i", c.cfg.Device,
		"-f", "mjpeg",
		"-q:v", "5",
		"-",
	)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("camera stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("open camera %s: %w", c.cfg.Device, err)
	}

	rec, err := newVideoRecorder(c.videoPath, c.cfg.FrameRate, c.logger)
	if err != nil {
		_ = cmd.Process.Kill()
		_ = cmd.Wait()
		return fmt.Errorf("start video recorder: %w", err)
	}

	c.cmd = cmd
	c.stdout = stdout
	c.scanner = newMJPEGScanner(stdout)
	c.rec = rec
	c.opened = true

	c.logger.Info("camera opened",
		zap.String("device", c.cfg.Device),
		zap.Int("framerate", c.cfg.FrameRate))
	return nil
}

// Next blocks until a frame arrives. Close kills the capture process,
// which unblocks the pipe read, so the owning loop exits promptly.
func (c *CameraSource) Next(ctx context.Context) (Frame, error) {
	if err := ctx.Err(); err != nil {
		return Frame{}, err
	}
	if c.isClosed() {
		return Frame{}, ErrSourceClosed
	}

	data, err := c.scanner.Next()
	if err != nil {
		// A dead capture process reads as EOF forever; end of stream,
		// not a transient failure.
		if c.isClosed() || ctx.Err() != nil || errors.Is(err, io.EOF) {
			return Frame{}, ErrSourceClosed
		}
		return Frame{}, fmt.Errorf("read frame: %w", err)
	}

	c.rec.Write(data)
	c.latest.store(data)

	return Frame{Data: data, Timestamp: time.Now()}, nil
}

// Latest is the pull-stream side channel: the most recent encoded
// frame, never consuming from the capture loop.
func (c *CameraSource) Latest() ([]byte, bool) {
	return c.latest.load()
}

func (c *CameraSource) Close() error {
	c.mu.Lock()
	if !c.opened || c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	if c.cmd.Process != nil {
		_ = c.cmd.Process.Kill()
	}
	_ = c.cmd.Wait()
	_ = c.stdout.Close()

	if err := c.rec.Close(); err != nil {
		c.logger.Warn("finalizing video file", zap.Error(err))
	}
	c.logger.Info("camera closed", zap.String("video", c.videoPath))
	return nil
}

func (c *CameraSource) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}
