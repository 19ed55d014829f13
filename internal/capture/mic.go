package capture

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os/exec"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"
)

// MicConfig describes the microphone device and chunking.
type MicConfig struct {
	Device     string // e.g. "default"
	Input      string // ffmpeg input format, e.g. alsa, pulse
	SampleRate int
	ChunkMs    int
}

// MicSource reads mono float32 PCM from a microphone via ffmpeg and
// yields fixed-duration chunks. Raw samples are teed into a durable
// wav encoder.
type MicSource struct {
	cfg       MicConfig
	audioPath string
	logger    *zap.Logger

	cmd    *exec.Cmd
	stdout io.ReadCloser
	rec    *recorder
	buf    []byte

	mu     sync.Mutex
	opened bool
	closed bool
}

func NewMicSource(cfg MicConfig, audioPath string, logger *zap.Logger) *MicSource {
	return &MicSource{cfg: cfg, audioPath: audioPath, logger: logger}
}

func (m *MicSource) Open() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.opened {
		return nil
	}

	cmd := exec.Command("ffmpeg",
		"-f", m.cfg.Input,
		"-i", m.cfg.Device,
		"-f", "f32le",
		"-ar", strconv.Itoa(m.cfg.SampleRate),
		"-ac", "1",
		"-",
	)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("mic stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("open microphone %s: %w", m.cfg.Device, err)
	}

	rec, err := newAudioRecorder(m.audioPath, m.cfg.SampleRate, m.logger)
	if err != nil {
		_ = cmd.Process.Kill()
		_ = cmd.Wait()
		return fmt.Errorf("start audio recorder: %w", err)
	}

	m.cmd = cmd
	m.stdout = stdout
	m.rec = rec
	m.buf = make([]byte, m.chunkSamples()*4)
	m.opened = true

	m.logger.Info("microphone opened",
		zap.String("device", m.cfg.Device),
		zap.Int("sample_rate", m.cfg.SampleRate))
	return nil
}

func (m *MicSource) chunkSamples() int {
	ms := m.cfg.ChunkMs
	if ms <= 0 {
		ms = 100
	}
	return m.cfg.SampleRate * ms / 1000
}

// Next blocks until a full chunk has been read. A short read that
// still delivered samples is surfaced as an interrupted chunk rather
// than an error.
func (m *MicSource) Next(ctx context.Context) (Chunk, error) {
	if err := ctx.Err(); err != nil {
		return Chunk{}, err
	}
	if m.isClosed() {
		return Chunk{}, ErrSourceClosed
	}

	n, err := io.ReadFull(m.stdout, m.buf)
	if err != nil && err != io.ErrUnexpectedEOF {
		// ReadFull reports a clean EOF only when zero bytes arrived:
		// the capture process is gone, so the stream is over.
		if m.isClosed() || ctx.Err() != nil || errors.Is(err, io.EOF) {
			return Chunk{}, ErrSourceClosed
		}
		return Chunk{}, fmt.Errorf("read audio chunk: %w", err)
	}

	m.rec.Write(m.buf[:n])

	samples := make([]float32, n/4)
	for i := range samples {
		bits := binary.LittleEndian.Uint32(m.buf[i*4:])
		samples[i] = math.Float32frombits(bits)
	}

	return Chunk{
		Samples:     samples,
		Timestamp:   time.Now(),
		Interrupted: err == io.ErrUnexpectedEOF,
	}, nil
}

func (m *MicSource) Close() error {
	m.mu.Lock()
	if !m.opened || m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	m.mu.Unlock()

	if m.cmd.Process != nil {
		_ = m.cmd.Process.Kill()
	}
	_ = m.cmd.Wait()
	_ = m.stdout.Close()

	if err := m.rec.Close(); err != nil {
		m.logger.Warn("finalizing audio file", zap.Error(err))
	}
	m.logger.Info("microphone closed", zap.String("audio", m.audioPath))
	return nil
}

func (m *MicSource) isClosed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}
