package capture

import (
	"bufio"
	"fmt"
	"io"
)

// JPEG stream markers.
const (
	markerPrefix = 0xFF
	markerSOI    = 0xD8
	markerEOI    = 0xD9
)

// maxFrameSize caps a single MJPEG frame; anything larger means the
// stream is corrupt.
const maxFrameSize = 8 * 1024 * 1024

// mjpegScanner splits a raw MJPEG byte stream into individual JPEG
// frames by scanning for SOI/EOI marker pairs.
type mjpegScanner struct {
	r *bufio.Reader
}

func newMJPEGScanner(r io.Reader) *mjpegScanner {
	return &mjpegScanner{r: bufio.NewReaderSize(r, 64*1024)}
}

// Next returns the next complete JPEG frame. It blocks on the
// underlying reader; closing the reader makes it return the read error.
func (s *mjpegScanner) Next() ([]byte, error) {
	if err := s.seekSOI(); err != nil {
		return nil, err
	}

	frame := make([]byte, 0, 32*1024)
	frame = append(frame, markerPrefix, markerSOI)

	for {
		b, err := s.r.ReadByte()
		if err != nil {
			return nil, err
		}
		frame = append(frame, b)

		if b == markerPrefix {
			next, err := s.r.ReadByte()
			if err != nil {
				return nil, err
			}
			frame = append(frame, next)
			if next == markerEOI {
				return frame, nil
			}
		}

		if len(frame) > maxFrameSize {
			return nil, fmt.Errorf("mjpeg frame exceeds %d bytes", maxFrameSize)
		}
	}
}

func (s *mjpegScanner) seekSOI() error {
	for {
		b, err := s.r.ReadByte()
		if err != nil {
			return err
		}
		if b != markerPrefix {
			continue
		}
		next, err := s.r.ReadByte()
		if err != nil {
			return err
		}
		if next == markerSOI {
			return nil
		}
		if next == markerPrefix {
			// Possible start of a new marker, put it back.
			if err := s.r.UnreadByte(); err != nil {
				return err
			}
		}
	}
}
