// Copyright 2018 Marc-Antoine Ruel. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package capture

import (
	"fmt"
	"io"
	"log"
	"os"
	"time"
)

// File reads back to back raw frames from a flat file, like one written with
// the raw recording of cmd/mlx90640.
type File struct {
	r        io.ReadCloser
	extended bool
	delay    time.Duration
}

// OpenFile opens a flat file of frames.
//
// fps is emulated by sleeping after each frame; -1 disables it and 0 means one
// frame every 2 seconds.
func OpenFile(path string, fps int, extended bool) (*File, error) {
	delay, err := fileDelay(fps)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("capture: %w", err)
	}
	return &File{r: f, extended: extended, delay: delay}, nil
}

// NewFile returns a File reading from r. It takes ownership of r.
func NewFile(r io.ReadCloser, fps int, extended bool) (*File, error) {
	delay, err := fileDelay(fps)
	if err != nil {
		return nil, err
	}
	return &File{r: r, extended: extended, delay: delay}, nil
}

// ReadFrame implements Source.
//
// It returns io.EOF when the file does not contain one more full frame.
func (f *File) ReadFrame(dst []byte) error {
	if f.r == nil {
		return fmt.Errorf("capture: file closed")
	}
	size := f.FrameSize()
	if len(dst) < size {
		return fmt.Errorf("capture: buffer too small: %d < %d", len(dst), size)
	}
	n, err := io.ReadFull(f.r, dst[:size])
	if err == io.EOF || err == io.ErrUnexpectedEOF {
		if n != 0 {
			log.Printf("A frame did not reach its full size: %d bytes", n)
		}
		return io.EOF
	}
	if err != nil {
		return fmt.Errorf("capture: %w", err)
	}
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	return nil
}

// Extended implements Source.
func (f *File) Extended() bool {
	return f.extended
}

// FrameSize implements Source.
func (f *File) FrameSize() int {
	return frameSize(f.extended)
}

// Close implements Source.
func (f *File) Close() error {
	if f.r == nil {
		return nil
	}
	err := f.r.Close()
	f.r = nil
	return err
}

func fileDelay(fps int) (time.Duration, error) {
	switch {
	case fps == -1:
		return 0, nil
	case fps == 0:
		return 2 * time.Second, nil
	case fps > 0:
		return time.Second / time.Duration(fps), nil
	default:
		return 0, fmt.Errorf("%w: %d", ErrFPS, fps)
	}
}

var _ Source = &File{}
