// Copyright 2018 Marc-Antoine Ruel. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package capture reads raw MLX90640 frames from a V4L2 capture device or,
// as a fallback, from a flat file.
//
// A V4L2 device, like a UVC bridge streaming the sensor RAM, is read either
// with read() calls or with memory mapped buffers shared with the kernel.
// Frames are 64 bytes lines; 26 lines carry the RAM only, 27 lines also carry
// the registers at 0x8000.
//
// References:
// V4L2 API:
//   https://www.kernel.org/doc/html/latest/userspace-api/media/v4l/v4l2.html
//   "Streaming I/O (Memory Mapping)" and "Read/Write" sections.
package capture

import (
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"time"

	"github.com/maruel/go-mlx90640/mlx90640"
)

// Method is the I/O strategy used with a V4L2 device.
type Method int

// Valid values for Method.
const (
	// ZeroCopyStream uses buffers memory mapped between the kernel and the
	// process.
	ZeroCopyStream Method = iota
	// SynchronousRead uses read() into one heap buffer.
	SynchronousRead
)

func (m Method) String() string {
	switch m {
	case ZeroCopyStream:
		return "mmap"
	case SynchronousRead:
		return "read"
	default:
		return fmt.Sprintf("Method(%d)", int(m))
	}
}

// DefaultTimeout is the maximum wait for a frame from a device.
const DefaultTimeout = 2 * time.Second

// Opts is the configuration of Open.
type Opts struct {
	// Method is the I/O strategy for a V4L2 device.
	Method Method
	// FPS is the frame rate.
	//
	// For a device, one of 0 (0.5Hz), 1, 2, 4, 8, 16, 32 or 64. Other values
	// select 4Hz.
	//
	// For a file, it is emulated by sleeping after each frame: -1 means no
	// sleep, 0 means one frame every 2 seconds. So the zero Opts paces a file
	// at 0.5Hz while a nil *Opts passed to Open reads it without sleeping.
	FPS int
	// Extended tells that a file contains 27 lines frames. Devices report it.
	Extended bool
	// Timeout is the maximum wait for a frame from a device. Defaults to
	// DefaultTimeout.
	Timeout time.Duration
}

// Source is a source of raw frames.
type Source interface {
	io.Closer
	// ReadFrame blocks until one full frame is available and copies it into
	// dst, which must be at least FrameSize() bytes.
	//
	// It returns io.EOF when the stream ended, e.g. a file is exhausted, and
	// ErrTimeout when a device did not deliver a frame in time. Any other error
	// is a device failure.
	ReadFrame(dst []byte) error
	// Extended returns true when the frames include the registers.
	Extended() bool
	// FrameSize returns the size in bytes of one frame.
	FrameSize() int
}

var (
	// ErrTimeout is returned by ReadFrame when the device did not deliver a
	// frame in time. It is fatal; the stream is not usable anymore.
	ErrTimeout = errors.New("capture: select timeout")
	// ErrUnsupportedFormat is returned by Open when the device frame height is
	// neither 26 nor 27 lines.
	ErrUnsupportedFormat = errors.New("capture: wrong video height")
	// ErrInsufficientBuffers is returned by Open when the device granted less
	// than 2 buffers.
	ErrInsufficientBuffers = errors.New("capture: insufficient buffer memory on device")
	// ErrCapability is returned by Open when the device does not support the
	// requested Method.
	ErrCapability = errors.New("capture: device does not support the i/o method")
	// ErrNotV4L2 is returned by Open when the character device is not a V4L2
	// device.
	ErrNotV4L2 = errors.New("capture: not a V4L2 device")
	// ErrFPS is returned by Open for a negative frame rate other than -1 on a
	// file.
	ErrFPS = errors.New("capture: FPS is negative")
)

var (
	// errNotReady is returned by a device when no frame is ready yet.
	errNotReady = errors.New("capture: not ready")
	errNoMmap   = errors.New("capture: device does not support memory mapping")
)

// Open opens the V4L2 device or the file at path.
//
// When path is not a character device, it falls back to reading it as a flat
// file of frames. On failure, everything acquired so far is released.
//
// A nil o is the same as &Opts{FPS: -1}: mmap streaming at 4Hz for a
// device and no pacing for a file. &Opts{} instead selects 0.5Hz on a device
// and paces a file at one frame every 2 seconds.
func Open(path string, o *Opts) (Source, error) {
	if o == nil {
		o = &Opts{FPS: -1}
	}
	fi, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("capture: cannot identify %q: %w", path, err)
	}
	if fi.Mode()&os.ModeCharDevice == 0 {
		log.Printf("Warning: %s is not a device; falling back to raw file parsing", path)
		f, err := OpenFile(path, o.FPS, o.Extended)
		if err != nil {
			return nil, err
		}
		return f, nil
	}
	dev, err := openDevice(path)
	if err != nil {
		return nil, fmt.Errorf("capture: cannot open %q: %w", path, err)
	}
	return openStream(dev, o)
}

func frameSize(extended bool) int {
	if extended {
		return mlx90640.ExtendedFrameSize
	}
	return mlx90640.FrameSize
}
