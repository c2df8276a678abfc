// Copyright 2018 Marc-Antoine Ruel. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package capture

import (
	"fmt"
	"log"
	"time"

	"github.com/maruel/go-mlx90640/mlx90640"
)

// device is the subset of the V4L2 API used by the streams.
//
// read and dequeue return errNotReady when no frame is ready yet.
type device interface {
	capabilities() (uint32, error)
	setTimePerFrame(num, den uint32) error
	format() (height, sizeImage uint32, err error)
	requestBuffers(count uint32) (uint32, error)
	mapBuffer(i uint32) ([]byte, error)
	unmapBuffer(b []byte) error
	queue(i uint32) error
	dequeue() (i, bytesUsed uint32, err error)
	streamOn() error
	streamOff() error
	read(b []byte) (int, error)
	// wait returns false on timeout.
	wait(timeout time.Duration) (bool, error)
	Close() error
}

const (
	capReadWrite uint32 = 0x01000000
	capStreaming uint32 = 0x04000000
)

// bufferCount is the number of memory mapped buffers requested.
const bufferCount = 2

const (
	plainHeight    = mlx90640.FrameSize / 64
	extendedHeight = mlx90640.ExtendedFrameSize / 64
)

// timePerFrame returns the V4L2 frame interval for fps.
func timePerFrame(fps int) (num, den uint32) {
	switch fps {
	case 0:
		return 2, 1
	case 1, 2, 4, 8, 16, 32, 64:
		return 1, uint32(fps)
	case -1:
		return 1, 4
	default:
		log.Printf("Warning: FPS %d unrecognized, defaulting to 4Hz", fps)
		return 1, 4
	}
}

// stream is the state common to both device strategies.
type stream struct {
	dev      device
	extended bool
	timeout  time.Duration
}

func (s *stream) Extended() bool {
	return s.extended
}

func (s *stream) FrameSize() int {
	return frameSize(s.extended)
}

// next waits for the device and calls fetch until it returns something other
// than errNotReady.
func (s *stream) next(dst []byte, fetch func(dst []byte) error) error {
	if s.dev == nil {
		return fmt.Errorf("capture: stream closed")
	}
	if len(dst) < s.FrameSize() {
		return fmt.Errorf("capture: buffer too small: %d < %d", len(dst), s.FrameSize())
	}
	for {
		ready, err := s.dev.wait(s.timeout)
		if err != nil {
			return fmt.Errorf("capture: select: %w", err)
		}
		if !ready {
			return ErrTimeout
		}
		if err = fetch(dst); err != errNotReady {
			return err
		}
	}
}

func (s *stream) copyFrame(dst, src []byte) error {
	if len(src) < s.FrameSize() {
		return fmt.Errorf("capture: %w: %d bytes", mlx90640.ErrTruncatedFrame, len(src))
	}
	copy(dst, src[:s.FrameSize()])
	return nil
}

// readStream implements SynchronousRead.
type readStream struct {
	stream
	buf []byte
}

func (r *readStream) ReadFrame(dst []byte) error {
	return r.next(dst, func(dst []byte) error {
		n, err := r.dev.read(r.buf)
		if err != nil {
			if err == errNotReady {
				return err
			}
			return fmt.Errorf("capture: read: %w", err)
		}
		return r.copyFrame(dst, r.buf[:n])
	})
}

func (r *readStream) Close() error {
	if r.dev == nil {
		return nil
	}
	r.buf = nil
	err := r.dev.Close()
	r.dev = nil
	return err
}

// mmapStream implements ZeroCopyStream.
type mmapStream struct {
	stream
	arena     *arena
	streaming bool
}

func (m *mmapStream) ReadFrame(dst []byte) error {
	return m.next(dst, func(dst []byte) error {
		i, used, err := m.dev.dequeue()
		if err != nil {
			if err == errNotReady {
				return err
			}
			return fmt.Errorf("capture: VIDIOC_DQBUF: %w", err)
		}
		var errCopy error
		if err := m.arena.borrow(i, int(used), func(b []byte) { errCopy = m.copyFrame(dst, b) }); err != nil {
			return err
		}
		return errCopy
	})
}

// Close stops streaming, unmaps the buffers and closes the device, in this
// order. It is safe to call on a partially initialized stream.
func (m *mmapStream) Close() error {
	if m.dev == nil {
		return nil
	}
	var err error
	if m.streaming {
		if err = m.dev.streamOff(); err != nil {
			err = fmt.Errorf("capture: VIDIOC_STREAMOFF: %w", err)
		}
		m.streaming = false
	}
	if m.arena != nil {
		m.arena.reclaim()
		if err2 := m.arena.release(m.dev.unmapBuffer); err == nil {
			err = err2
		}
		m.arena = nil
	}
	if err2 := m.dev.Close(); err == nil {
		err = err2
	}
	m.dev = nil
	return err
}

// openStream negotiates with dev and starts capturing. It takes ownership of
// dev and closes it on failure.
func openStream(dev device, o *Opts) (Source, error) {
	base := stream{dev: dev, timeout: o.Timeout}
	if base.timeout <= 0 {
		base.timeout = DefaultTimeout
	}
	closeDev := dev
	defer func() {
		if closeDev != nil {
			closeDev.Close()
		}
	}()

	caps, err := dev.capabilities()
	if err != nil {
		return nil, fmt.Errorf("capture: VIDIOC_QUERYCAP: %w", err)
	}
	need := capStreaming
	if o.Method == SynchronousRead {
		need = capReadWrite
	}
	if caps&need == 0 {
		return nil, fmt.Errorf("%w: %s (capabilities 0x%08X)", ErrCapability, o.Method, caps)
	}
	if err := dev.setTimePerFrame(timePerFrame(o.FPS)); err != nil {
		return nil, fmt.Errorf("capture: VIDIOC_S_PARM: %w", err)
	}
	h, size, err := dev.format()
	if err != nil {
		return nil, fmt.Errorf("capture: VIDIOC_G_FMT: %w", err)
	}
	switch h {
	case extendedHeight:
		base.extended = true
	case plainHeight:
		log.Printf("Warning: video height is %d, subpage register is not present", h)
	default:
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedFormat, h)
	}
	if size < uint32(base.FrameSize()) {
		return nil, fmt.Errorf("%w: image size %d", ErrUnsupportedFormat, size)
	}

	if o.Method == SynchronousRead {
		closeDev = nil
		return &readStream{stream: base, buf: make([]byte, size)}, nil
	}

	// From here on, m.Close() releases the partial state, including dev.
	closeDev = nil
	m := &mmapStream{stream: base}
	defer func() {
		if m != nil {
			m.Close()
		}
	}()
	n, err := dev.requestBuffers(bufferCount)
	if err != nil {
		return nil, fmt.Errorf("capture: VIDIOC_REQBUFS: %w", err)
	}
	if n < bufferCount {
		return nil, fmt.Errorf("%w: %d", ErrInsufficientBuffers, n)
	}
	m.arena = newArena(dev.queue)
	for i := uint32(0); i < n; i++ {
		b, err := dev.mapBuffer(i)
		if err != nil {
			return nil, fmt.Errorf("capture: failed to map buffer %d: %w", i, err)
		}
		m.arena.add(b)
	}
	if err := m.arena.giveAll(); err != nil {
		return nil, err
	}
	if err := dev.streamOn(); err != nil {
		return nil, fmt.Errorf("capture: VIDIOC_STREAMON: %w", err)
	}
	m.streaming = true
	out := m
	m = nil
	return out, nil
}
