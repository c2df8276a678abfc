// Copyright 2018 Marc-Antoine Ruel. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package capture

import (
	"time"
	"unsafe"

	"golang.org/x/sys/unix"
)

const (
	bufTypeVideoCapture = 1
	memoryMmap          = 1
)

// Structures from linux/videodev2.h.

type v4l2Capability struct {
	Driver       [16]uint8
	Card         [32]uint8
	BusInfo      [32]uint8
	Version      uint32
	Capabilities uint32
	DeviceCaps   uint32
	Reserved     [3]uint32
}

type v4l2PixFormat struct {
	Width        uint32
	Height       uint32
	PixelFormat  uint32
	Field        uint32
	BytesPerLine uint32
	SizeImage    uint32
	Colorspace   uint32
	Priv         uint32
	Flags        uint32
	YcbcrEnc     uint32
	Quantization uint32
	XferFunc     uint32
}

// v4l2Format embeds a union which contains pointers, thus the uint64 words
// to get the kernel alignment.
type v4l2Format struct {
	Type uint32
	Fmt  [25]uint64
}

func (f *v4l2Format) pix() *v4l2PixFormat {
	return (*v4l2PixFormat)(unsafe.Pointer(&f.Fmt[0]))
}

type v4l2Fract struct {
	Numerator   uint32
	Denominator uint32
}

type v4l2CaptureParm struct {
	Capability   uint32
	CaptureMode  uint32
	TimePerFrame v4l2Fract
	ExtendedMode uint32
	ReadBuffers  uint32
	Reserved     [4]uint32
}

type v4l2StreamParm struct {
	Type    uint32
	Capture v4l2CaptureParm
	_       [160]uint8
}

type v4l2RequestBuffers struct {
	Count        uint32
	Type         uint32
	Memory       uint32
	Capabilities uint32
	Flags        uint8
	Reserved     [3]uint8
}

type v4l2Timecode struct {
	Type     uint32
	Flags    uint32
	Frames   uint8
	Seconds  uint8
	Minutes  uint8
	Hours    uint8
	Userbits [4]uint8
}

type v4l2Buffer struct {
	Index     uint32
	Type      uint32
	BytesUsed uint32
	Flags     uint32
	Field     uint32
	Timestamp unix.Timeval
	Timecode  v4l2Timecode
	Sequence  uint32
	Memory    uint32
	// M is the union; only the offset is used.
	M         uintptr
	Length    uint32
	Reserved2 uint32
	RequestFD uint32
}

const (
	iocWrite = 1
	iocRead  = 2
)

func ioc(dir, nr, size uintptr) uintptr {
	return dir<<30 | size<<16 | 'V'<<8 | nr
}

var (
	vidiocQueryCap  = ioc(iocRead, 0, unsafe.Sizeof(v4l2Capability{}))
	vidiocGFmt      = ioc(iocRead|iocWrite, 4, unsafe.Sizeof(v4l2Format{}))
	vidiocReqBufs   = ioc(iocRead|iocWrite, 8, unsafe.Sizeof(v4l2RequestBuffers{}))
	vidiocQueryBuf  = ioc(iocRead|iocWrite, 9, unsafe.Sizeof(v4l2Buffer{}))
	vidiocQBuf      = ioc(iocRead|iocWrite, 15, unsafe.Sizeof(v4l2Buffer{}))
	vidiocDQBuf     = ioc(iocRead|iocWrite, 17, unsafe.Sizeof(v4l2Buffer{}))
	vidiocStreamOn  = ioc(iocWrite, 18, unsafe.Sizeof(int32(0)))
	vidiocStreamOff = ioc(iocWrite, 19, unsafe.Sizeof(int32(0)))
	vidiocGParm     = ioc(iocRead|iocWrite, 21, unsafe.Sizeof(v4l2StreamParm{}))
	vidiocSParm     = ioc(iocRead|iocWrite, 22, unsafe.Sizeof(v4l2StreamParm{}))
)

// v4l2 is a V4L2 video capture device.
type v4l2 struct {
	fd int
}

func openDevice(path string) (device, error) {
	fd, err := unix.Open(path, unix.O_RDWR|unix.O_NONBLOCK, 0)
	if err != nil {
		return nil, err
	}
	return &v4l2{fd: fd}, nil
}

func (v *v4l2) ioctl(op uintptr, arg unsafe.Pointer) error {
	for {
		_, _, errno := unix.Syscall(unix.SYS_IOCTL, uintptr(v.fd), op, uintptr(arg))
		switch errno {
		case 0:
			return nil
		case unix.EINTR:
		case unix.EAGAIN:
			return errNotReady
		default:
			return errno
		}
	}
}

func (v *v4l2) capabilities() (uint32, error) {
	var c v4l2Capability
	if err := v.ioctl(vidiocQueryCap, unsafe.Pointer(&c)); err != nil {
		if err == unix.EINVAL {
			return 0, ErrNotV4L2
		}
		return 0, err
	}
	return c.Capabilities, nil
}

func (v *v4l2) setTimePerFrame(num, den uint32) error {
	p := v4l2StreamParm{Type: bufTypeVideoCapture}
	if err := v.ioctl(vidiocGParm, unsafe.Pointer(&p)); err != nil {
		return err
	}
	p.Capture.TimePerFrame = v4l2Fract{Numerator: num, Denominator: den}
	return v.ioctl(vidiocSParm, unsafe.Pointer(&p))
}

func (v *v4l2) format() (uint32, uint32, error) {
	f := v4l2Format{Type: bufTypeVideoCapture}
	if err := v.ioctl(vidiocGFmt, unsafe.Pointer(&f)); err != nil {
		return 0, 0, err
	}
	p := f.pix()
	return p.Height, p.SizeImage, nil
}

func (v *v4l2) requestBuffers(count uint32) (uint32, error) {
	r := v4l2RequestBuffers{Count: count, Type: bufTypeVideoCapture, Memory: memoryMmap}
	if err := v.ioctl(vidiocReqBufs, unsafe.Pointer(&r)); err != nil {
		if err == unix.EINVAL {
			return 0, errNoMmap
		}
		return 0, err
	}
	return r.Count, nil
}

func (v *v4l2) mapBuffer(i uint32) ([]byte, error) {
	b := v4l2Buffer{Index: i, Type: bufTypeVideoCapture, Memory: memoryMmap}
	if err := v.ioctl(vidiocQueryBuf, unsafe.Pointer(&b)); err != nil {
		return nil, err
	}
	return unix.Mmap(v.fd, int64(uint32(b.M)), int(b.Length), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
}

func (v *v4l2) unmapBuffer(b []byte) error {
	return unix.Munmap(b)
}

func (v *v4l2) queue(i uint32) error {
	b := v4l2Buffer{Index: i, Type: bufTypeVideoCapture, Memory: memoryMmap}
	return v.ioctl(vidiocQBuf, unsafe.Pointer(&b))
}

func (v *v4l2) dequeue() (uint32, uint32, error) {
	b := v4l2Buffer{Type: bufTypeVideoCapture, Memory: memoryMmap}
	if err := v.ioctl(vidiocDQBuf, unsafe.Pointer(&b)); err != nil {
		return 0, 0, err
	}
	return b.Index, b.BytesUsed, nil
}

func (v *v4l2) streamOn() error {
	t := int32(bufTypeVideoCapture)
	return v.ioctl(vidiocStreamOn, unsafe.Pointer(&t))
}

func (v *v4l2) streamOff() error {
	t := int32(bufTypeVideoCapture)
	return v.ioctl(vidiocStreamOff, unsafe.Pointer(&t))
}

func (v *v4l2) read(b []byte) (int, error) {
	for {
		n, err := unix.Read(v.fd, b)
		switch err {
		case nil:
			return n, nil
		case unix.EINTR:
		case unix.EAGAIN:
			return 0, errNotReady
		default:
			return 0, err
		}
	}
}

func (v *v4l2) wait(timeout time.Duration) (bool, error) {
	fds := []unix.PollFd{{Fd: int32(v.fd), Events: unix.POLLIN}}
	for {
		n, err := unix.Poll(fds, int(timeout/time.Millisecond))
		if err == unix.EINTR {
			continue
		}
		if err != nil {
			return false, err
		}
		return n != 0, nil
	}
}

func (v *v4l2) Close() error {
	if v.fd < 0 {
		return nil
	}
	err := unix.Close(v.fd)
	v.fd = -1
	return err
}
