// Copyright 2018 Marc-Antoine Ruel. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package mlx90640

import (
	"encoding/binary"
	"fmt"
	"log"

	"github.com/maruel/go-mlx90640/mlx90640/internal"
)

// RawFrame is one RAM image as read from the capture device.
//
// Words holds the RAM at 0x0400-0x073F and, when Extended is set, the
// registers at 0x8000-0x801F right after.
type RawFrame struct {
	Words    [ExtendedFrameWords]uint16
	Extended bool
}

// ParseFrame decodes a little endian raw frame.
func ParseFrame(b []byte, extended bool) (*RawFrame, error) {
	f := &RawFrame{}
	if err := f.Load(b, extended); err != nil {
		return nil, err
	}
	return f, nil
}

// Load decodes b into f in place.
//
// Extra bytes past the frame size are ignored.
func (f *RawFrame) Load(b []byte, extended bool) error {
	n := FrameWords
	if extended {
		n = ExtendedFrameWords
	}
	if len(b) < 2*n {
		return fmt.Errorf("%w: got %d bytes, expected %d", ErrTruncatedFrame, len(b), 2*n)
	}
	for i := 0; i < n; i++ {
		f.Words[i] = binary.LittleEndian.Uint16(b[2*i:])
	}
	for i := n; i < len(f.Words); i++ {
		f.Words[i] = 0
	}
	f.Extended = extended
	return nil
}

// Size returns the size in bytes of the frame as stored.
func (f *RawFrame) Size() int {
	if f.Extended {
		return ExtendedFrameSize
	}
	return FrameSize
}

// Bytes returns the frame in its little endian storage format.
func (f *RawFrame) Bytes() []byte {
	out := make([]byte, f.Size())
	for i := 0; i < len(out)/2; i++ {
		binary.LittleEndian.PutUint16(out[2*i:], f.Words[i])
	}
	return out
}

// Word returns the signed RAM word at absolute address addr.
//
// An address outside 0x0400-0x073F is logged and returns 0.
func (f *RawFrame) Word(addr int) int16 {
	if addr < internal.AddrRAMBase || addr > internal.AddrRAMLast {
		log.Printf("mlx90640: bad RAM address 0x%04X", addr)
		return 0
	}
	return int16(f.Words[addr-internal.AddrRAMBase])
}

// Register returns the register at absolute address addr.
//
// Registers are only present in extended frames. An address outside
// 0x8000-0x801F or a plain frame is logged and returns 0.
func (f *RawFrame) Register(addr int) uint16 {
	if addr < internal.AddrStatus || addr > internal.AddrRegLast {
		log.Printf("mlx90640: bad register address 0x%04X", addr)
		return 0
	}
	if !f.Extended {
		log.Printf("mlx90640: register 0x%04X is not present in plain frames", addr)
		return 0
	}
	return f.Words[FrameWords+addr-internal.AddrStatus]
}

// Pixel returns the raw ADC count of pixel i.
func (f *RawFrame) Pixel(i int) int16 {
	return int16(f.Words[i])
}

// SetWord stores v at the RAM address addr. It is meant to synthesize
// frames.
func (f *RawFrame) SetWord(addr int, v int16) {
	f.Words[addr-internal.AddrRAMBase] = uint16(v)
}

// SetRegister stores v at the register address addr and marks the frame as
// extended.
func (f *RawFrame) SetRegister(addr int, v uint16) {
	f.Words[FrameWords+addr-internal.AddrStatus] = v
	f.Extended = true
}
