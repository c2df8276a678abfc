// Copyright 2018 Marc-Antoine Ruel. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package mlx90640 converts Melexis MLX90640 raw frames into calibrated
// temperatures.
//
// The sensor exposes two memories: a factory programmed EEPROM holding the
// calibration constants and a RAM refreshed at each frame holding the raw ADC
// counts. The EEPROM is decoded once with EEPROM.Decode, then each RawFrame is
// converted by a Compensator.
//
// References:
// MLX90640 datasheet:
//   https://www.melexis.com/en/documents/documentation/datasheets/datasheet-mlx90640
//   p. 18    RAM and register map.
//   p. 19-21 EEPROM map.
//   p. 22-38 Calibration parameters restoration and temperature calculation.
//
// Only the emissivity 1 path is implemented; the compensation pixels, TGC and
// the sensitivity correction per temperature range are ignored.
package mlx90640

import (
	"errors"
	"fmt"
)

// Sensor geometry.
const (
	Width  = 32
	Height = 24
	Pixels = Width * Height
)

// Memory sizes, in bytes.
const (
	EEPROMWords = 0x340
	EEPROMSize  = 2 * EEPROMWords // 1664

	FrameWords         = 0x340
	ExtendedFrameWords = FrameWords + 0x20
	FrameSize          = 2 * FrameWords         // 0x680
	ExtendedFrameSize  = 2 * ExtendedFrameWords // 0x6C0
)

// I2CAddr is the factory default I²C address.
const I2CAddr = 0x33

var (
	// ErrIdentityMismatch is returned when the EEPROM device ID or register
	// configuration is not the one known to work. The returned error is an
	// *IdentityError.
	ErrIdentityMismatch = errors.New("mlx90640: device ID or register configuration does not match")
	// ErrTruncatedImage is returned when the EEPROM image is too short.
	ErrTruncatedImage = errors.New("mlx90640: truncated EEPROM image")
	// ErrTruncatedFrame is returned when a raw frame is too short.
	ErrTruncatedFrame = errors.New("mlx90640: truncated frame")
)

// IdentityError carries the first 16 EEPROM words when the identity check
// failed, so they can be printed for diagnosis.
type IdentityError struct {
	Header [16]uint16
}

func (i *IdentityError) Error() string {
	return fmt.Sprintf("%s; header %04X", ErrIdentityMismatch.Error(), i.Header[:])
}

func (i *IdentityError) Unwrap() error {
	return ErrIdentityMismatch
}
