// Copyright 2018 Marc-Antoine Ruel. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package internal holds the MLX90640 memory layout: bit-field extraction on
// 16 bits words and the table of every calibration sub-field.
//
// Layout is from the MLX90640 datasheet, §11 "Calibration parameters" and
// §11.1 "Restoring calibration data". Bit 0 is the least significant bit of
// the word.
package internal

// Extract returns the width bits starting at bit start of word.
//
// When signed is set and the top extracted bit is 1, the value is sign
// extended as a width bits two's complement number.
func Extract(word uint16, start, width uint, signed bool) int32 {
	v := (uint32(word) >> start) & (1<<width - 1)
	if signed {
		return SignExtend(v, width)
	}
	return int32(v)
}

// SignExtend interprets the lower width bits of v as a two's complement
// number.
func SignExtend(v uint32, width uint) int32 {
	v &= 1<<width - 1
	if v&(1<<(width-1)) != 0 {
		v |= ^uint32(0) << width
	}
	return int32(v)
}

// Insert stores the lower width bits of v at bit start of word and returns
// the updated word. It is the inverse of Extract.
func Insert(word uint16, start, width uint, v int32) uint16 {
	mask := uint16(1<<width-1) << start
	return word&^mask | uint16(v)<<start&mask
}

// Field is one calibration sub-field.
//
// Addr is the absolute EEPROM address. Per-pixel fields use Addr 0 since they
// are relative to each pixel word.
type Field struct {
	Addr   uint16
	Start  uint
	Width  uint
	Signed bool
}

// Get extracts the field out of word.
func (f Field) Get(word uint16) int32 {
	return Extract(word, f.Start, f.Width, f.Signed)
}

// Set stores v into word.
func (f Field) Set(word uint16, v int32) uint16 {
	return Insert(word, f.Start, f.Width, v)
}

// EEPROM addresses of full words.
const (
	AddrBase       = 0x2400 // First word of the EEPROM.
	AddrID         = 0x2407 // 3 words device ID.
	AddrRegConf    = 0x240C // 4 words register configuration.
	AddrOffsetAvg  = 0x2411 // PIX_OS_AVG, signed.
	AddrOffsetRow  = 0x2412 // OCC_ROW, 6 words of 4 nibbles.
	AddrOffsetCol  = 0x2418 // OCC_COL, 8 words of 4 nibbles.
	AddrAlphaAvg   = 0x2421 // PIX_SENS_AVG, unsigned.
	AddrAlphaRow   = 0x2422 // ACC_ROW, 6 words of 4 nibbles.
	AddrAlphaCol   = 0x2428 // ACC_COL, 8 words of 4 nibbles.
	AddrGain       = 0x2430 // ee_GAIN, signed.
	AddrVPTAT25    = 0x2431 // PTAT_25, signed.
	AddrPixel      = 0x2440 // First of 768 per-pixel words.
	AddrEEPROMLast = 0x273F
)

// RAM addresses. The pixels are at 0x0400-0x06FF.
const (
	AddrRAMBase = 0x0400
	AddrVBE     = 0x0700
	AddrCPSP0   = 0x0708
	AddrGainRAM = 0x070A
	AddrVPTAT   = 0x0720 // Datasheet p.18 names it Ta_PTAT, p.23 V_PTAT.
	AddrCPSP1   = 0x0728
	AddrVDD     = 0x072A
	AddrRAMLast = 0x073F

	AddrStatus  = 0x8000 // Only present in extended frames.
	AddrRegLast = 0x801F
)

// Header fields at fixed addresses.
var (
	// 0x2410
	OffsetRemScale = Field{0x2410, 0, 4, false}
	OffsetColScale = Field{0x2410, 4, 4, false}
	OffsetRowScale = Field{0x2410, 8, 4, false}
	APTAT          = Field{0x2410, 12, 4, false}

	// 0x2420
	AlphaRemScale = Field{0x2420, 0, 4, false}
	AlphaColScale = Field{0x2420, 4, 4, false}
	AlphaRowScale = Field{0x2420, 8, 4, false}
	AlphaScale    = Field{0x2420, 12, 4, false}

	// 0x2432
	KTPTATLow  = Field{0x2432, 0, 8, false}
	KTPTATHigh = Field{0x2432, 8, 2, false}
	KVPTAT     = Field{0x2432, 10, 6, true}

	// 0x2433
	Vdd25 = Field{0x2433, 0, 8, false}
	KVdd  = Field{0x2433, 8, 8, true}

	// 0x2434, indexed [row%2][col%2]. The datasheet is 1-based so its "odd"
	// is our even.
	KV = [2][2]Field{
		{{0x2434, 12, 4, true}, {0x2434, 4, 4, true}},
		{{0x2434, 8, 4, true}, {0x2434, 0, 4, true}},
	}

	// 0x2436 and 0x2437, indexed [row%2][col%2].
	KTa = [2][2]Field{
		{{0x2436, 8, 8, true}, {0x2437, 8, 8, true}},
		{{0x2436, 0, 8, true}, {0x2437, 0, 8, true}},
	}

	// 0x2438
	Scale2438Unused = Field{0x2438, 0, 4, false}
	KVScale         = Field{0x2438, 4, 4, false}
	KTaScale1       = Field{0x2438, 8, 4, false} // Add 8.
	KTaScale2       = Field{0x2438, 12, 4, false}

	// 0x243C
	TGC  = Field{0x243C, 0, 8, true}
	KsTa = Field{0x243C, 8, 8, true}
)

// Per-pixel word fields.
var (
	PixOutlier = Field{0, 0, 1, false}
	PixKTa     = Field{0, 1, 3, true}
	// The datasheet splits it as 4+2 unsigned bits but it is a 6 bits two's
	// complement value.
	PixAlpha  = Field{0, 4, 6, true}
	PixOffset = Field{0, 10, 6, true}
)

// Nibble returns the field for the i-th signed 4 bits value of a packed
// nibble array starting at base.
func Nibble(base uint16, i int) Field {
	return Field{base + uint16(i/4), uint(4 * (i % 4)), 4, true}
}
