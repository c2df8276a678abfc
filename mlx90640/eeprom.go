// Copyright 2018 Marc-Antoine Ruel. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package mlx90640

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io/ioutil"
	"log"
	"math"

	"github.com/maruel/go-mlx90640/mlx90640/internal"
)

// EEPROM is the raw factory calibration memory, 0x2400-0x273F.
type EEPROM struct {
	Words [EEPROMWords]uint16
}

// Values at 0x2407 and 0x240C of the sensors known to work, as stored in
// the little endian image.
var (
	deviceID = []byte{0x28, 0x17, 0x4F, 0x8E, 0x87, 0x01}
	regConf  = []byte{0x01, 0x19, 0x00, 0x00, 0x00, 0x00, 0x33, 0xBE}
)

// ParseEEPROM decodes a 1664 bytes little endian EEPROM image.
func ParseEEPROM(b []byte) (*EEPROM, error) {
	if len(b) < EEPROMSize {
		return nil, fmt.Errorf("%w: got %d bytes, expected %d", ErrTruncatedImage, len(b), EEPROMSize)
	}
	if len(b) > EEPROMSize {
		return nil, fmt.Errorf("mlx90640: EEPROM image is %d bytes, expected %d", len(b), EEPROMSize)
	}
	e := &EEPROM{}
	for i := range e.Words {
		e.Words[i] = binary.LittleEndian.Uint16(b[2*i:])
	}
	return e, nil
}

// LoadEEPROM reads an EEPROM dump from a file.
func LoadEEPROM(path string) (*EEPROM, error) {
	b, err := ioutil.ReadFile(path)
	if err != nil {
		return nil, err
	}
	log.Printf("EEPROM: %d bytes read from %s", len(b), path)
	return ParseEEPROM(b)
}

// Bytes returns the little endian image, as stored in a dump file.
func (e *EEPROM) Bytes() []byte {
	out := make([]byte, EEPROMSize)
	for i, w := range e.Words {
		binary.LittleEndian.PutUint16(out[2*i:], w)
	}
	return out
}

// Word returns the word at the absolute address addr.
//
// An address outside 0x2400-0x273F is logged and returns 0.
func (e *EEPROM) Word(addr int) uint16 {
	if addr < internal.AddrBase || addr > internal.AddrEEPROMLast {
		log.Printf("mlx90640: bad EEPROM address 0x%04X", addr)
		return 0
	}
	return e.Words[addr-internal.AddrBase]
}

// CheckIdentity verifies the device ID and the register configuration.
func (e *EEPROM) CheckIdentity() error {
	b := e.Bytes()
	id := 2 * (internal.AddrID - internal.AddrBase)
	conf := 2 * (internal.AddrRegConf - internal.AddrBase)
	if !bytes.Equal(b[id:id+len(deviceID)], deviceID) || !bytes.Equal(b[conf:conf+len(regConf)], regConf) {
		i := &IdentityError{}
		copy(i.Header[:], e.Words[:])
		return i
	}
	return nil
}

// Decode restores the calibration constants.
//
// Unless skipIdentityCheck is set, an unknown device ID or register
// configuration returns an *IdentityError.
func (e *EEPROM) Decode(skipIdentityCheck bool) (*Calibration, error) {
	if !skipIdentityCheck {
		if err := e.CheckIdentity(); err != nil {
			return nil, err
		}
	}
	c := &Calibration{
		Vdd25:   uint8(e.get(internal.Vdd25)),
		KVdd:    int8(e.get(internal.KVdd)),
		APTAT:   float64(e.get(internal.APTAT))/4 + 8,
		KVPTAT:  float64(e.get(internal.KVPTAT)) / (1 << 12),
		KTPTAT:  float64(e.get(internal.KTPTATHigh)<<8|e.get(internal.KTPTATLow)) / 8,
		VPTAT25: int16(e.Word(internal.AddrVPTAT25)),
		GainEE:  int16(e.Word(internal.AddrGain)),
		TGC:     int8(e.get(internal.TGC)),
		KsTa:    int8(e.get(internal.KsTa)),
	}

	kvScale := int(e.get(internal.KVScale))
	var ktaBase [2][2]int32
	for r := 0; r < 2; r++ {
		for col := 0; col < 2; col++ {
			c.KV[r][col] = math.Ldexp(float64(e.get(internal.KV[r][col])), -kvScale)
			ktaBase[r][col] = e.get(internal.KTa[r][col])
		}
	}
	ktaScale1 := int(e.get(internal.KTaScale1)) + 8
	ktaScale2 := uint(e.get(internal.KTaScale2))

	offAvg := int32(int16(e.Word(internal.AddrOffsetAvg)))
	offRowScale := uint(e.get(internal.OffsetRowScale))
	offColScale := uint(e.get(internal.OffsetColScale))
	offRemScale := uint(e.get(internal.OffsetRemScale))

	alphaAvg := int32(e.Word(internal.AddrAlphaAvg))
	alphaScale := int(e.get(internal.AlphaScale)) + 30
	alphaRowScale := uint(e.get(internal.AlphaRowScale))
	alphaColScale := uint(e.get(internal.AlphaColScale))
	alphaRemScale := uint(e.get(internal.AlphaRemScale))

	var offRow, alphaRow [Height]int32
	for row := range offRow {
		offRow[row] = e.get(internal.Nibble(internal.AddrOffsetRow, row))
		alphaRow[row] = e.get(internal.Nibble(internal.AddrAlphaRow, row))
	}
	var offCol, alphaCol [Width]int32
	for col := range offCol {
		offCol[col] = e.get(internal.Nibble(internal.AddrOffsetCol, col))
		alphaCol[col] = e.get(internal.Nibble(internal.AddrAlphaCol, col))
	}

	for row := 0; row < Height; row++ {
		for col := 0; col < Width; col++ {
			i := row*Width + col
			w := e.Word(internal.AddrPixel + i)
			if internal.PixOutlier.Get(w) != 0 {
				c.Outliers = append(c.Outliers, i)
			}
			kta := ktaBase[row%2][col%2] + internal.PixKTa.Get(w)<<ktaScale2
			c.KTa[i] = math.Ldexp(float64(kta), -ktaScale1)
			c.Offset[i] = offAvg + offRow[row]<<offRowScale + offCol[col]<<offColScale + internal.PixOffset.Get(w)<<offRemScale
			alpha := alphaAvg + alphaRow[row]<<alphaRowScale + alphaCol[col]<<alphaColScale + internal.PixAlpha.Get(w)<<alphaRemScale
			c.Alpha[i] = math.Ldexp(float64(alpha), -alphaScale)
		}
	}

	if c.TGC != 0 {
		log.Printf("Warning: TGC value present, which will be ignored")
	}
	return c, nil
}

func (e *EEPROM) get(f internal.Field) int32 {
	return f.Get(e.Word(int(f.Addr)))
}
