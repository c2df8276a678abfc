// Copyright 2018 Marc-Antoine Ruel. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package mlx90640

import (
	"encoding/binary"
	"fmt"

	"github.com/maruel/go-mlx90640/mlx90640/internal"
	"periph.io/x/periph/conn/i2c"
)

// eepromChunk is the number of words read per I²C transaction.
const eepromChunk = 0x40

// ReadEEPROM dumps the EEPROM of the sensor at I2CAddr on the bus b.
//
// The returned image is in the little endian dump format accepted by
// ParseEEPROM. The datasheet rates the EEPROM read at 400kHz at most; set
// the bus speed accordingly before calling.
func ReadEEPROM(b i2c.Bus) ([]byte, error) {
	d := i2c.Dev{Bus: b, Addr: I2CAddr}
	out := make([]byte, EEPROMSize)
	var w [2]byte
	r := make([]byte, 2*eepromChunk)
	for off := 0; off < EEPROMWords; off += eepromChunk {
		addr := uint16(internal.AddrBase + off)
		binary.BigEndian.PutUint16(w[:], addr)
		if err := d.Tx(w[:], r); err != nil {
			return nil, fmt.Errorf("mlx90640: failed to read EEPROM at 0x%04X: %w", addr, err)
		}
		// The bus is big endian, the dump is little endian.
		for i := 0; i < eepromChunk; i++ {
			binary.LittleEndian.PutUint16(out[2*(off+i):], binary.BigEndian.Uint16(r[2*i:]))
		}
	}
	return out, nil
}
