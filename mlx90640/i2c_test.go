// Copyright 2018 Marc-Antoine Ruel. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package mlx90640_test

import (
	"encoding/binary"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/maruel/go-mlx90640/mlx90640"
	"github.com/maruel/go-mlx90640/mlx90640/mlx90640test"
	"periph.io/x/periph/conn/i2c/i2ctest"
	"periph.io/x/periph/conn/physic"
)

func TestReadEEPROM(t *testing.T) {
	want := mlx90640test.NewEEPROM()
	i := i2ctest.Playback{Ops: eepromSequence(want)}
	got, err := mlx90640.ReadEEPROM(&i)
	if err != nil {
		t.Fatal(err)
	}
	if err := i.Close(); err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("(-want +got):\n%s", diff)
	}
	e, err := mlx90640.ParseEEPROM(got)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := e.Decode(false); err != nil {
		t.Fatal(err)
	}
}

func TestReadEEPROM_fail(t *testing.T) {
	b := failingBus{}
	if _, err := mlx90640.ReadEEPROM(&b); !errors.Is(err, errBus) {
		t.Fatalf("expected bus failure, got %v", err)
	}
}

//

// eepromSequence returns the I²C transactions to read the EEPROM image ee.
func eepromSequence(ee []byte) []i2ctest.IO {
	var ops []i2ctest.IO
	for off := 0; off < mlx90640.EEPROMWords; off += 0x40 {
		w := make([]byte, 2)
		binary.BigEndian.PutUint16(w, uint16(0x2400+off))
		r := make([]byte, 0x80)
		for i := 0; i < 0x40; i++ {
			binary.BigEndian.PutUint16(r[2*i:], binary.LittleEndian.Uint16(ee[2*(off+i):]))
		}
		ops = append(ops, i2ctest.IO{Addr: mlx90640.I2CAddr, W: w, R: r})
	}
	return ops
}

var errBus = errors.New("bus failure")

type failingBus struct{}

func (f *failingBus) String() string                    { return "fail" }
func (f *failingBus) Tx(addr uint16, w, r []byte) error { return errBus }
func (f *failingBus) SetSpeed(physic.Frequency) error   { return nil }
