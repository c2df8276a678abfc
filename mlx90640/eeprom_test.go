// Copyright 2018 Marc-Antoine Ruel. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package mlx90640_test

import (
	"encoding/binary"
	"errors"
	"io/ioutil"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/maruel/go-mlx90640/mlx90640"
	"github.com/maruel/go-mlx90640/mlx90640/mlx90640test"
)

func TestParseEEPROM_size(t *testing.T) {
	b := mlx90640test.NewEEPROM()
	if _, err := mlx90640.ParseEEPROM(b[:len(b)-1]); !errors.Is(err, mlx90640.ErrTruncatedImage) {
		t.Fatalf("expected truncated image, got %v", err)
	}
	if _, err := mlx90640.ParseEEPROM(nil); !errors.Is(err, mlx90640.ErrTruncatedImage) {
		t.Fatalf("expected truncated image, got %v", err)
	}
	if _, err := mlx90640.ParseEEPROM(append(b, 0)); err == nil || errors.Is(err, mlx90640.ErrTruncatedImage) {
		t.Fatalf("expected size error, got %v", err)
	}
}

func TestEEPROM_Bytes(t *testing.T) {
	b := mlx90640test.NewEEPROM()
	e, err := mlx90640.ParseEEPROM(b)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(b, e.Bytes()); diff != "" {
		t.Fatalf("(-want +got):\n%s", diff)
	}
	if w := e.Words[0x0F]; w != 0xBE33 {
		t.Fatalf("0x%04X", w)
	}
}

func TestEEPROM_Word(t *testing.T) {
	e, err := mlx90640.ParseEEPROM(mlx90640test.NewEEPROM())
	if err != nil {
		t.Fatal(err)
	}
	data := []struct {
		addr int
		want uint16
	}{
		{0x2400, 0x00A2},
		{0x2433, 0x9D68},
		{0x273F, e.Words[0x33F]},
		{0x23FF, 0},
		{0x2740, 0},
		{0x0400, 0},
		{-1, 0},
	}
	for i, line := range data {
		if got := e.Word(line.addr); got != line.want {
			t.Fatalf("#%d: Word(0x%04X) = 0x%04X; want 0x%04X", i, line.addr, got, line.want)
		}
	}
}

func TestLoadEEPROM(t *testing.T) {
	d, err := ioutil.TempDir("", "mlx90640")
	if err != nil {
		t.Fatal(err)
	}
	defer os.RemoveAll(d)
	p := filepath.Join(d, "ee.bin")
	if err := ioutil.WriteFile(p, mlx90640test.NewEEPROM(), 0600); err != nil {
		t.Fatal(err)
	}
	if _, err := mlx90640.LoadEEPROM(p); err != nil {
		t.Fatal(err)
	}
	if _, err := mlx90640.LoadEEPROM(filepath.Join(d, "missing")); err == nil {
		t.Fatal("expected failure")
	}
}

func TestDecode_identity(t *testing.T) {
	b := mlx90640test.NewEEPROM()
	// Corrupt one byte of the device ID, then one of the register
	// configuration.
	for _, off := range []int{2*0x07 + 1, 2*0x09 + 1, 2*0x0C, 2*0x0F + 1} {
		c := append([]byte{}, b...)
		c[off] ^= 0xFF
		e, err := mlx90640.ParseEEPROM(c)
		if err != nil {
			t.Fatal(err)
		}
		_, err = e.Decode(false)
		if !errors.Is(err, mlx90640.ErrIdentityMismatch) {
			t.Fatalf("offset %d: expected identity mismatch, got %v", off, err)
		}
		var ie *mlx90640.IdentityError
		if !errors.As(err, &ie) {
			t.Fatalf("offset %d: %T", off, err)
		}
		if diff := cmp.Diff(e.Words[:16], ie.Header[:]); diff != "" {
			t.Fatalf("(-want +got):\n%s", diff)
		}
		if _, err := e.Decode(true); err != nil {
			t.Fatalf("offset %d: %v", off, err)
		}
	}
}

func TestDecode_header(t *testing.T) {
	c := decode(t)
	got := mlx90640.Calibration{
		KVdd:    c.KVdd,
		Vdd25:   c.Vdd25,
		APTAT:   c.APTAT,
		KVPTAT:  c.KVPTAT,
		KTPTAT:  c.KTPTAT,
		VPTAT25: c.VPTAT25,
		GainEE:  c.GainEE,
		KV:      c.KV,
		TGC:     c.TGC,
		KsTa:    c.KsTa,
	}
	// Values are exact.
	want := mlx90640.Calibration{
		KVdd:    -99,
		Vdd25:   104,
		APTAT:   9,
		KVPTAT:  22. / 4096,
		KTPTAT:  42.25,
		VPTAT25: 12273,
		GainEE:  6383,
		KV:      [2][2]float64{{0.0625, 0.0625}, {0.0625, 0.0625}},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("(-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]int{mlx90640test.Outlier}, c.Outliers); diff != "" {
		t.Fatalf("(-want +got):\n%s", diff)
	}
}

func TestDecode_pixels(t *testing.T) {
	c := decode(t)
	data := []struct {
		row, col int
		kTa      float64
		offset   int32
		alpha    float64
	}{
		// K_Ta: (83 + -3<<2) / 2^11
		// Offset: -54 + -2<<2 + -3<<1 + -6
		// Alpha: (14879 + -1<<9 + -2<<10 + -5<<6) / 2^37
		{0, 0, 71. / 2048, -74, 11999. / (1 << 37)},
		// i=33: K_Ta base 84, increment 2.
		// Offset: -54 + -1<<2 + -2<<1 + (33%13-6)
		// Alpha: 14879 + 0<<9 + -1<<10 + (33%11-5)<<6
		{1, 1, 92. / 2048, -54 - 4 - 4 + 1, float64(14879-1024-5*64) / (1 << 37)},
		// i=767: K_Ta base 84, increment 1.
		// Offset: -54 + 1<<2 + 0<<1 + (767%13-6)
		// Alpha: 14879 + 1<<9 + 1<<10 + (767%11-5)<<6
		{23, 31, 88. / 2048, -54 + 4 + 0 - 6, float64(14879+512+1024+3*64) / (1 << 37)},
		// i=32: K_Ta base 84 at 0x2436 low byte, increment 1.
		// Offset: -54 + -1<<2 + -3<<1 + (32%13-6)
		// Alpha: 14879 + 0<<9 + -2<<10 + (32%11-5)<<6
		{1, 0, 88. / 2048, -54 - 4 - 6 + 0, float64(14879-2048+5*64) / (1 << 37)},
	}
	for i, line := range data {
		p := line.row*mlx90640.Width + line.col
		if c.KTa[p] != line.kTa {
			t.Errorf("#%d: K_Ta = %g; want %g", i, c.KTa[p], line.kTa)
		}
		if c.Offset[p] != line.offset {
			t.Errorf("#%d: offset = %d; want %d", i, c.Offset[p], line.offset)
		}
		if c.Alpha[p] != line.alpha {
			t.Errorf("#%d: alpha = %g; want %g", i, c.Alpha[p], line.alpha)
		}
	}
}

func TestDecode_everyPixel(t *testing.T) {
	c := decode(t)
	for row := 0; row < mlx90640.Height; row++ {
		for col := 0; col < mlx90640.Width; col++ {
			i := row*mlx90640.Width + col
			// 0x2436 and 0x2437 hold 83 in the high byte and 84 in the low byte.
			base := int32(83 + row%2)
			want := float64(base+mlx90640test.PixKTa(i)<<2) / 2048
			if c.KTa[i] != want {
				t.Fatalf("(%d, %d): K_Ta = %g; want %g", col, row, c.KTa[i], want)
			}
			off := -54 + mlx90640test.OffsetRow(row)<<2 + mlx90640test.OffsetCol(col)<<1 + mlx90640test.PixOffset(i)
			if c.Offset[i] != off {
				t.Fatalf("(%d, %d): offset = %d; want %d", col, row, c.Offset[i], off)
			}
			a := 14879 + mlx90640test.AlphaRow(row)<<9 + mlx90640test.AlphaCol(col)<<10 + mlx90640test.PixAlpha(i)<<6
			if alpha := math.Ldexp(float64(a), -37); c.Alpha[i] != alpha {
				t.Fatalf("(%d, %d): alpha = %g; want %g", col, row, c.Alpha[i], alpha)
			}
			if c.Alpha[i] <= 0 {
				t.Fatalf("(%d, %d): alpha = %g", col, row, c.Alpha[i])
			}
		}
	}
}

func TestDecode_quadrants(t *testing.T) {
	b := mlx90640test.NewEEPROM()
	put := func(addr int, v uint16) {
		binary.LittleEndian.PutUint16(b[2*(addr-0x2400):], v)
	}
	// One distinct nibble per K_V quadrant and one distinct byte per K_Ta base.
	put(0x2434, 0x1234)
	put(0x2436, 0x0A0B)
	put(0x2437, 0x0C0D)
	e, err := mlx90640.ParseEEPROM(b)
	if err != nil {
		t.Fatal(err)
	}
	c, err := e.Decode(false)
	if err != nil {
		t.Fatal(err)
	}
	// Indexed [row%2][col%2]; K_V scale is 2^6.
	wantKV := [2][2]float64{{1. / 64, 3. / 64}, {2. / 64, 4. / 64}}
	if diff := cmp.Diff(wantKV, c.KV); diff != "" {
		t.Fatalf("(-want +got):\n%s", diff)
	}
	ktaBase := [2][2]int32{{10, 12}, {11, 13}}
	for row := 0; row < mlx90640.Height; row++ {
		for col := 0; col < mlx90640.Width; col++ {
			i := row*mlx90640.Width + col
			want := float64(ktaBase[row%2][col%2]+mlx90640test.PixKTa(i)<<2) / 2048
			if c.KTa[i] != want {
				t.Fatalf("(%d, %d): K_Ta = %g; want %g", col, row, c.KTa[i], want)
			}
		}
	}
}

//

func decode(t *testing.T) *mlx90640.Calibration {
	e, err := mlx90640.ParseEEPROM(mlx90640test.NewEEPROM())
	if err != nil {
		t.Fatal(err)
	}
	c, err := e.Decode(false)
	if err != nil {
		t.Fatal(err)
	}
	return c
}
