// Copyright 2018 Marc-Antoine Ruel. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package mlx90640test implements a fake MLX90640 sensor.
package mlx90640test

import (
	"encoding/binary"
	"errors"
	"math"
	"math/rand"
	"time"

	"github.com/maruel/go-mlx90640/mlx90640"
	"github.com/maruel/go-mlx90640/mlx90640/internal"
)

// header is the first 16 words of a real sensor EEPROM.
var header = [16]uint16{
	0x00A2, 0x699F, 0x0000, 0x2061, 0x0005, 0x0320, 0x03E0, 0x1728,
	0x8E4F, 0x0187, 0x048D, 0x0000, 0x1901, 0x0000, 0x0000, 0xBE33,
}

// Fixed header words of the fixture.
var words = map[int]uint16{
	0x2410: 0x4210, // a_PTAT=9, row scale 2, col scale 1, rem scale 0.
	0x2411: 0xFFCA, // Offset average -54.
	0x2420: 0x79A6, // Alpha scale 37, row scale 9, col scale 10, rem scale 6.
	0x2421: 0x3A1F, // Alpha average 14879.
	0x2430: 0x18EF, // ee_GAIN 6383.
	0x2431: 0x2FF1, // V_PTAT_25 12273.
	0x2432: 0x5952, // K_V_PTAT 22/4096, K_T_PTAT 42.25.
	0x2433: 0x9D68, // K_Vdd -99, Vdd_25 104.
	0x2434: 0x4444, // K_V 4.
	0x2436: 0x5354, // K_Ta 83 and 84.
	0x2437: 0x5354,
	0x2438: 0x2363, // K_V scale 6, K_Ta scale1 3+8, K_Ta scale2 2.
	0x243C: 0x0000, // No TGC.
}

// Outlier is the pixel flagged as an outlier in the fixture.
const Outlier = 100

// Nibble patterns of the fixture.
func OffsetRow(row int) int32 { return int32(row%5) - 2 }
func OffsetCol(col int) int32 { return int32(col%7) - 3 }
func AlphaRow(row int) int32  { return int32(row%3) - 1 }
func AlphaCol(col int) int32  { return int32(col%4) - 2 }

// Per pixel patterns of the fixture.
func PixKTa(i int) int32    { return int32(i%7) - 3 }
func PixAlpha(i int) int32  { return int32(i%11) - 5 }
func PixOffset(i int) int32 { return int32(i%13) - 6 }

// NewEEPROM returns a valid 1664 bytes EEPROM image.
func NewEEPROM() []byte {
	var w [mlx90640.EEPROMWords]uint16
	copy(w[:], header[:])
	for addr, v := range words {
		w[addr-internal.AddrBase] = v
	}
	set := func(f internal.Field, v int32) {
		i := int(f.Addr) - internal.AddrBase
		w[i] = f.Set(w[i], v)
	}
	for row := 0; row < mlx90640.Height; row++ {
		set(internal.Nibble(internal.AddrOffsetRow, row), OffsetRow(row))
		set(internal.Nibble(internal.AddrAlphaRow, row), AlphaRow(row))
	}
	for col := 0; col < mlx90640.Width; col++ {
		set(internal.Nibble(internal.AddrOffsetCol, col), OffsetCol(col))
		set(internal.Nibble(internal.AddrAlphaCol, col), AlphaCol(col))
	}
	for i := 0; i < mlx90640.Pixels; i++ {
		var p uint16
		if i == Outlier {
			p = internal.PixOutlier.Set(p, 1)
		}
		p = internal.PixKTa.Set(p, PixKTa(i))
		p = internal.PixAlpha.Set(p, PixAlpha(i))
		p = internal.PixOffset.Set(p, PixOffset(i))
		w[internal.AddrPixel-internal.AddrBase+i] = p
	}
	out := make([]byte, mlx90640.EEPROMSize)
	for i, v := range w {
		binary.LittleEndian.PutUint16(out[2*i:], v)
	}
	return out
}

// Sensor is a fake sensor streaming frames computed from the fixture
// calibration. It has the shape of capture.Source.
type Sensor struct {
	// Rate is the delay before each frame. 0 means no delay.
	Rate time.Duration
	// Ambient is the sensor ambient temperature in °C.
	Ambient float64

	cal      *mlx90640.Calibration
	extended bool
	noise    *noise
	frame    mlx90640.RawFrame
	target   [mlx90640.Pixels]float64
	count    int
	closed   bool
}

// New returns a fake sensor.
//
// When extended is set, the frames carry the status register and alternate
// subpages.
func New(extended bool) (*Sensor, error) {
	e, err := mlx90640.ParseEEPROM(NewEEPROM())
	if err != nil {
		return nil, err
	}
	cal, err := e.Decode(false)
	if err != nil {
		return nil, err
	}
	return &Sensor{Ambient: 25, cal: cal, extended: extended, noise: makeNoise()}, nil
}

// Calibration returns the calibration matching the frames.
func (s *Sensor) Calibration() *mlx90640.Calibration {
	return s.cal
}

// Target returns the temperatures rendered in the last frame.
func (s *Sensor) Target() []float64 {
	return s.target[:]
}

// Extended implements capture.Source.
func (s *Sensor) Extended() bool {
	return s.extended
}

// FrameSize implements capture.Source.
func (s *Sensor) FrameSize() int {
	if s.extended {
		return mlx90640.ExtendedFrameSize
	}
	return mlx90640.FrameSize
}

// ReadFrame implements capture.Source.
func (s *Sensor) ReadFrame(dst []byte) error {
	if s.closed {
		return errors.New("mlx90640test: closed")
	}
	if len(dst) < s.FrameSize() {
		return errors.New("mlx90640test: buffer too small")
	}
	if s.Rate != 0 {
		time.Sleep(s.Rate)
	}
	s.noise.update()
	s.noise.render(s.Ambient, s.target[:])
	s.Render(s.target[:], &s.frame)
	copy(dst, s.frame.Bytes())
	return nil
}

// Close implements capture.Source.
func (s *Sensor) Close() error {
	s.closed = true
	return nil
}

// Render writes into f the raw frame that compensates into the temperatures
// to, in °C.
//
// The header is chosen so the supply voltage delta is 0 and the gain is 1.
func (s *Sensor) Render(to []float64, f *mlx90640.RawFrame) {
	cal := s.cal
	const vptat = 1500
	art := (s.Ambient-25)*cal.KTPTAT + float64(cal.VPTAT25)
	vbe := int16(math.Round(vptat * ((1<<18)/art - cal.APTAT)))
	f.SetWord(mlx90640.AddrVDD, int16(int(cal.Vdd25)<<5-16384))
	f.SetWord(mlx90640.AddrVPTAT, vptat)
	f.SetWord(mlx90640.AddrVBE, vbe)
	f.SetWord(mlx90640.AddrGainRAM, cal.GainEE)
	if s.extended {
		f.SetRegister(mlx90640.AddrStatus, uint16(s.count%2))
	}
	s.count++

	// Recompute the ambient with the rounded V_BE.
	art = (1 << 18) / (cal.APTAT + float64(vbe)/vptat)
	dTa := (art - float64(cal.VPTAT25)) / cal.KTPTAT
	tar := math.Pow(dTa+298.15, 4)
	for i := 0; i < mlx90640.Pixels; i++ {
		pix := (math.Pow(to[i]+273.15, 4) - tar) * cal.Alpha[i]
		raw := math.Round(pix + float64(cal.Offset[i])*(1+cal.KTa[i]*dTa))
		f.Words[i] = uint16(int16(math.Max(math.MinInt16, math.Min(math.MaxInt16, raw))))
	}
}

//

type vector struct {
	intensity float64
	x         float64
	y         float64
}

// noise moves a few hot and cold spots around.
type noise struct {
	rand    *rand.Rand
	vectors []vector
}

func makeNoise() *noise {
	n := &noise{rand: rand.New(rand.NewSource(0))}
	n.vectors = make([]vector, 6)
	for i := range n.vectors {
		n.vectors[i].intensity = n.rand.NormFloat64() * 20
		n.vectors[i].x = n.rand.NormFloat64()*6 + 16
		n.vectors[i].y = n.rand.NormFloat64()*4 + 12
	}
	return n
}

func (n *noise) update() {
	for i := range n.vectors {
		n.vectors[i].intensity += n.rand.NormFloat64() * 0.2
		n.vectors[i].x += n.rand.NormFloat64() * 0.1
		n.vectors[i].y += n.rand.NormFloat64() * 0.1
	}
}

func (n *noise) render(ambient float64, to []float64) {
	for y := 0; y < mlx90640.Height; y++ {
		fy := float64(y)
		for x := 0; x < mlx90640.Width; x++ {
			fx := float64(x)
			value := ambient
			for _, vect := range n.vectors {
				distance := (vect.x-fx)*(vect.x-fx) + (vect.y-fy)*(vect.y-fy)
				value += vect.intensity / (1 + distance)
			}
			value = math.Max(ambient-20, math.Min(ambient+60, value))
			to[y*mlx90640.Width+x] = value
		}
	}
}
