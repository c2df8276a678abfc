// Copyright 2018 Marc-Antoine Ruel. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package gray16 maps MLX90640 temperatures to 16 bits gray levels and
// renders them for display.
package gray16

import (
	"encoding/binary"
	"image"
	"image/color"
	"io"
	"log"
	"math"

	"github.com/maruel/go-mlx90640/mlx90640"
)

// Map linearly maps the temperatures in to onto [0, 65535] in dst, where min
// maps to 0 and max to 65535.
//
// Values outside the range are clamped with a warning. It returns the number
// of clamped values. When max == min, dst is zeroed.
func Map(dst []uint16, to []float64, min, max float64) int {
	if max == min {
		for i := range dst {
			dst[i] = 0
		}
		return 0
	}
	a := 65535 / (max - min)
	clamped := 0
	for i := range dst {
		if i >= len(to) {
			dst[i] = 0
			continue
		}
		v := a * (to[i] - min)
		switch {
		case v >= 65536:
			log.Printf("Warning: pixel %d: %g maps to %g, clamped to 65535", i, to[i], v)
			dst[i] = 65535
			clamped++
		case v < 0 || math.IsNaN(v):
			log.Printf("Warning: pixel %d: %g maps to %g, clamped to 0", i, to[i], v)
			dst[i] = 0
			clamped++
		default:
			dst[i] = uint16(v)
		}
	}
	return clamped
}

// Image implements image.Image. It is essentially a 32x24 Gray16 but with
// the pixels in a fixed array.
type Image struct {
	Pix [mlx90640.Pixels]uint16
}

// FromTemperatures maps to into the image with Map, using the coldest and
// hottest pixels as the range.
func (i *Image) FromTemperatures(to []float64, n mlx90640.Notable) int {
	return Map(i.Pix[:], to, n.Min.T, n.Max.T)
}

func (i *Image) ColorModel() color.Model {
	return color.Gray16Model
}

func (i *Image) Bounds() image.Rectangle {
	return image.Rect(0, 0, mlx90640.Width, mlx90640.Height)
}

func (i *Image) At(x, y int) color.Color {
	return color.Gray16{i.Gray16At(x, y)}
}

func (i *Image) Gray16At(x, y int) uint16 {
	return i.Pix[y*mlx90640.Width+x]
}

// WriteTo writes the pixels as little endian 16 bits words.
func (i *Image) WriteTo(w io.Writer) (int64, error) {
	var b [2 * mlx90640.Pixels]byte
	for j, v := range i.Pix {
		binary.LittleEndian.PutUint16(b[2*j:], v)
	}
	n, err := w.Write(b[:])
	return int64(n), err
}

// AGC reduces the dynamic range of the image down to 8 bits very naively
// without gamma.
func (i *Image) AGC(dst *image.Gray) {
	floor, ceil := i.minMax()
	delta := int(ceil) - int(floor)
	for y := 0; y < mlx90640.Height; y++ {
		for x := 0; x < mlx90640.Width; x++ {
			v := 0
			if delta != 0 {
				v = (int(i.Gray16At(x, y)) - int(floor)) * 255 / delta
			}
			dst.Pix[y*dst.Stride+x] = uint8(v)
		}
	}
}

// Heat renders the image with a black-blue-red-yellow-white palette, each
// sensor pixel becoming a scale x scale square.
func (i *Image) Heat(scale int) *image.RGBA {
	if scale < 1 {
		scale = 1
	}
	gray := image.NewGray(i.Bounds())
	i.AGC(gray)
	dst := image.NewRGBA(image.Rect(0, 0, mlx90640.Width*scale, mlx90640.Height*scale))
	for y := 0; y < mlx90640.Height*scale; y++ {
		for x := 0; x < mlx90640.Width*scale; x++ {
			dst.SetRGBA(x, y, heat[gray.Pix[(y/scale)*gray.Stride+x/scale]])
		}
	}
	return dst
}

func (i *Image) minMax() (uint16, uint16) {
	min := uint16(0xFFFF)
	max := uint16(0)
	for _, v := range i.Pix {
		if v > max {
			max = v
		}
		if v < min {
			min = v
		}
	}
	return min, max
}

// heat is the 256 entries palette used by Heat.
var heat = makeHeat()

func makeHeat() [256]color.RGBA {
	stops := []color.RGBA{
		{0, 0, 0, 255},
		{32, 0, 140, 255},
		{204, 0, 119, 255},
		{255, 165, 0, 255},
		{255, 255, 255, 255},
	}
	var p [256]color.RGBA
	segment := 255 / (len(stops) - 1)
	for i := range p {
		s := i / segment
		if s >= len(stops)-1 {
			p[i] = stops[len(stops)-1]
			continue
		}
		f := i % segment
		a, b := stops[s], stops[s+1]
		p[i] = color.RGBA{
			R: lerp(a.R, b.R, f, segment),
			G: lerp(a.G, b.G, f, segment),
			B: lerp(a.B, b.B, f, segment),
			A: 255,
		}
	}
	return p
}

func lerp(a, b uint8, f, n int) uint8 {
	return uint8(int(a) + (int(b)-int(a))*f/n)
}
