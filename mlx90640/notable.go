// Copyright 2018 Marc-Antoine Ruel. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package mlx90640

import (
	"fmt"
	"math"

	"periph.io/x/periph/conn/physic"
)

// Scene center coordinates.
const (
	CenterX = 16
	CenterY = 12
)

// NotablePixel is one pixel of interest in a frame.
type NotablePixel struct {
	X int
	Y int
	T float64 // °C
}

// Temp returns the pixel temperature.
func (n NotablePixel) Temp() physic.Temperature {
	return physic.ZeroCelsius + physic.Temperature(n.T*float64(physic.Celsius))
}

// Notable is the set of pixels annotated on each frame.
type Notable struct {
	Min    NotablePixel
	Max    NotablePixel
	Center NotablePixel
}

// String returns the overlay text.
func (n Notable) String() string {
	return fmt.Sprintf("MAX: %.2f\nMIN: %.2f\nMID: %.2f", n.Max.T, n.Min.T, n.Center.T)
}

// FindNotable scans a row major frame of Pixels temperatures.
//
// On ties the first pixel in row major order is kept. The center is always
// (CenterX, CenterY). Only the first Pixels values are scanned; a shorter
// slice is scanned up to its length and leaves the center at 0°C when it
// does not reach it.
func FindNotable(to []float64) Notable {
	var n Notable
	min := math.Inf(1)
	max := math.Inf(-1)
	for i := 0; i < Pixels && i < len(to); i++ {
		col, row := i%Width, i/Width
		t := to[i]
		if t < min {
			min = t
			n.Min = NotablePixel{col, row, t}
		}
		if t > max {
			max = t
			n.Max = NotablePixel{col, row, t}
		}
	}
	n.Center = NotablePixel{X: CenterX, Y: CenterY}
	if i := CenterY*Width + CenterX; i < len(to) {
		n.Center.T = to[i]
	}
	return n
}
