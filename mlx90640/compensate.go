// Copyright 2018 Marc-Antoine Ruel. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package mlx90640

import (
	"fmt"
	"math"

	"github.com/maruel/go-mlx90640/mlx90640/internal"
	"periph.io/x/periph/conn/physic"
)

// RAM header and register addresses read at each frame.
const (
	AddrVBE     = internal.AddrVBE
	AddrGainRAM = internal.AddrGainRAM
	AddrVPTAT   = internal.AddrVPTAT
	AddrVDD     = internal.AddrVDD
	AddrStatus  = internal.AddrStatus
)

// FrameState is the per frame ambient compensation, as computed by the last
// call to Compensator.Compensate.
type FrameState struct {
	VDD     int16 // Raw supply voltage at 0x072A.
	VPTAT   int16 // Raw ambient proxy at 0x0720.
	VBE     int16 // Raw base-emitter voltage at 0x0700.
	GainRAM int16 // Raw gain at 0x070A.

	DV       float64 // Supply voltage delta to 3.3V.
	VPTATArt float64
	DTa      float64 // Ambient temperature delta to 25°C.
	Gain     float64
	TAr      float64 // Reflected temperature in K⁴.
	Subpage  int     // Subpage refreshed by this frame or -1 for plain frames.
}

// Ambient returns the sensor ambient temperature.
func (s FrameState) Ambient() physic.Temperature {
	return physic.ZeroCelsius + 25*physic.Celsius + physic.Temperature(s.DTa*float64(physic.Kelvin))
}

func (s FrameState) String() string {
	return fmt.Sprintf("dV=%.4f dTa=%.4f gain=%.4f Ta=%s subpage=%d", s.DV, s.DTa, s.Gain, s.Ambient(), s.Subpage)
}

// Compensator converts raw frames into temperatures.
//
// It keeps the temperatures across frames since extended frames only refresh
// one subpage at a time. It is not safe for concurrent use.
type Compensator struct {
	cal   *Calibration
	to    [Pixels]float64
	state FrameState
}

// NewCompensator returns a Compensator using the calibration constants cal.
func NewCompensator(cal *Calibration) *Compensator {
	return &Compensator{cal: cal, state: FrameState{Subpage: -1}}
}

// Compensate updates the temperatures with the frame f and returns the
// notable pixels over the whole frame.
//
// For an extended frame, only the pixels of the subpage indicated by the
// status register are refreshed. A plain frame refreshes every pixel.
func (c *Compensator) Compensate(f *RawFrame) Notable {
	cal := c.cal
	s := FrameState{
		VDD:     f.Word(AddrVDD),
		VPTAT:   f.Word(AddrVPTAT),
		VBE:     f.Word(AddrVBE),
		GainRAM: f.Word(AddrGainRAM),
		Subpage: -1,
	}
	s.DV = float64(-(int(cal.Vdd25)<<5)+int(s.VDD)+16384) / float64(cal.KVdd) / 32
	s.VPTATArt = (1 << 18) / (cal.APTAT + float64(s.VBE)/float64(s.VPTAT))
	s.DTa = (s.VPTATArt/(1+cal.KVPTAT*s.DV) - float64(cal.VPTAT25)) / cal.KTPTAT
	s.Gain = float64(cal.GainEE) / float64(s.GainRAM)
	// Emissivity is 1.
	s.TAr = math.Pow(s.DTa+298.15, 4)
	if f.Extended {
		s.Subpage = int(f.Register(AddrStatus) % 2)
	}

	for row := 0; row < Height; row++ {
		for col := 0; col < Width; col++ {
			if s.Subpage >= 0 && (row+col)%2 != s.Subpage {
				continue
			}
			i := row*Width + col
			pix := float64(f.Pixel(i))*s.Gain - float64(cal.Offset[i])*(1+cal.KTa[i]*s.DTa)*(1+cal.KV[row%2][col%2]*s.DV)
			c.to[i] = math.Pow(pix/cal.Alpha[i]+s.TAr, 0.25) - 273.15
		}
	}
	c.state = s
	return FindNotable(c.to[:])
}

// Temperatures returns the object temperatures in °C, row major.
//
// The slice is owned by the Compensator and is overwritten by the next call
// to Compensate.
func (c *Compensator) Temperatures() []float64 {
	return c.to[:]
}

// State returns the ambient compensation of the last frame.
func (c *Compensator) State() FrameState {
	return c.state
}
