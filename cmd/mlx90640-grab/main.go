// Copyright 2017 Marc-Antoine Ruel. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// mlx90640-grab captures a single image.
package main

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"image"
	"image/png"
	"io/ioutil"
	"log"
	"os"

	"github.com/maruel/go-mlx90640/capture"
	"github.com/maruel/go-mlx90640/gray16"
	"github.com/maruel/go-mlx90640/mlx90640"
	"github.com/maruel/go-mlx90640/mlx90640/mlx90640test"
)

// grab reads frames from src until both subpages were refreshed and returns
// the compensated result.
func grab(src capture.Source, cal *mlx90640.Calibration) (*mlx90640.Compensator, mlx90640.Notable, error) {
	c := mlx90640.NewCompensator(cal)
	buf := make([]byte, src.FrameSize())
	f := &mlx90640.RawFrame{}
	var n mlx90640.Notable
	frames := 1
	if src.Extended() {
		frames = 2
	}
	for i := 0; i < frames; i++ {
		if err := src.ReadFrame(buf); err != nil {
			return nil, n, err
		}
		if err := f.Load(buf, src.Extended()); err != nil {
			return nil, n, err
		}
		n = c.Compensate(f)
	}
	return c, n, nil
}

func mainImpl() error {
	dev := flag.String("d", "/dev/video0", "V4L2 device or raw frames file to read from")
	eeprom := flag.String("n", "", "EEPROM dump of the sensor")
	skipCheck := flag.Bool("C", false, "ignore the EEPROM device ID and configuration check")
	extended := flag.Bool("X", false, "raw frames file includes the registers")
	gray := flag.Bool("gray", false, "save a 16 bits gray PNG instead of the default heat palette")
	scale := flag.Int("scale", 10, "size of each sensor pixel in the heat palette PNG")
	meta := flag.Bool("meta", false, "print metadata")
	fake := flag.Bool("fake", false, "use a fake sensor")
	verbose := flag.Bool("v", false, "verbose mode")
	flag.Parse()
	if !*verbose {
		log.SetOutput(ioutil.Discard)
	}
	log.SetFlags(log.Lmicroseconds)

	if flag.NArg() != 1 {
		return errors.New("supply path to PNG to save")
	}

	var src capture.Source
	var cal *mlx90640.Calibration
	if *fake {
		s, err := mlx90640test.New(true)
		if err != nil {
			return err
		}
		src = s
		cal = s.Calibration()
	} else {
		if *eeprom == "" {
			return errors.New("-n is required")
		}
		e, err := mlx90640.LoadEEPROM(*eeprom)
		if err != nil {
			return err
		}
		if cal, err = e.Decode(*skipCheck); err != nil {
			return err
		}
		if src, err = capture.Open(*dev, &capture.Opts{FPS: -1, Extended: *extended}); err != nil {
			return fmt.Errorf("%w\nIf testing without hardware, use -fake to simulate a sensor", err)
		}
	}
	defer src.Close()

	c, n, err := grab(src, cal)
	if err != nil {
		return err
	}
	if *meta {
		st := c.State()
		fmt.Printf("Ambient: %s\n", st.Ambient())
		fmt.Printf("State:   %s\n", st)
		b, err := json.MarshalIndent(&n, "", "  ")
		if err != nil {
			return err
		}
		fmt.Printf("%s\n%s\n", n, b)
	}
	g := &gray16.Image{}
	g.FromTemperatures(c.Temperatures(), n)
	var img image.Image = g
	if !*gray {
		img = g.Heat(*scale)
	}
	f, err := os.Create(flag.Args()[0])
	if err != nil {
		return err
	}
	defer f.Close()
	return png.Encode(f, img)
}

func main() {
	if err := mainImpl(); err != nil {
		fmt.Fprintf(os.Stderr, "\nmlx90640-grab: %s.\n", err)
		os.Exit(1)
	}
}
