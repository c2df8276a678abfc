// Copyright 2017 Marc-Antoine Ruel. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// mlx90640-dump reads the EEPROM of a MLX90640 over I²C and saves it, or
// decodes a saved EEPROM image and prints its calibration constants.
package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"io/ioutil"
	"log"
	"os"

	"github.com/maruel/go-mlx90640/mlx90640"
	"periph.io/x/periph/conn/i2c/i2creg"
	"periph.io/x/periph/conn/physic"
	"periph.io/x/periph/host"
)

// printCalibration prints the decoded constants of e.
func printCalibration(w io.Writer, e *mlx90640.EEPROM, skipCheck bool) error {
	cal, err := e.Decode(skipCheck)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "K_Vdd:    %d\n", cal.KVdd)
	fmt.Fprintf(w, "Vdd_25:   %d\n", cal.Vdd25)
	fmt.Fprintf(w, "K_V_PTAT: %g\n", cal.KVPTAT)
	fmt.Fprintf(w, "K_T_PTAT: %g\n", cal.KTPTAT)
	fmt.Fprintf(w, "V_PTAT25: %d\n", cal.VPTAT25)
	fmt.Fprintf(w, "Alpha_PTAT: %g\n", cal.APTAT)
	fmt.Fprintf(w, "Gain:     %d\n", cal.GainEE)
	fmt.Fprintf(w, "K_V:      %g\n", cal.KV)
	fmt.Fprintf(w, "TGC:      %d\n", cal.TGC)
	fmt.Fprintf(w, "K_sTa:    %d\n", cal.KsTa)
	fmt.Fprintf(w, "Outliers: %v\n", cal.Outliers)
	for row := 0; row < mlx90640.Height; row++ {
		for col := 0; col < mlx90640.Width; col++ {
			i := row*mlx90640.Width + col
			fmt.Fprintf(w, "(%2d, %2d): offset %5d  alpha %.4e  K_Ta %.5f\n", col, row, cal.Offset[i], cal.Alpha[i], cal.KTa[i])
		}
	}
	return nil
}

func mainImpl() error {
	i2cName := flag.String("i2c", "", "I²C bus to use")
	i2cHz := flag.Int("hz", 400000, "I²C bus speed; the EEPROM is not specified above 400kHz")
	out := flag.String("o", "", "file to save the EEPROM to")
	in := flag.String("n", "", "EEPROM dump to decode instead of reading the sensor")
	skipCheck := flag.Bool("C", false, "ignore the EEPROM device ID and configuration check")
	verbose := flag.Bool("v", false, "verbose mode")
	flag.Parse()
	if !*verbose {
		log.SetOutput(ioutil.Discard)
	}
	log.SetFlags(log.Lmicroseconds)

	if flag.NArg() != 0 {
		return fmt.Errorf("unexpected argument: %s", flag.Args())
	}

	if *in != "" {
		e, err := mlx90640.LoadEEPROM(*in)
		if err != nil {
			return err
		}
		return printCalibration(os.Stdout, e, *skipCheck)
	}
	if *out == "" {
		return errors.New("supply -o to save the EEPROM or -n to decode one")
	}

	if _, err := host.Init(); err != nil {
		return err
	}
	bus, err := i2creg.Open(*i2cName)
	if err != nil {
		return err
	}
	defer bus.Close()
	if *i2cHz != 0 {
		if err := bus.SetSpeed(physic.Frequency(*i2cHz) * physic.Hertz); err != nil {
			return err
		}
	}
	b, err := mlx90640.ReadEEPROM(bus)
	if err != nil {
		return err
	}
	if err := ioutil.WriteFile(*out, b, 0644); err != nil {
		return err
	}
	e, err := mlx90640.ParseEEPROM(b)
	if err != nil {
		return err
	}
	if err := e.CheckIdentity(); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: %s\n", err)
	}
	fmt.Printf("Saved %d bytes to %s\n", len(b), *out)
	return nil
}

func main() {
	if err := mainImpl(); err != nil {
		fmt.Fprintf(os.Stderr, "\nmlx90640-dump: %s.\n", err)
		os.Exit(1)
	}
}
