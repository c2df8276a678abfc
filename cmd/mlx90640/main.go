// Copyright 2018 Marc-Antoine Ruel. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// mlx90640 reads frames from a MLX90640 thermal sensor behind a V4L2 device,
// compensates them into temperatures and serves them over HTTP and MQTT.
package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"io/ioutil"
	"log"
	"os"
	"runtime/pprof"
	"time"

	"github.com/maruel/go-mlx90640/capture"
	"github.com/maruel/go-mlx90640/gray16"
	"github.com/maruel/go-mlx90640/mlx90640"
	"github.com/maruel/go-mlx90640/mlx90640/mlx90640test"
	"github.com/maruel/interrupt"
)

// Frame is one compensated frame as served and published.
type Frame struct {
	Index   int
	Time    time.Time
	Img     *gray16.Image
	Notable mlx90640.Notable
	State   mlx90640.FrameState
}

// printIdentityHelp explains the probable causes of an identity mismatch.
func printIdentityHelp(w io.Writer, e *mlx90640.IdentityError) {
	fmt.Fprintf(w, "Error: Device ID or Register configuration does not match.\n")
	fmt.Fprintf(w, "First 16 words [0x2400:0x240F]:\n")
	for _, v := range e.Header {
		fmt.Fprintf(w, "%04X ", v)
	}
	fmt.Fprintf(w, "\nExample output:\n")
	fmt.Fprintf(w, "00A2 699F 0000 2061 0005 0320 03E0 1728 8E4F 0187 048D 0000 1901 0000 0000 BE33\n")
	fmt.Fprintf(w, "Possible reasons:\n")
	fmt.Fprintf(w, "1) You have changed the configuration [0x240C:0x240F]\n")
	fmt.Fprintf(w, "2) The ID of your device [0x2407:0x2409] is not known\n")
	fmt.Fprintf(w, "3) I²C bus speed was too fast for EEPROM operation\n")
	fmt.Fprintf(w, "   (According to the datasheet, it has to be no faster than 400kHz)\n")
	fmt.Fprintf(w, "4) Your device is not a MLX90640\n")
	fmt.Fprintf(w, "- If you believe the case is 1) or 2), try adding -C\n")
	fmt.Fprintf(w, "- If 3) is the case, dump the EEPROM with mlx90640-dump at a lower speed and use the dumped file with -n\n")
}

// loadCalibration loads and decodes the EEPROM dump at path.
func loadCalibration(path string, skipCheck bool) (*mlx90640.Calibration, error) {
	e, err := mlx90640.LoadEEPROM(path)
	if err != nil {
		return nil, fmt.Errorf("EEPROM read error: %w", err)
	}
	cal, err := e.Decode(skipCheck)
	if err != nil {
		var idErr *mlx90640.IdentityError
		if errors.As(err, &idErr) {
			printIdentityHelp(os.Stderr, idErr)
		}
		return nil, err
	}
	return cal, nil
}

// run is the frame loop. It returns nil when the source is exhausted or on
// Ctrl-C.
func run(src capture.Source, cal *mlx90640.Calibration, rec *recorder, sinks []func(*Frame)) error {
	c := mlx90640.NewCompensator(cal)
	buf := make([]byte, src.FrameSize())
	raw := &mlx90640.RawFrame{}
	for i := 0; !interrupt.IsSet(); i++ {
		if err := src.ReadFrame(buf); err != nil {
			if err == io.EOF {
				fmt.Printf("\nStopping due to file read\n")
				return nil
			}
			return err
		}
		if err := raw.Load(buf, src.Extended()); err != nil {
			return err
		}
		f := &Frame{Index: i, Time: time.Now(), Img: &gray16.Image{}}
		f.Notable = c.Compensate(raw)
		f.State = c.State()
		f.Img.FromTemperatures(c.Temperatures(), f.Notable)
		if rec != nil {
			if err := rec.record(raw.Bytes(), f.Img); err != nil {
				return err
			}
		}
		for _, s := range sinks {
			s(f)
		}
		fmt.Printf("\r%d frames; %s; min %.2f max %.2f center %.2f", i+1, f.State.Ambient(), f.Notable.Min.T, f.Notable.Max.T, f.Notable.Center.T)
	}
	fmt.Print("\n")
	return nil
}

func mainImpl() error {
	dev := flag.String("d", "/dev/video0", "V4L2 device or raw frames file to read from")
	eeprom := flag.String("n", "", "EEPROM dump of the sensor")
	useMmap := flag.Bool("m", false, "use memory mapped buffers (default)")
	useRead := flag.Bool("r", false, "use read() instead of memory mapped buffers")
	fps := flag.Int("f", -1, "frame rate: 0 (0.5Hz), 1, 2, 4, 8, 16, 32 or 64; -1 for the default")
	saveMapped := flag.String("S", "", "save the frames mapped to 16 bits gray levels to this file")
	saveRaw := flag.String("R", "", "save the raw frames to this file")
	skipCheck := flag.Bool("C", false, "ignore the EEPROM device ID and configuration check")
	extended := flag.Bool("X", false, "raw frames file includes the registers")
	port := flag.Int("port", 0, "http port to listen on; 0 to disable")
	useMQTT := flag.Bool("mqtt", false, "publish the notable pixels to the MQTT broker set in the config file")
	fake := flag.Bool("fake", false, "use a fake sensor")
	cpuprofile := flag.String("cpuprofile", "", "dump CPU profile in file")
	restart := flag.Bool("restart", false, "stop when the executable is updated")
	verbose := flag.Bool("v", false, "verbose mode")
	flag.Parse()
	if !*verbose {
		log.SetOutput(ioutil.Discard)
	}
	log.SetFlags(log.Lmicroseconds)

	if flag.NArg() != 0 {
		return fmt.Errorf("unexpected argument: %s", flag.Args())
	}
	if *useMmap && *useRead {
		return errors.New("-m and -r are mutually exclusive")
	}
	if !*fake && *eeprom == "" {
		return errors.New("-n is required")
	}

	if *cpuprofile != "" {
		f, err := os.Create(*cpuprofile)
		if err != nil {
			return err
		}
		pprof.StartCPUProfile(f)
		defer pprof.StopCPUProfile()
	}

	interrupt.HandleCtrlC()
	if *restart {
		go func() {
			if err := watchFile(); err != nil {
				log.Printf("watch: %s", err)
			}
			interrupt.Set()
		}()
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	var src capture.Source
	var cal *mlx90640.Calibration
	if *fake {
		s, err := mlx90640test.New(true)
		if err != nil {
			return err
		}
		s.Rate = 250 * time.Millisecond
		if *fps > 0 {
			s.Rate = time.Second / time.Duration(*fps)
		}
		src = s
		cal = s.Calibration()
	} else {
		if cal, err = loadCalibration(*eeprom, *skipCheck); err != nil {
			return err
		}
		o := &capture.Opts{Method: capture.ZeroCopyStream, FPS: *fps, Extended: *extended}
		if *useRead {
			o.Method = capture.SynchronousRead
		}
		if src, err = capture.Open(*dev, o); err != nil {
			return fmt.Errorf("%w\nIf testing without hardware, use -fake to simulate a sensor", err)
		}
	}
	defer src.Close()

	var rec *recorder
	if *saveRaw != "" || *saveMapped != "" {
		if rec, err = openRecorder(*saveRaw, *saveMapped); err != nil {
			return err
		}
		defer rec.Close()
	}

	var sinks []func(*Frame)
	if *port != 0 {
		s := StartWebServer(*port)
		sinks = append(sinks, s.AddFrame)
	}
	if *useMQTT {
		p, err := newPublisher(&cfg.MQTT)
		if err != nil {
			return err
		}
		defer p.Close()
		sinks = append(sinks, p.Publish)
	}
	return run(src, cal, rec, sinks)
}

func main() {
	if err := mainImpl(); err != nil {
		fmt.Fprintf(os.Stderr, "\nmlx90640: %s.\n", err)
		os.Exit(1)
	}
}
