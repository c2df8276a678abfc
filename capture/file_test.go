// Copyright 2018 Marc-Antoine Ruel. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package capture

import (
	"bytes"
	"errors"
	"io"
	"io/ioutil"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/maruel/go-mlx90640/mlx90640"
)

func TestFileDelay(t *testing.T) {
	data := []struct {
		fps   int
		delay time.Duration
	}{
		{-1, 0},
		{0, 2 * time.Second},
		{1, time.Second},
		{4, 250 * time.Millisecond},
		{64, time.Second / 64},
	}
	for i, line := range data {
		d, err := fileDelay(line.fps)
		if err != nil {
			t.Fatalf("#%d: %v", i, err)
		}
		if d != line.delay {
			t.Fatalf("#%d: %s != %s", i, d, line.delay)
		}
	}
	if _, err := fileDelay(-2); !errors.Is(err, ErrFPS) {
		t.Fatal(err)
	}
}

func TestOpen_file(t *testing.T) {
	dir, err := ioutil.TempDir("", "capture")
	if err != nil {
		t.Fatal(err)
	}
	defer os.RemoveAll(dir)
	// Two and a half frames.
	b := make([]byte, 2*mlx90640.ExtendedFrameSize+100)
	for i := range b {
		b[i] = byte(i / mlx90640.ExtendedFrameSize)
	}
	p := filepath.Join(dir, "raw")
	if err := ioutil.WriteFile(p, b, 0o600); err != nil {
		t.Fatal(err)
	}
	s, err := Open(p, &Opts{FPS: -1, Extended: true})
	if err != nil {
		t.Fatal(err)
	}
	if !s.Extended() || s.FrameSize() != mlx90640.ExtendedFrameSize {
		t.Fatal(s.Extended(), s.FrameSize())
	}
	dst := make([]byte, s.FrameSize())
	for i := 0; i < 2; i++ {
		if err := s.ReadFrame(dst); err != nil {
			t.Fatal(err)
		}
		if dst[0] != byte(i) || dst[len(dst)-1] != byte(i) {
			t.Fatalf("frame %d: %d %d", i, dst[0], dst[len(dst)-1])
		}
	}
	if err := s.ReadFrame(dst); err != io.EOF {
		t.Fatal(err)
	}
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}
	if err := s.ReadFrame(dst); err == nil || err == io.EOF {
		t.Fatal(err)
	}
}

func TestOpen_fail(t *testing.T) {
	if _, err := Open(filepath.Join(os.TempDir(), "does", "not", "exist"), nil); err == nil {
		t.Fatal("expected failure")
	}
	dir, err := ioutil.TempDir("", "capture")
	if err != nil {
		t.Fatal(err)
	}
	defer os.RemoveAll(dir)
	p := filepath.Join(dir, "raw")
	if err := ioutil.WriteFile(p, nil, 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := Open(p, &Opts{FPS: -3}); !errors.Is(err, ErrFPS) {
		t.Fatal(err)
	}
}

func TestOpen_defaults(t *testing.T) {
	dir, err := ioutil.TempDir("", "capture")
	if err != nil {
		t.Fatal(err)
	}
	defer os.RemoveAll(dir)
	p := filepath.Join(dir, "raw")
	if err := ioutil.WriteFile(p, make([]byte, mlx90640.FrameSize), 0o600); err != nil {
		t.Fatal(err)
	}
	data := []struct {
		o     *Opts
		delay time.Duration
	}{
		{nil, 0},
		{&Opts{}, 2 * time.Second},
		{&Opts{FPS: -1}, 0},
	}
	for i, line := range data {
		s, err := Open(p, line.o)
		if err != nil {
			t.Fatalf("#%d: %v", i, err)
		}
		f, ok := s.(*File)
		if !ok {
			t.Fatalf("#%d: %T", i, s)
		}
		if f.delay != line.delay {
			t.Fatalf("#%d: %s != %s", i, f.delay, line.delay)
		}
		if f.Extended() || f.FrameSize() != mlx90640.FrameSize {
			t.Fatalf("#%d: %t %d", i, f.Extended(), f.FrameSize())
		}
		if err := s.Close(); err != nil {
			t.Fatalf("#%d: %v", i, err)
		}
	}
}

func TestFile_plain(t *testing.T) {
	b := make([]byte, mlx90640.FrameSize)
	b[0] = 42
	f, err := NewFile(ioutil.NopCloser(bytes.NewReader(b)), -1, false)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	dst := make([]byte, mlx90640.ExtendedFrameSize)
	if err := f.ReadFrame(dst); err != nil {
		t.Fatal(err)
	}
	if dst[0] != 42 {
		t.Fatal(dst[0])
	}
	// An empty file is exhausted too.
	if err := f.ReadFrame(dst); err != io.EOF {
		t.Fatal(err)
	}
	if err := f.ReadFrame(dst[:10]); err == nil || err == io.EOF {
		t.Fatal(err)
	}
}

func TestFile_delay(t *testing.T) {
	b := make([]byte, mlx90640.FrameSize)
	f, err := NewFile(ioutil.NopCloser(bytes.NewReader(b)), 64, false)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	start := time.Now()
	if err := f.ReadFrame(b); err != nil {
		t.Fatal(err)
	}
	if d := time.Since(start); d < time.Second/64 {
		t.Fatal(d)
	}
}
