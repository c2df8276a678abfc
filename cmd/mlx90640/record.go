// Copyright 2018 Marc-Antoine Ruel. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package main

import (
	"io"
	"os"

	"github.com/maruel/go-mlx90640/gray16"
)

// recorder saves each frame, raw or mapped to 16 bits gray levels, back to
// back in files.
type recorder struct {
	raw    io.WriteCloser
	mapped io.WriteCloser
}

// openRecorder creates the files. Either path may be empty.
func openRecorder(rawPath, mappedPath string) (*recorder, error) {
	r := &recorder{}
	if rawPath != "" {
		f, err := os.Create(rawPath)
		if err != nil {
			return nil, err
		}
		r.raw = f
	}
	if mappedPath != "" {
		f, err := os.Create(mappedPath)
		if err != nil {
			r.Close()
			return nil, err
		}
		r.mapped = f
	}
	return r, nil
}

func (r *recorder) record(raw []byte, img *gray16.Image) error {
	if r.raw != nil {
		if _, err := r.raw.Write(raw); err != nil {
			return err
		}
	}
	if r.mapped != nil {
		if _, err := img.WriteTo(r.mapped); err != nil {
			return err
		}
	}
	return nil
}

func (r *recorder) Close() error {
	var err error
	if r.raw != nil {
		err = r.raw.Close()
		r.raw = nil
	}
	if r.mapped != nil {
		if err2 := r.mapped.Close(); err == nil {
			err = err2
		}
		r.mapped = nil
	}
	return err
}
