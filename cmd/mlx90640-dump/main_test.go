// Copyright 2018 Marc-Antoine Ruel. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package main

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/maruel/go-mlx90640/mlx90640"
	"github.com/maruel/go-mlx90640/mlx90640/mlx90640test"
)

func TestPrintCalibration(t *testing.T) {
	e, err := mlx90640.ParseEEPROM(mlx90640test.NewEEPROM())
	if err != nil {
		t.Fatal(err)
	}
	var b bytes.Buffer
	if err := printCalibration(&b, e, false); err != nil {
		t.Fatal(err)
	}
	s := b.String()
	for _, want := range []string{"K_Vdd:    -99\n", "Vdd_25:   104\n", "V_PTAT25: 12273\n", "Gain:     6383\n", "(31, 23): "} {
		if !strings.Contains(s, want) {
			t.Fatalf("missing %q in:\n%s", want, s)
		}
	}
	if n := strings.Count(s, "\n"); n != 11+mlx90640.Pixels {
		t.Fatal(n)
	}
}

func TestPrintCalibration_identity(t *testing.T) {
	ee := mlx90640test.NewEEPROM()
	ee[2*0x0C] ^= 0xFF
	e, err := mlx90640.ParseEEPROM(ee)
	if err != nil {
		t.Fatal(err)
	}
	var b bytes.Buffer
	if err := printCalibration(&b, e, false); !errors.Is(err, mlx90640.ErrIdentityMismatch) {
		t.Fatal(err)
	}
	if err := printCalibration(&b, e, true); err != nil {
		t.Fatal(err)
	}
}
