// Copyright 2018 Marc-Antoine Ruel. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

//go:build !linux
// +build !linux

package capture

import "errors"

func openDevice(path string) (device, error) {
	return nil, errors.New("V4L2 devices are only supported on linux")
}
