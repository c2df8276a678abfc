// Copyright 2018 Marc-Antoine Ruel. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package mlx90640

// Calibration is the set of constants restored from the EEPROM.
//
// Per pixel arrays are indexed row*Width+col. Two dimensions arrays are
// indexed [row%2][col%2], with row and col 0-based.
type Calibration struct {
	KVdd    int8    // K_Vdd, signed.
	Vdd25   uint8   // Vdd_25, unsigned.
	APTAT   float64 // a_PTAT.
	KVPTAT  float64 // K_V_PTAT.
	KTPTAT  float64 // K_T_PTAT.
	VPTAT25 int16   // V_PTAT_25, raw.
	GainEE  int16   // ee_GAIN, raw.

	KV     [2][2]float64
	KTa    [Pixels]float64
	Offset [Pixels]int32
	Alpha  [Pixels]float64

	// Decoded but not used in the compensation.
	TGC      int8
	KsTa     int8
	Outliers []int // Pixel indexes flagged as outliers.
}
