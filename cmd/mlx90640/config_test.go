// Copyright 2018 Marc-Antoine Ruel. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package main

import (
	"io/ioutil"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestLoadConfigFile(t *testing.T) {
	dir, err := ioutil.TempDir("", "mlx90640")
	if err != nil {
		t.Fatal(err)
	}
	defer os.RemoveAll(dir)
	p := filepath.Join(dir, "sub", "mlx90640.json")

	// Created with the defaults.
	c := loadConfigFile(p)
	if diff := cmp.Diff(&defaultConfig, c); diff != "" {
		t.Fatalf("(-want +got):\n%s", diff)
	}
	if c.MQTT.isValid() {
		t.Fatal("no broker")
	}
	want := "{\n  \"MQTT\": {\n    \"Broker\": \"\",\n    \"ClientID\": \"mlx90640\",\n    \"Topic\": \"mlx90640/notable\",\n    \"QoS\": 0\n  }\n}\n"
	if got, err := ioutil.ReadFile(p); err != nil || string(got) != want {
		t.Fatalf("%q %v", got, err)
	}

	// Normalized.
	if err := ioutil.WriteFile(p, []byte(`{"MQTT":{"Broker":"tcp://localhost:1883","QoS":1}}`), 0o600); err != nil {
		t.Fatal(err)
	}
	c = loadConfigFile(p)
	wantCfg := &Config{MQTT: MQTTConfig{Broker: "tcp://localhost:1883", ClientID: "mlx90640", Topic: "mlx90640/notable", QoS: 1}}
	if diff := cmp.Diff(wantCfg, c); diff != "" {
		t.Fatalf("(-want +got):\n%s", diff)
	}
	if !c.MQTT.isValid() {
		t.Fatal("expected valid")
	}
	if got := loadConfigFile(p); !cmp.Equal(wantCfg, got) {
		t.Fatal(got)
	}

	// Invalid.
	if err := ioutil.WriteFile(p, []byte("{"), 0o600); err != nil {
		t.Fatal(err)
	}
	if c = loadConfigFile(p); !cmp.Equal(&defaultConfig, c) {
		t.Fatal(c)
	}
}
