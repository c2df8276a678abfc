// Copyright 2015 Marc-Antoine Ruel. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package main

import (
	"bytes"
	"encoding/json"
	"io/ioutil"
	"log"
	"os"
	"path/filepath"

	"github.com/mitchellh/go-homedir"
)

// Config is the content of ~/.config/mlx90640/mlx90640.json.
type Config struct {
	MQTT MQTTConfig
}

// MQTTConfig is the MQTT broker to publish the notable pixels to.
type MQTTConfig struct {
	Broker   string // e.g. "tcp://localhost:1883"
	ClientID string
	Topic    string
	QoS      byte
}

func (m *MQTTConfig) isValid() bool {
	return m.Broker != "" && m.Topic != "" && m.QoS <= 2
}

var defaultConfig = Config{
	MQTT: MQTTConfig{ClientID: "mlx90640", Topic: "mlx90640/notable"},
}

// loadConfig loads ~/.config/mlx90640/mlx90640.json or create one if none
// exists.
func loadConfig() (*Config, error) {
	home, err := homedir.Dir()
	if err != nil {
		return nil, err
	}
	return loadConfigFile(filepath.Join(home, ".config", "mlx90640", "mlx90640.json")), nil
}

// loadConfigFile loads configPath and normalizes it.
//
// Failures to read or write the file are logged and the defaults are used.
func loadConfigFile(configPath string) *Config {
	c := &Config{}
	*c = defaultConfig
	var srcData []byte
	if f, err := os.Open(configPath); err == nil {
		if srcData, err = ioutil.ReadAll(f); err != nil {
			log.Printf("failed to read %s: %s", configPath, err)
		} else if err := json.Unmarshal(srcData, c); err != nil {
			log.Printf("%s is invalid json: %s", configPath, err)
			*c = defaultConfig
		}
		f.Close()
	}

	// Normalizes the config file.
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		panic(err)
	}
	data = append(data, '\n')
	if !bytes.Equal(srcData, data) {
		configDir := filepath.Dir(configPath)
		if err := os.MkdirAll(configDir, 0700); err != nil {
			log.Printf("failed to create %s: %s", configDir, err)
		}
		if err := ioutil.WriteFile(configPath, data, 0600); err != nil {
			log.Printf("failed to write %s: %s", configPath, err)
		}
	}
	return c
}
