// Copyright 2018 Marc-Antoine Ruel. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

const publishTimeout = 10 * time.Second

// publisher sends the metadata of each frame to a MQTT topic.
//
// Frames are sent from a goroutine; frames arriving while the queue is full
// are dropped.
type publisher struct {
	client  mqtt.Client
	topic   string
	qos     byte
	c       chan *Frame
	wg      sync.WaitGroup
	sent    int
	dropped int
}

func newPublisher(cfg *MQTTConfig) (*publisher, error) {
	if !cfg.isValid() {
		return nil, errors.New("set MQTT.Broker and MQTT.Topic in the config file to use -mqtt")
	}
	opts := mqtt.NewClientOptions().AddBroker(cfg.Broker).SetClientID(cfg.ClientID)
	opts.SetKeepAlive(2 * time.Second)
	opts.SetPingTimeout(time.Second)
	opts.SetAutoReconnect(true)
	client := mqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(publishTimeout) {
		return nil, fmt.Errorf("connecting to %s timed out after %s", cfg.Broker, publishTimeout)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", cfg.Broker, err)
	}
	fmt.Printf("Publishing to %s on %s\n", cfg.Topic, cfg.Broker)
	return startPublisher(client, cfg.Topic, cfg.QoS), nil
}

func startPublisher(client mqtt.Client, topic string, qos byte) *publisher {
	p := &publisher{client: client, topic: topic, qos: qos, c: make(chan *Frame, 16)}
	p.wg.Add(1)
	go p.loop()
	return p
}

// Publish queues f.
func (p *publisher) Publish(f *Frame) {
	select {
	case p.c <- f:
	default:
		p.dropped++
		log.Printf("mqtt: dropped frame %d", f.Index)
	}
}

// Close flushes the queue and disconnects.
func (p *publisher) Close() error {
	close(p.c)
	p.wg.Wait()
	p.client.Disconnect(250)
	return nil
}

func (p *publisher) loop() {
	defer p.wg.Done()
	for f := range p.c {
		if err := p.send(f); err != nil {
			log.Printf("mqtt: %s", err)
			continue
		}
		p.sent++
	}
}

func (p *publisher) send(f *Frame) error {
	msg, err := json.Marshal(newMetadata(f))
	if err != nil {
		return err
	}
	token := p.client.Publish(p.topic, p.qos, false, msg)
	if !token.WaitTimeout(publishTimeout) {
		return fmt.Errorf("publish timed out after %s", publishTimeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("failed to publish: %w", err)
	}
	return nil
}
