// Copyright 2018 Marc-Antoine Ruel. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package capture

import "fmt"

// owner is the party currently allowed to touch a buffer slot.
type owner int

const (
	unowned owner = iota
	ownedByDevice
	ownedByConsumer
)

func (o owner) String() string {
	switch o {
	case unowned:
		return "unowned"
	case ownedByDevice:
		return "queued"
	case ownedByConsumer:
		return "borrowed"
	default:
		return fmt.Sprintf("owner(%d)", int(o))
	}
}

type slot struct {
	mem   []byte
	owner owner
}

// arena tracks the memory mapped buffers shared with the device.
//
// A slot is either queued to the device or borrowed by the consumer, never
// both. A borrowed slot is always requeued when the borrow scope ends.
type arena struct {
	slots []slot
	queue func(i uint32) error
}

func newArena(queue func(i uint32) error) *arena {
	return &arena{queue: queue}
}

func (a *arena) add(mem []byte) {
	a.slots = append(a.slots, slot{mem: mem})
}

// give hands slot i to the device.
func (a *arena) give(i uint32) error {
	if int(i) >= len(a.slots) {
		return fmt.Errorf("capture: buffer %d out of %d", i, len(a.slots))
	}
	s := &a.slots[i]
	if s.owner == ownedByDevice {
		return fmt.Errorf("capture: buffer %d already queued", i)
	}
	if err := a.queue(i); err != nil {
		return fmt.Errorf("capture: failed to queue buffer %d: %w", i, err)
	}
	s.owner = ownedByDevice
	return nil
}

// giveAll hands every slot to the device.
func (a *arena) giveAll() error {
	for i := range a.slots {
		if err := a.give(uint32(i)); err != nil {
			return err
		}
	}
	return nil
}

// borrow lends the first n bytes of slot i, as returned by the device, to fn
// and requeues it afterward. The slot is requeued even when n is too large.
func (a *arena) borrow(i uint32, n int, fn func(b []byte)) (err error) {
	if int(i) >= len(a.slots) {
		return fmt.Errorf("capture: device returned buffer %d out of %d", i, len(a.slots))
	}
	s := &a.slots[i]
	if s.owner != ownedByDevice {
		return fmt.Errorf("capture: device returned buffer %d which is %s", i, s.owner)
	}
	s.owner = ownedByConsumer
	defer func() {
		if err2 := a.give(i); err == nil {
			err = err2
		}
	}()
	if n > len(s.mem) {
		return fmt.Errorf("capture: buffer %d used %d bytes out of %d", i, n, len(s.mem))
	}
	fn(s.mem[:n])
	return nil
}

// reclaim marks every slot as unowned, once the device stopped streaming.
func (a *arena) reclaim() {
	for i := range a.slots {
		a.slots[i].owner = unowned
	}
}

// release unmaps every slot. It must be called after reclaim.
func (a *arena) release(unmap func(b []byte) error) error {
	var err error
	for i := range a.slots {
		s := &a.slots[i]
		if s.owner != unowned {
			if err == nil {
				err = fmt.Errorf("capture: buffer %d released while %s", i, s.owner)
			}
			continue
		}
		if err2 := unmap(s.mem); err2 != nil && err == nil {
			err = err2
		}
		s.mem = nil
	}
	a.slots = nil
	return err
}
