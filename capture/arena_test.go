// Copyright 2018 Marc-Antoine Ruel. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package capture

import (
	"errors"
	"testing"
)

func TestArena(t *testing.T) {
	var queued []uint32
	a := newArena(func(i uint32) error {
		queued = append(queued, i)
		return nil
	})
	a.add([]byte{1, 2, 3, 4})
	a.add([]byte{5, 6, 7, 8})

	// Not queued yet.
	if err := a.borrow(0, 4, func([]byte) {}); err == nil {
		t.Fatal("expected failure")
	}
	if err := a.giveAll(); err != nil {
		t.Fatal(err)
	}
	if err := a.give(1); err == nil {
		t.Fatal("expected double queue failure")
	}
	var got []byte
	if err := a.borrow(1, 2, func(b []byte) {
		if a.slots[1].owner != ownedByConsumer {
			t.Fatal(a.slots[1].owner)
		}
		got = append(got, b...)
	}); err != nil {
		t.Fatal(err)
	}
	if string(got) != "\x05\x06" {
		t.Fatalf("%v", got)
	}
	if a.slots[1].owner != ownedByDevice {
		t.Fatal(a.slots[1].owner)
	}
	if len(queued) != 3 || queued[2] != 1 {
		t.Fatal(queued)
	}
	if err := a.borrow(2, 1, func([]byte) {}); err == nil {
		t.Fatal("expected out of range failure")
	}
	if err := a.borrow(0, 5, func([]byte) {}); err == nil {
		t.Fatal("expected overflow failure")
	}
	// The slot handed back by the device went back to it.
	if a.slots[0].owner != ownedByDevice {
		t.Fatal(a.slots[0].owner)
	}
	if len(queued) != 4 || queued[3] != 0 {
		t.Fatal(queued)
	}
	called := false
	if err := a.borrow(0, 4, func(b []byte) { called = string(b) == "\x01\x02\x03\x04" }); err != nil || !called {
		t.Fatal(err, called)
	}

	// Releasing queued buffers is a violation.
	unmapped := 0
	unmap := func([]byte) error {
		unmapped++
		return nil
	}
	if err := a.release(unmap); err == nil {
		t.Fatal("expected failure")
	}
	if unmapped != 0 {
		t.Fatal(unmapped)
	}
}

func TestArena_release(t *testing.T) {
	a := newArena(func(uint32) error { return nil })
	a.add(make([]byte, 4))
	a.add(make([]byte, 4))
	if err := a.giveAll(); err != nil {
		t.Fatal(err)
	}
	a.reclaim()
	unmapped := 0
	if err := a.release(func([]byte) error { unmapped++; return nil }); err != nil {
		t.Fatal(err)
	}
	if unmapped != 2 || len(a.slots) != 0 {
		t.Fatal(unmapped, len(a.slots))
	}
}

func TestArena_requeueFailure(t *testing.T) {
	errQueue := errors.New("queue")
	fail := false
	a := newArena(func(uint32) error {
		if fail {
			return errQueue
		}
		return nil
	})
	a.add(make([]byte, 4))
	if err := a.giveAll(); err != nil {
		t.Fatal(err)
	}
	fail = true
	if err := a.borrow(0, 4, func([]byte) {}); !errors.Is(err, errQueue) {
		t.Fatal(err)
	}
	if a.slots[0].owner != ownedByConsumer {
		t.Fatal(a.slots[0].owner)
	}
}
