// Copyright 2016 Marc-Antoine Ruel. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package main

import (
	"os"

	"github.com/maruel/interrupt"
	fsnotify "gopkg.in/fsnotify.v1"
)

// watchFile returns when the executable is modified or on Ctrl-C.
func watchFile() error {
	exe, err := os.Executable()
	if err != nil {
		return err
	}
	return watchPath(exe, interrupt.Channel)
}

// watchPath returns when the modification time of path changes or when stop
// is signaled.
func watchPath(path string, stop <-chan bool) error {
	fi, err := os.Stat(path)
	if err != nil {
		return err
	}
	mod0 := fi.ModTime()
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()
	if err = watcher.Add(path); err != nil {
		return err
	}
	for {
		select {
		case <-stop:
			return nil
		case err = <-watcher.Errors:
			return err
		case <-watcher.Events:
			if fi, err = os.Stat(path); err != nil || !fi.ModTime().Equal(mod0) {
				return err
			}
		}
	}
}
