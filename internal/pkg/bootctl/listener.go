// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package bootctl

import (
	"sync"

	evdev "github.com/gvalkov/golang-evdev"
	"go.uber.org/zap"
)

// InputListener blocks watching every input device; any key-class event
// cancels whichever countdown is live. It returns only when every
// device has failed. Run on its own goroutine.
func (c *Controller) InputListener() {
	devices, err := evdev.ListInputDevices()
	if err != nil {
		c.logger.Warn("cannot list input devices, countdowns will not be cancellable", zap.Error(err))

		return
	}

	if len(devices) == 0 {
		c.logger.Warn("no input devices found, countdowns will not be cancellable")

		return
	}

	var wg sync.WaitGroup

	for _, dev := range devices {
		wg.Add(1)

		go func() {
			defer wg.Done()

			c.watchDevice(dev)
		}()
	}

	wg.Wait()
}

func (c *Controller) watchDevice(dev *evdev.InputDevice) {
	c.logger.Debug("watching input device", zap.String("device", dev.Fn), zap.String("name", dev.Name))

	for {
		events, err := dev.Read()
		if err != nil {
			c.logger.Warn("input device read failed", zap.String("device", dev.Fn), zap.Error(err))

			return
		}

		for _, event := range events {
			if event.Type == evdev.EV_KEY {
				c.DisableCountdown()
			}
		}
	}
}
