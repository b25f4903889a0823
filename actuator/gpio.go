package actuator

import (
	"context"
	"fmt"
	"sync"

	rpio "github.com/stianeikeland/go-rpio"

	"github.com/eddielth/air-monitor/airquality"
	"github.com/eddielth/air-monitor/logger"
)

// Relay drives the fan through a relay on a Raspberry Pi GPIO pin
type Relay struct {
	mu        sync.Mutex
	pin       rpio.Pin
	activeLow bool
}

// OpenRelay maps GPIO memory and puts the pin in output mode with the fan off.
func OpenRelay(pin int, activeLow bool) (*Relay, error) {
	if err := rpio.Open(); err != nil {
		return nil, fmt.Errorf("open gpio: %w", err)
	}

	r := &Relay{pin: rpio.Pin(pin), activeLow: activeLow}
	r.pin.Output()
	r.pin.Write(levelFor(false, activeLow))

	logger.Info("fan relay ready on GPIO %d (active low: %v)", pin, activeLow)
	return r, nil
}

// levelFor maps a desired fan state to the pin level
func levelFor(on, activeLow bool) rpio.State {
	if on != activeLow {
		return rpio.High
	}
	return rpio.Low
}

// Name identifies the actuator in logs and metrics
func (r *Relay) Name() string {
	return "gpio"
}

// Apply switches the relay
func (r *Relay) Apply(_ context.Context, st airquality.ActuatorState) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.pin.Write(levelFor(st.Desired, r.activeLow))
	logger.Debug("fan relay set to %v", st.Desired)
	return nil
}

// Close switches the fan off and releases GPIO memory
func (r *Relay) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.pin.Write(levelFor(false, r.activeLow))
	return rpio.Close()
}
