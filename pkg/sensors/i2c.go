// Package sensors drives the device bridge's I²C peripherals: the SHTC3
// temperature/humidity sensor and the LPS22HB barometric sensor, both on
// /dev/i2c-1. Blocking transactions run on a dedicated worker pool so the
// event loop goroutine is never stalled waiting on the bus.
package sensors

import (
	"fmt"

	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/host/v3"
)

// Addresses per spec.md §6.
const (
	AddrSHTC3   = 0x70
	AddrLPS22HB = 0x5c
)

// Bus wraps a periph.io I²C bus and the two devices hanging off it.
type Bus struct {
	bus   i2c.BusCloser
	shtc3 *i2c.Dev
	lps   *i2c.Dev
}

// Open initializes the periph.io host drivers and opens busName (typically
// "/dev/i2c-1" or empty to pick the registry default).
func Open(busName string) (*Bus, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("sensors: host init: %w", err)
	}
	bus, err := i2creg.Open(busName)
	if err != nil {
		return nil, fmt.Errorf("sensors: open %s: %w", busName, err)
	}
	return &Bus{
		bus:   bus,
		shtc3: &i2c.Dev{Addr: AddrSHTC3, Bus: bus},
		lps:   &i2c.Dev{Addr: AddrLPS22HB, Bus: bus},
	}, nil
}

// Close releases the underlying bus handle.
func (b *Bus) Close() error {
	return b.bus.Close()
}
