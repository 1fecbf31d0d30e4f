//go:build tinygo

package dda

import "machine"

// GPIOPins is the direct step/dir/enable GPIO PinDriver, for machines where
// every motor is driven by plain step/dir pins rather than through a
// register-based driver like tmc5160. Mirrors the teacher's pattern of
// binding machine.Pin fields directly (tmc2209/uartcomm.go, tmc5160/
// spicomm.go) rather than introducing an abstraction the hardware doesn't
// need.
type GPIOPins struct {
	Step   []machine.Pin
	Dir    []machine.Pin
	Enable []machine.Pin
	// EnableActiveLow matches spec.md §6: "an active-low enable pin per
	// motor".
	EnableActiveLow bool
}

// Configure sets up every configured pin as an output.
func (p *GPIOPins) Configure() {
	for _, pin := range p.Step {
		pin.Configure(machine.PinConfig{Mode: machine.PinOutput})
	}
	for _, pin := range p.Dir {
		pin.Configure(machine.PinConfig{Mode: machine.PinOutput})
	}
	for _, pin := range p.Enable {
		pin.Configure(machine.PinConfig{Mode: machine.PinOutput})
	}
}

// SetStep implements PinDriver.
func (p *GPIOPins) SetStep(motor int, high bool) {
	if motor < 0 || motor >= len(p.Step) {
		return
	}
	if high {
		p.Step[motor].High()
	} else {
		p.Step[motor].Low()
	}
}

// SetDirection implements PinDriver.
func (p *GPIOPins) SetDirection(motor int, forward bool) {
	if motor < 0 || motor >= len(p.Dir) {
		return
	}
	if forward {
		p.Dir[motor].High()
	} else {
		p.Dir[motor].Low()
	}
}

// Enable implements PinDriver.
func (p *GPIOPins) Enable(motor int, enabled bool) {
	if motor < 0 || motor >= len(p.Enable) {
		return
	}
	level := enabled
	if p.EnableActiveLow {
		level = !level
	}
	if level {
		p.Enable[motor].High()
	} else {
		p.Enable[motor].Low()
	}
}
