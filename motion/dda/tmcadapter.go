//go:build tinygo

package dda

import "tinygo.org/x/drivers/tmc5160"

// TMCPins wraps a GPIOPins step/dir pin set (the common wiring when a
// TMC5160 is run in external step/dir slave mode rather than its own
// SPI-driven ramp generator) and additionally manages each motor's current
// via the driver's IHOLD_IRUN register on enable/disable, instead of a
// separate physical enable pin. One *tmc5160.Driver per motor, indexed the
// same way as GPIOPins.Step/Dir.
type TMCPins struct {
	*GPIOPins
	Drivers []*tmc5160.Driver
	// RunCurrent and HoldCurrent are the per-motor IHOLD_IRUN values (0-31)
	// restored on Enable and zeroed on disable.
	RunCurrent  []uint8
	HoldCurrent []uint8
}

// Enable overrides GPIOPins.Enable: rather than (or in addition to) a
// physical enable pin, it drives the motor's run current down to zero
// when disabling and restores it on enable, following the IHOLD_IRUN
// register the teacher's tmc5160 package already exposes
// (tmc5160/registers.go's NewIHOLD_IRUN, tmc5160.Begin).
func (p *TMCPins) Enable(motor int, enabled bool) {
	if p.GPIOPins != nil {
		p.GPIOPins.Enable(motor, enabled)
	}
	if motor < 0 || motor >= len(p.Drivers) || p.Drivers[motor] == nil {
		return
	}
	iholdrun := tmc5160.NewIHOLD_IRUN()
	if enabled {
		if motor < len(p.HoldCurrent) {
			iholdrun.Ihold = p.HoldCurrent[motor]
		}
		if motor < len(p.RunCurrent) {
			iholdrun.Irun = p.RunCurrent[motor]
		}
	}
	_ = p.Drivers[motor].WriteRegister(tmc5160.IHOLD_IRUN, iholdrun.Pack())
}
