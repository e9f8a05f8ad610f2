// Package units holds the built-in self-test units.
//
// Each constructor returns a fresh unit with its own state, so a registry
// built from All can be run once without leaking state into another run.
package units

import (
	"github.com/roach88/selftest/internal/firmware"
	"github.com/roach88/selftest/internal/suite"
)

// All returns new instances of the built-in units in registration order.
func All() []*suite.Unit {
	return []*suite.Unit{
		UnicodeCollation(),
		MemoryAllocation(),
		ExitBootServices(),
		RealTimeClock(),
		AllocationStress(),
	}
}

// Register adds the built-in units to reg.
func Register(reg *suite.Registry) error {
	return reg.Register(All()...)
}

// captureMap reads the current memory map through the query protocol.
func captureMap(boot firmware.Surface) ([]firmware.MemoryDescriptor, firmware.MapKey, firmware.Status) {
	info, st := boot.QuerySnapshot(nil)
	if st != firmware.StatusBufferTooSmall {
		return nil, 0, st
	}
	buf := make([]byte, info.RequiredSize+2*info.DescriptorSize)
	info, st = boot.QuerySnapshot(buf)
	if st != firmware.StatusSuccess {
		return nil, 0, st
	}
	descs, err := firmware.DecodeDescriptors(buf[:info.RequiredSize], info.DescriptorSize)
	if err != nil {
		return nil, 0, firmware.StatusDeviceError
	}
	return descs, info.MapKey, firmware.StatusSuccess
}
