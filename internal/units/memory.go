package units

import (
	"bytes"
	"log/slog"

	"github.com/roach88/selftest/internal/firmware"
	"github.com/roach88/selftest/internal/suite"
)

const allocationSize = 2*firmware.PageSize + 1

type memoryAllocation struct {
	boot   firmware.BootServices
	logger *slog.Logger
	alloc  *firmware.Allocation
}

// MemoryAllocation allocates pool memory in setup, checks that the memory
// map reports it as boot-services data and frees it in teardown.
func MemoryAllocation() *suite.Unit {
	u := &memoryAllocation{}
	return &suite.Unit{
		Name:     "memory allocation",
		Phase:    suite.PhaseRunBeforeTransition,
		Setup:    u.setup,
		Execute:  u.execute,
		Teardown: u.teardown,
	}
}

func (u *memoryAllocation) setup(env *firmware.Env) suite.Outcome {
	u.boot = env.Boot()
	u.logger = env.Logger()
	alloc, st := u.boot.Allocate(allocationSize)
	if st != firmware.StatusSuccess {
		u.logger.Error("allocate pool failed", "size", allocationSize, "status", st.String())
		return suite.Failure
	}
	u.alloc = alloc
	return suite.Success
}

func (u *memoryAllocation) execute() suite.Outcome {
	if u.alloc.Pages != firmware.PagesFor(allocationSize) {
		u.logger.Error("allocation has wrong page count", "pages", u.alloc.Pages)
		return suite.Failure
	}

	pattern := bytes.Repeat([]byte{0xa5}, u.alloc.Size())
	copy(u.alloc.Bytes(), pattern)
	if !bytes.Equal(u.alloc.Bytes(), pattern) {
		u.logger.Error("allocated memory did not retain pattern")
		return suite.Failure
	}

	descs, _, st := captureMap(u.boot)
	if st != firmware.StatusSuccess {
		u.logger.Error("get memory map failed", "status", st.String())
		return suite.Failure
	}
	for _, d := range descs {
		if !d.Contains(u.alloc.Addr) {
			continue
		}
		if d.Type != firmware.BootServicesData {
			u.logger.Error("allocation has wrong memory type", "addr", u.alloc.Addr, "type", d.Type.String())
			return suite.Failure
		}
		if d.End() < u.alloc.Addr+u.alloc.Pages*firmware.PageSize {
			u.logger.Error("allocation exceeds its descriptor", "addr", u.alloc.Addr)
			return suite.Failure
		}
		return suite.Success
	}
	u.logger.Error("allocation missing from memory map", "addr", u.alloc.Addr)
	return suite.Failure
}

func (u *memoryAllocation) teardown() suite.Outcome {
	if u.alloc == nil {
		return suite.Success
	}
	st := u.boot.Free(u.alloc)
	u.alloc = nil
	if st != firmware.StatusSuccess {
		u.logger.Error("free pool failed", "status", st.String())
		return suite.Failure
	}
	return suite.Success
}
