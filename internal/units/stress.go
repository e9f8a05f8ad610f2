package units

import (
	"log/slog"

	"github.com/roach88/selftest/internal/firmware"
	"github.com/roach88/selftest/internal/suite"
)

const stressRounds = 16

type allocationStress struct {
	boot   firmware.BootServices
	logger *slog.Logger
}

// AllocationStress allocates and frees a series of buffers of growing size
// and checks the memory map returns to its starting shape. It only runs
// when selected by name.
func AllocationStress() *suite.Unit {
	u := &allocationStress{}
	return &suite.Unit{
		Name:      "allocation stress",
		Phase:     suite.PhaseRunBeforeTransition,
		Setup:     u.setup,
		Execute:   u.execute,
		OnRequest: true,
	}
}

func (u *allocationStress) setup(env *firmware.Env) suite.Outcome {
	u.boot = env.Boot()
	u.logger = env.Logger()
	return suite.Success
}

func (u *allocationStress) execute() suite.Outcome {
	before, _, st := captureMap(u.boot)
	if st != firmware.StatusSuccess {
		u.logger.Error("get memory map failed", "status", st.String())
		return suite.Failure
	}

	allocs := make([]*firmware.Allocation, 0, stressRounds)
	out := suite.Success
	for i := 1; i <= stressRounds; i++ {
		a, st := u.boot.Allocate(i * firmware.PageSize / 2)
		if st != firmware.StatusSuccess {
			u.logger.Error("allocate pool failed", "round", i, "status", st.String())
			out = suite.Failure
			break
		}
		a.Bytes()[0] = byte(i)
		allocs = append(allocs, a)
	}
	for i, a := range allocs {
		if a.Bytes()[0] != byte(i+1) {
			u.logger.Error("allocation overwritten", "round", i+1, "addr", a.Addr)
			out = suite.Failure
		}
	}
	for i := len(allocs) - 1; i >= 0; i-- {
		if st := u.boot.Free(allocs[i]); st != firmware.StatusSuccess {
			u.logger.Error("free pool failed", "addr", allocs[i].Addr, "status", st.String())
			out = suite.Failure
		}
	}
	if out == suite.Failure {
		return out
	}

	after, _, st := captureMap(u.boot)
	if st != firmware.StatusSuccess {
		u.logger.Error("get memory map failed", "status", st.String())
		return suite.Failure
	}
	if len(after) != len(before) {
		u.logger.Error("memory map did not recover", "before", len(before), "after", len(after))
		return suite.Failure
	}
	return suite.Success
}
