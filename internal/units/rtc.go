package units

import (
	"log/slog"

	"github.com/roach88/selftest/internal/firmware"
	"github.com/roach88/selftest/internal/suite"
)

type realTimeClock struct {
	runtime firmware.RuntimeServices
	logger  *slog.Logger
}

// RealTimeClock reads the clock through run-time services after the
// transition.
func RealTimeClock() *suite.Unit {
	u := &realTimeClock{}
	return &suite.Unit{
		Name:    "real time clock",
		Phase:   suite.PhaseSetupAfterTransition,
		Setup:   u.setup,
		Execute: u.execute,
	}
}

func (u *realTimeClock) setup(env *firmware.Env) suite.Outcome {
	u.runtime = env.Runtime()
	u.logger = env.Logger()
	return suite.Success
}

func (u *realTimeClock) execute() suite.Outcome {
	first, st := u.runtime.GetTime()
	if st != firmware.StatusSuccess {
		u.logger.Error("get time failed", "status", st.String())
		return suite.Failure
	}
	if first.IsZero() {
		u.logger.Error("get time returned zero time")
		return suite.Failure
	}
	second, st := u.runtime.GetTime()
	if st != firmware.StatusSuccess {
		u.logger.Error("get time failed", "status", st.String())
		return suite.Failure
	}
	if second.Before(first) {
		u.logger.Error("clock went backwards", "first", first, "second", second)
		return suite.Failure
	}
	return suite.Success
}
