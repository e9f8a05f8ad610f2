package units

import (
	"log/slog"

	"github.com/roach88/selftest/internal/firmware"
	"github.com/roach88/selftest/internal/suite"
)

type exitBootServices struct {
	boot   firmware.BootServices
	logger *slog.Logger
}

// ExitBootServices keeps a reference to boot services across the
// transition and checks that they refuse allocations afterwards.
//
// Calling boot services after the transition is only safe on the
// simulator, which answers EFI_UNSUPPORTED. Real firmware gives no such
// guarantee, so this unit is for simulated runs only.
func ExitBootServices() *suite.Unit {
	u := &exitBootServices{}
	return &suite.Unit{
		Name:    "exit boot services",
		Phase:   suite.PhaseSetupBeforeTransition,
		Setup:   u.setup,
		Execute: u.execute,
	}
}

func (u *exitBootServices) setup(env *firmware.Env) suite.Outcome {
	u.boot = env.Boot()
	u.logger = env.Logger()
	return suite.Success
}

func (u *exitBootServices) execute() suite.Outcome {
	alloc, st := u.boot.Allocate(firmware.PageSize)
	if st == firmware.StatusSuccess {
		u.logger.Error("boot services still allocate after the transition", "addr", alloc.Addr)
		return suite.Failure
	}
	if st != firmware.StatusUnsupported {
		u.logger.Error("unexpected status from boot services after the transition", "status", st.String())
		return suite.Failure
	}
	return suite.Success
}
