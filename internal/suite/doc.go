// Package suite holds the test units, their registry and the phase
// scheduler that runs them.
//
// A unit declares one of three phases. The driver runs the registry in
// four passes around the boot-time to run-time transition:
//
//	RunPhase(sel, PhaseRunBeforeTransition,   StepAll)
//	RunPhase(sel, PhaseSetupBeforeTransition, StepSetup)
//	-- transition --
//	RunPhase(sel, PhaseSetupBeforeTransition, StepExecute|StepTeardown)
//	RunPhase(sel, PhaseSetupAfterTransition,  StepAll)
//
// PhaseSetupBeforeTransition is the only phase whose steps straddle the
// transition; the unit's persisted setup state carries the setup result
// across it.
package suite
