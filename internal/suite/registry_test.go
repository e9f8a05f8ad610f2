package suite

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry_PreservesInsertionOrder(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.Register(
		&Unit{Name: "c", Phase: PhaseRunBeforeTransition},
		&Unit{Name: "a", Phase: PhaseSetupAfterTransition},
		&Unit{Name: "b", Phase: PhaseSetupBeforeTransition},
	))

	var names []string
	for _, u := range reg.Units() {
		names = append(names, u.Name)
	}
	assert.Equal(t, []string{"c", "a", "b"}, names)
	assert.Equal(t, 3, reg.Len())
}

func TestRegistry_RejectsDuplicateNames(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.Register(&Unit{Name: "dup", Phase: PhaseRunBeforeTransition}))

	err := reg.Register(&Unit{Name: "dup", Phase: PhaseSetupAfterTransition})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate")
	assert.Equal(t, 1, reg.Len())
}

func TestRegistry_RejectsInvalidUnits(t *testing.T) {
	reg := NewRegistry()
	assert.Error(t, reg.Register(nil))
	assert.Error(t, reg.Register(&Unit{Phase: PhaseRunBeforeTransition}))
	assert.Error(t, reg.Register(&Unit{Name: "x", Phase: 0}))
	assert.Error(t, reg.Register(&Unit{Name: "x", Phase: 4}))
}

func TestRegistry_ClosedAfterClose(t *testing.T) {
	reg := NewRegistry()
	reg.Close()
	assert.True(t, reg.Closed())

	err := reg.Register(&Unit{Name: "late", Phase: PhaseRunBeforeTransition})
	assert.ErrorIs(t, err, ErrRegistryClosed)
}

func TestRegistry_Lookup(t *testing.T) {
	reg := NewRegistry()
	reg.MustRegister(&Unit{Name: "block device", Phase: PhaseRunBeforeTransition})

	u, ok := reg.Lookup("block device")
	require.True(t, ok)
	assert.Equal(t, "block device", u.Name)

	_, ok = reg.Lookup("block")
	assert.False(t, ok)
}

func TestRegistry_MustRegisterPanics(t *testing.T) {
	reg := NewRegistry()
	assert.Panics(t, func() { reg.MustRegister(&Unit{Name: ""}) })
}

func TestPhaseAndStepNames(t *testing.T) {
	for _, p := range []Phase{PhaseRunBeforeTransition, PhaseSetupBeforeTransition, PhaseSetupAfterTransition} {
		parsed, err := ParsePhase(p.String())
		require.NoError(t, err)
		assert.Equal(t, p, parsed)
	}
	_, err := ParsePhase("sometime")
	assert.Error(t, err)

	assert.Equal(t, "setup|execute|teardown", StepAll.String())
	assert.Equal(t, "execute|teardown", (StepExecute | StepTeardown).String())
	assert.Equal(t, "none", StepNone.String())

	st, err := ParseStep("teardown")
	require.NoError(t, err)
	assert.Equal(t, StepTeardown, st)
	_, err = ParseStep("all")
	assert.Error(t, err)
}
