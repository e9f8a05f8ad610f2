package transition

import (
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/roach88/selftest/internal/firmware"
)

// Default handshake bounds.
const (
	DefaultMaxAttempts      = 3
	DefaultDescriptorMargin = 1
	DefaultMaxResizes       = 2
)

// Config bounds the handshake.
type Config struct {
	// MaxAttempts is the total number of size/capture/commit cycles,
	// including the first one. A stale key on the last attempt is fatal.
	MaxAttempts int `yaml:"max_attempts" toml:"max_attempts"`

	// DescriptorMargin is the number of spare descriptors allocated on top
	// of the reported size. Allocating the buffer can itself grow the map.
	DescriptorMargin int `yaml:"descriptor_margin" toml:"descriptor_margin"`

	// MaxResizes bounds reallocation when the sized query still reports
	// the buffer too small within one attempt.
	MaxResizes int `yaml:"max_resizes" toml:"max_resizes"`
}

// DefaultConfig returns the default handshake bounds.
func DefaultConfig() Config {
	return Config{
		MaxAttempts:      DefaultMaxAttempts,
		DescriptorMargin: DefaultDescriptorMargin,
		MaxResizes:       DefaultMaxResizes,
	}
}

// Validate checks the bounds.
func (c Config) Validate() error {
	if c.MaxAttempts < 1 {
		return fmt.Errorf("max_attempts must be at least 1, got %d", c.MaxAttempts)
	}
	if c.DescriptorMargin < 1 {
		return fmt.Errorf("descriptor_margin must be at least 1, got %d", c.DescriptorMargin)
	}
	if c.MaxResizes < 0 {
		return fmt.Errorf("max_resizes must not be negative, got %d", c.MaxResizes)
	}
	return nil
}

// Change is one recorded state transition of the handshake.
type Change struct {
	Attempt int
	From    State
	To      State
	// Status is the firmware status that triggered the change, if any.
	Status firmware.Status
	Reason string
}

// Result describes a committed transition.
type Result struct {
	Attempts          int
	Resizes           int
	MapKey            firmware.MapKey
	DescriptorSize    int
	DescriptorVersion uint32
	// Descriptors is the memory map the transition was committed against.
	Descriptors []firmware.MemoryDescriptor
	// Buffer holds the snapshot. It was allocated by boot services and
	// is deliberately never freed.
	Buffer *firmware.Allocation
}

// Coordinator performs the one-way handoff from boot-time to run-time
// services: size the memory map, capture it, and commit the transition
// with the captured map key, retrying from the top when the key went
// stale in between.
//
// A Coordinator is single-use and not safe for concurrent use.
type Coordinator struct {
	surface  firmware.Surface
	cfg      Config
	logger   *slog.Logger
	observer func(Change)

	state   State
	history []Change
	// buf is the snapshot buffer owned during an attempt.
	buf *firmware.Allocation
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithLogger sets the coordinator logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Coordinator) {
		c.logger = l
	}
}

// WithObserver registers fn to receive every state change as it happens.
func WithObserver(fn func(Change)) Option {
	return func(c *Coordinator) {
		c.observer = fn
	}
}

// NewCoordinator creates a coordinator over surface.
func NewCoordinator(surface firmware.Surface, cfg Config, opts ...Option) (*Coordinator, error) {
	if surface == nil {
		return nil, errors.New("transition: nil surface")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("transition: %w", err)
	}
	c := &Coordinator{
		surface: surface,
		cfg:     cfg,
		logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
		state:   StateIdle,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// State returns the current handshake state.
func (c *Coordinator) State() State { return c.state }

// Mode reports the environment mode as far as the coordinator knows it.
func (c *Coordinator) Mode() Mode {
	if c.state == StateCommitted {
		return RunTimeOnly
	}
	return BootTimeActive
}

// History returns every state change so far, in order.
func (c *Coordinator) History() []Change {
	out := make([]Change, len(c.history))
	copy(out, c.history)
	return out
}

// Run performs the handshake. On success the coordinator is in
// StateCommitted; on any *Error other than ErrCodeAlreadyTerminal it is in
// StateFatal and the snapshot buffer has been released.
func (c *Coordinator) Run() (*Result, error) {
	if c.state != StateIdle {
		return nil, &Error{
			Code:    ErrCodeAlreadyTerminal,
			Message: fmt.Sprintf("coordinator already ran (state=%s)", c.state),
		}
	}

	// Each attempt gets its own resize budget; resizes is the run total.
	resizes := 0
	for attempt := 1; ; attempt++ {
		res, stale, err := c.attempt(attempt, &resizes)
		if err != nil {
			c.fail(attempt, err)
			return nil, err
		}
		if !stale {
			res.Attempts = attempt
			res.Resizes = resizes
			return res, nil
		}
		if attempt == c.cfg.MaxAttempts {
			err := newError(ErrCodeStaleKeyExhausted, attempt, firmware.StatusStaleKey,
				"map key stale on all %d attempts", c.cfg.MaxAttempts)
			c.fail(attempt, err)
			return nil, err
		}
		c.move(attempt, StateStaleKeyRetry, firmware.StatusStaleKey, "map key stale")
	}
}

// attempt runs one size/capture/commit cycle. It reports stale=true when
// the commit lost the map key race; the buffer has then been released.
// Resizes done by the attempt are added to total.
func (c *Coordinator) attempt(n int, total *int) (*Result, bool, error) {
	log := c.logger.With("attempt", n)

	info, st := c.surface.QuerySnapshot(nil)
	if st != firmware.StatusBufferTooSmall {
		return nil, false, newError(ErrCodeQueryFault, n, st, "size query returned %s, want %s", st, firmware.StatusBufferTooSmall)
	}
	if info.RequiredSize <= 0 {
		return nil, false, newError(ErrCodeQueryFault, n, st, "size query reported %d bytes", info.RequiredSize)
	}
	c.move(n, StateSizingQueried, st, fmt.Sprintf("map needs %d bytes", info.RequiredSize))
	log.Debug("memory map sized", "required", info.RequiredSize)

	snap, resizes, err := c.capture(n, info)
	*total += resizes
	if err != nil {
		return nil, false, err
	}
	descs, err := firmware.DecodeDescriptors(c.buf.Bytes()[:snap.RequiredSize], snap.DescriptorSize)
	if err != nil {
		return nil, false, newError(ErrCodeQueryFault, n, firmware.StatusSuccess, "decode snapshot: %v", err)
	}
	c.move(n, StateSnapshotCaptured, firmware.StatusSuccess,
		fmt.Sprintf("captured %d descriptors, map key %d", len(descs), uint64(snap.MapKey)))

	c.move(n, StateTransitionRequested, firmware.StatusSuccess, "")
	st = c.surface.CommitTransition(snap.MapKey)
	switch st {
	case firmware.StatusSuccess:
		buf := c.buf
		c.buf = nil
		c.move(n, StateCommitted, st, "run-time services only")
		log.Info("boot services exited", "map_key", uint64(snap.MapKey))
		return &Result{
			MapKey:            snap.MapKey,
			DescriptorSize:    snap.DescriptorSize,
			DescriptorVersion: snap.DescriptorVersion,
			Descriptors:       descs,
			Buffer:            buf,
		}, false, nil
	case firmware.StatusStaleKey:
		log.Warn("map key stale", "map_key", uint64(snap.MapKey))
		c.release()
		return nil, true, nil
	default:
		return nil, false, newError(ErrCodeCommitFault, n, st, "commit transition failed with %s", st)
	}
}

// capture allocates the snapshot buffer and fills it, reallocating at most
// MaxResizes times while the map outgrows the buffer. It returns the
// number of reallocations.
func (c *Coordinator) capture(n int, info firmware.SnapshotInfo) (snap firmware.SnapshotInfo, resizes int, err error) {
	descSize := info.DescriptorSize
	if descSize <= 0 {
		descSize = firmware.DescriptorSize
	}
	size := info.RequiredSize + c.cfg.DescriptorMargin*descSize

	for {
		buf, st := c.surface.Allocate(size)
		if st != firmware.StatusSuccess || buf == nil {
			return snap, resizes, newError(ErrCodeAllocFault, n, st, "allocate %d byte snapshot buffer", size)
		}
		c.buf = buf

		snap, st = c.surface.QuerySnapshot(buf.Bytes())
		switch {
		case st == firmware.StatusSuccess:
			if snap.RequiredSize > len(buf.Bytes()) {
				return snap, resizes, newError(ErrCodeQueryFault, n, st,
					"snapshot of %d bytes exceeds %d byte buffer", snap.RequiredSize, len(buf.Bytes()))
			}
			return snap, resizes, nil
		case st == firmware.StatusBufferTooSmall && resizes < c.cfg.MaxResizes:
			resizes++
			c.release()
			size = snap.RequiredSize + c.cfg.DescriptorMargin*descSize
			c.move(n, StateSizingQueried, st, fmt.Sprintf("map grew to %d bytes", snap.RequiredSize))
			c.logger.Debug("memory map grew", "attempt", n, "required", snap.RequiredSize, "resize", resizes)
		case st == firmware.StatusBufferTooSmall:
			return snap, resizes, newError(ErrCodeQueryFault, n, st,
				"memory map still growing after %d resizes", c.cfg.MaxResizes)
		default:
			return snap, resizes, newError(ErrCodeQueryFault, n, st, "sized query returned %s", st)
		}
	}
}

// release frees the snapshot buffer if one is held.
func (c *Coordinator) release() {
	if c.buf == nil {
		return
	}
	if st := c.surface.Free(c.buf); st != firmware.StatusSuccess {
		c.logger.Warn("snapshot buffer not freed", "status", st.String())
	}
	c.buf = nil
}

func (c *Coordinator) fail(attempt int, err error) {
	// A commit fault leaves the environment in an unknown mode; the free
	// is best effort.
	c.release()
	var te *Error
	st := firmware.StatusSuccess
	if errors.As(err, &te) {
		st = te.Status
	}
	c.move(attempt, StateFatal, st, err.Error())
	c.logger.Error("transition failed", "attempt", attempt, "error", err)
}

// move records a validated transition. An invalid transition is a
// programming error in the handshake itself.
func (c *Coordinator) move(attempt int, to State, st firmware.Status, reason string) {
	if !isAllowedTransition(c.state, to) {
		panic(fmt.Sprintf("transition: disallowed transition %s -> %s", c.state, to))
	}
	ch := Change{Attempt: attempt, From: c.state, To: to, Status: st, Reason: reason}
	c.state = to
	c.history = append(c.history, ch)
	c.logger.Debug("transition state", "attempt", attempt, "from", ch.From.String(), "state", to.String())
	if c.observer != nil {
		c.observer(ch)
	}
}
