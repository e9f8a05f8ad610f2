package firmware

import (
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// Handle identifies a firmware object such as the loaded image.
type Handle uint64

// Allocation is a block of pool memory handed out by Surface.Allocate.
type Allocation struct {
	Addr  uint64
	Pages uint64
	data  []byte
}

// Bytes returns the usable memory of the allocation.
func (a *Allocation) Bytes() []byte {
	return a.data
}

// Size returns the requested size in bytes.
func (a *Allocation) Size() int {
	return len(a.data)
}

// Surface is the part of boot services the transition handshake needs.
//
// All calls are synchronous. Implementations are not required to be safe
// for concurrent use; the orchestrator is single-threaded.
type Surface interface {
	// QuerySnapshot copies the current memory map into buf. If buf is too
	// small it returns StatusBufferTooSmall and info.RequiredSize.
	QuerySnapshot(buf []byte) (SnapshotInfo, Status)

	// Allocate reserves at least size bytes of boot-services data.
	Allocate(size int) (*Allocation, Status)

	// Free releases an allocation made by Allocate.
	Free(a *Allocation) Status

	// CommitTransition ends boot services. It returns StatusStaleKey if
	// key does not name the current memory map.
	CommitTransition(key MapKey) Status
}

// BootServices is the full boot-time service set.
type BootServices interface {
	Surface

	// LocateProtocol returns the first installed interface for guid.
	LocateProtocol(guid uuid.UUID) (any, Status)
}

// ResetType selects how ResetSystem restarts the platform.
type ResetType int

const (
	ResetCold ResetType = iota
	ResetWarm
	ResetShutdown
)

func (r ResetType) String() string {
	switch r {
	case ResetCold:
		return "cold"
	case ResetWarm:
		return "warm"
	case ResetShutdown:
		return "shutdown"
	default:
		return "unknown"
	}
}

// RuntimeServices is the reduced service set that survives the transition.
type RuntimeServices interface {
	GetTime() (time.Time, Status)

	// ResetSystem restarts the platform. On real hardware it does not
	// return; any return is a failure to reset unless the implementation
	// documents otherwise.
	ResetSystem(kind ResetType, status Status, message string) Status
}

// Env is the explicit execution context handed to test units and the
// transition coordinator. It is immutable after NewEnv.
type Env struct {
	image   Handle
	boot    BootServices
	runtime RuntimeServices
	logger  *slog.Logger
}

// EnvOption configures an Env.
type EnvOption func(*Env)

// WithLogger sets the logger units should use. Default: slog.Default().
func WithLogger(l *slog.Logger) EnvOption {
	return func(e *Env) {
		e.logger = l
	}
}

// NewEnv builds the execution context. Both service sets are required.
func NewEnv(image Handle, boot BootServices, runtime RuntimeServices, opts ...EnvOption) (*Env, error) {
	if boot == nil {
		return nil, errors.New("firmware env: boot services are required")
	}
	if runtime == nil {
		return nil, errors.New("firmware env: runtime services are required")
	}
	e := &Env{
		image:   image,
		boot:    boot,
		runtime: runtime,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.logger == nil {
		e.logger = slog.Default()
	}
	return e, nil
}

// ImageHandle returns the handle of the running image.
func (e *Env) ImageHandle() Handle { return e.image }

// Boot returns the boot-time services. Callers must not use them after
// the transition has been committed.
func (e *Env) Boot() BootServices { return e.boot }

// Runtime returns the run-time services.
func (e *Env) Runtime() RuntimeServices { return e.runtime }

// Logger returns the environment logger.
func (e *Env) Logger() *slog.Logger { return e.logger }
