package firmware

import (
	"io"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"
)

// Default simulator layout.
const (
	DefaultSimPages = 0x8000 // 128 MiB of conventional memory

	simCodeBase    = 0x0
	simCodePages   = 16
	simConvBase    = 0x100000
	simRuntimePage = 8
	simMMIOBase    = 0xfe000000
)

// Calls counts the service calls made against a Sim.
type Calls struct {
	SizeQueries int // QuerySnapshot with an undersized buffer
	Captures    int // QuerySnapshot that copied the map
	Allocations int
	Frees       int
	Commits     int
	Protocols   int
	Resets      int
}

// Reset records one ResetSystem call.
type Reset struct {
	Type    ResetType
	Status  Status
	Message string
}

// Sim is an in-memory firmware implementing BootServices and
// RuntimeServices.
//
// Sim is not safe for concurrent use.
type Sim struct {
	descs       []MemoryDescriptor
	key         MapKey
	runtimeOnly bool
	allocs      map[uint64]*Allocation
	protocols   map[uuid.UUID]any
	now         func() time.Time
	logger      *slog.Logger

	staleCommits int
	commitFault  Status
	sizeFault    Status
	captureFault Status
	allocFault   Status
	growth       int
	nextMMIO     uint64

	calls  Calls
	resets []Reset
}

// SimOption configures a Sim.
type SimOption func(*Sim)

// WithMemoryPages sets the amount of conventional memory in pages.
func WithMemoryPages(pages uint64) SimOption {
	return func(s *Sim) {
		for i := range s.descs {
			if s.descs[i].Type == ConventionalMemory {
				s.descs[i].NumberOfPages = pages
			}
		}
	}
}

// WithStaleCommits makes the next n CommitTransition calls fail with
// StatusStaleKey, each one changing the memory map first the way an
// event handler allocating behind the caller would.
func WithStaleCommits(n int) SimOption {
	return func(s *Sim) {
		s.staleCommits = n
	}
}

// WithCommitFault makes every CommitTransition with a valid key fail with st.
func WithCommitFault(st Status) SimOption {
	return func(s *Sim) {
		s.commitFault = st
	}
}

// WithSizeQueryFault makes QuerySnapshot with an undersized buffer return
// st instead of StatusBufferTooSmall.
func WithSizeQueryFault(st Status) SimOption {
	return func(s *Sim) {
		s.sizeFault = st
	}
}

// WithCaptureFault makes QuerySnapshot with a large enough buffer return st.
func WithCaptureFault(st Status) SimOption {
	return func(s *Sim) {
		s.captureFault = st
	}
}

// WithAllocFault makes every Allocate return st.
func WithAllocFault(st Status) SimOption {
	return func(s *Sim) {
		s.allocFault = st
	}
}

// WithMapGrowth adds n MMIO descriptors to the map right before the next
// capturing QuerySnapshot, as if the map grew between sizing and capture.
func WithMapGrowth(n int) SimOption {
	return func(s *Sim) {
		s.growth = n
	}
}

// WithClock sets the time source for GetTime.
func WithClock(now func() time.Time) SimOption {
	return func(s *Sim) {
		s.now = now
	}
}

// WithSimLogger sets the logger for service call tracing.
func WithSimLogger(l *slog.Logger) SimOption {
	return func(s *Sim) {
		s.logger = l
	}
}

// NewSim creates a simulator in boot-time mode with a small default map:
// boot services code, conventional memory and a runtime data region.
func NewSim(opts ...SimOption) *Sim {
	runtimeBase := uint64(simConvBase) + DefaultSimPages*PageSize
	s := &Sim{
		descs: []MemoryDescriptor{
			{Type: BootServicesCode, PhysicalStart: simCodeBase, NumberOfPages: simCodePages, Attribute: AttrWB | AttrUC},
			{Type: ConventionalMemory, PhysicalStart: simConvBase, NumberOfPages: DefaultSimPages, Attribute: AttrWB | AttrUC},
			{Type: RuntimeServicesData, PhysicalStart: runtimeBase, VirtualStart: runtimeBase, NumberOfPages: simRuntimePage, Attribute: AttrWB | AttrRuntime},
		},
		key:       1,
		allocs:    make(map[uint64]*Allocation),
		protocols: make(map[uuid.UUID]any),
		now:       time.Now,
		logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
		nextMMIO:  simMMIOBase,
	}
	for _, opt := range opts {
		opt(s)
	}
	// WithMemoryPages may have moved the end of conventional memory.
	s.placeRuntimeRegion()
	return s
}

func (s *Sim) placeRuntimeRegion() {
	var convEnd uint64
	for _, d := range s.descs {
		if d.Type == ConventionalMemory && d.End() > convEnd {
			convEnd = d.End()
		}
	}
	for i := range s.descs {
		if s.descs[i].Type == RuntimeServicesData {
			s.descs[i].PhysicalStart = convEnd
			s.descs[i].VirtualStart = convEnd
		}
	}
}

// InstallProtocol makes iface discoverable through LocateProtocol.
func (s *Sim) InstallProtocol(guid uuid.UUID, iface any) {
	s.protocols[guid] = iface
}

// QuerySnapshot implements Surface.
func (s *Sim) QuerySnapshot(buf []byte) (SnapshotInfo, Status) {
	if s.runtimeOnly {
		return SnapshotInfo{}, StatusUnsupported
	}
	if len(buf) > 0 && s.growth > 0 {
		for i := 0; i < s.growth; i++ {
			s.addMMIO()
		}
		s.growth = 0
	}

	need := len(s.descs) * DescriptorSize
	info := SnapshotInfo{
		RequiredSize:      need,
		DescriptorSize:    DescriptorSize,
		DescriptorVersion: DescriptorVersion,
	}

	if len(buf) < need {
		s.calls.SizeQueries++
		if s.sizeFault != StatusSuccess {
			return SnapshotInfo{}, s.sizeFault
		}
		return info, StatusBufferTooSmall
	}

	s.calls.Captures++
	if s.captureFault != StatusSuccess {
		return SnapshotInfo{}, s.captureFault
	}
	if _, err := EncodeDescriptors(buf, s.descs); err != nil {
		return SnapshotInfo{}, StatusDeviceError
	}
	info.MapKey = s.key
	s.logger.Debug("memory map captured", "descriptors", len(s.descs), "map_key", uint64(s.key))
	return info, StatusSuccess
}

// Allocate implements Surface by carving pages from the first
// conventional region large enough.
func (s *Sim) Allocate(size int) (*Allocation, Status) {
	if s.runtimeOnly {
		return nil, StatusUnsupported
	}
	s.calls.Allocations++
	if s.allocFault != StatusSuccess {
		return nil, s.allocFault
	}
	if size <= 0 {
		return nil, StatusInvalidParameter
	}

	pages := PagesFor(size)
	for i, d := range s.descs {
		if d.Type != ConventionalMemory || d.NumberOfPages < pages {
			continue
		}
		a := &Allocation{Addr: d.PhysicalStart, Pages: pages, data: make([]byte, size)}
		used := MemoryDescriptor{
			Type:          BootServicesData,
			PhysicalStart: d.PhysicalStart,
			NumberOfPages: pages,
			Attribute:     d.Attribute,
		}
		if d.NumberOfPages == pages {
			s.descs[i] = used
		} else {
			s.descs[i].PhysicalStart += pages * PageSize
			s.descs[i].NumberOfPages -= pages
			s.descs = append(s.descs, used)
			s.sortMap()
		}
		s.allocs[a.Addr] = a
		s.key++
		s.logger.Debug("pool allocated", "addr", a.Addr, "pages", pages, "map_key", uint64(s.key))
		return a, StatusSuccess
	}
	return nil, StatusOutOfResources
}

// Free implements Surface.
func (s *Sim) Free(a *Allocation) Status {
	if s.runtimeOnly {
		return StatusUnsupported
	}
	s.calls.Frees++
	if a == nil {
		return StatusInvalidParameter
	}
	if _, ok := s.allocs[a.Addr]; !ok {
		return StatusInvalidParameter
	}
	delete(s.allocs, a.Addr)
	for i := range s.descs {
		if s.descs[i].Type == BootServicesData && s.descs[i].PhysicalStart == a.Addr {
			s.descs[i].Type = ConventionalMemory
			break
		}
	}
	s.coalesce()
	s.key++
	s.logger.Debug("pool freed", "addr", a.Addr, "map_key", uint64(s.key))
	return StatusSuccess
}

// CommitTransition implements Surface.
func (s *Sim) CommitTransition(key MapKey) Status {
	if s.runtimeOnly {
		return StatusUnsupported
	}
	s.calls.Commits++
	if s.staleCommits > 0 {
		s.staleCommits--
		s.key++
		s.logger.Debug("map changed before commit", "map_key", uint64(s.key))
		return StatusStaleKey
	}
	if key != s.key {
		return StatusStaleKey
	}
	if s.commitFault != StatusSuccess {
		return s.commitFault
	}
	s.runtimeOnly = true
	s.logger.Debug("boot services terminated", "map_key", uint64(key))
	return StatusSuccess
}

// LocateProtocol implements BootServices.
func (s *Sim) LocateProtocol(guid uuid.UUID) (any, Status) {
	if s.runtimeOnly {
		return nil, StatusUnsupported
	}
	s.calls.Protocols++
	iface, ok := s.protocols[guid]
	if !ok {
		return nil, StatusNotFound
	}
	return iface, StatusSuccess
}

// GetTime implements RuntimeServices.
func (s *Sim) GetTime() (time.Time, Status) {
	return s.now(), StatusSuccess
}

// ResetSystem implements RuntimeServices. The simulator records the
// request and returns StatusSuccess to signal it was accepted.
func (s *Sim) ResetSystem(kind ResetType, status Status, message string) Status {
	s.calls.Resets++
	s.resets = append(s.resets, Reset{Type: kind, Status: status, Message: message})
	return StatusSuccess
}

// RuntimeOnly reports whether the transition has been committed.
func (s *Sim) RuntimeOnly() bool { return s.runtimeOnly }

// MapKey returns the key of the current memory map.
func (s *Sim) MapKey() MapKey { return s.key }

// Calls returns the service call counters.
func (s *Sim) Calls() Calls { return s.calls }

// Resets returns the recorded ResetSystem calls.
func (s *Sim) Resets() []Reset {
	out := make([]Reset, len(s.resets))
	copy(out, s.resets)
	return out
}

// Descriptors returns a copy of the current memory map.
func (s *Sim) Descriptors() []MemoryDescriptor {
	out := make([]MemoryDescriptor, len(s.descs))
	copy(out, s.descs)
	return out
}

// Outstanding returns the number of allocations not yet freed.
func (s *Sim) Outstanding() int { return len(s.allocs) }

func (s *Sim) addMMIO() {
	s.descs = append(s.descs, MemoryDescriptor{
		Type:          MemoryMappedIO,
		PhysicalStart: s.nextMMIO,
		NumberOfPages: 1,
		Attribute:     AttrUC | AttrRuntime,
	})
	s.nextMMIO += PageSize
	s.sortMap()
	s.key++
}

func (s *Sim) sortMap() {
	sort.Slice(s.descs, func(i, j int) bool {
		return s.descs[i].PhysicalStart < s.descs[j].PhysicalStart
	})
}

// coalesce merges adjacent conventional regions.
func (s *Sim) coalesce() {
	s.sortMap()
	merged := s.descs[:0]
	for _, d := range s.descs {
		if n := len(merged); n > 0 {
			prev := &merged[n-1]
			if prev.Type == ConventionalMemory && d.Type == ConventionalMemory && prev.End() == d.PhysicalStart {
				prev.NumberOfPages += d.NumberOfPages
				continue
			}
		}
		merged = append(merged, d)
	}
	s.descs = merged
}
