package firmware

import (
	"encoding/binary"
	"fmt"
)

// PageSize is the granularity of firmware page allocations.
const PageSize = 4096

// DescriptorSize is the encoded size of one MemoryDescriptor in bytes.
// Layout: type u32, pad u32, physical start u64, virtual start u64,
// number of pages u64, attribute u64 (little endian).
const DescriptorSize = 40

// DescriptorVersion is the only descriptor layout version this package emits.
const DescriptorVersion uint32 = 1

// MemoryType classifies a memory map region.
type MemoryType uint32

const (
	ReservedMemoryType MemoryType = iota
	LoaderCode
	LoaderData
	BootServicesCode
	BootServicesData
	RuntimeServicesCode
	RuntimeServicesData
	ConventionalMemory
	UnusableMemory
	ACPIReclaimMemory
	ACPIMemoryNVS
	MemoryMappedIO
	MemoryMappedIOPortSpace
	PalCode
)

var memoryTypeNames = []string{
	"Reserved",
	"LoaderCode",
	"LoaderData",
	"BootServicesCode",
	"BootServicesData",
	"RuntimeServicesCode",
	"RuntimeServicesData",
	"Conventional",
	"Unusable",
	"ACPIReclaim",
	"ACPIMemoryNVS",
	"MMIO",
	"MMIOPortSpace",
	"PalCode",
}

func (t MemoryType) String() string {
	if int(t) < len(memoryTypeNames) {
		return memoryTypeNames[t]
	}
	return fmt.Sprintf("MemoryType(%d)", uint32(t))
}

// Memory attribute bits.
const (
	AttrUC      uint64 = 1 << 0
	AttrWC      uint64 = 1 << 1
	AttrWT      uint64 = 1 << 2
	AttrWB      uint64 = 1 << 3
	AttrUCE     uint64 = 1 << 4
	AttrWP      uint64 = 1 << 12
	AttrRP      uint64 = 1 << 13
	AttrXP      uint64 = 1 << 14
	AttrRuntime uint64 = 1 << 63
)

// MapKey identifies one version of the memory map. It is invalidated by
// any change to the map.
type MapKey uint64

// MemoryDescriptor describes one contiguous region of the memory map.
type MemoryDescriptor struct {
	Type          MemoryType
	PhysicalStart uint64
	VirtualStart  uint64
	NumberOfPages uint64
	Attribute     uint64
}

// End returns the first physical address past the region.
func (d MemoryDescriptor) End() uint64 {
	return d.PhysicalStart + d.NumberOfPages*PageSize
}

// Contains reports whether addr falls inside the region.
func (d MemoryDescriptor) Contains(addr uint64) bool {
	return addr >= d.PhysicalStart && addr < d.End()
}

// SnapshotInfo is the metadata returned alongside a memory map query.
type SnapshotInfo struct {
	// RequiredSize is the number of bytes the full map needs.
	RequiredSize int
	// MapKey is only meaningful when the query succeeded.
	MapKey            MapKey
	DescriptorSize    int
	DescriptorVersion uint32
}

// EncodeDescriptors writes descs into dst using the DescriptorSize layout.
// It returns the number of bytes written, or an error if dst is too short.
func EncodeDescriptors(dst []byte, descs []MemoryDescriptor) (int, error) {
	need := len(descs) * DescriptorSize
	if len(dst) < need {
		return 0, fmt.Errorf("encode descriptors: need %d bytes, have %d", need, len(dst))
	}
	le := binary.LittleEndian
	for i, d := range descs {
		b := dst[i*DescriptorSize : (i+1)*DescriptorSize]
		le.PutUint32(b[0:], uint32(d.Type))
		le.PutUint32(b[4:], 0)
		le.PutUint64(b[8:], d.PhysicalStart)
		le.PutUint64(b[16:], d.VirtualStart)
		le.PutUint64(b[24:], d.NumberOfPages)
		le.PutUint64(b[32:], d.Attribute)
	}
	return need, nil
}

// DecodeDescriptors parses a memory map buffer. descSize is the stride
// reported by the firmware and may be larger than DescriptorSize; trailing
// bytes of each entry are ignored.
func DecodeDescriptors(buf []byte, descSize int) ([]MemoryDescriptor, error) {
	if descSize < DescriptorSize {
		return nil, fmt.Errorf("decode descriptors: descriptor size %d below minimum %d", descSize, DescriptorSize)
	}
	if len(buf)%descSize != 0 {
		return nil, fmt.Errorf("decode descriptors: buffer length %d is not a multiple of %d", len(buf), descSize)
	}
	le := binary.LittleEndian
	descs := make([]MemoryDescriptor, 0, len(buf)/descSize)
	for off := 0; off < len(buf); off += descSize {
		b := buf[off : off+descSize]
		descs = append(descs, MemoryDescriptor{
			Type:          MemoryType(le.Uint32(b[0:])),
			PhysicalStart: le.Uint64(b[8:]),
			VirtualStart:  le.Uint64(b[16:]),
			NumberOfPages: le.Uint64(b[24:]),
			Attribute:     le.Uint64(b[32:]),
		})
	}
	return descs, nil
}

// PagesFor returns the number of pages needed to hold size bytes.
func PagesFor(size int) uint64 {
	if size <= 0 {
		return 0
	}
	return uint64((size + PageSize - 1) / PageSize)
}
