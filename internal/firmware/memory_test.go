package firmware

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDescriptors_Layout(t *testing.T) {
	buf := make([]byte, DescriptorSize)
	n, err := EncodeDescriptors(buf, []MemoryDescriptor{{
		Type:          BootServicesData,
		PhysicalStart: 0x1000,
		VirtualStart:  0x2000,
		NumberOfPages: 3,
		Attribute:     AttrWB,
	}})
	require.NoError(t, err)
	assert.Equal(t, DescriptorSize, n)

	// type u32 + 4 byte pad, then four u64 fields
	assert.Equal(t, byte(BootServicesData), buf[0])
	assert.Equal(t, []byte{0, 0, 0, 0}, buf[4:8])
	assert.Equal(t, byte(0x10), buf[9])
	assert.Equal(t, byte(0x20), buf[17])
	assert.Equal(t, byte(3), buf[24])
	assert.Equal(t, byte(AttrWB), buf[32])
}

func TestEncodeDescriptors_ShortBuffer(t *testing.T) {
	_, err := EncodeDescriptors(make([]byte, DescriptorSize), make([]MemoryDescriptor, 2))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "need 80 bytes")
}

func TestDecodeDescriptors_RoundTripWithWiderStride(t *testing.T) {
	descs := []MemoryDescriptor{
		{Type: ConventionalMemory, PhysicalStart: 0x100000, NumberOfPages: 16},
		{Type: RuntimeServicesData, PhysicalStart: 0x200000, VirtualStart: 0x200000, NumberOfPages: 1, Attribute: AttrRuntime},
	}
	packed := make([]byte, 2*DescriptorSize)
	_, err := EncodeDescriptors(packed, descs)
	require.NoError(t, err)

	// Firmware may report a larger stride than the struct; re-space entries.
	const stride = DescriptorSize + 8
	wide := make([]byte, 2*stride)
	copy(wide[0:], packed[:DescriptorSize])
	copy(wide[stride:], packed[DescriptorSize:])

	got, err := DecodeDescriptors(wide, stride)
	require.NoError(t, err)
	assert.Equal(t, descs, got)
}

func TestDecodeDescriptors_Errors(t *testing.T) {
	_, err := DecodeDescriptors(make([]byte, 40), 16)
	assert.Error(t, err)

	_, err = DecodeDescriptors(make([]byte, 41), DescriptorSize)
	assert.Error(t, err)
}

func TestPagesFor(t *testing.T) {
	assert.Equal(t, uint64(0), PagesFor(0))
	assert.Equal(t, uint64(1), PagesFor(1))
	assert.Equal(t, uint64(1), PagesFor(PageSize))
	assert.Equal(t, uint64(2), PagesFor(PageSize+1))
}

func TestStatus_StringAndParse(t *testing.T) {
	assert.Equal(t, "EFI_BUFFER_TOO_SMALL", StatusBufferTooSmall.String())
	assert.Equal(t, "EFI_STATUS(99)", Status(99).String())

	st, ok := ParseStatus("EFI_DEVICE_ERROR")
	require.True(t, ok)
	assert.Equal(t, StatusDeviceError, st)

	st, ok = ParseStatus("")
	require.True(t, ok)
	assert.True(t, st.OK())

	_, ok = ParseStatus("EFI_NOPE")
	assert.False(t, ok)
}
