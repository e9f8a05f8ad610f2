package firmware

import "strconv"

// Status is the result code returned by every firmware service call.
//
// Values follow the UEFI status numbering so traces read the same as
// firmware logs.
type Status uint64

const (
	StatusSuccess          Status = 0
	StatusLoadError        Status = 1
	StatusInvalidParameter Status = 2
	StatusUnsupported      Status = 3
	StatusBadBufferSize    Status = 4
	StatusBufferTooSmall   Status = 5
	StatusNotReady         Status = 6
	StatusDeviceError      Status = 7
	StatusWriteProtected   Status = 8
	StatusOutOfResources   Status = 9
	StatusNotFound         Status = 14
	StatusAccessDenied     Status = 15
	StatusTimeout          Status = 18
	StatusAborted          Status = 21
)

// StatusStaleKey is what CommitTransition returns when the map key no
// longer matches the current memory map. UEFI reuses INVALID_PARAMETER
// for this.
const StatusStaleKey = StatusInvalidParameter

var statusNames = map[Status]string{
	StatusSuccess:          "EFI_SUCCESS",
	StatusLoadError:        "EFI_LOAD_ERROR",
	StatusInvalidParameter: "EFI_INVALID_PARAMETER",
	StatusUnsupported:      "EFI_UNSUPPORTED",
	StatusBadBufferSize:    "EFI_BAD_BUFFER_SIZE",
	StatusBufferTooSmall:   "EFI_BUFFER_TOO_SMALL",
	StatusNotReady:         "EFI_NOT_READY",
	StatusDeviceError:      "EFI_DEVICE_ERROR",
	StatusWriteProtected:   "EFI_WRITE_PROTECTED",
	StatusOutOfResources:   "EFI_OUT_OF_RESOURCES",
	StatusNotFound:         "EFI_NOT_FOUND",
	StatusAccessDenied:     "EFI_ACCESS_DENIED",
	StatusTimeout:          "EFI_TIMEOUT",
	StatusAborted:          "EFI_ABORTED",
}

// String returns the UEFI name of the status, or its number if unknown.
func (s Status) String() string {
	if name, ok := statusNames[s]; ok {
		return name
	}
	return "EFI_STATUS(" + strconv.FormatUint(uint64(s), 10) + ")"
}

// OK reports whether the status is StatusSuccess.
func (s Status) OK() bool {
	return s == StatusSuccess
}

// ParseStatus maps a UEFI status name (e.g. "EFI_DEVICE_ERROR") back to
// its value. The empty string parses as StatusSuccess.
func ParseStatus(name string) (Status, bool) {
	if name == "" {
		return StatusSuccess, true
	}
	for st, n := range statusNames {
		if n == name {
			return st, true
		}
	}
	return 0, false
}
