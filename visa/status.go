package visa

import "fmt"

// Status is a VISA completion or error code.  Error codes have the high bit
// set, as defined by VISA.
type Status uint32

const (
	Success                   Status = 0x00000000
	ErrorSystemError          Status = 0xBFFF0000
	ErrorInvalidObject        Status = 0xBFFF000E
	ErrorResourceLocked       Status = 0xBFFF000F
	ErrorResourceNotFound     Status = 0xBFFF0011
	ErrorInvalidResourceName  Status = 0xBFFF0012
	ErrorTimeout              Status = 0xBFFF0015
	ErrorClosingFailed        Status = 0xBFFF0016
	ErrorIO                   Status = 0xBFFF003E
	ErrorNotSupportedOp       Status = 0xBFFF0067
	ErrorResourceBusy         Status = 0xBFFF0072
	ErrorInvalidParameter     Status = 0xBFFF0078
	ErrorConnectionLost       Status = 0xBFFF00A6
	ErrorInstrumentIDQuery    Status = 0xBFFC0011
	ErrorInstrumentScanBuffer Status = 0xBFFC0802
)

var (
	// StatusDescriptions maps VISA status codes to strings
	StatusDescriptions = map[Status]string{
		Success:                   "Operation completed successfully",
		ErrorSystemError:          "Unknown system error (miscellaneous error)",
		ErrorInvalidObject:        "The given session or object reference is invalid",
		ErrorResourceLocked:       "Specified type of lock cannot be obtained or specified operation cannot be performed, because the resource is locked",
		ErrorResourceNotFound:     "Insufficient location information or the device or resource is not present in the system",
		ErrorInvalidResourceName:  "Invalid resource reference specified. Parsing error",
		ErrorTimeout:              "Timeout expired before operation completed",
		ErrorClosingFailed:        "Unable to deallocate the previously allocated data structures corresponding to this session or object reference",
		ErrorIO:                   "Could not perform read/write operation because of I/O error",
		ErrorNotSupportedOp:       "The given session or object reference does not support this operation",
		ErrorResourceBusy:         "The resource is valid, but VISA cannot currently access it",
		ErrorInvalidParameter:     "The value of some parameter is invalid",
		ErrorConnectionLost:       "The connection for the given session has been lost",
		ErrorInstrumentIDQuery:    "Instrument identification query failed",
		ErrorInstrumentScanBuffer: "No free scan buffer available, release scans first",
	}
)

// Error satisfies stdlib error interface
func (s Status) Error() string {
	if d, ok := StatusDescriptions[s]; ok {
		return fmt.Sprintf("0x%08X - %s", uint32(s), d)
	}
	return fmt.Sprintf("0x%08X - UNKNOWN STATUS CODE", uint32(s))
}

// Code returns the status as the signed value VISA APIs report
func (s Status) Code() int {
	return int(int32(s))
}
