package thorlabs

import (
	"fmt"

	"github.com/pkg/errors"

	"github.jpl.nasa.gov/bdube/paxsample/polarimeter"
	"github.jpl.nasa.gov/bdube/paxsample/scpi"
	"github.jpl.nasa.gov/bdube/paxsample/visa"
)

var (
	// PAXErrors maps the codes of the PAX error queue to strings
	PAXErrors = map[int]string{
		-100: "COMMAND ERROR",
		-101: "INVALID CHARACTER",
		-102: "SYNTAX ERROR",
		-103: "INVALID SEPARATOR",
		-104: "DATA TYPE ERROR",
		-108: "PARAMETER NOT ALLOWED",
		-109: "MISSING PARAMETER",
		-110: "COMMAND HEADER ERROR",
		-113: "UNDEFINED HEADER (UNKNOWN COMMAND)",
		-115: "UNEXPECTED NUMBER OF PARAMETERS",
		-120: "NUMERIC DATA ERROR",
		-130: "SUFFIX ERROR",
		-131: "INVALID SUFFIX",
		-151: "INVALID STRING DATA",

		-200: "EXECUTION ERROR",
		-220: "PARAMETER ERROR",
		-221: "SETTINGS CONFLICT",
		-222: "DATA OUT OF RANGE",
		-230: "DATA CORRUPT OR STALE",
		-231: "DATA QUESTIONABLE",
		-240: "HARDWARE ERROR",
		-241: "HARDWARE MISSING",

		-310: "SYSTEM ERROR",
		-311: "MEMORY ERROR",
		-313: "CALIBRATION MEMORY LOST",
		-315: "CONFIGURATION MEMORY LOST",
		-321: "OUT OF MEMORY",
		-330: "SELF-TEST FAILED",
		-340: "CALIBRATION FAILURE",
		-350: "QUEUE OVERFLOW",
		-363: "INPUT BUFFER OVERRUN",

		-400: "QUERY ERROR",
		-410: "QUERY INTERRUPTED",
		-420: "QUERY UNTERMINATED",
		-430: "QUERY DEADLOCKED",
	}
)

// errorMessage describes err the way the vendor driver does: the table entry
// for device and VISA codes, the error text otherwise
func errorMessage(err error) string {
	if err == nil {
		return visa.StatusDescriptions[visa.Success]
	}
	var se scpi.Error
	if errors.As(err, &se) {
		if s, ok := PAXErrors[se.Number]; ok {
			return fmt.Sprintf("%d - %s", se.Number, s)
		}
		if se.Message != "" {
			return fmt.Sprintf("%d - %s", se.Number, se.Message)
		}
		return fmt.Sprintf("%d - UNKNOWN ERROR CODE", se.Number)
	}
	var st visa.Status
	if errors.As(err, &st) {
		return st.Error()
	}
	var te visa.TransportError
	if errors.As(err, &te) {
		return te.Status.Error()
	}
	if code, ok := polarimeter.Code(err); ok {
		return fmt.Sprintf("%d - %s", code, err.Error())
	}
	return err.Error()
}

// translate maps transport failures onto VISA statuses, leaving errors
// reported by the device untouched
func translate(err error) error {
	if err == nil {
		return nil
	}
	var se scpi.Error
	if errors.As(err, &se) {
		return err
	}
	return visa.Translate(err)
}
