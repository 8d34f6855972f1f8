package visa

import (
	"errors"
	"io"
	"net"
	"os"
	"syscall"
	"time"

	"github.com/google/gousb"
	"github.com/tarm/serial"

	"github.jpl.nasa.gov/bdube/paxsample/comm"
	"github.jpl.nasa.gov/bdube/paxsample/usbtmc"
)

// SerialBaud is the baud rate used for ASRL resources
var SerialBaud = 115200

// TransportError pairs a VISA status with the transport failure behind it
type TransportError struct {
	Status Status
	Err    error
}

// Error satisfies stdlib error interface
func (e TransportError) Error() string {
	return e.Status.Error() + ": " + e.Err.Error()
}

// Unwrap returns the transport failure
func (e TransportError) Unwrap() error { return e.Err }

// Is matches the wrapped status, so errors.Is(err, ErrorTimeout) works
func (e TransportError) Is(target error) bool {
	s, ok := target.(Status)
	return ok && s == e.Status
}

// Code returns the VISA status code
func (e TransportError) Code() int { return e.Status.Code() }

// Maker returns a connection maker for the resource.  timeout bounds the
// connection attempt and, where the transport allows it, each read.
func Maker(r Resource, timeout time.Duration) (comm.CreationFunc, error) {
	switch r.Interface {
	case USB:
		return usbtmc.Maker(r.VendorID, r.ProductID, r.Serial), nil
	case TCPIP:
		return comm.BackingOffTCPConnMaker(r.Addr(), timeout), nil
	case ASRL:
		return comm.SerialConnMaker(&serial.Config{
			Name:        r.SerialPort(),
			Baud:        SerialBaud,
			ReadTimeout: timeout,
		}), nil
	}
	return nil, ErrorInvalidResourceName
}

// Translate maps an error from a transport onto the closest VISA status.
// nil and errors that already carry a Status are returned unchanged.
func Translate(err error) error {
	if err == nil {
		return nil
	}
	var s Status
	if errors.As(err, &s) {
		return err
	}
	var te TransportError
	if errors.As(err, &te) {
		return err
	}
	return TransportError{Status: classify(err), Err: err}
}

func classify(err error) Status {
	var ne net.Error
	switch {
	case errors.As(err, &ne) && ne.Timeout():
		return ErrorTimeout
	case errors.Is(err, gousb.ErrorTimeout), errors.Is(err, gousb.TransferTimedOut):
		return ErrorTimeout
	case errors.Is(err, usbtmc.ErrNotFound), errors.Is(err, gousb.ErrorNotFound),
		errors.Is(err, gousb.ErrorNoDevice), errors.Is(err, os.ErrNotExist):
		return ErrorResourceNotFound
	case errors.Is(err, gousb.ErrorBusy), errors.Is(err, gousb.ErrorAccess):
		return ErrorResourceBusy
	case errors.Is(err, syscall.ECONNREFUSED):
		return ErrorResourceNotFound
	case errors.Is(err, io.EOF), errors.Is(err, syscall.ECONNRESET), errors.Is(err, syscall.EPIPE),
		errors.Is(err, net.ErrClosed), errors.Is(err, comm.ErrNotConnected):
		return ErrorConnectionLost
	}
	return ErrorIO
}
