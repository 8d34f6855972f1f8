// Package scpi provides primitives for working with devices that
// have SCPI interfaces
package scpi

import (
	"context"
	"fmt"
	"io"
	"log"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.jpl.nasa.gov/bdube/paxsample/comm"
	"github.jpl.nasa.gov/bdube/paxsample/util"
)

const (
	// DefaultTimeout bounds each read and write when SCPI.Timeout is zero
	DefaultTimeout = 5 * time.Second

	// DefaultErrorQuery pops one entry from the error queue
	DefaultErrorQuery = "SYST:ERR?"

	frameSize = 4096
)

// Error is an entry from the instrument's error queue, e.g. -222,"Data out of range"
type Error struct {
	Number  int
	Message string
}

// Error satisfies stdlib error interface
func (e Error) Error() string {
	if e.Message == "" {
		return strconv.Itoa(e.Number)
	}
	return fmt.Sprintf("%d, %s", e.Number, e.Message)
}

// Code returns the error number
func (e Error) Code() int { return e.Number }

// ParseError parses a response to the error query.  It returns nil if the
// queue was empty (code 0).
func ParseError(s string) error {
	s = util.TrimTerminators(s)
	num, msg := s, ""
	if i := strings.IndexByte(s, ','); i >= 0 {
		num, msg = s[:i], s[i+1:]
	}
	n, err := strconv.Atoi(strings.TrimSpace(num))
	if err != nil {
		return fmt.Errorf("malformed error queue response %q", s)
	}
	if n == 0 {
		return nil
	}
	return Error{Number: n, Message: strings.Trim(strings.TrimSpace(msg), `"`)}
}

// SCPI is a type for encapsulating SCPI communication
type SCPI struct {
	Pool *comm.Pool

	// Handshaking indicates if the communication shall use handshaking,
	// where the error queue is queried after every message
	// to ensure the device accepted the input
	Handshaking bool

	// ErrorQuery is the command used for handshaking, DefaultErrorQuery if empty
	ErrorQuery string

	// Timeout bounds each read and write, DefaultTimeout if zero
	Timeout time.Duration

	// Limiter, if not nil, paces messages to the device
	Limiter *rate.Limiter

	// Logger, if not nil, traces all traffic
	Logger *log.Logger
}

// MinInterval returns a limiter which allows one message every d
func MinInterval(d time.Duration) *rate.Limiter {
	if d <= 0 {
		return nil
	}
	return rate.NewLimiter(rate.Every(d), 1)
}

func (s *SCPI) timeout() time.Duration {
	if s.Timeout == 0 {
		return DefaultTimeout
	}
	return s.Timeout
}

func (s *SCPI) errorQuery() string {
	if s.ErrorQuery == "" {
		return DefaultErrorQuery
	}
	return s.ErrorQuery
}

func (s *SCPI) roundtrip(rw io.ReadWriter, cmd string, query bool) (string, error) {
	if s.Limiter != nil {
		if err := s.Limiter.Wait(context.Background()); err != nil {
			return "", err
		}
	}
	if s.Logger != nil {
		s.Logger.Printf("-> %s", cmd)
	}
	if _, err := io.WriteString(rw, cmd); err != nil {
		return "", err
	}
	if !query {
		return "", nil
	}
	buf := make([]byte, frameSize)
	n, err := rw.Read(buf)
	if err != nil {
		return "", err
	}
	resp := util.TrimTerminators(string(buf[:n]))
	if s.Logger != nil {
		s.Logger.Printf("<- %s", resp)
	}
	return resp, nil
}

// exchange sends the commands joined by spaces as one message and reads the
// response if query is true.  Transport failures destroy the connection,
// errors reported by the device do not.
func (s *SCPI) exchange(query bool, cmds ...string) (string, error) {
	conn, err := s.Pool.Get()
	if err != nil {
		return "", err
	}
	defer func() { s.Pool.ReturnWithError(conn, err) }()
	wrap, err := comm.NewTimeout(conn, s.timeout())
	if err != nil {
		return "", err
	}
	wrap = comm.NewTerminator(wrap, '\n', '\n')
	resp, err := s.roundtrip(wrap, strings.Join(cmds, " "), query)
	if err != nil {
		return "", err
	}
	if s.Handshaking {
		var errS string
		errS, err = s.roundtrip(wrap, s.errorQuery(), true)
		if err != nil {
			return "", err
		}
		if devErr := ParseError(errS); devErr != nil {
			return resp, devErr
		}
	}
	return resp, nil
}

// Write sends a command to the device.  if s.Handshaking == true,
// it also requests an error response and checks that it is OK
// it is assumed this is used for set operations and not get.
func (s *SCPI) Write(cmds ...string) error {
	_, err := s.exchange(false, cmds...)
	return err
}

// ReadString sends a command to the device, the reads the response
// and returns it as a decoded ASCII or UTF-8 string
func (s *SCPI) ReadString(cmds ...string) (string, error) {
	return s.exchange(true, cmds...)
}

// ReadFloat sends a command to the device, then reads the
// response and parses it as a floating point value
func (s *SCPI) ReadFloat(cmds ...string) (float64, error) {
	resp, err := s.ReadString(cmds...)
	if err != nil {
		return 0, err
	}
	return strconv.ParseFloat(strings.TrimSpace(resp), 64)
}

// ReadFloats sends a command to the device, then reads the
// response and parses it as a comma separated list of floats
func (s *SCPI) ReadFloats(cmds ...string) ([]float64, error) {
	resp, err := s.ReadString(cmds...)
	if err != nil {
		return nil, err
	}
	return util.SplitFloats(resp)
}

// ReadBool sends a command to the device, then reads the
// response and parses it as a boolean
func (s *SCPI) ReadBool(cmds ...string) (bool, error) {
	resp, err := s.ReadString(cmds...)
	if err != nil {
		return false, err
	}
	switch strings.ToUpper(strings.TrimSpace(resp)) {
	case "ON":
		return true, nil
	case "OFF":
		return false, nil
	}
	return strconv.ParseBool(strings.TrimSpace(resp))
}

// ReadInt sends a command to the device, then reads the
// response and parses it as an integer
func (s *SCPI) ReadInt(cmds ...string) (int, error) {
	resp, err := s.ReadString(cmds...)
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(strings.TrimSpace(resp))
}

// Raw sends a command to the device and returns a response if it was a query,
// else a blank string.  Raw never handshakes.
func (s *SCPI) Raw(str string) (string, error) {
	prev := s.Handshaking
	s.Handshaking = false
	defer func() { s.Handshaking = prev }()
	if strings.Contains(str, "?") {
		return s.ReadString(str)
	}
	return "", s.Write(str)
}

// PopError gets a single error from the queue on the device
func (s *SCPI) PopError() error {
	str, err := s.Raw(s.errorQuery())
	if err != nil {
		return err
	}
	return ParseError(str)
}

// AllErrors drains the error queue of the device.  It stops early on a
// communication failure, which is returned as the last element.
func (s *SCPI) AllErrors() []error {
	var errs []error
	for {
		err := s.PopError()
		if err == nil {
			break
		}
		errs = append(errs, err)
		if _, ok := err.(Error); !ok {
			break
		}
	}
	return errs
}
