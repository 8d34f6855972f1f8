/*
Package comm provides connection management for lab hardware.

Most usages of this package will boil down to:
 1. make a CreationFunc for the transport (BackingOffTCPConnMaker,
    SerialConnMaker, or one from another package such as usbtmc)
 2. put it in a Pool sized for how many connections the remote tolerates
 3. for each exchange, Get a connection, wrap it with NewTimeout and
    NewTerminator, write a command, read the response, and
    ReturnWithError

A minimal example for a sensor that responds to "RD?" with a reading:

	pool := comm.NewPool(1, time.Minute, comm.BackingOffTCPConnMaker(addr, time.Second))

	func readTemp(pool *comm.Pool) (float64, error) {
		conn, err := pool.Get()
		if err != nil {
			return 0, err
		}
		defer func() { pool.ReturnWithError(conn, err) }()
		wrap, err := comm.NewTimeout(conn, time.Second)
		if err != nil {
			return 0, err
		}
		wrap = comm.NewTerminator(wrap, '\r', '\r')
		if _, err = io.WriteString(wrap, "RD?"); err != nil {
			return 0, err
		}
		buf := make([]byte, 64)
		n, err := wrap.Read(buf)
		if err != nil {
			return 0, err
		}
		return strconv.ParseFloat(string(buf[:n]), 64)
	}
*/
package comm

import (
	"errors"
	"io"
	"net"
	"strings"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/tarm/serial"
)

var (
	// ErrNotConnected is generated when a connection is used after it was closed
	ErrNotConnected = errors.New("conn is nil, not connected to remote")

	// ErrTerminatorNotFound is generated when the termination byte is not found in a response
	ErrTerminatorNotFound = errors.New("termination byte not found")

	// ErrPoolClosed is generated when Get is called on a closed Pool
	ErrPoolClosed = errors.New("connection pool is closed")
)

// CreationFunc is a function which returns a new "connection" to something
// a closure should be used to encapsulate the variables and functions needed
type CreationFunc func() (io.ReadWriteCloser, error)

// TCPSetup opens a new TCP connection with a timeout on connect
func TCPSetup(addr string, timeout time.Duration) (net.Conn, error) {
	return net.DialTimeout("tcp", addr, timeout)
}

// BackingOffTCPConnMaker returns a CreationFunc that dials addr, retrying
// with exponential backoff for up to three seconds while the remote times out.
// A refused connection is not retried.
func BackingOffTCPConnMaker(addr string, timeout time.Duration) CreationFunc {
	return func() (io.ReadWriteCloser, error) {
		var conn net.Conn
		op := func() error {
			var err error
			conn, err = TCPSetup(addr, timeout)
			if err != nil && strings.Contains(strings.ToLower(err.Error()), "refused") {
				return backoff.Permanent(err)
			}
			return err
		}
		// some remotes do not like being connection thrashed
		err := backoff.Retry(op, &backoff.ExponentialBackOff{
			InitialInterval:     25 * time.Millisecond,
			RandomizationFactor: 0.,
			Multiplier:          2.,
			MaxInterval:         1 * time.Second,
			MaxElapsedTime:      3 * time.Second,
			Clock:               backoff.SystemClock})
		if err != nil {
			return nil, err
		}
		return conn, nil
	}
}

// SerialConnMaker returns a CreationFunc that opens a serial port
func SerialConnMaker(conf *serial.Config) CreationFunc {
	return func() (io.ReadWriteCloser, error) {
		return serial.OpenPort(conf)
	}
}
