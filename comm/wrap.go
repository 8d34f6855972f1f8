package comm

import (
	"bufio"
	"io"
	"time"
)

// Terminator wraps a connection, appending the Tx terminator to writes and
// reading up to and stripping the Rx terminator
type Terminator struct {
	rw     io.ReadWriter
	br     *bufio.Reader
	rx, tx byte
}

// NewTerminator wraps rw with the given receive and transmit terminators
func NewTerminator(rw io.ReadWriter, rx, tx byte) *Terminator {
	return &Terminator{rw: rw, br: bufio.NewReader(rw), rx: rx, tx: tx}
}

// Write writes p followed by the Tx terminator.  The returned count excludes
// the terminator.
func (t *Terminator) Write(p []byte) (int, error) {
	buf := make([]byte, 0, len(p)+1)
	buf = append(buf, p...)
	buf = append(buf, t.tx)
	n, err := t.rw.Write(buf)
	if n > len(p) {
		n = len(p)
	}
	return n, err
}

// Read reads one message, up to the Rx terminator, into p.  The terminator is
// not copied.  If p is too small the message is truncated and
// io.ErrShortBuffer returned.
func (t *Terminator) Read(p []byte) (int, error) {
	msg, err := t.br.ReadBytes(t.rx)
	if err != nil {
		if len(msg) > 0 && err == io.EOF {
			err = ErrTerminatorNotFound
		}
		return copy(p, msg), err
	}
	msg = msg[:len(msg)-1]
	n := copy(p, msg)
	if n < len(msg) {
		return n, io.ErrShortBuffer
	}
	return n, nil
}

type deadliner interface {
	SetDeadline(time.Time) error
}

// Timeout wraps a connection, setting a fresh deadline before every Read and
// Write
type Timeout struct {
	rw      io.ReadWriter
	d       deadliner
	timeout time.Duration
}

// NewTimeout wraps rw so each operation must finish within timeout.  If rw
// cannot set deadlines (e.g. serial ports, which time out on their own
// configuration) it is returned as-is.
func NewTimeout(rw io.ReadWriter, timeout time.Duration) (io.ReadWriter, error) {
	d, ok := rw.(deadliner)
	if !ok || timeout <= 0 {
		return rw, nil
	}
	return &Timeout{rw: rw, d: d, timeout: timeout}, nil
}

// Read satisfies io.Reader
func (t *Timeout) Read(p []byte) (int, error) {
	if err := t.d.SetDeadline(time.Now().Add(t.timeout)); err != nil {
		return 0, err
	}
	return t.rw.Read(p)
}

// Write satisfies io.Writer
func (t *Timeout) Write(p []byte) (int, error) {
	if err := t.d.SetDeadline(time.Now().Add(t.timeout)); err != nil {
		return 0, err
	}
	return t.rw.Write(p)
}
