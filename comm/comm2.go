package comm

import (
	"io"
	"sync"
	"time"

	"go.uber.org/multierr"
)

// Pool is a communication pool which holds one or more connections to a device
// that will be closed if they are not in use, and re-opened as needed.
// it is concurrent safe.  Pools must be created with NewPool.
type Pool struct {
	maxSize int                     // maximum number of connections, == cap(conns)
	onLease int                     // number of connections given out or being made, <= maxSize
	timeout time.Duration           // time after onLease == 0 to free all connections
	conns   chan io.ReadWriteCloser // idle connections
	timer   *time.Timer             // reclaims idle connections, nil until the first Put
	maker   CreationFunc
	closed  bool

	mu sync.Mutex
}

// NewPool creates a pool of up to maxSize connections made by maker.  Idle
// connections are closed once none have been in use for timeout.
func NewPool(maxSize int, timeout time.Duration, maker CreationFunc) *Pool {
	return &Pool{
		maxSize: maxSize,
		timeout: timeout,
		conns:   make(chan io.ReadWriteCloser, maxSize),
		maker:   maker,
	}
}

// Get retrieves a communicator from the pool, blocking until one is
// available if all are in use.  It is guaranteed that there is no contestion
// for the ReadWriter.  The consumer should not attempt to cast it to its
// concrete type and use it outside this interface.
//
// When done with the communicator, return it with Put(), or discard it with
// Destroy() if it has become no good (e.g., all calls error).
//
// If the error from Get is not nil, you must not return it to the pool.
func (p *Pool) Get() (io.ReadWriter, error) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil, ErrPoolClosed
	}
	if p.timer != nil {
		p.timer.Stop()
	}
	select {
	case c := <-p.conns:
		p.onLease++
		p.mu.Unlock()
		return c, nil
	default:
	}
	if p.onLease < p.maxSize {
		// reserve the slot before making, so the lock is not held while
		// the maker retries
		p.onLease++
		p.mu.Unlock()
		c, err := p.maker()
		if err != nil {
			p.mu.Lock()
			p.onLease--
			p.mu.Unlock()
			return nil, err
		}
		return c, nil
	}
	p.mu.Unlock()
	c := <-p.conns
	p.mu.Lock()
	p.onLease++
	p.mu.Unlock()
	return c, nil
}

// Put restores a communicator to the pool.  It may be reused, or will be
// automatically freed after all connections are returned and the timout
// has elapsed.
func (p *Pool) Put(rw io.ReadWriter) {
	rwc := rw.(io.ReadWriteCloser)
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onLease--
	if p.closed {
		rwc.Close()
		return
	}
	p.conns <- rwc
	if p.onLease == 0 {
		p.startReclaim()
	}
}

// Destroy immediately frees a communicator from the pool.  This should be used
// instead of Put if the communicator has gone bad.
func (p *Pool) Destroy(rw io.ReadWriter) error {
	rwc := rw.(io.ReadWriteCloser)
	p.mu.Lock()
	p.onLease--
	p.mu.Unlock()
	return rwc.Close()
}

// ReturnWithError returns the communicator with Put if err is nil, and
// Destroys it otherwise.  Errors reported by the remote itself should not be
// passed here, only failures of the connection.
func (p *Pool) ReturnWithError(rw io.ReadWriter, err error) {
	if err != nil {
		p.Destroy(rw)
		return
	}
	p.Put(rw)
}

// Close frees all idle connections and prevents new ones from being made.
// Connections on lease are closed when they are returned.
func (p *Pool) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true
	if p.timer != nil {
		p.timer.Stop()
	}
	return p.drain()
}

// Size returns the number of connections in the pool, or given out from it
func (p *Pool) Size() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.conns) + p.onLease
}

// Active returns the number of connections owned by the pool that are currently
// given out
func (p *Pool) Active() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.onLease
}

// startReclaim arms the timer that closes idle connections.  p.mu must be held.
func (p *Pool) startReclaim() {
	if p.timer != nil {
		p.timer.Stop()
	}
	p.timer = time.AfterFunc(p.timeout, func() {
		p.mu.Lock()
		defer p.mu.Unlock()
		if p.onLease == 0 {
			p.drain()
		}
	})
}

// drain closes every idle connection.  p.mu must be held.
func (p *Pool) drain() error {
	var err error
	for {
		select {
		case c := <-p.conns:
			err = multierr.Append(err, c.Close())
		default:
			return err
		}
	}
}
