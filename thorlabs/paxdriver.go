package thorlabs

import (
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/multierr"

	"github.jpl.nasa.gov/bdube/paxsample/comm"
	"github.jpl.nasa.gov/bdube/paxsample/polarimeter"
	"github.jpl.nasa.gov/bdube/paxsample/scpi"
	"github.jpl.nasa.gov/bdube/paxsample/usbtmc"
	"github.jpl.nasa.gov/bdube/paxsample/visa"
)

// PoolIdle is how long a session's connection may sit unused before it is
// closed and transparently reopened
var PoolIdle = 10 * time.Minute

type found struct {
	name string
	info polarimeter.ResourceInfo
	err  error
}

// PAXDriver discovers and opens PAX1000 polarimeters attached over USB or
// reachable at configured VISA resources
type PAXDriver struct {
	// Timeout bounds each exchange with an open session
	Timeout time.Duration

	// DiscoveryTimeout bounds each exchange while probing Resources
	DiscoveryTimeout time.Duration

	// USB enables searching the USB bus
	USB bool

	// Resources are VISA resource names probed during discovery in addition
	// to the USB search
	Resources []string

	// Handshaking queries the error queue after every command
	Handshaking bool

	// MinInterval paces commands to the device
	MinInterval time.Duration

	// MaxScans bounds the unreleased scans of a session
	MaxScans int

	// Logger, if not nil, traces all traffic
	Logger *log.Logger

	// find enumerates USB devices; usbtmc.Find if nil
	find func(vid uint16, pids ...uint16) ([]usbtmc.DeviceInfo, error)

	found []found
}

// NewPAXDriver returns a driver searching USB with the default timeouts.
// Handshaking is on, so commands the instrument rejects return an error.
func NewPAXDriver() *PAXDriver {
	return &PAXDriver{
		Timeout:          5000 * time.Millisecond,
		DiscoveryTimeout: 500 * time.Millisecond,
		USB:              true,
		Handshaking:      true,
	}
}

// FindResources searches for instruments.  The results replace those of
// any previous search.
func (d *PAXDriver) FindResources() (int, error) {
	d.found = d.found[:0]
	if d.USB {
		find := d.find
		if find == nil {
			find = usbtmc.Find
		}
		devs, err := find(TLVID, PAXPIDs...)
		if err != nil {
			return 0, errors.Wrap(translate(err), "searching USB")
		}
		for _, dev := range devs {
			d.found = append(d.found, found{
				name: visa.NewUSBResource(dev.VendorID, dev.ProductID, dev.Serial).String(),
				info: polarimeter.ResourceInfo{
					Name:      dev.Product,
					Serial:    dev.Serial,
					Available: dev.Available},
			})
		}
	}
	for _, rsrc := range d.Resources {
		f := found{name: rsrc}
		f.info, f.err = d.probe(rsrc)
		if d.Logger != nil && f.err != nil {
			d.Logger.Printf("probing %s: %v", rsrc, f.err)
		}
		d.found = append(d.found, f)
	}
	return len(d.found), nil
}

func (d *PAXDriver) probe(rsrc string) (polarimeter.ResourceInfo, error) {
	pax, err := d.open(rsrc, d.DiscoveryTimeout)
	if err != nil {
		return polarimeter.ResourceInfo{}, err
	}
	defer pax.Close()
	id, err := pax.Identify()
	if err != nil {
		return polarimeter.ResourceInfo{}, err
	}
	return polarimeter.ResourceInfo{Name: id.Name, Serial: id.Serial, Available: true}, nil
}

func (d *PAXDriver) entry(i int) (found, error) {
	if i < 0 || i >= len(d.found) {
		return found{}, errors.Wrapf(visa.ErrorInvalidParameter, "no resource %d", i)
	}
	return d.found[i], nil
}

// ResourceInfo returns the metadata of the i-th instrument found
func (d *PAXDriver) ResourceInfo(i int) (polarimeter.ResourceInfo, error) {
	f, err := d.entry(i)
	if err != nil {
		return polarimeter.ResourceInfo{}, err
	}
	return f.info, f.err
}

// ResourceName returns the VISA resource name of the i-th instrument found
func (d *PAXDriver) ResourceName(i int) (string, error) {
	f, err := d.entry(i)
	return f.name, err
}

// open connects to rsrc without touching the instrument
func (d *PAXDriver) open(rsrc string, timeout time.Duration) (*PAX1000, error) {
	r, err := visa.ParseResource(rsrc)
	if err != nil {
		return nil, errors.Wrapf(err, "opening %q", rsrc)
	}
	maker, err := visa.Maker(r, timeout)
	if err != nil {
		return nil, errors.Wrapf(err, "opening %q", rsrc)
	}
	s := scpi.SCPI{
		Pool:        comm.NewPool(1, PoolIdle, maker),
		Handshaking: d.Handshaking,
		Timeout:     timeout,
		Limiter:     scpi.MinInterval(d.MinInterval),
		Logger:      d.Logger,
	}
	return NewPAX1000(s, d.MaxScans), nil
}

// Open opens a session to rsrc.  With idQuery, the instrument must identify
// as a PAX.  With reset, it is restored to its default settings.
func (d *PAXDriver) Open(rsrc string, idQuery, reset bool) (polarimeter.Instrument, error) {
	pax, err := d.open(rsrc, d.Timeout)
	if err != nil {
		return nil, err
	}
	fail := func(err error) (polarimeter.Instrument, error) {
		return nil, multierr.Append(err, pax.Close())
	}
	// *RST leaves the error queue alone, and with handshaking a stale entry
	// would fail the first command of the session
	if err := d.drain(rsrc, pax); err != nil {
		return fail(err)
	}
	if idQuery {
		id, err := pax.Identify()
		if err != nil {
			return fail(err)
		}
		if !strings.HasPrefix(id.Name, "PAX") {
			return fail(errors.Wrapf(visa.ErrorInstrumentIDQuery, "%s is not a PAX polarimeter", id.Name))
		}
	}
	if reset {
		if err := pax.Reset(); err != nil {
			return fail(err)
		}
	}
	return pax, nil
}

// drain empties the error queue of the instrument, logging what it held
func (d *PAXDriver) drain(rsrc string, pax *PAX1000) error {
	for _, err := range pax.AllErrors() {
		if _, ok := err.(scpi.Error); !ok {
			return wrap(err, fmt.Sprintf("opening %q", rsrc))
		}
		if d.Logger != nil {
			d.Logger.Printf("%s: discarded queued error %v", rsrc, err)
		}
	}
	return nil
}

// ErrorMessage describes err.  inst is not needed, PAX error codes are
// the same for every session.
func (d *PAXDriver) ErrorMessage(inst polarimeter.Instrument, err error) string {
	return errorMessage(err)
}
