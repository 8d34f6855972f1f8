package usbtmc

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/google/gousb"
	"go.uber.org/multierr"

	"github.jpl.nasa.gov/bdube/paxsample/comm"
)

// ErrNotFound is generated when no attached device matches
var ErrNotFound = errors.New("no matching USB device attached")

// DeviceInfo describes an attached device
type DeviceInfo struct {
	VendorID, ProductID uint16
	Manufacturer        string
	Product             string
	Serial              string

	// Available is false if the device's interface could not be claimed,
	// e.g. because another program holds it
	Available bool
}

func matcher(vid uint16, pids []uint16) func(*gousb.DeviceDesc) bool {
	return func(desc *gousb.DeviceDesc) bool {
		if desc.Vendor != gousb.ID(vid) {
			return false
		}
		for _, pid := range pids {
			if desc.Product == gousb.ID(pid) {
				return true
			}
		}
		return false
	}
}

// Find lists attached devices with the given vendor ID and any of the product IDs
func Find(vid uint16, pids ...uint16) ([]DeviceInfo, error) {
	ctx := gousb.NewContext()
	defer ctx.Close()
	devs, err := ctx.OpenDevices(matcher(vid, pids))
	if err != nil && len(devs) == 0 {
		return nil, err
	}
	out := make([]DeviceInfo, 0, len(devs))
	for _, dev := range devs {
		info := DeviceInfo{VendorID: vid, ProductID: uint16(dev.Desc.Product)}
		info.Manufacturer, _ = dev.Manufacturer()
		info.Product, _ = dev.Product()
		info.Serial, _ = dev.SerialNumber()
		dev.SetAutoDetach(true)
		if _, done, err := dev.DefaultInterface(); err == nil {
			info.Available = true
			done()
		}
		dev.Close()
		out = append(out, info)
	}
	return out, nil
}

// USBDevice is a struct hiding the details of USB and exposing an io.ReadWriteCloser interface
type USBDevice struct {
	tagger   BTagger
	in       *gousb.InEndpoint
	out      *gousb.OutEndpoint
	ctx      *gousb.Context
	device   *gousb.Device
	done     func()
	deadline time.Time

	// Terminator, if not nil, asks the device to end bulk in transfers on it
	Terminator *byte
}

// Open opens the device with the given vendor and product ID.  If serial is
// not empty, the device must also have that serial number.
func Open(vid, pid uint16, serial string) (*USBDevice, error) {
	d := &USBDevice{tagger: newBTagGen(), ctx: gousb.NewContext()}
	devs, err := d.ctx.OpenDevices(matcher(vid, []uint16{pid}))
	if err != nil && len(devs) == 0 {
		d.ctx.Close()
		return nil, err
	}
	for _, dev := range devs {
		if d.device != nil {
			dev.Close()
			continue
		}
		sn, _ := dev.SerialNumber()
		if serial == "" || sn == serial {
			d.device = dev
			continue
		}
		dev.Close()
	}
	if d.device == nil {
		d.ctx.Close()
		return nil, ErrNotFound
	}
	if err = d.claim(); err != nil {
		d.Close()
		return nil, err
	}
	return d, nil
}

func (d *USBDevice) claim() error {
	err := d.device.SetAutoDetach(true)
	if err != nil {
		return err
	}
	iface, done, err := d.device.DefaultInterface()
	if err != nil {
		return err
	}
	d.done = done
	for _, ep := range iface.Setting.Endpoints {
		if ep.TransferType != gousb.TransferTypeBulk {
			continue
		}
		switch {
		case ep.Direction == gousb.EndpointDirectionIn && d.in == nil:
			d.in, err = iface.InEndpoint(ep.Number)
		case ep.Direction == gousb.EndpointDirectionOut && d.out == nil:
			d.out, err = iface.OutEndpoint(ep.Number)
		}
		if err != nil {
			return err
		}
	}
	if d.in == nil || d.out == nil {
		return fmt.Errorf("device %s has no bulk in/out endpoint pair", d.device)
	}
	return nil
}

// Maker returns a comm.CreationFunc that opens the device, retrying briefly
// while it is busy (e.g. re-enumerating after a reset)
func Maker(vid, pid uint16, serial string) comm.CreationFunc {
	return func() (io.ReadWriteCloser, error) {
		var dev *USBDevice
		op := func() error {
			var err error
			dev, err = Open(vid, pid, serial)
			if err != nil && !errors.Is(err, gousb.ErrorBusy) {
				return backoff.Permanent(err)
			}
			return err
		}
		err := backoff.Retry(op, &backoff.ExponentialBackOff{
			InitialInterval:     50 * time.Millisecond,
			RandomizationFactor: 0.,
			Multiplier:          2.,
			MaxInterval:         500 * time.Millisecond,
			MaxElapsedTime:      2 * time.Second,
			Clock:               backoff.SystemClock})
		if err != nil {
			return nil, err
		}
		return dev, nil
	}
}

// SetDeadline bounds every following transfer; the zero time means no deadline
func (d *USBDevice) SetDeadline(t time.Time) error {
	d.deadline = t
	return nil
}

func (d *USBDevice) opContext() (context.Context, context.CancelFunc) {
	if d.deadline.IsZero() {
		return context.WithCancel(context.Background())
	}
	return context.WithDeadline(context.Background(), d.deadline)
}

// Read requests up to len(p) bytes from the device and copies the payload into p
func (d *USBDevice) Read(p []byte) (int, error) {
	if d.device == nil {
		return 0, comm.ErrNotConnected
	}
	ctx, cancel := d.opContext()
	defer cancel()
	tag := d.tagger.nextbTag()
	hdr := encBulkInHeader(tag, len(p), d.Terminator)
	if _, err := d.out.WriteContext(ctx, hdr[:]); err != nil {
		return 0, err
	}
	buf := make([]byte, len(p)+headerSize+3)
	n, err := d.in.ReadContext(ctx, buf)
	if err != nil {
		return 0, err
	}
	data, err := decBulkInResponse(tag, buf[:n])
	if err != nil {
		return 0, err
	}
	return copy(p, data), nil
}

// Write sends p to the device as a single end-of-message transfer
func (d *USBDevice) Write(p []byte) (int, error) {
	if d.device == nil {
		return 0, comm.ErrNotConnected
	}
	ctx, cancel := d.opContext()
	defer cancel()
	hdr := encBulkOutHeader(d.tagger.nextbTag(), len(p))
	b := pad4(append(hdr[:], p...))
	if _, err := d.out.WriteContext(ctx, b); err != nil {
		return 0, err
	}
	return len(p), nil
}

// Close releases the interface and closes the device
func (d *USBDevice) Close() error {
	var err error
	if d.done != nil {
		d.done()
		d.done = nil
	}
	if d.device != nil {
		err = multierr.Append(err, d.device.Close())
		d.device = nil
	}
	if d.ctx != nil {
		err = multierr.Append(err, d.ctx.Close())
		d.ctx = nil
	}
	return err
}
