// Package polarimeter provides type and interface definitions for polarimeters
// such as the Thorlabs PAX series.  Drivers implement Driver and Instrument;
// consumers (the interactive shell) only ever see these interfaces.
package polarimeter

import (
	"errors"
	"io"
)

// Identity is what an instrument reports about itself
type Identity struct {
	Manufacturer string `yaml:"manufacturer"`
	Name         string `yaml:"name"`
	Serial       string `yaml:"serial"`
	Firmware     string `yaml:"firmware"`
}

// ResourceInfo describes one instrument seen during discovery
type ResourceInfo struct {
	// Name is the model name, e.g. PAX1000IR2
	Name string

	// Serial is the serial number
	Serial string

	// Available is false if the instrument is in use by another session
	Available bool
}

// Limits are the bounds reported by the driver for a setting
type Limits struct {
	Min, Max float64
}

// Contains is true if Min <= x <= Max
func (l Limits) Contains(x float64) bool {
	return x >= l.Min && x <= l.Max
}

// ScanID is a handle to a scan held by the driver.  It is valid until
// released with Instrument.ReleaseScan.
type ScanID uint32

// Driver is the service boundary to a polarimeter driver.  Enumeration
// results are indexed 0..FindResources()-1 and are only valid until the next
// call to FindResources.
type Driver interface {
	// FindResources scans for instruments and returns how many were found
	FindResources() (int, error)

	// ResourceInfo returns metadata for the i-th instrument found
	ResourceInfo(i int) (ResourceInfo, error)

	// ResourceName returns the resource string used to open the i-th instrument
	ResourceName(i int) (string, error)

	// Open opens an exclusive session to the instrument named by resource.
	// idQuery verifies the instrument identifies as a supported model,
	// reset restores the instrument's default settings.
	Open(resource string, idQuery, reset bool) (Instrument, error)

	// ErrorMessage describes err for display.  inst may be nil if no
	// session is open.
	ErrorMessage(inst Instrument, err error) string
}

// Instrument is an open session to a polarimeter.  It is not concurrent safe;
// a session has a single owner.
type Instrument interface {
	io.Closer

	// Identify queries the instrument name, serial number and firmware revision
	Identify() (Identity, error)

	// DriverRevision returns the revision of the driver serving the session
	DriverRevision() (string, error)

	// MeasurementMode returns the current measurement mode
	MeasurementMode() (MeasurementMode, error)

	// SetMeasurementMode changes the measurement mode
	SetMeasurementMode(MeasurementMode) error

	// BasicScanRate returns the basic scan rate in 1/s
	BasicScanRate() (float64, error)

	// SetBasicScanRate sets the basic scan rate in 1/s
	SetBasicScanRate(float64) error

	// BasicScanRateLimits returns the allowed basic scan rates in 1/s
	BasicScanRateLimits() (Limits, error)

	// PowerRange returns the upper bound of the input power range in W
	PowerRange() (float64, error)

	// SetPowerRange sets the upper bound of the input power range in W,
	// disabling auto ranging
	SetPowerRange(float64) error

	// PowerAutoRange returns true if the power range is chosen automatically
	PowerAutoRange() (bool, error)

	// SetPowerAutoRange enables or disables auto ranging
	SetPowerAutoRange(bool) error

	// PowerRangeLimits returns the allowed power range bounds in W
	PowerRangeLimits() (Limits, error)

	// Wavelength returns the calibration wavelength in m
	Wavelength() (float64, error)

	// SetWavelength sets the calibration wavelength in m
	SetWavelength(float64) error

	// LatestScan acquires the most recent completed scan.  The scan must be
	// released with ReleaseScan.
	LatestScan() (ScanID, error)

	// Polarization returns the azimuth and ellipticity of a scan in radians
	Polarization(ScanID) (azimuth, ellipticity float64, err error)

	// DOP returns the degree of polarization, degree of linear polarization
	// and degree of circular polarization of a scan as unit ratios
	DOP(ScanID) (dop, dolp, docp float64, err error)

	// Power returns the total, polarized and unpolarized power of a scan in W
	Power(ScanID) (total, polarized, unpolarized float64, err error)

	// ReleaseScan returns a scan to the driver
	ReleaseScan(ScanID) error
}

// Coder is implemented by errors which carry a driver status code
type Coder interface {
	Code() int
}

// Code extracts the driver status code from err, if it carries one
func Code(err error) (int, bool) {
	var c Coder
	if errors.As(err, &c) {
		return c.Code(), true
	}
	return 0, false
}
