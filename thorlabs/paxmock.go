package thorlabs

import (
	"math"
	"math/rand"
	"sync"

	"github.com/pkg/errors"

	"github.jpl.nasa.gov/bdube/paxsample/polarimeter"
	"github.jpl.nasa.gov/bdube/paxsample/scpi"
	"github.jpl.nasa.gov/bdube/paxsample/visa"
)

const (
	mockJitter      = 1e-3 // relative jitter on simulated readings
	mockRevision    = "3.2.1"
	mockWavelength  = 1550e-9
	mockPowerRange  = 10e-3
	mockScanRate    = 60.
	mockTotalPower  = 1.2e-3
	mockAzimuth     = 0.5236 // 30 degrees
	mockEllipticity = 0.0873 // 5 degrees
	mockDOP         = 0.985
)

var (
	errOutOfRange = scpi.Error{Number: -222, Message: "Data out of range"}
	errStale      = scpi.Error{Number: -230, Message: "Data corrupt or stale"}

	mockRateLimits       = polarimeter.Limits{Min: 10, Max: 400}
	mockPowerLimits      = polarimeter.Limits{Min: 10e-6, Max: 10e-3}
	mockWavelengthLimits = polarimeter.Limits{Min: 1300e-9, Max: 1700e-9}
)

func randN1to1() float64 {
	return rand.Float64()*2 - 1 // [0,1] => [0,2] => [-1,1]
}

func jitter(x float64) float64 {
	return x * (1 + randN1to1()*mockJitter)
}

// MockDevice describes one simulated instrument
type MockDevice struct {
	Name      string `yaml:"name"`
	Serial    string `yaml:"serial"`
	Firmware  string `yaml:"firmware"`
	Resource  string `yaml:"resource"`
	Available bool   `yaml:"available"`
}

// ResourceName is Resource, or a USB resource built from Serial if empty
func (d MockDevice) ResourceName() string {
	if d.Resource != "" {
		return d.Resource
	}
	return visa.NewUSBResource(TLVID, PAX1000PID, d.Serial).String()
}

// DefaultMockDevice is what MockPAXDriver simulates if it has no Devices
var DefaultMockDevice = MockDevice{
	Name:      "PAX1000",
	Serial:    "M00123456",
	Firmware:  "1.2.3",
	Available: true,
}

// MockPAXDriver is a driver for simulated PAX1000s
type MockPAXDriver struct {
	// Devices are the simulated instruments; DefaultMockDevice if empty
	Devices []MockDevice

	// Revision is the reported driver revision, 3.2.1 if empty
	Revision string

	// MaxScans bounds the unreleased scans of a session
	MaxScans int

	searched bool
}

// NewMockPAXDriver returns a driver simulating the given devices
func NewMockPAXDriver(devs ...MockDevice) *MockPAXDriver {
	return &MockPAXDriver{Devices: devs}
}

func (d *MockPAXDriver) devices() []MockDevice {
	if len(d.Devices) == 0 {
		return []MockDevice{DefaultMockDevice}
	}
	return d.Devices
}

// FindResources returns the number of simulated devices
func (d *MockPAXDriver) FindResources() (int, error) {
	d.searched = true
	return len(d.devices()), nil
}

func (d *MockPAXDriver) entry(i int) (MockDevice, error) {
	devs := d.devices()
	if !d.searched || i < 0 || i >= len(devs) {
		return MockDevice{}, errors.Wrapf(visa.ErrorInvalidParameter, "no resource %d", i)
	}
	return devs[i], nil
}

// ResourceInfo returns the metadata of the i-th simulated device
func (d *MockPAXDriver) ResourceInfo(i int) (polarimeter.ResourceInfo, error) {
	dev, err := d.entry(i)
	return polarimeter.ResourceInfo{Name: dev.Name, Serial: dev.Serial, Available: dev.Available}, err
}

// ResourceName returns the resource name of the i-th simulated device
func (d *MockPAXDriver) ResourceName(i int) (string, error) {
	dev, err := d.entry(i)
	if err != nil {
		return "", err
	}
	return dev.ResourceName(), nil
}

// Open opens a session to the simulated device named rsrc
func (d *MockPAXDriver) Open(rsrc string, idQuery, reset bool) (polarimeter.Instrument, error) {
	if _, err := visa.ParseResource(rsrc); err != nil {
		return nil, errors.Wrapf(err, "opening %q", rsrc)
	}
	for _, dev := range d.devices() {
		if dev.ResourceName() != rsrc {
			continue
		}
		if !dev.Available {
			return nil, errors.Wrapf(visa.ErrorResourceBusy, "opening %q", rsrc)
		}
		rev := d.Revision
		if rev == "" {
			rev = mockRevision
		}
		return NewMockPAX(dev, rev, d.MaxScans), nil
	}
	return nil, errors.Wrapf(visa.ErrorResourceNotFound, "opening %q", rsrc)
}

// ErrorMessage describes err
func (d *MockPAXDriver) ErrorMessage(inst polarimeter.Instrument, err error) string {
	return errorMessage(err)
}

// MockPAX is a simulated PAX1000 session.  Settings are kept in memory and
// scans are fabricated from fixed values with a small jitter.
type MockPAX struct {
	sync.Mutex

	dev        MockDevice
	revision   string
	mode       polarimeter.MeasurementMode
	rate       float64
	powerRange float64
	autoRange  bool
	wavelength float64
	scans      scanTable
	closed     bool
}

// NewMockPAX returns a session to dev in its reset state
func NewMockPAX(dev MockDevice, revision string, maxScans int) *MockPAX {
	return &MockPAX{
		dev:        dev,
		revision:   revision,
		mode:       polarimeter.Full1024,
		rate:       mockScanRate,
		powerRange: mockPowerRange,
		autoRange:  true,
		wavelength: mockWavelength,
		scans:      newScanTable(maxScans),
	}
}

func (m *MockPAX) check() error {
	if m.closed {
		return visa.ErrorInvalidObject
	}
	return nil
}

// Identify returns the simulated identity
func (m *MockPAX) Identify() (polarimeter.Identity, error) {
	m.Lock()
	defer m.Unlock()
	return polarimeter.Identity{
		Manufacturer: "Thorlabs",
		Name:         m.dev.Name,
		Serial:       m.dev.Serial,
		Firmware:     m.dev.Firmware}, m.check()
}

// DriverRevision returns the simulated driver revision
func (m *MockPAX) DriverRevision() (string, error) {
	m.Lock()
	defer m.Unlock()
	return m.revision, m.check()
}

// MeasurementMode returns the measurement mode
func (m *MockPAX) MeasurementMode() (polarimeter.MeasurementMode, error) {
	m.Lock()
	defer m.Unlock()
	return m.mode, m.check()
}

// SetMeasurementMode changes the measurement mode
func (m *MockPAX) SetMeasurementMode(mode polarimeter.MeasurementMode) error {
	m.Lock()
	defer m.Unlock()
	if err := m.check(); err != nil {
		return err
	}
	if !mode.Valid() {
		return errors.Wrap(errOutOfRange, "SENS:CALC:MOD")
	}
	m.mode = mode
	return nil
}

// BasicScanRate returns the basic scan rate in 1/s
func (m *MockPAX) BasicScanRate() (float64, error) {
	m.Lock()
	defer m.Unlock()
	return m.rate, m.check()
}

// SetBasicScanRate sets the basic scan rate in 1/s
func (m *MockPAX) SetBasicScanRate(r float64) error {
	m.Lock()
	defer m.Unlock()
	if err := m.check(); err != nil {
		return err
	}
	if !mockRateLimits.Contains(r) {
		return errors.Wrap(errOutOfRange, "INP:ROT:VEL")
	}
	m.rate = r
	return nil
}

// BasicScanRateLimits returns the allowed basic scan rates
func (m *MockPAX) BasicScanRateLimits() (polarimeter.Limits, error) {
	m.Lock()
	defer m.Unlock()
	return mockRateLimits, m.check()
}

// PowerRange returns the upper bound of the power range in W
func (m *MockPAX) PowerRange() (float64, error) {
	m.Lock()
	defer m.Unlock()
	return m.powerRange, m.check()
}

// SetPowerRange sets the upper bound of the power range in W and turns
// auto ranging off
func (m *MockPAX) SetPowerRange(w float64) error {
	m.Lock()
	defer m.Unlock()
	if err := m.check(); err != nil {
		return err
	}
	if !mockPowerLimits.Contains(w) {
		return errors.Wrap(errOutOfRange, "SENS:POW:RANG:UPP")
	}
	m.powerRange = w
	m.autoRange = false
	return nil
}

// PowerAutoRange returns true if auto ranging is on
func (m *MockPAX) PowerAutoRange() (bool, error) {
	m.Lock()
	defer m.Unlock()
	return m.autoRange, m.check()
}

// SetPowerAutoRange turns auto ranging on or off
func (m *MockPAX) SetPowerAutoRange(on bool) error {
	m.Lock()
	defer m.Unlock()
	if err := m.check(); err != nil {
		return err
	}
	m.autoRange = on
	return nil
}

// PowerRangeLimits returns the allowed power ranges in W
func (m *MockPAX) PowerRangeLimits() (polarimeter.Limits, error) {
	m.Lock()
	defer m.Unlock()
	return mockPowerLimits, m.check()
}

// Wavelength returns the calibration wavelength in m
func (m *MockPAX) Wavelength() (float64, error) {
	m.Lock()
	defer m.Unlock()
	return m.wavelength, m.check()
}

// SetWavelength sets the calibration wavelength in m
func (m *MockPAX) SetWavelength(w float64) error {
	m.Lock()
	defer m.Unlock()
	if err := m.check(); err != nil {
		return err
	}
	if !mockWavelengthLimits.Contains(w) {
		return errors.Wrap(errOutOfRange, "SENS:CORR:WAV")
	}
	m.wavelength = w
	return nil
}

// LatestScan fabricates a scan in the current mode.  In Idle mode the
// device has no data.
func (m *MockPAX) LatestScan() (polarimeter.ScanID, error) {
	m.Lock()
	defer m.Unlock()
	if err := m.check(); err != nil {
		return 0, err
	}
	if m.mode == polarimeter.Idle {
		return 0, errors.Wrap(errStale, "SENS:DATA:LAT?")
	}
	dop := math.Min(jitter(mockDOP), 1)
	scan := Scan{
		Revolutions:    1,
		Mode:           m.mode,
		RevolutionTime: 1 / m.rate,
		Azimuth:        jitter(mockAzimuth),
		Ellipticity:    jitter(mockEllipticity),
		DOP:            dop,
		Power:          math.Min(jitter(mockTotalPower), m.powerRange),
	}
	return m.scans.add(scan)
}

func (m *MockPAX) scan(id polarimeter.ScanID) (Scan, error) {
	m.Lock()
	defer m.Unlock()
	if err := m.check(); err != nil {
		return Scan{}, err
	}
	return m.scans.get(id)
}

// Polarization returns the azimuth and ellipticity of a scan in radians
func (m *MockPAX) Polarization(id polarimeter.ScanID) (float64, float64, error) {
	s, err := m.scan(id)
	return s.Azimuth, s.Ellipticity, err
}

// DOP returns the degrees of total, linear and circular polarization
func (m *MockPAX) DOP(id polarimeter.ScanID) (float64, float64, float64, error) {
	s, err := m.scan(id)
	if err != nil {
		return 0, 0, 0, err
	}
	st := s.Stokes()
	return s.DOP, st.DOLP, st.DOCP, nil
}

// Power returns the total, polarized and unpolarized power in W
func (m *MockPAX) Power(id polarimeter.ScanID) (float64, float64, float64, error) {
	s, err := m.scan(id)
	if err != nil {
		return 0, 0, 0, err
	}
	return s.Power, s.Power * s.DOP, s.Power * (1 - s.DOP), nil
}

// ReleaseScan discards a held scan
func (m *MockPAX) ReleaseScan(id polarimeter.ScanID) error {
	m.Lock()
	defer m.Unlock()
	if err := m.check(); err != nil {
		return err
	}
	return m.scans.release(id)
}

// Held is the number of scans not yet released
func (m *MockPAX) Held() int {
	m.Lock()
	defer m.Unlock()
	return len(m.scans.scans)
}

// Close ends the session.  Closing twice is an error.
func (m *MockPAX) Close() error {
	m.Lock()
	defer m.Unlock()
	if err := m.check(); err != nil {
		return err
	}
	m.closed = true
	return nil
}
