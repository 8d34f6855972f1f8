package thorlabs

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"

	"github.jpl.nasa.gov/bdube/paxsample/polarimeter"
	"github.jpl.nasa.gov/bdube/paxsample/scpi"
	"github.jpl.nasa.gov/bdube/paxsample/util"
	"github.jpl.nasa.gov/bdube/paxsample/visa"
)

// a session holds the connection to the device for its whole life, the pool only reopens it after PoolIdle
const (
	// TLVID is the Thorlabs vendor ID
	TLVID = 0x1313

	// PAX1000PID is the PAX1000 product ID
	PAX1000PID = 0x8031

	// DriverRevision is the revision of this driver
	DriverRevision = "1.0.0"

	// DefaultMaxScans is the number of scans a session may hold unreleased
	DefaultMaxScans = 8

	scanFields = 13
)

// PAXPIDs lists the product IDs searched for during discovery
var PAXPIDs = []uint16{PAX1000PID}

// Scan is one reply to SENS:DATA:LAT?
type Scan struct {
	Revolutions    int
	Timestamp      int
	Mode           polarimeter.MeasurementMode
	Flags          int
	TIARange       int
	ADCMin         float64
	ADCMax         float64
	RevolutionTime float64
	Misadjustment  float64

	// Azimuth (theta) and Ellipticity (eta) in radians
	Azimuth     float64
	Ellipticity float64

	// DOP as a unit ratio
	DOP float64

	// Power is the total power in W
	Power float64
}

// ParseScan parses the comma separated reply to SENS:DATA:LAT?
func ParseScan(s string) (Scan, error) {
	f, err := util.SplitFloats(s)
	if err != nil {
		return Scan{}, err
	}
	if len(f) != scanFields {
		return Scan{}, fmt.Errorf("scan has %d fields, expected %d", len(f), scanFields)
	}
	return Scan{
		Revolutions:    int(f[0]),
		Timestamp:      int(f[1]),
		Mode:           polarimeter.MeasurementMode(f[2]),
		Flags:          int(f[3]),
		TIARange:       int(f[4]),
		ADCMin:         f[5],
		ADCMax:         f[6],
		RevolutionTime: f[7],
		Misadjustment:  f[8],
		Azimuth:        f[9],
		Ellipticity:    f[10],
		DOP:            f[11],
		Power:          f[12],
	}, nil
}

// Stokes derives the Stokes parameters of the scan
func (s Scan) Stokes() polarimeter.Stokes {
	return polarimeter.NewStokes(s.Azimuth, s.Ellipticity, s.DOP, s.Power)
}

// scanTable holds the scans a session has acquired and not yet released
type scanTable struct {
	max   int
	next  polarimeter.ScanID
	scans map[polarimeter.ScanID]Scan
}

func newScanTable(max int) scanTable {
	if max <= 0 {
		max = DefaultMaxScans
	}
	return scanTable{max: max, scans: make(map[polarimeter.ScanID]Scan)}
}

func (t *scanTable) add(s Scan) (polarimeter.ScanID, error) {
	if len(t.scans) >= t.max {
		return 0, visa.ErrorInstrumentScanBuffer
	}
	t.next++
	t.scans[t.next] = s
	return t.next, nil
}

func (t *scanTable) get(id polarimeter.ScanID) (Scan, error) {
	s, ok := t.scans[id]
	if !ok {
		return Scan{}, visa.ErrorInvalidObject
	}
	return s, nil
}

func (t *scanTable) release(id polarimeter.ScanID) error {
	if _, ok := t.scans[id]; !ok {
		return visa.ErrorInvalidObject
	}
	delete(t.scans, id)
	return nil
}

// PAX1000 is a session to a PAX1000 series polarimeter over SCPI
type PAX1000 struct {
	scpi.SCPI

	scans  scanTable
	closed bool
}

// NewPAX1000 creates a session communicating over s.  maxScans bounds the
// number of unreleased scans, DefaultMaxScans if <= 0.
func NewPAX1000(s scpi.SCPI, maxScans int) *PAX1000 {
	return &PAX1000{SCPI: s, scans: newScanTable(maxScans)}
}

// wrap annotates a failure of cmd
func wrap(err error, cmd string) error {
	if err == nil {
		return nil
	}
	return errors.Wrap(translate(err), cmd)
}

func (p *PAX1000) check() error {
	if p.closed {
		return visa.ErrorInvalidObject
	}
	return nil
}

func (p *PAX1000) readFloat(cmd string) (float64, error) {
	if err := p.check(); err != nil {
		return 0, err
	}
	f, err := p.ReadFloat(cmd)
	return f, wrap(err, cmd)
}

func (p *PAX1000) write(cmds ...string) error {
	if err := p.check(); err != nil {
		return err
	}
	return wrap(p.Write(cmds...), strings.Join(cmds, " "))
}

func (p *PAX1000) limits(cmd string) (polarimeter.Limits, error) {
	if err := p.check(); err != nil {
		return polarimeter.Limits{}, err
	}
	f, err := p.ReadFloats(cmd)
	if err != nil {
		return polarimeter.Limits{}, wrap(err, cmd)
	}
	if len(f) != 2 {
		return polarimeter.Limits{}, errors.Wrap(visa.ErrorIO, cmd)
	}
	return polarimeter.Limits{Min: f[0], Max: f[1]}, nil
}

// Reset restores the default settings
func (p *PAX1000) Reset() error {
	return p.write("*RST")
}

// Identify parses the response to *IDN?
func (p *PAX1000) Identify() (polarimeter.Identity, error) {
	if err := p.check(); err != nil {
		return polarimeter.Identity{}, err
	}
	str, err := p.ReadString("*IDN?")
	if err != nil {
		return polarimeter.Identity{}, wrap(err, "*IDN?")
	}
	return parseIDN(str)
}

func parseIDN(s string) (polarimeter.Identity, error) {
	pieces := strings.Split(util.TrimTerminators(s), ",")
	if len(pieces) != 4 {
		return polarimeter.Identity{}, errors.Wrapf(visa.ErrorInstrumentIDQuery, "malformed identity %q", s)
	}
	for i := range pieces {
		pieces[i] = strings.TrimSpace(pieces[i])
	}
	return polarimeter.Identity{
		Manufacturer: pieces[0],
		Name:         pieces[1],
		Serial:       pieces[2],
		Firmware:     pieces[3]}, nil
}

// DriverRevision returns the revision of this driver
func (p *PAX1000) DriverRevision() (string, error) {
	return DriverRevision, p.check()
}

// MeasurementMode returns the current measurement mode
func (p *PAX1000) MeasurementMode() (polarimeter.MeasurementMode, error) {
	if err := p.check(); err != nil {
		return 0, err
	}
	i, err := p.ReadInt("SENS:CALC:MOD?")
	return polarimeter.MeasurementMode(i), wrap(err, "SENS:CALC:MOD?")
}

// SetMeasurementMode changes the measurement mode
func (p *PAX1000) SetMeasurementMode(m polarimeter.MeasurementMode) error {
	return p.write("SENS:CALC:MOD", fmt.Sprint(int(m)))
}

// BasicScanRate returns the rotation speed of the waveplate in 1/s
func (p *PAX1000) BasicScanRate() (float64, error) {
	return p.readFloat("INP:ROT:VEL?")
}

// SetBasicScanRate sets the rotation speed of the waveplate in 1/s
func (p *PAX1000) SetBasicScanRate(r float64) error {
	return p.write("INP:ROT:VEL", fmt.Sprint(r))
}

// BasicScanRateLimits returns the allowed rotation speeds
func (p *PAX1000) BasicScanRateLimits() (polarimeter.Limits, error) {
	return p.limits("INP:ROT:VEL:LIM?")
}

// PowerRange returns the upper bound of the power range in W
func (p *PAX1000) PowerRange() (float64, error) {
	return p.readFloat("SENS:POW:RANG:UPP?")
}

// SetPowerRange sets the upper bound of the power range in W, which turns
// auto ranging off
func (p *PAX1000) SetPowerRange(w float64) error {
	if err := p.write("SENS:POW:RANG:AUTO", "0"); err != nil {
		return err
	}
	return p.write("SENS:POW:RANG:UPP", fmt.Sprint(w))
}

// PowerAutoRange returns true if auto ranging is on
func (p *PAX1000) PowerAutoRange() (bool, error) {
	if err := p.check(); err != nil {
		return false, err
	}
	b, err := p.ReadBool("SENS:POW:RANG:AUTO?")
	return b, wrap(err, "SENS:POW:RANG:AUTO?")
}

// SetPowerAutoRange turns auto ranging on or off
func (p *PAX1000) SetPowerAutoRange(on bool) error {
	v := "0"
	if on {
		v = "1"
	}
	return p.write("SENS:POW:RANG:AUTO", v)
}

// PowerRangeLimits returns the smallest and largest power range in W
func (p *PAX1000) PowerRangeLimits() (polarimeter.Limits, error) {
	min, err := p.readFloat("SENS:POW:RANG:UPP? MIN")
	if err != nil {
		return polarimeter.Limits{}, err
	}
	max, err := p.readFloat("SENS:POW:RANG:UPP? MAX")
	return polarimeter.Limits{Min: min, Max: max}, err
}

// Wavelength returns the calibration wavelength in m
func (p *PAX1000) Wavelength() (float64, error) {
	return p.readFloat("SENS:CORR:WAV?")
}

// SetWavelength sets the calibration wavelength in m
func (p *PAX1000) SetWavelength(m float64) error {
	return p.write("SENS:CORR:WAV", fmt.Sprint(m))
}

// LatestScan fetches the newest scan from the device and holds it until
// ReleaseScan
func (p *PAX1000) LatestScan() (polarimeter.ScanID, error) {
	if err := p.check(); err != nil {
		return 0, err
	}
	str, err := p.ReadString("SENS:DATA:LAT?")
	if err != nil {
		return 0, wrap(err, "SENS:DATA:LAT?")
	}
	scan, err := ParseScan(str)
	if err != nil {
		return 0, errors.Wrap(visa.ErrorIO, err.Error())
	}
	return p.scans.add(scan)
}

// Scan returns a held scan
func (p *PAX1000) Scan(id polarimeter.ScanID) (Scan, error) {
	if err := p.check(); err != nil {
		return Scan{}, err
	}
	return p.scans.get(id)
}

// Polarization returns the azimuth and ellipticity of a scan in radians
func (p *PAX1000) Polarization(id polarimeter.ScanID) (float64, float64, error) {
	s, err := p.Scan(id)
	return s.Azimuth, s.Ellipticity, err
}

// DOP returns the degrees of total, linear and circular polarization
func (p *PAX1000) DOP(id polarimeter.ScanID) (float64, float64, float64, error) {
	s, err := p.Scan(id)
	if err != nil {
		return 0, 0, 0, err
	}
	st := s.Stokes()
	return s.DOP, st.DOLP, st.DOCP, nil
}

// Power returns the total, polarized and unpolarized power in W
func (p *PAX1000) Power(id polarimeter.ScanID) (float64, float64, float64, error) {
	s, err := p.Scan(id)
	if err != nil {
		return 0, 0, 0, err
	}
	return s.Power, s.Power * s.DOP, s.Power * (1 - s.DOP), nil
}

// ReleaseScan discards a held scan
func (p *PAX1000) ReleaseScan(id polarimeter.ScanID) error {
	if err := p.check(); err != nil {
		return err
	}
	return p.scans.release(id)
}

// Close ends the session, discarding any scans still held.  Closing twice
// is an error.
func (p *PAX1000) Close() error {
	if err := p.check(); err != nil {
		return err
	}
	p.closed = true
	p.scans = newScanTable(p.scans.max)
	if p.Pool == nil {
		return nil
	}
	return wrap(p.Pool.Close(), "closing connection")
}
