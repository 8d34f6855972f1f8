package thorlabs

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"log"
	"net"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.jpl.nasa.gov/bdube/paxsample/comm"
	"github.jpl.nasa.gov/bdube/paxsample/polarimeter"
	"github.jpl.nasa.gov/bdube/paxsample/scpi"
	"github.jpl.nasa.gov/bdube/paxsample/usbtmc"
	"github.jpl.nasa.gov/bdube/paxsample/visa"
)

const testScan = "120,3456,5,0,2,0.1,0.9,0.0166,0.01,0.5236,0.0873,0.985,1.2E-03"

// fakePAX speaks enough SCPI to stand in for a PAX1000
type fakePAX struct {
	mu       sync.Mutex
	idn      string
	state    map[string]string
	errQueue []string
	received []string
}

func newFakePAX() *fakePAX {
	return &fakePAX{
		idn: "Thorlabs,PAX1000IR2,M00123456,1.2.3",
		state: map[string]string{
			"SENS:CALC:MOD":      "5",
			"INP:ROT:VEL":        "6.0E+01",
			"SENS:POW:RANG:UPP":  "1.0E-02",
			"SENS:POW:RANG:AUTO": "1",
			"SENS:CORR:WAV":      "1.55E-06",
		},
	}
}

func (f *fakePAX) handle(cmd string) (string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.received = append(f.received, cmd)
	switch cmd {
	case "*IDN?":
		return f.idn, true
	case "*RST":
		return "", false
	case "SYST:ERR?":
		if len(f.errQueue) == 0 {
			return `+0,"No error"`, true
		}
		e := f.errQueue[0]
		f.errQueue = f.errQueue[1:]
		return e, true
	case "INP:ROT:VEL:LIM?":
		return "1.0E+01,4.0E+02", true
	case "SENS:POW:RANG:UPP? MIN":
		return "1.0E-05", true
	case "SENS:POW:RANG:UPP? MAX":
		return "1.0E-02", true
	case "SENS:DATA:LAT?":
		return testScan, true
	}
	if strings.HasSuffix(cmd, "?") {
		v, ok := f.state[strings.TrimSuffix(cmd, "?")]
		if !ok {
			f.errQueue = append(f.errQueue, `-113,"Undefined header"`)
			return "0", true
		}
		return v, true
	}
	fields := strings.Fields(cmd)
	if len(fields) != 2 {
		f.errQueue = append(f.errQueue, `-109,"Missing parameter"`)
		return "", false
	}
	if fields[0] == "INP:ROT:VEL" {
		if v, err := strconv.ParseFloat(fields[1], 64); err != nil || v < 10 || v > 400 {
			f.errQueue = append(f.errQueue, `-222,"Data out of range"`)
			return "", false
		}
	}
	f.state[fields[0]] = fields[1]
	return "", false
}

func (f *fakePAX) serve(conn net.Conn) {
	defer conn.Close()
	r := bufio.NewReader(conn)
	for {
		line, err := r.ReadString('\n')
		if err != nil {
			return
		}
		if resp, ok := f.handle(strings.TrimSpace(line)); ok {
			if _, err = io.WriteString(conn, resp+"\n"); err != nil {
				return
			}
		}
	}
}

func (f *fakePAX) listen(t *testing.T) string {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { l.Close() })
	go func() {
		for {
			conn, err := l.Accept()
			if err != nil {
				return
			}
			go f.serve(conn)
		}
	}()
	port := l.Addr().(*net.TCPAddr).Port
	return fmt.Sprintf("TCPIP0::127.0.0.1::%d::SOCKET", port)
}

func newTestPAX(f *fakePAX, maxScans int) *PAX1000 {
	maker := func() (io.ReadWriteCloser, error) {
		client, server := net.Pipe()
		go f.serve(server)
		return client, nil
	}
	s := scpi.SCPI{Pool: comm.NewPool(1, time.Minute, maker), Timeout: time.Second}
	return NewPAX1000(s, maxScans)
}

func TestPAX1000Identify(t *testing.T) {
	pax := newTestPAX(newFakePAX(), 0)
	defer pax.Close()
	id, err := pax.Identify()
	require.NoError(t, err)
	assert.Equal(t, polarimeter.Identity{
		Manufacturer: "Thorlabs",
		Name:         "PAX1000IR2",
		Serial:       "M00123456",
		Firmware:     "1.2.3"}, id)
	rev, err := pax.DriverRevision()
	require.NoError(t, err)
	assert.Equal(t, DriverRevision, rev)
}

func TestParseIDNRejectsGarbage(t *testing.T) {
	_, err := parseIDN("hello")
	assert.ErrorIs(t, err, visa.ErrorInstrumentIDQuery)
}

func TestPAX1000Settings(t *testing.T) {
	pax := newTestPAX(newFakePAX(), 0)
	defer pax.Close()

	mode, err := pax.MeasurementMode()
	require.NoError(t, err)
	assert.Equal(t, polarimeter.Full1024, mode)
	require.NoError(t, pax.SetMeasurementMode(polarimeter.Double2048))
	mode, err = pax.MeasurementMode()
	require.NoError(t, err)
	assert.Equal(t, polarimeter.Double2048, mode)

	rate, err := pax.BasicScanRate()
	require.NoError(t, err)
	assert.Equal(t, 60., rate)
	require.NoError(t, pax.SetBasicScanRate(100))
	rate, err = pax.BasicScanRate()
	require.NoError(t, err)
	assert.Equal(t, 100., rate)
	lim, err := pax.BasicScanRateLimits()
	require.NoError(t, err)
	assert.Equal(t, polarimeter.Limits{Min: 10, Max: 400}, lim)

	auto, err := pax.PowerAutoRange()
	require.NoError(t, err)
	assert.True(t, auto)
	require.NoError(t, pax.SetPowerRange(0.005))
	auto, err = pax.PowerAutoRange()
	require.NoError(t, err)
	assert.False(t, auto)
	rng, err := pax.PowerRange()
	require.NoError(t, err)
	assert.Equal(t, 0.005, rng)
	require.NoError(t, pax.SetPowerAutoRange(true))
	auto, err = pax.PowerAutoRange()
	require.NoError(t, err)
	assert.True(t, auto)
	plim, err := pax.PowerRangeLimits()
	require.NoError(t, err)
	assert.Equal(t, polarimeter.Limits{Min: 1e-5, Max: 1e-2}, plim)

	wvl, err := pax.Wavelength()
	require.NoError(t, err)
	assert.Equal(t, 1.55e-6, wvl)
	require.NoError(t, pax.SetWavelength(1.31e-6))
	wvl, err = pax.Wavelength()
	require.NoError(t, err)
	assert.Equal(t, 1.31e-6, wvl)
}

func TestPAX1000Scans(t *testing.T) {
	pax := newTestPAX(newFakePAX(), 2)
	defer pax.Close()

	id, err := pax.LatestScan()
	require.NoError(t, err)
	az, el, err := pax.Polarization(id)
	require.NoError(t, err)
	assert.Equal(t, 0.5236, az)
	assert.Equal(t, 0.0873, el)

	st := polarimeter.NewStokes(0.5236, 0.0873, 0.985, 1.2e-3)
	dop, dolp, docp, err := pax.DOP(id)
	require.NoError(t, err)
	assert.Equal(t, 0.985, dop)
	assert.InDelta(t, st.DOLP, dolp, 1e-12)
	assert.InDelta(t, st.DOCP, docp, 1e-12)

	total, pol, unpol, err := pax.Power(id)
	require.NoError(t, err)
	assert.Equal(t, 1.2e-3, total)
	assert.InDelta(t, total, pol+unpol, 1e-15)

	id2, err := pax.LatestScan()
	require.NoError(t, err)
	assert.NotEqual(t, id, id2)
	_, err = pax.LatestScan()
	assert.ErrorIs(t, err, visa.ErrorInstrumentScanBuffer)

	require.NoError(t, pax.ReleaseScan(id))
	assert.ErrorIs(t, pax.ReleaseScan(id), visa.ErrorInvalidObject)
	_, _, err = pax.Polarization(id)
	assert.ErrorIs(t, err, visa.ErrorInvalidObject)
	_, err = pax.LatestScan()
	assert.NoError(t, err)
}

func TestPAX1000DeviceErrors(t *testing.T) {
	f := newFakePAX()
	pax := newTestPAX(f, 0)
	defer pax.Close()
	pax.Handshaking = true

	err := pax.SetBasicScanRate(1000)
	require.Error(t, err)
	code, ok := polarimeter.Code(err)
	require.True(t, ok)
	assert.Equal(t, -222, code)
	assert.Equal(t, "-222 - DATA OUT OF RANGE", errorMessage(err))

	// the session survives a device error
	rate, err := pax.BasicScanRate()
	require.NoError(t, err)
	assert.Equal(t, 60., rate)
}

func TestPAX1000Close(t *testing.T) {
	pax := newTestPAX(newFakePAX(), 0)
	_, err := pax.LatestScan()
	require.NoError(t, err)
	require.NoError(t, pax.Close())
	assert.ErrorIs(t, pax.Close(), visa.ErrorInvalidObject)
	_, err = pax.Identify()
	assert.ErrorIs(t, err, visa.ErrorInvalidObject)
	_, err = pax.BasicScanRate()
	assert.ErrorIs(t, err, visa.ErrorInvalidObject)
}

func TestParseScan(t *testing.T) {
	s, err := ParseScan(testScan + "\n")
	require.NoError(t, err)
	assert.Equal(t, 120, s.Revolutions)
	assert.Equal(t, polarimeter.Full1024, s.Mode)
	assert.Equal(t, 1.2e-3, s.Power)

	_, err = ParseScan("1,2,3")
	assert.Error(t, err)
}

func TestPAXDriverFindsUSB(t *testing.T) {
	d := NewPAXDriver()
	d.find = func(vid uint16, pids ...uint16) ([]usbtmc.DeviceInfo, error) {
		assert.Equal(t, uint16(TLVID), vid)
		assert.Equal(t, PAXPIDs, pids)
		return []usbtmc.DeviceInfo{
			{VendorID: TLVID, ProductID: PAX1000PID, Product: "PAX1000IR2", Serial: "M00123456", Available: true},
			{VendorID: TLVID, ProductID: PAX1000PID, Product: "PAX1000VIS", Serial: "M00654321"},
		}, nil
	}
	n, err := d.FindResources()
	require.NoError(t, err)
	require.Equal(t, 2, n)

	name, err := d.ResourceName(1)
	require.NoError(t, err)
	assert.Equal(t, "USB0::0x1313::0x8031::M00654321::0::INSTR", name)
	info, err := d.ResourceInfo(0)
	require.NoError(t, err)
	assert.Equal(t, polarimeter.ResourceInfo{Name: "PAX1000IR2", Serial: "M00123456", Available: true}, info)

	_, err = d.ResourceName(2)
	assert.ErrorIs(t, err, visa.ErrorInvalidParameter)
}

func TestPAXDriverUSBFailure(t *testing.T) {
	d := NewPAXDriver()
	d.find = func(vid uint16, pids ...uint16) ([]usbtmc.DeviceInfo, error) {
		return nil, usbtmc.ErrNotFound
	}
	_, err := d.FindResources()
	assert.ErrorIs(t, err, visa.ErrorResourceNotFound)
}

func TestPAXDriverProbesResources(t *testing.T) {
	f := newFakePAX()
	good := f.listen(t)

	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	bad := fmt.Sprintf("TCPIP0::127.0.0.1::%d::SOCKET", l.Addr().(*net.TCPAddr).Port)
	l.Close()

	d := NewPAXDriver()
	d.USB = false
	d.Resources = []string{bad, good}
	n, err := d.FindResources()
	require.NoError(t, err)
	require.Equal(t, 2, n)

	_, err = d.ResourceInfo(0)
	assert.Error(t, err)
	info, err := d.ResourceInfo(1)
	require.NoError(t, err)
	assert.Equal(t, polarimeter.ResourceInfo{Name: "PAX1000IR2", Serial: "M00123456", Available: true}, info)
	name, err := d.ResourceName(1)
	require.NoError(t, err)
	assert.Equal(t, good, name)
}

func TestPAXDriverOpen(t *testing.T) {
	f := newFakePAX()
	rsrc := f.listen(t)
	d := NewPAXDriver()

	inst, err := d.Open(rsrc, true, true)
	require.NoError(t, err)
	id, err := inst.Identify()
	require.NoError(t, err)
	assert.Equal(t, "M00123456", id.Serial)
	require.NoError(t, inst.Close())

	f.mu.Lock()
	assert.Contains(t, f.received, "*RST")
	f.idn = "Keysight,34461A,MY1,1.0"
	f.mu.Unlock()
	_, err = d.Open(rsrc, true, false)
	assert.ErrorIs(t, err, visa.ErrorInstrumentIDQuery)

	_, err = d.Open("GPIB0::1::INSTR", false, false)
	assert.ErrorIs(t, err, visa.ErrorInvalidResourceName)
}

func TestPAXDriverDefaultsReportDeviceErrors(t *testing.T) {
	f := newFakePAX()
	rsrc := f.listen(t)
	d := NewPAXDriver()
	d.USB = false

	inst, err := d.Open(rsrc, false, false)
	require.NoError(t, err)
	defer inst.Close()
	err = inst.SetBasicScanRate(1000)
	code, ok := polarimeter.Code(err)
	require.True(t, ok, "%v", err)
	assert.Equal(t, -222, code)
	f.mu.Lock()
	defer f.mu.Unlock()
	assert.Empty(t, f.errQueue)
}

func TestPAXDriverOpenDrainsErrorQueue(t *testing.T) {
	f := newFakePAX()
	f.errQueue = []string{`-113,"Undefined header"`, `-222,"Data out of range"`}
	rsrc := f.listen(t)
	var buf bytes.Buffer
	d := NewPAXDriver()
	d.Logger = log.New(&buf, "", 0)

	inst, err := d.Open(rsrc, true, true)
	require.NoError(t, err)
	defer inst.Close()
	_, err = inst.BasicScanRate()
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "discarded queued error -113, Undefined header")
	assert.Contains(t, buf.String(), "discarded queued error -222, Data out of range")
}

func TestErrorMessage(t *testing.T) {
	assert.Equal(t, "-230 - DATA CORRUPT OR STALE", errorMessage(errStale))
	assert.Equal(t, "-999 - Vendor specific", errorMessage(scpi.Error{Number: -999, Message: "Vendor specific"}))
	assert.Equal(t, visa.ErrorTimeout.Error(), errorMessage(visa.Translate(&net.OpError{Op: "read", Err: timeoutErr{}})))
	assert.Equal(t, visa.ErrorResourceBusy.Error(), errorMessage(visa.ErrorResourceBusy))
}

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "i/o timeout" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }
