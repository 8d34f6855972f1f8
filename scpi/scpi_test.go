package scpi_test

import (
	"bufio"
	"bytes"
	"io"
	"log"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.jpl.nasa.gov/bdube/paxsample/comm"
	"github.jpl.nasa.gov/bdube/paxsample/scpi"
)

// fakeInstrument answers queries from a table and keeps a one-deep error queue
type fakeInstrument struct {
	mu       sync.Mutex
	answers  map[string]string
	received []string
	errQueue string
}

func (f *fakeInstrument) serve(conn net.Conn) {
	defer conn.Close()
	r := bufio.NewReader(conn)
	for {
		line, err := r.ReadString('\n')
		if err != nil {
			return
		}
		cmd := strings.TrimSpace(line)
		f.mu.Lock()
		f.received = append(f.received, cmd)
		var resp string
		switch {
		case cmd == "SYST:ERR?":
			resp = f.errQueue
			if resp == "" {
				resp = `+0,"No error"`
			}
			f.errQueue = ""
		case strings.HasSuffix(cmd, "?"):
			var ok bool
			resp, ok = f.answers[cmd]
			if !ok {
				resp = "0"
				f.errQueue = `-113,"Undefined header"`
			}
		case strings.HasPrefix(cmd, "BAD"):
			f.errQueue = `-222,"Data out of range"`
		}
		f.mu.Unlock()
		if resp != "" {
			io.WriteString(conn, resp+"\n")
		}
	}
}

func newSCPI(f *fakeInstrument) *scpi.SCPI {
	maker := func() (io.ReadWriteCloser, error) {
		client, server := net.Pipe()
		go f.serve(server)
		return client, nil
	}
	return &scpi.SCPI{Pool: comm.NewPool(1, time.Minute, maker), Timeout: time.Second}
}

func TestReadHelpers(t *testing.T) {
	f := &fakeInstrument{answers: map[string]string{
		"*IDN?":               "Thorlabs,PAX1000IR2,M00123456,1.2.3",
		"INP:ROT:VEL?":        "6.0E+01",
		"SENS:CALC:MOD?":      "+9",
		"SENS:POW:RANG:AUTO?": "1",
		"INP:ROT:VEL:LIM?":    "1.0E+01,4.0E+02",
	}}
	s := newSCPI(f)

	idn, err := s.ReadString("*IDN?")
	require.NoError(t, err)
	assert.Equal(t, "Thorlabs,PAX1000IR2,M00123456,1.2.3", idn)

	rate, err := s.ReadFloat("INP:ROT:VEL?")
	require.NoError(t, err)
	assert.Equal(t, 60., rate)

	mode, err := s.ReadInt("SENS:CALC:MOD?")
	require.NoError(t, err)
	assert.Equal(t, 9, mode)

	auto, err := s.ReadBool("SENS:POW:RANG:AUTO?")
	require.NoError(t, err)
	assert.True(t, auto)

	lim, err := s.ReadFloats("INP:ROT:VEL:LIM?")
	require.NoError(t, err)
	assert.Equal(t, []float64{10, 400}, lim)
}

func TestHandshakingReportsDeviceErrors(t *testing.T) {
	f := &fakeInstrument{answers: map[string]string{}}
	s := newSCPI(f)
	s.Handshaking = true

	require.NoError(t, s.Write("INP:ROT:VEL", "60"))

	err := s.Write("BAD", "1e9")
	require.Error(t, err)
	var se scpi.Error
	require.ErrorAs(t, err, &se)
	assert.Equal(t, -222, se.Code())
	assert.Equal(t, "Data out of range", se.Message)

	// device errors leave the connection usable
	assert.Equal(t, 1, s.Pool.Size())
	require.NoError(t, s.Write("INP:ROT:VEL", "60"))

	f.mu.Lock()
	defer f.mu.Unlock()
	assert.Equal(t, []string{
		"INP:ROT:VEL 60", "SYST:ERR?",
		"BAD 1e9", "SYST:ERR?",
		"INP:ROT:VEL 60", "SYST:ERR?",
	}, f.received)
}

func TestWithoutHandshakingNoErrorQuery(t *testing.T) {
	f := &fakeInstrument{}
	s := newSCPI(f)
	require.NoError(t, s.Write("*RST"))
	// the fake has no reply to a set, so a query proves the write went out first
	f.mu.Lock()
	f.answers = map[string]string{"*IDN?": "x"}
	f.mu.Unlock()
	_, err := s.ReadString("*IDN?")
	require.NoError(t, err)
	f.mu.Lock()
	defer f.mu.Unlock()
	assert.Equal(t, []string{"*RST", "*IDN?"}, f.received)
}

func TestAllErrors(t *testing.T) {
	f := &fakeInstrument{answers: map[string]string{}}
	s := newSCPI(f)
	_, err := s.ReadString("NOPE?")
	require.NoError(t, err)
	errs := s.AllErrors()
	require.Len(t, errs, 1)
	assert.Equal(t, "-113, Undefined header", errs[0].Error())
	assert.Empty(t, s.AllErrors())
}

func TestTimeoutDestroysConnection(t *testing.T) {
	maker := func() (io.ReadWriteCloser, error) {
		client, server := net.Pipe()
		go io.Copy(io.Discard, server)
		return client, nil
	}
	s := &scpi.SCPI{Pool: comm.NewPool(1, time.Minute, maker), Timeout: 20 * time.Millisecond}
	_, err := s.ReadString("*IDN?")
	var ne net.Error
	require.ErrorAs(t, err, &ne)
	assert.True(t, ne.Timeout())
	assert.Equal(t, 0, s.Pool.Size())
}

func TestLoggerTracesTraffic(t *testing.T) {
	f := &fakeInstrument{answers: map[string]string{"*IDN?": "Thorlabs,PAX1000IR2,M1,1.0"}}
	s := newSCPI(f)
	buf := &bytes.Buffer{}
	s.Logger = log.New(buf, "", 0)
	_, err := s.ReadString("*IDN?")
	require.NoError(t, err)
	assert.Equal(t, "-> *IDN?\n<- Thorlabs,PAX1000IR2,M1,1.0\n", buf.String())
}

func TestMinInterval(t *testing.T) {
	assert.Nil(t, scpi.MinInterval(0))
	lim := scpi.MinInterval(time.Second)
	require.NotNil(t, lim)
	assert.True(t, lim.Allow())
	assert.False(t, lim.Allow())
}

func TestParseError(t *testing.T) {
	assert.NoError(t, scpi.ParseError(`+0,"No error"`))
	assert.NoError(t, scpi.ParseError("0\r\n"))
	assert.Equal(t, scpi.Error{Number: -230, Message: "Data corrupt or stale"},
		scpi.ParseError(`-230,"Data corrupt or stale"`))
	assert.Error(t, scpi.ParseError("garbage"))
}
