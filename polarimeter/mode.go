package polarimeter

import "fmt"

// MeasurementMode selects how many waveplate revolutions make up one
// measurement and how many points are used in the FFT
type MeasurementMode int

const (
	// Idle means no measurements are taken
	Idle MeasurementMode = iota
	Half512
	Half1024
	Half2048
	Full512
	Full1024
	Full2048
	Double512
	Double1024
	Double2048
)

var revolutionLabels = map[float64]string{
	0.5: "0.5 revolutions",
	1:   "1 revolution",
	2:   "2 revolutions",
}

// Modes returns every valid measurement mode in ascending order
func Modes() []MeasurementMode {
	out := make([]MeasurementMode, 0, Double2048-Idle+1)
	for m := Idle; m <= Double2048; m++ {
		out = append(out, m)
	}
	return out
}

// Valid is true if m is a known measurement mode
func (m MeasurementMode) Valid() bool {
	return m >= Idle && m <= Double2048
}

// Revolutions is the number of waveplate revolutions per measurement,
// 0 for Idle or unknown modes
func (m MeasurementMode) Revolutions() float64 {
	if !m.Valid() || m == Idle {
		return 0
	}
	switch (m - 1) / 3 {
	case 0:
		return 0.5
	case 1:
		return 1
	default:
		return 2
	}
}

// FFTPoints is the transform size used for one measurement,
// 0 for Idle or unknown modes
func (m MeasurementMode) FFTPoints() int {
	if !m.Valid() || m == Idle {
		return 0
	}
	return 512 << uint((m-1)%3)
}

// String returns the human readable label of the mode
func (m MeasurementMode) String() string {
	if !m.Valid() {
		return "unknown"
	}
	if m == Idle {
		return "Idle, no measurements are taken"
	}
	return fmt.Sprintf("%s for one measurement, %d points for FFT", revolutionLabels[m.Revolutions()], m.FFTPoints())
}
