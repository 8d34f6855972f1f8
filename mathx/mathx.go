// Package mathx provides small numeric helpers and the unit conversions used
// when displaying polarimeter readings.
package mathx

import "math"

// Degrees converts an angle in radians to degrees
func Degrees(rad float64) float64 {
	return rad * 180 / math.Pi
}

// Radians converts an angle in degrees to radians
func Radians(deg float64) float64 {
	return deg * math.Pi / 180
}

// Percent converts a unit ratio (0..1) to percent
func Percent(ratio float64) float64 {
	return ratio * 100
}

// Milliwatts converts watts to milliwatts
func Milliwatts(w float64) float64 {
	return w * 1e3
}

// Watts converts milliwatts to watts
func Watts(mw float64) float64 {
	return mw / 1e3
}

// DBm converts a power in watts to decibel-milliwatts.  Non-positive powers
// have no logarithm and are reported as 0 dBm.
func DBm(w float64) float64 {
	if w <= 0 {
		return 0
	}
	return 10 * math.Log10(w/1e-3)
}

// Nanometers converts metres to nanometers
func Nanometers(m float64) float64 {
	return m * 1e9
}

// Metres converts nanometers to metres
func Metres(nm float64) float64 {
	return nm * 1e-9
}
