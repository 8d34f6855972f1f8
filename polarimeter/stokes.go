package polarimeter

import (
	"math"

	"github.jpl.nasa.gov/bdube/paxsample/mathx"
)

// Stokes holds the Stokes vector of a scan and the quantities derived from it
type Stokes struct {
	// S0..S3 in W
	S0, S1, S2, S3 float64

	// NormS1..NormS3 are S1..S3 divided by S0
	NormS1, NormS2, NormS3 float64

	// DOLP and DOCP are the degrees of linear and circular polarization as unit ratios
	DOLP, DOCP float64

	// SplitRatio is the power split ratio tan(eta)^2
	SplitRatio float64

	// PhaseDifference is atan2(S3, S2) in radians
	PhaseDifference float64

	// Circularity is |tan(eta)| as a unit ratio
	Circularity float64
}

// NewStokes computes the Stokes vector from the polarization ellipse
// (azimuth theta and ellipticity eta in radians), the degree of polarization
// and the total power in W.  With no power, the normalised quantities are zero.
func NewStokes(theta, eta, dop, ptotal float64) Stokes {
	s := Stokes{
		S0: ptotal,
		S1: ptotal * dop * math.Cos(2*theta) * math.Cos(2*eta),
		S2: ptotal * dop * math.Sin(2*theta) * math.Cos(2*eta),
		S3: ptotal * dop * math.Sin(2*eta),
	}
	s.SplitRatio = math.Pow(math.Tan(eta), 2)
	s.PhaseDifference = math.Atan2(s.S3, s.S2)
	s.Circularity = math.Abs(math.Tan(eta))
	if ptotal != 0 {
		s.NormS1 = s.S1 / s.S0
		s.NormS2 = s.S2 / s.S0
		s.NormS3 = s.S3 / s.S0
		s.DOLP = math.Hypot(s.S1, s.S2) / s.S0
		s.DOCP = math.Abs(s.S3) / s.S0
	}
	return s
}

// PhaseDifferenceDegrees is PhaseDifference in degrees
func (s Stokes) PhaseDifferenceDegrees() float64 {
	return mathx.Degrees(s.PhaseDifference)
}
