package shell

import (
	"fmt"

	"go.uber.org/multierr"

	"github.jpl.nasa.gov/bdube/paxsample/mathx"
	"github.jpl.nasa.gov/bdube/paxsample/polarimeter"
	"github.jpl.nasa.gov/bdube/paxsample/util"
)

// Commands returns the standard menu, in display order
func Commands() []Command {
	return []Command{
		{Key: 'I', Aliases: []byte{'i'}, Name: "identify", Label: "Read instrument information", Run: identify},
		{Key: 'm', Name: "get-mode", Label: "Get measurement mode", Run: getMode},
		{Key: 'M', Name: "set-mode", Label: "Set measurement mode", Run: setMode},
		{Key: 'r', Name: "get-rate", Label: "Get basic scan rate", Run: getRate},
		{Key: 'R', Name: "set-rate", Label: "Set basic scan rate", Run: setRate},
		{Key: 'p', Name: "get-power-range", Label: "Get input power range", Run: getPowerRange},
		{Key: 'P', Name: "set-power-range", Label: "Set input power range", Run: setPowerRange},
		{Key: 'w', Name: "get-wavelength", Label: "Get wavelength", Run: getWavelength},
		{Key: 'W', Name: "set-wavelength", Label: "Set wavelength", Run: setWavelength},
		{Key: 's', Name: "get-scan", Label: "Get scan data set", Run: getScan},
		{Key: 'S', Name: "get-scan-extended", Label: "Get scan data set with Stokes parameters", Run: getScanExtended},
		{Key: 'Q', Aliases: []byte{'q'}, Name: "quit", Label: "Quit", Run: quit},
	}
}

func identify(s *Shell, inst polarimeter.Instrument) error {
	id, err := inst.Identify()
	if err != nil {
		return err
	}
	fmt.Fprintf(s.Out, "Instrument:    %s\n", id.Name)
	fmt.Fprintf(s.Out, "Serial number: %s\n", id.Serial)
	fmt.Fprintf(s.Out, "Firmware:      V%s\n", id.Firmware)
	rev, err := inst.DriverRevision()
	if err != nil {
		return err
	}
	fmt.Fprintf(s.Out, "Driver:        V%s\n", rev)
	return nil
}

func getMode(s *Shell, inst polarimeter.Instrument) error {
	mode, err := inst.MeasurementMode()
	if err != nil {
		return err
	}
	fmt.Fprintf(s.Out, "Measurement Mode Reading:\n   (%d) %s\n\n", int(mode), mode)
	return nil
}

func setMode(s *Shell, inst polarimeter.Instrument) error {
	for {
		fmt.Fprint(s.Out, "Set Measurement Mode...\n")
		for _, m := range polarimeter.Modes() {
			fmt.Fprintf(s.Out, "(%d) %s\n", int(m), m)
		}
		fmt.Fprint(s.Out, "\nPlease select: ")
		key, err := s.Console.ReadKey()
		if err != nil {
			return err
		}
		fmt.Fprint(s.Out, "\n")
		mode := polarimeter.MeasurementMode(int(key) - '0')
		if !mode.Valid() {
			fmt.Fprint(s.Out, "Invalid selection\n\n")
			continue
		}
		return inst.SetMeasurementMode(mode)
	}
}

func getRate(s *Shell, inst polarimeter.Instrument) error {
	rate, err := inst.BasicScanRate()
	if err != nil {
		return err
	}
	fmt.Fprintf(s.Out, "Basic Sample Rate Reading:\n   %.1f 1/s\n\n", rate)
	return nil
}

// readFloat prompts until the first word of the answer starts with a number
func (s *Shell) readFloat(prompt string) (float64, error) {
	for {
		fmt.Fprint(s.Out, prompt)
		tok, err := s.Console.ReadToken()
		if err != nil {
			return 0, err
		}
		if f, err := util.ParseFloatPrefix(tok); err == nil {
			return f, nil
		}
	}
}

func setRate(s *Shell, inst polarimeter.Instrument) error {
	lim, err := inst.BasicScanRateLimits()
	if err != nil {
		return err
	}
	fmt.Fprint(s.Out, "Set Basic Sample Rate in 1/s...\n")
	rate, err := s.readFloat(fmt.Sprintf("Enter new Basic Sample rate (%.1f ... %.1f 1/s)\n", lim.Min, lim.Max))
	if err != nil {
		return err
	}
	err = inst.SetBasicScanRate(rate)
	fmt.Fprint(s.Out, "\n\n")
	return err
}

func getPowerRange(s *Shell, inst polarimeter.Instrument) error {
	rng, err := inst.PowerRange()
	if err != nil {
		return err
	}
	auto, err := inst.PowerAutoRange()
	if err != nil {
		return err
	}
	str := "MANUAL"
	if auto {
		str = "AUTO"
	}
	fmt.Fprintf(s.Out, "Power Range Reading:\n   %.1f mW (%s)\n\n", mathx.Milliwatts(rng), str)
	return nil
}

func setPowerRange(s *Shell, inst polarimeter.Instrument) error {
	lim, err := inst.PowerRangeLimits()
	if err != nil {
		return err
	}
	fmt.Fprint(s.Out, "Set Power Range in mW...\n")
	prompt := fmt.Sprintf("Enter new power range (%.1f ... %.1f mW or 'a' for auto ranging)\n",
		mathx.Milliwatts(lim.Min), mathx.Milliwatts(lim.Max))
	for {
		fmt.Fprint(s.Out, prompt)
		tok, err := s.Console.ReadToken()
		if err != nil {
			return err
		}
		if tok[0] == 'a' {
			err = inst.SetPowerAutoRange(true)
		} else {
			mw, perr := util.ParseFloatPrefix(tok)
			if perr != nil {
				continue
			}
			err = inst.SetPowerRange(mathx.Watts(mw))
		}
		fmt.Fprint(s.Out, "\n\n")
		return err
	}
}

func getWavelength(s *Shell, inst polarimeter.Instrument) error {
	wvl, err := inst.Wavelength()
	if err != nil {
		return err
	}
	fmt.Fprintf(s.Out, "Wavelength Reading:\n   %.1f nm\n\n", mathx.Nanometers(wvl))
	return nil
}

func setWavelength(s *Shell, inst polarimeter.Instrument) error {
	fmt.Fprint(s.Out, "Set Wavelength in nm...\n")
	nm, err := s.readFloat("Enter new wavelength in nm\n")
	if err != nil {
		return err
	}
	err = inst.SetWavelength(mathx.Metres(nm))
	fmt.Fprint(s.Out, "\n\n")
	return err
}

// withScan runs f on the latest scan, then releases the scan whatever f returned
func withScan(inst polarimeter.Instrument, f func(polarimeter.ScanID) error) (err error) {
	id, err := inst.LatestScan()
	if err != nil {
		return err
	}
	defer func() { err = multierr.Append(err, inst.ReleaseScan(id)) }()
	return f(id)
}

type scanReading struct {
	azimuth, ellipticity float64
	dop, dolp, docp      float64
}

func readScan(inst polarimeter.Instrument, id polarimeter.ScanID) (scanReading, error) {
	var r scanReading
	var err error
	r.azimuth, r.ellipticity, err = inst.Polarization(id)
	if err != nil {
		return r, err
	}
	r.dop, r.dolp, r.docp, err = inst.DOP(id)
	return r, err
}

func (s *Shell) printScan(r scanReading) {
	fmt.Fprintf(s.Out, "Azimuth:     %.1f degree\n", mathx.Degrees(r.azimuth))
	fmt.Fprintf(s.Out, "Ellipticity: %.1f degree\n", mathx.Degrees(r.ellipticity))
	fmt.Fprintf(s.Out, "DOP:         %.1f %%\n", mathx.Percent(r.dop))
}

func getScan(s *Shell, inst polarimeter.Instrument) error {
	return withScan(inst, func(id polarimeter.ScanID) error {
		fmt.Fprint(s.Out, "Scan Data:\n")
		r, err := readScan(inst, id)
		if err != nil {
			return err
		}
		s.printScan(r)
		fmt.Fprint(s.Out, "\n")
		return nil
	})
}

func getScanExtended(s *Shell, inst polarimeter.Instrument) error {
	return withScan(inst, func(id polarimeter.ScanID) error {
		fmt.Fprint(s.Out, "Scan Data:\n")
		r, err := readScan(inst, id)
		if err != nil {
			return err
		}
		total, _, _, err := inst.Power(id)
		if err != nil {
			return err
		}
		st := polarimeter.NewStokes(r.azimuth, r.ellipticity, r.dop, total)
		s.printScan(r)
		fmt.Fprintf(s.Out, "DOLP:        %.1f %%\n", mathx.Percent(r.dolp))
		fmt.Fprintf(s.Out, "DOCP:        %.1f %%\n", mathx.Percent(r.docp))
		fmt.Fprintf(s.Out, "Power:       %.3f mW (%.1f dBm)\n", mathx.Milliwatts(total), mathx.DBm(total))
		fmt.Fprintf(s.Out, "Stokes:      s1 %.3f  s2 %.3f  s3 %.3f\n", st.NormS1, st.NormS2, st.NormS3)
		fmt.Fprintf(s.Out, "Phase diff.: %.1f degree\n", st.PhaseDifferenceDegrees())
		fmt.Fprintf(s.Out, "Split ratio: %.3f\n", st.SplitRatio)
		fmt.Fprintf(s.Out, "Circularity: %.1f %%\n\n", mathx.Percent(st.Circularity))
		return nil
	})
}

func quit(s *Shell, inst polarimeter.Instrument) error {
	return s.Close()
}
