package util_test

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"testing"

	"github.jpl.nasa.gov/bdube/paxsample/util"
)

func ExampleParseFloatPrefix() {
	f, _ := util.ParseFloatPrefix(" 12.5mW")
	fmt.Println(f)
	// Output: 12.5
}

func ExampleSplitFloats() {
	fs, _ := util.SplitFloats("1,2.5,3e-3\n")
	fmt.Println(fs)
	// Output: [1 2.5 0.003]
}

func TestParseFloatPrefix(t *testing.T) {
	cases := map[string]float64{
		"60":      60,
		"60.5\n":  60.5,
		"-1e-3x":  -1e-3,
		"1e":      1,
		"3.0.1":   3.0,
		"  +7abc": 7,
	}
	for in, expected := range cases {
		out, err := util.ParseFloatPrefix(in)
		if err != nil {
			t.Errorf("%q: unexpected error %v", in, err)
			continue
		}
		if out != expected {
			t.Errorf("%q: expected %f got %f", in, expected, out)
		}
	}
}

func TestParseFloatPrefixRejectsText(t *testing.T) {
	for _, in := range []string{"", "a", "auto", "-", "."} {
		if _, err := util.ParseFloatPrefix(in); err == nil {
			t.Errorf("expected %q to be rejected", in)
		}
	}
}

func TestParseFloatPrefixOverflow(t *testing.T) {
	for _, in := range []string{"1e400", "-1e400W"} {
		f, err := util.ParseFloatPrefix(in)
		if !errors.Is(err, strconv.ErrRange) {
			t.Errorf("%q: expected range error got %v (%g)", in, err, f)
		}
		if !math.IsInf(f, 0) {
			t.Errorf("%q: expected infinity got %g", in, f)
		}
	}
}

func TestSplitFloatsBadField(t *testing.T) {
	_, err := util.SplitFloats("1,two,3")
	if err == nil {
		t.Error("expected error for non-numeric field")
	}
}

func TestTrimTerminators(t *testing.T) {
	if out := util.TrimTerminators("abc\r\n"); out != "abc" {
		t.Errorf("expected abc got %q", out)
	}
}
