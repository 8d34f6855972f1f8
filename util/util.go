// Package util contains misc internal utilities.
package util

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ParseFloatPrefix parses the longest leading portion of s that forms a
// floating point number, ignoring leading whitespace and anything trailing.
// "12.5mW" => 12.5.  A number too large for a float64 is an error, it is
// never shortened to fit.
func ParseFloatPrefix(s string) (float64, error) {
	s = strings.TrimSpace(s)
	end := 0
	for end < len(s) && strings.IndexByte("+-.0123456789eE", s[end]) >= 0 {
		end++
	}
	for ; end > 0; end-- {
		f, err := strconv.ParseFloat(s[:end], 64)
		if err == nil {
			return f, nil
		}
		if errors.Is(err, strconv.ErrRange) {
			return f, err
		}
	}
	return 0, fmt.Errorf("%q does not begin with a number", s)
}

// SplitFloats parses a comma separated list of floats, e.g. a SCPI response
// like "1.0,2.5,3e-3"
func SplitFloats(s string) ([]float64, error) {
	s = TrimTerminators(s)
	if s == "" {
		return nil, nil
	}
	pieces := strings.Split(s, ",")
	out := make([]float64, len(pieces))
	for i, p := range pieces {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return nil, fmt.Errorf("field %d: %w", i, err)
		}
		out[i] = f
	}
	return out, nil
}

// TrimTerminators removes any trailing carriage returns and line feeds
func TrimTerminators(s string) string {
	return strings.TrimRight(s, "\r\n")
}
