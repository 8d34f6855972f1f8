package shell

import (
	"bufio"
	"errors"
	"io"
	"strings"
)

// ErrInputClosed is returned when the input ends while an answer is expected
var ErrInputClosed = errors.New("input closed")

// Console reads user input one line at a time
type Console struct {
	r *bufio.Reader
}

// NewConsole reads input from r
func NewConsole(r io.Reader) *Console {
	return &Console{r: bufio.NewReader(r)}
}

// ReadLine returns the next line without its line ending
func (c *Console) ReadLine() (string, error) {
	line, err := c.r.ReadString('\n')
	if err != nil {
		if err != io.EOF {
			return "", err
		}
		if line == "" {
			return "", ErrInputClosed
		}
	}
	return strings.TrimRight(line, "\r\n"), nil
}

// ReadKey returns the first character of the next line and discards the
// rest.  An empty line reads as '\n'.
func (c *Console) ReadKey() (byte, error) {
	line, err := c.ReadLine()
	if err != nil {
		return 0, err
	}
	if line == "" {
		return '\n', nil
	}
	return line[0], nil
}

// ReadToken returns the first whitespace delimited word, skipping blank
// lines.  The rest of its line is discarded.
func (c *Console) ReadToken() (string, error) {
	for {
		line, err := c.ReadLine()
		if err != nil {
			return "", err
		}
		if fields := strings.Fields(line); len(fields) > 0 {
			return fields[0], nil
		}
	}
}
