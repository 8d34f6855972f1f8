package shell

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.jpl.nasa.gov/bdube/paxsample/polarimeter"
)

// Spinner shows activity while the driver searches
type Spinner interface {
	Start() error
	Stop() error
}

// Locator finds the instrument to open
type Locator struct {
	Driver  polarimeter.Driver
	Console *Console
	Out     io.Writer

	// Spinner, if not nil, runs during the search
	Spinner Spinner
}

// Locate searches for instruments.  With none found it returns an empty
// resource name and no error.  With one, it is chosen without asking.  With
// more, the user picks from a list until the choice is valid.
func (l *Locator) Locate() (string, error) {
	fmt.Fprint(l.Out, "Scanning for instruments ...\n")
	n, err := l.find()
	if err != nil {
		return "", &DiscoveryError{Err: err}
	}
	var i int
	switch {
	case n < 1:
		fmt.Fprint(l.Out, "No matching instruments found\n\n")
		return "", nil
	case n == 1:
		i = 0
	default:
		i, err = l.choose(n)
		if err != nil {
			return "", err
		}
	}
	name, err := l.Driver.ResourceName(i)
	if err != nil {
		return "", &ResolutionError{Index: i, Err: err}
	}
	return name, nil
}

func (l *Locator) find() (int, error) {
	if l.Spinner != nil {
		if err := l.Spinner.Start(); err == nil {
			defer l.Spinner.Stop()
		}
	}
	return l.Driver.FindResources()
}

// choose lists the instruments whose metadata can be read and returns the
// zero based index of the one the user picks
func (l *Locator) choose(n int) (int, error) {
	for {
		fmt.Fprintf(l.Out, "Found %d matching instruments:\n\n", n)
		listed := make(map[int]bool, n)
		for i := 0; i < n; i++ {
			info, err := l.Driver.ResourceInfo(i)
			if err != nil {
				continue
			}
			listed[i+1] = true
			fmt.Fprintf(l.Out, "% d: %s \tS/N:%s\n", i+1, info.Name, info.Serial)
		}
		fmt.Fprint(l.Out, "\nPlease select: ")
		line, err := l.Console.ReadLine()
		if err != nil {
			return 0, err
		}
		fmt.Fprint(l.Out, "\n")
		sel, err := strconv.Atoi(strings.TrimSpace(line))
		if err != nil || !listed[sel] {
			fmt.Fprint(l.Out, "Invalid selection\n\n")
			continue
		}
		return sel - 1, nil
	}
}
