// Command paxsample is an interactive client for Thorlabs PAX polarimeters.
//
// With no argument it searches for instruments and asks which to open if
// there are several.  Given a VISA resource name it opens that instrument
// directly, e.g.
//
//	paxsample USB0::0x1313::0x8031::M00123456::0::INSTR
//	paxsample -sim
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/theckman/yacspin"

	"github.jpl.nasa.gov/bdube/paxsample/shell"
)

var (
	// Version is the version number.  Typically injected via ldflags with git build
	Version = "1"

	// ConfigFileName is what it sounds like
	ConfigFileName = "paxsample.yml"
)

func usage() {
	str := `paxsample opens a session to a Thorlabs PAX polarimeter and offers a menu
to read and change its settings and to read polarization scans.

Usage:
	paxsample [flags] [resource]

Without a resource, USB and the resources listed in the config file are
searched.  Settings are read from paxsample.yml, then from PAXSAMPLE_*
environment variables (e.g. PAXSAMPLE_TIMEOUT_MS=2000).

Flags:`
	fmt.Fprintln(flag.CommandLine.Output(), str)
	flag.PrintDefaults()
}

func newSpinner() (*yacspin.Spinner, error) {
	return yacspin.New(yacspin.Config{
		Frequency:     100 * time.Millisecond,
		CharSet:       yacspin.CharSets[11],
		Suffix:        " ",
		Message:       "searching",
		StopCharacter: "",
		StopMessage:   "done",
	})
}

func main() {
	var (
		confPath = flag.String("config", ConfigFileName, "configuration file")
		sim      = flag.Bool("sim", false, "use simulated instruments")
		debug    = flag.Bool("debug", false, "trace communication with the instrument on stderr")
		version  = flag.Bool("version", false, "print the version and exit")
		mkconf   = flag.Bool("mkconf", false, "write the effective configuration to the config file and exit")
		conf     = flag.Bool("conf", false, "print the effective configuration and exit")
	)
	flag.Usage = usage
	flag.Parse()
	if *version {
		fmt.Printf("paxsample version %v\n", Version)
		return
	}
	if flag.NArg() > 1 {
		usage()
		os.Exit(2)
	}

	c, err := LoadConfig(*confPath)
	if err != nil {
		log.Fatal(err)
	}
	if *sim {
		c.Backend = backendSim
	}
	if *debug {
		c.Debug = true
	}

	switch {
	case *mkconf:
		f, err := os.Create(*confPath)
		if err != nil {
			log.Fatal(err)
		}
		defer f.Close()
		if err = c.Write(f); err != nil {
			log.Fatal(err)
		}
		return
	case *conf:
		if err = c.Write(os.Stdout); err != nil {
			log.Fatal(err)
		}
		return
	}

	var logger *log.Logger
	if c.Debug {
		logger = log.New(os.Stderr, "", log.LstdFlags|log.Lmicroseconds)
	}
	drv, err := c.Driver(logger)
	if err != nil {
		log.Fatal(err)
	}
	s := shell.New(drv, os.Stdin, os.Stdout, os.Stderr)
	s.IDQuery = c.IDQuery
	s.Reset = c.Reset
	s.Logger = logger
	if sp, err := newSpinner(); err == nil {
		s.Spinner = sp
	} else if logger != nil {
		logger.Printf("spinner disabled: %v", err)
	}
	os.Exit(s.Main(flag.Arg(0)))
}
