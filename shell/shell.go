// Package shell implements the interactive client: it locates an instrument,
// opens a session and runs menu commands against it until the user quits.
package shell

import (
	"errors"
	"fmt"
	"io"
	"log"

	"github.jpl.nasa.gov/bdube/paxsample/polarimeter"
)

const banner = "---------------------------------------------------\n" +
	" Thorlabs PAX Driver Sample Application\n" +
	"---------------------------------------------------\n\n"

// State is the lifecycle of the shell's session
type State int

const (
	// Unopened means no session has been opened yet
	Unopened State = iota

	// Open means commands may be run
	Open

	// Closed is terminal
	Closed
)

func (s State) String() string {
	switch s {
	case Unopened:
		return "unopened"
	case Open:
		return "open"
	case Closed:
		return "closed"
	default:
		return "unknown"
	}
}

// Handler runs one command against an open session
type Handler func(s *Shell, inst polarimeter.Instrument) error

// Command is one entry of the menu
type Command struct {
	// Key selects the command
	Key byte

	// Aliases also select the command but are not shown
	Aliases []byte

	// Name identifies the command in errors
	Name string

	// Label is shown in the menu
	Label string

	Run Handler
}

// Shell owns one session for its whole life
type Shell struct {
	Driver  polarimeter.Driver
	Console *Console
	Out     io.Writer
	Err     io.Writer

	// Spinner, if not nil, runs during discovery
	Spinner Spinner

	// IDQuery and Reset are passed to the driver when opening
	IDQuery, Reset bool

	// Logger, if not nil, receives diagnostics that are not for the user
	Logger *log.Logger

	state    State
	resource string
	inst     polarimeter.Instrument
	menu     []Command
	dispatch map[byte]Command
}

// New returns a shell reading from in and writing to out and errOut, with
// the standard menu
func New(drv polarimeter.Driver, in io.Reader, out, errOut io.Writer) *Shell {
	s := &Shell{
		Driver:  drv,
		Console: NewConsole(in),
		Out:     out,
		Err:     errOut,
		Reset:   true,
	}
	for _, c := range Commands() {
		s.Register(c)
	}
	return s
}

// Register adds c to the end of the menu, replacing any command with the
// same keys
func (s *Shell) Register(c Command) {
	if s.dispatch == nil {
		s.dispatch = make(map[byte]Command)
	}
	if _, dup := s.dispatch[c.Key]; !dup {
		s.menu = append(s.menu, c)
	} else {
		for i := range s.menu {
			if s.menu[i].Key == c.Key {
				s.menu[i] = c
			}
		}
	}
	s.dispatch[c.Key] = c
	for _, k := range c.Aliases {
		s.dispatch[k] = c
	}
}

// State returns the session state
func (s *Shell) State() State { return s.state }

// Open opens the session to resource
func (s *Shell) Open(resource string) error {
	if s.state != Unopened {
		return &SessionError{Op: "open", Resource: resource, Err: errors.New("shell already used a session")}
	}
	fmt.Fprintf(s.Out, "Opening session to '%s' ...\n\n", resource)
	inst, err := s.Driver.Open(resource, s.IDQuery, s.Reset)
	if err != nil {
		return &SessionError{Op: "open", Resource: resource, Err: err}
	}
	s.resource = resource
	s.inst = inst
	s.state = Open
	return nil
}

// Close closes the session if it is open.  A session is only ever closed once.
func (s *Shell) Close() error {
	if s.state != Open {
		return nil
	}
	s.state = Closed
	if err := s.inst.Close(); err != nil {
		return &SessionError{Op: "close", Resource: s.resource, Err: err}
	}
	return nil
}

func (s *Shell) printMenu() {
	fmt.Fprint(s.Out, "Operations:\n\n")
	for _, c := range s.menu {
		fmt.Fprintf(s.Out, "%c: %s\n", c.Key, c.Label)
	}
	fmt.Fprint(s.Out, "\n\nPlease select: ")
}

// Run reads and runs commands until the session is closed.  The end of the
// input quits.  A failing command closes the session and is returned.
func (s *Shell) Run() error {
	for s.state == Open {
		s.printMenu()
		key, err := s.Console.ReadKey()
		if err != nil {
			if errors.Is(err, ErrInputClosed) {
				fmt.Fprint(s.Out, "\n")
				return s.Close()
			}
			return s.abort(err)
		}
		fmt.Fprint(s.Out, "\n")
		cmd, ok := s.dispatch[key]
		if !ok {
			fmt.Fprint(s.Out, "Invalid selection\n\n")
			continue
		}
		if err = cmd.Run(s, s.inst); err != nil {
			var se *SessionError
			if errors.As(err, &se) {
				return err
			}
			code, _ := polarimeter.Code(err)
			return s.abort(&CommandError{Command: cmd.Name, Code: code, Err: err})
		}
	}
	return nil
}

// abort closes the session after a failure and returns err
func (s *Shell) abort(err error) error {
	if cerr := s.Close(); cerr != nil && s.Logger != nil {
		s.Logger.Printf("closing after failure: %v", cerr)
	}
	return err
}

// Fail reports err, closes the session if it is open, and waits for the
// user to acknowledge.  It returns the exit status.
func (s *Shell) Fail(err error) int {
	var inst polarimeter.Instrument
	if s.state == Open {
		inst = s.inst
	}
	fmt.Fprintf(s.Err, "ERROR: %s\n", s.Driver.ErrorMessage(inst, err))
	if s.Logger != nil {
		s.Logger.Println(err)
	}
	s.abort(nil)
	s.WaitAck()
	return 1
}

// WaitAck asks for <ENTER> and waits for it or the end of the input
func (s *Shell) WaitAck() {
	fmt.Fprint(s.Out, "Press <ENTER> to exit\n")
	s.Console.ReadLine()
}

// Main runs the program against resource, or the instrument found by a
// search if resource is empty, and returns the exit status
func (s *Shell) Main(resource string) int {
	fmt.Fprint(s.Out, banner)
	if resource == "" {
		loc := Locator{Driver: s.Driver, Console: s.Console, Out: s.Out, Spinner: s.Spinner}
		var err error
		resource, err = loc.Locate()
		if err != nil {
			return s.Fail(err)
		}
		if resource == "" {
			return 0
		}
	}
	if err := s.Open(resource); err != nil {
		return s.Fail(err)
	}
	if err := s.Run(); err != nil {
		return s.Fail(err)
	}
	return 0
}
