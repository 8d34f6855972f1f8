/*
Package visa parses and formats VISA resource names and turns them into
connections using the transports in this module.

Supported resource classes:

	USB[board]::<vid>::<pid>::<serial>[::<interface>]::INSTR
	TCPIP[board]::<host>::<port>::SOCKET
	ASRL<port>[::INSTR]

ASRL ports may be a path (ASRL/dev/ttyUSB0::INSTR) or a number, which is
mapped to COM<n>.
*/
package visa

import (
	"fmt"
	"strconv"
	"strings"
)

// Interface is the bus class of a resource
type Interface int

const (
	// USB is a USBTMC instrument
	USB Interface = iota
	// TCPIP is a raw socket instrument
	TCPIP
	// ASRL is a serial instrument
	ASRL
)

func (i Interface) String() string {
	switch i {
	case USB:
		return "USB"
	case TCPIP:
		return "TCPIP"
	case ASRL:
		return "ASRL"
	default:
		return "UNKNOWN"
	}
}

// Resource is a parsed VISA resource name
type Resource struct {
	Interface Interface
	Board     int

	// USB
	VendorID, ProductID uint16
	Serial              string
	USBInterface        int

	// TCPIP
	Host string
	Port int

	// ASRL
	Device string
}

// NewUSBResource is a convenience constructor for a USB INSTR resource on board 0
func NewUSBResource(vid, pid uint16, serial string) Resource {
	return Resource{Interface: USB, VendorID: vid, ProductID: pid, Serial: serial}
}

// String formats the canonical resource name
func (r Resource) String() string {
	switch r.Interface {
	case USB:
		return fmt.Sprintf("USB%d::0x%04X::0x%04X::%s::%d::INSTR", r.Board, r.VendorID, r.ProductID, r.Serial, r.USBInterface)
	case TCPIP:
		return fmt.Sprintf("TCPIP%d::%s::%d::SOCKET", r.Board, r.Host, r.Port)
	case ASRL:
		return fmt.Sprintf("ASRL%s::INSTR", r.Device)
	default:
		return ""
	}
}

// Addr is the host:port of a TCPIP resource
func (r Resource) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

// SerialPort is the OS name of an ASRL resource's port
func (r Resource) SerialPort() string {
	if _, err := strconv.Atoi(r.Device); err == nil {
		return "COM" + r.Device
	}
	return r.Device
}

// ParseResource parses a VISA resource name.  Errors are ErrorInvalidResourceName.
func ParseResource(s string) (Resource, error) {
	var r Resource
	parts := strings.Split(strings.TrimSpace(s), "::")
	head := strings.ToUpper(parts[0])
	switch {
	case strings.HasPrefix(head, "USB"):
		r.Interface = USB
		return r, parseUSB(&r, head[3:], parts[1:])
	case strings.HasPrefix(head, "TCPIP"):
		r.Interface = TCPIP
		return r, parseTCPIP(&r, head[5:], parts[1:])
	case strings.HasPrefix(head, "ASRL"):
		r.Interface = ASRL
		r.Device = parts[0][4:]
		if r.Device == "" {
			return r, ErrorInvalidResourceName
		}
		if len(parts) > 2 || (len(parts) == 2 && !strings.EqualFold(parts[1], "INSTR")) {
			return r, ErrorInvalidResourceName
		}
		return r, nil
	}
	return r, ErrorInvalidResourceName
}

func parseBoard(s string) (int, error) {
	if s == "" {
		return 0, nil
	}
	b, err := strconv.Atoi(s)
	if err != nil || b < 0 {
		return 0, ErrorInvalidResourceName
	}
	return b, nil
}

func parseUSB(r *Resource, board string, rest []string) error {
	var err error
	if r.Board, err = parseBoard(board); err != nil {
		return err
	}
	// vid, pid, serial, [iface], INSTR
	if len(rest) != 4 && len(rest) != 5 {
		return ErrorInvalidResourceName
	}
	if !strings.EqualFold(rest[len(rest)-1], "INSTR") {
		return ErrorInvalidResourceName
	}
	vid, err := strconv.ParseUint(rest[0], 0, 16)
	if err != nil {
		return ErrorInvalidResourceName
	}
	pid, err := strconv.ParseUint(rest[1], 0, 16)
	if err != nil {
		return ErrorInvalidResourceName
	}
	r.VendorID, r.ProductID = uint16(vid), uint16(pid)
	r.Serial = rest[2]
	if len(rest) == 5 {
		if r.USBInterface, err = strconv.Atoi(rest[3]); err != nil {
			return ErrorInvalidResourceName
		}
	}
	return nil
}

func parseTCPIP(r *Resource, board string, rest []string) error {
	var err error
	if r.Board, err = parseBoard(board); err != nil {
		return err
	}
	if len(rest) != 3 || !strings.EqualFold(rest[2], "SOCKET") || rest[0] == "" {
		return ErrorInvalidResourceName
	}
	r.Host = rest[0]
	r.Port, err = strconv.Atoi(rest[1])
	if err != nil || r.Port <= 0 || r.Port > 65535 {
		return ErrorInvalidResourceName
	}
	return nil
}
