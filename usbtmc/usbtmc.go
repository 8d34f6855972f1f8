/*
Package usbtmc implements datagram encoding and decoding for USB Test and
Measurement Class devices.  This is a 'minimum viable product' for the bulk
transfer mode used by Thorlabs instruments such as the PAX1000 polarimeter.

It does not, for example, include features to support multi-packet
messaging, and thus assumes your data fits in the remote's buffer.

It also does not implement chatter / ping-pong for the case when data
does not fit in the remote buffer.

To send a message:
1.  Allocate a send buffer
2.  Write the header to it
3.  Write your data to it
4.  Ensure that the total transmission size is a multiple of 4 bytes before flushing

To receive a message:
1.  Allocate a receipt buffer
2.  Create a read header and send it on the Out endpoint
3.  Read from the In endpoint

These macros are implemented as Write() and Read() on the concrete USB type defined in this package.
*/
package usbtmc

import (
	"encoding/binary"
	"fmt"
	"sync"
)

const (
	// reserved is the byte to insert when the field is unused
	reserved = 0x00

	// headerSize is the length of every bulk header
	headerSize = 12

	msgDevDepOut   = 0x01
	msgDevDepInReq = 0x02
)

// BTagger can generate atomic bTags
type BTagger interface {
	nextbTag() byte
}

// bTagGen is a concurrent-safe bTag generator
type bTagGen struct {
	// embedded mutex for concurrent safety
	sync.Mutex

	value byte
	min   byte
}

func newBTagGen() *bTagGen {
	return &bTagGen{value: 1, min: 1}
}

func (b *bTagGen) nextbTag() byte {
	b.Lock()
	defer b.Unlock()
	b.value++
	if b.value < b.min {
		b.value = b.min
	}
	return b.value
}

// invbTag computes the bitwise inversion of a btag, per USBTMC standard table 1 offset 2
func invbTag(b byte) byte {
	// ^ is bitwise exclusive OR.  Comparing with 0xff (all 1s) is the bitwise inversion
	return b ^ 0xff
}

// encBulkOutHeader creates the header defined in USBTMC standard, Table 3
func encBulkOutHeader(tag byte, datalen int) [headerSize]byte {
	out := [headerSize]byte{}
	/* data map by offset:
	0 MsgID, 1 byte, here hardcoded to 1; devDepMsgOut
	1 bTag, a single byte 1 < x < 255, unique and incrementing with each message
	2 bTagInverse, a single byte, the bitwise inverse of bTag.  Can be calculated with invbTag
	3 Reserved (0x00)
	4-7 transferSize, LSB first, > 0
	8 bitmap, bit 0 EOM
	9-11 reserved
	*/
	out[0] = msgDevDepOut
	out[1] = tag
	out[2] = invbTag(tag)
	out[3] = reserved
	binary.LittleEndian.PutUint32(out[4:8], uint32(datalen))
	out[8] = 0x01 // hardcode end of message
	return out
}

// encBulkInHeader creates the header defined in USBTMC standard, Table 4.
// if terminator is nil, puts 0x00 in the header and sets the bit to use it to false
func encBulkInHeader(tag byte, bufsize int, terminator *byte) [headerSize]byte {
	out := [headerSize]byte{}
	/* this differs from BulkOut by bytes 8~11
	8 bitmap, bit 1 termination character enabled
	9 terminator byte
	10~11 reserved
	*/
	out[0] = msgDevDepInReq
	out[1] = tag
	out[2] = invbTag(tag)
	out[3] = reserved
	binary.LittleEndian.PutUint32(out[4:8], uint32(bufsize))
	if terminator != nil {
		out[8] = 0x02
		out[9] = *terminator
	}
	return out
}

// decBulkInResponse validates the header of a bulk in response to the
// request tagged tag and returns the payload
func decBulkInResponse(tag byte, buf []byte) ([]byte, error) {
	if len(buf) < headerSize {
		return nil, fmt.Errorf("only received %d bytes, need at least %d to form header", len(buf), headerSize)
	}
	if buf[0] != msgDevDepInReq {
		return nil, fmt.Errorf("unexpected MsgID 0x%02x in bulk in response", buf[0])
	}
	if buf[1] != tag || buf[2] != invbTag(tag) {
		return nil, fmt.Errorf("bTag mismatch, sent %d received %d", tag, buf[1])
	}
	size := int(binary.LittleEndian.Uint32(buf[4:8]))
	data := buf[headerSize:]
	if size < len(data) {
		// trailing alignment bytes
		data = data[:size]
	}
	return data, nil
}

// pad4 zero-pads b to a multiple of 4 bytes
func pad4(b []byte) []byte {
	const (
		alignment = 4
	)
	if residual := len(b) % alignment; residual > 0 {
		b = append(b, make([]byte, alignment-residual)...)
	}
	return b
}
