package usbtmc

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInvbTag(t *testing.T) {
	assert.Equal(t, byte(0xfe), invbTag(0x01))
	assert.Equal(t, byte(0x00), invbTag(0xff))
}

func TestbTagGenSkipsZero(t *testing.T) {
	g := newBTagGen()
	seen := map[byte]bool{}
	for i := 0; i < 600; i++ {
		tag := g.nextbTag()
		require.NotZero(t, tag)
		seen[tag] = true
	}
	assert.Len(t, seen, 255)
}

func TestBulkOutHeader(t *testing.T) {
	hdr := encBulkOutHeader(5, 6)
	assert.Equal(t, byte(msgDevDepOut), hdr[0])
	assert.Equal(t, byte(5), hdr[1])
	assert.Equal(t, byte(0xfa), hdr[2])
	assert.Equal(t, uint32(6), binary.LittleEndian.Uint32(hdr[4:8]))
	assert.Equal(t, byte(0x01), hdr[8])
}

func TestBulkInHeaderTerminator(t *testing.T) {
	term := byte('\n')
	hdr := encBulkInHeader(7, 1024, &term)
	assert.Equal(t, byte(msgDevDepInReq), hdr[0])
	assert.Equal(t, uint32(1024), binary.LittleEndian.Uint32(hdr[4:8]))
	assert.Equal(t, byte(0x02), hdr[8])
	assert.Equal(t, byte('\n'), hdr[9])

	hdr = encBulkInHeader(7, 1024, nil)
	assert.Equal(t, byte(0x00), hdr[8])
	assert.Equal(t, byte(0x00), hdr[9])
}

func TestPad4(t *testing.T) {
	assert.Len(t, pad4(make([]byte, 12)), 12)
	assert.Len(t, pad4(make([]byte, 13)), 16)
	assert.Len(t, pad4(make([]byte, 15)), 16)
}

func response(tag byte, payload string, pad int) []byte {
	buf := make([]byte, headerSize, headerSize+len(payload)+pad)
	buf[0] = msgDevDepInReq
	buf[1] = tag
	buf[2] = invbTag(tag)
	binary.LittleEndian.PutUint32(buf[4:8], uint32(len(payload)))
	buf[8] = 0x01
	buf = append(buf, payload...)
	return append(buf, make([]byte, pad)...)
}

func TestDecBulkInResponse(t *testing.T) {
	data, err := decBulkInResponse(9, response(9, "1.5\n", 0))
	require.NoError(t, err)
	assert.Equal(t, "1.5\n", string(data))

	// alignment padding is dropped
	data, err = decBulkInResponse(9, response(9, "60", 2))
	require.NoError(t, err)
	assert.Equal(t, "60", string(data))
}

func TestDecBulkInResponseRejects(t *testing.T) {
	_, err := decBulkInResponse(9, []byte{1, 2, 3})
	assert.Error(t, err)

	_, err = decBulkInResponse(8, response(9, "x", 0))
	assert.Error(t, err)

	bad := response(9, "x", 0)
	bad[0] = msgDevDepOut
	_, err = decBulkInResponse(9, bad)
	assert.Error(t, err)
}
