package transport

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteFrameFraming(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, writeFrame(&buf, []byte{0x01, 0xAA, 0xBB}))

	out := buf.Bytes()
	require.Len(t, out, frameHeaderLen+3)
	assert.Equal(t, FramePrefixOut, out[0])
	assert.Equal(t, uint16(3), binary.LittleEndian.Uint16(out[1:3]))
	assert.Equal(t, []byte{0x01, 0xAA, 0xBB}, out[3:])
}

func TestWriteFrameRejectsOversize(t *testing.T) {
	var buf bytes.Buffer
	err := writeFrame(&buf, make([]byte, MaxFrameSize+1))
	assert.Error(t, err)
	assert.Zero(t, buf.Len())
}

func TestReadFrame(t *testing.T) {
	payload := []byte{0x05, 0x01, 0x02}
	raw := append([]byte{FramePrefixIn, 3, 0}, payload...)

	frame, err := readFrame(bytes.NewReader(raw))
	require.NoError(t, err)
	assert.Equal(t, payload, frame)
}

func TestReadFrameRejectsBadPrefix(t *testing.T) {
	raw := []byte{0x00, 3, 0, 1, 2, 3}
	_, err := readFrame(bytes.NewReader(raw))
	assert.Error(t, err)
}

func TestReadFrameRejectsOversizeLength(t *testing.T) {
	raw := []byte{FramePrefixIn, 0xFF, 0xFF}
	_, err := readFrame(bytes.NewReader(raw))
	assert.Error(t, err)
}

func TestReadFrameShortPayload(t *testing.T) {
	raw := []byte{FramePrefixIn, 10, 0, 1, 2}
	_, err := readFrame(bytes.NewReader(raw))
	assert.Error(t, err)
}

func TestReadFrameEmptyPayload(t *testing.T) {
	frame, err := readFrame(bytes.NewReader([]byte{FramePrefixIn, 0, 0}))
	require.NoError(t, err)
	assert.Empty(t, frame)
}
