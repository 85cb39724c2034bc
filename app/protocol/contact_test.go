package protocol

import (
	"encoding/binary"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func contactFrame(pathLen byte, path []byte, name string) []byte {
	frame := make([]byte, contactMinLen+contactNameField)
	frame[0] = byte(RespContact)
	for i := 0; i < PublicKeySize; i++ {
		frame[1+i] = byte(i + 1)
	}
	frame[contactTypeOff] = byte(NodeTypeRepeater)
	frame[contactFlagsOff] = 0x01
	frame[contactPathLenOff] = pathLen
	copy(frame[contactPathOff:], path)
	copy(frame[contactNameOff:], name)
	return frame
}

func TestDecodeContact(t *testing.T) {
	c, ok := TryDecodeContact(contactFrame(2, []byte{0x10, 0x20}, "Alice Node"))
	require.True(t, ok)
	assert.Equal(t, NodeTypeRepeater, c.Type)
	assert.Equal(t, byte(0x01), c.Flags)
	assert.Equal(t, OutboundRoute{0x10, 0x20}, c.OutPath)
	assert.Equal(t, "Alice Node", c.Name)
	assert.Len(t, c.PublicKey, PublicKeySize)
}

func TestDecodeContactPathSentinels(t *testing.T) {
	// 0xFF: no path was ever learned.
	c, ok := TryDecodeContact(contactFrame(NoPath, nil, "Bob"))
	require.True(t, ok)
	assert.Nil(t, c.OutPath)

	// 0: a learned zero-hop (direct) path, distinct from "unknown".
	c, ok = TryDecodeContact(contactFrame(0, nil, "Bob"))
	require.True(t, ok)
	assert.NotNil(t, c.OutPath)
	assert.Empty(t, c.OutPath)

	// Longer than the fixed path block is garbage.
	_, ok = TryDecodeContact(contactFrame(65, nil, "Bob"))
	assert.False(t, ok)
}

func TestDecodeContactUnknownName(t *testing.T) {
	c, ok := TryDecodeContact(contactFrame(0, nil, ""))
	require.True(t, ok)
	assert.Equal(t, UnknownContactName, c.Name)
}

func TestDecodeContactTrailingFields(t *testing.T) {
	frame := contactFrame(0, nil, "Carol")
	lastAdvert, lastMod := uint32(1700000000), uint32(1700000500)
	lat, lon := int32(51500000), int32(-100000)
	tail := make([]byte, 16)
	binary.LittleEndian.PutUint32(tail[0:], lastAdvert)
	binary.LittleEndian.PutUint32(tail[4:], uint32(lat))
	binary.LittleEndian.PutUint32(tail[8:], uint32(lon))
	binary.LittleEndian.PutUint32(tail[12:], lastMod)
	frame = append(frame, tail...)

	c, ok := TryDecodeContact(frame)
	require.True(t, ok)
	assert.Equal(t, time.Unix(1700000000, 0).UTC(), c.LastAdvert)
	assert.InDelta(t, 51.5, c.Latitude, 0.0001)
	assert.InDelta(t, -0.1, c.Longitude, 0.0001)
	assert.Equal(t, time.Unix(1700000500, 0).UTC(), c.LastMod)
}

func TestDecodeContactAbsentTrailingFieldsDefaultZero(t *testing.T) {
	c, ok := TryDecodeContact(contactFrame(0, nil, "Dave"))
	require.True(t, ok)
	assert.True(t, c.LastAdvert.IsZero())
	assert.True(t, c.LastMod.IsZero())
	assert.Zero(t, c.Latitude)
	assert.Zero(t, c.Longitude)
}

func TestDecodeContactTruncation(t *testing.T) {
	frame := contactFrame(2, []byte{1, 2}, "Eve")
	for n := 0; n < contactMinLen; n++ {
		_, ok := TryDecodeContact(frame[:n])
		assert.False(t, ok, "len %d", n)
	}
}

func TestDecodeContactsStart(t *testing.T) {
	frame := []byte{byte(RespContactsStart), 0, 0, 0, 0}
	binary.LittleEndian.PutUint32(frame[1:], 42)
	count, ok := TryDecodeContactsStart(frame)
	require.True(t, ok)
	assert.Equal(t, uint32(42), count)

	_, ok = TryDecodeContactsStart(frame[:4])
	assert.False(t, ok)
}
