package protocol

import (
	"encoding/binary"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChannelMessageEncodeVector(t *testing.T) {
	ts := time.Unix(1700000000, 0)
	payload, err := ChannelMessageParams{ChannelIdx: 0, Timestamp: ts, Text: "Hello"}.Encode()
	require.NoError(t, err)

	want := []byte{0x00, 0x00, 0, 0, 0, 0, 'H', 'e', 'l', 'l', 'o', 0x00}
	binary.LittleEndian.PutUint32(want[2:], 1700000000)
	assert.Equal(t, want, payload)
}

func TestContactMessageEncodeHasNoNUL(t *testing.T) {
	key := []byte{1, 2, 3, 4, 5, 6, 7, 8}
	payload, err := ContactMessageParams{
		TargetKey: key,
		Attempt:   1,
		Timestamp: time.Unix(1700000000, 0),
		Text:      "hi",
	}.Encode()
	require.NoError(t, err)

	assert.Equal(t, byte(0x00), payload[0])
	assert.Equal(t, byte(1), payload[1])
	assert.Equal(t, key[:PubKeyPrefixSize], payload[6:12])
	assert.Equal(t, "hi", string(payload[12:]))
	assert.NotEqual(t, byte(0), payload[len(payload)-1])
}

func TestContactMessageEncodeRejects(t *testing.T) {
	_, err := ContactMessageParams{TargetKey: []byte{1, 2}, Text: "hi"}.Encode()
	assert.ErrorIs(t, err, ErrNoTargetKey)

	_, err = ContactMessageParams{TargetKey: make([]byte, 32)}.Encode()
	assert.ErrorIs(t, err, ErrEmptyText)
}

func TestCommandRoundTrip(t *testing.T) {
	in := Command{
		TargetKey: []byte{9, 8, 7, 6, 5, 4},
		Attempt:   2,
		Timestamp: time.Unix(1700000000, 0).UTC(),
		Text:      "clock sync",
	}
	payload, err := in.Encode()
	require.NoError(t, err)

	// CLI marker and NUL terminator are what distinguish a command from chat.
	assert.Equal(t, byte(0x01), payload[0])
	assert.Equal(t, byte(0), payload[len(payload)-1])

	out, ok := TryDecodeCommand(payload)
	require.True(t, ok)
	assert.Equal(t, in.TargetKey, out.TargetKey)
	assert.Equal(t, in.Attempt, out.Attempt)
	assert.Equal(t, in.Timestamp, out.Timestamp)
	assert.Equal(t, in.Text, out.Text)
}

func TestRadioParamsRoundTrip(t *testing.T) {
	in := RadioParams{FreqKHz: 869525, BwHz: 250000, SF: 11, CR: 5}
	payload, err := in.Encode()
	require.NoError(t, err)
	require.Len(t, payload, 10)

	out, ok := TryDecodeRadioParams(payload)
	require.True(t, ok)
	assert.Equal(t, in, out)
}

func TestRadioParamsValidation(t *testing.T) {
	_, err := RadioParams{FreqKHz: 869525, BwHz: 250000, SF: 4, CR: 5}.Encode()
	assert.ErrorIs(t, err, ErrBadRadioSF)

	_, err = RadioParams{FreqKHz: 869525, BwHz: 250000, SF: 7, CR: 9}.Encode()
	assert.ErrorIs(t, err, ErrBadRadioCR)
}

func TestSendTracePathRoundTrip(t *testing.T) {
	in := SendTracePathParams{Tag: 0xDEADBEEF, AuthCode: 0x1234, Flags: 1, Path: []byte{0x11, 0x22}}
	payload, err := in.Encode()
	require.NoError(t, err)

	out, ok := TryDecodeSendTracePathParams(payload)
	require.True(t, ok)
	assert.Equal(t, in, out)

	_, err = SendTracePathParams{Path: make([]byte, 65)}.Encode()
	assert.ErrorIs(t, err, ErrPathTooLong)
}

func TestAdvertPathInfoRoundTrip(t *testing.T) {
	in := AdvertPathInfo{KeyPrefix: []byte{1, 2, 3, 4, 5, 6}, Path: OutboundRoute{0xAA, 0xBB}}
	payload, err := in.Encode()
	require.NoError(t, err)

	out, ok := TryDecodeAdvertPathInfo(payload)
	require.True(t, ok)
	assert.Equal(t, in.KeyPrefix, out.KeyPrefix)
	assert.Equal(t, in.Path, out.Path)
}

func TestAdvertPathInfoNoPathSentinel(t *testing.T) {
	in := AdvertPathInfo{KeyPrefix: []byte{1, 2, 3, 4, 5, 6}}
	payload, err := in.Encode()
	require.NoError(t, err)
	assert.Equal(t, NoPath, payload[PubKeyPrefixSize])

	out, ok := TryDecodeAdvertPathInfo(payload)
	require.True(t, ok)
	assert.Nil(t, out.Path)
}

func TestAdvertPathInfoSkipsPushCode(t *testing.T) {
	payload := []byte{byte(PushPathUpdated), 1, 2, 3, 4, 5, 6, 1, 0x42}
	out, ok := TryDecodeAdvertPathInfo(payload)
	require.True(t, ok)
	assert.Equal(t, []byte{1, 2, 3, 4, 5, 6}, out.KeyPrefix)
	assert.Equal(t, OutboundRoute{0x42}, out.Path)
}

func TestDecodeSent(t *testing.T) {
	frame := []byte{byte(RespSent), 0x01, 0, 0, 0, 0, 0, 0, 0, 0}
	binary.LittleEndian.PutUint32(frame[2:], 0xCAFEBABE)
	binary.LittleEndian.PutUint32(frame[6:], 3000)

	sent, ok := TryDecodeSent(frame)
	require.True(t, ok)
	assert.Equal(t, int8(1), sent.Result)
	assert.Equal(t, uint32(0xCAFEBABE), sent.AckCode)
	assert.Equal(t, uint32(3000), sent.EstTimeoutMs)

	for n := 0; n < len(frame); n++ {
		_, ok := TryDecodeSent(frame[:n])
		assert.False(t, ok, "len %d", n)
	}
}

func TestDecodeSendConfirmed(t *testing.T) {
	frame := []byte{byte(PushSendConfirmed), 0, 0, 0, 0, 0, 0, 0, 0}
	binary.LittleEndian.PutUint32(frame[1:], 0xCAFEBABE)
	binary.LittleEndian.PutUint32(frame[5:], 1250)

	conf, ok := TryDecodeSendConfirmed(frame)
	require.True(t, ok)
	assert.Equal(t, uint32(0xCAFEBABE), conf.AckCode)
	assert.Equal(t, uint32(1250), conf.RoundTripMs)
}
