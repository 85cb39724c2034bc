package protocol

import (
	"encoding/binary"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func neighborPayload(total, results int16, entries ...[]byte) []byte {
	payload := make([]byte, 4)
	binary.LittleEndian.PutUint16(payload[0:], uint16(total))
	binary.LittleEndian.PutUint16(payload[2:], uint16(results))
	for _, e := range entries {
		payload = append(payload, e...)
	}
	return payload
}

func neighborEntry(prefix []byte, secsAgo int32, snrX4 int8) []byte {
	e := append([]byte(nil), prefix...)
	e = append(e, 0, 0, 0, 0, byte(snrX4))
	binary.LittleEndian.PutUint32(e[len(prefix):], uint32(secsAgo))
	return e
}

func TestDecodeNeighborList(t *testing.T) {
	payload := neighborPayload(5, 2,
		neighborEntry([]byte{1, 2, 3, 4}, 30, 26),   // 6.5 dB
		neighborEntry([]byte{5, 6, 7, 8}, 600, -12), // -3.0 dB
	)

	nl, ok := TryDecodeNeighborList(payload, 0)
	require.True(t, ok)
	assert.Equal(t, int16(5), nl.TotalCount)
	require.Len(t, nl.Neighbors, 2)
	assert.Equal(t, []byte{1, 2, 3, 4}, nl.Neighbors[0].KeyPrefix)
	assert.Equal(t, int32(30), nl.Neighbors[0].SecondsAgo)
	assert.InDelta(t, 6.5, nl.Neighbors[0].SNRdB, 0.001)
	assert.InDelta(t, -3.0, nl.Neighbors[1].SNRdB, 0.001)
}

func TestDecodeNeighborListRejectsBadCounts(t *testing.T) {
	_, ok := TryDecodeNeighborList(neighborPayload(-1, 0), 0)
	assert.False(t, ok)

	_, ok = TryDecodeNeighborList(neighborPayload(3, -2), 0)
	assert.False(t, ok)

	// Buffer must cover results x entrySize before any entry is read.
	short := neighborPayload(3, 2, neighborEntry([]byte{1, 2, 3, 4}, 1, 0))
	_, ok = TryDecodeNeighborList(short, 0)
	assert.False(t, ok)
}

func TestDecodeNeighborListCustomPrefix(t *testing.T) {
	payload := neighborPayload(1, 1, neighborEntry([]byte{1, 2, 3, 4, 5, 6}, 10, 4))
	nl, ok := TryDecodeNeighborList(payload, 6)
	require.True(t, ok)
	assert.Equal(t, []byte{1, 2, 3, 4, 5, 6}, nl.Neighbors[0].KeyPrefix)
}

func TestDecodePathDiscoveryResult(t *testing.T) {
	data := []byte{byte(PushTraceData), 2, 0xAB, 0xCD, 3, 0x01, 0x02, 0x03}
	r, ok := TryDecodePathDiscoveryResult(data)
	require.True(t, ok)
	assert.Equal(t, "abcd", r.OutboundPath)
	assert.Equal(t, "010203", r.InboundPath)

	// Same payload without the push marker.
	r, ok = TryDecodePathDiscoveryResult(data[1:])
	require.True(t, ok)
	assert.Equal(t, "abcd", r.OutboundPath)

	for n := 0; n < len(data); n++ {
		_, ok := TryDecodePathDiscoveryResult(data[:n])
		assert.False(t, ok, "len %d", n)
	}
}

func TestDecodeCurrTime(t *testing.T) {
	frame := []byte{byte(RespCurrTime), 0, 0, 0, 0}
	binary.LittleEndian.PutUint32(frame[1:], 1700000000)

	got, ok := TryDecodeCurrTime(frame)
	require.True(t, ok)
	assert.Equal(t, time.Unix(1700000000, 0).UTC(), got)

	_, ok = TryDecodeCurrTime(frame[:4])
	assert.False(t, ok)
}

func TestDecodeAdvert(t *testing.T) {
	frame := make([]byte, 1+PublicKeySize)
	frame[0] = byte(PushAdvert)
	for i := 0; i < PublicKeySize; i++ {
		frame[1+i] = byte(i)
	}

	adv, ok := TryDecodeAdvert(frame)
	require.True(t, ok)
	assert.Len(t, adv.PublicKey, PublicKeySize)

	_, ok = TryDecodeAdvert(frame[:PublicKeySize])
	assert.False(t, ok)
}

func TestDecodeLogRxData(t *testing.T) {
	frame := []byte{byte(PushLogRxData), 0x14, 0xA6, 0xDE, 0xAD} // snr 5.0, rssi -90
	rx, ok := TryDecodeLogRxData(frame)
	require.True(t, ok)
	assert.InDelta(t, 5.0, rx.SNRdB, 0.001)
	assert.Equal(t, int8(-90), rx.RSSI)
	assert.Equal(t, []byte{0xDE, 0xAD}, rx.Payload)
}
