package protocol

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeBatteryAndStorage(t *testing.T) {
	frame := make([]byte, 11)
	frame[0] = byte(RespBattAndStorage)
	binary.LittleEndian.PutUint16(frame[1:], 4150)
	binary.LittleEndian.PutUint32(frame[3:], 120)
	binary.LittleEndian.PutUint32(frame[7:], 8192)

	b, ok := TryDecodeBatteryAndStorage(frame)
	require.True(t, ok)
	assert.Equal(t, uint16(4150), b.BatteryMv)
	assert.Equal(t, uint32(120), b.StorageUsedKB)
	assert.Equal(t, uint32(8192), b.StorageTotalKB)

	// Old firmware sends voltage only.
	b, ok = TryDecodeBatteryAndStorage(frame[:3])
	require.True(t, ok)
	assert.Equal(t, uint16(4150), b.BatteryMv)
	assert.Zero(t, b.StorageUsedKB)

	_, ok = TryDecodeBatteryAndStorage(frame[:2])
	assert.False(t, ok)
}

func packedStatusFrame() []byte {
	frame := make([]byte, statusFrameLen)
	frame[0] = byte(PushStatusResponse)
	copy(frame[2:], []byte{1, 2, 3, 4, 5, 6})
	off := statusHeaderLen
	binary.LittleEndian.PutUint16(frame[off:], 3950)
	binary.LittleEndian.PutUint16(frame[off+2:], 2)
	noise, rssi := int16(-102), int16(-88)
	binary.LittleEndian.PutUint16(frame[off+4:], uint16(noise))
	binary.LittleEndian.PutUint16(frame[off+6:], uint16(rssi))
	binary.LittleEndian.PutUint32(frame[off+8:], 1000)
	binary.LittleEndian.PutUint32(frame[off+12:], 900)
	binary.LittleEndian.PutUint32(frame[off+16:], 360)
	binary.LittleEndian.PutUint32(frame[off+20:], 86400)
	binary.LittleEndian.PutUint32(frame[off+24:], 500)
	binary.LittleEndian.PutUint32(frame[off+28:], 400)
	binary.LittleEndian.PutUint32(frame[off+32:], 600)
	binary.LittleEndian.PutUint32(frame[off+36:], 300)
	binary.LittleEndian.PutUint16(frame[off+40:], 3)
	binary.LittleEndian.PutUint16(frame[off+42:], 26) // 6.5 dB x4
	binary.LittleEndian.PutUint16(frame[off+44:], 7)
	binary.LittleEndian.PutUint16(frame[off+46:], 9)
	return frame
}

func TestDecodeStatusInfoPacked(t *testing.T) {
	s, ok := TryDecodeStatusInfo(packedStatusFrame())
	require.True(t, ok)
	assert.Equal(t, []byte{1, 2, 3, 4, 5, 6}, s.KeyPrefix)
	assert.Equal(t, uint16(3950), s.BatteryMv)
	assert.Equal(t, uint16(2), s.TxQueueLen)
	assert.Equal(t, int16(-102), s.NoiseFloor)
	assert.Equal(t, int16(-88), s.LastRSSI)
	assert.Equal(t, uint32(1000), s.RecvPackets)
	assert.Equal(t, uint32(900), s.SentPackets)
	assert.Equal(t, uint32(86400), s.UptimeSecs)
	assert.InDelta(t, 6.5, s.LastSNRdB, 0.001)
	assert.Equal(t, uint16(7), s.DirectDups)
	assert.Equal(t, uint16(9), s.FloodDups)
}

func TestDecodeStatusInfoJSONFallback(t *testing.T) {
	body := `{"batt":4000,"tx_queue_len":1,"noise_floor":-100,"last_rssi":-90,"nrecv":10,"nsent":5,"airtime":60,"uptime":3600,"last_snr":4.5}`
	frame := append([]byte{byte(PushStatusResponse), 0, 1, 2, 3, 4, 5, 6}, body...)

	s, ok := TryDecodeStatusInfo(frame)
	require.True(t, ok)
	assert.Equal(t, uint16(4000), s.BatteryMv)
	assert.Equal(t, int16(-100), s.NoiseFloor)
	assert.Equal(t, uint32(10), s.RecvPackets)
	assert.InDelta(t, 4.5, s.LastSNRdB, 0.001)
}

func TestDecodeStatusInfoTruncation(t *testing.T) {
	frame := packedStatusFrame()
	for n := 0; n < len(frame); n++ {
		_, ok := TryDecodeStatusInfo(frame[:n])
		assert.False(t, ok, "len %d", n)
	}
}

func TestDecodeRadioStats(t *testing.T) {
	frame := make([]byte, radioStatsLen)
	frame[0] = byte(RespStats)
	binary.LittleEndian.PutUint32(frame[1:], 360)
	binary.LittleEndian.PutUint32(frame[5:], 7200)
	binary.LittleEndian.PutUint32(frame[9:], 111)
	binary.LittleEndian.PutUint32(frame[13:], 222)
	binary.LittleEndian.PutUint32(frame[17:], 50)
	binary.LittleEndian.PutUint32(frame[21:], 60)
	binary.LittleEndian.PutUint32(frame[25:], 70)
	binary.LittleEndian.PutUint32(frame[29:], 80)
	lastRSSI, noise, snr := int16(-95), int16(-110), int16(-10)
	binary.LittleEndian.PutUint16(frame[33:], uint16(lastRSSI))
	binary.LittleEndian.PutUint16(frame[35:], uint16(noise))
	binary.LittleEndian.PutUint16(frame[37:], uint16(snr)) // -2.5 dB x4
	binary.LittleEndian.PutUint16(frame[39:], 1)
	binary.LittleEndian.PutUint16(frame[41:], 2)
	binary.LittleEndian.PutUint16(frame[43:], 3)

	s, ok := TryDecodeRadioStats(frame)
	require.True(t, ok)
	assert.Equal(t, uint32(360), s.AirtimeSecs)
	assert.Equal(t, uint32(7200), s.UptimeSecs)
	assert.Equal(t, uint32(111), s.RecvPackets)
	assert.Equal(t, int16(-95), s.LastRSSI)
	assert.Equal(t, int16(-110), s.NoiseFloor)
	assert.InDelta(t, -2.5, s.LastSNRdB, 0.001)
	assert.Equal(t, uint16(3), s.FullEvents)

	for n := 0; n < len(frame); n++ {
		_, ok := TryDecodeRadioStats(frame[:n])
		assert.False(t, ok, "len %d", n)
	}
}
