package protocol

import (
	"encoding/json"
)

// BatteryAndStorage is the reply to GetBattAndStorage (code 0x0C): battery
// millivolts, plus flash usage on firmware new enough to report it.
type BatteryAndStorage struct {
	BatteryMv      uint16
	StorageUsedKB  uint32
	StorageTotalKB uint32
}

// TryDecodeBatteryAndStorage parses a BattAndStorage reply frame. The
// storage counters are optional trailing fields.
func TryDecodeBatteryAndStorage(frame []byte) (BatteryAndStorage, bool) {
	var b BatteryAndStorage
	if len(frame) < 3 || ResponseCode(frame[0]) != RespBattAndStorage {
		return b, false
	}
	b.BatteryMv, _ = uint16At(frame, 1)
	if used, ok := uint32At(frame, 3); ok {
		b.StorageUsedKB = used
	}
	if total, ok := uint32At(frame, 7); ok {
		b.StorageTotalKB = total
	}
	return b, true
}

// DecodeBatteryAndStorage is the raising wrapper around
// TryDecodeBatteryAndStorage.
func DecodeBatteryAndStorage(frame []byte) (BatteryAndStorage, error) {
	b, ok := TryDecodeBatteryAndStorage(frame)
	if !ok {
		return BatteryAndStorage{}, decodeErr("BatteryAndStorage")
	}
	return b, nil
}

// StatusInfo is a remote node's health snapshot, delivered as a
// StatusResponse push (code 0x87) after a SendStatusReq.
type StatusInfo struct {
	KeyPrefix   []byte  // 6-byte pubkey prefix of the reporting node
	BatteryMv   uint16
	TxQueueLen  uint16
	NoiseFloor  int16
	LastRSSI    int16
	RecvPackets uint32
	SentPackets uint32
	AirtimeSecs uint32
	UptimeSecs  uint32
	SentFlood   uint32
	SentDirect  uint32
	RecvFlood   uint32
	RecvDirect  uint32
	FullEvents  uint16
	LastSNRdB   float32
	DirectDups  uint16
	FloodDups   uint16
}

// Packed StatusInfo layout after the 8-byte header
// (code(1) reserved(1) keyPrefix(6)):
// battMv(2) txQueue(2) noiseFloor(2) lastRSSI(2)
// recv(4) sent(4) airtime(4) uptime(4)
// sentFlood(4) sentDirect(4) recvFlood(4) recvDirect(4)
// fullEvents(2) lastSNRx4(2) directDups(2) floodDups(2).
const (
	statusHeaderLen = 2 + PubKeyPrefixSize
	statusBodyLen   = 4*2 + 8*4 + 4*2
	statusFrameLen  = statusHeaderLen + statusBodyLen
)

// TryDecodeStatusInfo parses a StatusResponse frame. The packed binary
// layout is authoritative; a JSON body (legacy firmware) is accepted
// best-effort when the payload starts with '{'. The two encodings are not
// otherwise distinguishable, so no deeper sniffing is attempted.
func TryDecodeStatusInfo(frame []byte) (StatusInfo, bool) {
	var s StatusInfo
	if len(frame) < statusHeaderLen || ResponseCode(frame[0]) != PushStatusResponse {
		return s, false
	}
	s.KeyPrefix = append([]byte(nil), frame[2:2+PubKeyPrefixSize]...)

	body := frame[statusHeaderLen:]
	if len(body) > 0 && body[0] == '{' {
		return tryDecodeStatusJSON(s, body)
	}
	if len(frame) < statusFrameLen {
		return StatusInfo{}, false
	}

	off := statusHeaderLen
	s.BatteryMv, _ = uint16At(frame, off)
	s.TxQueueLen, _ = uint16At(frame, off+2)
	s.NoiseFloor, _ = int16At(frame, off+4)
	s.LastRSSI, _ = int16At(frame, off+6)
	s.RecvPackets, _ = uint32At(frame, off+8)
	s.SentPackets, _ = uint32At(frame, off+12)
	s.AirtimeSecs, _ = uint32At(frame, off+16)
	s.UptimeSecs, _ = uint32At(frame, off+20)
	s.SentFlood, _ = uint32At(frame, off+24)
	s.SentDirect, _ = uint32At(frame, off+28)
	s.RecvFlood, _ = uint32At(frame, off+32)
	s.RecvDirect, _ = uint32At(frame, off+36)
	s.FullEvents, _ = uint16At(frame, off+40)
	snr, _ := int16At(frame, off+42)
	s.LastSNRdB = float32(snr) / 4.0
	s.DirectDups, _ = uint16At(frame, off+44)
	s.FloodDups, _ = uint16At(frame, off+46)
	return s, true
}

// statusJSON is the legacy JSON-over-bytes status body.
type statusJSON struct {
	Batt       uint16  `json:"batt"`
	TxQueueLen uint16  `json:"tx_queue_len"`
	NoiseFloor int16   `json:"noise_floor"`
	LastRSSI   int16   `json:"last_rssi"`
	NRecv      uint32  `json:"nrecv"`
	NSent      uint32  `json:"nsent"`
	Airtime    uint32  `json:"airtime"`
	Uptime     uint32  `json:"uptime"`
	LastSNR    float32 `json:"last_snr"`
}

func tryDecodeStatusJSON(s StatusInfo, body []byte) (StatusInfo, bool) {
	var j statusJSON
	if err := json.Unmarshal(trimTrailingNULs(body), &j); err != nil {
		return StatusInfo{}, false
	}
	s.BatteryMv = j.Batt
	s.TxQueueLen = j.TxQueueLen
	s.NoiseFloor = j.NoiseFloor
	s.LastRSSI = j.LastRSSI
	s.RecvPackets = j.NRecv
	s.SentPackets = j.NSent
	s.AirtimeSecs = j.Airtime
	s.UptimeSecs = j.Uptime
	s.LastSNRdB = j.LastSNR
	return s, true
}

// DecodeStatusInfo is the raising wrapper around TryDecodeStatusInfo.
func DecodeStatusInfo(frame []byte) (StatusInfo, error) {
	s, ok := TryDecodeStatusInfo(frame)
	if !ok {
		return StatusInfo{}, decodeErr("StatusInfo")
	}
	return s, nil
}

// RadioStats is the local radio's counter snapshot (reply code 0x15).
type RadioStats struct {
	AirtimeSecs uint32
	UptimeSecs  uint32
	RecvPackets uint32
	SentPackets uint32
	SentFlood   uint32
	SentDirect  uint32
	RecvFlood   uint32
	RecvDirect  uint32
	LastRSSI    int16
	NoiseFloor  int16
	LastSNRdB   float32
	DirectDups  uint16
	FloodDups   uint16
	FullEvents  uint16
}

// radioStatsLen is code(1) + 8 u32 counters + 3 i16 + 3 u16.
const radioStatsLen = 1 + 8*4 + 6*2

// TryDecodeRadioStats parses a Stats reply frame.
func TryDecodeRadioStats(frame []byte) (RadioStats, bool) {
	var s RadioStats
	if len(frame) < radioStatsLen || ResponseCode(frame[0]) != RespStats {
		return s, false
	}

	s.AirtimeSecs, _ = uint32At(frame, 1)
	s.UptimeSecs, _ = uint32At(frame, 5)
	s.RecvPackets, _ = uint32At(frame, 9)
	s.SentPackets, _ = uint32At(frame, 13)
	s.SentFlood, _ = uint32At(frame, 17)
	s.SentDirect, _ = uint32At(frame, 21)
	s.RecvFlood, _ = uint32At(frame, 25)
	s.RecvDirect, _ = uint32At(frame, 29)
	s.LastRSSI, _ = int16At(frame, 33)
	s.NoiseFloor, _ = int16At(frame, 35)
	snr, _ := int16At(frame, 37)
	s.LastSNRdB = float32(snr) / 4.0
	s.DirectDups, _ = uint16At(frame, 39)
	s.FloodDups, _ = uint16At(frame, 41)
	s.FullEvents, _ = uint16At(frame, 43)
	return s, true
}

// DecodeRadioStats is the raising wrapper around TryDecodeRadioStats.
func DecodeRadioStats(frame []byte) (RadioStats, error) {
	s, ok := TryDecodeRadioStats(frame)
	if !ok {
		return RadioStats{}, decodeErr("RadioStats")
	}
	return s, nil
}
