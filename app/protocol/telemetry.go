package protocol

import (
	"encoding/hex"
	"time"
)

// DefaultNeighborPrefixLen is the pubkey-prefix width used in neighbor
// entries unless the firmware was configured otherwise.
const DefaultNeighborPrefixLen = 4

// NeighborEntry is one row of a repeater's neighbor table.
type NeighborEntry struct {
	KeyPrefix  []byte
	SecondsAgo int32
	SNRdB      float32
}

// NeighborList is the decoded neighbor-table query result.
type NeighborList struct {
	TotalCount int16
	Neighbors  []NeighborEntry
}

// TryDecodeNeighborList parses a neighbor-table payload:
// total(2 LE signed) results(2 LE signed), then per entry
// keyPrefix(prefixLen) secondsAgo(4 LE signed) snr(1 signed, x4).
// prefixLen <= 0 selects the default. The buffer is validated against
// results x entrySize before any entry is parsed; negative counts fail.
func TryDecodeNeighborList(payload []byte, prefixLen int) (NeighborList, bool) {
	var nl NeighborList
	if prefixLen <= 0 {
		prefixLen = DefaultNeighborPrefixLen
	}
	total, ok := int16At(payload, 0)
	if !ok {
		return nl, false
	}
	results, ok := int16At(payload, 2)
	if !ok {
		return nl, false
	}
	if total < 0 || results < 0 {
		return nl, false
	}

	entrySize := prefixLen + 4 + 1
	if len(payload) < 4+int(results)*entrySize {
		return nl, false
	}

	nl.TotalCount = total
	off := 4
	for i := 0; i < int(results); i++ {
		secsAgo, _ := int32At(payload, off+prefixLen)
		nl.Neighbors = append(nl.Neighbors, NeighborEntry{
			KeyPrefix:  append([]byte(nil), payload[off:off+prefixLen]...),
			SecondsAgo: secsAgo,
			SNRdB:      float32(int8(payload[off+prefixLen+4])) / 4.0,
		})
		off += entrySize
	}
	return nl, true
}

// DecodeNeighborList is the raising wrapper around TryDecodeNeighborList.
func DecodeNeighborList(payload []byte, prefixLen int) (NeighborList, error) {
	nl, ok := TryDecodeNeighborList(payload, prefixLen)
	if !ok {
		return NeighborList{}, decodeErr("NeighborList")
	}
	return nl, nil
}

// PathDiscoveryResult is the outcome of a trace probe: the hop sequence the
// probe took out and back, as lowercase hex for display and comparison.
type PathDiscoveryResult struct {
	OutboundPath string
	InboundPath  string
}

// TryDecodePathDiscoveryResult parses two length-prefixed hop sequences.
// A leading byte above 0x80 is an event marker (TraceData push code) and is
// skipped.
func TryDecodePathDiscoveryResult(data []byte) (PathDiscoveryResult, bool) {
	if len(data) > 0 && data[0] > 0x80 {
		data = data[1:]
	}
	out, rest, ok := lengthPrefixedHex(data)
	if !ok {
		return PathDiscoveryResult{}, false
	}
	in, _, ok := lengthPrefixedHex(rest)
	if !ok {
		return PathDiscoveryResult{}, false
	}
	return PathDiscoveryResult{OutboundPath: out, InboundPath: in}, true
}

func lengthPrefixedHex(data []byte) (string, []byte, bool) {
	if len(data) < 1 {
		return "", nil, false
	}
	n := int(data[0])
	if len(data) < 1+n {
		return "", nil, false
	}
	return hex.EncodeToString(data[1 : 1+n]), data[1+n:], true
}

// DecodePathDiscoveryResult is the raising wrapper around
// TryDecodePathDiscoveryResult.
func DecodePathDiscoveryResult(data []byte) (PathDiscoveryResult, error) {
	r, ok := TryDecodePathDiscoveryResult(data)
	if !ok {
		return PathDiscoveryResult{}, decodeErr("PathDiscoveryResult")
	}
	return r, nil
}

// TryDecodeCurrTime parses a CurrTime reply frame (code 0x09): the device
// clock as Unix seconds.
func TryDecodeCurrTime(frame []byte) (time.Time, bool) {
	if len(frame) < 5 || ResponseCode(frame[0]) != RespCurrTime {
		return time.Time{}, false
	}
	secs, _ := uint32At(frame, 1)
	return time.Unix(int64(secs), 0).UTC(), true
}

// Advert is the decoded payload of an Advert push (code 0x80): the full
// public key of the advertising node.
type Advert struct {
	PublicKey []byte
}

// TryDecodeAdvert parses an Advert push frame.
func TryDecodeAdvert(frame []byte) (Advert, bool) {
	if len(frame) < 1+PublicKeySize || ResponseCode(frame[0]) != PushAdvert {
		return Advert{}, false
	}
	return Advert{PublicKey: append([]byte(nil), frame[1:1+PublicKeySize]...)}, true
}

// LogRxData is the decoded payload of a LogRxData push (code 0x88): RF
// metadata for a raw received packet.
type LogRxData struct {
	SNRdB   float32
	RSSI    int8
	Payload []byte
}

// TryDecodeLogRxData parses a LogRxData push frame:
// snr(1 signed, x4) rssi(1 signed) raw packet bytes.
func TryDecodeLogRxData(frame []byte) (LogRxData, bool) {
	if len(frame) < 3 || ResponseCode(frame[0]) != PushLogRxData {
		return LogRxData{}, false
	}
	return LogRxData{
		SNRdB:   float32(int8(frame[1])) / 4.0,
		RSSI:    int8(frame[2]),
		Payload: append([]byte(nil), frame[3:]...),
	}, true
}
