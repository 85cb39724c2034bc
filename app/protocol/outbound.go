package protocol

import (
	"encoding/binary"
	"errors"
	"fmt"
	"time"
)

// Contract-violation errors raised by the encoders before any bytes are
// produced. These signal caller bugs, not wire-format edge cases.
var (
	ErrNoTargetKey = errors.New("protocol: target has no valid public key")
	ErrEmptyText   = errors.New("protocol: message text is empty")
	ErrPathTooLong = errors.New("protocol: path exceeds 64 hops")
	ErrBadRadioSF  = errors.New("protocol: spreading factor out of range (5-12)")
	ErrBadRadioCR  = errors.New("protocol: coding rate out of range (5-8)")
	ErrBadChannel  = errors.New("protocol: channel index out of range")
)

func putUnix(dst []byte, t time.Time) {
	binary.LittleEndian.PutUint32(dst, uint32(t.Unix()))
}

// ContactMessageParams serializes into a SendTxtMsg payload: a plain chat
// message to a single contact. Plain chat text is not NUL-terminated.
type ContactMessageParams struct {
	TargetKey []byte    // full key or >= 6-byte prefix
	Attempt   byte
	Timestamp time.Time
	Text      string
}

// Encode produces the SendTxtMsg payload:
// txtType(0) attempt(1) timestamp(4 LE) keyPrefix(6) text.
func (p ContactMessageParams) Encode() ([]byte, error) {
	if len(p.TargetKey) < PubKeyPrefixSize {
		return nil, ErrNoTargetKey
	}
	if p.Text == "" {
		return nil, ErrEmptyText
	}

	out := make([]byte, 2+4+PubKeyPrefixSize+len(p.Text))
	out[0] = txtTypePlain
	out[1] = p.Attempt
	putUnix(out[2:], p.Timestamp)
	copy(out[6:], p.TargetKey[:PubKeyPrefixSize])
	copy(out[6+PubKeyPrefixSize:], p.Text)
	return out, nil
}

// ChannelMessageParams serializes into a SendChannelTxtMsg payload. Unlike
// contact chat, channel text carries a NUL terminator.
type ChannelMessageParams struct {
	ChannelIdx int
	Timestamp  time.Time
	Text       string
}

// Encode produces the SendChannelTxtMsg payload:
// txtType(0) channelIdx(1) timestamp(4 LE) text NUL.
func (p ChannelMessageParams) Encode() ([]byte, error) {
	if p.ChannelIdx < 0 || p.ChannelIdx > 0xFF {
		return nil, ErrBadChannel
	}
	if p.Text == "" {
		return nil, ErrEmptyText
	}

	out := make([]byte, 2+4+len(p.Text)+1)
	out[0] = txtTypePlain
	out[1] = byte(p.ChannelIdx)
	putUnix(out[2:], p.Timestamp)
	copy(out[6:], p.Text)
	// Trailing byte stays zero: the NUL terminator.
	return out, nil
}

// Command serializes a remote-CLI command addressed to a repeater or room
// server. Distinct wire shape from a chat message: the text-type byte marks
// CLI data and the text is NUL-terminated.
type Command struct {
	TargetKey []byte
	Attempt   byte
	Timestamp time.Time
	Text      string
}

// Encode produces the SendTxtMsg payload for a CLI command:
// txtType(1) attempt(1) timestamp(4 LE) keyPrefix(6) text NUL.
func (c Command) Encode() ([]byte, error) {
	if len(c.TargetKey) < PubKeyPrefixSize {
		return nil, ErrNoTargetKey
	}
	if c.Text == "" {
		return nil, ErrEmptyText
	}

	out := make([]byte, 2+4+PubKeyPrefixSize+len(c.Text)+1)
	out[0] = txtTypeCLI
	out[1] = c.Attempt
	putUnix(out[2:], c.Timestamp)
	copy(out[6:], c.TargetKey[:PubKeyPrefixSize])
	copy(out[6+PubKeyPrefixSize:], c.Text)
	return out, nil
}

// TryDecodeCommand parses a SendTxtMsg-style payload back into its fields.
// Loopback path for host-originated frames.
func TryDecodeCommand(payload []byte) (Command, bool) {
	if len(payload) < 2+4+PubKeyPrefixSize {
		return Command{}, false
	}
	ts, _ := uint32At(payload, 2)
	c := Command{
		Attempt:   payload[1],
		Timestamp: time.Unix(int64(ts), 0).UTC(),
		TargetKey: append([]byte(nil), payload[6:6+PubKeyPrefixSize]...),
		Text:      string(trimTrailingNULs(payload[6+PubKeyPrefixSize:])),
	}
	return c, true
}

// RadioParams serializes into a SetRadioParams payload. Mirrors the radio
// block of SelfInfo: freq(kHz u32) bw(Hz u32) sf(1) cr(1).
type RadioParams struct {
	FreqKHz uint32
	BwHz    uint32
	SF      byte
	CR      byte
}

// Encode produces the fixed 10-byte SetRadioParams payload.
func (p RadioParams) Encode() ([]byte, error) {
	if p.SF < 5 || p.SF > 12 {
		return nil, fmt.Errorf("%w: %d", ErrBadRadioSF, p.SF)
	}
	if p.CR < 5 || p.CR > 8 {
		return nil, fmt.Errorf("%w: %d", ErrBadRadioCR, p.CR)
	}

	out := make([]byte, 10)
	binary.LittleEndian.PutUint32(out[0:], p.FreqKHz)
	binary.LittleEndian.PutUint32(out[4:], p.BwHz)
	out[8] = p.SF
	out[9] = p.CR
	return out, nil
}

// TryDecodeRadioParams parses a SetRadioParams payload.
func TryDecodeRadioParams(payload []byte) (RadioParams, bool) {
	if len(payload) < 10 {
		return RadioParams{}, false
	}
	freq, _ := uint32At(payload, 0)
	bw, _ := uint32At(payload, 4)
	return RadioParams{FreqKHz: freq, BwHz: bw, SF: payload[8], CR: payload[9]}, true
}

// SendTracePathParams serializes into a SendTracePath payload: a path probe
// along an explicit hop sequence. tag(4 LE) auth(4 LE) flags(1) path.
type SendTracePathParams struct {
	Tag      uint32
	AuthCode uint32
	Flags    byte
	Path     []byte
}

// Encode produces the SendTracePath payload.
func (p SendTracePathParams) Encode() ([]byte, error) {
	if len(p.Path) > 64 {
		return nil, ErrPathTooLong
	}

	out := make([]byte, 9+len(p.Path))
	binary.LittleEndian.PutUint32(out[0:], p.Tag)
	binary.LittleEndian.PutUint32(out[4:], p.AuthCode)
	out[8] = p.Flags
	copy(out[9:], p.Path)
	return out, nil
}

// TryDecodeSendTracePathParams parses a SendTracePath payload.
func TryDecodeSendTracePathParams(payload []byte) (SendTracePathParams, bool) {
	if len(payload) < 9 {
		return SendTracePathParams{}, false
	}
	tag, _ := uint32At(payload, 0)
	auth, _ := uint32At(payload, 4)
	p := SendTracePathParams{Tag: tag, AuthCode: auth, Flags: payload[8]}
	if len(payload) > 9 {
		p.Path = append([]byte(nil), payload[9:]...)
	}
	return p, true
}

// AdvertPathInfo carries a contact's outbound path: used both when the
// device pushes a path update and when the host rewrites a contact's route.
type AdvertPathInfo struct {
	KeyPrefix []byte        // 6 bytes
	Path      OutboundRoute
}

// Encode produces keyPrefix(6) pathLen(1, 0xFF when no path) path.
func (a AdvertPathInfo) Encode() ([]byte, error) {
	if len(a.KeyPrefix) < PubKeyPrefixSize {
		return nil, ErrNoTargetKey
	}
	if len(a.Path) > 64 {
		return nil, ErrPathTooLong
	}

	out := make([]byte, PubKeyPrefixSize+1+len(a.Path))
	copy(out, a.KeyPrefix[:PubKeyPrefixSize])
	if a.Path == nil {
		out[PubKeyPrefixSize] = NoPath
	} else {
		out[PubKeyPrefixSize] = byte(len(a.Path))
		copy(out[PubKeyPrefixSize+1:], a.Path)
	}
	return out, nil
}

// TryDecodeAdvertPathInfo parses a path record. A leading response-code byte
// (PathUpdated push) is skipped when present. A path length of 0xFF decodes
// to a nil route.
func TryDecodeAdvertPathInfo(data []byte) (AdvertPathInfo, bool) {
	if len(data) > 0 && data[0] > 0x80 {
		data = data[1:]
	}
	if len(data) < PubKeyPrefixSize+1 {
		return AdvertPathInfo{}, false
	}

	a := AdvertPathInfo{
		KeyPrefix: append([]byte(nil), data[:PubKeyPrefixSize]...),
	}
	pathLen := data[PubKeyPrefixSize]
	if pathLen == NoPath {
		return a, true
	}
	if int(pathLen) > len(data)-PubKeyPrefixSize-1 || pathLen > 64 {
		return AdvertPathInfo{}, false
	}
	a.Path = append(OutboundRoute(nil), data[PubKeyPrefixSize+1:PubKeyPrefixSize+1+int(pathLen)]...)
	return a, true
}

// DecodeAdvertPathInfo is the raising wrapper around TryDecodeAdvertPathInfo.
func DecodeAdvertPathInfo(data []byte) (AdvertPathInfo, error) {
	a, ok := TryDecodeAdvertPathInfo(data)
	if !ok {
		return AdvertPathInfo{}, decodeErr("AdvertPathInfo")
	}
	return a, nil
}

// SentInfo is the device's acknowledgement of an outbound message: the ack
// code later echoed by SendConfirmed, plus the firmware's delivery-time
// estimate.
type SentInfo struct {
	Result       int8
	AckCode      uint32
	EstTimeoutMs uint32
}

// TryDecodeSent parses a Sent reply frame (code 0x06):
// result(1) ackCode(4 LE) estTimeout(4 LE).
func TryDecodeSent(frame []byte) (SentInfo, bool) {
	if len(frame) < 10 || ResponseCode(frame[0]) != RespSent {
		return SentInfo{}, false
	}
	ack, _ := uint32At(frame, 2)
	est, _ := uint32At(frame, 6)
	return SentInfo{Result: int8(frame[1]), AckCode: ack, EstTimeoutMs: est}, true
}

// SendConfirmation is the push acknowledging end-to-end delivery.
type SendConfirmation struct {
	AckCode     uint32
	RoundTripMs uint32
}

// TryDecodeSendConfirmed parses a SendConfirmed push frame (code 0x82):
// ackCode(4 LE) roundTrip(4 LE).
func TryDecodeSendConfirmed(frame []byte) (SendConfirmation, bool) {
	if len(frame) < 9 || ResponseCode(frame[0]) != PushSendConfirmed {
		return SendConfirmation{}, false
	}
	ack, _ := uint32At(frame, 1)
	rt, _ := uint32At(frame, 5)
	return SendConfirmation{AckCode: ack, RoundTripMs: rt}, true
}
