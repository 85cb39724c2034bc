package protocol

import (
	"strings"
	"time"
)

// MessageKind distinguishes plain text payloads from binary ones.
type MessageKind int

const (
	MessageText MessageKind = iota
	MessageBinary
)

// Text-type bytes on the wire.
const (
	txtTypePlain byte = 0x00
	txtTypeCLI   byte = 0x01
)

// Message is a decoded inbound chat payload, either from a contact or from a
// group channel. Every field is populated fresh on decode; instances are
// never mutated afterwards.
type Message struct {
	// SenderKeyPrefix is the 6-byte public key prefix for contact messages;
	// nil for channel messages.
	SenderKeyPrefix []byte
	// Sender is the name parsed from a channel message's "Name: text" prefix.
	// Empty when the message carries no such prefix; never meaningful for
	// contact messages.
	Sender string
	// ChannelIdx is the source channel, or -1 for contact messages.
	ChannelIdx int
	Content    string
	Timestamp  time.Time // sender's clock, UTC
	Kind       MessageKind
	PathLen    byte
	// SNRdB is only present on V3 frames (zero otherwise).
	SNRdB float32
	// CLIResponse marks a remote-CLI reply carried in a contact message.
	CLIResponse bool
}

// Shared tail after the per-variant identity bytes:
// pathLen(1) txtType(1) timestamp(4 LE) text(...).
const msgTailFixed = 1 + 1 + 4

// v3HeaderLen is the extra prefix V3 frames insert between the response code
// and the legacy layout: snr(1, signed, x4) + 2 reserved bytes.
const v3HeaderLen = 3

// decodeMsgTail reads the common tail starting at off. Fails only on
// buffer-too-short; absent sender prefixes and empty text are valid.
func decodeMsgTail(frame []byte, off int, m *Message) bool {
	if off+msgTailFixed > len(frame) {
		return false
	}
	m.PathLen = frame[off]
	m.applyTxtType(frame[off+1])
	ts, _ := uint32At(frame, off+2)
	m.Timestamp = time.Unix(int64(ts), 0).UTC()
	m.Content = string(trimTrailingNULs(frame[off+msgTailFixed:]))
	return true
}

// applyTxtType maps the wire text-type byte onto kind and CLI flags.
func (m *Message) applyTxtType(txtType byte) {
	switch txtType {
	case txtTypePlain:
		m.Kind = MessageText
	case txtTypeCLI:
		m.Kind = MessageText
		m.CLIResponse = true
	default:
		m.Kind = MessageBinary
	}
}

// splitSender splits channel text of the form "Name: text" at the first
// colon-space separator. A bare colon is not sufficient; without the
// separator the sender is empty and the content is returned unchanged.
func splitSender(text string) (sender, content string) {
	if i := strings.Index(text, ": "); i > 0 {
		return text[:i], text[i+2:]
	}
	return "", text
}

// TryDecodeContactMessage parses a ContactMsgRecv frame, legacy (0x07) or V3
// (0x10). Layout: code, [V3: snr+2 reserved], pubkeyPrefix(6), tail.
func TryDecodeContactMessage(frame []byte) (Message, bool) {
	m := Message{ChannelIdx: -1}
	if len(frame) < 1 {
		return m, false
	}

	off := 1
	switch ResponseCode(frame[0]) {
	case RespContactMsgRecv:
	case RespContactMsgRecvV3:
		if len(frame) < 1+v3HeaderLen {
			return Message{}, false
		}
		m.SNRdB = float32(int8(frame[1])) / 4.0
		off += v3HeaderLen
	default:
		return Message{}, false
	}

	if off+PubKeyPrefixSize > len(frame) {
		return Message{}, false
	}
	m.SenderKeyPrefix = append([]byte(nil), frame[off:off+PubKeyPrefixSize]...)
	if !decodeMsgTail(frame, off+PubKeyPrefixSize, &m) {
		return Message{}, false
	}
	return m, true
}

// DecodeContactMessage is the raising wrapper around TryDecodeContactMessage.
func DecodeContactMessage(frame []byte) (Message, error) {
	m, ok := TryDecodeContactMessage(frame)
	if !ok {
		return Message{}, decodeErr("ContactMessage")
	}
	return m, nil
}

// TryDecodeChannelMessage parses a ChannelMsgRecv frame. Legacy (0x08):
// code, channelIdx(1), pathLen(1), txtType(1), timestamp(4 LE), text. V3
// (0x11): code, snr(1 signed, x4), 2 reserved, channelIdx(1), txtType(1),
// timestamp(4 LE), text; the SNR header takes the slot the legacy pathLen
// byte occupied. Text of the form "Name: text" is split into sender and
// content.
func TryDecodeChannelMessage(frame []byte) (Message, bool) {
	m := Message{}
	if len(frame) < 1 {
		return m, false
	}

	switch ResponseCode(frame[0]) {
	case RespChannelMsgRecv:
		idx, ok := byteAt(frame, 1)
		if !ok {
			return Message{}, false
		}
		m.ChannelIdx = int(idx)
		if !decodeMsgTail(frame, 2, &m) {
			return Message{}, false
		}
	case RespChannelMsgRecvV3:
		if len(frame) < 1+v3HeaderLen+1+1+4 {
			return Message{}, false
		}
		m.SNRdB = float32(int8(frame[1])) / 4.0
		m.ChannelIdx = int(frame[1+v3HeaderLen])
		off := 1 + v3HeaderLen + 1
		m.applyTxtType(frame[off])
		ts, _ := uint32At(frame, off+1)
		m.Timestamp = time.Unix(int64(ts), 0).UTC()
		m.Content = string(trimTrailingNULs(frame[off+5:]))
	default:
		return Message{}, false
	}

	if m.Kind == MessageText {
		m.Sender, m.Content = splitSender(m.Content)
	}
	return m, true
}

// DecodeChannelMessage is the raising wrapper around TryDecodeChannelMessage.
func DecodeChannelMessage(frame []byte) (Message, error) {
	m, ok := TryDecodeChannelMessage(frame)
	if !ok {
		return Message{}, decodeErr("ChannelMessage")
	}
	return m, nil
}

// RemoteCommandResponseFrame is a remote-CLI reply: a contact message whose
// text-type byte marks CLI output rather than chat.
type RemoteCommandResponseFrame struct {
	SenderKeyPrefix []byte
	Timestamp       time.Time
	Text            string
}

// TryDecodeRemoteCommandResponse parses a contact-message frame and accepts
// it only when it carries CLI output.
func TryDecodeRemoteCommandResponse(frame []byte) (RemoteCommandResponseFrame, bool) {
	m, ok := TryDecodeContactMessage(frame)
	if !ok || !m.CLIResponse {
		return RemoteCommandResponseFrame{}, false
	}
	return RemoteCommandResponseFrame{
		SenderKeyPrefix: m.SenderKeyPrefix,
		Timestamp:       m.Timestamp,
		Text:            m.Content,
	}, true
}

// DecodeRemoteCommandResponse is the raising wrapper around
// TryDecodeRemoteCommandResponse.
func DecodeRemoteCommandResponse(frame []byte) (RemoteCommandResponseFrame, error) {
	r, ok := TryDecodeRemoteCommandResponse(frame)
	if !ok {
		return RemoteCommandResponseFrame{}, decodeErr("RemoteCommandResponse")
	}
	return r, nil
}
