package protocol

import (
	"crypto/sha256"
	"errors"
	"fmt"
	"strings"
)

// ChannelSecretSize is the length of a group channel's shared secret.
const ChannelSecretSize = 16

// ChannelNameField is the fixed on-wire width of a channel name (31 usable
// bytes plus the NUL terminator).
const ChannelNameField = 32

// channelFrameLen is the full ChannelInfo reply: code(1) index(1) name(32)
// secret(16).
const channelFrameLen = 2 + ChannelNameField + ChannelSecretSize

// channelPayloadLen is the host->device SetChannel payload: index(1)
// name(32) secret(16). No response-code byte in this direction.
const channelPayloadLen = channelFrameLen - 1

// Channel is one slot of the device's fixed-capacity channel table.
type Channel struct {
	Index  int
	Name   string
	Secret []byte // nil when the channel is unencrypted
}

// Encrypted reports whether the channel carries a shared secret.
func (c Channel) Encrypted() bool { return len(c.Secret) == ChannelSecretSize }

// TryDecodeChannel parses a ChannelInfo reply frame (code 0x12). An all-zero
// secret block decodes to an unencrypted channel with no key exposed. A blank
// name is a decode failure: an index-only record is not a meaningful channel.
func TryDecodeChannel(frame []byte) (Channel, bool) {
	var ch Channel
	if len(frame) < channelFrameLen || ResponseCode(frame[0]) != RespChannelInfo {
		return ch, false
	}

	ch.Index = int(frame[1])
	ch.Name = cString(frame[2 : 2+ChannelNameField])
	if ch.Name == "" {
		return Channel{}, false
	}

	secret := frame[2+ChannelNameField : channelFrameLen]
	if !allZero(secret) {
		ch.Secret = append([]byte(nil), secret...)
	}
	return ch, true
}

// DecodeChannel is the raising wrapper around TryDecodeChannel.
func DecodeChannel(frame []byte) (Channel, error) {
	ch, ok := TryDecodeChannel(frame)
	if !ok {
		return Channel{}, decodeErr("Channel")
	}
	return ch, nil
}

// ChannelParams is the write-intent form of a channel, serialized into a
// SetChannel command. The secret is resolved in order: an explicit key if
// provided; a hashtag-derived key when the name begins with '#'; otherwise
// all zeros (unencrypted).
type ChannelParams struct {
	Index  int
	Name   string
	Secret []byte // optional explicit 16-byte key
}

var (
	errChannelIndex  = errors.New("protocol: channel index out of range")
	errChannelName   = errors.New("protocol: channel name exceeds 31 bytes")
	errChannelSecret = errors.New("protocol: channel secret must be 16 bytes")
)

// HashtagSecret derives the shared secret for a hashtag channel: the first
// 16 bytes of SHA-256 over the UTF-8 name. Any participant can compute the
// same key from the name alone.
func HashtagSecret(name string) []byte {
	sum := sha256.Sum256([]byte(name))
	return sum[:ChannelSecretSize]
}

// Encode produces the fixed 49-byte SetChannel payload.
func (p ChannelParams) Encode() ([]byte, error) {
	if p.Index < 0 || p.Index > 0xFF {
		return nil, errChannelIndex
	}
	if len(p.Name) > ChannelNameField-1 {
		return nil, fmt.Errorf("%w: %q", errChannelName, p.Name)
	}
	if p.Secret != nil && len(p.Secret) != ChannelSecretSize {
		return nil, errChannelSecret
	}

	out := make([]byte, channelPayloadLen)
	out[0] = byte(p.Index)
	copy(out[1:1+ChannelNameField], p.Name)

	secretOff := 1 + ChannelNameField
	switch {
	case p.Secret != nil:
		copy(out[secretOff:], p.Secret)
	case strings.HasPrefix(p.Name, "#"):
		copy(out[secretOff:], HashtagSecret(p.Name))
	}
	// Else: leave zeroed, meaning unencrypted.
	return out, nil
}

// TryDecodeChannelParams parses a SetChannel payload back into its params.
// Used for loopback verification of host-originated frames.
func TryDecodeChannelParams(payload []byte) (ChannelParams, bool) {
	if len(payload) < channelPayloadLen {
		return ChannelParams{}, false
	}
	p := ChannelParams{
		Index: int(payload[0]),
		Name:  cString(payload[1 : 1+ChannelNameField]),
	}
	secret := payload[1+ChannelNameField : channelPayloadLen]
	if !allZero(secret) {
		p.Secret = append([]byte(nil), secret...)
	}
	return p, true
}
