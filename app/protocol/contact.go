package protocol

import (
	"encoding/hex"
	"time"
)

// PublicKeySize is the length of a full node public key.
const PublicKeySize = 32

// PubKeyPrefixSize is the key truncation used to address a contact inside a
// frame.
const PubKeyPrefixSize = 6

// UnknownContactName is substituted when a contact record carries no
// decodable name.
const UnknownContactName = "Unknown Contact"

// NodeType classifies a contact's role in the mesh.
type NodeType byte

const (
	NodeTypeUnknown    NodeType = 0
	NodeTypeChat       NodeType = 1
	NodeTypeRepeater   NodeType = 2
	NodeTypeRoomServer NodeType = 3
	NodeTypeSensor     NodeType = 4
)

func (t NodeType) String() string {
	switch t {
	case NodeTypeChat:
		return "Chat"
	case NodeTypeRepeater:
		return "Repeater"
	case NodeTypeRoomServer:
		return "RoomServer"
	case NodeTypeSensor:
		return "Sensor"
	default:
		return "Unknown"
	}
}

// OutboundRoute is the ordered hop path toward a contact. A nil route means
// no path is known; an empty non-nil route is a real zero-hop (direct) path.
type OutboundRoute []byte

// Hex returns the route as lowercase hex, one byte per hop.
func (r OutboundRoute) Hex() string { return hex.EncodeToString(r) }

// Contact is a known peer node as stored in the device's contact table.
type Contact struct {
	PublicKey  []byte // 32 bytes, exact identity
	Type       NodeType
	Flags      byte
	OutPath    OutboundRoute
	Name       string
	LastAdvert time.Time // zero = unknown
	LastMod    time.Time // zero = unknown
	Latitude   float64
	Longitude  float64
}

// PublicKeyHex returns the full key as lowercase hex.
func (c Contact) PublicKeyHex() string { return hex.EncodeToString(c.PublicKey) }

// Contact frame layout after the response-code byte:
// pubkey(32) type(1) flags(1) outPathLen(1) outPath(64) name(...) then
// optional trailing u32 fields lastAdvert, advLat, advLon, lastMod.
const (
	contactTypeOff    = 1 + PublicKeySize
	contactFlagsOff   = contactTypeOff + 1
	contactPathLenOff = contactFlagsOff + 1
	contactPathOff    = contactPathLenOff + 1
	contactPathField  = 64
	contactNameOff    = contactPathOff + contactPathField
	contactNameField  = 32
	contactMinLen     = contactNameOff
)

// TryDecodeContact parses a Contact reply frame (code 0x03).
//
// A path-length byte of 0xFF decodes to a nil route, not a 255-hop path.
// The name field is located by scanning for the first run of printable bytes
// (see printableRun); firmware revisions disagree on the padding before it,
// so a fixed offset is unreliable. Trailing timestamp/GPS fields are consumed
// only while bytes remain and default to zero when absent.
func TryDecodeContact(frame []byte) (Contact, bool) {
	var c Contact
	if len(frame) < contactMinLen || ResponseCode(frame[0]) != RespContact {
		return c, false
	}

	c.PublicKey = append([]byte(nil), frame[1:1+PublicKeySize]...)
	c.Type = NodeType(frame[contactTypeOff])
	c.Flags = frame[contactFlagsOff]

	pathLen := frame[contactPathLenOff]
	switch {
	case pathLen == NoPath:
		// Never probed: nil route, still zero-length.
		c.OutPath = nil
	case pathLen == 0:
		// Probed, zero hops (direct).
		c.OutPath = OutboundRoute{}
	case int(pathLen) > contactPathField:
		// Declared path longer than its fixed storage block.
		return Contact{}, false
	default:
		c.OutPath = append(OutboundRoute(nil), frame[contactPathOff:contactPathOff+int(pathLen)]...)
	}

	nameStart := contactNameOff
	for off := contactNameOff; off < len(frame) && off < contactNameOff+contactNameField; off++ {
		if printableRun(frame, off, 3) {
			nameStart = off
			break
		}
	}

	nameEnd := nameStart + contactNameField
	if nameEnd > len(frame) {
		nameEnd = len(frame)
	}
	c.Name = cString(frame[nameStart:nameEnd])
	if c.Name == "" {
		c.Name = UnknownContactName
	}

	off := nameStart + contactNameField
	if ts, ok := uint32At(frame, off); ok && ts != 0 {
		c.LastAdvert = time.Unix(int64(ts), 0).UTC()
	}
	off += 4
	if lat, ok := int32At(frame, off); ok {
		c.Latitude = float64(lat) / 1e6
	}
	off += 4
	if lon, ok := int32At(frame, off); ok {
		c.Longitude = float64(lon) / 1e6
	}
	off += 4
	if ts, ok := uint32At(frame, off); ok && ts != 0 {
		c.LastMod = time.Unix(int64(ts), 0).UTC()
	}

	return c, true
}

// DecodeContact is the raising wrapper around TryDecodeContact.
func DecodeContact(frame []byte) (Contact, error) {
	c, ok := TryDecodeContact(frame)
	if !ok {
		return Contact{}, decodeErr("Contact")
	}
	return c, nil
}

// TryDecodeContactsStart parses the ContactsStart frame (code 0x02) that
// precedes a contact listing: a single u32 count of records to follow.
func TryDecodeContactsStart(frame []byte) (uint32, bool) {
	if len(frame) < 5 || ResponseCode(frame[0]) != RespContactsStart {
		return 0, false
	}
	count, ok := uint32At(frame, 1)
	return count, ok
}
