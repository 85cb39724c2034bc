// Package transport carries MeshCore frames over a byte stream. The framing
// is symmetric and trivial: a direction marker ('<' host->device, '>'
// device->host), a little-endian uint16 payload length, then the payload.
package transport

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

const (
	// FramePrefixOut marks a host->device frame.
	FramePrefixOut byte = 0x3c
	// FramePrefixIn marks a device->host frame.
	FramePrefixIn byte = 0x3e
	// MaxFrameSize caps a single frame's payload.
	MaxFrameSize = 4096

	frameHeaderLen = 3
)

// ErrClosed is returned by frame operations after Close.
var ErrClosed = errors.New("transport: closed")

// Transport is a framed, point-to-point connection to a MeshCore device.
// WriteFrame and ReadFrame carry whole protocol frames; the payload never
// includes the 3-byte framing header.
type Transport interface {
	WriteFrame(payload []byte) error
	ReadFrame() ([]byte, error)
	Close() error
}

// writeFrame frames and writes one payload to w.
func writeFrame(w io.Writer, payload []byte) error {
	if len(payload) > MaxFrameSize {
		return fmt.Errorf("transport: frame too large: %d", len(payload))
	}
	frame := make([]byte, frameHeaderLen+len(payload))
	frame[0] = FramePrefixOut
	binary.LittleEndian.PutUint16(frame[1:3], uint16(len(payload)))
	copy(frame[3:], payload)
	_, err := w.Write(frame)
	return err
}

// readFrame reads one framed payload from r.
func readFrame(r io.Reader) ([]byte, error) {
	head := make([]byte, frameHeaderLen)
	if _, err := io.ReadFull(r, head); err != nil {
		return nil, err
	}
	if head[0] != FramePrefixIn {
		return nil, fmt.Errorf("transport: unexpected frame prefix: 0x%02x", head[0])
	}
	sz := binary.LittleEndian.Uint16(head[1:3])
	if sz > MaxFrameSize {
		return nil, fmt.Errorf("transport: frame too large: %d", sz)
	}
	buf := make([]byte, sz)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, err
	}
	return buf, nil
}
