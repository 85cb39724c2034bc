package client

import (
	"errors"
	"fmt"
)

// ErrNotConnected is returned by operations issued before Connect or after
// Close.
var ErrNotConnected = errors.New("meshcore: not connected")

// TimeoutError reports that a command's matching response never arrived
// within the protocol timeout.
type TimeoutError struct {
	Opcode byte
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("meshcore: timeout waiting for response to command 0x%02x", e.Opcode)
}

// DeviceError reports an explicit error response from the device, carrying
// the device-supplied status byte when present.
type DeviceError struct {
	Opcode byte
	Status byte
}

func (e *DeviceError) Error() string {
	return fmt.Sprintf("meshcore: device rejected command 0x%02x (status 0x%02x)", e.Opcode, e.Status)
}
