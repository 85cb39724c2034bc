package transport

import (
	"bufio"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"
	"go.bug.st/serial"
)

// DefaultBaudRate is the rate MeshCore companion firmware uses on USB serial.
const DefaultBaudRate = 115200

// SerialConfig holds the settings for a serial transport.
type SerialConfig struct {
	// Port is the serial port path (e.g. "/dev/ttyUSB0" or "COM3").
	Port string
	// BaudRate defaults to 115200 when zero.
	BaudRate int
}

// SerialTransport frames the protocol over a local serial port.
type SerialTransport struct {
	mu     sync.Mutex
	port   serial.Port
	reader *bufio.Reader
	closed bool
	log    zerolog.Logger
}

// OpenSerial opens the configured port and returns a framed transport.
func OpenSerial(cfg SerialConfig, log zerolog.Logger) (*SerialTransport, error) {
	if cfg.Port == "" {
		return nil, errors.New("serial port is required")
	}
	baud := cfg.BaudRate
	if baud == 0 {
		baud = DefaultBaudRate
	}

	port, err := serial.Open(cfg.Port, &serial.Mode{BaudRate: baud})
	if err != nil {
		return nil, fmt.Errorf("open %s failed: %w", cfg.Port, err)
	}
	log.Debug().Str("port", cfg.Port).Int("baud", baud).Msg("serial transport opened")
	return &SerialTransport{
		port:   port,
		reader: bufio.NewReaderSize(port, 1024),
		log:    log,
	}, nil
}

// WriteFrame sends one protocol frame.
func (t *SerialTransport) WriteFrame(payload []byte) error {
	t.mu.Lock()
	port, closed := t.port, t.closed
	t.mu.Unlock()
	if closed || port == nil {
		return ErrClosed
	}

	if err := writeFrame(port, payload); err != nil {
		return fmt.Errorf("send failed: %w", err)
	}
	t.log.Trace().Int("len", len(payload)).Hex("data", payload).Msg("sent frame")
	return nil
}

// ReadFrame blocks for the next inbound frame. Stray bytes before the frame
// prefix (boot chatter, debug prints from the firmware) are skipped.
func (t *SerialTransport) ReadFrame() ([]byte, error) {
	t.mu.Lock()
	reader, closed := t.reader, t.closed
	t.mu.Unlock()
	if closed || reader == nil {
		return nil, ErrClosed
	}

	for {
		b, err := reader.Peek(1)
		if err != nil {
			return nil, err
		}
		if b[0] == FramePrefixIn {
			break
		}
		if _, err := reader.Discard(1); err != nil {
			return nil, err
		}
	}

	frame, err := readFrame(reader)
	if err != nil {
		return nil, err
	}
	t.log.Trace().Int("len", len(frame)).Hex("data", frame).Msg("recv frame")
	return frame, nil
}

// Close releases the port.
func (t *SerialTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil
	}
	t.closed = true
	if t.port == nil {
		return nil
	}
	err := t.port.Close()
	t.port = nil
	t.reader = nil
	return err
}
