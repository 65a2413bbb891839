// Package dongle drives the iFrogLab LoRa USB dongle: a serial device
// exposing a custom command/ACK protocol at 115,200 baud.
package dongle

import (
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"go.bug.st/serial"
)

const (
	baudRate     = 115200
	readTimeout  = 2 * time.Second
	ackBufSize   = 24
	ackSettle    = 20 * time.Millisecond
	cmdRetryTime = 1000 * time.Millisecond
)

// Port is the byte-level duplex transport DongleProtocol frames commands
// over. SerialDongle is the production implementation; tests supply a
// fake.
type Port interface {
	WriteAll([]byte) error
	ReadInto([]byte) (int, error)
}

// SerialDongle opens the configured device path at 115,200 baud, 8N1, no
// flow control, with a 2-second OS-level read timeout. It implements no
// framing of its own; framing is Protocol's job.
type SerialDongle struct {
	port serial.Port
}

// Open opens devicePath and configures it for the dongle's wire format.
func Open(devicePath string) (*SerialDongle, error) {
	mode := &serial.Mode{
		BaudRate: baudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
	port, err := serial.Open(devicePath, mode)
	if err != nil {
		return nil, fmt.Errorf("dongle: open %s: %w", devicePath, err)
	}
	if err := port.SetReadTimeout(readTimeout); err != nil {
		port.Close()
		return nil, fmt.Errorf("dongle: set read timeout: %w", err)
	}
	return &SerialDongle{port: port}, nil
}

// WriteAll writes the full command frame.
func (d *SerialDongle) WriteAll(b []byte) error {
	_, err := d.port.Write(b)
	return err
}

// ReadInto reads whatever is currently available into buf.
func (d *SerialDongle) ReadInto(buf []byte) (int, error) {
	return d.port.Read(buf)
}

// Close releases the underlying serial port.
func (d *SerialDongle) Close() error {
	return d.port.Close()
}

// Protocol implements the command/ACK framing, CRC, and retry-until-timeout
// logic described for the dongle. A single receive buffer is reused across
// every ACK, matching the dongle's own fixed-size reply window.
type Protocol struct {
	port Port
	log  *logrus.Entry
	buf  [ackBufSize]byte
}

// NewProtocol wraps port with the command/ACK state machine.
func NewProtocol(port Port, log *logrus.Entry) *Protocol {
	if log == nil {
		log = logrus.WithField("component", "dongle")
	}
	return &Protocol{port: port, log: log}
}

func crc8(data []byte) byte {
	var c byte
	for _, b := range data {
		c ^= b
	}
	return c
}

func buildFrame(cmd byte, payload []byte) []byte {
	frame := make([]byte, 0, 3+len(payload)+1)
	frame = append(frame, cmdHeaderByte, cmd, byte(len(payload)))
	frame = append(frame, payload...)
	frame = append(frame, crc8(frame))
	return frame
}

// sendAndWait writes frame and reads the ACK, retrying any read_ack
// failure uniformly (timeout, short read, CRC mismatch, or a device-level
// error reply alike) until the retry budget measured from the first
// attempt is exhausted, then surfaces that last error.
func (p *Protocol) sendAndWait(frame []byte) ([]byte, error) {
	start := time.Now()
	for {
		if err := p.port.WriteAll(frame); err != nil {
			return nil, fmt.Errorf("dongle: write: %w", err)
		}
		ack, err := p.readAck()
		if err == nil {
			return ack, nil
		}
		if time.Since(start) > cmdRetryTime {
			return nil, err
		}
		p.log.WithError(err).WithField("elapsed", time.Since(start)).Debug("retrying dongle command")
	}
}

// readAck reads one ACK frame into the shared buffer, validating its CRC
// and decoding device-level errors.
func (p *Protocol) readAck() ([]byte, error) {
	buf := p.buf[:]
	time.Sleep(ackSettle)
	n, err := p.port.ReadInto(buf)
	if err != nil {
		return nil, fmt.Errorf("dongle: read ack: %w", err)
	}
	if n < 3 {
		time.Sleep(ackSettle)
		more, err := p.port.ReadInto(buf[n:])
		if err != nil {
			return nil, fmt.Errorf("dongle: read ack: %w", err)
		}
		n += more
		if n < 3 {
			return nil, ErrTimeout
		}
	}

	length := int(buf[2])
	if length+4 > ackBufSize {
		return nil, ErrInvalidData
	}
	if n < length+4 {
		time.Sleep(ackSettle)
		more, err := p.port.ReadInto(buf[n:])
		if err != nil {
			return nil, fmt.Errorf("dongle: read ack: %w", err)
		}
		n += more
		if n < length {
			return nil, ErrTimeout
		}
	}

	calc := crc8(buf[:length+3])
	if calc != buf[length+3] {
		return nil, ErrInvalidData
	}
	if buf[1] == 0xFF {
		return nil, &DongleError{Code: buf[3]}
	}

	ack := make([]byte, length)
	copy(ack, buf[3:length+3])
	return ack, nil
}
