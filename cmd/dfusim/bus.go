package main

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/Project-Muteki/dfusim/usbms"
)

// The loopback bus frames each bulk packet as a type byte followed by a
// little-endian length and the payload. Host-to-device frames carry OUT
// packets; device-to-host frames carry IN packets and halt notifications.
const (
	frameData = 0x00
	frameHalt = 0x01

	// maxFrame bounds a single bus packet; data phases larger than this
	// arrive split across frames just like real bulk transfers.
	maxFrame = 1 << 20
)

// bus adapts one stream connection into the pair of bulk endpoints the
// function expects.
type bus struct {
	conn net.Conn

	// Guards writes: CSW and payload frames come from the same goroutine
	// today, but halts may race a response write.
	mu sync.Mutex
}

func newBus(conn net.Conn) *bus {
	return &bus{conn: conn}
}

func (b *bus) writeFrame(kind byte, payload []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	hdr := make([]byte, 5)
	hdr[0] = kind
	binary.LittleEndian.PutUint32(hdr[1:5], uint32(len(payload)))
	if _, err := b.conn.Write(hdr); err != nil {
		return err
	}
	if len(payload) == 0 {
		return nil
	}
	_, err := b.conn.Write(payload)
	return err
}

func (b *bus) readFrame() ([]byte, error) {
	hdr := make([]byte, 5)
	if _, err := io.ReadFull(b.conn, hdr); err != nil {
		return nil, err
	}
	if hdr[0] != frameData {
		return nil, fmt.Errorf("unexpected frame type %#02x from host", hdr[0])
	}
	n := binary.LittleEndian.Uint32(hdr[1:5])
	if n > maxFrame {
		return nil, fmt.Errorf("oversized frame: %d bytes", n)
	}
	payload := make([]byte, n)
	if _, err := io.ReadFull(b.conn, payload); err != nil {
		return nil, err
	}
	return payload, nil
}

// busEndpoint is one direction of the loopback bus.
type busEndpoint struct {
	bus *bus
	// in marks the device-to-host endpoint; only it carries data frames.
	in bool
}

func (e *busEndpoint) Write(p []byte) error {
	if !e.in {
		return errors.New("write on OUT endpoint")
	}
	return e.bus.writeFrame(frameData, p)
}

func (e *busEndpoint) Halt() {
	logrus.Warnf("endpoint halt (in=%v)", e.in)
	if err := e.bus.writeFrame(frameHalt, []byte{boolByte(e.in)}); err != nil {
		logrus.Errorf("halt notify: %v", err)
	}
}

func (b *bus) inEndpoint() usbms.Endpoint  { return &busEndpoint{bus: b, in: true} }
func (b *bus) outEndpoint() usbms.Endpoint { return &busEndpoint{bus: b, in: false} }

// run delivers host frames to the function until the connection closes.
func (b *bus) run(fn *usbms.Function) error {
	for {
		payload, err := b.readFrame()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return fn.OnOut(nil, usbms.StatusShutdown)
			}
			return err
		}
		if err := fn.OnOut(payload, 0); err != nil {
			// The transport halted both endpoints; the host must
			// reconnect or issue a Bulk-Only Reset to recover.
			logrus.Warnf("transport fault: %v", err)
		}
	}
}

func boolByte(v bool) byte {
	if v {
		return 1
	}
	return 0
}
