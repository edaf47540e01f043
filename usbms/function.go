// Package usbms implements the device side of the USB Mass Storage Bulk-Only
// Transport: it parses Command Block Wrappers arriving on the bulk OUT
// endpoint, reassembles multi-packet data phases, dispatches the SCSI command
// to a pluggable logical-unit backend and closes every command cycle with a
// Command Status Wrapper on the bulk IN endpoint. USB enumeration and the
// AIO plumbing that moves bytes belong to the surrounding gadget framework;
// the package only needs the two negotiated bulk endpoints.
package usbms

import (
	"errors"
	"fmt"

	"github.com/prometheus/common/log"
	"github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"
)

// Endpoint is the slice of the bulk endpoint surface the transport needs.
// Submission queues, packet sizing and descriptors stay with the gadget
// framework that hands these out.
type Endpoint interface {
	// Write queues the whole buffer on the endpoint. A partial transfer
	// is an error.
	Write([]byte) error

	// Halt stalls the endpoint until the host clears it.
	Halt()
}

// StatusShutdown is the OUT completion status reported when the endpoint is
// torn down gracefully (unbind, disable). It is a notification, not a fault.
const StatusShutdown = -int(unix.ESHUTDOWN)

var (
	// ErrBadSignature reports a CBW whose signature does not match
	// CBWSignature. The transport state is undefined afterwards; both
	// bulk endpoints are halted and the host must issue a Bulk-Only Reset.
	ErrBadSignature = errors.New("usbms: invalid CBW signature")

	// ErrNoLogicalUnits is returned by NewFunction when no backend is
	// supplied.
	ErrNoLogicalUnits = errors.New("usbms: at least one logical unit is required")
)

// Function is the Bulk-Only Transport state machine for one mass-storage
// function instance. Endpoint completions must be delivered sequentially;
// exactly one command cycle is in flight at a time and the session state is
// owned by the machine between dispatch boundaries.
type Function struct {
	in  Endpoint
	out Endpoint

	units []*unit

	// OUT data phase session state. receiving is the byte count still
	// expected, zero when idle.
	receiving  uint32
	received   []byte
	currentCBW *CBW
}

// NewFunction builds a function instance over the two negotiated bulk
// endpoints, addressing the given backends as LUN 0..n-1.
func NewFunction(in, out Endpoint, lus ...LogicalUnit) (*Function, error) {
	if len(lus) == 0 {
		return nil, ErrNoLogicalUnits
	}
	f := &Function{in: in, out: out}
	for _, lu := range lus {
		f.units = append(f.units, &unit{lu: lu})
	}
	logrus.Debugf("usbms: function ready, %d logical unit(s)", len(f.units))
	f.Reset()
	return f, nil
}

// MaxLUN is the value reported by the Get Max LUN control request: the
// highest valid LUN index.
func (f *Function) MaxLUN() uint8 {
	return uint8(len(f.units) - 1)
}

// Reset forces the transport back to idle: the pending CBW and accumulator
// are dropped and every backend's Reset hook runs. Stored per-unit sense is
// left alone, so the host can still retrieve it after recovering.
func (f *Function) Reset() {
	logrus.Debugf("usbms: transport reset")
	for _, u := range f.units {
		u.lu.Reset()
	}
	f.receiving = 0
	f.received = f.received[:0]
	f.currentCBW = nil
}

// haltBoth stalls both bulk endpoints, the transport's hard stop. No further
// traffic is accepted until the host issues a Bulk-Only Reset.
func (f *Function) haltBoth() {
	f.in.Halt()
	f.out.Halt()
}

// OnOut consumes one bulk OUT completion. data is the received buffer and
// status the completion code: zero on success, StatusShutdown on graceful
// teardown, another negative errno on a low-level fault.
//
// A non-nil return means the current bus session is dead and both bulk
// endpoints have been halted; sanctioned SCSI failures are reported to the
// host in the CSW instead and return nil.
func (f *Function) OnOut(data []byte, status int) error {
	if status == StatusShutdown {
		log.Debugf("out endpoint shutdown")
		return nil
	}
	if status != 0 {
		f.haltBoth()
		return fmt.Errorf("usbms: out endpoint fault: %s", unix.Errno(-status))
	}

	if f.receiving == 0 {
		cbw, err := ParseCBW(data)
		if err != nil {
			f.haltBoth()
			return err
		}
		if cbw.Signature != CBWSignature {
			f.haltBoth()
			return ErrBadSignature
		}
		if cbw.DataTransferLength == 0 || cbw.IsIn() {
			return f.process(cbw, nil)
		}
		log.Debugf("receiving %d bytes for tag %#08x", cbw.DataTransferLength, cbw.Tag)
		f.receiving = cbw.DataTransferLength
		f.received = f.received[:0]
		f.currentCBW = cbw
		return nil
	}

	f.received = append(f.received, data...)
	if uint32(len(f.received)) < f.receiving {
		return nil
	}
	cbw, buf := f.currentCBW, f.received
	f.receiving = 0
	f.currentCBW = nil
	return f.process(cbw, buf)
}

// process dispatches one complete command cycle: it invokes the addressed
// logical unit, writes the response payload when there is one and always
// closes with a CSW. The OUT-phase buffer is reused by the next data phase,
// so backends keeping the data must copy it.
func (f *Function) process(cbw *CBW, data []byte) error {
	if int(cbw.LUN) >= len(f.units) {
		// The gadget reports an accurate Max LUN, so a compliant host
		// never addresses past it. Treat the breach like a signature
		// mismatch instead of inventing a sense code for it.
		f.haltBoth()
		return fmt.Errorf("usbms: LUN %d out of range", cbw.LUN)
	}
	u := f.units[cbw.LUN]

	payload, err := u.handleCommand(cbw, data)

	var transferred uint32
	if err == nil {
		if data != nil {
			transferred += uint32(len(data))
		}
		if len(payload) > 0 {
			if werr := f.in.Write(payload); werr != nil {
				transferred = 0
				err = werr
			} else {
				transferred += uint32(len(payload))
			}
		}
	}

	status := uint8(StatusGood)
	if err != nil {
		var cmdErr *CommandError
		if errors.As(err, &cmdErr) {
			u.sense = cmdErr.Sense
			status = cmdErr.Status
			log.Debugf("command %#02x tag %#08x: %s", cbw.CB[0], cbw.Tag, cmdErr)
		} else {
			// Untrusted failure out of the backend or the data phase:
			// report a phase error with cleared sense rather than leak
			// internal detail, and let the CSW carry the recovery signal.
			u.sense = nil
			status = StatusPhaseError
			log.Errorf("command %#02x tag %#08x: %s", cbw.CB[0], cbw.Tag, err)
		}
	}

	var residue uint32
	if cbw.DataTransferLength > transferred {
		residue = cbw.DataTransferLength - transferred
	}

	if werr := f.in.Write(NewCSW(cbw.Tag, status, residue).Bytes()); werr != nil {
		f.haltBoth()
		return fmt.Errorf("usbms: CSW write: %w", werr)
	}
	return nil
}
