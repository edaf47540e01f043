package usbms

import (
	"encoding/binary"

	"github.com/prometheus/common/log"

	"github.com/Project-Muteki/dfusim/scsi"
)

// LogicalUnit is the capability set a backend block device implements. All
// methods have safe stub defaults on BaseUnit, so a backend embeds BaseUnit
// and overrides only the subset it cares about.
//
// A method reporting a SCSI-level failure returns a *CommandError; any other
// error is treated as a backend malfunction and reaches the host as a phase
// error with no sense detail.
type LogicalUnit interface {
	// Reset is called on Bulk-Only Reset and when the function binds.
	Reset()

	// TestUnitReady reports whether the unit can service commands. Return
	// NotReady to tell the host to retry later.
	TestUnitReady() error

	// Inquiry returns the Inquiry data sized against the host's allocation
	// length.
	Inquiry(allocationLength uint16) ([]byte, error)

	// ReadCapacity returns the highest addressable LBA and the block size
	// in bytes.
	ReadCapacity() (maxLBA, blockSize uint32, err error)

	// ReadBlocks returns blocks*blockSize bytes starting at lba. The byte
	// count is the backend's responsibility; capacity bounds are not
	// checked by the transport.
	ReadBlocks(lba uint32, blocks uint16) ([]byte, error)

	// WriteBlocks stores data starting at lba.
	WriteBlocks(lba uint32, data []byte) error

	// Verify checks the medium starting at lba. data is nil unless the
	// host requested a byte compare.
	Verify(lba uint32, data []byte) error

	// StartStopUnit and PreventAllowRemoval are accepted unconditionally
	// by the defaults; media-handling backends may act on them.
	StartStopUnit(start, loadEject bool) error
	PreventAllowRemoval(prevent bool) error
}

// Default identification reported by BaseUnit.
const (
	defaultVendor   = "PyFFS"
	defaultProduct  = "USBMS"
	defaultRevision = "0000"

	defaultBlockSize = 512
)

// BaseUnit provides stub defaults for every LogicalUnit capability: zero
// capacity, all-zero reads, writes accepted and discarded.
type BaseUnit struct{}

func (BaseUnit) Reset() {}

func (BaseUnit) TestUnitReady() error { return nil }

// Inquiry returns the standard Inquiry data for a removable direct-access
// device, or Invalid Field in CDB when the allocation length cannot hold the
// full structure.
func (BaseUnit) Inquiry(allocationLength uint16) ([]byte, error) {
	if int(allocationLength) < InquiryLength {
		return nil, InvalidFieldInCDB()
	}
	return StandardInquiry(
		scsi.InquiryPeripheralQualifierLoaded|scsi.InquiryPeripheralTypeDirectAccess,
		true,
		defaultVendor,
		defaultProduct,
		defaultRevision,
	), nil
}

func (BaseUnit) ReadCapacity() (uint32, uint32, error) {
	return 0, defaultBlockSize, nil
}

func (BaseUnit) ReadBlocks(lba uint32, blocks uint16) ([]byte, error) {
	return make([]byte, int(blocks)*defaultBlockSize), nil
}

func (BaseUnit) WriteBlocks(lba uint32, data []byte) error { return nil }

func (BaseUnit) Verify(lba uint32, data []byte) error { return nil }

func (BaseUnit) StartStopUnit(start, loadEject bool) error { return nil }

func (BaseUnit) PreventAllowRemoval(prevent bool) error { return nil }

// unit pairs a backend with the pending-sense slot the transport owns for it.
type unit struct {
	lu    LogicalUnit
	sense *SenseData
}

// takeSense consumes the pending sense, synthesizing No Sense when the slot
// is empty. Request Sense always clears the slot, so a second read with no
// intervening failure reports No Sense.
func (u *unit) takeSense() *SenseData {
	s := u.sense
	u.sense = nil
	if s == nil {
		s = NewSense(scsi.SenseNoSense, scsi.AscNone)
	}
	return s
}

// handleCommand runs one SCSI command against the unit's backend and returns
// the IN-phase payload, if any. data is the OUT-phase buffer, nil when the
// command carried none. Sanctioned failures come back as *CommandError.
func (u *unit) handleCommand(cbw *CBW, data []byte) ([]byte, error) {
	op := cbw.CB[0]

	size, ok := ParamSize(op)
	if !ok {
		log.Debugf("unparseable SCSI opcode %#02x", op)
		return nil, IllegalRequest()
	}
	// The host's claimed CDB length must agree with the parser's structure
	// size before any parameter is trusted.
	if int(cbw.CBLength)-1 != size {
		log.Debugf("CDB length %d does not fit opcode %#02x", cbw.CBLength, op)
		return nil, IllegalRequest()
	}

	cmd, err := ParseCDB(cbw.CB[:])
	if err != nil {
		return nil, IllegalRequest()
	}

	switch c := cmd.(type) {
	case TestUnitReady:
		return nil, u.lu.TestUnitReady()

	case RequestSense:
		return u.takeSense().Bytes(), nil

	case Inquiry:
		return u.lu.Inquiry(c.AllocationLength)

	case ModeSense6:
		// No mode pages are modeled; report an empty header.
		return modeSense6Header(), nil

	case ModeSense10:
		return modeSense10Header(), nil

	case StartStopUnit:
		return nil, u.lu.StartStopUnit(c.Start(), c.LoadEject())

	case PreventAllowMediumRemoval:
		return nil, u.lu.PreventAllowRemoval(c.Prevent())

	case ReadCapacity10:
		if c.PMI != 0 {
			return nil, InvalidFieldInCDB()
		}
		maxLBA, blockSize, err := u.lu.ReadCapacity()
		if err != nil {
			return nil, err
		}
		buf := make([]byte, 8)
		binary.BigEndian.PutUint32(buf[0:4], maxLBA)
		binary.BigEndian.PutUint32(buf[4:8], blockSize)
		return buf, nil

	case Read10:
		return u.lu.ReadBlocks(c.LBA, c.TransferLength)

	case Write10:
		// A write that reached dispatch without its data phase means the
		// transport and host disagree about the transfer.
		if data == nil {
			return nil, PhaseError()
		}
		return nil, u.lu.WriteBlocks(c.LBA, data)

	case Verify10:
		if c.ByteCheck() {
			if data == nil {
				return nil, InvalidFieldInCDB()
			}
			return nil, u.lu.Verify(c.LBA, data)
		}
		return nil, u.lu.Verify(c.LBA, nil)
	}

	return nil, IllegalRequest()
}
