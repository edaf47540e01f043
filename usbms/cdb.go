package usbms

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/Project-Muteki/dfusim/scsi"
)

// ErrUnknownOpcode reports a CDB whose opcode has no structured parser.
// Unknown opcodes fail closed even when their length class is recognized.
var ErrUnknownOpcode = errors.New("usbms: unsupported SCSI opcode")

// Command is one decoded SCSI Command Descriptor Block. The set of variants
// is closed; ParseCDB is the only producer.
type Command interface {
	// paramSize is the byte size of the parameter block following the
	// opcode, as declared by the variant's wire layout.
	paramSize() int
}

// TestUnitReady is the decoded Test Unit Ready CDB (0x00).
type TestUnitReady struct {
	Control uint8
}

// RequestSense is the decoded Request Sense CDB (0x03).
type RequestSense struct {
	Flags            uint8
	AllocationLength uint8
	Control          uint8
}

// Inquiry is the decoded Inquiry CDB (0x12).
type Inquiry struct {
	Flags            uint8
	PageCode         uint8
	AllocationLength uint16
	Control          uint8
}

// ModeSense6 is the decoded Mode Sense(6) CDB (0x1a).
type ModeSense6 struct {
	Flags            uint8
	Page             uint8
	SubpageCode      uint8
	AllocationLength uint8
	Control          uint8
}

// ModeSense10 is the decoded Mode Sense(10) CDB (0x5a).
type ModeSense10 struct {
	Flags            uint8
	Page             uint8
	AllocationLength uint16
	Control          uint8
}

// StartStopUnit is the decoded Start Stop Unit CDB (0x1b).
type StartStopUnit struct {
	Immed   uint8
	Flags   uint8
	Control uint8
}

// Start reports the START bit.
func (c StartStopUnit) Start() bool { return c.Flags&0x01 != 0 }

// LoadEject reports the LOEJ bit.
func (c StartStopUnit) LoadEject() bool { return c.Flags&0x02 != 0 }

// PreventAllowMediumRemoval is the decoded Prevent Allow Medium Removal
// CDB (0x1e).
type PreventAllowMediumRemoval struct {
	Flags   uint8
	Control uint8
}

// Prevent reports the PREVENT bit.
func (c PreventAllowMediumRemoval) Prevent() bool { return c.Flags&0x01 != 0 }

// ReadCapacity10 is the decoded Read Capacity(10) CDB (0x25). PMI is the
// whole flags byte 8; the command is only valid when it is zero.
type ReadCapacity10 struct {
	Flags   uint8
	LBA     uint32
	PMI     uint8
	Control uint8
}

// Read10 is the decoded Read(10) CDB (0x28).
type Read10 struct {
	Flags          uint8
	LBA            uint32
	GroupNumber    uint8
	TransferLength uint16
	Control        uint8
}

// Write10 is the decoded Write(10) CDB (0x2a).
type Write10 struct {
	Flags          uint8
	LBA            uint32
	GroupNumber    uint8
	TransferLength uint16
	Control        uint8
}

// Verify10 is the decoded Verify(10) CDB (0x2f).
type Verify10 struct {
	Flags              uint8
	LBA                uint32
	GroupFlags         uint8
	VerificationLength uint16
	Control            uint8
}

// ByteCheck reports the BYTCHK bit: when set, the host supplies the data to
// compare against the medium.
func (c Verify10) ByteCheck() bool { return c.Flags&scsi.VerifyByteCheck != 0 }

func (TestUnitReady) paramSize() int             { return 5 }
func (RequestSense) paramSize() int              { return 5 }
func (Inquiry) paramSize() int                   { return 5 }
func (ModeSense6) paramSize() int                { return 5 }
func (StartStopUnit) paramSize() int             { return 5 }
func (PreventAllowMediumRemoval) paramSize() int { return 5 }
func (ReadCapacity10) paramSize() int            { return 9 }
func (Read10) paramSize() int                    { return 9 }
func (Write10) paramSize() int                   { return 9 }
func (Verify10) paramSize() int                  { return 9 }
func (ModeSense10) paramSize() int               { return 9 }

// ParamSize reports the authoritative parameter-block size for opcodes with a
// structured parser. It fails closed: opcodes outside the table are
// unparseable even when ClassLength would guess a nonzero size for them.
func ParamSize(op byte) (int, bool) {
	switch op {
	case scsi.TestUnitReady, scsi.RequestSense, scsi.Inquiry, scsi.ModeSense6,
		scsi.StartStopUnit, scsi.AllowMediumRemoval:
		return 5, true
	case scsi.ReadCapacity10, scsi.Read10, scsi.Write10, scsi.Verify10,
		scsi.ModeSense10:
		return 9, true
	}
	return 0, false
}

// ClassLength guesses a CDB length from the opcode range alone, for opcodes
// without a structured parser. Zero means the range is unrecognized.
// See spc-4 4.2.5.1 operation code.
func ClassLength(op byte) int {
	switch {
	case op <= 0x1f:
		return 6
	case op <= 0x5f:
		return 10
	case op >= 0x80 && op <= 0x9f:
		return 16
	case op >= 0xa0 && op <= 0xbf:
		return 12
	}
	return 0
}

// ParseCDB decodes cdb[0] and its parameter bytes into one of the Command
// variants. Parameter fields are big-endian. A buffer shorter than the
// opcode's parameter block is an error, never a silent truncation.
func ParseCDB(cdb []byte) (Command, error) {
	if len(cdb) == 0 {
		return nil, fmt.Errorf("usbms: empty CDB")
	}
	op := cdb[0]
	size, ok := ParamSize(op)
	if !ok {
		return nil, fmt.Errorf("%w %#02x", ErrUnknownOpcode, op)
	}
	if len(cdb) < 1+size {
		return nil, fmt.Errorf("usbms: short CDB for opcode %#02x: %d bytes", op, len(cdb))
	}
	p := cdb[1 : 1+size]

	switch op {
	case scsi.TestUnitReady:
		return TestUnitReady{Control: p[4]}, nil
	case scsi.RequestSense:
		return RequestSense{
			Flags:            p[0],
			AllocationLength: p[3],
			Control:          p[4],
		}, nil
	case scsi.Inquiry:
		return Inquiry{
			Flags:            p[0],
			PageCode:         p[1],
			AllocationLength: binary.BigEndian.Uint16(p[2:4]),
			Control:          p[4],
		}, nil
	case scsi.ModeSense6:
		return ModeSense6{
			Flags:            p[0],
			Page:             p[1],
			SubpageCode:      p[2],
			AllocationLength: p[3],
			Control:          p[4],
		}, nil
	case scsi.StartStopUnit:
		return StartStopUnit{
			Immed:   p[0],
			Flags:   p[3],
			Control: p[4],
		}, nil
	case scsi.AllowMediumRemoval:
		return PreventAllowMediumRemoval{
			Flags:   p[3],
			Control: p[4],
		}, nil
	case scsi.ReadCapacity10:
		return ReadCapacity10{
			Flags:   p[0],
			LBA:     binary.BigEndian.Uint32(p[1:5]),
			PMI:     p[7],
			Control: p[8],
		}, nil
	case scsi.Read10:
		return Read10{
			Flags:          p[0],
			LBA:            binary.BigEndian.Uint32(p[1:5]),
			GroupNumber:    p[5],
			TransferLength: binary.BigEndian.Uint16(p[6:8]),
			Control:        p[8],
		}, nil
	case scsi.Write10:
		return Write10{
			Flags:          p[0],
			LBA:            binary.BigEndian.Uint32(p[1:5]),
			GroupNumber:    p[5],
			TransferLength: binary.BigEndian.Uint16(p[6:8]),
			Control:        p[8],
		}, nil
	case scsi.Verify10:
		return Verify10{
			Flags:              p[0],
			LBA:                binary.BigEndian.Uint32(p[1:5]),
			GroupFlags:         p[5],
			VerificationLength: binary.BigEndian.Uint16(p[6:8]),
			Control:            p[8],
		}, nil
	case scsi.ModeSense10:
		return ModeSense10{
			Flags:            p[0],
			Page:             p[1],
			AllocationLength: binary.BigEndian.Uint16(p[6:8]),
			Control:          p[8],
		}, nil
	}
	return nil, fmt.Errorf("%w %#02x", ErrUnknownOpcode, op)
}
