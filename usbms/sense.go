package usbms

import (
	"encoding/binary"
	"fmt"

	"github.com/Project-Muteki/dfusim/scsi"
)

// SenseLength is the size of the fixed-format sense data: an 8-byte header
// followed by 10 bytes of additional sense.
const (
	senseExtLength = 10
	SenseLength    = 8 + senseExtLength
)

// SenseData is fixed-format SCSI sense. A logical unit stores the sense block
// of its most recent failure until the next Request Sense consumes it or the
// next failure overwrites it.
type SenseData struct {
	ErrorCode        uint8 // scsi.ErrorCodeCurrent or scsi.ErrorCodeDeferred
	Valid            bool  // information field is valid
	SenseKey         uint8
	Information      uint32
	CommandSpecific  uint32
	AscAscq          uint16 // additional sense code and qualifier
	FRU              uint8  // field replaceable unit code
	SenseKeySpecific [3]uint8
}

// NewSense builds a current-error sense block carrying a sense key and an
// ASC/ASCQ pair, the shape every sanctioned error reports.
func NewSense(key uint8, ascq uint16) *SenseData {
	return &SenseData{
		ErrorCode: scsi.ErrorCodeCurrent,
		SenseKey:  key,
		AscAscq:   ascq,
	}
}

// Bytes encodes the sense data into its 18-byte big-endian wire form.
func (s *SenseData) Bytes() []byte {
	buf := make([]byte, SenseLength)
	buf[0] = s.ErrorCode & 0x7f
	if s.Valid {
		buf[0] |= 0x80
	}
	buf[2] = s.SenseKey & 0x0f
	binary.BigEndian.PutUint32(buf[3:7], s.Information)
	buf[7] = senseExtLength
	binary.BigEndian.PutUint32(buf[8:12], s.CommandSpecific)
	binary.BigEndian.PutUint16(buf[12:14], s.AscAscq)
	buf[14] = s.FRU
	copy(buf[15:18], s.SenseKeySpecific[:])
	return buf
}

// CommandError is the sanctioned way for command handling to fail: it carries
// the CSW status reported to the host and the sense data stored on the
// logical unit. Any other error escaping a handler is downgraded to a phase
// error with cleared sense, since the bus state can no longer be trusted to
// carry meaningful detail.
type CommandError struct {
	Status uint8
	Sense  *SenseData
}

func (e *CommandError) Error() string {
	switch e.Status {
	case StatusGood:
		return "usbms: good status"
	case StatusFailed:
		return "usbms: bad status"
	case StatusPhaseError:
		return "usbms: phase error"
	}
	return fmt.Sprintf("usbms: status %#02x", e.Status)
}

// CheckCondition reports a failed command with the given sense key and
// ASC/ASCQ pair.
func CheckCondition(key uint8, ascq uint16) *CommandError {
	return &CommandError{
		Status: StatusFailed,
		Sense:  NewSense(key, ascq),
	}
}

// IllegalRequest is the preset response for a malformed or unsupported
// command, with no additional sense.
func IllegalRequest() *CommandError {
	return CheckCondition(scsi.SenseIllegalRequest, scsi.AscNone)
}

// InvalidFieldInCDB is the preset response for a structurally valid command
// carrying an unacceptable parameter field.
func InvalidFieldInCDB() *CommandError {
	return CheckCondition(scsi.SenseIllegalRequest, scsi.AscInvalidFieldInCdb)
}

// NotReady reports that the logical unit cannot service the command, with an
// optional cause such as scsi.AscLunStarting.
func NotReady(ascq uint16) *CommandError {
	return CheckCondition(scsi.SenseNotReady, ascq)
}

// PhaseError reports that the transport's data-phase expectations were
// violated. It carries no sense payload.
func PhaseError() *CommandError {
	return &CommandError{Status: StatusPhaseError}
}
