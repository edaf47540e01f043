package usbms

import (
	"encoding/binary"
	"fmt"

	"github.com/Project-Muteki/dfusim/scsi"
)

// Bulk-Only Transport envelope constants, p13, 5.1 - 5.2, USB Mass Storage
// Class Bulk-Only Transport 1.0. The envelopes are little-endian per USB
// convention; everything inside the CDB is big-endian per SCSI convention.
const (
	CBWSignature = 0x43425355
	CSWSignature = 0x53425355

	CBWLength = 31
	CSWLength = 13

	cbwDirMask = 0x80
	CBWDirIn   = 0x80
	CBWDirOut  = 0x00
)

// CSW status codes.
const (
	StatusGood       = 0x00
	StatusFailed     = 0x01
	StatusPhaseError = 0x02
)

// CBW is the Command Block Wrapper, the host-to-device envelope carrying one
// SCSI command. It is sent as a separate packet before any data transfer.
type CBW struct {
	Signature          uint32
	Tag                uint32
	DataTransferLength uint32
	Flags              uint8
	LUN                uint8
	CBLength           uint8
	CB                 [16]byte
}

// ParseCBW decodes a 31-byte Command Block Wrapper. The signature is not
// validated here; the transport checks it so that a mismatch can halt the
// bulk endpoints.
func ParseCBW(buf []byte) (*CBW, error) {
	if len(buf) < CBWLength {
		return nil, fmt.Errorf("usbms: short CBW: %d bytes", len(buf))
	}
	cbw := &CBW{
		Signature:          binary.LittleEndian.Uint32(buf[0:4]),
		Tag:                binary.LittleEndian.Uint32(buf[4:8]),
		DataTransferLength: binary.LittleEndian.Uint32(buf[8:12]),
		Flags:              buf[12],
		LUN:                buf[13] & 0x0f,
		CBLength:           buf[14] & 0x1f,
	}
	copy(cbw.CB[:], buf[15:31])
	return cbw, nil
}

// Bytes encodes the CBW into its 31-byte wire form.
func (c *CBW) Bytes() []byte {
	buf := make([]byte, CBWLength)
	binary.LittleEndian.PutUint32(buf[0:4], c.Signature)
	binary.LittleEndian.PutUint32(buf[4:8], c.Tag)
	binary.LittleEndian.PutUint32(buf[8:12], c.DataTransferLength)
	buf[12] = c.Flags
	buf[13] = c.LUN
	buf[14] = c.CBLength
	copy(buf[15:31], c.CB[:])
	return buf
}

// IsIn reports whether the data phase, if any, runs device-to-host.
func (c *CBW) IsIn() bool {
	return c.Flags&cbwDirMask == CBWDirIn
}

// CSW is the Command Status Wrapper, the device-to-host envelope closing a
// command cycle. Exactly one CSW terminates every dispatched command.
type CSW struct {
	Signature   uint32
	Tag         uint32
	DataResidue uint32
	Status      uint8
}

// NewCSW builds a CSW echoing the originating CBW tag. DataResidue is the
// difference between the bytes the host asked for and the bytes actually
// transferred.
func NewCSW(tag uint32, status uint8, residue uint32) CSW {
	return CSW{
		Signature:   CSWSignature,
		Tag:         tag,
		DataResidue: residue,
		Status:      status,
	}
}

// ParseCSW decodes a 13-byte Command Status Wrapper.
func ParseCSW(buf []byte) (*CSW, error) {
	if len(buf) < CSWLength {
		return nil, fmt.Errorf("usbms: short CSW: %d bytes", len(buf))
	}
	return &CSW{
		Signature:   binary.LittleEndian.Uint32(buf[0:4]),
		Tag:         binary.LittleEndian.Uint32(buf[4:8]),
		DataResidue: binary.LittleEndian.Uint32(buf[8:12]),
		Status:      buf[12],
	}, nil
}

// Bytes encodes the CSW into its 13-byte wire form.
func (c CSW) Bytes() []byte {
	buf := make([]byte, CSWLength)
	binary.LittleEndian.PutUint32(buf[0:4], c.Signature)
	binary.LittleEndian.PutUint32(buf[4:8], c.Tag)
	binary.LittleEndian.PutUint32(buf[8:12], c.DataResidue)
	buf[12] = c.Status
	return buf
}

// InquiryLength is the size of the standard Inquiry data: a 5-byte header
// followed by 31 bytes of feature flags and vendor identification.
const InquiryLength = 36

// StandardInquiry encodes standard Inquiry data for a direct-access device.
// Identification strings shorter than their fields are zero padded, longer
// ones are truncated.
func StandardInquiry(peripheralType byte, removable bool, vendor, product, revision string) []byte {
	buf := make([]byte, InquiryLength)
	buf[0] = peripheralType
	if removable {
		buf[1] = scsi.InquiryRemovable
	}
	buf[2] = scsi.InquiryVersionSPC2
	buf[3] = scsi.InquiryResponseFormatSPC2
	buf[4] = InquiryLength - 5
	copy(buf[8:16], vendor)
	copy(buf[16:32], product)
	copy(buf[32:36], revision)
	return buf
}

// modeSense6Header is the header-only Mode Sense(6) response: no block
// descriptors and no mode pages, so the mode data length covers just the
// remaining three header bytes.
func modeSense6Header() []byte {
	return []byte{3, 0, 0, 0}
}

// modeSense10Header is the header-only Mode Sense(10) response.
func modeSense10Header() []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint16(buf[0:2], 6)
	return buf
}
