package scsi

/*
 * Constants for the SCSI transparent command set carried over the USB
 * Mass Storage Bulk-Only Transport.
 *
 * Find codes in the various SCSI specs.
 * Btw sense codes are at www.t10.org/lists/asc-num.txt
 */

/*
 * SCSI Opcodes
 */
const (
	TestUnitReady        = 0x00
	RequestSense         = 0x03
	FormatUnit           = 0x04
	Read6                = 0x08
	Write6               = 0x0a
	Inquiry              = 0x12
	ModeSelect6          = 0x15
	ModeSense6           = 0x1a
	StartStopUnit        = 0x1b
	AllowMediumRemoval   = 0x1e
	ReadFormatCapacities = 0x23
	ReadCapacity10       = 0x25
	Read10               = 0x28
	Write10              = 0x2a
	Verify10             = 0x2f
	SynchronizeCache10   = 0x35
	ModeSelect10         = 0x55
	ModeSense10          = 0x5a
	Read16               = 0x88
	Write16              = 0x8a
	ReportLuns           = 0xa0
	Read12               = 0xa8
	Write12              = 0xaa
)

/*
 * Fixed-format sense response codes (byte 0, low 7 bits).
 */
const (
	ErrorCodeCurrent  = 0x70
	ErrorCodeDeferred = 0x71
)

/*
 * Sense Keys
 */
const (
	SenseNoSense        = 0x00
	SenseRecoveredError = 0x01
	SenseNotReady       = 0x02
	SenseMediumError    = 0x03
	SenseHardwareError  = 0x04
	SenseIllegalRequest = 0x05
	SenseUnitAttention  = 0x06
	SenseDataProtect    = 0x07
	SenseBlankCheck     = 0x08
	SenseVendorSpecific = 0x09
	SenseCopyAborted    = 0x0a
	SenseAbortedCommand = 0x0b
	SenseVolumeOverflow = 0x0d
	SenseMiscompare     = 0x0e
)

/*
 * Additional sense code / qualifier pairs, high byte ASC, low byte ASCQ.
 */
const (
	AscNone                            = 0x0000
	AscLunNotReady                     = 0x0400
	AscLunStarting                     = 0x0401
	AscWriteError                      = 0x0c02
	AscReadError                       = 0x1100
	AscMiscompareDuringVerifyOperation = 0x1d00
	AscInvalidCommandOperationCode     = 0x2000
	AscInvalidFieldInCdb               = 0x2400
	AscLunNotSupported                 = 0x2500
)

/*
 * Standard Inquiry data fields.
 */
const (
	InquiryPeripheralQualifierLoaded   = 0x0 << 5
	InquiryPeripheralQualifierUnloaded = 0x1 << 5
	InquiryPeripheralQualifierUnknown  = 0x3 << 5
	InquiryPeripheralTypeDirectAccess  = 0x00

	InquiryRemovable = 0x80

	InquiryVersionSCSI2       = 0x02
	InquiryVersionSPC         = 0x03
	InquiryVersionSPC2        = 0x04
	InquiryResponseFormatSPC2 = 0x02
)

/*
 * Verify(10) byte 1.
 */
const (
	VerifyByteCheck = 0x02
)
