package usbms

// Class-specific control requests, p7, 3.1 - 3.2, USB Mass Storage Class
// Bulk-Only Transport 1.0.
const (
	RequestGetMaxLUN     = 0xfe
	RequestBulkOnlyReset = 0xff
)

// bmRequestType fields, USB 2.0 chapter 9.
const (
	requestTypeDirMask   = 0x80
	requestTypeDirIn     = 0x80
	requestTypeDirOut    = 0x00
	requestTypeKindMask  = 0x60
	requestTypeClass     = 0x20
	requestTypeRecipMask = 0x1f
	requestTypeInterface = 0x01
)

// SetupPacket mirrors the 8-byte USB SETUP stage handed to the function by
// the gadget framework.
type SetupPacket struct {
	RequestType uint8
	Request     uint8
	Value       uint16
	Index       uint16
	Length      uint16
}

// classInterface reports whether the request is a class request addressed to
// the interface in the given direction.
func (s *SetupPacket) classInterface(dir uint8) bool {
	return s.RequestType&requestTypeDirMask == dir &&
		s.RequestType&requestTypeKindMask == requestTypeClass &&
		s.RequestType&requestTypeRecipMask == requestTypeInterface
}

// Setup intercepts the two Bulk-Only class-specific control requests ahead of
// generic control handling. handled reports whether the request was consumed;
// data is the IN-stage payload, if any. Unhandled requests belong to the
// caller's generic control path.
func (f *Function) Setup(req *SetupPacket) (data []byte, handled bool, err error) {
	switch {
	case req.Request == RequestBulkOnlyReset && req.classInterface(requestTypeDirOut):
		f.Reset()
		return nil, true, nil
	case req.Request == RequestGetMaxLUN && req.classInterface(requestTypeDirIn):
		return []byte{f.MaxLUN()}, true, nil
	}
	return nil, false, nil
}
