package main

import (
	"bytes"
	"fmt"

	"github.com/Project-Muteki/dfusim/scsi"
	"github.com/Project-Muteki/dfusim/usbms"
)

// memUnit is the demonstration in-memory block device backing one logical
// unit. It holds everything the defaults already do right (inquiry, start/
// stop, removal) and overrides only the storage capabilities.
type memUnit struct {
	usbms.BaseUnit

	blockSize uint32
	data      []byte
}

func newMemUnit(blocks, blockSize uint32) *memUnit {
	return &memUnit{
		blockSize: blockSize,
		data:      make([]byte, int64(blocks)*int64(blockSize)),
	}
}

func (m *memUnit) blocks() uint32 {
	return uint32(uint64(len(m.data)) / uint64(m.blockSize))
}

func (m *memUnit) ReadCapacity() (uint32, uint32, error) {
	return m.blocks() - 1, m.blockSize, nil
}

func (m *memUnit) extent(lba uint32, n int) (int64, int64, error) {
	off := int64(lba) * int64(m.blockSize)
	end := off + int64(n)
	if end > int64(len(m.data)) {
		return 0, 0, fmt.Errorf("memunit: LBA %d + %d bytes out of range", lba, n)
	}
	return off, end, nil
}

func (m *memUnit) ReadBlocks(lba uint32, blocks uint16) ([]byte, error) {
	off, end, err := m.extent(lba, int(blocks)*int(m.blockSize))
	if err != nil {
		return nil, usbms.CheckCondition(scsi.SenseIllegalRequest, scsi.AscInvalidFieldInCdb)
	}
	out := make([]byte, end-off)
	copy(out, m.data[off:end])
	return out, nil
}

func (m *memUnit) WriteBlocks(lba uint32, data []byte) error {
	off, end, err := m.extent(lba, len(data))
	if err != nil {
		return usbms.CheckCondition(scsi.SenseIllegalRequest, scsi.AscInvalidFieldInCdb)
	}
	copy(m.data[off:end], data)
	return nil
}

func (m *memUnit) Verify(lba uint32, data []byte) error {
	if data == nil {
		// Medium verification without byte compare: memory is always good.
		return nil
	}
	off, end, err := m.extent(lba, len(data))
	if err != nil {
		return usbms.CheckCondition(scsi.SenseIllegalRequest, scsi.AscInvalidFieldInCdb)
	}
	if !bytes.Equal(m.data[off:end], data) {
		return usbms.CheckCondition(scsi.SenseMiscompare, scsi.AscMiscompareDuringVerifyOperation)
	}
	return nil
}
