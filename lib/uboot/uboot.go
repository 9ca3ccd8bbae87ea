// SPDX-License-Identifier: MIT
// Copyright (c) 2020 Brian Starkey <stark3y@gmail.com>
package uboot

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/usedbytes/xav-tools/lib/fwerr"
)

const (
	Magic      uint32 = 0x27051956
	HeaderSize        = 64
	NameSize          = 32
)

const (
	OSLinux    uint8 = 5
	ArchARM    uint8 = 2
	TypeScript uint8 = 6
	CompNone   uint8 = 0
)

// Header is the legacy u-boot image header, stored big endian
type Header struct {
	Magic      uint32
	HeaderCRC  uint32
	Timestamp  uint32
	DataSize   uint32
	LoadAddr   uint32
	EntryPoint uint32
	DataCRC    uint32
	OS         uint8
	Arch       uint8
	Type       uint8
	Comp       uint8
	Name       [NameSize]byte
}

func (h *Header) ImageName() string {
	return strings.TrimRight(string(h.Name[:]), "\x00")
}

func (h *Header) Time() time.Time {
	return time.Unix(int64(h.Timestamp), 0).UTC()
}

func (h Header) String() string {
	str := ""
	str += fmt.Sprintf("Image name:  %s\n", h.ImageName())
	str += fmt.Sprintf("Created:     %s\n", h.Time().Format(time.RFC3339))
	str += fmt.Sprintf("Data size:   %d (0x%x) bytes\n", h.DataSize, h.DataSize)
	str += fmt.Sprintf("Load/Entry:  0x%08x/0x%08x\n", h.LoadAddr, h.EntryPoint)
	str += fmt.Sprintf("OS/Arch:     %d/%d\n", h.OS, h.Arch)
	str += fmt.Sprintf("Type/Comp:   %d/%d\n", h.Type, h.Comp)
	str += fmt.Sprintf("Header CRC:  0x%08x\n", h.HeaderCRC)
	str += fmt.Sprintf("Data CRC:    0x%08x", h.DataCRC)
	return str
}

func (h *Header) Bytes() []byte {
	buf := &bytes.Buffer{}
	// Can't fail, Header is fixed size
	binary.Write(buf, binary.BigEndian, h)
	return buf.Bytes()
}

func (h *Header) computeHeaderCRC() uint32 {
	tmp := *h
	tmp.HeaderCRC = 0
	return crc32.ChecksumIEEE(tmp.Bytes())
}

// Parse reads the header at the start of data. The CRCs are not checked;
// see Verify.
func Parse(data []byte) (*Header, error) {
	if len(data) < 4 {
		return nil, errors.Wrapf(fwerr.ErrBadMagic, "not a u-boot image (%d bytes)", len(data))
	}

	magic := binary.BigEndian.Uint32(data)
	if magic != Magic {
		return nil, errors.Wrapf(fwerr.ErrBadMagic, "not a u-boot image (0x%08x)", magic)
	}

	if len(data) < HeaderSize {
		return nil, errors.Wrapf(fwerr.ErrTruncated, "u-boot header needs %d bytes, have %d", HeaderSize, len(data))
	}

	h := &Header{}
	// Can't fail, we already checked the length
	binary.Read(bytes.NewReader(data[:HeaderSize]), binary.BigEndian, h)

	return h, nil
}

// Verify checks both CRCs. data is the full image including the header.
func (h *Header) Verify(data []byte) error {
	crc := h.computeHeaderCRC()
	if crc != h.HeaderCRC {
		return errors.Wrapf(fwerr.ErrChecksum, "header CRC: have 0x%08x, calculated 0x%08x", h.HeaderCRC, crc)
	}

	end := uint64(HeaderSize) + uint64(h.DataSize)
	if end > uint64(len(data)) {
		return errors.Wrapf(fwerr.ErrTruncated, "image data needs %d bytes, have %d", end, len(data))
	}

	crc = crc32.ChecksumIEEE(data[HeaderSize:end])
	if crc != h.DataCRC {
		return errors.Wrapf(fwerr.ErrChecksum, "data CRC: have 0x%08x, calculated 0x%08x", h.DataCRC, crc)
	}

	return nil
}

// NewHeader describes data as an uncompressed ARM Linux script image
func NewHeader(data []byte, name string, ts time.Time) *Header {
	h := &Header{
		Magic:     Magic,
		Timestamp: uint32(ts.Unix()),
		DataSize:  uint32(len(data)),
		DataCRC:   crc32.ChecksumIEEE(data),
		OS:        OSLinux,
		Arch:      ArchARM,
		Type:      TypeScript,
		Comp:      CompNone,
	}
	// Over-long names are truncated to fit
	copy(h.Name[:], name)

	h.HeaderCRC = h.computeHeaderCRC()

	return h
}

// Build returns the header followed by data, timestamped now
func Build(data []byte, name string) []byte {
	h := NewHeader(data, name, time.Now())

	out := make([]byte, 0, HeaderSize+len(data))
	out = append(out, h.Bytes()...)
	return append(out, data...)
}
