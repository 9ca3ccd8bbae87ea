// SPDX-License-Identifier: MIT
// Copyright (c) 2020 Brian Starkey <stark3y@gmail.com>
package pack

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"strings"

	"github.com/pkg/errors"
	"github.com/usedbytes/xav-tools/lib/fwerr"
	"github.com/usedbytes/log"
)

// Layout of CUST_PACK.BIN. All fields are little endian.
const (
	Token = "GEMINI"

	HeaderSize   = 0xc0
	VersionSize  = 64
	EntrySize    = 32
	EntryNameLen = 24

	// Where Build puts things
	TableOffset = 0xc0
	DataOffset  = 0x400

	// The name of the ISP image inside the container
	UpdateName = "CUST_UPDT.BIN"

	offTotalSize   = 6
	offReserved    = 10
	offTableOffset = 12
	offTableLen    = 16
	offFWVersion   = 0x40
	offSDKVersion  = 0x80
)

type FileEntry struct {
	Name   string `json:"name"`
	Size   uint32 `json:"size"`
	Offset uint32 `json:"offset"`
}

func (fe FileEntry) String() string {
	return fmt.Sprintf("%-24s 0x%08x +0x%08x", fe.Name, fe.Offset, fe.Size)
}

type Pack struct {
	TotalSize       uint32      `json:"total_size"`
	Reserved        uint16      `json:"reserved"`
	TableOffset     uint32      `json:"table_offset"`
	TableLen        uint32      `json:"table_len"`
	FirmwareVersion string      `json:"firmware_version"`
	SDKVersion      string      `json:"sdk_version"`
	Files           []FileEntry `json:"files"`

	rawData []byte
}

func (p *Pack) String() string {
	str := ""
	str += fmt.Sprintf("Firmware version: %s\n", p.FirmwareVersion)
	str += fmt.Sprintf("SDK version:      %s\n", p.SDKVersion)
	str += fmt.Sprintf("Total size:       %d (0x%x) bytes\n", p.TotalSize, p.TotalSize)
	str += fmt.Sprintf("Files:            %d", len(p.Files))
	for _, f := range p.Files {
		str += "\n  " + f.String()
	}
	return str
}

func readString(b []byte) string {
	return strings.TrimRight(string(b), "\x00")
}

// writeString copies s into the fixed width field b, padding with NULs.
// Over-long strings are truncated.
func writeString(b []byte, s string) {
	n := copy(b, s)
	for i := n; i < len(b); i++ {
		b[i] = 0
	}
}

// SizeError reports whether the declared total size matches the buffer
func (p *Pack) SizeError() error {
	if int64(p.TotalSize) != int64(len(p.rawData)) {
		return errors.Wrapf(fwerr.ErrSizeMismatch, "expected %d, was %d", p.TotalSize, len(p.rawData))
	}
	return nil
}

// Parse reads the header and file table. A wrong total size is only
// warned about.
func Parse(data []byte) (*Pack, error) {
	if !bytes.HasPrefix(data, []byte(Token)) {
		n := len(data)
		if n > len(Token) {
			n = len(Token)
		}
		return nil, errors.Wrapf(fwerr.ErrBadMagic, "not a pack file (token '%s')", readString(data[:n]))
	}

	if len(data) < HeaderSize {
		return nil, errors.Wrapf(fwerr.ErrTruncated, "pack header needs %d bytes, have %d", HeaderSize, len(data))
	}

	p := &Pack{
		TotalSize:       binary.LittleEndian.Uint32(data[offTotalSize:]),
		Reserved:        binary.LittleEndian.Uint16(data[offReserved:]),
		TableOffset:     binary.LittleEndian.Uint32(data[offTableOffset:]),
		TableLen:        binary.LittleEndian.Uint32(data[offTableLen:]),
		FirmwareVersion: readString(data[offFWVersion : offFWVersion+VersionSize]),
		SDKVersion:      readString(data[offSDKVersion : offSDKVersion+VersionSize]),
		rawData:         data,
	}

	err := p.SizeError()
	if err != nil {
		log.Println("WARNING:", err)
	}

	nfiles := int(p.TableLen / EntrySize)
	for i := 0; i < nfiles; i++ {
		off := uint64(p.TableOffset) + uint64(i*EntrySize)
		if off+EntrySize > uint64(len(data)) {
			return nil, errors.Wrapf(fwerr.ErrTruncated, "file entry %d at 0x%x", i, off)
		}
		raw := data[off : off+EntrySize]

		fe := FileEntry{
			Name:   readString(raw[:EntryNameLen]),
			Size:   binary.LittleEndian.Uint32(raw[EntryNameLen:]),
			Offset: binary.LittleEndian.Uint32(raw[EntryNameLen+4:]),
		}
		log.Verboseln("File entry:", fe)

		p.Files = append(p.Files, fe)
	}

	return p, nil
}

func (p *Pack) Data(fe FileEntry) ([]byte, error) {
	end := uint64(fe.Offset) + uint64(fe.Size)
	if end > uint64(len(p.rawData)) {
		return nil, errors.Wrapf(fwerr.ErrTruncated, "%s: 0x%x+0x%x outside the file", fe.Name, fe.Offset, fe.Size)
	}

	return p.rawData[fe.Offset:end], nil
}

// Extract returns the contents of the first file called name
func (p *Pack) Extract(name string) ([]byte, error) {
	for _, fe := range p.Files {
		if fe.Name == name {
			return p.Data(fe)
		}
	}

	return nil, errors.Wrapf(fwerr.ErrNotFound, "'%s'", name)
}

type BuildOptions struct {
	FirmwareVersion string
	SDKVersion      string

	// 0 means no limit
	MaxSize int
	// Exceeding MaxSize is an error, rather than a warning
	Strict bool
}

// Build makes a container holding file as UpdateName
func Build(file []byte, opts BuildOptions) ([]byte, error) {
	out := make([]byte, DataOffset, DataOffset+len(file))

	copy(out, Token)
	// Unknown, always 1 in vendor files
	binary.LittleEndian.PutUint16(out[offReserved:], 1)
	binary.LittleEndian.PutUint32(out[offTableOffset:], TableOffset)
	binary.LittleEndian.PutUint32(out[offTableLen:], EntrySize)
	writeString(out[offFWVersion:offFWVersion+VersionSize], opts.FirmwareVersion)
	writeString(out[offSDKVersion:offSDKVersion+VersionSize], opts.SDKVersion)

	entry := out[TableOffset : TableOffset+EntrySize]
	writeString(entry[:EntryNameLen], UpdateName)
	binary.LittleEndian.PutUint32(entry[EntryNameLen:], uint32(len(file)))
	binary.LittleEndian.PutUint32(entry[EntryNameLen+4:], DataOffset)

	out = append(out, file...)

	binary.LittleEndian.PutUint32(out[offTotalSize:], uint32(len(out)))

	if opts.MaxSize > 0 && len(out) > opts.MaxSize {
		err := errors.Wrapf(fwerr.ErrOversize, "%d bytes, limit is %d", len(out), opts.MaxSize)
		if opts.Strict {
			return nil, err
		}
		log.Println("WARNING:", err)
	}

	return out, nil
}
