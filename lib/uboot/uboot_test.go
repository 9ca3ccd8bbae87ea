// SPDX-License-Identifier: MIT
// Copyright (c) 2020 Brian Starkey <stark3y@gmail.com>
package uboot

import (
	"bytes"
	"encoding/binary"
	"errors"
	"hash/crc32"
	"testing"
	"time"

	"github.com/usedbytes/xav-tools/lib/fwerr"
)

func TestBuildParse(t *testing.T) {
	data := []byte("echo hello\n")
	img := Build(data, "XAV-AX100")

	if len(img) != HeaderSize+len(data) {
		t.Fatalf("image is %d bytes", len(img))
	}

	h, err := Parse(img)
	if err != nil {
		t.Fatal(err)
	}

	if h.ImageName() != "XAV-AX100" {
		t.Errorf("name: '%s'", h.ImageName())
	}
	if h.DataSize != uint32(len(data)) {
		t.Errorf("data size: %d", h.DataSize)
	}
	if h.DataCRC != crc32.ChecksumIEEE(data) {
		t.Errorf("data crc: 0x%08x", h.DataCRC)
	}
	if h.OS != OSLinux || h.Arch != ArchARM || h.Type != TypeScript || h.Comp != CompNone {
		t.Errorf("unexpected tags %d/%d/%d/%d", h.OS, h.Arch, h.Type, h.Comp)
	}
	if !bytes.Equal(img[HeaderSize:], data) {
		t.Error("payload mismatch")
	}

	err = h.Verify(img)
	if err != nil {
		t.Errorf("verify failed: %v", err)
	}
}

func TestHeaderCRCComputedWithFieldZeroed(t *testing.T) {
	h := NewHeader([]byte{1, 2, 3}, "x", time.Unix(1600000000, 0))
	raw := h.Bytes()

	stored := binary.BigEndian.Uint32(raw[4:8])
	binary.BigEndian.PutUint32(raw[4:8], 0)
	if crc32.ChecksumIEEE(raw) != stored {
		t.Error("header CRC wasn't computed over a zeroed CRC field")
	}
	if binary.BigEndian.Uint32(raw[8:12]) != 1600000000 {
		t.Error("timestamp not stored")
	}
}

func TestParseBadMagic(t *testing.T) {
	img := Build([]byte("data"), "x")
	img[0] ^= 0xff

	_, err := Parse(img)
	if !errors.Is(err, fwerr.ErrBadMagic) {
		t.Errorf("expected ErrBadMagic, got %v", err)
	}

	for _, n := range []int{0, 3, 4, 10, 63} {
		buf := make([]byte, n)
		if n > 0 {
			buf[0] = 0xde
		}

		_, err = Parse(buf)
		if !errors.Is(err, fwerr.ErrBadMagic) {
			t.Errorf("len %d: expected ErrBadMagic, got %v", n, err)
		}
	}
}

func TestParseTruncatedHeader(t *testing.T) {
	img := Build([]byte("data"), "x")

	for _, n := range []int{4, 10, HeaderSize - 1} {
		_, err := Parse(img[:n])
		if !errors.Is(err, fwerr.ErrTruncated) {
			t.Errorf("len %d: expected ErrTruncated, got %v", n, err)
		}
	}
}

func TestParseIgnoresCRC(t *testing.T) {
	img := Build([]byte("data"), "x")
	img[HeaderSize] = 'D'
	binary.BigEndian.PutUint32(img[4:], 0x12345678)

	h, err := Parse(img)
	if err != nil {
		t.Fatalf("parse should not check CRCs: %v", err)
	}

	err = h.Verify(img)
	if !errors.Is(err, fwerr.ErrChecksum) {
		t.Errorf("expected ErrChecksum, got %v", err)
	}
}

func TestVerifyDataCRC(t *testing.T) {
	img := Build([]byte("data"), "x")
	img[HeaderSize] = 'D'

	h, err := Parse(img)
	if err != nil {
		t.Fatal(err)
	}

	err = h.Verify(img)
	if !errors.Is(err, fwerr.ErrChecksum) {
		t.Errorf("expected ErrChecksum, got %v", err)
	}

	err = h.Verify(img[:HeaderSize+2])
	if !errors.Is(err, fwerr.ErrTruncated) {
		t.Errorf("expected ErrTruncated, got %v", err)
	}
}

func TestLongName(t *testing.T) {
	name := "0123456789012345678901234567890123456789"
	h := NewHeader(nil, name, time.Now())
	if h.ImageName() != name[:NameSize] {
		t.Errorf("name: '%s'", h.ImageName())
	}
}
