// SPDX-License-Identifier: MIT
// Copyright (c) 2020 Brian Starkey <stark3y@gmail.com>
package script

import (
	"encoding/binary"

	"github.com/pkg/errors"
	"github.com/usedbytes/xav-tools/lib/fwerr"
	"github.com/usedbytes/xav-tools/lib/uboot"
	"github.com/usedbytes/log"
)

// Segment parses a u-boot script payload: a zero terminated list of big
// endian segment sizes, followed by the segments. Only single segment
// scripts are supported.
func Segment(payload []byte) ([]byte, error) {
	var sizes []uint32

	pos := 0
	for {
		if pos+4 > len(payload) {
			return nil, errors.Wrap(fwerr.ErrInvalidScript, "unterminated size list")
		}

		size := binary.BigEndian.Uint32(payload[pos:])
		pos += 4
		if size == 0 {
			break
		}
		sizes = append(sizes, size)
	}

	if len(sizes) != 1 {
		return nil, errors.Wrapf(fwerr.ErrInvalidScript, "expected 1 segment, found %d", len(sizes))
	}

	log.Verbosef("Script segment: %d bytes at 0x%x\n", sizes[0], pos)

	end := uint64(pos) + uint64(sizes[0])
	if end > uint64(len(payload)) {
		return nil, errors.Wrapf(fwerr.ErrInvalidScript, "segment needs %d bytes, have %d", end, len(payload))
	}

	return payload[pos:end], nil
}

// Extract returns the script from a complete u-boot image
func Extract(image []byte) ([]byte, error) {
	_, err := uboot.Parse(image)
	if err != nil {
		return nil, err
	}

	return Segment(image[uboot.HeaderSize:])
}

// Wrap is the inverse of Segment. A zero length script can't be recovered,
// its size entry reads as the list terminator.
func Wrap(script []byte) []byte {
	out := make([]byte, 8, 8+len(script))
	binary.BigEndian.PutUint32(out[0:], uint32(len(script)))
	binary.BigEndian.PutUint32(out[4:], 0)
	return append(out, script...)
}
