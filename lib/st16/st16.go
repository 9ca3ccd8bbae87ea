// SPDX-License-Identifier: MIT
// Copyright (c) 2020 Brian Starkey <stark3y@gmail.com>

// Package st16 edits the version fields of the companion microcontroller
// firmware image.
package st16

import (
	"bytes"

	"github.com/pkg/errors"
	"github.com/usedbytes/xav-tools/lib/fwerr"
	"github.com/usedbytes/log"
)

const (
	MagicLen   = 8
	VersionLen = 16
)

type Layout struct {
	Magic          string `toml:"magic"`
	MagicOffset    int    `toml:"magic_offset"`
	VersionOffsets []int  `toml:"version_offsets"`
}

var DefaultLayout = Layout{
	Magic:          "ST16_APP",
	MagicOffset:    0x100,
	VersionOffsets: []int{0x110, 0x170},
}

func (l *Layout) validate() error {
	if len(l.Magic) != MagicLen {
		return errors.Errorf("st16 magic must be %d bytes, got %d", MagicLen, len(l.Magic))
	}
	if len(l.VersionOffsets) == 0 {
		return errors.New("st16 layout has no version fields")
	}
	return nil
}

func (l *Layout) Check(data []byte) error {
	err := l.validate()
	if err != nil {
		return err
	}

	end := l.MagicOffset + MagicLen
	if l.MagicOffset < 0 || end > len(data) {
		return errors.Wrapf(fwerr.ErrUnsupportedFile, "too short for st16 magic (%d bytes)", len(data))
	}

	if !bytes.Equal(data[l.MagicOffset:end], []byte(l.Magic)) {
		return errors.Wrapf(fwerr.ErrUnsupportedFile, "st16 magic mismatch: %q", data[l.MagicOffset:end])
	}

	for _, off := range l.VersionOffsets {
		if off < 0 || off+VersionLen > len(data) {
			return errors.Wrapf(fwerr.ErrTruncated, "version field at 0x%x", off)
		}
	}

	return nil
}

// Version returns the contents of the first version field
func (l *Layout) Version(data []byte) (string, error) {
	err := l.Check(data)
	if err != nil {
		return "", err
	}

	off := l.VersionOffsets[0]
	return string(bytes.TrimRight(data[off:off+VersionLen], "\x00")), nil
}

// SetVersion returns a copy of data with every version field set to ver.
// ver is NUL padded, or silently truncated, to VersionLen bytes; existing
// tooling relies on the truncation so it isn't an error.
func (l *Layout) SetVersion(data []byte, ver string) ([]byte, error) {
	err := l.Check(data)
	if err != nil {
		return nil, err
	}

	if len(ver) > VersionLen {
		log.Verbosef("Truncating version '%s' to %d bytes\n", ver, VersionLen)
	}

	field := make([]byte, VersionLen)
	copy(field, ver)

	out := append([]byte(nil), data...)
	for _, off := range l.VersionOffsets {
		copy(out[off:off+VersionLen], field)
	}

	return out, nil
}
