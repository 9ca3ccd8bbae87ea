// SPDX-License-Identifier: MIT
// Copyright (c) 2020 Brian Starkey <stark3y@gmail.com>

// Package fwerr holds the error values shared by the firmware format
// packages. Errors are wrapped with context on the way up, so compare them
// with errors.Is.
package fwerr

import (
	"github.com/pkg/errors"
)

var (
	// A format's fixed magic or token didn't match
	ErrBadMagic = errors.New("bad magic")
	// The declared total size doesn't match the buffer. Only ever reported
	// as a warning by the parsers.
	ErrSizeMismatch = errors.New("size mismatch")
	// The embedded script size list doesn't describe exactly one segment
	ErrInvalidScript = errors.New("invalid script")
	// A key directive is missing from the script
	ErrKeyDerivation = errors.New("key derivation failed")
	// The built container is larger than its budget
	ErrOversize = errors.New("container too large")
	// The named file isn't in the container file table
	ErrNotFound = errors.New("not found")
	// Wrong magic for the companion microcontroller image
	ErrUnsupportedFile = errors.New("unsupported file")
	// A declared range lies outside the buffer
	ErrTruncated = errors.New("truncated")
	// Ciphertext isn't a whole number of cipher blocks
	ErrUnaligned = errors.New("not block aligned")
	// A u-boot CRC didn't match (strict verification only)
	ErrChecksum = errors.New("checksum mismatch")
)
