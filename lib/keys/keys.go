// SPDX-License-Identifier: MIT
// Copyright (c) 2020 Brian Starkey <stark3y@gmail.com>

// Package keys derives the AES-128 keys used by the Gemini ISP format.
package keys

import (
	"crypto/md5"
	"encoding/binary"
	"fmt"
	"regexp"
	"strconv"

	"github.com/pkg/errors"
	"github.com/usedbytes/xav-tools/lib/fwerr"
)

const Size = 16

type Key [Size]byte

func (k Key) String() string {
	return fmt.Sprintf("%x", k[:])
}

// HashKey is the MD5 digest of the given bytes. The ISP payload key and the
// update script key are both HashKey of the 32 byte ISP magic field.
func HashKey(data []byte) Key {
	return Key(md5.Sum(data))
}

// A ScriptKeyExtractor recovers the region key from a decrypted update
// script.
type ScriptKeyExtractor interface {
	ExtractKey(script []byte) (Key, error)
}

// DirectiveExtractor matches the u-boot "mw.l ${isp_key_addrN} 0x..."
// writes in the update script. The exact wording is what the device scripts
// use, including lowercase-only hex digits.
type DirectiveExtractor struct{}

var directiveREs [4]*regexp.Regexp = [4]*regexp.Regexp{
	regexp.MustCompile("mw\\.l \\$\\{isp_key_addr0\\} (0x[a-f0-9]*)"),
	regexp.MustCompile("mw\\.l \\$\\{isp_key_addr1\\} (0x[a-f0-9]*)"),
	regexp.MustCompile("mw\\.l \\$\\{isp_key_addr2\\} (0x[a-f0-9]*)"),
	regexp.MustCompile("mw\\.l \\$\\{isp_key_addr3\\} (0x[a-f0-9]*)"),
}

func (DirectiveExtractor) ExtractKey(script []byte) (Key, error) {
	var key Key

	for i, re := range directiveREs {
		matches := re.FindSubmatch(script)
		if len(matches) != 2 {
			return Key{}, errors.Wrapf(fwerr.ErrKeyDerivation, "isp_key_addr%d not set", i)
		}

		val, err := strconv.ParseUint(string(matches[1][2:]), 16, 32)
		if err != nil {
			return Key{}, errors.Wrapf(fwerr.ErrKeyDerivation, "isp_key_addr%d: can't parse '%s'", i, matches[1])
		}

		binary.LittleEndian.PutUint32(key[i*4:], uint32(val))
	}

	return key, nil
}

var Default ScriptKeyExtractor = DirectiveExtractor{}

// SecondaryKey extracts the region key from script with the Default
// extractor.
func SecondaryKey(script []byte) (Key, error) {
	return Default.ExtractKey(script)
}
