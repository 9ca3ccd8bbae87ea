// SPDX-License-Identifier: MIT
// Copyright (c) 2020 Brian Starkey <stark3y@gmail.com>
package isp

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"encoding/hex"
	"strings"

	"github.com/pkg/errors"
	"github.com/usedbytes/xav-tools/lib/fwerr"
	"github.com/usedbytes/xav-tools/lib/keys"
	"github.com/usedbytes/xav-tools/lib/uboot"
	"github.com/usedbytes/log"
)

const (
	Magic    = "Gemini_ISP_image"
	MagicLen = 32

	// Any byte >= 0x80 in this window means the payload is encrypted
	scanOffset = 0x70
	scanLen    = 0x20
)

type Image struct {
	magic   [MagicLen]byte
	rawData []byte
}

func checkMagic(data []byte) error {
	if len(data) < MagicLen {
		return errors.Wrapf(fwerr.ErrBadMagic, "not an isp file (%d bytes)", len(data))
	}

	str := strings.TrimRight(string(data[:MagicLen]), "\x00")
	if str != Magic {
		return errors.Wrapf(fwerr.ErrBadMagic, "not an isp file ('%s')", str)
	}

	return nil
}

func Parse(data []byte) (*Image, error) {
	err := checkMagic(data)
	if err != nil {
		return nil, err
	}

	img := &Image{
		rawData: data,
	}
	copy(img.magic[:], data)

	return img, nil
}

// IsEncrypted applies the vendor heuristic to a whole ISP file. It can be
// fooled by a plaintext with high bytes in the window, or a ciphertext
// without them.
func IsEncrypted(data []byte) bool {
	if len(data) <= scanOffset {
		return false
	}

	window := data[scanOffset:]
	if len(window) > scanLen {
		window = window[:scanLen]
	}

	for _, b := range window {
		if b >= 0x80 {
			return true
		}
	}

	return false
}

func (img *Image) Encrypted() bool {
	return IsEncrypted(img.rawData)
}

// Key is derived from the full 32 byte magic field, padding included
func (img *Image) Key() keys.Key {
	return keys.HashKey(img.magic[:])
}

// Payload is everything after the magic, as stored
func (img *Image) Payload() []byte {
	return img.rawData[MagicLen:]
}

// Decrypt returns the u-boot image held in the payload, trimmed to its
// declared size, along with its parsed header.
func (img *Image) Decrypt() ([]byte, *uboot.Header, error) {
	out := img.Payload()

	if img.Encrypted() {
		if len(out)%aes.BlockSize != 0 {
			return nil, nil, errors.Wrapf(fwerr.ErrUnaligned, "isp payload is %d bytes", len(out))
		}

		key := img.Key()
		log.Verboseln("ISP payload is encrypted, key", key)

		block, _ := aes.NewCipher(key[:])
		iv := make([]byte, aes.BlockSize)

		plain := make([]byte, len(out))
		cipher.NewCBCDecrypter(block, iv).CryptBlocks(plain, out)
		out = plain
	}

	hdr, err := uboot.Parse(out)
	if err != nil {
		return nil, nil, errors.Wrap(err, "Parsing isp payload")
	}

	end := uint64(uboot.HeaderSize) + uint64(hdr.DataSize)
	if end > uint64(len(out)) {
		return nil, nil, errors.Wrapf(fwerr.ErrTruncated, "u-boot image needs %d bytes, have %d", end, len(out))
	}
	out = out[:end]

	log.Verbosef("u-boot header:\n%s\n", hex.Dump(out[:uboot.HeaderSize]))

	return out, hdr, nil
}

func magicBytes() []byte {
	m := make([]byte, MagicLen)
	copy(m, Magic)
	return m
}

// Build wraps payload in a plaintext ISP file. Encryption is never applied.
func Build(payload []byte, name string) []byte {
	buf := &bytes.Buffer{}
	buf.Write(magicBytes())
	buf.Write(uboot.Build(payload, name))
	return buf.Bytes()
}
