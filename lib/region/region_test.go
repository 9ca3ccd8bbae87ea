// SPDX-License-Identifier: MIT
// Copyright (c) 2020 Brian Starkey <stark3y@gmail.com>
package region

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"errors"
	"math/rand"
	"testing"

	"github.com/usedbytes/xav-tools/lib/fwerr"
	"github.com/usedbytes/xav-tools/lib/keys"
)

var testKey = keys.Key{0x01, 0x00, 0x00, 0x00, 0x02, 0x00, 0x00, 0x00, 0x03, 0x00, 0x00, 0x00, 0x04, 0x00, 0x00, 0x00}

func randomBytes(n int) []byte {
	buf := make([]byte, n)
	rand.New(rand.NewSource(int64(n))).Read(buf)
	return buf
}

func TestDecryptLength(t *testing.T) {
	buf := randomBytes(3*ChunkSize + 0x100)

	lengths := []uint32{0, 16, 0x400, ChunkSize, ChunkSize + 48, 2 * ChunkSize, 3*ChunkSize + 0x80}
	for _, l := range lengths {
		out, err := DecryptRegion(buf, testKey, 0x80, l)
		if err != nil {
			t.Fatalf("length 0x%x: %v", l, err)
		}
		if len(out) != int(l) {
			t.Errorf("length 0x%x: got 0x%x bytes", l, len(out))
		}
	}
}

func TestDecryptDeterministic(t *testing.T) {
	buf := randomBytes(2*ChunkSize + 0x400)

	a, err := DecryptRegion(buf, testKey, 0x400, 2*ChunkSize)
	if err != nil {
		t.Fatal(err)
	}
	b, err := DecryptRegion(buf, testKey, 0x400, 2*ChunkSize)
	if err != nil {
		t.Fatal(err)
	}

	if !bytes.Equal(a, b) {
		t.Error("repeated decryption differs")
	}
}

func TestDecryptChunkReset(t *testing.T) {
	buf := randomBytes(2*ChunkSize + 32)
	length := uint32(len(buf))

	out, err := DecryptRegion(buf, testKey, 0, length)
	if err != nil {
		t.Fatal(err)
	}

	block, _ := aes.NewCipher(testKey[:])
	iv := make([]byte, aes.BlockSize)

	expected := make([]byte, len(buf))
	for start := 0; start < len(buf); start += ChunkSize {
		end := start + ChunkSize
		if end > len(buf) {
			end = len(buf)
		}
		cipher.NewCBCDecrypter(block, iv).CryptBlocks(expected[start:end], buf[start:end])
	}

	if !bytes.Equal(out, expected) {
		t.Error("output doesn't match per-chunk CBC")
	}

	continuous := make([]byte, len(buf))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(continuous, buf)

	if !bytes.Equal(out[:ChunkSize], continuous[:ChunkSize]) {
		t.Error("first chunk should match a continuous stream")
	}
	if bytes.Equal(out[ChunkSize:ChunkSize+aes.BlockSize], continuous[ChunkSize:ChunkSize+aes.BlockSize]) {
		t.Error("second chunk should not match a continuous stream")
	}
}

func TestWorkersPreserveOrder(t *testing.T) {
	buf := randomBytes(5*ChunkSize + 0x200)
	length := uint32(len(buf))

	serial, err := NewCodec(testKey).Decrypt(buf, 0, length)
	if err != nil {
		t.Fatal(err)
	}

	var total int
	c := NewCodec(testKey)
	c.Workers = 4
	c.Progress = func(n int) { total += n }

	parallel, err := c.Decrypt(buf, 0, length)
	if err != nil {
		t.Fatal(err)
	}

	if !bytes.Equal(serial, parallel) {
		t.Error("parallel output differs from serial")
	}
	if total != len(buf) {
		t.Errorf("progress reported %d bytes, expected %d", total, len(buf))
	}
}

func TestEncryptRoundTrip(t *testing.T) {
	plain := randomBytes(ChunkSize + 0x400)
	length := uint32(len(plain))

	enc, err := EncryptRegion(plain, testKey, 0, length)
	if err != nil {
		t.Fatal(err)
	}
	if bytes.Equal(enc, plain) {
		t.Fatal("encryption did nothing")
	}

	dec, err := DecryptRegion(enc, testKey, 0, length)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(dec, plain) {
		t.Error("round trip mismatch")
	}
}

func TestDecryptDoesNotModifyInput(t *testing.T) {
	buf := randomBytes(0x1000)
	orig := append([]byte(nil), buf...)

	_, err := DecryptRegion(buf, testKey, 0, 0x1000)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(buf, orig) {
		t.Error("input was modified")
	}
}

func TestDecryptErrors(t *testing.T) {
	buf := make([]byte, 0x1000)

	_, err := DecryptRegion(buf, testKey, 0xff0, 0x20)
	if !errors.Is(err, fwerr.ErrTruncated) {
		t.Errorf("expected ErrTruncated, got %v", err)
	}

	_, err = DecryptRegion(buf, testKey, 0xffffffff, 0x10)
	if !errors.Is(err, fwerr.ErrTruncated) {
		t.Errorf("expected ErrTruncated for overflowing offset, got %v", err)
	}

	_, err = DecryptRegion(buf, testKey, 0, 0x11)
	if !errors.Is(err, fwerr.ErrUnaligned) {
		t.Errorf("expected ErrUnaligned, got %v", err)
	}
}

func TestCatalogue(t *testing.T) {
	if len(Catalogue) != 15 {
		t.Fatalf("expected 15 regions, got %d", len(Catalogue))
	}

	var end uint32
	for _, r := range Catalogue {
		if r.Offset < end {
			t.Errorf("%s overlaps the previous region", r.Name)
		}
		if r.Length%aes.BlockSize != 0 {
			t.Errorf("%s length isn't block aligned", r.Name)
		}
		end = r.Offset + r.Length
	}

	if end > UpdateScript.Offset {
		t.Errorf("regions overlap the update script")
	}

	r, ok := Lookup("kernel")
	if !ok || r.Offset != 0x497800 || r.Length != 0x2dd800 {
		t.Errorf("bad kernel lookup: %v %v", r, ok)
	}

	_, ok = Lookup("nope")
	if ok {
		t.Error("lookup of unknown region succeeded")
	}
}
