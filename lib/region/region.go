// SPDX-License-Identifier: MIT
// Copyright (c) 2020 Brian Starkey <stark3y@gmail.com>
package region

import (
	"crypto/aes"
	"crypto/cipher"
	"fmt"
	"sync"

	"github.com/pkg/errors"
	"github.com/usedbytes/xav-tools/lib/fwerr"
	"github.com/usedbytes/xav-tools/lib/keys"
)

// ChunkSize is the unit of encryption. Every chunk is its own CBC stream
// starting from a zero IV, which is what the device expects.
const ChunkSize = 0x100000

type Region struct {
	Name   string
	Offset uint32
	Length uint32
}

func (r Region) String() string {
	return fmt.Sprintf("%-12s 0x%08x +0x%08x", r.Name, r.Offset, r.Length)
}

// Offsets are into CUST_UPDT.BIN, including its 32 byte ISP magic
var Catalogue = []Region{
	{"uboot2", 0x4000, 0xd3000},
	{"ecos", 0xd7000, 0x3c0800},
	{"kernel", 0x497800, 0x2dd800},
	{"rootfs", 0x775000, 0x3b8000},
	{"spsdk", 0xb2d000, 0x2083000},
	{"spapp", 0x2bb0000, 0x206e000},
	{"pq", 0x4c1e000, 0xf000},
	{"logo", 0x4c2d000, 0x177400},
	{"tcon", 0x4da4400, 0x3c00},
	{"iop_car", 0x4da8000, 0x2c00},
	{"runtime_cfg", 0x4daac00, 0xc00},
	{"vi", 0x4dab800, 0x400},
	{"isp_logo", 0x4dabc00, 0x465400},
	{"pat_logo", 0x5211000, 0x1dc400},
	{"version_info", 0x57ed400, 0x400},
}

// UpdateScript holds the second stage script image. It is encrypted with
// the ISP key rather than the region key.
var UpdateScript = Region{"update", 0x57ed800, 0x10400}

func Lookup(name string) (Region, bool) {
	for _, r := range Catalogue {
		if r.Name == name {
			return r, true
		}
	}
	return Region{}, false
}

// Codec applies chunked AES-128-CBC to byte ranges.
type Codec struct {
	block cipher.Block

	// Number of chunks processed concurrently. <= 1 is serial.
	Workers int
	// Called with the number of bytes completed, after each chunk
	Progress func(n int)
}

func NewCodec(key keys.Key) *Codec {
	// aes.NewCipher only fails for bad key lengths
	block, _ := aes.NewCipher(key[:])
	return &Codec{
		block: block,
	}
}

var zeroIV [aes.BlockSize]byte

func (c *Codec) checkRange(buf []byte, offset, length uint32) error {
	end := uint64(offset) + uint64(length)
	if end > uint64(len(buf)) {
		return errors.Wrapf(fwerr.ErrTruncated, "range 0x%x+0x%x outside buffer (0x%x bytes)", offset, length, len(buf))
	}

	if length%aes.BlockSize != 0 {
		return errors.Wrapf(fwerr.ErrUnaligned, "length 0x%x", length)
	}

	return nil
}

func (c *Codec) apply(src []byte, newMode func(cipher.Block, []byte) cipher.BlockMode) []byte {
	out := make([]byte, len(src))
	nchunks := (len(src) + ChunkSize - 1) / ChunkSize

	workers := c.Workers
	if workers > nchunks {
		workers = nchunks
	}

	report := c.Progress
	if report != nil && workers > 1 {
		var lock sync.Mutex
		report = func(n int) {
			lock.Lock()
			defer lock.Unlock()
			c.Progress(n)
		}
	}

	do := func(i int) {
		start := i * ChunkSize
		end := start + ChunkSize
		if end > len(src) {
			end = len(src)
		}

		newMode(c.block, zeroIV[:]).CryptBlocks(out[start:end], src[start:end])

		if report != nil {
			report(end - start)
		}
	}

	if workers <= 1 {
		for i := 0; i < nchunks; i++ {
			do(i)
		}
		return out
	}

	// Chunks are independent and write disjoint parts of out
	var wg sync.WaitGroup
	idx := make(chan int)
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range idx {
				do(i)
			}
		}()
	}

	for i := 0; i < nchunks; i++ {
		idx <- i
	}
	close(idx)
	wg.Wait()

	return out
}

// Decrypt returns the plaintext of buf[offset:offset+length]. buf is not
// modified.
func (c *Codec) Decrypt(buf []byte, offset, length uint32) ([]byte, error) {
	err := c.checkRange(buf, offset, length)
	if err != nil {
		return nil, err
	}

	return c.apply(buf[offset:offset+length], cipher.NewCBCDecrypter), nil
}

// Encrypt is the inverse of Decrypt, with identical chunking.
func (c *Codec) Encrypt(buf []byte, offset, length uint32) ([]byte, error) {
	err := c.checkRange(buf, offset, length)
	if err != nil {
		return nil, err
	}

	return c.apply(buf[offset:offset+length], cipher.NewCBCEncrypter), nil
}

func (c *Codec) DecryptRegion(buf []byte, r Region) ([]byte, error) {
	data, err := c.Decrypt(buf, r.Offset, r.Length)
	if err != nil {
		return nil, errors.Wrapf(err, "region %s", r.Name)
	}
	return data, nil
}

func DecryptRegion(buf []byte, key keys.Key, offset, length uint32) ([]byte, error) {
	return NewCodec(key).Decrypt(buf, offset, length)
}

func EncryptRegion(buf []byte, key keys.Key, offset, length uint32) ([]byte, error) {
	return NewCodec(key).Encrypt(buf, offset, length)
}
