// SPDX-License-Identifier: MIT
// Copyright (c) 2020 Brian Starkey <stark3y@gmail.com>
package firmware

import (
	"archive/zip"
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"io/ioutil"
	"strings"

	"github.com/pkg/errors"
	"github.com/usedbytes/xav-tools/lib/fwerr"
	"github.com/usedbytes/xav-tools/lib/isp"
	"github.com/usedbytes/log"
)

const (
	// Where the vendor zip keeps CUST_PACK.BIN
	ArchiveEntry = "update/CUST_PACK.BIN"
	// XAV-AX100_v10207.zip, the only release the region table is known for
	KnownSHA256 = "d7e5c6b6b903347aa206c949283064d8700f16385a4f351a3bc0a2dc9d899d05"
)

var zipMagic = []byte("PK\x03\x04")

func CheckSHA256(data []byte) error {
	sum := sha256.Sum256(data)
	have := hex.EncodeToString(sum[:])
	if have != KnownSHA256 {
		return errors.Errorf("wrong firmware image (sha256 %s). Must be XAV-AX100_v10207.zip", have)
	}
	return nil
}

// PackFromInput returns CUST_PACK.BIN, either data itself or read out of
// the vendor zip.
func PackFromInput(data []byte) ([]byte, error) {
	if !bytes.HasPrefix(data, zipMagic) {
		return data, nil
	}

	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, errors.Wrap(err, "Opening zip")
	}

	for _, f := range zr.File {
		if f.Name != ArchiveEntry {
			continue
		}

		log.Verboseln("Reading", f.Name, "from zip")
		rc, err := f.Open()
		if err != nil {
			return nil, errors.Wrapf(err, "Opening %s", f.Name)
		}
		defer rc.Close()

		return ioutil.ReadAll(rc)
	}

	return nil, errors.Wrapf(fwerr.ErrNotFound, "'%s' in zip", ArchiveEntry)
}

// StripISP drops the ISP magic without decrypting anything. With strict
// false a bad magic is only warned about.
func StripISP(data []byte, strict bool) ([]byte, error) {
	_, err := isp.Parse(data)
	if err != nil {
		if strict {
			return nil, err
		}
		log.Println("WARNING:", err)
	}

	if len(data) < isp.MagicLen {
		return nil, errors.Wrapf(fwerr.ErrTruncated, "isp file is %d bytes", len(data))
	}

	return data[isp.MagicLen:], nil
}

// SafeName makes a file table entry name usable as a single path element
func SafeName(in string) string {
	out := strings.Map(func(r rune) rune {
		if r == ' ' {
			return '_'
		}

		if r < 0x20 || strings.ContainsRune("%<>/'\"\\`:{}()$+*?|@!", r) {
			return -1
		}

		return r
	}, in)

	if out == "" || out == "." || out == ".." {
		out = "_" + out
	}

	return out
}
