// SPDX-License-Identifier: MIT
// Copyright (c) 2020 Brian Starkey <stark3y@gmail.com>

// Package firmware chains the container formats of an XAV-AX100 update:
// CUST_PACK.BIN -> CUST_UPDT.BIN (ISP) -> u-boot image -> script, plus the
// regions keyed by the update script.
package firmware

import (
	"github.com/pkg/errors"
	"github.com/usedbytes/xav-tools/lib/config"
	"github.com/usedbytes/xav-tools/lib/isp"
	"github.com/usedbytes/xav-tools/lib/keys"
	"github.com/usedbytes/xav-tools/lib/pack"
	"github.com/usedbytes/xav-tools/lib/region"
	"github.com/usedbytes/xav-tools/lib/script"
	"github.com/usedbytes/xav-tools/lib/uboot"
	"github.com/usedbytes/log"
)

type Options struct {
	// Check u-boot CRCs of the script images
	VerifyCRC bool
	// Region decryption workers
	Workers int
	// Called as region bytes are decrypted
	Progress func(n int)
	// nil means keys.Default
	KeyExtractor keys.ScriptKeyExtractor
}

// ISPFromPack returns CUST_UPDT.BIN from a CUST_PACK.BIN
func ISPFromPack(packData []byte) ([]byte, error) {
	p, err := pack.Parse(packData)
	if err != nil {
		return nil, errors.Wrap(err, "Parsing pack")
	}

	data, err := p.Extract(pack.UpdateName)
	if err != nil {
		return nil, errors.Wrap(err, "Extracting isp")
	}

	return data, nil
}

func scriptFromImage(image []byte, verify bool) ([]byte, error) {
	if verify {
		hdr, err := uboot.Parse(image)
		if err != nil {
			return nil, err
		}

		err = hdr.Verify(image)
		if err != nil {
			return nil, err
		}
	}

	return script.Extract(image)
}

// InitScript recovers the first stage script from an ISP file
func InitScript(ispData []byte, verify bool) ([]byte, error) {
	img, err := isp.Parse(ispData)
	if err != nil {
		return nil, err
	}

	image, _, err := img.Decrypt()
	if err != nil {
		return nil, errors.Wrap(err, "Decrypting isp")
	}

	s, err := scriptFromImage(image, verify)
	if err != nil {
		return nil, errors.Wrap(err, "Extracting init script")
	}

	return s, nil
}

// ExtractScript runs the whole chain from CUST_PACK.BIN to the init script
func ExtractScript(packData []byte, verify bool) ([]byte, error) {
	ispData, err := ISPFromPack(packData)
	if err != nil {
		return nil, err
	}

	return InitScript(ispData, verify)
}

// UpdateScript recovers the second stage script, which is encrypted with the
// ISP key at a fixed offset.
func UpdateScript(ispData []byte, verify bool) ([]byte, error) {
	img, err := isp.Parse(ispData)
	if err != nil {
		return nil, err
	}

	image, err := region.NewCodec(img.Key()).DecryptRegion(ispData, region.UpdateScript)
	if err != nil {
		return nil, err
	}

	s, err := scriptFromImage(image, verify)
	if err != nil {
		return nil, errors.Wrap(err, "Extracting update script")
	}

	return s, nil
}

type RegionData struct {
	region.Region
	Data []byte
}

type Unpacked struct {
	Pack         *pack.Pack
	InitScript   []byte
	UpdateScript []byte
	RegionKey    keys.Key
	Regions      []RegionData
}

// CatalogueSize is the number of region bytes Unpack decrypts
func CatalogueSize() int64 {
	var total int64
	for _, r := range region.Catalogue {
		total += int64(r.Length)
	}
	return total
}

// Unpack extracts both scripts and every catalogued region
func Unpack(packData []byte, opts Options) (*Unpacked, error) {
	p, err := pack.Parse(packData)
	if err != nil {
		return nil, errors.Wrap(err, "Parsing pack")
	}

	ispData, err := p.Extract(pack.UpdateName)
	if err != nil {
		return nil, errors.Wrap(err, "Extracting isp")
	}

	u := &Unpacked{
		Pack: p,
	}

	u.InitScript, err = InitScript(ispData, opts.VerifyCRC)
	if err != nil {
		return nil, err
	}
	log.Verbosef("Init script: %d bytes\n", len(u.InitScript))

	u.UpdateScript, err = UpdateScript(ispData, opts.VerifyCRC)
	if err != nil {
		return nil, err
	}
	log.Verbosef("Update script: %d bytes\n", len(u.UpdateScript))

	extractor := opts.KeyExtractor
	if extractor == nil {
		extractor = keys.Default
	}

	u.RegionKey, err = extractor.ExtractKey(u.UpdateScript)
	if err != nil {
		return nil, errors.Wrap(err, "Deriving region key")
	}
	log.Verboseln("Region key:", u.RegionKey)

	codec := region.NewCodec(u.RegionKey)
	codec.Workers = opts.Workers
	codec.Progress = opts.Progress

	for _, r := range region.Catalogue {
		log.Verboseln("Decrypting", r)
		data, err := codec.DecryptRegion(ispData, r)
		if err != nil {
			return nil, err
		}
		u.Regions = append(u.Regions, RegionData{Region: r, Data: data})
	}

	return u, nil
}

// Package builds a CUST_PACK.BIN which runs s as its init script
func Package(s []byte, cfg config.Package, strict bool) ([]byte, error) {
	ispData := isp.Build(script.Wrap(s), cfg.ImageName)

	out, err := pack.Build(ispData, pack.BuildOptions{
		FirmwareVersion: cfg.FirmwareVersion,
		SDKVersion:      cfg.SDKVersion,
		MaxSize:         cfg.MaxSize,
		Strict:          strict,
	})
	if err != nil {
		return nil, errors.Wrap(err, "script too large")
	}

	return out, nil
}
