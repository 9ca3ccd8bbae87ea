// SPDX-License-Identifier: MIT
// Copyright (c) 2020 Brian Starkey <stark3y@gmail.com>
package config

import (
	"fmt"
	"strconv"

	"github.com/usedbytes/xav-tools/lib/st16"
)

func stringIfNotEmpty(prefix, val string) string {
	if len(val) > 0 {
		return fmt.Sprintf("%s %s\n", prefix, val)
	}
	return ""
}

type Package struct {
	FirmwareVersion string `toml:"firmware_version"`
	SDKVersion      string `toml:"sdk_version"`
	ImageName       string `toml:"image_name"`
	// Largest allowed CUST_PACK.BIN. 0 disables the check.
	MaxSize int `toml:"max_size"`
}

func (p *Package) String() string {
	var s string
	s += "Package:\n"
	s += stringIfNotEmpty("   FirmwareVersion:", p.FirmwareVersion)
	s += stringIfNotEmpty("   SDKVersion:", p.SDKVersion)
	s += stringIfNotEmpty("   ImageName:", p.ImageName)
	s += fmt.Sprintf("   MaxSize: %d\n", p.MaxSize)
	return s
}

type Config struct {
	// Oversized packages and bad ISP magic on extract_isp are errors
	// rather than warnings
	Strict bool `toml:"strict"`
	// Check u-boot header and data CRCs when extracting
	VerifyCRC bool `toml:"verify_crc"`
	// Region decryption workers
	Workers int `toml:"workers"`

	Package Package     `toml:"package"`
	ST16    st16.Layout `toml:"st16"`
}

func (c *Config) String() string {
	var s string
	s += fmt.Sprintf("Strict: %s\n", strconv.FormatBool(c.Strict))
	s += fmt.Sprintf("VerifyCRC: %s\n", strconv.FormatBool(c.VerifyCRC))
	s += fmt.Sprintf("Workers: %d\n", c.Workers)
	s += c.Package.String()
	s += "ST16:\n"
	s += fmt.Sprintf("   Magic: %q at 0x%x\n", c.ST16.Magic, c.ST16.MagicOffset)
	for _, off := range c.ST16.VersionOffsets {
		s += fmt.Sprintf("   Version field: 0x%x\n", off)
	}
	return s
}

// Default matches the XAV-AX100 v1.02.10.00 update
func Default() *Config {
	layout := st16.DefaultLayout
	layout.VersionOffsets = append([]int(nil), st16.DefaultLayout.VersionOffsets...)

	return &Config{
		Strict:  true,
		Workers: 1,
		Package: Package{
			FirmwareVersion: "1.02.10.00",
			SDKVersion:      "20.1.0.2.0.0.2.0",
			ImageName:       "XAV-AX100",
			MaxSize:         2048,
		},
		ST16: layout,
	}
}
