// SPDX-License-Identifier: MIT
// Copyright (c) 2020 Brian Starkey <stark3y@gmail.com>
package main

import (
	"testing"

	"github.com/goccy/go-json"
	"github.com/usedbytes/xav-tools/lib/config"
	"github.com/usedbytes/xav-tools/lib/firmware"
)

func TestDescribe(t *testing.T) {
	cfg := config.Default()
	data, err := firmware.Package([]byte("run update\n"), cfg.Package, true)
	if err != nil {
		t.Fatal(err)
	}

	r, hdr, err := describe(data)
	if err != nil {
		t.Fatal(err)
	}
	if hdr == nil || hdr.ImageName() != cfg.Package.ImageName {
		t.Fatalf("bad u-boot header: %v", hdr)
	}
	if r.ISP == nil || r.ISP.Encrypted || r.ISP.UBoot.CRCError != "" {
		t.Errorf("unexpected isp info: %+v", r.ISP)
	}

	raw, err := json.Marshal(r)
	if err != nil {
		t.Fatal(err)
	}

	var decoded struct {
		Pack struct {
			FirmwareVersion string `json:"firmware_version"`
			Files           []struct {
				Name string `json:"name"`
			} `json:"files"`
		} `json:"pack"`
		ISP struct {
			UBoot struct {
				DataSize uint32 `json:"data_size"`
			} `json:"uboot"`
		} `json:"isp"`
	}
	err = json.Unmarshal(raw, &decoded)
	if err != nil {
		t.Fatal(err)
	}

	if decoded.Pack.FirmwareVersion != cfg.Package.FirmwareVersion {
		t.Errorf("firmware version '%s'", decoded.Pack.FirmwareVersion)
	}
	if len(decoded.Pack.Files) != 1 || decoded.Pack.Files[0].Name != "CUST_UPDT.BIN" {
		t.Errorf("files %v", decoded.Pack.Files)
	}
	if decoded.ISP.UBoot.DataSize != uint32(8+len("run update\n")) {
		t.Errorf("data size %d", decoded.ISP.UBoot.DataSize)
	}
}

func TestDescribeBadISP(t *testing.T) {
	cfg := config.Default()
	data, err := firmware.Package([]byte("run update\n"), cfg.Package, true)
	if err != nil {
		t.Fatal(err)
	}
	data[1024] = 'X'

	r, hdr, err := describe(data)
	if err != nil {
		t.Fatal(err)
	}
	if hdr != nil {
		t.Error("expected no u-boot header")
	}
	if r.ISP == nil || r.ISP.Error == "" {
		t.Errorf("expected an isp error: %+v", r.ISP)
	}
}
