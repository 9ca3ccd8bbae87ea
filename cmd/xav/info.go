// SPDX-License-Identifier: MIT
// Copyright (c) 2020 Brian Starkey <stark3y@gmail.com>
package main

import (
	"fmt"
	"os"

	"github.com/goccy/go-json"
	"github.com/urfave/cli/v2"
	"github.com/usedbytes/xav-tools/lib/isp"
	"github.com/usedbytes/xav-tools/lib/pack"
	"github.com/usedbytes/xav-tools/lib/uboot"
	"github.com/usedbytes/log"
)

type ubootInfo struct {
	Name       string `json:"name"`
	Timestamp  uint32 `json:"timestamp"`
	DataSize   uint32 `json:"data_size"`
	LoadAddr   uint32 `json:"load_addr"`
	EntryPoint uint32 `json:"entry_point"`
	HeaderCRC  uint32 `json:"header_crc"`
	DataCRC    uint32 `json:"data_crc"`
	OS         uint8  `json:"os"`
	Arch       uint8  `json:"arch"`
	Type       uint8  `json:"type"`
	Comp       uint8  `json:"comp"`
	CRCError   string `json:"crc_error,omitempty"`
}

type ispInfo struct {
	Size      int        `json:"size"`
	Encrypted bool       `json:"encrypted"`
	Key       string     `json:"key"`
	UBoot     *ubootInfo `json:"uboot,omitempty"`
	Error     string     `json:"error,omitempty"`
}

type report struct {
	Pack *pack.Pack `json:"pack"`
	ISP  *ispInfo   `json:"isp,omitempty"`
}

func newUBootInfo(h *uboot.Header, image []byte) *ubootInfo {
	ui := &ubootInfo{
		Name:       h.ImageName(),
		Timestamp:  h.Timestamp,
		DataSize:   h.DataSize,
		LoadAddr:   h.LoadAddr,
		EntryPoint: h.EntryPoint,
		HeaderCRC:  h.HeaderCRC,
		DataCRC:    h.DataCRC,
		OS:         h.OS,
		Arch:       h.Arch,
		Type:       h.Type,
		Comp:       h.Comp,
	}

	err := h.Verify(image)
	if err != nil {
		ui.CRCError = err.Error()
	}

	return ui
}

func describe(data []byte) (*report, *uboot.Header, error) {
	p, err := pack.Parse(data)
	if err != nil {
		return nil, nil, err
	}

	r := &report{
		Pack: p,
	}

	ispData, err := p.Extract(pack.UpdateName)
	if err != nil {
		// Not every pack needs an ISP image
		log.Verboseln(err)
		return r, nil, nil
	}

	i, err := isp.Parse(ispData)
	if err != nil {
		r.ISP = &ispInfo{Size: len(ispData), Error: err.Error()}
		return r, nil, nil
	}

	r.ISP = &ispInfo{
		Size:      len(ispData),
		Encrypted: i.Encrypted(),
		Key:       i.Key().String(),
	}

	image, hdr, err := i.Decrypt()
	if err != nil {
		r.ISP.Error = err.Error()
		return r, nil, nil
	}
	r.ISP.UBoot = newUBootInfo(hdr, image)

	return r, hdr, nil
}

func infoAction(ctx *cli.Context) error {
	if ctx.Args().Len() != 1 {
		return fmt.Errorf("INPUT_FILE is required")
	}

	data, err := readInput(ctx.Args().First())
	if err != nil {
		return err
	}

	r, hdr, err := describe(data)
	if err != nil {
		return err
	}

	if ctx.Bool("json") {
		out, err := json.MarshalIndent(r, "", "  ")
		if err != nil {
			return err
		}
		fmt.Fprintln(os.Stdout, string(out))
		return nil
	}

	fmt.Println(r.Pack)
	if r.ISP != nil {
		fmt.Printf("ISP image:        %d bytes, encrypted: %v\n", r.ISP.Size, r.ISP.Encrypted)
		if r.ISP.Error != "" {
			fmt.Println("ISP error:       ", r.ISP.Error)
		}
	}
	if hdr != nil {
		fmt.Println(hdr)
		if r.ISP.UBoot.CRCError != "" {
			fmt.Println("WARNING:", r.ISP.UBoot.CRCError)
		}
	}

	return nil
}
