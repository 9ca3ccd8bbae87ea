// SPDX-License-Identifier: MIT
// Copyright (c) 2020 Brian Starkey <stark3y@gmail.com>
package pack

import (
	"bytes"

	"gopkg.in/yaml.v3"
)

type metadataFile struct {
	Name string `yaml:"name"`
}

type Metadata struct {
	FirmwareVersion string         `yaml:"firmware_version"`
	SDKVersion      string         `yaml:"sdk_version"`
	Files           []metadataFile `yaml:"files"`
}

func (p *Pack) Metadata() *Metadata {
	m := &Metadata{
		FirmwareVersion: p.FirmwareVersion,
		SDKVersion:      p.SDKVersion,
	}

	for _, f := range p.Files {
		m.Files = append(m.Files, metadataFile{Name: f.Name})
	}

	return m
}

func (m *Metadata) Names() []string {
	names := make([]string, 0, len(m.Files))
	for _, f := range m.Files {
		names = append(names, f.Name)
	}
	return names
}

// Bytes renders the metadata file written alongside extracted files
func (m *Metadata) Bytes() ([]byte, error) {
	buf := &bytes.Buffer{}
	enc := yaml.NewEncoder(buf)
	enc.SetIndent(2)

	err := enc.Encode(m)
	if err != nil {
		return nil, err
	}

	err = enc.Close()
	if err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}

// ParseMetadata reads back a metadata file written by extract
func ParseMetadata(data []byte) (*Metadata, error) {
	m := &Metadata{}
	err := yaml.Unmarshal(data, m)
	if err != nil {
		return nil, err
	}
	return m, nil
}
