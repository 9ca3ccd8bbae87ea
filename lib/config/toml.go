// SPDX-License-Identifier: MIT
// Copyright (c) 2020 Brian Starkey <stark3y@gmail.com>
package config

import (
	"os"

	"github.com/BurntSushi/toml"
	"github.com/pkg/errors"
)

// LoadConfig reads filename over the top of Default(), so the file only
// needs to name the values it changes.
func LoadConfig(filename string) (*Config, error) {
	cfg := Default()

	md, err := toml.DecodeFile(filename, cfg)
	if err != nil {
		return nil, errors.Wrapf(err, "Loading config '%s'", filename)
	}

	undecoded := md.Undecoded()
	if len(undecoded) != 0 {
		return nil, errors.Errorf("unrecognised config key '%s'", undecoded[0])
	}

	return cfg, nil
}

func (c *Config) WriteTOML(filename string) error {
	f, err := os.Create(filename)
	if err != nil {
		return err
	}

	enc := toml.NewEncoder(f)
	err = enc.Encode(c)
	if err != nil {
		f.Close()
		return err
	}

	err = f.Close()
	return err
}
