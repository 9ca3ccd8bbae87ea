// SPDX-License-Identifier: MIT
// Copyright (c) 2020 Brian Starkey <stark3y@gmail.com>
package main

import (
	"fmt"
	"io/ioutil"
	"os"
	"path/filepath"
	"strings"

	"github.com/cheggaaa/pb/v3"
	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"
	"github.com/usedbytes/xav-tools/lib/config"
	"github.com/usedbytes/xav-tools/lib/firmware"
	"github.com/usedbytes/xav-tools/lib/pack"
	"github.com/usedbytes/log"
)

func loadConfig(ctx *cli.Context) (*config.Config, error) {
	cfg := config.Default()

	if ctx.IsSet("config") {
		var err error
		cfg, err = config.LoadConfig(ctx.String("config"))
		if err != nil {
			return nil, err
		}
	}

	if ctx.IsSet("strict") && ctx.IsSet("lenient") {
		return nil, errors.New("--strict and --lenient are mutually exclusive")
	}
	if ctx.IsSet("strict") {
		cfg.Strict = ctx.Bool("strict")
	}
	if ctx.IsSet("lenient") {
		cfg.Strict = !ctx.Bool("lenient")
	}
	if ctx.IsSet("verify-crc") {
		cfg.VerifyCRC = ctx.Bool("verify-crc")
	}
	if ctx.IsSet("workers") {
		cfg.Workers = ctx.Int("workers")
	}

	log.Verbosef("Config:\n%s", cfg)

	return cfg, nil
}

func twoArgs(ctx *cli.Context) (string, string, error) {
	if ctx.Args().Len() != 2 {
		return "", "", fmt.Errorf("%s needs %s", ctx.Command.Name, ctx.Command.ArgsUsage)
	}
	return ctx.Args().Get(0), ctx.Args().Get(1), nil
}

func readInput(fname string) ([]byte, error) {
	data, err := ioutil.ReadFile(fname)
	if err != nil {
		return nil, errors.Wrap(err, "Reading input file")
	}
	return data, nil
}

func writeOutput(fname string, data []byte) error {
	err := ioutil.WriteFile(fname, data, 0644)
	if err != nil {
		return errors.Wrap(err, "Writing output file")
	}
	log.Verbosef("Wrote %s (%d bytes)\n", fname, len(data))
	return nil
}

func extractAction(ctx *cli.Context) error {
	in, outDir, err := twoArgs(ctx)
	if err != nil {
		return err
	}

	data, err := readInput(in)
	if err != nil {
		return err
	}

	p, err := pack.Parse(data)
	if err != nil {
		return err
	}
	log.Println(p)

	err = os.MkdirAll(outDir, 0755)
	if err != nil {
		return err
	}

	for _, fe := range p.Files {
		fdata, err := p.Data(fe)
		if err != nil {
			return err
		}

		err = writeOutput(filepath.Join(outDir, firmware.SafeName(fe.Name)), fdata)
		if err != nil {
			return err
		}
	}

	m := p.Metadata()
	meta, err := m.Bytes()
	if err != nil {
		return err
	}

	err = writeOutput(filepath.Join(outDir, "metadata"), meta)
	if err != nil {
		return err
	}

	log.Printf("Extracted %s to %s\n", strings.Join(m.Names(), ", "), outDir)

	return nil
}

func extractISPAction(ctx *cli.Context) error {
	in, out, err := twoArgs(ctx)
	if err != nil {
		return err
	}

	cfg, err := loadConfig(ctx)
	if err != nil {
		return err
	}

	data, err := readInput(in)
	if err != nil {
		return err
	}

	payload, err := firmware.StripISP(data, cfg.Strict)
	if err != nil {
		return err
	}

	return writeOutput(out, payload)
}

func extractScriptAction(ctx *cli.Context) error {
	in, out, err := twoArgs(ctx)
	if err != nil {
		return err
	}

	cfg, err := loadConfig(ctx)
	if err != nil {
		return err
	}

	data, err := readInput(in)
	if err != nil {
		return err
	}

	s, err := firmware.ExtractScript(data, cfg.VerifyCRC)
	if err != nil {
		return err
	}

	return writeOutput(out, s)
}

func unpackAction(ctx *cli.Context) error {
	in, outDir, err := twoArgs(ctx)
	if err != nil {
		return err
	}

	cfg, err := loadConfig(ctx)
	if err != nil {
		return err
	}

	data, err := readInput(in)
	if err != nil {
		return err
	}

	if ctx.Bool("check-sha256") {
		err = firmware.CheckSHA256(data)
		if err != nil {
			return err
		}
	}

	packData, err := firmware.PackFromInput(data)
	if err != nil {
		return err
	}

	opts := firmware.Options{
		VerifyCRC: cfg.VerifyCRC,
		Workers:   cfg.Workers,
	}

	var bar *pb.ProgressBar
	if !ctx.Bool("quiet") {
		bar = pb.Full.Start64(firmware.CatalogueSize())
		opts.Progress = func(n int) {
			bar.Add(n)
		}
	}

	u, err := firmware.Unpack(packData, opts)
	if bar != nil {
		bar.Finish()
	}
	if err != nil {
		return err
	}

	err = os.MkdirAll(outDir, 0755)
	if err != nil {
		return err
	}

	err = writeOutput(filepath.Join(outDir, "init"), u.InitScript)
	if err != nil {
		return err
	}

	err = writeOutput(filepath.Join(outDir, "update"), u.UpdateScript)
	if err != nil {
		return err
	}

	for _, r := range u.Regions {
		err = writeOutput(filepath.Join(outDir, r.Name), r.Data)
		if err != nil {
			return err
		}
	}

	log.Printf("Unpacked %d regions to %s\n", len(u.Regions), outDir)

	return nil
}

func packageAction(ctx *cli.Context) error {
	in, out, err := twoArgs(ctx)
	if err != nil {
		return err
	}

	cfg, err := loadConfig(ctx)
	if err != nil {
		return err
	}

	if ctx.IsSet("metadata") {
		raw, err := readInput(ctx.String("metadata"))
		if err != nil {
			return err
		}

		m, err := pack.ParseMetadata(raw)
		if err != nil {
			return errors.Wrap(err, "Parsing metadata")
		}

		if m.FirmwareVersion != "" {
			cfg.Package.FirmwareVersion = m.FirmwareVersion
		}
		if m.SDKVersion != "" {
			cfg.Package.SDKVersion = m.SDKVersion
		}
	}

	s, err := readInput(in)
	if err != nil {
		return err
	}

	data, err := firmware.Package(s, cfg.Package, cfg.Strict)
	if err != nil {
		return err
	}

	return writeOutput(out, data)
}

func setST16VerAction(ctx *cli.Context) error {
	in, out, err := twoArgs(ctx)
	if err != nil {
		return err
	}

	cfg, err := loadConfig(ctx)
	if err != nil {
		return err
	}

	data, err := readInput(in)
	if err != nil {
		return err
	}

	data, err = cfg.ST16.SetVersion(data, ctx.String("ver"))
	if err != nil {
		return err
	}

	return writeOutput(out, data)
}

func configAction(ctx *cli.Context) error {
	if ctx.Args().Len() != 1 {
		return fmt.Errorf("OUTPUT_FILE is required")
	}

	cfg, err := loadConfig(ctx)
	if err != nil {
		return err
	}

	return cfg.WriteTOML(ctx.Args().First())
}

func newApp() *cli.App {
	app := &cli.App{
		Name:  "xav",
		Usage: "A tool for working with Sony XAV-AX100 firmware updates",
		// Just ignore errors - we'll handle them ourselves in main()
		ExitErrHandler: func(c *cli.Context, e error) {},
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:    "verbose",
				Aliases: []string{"v"},
				Usage:   "Enable more output",
			},
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "TOML config file to use instead of the built-in defaults",
			},
			&cli.BoolFlag{
				Name:  "strict",
				Usage: "Treat oversized packages and bad ISP magic as errors",
			},
			&cli.BoolFlag{
				Name:  "lenient",
				Usage: "Only warn about oversized packages and bad ISP magic",
			},
			&cli.BoolFlag{
				Name:  "verify-crc",
				Usage: "Check u-boot image CRCs when extracting scripts",
			},
			&cli.IntFlag{
				Name:  "workers",
				Usage: "Number of region chunks to decrypt in parallel",
				Value: 1,
			},
		},
	}

	app.Commands = []*cli.Command{
		{
			Name:      "extract",
			Usage:     "Extract the files in a CUST_PACK.BIN",
			ArgsUsage: "INPUT_FILE OUTPUT_DIR",
			Action:    extractAction,
		},
		{
			Name:      "extract_isp",
			Usage:     "Strip the ISP header from a CUST_UPDT.BIN, without decrypting",
			ArgsUsage: "INPUT_FILE OUTPUT_FILE",
			Action:    extractISPAction,
		},
		{
			Name:      "extract_script",
			Usage:     "Extract the init script from a CUST_PACK.BIN",
			ArgsUsage: "INPUT_FILE OUTPUT_FILE",
			Action:    extractScriptAction,
		},
		{
			Name:      "unpack",
			Usage:     "Extract and decrypt the scripts and firmware regions from an update zip or CUST_PACK.BIN",
			ArgsUsage: "INPUT_FILE OUTPUT_DIR",
			Action:    unpackAction,
			Flags: []cli.Flag{
				&cli.BoolFlag{
					Name:  "check-sha256",
					Usage: "Refuse anything other than XAV-AX100_v10207.zip",
				},
				&cli.BoolFlag{
					Name:    "quiet",
					Aliases: []string{"q"},
					Usage:   "Don't show a progress bar",
				},
			},
		},
		{
			Name:      "package",
			Usage:     "Create an update package from a u-boot script",
			ArgsUsage: "INPUT_SCRIPT OUTPUT_FILE",
			Action:    packageAction,
			Flags: []cli.Flag{
				&cli.StringFlag{
					Name:  "metadata",
					Usage: "Take the package versions from a metadata file written by extract",
				},
			},
		},
		{
			Name:      "set_st16_ver",
			Usage:     "Set the version string of an ST16 firmware image",
			ArgsUsage: "INPUT_FILE OUTPUT_FILE",
			Action:    setST16VerAction,
			Flags: []cli.Flag{
				&cli.StringFlag{
					Name:     "ver",
					Usage:    "Version string, truncated to 16 bytes",
					Required: true,
				},
			},
		},
		{
			Name:      "info",
			Usage:     "Describe a CUST_PACK.BIN",
			ArgsUsage: "INPUT_FILE",
			Action:    infoAction,
			Flags: []cli.Flag{
				&cli.BoolFlag{
					Name:  "json",
					Usage: "Print JSON instead of text",
				},
			},
		},
		{
			Name:      "config",
			Usage:     "Write the effective configuration as TOML",
			ArgsUsage: "OUTPUT_FILE",
			Action:    configAction,
		},
	}

	app.Before = func(ctx *cli.Context) error {
		log.SetUseLog(false)

		log.SetVerbose(ctx.Bool("verbose"))
		log.Verboseln("Extra output enabled.")
		return nil
	}

	return app
}

func main() {
	app := newApp()

	err := app.Run(os.Args)
	if err != nil {
		log.Println("ERROR:", err)
		if v, ok := err.(cli.ExitCoder); ok {
			os.Exit(v.ExitCode())
		} else {
			os.Exit(1)
		}
	}
}
