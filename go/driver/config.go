// Copyright (c) 2024 Fantom Foundation
//
// Use of this software is governed by the Business Source License included
// in the LICENSE file and at fantom.foundation/bsl11.
//
// Change Date: 2028-4-16
//
// On the date above, in accordance with the Business Source License, use of
// this software will be governed by the GNU Lesser General Public License v3.

package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"reflect"

	"github.com/Fantom-foundation/devchain/go/devchain"
	cliUtils "github.com/Fantom-foundation/devchain/go/driver/cli"
	"github.com/Fantom-foundation/devchain/go/fork"
	"github.com/naoina/toml"
	"github.com/urfave/cli/v2"
)

// tomlSettings make TOML keys use the same names as Go struct fields.
var tomlSettings = toml.Config{
	NormFieldName: func(rt reflect.Type, key string) string {
		return key
	},
	FieldToKey: func(rt reflect.Type, field string) string {
		return field
	},
	MissingField: func(rt reflect.Type, field string) error {
		return fmt.Errorf("field '%s' is not defined in %s", field, rt.String())
	},
}

type httpConfig struct {
	Host string
	Port int
	CORS []string
}

type config struct {
	Chain devchain.Config
	HTTP  httpConfig
}

func defaultConfig() config {
	return config{
		Chain: devchain.DefaultConfig(),
		HTTP: httpConfig{
			Host: cliUtils.HostFlag.Value,
			Port: cliUtils.PortFlag.Value,
			CORS: []string{"*"},
		},
	}
}

func loadConfig(file string, cfg *config) error {
	f, err := os.Open(file)
	if err != nil {
		return err
	}
	defer f.Close()

	err = tomlSettings.NewDecoder(bufio.NewReader(f)).Decode(cfg)
	// Add file name to errors that have a line number.
	if _, ok := err.(*toml.LineError); ok {
		err = errors.New(file + ", " + err.Error())
	}
	return err
}

// makeConfig assembles the configuration from the defaults, the optional
// configuration file and the command line flags, in this order.
func makeConfig(context *cli.Context) (config, error) {
	cfg := defaultConfig()
	if file := cliUtils.ConfigFlag.Fetch(context); file != "" {
		if err := loadConfig(file, &cfg); err != nil {
			return cfg, err
		}
	}
	if err := applyFlags(context, &cfg); err != nil {
		return cfg, err
	}
	return cfg, cfg.Chain.Validate()
}

func applyFlags(context *cli.Context, cfg *config) error {
	chainCfg := &cfg.Chain
	if context.IsSet(cliUtils.ChainIDFlag.Name) {
		chainCfg.ChainID = cliUtils.ChainIDFlag.Fetch(context)
	}
	if context.IsSet(cliUtils.GasLimitFlag.Name) {
		chainCfg.BlockGasLimit = cliUtils.GasLimitFlag.Fetch(context)
	}
	if context.IsSet(cliUtils.NoAutomineFlag.Name) {
		chainCfg.AutoMine = !cliUtils.NoAutomineFlag.Fetch(context)
	}
	if context.IsSet(cliUtils.HardforkFlag.Name) {
		revision, err := cliUtils.HardforkFlag.Fetch(context)
		if err != nil {
			return err
		}
		chainCfg.Revision = revision
	}
	if context.IsSet(cliUtils.AccountsFlag.Name) {
		chainCfg.AccountCount = cliUtils.AccountsFlag.Fetch(context)
	}
	if context.IsSet(cliUtils.MnemonicFlag.Name) {
		chainCfg.Mnemonic = cliUtils.MnemonicFlag.Fetch(context)
	}
	if context.IsSet(cliUtils.PrivateKeysFlag.Name) {
		chainCfg.PrivateKeys = cliUtils.PrivateKeysFlag.Fetch(context)
	}
	if context.IsSet(cliUtils.BalanceFlag.Name) {
		chainCfg.InitialBalance = cliUtils.BalanceFlag.Fetch(context)
	}
	if context.IsSet(cliUtils.VerboseFlag.Name) {
		chainCfg.Verbose = cliUtils.VerboseFlag.Fetch(context)
	}

	if context.IsSet(cliUtils.ForkURLFlag.Name) {
		if chainCfg.Fork == nil {
			chainCfg.Fork = &fork.Config{AutoDetectArchive: true}
		}
		chainCfg.Fork.URL = cliUtils.ForkURLFlag.Fetch(context)
	}
	if block := cliUtils.ForkBlockFlag.Fetch(context); block != nil {
		if chainCfg.Fork == nil {
			return fmt.Errorf("--%s requires a fork URL", cliUtils.ForkBlockFlag.Name)
		}
		chainCfg.Fork.BlockNumber = block
	}
	if context.IsSet(cliUtils.NoArchiveDetectFlag.Name) && chainCfg.Fork != nil {
		chainCfg.Fork.AutoDetectArchive = !cliUtils.NoArchiveDetectFlag.Fetch(context)
	}

	if context.IsSet(cliUtils.HostFlag.Name) {
		cfg.HTTP.Host = cliUtils.HostFlag.Fetch(context)
	}
	if context.IsSet(cliUtils.PortFlag.Name) {
		port, err := cliUtils.PortFlag.Fetch(context)
		if err != nil {
			return err
		}
		cfg.HTTP.Port = port
	}
	if context.IsSet(cliUtils.CORSFlag.Name) {
		cfg.HTTP.CORS = cliUtils.CORSFlag.Fetch(context)
	}
	return nil
}

var DumpConfigCmd = cli.Command{
	Action:      doDumpConfig,
	Name:        "dumpconfig",
	Usage:       "Export configuration values in a TOML format",
	ArgsUsage:   "<dumpfile (optional)>",
	Flags:       nodeFlags,
	Description: `Export configuration values in TOML format (to stdout by default).`,
}

func doDumpConfig(context *cli.Context) error {
	cfg, err := makeConfig(context)
	if err != nil {
		return err
	}
	dump := io.Writer(context.App.Writer)
	if context.NArg() > 0 {
		file, err := os.OpenFile(context.Args().Get(0), os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0644)
		if err != nil {
			return err
		}
		defer file.Close()
		dump = file
	}
	return writeConfig(dump, cfg)
}

func writeConfig(out io.Writer, cfg config) error {
	data, err := tomlSettings.Marshal(&cfg)
	if err != nil {
		return err
	}
	_, err = out.Write(data)
	return err
}
