// Copyright (c) 2024 Fantom Foundation
//
// Use of this software is governed by the Business Source License included
// in the LICENSE file and at fantom.foundation/bsl11.
//
// Change Date: 2028-4-16
//
// On the date above, in accordance with the Business Source License, use of
// this software will be governed by the GNU Lesser General Public License v3.

package cliUtils

import (
	"fmt"
	"time"

	"github.com/Fantom-foundation/devchain/go/chain"
	"github.com/Fantom-foundation/devchain/go/devchain"
	"github.com/urfave/cli/v2"
)

type configFlagType struct {
	cli.StringFlag
}

var ConfigFlag = &configFlagType{
	cli.StringFlag{
		Name:      "config",
		Usage:     "TOML configuration file",
		TakesFile: true,
	},
}

func (f *configFlagType) Fetch(context *cli.Context) string {
	return context.String(f.Name)
}

type chainIDFlagType struct {
	cli.Uint64Flag
}

var ChainIDFlag = &chainIDFlagType{
	cli.Uint64Flag{
		Name:  "chain-id",
		Usage: "chain id of the development chain",
		Value: 31337,
	},
}

func (f *chainIDFlagType) Fetch(context *cli.Context) uint64 {
	return context.Uint64(f.Name)
}

type hostFlagType struct {
	cli.StringFlag
}

var HostFlag = &hostFlagType{
	cli.StringFlag{
		Name:  "host",
		Usage: "interface the JSON-RPC server listens on",
		Value: "127.0.0.1",
	},
}

func (f *hostFlagType) Fetch(context *cli.Context) string {
	return context.String(f.Name)
}

type portFlagType struct {
	cli.IntFlag
}

var PortFlag = &portFlagType{
	cli.IntFlag{
		Name:    "port",
		Aliases: []string{"p"},
		Usage:   "port the JSON-RPC server listens on",
		Value:   8545,
	},
}

func (f *portFlagType) Fetch(context *cli.Context) (int, error) {
	port := context.Int(f.Name)
	if port < 0 || port > 65535 {
		return 0, fmt.Errorf("invalid port %d", port)
	}
	return port, nil
}

type corsFlagType struct {
	cli.StringSliceFlag
}

var CORSFlag = &corsFlagType{
	cli.StringSliceFlag{
		Name:  "cors",
		Usage: "origins permitted to send cross origin requests",
		Value: cli.NewStringSlice("*"),
	},
}

func (f *corsFlagType) Fetch(context *cli.Context) []string {
	return context.StringSlice(f.Name)
}

type gasLimitFlagType struct {
	cli.Uint64Flag
}

var GasLimitFlag = &gasLimitFlagType{
	cli.Uint64Flag{
		Name:  "gas-limit",
		Usage: "gas limit of blocks",
		Value: 30_000_000,
	},
}

func (f *gasLimitFlagType) Fetch(context *cli.Context) uint64 {
	return context.Uint64(f.Name)
}

type noAutomineFlagType struct {
	cli.BoolFlag
}

var NoAutomineFlag = &noAutomineFlagType{
	cli.BoolFlag{
		Name:  "no-automine",
		Usage: "queue transactions until blocks are mined explicitly",
	},
}

func (f *noAutomineFlagType) Fetch(context *cli.Context) bool {
	return context.Bool(f.Name)
}

type hardforkFlagType struct {
	cli.StringFlag
}

var HardforkFlag = &hardforkFlagType{
	cli.StringFlag{
		Name:  "hardfork",
		Usage: "revision of the execution rules, e.g. Cancun",
		Value: chain.NewestRevision.String(),
	},
}

func (f *hardforkFlagType) Fetch(context *cli.Context) (chain.Revision, error) {
	return chain.ParseRevision(context.String(f.Name))
}

type accountsFlagType struct {
	cli.IntFlag
}

var AccountsFlag = &accountsFlagType{
	cli.IntFlag{
		Name:    "accounts",
		Aliases: []string{"a"},
		Usage:   "number of accounts derived from the mnemonic",
		Value:   10,
	},
}

func (f *accountsFlagType) Fetch(context *cli.Context) int {
	return context.Int(f.Name)
}

type mnemonicFlagType struct {
	cli.StringFlag
}

var MnemonicFlag = &mnemonicFlagType{
	cli.StringFlag{
		Name:  "mnemonic",
		Usage: "BIP-39 mnemonic the accounts are derived from",
	},
}

func (f *mnemonicFlagType) Fetch(context *cli.Context) string {
	return context.String(f.Name)
}

type privateKeysFlagType struct {
	cli.StringSliceFlag
}

var PrivateKeysFlag = &privateKeysFlagType{
	cli.StringSliceFlag{
		Name:  "private-key",
		Usage: "hex encoded private key of an account, replaces the mnemonic",
	},
}

func (f *privateKeysFlagType) Fetch(context *cli.Context) []string {
	return context.StringSlice(f.Name)
}

type balanceFlagType struct {
	cli.Uint64Flag
}

var BalanceFlag = &balanceFlagType{
	cli.Uint64Flag{
		Name:  "balance",
		Usage: "initial balance of each account in ether",
		Value: 10_000,
	},
}

// Fetch returns the balance in wei.
func (f *balanceFlagType) Fetch(context *cli.Context) chain.Value {
	return devchain.Ether.Scale(context.Uint64(f.Name))
}

type forkURLFlagType struct {
	cli.StringFlag
}

var ForkURLFlag = &forkURLFlagType{
	cli.StringFlag{
		Name:    "fork-url",
		Aliases: []string{"f"},
		Usage:   "JSON-RPC endpoint of a chain to fork from",
	},
}

func (f *forkURLFlagType) Fetch(context *cli.Context) string {
	return context.String(f.Name)
}

type forkBlockFlagType struct {
	cli.Uint64Flag
}

var ForkBlockFlag = &forkBlockFlagType{
	cli.Uint64Flag{
		Name:  "fork-block",
		Usage: "block to fork at, the latest block if not set",
	},
}

// Fetch returns the fork block, nil if the flag is not set.
func (f *forkBlockFlagType) Fetch(context *cli.Context) *uint64 {
	if !context.IsSet(f.Name) {
		return nil
	}
	block := context.Uint64(f.Name)
	return &block
}

type noArchiveDetectFlagType struct {
	cli.BoolFlag
}

var NoArchiveDetectFlag = &noArchiveDetectFlagType{
	cli.BoolFlag{
		Name:  "no-archive-detect",
		Usage: "assume the fork source is an archive node instead of probing it",
	},
}

func (f *noArchiveDetectFlagType) Fetch(context *cli.Context) bool {
	return context.Bool(f.Name)
}

type verboseFlagType struct {
	cli.BoolFlag
}

var VerboseFlag = &verboseFlagType{
	cli.BoolFlag{
		Name:  "verbose",
		Usage: "log every JSON-RPC request",
	},
}

func (f *verboseFlagType) Fetch(context *cli.Context) bool {
	return context.Bool(f.Name)
}

type verbosityFlagType struct {
	cli.IntFlag
}

var VerbosityFlag = &verbosityFlagType{
	cli.IntFlag{
		Name:  "verbosity",
		Usage: "log level: 0=crit, 1=error, 2=warn, 3=info, 4=debug, 5=trace",
		Value: 3,
	},
}

func (f *verbosityFlagType) Fetch(context *cli.Context) int {
	return context.Int(f.Name)
}

type statsIntervalFlagType struct {
	cli.DurationFlag
}

var StatsIntervalFlag = &statsIntervalFlagType{
	cli.DurationFlag{
		Name:  "stats-interval",
		Usage: "interval of chain statistics reports, 0 disables them",
		Value: time.Minute,
	},
}

func (f *statsIntervalFlagType) Fetch(context *cli.Context) time.Duration {
	return context.Duration(f.Name)
}
