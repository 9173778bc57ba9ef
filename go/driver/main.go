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
	"fmt"
	"io"
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/Fantom-foundation/devchain/go/devchain"
	cliUtils "github.com/Fantom-foundation/devchain/go/driver/cli"
	"github.com/Fantom-foundation/devchain/go/rpc"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/log"
	"github.com/urfave/cli/v2"
)

var nodeFlags = []cli.Flag{
	cliUtils.ConfigFlag,
	cliUtils.ChainIDFlag,
	cliUtils.GasLimitFlag,
	cliUtils.NoAutomineFlag,
	cliUtils.HardforkFlag,
	cliUtils.AccountsFlag,
	cliUtils.MnemonicFlag,
	cliUtils.PrivateKeysFlag,
	cliUtils.BalanceFlag,
	cliUtils.ForkURLFlag,
	cliUtils.ForkBlockFlag,
	cliUtils.NoArchiveDetectFlag,
	cliUtils.HostFlag,
	cliUtils.PortFlag,
	cliUtils.CORSFlag,
	cliUtils.VerboseFlag,
}

func main() {
	app := &cli.App{
		Name:      "devchain",
		Usage:     "Local Ethereum development chain",
		Copyright: "(c) 2024 Fantom Foundation",
		Flags: append(nodeFlags,
			cliUtils.VerbosityFlag,
			cliUtils.StatsIntervalFlag,
		),
		Action: doRun,
		Commands: []*cli.Command{
			&DumpConfigCmd,
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newLogger(out io.Writer, verbosity int) log.Logger {
	return log.NewLogger(log.NewTerminalHandlerWithLevel(out, log.FromLegacyLevel(verbosity), false))
}

func doRun(context *cli.Context) error {
	cfg, err := makeConfig(context)
	if err != nil {
		return err
	}
	logger := newLogger(context.App.ErrWriter, cliUtils.VerbosityFlag.Fetch(context))
	log.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	node, err := devchain.New(ctx, cfg.Chain, logger)
	if err != nil {
		return fmt.Errorf("failed to start chain: %w", err)
	}
	registry, err := rpc.NewDevRegistry()
	if err != nil {
		return err
	}
	dispatcher := rpc.NewDispatcher(registry, rpc.NewContext(node), logger, cfg.Chain.Verbose)

	endpoint := net.JoinHostPort(cfg.HTTP.Host, strconv.Itoa(cfg.HTTP.Port))
	listener, err := net.Listen("tcp", endpoint)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", endpoint, err)
	}

	printAccounts(context.App.Writer, node)
	if interval := cliUtils.StatsIntervalFlag.Fetch(context); interval > 0 {
		go reportStats(ctx, node, interval, logger)
	}
	return rpc.Serve(ctx, listener, rpc.NewHTTPHandler(dispatcher, cfg.HTTP.CORS), logger)
}

func printAccounts(out io.Writer, node *devchain.Node) {
	manager := node.Accounts()
	fmt.Fprintf(out, "Chain %d at block %d\n\nAvailable accounts\n==================\n", node.ChainID(), node.BlockNumber())
	for i, addr := range manager.Accounts() {
		fmt.Fprintf(out, "(%d) %v\n", i, addr)
	}
	fmt.Fprintf(out, "\nPrivate keys\n==================\n")
	for i, addr := range manager.Accounts() {
		if key, ok := manager.PrivateKey(addr); ok {
			fmt.Fprintf(out, "(%d) 0x%x\n", i, crypto.FromECDSA(key))
		}
	}
	fmt.Fprintln(out)
}
