// Copyright (c) 2024 Fantom Foundation
//
// Use of this software is governed by the Business Source License included
// in the LICENSE file and at fantom.foundation/bsl11.
//
// Change Date: 2028-4-16
//
// On the date above, in accordance with the Business Source License, use of
// this software will be governed by the GNU Lesser General Public License v3.

package devchain

import (
	"fmt"

	"github.com/Fantom-foundation/devchain/go/accounts"
	"github.com/Fantom-foundation/devchain/go/chain"
	"github.com/Fantom-foundation/devchain/go/fork"
)

// Gwei is the value of one gwei in wei.
var Gwei = chain.NewValue(1_000_000_000)

// Ether is the value of one ether in wei.
var Ether = chain.NewValue(1_000_000_000_000_000_000)

// Config is the configuration of a development chain. It is fixed once the
// node is created.
type Config struct {
	ChainID       uint64
	BlockGasLimit uint64
	AutoMine      bool
	Revision      chain.Revision

	// Accounts are derived from the mnemonic unless private keys are given.
	AccountCount   int
	Mnemonic       string
	PrivateKeys    []string `toml:",omitempty"`
	InitialBalance chain.Value

	Coinbase chain.Address
	BaseFee  chain.Value
	// GenesisTimestamp is the time of the genesis block in seconds, zero
	// selects the time the node is created.
	GenesisTimestamp uint64 `toml:",omitempty"`

	// Fork, if set, makes the chain start from the state of a remote chain.
	Fork *fork.Config `toml:",omitempty"`

	// Verbose enables logging of every dispatched RPC request.
	Verbose bool
}

// DefaultConfig returns the configuration of a chain compatible with the
// defaults of common development chains: chain id 31337, ten accounts
// derived from the test mnemonic with 10000 ether each and automining.
func DefaultConfig() Config {
	return Config{
		ChainID:        31337,
		BlockGasLimit:  30_000_000,
		AutoMine:       true,
		Revision:       chain.NewestRevision,
		AccountCount:   10,
		Mnemonic:       accounts.TestMnemonic,
		InitialBalance: Ether.Scale(10_000),
		BaseFee:        Gwei,
	}
}

// Validate checks the configuration for consistency.
func (c *Config) Validate() error {
	if c.ChainID == 0 {
		return fmt.Errorf("invalid chain id 0")
	}
	if c.BlockGasLimit == 0 || c.BlockGasLimit > 1<<62 {
		return fmt.Errorf("invalid block gas limit %d", c.BlockGasLimit)
	}
	if c.AccountCount < 0 {
		return fmt.Errorf("invalid number of accounts %d", c.AccountCount)
	}
	if c.Revision < chain.R07_Istanbul || c.Revision > chain.NewestRevision {
		return &chain.ErrUnsupportedRevision{Revision: c.Revision}
	}
	if c.Fork != nil && c.Fork.URL == "" {
		return fmt.Errorf("fork source without URL")
	}
	return nil
}

func (c *Config) accountManager() (*accounts.Manager, error) {
	if len(c.PrivateKeys) > 0 {
		return accounts.FromPrivateKeys(c.PrivateKeys)
	}
	return accounts.FromMnemonic(c.Mnemonic, c.AccountCount)
}
