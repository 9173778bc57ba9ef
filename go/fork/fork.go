// Copyright (c) 2024 Fantom Foundation
//
// Use of this software is governed by the Business Source License included
// in the LICENSE file and at fantom.foundation/bsl11.
//
// Change Date: 2028-4-16
//
// On the date above, in accordance with the Business Source License, use of
// this software will be governed by the GNU Lesser General Public License v3.

// Package fork provides access to the state of a remote chain at a pinned
// block, used by development chains forked off a live network. Remote
// reads are cached for the lifetime of the process.
package fork

import (
	"context"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/Fantom-foundation/devchain/go/chain"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/log"
)

// ErrNotArchive is reported for historical queries that require an archive
// node when the fork source is not one.
const ErrNotArchive = chain.ConstError("fork source is not an archive node")

const requestTimeout = 30 * time.Second

// Config describes the remote chain to fork from.
type Config struct {
	// URL of the JSON-RPC endpoint of the remote node.
	URL string
	// BlockNumber is the block to fork at. If nil, the latest block of the
	// remote chain at the time of the fork is used.
	BlockNumber *uint64 `toml:",omitempty"`
	// AutoDetectArchive enables probing whether the remote node keeps the
	// historical state. If disabled, the node is assumed to be an archive.
	AutoDetectArchive bool
}

//go:generate mockgen -source fork.go -destination fork_mock.go -package fork

// Client is the subset of the remote node API needed for forking. It is
// implemented by *ethclient.Client.
type Client interface {
	BlockNumber(ctx context.Context) (uint64, error)
	ChainID(ctx context.Context) (*big.Int, error)
	HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error)
	BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error)
	NonceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (uint64, error)
	CodeAt(ctx context.Context, account common.Address, blockNumber *big.Int) ([]byte, error)
	StorageAt(ctx context.Context, account common.Address, key common.Hash, blockNumber *big.Int) ([]byte, error)
}

// Context is a fork of a remote chain at a pinned block. It is immutable
// after creation except for the archive flag, which is determined lazily
// by a single probe on first use. All methods are safe for concurrent use.
type Context struct {
	client     Client
	url        string
	block      uint64
	autoDetect bool
	log        log.Logger

	probe   sync.Once
	archive bool

	cache cache
}

// Dial connects to the remote node described by the config and pins the
// fork block.
func Dial(ctx context.Context, config Config, logger log.Logger) (*Context, error) {
	client, err := ethclient.DialContext(ctx, config.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to fork source %s: %w", config.URL, err)
	}
	return NewContext(ctx, client, config, logger)
}

// NewContext creates a fork on top of the given client. If the config does
// not name a block, the current head of the remote chain is pinned.
func NewContext(ctx context.Context, client Client, config Config, logger log.Logger) (*Context, error) {
	if logger == nil {
		logger = log.Root()
	}
	var block uint64
	if config.BlockNumber != nil {
		block = *config.BlockNumber
	} else {
		ctx, cancel := context.WithTimeout(ctx, requestTimeout)
		defer cancel()
		head, err := client.BlockNumber(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to fetch head of fork source: %w", err)
		}
		block = head
	}
	logger.Info("Forking remote chain", "url", config.URL, "block", block)
	return &Context{
		client:     client,
		url:        config.URL,
		block:      block,
		autoDetect: config.AutoDetectArchive,
		log:        logger,
	}, nil
}

// URL returns the address of the remote node.
func (c *Context) URL() string {
	return c.url
}

// BlockNumber returns the pinned fork block.
func (c *Context) BlockNumber() uint64 {
	return c.block
}

// IsArchive reports whether the remote node serves the state at the pinned
// block. The first call probes the node if detection is enabled.
func (c *Context) IsArchive() bool {
	c.probe.Do(func() {
		if !c.autoDetect {
			c.archive = true
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()
		_, err := c.client.BalanceAt(ctx, common.Address{}, new(big.Int).SetUint64(c.block))
		c.archive = err == nil
		if err != nil {
			c.log.Info("Fork source is not an archive node, reading latest state instead", "url", c.url, "err", err)
		} else {
			c.log.Info("Fork source is an archive node", "url", c.url)
		}
	})
	return c.archive
}

// stateBlock returns the block to read state from. Non-archive nodes only
// serve recent state, so the latest block is used for them.
func (c *Context) stateBlock() (*big.Int, uint64) {
	if c.IsArchive() {
		return new(big.Int).SetUint64(c.block), c.block
	}
	return nil, latest
}

func (c *Context) GetBalance(ctx context.Context, addr chain.Address) (chain.Value, error) {
	number, key := c.stateBlock()
	return fetch(ctx, c, &c.cache.balances, accountKey{addr, key}, func(ctx context.Context) (chain.Value, error) {
		balance, err := c.client.BalanceAt(ctx, common.Address(addr), number)
		if err != nil {
			return chain.Value{}, err
		}
		return chain.ValueFromBig(balance)
	})
}

func (c *Context) GetNonce(ctx context.Context, addr chain.Address) (uint64, error) {
	number, key := c.stateBlock()
	return fetch(ctx, c, &c.cache.nonces, accountKey{addr, key}, func(ctx context.Context) (uint64, error) {
		return c.client.NonceAt(ctx, common.Address(addr), number)
	})
}

func (c *Context) GetCode(ctx context.Context, addr chain.Address) (chain.Code, error) {
	number, key := c.stateBlock()
	return fetch(ctx, c, &c.cache.codes, accountKey{addr, key}, func(ctx context.Context) (chain.Code, error) {
		code, err := c.client.CodeAt(ctx, common.Address(addr), number)
		return chain.Code(code), err
	})
}

func (c *Context) GetStorage(ctx context.Context, addr chain.Address, key chain.Key) (chain.Word, error) {
	number, block := c.stateBlock()
	return fetch(ctx, c, &c.cache.storage, slotKey{addr, key, block}, func(ctx context.Context) (chain.Word, error) {
		value, err := c.client.StorageAt(ctx, common.Address(addr), common.Hash(key), number)
		if err != nil {
			return chain.Word{}, err
		}
		return chain.Word(common.BytesToHash(value)), nil
	})
}

// BalanceAt returns the balance of an account at a block up to the fork
// block. Blocks before the fork block require an archive node.
func (c *Context) BalanceAt(ctx context.Context, addr chain.Address, number uint64) (chain.Value, error) {
	if number >= c.block {
		return c.GetBalance(ctx, addr)
	}
	if !c.IsArchive() {
		return chain.Value{}, fmt.Errorf("balance at block %d: %w", number, ErrNotArchive)
	}
	return fetch(ctx, c, &c.cache.balances, accountKey{addr, number}, func(ctx context.Context) (chain.Value, error) {
		balance, err := c.client.BalanceAt(ctx, common.Address(addr), new(big.Int).SetUint64(number))
		if err != nil {
			return chain.Value{}, err
		}
		return chain.ValueFromBig(balance)
	})
}

// BlockHash returns the hash of a block of the remote chain. Only blocks up
// to the fork block are served.
func (c *Context) BlockHash(ctx context.Context, number uint64) (chain.Hash, error) {
	if number > c.block {
		return chain.Hash{}, fmt.Errorf("block %d is beyond the fork block %d", number, c.block)
	}
	return fetch(ctx, c, &c.cache.hashes, number, func(ctx context.Context) (chain.Hash, error) {
		header, err := c.client.HeaderByNumber(ctx, new(big.Int).SetUint64(number))
		if err != nil {
			return chain.Hash{}, err
		}
		return chain.Hash(header.Hash()), nil
	})
}

// Header returns the header of the pinned fork block.
func (c *Context) Header(ctx context.Context) (*types.Header, error) {
	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()
	return c.client.HeaderByNumber(ctx, new(big.Int).SetUint64(c.block))
}

// ChainID returns the chain id of the remote chain.
func (c *Context) ChainID(ctx context.Context) (uint64, error) {
	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()
	id, err := c.client.ChainID(ctx)
	if err != nil {
		return 0, err
	}
	return id.Uint64(), nil
}
