// Copyright (c) 2024 Fantom Foundation
//
// Use of this software is governed by the Business Source License included
// in the LICENSE file and at fantom.foundation/bsl11.
//
// Change Date: 2028-4-16
//
// On the date above, in accordance with the Business Source License, use of
// this software will be governed by the GNU Lesser General Public License v3.

// Package devchain implements a single node development chain. The node
// owns the world state, produces blocks on demand or for every submitted
// transaction, and supports snapshots and time travel for test isolation.
package devchain

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/Fantom-foundation/devchain/go/accounts"
	"github.com/Fantom-foundation/devchain/go/chain"
	"github.com/Fantom-foundation/devchain/go/fork"
	"github.com/Fantom-foundation/devchain/go/interpreter/devvm"
	"github.com/Fantom-foundation/devchain/go/processor/floria"
	"github.com/Fantom-foundation/devchain/go/state"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/log"
)

const (
	ErrUnknownBlock       = chain.ConstError("unknown block")
	ErrHistoricalState    = chain.ConstError("historical state not available")
	ErrUnknownTransaction = chain.ConstError("unknown transaction")
)

// PendingBlock selects the state after the pending transactions. Blocks
// requested with it resolve to the latest block.
const PendingBlock uint64 = math.MaxUint64

// blockHashWindow is the number of past blocks visible to BLOCKHASH.
const blockHashWindow = 256

// Node is a development chain. All methods are safe for concurrent use;
// mutations are serialized while reads and calls run in parallel.
//
// World states published by the node, i.e. the current state and the states
// of mined blocks, are never modified. Every mutation produces a new state.
type Node struct {
	config      Config
	log         log.Logger
	fork        *fork.Context
	accounts    *accounts.Manager
	interpreter *devvm.Interpreter
	processor   chain.Processor
	now         func() time.Time
	// first is the number of the genesis block, the fork block if forked.
	first uint64

	mutex    sync.RWMutex
	state    *state.State
	blocks   []*Block
	byHash   map[chain.Hash]*Block
	txs      map[chain.Hash]*Transaction
	receipts map[chain.Hash]*Receipt
	pending  []*Transaction
	automine bool
	time     timeControl
	// nextBaseFee overrides the base fee of the next block only.
	nextBaseFee *chain.Value
	coinbase    chain.Address
	snapshots   []snapshot
	lastID      uint64 // < the id of the most recent snapshot
}

// New creates a node for the given configuration, connecting to the fork
// source if one is configured.
func New(ctx context.Context, config Config, logger log.Logger) (*Node, error) {
	var source *fork.Context
	if config.Fork != nil {
		var err error
		if source, err = fork.Dial(ctx, *config.Fork, logger); err != nil {
			return nil, err
		}
	}
	return NewWithFork(ctx, config, source, logger)
}

// NewWithFork creates a node on top of the given fork, which may be nil. A
// forked chain continues the remote chain after the fork block.
func NewWithFork(ctx context.Context, config Config, source *fork.Context, logger log.Logger) (*Node, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = log.Root()
	}
	manager, err := config.accountManager()
	if err != nil {
		return nil, err
	}
	interpreter, err := devvm.NewInterpreter(devvm.Config{})
	if err != nil {
		return nil, err
	}
	processor, err := chain.NewProcessor(floria.Name, interpreter)
	if err != nil {
		return nil, err
	}
	n := &Node{
		config:      config,
		log:         logger,
		fork:        source,
		accounts:    manager,
		interpreter: interpreter,
		processor:   processor,
		now:         time.Now,
		byHash:      map[chain.Hash]*Block{},
		txs:         map[chain.Hash]*Transaction{},
		receipts:    map[chain.Hash]*Receipt{},
		automine:    config.AutoMine,
		coinbase:    config.Coinbase,
	}
	genesis, err := n.genesis(ctx)
	if err != nil {
		return nil, err
	}
	n.first = genesis.Number
	n.state = genesis.state
	n.appendBlock(genesis)
	logger.Info("Created development chain", "chainId", config.ChainID, "block", genesis.Number, "hash", genesis.Hash, "accounts", len(manager.Accounts()))
	return n, nil
}

func (n *Node) genesis(ctx context.Context) (*Block, error) {
	var remote state.Remote
	genesis := &Block{
		GasLimit:  n.config.BlockGasLimit,
		Coinbase:  n.config.Coinbase,
		BaseFee:   n.config.BaseFee,
		Timestamp: n.config.GenesisTimestamp,
	}
	if genesis.Timestamp == 0 {
		genesis.Timestamp = uint64(n.now().Unix())
	}
	if n.fork != nil {
		remote = n.fork
		header, err := n.fork.Header(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to fetch fork block: %w", err)
		}
		genesis.Number = header.Number.Uint64()
		genesis.ParentHash = chain.Hash(header.ParentHash)
		genesis.Timestamp = header.Time
		if header.BaseFee != nil {
			if genesis.BaseFee, err = chain.ValueFromBig(header.BaseFee); err != nil {
				return nil, err
			}
		}
	}

	genesis.state = state.New(remote, n.log)
	for _, addr := range n.accounts.Accounts() {
		genesis.state.SetBalance(addr, n.config.InitialBalance)
	}
	if err := genesis.state.Err(); err != nil {
		return nil, fmt.Errorf("failed to set up genesis accounts: %w", err)
	}
	genesis.base = genesis.state
	genesis.PrevRandao = chain.Hash(crypto.Keccak256Hash(genesis.ParentHash[:]))
	genesis.seal()
	if n.fork != nil {
		// the hash of the fork block is the one of the remote chain
		hash, err := n.fork.BlockHash(ctx, genesis.Number)
		if err != nil {
			return nil, fmt.Errorf("failed to fetch fork block hash: %w", err)
		}
		genesis.Hash = hash
	}
	return genesis, nil
}

func (n *Node) appendBlock(block *Block) {
	n.blocks = append(n.blocks, block)
	n.byHash[block.Hash] = block
	for i, tx := range block.Transactions {
		n.txs[tx.Hash] = tx
		n.receipts[tx.Hash] = block.Receipts[i]
	}
}

func (n *Node) head() *Block {
	return n.blocks[len(n.blocks)-1]
}

// Config returns the configuration of the node.
func (n *Node) Config() Config {
	return n.config
}

func (n *Node) ChainID() uint64 {
	return n.config.ChainID
}

// Accounts returns the account manager of the node.
func (n *Node) Accounts() *accounts.Manager {
	return n.accounts
}

// Fork returns the fork the chain is based on, nil if there is none.
func (n *Node) Fork() *fork.Context {
	return n.fork
}

// BlockNumber returns the number of the latest block.
func (n *Node) BlockNumber() uint64 {
	n.mutex.RLock()
	defer n.mutex.RUnlock()
	return n.head().Number
}

// BlockByNumber returns the block with the given number, the latest block if
// number is nil.
func (n *Node) BlockByNumber(number *uint64) (*Block, error) {
	n.mutex.RLock()
	defer n.mutex.RUnlock()
	return n.blockByNumber(number)
}

func (n *Node) blockByNumber(number *uint64) (*Block, error) {
	if number == nil || *number == PendingBlock {
		return n.head(), nil
	}
	if *number < n.first || *number > n.head().Number {
		return nil, fmt.Errorf("%w: %d", ErrUnknownBlock, *number)
	}
	return n.blocks[*number-n.first], nil
}

func (n *Node) BlockByHash(hash chain.Hash) (*Block, error) {
	n.mutex.RLock()
	defer n.mutex.RUnlock()
	block, found := n.byHash[hash]
	if !found {
		return nil, fmt.Errorf("%w: %v", ErrUnknownBlock, hash)
	}
	return block, nil
}

// Transaction returns a mined or pending transaction.
func (n *Node) Transaction(hash chain.Hash) (*Transaction, error) {
	n.mutex.RLock()
	defer n.mutex.RUnlock()
	if tx, found := n.txs[hash]; found {
		return tx, nil
	}
	for _, tx := range n.pending {
		if tx.Hash == hash {
			return tx, nil
		}
	}
	return nil, fmt.Errorf("%w: %v", ErrUnknownTransaction, hash)
}

// Receipt returns the receipt of a mined transaction.
func (n *Node) Receipt(hash chain.Hash) (*Receipt, error) {
	n.mutex.RLock()
	defer n.mutex.RUnlock()
	receipt, found := n.receipts[hash]
	if !found {
		return nil, fmt.Errorf("%w: %v", ErrUnknownTransaction, hash)
	}
	return receipt, nil
}

// PendingTransactions returns the transactions waiting to be mined.
func (n *Node) PendingTransactions() []*Transaction {
	n.mutex.RLock()
	defer n.mutex.RUnlock()
	return append([]*Transaction(nil), n.pending...)
}

// GetBlockHash returns the hash of the given block as visible to contracts
// executed on top of the latest block. Blocks more than 256 blocks behind
// the head and the head itself are not visible and produce the zero hash.
func (n *Node) GetBlockHash(number uint64) chain.Hash {
	n.mutex.RLock()
	defer n.mutex.RUnlock()
	return n.blockHash(n.head().Number, int64(number))
}

// blockHash resolves block hashes for contracts executed in block current.
func (n *Node) blockHash(current uint64, number int64) chain.Hash {
	if number < 0 || uint64(number) >= current || current-uint64(number) > blockHashWindow {
		return chain.Hash{}
	}
	if uint64(number) >= n.first {
		if i := uint64(number) - n.first; i < uint64(len(n.blocks)) {
			return n.blocks[i].Hash
		}
		return chain.Hash{}
	}
	if n.fork == nil {
		return chain.Hash{}
	}
	hash, err := n.fork.BlockHash(context.Background(), uint64(number))
	if err != nil {
		n.log.Warn("Failed to fetch block hash of fork source", "block", number, "err", err)
		return chain.Hash{}
	}
	return hash
}

// stateAt returns a read-only view of the state after the given block, the
// current state if number is nil. The current state includes direct
// modifications made after the latest block.
func (n *Node) stateAt(number *uint64) (*state.State, error) {
	if number != nil && *number == PendingBlock {
		return n.pendingState().View(), nil
	}
	if number == nil || *number == n.head().Number {
		return n.state.View(), nil
	}
	if n.fork != nil && *number < n.first {
		return nil, fmt.Errorf("%w: block %d precedes the fork block", ErrHistoricalState, *number)
	}
	block, err := n.blockByNumber(number)
	if err != nil {
		return nil, err
	}
	return block.state.View(), nil
}

// read runs a query on the state after the given block.
func read[T any](n *Node, number *uint64, query func(*state.State) T) (T, error) {
	n.mutex.RLock()
	defer n.mutex.RUnlock()
	var zero T
	view, err := n.stateAt(number)
	if err != nil {
		return zero, err
	}
	res := query(view)
	if err := view.Err(); err != nil {
		return zero, err
	}
	return res, nil
}

// GetBalance returns the balance of an account after the given block, the
// latest if number is nil. On forked chains, balances of blocks before the
// fork block are fetched from the fork source if it is an archive node.
func (n *Node) GetBalance(ctx context.Context, addr chain.Address, number *uint64) (chain.Value, error) {
	if n.fork != nil && number != nil && *number < n.first {
		return n.fork.BalanceAt(ctx, addr, *number)
	}
	return read(n, number, func(s *state.State) chain.Value { return s.GetBalance(addr) })
}

func (n *Node) GetNonce(addr chain.Address, number *uint64) (uint64, error) {
	return read(n, number, func(s *state.State) uint64 { return s.GetNonce(addr) })
}

func (n *Node) GetCode(addr chain.Address, number *uint64) (chain.Code, error) {
	return read(n, number, func(s *state.State) chain.Code { return s.GetCode(addr) })
}

func (n *Node) GetStorageAt(addr chain.Address, key chain.Key, number *uint64) (chain.Word, error) {
	return read(n, number, func(s *state.State) chain.Word { return s.GetStorage(addr, key) })
}

// PendingNonce returns the nonce of the next transaction of the sender,
// taking pending transactions into account.
func (n *Node) PendingNonce(addr chain.Address) (uint64, error) {
	n.mutex.RLock()
	defer n.mutex.RUnlock()
	return n.pendingNonce(addr)
}

func (n *Node) pendingNonce(addr chain.Address) (uint64, error) {
	view := n.state.View()
	nonce := view.GetNonce(addr)
	if err := view.Err(); err != nil {
		return 0, err
	}
	for _, tx := range n.pending {
		if tx.From == addr {
			nonce++
		}
	}
	return nonce, nil
}

// modify applies a direct modification to a copy of the current state and
// publishes the copy if no remote read failed.
func (n *Node) modify(change func(*state.State)) error {
	n.mutex.Lock()
	defer n.mutex.Unlock()
	next := n.state.Clone()
	change(next)
	if err := next.Err(); err != nil {
		return err
	}
	n.state = next
	return nil
}

func (n *Node) SetBalance(addr chain.Address, balance chain.Value) error {
	return n.modify(func(s *state.State) { s.SetBalance(addr, balance) })
}

func (n *Node) SetNonce(addr chain.Address, nonce uint64) error {
	return n.modify(func(s *state.State) { s.SetNonce(addr, nonce) })
}

func (n *Node) SetCode(addr chain.Address, code chain.Code) error {
	return n.modify(func(s *state.State) { s.SetCode(addr, code) })
}

func (n *Node) SetStorageAt(addr chain.Address, key chain.Key, value chain.Word) error {
	return n.modify(func(s *state.State) { s.SetStorage(addr, key, value) })
}

// SetCoinbase sets the beneficiary of future blocks.
func (n *Node) SetCoinbase(addr chain.Address) {
	n.mutex.Lock()
	defer n.mutex.Unlock()
	n.coinbase = addr
}

func (n *Node) Coinbase() chain.Address {
	n.mutex.RLock()
	defer n.mutex.RUnlock()
	return n.coinbase
}

// SetNextBlockBaseFee overrides the base fee of the next block.
func (n *Node) SetNextBlockBaseFee(fee chain.Value) {
	n.mutex.Lock()
	defer n.mutex.Unlock()
	n.nextBaseFee = &fee
}

func (n *Node) baseFee() chain.Value {
	if n.nextBaseFee != nil {
		return *n.nextBaseFee
	}
	return n.config.BaseFee
}

// GasPrice returns the default gas price of transactions.
func (n *Node) GasPrice() chain.Value {
	n.mutex.RLock()
	defer n.mutex.RUnlock()
	return n.defaultGasPrice()
}

func (n *Node) defaultGasPrice() chain.Value {
	return chain.Add(n.baseFee().Scale(2), Gwei)
}

// nextBlock creates the header of the block following the latest block.
func (n *Node) nextBlock() *Block {
	head := n.head()
	return &Block{
		Number:     head.Number + 1,
		ParentHash: head.Hash,
		Timestamp:  n.time.next(head.Timestamp, n.now()),
		Coinbase:   n.coinbase,
		GasLimit:   n.config.BlockGasLimit,
		BaseFee:    n.baseFee(),
		PrevRandao: chain.Hash(crypto.Keccak256Hash(head.Hash[:])),
	}
}

// blockParameters describes the environment of transactions in a block.
func (n *Node) blockParameters(block *Block) chain.BlockParameters {
	return chain.BlockParameters{
		ChainID:     chain.Word(chain.NewValue(n.config.ChainID)),
		BlockNumber: int64(block.Number),
		Timestamp:   int64(block.Timestamp),
		Coinbase:    block.Coinbase,
		GasLimit:    chain.Gas(block.GasLimit),
		PrevRandao:  block.PrevRandao,
		BaseFee:     block.BaseFee,
		Revision:    n.config.Revision,
	}
}

// Stats summarizes the blocks mined on top of the genesis block.
type Stats struct {
	Head         uint64
	Blocks       uint64
	Transactions uint64
	GasUsed      uint64
}

// Stats returns statistics of the chain. Reverted blocks are not included.
func (n *Node) Stats() Stats {
	n.mutex.RLock()
	defer n.mutex.RUnlock()
	res := Stats{Head: n.head().Number}
	for _, block := range n.blocks[1:] {
		res.Blocks++
		res.Transactions += uint64(len(block.Transactions))
		res.GasUsed += block.GasUsed
	}
	return res
}
