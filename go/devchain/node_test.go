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
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Fantom-foundation/devchain/go/chain"
	"github.com/Fantom-foundation/devchain/go/chain/vm"
	"github.com/Fantom-foundation/devchain/go/fork"
	"pgregory.net/rand"
)

// revertingCode stores 1 in slot 0 and reverts afterwards.
var revertingCode = chain.Code{
	byte(vm.PUSH1), 1, byte(vm.PUSH1), 0, byte(vm.SSTORE),
	byte(vm.PUSH1), 0, byte(vm.PUSH1), 0, byte(vm.REVERT),
}

// loggingCode emits a log with topic 0x42 and stops.
var loggingCode = chain.Code{
	byte(vm.PUSH1), 0x42, byte(vm.PUSH1), 0, byte(vm.PUSH1), 0, byte(vm.LOG1), byte(vm.STOP),
}

func newTestNode(t *testing.T) *Node {
	t.Helper()
	config := DefaultConfig()
	config.AccountCount = 2
	config.GenesisTimestamp = 1000
	node, err := NewWithFork(context.Background(), config, nil, nil)
	if err != nil {
		t.Fatalf("failed to create node: %v", err)
	}
	node.now = func() time.Time { return time.Unix(1000, 0) }
	return node
}

func sender(t *testing.T, node *Node, i int) *chain.Address {
	t.Helper()
	accounts := node.Accounts().Accounts()
	if len(accounts) <= i {
		t.Fatalf("missing account %d", i)
	}
	return &accounts[i]
}

func ptr[T any](v T) *T {
	return &v
}

func TestNode_GenesisFundsAccounts(t *testing.T) {
	node := newTestNode(t)
	if got := node.BlockNumber(); got != 0 {
		t.Errorf("unexpected genesis block number %d", got)
	}
	for _, addr := range node.Accounts().Accounts() {
		balance, err := node.GetBalance(context.Background(), addr, nil)
		if err != nil {
			t.Fatalf("failed to get balance: %v", err)
		}
		if want := Ether.Scale(10_000); balance != want {
			t.Errorf("unexpected balance of %v, wanted %v, got %v", addr, want, balance)
		}
	}
	genesis, err := node.BlockByNumber(ptr[uint64](0))
	if err != nil {
		t.Fatalf("failed to get genesis block: %v", err)
	}
	if genesis.Timestamp != 1000 || genesis.Hash == (chain.Hash{}) {
		t.Errorf("unexpected genesis block %+v", genesis)
	}
}

func TestNode_InvalidConfigIsRejected(t *testing.T) {
	tests := map[string]func(*Config){
		"no chain id":    func(c *Config) { c.ChainID = 0 },
		"no gas limit":   func(c *Config) { c.BlockGasLimit = 0 },
		"bad revision":   func(c *Config) { c.Revision = chain.NewestRevision + 1 },
		"fork no url":    func(c *Config) { c.Fork = &fork.Config{} },
		"bad mnemonic":   func(c *Config) { c.Mnemonic = "not a mnemonic" },
		"bad key":        func(c *Config) { c.PrivateKeys = []string{"0x12"} },
		"negative count": func(c *Config) { c.AccountCount = -1 },
	}
	for name, modify := range tests {
		t.Run(name, func(t *testing.T) {
			config := DefaultConfig()
			modify(&config)
			if _, err := NewWithFork(context.Background(), config, nil, nil); err == nil {
				t.Errorf("expected configuration to be rejected")
			}
		})
	}
}

func TestNode_PendingStateIncludesPendingTransactions(t *testing.T) {
	node := newTestNode(t)
	node.SetAutomine(false)
	from, to := sender(t, node, 0), &chain.Address{0x12}
	if _, err := node.SendTransaction(CallMsg{From: from, To: to, Value: Ether}); err != nil {
		t.Fatalf("failed to send transaction: %v", err)
	}

	pending := PendingBlock
	if balance, err := node.GetBalance(context.Background(), *to, &pending); err != nil || balance != Ether {
		t.Errorf("unexpected pending balance %v, err %v", balance, err)
	}
	if nonce, err := node.GetNonce(*from, &pending); err != nil || nonce != 1 {
		t.Errorf("unexpected pending nonce %d, err %v", nonce, err)
	}
	if balance, err := node.GetBalance(context.Background(), *to, nil); err != nil || !balance.IsZero() {
		t.Errorf("pending transaction visible in latest state, balance %v, err %v", balance, err)
	}
	if block, err := node.BlockByNumber(&pending); err != nil || block.Number != 0 {
		t.Errorf("pending block should resolve to the latest block, got %v, err %v", block, err)
	}
	if got := len(node.PendingTransactions()); got != 1 {
		t.Errorf("pending transactions were consumed, %d left", got)
	}
}

func TestNode_AutomineIncludesTransactionsImmediately(t *testing.T) {
	node := newTestNode(t)
	from, to := sender(t, node, 0), &chain.Address{0x12}

	hash, err := node.SendTransaction(CallMsg{From: from, To: to, Value: Ether})
	if err != nil {
		t.Fatalf("failed to send transaction: %v", err)
	}
	if got := node.BlockNumber(); got != 1 {
		t.Errorf("unexpected block number %d", got)
	}
	receipt, err := node.Receipt(hash)
	if err != nil {
		t.Fatalf("missing receipt: %v", err)
	}
	if receipt.Status() != 1 || receipt.GasUsed != 21_000 || receipt.BlockNumber != 1 || receipt.CumulativeGasUsed != 21_000 {
		t.Errorf("unexpected receipt %+v", receipt)
	}
	block, err := node.BlockByNumber(nil)
	if err != nil {
		t.Fatalf("failed to get block: %v", err)
	}
	if receipt.BlockHash != block.Hash || len(block.Transactions) != 1 || block.Transactions[0].Hash != hash {
		t.Errorf("receipt and block do not match")
	}
	if balance, _ := node.GetBalance(context.Background(), *to, nil); balance != Ether {
		t.Errorf("unexpected recipient balance %v", balance)
	}
	if nonce, _ := node.GetNonce(*from, nil); nonce != 1 {
		t.Errorf("unexpected sender nonce %d", nonce)
	}
	// the historical state is retained
	if balance, _ := node.GetBalance(context.Background(), *to, ptr[uint64](0)); !balance.IsZero() {
		t.Errorf("unexpected historical balance %v", balance)
	}
}

func TestNode_ManualMiningQueuesTransactions(t *testing.T) {
	node := newTestNode(t)
	node.SetAutomine(false)
	from, to := sender(t, node, 0), &chain.Address{0x12}

	for i := 0; i < 2; i++ {
		if _, err := node.SendTransaction(CallMsg{From: from, To: to, Value: Ether}); err != nil {
			t.Fatalf("failed to send transaction: %v", err)
		}
	}
	if got := len(node.PendingTransactions()); got != 2 {
		t.Errorf("unexpected number of pending transactions %d", got)
	}
	if nonce, _ := node.PendingNonce(*from); nonce != 2 {
		t.Errorf("unexpected pending nonce %d", nonce)
	}
	if got := node.BlockNumber(); got != 0 {
		t.Errorf("no block should have been mined, got %d", got)
	}

	node.Mine(1, 0)
	block, _ := node.BlockByNumber(nil)
	if block.Number != 1 || len(block.Transactions) != 2 {
		t.Errorf("unexpected block %+v", block)
	}
	if got := len(node.PendingTransactions()); got != 0 {
		t.Errorf("pending pool should be empty, got %d", got)
	}
	if balance, _ := node.GetBalance(context.Background(), *to, nil); balance != Ether.Scale(2) {
		t.Errorf("unexpected recipient balance %v", balance)
	}
}

func TestNode_TransactionsAreValidated(t *testing.T) {
	node := newTestNode(t)
	from, to := sender(t, node, 0), &chain.Address{0x12}
	tests := map[string]struct {
		msg  CallMsg
		want error
	}{
		"no sender":          {CallMsg{To: to}, ErrUnknownAccount},
		"unknown sender":     {CallMsg{From: to, To: to}, ErrUnknownAccount},
		"nonce too high":     {CallMsg{From: from, To: to, Nonce: ptr[uint64](1)}, ErrNonceMismatch},
		"insufficient funds": {CallMsg{From: from, To: to, Value: Ether.Scale(20_000)}, ErrInsufficientFunds},
		"intrinsic gas":      {CallMsg{From: from, To: to, Gas: ptr[uint64](20_000)}, ErrIntrinsicGas},
		"above gas limit":    {CallMsg{From: from, To: to, Gas: ptr[uint64](30_000_001)}, ErrGasLimit},
	}
	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			if _, err := node.SendTransaction(test.msg); !errors.Is(err, test.want) {
				t.Errorf("unexpected error, wanted %v, got %v", test.want, err)
			}
		})
	}
	if got := node.BlockNumber(); got != 0 {
		t.Errorf("rejected transactions should not produce blocks")
	}
}

func TestNode_ImpersonatedAccountsCanSend(t *testing.T) {
	node := newTestNode(t)
	whale := chain.Address{0xaa}
	if err := node.SetBalance(whale, Ether); err != nil {
		t.Fatalf("failed to set balance: %v", err)
	}
	msg := CallMsg{From: &whale, To: &chain.Address{0x12}, Value: Gwei}
	if _, err := node.SendTransaction(msg); !errors.Is(err, ErrUnknownAccount) {
		t.Errorf("unexpected error %v", err)
	}
	node.Accounts().Impersonate(whale)
	if _, err := node.SendTransaction(msg); err != nil {
		t.Errorf("impersonated account should be able to send: %v", err)
	}
}

func TestNode_RevertingCallLeavesStorageUntouched(t *testing.T) {
	node := newTestNode(t)
	contract := chain.Address{0xc0}
	if err := node.SetCode(contract, revertingCode); err != nil {
		t.Fatalf("failed to set code: %v", err)
	}
	gas := uint64(100_000)
	msg := CallMsg{From: sender(t, node, 0), To: &contract, Gas: &gas}

	receipt, err := node.Call(msg, nil, nil)
	if err != nil {
		t.Fatalf("call failed: %v", err)
	}
	if receipt.Outcome != chain.OutcomeRevert {
		t.Errorf("unexpected outcome %v", receipt.Outcome)
	}
	if receipt.GasUsed <= 21_000 || receipt.GasUsed >= chain.Gas(gas) {
		t.Errorf("unexpected gas usage %d", receipt.GasUsed)
	}

	hash, err := node.SendTransaction(msg)
	if err != nil {
		t.Fatalf("failed to send transaction: %v", err)
	}
	if r, _ := node.Receipt(hash); r == nil || r.Status() != 0 || r.Outcome != chain.OutcomeRevert {
		t.Errorf("unexpected receipt %+v", r)
	}
	if value, _ := node.GetStorageAt(contract, chain.Key{}, nil); value != (chain.Word{}) {
		t.Errorf("storage should not be modified, got %v", value)
	}
}

func TestNode_EstimateGas(t *testing.T) {
	node := newTestNode(t)
	gas, err := node.EstimateGas(CallMsg{From: sender(t, node, 0), To: &chain.Address{0x12}, Value: Gwei}, nil)
	if err != nil {
		t.Fatalf("failed to estimate gas: %v", err)
	}
	if gas != 21_000 {
		t.Errorf("unexpected estimate %d", gas)
	}

	contract := chain.Address{0xc0}
	if err := node.SetCode(contract, revertingCode); err != nil {
		t.Fatalf("failed to set code: %v", err)
	}
	_, err = node.EstimateGas(CallMsg{To: &contract}, nil)
	var execErr *ExecutionError
	if !errors.As(err, &execErr) || execErr.Outcome != chain.OutcomeRevert {
		t.Errorf("unexpected error %v", err)
	}
}

func TestNode_LogsCanBeFiltered(t *testing.T) {
	node := newTestNode(t)
	contract := chain.Address{0xc0}
	if err := node.SetCode(contract, loggingCode); err != nil {
		t.Fatalf("failed to set code: %v", err)
	}
	hash, err := node.SendTransaction(CallMsg{From: sender(t, node, 0), To: &contract})
	if err != nil {
		t.Fatalf("failed to send transaction: %v", err)
	}
	receipt, _ := node.Receipt(hash)
	if len(receipt.Logs) != 1 || receipt.Logs[0].Topics[0] != (chain.Hash{31: 0x42}) {
		t.Fatalf("unexpected logs %v", receipt.Logs)
	}

	tests := map[string]struct {
		query FilterQuery
		count int
	}{
		"all":             {FilterQuery{FromBlock: ptr[uint64](0)}, 1},
		"by address":      {FilterQuery{Addresses: []chain.Address{contract}}, 1},
		"other address":   {FilterQuery{Addresses: []chain.Address{{0x01}}}, 0},
		"by topic":        {FilterQuery{Topics: [][]chain.Hash{{{31: 0x42}}}}, 1},
		"wildcard topic":  {FilterQuery{Topics: [][]chain.Hash{{}}}, 1},
		"other topic":     {FilterQuery{Topics: [][]chain.Hash{{{31: 0x43}}}}, 0},
		"too many topics": {FilterQuery{Topics: [][]chain.Hash{{}, {}}}, 0},
		"by block hash":   {FilterQuery{BlockHash: &receipt.BlockHash}, 1},
		"genesis only":    {FilterQuery{ToBlock: ptr[uint64](0)}, 0},
	}
	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			logs, err := node.GetLogs(test.query)
			if err != nil {
				t.Fatalf("failed to get logs: %v", err)
			}
			if len(logs) != test.count {
				t.Errorf("unexpected number of logs, wanted %d, got %d", test.count, len(logs))
			}
		})
	}
}

func TestNode_BlockHashesAreLimitedToRecentBlocks(t *testing.T) {
	node := newTestNode(t)
	node.Mine(300, 0)
	head := node.BlockNumber()
	if head != 300 {
		t.Fatalf("unexpected head %d", head)
	}
	block := func(number uint64) chain.Hash {
		b, err := node.BlockByNumber(&number)
		if err != nil {
			t.Fatalf("missing block %d: %v", number, err)
		}
		return b.Hash
	}
	tests := map[string]struct {
		number uint64
		want   chain.Hash
	}{
		"parent":          {head - 1, block(head - 1)},
		"oldest visible":  {head - 256, block(head - 256)},
		"too old":         {head - 257, chain.Hash{}},
		"genesis":         {0, chain.Hash{}},
		"head":            {head, chain.Hash{}},
		"future":          {head + 1, chain.Hash{}},
		"far future":      {head + 1000, chain.Hash{}},
		"somewhere in it": {head - 100, block(head - 100)},
	}
	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			if got := node.GetBlockHash(test.number); got != test.want {
				t.Errorf("unexpected hash, wanted %v, got %v", test.want, got)
			}
		})
	}
}

func TestNode_BlocksAreChained(t *testing.T) {
	node := newTestNode(t)
	node.Mine(3, 0)
	for number := uint64(1); number <= 3; number++ {
		block, _ := node.BlockByNumber(&number)
		parent, _ := node.BlockByNumber(ptr(number - 1))
		if block.ParentHash != parent.Hash {
			t.Errorf("block %d is not linked to its parent", number)
		}
		if block.Timestamp <= parent.Timestamp {
			t.Errorf("timestamps are not increasing: %d <= %d", block.Timestamp, parent.Timestamp)
		}
		byHash, err := node.BlockByHash(block.Hash)
		if err != nil || byHash != block {
			t.Errorf("block %d not found by hash", number)
		}
	}
}

func TestNode_DirectModificationsAreVisible(t *testing.T) {
	node := newTestNode(t)
	addr := chain.Address{0x12}
	if err := node.SetBalance(addr, Gwei); err != nil {
		t.Fatal(err)
	}
	if err := node.SetNonce(addr, 7); err != nil {
		t.Fatal(err)
	}
	if err := node.SetCode(addr, chain.Code{0x00}); err != nil {
		t.Fatal(err)
	}
	if err := node.SetStorageAt(addr, chain.Key{1}, chain.Word{2}); err != nil {
		t.Fatal(err)
	}
	balance, _ := node.GetBalance(context.Background(), addr, nil)
	nonce, _ := node.GetNonce(addr, nil)
	code, _ := node.GetCode(addr, nil)
	value, _ := node.GetStorageAt(addr, chain.Key{1}, nil)
	if balance != Gwei || nonce != 7 || len(code) != 1 || value != (chain.Word{2}) {
		t.Errorf("unexpected account state %v %v %v %v", balance, nonce, code, value)
	}
	if got := node.BlockNumber(); got != 0 {
		t.Errorf("direct modifications should not produce blocks")
	}
}

func TestNode_UnknownBlocksAndTransactionsAreReported(t *testing.T) {
	node := newTestNode(t)
	if _, err := node.BlockByNumber(ptr[uint64](1)); !errors.Is(err, ErrUnknownBlock) {
		t.Errorf("unexpected error %v", err)
	}
	if _, err := node.BlockByHash(chain.Hash{1}); !errors.Is(err, ErrUnknownBlock) {
		t.Errorf("unexpected error %v", err)
	}
	if _, err := node.GetNonce(chain.Address{}, ptr[uint64](5)); !errors.Is(err, ErrUnknownBlock) {
		t.Errorf("unexpected error %v", err)
	}
	if _, err := node.Transaction(chain.Hash{1}); !errors.Is(err, ErrUnknownTransaction) {
		t.Errorf("unexpected error %v", err)
	}
	if _, err := node.Receipt(chain.Hash{1}); !errors.Is(err, ErrUnknownTransaction) {
		t.Errorf("unexpected error %v", err)
	}
}

func TestNode_ConcurrentReadsAndWrites(t *testing.T) {
	node := newTestNode(t)
	from := sender(t, node, 0)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 20; i++ {
			node.GetBalance(context.Background(), *from, nil)
			node.Call(CallMsg{From: from, To: &chain.Address{0x12}}, nil, nil)
		}
	}()
	random := rand.New(7)
	for i := 0; i < 20; i++ {
		if _, err := node.SendTransaction(CallMsg{From: from, To: &chain.Address{0x12}, Value: chain.NewValue(random.Uint64n(1000))}); err != nil {
			t.Errorf("failed to send transaction: %v", err)
		}
	}
	<-done
	if got := node.BlockNumber(); got != 20 {
		t.Errorf("unexpected block number %d", got)
	}
}

func TestNode_StatsCoverMinedBlocks(t *testing.T) {
	node := newTestNode(t)
	if got, want := node.Stats(), (Stats{}); got != want {
		t.Errorf("unexpected stats of fresh chain, wanted %+v, got %+v", want, got)
	}
	from, to := sender(t, node, 0), &chain.Address{0x12}
	for i := 0; i < 2; i++ {
		if _, err := node.SendTransaction(CallMsg{From: from, To: to, Value: Ether}); err != nil {
			t.Fatalf("failed to send transaction: %v", err)
		}
	}
	node.Mine(1, 0)

	want := Stats{Head: 3, Blocks: 3, Transactions: 2, GasUsed: 42_000}
	if got := node.Stats(); got != want {
		t.Errorf("unexpected stats, wanted %+v, got %+v", want, got)
	}
}
