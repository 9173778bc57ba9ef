// Copyright (c) 2024 Fantom Foundation
//
// Use of this software is governed by the Business Source License included
// in the LICENSE file and at fantom.foundation/bsl11.
//
// Change Date: 2028-4-16
//
// On the date above, in accordance with the Business Source License, use of
// this software will be governed by the GNU Lesser General Public License v3.

package state

import (
	"slices"

	"github.com/Fantom-foundation/devchain/go/chain"
)

// BlockHashes resolves the hashes of past blocks for the BLOCKHASH
// instruction.
type BlockHashes func(number int64) chain.Hash

type slot struct {
	addr chain.Address
	key  chain.Key
}

// TransactionContext provides the view of a single transaction on a State.
// Modifications are applied to the state immediately and journaled, such
// that they can be rolled back to any snapshot taken within the transaction.
// Besides the world state it tracks the values committed before the
// transaction, access lists, transient storage, logs, and self-destructs.
type TransactionContext struct {
	state       *State
	revision    chain.Revision
	blockHashes BlockHashes

	undo         []func()
	committed    map[slot]chain.Word
	transient    map[slot]chain.Word
	warmAccounts map[chain.Address]struct{}
	warmSlots    map[slot]struct{}
	logs         []chain.Log
	created      map[chain.Address]struct{}
	destructed   map[chain.Address]struct{}
}

// NewTransactionContext starts a transaction on the given state. The block
// hash source may be nil, in which case all block hashes are zero.
func NewTransactionContext(state *State, revision chain.Revision, blockHashes BlockHashes) *TransactionContext {
	return &TransactionContext{
		state:        state,
		revision:     revision,
		blockHashes:  blockHashes,
		committed:    map[slot]chain.Word{},
		transient:    map[slot]chain.Word{},
		warmAccounts: map[chain.Address]struct{}{},
		warmSlots:    map[slot]struct{}{},
		created:      map[chain.Address]struct{}{},
		destructed:   map[chain.Address]struct{}{},
	}
}

func (c *TransactionContext) AccountExists(addr chain.Address) bool {
	return c.state.AccountExists(addr)
}

func (c *TransactionContext) GetBalance(addr chain.Address) chain.Value {
	return c.state.GetBalance(addr)
}

func (c *TransactionContext) SetBalance(addr chain.Address, value chain.Value) {
	original := c.state.GetBalance(addr)
	c.state.SetBalance(addr, value)
	c.undo = append(c.undo, func() { c.state.SetBalance(addr, original) })
}

func (c *TransactionContext) GetNonce(addr chain.Address) uint64 {
	return c.state.GetNonce(addr)
}

// SetNonce updates the nonce of an account. Accounts without code getting
// their first nonce are considered created by the transaction; contract
// creation always starts by setting the nonce of the new account to 1.
func (c *TransactionContext) SetNonce(addr chain.Address, nonce uint64) {
	original := c.state.GetNonce(addr)
	if original == 0 && nonce != 0 && c.state.GetCodeSize(addr) == 0 {
		if _, found := c.created[addr]; !found {
			c.created[addr] = struct{}{}
			c.undo = append(c.undo, func() { delete(c.created, addr) })
		}
	}
	c.state.SetNonce(addr, nonce)
	c.undo = append(c.undo, func() { c.state.SetNonce(addr, original) })
}

func (c *TransactionContext) GetCode(addr chain.Address) chain.Code {
	return c.state.GetCode(addr)
}

func (c *TransactionContext) GetCodeHash(addr chain.Address) chain.Hash {
	return c.state.GetCodeHash(addr)
}

func (c *TransactionContext) GetCodeSize(addr chain.Address) int {
	return c.state.GetCodeSize(addr)
}

func (c *TransactionContext) SetCode(addr chain.Address, code chain.Code) {
	original := c.state.GetCode(addr)
	c.state.SetCode(addr, code)
	c.undo = append(c.undo, func() { c.state.SetCode(addr, original) })
}

func (c *TransactionContext) GetStorage(addr chain.Address, key chain.Key) chain.Word {
	return c.state.GetStorage(addr, key)
}

func (c *TransactionContext) SetStorage(addr chain.Address, key chain.Key, value chain.Word) chain.StorageStatus {
	current := c.state.GetStorage(addr, key)
	s := slot{addr, key}
	original, found := c.committed[s]
	if !found {
		original = current
		c.committed[s] = current
	}
	c.state.SetStorage(addr, key, value)
	c.undo = append(c.undo, func() { c.state.SetStorage(addr, key, current) })
	return chain.GetStorageStatus(original, current, value)
}

func (c *TransactionContext) GetCommittedStorage(addr chain.Address, key chain.Key) chain.Word {
	if value, found := c.committed[slot{addr, key}]; found {
		return value
	}
	return c.state.GetStorage(addr, key)
}

// SelfDestruct moves the balance of addr to the beneficiary. From Cancun
// on, only accounts created by the same transaction are deleted, which
// happens in Finalize. It returns true if addr was not self-destructed
// before within this transaction.
func (c *TransactionContext) SelfDestruct(addr chain.Address, beneficiary chain.Address) bool {
	_, created := c.created[addr]
	deletes := c.revision < chain.R13_Cancun || created

	balance := c.state.GetBalance(addr)
	if beneficiary != addr {
		c.SetBalance(beneficiary, chain.Add(c.state.GetBalance(beneficiary), balance))
		c.SetBalance(addr, chain.Value{})
	} else if deletes {
		c.SetBalance(addr, chain.Value{})
	}

	if _, found := c.destructed[addr]; found {
		return false
	}
	c.destructed[addr] = struct{}{}
	c.undo = append(c.undo, func() { delete(c.destructed, addr) })
	return true
}

func (c *TransactionContext) CreateSnapshot() chain.Snapshot {
	return chain.Snapshot(len(c.undo))
}

func (c *TransactionContext) RestoreSnapshot(snapshot chain.Snapshot) {
	for len(c.undo) > int(snapshot) {
		c.undo[len(c.undo)-1]()
		c.undo = c.undo[:len(c.undo)-1]
	}
}

func (c *TransactionContext) GetTransientStorage(addr chain.Address, key chain.Key) chain.Word {
	return c.transient[slot{addr, key}]
}

func (c *TransactionContext) SetTransientStorage(addr chain.Address, key chain.Key, value chain.Word) {
	s := slot{addr, key}
	original := c.transient[s]
	c.transient[s] = value
	c.undo = append(c.undo, func() { c.transient[s] = original })
}

func (c *TransactionContext) AccessAccount(addr chain.Address) chain.AccessStatus {
	if _, found := c.warmAccounts[addr]; found {
		return chain.WarmAccess
	}
	c.warmAccounts[addr] = struct{}{}
	c.undo = append(c.undo, func() { delete(c.warmAccounts, addr) })
	return chain.ColdAccess
}

func (c *TransactionContext) AccessStorage(addr chain.Address, key chain.Key) chain.AccessStatus {
	s := slot{addr, key}
	if _, found := c.warmSlots[s]; found {
		return chain.WarmAccess
	}
	c.warmSlots[s] = struct{}{}
	c.undo = append(c.undo, func() { delete(c.warmSlots, s) })
	return chain.ColdAccess
}

// IsAddressInAccessList is true if the account was accessed before.
func (c *TransactionContext) IsAddressInAccessList(addr chain.Address) bool {
	_, found := c.warmAccounts[addr]
	return found
}

func (c *TransactionContext) EmitLog(log chain.Log) {
	size := len(c.logs)
	c.logs = append(c.logs, log)
	c.undo = append(c.undo, func() { c.logs = c.logs[:size] })
}

func (c *TransactionContext) GetLogs() []chain.Log {
	return slices.Clone(c.logs)
}

func (c *TransactionContext) GetBlockHash(number int64) chain.Hash {
	if c.blockHashes == nil {
		return chain.Hash{}
	}
	return c.blockHashes(number)
}

// Finalize ends the transaction by deleting the self-destructed accounts.
// The context must not be used afterwards.
func (c *TransactionContext) Finalize() {
	for addr := range c.destructed {
		if _, created := c.created[addr]; c.revision < chain.R13_Cancun || created {
			c.state.DeleteAccount(addr)
		}
	}
	c.undo = nil
}
