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
	"context"
	"fmt"

	"github.com/Fantom-foundation/devchain/go/chain"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/log"
)

//go:generate mockgen -source state.go -destination state_mock.go -package state

// Remote is a read-only source of account data consulted for everything the
// local overlay does not know, typically a fork of a remote chain.
type Remote interface {
	GetBalance(ctx context.Context, addr chain.Address) (chain.Value, error)
	GetNonce(ctx context.Context, addr chain.Address) (uint64, error)
	GetCode(ctx context.Context, addr chain.Address) (chain.Code, error)
	GetStorage(ctx context.Context, addr chain.Address, key chain.Key) (chain.Word, error)
}

// State is the committed world state of a development chain. All mutations
// go to a local overlay; reads of unknown accounts and slots fall through to
// an optional Remote source. Failed remote reads are treated as empty values
// and recorded, see Err.
//
// State is not safe for concurrent use.
type State struct {
	accounts Accounts
	// detached accounts never fall back to the remote source since they were
	// destroyed locally.
	detached map[chain.Address]bool
	remote   Remote
	err      error
	log      log.Logger
}

// New creates an empty state. The remote source may be nil.
func New(remote Remote, logger log.Logger) *State {
	if logger == nil {
		logger = log.Root()
	}
	return &State{
		accounts: Accounts{},
		detached: map[chain.Address]bool{},
		remote:   remote,
		log:      logger,
	}
}

// Clone creates an independent copy of the state sharing the remote source.
// Errors recorded on the original are not carried over.
func (s *State) Clone() *State {
	detached := make(map[chain.Address]bool, len(s.detached))
	for addr := range s.detached {
		detached[addr] = true
	}
	return &State{
		accounts: s.accounts.Clone(),
		detached: detached,
		remote:   s.remote,
		log:      s.log,
	}
}

// View returns a read-only view of the state sharing its overlay. Reads on
// the view may run concurrently with other reads, but the state must not be
// modified while the view is in use. Failed remote reads are recorded on the
// view only.
func (s *State) View() *State {
	return &State{
		accounts: s.accounts,
		detached: s.detached,
		remote:   s.remote,
		log:      s.log,
	}
}

// Accounts returns a copy of the local overlay.
func (s *State) Accounts() Accounts {
	return s.accounts.Clone()
}

// Err returns the first failed remote read of this state.
func (s *State) Err() error {
	return s.err
}

func (s *State) fail(what string, addr chain.Address, err error) {
	s.log.Warn("Remote state read failed", "kind", what, "address", addr, "err", err)
	if s.err == nil {
		s.err = fmt.Errorf("failed to fetch %s of %v: %w", what, addr, err)
	}
}

func (s *State) useRemote(addr chain.Address) bool {
	return s.remote != nil && !s.detached[addr]
}

// fetch loads the account data of addr from the remote source. The storage
// is not loaded; slots are fetched individually.
func (s *State) fetch(addr chain.Address) Account {
	var res Account
	if !s.useRemote(addr) {
		return res
	}
	ctx := context.Background()
	var err error
	if res.Balance, err = s.remote.GetBalance(ctx, addr); err != nil {
		s.fail("balance", addr, err)
	}
	if res.Nonce, err = s.remote.GetNonce(ctx, addr); err != nil {
		s.fail("nonce", addr, err)
	}
	if res.Code, err = s.remote.GetCode(ctx, addr); err != nil {
		s.fail("code", addr, err)
	}
	return res
}

func (s *State) update(addr chain.Address, modify func(*Account)) {
	account, found := s.accounts[addr]
	if !found {
		account = s.fetch(addr)
	}
	modify(&account)
	s.accounts[addr] = account
}

func (s *State) AccountExists(addr chain.Address) bool {
	if account, found := s.accounts[addr]; found {
		return !account.IsEmpty()
	}
	if !s.useRemote(addr) {
		return false
	}
	account := s.fetch(addr)
	return !account.IsEmpty()
}

func (s *State) GetBalance(addr chain.Address) chain.Value {
	if account, found := s.accounts[addr]; found || !s.useRemote(addr) {
		return account.Balance
	}
	balance, err := s.remote.GetBalance(context.Background(), addr)
	if err != nil {
		s.fail("balance", addr, err)
	}
	return balance
}

func (s *State) SetBalance(addr chain.Address, value chain.Value) {
	s.update(addr, func(a *Account) { a.Balance = value })
}

func (s *State) GetNonce(addr chain.Address) uint64 {
	if account, found := s.accounts[addr]; found || !s.useRemote(addr) {
		return account.Nonce
	}
	nonce, err := s.remote.GetNonce(context.Background(), addr)
	if err != nil {
		s.fail("nonce", addr, err)
	}
	return nonce
}

func (s *State) SetNonce(addr chain.Address, nonce uint64) {
	s.update(addr, func(a *Account) { a.Nonce = nonce })
}

func (s *State) GetCode(addr chain.Address) chain.Code {
	if account, found := s.accounts[addr]; found || !s.useRemote(addr) {
		return account.Code
	}
	code, err := s.remote.GetCode(context.Background(), addr)
	if err != nil {
		s.fail("code", addr, err)
	}
	return code
}

// GetCodeHash returns the keccak hash of the code of an existing account
// and the zero hash for non-existing accounts.
func (s *State) GetCodeHash(addr chain.Address) chain.Hash {
	if !s.AccountExists(addr) {
		return chain.Hash{}
	}
	return chain.Hash(crypto.Keccak256Hash(s.GetCode(addr)))
}

func (s *State) GetCodeSize(addr chain.Address) int {
	return len(s.GetCode(addr))
}

func (s *State) SetCode(addr chain.Address, code chain.Code) {
	s.update(addr, func(a *Account) { a.Code = code })
}

func (s *State) GetStorage(addr chain.Address, key chain.Key) chain.Word {
	account, found := s.accounts[addr]
	if found {
		if value, found := account.Storage[key]; found {
			return value
		}
	}
	if !s.useRemote(addr) {
		return chain.Word{}
	}
	value, err := s.remote.GetStorage(context.Background(), addr, key)
	if err != nil {
		s.fail("storage", addr, err)
	}
	return value
}

// SetStorage updates a storage slot. The returned status only distinguishes
// the transitions relative to the current value; the transaction context
// takes the committed values into account.
func (s *State) SetStorage(addr chain.Address, key chain.Key, value chain.Word) chain.StorageStatus {
	current := s.GetStorage(addr, key)
	s.update(addr, func(a *Account) {
		if a.Storage == nil {
			a.Storage = Storage{}
		}
		a.Storage[key] = value
	})
	return chain.GetStorageStatus(current, current, value)
}

// SelfDestruct moves the balance of addr to the beneficiary and deletes the
// account right away.
func (s *State) SelfDestruct(addr chain.Address, beneficiary chain.Address) bool {
	balance := s.GetBalance(addr)
	if beneficiary != addr {
		s.SetBalance(beneficiary, chain.Add(s.GetBalance(beneficiary), balance))
	}
	existed := s.AccountExists(addr)
	s.DeleteAccount(addr)
	return existed
}

// DeleteAccount removes an account including all of its storage. Remote
// data of the account is no longer visible afterwards.
func (s *State) DeleteAccount(addr chain.Address) {
	delete(s.accounts, addr)
	s.detached[addr] = true
}
