// Copyright (c) 2024 Fantom Foundation
//
// Use of this software is governed by the Business Source License included
// in the LICENSE file and at fantom.foundation/bsl11.
//
// Change Date: 2028-4-16
//
// On the date above, in accordance with the Business Source License, use of
// this software will be governed by the GNU Lesser General Public License v3.

// Package accounts manages the signing-capable addresses of a development
// chain. Keys are derived from a BIP-39 mnemonic along the standard
// Ethereum BIP-44 path or given explicitly; further addresses may be
// impersonated without any key.
package accounts

import (
	"crypto/ecdsa"
	"fmt"
	"slices"
	"strings"

	"github.com/Fantom-foundation/devchain/go/chain"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcutil/hdkeychain"
	mapset "github.com/deckarep/golang-set/v2"
	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/tyler-smith/go-bip39"
)

// TestMnemonic is the mnemonic used by common development chains to derive
// their prefunded accounts.
const TestMnemonic = "test test test test test test test test test test test junk"

const errInvalidMnemonic = chain.ConstError("invalid mnemonic")

// Manager holds the accounts a development chain can send transactions
// from. The set of keys is fixed at creation; impersonation may change at
// any time. A Manager is safe for concurrent use.
type Manager struct {
	keys         map[chain.Address]*ecdsa.PrivateKey
	order        []chain.Address
	impersonated mapset.Set[chain.Address]
}

// New creates a manager signing with the given keys, in the given order.
func New(keys ...*ecdsa.PrivateKey) *Manager {
	m := &Manager{
		keys:         make(map[chain.Address]*ecdsa.PrivateKey, len(keys)),
		impersonated: mapset.NewSet[chain.Address](),
	}
	for _, key := range keys {
		addr := chain.Address(crypto.PubkeyToAddress(key.PublicKey))
		if _, found := m.keys[addr]; found {
			continue
		}
		m.keys[addr] = key
		m.order = append(m.order, addr)
	}
	return m
}

// FromMnemonic derives count keys from the mnemonic along the path
// m/44'/60'/0'/0/i.
func FromMnemonic(mnemonic string, count int) (*Manager, error) {
	keys, err := DeriveKeys(mnemonic, accounts.DefaultRootDerivationPath, count)
	if err != nil {
		return nil, err
	}
	return New(keys...), nil
}

// FromPrivateKeys creates a manager for hex encoded private keys, with or
// without 0x prefix.
func FromPrivateKeys(hexKeys []string) (*Manager, error) {
	keys := make([]*ecdsa.PrivateKey, 0, len(hexKeys))
	for i, hexKey := range hexKeys {
		key, err := crypto.HexToECDSA(strings.TrimPrefix(hexKey, "0x"))
		if err != nil {
			return nil, fmt.Errorf("invalid private key #%d: %w", i, err)
		}
		keys = append(keys, key)
	}
	return New(keys...), nil
}

// DeriveKeys derives count keys from the mnemonic, appending the indices
// 0..count-1 to the root path.
func DeriveKeys(mnemonic string, root accounts.DerivationPath, count int) ([]*ecdsa.PrivateKey, error) {
	seed, err := bip39.NewSeedWithErrorChecking(mnemonic, "")
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errInvalidMnemonic, err)
	}
	master, err := hdkeychain.NewMaster(seed, &chaincfg.MainNetParams)
	if err != nil {
		return nil, err
	}
	parent := master
	for _, n := range root {
		if parent, err = parent.Child(n); err != nil {
			return nil, fmt.Errorf("failed to derive %v: %w", root, err)
		}
	}
	keys := make([]*ecdsa.PrivateKey, 0, count)
	for i := 0; i < count; i++ {
		child, err := parent.Child(uint32(i))
		if err != nil {
			return nil, fmt.Errorf("failed to derive key %d: %w", i, err)
		}
		key, err := child.ECPrivKey()
		if err != nil {
			return nil, err
		}
		keys = append(keys, key.ToECDSA())
	}
	return keys, nil
}

// Accounts lists all known addresses: the key holding accounts in creation
// order followed by the impersonated ones in ascending order.
func (m *Manager) Accounts() []chain.Address {
	res := slices.Clone(m.order)

	impersonated := m.impersonated.ToSlice()
	slices.SortFunc(impersonated, func(a, b chain.Address) int {
		return strings.Compare(string(a[:]), string(b[:]))
	})
	for _, addr := range impersonated {
		if !m.hasKey(addr) {
			res = append(res, addr)
		}
	}
	return res
}

// PrivateKey returns the key of the given address, if known.
func (m *Manager) PrivateKey(addr chain.Address) (*ecdsa.PrivateKey, bool) {
	key, found := m.keys[addr]
	return key, found
}

// CanSign reports whether transactions from the given address are accepted,
// either because its key is known or because it is impersonated.
func (m *Manager) CanSign(addr chain.Address) bool {
	return m.hasKey(addr) || m.impersonated.Contains(addr)
}

// Impersonate allows sending transactions from addr without its key. It
// returns false if addr was impersonated already.
func (m *Manager) Impersonate(addr chain.Address) bool {
	return m.impersonated.Add(addr)
}

// StopImpersonating revokes a previous Impersonate. It returns false if
// addr was not impersonated.
func (m *Manager) StopImpersonating(addr chain.Address) bool {
	if !m.impersonated.Contains(addr) {
		return false
	}
	m.impersonated.Remove(addr)
	return true
}

func (m *Manager) IsImpersonated(addr chain.Address) bool {
	return m.impersonated.Contains(addr)
}

func (m *Manager) hasKey(addr chain.Address) bool {
	_, found := m.keys[addr]
	return found
}
