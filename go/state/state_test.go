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
	"errors"
	"testing"

	"github.com/Fantom-foundation/devchain/go/chain"
	"github.com/ethereum/go-ethereum/crypto"
	"go.uber.org/mock/gomock"
)

func TestState_UnknownAccountsAreEmptyWithoutRemote(t *testing.T) {
	state := New(nil, nil)
	addr := chain.Address{1}
	if state.AccountExists(addr) {
		t.Errorf("account should not exist")
	}
	if state.GetBalance(addr) != (chain.Value{}) || state.GetNonce(addr) != 0 || len(state.GetCode(addr)) != 0 {
		t.Errorf("account should be empty")
	}
	if state.GetStorage(addr, chain.Key{1}) != (chain.Word{}) {
		t.Errorf("storage should be empty")
	}
	if state.GetCodeHash(addr) != (chain.Hash{}) {
		t.Errorf("non-existing accounts should have the zero code hash")
	}
}

func TestState_WritesAreVisible(t *testing.T) {
	state := New(nil, nil)
	addr := chain.Address{1}
	state.SetBalance(addr, chain.NewValue(10))
	state.SetNonce(addr, 3)
	state.SetCode(addr, chain.Code{0x60, 0x00})
	state.SetStorage(addr, chain.Key{1}, chain.Word{2})

	if !state.AccountExists(addr) {
		t.Errorf("account should exist")
	}
	if got := state.GetBalance(addr); got != chain.NewValue(10) {
		t.Errorf("unexpected balance %v", got)
	}
	if got := state.GetNonce(addr); got != 3 {
		t.Errorf("unexpected nonce %v", got)
	}
	if got := state.GetCodeSize(addr); got != 2 {
		t.Errorf("unexpected code size %v", got)
	}
	if got, want := state.GetCodeHash(addr), chain.Hash(crypto.Keccak256Hash([]byte{0x60, 0x00})); got != want {
		t.Errorf("unexpected code hash %v", got)
	}
	if got := state.GetStorage(addr, chain.Key{1}); got != (chain.Word{2}) {
		t.Errorf("unexpected storage value %v", got)
	}
}

func TestState_ReadsFallThroughToRemote(t *testing.T) {
	ctrl := gomock.NewController(t)
	remote := NewMockRemote(ctrl)
	addr := chain.Address{1}

	remote.EXPECT().GetBalance(gomock.Any(), addr).Return(chain.NewValue(100), nil)
	remote.EXPECT().GetNonce(gomock.Any(), addr).Return(uint64(7), nil)
	remote.EXPECT().GetCode(gomock.Any(), addr).Return(chain.Code{1}, nil)
	remote.EXPECT().GetStorage(gomock.Any(), addr, chain.Key{1}).Return(chain.Word{5}, nil)

	state := New(remote, nil)
	if got := state.GetBalance(addr); got != chain.NewValue(100) {
		t.Errorf("unexpected balance %v", got)
	}
	if got := state.GetNonce(addr); got != 7 {
		t.Errorf("unexpected nonce %v", got)
	}
	if got := state.GetCode(addr); len(got) != 1 {
		t.Errorf("unexpected code %v", got)
	}
	if got := state.GetStorage(addr, chain.Key{1}); got != (chain.Word{5}) {
		t.Errorf("unexpected storage %v", got)
	}
	if state.Err() != nil {
		t.Errorf("unexpected error: %v", state.Err())
	}
}

func TestState_WritesDoNotReachTheRemote(t *testing.T) {
	ctrl := gomock.NewController(t)
	remote := NewMockRemote(ctrl)
	addr := chain.Address{1}

	// Writing an account loads it once, the storage is fetched lazily.
	remote.EXPECT().GetBalance(gomock.Any(), addr).Return(chain.NewValue(100), nil)
	remote.EXPECT().GetNonce(gomock.Any(), addr).Return(uint64(7), nil)
	remote.EXPECT().GetCode(gomock.Any(), addr).Return(chain.Code{1}, nil)
	remote.EXPECT().GetStorage(gomock.Any(), addr, chain.Key{2}).Return(chain.Word{9}, nil)

	state := New(remote, nil)
	state.SetBalance(addr, chain.NewValue(5))
	if got := state.GetBalance(addr); got != chain.NewValue(5) {
		t.Errorf("unexpected balance %v", got)
	}
	if got := state.GetNonce(addr); got != 7 {
		t.Errorf("unexpected nonce %v", got)
	}
	state.SetStorage(addr, chain.Key{2}, chain.Word{})
	if got := state.GetStorage(addr, chain.Key{2}); got != (chain.Word{}) {
		t.Errorf("locally cleared slot should read as zero, got %v", got)
	}
}

func TestState_DeletedAccountsHideRemoteData(t *testing.T) {
	ctrl := gomock.NewController(t)
	remote := NewMockRemote(ctrl)

	state := New(remote, nil)
	state.DeleteAccount(chain.Address{1})
	if state.AccountExists(chain.Address{1}) {
		t.Errorf("deleted account should not exist")
	}
	if state.GetStorage(chain.Address{1}, chain.Key{1}) != (chain.Word{}) {
		t.Errorf("deleted account should have empty storage")
	}
}

func TestState_RemoteErrorsAreRecorded(t *testing.T) {
	ctrl := gomock.NewController(t)
	remote := NewMockRemote(ctrl)
	injected := errors.New("injected")
	remote.EXPECT().GetBalance(gomock.Any(), gomock.Any()).Return(chain.Value{}, injected)

	state := New(remote, nil)
	if got := state.GetBalance(chain.Address{1}); got != (chain.Value{}) {
		t.Errorf("failed reads should produce zero values, got %v", got)
	}
	if !errors.Is(state.Err(), injected) {
		t.Errorf("unexpected error: %v", state.Err())
	}
	if state.Clone().Err() != nil {
		t.Errorf("errors should not be carried over to clones")
	}
}

func TestState_ViewSharesOverlayButNotErrors(t *testing.T) {
	ctrl := gomock.NewController(t)
	remote := NewMockRemote(ctrl)
	remote.EXPECT().GetNonce(gomock.Any(), chain.Address{2}).Return(uint64(0), errors.New("injected"))

	state := New(remote, nil)
	state.accounts[chain.Address{1}] = Account{Balance: chain.NewValue(5)}

	view := state.View()
	if got := view.GetBalance(chain.Address{1}); got != chain.NewValue(5) {
		t.Errorf("unexpected balance %v", got)
	}
	view.GetNonce(chain.Address{2})
	if view.Err() == nil {
		t.Errorf("view should record the failed read")
	}
	if state.Err() != nil {
		t.Errorf("failed reads on a view should not affect the state")
	}
}

func TestState_CloneIsIndependent(t *testing.T) {
	state := New(nil, nil)
	state.SetBalance(chain.Address{1}, chain.NewValue(1))
	state.SetStorage(chain.Address{1}, chain.Key{1}, chain.Word{1})

	clone := state.Clone()
	clone.SetBalance(chain.Address{1}, chain.NewValue(2))
	clone.SetStorage(chain.Address{1}, chain.Key{1}, chain.Word{2})
	clone.DeleteAccount(chain.Address{3})

	if got := state.GetBalance(chain.Address{1}); got != chain.NewValue(1) {
		t.Errorf("balance of original modified: %v", got)
	}
	if got := state.GetStorage(chain.Address{1}, chain.Key{1}); got != (chain.Word{1}) {
		t.Errorf("storage of original modified: %v", got)
	}
	if state.detached[chain.Address{3}] {
		t.Errorf("deletions leaked into original")
	}
	if diff := state.Accounts().Diff(clone.Accounts()); len(diff) != 2 {
		t.Errorf("unexpected diff %v", diff)
	}
}

func TestState_SelfDestructMovesBalanceAndDeletes(t *testing.T) {
	state := New(nil, nil)
	state.SetBalance(chain.Address{1}, chain.NewValue(10))
	state.SetCode(chain.Address{1}, chain.Code{1})
	state.SetBalance(chain.Address{2}, chain.NewValue(5))

	if !state.SelfDestruct(chain.Address{1}, chain.Address{2}) {
		t.Errorf("existing account should be reported as destructed")
	}
	if state.AccountExists(chain.Address{1}) {
		t.Errorf("account should be deleted")
	}
	if got := state.GetBalance(chain.Address{2}); got != chain.NewValue(15) {
		t.Errorf("unexpected beneficiary balance %v", got)
	}
}
