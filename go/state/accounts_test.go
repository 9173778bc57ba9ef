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
	"testing"

	"github.com/Fantom-foundation/devchain/go/chain"
)

func TestAccounts_EqualIgnoresZeroEntries(t *testing.T) {
	a := Accounts{
		{1}: {Balance: chain.NewValue(1), Storage: Storage{{1}: {}}},
		{2}: {},
	}
	b := Accounts{
		{1}: {Balance: chain.NewValue(1)},
	}
	if !a.Equal(b) || !b.Equal(a) {
		t.Errorf("accounts should be equal, diff: %v", a.Diff(b))
	}
	b[chain.Address{1}] = Account{Balance: chain.NewValue(2)}
	if a.Equal(b) {
		t.Errorf("accounts with different balances should differ")
	}
}

func TestAccounts_CloneIsIndependent(t *testing.T) {
	original := Accounts{
		{1}: {Code: chain.Code{1, 2}, Storage: Storage{{1}: {2}}},
	}
	clone := original.Clone()
	clone[chain.Address{1}].Storage[chain.Key{1}] = chain.Word{3}
	clone[chain.Address{1}].Code[0] = 7
	clone[chain.Address{2}] = Account{Nonce: 1}

	if got := original[chain.Address{1}].Storage[chain.Key{1}]; got != (chain.Word{2}) {
		t.Errorf("storage of original modified: %v", got)
	}
	if got := original[chain.Address{1}].Code[0]; got != 1 {
		t.Errorf("code of original modified: %v", got)
	}
	if _, found := original[chain.Address{2}]; found {
		t.Errorf("accounts of original modified")
	}
}

func TestAccounts_DiffListsAllDifferences(t *testing.T) {
	a := Accounts{{1}: {Balance: chain.NewValue(1), Nonce: 1}}
	b := Accounts{{1}: {Nonce: 2}, {2}: {Code: chain.Code{1}}}
	if diff := a.Diff(b); len(diff) != 3 {
		t.Errorf("unexpected diff: %v", diff)
	}
}

func TestAccount_IsEmpty(t *testing.T) {
	tests := map[string]struct {
		account Account
		empty   bool
	}{
		"zero":         {Account{}, true},
		"storage only": {Account{Storage: Storage{{1}: {1}}}, true},
		"balance":      {Account{Balance: chain.NewValue(1)}, false},
		"nonce":        {Account{Nonce: 1}, false},
		"code":         {Account{Code: chain.Code{0}}, false},
	}
	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			if got := test.account.IsEmpty(); got != test.empty {
				t.Errorf("unexpected result, wanted %t, got %t", test.empty, got)
			}
		})
	}
}
