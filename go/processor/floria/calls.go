// Copyright (c) 2024 Fantom Foundation
//
// Use of this software is governed by the Business Source License included
// in the LICENSE file and at fantom.foundation/bsl11.
//
// Change Date: 2028-4-16
//
// On the date above, in accordance with the Business Source License, use of
// this software will be governed by the GNU Lesser General Public License v3.

package floria

import (
	"github.com/Fantom-foundation/devchain/go/chain"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

func createAddress(
	kind chain.CallKind,
	sender chain.Address,
	nonce uint64,
	salt chain.Hash,
	initHash chain.Hash,
) chain.Address {
	if kind == chain.Create {
		return chain.Address(crypto.CreateAddress(common.Address(sender), nonce))
	}
	return chain.Address(crypto.CreateAddress2(common.Address(sender), common.Hash(salt), initHash[:]))
}

// canTransferValue checks that the sender can afford the transfer and that
// the recipient balance does not overflow. A nil recipient skips the latter.
func canTransferValue(
	context chain.WorldState,
	value chain.Value,
	sender chain.Address,
	recipient *chain.Address,
) bool {
	if value == (chain.Value{}) {
		return true
	}
	if context.GetBalance(sender).Cmp(value) < 0 {
		return false
	}
	if recipient == nil || sender == *recipient {
		return true
	}
	receiverBalance := context.GetBalance(*recipient)
	updated := chain.Add(receiverBalance, value)
	return updated.Cmp(receiverBalance) >= 0
}

// transferValue moves value from sender to recipient. Only to be called
// after canTransferValue.
func transferValue(
	context chain.WorldState,
	value chain.Value,
	sender chain.Address,
	recipient chain.Address,
) {
	if value == (chain.Value{}) || sender == recipient {
		return
	}
	context.SetBalance(sender, chain.Sub(context.GetBalance(sender), value))
	context.SetBalance(recipient, chain.Add(context.GetBalance(recipient), value))
}

func incrementNonce(context chain.WorldState, address chain.Address) error {
	nonce := context.GetNonce(address)
	if nonce+1 < nonce {
		return errNonceOverflow
	}
	context.SetNonce(address, nonce+1)
	return nil
}
