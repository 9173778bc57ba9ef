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
	"testing"

	"github.com/Fantom-foundation/devchain/go/chain"
	"go.uber.org/mock/gomock"
)

func TestProcessorRegistry_InitProcessor(t *testing.T) {
	if chain.GetProcessorFactory("floria") == nil {
		t.Fatalf("floria processor factory not found")
	}
	p, err := chain.NewProcessor("Floria", nil)
	if err != nil {
		t.Fatalf("failed to create processor: %v", err)
	}
	if _, ok := p.(*processor); !ok {
		t.Errorf("unexpected processor type %T", p)
	}
}

func TestProcessor_HandleNonce(t *testing.T) {
	ctrl := gomock.NewController(t)
	context := chain.NewMockTransactionContext(ctrl)

	context.EXPECT().GetNonce(chain.Address{1}).Return(uint64(9))
	context.EXPECT().SetNonce(chain.Address{1}, uint64(10))

	transaction := chain.Transaction{
		Sender: chain.Address{1},
		Nonce:  9,
	}
	if err := handleNonce(transaction, context); err != nil {
		t.Errorf("handleNonce returned an error: %v", err)
	}
}

func TestProcessor_NonceMismatch(t *testing.T) {
	ctrl := gomock.NewController(t)
	context := chain.NewMockTransactionContext(ctrl)

	context.EXPECT().GetNonce(chain.Address{1}).Return(uint64(5))

	transaction := chain.Transaction{
		Sender: chain.Address{1},
		Nonce:  10,
	}
	if err := handleNonce(transaction, context); err == nil {
		t.Errorf("handleNonce did not spot nonce mismatch")
	}
}

func TestProcessor_BuyGas(t *testing.T) {
	tests := map[string]struct {
		balance uint64
		value   uint64
		fails   bool
		after   uint64
	}{
		"sufficient":              {balance: 1000, after: 800},
		"sufficient with value":   {balance: 1000, value: 800, after: 800},
		"insufficient for gas":    {balance: 199, fails: true},
		"insufficient with value": {balance: 1000, value: 801, fails: true},
	}
	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			ctrl := gomock.NewController(t)
			context := chain.NewMockTransactionContext(ctrl)

			transaction := chain.Transaction{
				Sender:   chain.Address{1},
				GasLimit: 100,
				GasPrice: chain.NewValue(2),
				Value:    chain.NewValue(test.value),
			}
			context.EXPECT().GetBalance(transaction.Sender).Return(chain.NewValue(test.balance))
			if !test.fails {
				context.EXPECT().SetBalance(transaction.Sender, chain.NewValue(test.after))
			}

			err := buyGas(transaction, context)
			if test.fails != (err != nil) {
				t.Errorf("unexpected result: %v", err)
			}
		})
	}
}

func TestProcessor_SetupGasBilling(t *testing.T) {
	recipient := chain.Address{2}
	tests := map[string]struct {
		revision    chain.Revision
		transaction chain.Transaction
		want        chain.Gas
	}{
		"call": {
			chain.R13_Cancun, chain.Transaction{Recipient: &recipient}, TxGas,
		},
		"create": {
			chain.R11_Paris, chain.Transaction{Input: []byte{1}}, TxGasContractCreation + 16,
		},
		"create with init code costs": {
			chain.R12_Shanghai, chain.Transaction{Input: make([]byte, 33)}, TxGasContractCreation + 33*4 + 2*2,
		},
		"input": {
			chain.R13_Cancun, chain.Transaction{Recipient: &recipient, Input: []byte{0, 1, 2, 0}}, TxGas + 2*4 + 2*16,
		},
		"access list": {
			chain.R13_Cancun, chain.Transaction{
				Recipient: &recipient,
				AccessList: []chain.AccessTuple{
					{Address: chain.Address{1}, Keys: []chain.Key{{1}, {2}}},
					{Address: chain.Address{2}},
				},
			},
			TxGas + 2*TxAccessListAddressGas + 2*TxAccessListStorageKeyGas,
		},
	}
	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			if got := IntrinsicGas(test.revision, test.transaction); got != test.want {
				t.Errorf("unexpected intrinsic gas, wanted %d, got %d", test.want, got)
			}
		})
	}
}

func TestProcessor_RefundsAreCapped(t *testing.T) {
	tests := map[string]struct {
		revision chain.Revision
		gasLeft  chain.Gas
		refund   chain.Gas
		want     chain.Gas
	}{
		"no refund":            {chain.R13_Cancun, 0, 0, 100_000},
		"small refund":         {chain.R13_Cancun, 0, 1000, 99_000},
		"capped after London":  {chain.R10_London, 0, 50_000, 80_000},
		"capped before London": {chain.R09_Berlin, 0, 80_000, 50_000},
		"remaining gas":        {chain.R13_Cancun, 60_000, 0, 40_000},
	}
	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			transaction := chain.Transaction{GasLimit: 100_000}
			result := chain.Result{GasLeft: test.gasLeft, GasRefund: test.refund}
			if got := gasUsed(test.revision, transaction, result); got != test.want {
				t.Errorf("unexpected gas used, wanted %d, got %d", test.want, got)
			}
		})
	}
}

func TestProcessor_PayCoinbase(t *testing.T) {
	coinbase := chain.Address{0xC0}
	tests := map[string]struct {
		revision chain.Revision
		price    uint64
		baseFee  uint64
		want     uint64
	}{
		"full price before London": {chain.R09_Berlin, 10, 7, 1000},
		"tip from London":          {chain.R10_London, 10, 7, 300},
	}
	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			ctrl := gomock.NewController(t)
			context := chain.NewMockTransactionContext(ctrl)
			context.EXPECT().GetBalance(coinbase).Return(chain.NewValue(1))
			context.EXPECT().SetBalance(coinbase, chain.NewValue(1+test.want))

			params := chain.BlockParameters{Revision: test.revision, Coinbase: coinbase, BaseFee: chain.NewValue(test.baseFee)}
			payCoinbase(params, chain.Transaction{GasPrice: chain.NewValue(test.price)}, 100, context)
		})
	}
}

func TestProcessor_NoTipBelowBaseFee(t *testing.T) {
	ctrl := gomock.NewController(t)
	context := chain.NewMockTransactionContext(ctrl)
	params := chain.BlockParameters{Revision: chain.R13_Cancun, BaseFee: chain.NewValue(10)}
	payCoinbase(params, chain.Transaction{GasPrice: chain.NewValue(10)}, 100, context)
}

func TestProcessor_RejectedTransactionsLeaveStateUntouched(t *testing.T) {
	recipient := chain.Address{2}
	tests := map[string]chain.Transaction{
		"nonce mismatch": {Sender: chain.Address{1}, Recipient: &recipient, Nonce: 3, GasLimit: TxGas},
		"intrinsic gas":  {Sender: chain.Address{1}, Recipient: &recipient, GasLimit: TxGas - 1},
		"init code size": {Sender: chain.Address{1}, Input: make([]byte, MaxInitCodeSize+1), GasLimit: 1 << 30},
	}
	for name, transaction := range tests {
		t.Run(name, func(t *testing.T) {
			ctrl := gomock.NewController(t)
			context := chain.NewMockTransactionContext(ctrl)
			context.EXPECT().GetNonce(chain.Address{1}).Return(uint64(0))

			processor := newProcessor(chain.NewMockInterpreter(ctrl))
			if _, err := processor.Run(chain.BlockParameters{Revision: chain.R13_Cancun}, transaction, context); err == nil {
				t.Errorf("transaction should have been rejected")
			}
		})
	}
}
