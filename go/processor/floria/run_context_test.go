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

func newTestRunContext(ctrl *gomock.Controller, revision chain.Revision) (runContext, *chain.MockTransactionContext, *chain.MockInterpreter) {
	context := chain.NewMockTransactionContext(ctrl)
	interpreter := chain.NewMockInterpreter(ctrl)
	return runContext{
		TransactionContext: context,
		interpreter:        interpreter,
		blockParameters:    chain.BlockParameters{Revision: revision},
	}, context, interpreter
}

func TestCalls_InterpreterResultIsHandledCorrectly(t *testing.T) {
	tests := map[string]struct {
		result   chain.Result
		success  bool
		gasLeft  chain.Gas
		refund   chain.Gas
		output   string
		restored bool
	}{
		"successful": {
			result:  chain.Result{Outcome: chain.OutcomeSuccess, GasLeft: 400, GasRefund: 20, Output: []byte("some output")},
			success: true,
			gasLeft: 400,
			refund:  20,
			output:  "some output",
		},
		"reverted": {
			result:   chain.Result{Outcome: chain.OutcomeRevert, GasLeft: 400, GasRefund: 20, Output: []byte("reason")},
			gasLeft:  400,
			output:   "reason",
			restored: true,
		},
		"failed": {
			result:   chain.Result{Outcome: chain.OutcomeFailure, GasLeft: 400, GasRefund: 20},
			restored: true,
		},
	}

	params := chain.CallParameters{
		Sender:    chain.Address{1},
		Recipient: chain.Address{2},
		Gas:       1000,
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			ctrl := gomock.NewController(t)
			runContext, context, interpreter := newTestRunContext(ctrl, chain.R07_Istanbul)

			context.EXPECT().GetCodeHash(params.Recipient).Return(chain.Hash{})
			context.EXPECT().GetCode(params.Recipient).Return(chain.Code{byte(0)})
			context.EXPECT().CreateSnapshot().Return(chain.Snapshot(3))
			if test.restored {
				context.EXPECT().RestoreSnapshot(chain.Snapshot(3))
			}
			interpreter.EXPECT().Run(gomock.Any()).Return(test.result, nil)

			result, err := runContext.Call(chain.Call, params)
			if err != nil {
				t.Fatalf("Call returned an unexpected error: %v", err)
			}
			if result.Success != test.success {
				t.Errorf("unexpected success, wanted %t, got %t", test.success, result.Success)
			}
			if result.GasLeft != test.gasLeft {
				t.Errorf("unexpected gas left, wanted %d, got %d", test.gasLeft, result.GasLeft)
			}
			if result.GasRefund != test.refund {
				t.Errorf("unexpected refund, wanted %d, got %d", test.refund, result.GasRefund)
			}
			if string(result.Output) != test.output {
				t.Errorf("unexpected output, wanted %q, got %q", test.output, result.Output)
			}
		})
	}
}

func TestCalls_NestedFramesSeeIncreasedDepthAndStaticFlag(t *testing.T) {
	ctrl := gomock.NewController(t)
	rc, context, interpreter := newTestRunContext(ctrl, chain.R07_Istanbul)
	rc.depth = 5

	context.EXPECT().GetCodeHash(gomock.Any()).Return(chain.Hash{})
	context.EXPECT().GetCode(gomock.Any()).Return(chain.Code{})
	context.EXPECT().CreateSnapshot()
	interpreter.EXPECT().Run(gomock.Any()).DoAndReturn(func(params chain.Parameters) (chain.Result, error) {
		if params.Depth != 5 {
			t.Errorf("unexpected depth, wanted 5, got %d", params.Depth)
		}
		if !params.Static {
			t.Errorf("static calls should run in a static context")
		}
		nested, ok := params.Context.(runContext)
		if !ok || nested.depth != 6 || !nested.static {
			t.Errorf("unexpected nested run context %+v", params.Context)
		}
		return chain.Result{Outcome: chain.OutcomeSuccess}, nil
	})

	if _, err := rc.Call(chain.StaticCall, chain.CallParameters{Recipient: chain.Address{2}}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rc.depth != 5 || rc.static {
		t.Errorf("the caller's run context must not be modified")
	}
}

func TestCalls_ExceedingTheMaximumDepthReturnsTheGas(t *testing.T) {
	for _, kind := range []chain.CallKind{chain.Call, chain.StaticCall, chain.DelegateCall, chain.CallCode, chain.Create, chain.Create2} {
		t.Run(kind.String(), func(t *testing.T) {
			ctrl := gomock.NewController(t)
			runContext, _, _ := newTestRunContext(ctrl, chain.R13_Cancun)
			runContext.depth = MaxRecursiveDepth + 1

			result, err := runContext.Call(kind, chain.CallParameters{Gas: 1234})
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if result.Success || result.GasLeft != 1234 {
				t.Errorf("unexpected result %+v", result)
			}
		})
	}
}

func TestCalls_TransferValueInCall(t *testing.T) {
	ctrl := gomock.NewController(t)
	runContext, context, interpreter := newTestRunContext(ctrl, chain.R07_Istanbul)

	params := chain.CallParameters{
		Sender:    chain.Address{1},
		Recipient: chain.Address{2},
		Value:     chain.NewValue(10),
		Gas:       1000,
	}

	context.EXPECT().GetCodeHash(params.Recipient).Return(chain.Hash{})
	context.EXPECT().GetCode(params.Recipient).Return(chain.Code{})
	context.EXPECT().CreateSnapshot()

	context.EXPECT().GetBalance(params.Sender).Return(chain.NewValue(100)).Times(2)
	context.EXPECT().GetBalance(params.Recipient).Return(chain.NewValue(0)).Times(2)
	context.EXPECT().SetBalance(params.Sender, chain.NewValue(90))
	context.EXPECT().SetBalance(params.Recipient, chain.NewValue(10))

	interpreter.EXPECT().Run(gomock.Any()).Return(chain.Result{Outcome: chain.OutcomeSuccess}, nil)

	if _, err := runContext.Call(chain.Call, params); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestCalls_InsufficientBalanceFailsWithoutConsumingGas(t *testing.T) {
	ctrl := gomock.NewController(t)
	runContext, context, _ := newTestRunContext(ctrl, chain.R07_Istanbul)

	context.EXPECT().GetBalance(chain.Address{1}).Return(chain.NewValue(5))

	result, err := runContext.Call(chain.Call, chain.CallParameters{
		Sender:    chain.Address{1},
		Recipient: chain.Address{2},
		Value:     chain.NewValue(10),
		Gas:       1000,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Success || result.GasLeft != 1000 {
		t.Errorf("unexpected result %+v", result)
	}
}

func TestCalls_CallsToNonExistingAccountsAreSkippedFromBerlin(t *testing.T) {
	ctrl := gomock.NewController(t)
	runContext, context, _ := newTestRunContext(ctrl, chain.R09_Berlin)

	context.EXPECT().AccountExists(chain.Address{2}).Return(false)

	result, err := runContext.Call(chain.Call, chain.CallParameters{Recipient: chain.Address{2}, Gas: 1000})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.Success || result.GasLeft != 1000 {
		t.Errorf("unexpected result %+v", result)
	}
}

func TestCalls_PrecompiledContractsAreRunWithoutInterpreter(t *testing.T) {
	ctrl := gomock.NewController(t)
	runContext, context, _ := newTestRunContext(ctrl, chain.R13_Cancun)
	identity := chain.Address{19: 0x04}

	context.EXPECT().CreateSnapshot()

	result, err := runContext.Call(chain.StaticCall, chain.CallParameters{
		Recipient: identity,
		Input:     []byte("hello"),
		Gas:       1000,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// the identity contract costs 15 + 3 per word
	if !result.Success || string(result.Output) != "hello" || result.GasLeft != 1000-18 {
		t.Errorf("unexpected result %+v", result)
	}
}

func TestCalls_PrecompiledContractOutOfGasConsumesAllGas(t *testing.T) {
	ctrl := gomock.NewController(t)
	runContext, context, _ := newTestRunContext(ctrl, chain.R13_Cancun)

	context.EXPECT().CreateSnapshot().Return(chain.Snapshot(1))
	context.EXPECT().RestoreSnapshot(chain.Snapshot(1))

	result, err := runContext.Call(chain.StaticCall, chain.CallParameters{
		Recipient: chain.Address{19: 0x04},
		Input:     []byte("hello"),
		Gas:       10,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Success || result.GasLeft != 0 {
		t.Errorf("unexpected result %+v", result)
	}
}

func TestCreate_StoresReturnedCodeAndChargesDeposit(t *testing.T) {
	ctrl := gomock.NewController(t)
	runContext, context, interpreter := newTestRunContext(ctrl, chain.R13_Cancun)

	sender := chain.Address{1}
	created := createAddress(chain.Create, sender, 4, chain.Hash{}, chain.Hash{})

	context.EXPECT().GetNonce(sender).Return(uint64(4))
	context.EXPECT().SetNonce(sender, uint64(5))
	context.EXPECT().GetNonce(sender).Return(uint64(5))
	context.EXPECT().AccessAccount(created)
	context.EXPECT().GetNonce(created).Return(uint64(0))
	context.EXPECT().GetCodeHash(created).Return(chain.Hash{})
	context.EXPECT().CreateSnapshot()
	context.EXPECT().SetNonce(created, uint64(1))
	context.EXPECT().SetCode(created, chain.Code{1, 2, 3})
	interpreter.EXPECT().Run(gomock.Any()).Return(chain.Result{
		Outcome: chain.OutcomeSuccess,
		Output:  []byte{1, 2, 3},
		GasLeft: 5000,
	}, nil)

	result, err := runContext.Call(chain.Create, chain.CallParameters{
		Sender: sender,
		Input:  []byte{0x60},
		Gas:    10000,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.Success || result.CreatedAddress != created {
		t.Errorf("unexpected result %+v", result)
	}
	if want := chain.Gas(5000 - 3*createGasCostPerByte); result.GasLeft != want {
		t.Errorf("unexpected gas left, wanted %d, got %d", want, result.GasLeft)
	}
}

func TestCreate_AddressCollisionConsumesAllGas(t *testing.T) {
	ctrl := gomock.NewController(t)
	runContext, context, _ := newTestRunContext(ctrl, chain.R07_Istanbul)

	sender := chain.Address{1}
	created := createAddress(chain.Create, sender, 0, chain.Hash{}, chain.Hash{})

	context.EXPECT().GetNonce(sender).Return(uint64(0))
	context.EXPECT().SetNonce(sender, uint64(1))
	context.EXPECT().GetNonce(sender).Return(uint64(1))
	context.EXPECT().GetNonce(created).Return(uint64(1))

	result, err := runContext.Call(chain.Create, chain.CallParameters{Sender: sender, Gas: 1000})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Success || result.GasLeft != 0 || result.CreatedAddress != (chain.Address{}) {
		t.Errorf("unexpected result %+v", result)
	}
}

func TestCreate_DeployedCodeChecks(t *testing.T) {
	tests := map[string]struct {
		revision chain.Revision
		code     chain.Data
		gas      chain.Gas
		want     error
	}{
		"empty":              {chain.R13_Cancun, nil, 0, nil},
		"fits":               {chain.R13_Cancun, make(chain.Data, 10), 2000, nil},
		"out of gas":         {chain.R13_Cancun, make(chain.Data, 10), 1999, errCodeStoreOutOfGas},
		"too large":          {chain.R13_Cancun, make(chain.Data, maxCodeSize+1), 1 << 30, errMaxCodeSizeExceeded},
		"0xEF before London": {chain.R09_Berlin, chain.Data{0xEF}, 200, nil},
		"0xEF from London":   {chain.R10_London, chain.Data{0xEF}, 200, errInvalidCodePrefix},
	}
	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			if got := checkDeployedCode(test.revision, test.code, test.gas); got != test.want {
				t.Errorf("unexpected result, wanted %v, got %v", test.want, got)
			}
		})
	}
}

func TestCreateAddress_MatchesKnownAddresses(t *testing.T) {
	sender := chain.Address{0xf3, 0x9f, 0xd6, 0xe5, 0x1a, 0xad, 0x88, 0xf6, 0xf4, 0xce, 0x6a, 0xb8, 0x82, 0x72, 0x79, 0xcf, 0xff, 0xb9, 0x22, 0x66}
	want := "0x5FbDB2315678afecb367f032d93F642f64180aa3"
	got := createAddress(chain.Create, sender, 0, chain.Hash{}, chain.Hash{})
	if got.String() != want {
		t.Errorf("unexpected address, wanted %s, got %s", want, got)
	}
}
