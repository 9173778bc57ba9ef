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
	"math/big"
	"testing"

	"github.com/Fantom-foundation/devchain/go/chain"
	"github.com/Fantom-foundation/devchain/go/fork"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"go.uber.org/mock/gomock"
)

func newForkedTestNode(t *testing.T, client fork.Client, header *types.Header) *Node {
	t.Helper()
	number := header.Number.Uint64()
	source, err := fork.NewContext(context.Background(), client, fork.Config{
		URL:         "http://localhost:8545",
		BlockNumber: &number,
	}, nil)
	if err != nil {
		t.Fatalf("failed to create fork: %v", err)
	}
	config := DefaultConfig()
	config.AccountCount = 0
	node, err := NewWithFork(context.Background(), config, source, nil)
	if err != nil {
		t.Fatalf("failed to create forked node: %v", err)
	}
	return node
}

func forkHeader() *types.Header {
	return &types.Header{
		Number:     big.NewInt(100),
		ParentHash: common.Hash{0x99},
		Time:       5000,
		BaseFee:    big.NewInt(7),
		Difficulty: big.NewInt(0),
	}
}

func TestNode_ForkContinuesRemoteChain(t *testing.T) {
	ctrl := gomock.NewController(t)
	client := fork.NewMockClient(ctrl)
	header := forkHeader()
	client.EXPECT().HeaderByNumber(gomock.Any(), big.NewInt(100)).Return(header, nil).Times(2)

	node := newForkedTestNode(t, client, header)
	if got := node.BlockNumber(); got != 100 {
		t.Errorf("unexpected block number %d", got)
	}
	genesis, err := node.BlockByNumber(nil)
	if err != nil {
		t.Fatal(err)
	}
	if genesis.Hash != chain.Hash(header.Hash()) {
		t.Errorf("unexpected fork block hash %v", genesis.Hash)
	}
	if genesis.Timestamp != 5000 || genesis.BaseFee != chain.NewValue(7) {
		t.Errorf("fork block parameters not adopted: %d, %v", genesis.Timestamp, genesis.BaseFee)
	}

	node.Mine(1, 0)
	block, err := node.BlockByNumber(nil)
	if err != nil {
		t.Fatal(err)
	}
	if block.Number != 101 || block.ParentHash != genesis.Hash {
		t.Errorf("mined block does not continue the fork: %d, %v", block.Number, block.ParentHash)
	}
	if got := node.GetBlockHash(100); got != genesis.Hash {
		t.Errorf("unexpected hash of fork block %v", got)
	}
}

func TestNode_ForkReadsRemoteStateOnce(t *testing.T) {
	ctrl := gomock.NewController(t)
	client := fork.NewMockClient(ctrl)
	header := forkHeader()
	addr := chain.Address{0x12}
	client.EXPECT().HeaderByNumber(gomock.Any(), big.NewInt(100)).Return(header, nil).AnyTimes()
	client.EXPECT().BalanceAt(gomock.Any(), common.Address(addr), big.NewInt(100)).Return(big.NewInt(1234), nil)

	node := newForkedTestNode(t, client, header)
	for i := 0; i < 2; i++ {
		balance, err := node.GetBalance(context.Background(), addr, nil)
		if err != nil {
			t.Fatalf("failed to get balance: %v", err)
		}
		if balance != chain.NewValue(1234) {
			t.Errorf("unexpected balance %v", balance)
		}
	}

	// local modifications shadow the remote state
	client.EXPECT().NonceAt(gomock.Any(), common.Address(addr), big.NewInt(100)).Return(uint64(3), nil)
	client.EXPECT().CodeAt(gomock.Any(), common.Address(addr), big.NewInt(100)).Return(nil, nil)
	if err := node.SetBalance(addr, chain.NewValue(1)); err != nil {
		t.Fatal(err)
	}
	if balance, _ := node.GetBalance(context.Background(), addr, nil); balance != chain.NewValue(1) {
		t.Errorf("unexpected balance after modification %v", balance)
	}
	if nonce, _ := node.GetNonce(addr, nil); nonce != 3 {
		t.Errorf("unexpected nonce after modification %d", nonce)
	}
}

func TestNode_ForkHistoricalBalanceUsesArchive(t *testing.T) {
	ctrl := gomock.NewController(t)
	client := fork.NewMockClient(ctrl)
	header := forkHeader()
	addr := chain.Address{0x12}
	client.EXPECT().HeaderByNumber(gomock.Any(), gomock.Any()).Return(header, nil).AnyTimes()
	client.EXPECT().BalanceAt(gomock.Any(), common.Address(addr), big.NewInt(50)).Return(big.NewInt(5), nil)

	node := newForkedTestNode(t, client, header)
	balance, err := node.GetBalance(context.Background(), addr, ptr[uint64](50))
	if err != nil {
		t.Fatalf("failed to get historical balance: %v", err)
	}
	if balance != chain.NewValue(5) {
		t.Errorf("unexpected balance %v", balance)
	}
	if _, err := node.GetNonce(addr, ptr[uint64](50)); !errors.Is(err, ErrHistoricalState) {
		t.Errorf("unexpected error for historical nonce: %v", err)
	}
}

func TestNode_ForkFailureIsReported(t *testing.T) {
	ctrl := gomock.NewController(t)
	client := fork.NewMockClient(ctrl)
	client.EXPECT().HeaderByNumber(gomock.Any(), gomock.Any()).Return(nil, errors.New("unreachable"))

	number := uint64(100)
	source, err := fork.NewContext(context.Background(), client, fork.Config{BlockNumber: &number}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := NewWithFork(context.Background(), DefaultConfig(), source, nil); err == nil {
		t.Errorf("expected fork failure to be reported")
	}
}
