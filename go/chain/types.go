// Copyright (c) 2024 Fantom Foundation
//
// Use of this software is governed by the Business Source License included
// in the LICENSE file and at fantom.foundation/bsl11.
//
// Change Date: 2028-4-16
//
// On the date above, in accordance with the Business Source License, use of
// this software will be governed by the GNU Lesser General Public License v3.

package chain

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/holiman/uint256"
)

// ConstError is an error type usable for constant error values.
type ConstError string

func (e ConstError) Error() string {
	return string(e)
}

func (a Address) String() string {
	return common.Address(a).Hex()
}

func (a Address) MarshalText() ([]byte, error) {
	return hexutil.Bytes(a[:]).MarshalText()
}

func (a *Address) UnmarshalText(data []byte) error {
	return hexutil.UnmarshalFixedText("Address", data, a[:])
}

func (k Key) String() string {
	return hexutil.Encode(k[:])
}

func (k Key) MarshalText() ([]byte, error) {
	return hexutil.Bytes(k[:]).MarshalText()
}

func (k *Key) UnmarshalText(data []byte) error {
	return hexutil.UnmarshalFixedText("Key", data, k[:])
}

func (w Word) String() string {
	return hexutil.Encode(w[:])
}

func (w Word) MarshalText() ([]byte, error) {
	return hexutil.Bytes(w[:]).MarshalText()
}

func (w *Word) UnmarshalText(data []byte) error {
	return hexutil.UnmarshalFixedText("Word", data, w[:])
}

func (h Hash) String() string {
	return hexutil.Encode(h[:])
}

func (h Hash) MarshalText() ([]byte, error) {
	return hexutil.Bytes(h[:]).MarshalText()
}

func (h *Hash) UnmarshalText(data []byte) error {
	return hexutil.UnmarshalFixedText("Hash", data, h[:])
}

// NewValue creates a Value from up to 4 uint64 arguments given from the most
// to the least significant. No argument results in zero.
func NewValue(args ...uint64) (result Value) {
	if len(args) > 4 {
		panic("too many arguments")
	}
	offset := 4 - len(args)
	for i, arg := range args {
		start := (offset + i) * 8
		binary.BigEndian.PutUint64(result[start:start+8], arg)
	}
	return
}

// ValueFromUint256 converts a *uint256.Int to a Value; nil is zero.
func ValueFromUint256(value *uint256.Int) (result Value) {
	if value == nil {
		return result
	}
	return value.Bytes32()
}

// ValueFromBig converts a big integer into a Value. Negative numbers and
// numbers exceeding 256 bits are rejected.
func ValueFromBig(value *big.Int) (Value, error) {
	if value == nil {
		return Value{}, nil
	}
	u, overflow := uint256.FromBig(value)
	if overflow || value.Sign() < 0 {
		return Value{}, fmt.Errorf("value out of range: %v", value)
	}
	return u.Bytes32(), nil
}

func (v Value) ToBig() *big.Int {
	return new(big.Int).SetBytes(v[:])
}

func (v Value) ToUint256() *uint256.Int {
	return new(uint256.Int).SetBytes32(v[:])
}

func (v Value) IsZero() bool {
	return v == Value{}
}

func (v Value) Cmp(o Value) int {
	return bytes.Compare(v[:], o[:])
}

func (v Value) String() string {
	return v.ToUint256().Dec()
}

// MarshalText encodes values as hex quantities, the JSON-RPC convention.
func (v Value) MarshalText() ([]byte, error) {
	return []byte(v.ToUint256().Hex()), nil
}

func (v *Value) UnmarshalText(data []byte) error {
	u, err := uint256.FromHex(string(data))
	if err != nil {
		return fmt.Errorf("invalid value %q: %w", data, err)
	}
	*v = u.Bytes32()
	return nil
}

// Add returns a+b, wrapping around on overflow.
func Add(a, b Value) Value {
	return ValueFromUint256(new(uint256.Int).Add(a.ToUint256(), b.ToUint256()))
}

// Sub returns a-b, wrapping around on underflow.
func Sub(a, b Value) Value {
	return ValueFromUint256(new(uint256.Int).Sub(a.ToUint256(), b.ToUint256()))
}

// Scale returns v*s, wrapping around on overflow.
func (v Value) Scale(s uint64) Value {
	return ValueFromUint256(new(uint256.Int).Mul(v.ToUint256(), uint256.NewInt(s)))
}

// SizeInWords returns the number of 32-byte words required to store size
// bytes, saturating instead of overflowing.
func SizeInWords(size uint64) uint64 {
	if size > ^uint64(0)-31 {
		return ^uint64(0)/32 + 1
	}
	return (size + 31) / 32
}
