// Copyright (c) 2024 Fantom Foundation
//
// Use of this software is governed by the Business Source License included
// in the LICENSE file and at fantom.foundation/bsl11.
//
// Change Date: 2028-4-16
//
// On the date above, in accordance with the Business Source License, use of
// this software will be governed by the GNU Lesser General Public License v3.

package devvm

import (
	"math"

	"github.com/Fantom-foundation/devchain/go/chain"
	"github.com/holiman/uint256"
)

// maxMemoryExpansionSize is the largest memory size for which expansion
// costs still fit into a signed 64-bit gas value.
const maxMemoryExpansionSize = 0x1FFFFFFFE0

// Memory is the byte-addressable, word-aligned scratch memory of a frame.
type Memory struct {
	store       []byte
	currentCost chain.Gas
}

func NewMemory() *Memory {
	return &Memory{}
}

func (m *Memory) length() uint64 {
	return uint64(len(m.store))
}

// snapshot returns a copy of the current memory content.
func (m *Memory) snapshot() []byte {
	res := make([]byte, len(m.store))
	copy(res, m.store)
	return res
}

func toValidMemorySize(size uint64) uint64 {
	words := chain.SizeInWords(size) * 32
	if size != 0 && words < size {
		return math.MaxUint64
	}
	return words
}

// memoryCost is the total cost of a memory of the given size in bytes,
// following words*words/512 + 3*words.
func memoryCost(size uint64) chain.Gas {
	words := chain.SizeInWords(size)
	return chain.Gas(words*words/512 + 3*words)
}

// getExpansionCosts returns the extra gas needed to grow the memory to the
// given size. Sizes beyond maxMemoryExpansionSize cost more than any frame
// can ever own.
func (m *Memory) getExpansionCosts(size uint64) chain.Gas {
	if m.length() >= size {
		return 0
	}
	size = toValidMemorySize(size)
	if size > maxMemoryExpansionSize {
		return chain.Gas(math.MaxInt64)
	}
	return memoryCost(size) - m.currentCost
}

// expandMemory grows the memory to cover [offset, offset+size) and charges
// the expansion costs to the frame. Zero sized accesses never expand.
func (m *Memory) expandMemory(offset, size uint64, c *context) error {
	if size == 0 {
		return nil
	}
	needed := offset + size
	if needed < offset {
		return errGasUintOverflow
	}
	if m.length() < needed {
		if err := c.useGas(m.getExpansionCosts(needed)); err != nil {
			return err
		}
		needed = toValidMemorySize(needed)
		m.currentCost = memoryCost(needed)
		m.store = append(m.store, make([]byte, needed-m.length())...)
	}
	return nil
}

// getSlice returns a view on [offset, offset+size) backed by the memory. The
// view is invalidated by any later expansion.
func (m *Memory) getSlice(offset, size uint64, c *context) ([]byte, error) {
	if err := m.expandMemory(offset, size, c); err != nil {
		return nil, err
	}
	if size == 0 {
		return nil, nil
	}
	return m.store[offset : offset+size], nil
}

// set copies value into memory at offset, expanding as needed.
func (m *Memory) set(offset uint64, value []byte, c *context) error {
	data, err := m.getSlice(offset, uint64(len(value)), c)
	if err != nil {
		return err
	}
	copy(data, value)
	return nil
}

func (m *Memory) readWord(offset uint64, target *uint256.Int, c *context) error {
	data, err := m.getSlice(offset, 32, c)
	if err != nil {
		return err
	}
	target.SetBytes32(data)
	return nil
}
