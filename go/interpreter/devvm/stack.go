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
	"sync"

	"github.com/Fantom-foundation/devchain/go/chain"
	"github.com/holiman/uint256"
)

const maxStackSize = 1024

// stack is the fixed-size word stack of a call frame. Bounds are checked
// once per instruction by the interpreter loop, not by the stack itself.
// Stacks are recycled through a pool since each one occupies 32KiB.
type stack struct {
	data [maxStackSize]uint256.Int
	size int
}

func (s *stack) push(d *uint256.Int) {
	s.data[s.size] = *d
	s.size++
}

// pushUndefined grows the stack by one and returns the new top element for
// in-place initialization.
func (s *stack) pushUndefined() *uint256.Int {
	s.size++
	return &s.data[s.size-1]
}

// pop removes the top element. The result stays valid until the next push.
func (s *stack) pop() *uint256.Int {
	s.size--
	return &s.data[s.size]
}

func (s *stack) peek() *uint256.Int {
	return &s.data[s.size-1]
}

// peekN returns the n-th element from the top, peekN(0) being the top.
func (s *stack) peekN(n int) *uint256.Int {
	return &s.data[s.size-n-1]
}

func (s *stack) len() int {
	return s.size
}

func (s *stack) swap(n int) {
	s.data[s.size-n-1], s.data[s.size-1] = s.data[s.size-1], s.data[s.size-n-1]
}

func (s *stack) dup(n int) {
	s.data[s.size] = s.data[s.size-n-1]
	s.size++
}

// words returns a copy of the stack content, bottom element first.
func (s *stack) words() []chain.Word {
	res := make([]chain.Word, s.size)
	for i := 0; i < s.size; i++ {
		res[i] = s.data[i].Bytes32()
	}
	return res
}

var stackPool = sync.Pool{
	New: func() any {
		return &stack{}
	},
}

func newStack() *stack {
	return stackPool.Get().(*stack)
}

func returnStack(s *stack) {
	s.size = 0
	stackPool.Put(s)
}
