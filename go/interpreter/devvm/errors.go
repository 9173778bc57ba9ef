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
	"errors"

	"github.com/Fantom-foundation/devchain/go/chain"
)

const (
	errGasUintOverflow        = chain.ConstError("gas uint64 overflow")
	errInvalidJump            = chain.ConstError("invalid jump destination")
	errInvalidOpCode          = chain.ConstError("invalid op-code")
	errInvalidRevision        = chain.ConstError("instruction not available in revision")
	errOutOfGas               = chain.ConstError("out of gas")
	errOverflow               = chain.ConstError("integer overflow")
	errReturnDataOutOfBounds  = chain.ConstError("return data out of bounds")
	errStackOverflow          = chain.ConstError("stack overflow")
	errStackUnderflow         = chain.ConstError("stack underflow")
	errStaticContextViolation = chain.ConstError("write protection")
	errInitCodeTooLarge       = chain.ConstError("init code larger than allowed")
	errSstoreSentry           = chain.ConstError("not enough gas for reentrancy sentry")
)

// IsOutOfGas reports whether a failure reason is a gas exhaustion, including
// the SSTORE reentrancy sentry.
func IsOutOfGas(err error) bool {
	return errors.Is(err, errOutOfGas) || errors.Is(err, errSstoreSentry)
}
