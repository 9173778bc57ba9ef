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

// Processor executes transactions. It charges fees, checks nonces, runs
// (potentially recursive) contract calls, integrates precompiled contracts,
// and creates new contracts.
type Processor interface {
	// Run executes the given transaction in the given context. Transactions
	// that can not be processed at all, e.g. due to a nonce mismatch, are
	// reported through the error result.
	Run(BlockParameters, Transaction, TransactionContext) (Receipt, error)
}

// Transaction summarizes the parameters of a transaction.
type Transaction struct {
	Sender     Address       // the sender of the transaction, paying for its execution
	Recipient  *Address      // the receiver of a transaction, nil if a new contract is to be created
	Nonce      uint64        // the nonce of the sender account
	Input      Data          // the input data for the transaction
	Value      Value         // the amount of network currency to transfer to the recipient
	GasLimit   Gas           // the maximum amount of gas that can be used by the transaction
	GasPrice   Value         // the effective price of a unit of gas for this transaction
	AccessList []AccessTuple // accounts and storage slots expected to be accessed
}

// AccessTuple lists storage slots of an account expected to be accessed.
type AccessTuple struct {
	Address Address
	Keys    []Key
}

// Receipt summarizes the result of the execution of a transaction.
type Receipt struct {
	Outcome         Outcome
	Reason          error    // the failure reason of the top-level call, if any
	Output          Data     // the output or revert data of the transaction
	ContractAddress *Address // filled if a contract was created by this transaction
	GasUsed         Gas      // gas used by the transaction after refunds
	Logs            []Log    // logs produced by the transaction
}

// Success is true if the top-level call neither reverted nor failed.
func (r Receipt) Success() bool {
	return r.Outcome == OutcomeSuccess
}
