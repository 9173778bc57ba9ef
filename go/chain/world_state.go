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

import "fmt"

// WorldState is an interface to access and manipulate the accounts of the
// simulated chain. Every account has a balance, a nonce, optional code and
// a storage. Accounts not known to the state read as empty accounts.
type WorldState interface {
	AccountExists(Address) bool

	GetBalance(Address) Value
	SetBalance(Address, Value)

	GetNonce(Address) uint64
	SetNonce(Address, uint64)

	GetCode(Address) Code
	GetCodeHash(Address) Hash
	GetCodeSize(Address) int
	SetCode(Address, Code)

	GetStorage(Address, Key) Word
	SetStorage(Address, Key, Word) StorageStatus

	// SelfDestruct zeroes balance, code and storage of addr after moving its
	// balance to the beneficiary. It returns true if addr was not destroyed
	// before within the ongoing transaction.
	SelfDestruct(addr Address, beneficiary Address) bool
}

// Address represents the 160-bit (20 bytes) address of an account.
type Address [20]byte

// Key represents the 256-bit (32 bytes) key of a storage slot.
type Key [32]byte

// Word represents an arbitrary 256-bit (32 byte) word in the EVM.
type Word [32]byte

// Value represents an amount of chain currency, typically wei.
type Value [32]byte

// Hash represents the 256-bit (32 bytes) hash of a code, a block, a
// transaction or a log topic.
type Hash [32]byte

// Code represents the byte-code of a contract.
type Code []byte

// StorageStatus describes the effect of a storage update within the current
// transaction. It determines the gas costs and refunds of SSTORE.
type StorageStatus int

// X, Y, Z are distinct non-zero values, 0 is zero.
//
// <original> -> <current> -> <new>
const (
	StorageAssigned         StorageStatus = iota
	StorageAdded                          // 0 -> 0 -> Z
	StorageDeleted                        // X -> X -> 0
	StorageModified                       // X -> X -> Z
	StorageDeletedAdded                   // X -> 0 -> Z
	StorageModifiedDeleted                // X -> Y -> 0
	StorageDeletedRestored                // X -> 0 -> X
	StorageAddedDeleted                   // 0 -> Y -> 0
	StorageModifiedRestored               // X -> Y -> X
)

var storageStatusNames = [...]string{
	StorageAssigned:         "StorageAssigned",
	StorageAdded:            "StorageAdded",
	StorageDeleted:          "StorageDeleted",
	StorageModified:         "StorageModified",
	StorageDeletedAdded:     "StorageDeletedAdded",
	StorageModifiedDeleted:  "StorageModifiedDeleted",
	StorageDeletedRestored:  "StorageDeletedRestored",
	StorageAddedDeleted:     "StorageAddedDeleted",
	StorageModifiedRestored: "StorageModifiedRestored",
}

func (s StorageStatus) String() string {
	if s >= 0 && int(s) < len(storageStatusNames) {
		return storageStatusNames[s]
	}
	return fmt.Sprintf("StorageStatus(%d)", int(s))
}

// GetStorageStatus classifies a storage update given the value committed
// before the transaction, the current value, and the new value.
func GetStorageStatus(original, current, new Word) StorageStatus {
	var zero Word
	if current == new {
		return StorageAssigned
	}
	switch {
	case original == zero && current == zero:
		return StorageAdded
	case original != zero && current == original && new == zero:
		return StorageDeleted
	case original != zero && current == original:
		return StorageModified
	case original != zero && current == zero && new == original:
		return StorageDeletedRestored
	case original != zero && current == zero:
		return StorageDeletedAdded
	case original != zero && new == zero:
		return StorageModifiedDeleted
	case original != zero && new == original:
		return StorageModifiedRestored
	case original == zero && new == zero:
		return StorageAddedDeleted
	}
	return StorageAssigned
}
