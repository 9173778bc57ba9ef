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
	"fmt"
	"strings"
)

// Revision enumerates EVM revisions (aka. Hard-Forks).
type Revision int

const (
	R07_Istanbul Revision = iota
	R09_Berlin
	R10_London
	R11_Paris
	R12_Shanghai
	R13_Cancun
	numRevisions int = iota
)

// NewestRevision is the most recent revision supported by the chain.
const NewestRevision = R13_Cancun

var revisionNames = [numRevisions]string{
	R07_Istanbul: "Istanbul",
	R09_Berlin:   "Berlin",
	R10_London:   "London",
	R11_Paris:    "Paris",
	R12_Shanghai: "Shanghai",
	R13_Cancun:   "Cancun",
}

func (r Revision) String() string {
	if r >= 0 && int(r) < numRevisions {
		return revisionNames[r]
	}
	return fmt.Sprintf("Revision(%d)", int(r))
}

func (r Revision) MarshalText() ([]byte, error) {
	if r < 0 || int(r) >= numRevisions {
		return nil, fmt.Errorf("unsupported revision %d", int(r))
	}
	return []byte(r.String()), nil
}

func (r *Revision) UnmarshalText(data []byte) error {
	revision, err := ParseRevision(string(data))
	if err != nil {
		return err
	}
	*r = revision
	return nil
}

// ParseRevision resolves a revision name, ignoring case.
func ParseRevision(name string) (Revision, error) {
	for i, cur := range revisionNames {
		if strings.EqualFold(cur, name) {
			return Revision(i), nil
		}
	}
	return 0, fmt.Errorf("unknown revision: %q", name)
}

// ErrUnsupportedRevision is returned for runs with an unsupported Revision.
type ErrUnsupportedRevision struct {
	Revision Revision
}

func (e *ErrUnsupportedRevision) Error() string {
	return fmt.Sprintf("unsupported revision %d", e.Revision)
}
