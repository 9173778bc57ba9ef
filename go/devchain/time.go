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
	"fmt"
	"time"
)

// timeControl determines the timestamps of new blocks. By default blocks
// are stamped with the current time shifted by an offset, and timestamps
// strictly increase.
type timeControl struct {
	// offset is added to the wall clock, in seconds.
	offset int64
	// fixed, if set, is the timestamp of the next block.
	fixed *uint64
	// interval, if set, is the distance between consecutive blocks.
	interval *uint64
}

func (t *timeControl) next(previous uint64, now time.Time) uint64 {
	if t.fixed != nil {
		return *t.fixed
	}
	if t.interval != nil {
		return previous + *t.interval
	}
	next := now.Unix() + t.offset
	if next <= int64(previous) {
		return previous + 1
	}
	return uint64(next)
}

// mined updates the control after a block with the given timestamp was
// produced. Later blocks continue from that point in time.
func (t *timeControl) mined(timestamp uint64, now time.Time) {
	if t.fixed != nil {
		t.offset = int64(timestamp) - now.Unix()
		t.fixed = nil
	}
}

// IncreaseTime moves the clock of the chain forward by the given number of
// seconds. It returns the total adjustment in seconds.
func (n *Node) IncreaseTime(seconds uint64) int64 {
	n.mutex.Lock()
	defer n.mutex.Unlock()
	n.time.offset += int64(seconds)
	return n.time.offset
}

// SetNextBlockTimestamp fixes the timestamp of the next block, which must
// be later than the timestamp of the latest block.
func (n *Node) SetNextBlockTimestamp(timestamp uint64) error {
	n.mutex.Lock()
	defer n.mutex.Unlock()
	if previous := n.head().Timestamp; timestamp <= previous {
		return fmt.Errorf("timestamp %d is lower than or equal to previous block's timestamp %d", timestamp, previous)
	}
	n.time.fixed = &timestamp
	return nil
}

// SetBlockTimestampInterval makes the timestamps of consecutive blocks
// differ by the given number of seconds, independent of the wall clock.
func (n *Node) SetBlockTimestampInterval(seconds uint64) {
	n.mutex.Lock()
	defer n.mutex.Unlock()
	n.time.interval = &seconds
}

// RemoveBlockTimestampInterval restores wall clock based timestamps. It
// returns false if no interval was set.
func (n *Node) RemoveBlockTimestampInterval() bool {
	n.mutex.Lock()
	defer n.mutex.Unlock()
	removed := n.time.interval != nil
	n.time.interval = nil
	return removed
}
