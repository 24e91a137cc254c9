/*
 * Copyright (c) 2026 Firefly Software Solutions Inc.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

// Package transport provides Transport implementations for the
// consensus package: an in-process Mailbox for tests and the demo
// cluster, and a TCP implementation for real multi-process clusters.
package transport

import (
	"sync"

	"github.com/firefly-oss/raft/internal/consensus"
	raerrors "github.com/firefly-oss/raft/internal/errors"
)

// Mailbox is an in-process Transport: one buffered channel per
// registered peer. Delivery between any two registered peers is FIFO
// and at-most-once, same as Go channel semantics guarantee, which is
// exactly the contract consensus.Transport requires.
type Mailbox struct {
	mu    sync.RWMutex
	boxes map[consensus.NodeID]chan consensus.Envelope
}

// NewMailbox returns an empty Mailbox.
func NewMailbox() *Mailbox {
	return &Mailbox{boxes: make(map[consensus.NodeID]chan consensus.Envelope)}
}

// Register creates (or returns the existing) inbox for id, buffered to
// absorb bursts of AppendEntries/RequestVote fan-out without blocking
// the sender.
func (m *Mailbox) Register(id consensus.NodeID) <-chan consensus.Envelope {
	m.mu.Lock()
	defer m.mu.Unlock()
	if ch, ok := m.boxes[id]; ok {
		return ch
	}
	ch := make(chan consensus.Envelope, 256)
	m.boxes[id] = ch
	return ch
}

// Send delivers env to its destination's inbox. It never blocks
// indefinitely: a full inbox means a wedged peer, reported as a
// transport error rather than stalling the sender's goroutine forever.
func (m *Mailbox) Send(env consensus.Envelope) error {
	m.mu.RLock()
	ch, ok := m.boxes[env.To]
	m.mu.RUnlock()
	if !ok {
		return raerrors.PeerUnreachable(string(env.To), nil)
	}
	select {
	case ch <- env:
		return nil
	default:
		return raerrors.NewTransportError("peer inbox full").WithDetail(string(env.To))
	}
}
