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

package consensus

// StableStore is the durability boundary named in spec.md §5: a
// peer must persist currentTerm/votedFor before replying to a vote
// request, and must persist any log append or truncate before
// replying to an AppendEntries. The module does not mandate an
// on-disk format (spec.md §9 leaves it an open question); this
// interface only fixes what must be durable and when.
type StableStore interface {
	// SaveState persists currentTerm and votedFor durably.
	SaveState(term Term, votedFor NodeID) error

	// SaveLog persists the full entry slice durably, replacing
	// whatever was stored before (a truncate-then-append is expressed
	// as a single call with the post-truncate, post-append slice).
	SaveLog(entries []Entry) error

	// Load reconstructs the last durably saved state, used on restart.
	// ok is false if nothing had ever been saved.
	Load() (term Term, votedFor NodeID, entries []Entry, ok bool, err error)
}

// MemoryStable is a StableStore that only ever lives in process
// memory. It satisfies the interface for tests and for the in-process
// demo cluster, where "durability" survives process restarts not at
// all; it exists so the Node's call sites are identical to a real
// on-disk StableStore.
type MemoryStable struct {
	term    Term
	votedFor NodeID
	entries []Entry
	saved   bool
}

// NewMemoryStable returns an empty MemoryStable.
func NewMemoryStable() *MemoryStable {
	return &MemoryStable{}
}

func (m *MemoryStable) SaveState(term Term, votedFor NodeID) error {
	m.term = term
	m.votedFor = votedFor
	m.saved = true
	return nil
}

func (m *MemoryStable) SaveLog(entries []Entry) error {
	m.entries = append([]Entry(nil), entries...)
	m.saved = true
	return nil
}

func (m *MemoryStable) Load() (Term, NodeID, []Entry, bool, error) {
	return m.term, m.votedFor, m.entries, m.saved, nil
}
