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

import "golang.org/x/crypto/blake2b"

// Log is the replicated log plus the bookkeeping a leader needs per
// follower (nextIndex, matchIndex) and the two indices that track
// state-machine progress (commitIndex, lastApplied).
//
// Indices are 1-based and dense: entries[0] is an unused sentinel with
// Term 0, matching the conventional "index 0, term 0" base case used
// by the prefix-match check. Once an entry is committed it is never
// mutated or removed; only uncommitted suffixes are ever truncated.
type Log struct {
	entries     []Entry
	commitIndex uint64
	lastApplied uint64
	nextIndex   map[NodeID]uint64
	matchIndex  map[NodeID]uint64
}

// NewLog returns an empty log with only the index-0 sentinel.
func NewLog() *Log {
	return &Log{
		entries:    []Entry{{Term: 0, Index: 0}},
		nextIndex:  make(map[NodeID]uint64),
		matchIndex: make(map[NodeID]uint64),
	}
}

// LastIndex returns the index of the most recent entry (0 if empty).
func (l *Log) LastIndex() uint64 {
	return l.entries[len(l.entries)-1].Index
}

// LastTerm returns the term of the most recent entry (0 if empty).
func (l *Log) LastTerm() Term {
	return l.entries[len(l.entries)-1].Term
}

// TermOf returns the term stored at index, or 0 if index is out of
// range. Index 0 always returns term 0.
func (l *Log) TermOf(index uint64) Term {
	if index > l.LastIndex() {
		return 0
	}
	return l.entries[index].Term
}

// HasEntryAt reports whether the log holds an entry at index whose
// term equals term. This is the prefix-match primitive the follower
// consistency check is built on (spec.md §4.3 step 1).
func (l *Log) HasEntryAt(index uint64, term Term) bool {
	if index > l.LastIndex() {
		return false
	}
	return l.entries[index].Term == term
}

// Get returns the entry at index, if present.
func (l *Log) Get(index uint64) (Entry, bool) {
	if index == 0 || index > l.LastIndex() {
		return Entry{}, false
	}
	return l.entries[index], true
}

// EntriesFrom returns a copy of every entry from index to the end,
// for a leader to ship in an AppendEntries.
func (l *Log) EntriesFrom(index uint64) []Entry {
	if index > l.LastIndex() {
		return nil
	}
	if index == 0 {
		index = 1
	}
	out := make([]Entry, len(l.entries)-int(index))
	copy(out, l.entries[index:])
	return out
}

// Append appends a leader-originated entry (command not yet carrying a
// term/index/checksum) and returns its new index. The entry's checksum
// is computed here, never trusted from the caller, since the leader is
// the origin of the bytes.
func (l *Log) Append(term Term, command []byte, client *ClientTag) uint64 {
	index := l.LastIndex() + 1
	e := Entry{
		Term:     term,
		Index:    index,
		Command:  command,
		Client:   client,
		Checksum: blake2b.Sum256(command),
	}
	l.entries = append(l.entries, e)
	return index
}

// VerifyChecksum reports whether entry's Command matches its carried
// Checksum, independent of term/index bookkeeping (SPEC_FULL.md §3).
func VerifyChecksum(e Entry) bool {
	return blake2b.Sum256(e.Command) == e.Checksum
}

// AppendReplicated implements the follower side of AppendEntries: it
// truncates any conflicting suffix starting at prevIndex+1 and appends
// the given entries, per the Raft §5.3 conflict-resolution rule. An
// entry already present with a matching term is left untouched rather
// than rewritten, since committed entries must never be mutated.
func (l *Log) AppendReplicated(prevIndex uint64, entries []Entry) {
	for i, e := range entries {
		idx := prevIndex + uint64(i) + 1
		if idx <= l.LastIndex() {
			if l.entries[idx].Term == e.Term {
				continue
			}
			l.truncateFrom(idx)
		}
		l.entries = append(l.entries, e)
	}
}

func (l *Log) truncateFrom(index uint64) {
	if index > l.LastIndex() {
		return
	}
	l.entries = l.entries[:index]
}

// CommitIndex returns the index through which entries are known
// committed.
func (l *Log) CommitIndex() uint64 {
	return l.commitIndex
}

// Commit advances commitIndex to index. Per spec.md §4.3, the caller
// is responsible for only ever calling this with an index that
// satisfies termOf(index) == currentTerm for a leader-driven advance;
// a follower advances commitIndex to min(leaderCommit, lastIndex)
// unconditionally, since it is simply trusting the leader's decision.
// Commit never moves backward.
func (l *Log) Commit(index uint64) {
	if index > l.commitIndex {
		l.commitIndex = index
	}
}

// Applied returns the index of the most recently applied entry.
func (l *Log) Applied() uint64 {
	return l.lastApplied
}

// SetApplied records that entries through index have been applied.
func (l *Log) SetApplied(index uint64) {
	l.lastApplied = index
}

// InitPeers resets the per-peer trackers for a freshly elected leader:
// nextIndex starts optimistically at lastIndex+1 for every peer,
// matchIndex starts at 0 until proven otherwise.
func (l *Log) InitPeers(peers []NodeID) {
	last := l.LastIndex()
	l.nextIndex = make(map[NodeID]uint64, len(peers))
	l.matchIndex = make(map[NodeID]uint64, len(peers))
	for _, p := range peers {
		l.nextIndex[p] = last + 1
		l.matchIndex[p] = 0
	}
}

// NextFor returns nextIndex for peer, defaulting to 1 if unset.
func (l *Log) NextFor(peer NodeID) uint64 {
	if v, ok := l.nextIndex[peer]; ok {
		return v
	}
	return 1
}

// ResetNextFor sets nextIndex[peer] to index, so the leader's next
// AppendEntries to that peer starts there.
func (l *Log) ResetNextFor(peer NodeID, index uint64) {
	l.nextIndex[peer] = index
}

// DecrementNextFor backtracks nextIndex[peer] by one, never below 1,
// per the AppendFailure handler in spec.md §4.1.
func (l *Log) DecrementNextFor(peer NodeID) {
	cur := l.NextFor(peer)
	if cur > 1 {
		l.nextIndex[peer] = cur - 1
	} else {
		l.nextIndex[peer] = 1
	}
}

// MatchFor returns matchIndex for peer.
func (l *Log) MatchFor(peer NodeID) uint64 {
	return l.matchIndex[peer]
}

// SetMatchFor records that peer's log is known to match through index,
// and keeps nextIndex in lockstep.
func (l *Log) SetMatchFor(peer NodeID, index uint64) {
	l.matchIndex[peer] = index
	if index+1 > l.nextIndex[peer] {
		l.nextIndex[peer] = index + 1
	}
}
