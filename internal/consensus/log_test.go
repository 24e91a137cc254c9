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

import (
	"testing"

	"golang.org/x/crypto/blake2b"
)

func TestNewLogSentinel(t *testing.T) {
	l := NewLog()
	if l.LastIndex() != 0 {
		t.Fatalf("LastIndex() = %d, want 0", l.LastIndex())
	}
	if l.LastTerm() != 0 {
		t.Fatalf("LastTerm() = %d, want 0", l.LastTerm())
	}
	if !l.HasEntryAt(0, 0) {
		t.Fatal("expected HasEntryAt(0, 0) to hold for a fresh log")
	}
}

func TestAppendComputesChecksum(t *testing.T) {
	l := NewLog()
	idx := l.Append(1, []byte("command-one"), nil)
	if idx != 1 {
		t.Fatalf("Append returned index %d, want 1", idx)
	}
	e, ok := l.Get(1)
	if !ok {
		t.Fatal("Get(1) returned ok=false")
	}
	if !VerifyChecksum(e) {
		t.Fatal("expected checksum to verify for an entry appended via Append")
	}

	e.Command = []byte("tampered")
	if VerifyChecksum(e) {
		t.Fatal("expected checksum to fail to verify after tampering with Command")
	}
}

func TestAppendReplicatedTruncatesOnConflict(t *testing.T) {
	l := NewLog()
	l.Append(1, []byte("a"), nil)
	l.Append(1, []byte("b"), nil)
	l.Append(1, []byte("c"), nil)

	// A new leader in term 2 overwrites index 2 onward.
	l.AppendReplicated(1, []Entry{
		{Term: 2, Index: 2, Command: []byte("b2"), Checksum: checksumOf("b2")},
	})

	if l.LastIndex() != 2 {
		t.Fatalf("LastIndex() = %d, want 2 after truncation", l.LastIndex())
	}
	e, _ := l.Get(2)
	if e.Term != 2 || string(e.Command) != "b2" {
		t.Fatalf("Get(2) = %+v, want term 2 command b2", e)
	}
}

func TestAppendReplicatedSkipsMatchingEntry(t *testing.T) {
	l := NewLog()
	l.Append(1, []byte("a"), nil)
	original, _ := l.Get(1)

	// Re-delivering the same (term, index) must not disturb the entry,
	// even if the command bytes differ - an already-matching term means
	// the follower trusts its own copy.
	l.AppendReplicated(0, []Entry{
		{Term: 1, Index: 1, Command: []byte("different"), Checksum: checksumOf("different")},
	})

	e, _ := l.Get(1)
	if string(e.Command) != string(original.Command) {
		t.Fatalf("entry was overwritten despite matching term: got %q, want %q", e.Command, original.Command)
	}
}

func TestCommitNeverMovesBackward(t *testing.T) {
	l := NewLog()
	l.Append(1, []byte("a"), nil)
	l.Append(1, []byte("b"), nil)

	l.Commit(2)
	l.Commit(1)
	if l.CommitIndex() != 2 {
		t.Fatalf("CommitIndex() = %d, want 2 (commit must be monotonic)", l.CommitIndex())
	}
}

func TestPeerIndexTracking(t *testing.T) {
	l := NewLog()
	l.Append(1, []byte("a"), nil)
	l.Append(1, []byte("b"), nil)
	l.InitPeers([]NodeID{"p1", "p2"})

	if got := l.NextFor("p1"); got != 3 {
		t.Fatalf("NextFor(p1) = %d, want 3 (lastIndex+1)", got)
	}
	if got := l.MatchFor("p1"); got != 0 {
		t.Fatalf("MatchFor(p1) = %d, want 0", got)
	}

	l.DecrementNextFor("p1")
	if got := l.NextFor("p1"); got != 2 {
		t.Fatalf("NextFor(p1) after decrement = %d, want 2", got)
	}

	for i := 0; i < 10; i++ {
		l.DecrementNextFor("p1")
	}
	if got := l.NextFor("p1"); got != 1 {
		t.Fatalf("NextFor(p1) floored at %d, want 1", got)
	}

	l.SetMatchFor("p2", 2)
	if got := l.MatchFor("p2"); got != 2 {
		t.Fatalf("MatchFor(p2) = %d, want 2", got)
	}
	if got := l.NextFor("p2"); got != 3 {
		t.Fatalf("NextFor(p2) = %d after SetMatchFor, want 3", got)
	}
}

func TestEntriesFrom(t *testing.T) {
	l := NewLog()
	l.Append(1, []byte("a"), nil)
	l.Append(1, []byte("b"), nil)
	l.Append(2, []byte("c"), nil)

	entries := l.EntriesFrom(2)
	if len(entries) != 2 {
		t.Fatalf("EntriesFrom(2) returned %d entries, want 2", len(entries))
	}
	if entries[0].Index != 2 || entries[1].Index != 3 {
		t.Fatalf("EntriesFrom(2) = %+v, want indices [2 3]", entries)
	}
}

func checksumOf(s string) [32]byte {
	return blake2b.Sum256([]byte(s))
}
