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

import "golang.org/x/sync/errgroup"

func (n *Node) handleAppendEntries(from NodeID, m AppendEntriesMsg) {
	n.mu.Lock()
	defer n.mu.Unlock()

	if m.Term < n.currentTerm {
		n.send(from, AppendFailureMsg{Term: n.currentTerm})
		return
	}

	// A candidate seeing a current-term AppendEntries from a peer means
	// an election has already been settled elsewhere; recognize that
	// peer as leader and step down. The universal preemption rule
	// already handled the m.Term > currentTerm case.
	if n.role == Candidate {
		n.becomeFollowerLocked()
	}

	n.leader = m.LeaderID
	n.timers.ResetElection()

	if m.PrevLogIndex > 0 && !n.raftLog.HasEntryAt(m.PrevLogIndex, m.PrevLogTerm) {
		n.send(from, AppendFailureMsg{Term: n.currentTerm})
		return
	}

	for _, e := range m.Entries {
		if !VerifyChecksum(e) {
			n.log.Warn("checksum mismatch on replicated entry", "index", e.Index)
			n.send(from, AppendFailureMsg{Term: n.currentTerm})
			return
		}
	}

	n.raftLog.AppendReplicated(m.PrevLogIndex, m.Entries)
	n.persistLogLocked()

	if m.LeaderCommit > n.raftLog.CommitIndex() {
		newCommit := m.LeaderCommit
		if last := n.raftLog.LastIndex(); newCommit > last {
			newCommit = last
		}
		n.raftLog.Commit(newCommit)
		n.applyCommittedLocked()
	}

	lastNewIndex := m.PrevLogIndex + uint64(len(m.Entries))
	n.send(from, AppendSuccessMsg{Term: n.currentTerm, Follower: n.id, Index: lastNewIndex})
}

func (n *Node) handleAppendSuccess(from NodeID, m AppendSuccessMsg) {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.role != Leader || m.Term != n.currentTerm {
		return
	}
	n.raftLog.SetMatchFor(from, m.Index)
	n.tryAdvanceCommitLocked()
}

// tryAdvanceCommitLocked implements spec.md §4.3's commit rule: among
// indices greater than the current commitIndex, advance to the
// highest N that both (a) a majority of matchIndex values (counting
// the leader itself, whose match is its own lastIndex) reach, and (b)
// satisfies termOf(N) == currentTerm. Condition (b) is the Raft
// §5.4.2 rule against committing an earlier term's entry purely by
// replica count; it is why a leader can only ever commit its own
// term's entries directly; earlier entries ride along once a later
// one commits.
func (n *Node) tryAdvanceCommitLocked() {
	need := majority(len(n.peers))
	last := n.raftLog.LastIndex()
	for N := last; N > n.raftLog.CommitIndex(); N-- {
		if n.raftLog.TermOf(N) != n.currentTerm {
			continue
		}
		count := 1 // the leader itself
		for _, p := range otherPeers(n.peers, n.id) {
			if n.raftLog.MatchFor(p) >= N {
				count++
			}
		}
		if count >= need {
			n.raftLog.Commit(N)
			n.applyCommittedLocked()
			return
		}
	}
}

func (n *Node) handleAppendFailure(from NodeID, m AppendFailureMsg) {
	n.mu.Lock()
	if n.role != Leader || m.Term != n.currentTerm {
		n.mu.Unlock()
		return
	}
	n.raftLog.DecrementNextFor(from)
	n.mu.Unlock()

	go n.sendAppendEntriesTo(from)
}

// applyCommittedLocked applies every entry between lastApplied and
// commitIndex, in order, synchronously — spec.md §4.3 and §5 require
// this to happen before the handler that advanced commitIndex returns,
// never on a background poll. n.mu must be held; the externally
// supplied Apply function is trusted not to call back into the Node.
func (n *Node) applyCommittedLocked() {
	for n.raftLog.Applied() < n.raftLog.CommitIndex() {
		idx := n.raftLog.Applied() + 1
		entry, ok := n.raftLog.Get(idx)
		if !ok {
			return
		}
		var result []byte
		var err error
		if n.applyFn != nil {
			result, err = n.applyFn(entry.Command)
		}
		n.raftLog.SetApplied(idx)
		if entry.Client != nil && n.role == Leader {
			n.replyToClientLocked(*entry.Client, result, err)
		}
	}
}

func (n *Node) buildAppendEntriesLocked(peer NodeID) AppendEntriesMsg {
	nextIdx := n.raftLog.NextFor(peer)
	prevIndex := nextIdx - 1
	prevTerm := n.raftLog.TermOf(prevIndex)
	entries := n.raftLog.EntriesFrom(nextIdx)
	return AppendEntriesMsg{
		Term:         n.currentTerm,
		LeaderID:     n.id,
		PrevLogIndex: prevIndex,
		PrevLogTerm:  prevTerm,
		Entries:      entries,
		LeaderCommit: n.raftLog.CommitIndex(),
	}
}

type peerAppend struct {
	peer NodeID
	msg  AppendEntriesMsg
}

// sendAppendEntriesTo retries a single peer, used after an
// AppendFailure decrements its nextIndex.
func (n *Node) sendAppendEntriesTo(peer NodeID) {
	n.mu.Lock()
	if n.role != Leader {
		n.mu.Unlock()
		return
	}
	msg := n.buildAppendEntriesLocked(peer)
	n.mu.Unlock()
	n.send(peer, msg)
}

// broadcastAppendEntries sends every peer its own tailored AppendEntries
// (heartbeat or real entries depending on nextIndex) concurrently via
// an errgroup, mirroring broadcastRequestVote's fan-out style.
func (n *Node) broadcastAppendEntries() {
	n.mu.Lock()
	if n.role != Leader {
		n.mu.Unlock()
		return
	}
	peers := otherPeers(n.peers, n.id)
	batch := make([]peerAppend, 0, len(peers))
	for _, p := range peers {
		batch = append(batch, peerAppend{peer: p, msg: n.buildAppendEntriesLocked(p)})
	}
	n.mu.Unlock()

	var g errgroup.Group
	for _, pa := range batch {
		pa := pa
		g.Go(func() error {
			return n.transport.Send(Envelope{From: n.id, To: pa.peer, Body: pa.msg})
		})
	}
	go func() {
		if err := g.Wait(); err != nil {
			n.log.Debug("append entries fan-out encountered errors", "error", err.Error())
		}
	}()
}
