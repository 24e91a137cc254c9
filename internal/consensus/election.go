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

// handleTimeout is the election timer firing. It only does anything
// for Follower or Candidate; a Leader's election timer is stopped on
// election and should never fire, but a defensive role check keeps a
// stray timer from starting a competing election.
func (n *Node) handleTimeout() {
	n.mu.Lock()
	if n.role == Leader || n.role == Initialise {
		n.mu.Unlock()
		return
	}
	n.role = Candidate
	n.currentTerm++
	n.votedFor = n.id
	n.votesGranted = map[NodeID]bool{n.id: true}
	n.persistStateLocked()
	n.timers.ResetElection()
	if len(n.votesGranted) >= majority(len(n.peers)) {
		// One-node cluster: the self-vote is already a majority.
		n.becomeLeaderLocked()
	}

	term := n.currentTerm
	lastIndex := n.raftLog.LastIndex()
	lastTerm := n.raftLog.LastTerm()
	peers := otherPeers(n.peers, n.id)
	n.log.Info("election timeout, starting election", "term", uint64(term))
	n.mu.Unlock()

	n.broadcastRequestVote(peers, RequestVoteMsg{
		Term:         term,
		CandidateID:  n.id,
		LastLogIndex: lastIndex,
		LastLogTerm:  lastTerm,
	})
}

// broadcastRequestVote fans the same RequestVote out to every peer
// concurrently using an errgroup, so one slow or unreachable peer never
// delays the others; replies arrive later as ordinary inbox messages,
// so this does not block waiting for them.
func (n *Node) broadcastRequestVote(peers []NodeID, req RequestVoteMsg) {
	var g errgroup.Group
	for _, p := range peers {
		p := p
		g.Go(func() error {
			return n.transport.Send(Envelope{From: n.id, To: p, Body: req})
		})
	}
	go func() {
		if err := g.Wait(); err != nil {
			n.log.Debug("vote request fan-out encountered errors", "error", err.Error())
		}
	}()
}

func (n *Node) handleRequestVote(from NodeID, m RequestVoteMsg) {
	n.mu.Lock()
	defer n.mu.Unlock()

	if m.Term < n.currentTerm {
		n.send(from, DenyVoteMsg{Term: n.currentTerm, Voter: n.id})
		return
	}

	canGrant := (n.votedFor == "" || n.votedFor == m.CandidateID) &&
		n.logUpToDateLocked(m.LastLogIndex, m.LastLogTerm)

	if canGrant {
		n.votedFor = m.CandidateID
		n.persistStateLocked()
		n.timers.ResetElection()
		n.send(from, GrantVoteMsg{Term: n.currentTerm, Voter: n.id})
	} else {
		n.send(from, DenyVoteMsg{Term: n.currentTerm, Voter: n.id})
	}
}

// logUpToDateLocked implements the Raft up-to-date comparison: a
// candidate's log is at least as up to date as ours if its last entry
// has a strictly higher term, or the same term with an index at least
// as large as ours.
func (n *Node) logUpToDateLocked(candLastIndex uint64, candLastTerm Term) bool {
	myLastTerm := n.raftLog.LastTerm()
	if candLastTerm != myLastTerm {
		return candLastTerm > myLastTerm
	}
	return candLastIndex >= n.raftLog.LastIndex()
}

func (n *Node) handleGrantVote(from NodeID, m GrantVoteMsg) {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.role != Candidate || m.Term != n.currentTerm {
		return
	}
	n.votesGranted[from] = true
	if len(n.votesGranted) >= majority(len(n.peers)) {
		n.becomeLeaderLocked()
	}
}

func (n *Node) handleDenyVote(from NodeID, m DenyVoteMsg) {
	// The universal preemption rule already adopted any newer term
	// carried on this message and stepped down if needed; a deny at
	// the candidate's own term requires no further action, the
	// candidate simply falls one vote further from a majority.
	n.log.Debug("vote denied", "by", string(from), "term", uint64(m.Term))
}

func (n *Node) becomeLeaderLocked() {
	n.role = Leader
	n.leader = n.id
	n.timers.StopElection()
	n.raftLog.InitPeers(otherPeers(n.peers, n.id))
	n.timers.ResetHeartbeat()
	n.log.Info("elected leader", "term", uint64(n.currentTerm))
	go n.broadcastAppendEntries()
}

func (n *Node) handleHeartbeat() {
	n.mu.Lock()
	if n.role != Leader {
		n.mu.Unlock()
		return
	}
	n.timers.ResetHeartbeat()
	n.mu.Unlock()
	n.broadcastAppendEntries()
}
