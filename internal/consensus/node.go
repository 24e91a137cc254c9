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
	"sync"

	"github.com/firefly-oss/raft/internal/logging"
)

// Transport delivers Envelopes between peers. Implementations must
// preserve FIFO order and at-most-once delivery per ordered (from, to)
// pair (spec.md §5); the core's correctness argument assumes this and
// does not defend against reordering or duplication itself.
type Transport interface {
	// Send delivers env to env.To. It may return an error (e.g. peer
	// unreachable) without the core treating that as a protocol event;
	// the core simply logs it and relies on retransmission via the
	// next timer-driven retry.
	Send(env Envelope) error

	// Register returns the channel a peer with the given id should
	// read its inbound Envelopes from. Called once per peer at
	// construction.
	Register(id NodeID) <-chan Envelope
}

// Apply is the externally supplied state machine executor. The core
// calls it once, synchronously, for each entry as commitIndex advances
// past it, in strict log order (spec.md §4.3, §5).
type Apply func(command []byte) ([]byte, error)

// Config bundles the knobs a Node needs beyond its identity and peer
// transport. Compression and transport security are Transport-level
// concerns (see internal/transport) and do not appear here: the core
// never sees compressed bytes either way (SPEC_FULL.md §4.3).
type Config struct {
	ID        NodeID
	Transport Transport
	Stable    StableStore
	Apply     Apply
	Seed      int64
}

// Node is one peer's complete Raft state machine. The FSM fields below
// mu are changed by the handlers with mu held; external callers go
// through the mutex-guarded getters.
type Node struct {
	id        NodeID
	transport Transport
	stable    StableStore
	applyFn   Apply
	log       *logging.Logger

	inbox  <-chan Envelope
	timers *TimerDriver
	done   chan struct{}
	stopOnce sync.Once

	mu    sync.Mutex // guards the fields below, for handlers and getters alike
	role  Role
	peers []NodeID // frozen cluster membership, set by Init

	currentTerm Term
	votedFor    NodeID
	votesGranted map[NodeID]bool

	raftLog *Log
	leader  NodeID

	gateway *clientGateway
}

// NewNode constructs a Node in the Initialise role. It does not start
// the run loop; call Run in its own goroutine.
func NewNode(cfg Config) *Node {
	n := &Node{
		id:        cfg.ID,
		transport: cfg.Transport,
		stable:    cfg.Stable,
		applyFn:   cfg.Apply,
		log:       logging.NewLogger("consensus").With("node", string(cfg.ID)),
		timers:    NewTimerDriver(cfg.Seed),
		done:      make(chan struct{}),
		role:      Initialise,
		raftLog:   NewLog(),
		gateway:   newClientGateway(),
	}
	if n.stable != nil {
		if term, vote, entries, ok, err := n.stable.Load(); err == nil && ok {
			n.currentTerm = term
			n.votedFor = vote
			if len(entries) > 0 {
				n.raftLog.entries = entries
			}
		}
	}
	n.inbox = cfg.Transport.Register(cfg.ID)
	return n
}

// ID returns the node's identity.
func (n *Node) ID() NodeID { return n.id }

// Run drives the peer's message loop until Stop is called. It must run
// on its own goroutine and handles one inbound message or timer firing
// at a time; Deliver handles a message on the caller's goroutine, and
// both change FSM state only with n.mu held.
func (n *Node) Run() {
	for {
		select {
		case env := <-n.inbox:
			n.handle(env.From, env.Body)
		case <-n.timers.ElectionC():
			n.handle(n.id, timeoutMsg{})
		case <-n.timers.HeartbeatC():
			n.handle(n.id, heartbeatMsg{})
		case <-n.done:
			return
		}
	}
}

// Stop terminates the run loop.
func (n *Node) Stop() {
	n.stopOnce.Do(func() { close(n.done) })
}

// Deliver hands msg, as sent by from, directly to this node's
// handlers on the caller's goroutine, bypassing the transport. It exists for bootstrap (Init is never sent
// over the wire the way peer-to-peer messages are) and for tests.
func (n *Node) Deliver(from NodeID, msg Message) {
	n.handle(from, msg)
}

// handle is the (role, message kind) dispatch table from spec.md §4.1.
// The universal preemption rule runs first, unconditionally, before
// any role-specific logic sees the message — this module hoists it to
// one place rather than repeating the check in every handler.
func (n *Node) handle(from NodeID, msg Message) {
	n.preempt(msg)

	switch m := msg.(type) {
	case InitMsg:
		n.handleInit(m)
		return
	}

	n.mu.Lock()
	role := n.role
	n.mu.Unlock()

	if role == Initialise {
		n.log.Debug("dropping message before Init", "kind", msg.messageKind(), "from", string(from))
		return
	}

	switch m := msg.(type) {
	case RequestVoteMsg:
		n.handleRequestVote(from, m)
	case GrantVoteMsg:
		n.handleGrantVote(from, m)
	case DenyVoteMsg:
		n.handleDenyVote(from, m)
	case AppendEntriesMsg:
		n.handleAppendEntries(from, m)
	case AppendSuccessMsg:
		n.handleAppendSuccess(from, m)
	case AppendFailureMsg:
		n.handleAppendFailure(from, m)
	case ClientRequestMsg:
		n.handleClientRequest(from, m)
	case ClientReplyMsg:
		n.handleClientReply(m)
	case timeoutMsg:
		n.handleTimeout()
	case heartbeatMsg:
		n.handleHeartbeat()
	default:
		n.log.Warn("unhandled message kind", "kind", msg.messageKind())
	}
}

// preempt is the universal rule: any inbound message carrying a term
// higher than currentTerm causes an immediate, unconditional adoption
// of that term and a step-down to Follower, before the message's own
// handler ever runs. Timer tokens carry no term and never trigger this.
func (n *Node) preempt(msg Message) {
	var msgTerm Term
	switch m := msg.(type) {
	case RequestVoteMsg:
		msgTerm = m.Term
	case GrantVoteMsg:
		msgTerm = m.Term
	case DenyVoteMsg:
		msgTerm = m.Term
	case AppendEntriesMsg:
		msgTerm = m.Term
	case AppendSuccessMsg:
		msgTerm = m.Term
	case AppendFailureMsg:
		msgTerm = m.Term
	default:
		return
	}

	n.mu.Lock()
	defer n.mu.Unlock()
	if msgTerm > n.currentTerm {
		n.log.Info("observed newer term, stepping down", "observed", uint64(msgTerm), "current", uint64(n.currentTerm))
		n.adoptTermLocked(msgTerm)
		n.becomeFollowerLocked()
	}
}

// adoptTermLocked sets currentTerm to term, clears votedFor, and
// persists both durably before any reply is allowed to leave this
// handler (spec.md §5 durability-before-reply rule). n.mu must be held.
func (n *Node) adoptTermLocked(term Term) {
	n.currentTerm = term
	n.votedFor = ""
	n.persistStateLocked()
}

func (n *Node) persistStateLocked() {
	if n.stable == nil {
		return
	}
	if err := n.stable.SaveState(n.currentTerm, n.votedFor); err != nil {
		n.log.Error("failed to persist term/vote", "error", err.Error())
	}
}

func (n *Node) persistLogLocked() {
	if n.stable == nil {
		return
	}
	if err := n.stable.SaveLog(n.raftLog.entries); err != nil {
		n.log.Error("failed to persist log", "error", err.Error())
	}
}

func (n *Node) handleInit(m InitMsg) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.role != Initialise {
		n.log.Debug("ignoring redundant Init on already-initialised node")
		return
	}
	n.peers = append([]NodeID(nil), m.Nodes...)
	n.raftLog.InitPeers(otherPeers(n.peers, n.id))
	n.role = Follower
	n.timers.ResetElection()
	n.log.Info("initialised", "peers", len(n.peers))
}

func otherPeers(all []NodeID, self NodeID) []NodeID {
	out := make([]NodeID, 0, len(all))
	for _, p := range all {
		if p != self {
			out = append(out, p)
		}
	}
	return out
}

func (n *Node) becomeFollowerLocked() {
	n.role = Follower
	n.timers.StopHeartbeat()
	n.timers.ResetElection()
}

// send transmits msg to dest, logging rather than failing the caller
// if the peer is unreachable — that is an expected, timer-recoverable
// condition, not a fatal error (spec.md §7).
func (n *Node) send(dest NodeID, msg Message) {
	err := n.transport.Send(Envelope{From: n.id, To: dest, Body: msg})
	if err != nil {
		n.log.Debug("send failed", "dest", string(dest), "kind", msg.messageKind(), "error", err.Error())
	}
}

// GetState returns the node's role and current term.
func (n *Node) GetState() (Role, Term) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.role, n.currentTerm
}

// IsLeader reports whether this node currently believes itself leader.
func (n *Node) IsLeader() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.role == Leader
}

// GetLeader returns the best known leader, empty if unknown.
func (n *Node) GetLeader() NodeID {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.leader
}

// GetTerm returns currentTerm.
func (n *Node) GetTerm() Term {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.currentTerm
}
