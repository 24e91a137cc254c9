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
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
)

// ClientReply is the result of a committed client command.
type ClientReply struct {
	Cid    string
	Result []byte
	Err    error
}

// clientGateway tracks callers of Submit waiting on a reply for their
// cid. It is keyed per-Node: a Submit call always registers its
// waiter on the node it was called on, and relies on ClientReplyMsg to
// deliver the result back if the request was forwarded elsewhere.
type clientGateway struct {
	mu      sync.Mutex
	waiters map[string]chan ClientReply
	counter uint64
}

func newClientGateway() *clientGateway {
	return &clientGateway{waiters: make(map[string]chan ClientReply)}
}

func (g *clientGateway) register(cid string) chan ClientReply {
	ch := make(chan ClientReply, 1)
	g.mu.Lock()
	g.waiters[cid] = ch
	g.mu.Unlock()
	return ch
}

func (g *clientGateway) resolve(cid string, result []byte, err error) {
	g.mu.Lock()
	ch, ok := g.waiters[cid]
	if ok {
		delete(g.waiters, cid)
	}
	g.mu.Unlock()
	if ok {
		ch <- ClientReply{Cid: cid, Result: result, Err: err}
	}
}

func (g *clientGateway) nextCid(self NodeID) string {
	id := atomic.AddUint64(&g.counter, 1)
	return fmt.Sprintf("%s-%d", self, id)
}

// Submit enters command into the cluster as a client gateway request
// submitted through this node, and blocks until it is committed and
// applied (or ctx is canceled). It is a convenience wrapper over the
// ClientRequest/ClientReply message pair for in-process callers such
// as cmd/raft-demo (cmd/raftctl uses Client instead); it is not part
// of the core FSM.
func (n *Node) Submit(ctx context.Context, command []byte) (ClientReply, error) {
	cid := n.gateway.nextCid(n.id)
	ch := n.gateway.register(cid)

	if err := n.transport.Send(Envelope{
		From: n.id,
		To:   n.id,
		Body: ClientRequestMsg{Cid: cid, Command: command, Origin: n.id},
	}); err != nil {
		return ClientReply{}, err
	}

	select {
	case reply := <-ch:
		return reply, nil
	case <-ctx.Done():
		return ClientReply{}, ctx.Err()
	}
}

// handleClientRequest is the client gateway described in spec.md §4.6:
// a leader appends the command to its own log tagged with the
// submitter's identity and broadcasts it; any other role forwards to
// the best known leader, or drops the request if no leader is known.
func (n *Node) handleClientRequest(from NodeID, m ClientRequestMsg) {
	n.mu.Lock()
	if n.role != Leader {
		leader := n.leader
		n.mu.Unlock()
		if leader != "" {
			n.send(leader, m)
		} else {
			n.log.Debug("dropping client request, no known leader", "cid", m.Cid)
		}
		return
	}

	n.raftLog.Append(n.currentTerm, m.Command, &ClientTag{Origin: m.Origin, Cid: m.Cid})
	n.persistLogLocked()
	// In a one-node cluster the leader alone is a majority, so the
	// entry commits here without waiting for any AppendSuccess.
	n.tryAdvanceCommitLocked()
	n.mu.Unlock()

	n.broadcastAppendEntries()
}

// handleClientReply resolves a local Submit waiter when the command it
// submitted was committed by a different node than it was submitted
// to (the forwarding case).
func (n *Node) handleClientReply(m ClientReplyMsg) {
	var err error
	if m.Err != "" {
		err = errors.New(m.Err)
	}
	n.gateway.resolve(m.Cid, m.Result, err)
}

// replyToClientLocked delivers a committed entry's result to the peer
// that originally received the client's request: directly if that
// peer is this node, over the wire otherwise. n.mu must be held.
func (n *Node) replyToClientLocked(tag ClientTag, result []byte, err error) {
	if tag.Origin == n.id {
		n.gateway.resolve(tag.Cid, result, err)
		return
	}
	msg := ClientReplyMsg{Cid: tag.Cid, Result: result}
	if err != nil {
		msg.Err = err.Error()
	}
	n.send(tag.Origin, msg)
}
