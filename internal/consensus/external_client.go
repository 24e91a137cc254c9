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
)

// Client lets a process that is not itself a cluster member submit
// commands through the client gateway described in spec.md §4.6 — the
// role cmd/raftctl plays. It speaks the same ClientRequest/ClientReply
// pair a Node uses internally, so any node it addresses forwards to
// the leader exactly as it would for another peer's forwarded request.
type Client struct {
	id        NodeID
	transport Transport
	gateway   *clientGateway
}

// NewClient registers id on transport and starts routing inbound
// ClientReplyMsg traffic to Submit callers. id need not be, and
// normally is not, a member of any cluster's frozen peer set.
func NewClient(id NodeID, t Transport) *Client {
	c := &Client{id: id, transport: t, gateway: newClientGateway()}
	inbox := t.Register(id)
	go c.loop(inbox)
	return c
}

func (c *Client) loop(inbox <-chan Envelope) {
	for env := range inbox {
		if reply, ok := env.Body.(ClientReplyMsg); ok {
			c.handleReply(reply)
		}
	}
}

func (c *Client) handleReply(m ClientReplyMsg) {
	var err error
	if m.Err != "" {
		err = errors.New(m.Err)
	}
	c.gateway.resolve(m.Cid, m.Result, err)
}

// Submit sends command as a client request to node to, and blocks for
// its ClientReplyMsg or until ctx is done. to need not be the leader:
// a non-leader forwards the request, and the committing leader sends
// the ClientReplyMsg straight to this client's id (the request's
// Origin). That reply arrives only if the leader's transport can reach
// this id; over TCP that is the case when to is itself the leader, via
// the connection this client dialed to it, and not when the request
// was forwarded.
func (c *Client) Submit(ctx context.Context, to NodeID, command []byte) (ClientReply, error) {
	cid := c.gateway.nextCid(c.id)
	ch := c.gateway.register(cid)

	if err := c.transport.Send(Envelope{
		From: c.id,
		To:   to,
		Body: ClientRequestMsg{Cid: cid, Command: command, Origin: c.id},
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
