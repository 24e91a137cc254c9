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

package transport

import (
	"net"
	"strconv"
	"testing"
	"time"

	"github.com/firefly-oss/raft/internal/compression"
	"github.com/firefly-oss/raft/internal/consensus"
)

func freePort(t *testing.T) int {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("freePort: %v", err)
	}
	defer ln.Close()
	return ln.Addr().(*net.TCPAddr).Port
}

func TestTCPSendRoundTrip(t *testing.T) {
	portA := freePort(t)
	portB := freePort(t)

	addrsFromA := map[consensus.NodeID]string{"b": "127.0.0.1:" + strconv.Itoa(portB)}
	addrsFromB := map[consensus.NodeID]string{"a": "127.0.0.1:" + strconv.Itoa(portA)}

	a := NewTCP("a", "127.0.0.1:"+strconv.Itoa(portA), addrsFromA, nil, compression.DefaultConfig())
	b := NewTCP("b", "127.0.0.1:"+strconv.Itoa(portB), addrsFromB, nil, compression.DefaultConfig())

	if err := a.Listen(); err != nil {
		t.Fatalf("a.Listen: %v", err)
	}
	if err := b.Listen(); err != nil {
		t.Fatalf("b.Listen: %v", err)
	}

	bInbox := b.Register("b")

	msg := consensus.RequestVoteMsg{Term: 3, CandidateID: "a", LastLogIndex: 1, LastLogTerm: 1}
	if err := a.Send(consensus.Envelope{From: "a", To: "b", Body: msg}); err != nil {
		t.Fatalf("a.Send: %v", err)
	}

	select {
	case env := <-bInbox:
		got, ok := env.Body.(consensus.RequestVoteMsg)
		if !ok {
			t.Fatalf("received body of type %T, want RequestVoteMsg", env.Body)
		}
		if got.Term != 3 || got.CandidateID != "a" {
			t.Fatalf("received %+v, want Term=3 CandidateID=a", got)
		}
		if env.From != "a" {
			t.Fatalf("env.From = %q, want %q", env.From, "a")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for message to arrive at b")
	}
}

func TestTCPAcceptedConnCanCarryReplyWithoutStaticAddress(t *testing.T) {
	portB := freePort(t)
	addrsFromB := map[consensus.NodeID]string{}

	b := NewTCP("b", "127.0.0.1:"+strconv.Itoa(portB), addrsFromB, nil, compression.DefaultConfig())
	if err := b.Listen(); err != nil {
		t.Fatalf("b.Listen: %v", err)
	}
	bInbox := b.Register("b")

	// "client" has no listener and no entry in b's address book; it only
	// ever dials out, the way an ephemeral client-gateway caller would.
	client := NewTCP("client", "", map[consensus.NodeID]string{"b": "127.0.0.1:" + strconv.Itoa(portB)}, nil, compression.DefaultConfig())

	req := consensus.ClientRequestMsg{Cid: "1", Command: []byte("hello"), Origin: "client"}
	if err := client.Send(consensus.Envelope{From: "client", To: "b", Body: req}); err != nil {
		t.Fatalf("client.Send: %v", err)
	}

	select {
	case <-bInbox:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for b to receive the client request")
	}

	// b replies to "client" purely off the inbound connection it just
	// accepted - there is no addrs entry for "client" on b's side.
	reply := consensus.ClientReplyMsg{Cid: "1", Result: []byte("ok")}
	if err := b.Send(consensus.Envelope{From: "b", To: "client", Body: reply}); err != nil {
		t.Fatalf("b.Send reply to unregistered client: %v", err)
	}

	clientInbox := client.Register("client")
	select {
	case env := <-clientInbox:
		got, ok := env.Body.(consensus.ClientReplyMsg)
		if !ok {
			t.Fatalf("received body of type %T, want ClientReplyMsg", env.Body)
		}
		if string(got.Result) != "ok" {
			t.Fatalf("got result %q, want %q", got.Result, "ok")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for reply to reach the client")
	}
}
