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

package cluster

import (
	"fmt"

	"github.com/firefly-oss/raft/internal/consensus"
	"github.com/firefly-oss/raft/internal/transport"
)

// Options configures Bootstrap.
type Options struct {
	// Apply is the state machine executor shared by every bootstrapped
	// node. If nil, a no-op that echoes the command back is used.
	Apply consensus.Apply
	// Stable builds a StableStore per node id. If nil, each node gets
	// an in-memory store.
	Stable func(id consensus.NodeID) consensus.StableStore
	// Seed seeds each node's timer randomness; node index is added so
	// peers don't share identical election timer sequences.
	Seed int64
}

// Bootstrap wires size in-process peers onto a shared Mailbox
// transport, starts each one's Run loop, and delivers the InitMsg that
// freezes cluster membership, per spec.md §6. It is the demo/test
// equivalent of a real deployment's DiscoverPeers + per-node TCP
// transport + one Init message per node.
func Bootstrap(size int, opts Options) ([]*consensus.Node, error) {
	if size < 1 {
		return nil, fmt.Errorf("cluster: bootstrap size must be positive, got %d", size)
	}

	ids := make([]consensus.NodeID, size)
	for i := range ids {
		ids[i] = consensus.NodeID(fmt.Sprintf("node-%d", i+1))
	}

	mailbox := transport.NewMailbox()
	nodes := make([]*consensus.Node, size)
	for i, id := range ids {
		var stable consensus.StableStore
		if opts.Stable != nil {
			stable = opts.Stable(id)
		} else {
			stable = consensus.NewMemoryStable()
		}
		apply := opts.Apply
		if apply == nil {
			apply = func(cmd []byte) ([]byte, error) { return cmd, nil }
		}

		n := consensus.NewNode(consensus.Config{
			ID:        id,
			Transport: mailbox,
			Stable:    stable,
			Apply:     apply,
			Seed:      opts.Seed + int64(i),
		})
		nodes[i] = n
		go n.Run()
	}

	for _, n := range nodes {
		n.Deliver(n.ID(), consensus.InitMsg{Nodes: ids})
	}

	return nodes, nil
}
