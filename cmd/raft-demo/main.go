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

// Command raft-demo runs a small in-process cluster over the mailbox
// transport and submits a few client commands through whichever node
// becomes leader, printing each step as it happens. It exists to show
// the consensus core working end to end without standing up a real
// network, and is what the test suite's cluster-level scenarios are
// modeled after.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/firefly-oss/raft/internal/cluster"
	"github.com/firefly-oss/raft/internal/consensus"
	"github.com/firefly-oss/raft/pkg/cli"
)

func main() {
	size := flag.Int("size", 3, "number of peers in the demo cluster")
	flag.Parse()

	store := newDemoStore()
	nodes, err := cluster.Bootstrap(*size, cluster.Options{
		Apply: store.apply,
		Seed:  time.Now().UnixNano(),
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "raft-demo: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		for _, n := range nodes {
			n.Stop()
		}
	}()

	leader := awaitLeader(nodes, 2*time.Second)
	if leader == nil {
		fmt.Fprintln(os.Stderr, "raft-demo: no leader emerged within timeout")
		os.Exit(1)
	}
	cli.PrintSuccess(fmt.Sprintf("%s elected leader", leader.ID()))

	commands := []string{"SET a 1", "SET b 2", "GET a", "DEL a", "GET a"}
	for _, cmd := range commands {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		reply, err := leader.Submit(ctx, []byte(cmd))
		cancel()
		if err != nil {
			cli.PrintError(fmt.Sprintf("%s: %v", cmd, err))
			continue
		}
		if reply.Err != nil {
			cli.PrintError(fmt.Sprintf("%s -> error: %v", cmd, reply.Err))
			continue
		}
		fmt.Printf("%-12s -> %s\n", cmd, reply.Result)
	}
}

func awaitLeader(nodes []*consensus.Node, timeout time.Duration) *consensus.Node {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		for _, n := range nodes {
			if n.IsLeader() {
				return n
			}
		}
		time.Sleep(5 * time.Millisecond)
	}
	return nil
}

// demoStore is the same SET/GET/DEL text-command state machine raftd
// uses, kept local here so the demo has no dependency on cmd/raftd.
type demoStore struct {
	data map[string]string
}

func newDemoStore() *demoStore {
	return &demoStore{data: make(map[string]string)}
}

func (s *demoStore) apply(command []byte) ([]byte, error) {
	fields := strings.Fields(string(command))
	if len(fields) == 0 {
		return nil, fmt.Errorf("empty command")
	}
	switch strings.ToUpper(fields[0]) {
	case "SET":
		if len(fields) < 3 {
			return nil, fmt.Errorf("SET requires key and value")
		}
		s.data[fields[1]] = strings.Join(fields[2:], " ")
		return []byte("OK"), nil
	case "GET":
		if len(fields) < 2 {
			return nil, fmt.Errorf("GET requires key")
		}
		v, ok := s.data[fields[1]]
		if !ok {
			return nil, fmt.Errorf("key not found: %s", fields[1])
		}
		return []byte(v), nil
	case "DEL":
		if len(fields) < 2 {
			return nil, fmt.Errorf("DEL requires key")
		}
		delete(s.data, fields[1])
		return []byte("OK"), nil
	default:
		return nil, fmt.Errorf("unknown command: %s", fields[0])
	}
}
