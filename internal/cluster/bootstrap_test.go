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
	"context"
	"testing"
	"time"

	"github.com/firefly-oss/raft/internal/consensus"
)

func TestBootstrapRejectsNonPositiveSize(t *testing.T) {
	if _, err := Bootstrap(0, Options{}); err == nil {
		t.Fatal("expected an error for size 0")
	}
}

func TestBootstrapElectsLeaderAndAppliesSubmit(t *testing.T) {
	nodes, err := Bootstrap(3, Options{Seed: 1})
	if err != nil {
		t.Fatalf("Bootstrap: %v", err)
	}
	defer func() {
		for _, n := range nodes {
			n.Stop()
		}
	}()

	var leader *consensus.Node
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		for _, n := range nodes {
			if n.IsLeader() {
				leader = n
				break
			}
		}
		if leader != nil {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	if leader == nil {
		t.Fatal("no leader emerged within timeout")
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	reply, err := leader.Submit(ctx, []byte("ping"))
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if string(reply.Result) != "ping" {
		t.Fatalf("Submit result = %q, want %q", reply.Result, "ping")
	}
}
