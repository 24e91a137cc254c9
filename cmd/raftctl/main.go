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

// Command raftctl is an interactive client gateway shell: it submits
// commands to a node over the TCP transport and prints the committed
// result. A non-leader node forwards the command to the leader under
// spec.md §4.6's forwarding rule, but the leader can send the reply
// only over the connection this tool dialed, so a result is printed
// when the -entry-id node is the leader; otherwise the submit ends
// with its timeout error.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/chzyer/readline"

	"github.com/firefly-oss/raft/internal/compression"
	"github.com/firefly-oss/raft/internal/consensus"
	"github.com/firefly-oss/raft/internal/transport"
	"github.com/firefly-oss/raft/pkg/cli"
)

const submitTimeout = 3 * time.Second

func main() {
	connect := flag.String("connect", "", "node peer address to submit through, host:port")
	entryID := flag.String("entry-id", "", "this node's identity, as known by the cluster")
	clientID := flag.String("client-id", "", "this client's identity (default: a generated one)")
	flag.Parse()

	if *connect == "" || *entryID == "" {
		fatal("both -connect and -entry-id are required")
	}

	id := *clientID
	if id == "" {
		id = fmt.Sprintf("raftctl-%d", os.Getpid())
	}

	target := consensus.NodeID(*entryID)
	addrs := map[consensus.NodeID]string{target: *connect}
	tr := transport.NewTCP(consensus.NodeID(id), "", addrs, nil, compression.DefaultConfig())
	client := consensus.NewClient(consensus.NodeID(id), tr)

	rl, err := readline.New(cli.Highlight("raftctl> "))
	if err != nil {
		fatal("init readline: %v", err)
	}
	defer rl.Close()

	cli.PrintInfo("Connected to %s at %s. Type \\help for commands, \\quit to exit.", *entryID, *connect)

	for {
		line, err := rl.Readline()
		if err == readline.ErrInterrupt {
			continue
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			fatal("readline: %v", err)
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if handled := handleMeta(line); handled {
			if line == "\\quit" || line == "\\q" {
				break
			}
			continue
		}

		ctx, cancel := context.WithTimeout(context.Background(), submitTimeout)
		reply, err := client.Submit(ctx, target, []byte(line))
		cancel()
		if err != nil {
			cli.PrintError("submit failed: %v", err)
			continue
		}
		if reply.Err != nil {
			cli.PrintError("%v", reply.Err)
			continue
		}
		cli.PrintSuccess("%s", string(reply.Result))
	}
}

func handleMeta(line string) bool {
	switch line {
	case "\\help", "\\h":
		cli.Box("raftctl commands", strings.Join([]string{
			"SET <key> <value>   submit a set command",
			"GET <key>           submit a get command",
			"DEL <key>           submit a delete command",
			"\\help, \\h           show this message",
			"\\quit, \\q           exit",
		}, "\n"))
		return true
	case "\\quit", "\\q":
		return true
	}
	return false
}

func fatal(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, "raftctl: "+format+"\n", args...)
	os.Exit(1)
}
