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

// Command raftd runs one node of a cluster: it loads configuration,
// opens its stable store and TCP peer transport, discovers (or is
// told) its peers, and drives the consensus run loop until signaled
// to stop.
package main

import (
	ctls "crypto/tls"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/firefly-oss/raft/internal/cluster"
	"github.com/firefly-oss/raft/internal/compression"
	"github.com/firefly-oss/raft/internal/config"
	"github.com/firefly-oss/raft/internal/consensus"
	"github.com/firefly-oss/raft/internal/logging"
	raftls "github.com/firefly-oss/raft/internal/tls"
	"github.com/firefly-oss/raft/internal/transport"
)

func main() {
	configFile := flag.String("config", "", "path to a TOML config file")
	nodeID := flag.String("id", "", "this node's identity (overrides config)")
	peersFlag := flag.String("peers", "", "comma-separated id=host:port peer list")
	discover := flag.String("discover", "", "mDNS service name to discover peers under, instead of -peers")
	discoverTimeout := flag.Duration("discover-timeout", 2*time.Second, "how long to sweep for peers with -discover")
	advertise := flag.Bool("advertise", false, "advertise this node under -discover's service name")
	certFile := flag.String("cert", "", "TLS certificate for mutual-TLS peer transport (optional)")
	keyFile := flag.String("key", "", "TLS private key matching -cert")
	peerCert := flag.String("peer-cert", "", "trusted peer certificate PEM, repeatable via comma-separated paths")
	flag.Parse()

	mgr := config.NewManager()
	if *configFile != "" {
		if err := mgr.LoadFromFile(*configFile); err != nil {
			fatal("load config: %v", err)
		}
	}
	mgr.LoadFromEnv()
	cfg := mgr.Get()
	if *nodeID != "" {
		cfg.NodeID = *nodeID
	}
	if err := cfg.Validate(); err != nil {
		fatal("invalid config: %v", err)
	}

	logging.SetGlobalLevel(parseLevel(cfg.LogLevel))
	logging.SetJSONMode(cfg.LogJSON)
	log := logging.NewLogger("raftd").With("node", cfg.NodeID)

	id := consensus.NodeID(cfg.NodeID)
	peerAddr := fmt.Sprintf(":%d", cfg.PeerPort)

	var adv *cluster.Advertiser
	if *advertise && *discover != "" {
		a, err := cluster.Advertise(*discover, cfg.NodeID, cfg.PeerPort)
		if err != nil {
			log.Warn("advertise failed", "error", err.Error())
		} else {
			adv = a
			defer adv.Shutdown()
		}
	}

	addrs, err := resolvePeers(*peersFlag, *discover, *discoverTimeout, log)
	if err != nil {
		fatal("resolve peers: %v", err)
	}

	var tlsCfg *tlsConfigPair
	if *certFile != "" && *keyFile != "" {
		tlsCfg = &tlsConfigPair{cert: *certFile, key: *keyFile, peerCerts: splitNonEmpty(*peerCert)}
	}
	peerTLS, err := buildTLSConfig(tlsCfg)
	if err != nil {
		fatal("tls setup: %v", err)
	}

	tcpTransport := transport.NewTCP(id, peerAddr, addrs, peerTLS, compression.DefaultConfig())
	if err := tcpTransport.Listen(); err != nil {
		fatal("listen on %s: %v", peerAddr, err)
	}
	log.Info("listening for peers", "addr", peerAddr)

	stable, err := consensus.NewFileStable(cfg.DataDir)
	if err != nil {
		fatal("open stable store: %v", err)
	}

	store := newMemoryKV()
	node := consensus.NewNode(consensus.Config{
		ID:        id,
		Transport: tcpTransport,
		Stable:    stable,
		Apply:     store.apply,
		Seed:      time.Now().UnixNano(),
	})

	go node.Run()

	peerIDs := make([]consensus.NodeID, 0, len(addrs)+1)
	peerIDs = append(peerIDs, id)
	for pid := range addrs {
		peerIDs = append(peerIDs, pid)
	}
	node.Deliver(id, consensus.InitMsg{Nodes: peerIDs})
	log.Info("cluster initialised", "peers", len(peerIDs))

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	<-sig
	log.Info("shutting down")
	node.Stop()
}

func fatal(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, "raftd: "+format+"\n", args...)
	os.Exit(1)
}

func parseLevel(s string) logging.Level {
	return logging.ParseLevel(s)
}

func resolvePeers(peersFlag, service string, timeout time.Duration, log *logging.Logger) (map[consensus.NodeID]string, error) {
	addrs := make(map[consensus.NodeID]string)
	if peersFlag != "" {
		for _, pair := range strings.Split(peersFlag, ",") {
			kv := strings.SplitN(pair, "=", 2)
			if len(kv) != 2 {
				return nil, fmt.Errorf("malformed peer entry %q, want id=host:port", pair)
			}
			addrs[consensus.NodeID(kv[0])] = kv[1]
		}
		return addrs, nil
	}
	if service == "" {
		return addrs, nil
	}

	found, err := cluster.DiscoverPeers(service, timeout)
	if err != nil {
		return nil, err
	}
	for _, p := range found {
		addrs[consensus.NodeID(p.ID)] = p.Addr
	}
	log.Info("discovered peers", "count", len(addrs), "service", service)
	return addrs, nil
}

func splitNonEmpty(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(s, ",")
}

type tlsConfigPair struct {
	cert, key string
	peerCerts []string
}

func buildTLSConfig(pair *tlsConfigPair) (*ctls.Config, error) {
	if pair == nil {
		return nil, nil
	}
	var trusted [][]byte
	for _, p := range pair.peerCerts {
		data, err := os.ReadFile(p)
		if err != nil {
			return nil, fmt.Errorf("read peer cert %s: %w", p, err)
		}
		trusted = append(trusted, data)
	}
	return raftls.LoadPeerTLSConfig(pair.cert, pair.key, trusted)
}

// memoryKV is the demo state machine raftd applies committed commands
// to: a plain in-memory key/value store driven by "SET key value" /
// "GET key" text commands. Real deployments supply their own Apply.
type memoryKV struct {
	mu   sync.Mutex
	data map[string]string
}

func newMemoryKV() *memoryKV {
	return &memoryKV{data: make(map[string]string)}
}

func (m *memoryKV) apply(command []byte) ([]byte, error) {
	fields := strings.Fields(string(command))
	if len(fields) == 0 {
		return nil, fmt.Errorf("empty command")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	switch strings.ToUpper(fields[0]) {
	case "SET":
		if len(fields) < 3 {
			return nil, fmt.Errorf("SET requires key and value")
		}
		m.data[fields[1]] = strings.Join(fields[2:], " ")
		return []byte("OK"), nil
	case "GET":
		if len(fields) < 2 {
			return nil, fmt.Errorf("GET requires key")
		}
		v, ok := m.data[fields[1]]
		if !ok {
			return nil, fmt.Errorf("key not found: %s", fields[1])
		}
		return []byte(v), nil
	case "DEL":
		if len(fields) < 2 {
			return nil, fmt.Errorf("DEL requires key")
		}
		delete(m.data, fields[1])
		return []byte("OK"), nil
	default:
		return nil, fmt.Errorf("unknown command: %s", fields[0])
	}
}
