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

// Package cluster wires up bootstrap-time peer discovery and the
// in-process demo cluster on top of internal/consensus.
//
// Discovery here is deliberately a one-shot sweep, not the continuous
// gossip membership protocol a dynamically reconfigurable cluster
// would need: spec.md's cluster membership is frozen at Init, so
// discovery's only job is assembling that initial peer list before
// the first Init is sent, not tracking joins and leaves afterward.
package cluster

import (
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/hashicorp/mdns"
	"github.com/miekg/dns"

	"github.com/firefly-oss/raft/internal/logging"
)

var discoveryLog = logging.NewLogger("discovery")

// PeerAddr is a discovered peer's node identity and dialable address.
type PeerAddr struct {
	ID   string
	Addr string
}

// Advertiser publishes this node's presence over mDNS so other nodes
// bootstrapping the same service name can find it.
type Advertiser struct {
	server *mdns.Server
}

// Advertise registers nodeID on the local network under serviceName,
// reachable at port. The returned Advertiser must be shut down when
// the node leaves the bootstrap phase; it does not need to stay up
// for the cluster's operational lifetime since membership is frozen
// after Init.
func Advertise(serviceName, nodeID string, port int) (*Advertiser, error) {
	host, err := net.LookupHost(localHostname())
	var ips []net.IP
	if err == nil {
		for _, h := range host {
			if ip := net.ParseIP(h); ip != nil {
				ips = append(ips, ip)
			}
		}
	}

	svc, err := mdns.NewMDNSService(nodeID, serviceName, "", "", port, ips, []string{"node_id=" + nodeID})
	if err != nil {
		return nil, fmt.Errorf("discovery: build mdns service: %w", err)
	}

	server, err := mdns.NewServer(&mdns.Config{Zone: svc})
	if err != nil {
		return nil, fmt.Errorf("discovery: start mdns server: %w", err)
	}
	return &Advertiser{server: server}, nil
}

// Shutdown stops advertising this node.
func (a *Advertiser) Shutdown() error {
	if a.server == nil {
		return nil
	}
	return a.server.Shutdown()
}

func localHostname() string {
	h, err := net.LookupAddr("127.0.0.1")
	if err != nil || len(h) == 0 {
		return "localhost."
	}
	return h[0]
}

// DiscoverPeers sweeps for serviceName advertisements on the local
// network for up to timeout, returning whatever peers answered. It is
// meant to be called once at bootstrap by every node racing to learn
// about each other, not polled continuously.
func DiscoverPeers(serviceName string, timeout time.Duration) ([]PeerAddr, error) {
	entriesCh := make(chan *mdns.ServiceEntry, 16)
	var peers []PeerAddr
	done := make(chan struct{})

	go func() {
		defer close(done)
		for e := range entriesCh {
			id := nodeIDFromInfo(e.InfoFields)
			if id == "" {
				id = e.Name
			}
			addr := e.AddrV4
			if addr == nil {
				addr = e.AddrV6
			}
			if addr == nil {
				continue
			}
			peers = append(peers, PeerAddr{ID: id, Addr: net.JoinHostPort(addr.String(), strconv.Itoa(e.Port))})
		}
	}()

	params := &mdns.QueryParam{
		Service: serviceName,
		Domain:  "local",
		Timeout: timeout,
		Entries: entriesCh,
	}
	if err := mdns.Query(params); err != nil {
		close(entriesCh)
		return nil, fmt.Errorf("discovery: mdns query: %w", err)
	}
	close(entriesCh)
	<-done

	return peers, nil
}

func nodeIDFromInfo(fields []string) string {
	for _, f := range fields {
		if strings.HasPrefix(f, "node_id=") {
			return strings.TrimPrefix(f, "node_id=")
		}
	}
	return ""
}

// DiscoverPeersDNS is a fallback for environments where multicast DNS
// is blocked (many container networks disable it): it resolves SRV
// records for serviceName directly against a configured unicast DNS
// server, using miekg/dns rather than the OS resolver so the
// discovery timeout is enforced precisely rather than inherited from
// whatever the platform resolver defaults to.
func DiscoverPeersDNS(dnsServer, serviceName string, timeout time.Duration) ([]PeerAddr, error) {
	client := &dns.Client{Timeout: timeout}
	msg := &dns.Msg{}
	msg.SetQuestion(dns.Fqdn(serviceName), dns.TypeSRV)

	resp, _, err := client.Exchange(msg, dnsServer)
	if err != nil {
		return nil, fmt.Errorf("discovery: dns exchange: %w", err)
	}

	var peers []PeerAddr
	for _, rr := range resp.Answer {
		srv, ok := rr.(*dns.SRV)
		if !ok {
			continue
		}
		target := strings.TrimSuffix(srv.Target, ".")
		peers = append(peers, PeerAddr{
			ID:   target,
			Addr: net.JoinHostPort(target, strconv.Itoa(int(srv.Port))),
		})
	}
	return peers, nil
}
