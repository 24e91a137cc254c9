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

// Package config loads and validates node configuration for the raft
// module, from defaults, a TOML-ish file, and environment variables,
// in that order of increasing precedence.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Config holds a single node's configuration.
type Config struct {
	NodeID        string `json:"node_id"`
	ClientPort    int    `json:"client_port"`
	PeerPort      int    `json:"peer_port"`
	DiscoveryPort int    `json:"discovery_port"`
	Role          string `json:"role"` // "voter" or "learner"
	LeaderHint    string `json:"leader_hint"`
	DataDir       string `json:"data_dir"`
	LogLevel      string `json:"log_level"`
	LogJSON       bool   `json:"log_json"`
	AdminPassword string `json:"admin_password"`

	// ConfigFile records the path Config was loaded from, empty if none.
	ConfigFile string `json:"-"`
}

var validRoles = map[string]bool{"voter": true, "learner": true}
var validLogLevels = map[string]bool{"debug": true, "info": true, "warn": true, "error": true}

// DefaultConfig returns sensible defaults for a single-node bootstrap.
func DefaultConfig() *Config {
	return &Config{
		ClientPort:    8888,
		PeerPort:      8889,
		DiscoveryPort: 9999,
		Role:          "voter",
		DataDir:       "raft.data",
		LogLevel:      "info",
		LogJSON:       false,
	}
}

// Validate checks the config for internal consistency.
func (c *Config) Validate() error {
	if err := validatePort("client_port", c.ClientPort); err != nil {
		return err
	}
	if err := validatePort("peer_port", c.PeerPort); err != nil {
		return err
	}
	if c.DiscoveryPort != 0 {
		if err := validatePort("discovery_port", c.DiscoveryPort); err != nil {
			return err
		}
	}
	if c.ClientPort == c.PeerPort {
		return fmt.Errorf("client_port and peer_port must differ, both are %d", c.ClientPort)
	}
	if c.DiscoveryPort != 0 && (c.DiscoveryPort == c.ClientPort || c.DiscoveryPort == c.PeerPort) {
		return fmt.Errorf("discovery_port %d conflicts with another configured port", c.DiscoveryPort)
	}
	if !validRoles[c.Role] {
		return fmt.Errorf("invalid role %q, must be 'voter' or 'learner'", c.Role)
	}
	if c.Role == "learner" && c.LeaderHint == "" {
		return fmt.Errorf("role 'learner' requires leader_hint to be set")
	}
	if !validLogLevels[c.LogLevel] {
		return fmt.Errorf("invalid log_level %q", c.LogLevel)
	}
	if c.DataDir == "" {
		return fmt.Errorf("data_dir must not be empty")
	}
	return nil
}

func validatePort(name string, port int) error {
	if port < 1 || port > 65535 {
		return fmt.Errorf("invalid %s: %d (must be 1-65535)", name, port)
	}
	return nil
}

// ToTOML renders the config in the TOML-ish format LoadFromFile reads.
func (c *Config) ToTOML() string {
	var sb strings.Builder
	writeStr := func(key, val string) {
		if val == "" {
			return
		}
		fmt.Fprintf(&sb, "%s = %q\n", key, val)
	}
	writeStr("node_id", c.NodeID)
	writeStr("role", c.Role)
	fmt.Fprintf(&sb, "client_port = %d\n", c.ClientPort)
	fmt.Fprintf(&sb, "peer_port = %d\n", c.PeerPort)
	fmt.Fprintf(&sb, "discovery_port = %d\n", c.DiscoveryPort)
	writeStr("leader_hint", c.LeaderHint)
	writeStr("data_dir", c.DataDir)
	writeStr("log_level", c.LogLevel)
	fmt.Fprintf(&sb, "log_json = %t\n", c.LogJSON)
	return sb.String()
}

// SaveToFile writes the config as TOML to path, creating parent
// directories as needed.
func (c *Config) SaveToFile(path string) error {
	if dir := dirOf(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("config: create directory: %w", err)
		}
	}
	return os.WriteFile(path, []byte(c.ToTOML()), 0644)
}

func dirOf(path string) string {
	i := strings.LastIndexByte(path, '/')
	if i < 0 {
		return ""
	}
	return path[:i]
}

// String renders a human-readable summary, used for startup log lines.
func (c *Config) String() string {
	return fmt.Sprintf(
		"Config{NodeID: %q, Role: %s, ClientPort: %d, PeerPort: %d, DataDir: %q, LogLevel: %s}",
		c.NodeID, c.Role, c.ClientPort, c.PeerPort, c.DataDir, c.LogLevel,
	)
}

func parseBool(s string) bool {
	b, err := strconv.ParseBool(s)
	return err == nil && b
}
