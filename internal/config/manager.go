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

package config

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
)

// Environment variable names recognized by LoadFromEnv.
const (
	EnvClientPort    = "RAFT_CLIENT_PORT"
	EnvPeerPort      = "RAFT_PEER_PORT"
	EnvRole          = "RAFT_ROLE"
	EnvLogLevel      = "RAFT_LOG_LEVEL"
	EnvLogJSON       = "RAFT_LOG_JSON"
	EnvAdminPassword = "RAFT_ADMIN_PASSWORD"
	EnvDataDir       = "RAFT_DATA_DIR"
	EnvLeaderHint    = "RAFT_LEADER_HINT"
)

// Manager owns a Config and coordinates reloads from its source file.
type Manager struct {
	mu       sync.RWMutex
	cfg      *Config
	onReload []func(*Config)
}

// NewManager returns a Manager seeded with DefaultConfig.
func NewManager() *Manager {
	return &Manager{cfg: DefaultConfig()}
}

// Get returns the current config. The returned pointer must be treated
// as read-only by callers; mutate through LoadFromFile/LoadFromEnv/Reload.
func (m *Manager) Get() *Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.cfg
}

// LoadFromFile parses a TOML-ish config file and replaces the managed
// config with DefaultConfig overlaid by the file's values (earlier
// LoadFromEnv overrides are not kept), remembering path for future
// Reload calls.
func (m *Manager) LoadFromFile(path string) error {
	cfg, err := loadFile(path)
	if err != nil {
		return err
	}
	m.mu.Lock()
	m.cfg = cfg
	m.mu.Unlock()
	return nil
}

// LoadFromEnv overlays environment variables onto the managed config,
// taking precedence over whatever LoadFromFile set.
func (m *Manager) LoadFromEnv() {
	m.mu.Lock()
	defer m.mu.Unlock()
	applyEnv(m.cfg)
}

// Reload re-reads the config file last passed to LoadFromFile, then
// invokes every registered OnReload callback with the new config.
func (m *Manager) Reload() error {
	m.mu.Lock()
	path := m.cfg.ConfigFile
	if path == "" {
		m.mu.Unlock()
		return fmt.Errorf("config: no file to reload, LoadFromFile was never called")
	}
	cfg, err := loadFile(path)
	if err != nil {
		m.mu.Unlock()
		return err
	}
	m.cfg = cfg
	callbacks := append([]func(*Config){}, m.onReload...)
	m.mu.Unlock()

	for _, cb := range callbacks {
		cb(cfg)
	}
	return nil
}

// OnReload registers a callback invoked after every successful Reload.
func (m *Manager) OnReload(cb func(*Config)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onReload = append(m.onReload, cb)
}

func loadFile(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %s: %w", path, err)
	}
	defer f.Close()

	cfg := DefaultConfig()
	cfg.ConfigFile = path

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, val, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		val = strings.TrimSpace(val)
		val = strings.Trim(val, `"`)

		switch key {
		case "node_id":
			cfg.NodeID = val
		case "role":
			cfg.Role = val
		case "client_port", "port":
			cfg.ClientPort, _ = strconv.Atoi(val)
		case "peer_port", "binary_port":
			cfg.PeerPort, _ = strconv.Atoi(val)
		case "discovery_port", "replication_port":
			cfg.DiscoveryPort, _ = strconv.Atoi(val)
		case "leader_hint", "master_addr":
			cfg.LeaderHint = val
		case "data_dir", "db_path":
			cfg.DataDir = val
		case "log_level":
			cfg.LogLevel = val
		case "log_json":
			cfg.LogJSON = parseBool(val)
		case "admin_password":
			cfg.AdminPassword = val
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv(EnvClientPort); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			cfg.ClientPort = p
		}
	}
	if v := os.Getenv(EnvPeerPort); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			cfg.PeerPort = p
		}
	}
	if v := os.Getenv(EnvRole); v != "" {
		cfg.Role = v
	}
	if v := os.Getenv(EnvLogLevel); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv(EnvLogJSON); v != "" {
		cfg.LogJSON = parseBool(v)
	}
	if v := os.Getenv(EnvAdminPassword); v != "" {
		cfg.AdminPassword = v
	}
	if v := os.Getenv(EnvDataDir); v != "" {
		cfg.DataDir = v
	}
	if v := os.Getenv(EnvLeaderHint); v != "" {
		cfg.LeaderHint = v
	}
}

var (
	globalOnce sync.Once
	globalMgr  *Manager
)

// Global returns the process-wide Manager singleton.
func Global() *Manager {
	globalOnce.Do(func() {
		globalMgr = NewManager()
	})
	return globalMgr
}
