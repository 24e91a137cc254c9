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
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.ClientPort != 8888 {
		t.Errorf("Expected default client port 8888, got %d", cfg.ClientPort)
	}
	if cfg.PeerPort != 8889 {
		t.Errorf("Expected default peer port 8889, got %d", cfg.PeerPort)
	}
	if cfg.DiscoveryPort != 9999 {
		t.Errorf("Expected default discovery port 9999, got %d", cfg.DiscoveryPort)
	}
	if cfg.Role != "voter" {
		t.Errorf("Expected default role 'voter', got '%s'", cfg.Role)
	}
	if cfg.DataDir != "raft.data" {
		t.Errorf("Expected default data_dir 'raft.data', got '%s'", cfg.DataDir)
	}
	if cfg.LogLevel != "info" {
		t.Errorf("Expected default log_level 'info', got '%s'", cfg.LogLevel)
	}
	if cfg.LogJSON != false {
		t.Errorf("Expected default log_json false, got %v", cfg.LogJSON)
	}
}

func TestConfigValidation(t *testing.T) {
	tests := []struct {
		name    string
		cfg     *Config
		wantErr bool
	}{
		{
			name:    "valid voter config",
			cfg:     DefaultConfig(),
			wantErr: false,
		},
		{
			name: "valid voter with explicit node id",
			cfg: &Config{
				NodeID:        "node-1",
				ClientPort:    8888,
				PeerPort:      8889,
				DiscoveryPort: 9999,
				Role:          "voter",
				DataDir:       "test.data",
				LogLevel:      "info",
			},
			wantErr: false,
		},
		{
			name: "valid learner config",
			cfg: &Config{
				ClientPort:    8888,
				PeerPort:      8889,
				DiscoveryPort: 9999,
				Role:          "learner",
				LeaderHint:    "localhost:8889",
				DataDir:       "test.data",
				LogLevel:      "info",
			},
			wantErr: false,
		},
		{
			name: "invalid port - zero",
			cfg: &Config{
				ClientPort:    0,
				PeerPort:      8889,
				DiscoveryPort: 9999,
				Role:          "voter",
				DataDir:       "test.data",
				LogLevel:      "info",
			},
			wantErr: true,
		},
		{
			name: "invalid port - too high",
			cfg: &Config{
				ClientPort:    70000,
				PeerPort:      8889,
				DiscoveryPort: 9999,
				Role:          "voter",
				DataDir:       "test.data",
				LogLevel:      "info",
			},
			wantErr: true,
		},
		{
			name: "port conflict",
			cfg: &Config{
				ClientPort:    8888,
				PeerPort:      8888,
				DiscoveryPort: 9999,
				Role:          "voter",
				DataDir:       "test.data",
				LogLevel:      "info",
			},
			wantErr: true,
		},
		{
			name: "invalid role",
			cfg: &Config{
				ClientPort:    8888,
				PeerPort:      8889,
				DiscoveryPort: 9999,
				Role:          "invalid",
				DataDir:       "test.data",
				LogLevel:      "info",
			},
			wantErr: true,
		},
		{
			name: "learner without leader_hint",
			cfg: &Config{
				ClientPort:    8888,
				PeerPort:      8889,
				DiscoveryPort: 9999,
				Role:          "learner",
				LeaderHint:    "",
				DataDir:       "test.data",
				LogLevel:      "info",
			},
			wantErr: true,
		},
		{
			name: "invalid log level",
			cfg: &Config{
				ClientPort:    8888,
				PeerPort:      8889,
				DiscoveryPort: 9999,
				Role:          "voter",
				DataDir:       "test.data",
				LogLevel:      "invalid",
			},
			wantErr: true,
		},
		{
			name: "empty data_dir",
			cfg: &Config{
				ClientPort:    8888,
				PeerPort:      8889,
				DiscoveryPort: 9999,
				Role:          "voter",
				DataDir:       "",
				LogLevel:      "info",
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestLoadFromFile(t *testing.T) {
	tmpDir, err := os.MkdirTemp("", "raft_config_test_*")
	if err != nil {
		t.Fatalf("Failed to create temp dir: %v", err)
	}
	defer os.RemoveAll(tmpDir)

	configContent := `# Test configuration
node_id = "node-1"
role = "learner"
client_port = 9000
peer_port = 9001
discovery_port = 9002
data_dir = "/tmp/test.data"
log_level = "debug"
log_json = true
leader_hint = "localhost:9999"
`

	configPath := filepath.Join(tmpDir, "raft.conf")
	if err := os.WriteFile(configPath, []byte(configContent), 0644); err != nil {
		t.Fatalf("Failed to write config file: %v", err)
	}

	mgr := NewManager()
	if err := mgr.LoadFromFile(configPath); err != nil {
		t.Fatalf("LoadFromFile failed: %v", err)
	}

	cfg := mgr.Get()

	if cfg.Role != "learner" {
		t.Errorf("Expected role 'learner', got '%s'", cfg.Role)
	}
	if cfg.ClientPort != 9000 {
		t.Errorf("Expected client_port 9000, got %d", cfg.ClientPort)
	}
	if cfg.PeerPort != 9001 {
		t.Errorf("Expected peer_port 9001, got %d", cfg.PeerPort)
	}
	if cfg.DiscoveryPort != 9002 {
		t.Errorf("Expected discovery_port 9002, got %d", cfg.DiscoveryPort)
	}
	if cfg.DataDir != "/tmp/test.data" {
		t.Errorf("Expected data_dir '/tmp/test.data', got '%s'", cfg.DataDir)
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("Expected log_level 'debug', got '%s'", cfg.LogLevel)
	}
	if cfg.LogJSON != true {
		t.Errorf("Expected log_json true, got %v", cfg.LogJSON)
	}
	if cfg.ConfigFile != configPath {
		t.Errorf("Expected ConfigFile '%s', got '%s'", configPath, cfg.ConfigFile)
	}
}

func TestLoadFromEnv(t *testing.T) {
	origPort := os.Getenv(EnvClientPort)
	origRole := os.Getenv(EnvRole)
	origLogLevel := os.Getenv(EnvLogLevel)
	origLogJSON := os.Getenv(EnvLogJSON)
	origAdminPass := os.Getenv(EnvAdminPassword)

	defer func() {
		os.Setenv(EnvClientPort, origPort)
		os.Setenv(EnvRole, origRole)
		os.Setenv(EnvLogLevel, origLogLevel)
		os.Setenv(EnvLogJSON, origLogJSON)
		os.Setenv(EnvAdminPassword, origAdminPass)
	}()

	os.Setenv(EnvClientPort, "7777")
	os.Setenv(EnvRole, "learner")
	os.Setenv(EnvLogLevel, "debug")
	os.Setenv(EnvLogJSON, "true")
	os.Setenv(EnvAdminPassword, "testpassword")

	mgr := NewManager()
	mgr.LoadFromEnv()

	cfg := mgr.Get()

	if cfg.ClientPort != 7777 {
		t.Errorf("Expected client_port 7777 from env, got %d", cfg.ClientPort)
	}
	if cfg.Role != "learner" {
		t.Errorf("Expected role 'learner' from env, got '%s'", cfg.Role)
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("Expected log_level 'debug' from env, got '%s'", cfg.LogLevel)
	}
	if cfg.LogJSON != true {
		t.Errorf("Expected log_json true from env, got %v", cfg.LogJSON)
	}
	if cfg.AdminPassword != "testpassword" {
		t.Errorf("Expected admin_password 'testpassword' from env, got '%s'", cfg.AdminPassword)
	}
}

func TestConfigPrecedence(t *testing.T) {
	tmpDir, err := os.MkdirTemp("", "raft_config_test_*")
	if err != nil {
		t.Fatalf("Failed to create temp dir: %v", err)
	}
	defer os.RemoveAll(tmpDir)

	configContent := `client_port = 9000
role = "voter"
data_dir = "test.data"
log_level = "info"
`
	configPath := filepath.Join(tmpDir, "raft.conf")
	if err := os.WriteFile(configPath, []byte(configContent), 0644); err != nil {
		t.Fatalf("Failed to write config file: %v", err)
	}

	origPort := os.Getenv(EnvClientPort)
	defer os.Setenv(EnvClientPort, origPort)
	os.Setenv(EnvClientPort, "7777")

	mgr := NewManager()
	if err := mgr.LoadFromFile(configPath); err != nil {
		t.Fatalf("LoadFromFile failed: %v", err)
	}
	mgr.LoadFromEnv()

	cfg := mgr.Get()

	if cfg.ClientPort != 7777 {
		t.Errorf("Expected client_port 7777 (env override), got %d", cfg.ClientPort)
	}
}

func TestToTOML(t *testing.T) {
	cfg := &Config{
		NodeID:        "node-1",
		ClientPort:    8888,
		PeerPort:      8889,
		DiscoveryPort: 9999,
		Role:          "learner",
		LeaderHint:    "localhost:8889",
		DataDir:       "/var/lib/raft/node-1",
		LogLevel:      "info",
		LogJSON:       false,
	}

	toml := cfg.ToTOML()

	if !contains(toml, "role = \"learner\"") {
		t.Error("TOML output missing role")
	}
	if !contains(toml, "client_port = 8888") {
		t.Error("TOML output missing client_port")
	}
	if !contains(toml, "peer_port = 8889") {
		t.Error("TOML output missing peer_port")
	}
	if !contains(toml, "data_dir = \"/var/lib/raft/node-1\"") {
		t.Error("TOML output missing data_dir")
	}
}

func TestSaveToFile(t *testing.T) {
	tmpDir, err := os.MkdirTemp("", "raft_config_test_*")
	if err != nil {
		t.Fatalf("Failed to create temp dir: %v", err)
	}
	defer os.RemoveAll(tmpDir)

	cfg := DefaultConfig()
	cfg.ClientPort = 7777
	cfg.Role = "voter"

	configPath := filepath.Join(tmpDir, "subdir", "raft.conf")
	if err := cfg.SaveToFile(configPath); err != nil {
		t.Fatalf("SaveToFile failed: %v", err)
	}

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		t.Error("Config file was not created")
	}

	mgr := NewManager()
	if err := mgr.LoadFromFile(configPath); err != nil {
		t.Fatalf("Failed to load saved config: %v", err)
	}

	loaded := mgr.Get()
	if loaded.ClientPort != 7777 {
		t.Errorf("Expected client_port 7777, got %d", loaded.ClientPort)
	}
	if loaded.Role != "voter" {
		t.Errorf("Expected role 'voter', got '%s'", loaded.Role)
	}
}

func TestReload(t *testing.T) {
	tmpDir, err := os.MkdirTemp("", "raft_config_test_*")
	if err != nil {
		t.Fatalf("Failed to create temp dir: %v", err)
	}
	defer os.RemoveAll(tmpDir)

	configContent := `client_port = 9000
role = "voter"
data_dir = "test.data"
log_level = "info"
`
	configPath := filepath.Join(tmpDir, "raft.conf")
	if err := os.WriteFile(configPath, []byte(configContent), 0644); err != nil {
		t.Fatalf("Failed to write config file: %v", err)
	}

	mgr := NewManager()
	if err := mgr.LoadFromFile(configPath); err != nil {
		t.Fatalf("LoadFromFile failed: %v", err)
	}

	cfg := mgr.Get()
	if cfg.ClientPort != 9000 {
		t.Errorf("Expected initial client_port 9000, got %d", cfg.ClientPort)
	}

	reloadCalled := false
	mgr.OnReload(func(c *Config) {
		reloadCalled = true
	})

	newContent := `client_port = 8000
role = "voter"
data_dir = "test.data"
log_level = "debug"
`
	if err := os.WriteFile(configPath, []byte(newContent), 0644); err != nil {
		t.Fatalf("Failed to update config file: %v", err)
	}

	if err := mgr.Reload(); err != nil {
		t.Fatalf("Reload failed: %v", err)
	}

	cfg = mgr.Get()
	if cfg.ClientPort != 8000 {
		t.Errorf("Expected reloaded client_port 8000, got %d", cfg.ClientPort)
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("Expected reloaded log_level 'debug', got '%s'", cfg.LogLevel)
	}
	if !reloadCalled {
		t.Error("Reload callback was not called")
	}
}

func TestGlobalManager(t *testing.T) {
	mgr := Global()
	if mgr == nil {
		t.Error("Global() returned nil")
	}

	mgr2 := Global()
	if mgr != mgr2 {
		t.Error("Global() returned different instances")
	}
}

func TestConfigString(t *testing.T) {
	cfg := DefaultConfig()
	str := cfg.String()

	if !contains(str, "Role:") {
		t.Error("String() missing Role")
	}
	if !contains(str, "ClientPort:") {
		t.Error("String() missing ClientPort")
	}
	if !contains(str, "voter") {
		t.Error("String() missing role value")
	}
}

// Helper function
func contains(s, substr string) bool {
	return len(s) >= len(substr) && (s == substr || len(s) > 0 && containsHelper(s, substr))
}

func containsHelper(s, substr string) bool {
	for i := 0; i <= len(s)-len(substr); i++ {
		if s[i:i+len(substr)] == substr {
			return true
		}
	}
	return false
}
