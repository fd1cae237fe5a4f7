package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/nerrad567/connectmesh-bridge/internal/auth"
)

// testConfigYAML renders a minimal valid configuration pointing at the
// given database path. Cloud token, JWT secret and operator hash have no
// defaults so they must be supplied here.
func testConfigYAML(t *testing.T, dbPath, mqttPort string) string {
	t.Helper()

	hash, err := auth.HashPassword("test-operator-password")
	if err != nil {
		t.Fatalf("HashPassword() error = %v", err)
	}

	return `
cloud:
  base_url: "https://cloud.example.test/api/core"
  token: "test-cloud-token"

database:
  path: "` + dbPath + `"
  wal_mode: true
  busy_timeout: 5

mqtt:
  broker:
    host: "127.0.0.1"
    port: ` + mqttPort + `
    client_id: "meshbridge-test"
  qos: 1
  reconnect:
    initial_delay: 1
    max_delay: 5
  base_topic: "meshbridge"

influxdb:
  enabled: false

logging:
  level: info
  format: text
  output: stdout

api:
  host: "127.0.0.1"
  port: 18093
  timeouts:
    read: 30
    write: 30
    idle: 60

security:
  jwt:
    secret: "test-secret-at-least-32-characters-long"
  operator:
    username: "operator"
    password_hash: "` + hash + `"
`
}

// TestRun_InvalidConfig verifies run fails with invalid config path.
func TestRun_InvalidConfig(t *testing.T) {
	originalEnv := os.Getenv("MESHBRIDGE_CONFIG")
	defer os.Setenv("MESHBRIDGE_CONFIG", originalEnv)

	os.Setenv("MESHBRIDGE_CONFIG", "/nonexistent/path/config.yaml")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := run(ctx)
	if err == nil {
		t.Fatal("run() should fail with invalid config path")
	}
}

// TestRun_MissingRequiredSecrets verifies run fails when the config omits
// the cloud token and security secrets.
func TestRun_MissingRequiredSecrets(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "test-config.yaml")

	configContent := `
database:
  path: "` + filepath.Join(tmpDir, "test.db") + `"

logging:
  level: info
  format: text
  output: stdout
`
	if err := os.WriteFile(configPath, []byte(configContent), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	originalEnv := os.Getenv("MESHBRIDGE_CONFIG")
	defer os.Setenv("MESHBRIDGE_CONFIG", originalEnv)
	os.Setenv("MESHBRIDGE_CONFIG", configPath)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := run(ctx)
	if err == nil {
		t.Fatal("run() should fail when required secrets are missing")
	}
}

// TestGetConfigPath_Default verifies default config path.
func TestGetConfigPath_Default(t *testing.T) {
	originalEnv := os.Getenv("MESHBRIDGE_CONFIG")
	defer os.Setenv("MESHBRIDGE_CONFIG", originalEnv)

	os.Unsetenv("MESHBRIDGE_CONFIG")

	path := getConfigPath()
	if path != defaultConfigPath {
		t.Errorf("getConfigPath() = %q, want %q", path, defaultConfigPath)
	}
}

// TestGetConfigPath_EnvOverride verifies environment variable override.
func TestGetConfigPath_EnvOverride(t *testing.T) {
	originalEnv := os.Getenv("MESHBRIDGE_CONFIG")
	defer os.Setenv("MESHBRIDGE_CONFIG", originalEnv)

	expected := "/custom/path/config.yaml"
	os.Setenv("MESHBRIDGE_CONFIG", expected)

	path := getConfigPath()
	if path != expected {
		t.Errorf("getConfigPath() = %q, want %q", path, expected)
	}
}

// TestRun_SuccessfulStartupAndShutdown tests full startup with running services.
// Requires MQTT broker at 127.0.0.1:1883.
func TestRun_SuccessfulStartupAndShutdown(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "test-config.yaml")
	dbPath := filepath.Join(tmpDir, "test.db")

	if err := os.WriteFile(configPath, []byte(testConfigYAML(t, dbPath, "1883")), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	originalEnv := os.Getenv("MESHBRIDGE_CONFIG")
	defer os.Setenv("MESHBRIDGE_CONFIG", originalEnv)
	os.Setenv("MESHBRIDGE_CONFIG", configPath)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	err := run(ctx)

	if err != nil {
		t.Logf("run() returned error: %v (may be due to missing MQTT broker)", err)
	}
}

// TestRun_ContextCancelledDuringStartup verifies cancellation during startup.
func TestRun_ContextCancelledDuringStartup(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "test-config.yaml")
	dbPath := filepath.Join(tmpDir, "test.db")

	// Port 19999 has no broker listening, so MQTT connection stalls and
	// the context timeout drives the shutdown path.
	if err := os.WriteFile(configPath, []byte(testConfigYAML(t, dbPath, "19999")), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	originalEnv := os.Getenv("MESHBRIDGE_CONFIG")
	defer os.Setenv("MESHBRIDGE_CONFIG", originalEnv)
	os.Setenv("MESHBRIDGE_CONFIG", configPath)

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	err := run(ctx)

	if err == nil {
		t.Log("run() completed without error (may have cancelled cleanly)")
	} else {
		t.Logf("run() returned error (expected): %v", err)
	}
}
