package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// minJWTSecretLength rejects secrets short enough to brute-force.
const minJWTSecretLength = 32

// Config is the root configuration for the bridge. Values come from
// YAML, with environment variables layered on top for secrets and
// deployment overrides.
type Config struct {
	Cloud     CloudConfig     `yaml:"cloud"`
	Database  DatabaseConfig  `yaml:"database"`
	MQTT      MQTTConfig      `yaml:"mqtt"`
	API       APIConfig       `yaml:"api"`
	WebSocket WebSocketConfig `yaml:"websocket"`
	InfluxDB  InfluxDBConfig  `yaml:"influxdb"`
	Poll      PollConfig      `yaml:"poll"`
	Logging   LoggingConfig   `yaml:"logging"`
	Security  SecurityConfig  `yaml:"security"`
}

// CloudConfig points the bridge at the Connect Mesh cloud API.
type CloudConfig struct {
	BaseURL string      `yaml:"base_url"`
	Token   string      `yaml:"token"`
	Timeout int         `yaml:"timeout"`
	Retry   RetryConfig `yaml:"retry"`

	// MinStatusInterval is the minimum spacing between status requests
	// for the same device, in seconds.
	MinStatusInterval int `yaml:"min_status_interval"`
}

// RetryConfig shapes backoff for transient cloud failures. Delays are
// in seconds.
type RetryConfig struct {
	MaxAttempts  int `yaml:"max_attempts"`
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`
}

// DatabaseConfig tunes the embedded SQLite store.
type DatabaseConfig struct {
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// MQTTConfig covers the broker connection and the bridge's topic roots.
type MQTTConfig struct {
	Broker    MQTTBrokerConfig    `yaml:"broker"`
	Auth      MQTTAuthConfig      `yaml:"auth"`
	QoS       int                 `yaml:"qos"`
	Reconnect MQTTReconnectConfig `yaml:"reconnect"`

	// DiscoveryPrefix is the Home Assistant discovery topic root.
	DiscoveryPrefix string `yaml:"discovery_prefix"`

	// BaseTopic is the root of the bridge's own state/command topic tree.
	BaseTopic string `yaml:"base_topic"`
}

// MQTTBrokerConfig identifies the broker to dial.
type MQTTBrokerConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	TLS      bool   `yaml:"tls"`
	ClientID string `yaml:"client_id"`
}

// MQTTAuthConfig carries optional broker credentials.
type MQTTAuthConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// MQTTReconnectConfig bounds the reconnect backoff, in seconds.
// MaxAttempts zero means retry forever.
type MQTTReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`
	MaxAttempts  int `yaml:"max_attempts"`
}

// APIConfig configures the local REST and WebSocket listener.
type APIConfig struct {
	Host     string           `yaml:"host"`
	Port     int              `yaml:"port"`
	TLS      TLSConfig        `yaml:"tls"`
	Timeouts APITimeoutConfig `yaml:"timeouts"`
	CORS     CORSConfig       `yaml:"cors"`
}

// TLSConfig enables HTTPS on the local listener.
type TLSConfig struct {
	Enabled  bool   `yaml:"enabled"`
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
}

// APITimeoutConfig holds the HTTP server timeouts, in seconds.
type APITimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

// CORSConfig lists what the browser UI is allowed to send.
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
	AllowedMethods []string `yaml:"allowed_methods"`
	AllowedHeaders []string `yaml:"allowed_headers"`
}

// WebSocketConfig tunes the push channel. Intervals are in seconds,
// message size in bytes.
type WebSocketConfig struct {
	Path           string `yaml:"path"`
	MaxMessageSize int    `yaml:"max_message_size"`
	PingInterval   int    `yaml:"ping_interval"`
	PongTimeout    int    `yaml:"pong_timeout"`
}

// InfluxDBConfig connects the optional telemetry sink.
type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`     // points per write
	FlushInterval int    `yaml:"flush_interval"` // seconds
}

// PollConfig contains polling cadence settings, in seconds.
type PollConfig struct {
	// StatusInterval is how often device status is refreshed.
	StatusInterval int `yaml:"status_interval"`

	// DetailsInterval is how often full device details are refreshed.
	DetailsInterval int `yaml:"details_interval"`

	// DiscoveryInterval is how often the cloud is swept for new devices.
	DiscoveryInterval int `yaml:"discovery_interval"`

	// AvailabilityTimeout marks a device unavailable when its last
	// successful status update is older than this.
	AvailabilityTimeout int `yaml:"availability_timeout"`
}

// LoggingConfig selects log level, format and destination.
type LoggingConfig struct {
	Level  string            `yaml:"level"`
	Format string            `yaml:"format"`
	Output string            `yaml:"output"`
	File   FileLoggingConfig `yaml:"file"`
}

// FileLoggingConfig sets rotation for file output.
type FileLoggingConfig struct {
	Path       string `yaml:"path"`
	MaxSize    int    `yaml:"max_size"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAge     int    `yaml:"max_age"`
	Compress   bool   `yaml:"compress"`
}

// SecurityConfig groups the authentication settings.
type SecurityConfig struct {
	JWT       JWTConfig       `yaml:"jwt"`
	Operator  OperatorConfig  `yaml:"operator"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
}

// JWTConfig signs operator access tokens. TTLs are in minutes.
type JWTConfig struct {
	Secret          string `yaml:"secret"`
	AccessTokenTTL  int    `yaml:"access_token_ttl"`
	RefreshTokenTTL int    `yaml:"refresh_token_ttl"`
}

// OperatorConfig contains the single operator account used by the REST API.
// PasswordHash is an argon2id encoded hash, never a plaintext password.
type OperatorConfig struct {
	Username     string `yaml:"username"`
	PasswordHash string `yaml:"password_hash"`
}

// RateLimitConfig throttles the REST API per client IP.
type RateLimitConfig struct {
	Enabled           bool `yaml:"enabled"`
	RequestsPerMinute int  `yaml:"requests_per_minute"`
}

// Load builds the configuration in three layers: compiled-in defaults,
// then the YAML file at path, then environment overrides. The result
// is validated before being returned.
//
// Environment variables follow MESHBRIDGE_SECTION_KEY, for example
// MESHBRIDGE_CLOUD_TOKEN or MESHBRIDGE_DATABASE_PATH.
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return cfg, nil
}

// defaultConfig is what a fresh install runs with before the YAML file
// says otherwise. Secrets have no defaults.
func defaultConfig() *Config {
	return &Config{
		Cloud: CloudConfig{
			BaseURL:           "https://cloud.connect-mesh.io/api/core",
			Timeout:           10,
			Retry:             RetryConfig{MaxAttempts: 5, InitialDelay: 1, MaxDelay: 30},
			MinStatusInterval: 1,
		},
		Database: DatabaseConfig{
			Path:        "./data/meshbridge.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		MQTT: MQTTConfig{
			Broker:          MQTTBrokerConfig{Host: "localhost", Port: 1883, ClientID: "meshbridge"},
			QoS:             1,
			Reconnect:       MQTTReconnectConfig{InitialDelay: 1, MaxDelay: 60, MaxAttempts: 0},
			DiscoveryPrefix: "homeassistant",
			BaseTopic:       "meshbridge",
		},
		API: APIConfig{
			Host:     "0.0.0.0",
			Port:     8080,
			Timeouts: APITimeoutConfig{Read: 30, Write: 30, Idle: 60},
		},
		WebSocket: WebSocketConfig{
			Path:           "/ws",
			MaxMessageSize: 8192,
			PingInterval:   30,
			PongTimeout:    10,
		},
		Poll: PollConfig{
			StatusInterval:      30,
			DetailsInterval:     300,
			DiscoveryInterval:   900,
			AvailabilityTimeout: 120,
		},
		Logging: LoggingConfig{Level: "info", Format: "json", Output: "stdout"},
		Security: SecurityConfig{
			JWT:       JWTConfig{AccessTokenTTL: 15, RefreshTokenTTL: 1440},
			Operator:  OperatorConfig{Username: "operator"},
			RateLimit: RateLimitConfig{Enabled: true, RequestsPerMinute: 100},
		},
	}
}

// applyEnvOverrides lets the environment replace selected string
// settings. Secrets are expected to arrive this way so they never have
// to live in the config file; numeric tuning stays file-only.
func applyEnvOverrides(cfg *Config) {
	overrides := []struct {
		env string
		dst *string
	}{
		{"MESHBRIDGE_CLOUD_BASE_URL", &cfg.Cloud.BaseURL},
		{"MESHBRIDGE_CLOUD_TOKEN", &cfg.Cloud.Token},
		{"MESHBRIDGE_DATABASE_PATH", &cfg.Database.Path},
		{"MESHBRIDGE_MQTT_HOST", &cfg.MQTT.Broker.Host},
		{"MESHBRIDGE_MQTT_USERNAME", &cfg.MQTT.Auth.Username},
		{"MESHBRIDGE_MQTT_PASSWORD", &cfg.MQTT.Auth.Password},
		{"MESHBRIDGE_API_HOST", &cfg.API.Host},
		{"MESHBRIDGE_INFLUXDB_TOKEN", &cfg.InfluxDB.Token},
		{"MESHBRIDGE_JWT_SECRET", &cfg.Security.JWT.Secret},
		{"MESHBRIDGE_OPERATOR_PASSWORD_HASH", &cfg.Security.Operator.PasswordHash},
	}

	for _, o := range overrides {
		if v := os.Getenv(o.env); v != "" {
			*o.dst = v
		}
	}
}

// Validate rejects configurations that cannot work or would be unsafe
// to run with. All problems are reported in one pass rather than one
// per restart.
func (c *Config) Validate() error {
	var problems []string
	bad := func(msg string) { problems = append(problems, msg) }

	if c.Cloud.BaseURL == "" {
		bad("cloud.base_url is required")
	}
	if c.Cloud.Token == "" {
		bad("cloud.token is required (set MESHBRIDGE_CLOUD_TOKEN environment variable)")
	}
	if c.Cloud.Retry.MaxAttempts < 1 {
		bad("cloud.retry.max_attempts must be at least 1")
	}

	if c.Database.Path == "" {
		bad("database.path is required")
	}

	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		bad("mqtt.qos must be 0, 1, or 2")
	}
	if c.MQTT.BaseTopic == "" {
		bad("mqtt.base_topic is required")
	}

	if c.API.Port < 1 || c.API.Port > 65535 {
		bad("api.port must be between 1 and 65535")
	}

	if c.Poll.StatusInterval < 1 {
		bad("poll.status_interval must be at least 1 second")
	}
	if c.Poll.AvailabilityTimeout < c.Poll.StatusInterval {
		bad("poll.availability_timeout must not be shorter than poll.status_interval")
	}

	if c.Security.JWT.Secret == "" {
		bad("security.jwt.secret is required (set MESHBRIDGE_JWT_SECRET environment variable)")
	} else if len(c.Security.JWT.Secret) < minJWTSecretLength {
		bad("security.jwt.secret must be at least 32 characters")
	}
	if c.Security.Operator.PasswordHash == "" {
		bad("security.operator.password_hash is required (set MESHBRIDGE_OPERATOR_PASSWORD_HASH environment variable)")
	}

	if len(problems) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(problems, "; "))
	}
	return nil
}

func seconds(n int) time.Duration { return time.Duration(n) * time.Second }

// Duration accessors for the sections whose consumers want a
// time.Duration rather than raw seconds.

// ReadTimeout, WriteTimeout and IdleTimeout feed http.Server directly.
func (a APIConfig) ReadTimeout() time.Duration  { return seconds(a.Timeouts.Read) }
func (a APIConfig) WriteTimeout() time.Duration { return seconds(a.Timeouts.Write) }
func (a APIConfig) IdleTimeout() time.Duration  { return seconds(a.Timeouts.Idle) }

// RequestTimeout bounds a single cloud HTTP request.
func (c CloudConfig) RequestTimeout() time.Duration { return seconds(c.Timeout) }

// StatusSpacing is the minimum gap between status requests for the
// same device.
func (c CloudConfig) StatusSpacing() time.Duration { return seconds(c.MinStatusInterval) }

// StatusPeriod, DetailsPeriod and DiscoveryPeriod are the poller
// cadences.
func (p PollConfig) StatusPeriod() time.Duration    { return seconds(p.StatusInterval) }
func (p PollConfig) DetailsPeriod() time.Duration   { return seconds(p.DetailsInterval) }
func (p PollConfig) DiscoveryPeriod() time.Duration { return seconds(p.DiscoveryInterval) }

// OfflineAfter is the staleness window after which a device is
// published as unavailable.
func (p PollConfig) OfflineAfter() time.Duration { return seconds(p.AvailabilityTimeout) }
