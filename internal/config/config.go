// Package config loads Sentry Fleet configuration from defaults, an
// optional YAML file, and environment variables, in that order of
// increasing precedence — the same layering the teacher's koanf-based
// config.Load uses.
package config

import "time"

// Config is the root configuration object.
type Config struct {
	Server       ServerConfig       `koanf:"server"`
	Database     DatabaseConfig     `koanf:"database"`
	Compiler     CompilerConfig     `koanf:"compiler"`
	Fleet        FleetConfig        `koanf:"fleet"`
	Notification NotificationConfig `koanf:"notification"`
	NATS         NATSConfig         `koanf:"nats"`
	Logging      LoggingConfig      `koanf:"logging"`
}

// ServerConfig holds HTTP listener settings.
type ServerConfig struct {
	Addr            string        `koanf:"addr"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
}

// DatabaseConfig holds the system-of-record connection settings.
type DatabaseConfig struct {
	Path      string `koanf:"path"`
	Threads   int    `koanf:"threads"`
	MaxMemory string `koanf:"max_memory"`
}

// CompilerConfig governs index compilation (C2/C3).
type CompilerConfig struct {
	FeatureDim           int `koanf:"feature_dim"`
	ArtifactVersionsKeep int `koanf:"artifact_versions_to_keep"`
	ArtifactRoot         string `koanf:"artifact_root"`
	UploadRoot           string `koanf:"upload_root"`
	CaptureRoot          string `koanf:"capture_root"`
}

// FleetConfig governs device/hub registration and pairing (C4/C5).
type FleetConfig struct {
	PairingCodeTTL       time.Duration `koanf:"pairing_code_ttl"`
	HeartbeatOfflineGap  time.Duration `koanf:"heartbeat_offline_gap"`
	RemoteCommandTimeout time.Duration `koanf:"remote_command_timeout"`
}

// NotificationConfig governs the notification worker (C8/C9).
type NotificationConfig struct {
	MaxRetries         int           `koanf:"max_retries"`
	RetryBackoffBase   time.Duration `koanf:"retry_backoff_base"`
	ProviderTimeout     time.Duration `koanf:"provider_timeout"`
	SoftTaskLimit      time.Duration `koanf:"soft_task_limit"`
	HardTaskLimit      time.Duration `koanf:"hard_task_limit"`
	EmailProviderKey   string        `koanf:"email_provider_key"`
	SMSProviderSID     string        `koanf:"sms_provider_sid"`
	SMSProviderToken   string        `koanf:"sms_provider_token"`
	SMSProviderFrom    string        `koanf:"sms_provider_from"`
}

// NATSConfig governs the durable background task queue (C9 worker pool).
type NATSConfig struct {
	Enabled        bool   `koanf:"enabled"`
	EmbeddedServer bool   `koanf:"embedded_server"`
	URL            string `koanf:"url"`
	StoreDir       string `koanf:"store_dir"`
	StreamName     string `koanf:"stream_name"`
	DurableName    string `koanf:"durable_name"`
}

// LoggingConfig governs the zerolog sink.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
	Caller bool   `koanf:"caller"`
}

// defaultConfig returns a Config with all sensible defaults applied first;
// the file and environment layers then override selectively.
func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:            ":8080",
			ShutdownTimeout: 10 * time.Second,
		},
		Database: DatabaseConfig{
			Path:      "/data/sentryfleet.duckdb",
			Threads:   0,
			MaxMemory: "4GB",
		},
		Compiler: CompilerConfig{
			FeatureDim:           128,
			ArtifactVersionsKeep: 5,
			ArtifactRoot:         "databases",
			UploadRoot:           "uploads",
			CaptureRoot:          "captures",
		},
		Fleet: FleetConfig{
			PairingCodeTTL:       300 * time.Second,
			HeartbeatOfflineGap:  2 * time.Minute,
			RemoteCommandTimeout: 10 * time.Second,
		},
		Notification: NotificationConfig{
			MaxRetries:       3,
			RetryBackoffBase: 60 * time.Second,
			ProviderTimeout:  10 * time.Second,
			SoftTaskLimit:    55 * time.Minute,
			HardTaskLimit:    60 * time.Minute,
		},
		NATS: NATSConfig{
			Enabled:        true,
			EmbeddedServer: true,
			URL:            "nats://127.0.0.1:4222",
			StoreDir:       "/data/nats/jetstream",
			StreamName:     "sentryfleet-tasks",
			DurableName:    "notification-worker",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}
