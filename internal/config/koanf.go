package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// DefaultConfigPaths lists config file locations searched in priority order.
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
	"/etc/sentryfleet/config.yaml",
}

// ConfigPathEnvVar overrides the config file search with an explicit path.
const ConfigPathEnvVar = "CONFIG_PATH"

// Load builds a Config from defaults, an optional YAML file, then
// environment variables, in increasing precedence order (ENV > file >
// defaults), matching the teacher's LoadWithKoanf layering.
func Load() (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("load defaults: %w", err)
	}

	if path := findConfigFile(); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load config file %s: %w", path, err)
		}
	}

	envProvider := env.Provider("", ".", envTransform)
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("load environment: %w", err)
	}

	cfg := defaultConfig()
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func findConfigFile() string {
	if p := os.Getenv(ConfigPathEnvVar); p != "" {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	for _, p := range DefaultConfigPaths {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

// envTransform maps the spec's illustrative environment variable names (§6)
// onto koanf's dotted config paths, the same explicit-mapping approach the
// teacher's envTransformFunc uses rather than a mechanical underscore-to-dot
// substitution (which would mangle multi-word leaf names like feature_dim).
func envTransform(key string) string {
	switch strings.ToUpper(key) {
	case "FEATURE_DIM":
		return "compiler.feature_dim"
	case "ARTIFACT_VERSIONS_TO_KEEP":
		return "compiler.artifact_versions_to_keep"
	case "ARTIFACT_ROOT":
		return "compiler.artifact_root"
	case "UPLOAD_ROOT":
		return "compiler.upload_root"
	case "CAPTURE_ROOT":
		return "compiler.capture_root"
	case "PAIRING_CODE_TTL":
		return "fleet.pairing_code_ttl"
	case "HEARTBEAT_OFFLINE_GAP":
		return "fleet.heartbeat_offline_gap"
	case "REMOTE_COMMAND_TIMEOUT":
		return "fleet.remote_command_timeout"
	case "NOTIFICATION_MAX_RETRIES":
		return "notification.max_retries"
	case "NOTIFICATION_RETRY_BACKOFF_BASE":
		return "notification.retry_backoff_base"
	case "EMAIL_PROVIDER_KEY":
		return "notification.email_provider_key"
	case "SMS_PROVIDER_SID":
		return "notification.sms_provider_sid"
	case "SMS_PROVIDER_TOKEN":
		return "notification.sms_provider_token"
	case "SMS_PROVIDER_FROM":
		return "notification.sms_provider_from"
	case "NATS_ENABLED":
		return "nats.enabled"
	case "NATS_URL":
		return "nats.url"
	case "NATS_STORE_DIR":
		return "nats.store_dir"
	case "DATABASE_PATH":
		return "database.path"
	case "SERVER_ADDR":
		return "server.addr"
	case "LOG_LEVEL":
		return "logging.level"
	case "LOG_FORMAT":
		return "logging.format"
	default:
		return ""
	}
}
