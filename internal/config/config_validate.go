package config

import "fmt"

// validate rejects configuration combinations that cannot produce a correct
// running system, mirroring the teacher's Config.Validate checks.
func validate(cfg *Config) error {
	if cfg.Compiler.FeatureDim <= 0 {
		return fmt.Errorf("compiler.feature_dim must be positive, got %d", cfg.Compiler.FeatureDim)
	}
	if cfg.Compiler.ArtifactVersionsKeep <= 0 {
		return fmt.Errorf("compiler.artifact_versions_to_keep must be positive, got %d", cfg.Compiler.ArtifactVersionsKeep)
	}
	if cfg.Fleet.PairingCodeTTL <= 0 {
		return fmt.Errorf("fleet.pairing_code_ttl must be positive")
	}
	if cfg.Notification.MaxRetries < 0 {
		return fmt.Errorf("notification.max_retries must be non-negative")
	}
	if cfg.Notification.SoftTaskLimit >= cfg.Notification.HardTaskLimit {
		return fmt.Errorf("notification.soft_task_limit must be less than hard_task_limit")
	}
	return nil
}

// EmailConfigured reports whether email provider credentials are present; if
// not, the notification worker runs the email channel in stub mode.
func (c *NotificationConfig) EmailConfigured() bool {
	return c.EmailProviderKey != ""
}

// SMSConfigured reports whether SMS provider credentials are present.
func (c *NotificationConfig) SMSConfigured() bool {
	return c.SMSProviderSID != "" && c.SMSProviderToken != "" && c.SMSProviderFrom != ""
}
