// Package config loads the per-provider credential blocks from YAML with
// environment variable overrides applied on top.
package config

import (
	"fmt"
	"log/slog"
	"os"

	"gopkg.in/yaml.v3"
)

type FCMConfig struct {
	ProjectID      string `yaml:"project_id"`
	ServiceAccount string `yaml:"service_account"`
	PrivateKeyFile string `yaml:"private_key_file"`
	// ServerKey is the static key of the legacy HTTP API.
	ServerKey string `yaml:"server_key"`
}

type APNSConfig struct {
	KeyID     string `yaml:"key_id"`
	TeamID    string `yaml:"team_id"`
	BundleID  string `yaml:"bundle_id"`
	P8KeyFile string `yaml:"p8_key_file"`
}

type WNSConfig struct {
	ClientID     string `yaml:"client_id"`
	ClientSecret string `yaml:"client_secret"`
}

type JPushConfig struct {
	AppKey       string `yaml:"app_key"`
	MasterSecret string `yaml:"master_secret"`
}

type PAPConfig struct {
	AuthToken string `yaml:"auth_token"`
	Password  string `yaml:"password"`
	CID       string `yaml:"cid"`
}

type EmailConfig struct {
	From string `yaml:"from"`
}

// Config is the single authoritative configuration.
type Config struct {
	MaxConcurrency int `yaml:"max_concurrency"`

	FCM   FCMConfig   `yaml:"fcm"`
	APNS  APNSConfig  `yaml:"apns"`
	WNS   WNSConfig   `yaml:"wns"`
	JPush JPushConfig `yaml:"jpush"`
	PAP   PAPConfig   `yaml:"pap"`
	Email EmailConfig `yaml:"email"`
}

// Load reads the YAML file and applies environment overrides.
func Load(path string, logger *slog.Logger) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(raw, cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	return ApplyEnvOverrides(cfg, logger), nil
}

// ApplyEnvOverrides lets deploy environments override file-based credentials.
func ApplyEnvOverrides(cfg *Config, logger *slog.Logger) *Config {
	overrides := map[string]*string{
		"FCM_PROJECT_ID":      &cfg.FCM.ProjectID,
		"FCM_SERVER_KEY":      &cfg.FCM.ServerKey,
		"APNS_BUNDLE_ID":      &cfg.APNS.BundleID,
		"WNS_CLIENT_SECRET":   &cfg.WNS.ClientSecret,
		"JPUSH_MASTER_SECRET": &cfg.JPush.MasterSecret,
		"PAP_PASSWORD":        &cfg.PAP.Password,
	}
	for key, target := range overrides {
		if val := os.Getenv(key); val != "" {
			logger.Debug("Overriding config value", "key", key, "source", "env")
			*target = val
		}
	}
	return cfg
}
