// Package config loads application configuration from a YAML file with
// environment-variable overrides, and owns the reloadable event
// settings store.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Config captures the full application configuration. It is built once
// at startup and passed explicitly to the components that need it.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Auth     AuthConfig     `yaml:"auth"`
	OAuth    OAuthConfig    `yaml:"oauth"`
	Mail     MailConfig     `yaml:"mail"`
	Discord  DiscordConfig  `yaml:"discord"`
	Settings SettingsConfig `yaml:"settings"`
}

// ServerConfig controls the HTTP listener.
type ServerConfig struct {
	Port      int    `yaml:"port"`
	PublicURL string `yaml:"public_url"` // externally visible base URL, no trailing slash
}

// DatabaseConfig controls the SQLite database location.
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// AuthConfig holds the token signing key. The key is required; the
// server refuses to boot without it.
type AuthConfig struct {
	JWTSecret string `yaml:"jwt_secret"`
}

// OAuthConfig groups per-provider OAuth app credentials. A provider
// with empty credentials is simply not registered.
type OAuthConfig struct {
	GitHub  ProviderCredentials `yaml:"github"`
	Discord ProviderCredentials `yaml:"discord"`
}

// ProviderCredentials is one OAuth app's client id/secret pair.
type ProviderCredentials struct {
	ClientID     string `yaml:"client_id"`
	ClientSecret string `yaml:"client_secret"`
}

// Configured reports whether both credentials are present.
func (p ProviderCredentials) Configured() bool {
	return p.ClientID != "" && p.ClientSecret != ""
}

// MailConfig holds Mailgun credentials and the link paths embedded in
// outgoing mail. Empty credentials disable mail delivery.
type MailConfig struct {
	Domain      string `yaml:"domain"`
	APIKey      string `yaml:"api_key"`
	From        string `yaml:"from"`
	ConfirmPath string `yaml:"confirm_path"`
	ResetPath   string `yaml:"reset_path"`
}

// Configured reports whether mail delivery is enabled.
func (m MailConfig) Configured() bool {
	return m.Domain != "" && m.APIKey != ""
}

// DiscordConfig points at the role-assignment bot webhook.
type DiscordConfig struct {
	WebhookURL string `yaml:"webhook_url"`
	RoleID     string `yaml:"role_id"`
}

// SettingsConfig locates the reloadable event settings file.
type SettingsConfig struct {
	Path string `yaml:"path"`
}

// Load reads the YAML file at path (pass "" to start from defaults),
// applies environment overrides, and validates.
//
// Environment overrides: PORT, PUBLIC_URL, DB_PATH, JWT_SECRET,
// GITHUB_CLIENT_ID/SECRET, DISCORD_CLIENT_ID/SECRET, MAILGUN_DOMAIN,
// MAILGUN_API_KEY, MAIL_FROM, DISCORD_WEBHOOK_URL, DISCORD_ROLE_ID,
// SETTINGS_PATH.
func Load(path string) (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Port:      8080,
			PublicURL: "http://localhost:8080",
		},
		Database: DatabaseConfig{Path: "data/ravenhacks.db"},
		Mail: MailConfig{
			ConfirmPath: "/confirm",
			ResetPath:   "/reset",
		},
		Settings: SettingsConfig{Path: "data/settings.yaml"},
	}

	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: reading %s: %w", path, err)
		}
		if err := yaml.Unmarshal(raw, cfg); err != nil {
			return nil, fmt.Errorf("config: parsing %s: %w", path, err)
		}
	}

	applyEnv(cfg)

	if cfg.Auth.JWTSecret == "" {
		return nil, errors.New("config: JWT signing key must be set (jwt_secret / JWT_SECRET)")
	}
	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		return nil, fmt.Errorf("config: invalid port %d", cfg.Server.Port)
	}

	return cfg, nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	setIfEnv(&cfg.Server.PublicURL, "PUBLIC_URL")
	setIfEnv(&cfg.Database.Path, "DB_PATH")
	setIfEnv(&cfg.Auth.JWTSecret, "JWT_SECRET")
	setIfEnv(&cfg.OAuth.GitHub.ClientID, "GITHUB_CLIENT_ID")
	setIfEnv(&cfg.OAuth.GitHub.ClientSecret, "GITHUB_CLIENT_SECRET")
	setIfEnv(&cfg.OAuth.Discord.ClientID, "DISCORD_CLIENT_ID")
	setIfEnv(&cfg.OAuth.Discord.ClientSecret, "DISCORD_CLIENT_SECRET")
	setIfEnv(&cfg.Mail.Domain, "MAILGUN_DOMAIN")
	setIfEnv(&cfg.Mail.APIKey, "MAILGUN_API_KEY")
	setIfEnv(&cfg.Mail.From, "MAIL_FROM")
	setIfEnv(&cfg.Discord.WebhookURL, "DISCORD_WEBHOOK_URL")
	setIfEnv(&cfg.Discord.RoleID, "DISCORD_ROLE_ID")
	setIfEnv(&cfg.Settings.Path, "SETTINGS_PATH")
}

func setIfEnv(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}
