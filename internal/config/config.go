// Package config resolves the gateway's effective settings and credentials
// once at startup. The result is read-only and shared by every request.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/hvgate/hvgate/internal/credstore"
)

// Settings are the non-secret operational knobs, read from an optional TOML
// file. Zero values fall back to defaults.
type Settings struct {
	Addr                string `toml:"addr"`
	LogDir              string `toml:"log_dir"`
	CredentialsPath     string `toml:"credentials_path"`
	PowershellBin       string `toml:"powershell_bin"`
	CollaboratorTimeout string `toml:"collaborator_timeout"`
	AuthenticateReads   bool   `toml:"authenticate_reads"`
	TLS                 bool   `toml:"tls"`
	TLSDir              string `toml:"tls_dir"`
}

// Config is the frozen snapshot handed to the rest of the gateway.
type Config struct {
	APIKey     string
	HMACSecret string
	AllowIPs   []string

	Addr                string
	LogDir              string
	CredentialsPath     string
	PowershellBin       string
	CollaboratorTimeout time.Duration
	AuthenticateReads   bool
	TLS                 bool
	TLSDir              string
}

// Load reads the settings file (if present), then resolves credentials from
// the environment with the encrypted store as fallback. It fails when
// neither source yields both the API key and the HMAC secret - the gateway
// must not serve without them.
func Load(settingsPath string) (*Config, error) {
	settings := &Settings{}
	if settingsPath != "" {
		if _, err := toml.DecodeFile(settingsPath, settings); err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("reading settings file %q: %w", settingsPath, err)
		}
	}

	cfg := &Config{
		Addr:                defaultStr(settings.Addr, ":8480"),
		LogDir:              defaultStr(settings.LogDir, "logs"),
		CredentialsPath:     defaultStr(settings.CredentialsPath, filepath.Join("credentials", "hvgate.cred")),
		PowershellBin:       defaultStr(settings.PowershellBin, "powershell"),
		CollaboratorTimeout: time.Second * 30,
		AuthenticateReads:   settings.AuthenticateReads,
		TLS:                 settings.TLS,
		TLSDir:              defaultStr(settings.TLSDir, "."),
	}

	if settings.CollaboratorTimeout != "" {
		d, err := time.ParseDuration(settings.CollaboratorTimeout)
		if err != nil {
			return nil, fmt.Errorf("invalid collaborator_timeout: %w", err)
		}
		cfg.CollaboratorTimeout = d
	}

	cfg.APIKey = os.Getenv("HVGATE_API_KEY")
	cfg.HMACSecret = os.Getenv("HVGATE_HMAC_SECRET")
	cfg.AllowIPs = SplitIPs(os.Getenv("HVGATE_ALLOW_IPS"))

	if cfg.APIKey == "" || cfg.HMACSecret == "" {
		creds, err := credstore.New(cfg.CredentialsPath).Load()
		if err != nil {
			return nil, err
		}
		if creds != nil {
			cfg.APIKey = creds.APIKey
			cfg.HMACSecret = creds.HMACSecret
			if len(cfg.AllowIPs) == 0 {
				cfg.AllowIPs = creds.AllowIPs
			}
		}
	}

	if cfg.APIKey == "" {
		return nil, fmt.Errorf("API key is not configured - set HVGATE_API_KEY or run 'hvctl creds init'")
	}
	if cfg.HMACSecret == "" {
		return nil, fmt.Errorf("HMAC secret is not configured - set HVGATE_HMAC_SECRET or run 'hvctl creds init'")
	}

	return cfg, nil
}

func (c *Config) AuditLogPath() string { return filepath.Join(c.LogDir, "audit.log") }

func (c *Config) AppLogPath() string { return filepath.Join(c.LogDir, "app.log") }

// SplitIPs parses a comma-separated allow-list. Empty input means no
// restriction, never "deny all".
func SplitIPs(raw string) []string {
	ips := []string{}
	for _, chunk := range strings.Split(raw, ",") {
		if ip := strings.TrimSpace(chunk); ip != "" {
			ips = append(ips, ip)
		}
	}
	return ips
}

func defaultStr(val, fallback string) string {
	if val == "" {
		return fallback
	}
	return val
}
