// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/bureau-foundation/lockbox/lib/aead"
	"github.com/bureau-foundation/lockbox/lib/compression"
	"github.com/bureau-foundation/lockbox/lib/custody"
	"github.com/bureau-foundation/lockbox/lib/keywrap"
	"github.com/bureau-foundation/lockbox/lib/preview"
	"github.com/bureau-foundation/lockbox/lib/retrieve"
	"github.com/bureau-foundation/lockbox/lib/sealed"
)

// EnvironmentVariable names the config file when --config is absent.
const EnvironmentVariable = "LOCKBOX_CONFIG"

// Config is the lockbox client configuration.
type Config struct {
	// Identity is the local user's name in the hub directory.
	Identity string `yaml:"identity"`

	Paths    PathsConfig    `yaml:"paths"`
	Hub      HubConfig      `yaml:"hub"`
	Gateways GatewaysConfig `yaml:"gateways"`
	Network  NetworkConfig  `yaml:"network"`
	Crypto   CryptoConfig   `yaml:"crypto"`
	Backup   BackupConfig   `yaml:"backup"`
	Share    ShareConfig    `yaml:"share"`
	Preview  PreviewConfig  `yaml:"preview"`
	Escrow   EscrowConfig   `yaml:"escrow"`
}

// PathsConfig configures local storage.
type PathsConfig struct {
	// State holds the identity and orphan database. Created 0700.
	State string `yaml:"state"`
}

// HubConfig locates the hub and the bearer token for it.
type HubConfig struct {
	URL string `yaml:"url"`

	// TokenFile holds the bearer token minted by lockbox-hub token.
	TokenFile string `yaml:"token_file"`
}

// GatewaysConfig lists the blob gateways tried on receive.
type GatewaysConfig struct {
	// Primary defaults to the hub URL.
	Primary string `yaml:"primary"`

	// Fallbacks are tried in order after the primary. At most two.
	Fallbacks []string `yaml:"fallbacks"`
}

// NetworkConfig bounds collaborator calls.
type NetworkConfig struct {
	// CallTimeout is a Go duration string.
	// Default: 30s
	CallTimeout string `yaml:"call_timeout"`
}

// CryptoConfig selects the algorithms used for new shares.
type CryptoConfig struct {
	Cipher  string `yaml:"cipher"`
	KeyWrap string `yaml:"key_wrap"`
}

// BackupConfig selects the password KDF for identity exports.
type BackupConfig struct {
	// KDF is "pbkdf2-sha256" or "argon2id".
	KDF string `yaml:"kdf"`

	// Iterations is the PBKDF2 count or Argon2id time. Zero means the
	// default for the KDF.
	Iterations uint32 `yaml:"iterations"`

	// MemoryKiB is the Argon2id memory. Zero means the default.
	MemoryKiB uint32 `yaml:"memory_kib"`
}

// ShareConfig sets defaults for lockbox share.
type ShareConfig struct {
	// Compression is "auto", "none", "lz4" or "zstd".
	Compression string `yaml:"compression"`

	// Previews attaches an encrypted preview to eligible shares.
	Previews bool `yaml:"previews"`
}

// PreviewConfig tunes preview generation.
type PreviewConfig struct {
	MaxTextBytes  int `yaml:"max_text_bytes"`
	ThumbnailSize int `yaml:"thumbnail_size"`
}

// EscrowConfig lists the age recipients lockbox escrow encrypts to.
type EscrowConfig struct {
	Recipients []string `yaml:"recipients"`
}

// Default returns the base configuration a file is merged over.
func Default() *Config {
	homeDir, _ := os.UserHomeDir()
	return &Config{
		Paths: PathsConfig{
			State: filepath.Join(homeDir, ".local", "state", "lockbox"),
		},
		Network: NetworkConfig{
			CallTimeout: "30s",
		},
		Crypto: CryptoConfig{
			Cipher:  aead.DefaultName,
			KeyWrap: keywrap.DefaultScheme,
		},
		Backup: BackupConfig{
			KDF: custody.PBKDF2SHA256,
		},
		Share: ShareConfig{
			Compression: "auto",
		},
		Preview: PreviewConfig{
			MaxTextBytes:  preview.DefaultMaxTextBytes,
			ThumbnailSize: preview.DefaultThumbnailSize,
		},
	}
}

// Load loads the file named by LOCKBOX_CONFIG. There is no search path:
// an unset variable is an error.
func Load() (*Config, error) {
	configPath := os.Getenv(EnvironmentVariable)
	if configPath == "" {
		return nil, fmt.Errorf("%s environment variable not set; "+
			"set it to the path of your lockbox.yaml config file, or use --config flag", EnvironmentVariable)
	}
	return LoadFile(configPath)
}

// LoadFile loads path over Default and expands variables in path
// fields. It does not validate; call Validate.
func LoadFile(path string) (*Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	cfg.expandVariables()
	return cfg, nil
}

// expandVariables expands ${VAR} and ${VAR:-default} in path fields.
// ${LOCKBOX_STATE} refers to paths.state.
func (c *Config) expandVariables() {
	vars := map[string]string{
		"HOME": os.Getenv("HOME"),
	}
	c.Paths.State = expandVars(c.Paths.State, vars)
	vars["LOCKBOX_STATE"] = c.Paths.State
	c.Hub.TokenFile = expandVars(c.Hub.TokenFile, vars)
}

var varPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

func expandVars(s string, vars map[string]string) string {
	return varPattern.ReplaceAllStringFunc(s, func(match string) string {
		parts := varPattern.FindStringSubmatch(match)
		name, defaultValue := parts[1], parts[2]
		if value, ok := vars[name]; ok && value != "" {
			return value
		}
		if value := os.Getenv(name); value != "" {
			return value
		}
		return defaultValue
	})
}

// Validate reports every problem in c, joined.
func (c *Config) Validate() error {
	var errs []error

	if c.Identity == "" {
		errs = append(errs, errors.New("identity is required"))
	} else if strings.ContainsAny(c.Identity, " \t\n/") {
		errs = append(errs, fmt.Errorf("identity %q must not contain whitespace or '/'", c.Identity))
	}
	if c.Paths.State == "" {
		errs = append(errs, errors.New("paths.state is required"))
	}
	if c.Hub.URL == "" {
		errs = append(errs, errors.New("hub.url is required"))
	} else if err := checkURL(c.Hub.URL); err != nil {
		errs = append(errs, fmt.Errorf("hub.url: %w", err))
	}

	if c.Gateways.Primary != "" {
		if err := checkURL(c.Gateways.Primary); err != nil {
			errs = append(errs, fmt.Errorf("gateways.primary: %w", err))
		}
	}
	if len(c.Gateways.Fallbacks) > retrieve.MaxFallbacks {
		errs = append(errs, fmt.Errorf("gateways.fallbacks lists %d gateways, at most %d are allowed",
			len(c.Gateways.Fallbacks), retrieve.MaxFallbacks))
	}
	for i, fallback := range c.Gateways.Fallbacks {
		if err := checkURL(fallback); err != nil {
			errs = append(errs, fmt.Errorf("gateways.fallbacks[%d]: %w", i, err))
		}
	}

	if timeout, err := time.ParseDuration(c.Network.CallTimeout); err != nil {
		errs = append(errs, fmt.Errorf("network.call_timeout: %w", err))
	} else if timeout <= 0 {
		errs = append(errs, fmt.Errorf("network.call_timeout must be positive, got %s", c.Network.CallTimeout))
	}

	if _, err := aead.Lookup(c.Crypto.Cipher); err != nil {
		errs = append(errs, fmt.Errorf("crypto.cipher: %w", err))
	}
	if _, err := keywrap.Lookup(c.Crypto.KeyWrap); err != nil {
		errs = append(errs, fmt.Errorf("crypto.key_wrap: %w", err))
	}
	if err := c.KDFParams().Validate(); err != nil {
		errs = append(errs, fmt.Errorf("backup: %w", err))
	}

	if mode := c.Share.Compression; mode != "" && mode != "auto" {
		if _, err := compression.Parse(mode); err != nil {
			errs = append(errs, fmt.Errorf("share.compression: %w", err))
		}
	}
	if c.Preview.MaxTextBytes < 0 {
		errs = append(errs, errors.New("preview.max_text_bytes must not be negative"))
	}
	if c.Preview.ThumbnailSize < 0 {
		errs = append(errs, errors.New("preview.thumbnail_size must not be negative"))
	}

	for i, recipient := range c.Escrow.Recipients {
		if err := sealed.ParsePublicKey(recipient); err != nil {
			errs = append(errs, fmt.Errorf("escrow.recipients[%d]: %w", i, err))
		}
	}

	return errors.Join(errs...)
}

func checkURL(raw string) error {
	parsed, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("%q is not an http or https URL", raw)
	}
	if parsed.Host == "" {
		return fmt.Errorf("%q has no host", raw)
	}
	return nil
}

// DatabasePath is the local state database.
func (c *Config) DatabasePath() string {
	return filepath.Join(c.Paths.State, "lockbox.db")
}

// PrimaryGateway returns gateways.primary, or the hub URL when unset.
func (c *Config) PrimaryGateway() string {
	if c.Gateways.Primary != "" {
		return c.Gateways.Primary
	}
	return c.Hub.URL
}

// CallTimeout returns network.call_timeout. Invalid values (which
// Validate reports) yield the 30 second default.
func (c *Config) CallTimeout() time.Duration {
	timeout, err := time.ParseDuration(c.Network.CallTimeout)
	if err != nil || timeout <= 0 {
		return 30 * time.Second
	}
	return timeout
}

// KDFParams returns the backup KDF settings.
func (c *Config) KDFParams() custody.KDFParams {
	return custody.KDFParams{
		Name:       c.Backup.KDF,
		Iterations: c.Backup.Iterations,
		Memory:     c.Backup.MemoryKiB,
	}
}

// PreviewGenerator returns the configured preview generator.
func (c *Config) PreviewGenerator() preview.Generator {
	return preview.Generator{
		MaxTextBytes:  c.Preview.MaxTextBytes,
		ThumbnailSize: c.Preview.ThumbnailSize,
	}
}

// EnsurePaths creates the state directory, owner-only.
func (c *Config) EnsurePaths() error {
	if err := os.MkdirAll(c.Paths.State, 0o700); err != nil {
		return fmt.Errorf("creating %s: %w", c.Paths.State, err)
	}
	return nil
}
