package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/ethereum/go-ethereum/common"
)

// RateLimit bounds request throughput for one route group.
type RateLimit struct {
	RequestsPerMinute float64 `toml:"RequestsPerMinute"`
	Burst             int     `toml:"Burst"`
}

// APIKey is one HMAC credential accepted on the partner endpoints.
type APIKey struct {
	Key    string `toml:"Key"`
	Secret string `toml:"Secret"`
}

// AdminAuth configures JWT validation for the admin surface.
type AdminAuth struct {
	Enabled    bool   `toml:"Enabled"`
	HMACSecret string `toml:"HMACSecret"`
	Issuer     string `toml:"Issuer"`
	Audience   string `toml:"Audience"`
}

type Config struct {
	ListenAddress string `toml:"ListenAddress"`
	DataDir       string `toml:"DataDir"`
	NetworkName   string `toml:"NetworkName"`
	Environment   string `toml:"Environment"`

	AdminAddress      string `toml:"AdminAddress"`
	FeeReceiver       string `toml:"FeeReceiver"`
	FeePercent        uint32 `toml:"FeePercent"`
	PaymentVault      string `toml:"PaymentVault"`
	LinkerAddressBook string `toml:"LinkerAddressBook"`

	AuthTimestampSkewSeconds int64 `toml:"AuthTimestampSkewSeconds"`

	APIKeys    []APIKey             `toml:"APIKeys"`
	AdminAuth  AdminAuth            `toml:"AdminAuth"`
	RateLimits map[string]RateLimit `toml:"RateLimits"`
}

// Load reads the configuration from path, writing a default file when none
// exists yet.
func Load(path string) (*Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path)
	}

	cfg := &Config{}
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, err
	}
	applyDefaults(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks address fields and operational bounds.
func (c *Config) Validate() error {
	for name, value := range map[string]string{
		"AdminAddress": c.AdminAddress,
		"FeeReceiver":  c.FeeReceiver,
		"PaymentVault": c.PaymentVault,
	} {
		if strings.TrimSpace(value) == "" {
			continue
		}
		if !common.IsHexAddress(value) {
			return fmt.Errorf("config: %s is not a hex address: %q", name, value)
		}
	}
	if c.FeePercent > 100 {
		return fmt.Errorf("config: FeePercent %d exceeds 100", c.FeePercent)
	}
	for _, key := range c.APIKeys {
		if strings.TrimSpace(key.Key) == "" || strings.TrimSpace(key.Secret) == "" {
			return fmt.Errorf("config: API key entries need both Key and Secret")
		}
	}
	return nil
}

// Address parses one of the configured hex addresses into raw bytes. Empty or
// malformed values return the zero address.
func (c *Config) Address(value string) [20]byte {
	trimmed := strings.TrimSpace(value)
	if !common.IsHexAddress(trimmed) {
		return [20]byte{}
	}
	return common.HexToAddress(trimmed)
}

// Secrets returns the API keys as a map suitable for the authenticator.
func (c *Config) Secrets() map[string]string {
	out := make(map[string]string, len(c.APIKeys))
	for _, key := range c.APIKeys {
		out[strings.TrimSpace(key.Key)] = strings.TrimSpace(key.Secret)
	}
	return out
}

// AuthSkew returns the configured HMAC timestamp tolerance.
func (c *Config) AuthSkew() time.Duration {
	if c.AuthTimestampSkewSeconds <= 0 {
		return 2 * time.Minute
	}
	return time.Duration(c.AuthTimestampSkewSeconds) * time.Second
}

func applyDefaults(cfg *Config) {
	if strings.TrimSpace(cfg.ListenAddress) == "" {
		cfg.ListenAddress = ":8080"
	}
	if strings.TrimSpace(cfg.DataDir) == "" {
		cfg.DataDir = "./leasenet-data"
	}
	if strings.TrimSpace(cfg.NetworkName) == "" {
		cfg.NetworkName = "leasenet-local"
	}
	if strings.TrimSpace(cfg.Environment) == "" {
		cfg.Environment = "dev"
	}
	if cfg.FeePercent == 0 {
		cfg.FeePercent = 9
	}
	if cfg.RateLimits == nil {
		cfg.RateLimits = map[string]RateLimit{}
	}
}

// createDefault creates and saves a default configuration file.
func createDefault(path string) (*Config, error) {
	cfg := &Config{
		ListenAddress: ":8080",
		DataDir:       "./leasenet-data",
		NetworkName:   "leasenet-local",
		Environment:   "dev",
		FeePercent:    9,
		RateLimits: map[string]RateLimit{
			"lease": {RequestsPerMinute: 600, Burst: 20},
			"relay": {RequestsPerMinute: 300, Burst: 10},
		},
	}
	if err := persist(path, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func persist(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_TRUNC|os.O_CREATE, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	return toml.NewEncoder(f).Encode(cfg)
}
