// Package coordconfig pkg/coordconfig/config.go
package coordconfig

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	jsoniter "github.com/json-iterator/go"

	"github.com/skycoin/skywire-utilities/pkg/buildinfo"
	"github.com/skycoin/skywire-utilities/pkg/cipher"

	"github.com/skycoin/vpn-coordinator/pkg/keyrotation"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

var (
	// ErrInvalidSK occurs when config file has an invalid secret key.
	ErrInvalidSK = errors.New("config has invalid secret key")
	// ErrNoConfigPath is returned on Flush when the config has no path.
	ErrNoConfigPath = errors.New("no config path")
	// ErrIncompatibleVersion occurs when the config was written by a too old release.
	ErrIncompatibleVersion = errors.New("config version is incompatible")
)

// Account configures the account service client.
type Account struct {
	Addr         string   `json:"addr"`
	AccountID    string   `json:"account_id"`
	SessionToken string   `json:"session_token,omitempty"`
	Timeout      Duration `json:"timeout"`
}

// Keys holds the tunnel key material.
type Keys struct {
	PK          cipher.PubKey `json:"pk"`
	SK          cipher.SecKey `json:"sk"`
	GeneratedAt time.Time     `json:"generated_at,omitempty"`
	ExpiresAt   time.Time     `json:"expires_at,omitempty"`
	Validity    Duration      `json:"validity"`
}

// Network configures network observation.
type Network struct {
	PollInterval Duration `json:"poll_interval"`
	// Trusted and Untrusted seed the trust store, keyed by network name.
	Trusted   []string `json:"trusted,omitempty"`
	Untrusted []string `json:"untrusted,omitempty"`
}

// Config is the vpn-coordinator daemon config.
type Config struct {
	mu   sync.Mutex
	path string

	Version           string   `json:"version"`
	APIAddr           string   `json:"api_addr"`
	TrustDB           string   `json:"trust_db"`
	Account           Account  `json:"account"`
	Keys              Keys     `json:"keys"`
	Network           Network  `json:"network"`
	ServerListRefresh Duration `json:"server_list_refresh"`
	// TestMode treats session NotFound responses as a no-op.
	TestMode bool   `json:"test_mode"`
	LogLevel string `json:"log_level"`
}

// MakeBaseConfig returns a config with every default set. The config is
// flushed to path.
func MakeBaseConfig(path string) *Config {
	return &Config{
		path:    path,
		Version: buildinfo.Version(),
		APIAddr: DefaultAPIAddr,
		TrustDB: DefaultTrustDB,
		Account: Account{
			Addr:    DefaultAccountAddr,
			Timeout: DefaultTimeout,
		},
		Keys: Keys{
			Validity: DefaultKeyValidity,
		},
		Network: Network{
			PollInterval: DefaultPollInterval,
		},
		ServerListRefresh: DefaultServerListRefresh,
		LogLevel:          "info",
	}
}

// Path returns the file the config is flushed to.
func (c *Config) Path() string {
	return c.path
}

// KeyPair returns the configured key material.
func (c *Config) KeyPair() keyrotation.KeyPair {
	c.mu.Lock()
	defer c.mu.Unlock()

	return keyrotation.KeyPair{
		Public:      c.Keys.PK,
		Secret:      c.Keys.SK,
		GeneratedAt: c.Keys.GeneratedAt,
		ExpiresAt:   c.Keys.ExpiresAt,
	}
}

// UpdateKeys stores rotated key material and flushes the config.
func (c *Config) UpdateKeys(kp keyrotation.KeyPair) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.Keys.PK = kp.Public
	c.Keys.SK = kp.Secret
	c.Keys.GeneratedAt = kp.GeneratedAt
	c.Keys.ExpiresAt = kp.ExpiresAt

	return c.flush()
}

// UpdateSessionToken stores the account session token and flushes the config.
func (c *Config) UpdateSessionToken(token string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.Account.SessionToken = token
	return c.flush()
}

// Flush flushes config to file.
func (c *Config) Flush() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.flush()
}

func (c *Config) flush() error {
	if c.path == "" {
		return ErrNoConfigPath
	}

	raw, err := json.MarshalIndent(c, "", "\t")
	if err != nil {
		return err
	}

	if dir := filepath.Dir(c.path); dir != "" {
		if err := os.MkdirAll(dir, 0750); err != nil {
			return fmt.Errorf("create config dir: %w", err)
		}
	}

	const filePerm = 0600
	return os.WriteFile(c.path, raw, filePerm)
}

// ensureKeys derives the public key from a configured secret key. Missing
// keys are left zero, the key rotation gate treats them as expired.
func (c *Config) ensureKeys() error {
	if !c.Keys.PK.Null() || c.Keys.SK.Null() {
		return nil
	}

	pk, err := c.Keys.SK.PubKey()
	if err != nil {
		return err
	}
	c.Keys.PK = pk
	return nil
}
