// Package config loads node configuration from TOML files.
package config

import (
	"bytes"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/multiformats/go-multiaddr"

	"github.com/iykyk-syn/modcert"
	"github.com/iykyk-syn/modcert/quorum"
)

// Duration is a time.Duration written as a string, e.g. "2s".
type Duration struct {
	time.Duration
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

func (d *Duration) UnmarshalText(text []byte) (err error) {
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// Moderator is a moderator set member.
type Moderator struct {
	// PublicKey is hex encoded ed25519 key.
	PublicKey string `toml:"public_key"`
	// Addr is a multiaddr ending with /p2p/<peer-id>.
	Addr string `toml:"addr"`
}

// Config of a modcert node.
type Config struct {
	KeyPath     string   `toml:"key_path"`
	ListenAddrs []string `toml:"listen_addrs"`
	StorePath   string   `toml:"store_path"`
	// Network scopes pubsub topics so independent deployments do not mix.
	Network string `toml:"network"`

	// QuorumThreshold of zero means 2n/3+1.
	QuorumThreshold   int      `toml:"quorum_threshold"`
	RejectRule        string   `toml:"reject_rule"`
	PerAttemptTimeout Duration `toml:"per_attempt_timeout"`
	SubmissionTimeout Duration `toml:"submission_timeout"`

	Moderators []Moderator `toml:"moderators"`
}

// Default returns Config with sane defaults and no moderators.
func Default() *Config {
	return &Config{
		KeyPath:           "~/.modcert/key",
		ListenAddrs:       []string{"/ip4/0.0.0.0/udp/10000/quic-v1"},
		StorePath:         "~/.modcert/db",
		Network:           "main",
		RejectRule:        quorum.RejectWhenUnreachable.String(),
		PerAttemptTimeout: Duration{time.Second * 2},
		SubmissionTimeout: Duration{time.Second * 10},
	}
}

// Load reads and validates Config from the file.
func Load(path string) (*Config, error) {
	cfg := Default()
	md, err := toml.DecodeFile(ExpandHome(path), cfg)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("loading config: unknown keys %v", undecoded)
	}
	if err = cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes Config to the file, creating directories as needed.
func (c *Config) Save(path string) error {
	path = ExpandHome(path)
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}

	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(c); err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}
	return os.WriteFile(path, buf.Bytes(), 0600)
}

func (c *Config) Validate() error {
	var errs []error
	for _, addr := range c.ListenAddrs {
		if _, err := multiaddr.NewMultiaddr(addr); err != nil {
			errs = append(errs, fmt.Errorf("listen address %q: %w", addr, err))
		}
	}
	if _, err := quorum.ParseRejectRule(c.RejectRule); err != nil {
		errs = append(errs, err)
	}
	if c.PerAttemptTimeout.Duration < 0 {
		errs = append(errs, errors.New("per_attempt_timeout must not be negative"))
	}
	if c.SubmissionTimeout.Duration <= 0 {
		errs = append(errs, errors.New("submission_timeout must be positive"))
	}
	if c.QuorumThreshold < 0 || (len(c.Moderators) > 0 && c.QuorumThreshold > len(c.Moderators)) {
		errs = append(errs, fmt.Errorf("quorum_threshold %d out of range for %d moderators", c.QuorumThreshold, len(c.Moderators)))
	}
	for i, m := range c.Moderators {
		if _, err := m.moderator(); err != nil {
			errs = append(errs, fmt.Errorf("moderator #%d: %w", i, err))
		}
	}
	return errors.Join(errs...)
}

// ModeratorSet snapshots configured moderators under the given version.
func (c *Config) ModeratorSet(version uint64) (*quorum.Moderators, error) {
	mods := make([]modcert.Moderator, len(c.Moderators))
	for i, m := range c.Moderators {
		mod, err := m.moderator()
		if err != nil {
			return nil, fmt.Errorf("moderator #%d: %w", i, err)
		}
		mods[i] = mod
	}
	return quorum.NewModerators(version, mods)
}

func (m Moderator) moderator() (modcert.Moderator, error) {
	pk, err := hex.DecodeString(m.PublicKey)
	if err != nil {
		return modcert.Moderator{}, fmt.Errorf("decoding public key: %w", err)
	}
	maddr, err := multiaddr.NewMultiaddr(m.Addr)
	if err != nil {
		return modcert.Moderator{}, fmt.Errorf("address %q: %w", m.Addr, err)
	}
	if _, err = maddr.ValueForProtocol(multiaddr.P_P2P); err != nil {
		return modcert.Moderator{}, fmt.Errorf("address %q has no peer id", m.Addr)
	}
	return modcert.Moderator{PublicKey: pk, Addr: m.Addr}, nil
}

// ExpandHome replaces leading ~ with the user home directory.
func ExpandHome(path string) string {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~"))
}
