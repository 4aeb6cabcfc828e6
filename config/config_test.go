package config

import (
	"crypto/rand"
	"encoding/hex"
	"path/filepath"
	"testing"
	"time"

	p2pcrypto "github.com/libp2p/go-libp2p/core/crypto"
	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iykyk-syn/modcert/crypto/ed25519"
)

func randModerator(t *testing.T) Moderator {
	pk, _, err := ed25519.GenKeys()
	require.NoError(t, err)

	_, pub, err := p2pcrypto.GenerateEd25519Key(rand.Reader)
	require.NoError(t, err)
	id, err := peer.IDFromPublicKey(pub)
	require.NoError(t, err)

	return Moderator{
		PublicKey: hex.EncodeToString(pk),
		Addr:      "/ip4/127.0.0.1/udp/10000/quic-v1/p2p/" + id.String(),
	}
}

func TestSaveLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")

	cfg := Default()
	cfg.QuorumThreshold = 2
	cfg.RejectRule = "first-reject"
	cfg.PerAttemptTimeout = Duration{time.Millisecond * 500}
	cfg.Moderators = []Moderator{randModerator(t), randModerator(t), randModerator(t)}
	require.NoError(t, cfg.Save(path))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, loaded)

	mods, err := loaded.ModeratorSet(7)
	require.NoError(t, err)
	assert.Equal(t, 3, mods.Len())
	assert.EqualValues(t, 7, mods.Version())
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"ListenAddr", func(c *Config) { c.ListenAddrs = []string{"localhost:1000"} }},
		{"RejectRule", func(c *Config) { c.RejectRule = "never" }},
		{"SubmissionTimeout", func(c *Config) { c.SubmissionTimeout = Duration{} }},
		{"Threshold", func(c *Config) { c.QuorumThreshold = 5 }},
		{"PublicKey", func(c *Config) { c.Moderators[0].PublicKey = "zz" }},
		{"NoPeerID", func(c *Config) { c.Moderators[0].Addr = "/ip4/127.0.0.1/udp/10000/quic-v1" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			cfg.Moderators = []Moderator{randModerator(t)}
			require.NoError(t, cfg.Validate())

			tt.mutate(cfg)
			require.Error(t, cfg.Validate())
		})
	}
}

func TestHolderReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")

	cfg := Default()
	cfg.Moderators = []Moderator{randModerator(t)}
	h, err := NewHolder(cfg)
	require.NoError(t, err)
	first := h.Moderators()
	require.NotNil(t, first)
	assert.EqualValues(t, 1, first.Version())
	assert.Zero(t, h.Threshold())

	cfg.Moderators = append(cfg.Moderators, randModerator(t))
	cfg.QuorumThreshold = 2
	require.NoError(t, cfg.Save(path))
	require.NoError(t, h.Reload(path))

	second := h.Moderators()
	assert.EqualValues(t, 2, second.Version())
	assert.Equal(t, 2, second.Len())
	assert.Equal(t, 2, h.Threshold())
	// snapshots taken earlier stay intact
	assert.Equal(t, 1, first.Len())

	bad := Default()
	bad.RejectRule = "never"
	require.Error(t, h.Update(bad))
	assert.Same(t, second, h.Moderators())
}

func TestExpandHome(t *testing.T) {
	t.Setenv("HOME", "/home/test")
	assert.Equal(t, "/home/test/.modcert/key", ExpandHome("~/.modcert/key"))
	assert.Equal(t, "/etc/modcert", ExpandHome("/etc/modcert"))
}
