package config

import (
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/iykyk-syn/modcert/quorum"
)

// Holder keeps the current Config and moderator set snapshot and swaps them on reload.
// Readers are never blocked and observe either the old or the new snapshot.
type Holder struct {
	cfg  atomic.Pointer[Config]
	mods atomic.Pointer[quorum.Moderators]

	reloadLk sync.Mutex
	version  uint64

	log *slog.Logger
}

// NewHolder instantiates a Holder with the initial Config.
func NewHolder(cfg *Config) (*Holder, error) {
	h := &Holder{log: slog.With("module", "config")}
	if err := h.Update(cfg); err != nil {
		return nil, err
	}
	return h, nil
}

func (h *Holder) Config() *Config {
	return h.cfg.Load()
}

// Moderators returns the current snapshot. It is nil if no moderators are configured.
func (h *Holder) Moderators() *quorum.Moderators {
	return h.mods.Load()
}

// Threshold returns the configured approval threshold, zero for the set's default.
func (h *Holder) Threshold() int {
	return h.cfg.Load().QuorumThreshold
}

// Update validates the Config and makes it current under a new moderator set version.
func (h *Holder) Update(cfg *Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	h.reloadLk.Lock()
	defer h.reloadLk.Unlock()

	version := h.version + 1
	var mods *quorum.Moderators
	if len(cfg.Moderators) > 0 {
		var err error
		if mods, err = cfg.ModeratorSet(version); err != nil {
			return err
		}
	}

	h.version = version
	h.cfg.Store(cfg)
	h.mods.Store(mods)
	h.log.Info("config updated", "moderators", len(cfg.Moderators), "version", version)
	return nil
}

// Reload loads the Config from the file and makes it current.
func (h *Holder) Reload(path string) error {
	cfg, err := Load(path)
	if err != nil {
		return fmt.Errorf("reloading: %w", err)
	}
	return h.Update(cfg)
}
