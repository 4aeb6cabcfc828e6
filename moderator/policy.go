package moderator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode"

	"github.com/iykyk-syn/modcert"
)

// ErrNoConfig is returned by policies that cannot load their configuration.
var ErrNoConfig = errors.New("moderation config unavailable")

// ConfigSource provides the current ModConfig.
type ConfigSource interface {
	GetModConfig(context.Context) (modcert.ModConfig, error)
}

// StaticConfig is a ConfigSource that never changes.
type StaticConfig modcert.ModConfig

func (c StaticConfig) GetModConfig(context.Context) (modcert.ModConfig, error) {
	return modcert.ModConfig(c), nil
}

// ForbiddenWords rejects messages containing any of the forbidden words of the current
// ModConfig. Words are matched case-insensitively as whole words.
// Category thresholds are left to classifier based policies.
type ForbiddenWords struct {
	source ConfigSource
}

func NewForbiddenWords(source ConfigSource) *ForbiddenWords {
	return &ForbiddenWords{source: source}
}

func (p *ForbiddenWords) Judge(ctx context.Context, msg modcert.Msg) (modcert.Status, error) {
	cfg, err := p.source.GetModConfig(ctx)
	if err != nil {
		return modcert.StatusReject, fmt.Errorf("%w: %w", ErrNoConfig, err)
	}
	if len(cfg.Forbidden) == 0 {
		return modcert.StatusApprove, nil
	}

	forbidden := make(map[string]struct{}, len(cfg.Forbidden))
	for _, w := range cfg.Forbidden {
		forbidden[strings.ToLower(w)] = struct{}{}
	}

	words := strings.FieldsFunc(strings.ToLower(msg.Content), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	for _, w := range words {
		if _, ok := forbidden[w]; ok {
			return modcert.StatusReject, nil
		}
	}
	return modcert.StatusApprove, nil
}
