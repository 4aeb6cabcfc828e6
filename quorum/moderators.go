package quorum

import (
	"bytes"
	"crypto/ed25519"
	"errors"
	"fmt"
	"sort"

	"github.com/iykyk-syn/modcert"
)

var (
	faultDenominator = 3
	faultNumerator   = 2
)

// Moderators is an immutable, versioned snapshot of the moderator set a submission is
// certified against. Members are sorted by public key.
type Moderators struct {
	version uint64
	mods    []modcert.Moderator
	index   map[string]int
}

// NewModerators validates and snapshots the given moderator set.
func NewModerators(version uint64, mods []modcert.Moderator) (*Moderators, error) {
	if len(mods) == 0 {
		return nil, errors.New("moderators are nil or empty")
	}

	set := &Moderators{
		version: version,
		mods:    make([]modcert.Moderator, len(mods)),
		index:   make(map[string]int, len(mods)),
	}
	copy(set.mods, mods)
	sort.Slice(set.mods, func(i, j int) bool {
		return bytes.Compare(set.mods[i].PublicKey, set.mods[j].PublicKey) == -1
	})

	for idx, m := range set.mods {
		if len(m.PublicKey) != ed25519.PublicKeySize {
			return nil, fmt.Errorf("invalid moderator #%d: bad public key length %d", idx, len(m.PublicKey))
		}
		key := string(m.PublicKey)
		if _, ok := set.index[key]; ok {
			return nil, fmt.Errorf("invalid moderator #%d: duplicate public key %X", idx, m.PublicKey)
		}
		set.index[key] = idx
	}
	return set, nil
}

// Version of the snapshot.
func (m *Moderators) Version() uint64 { return m.version }

func (m *Moderators) Len() int { return len(m.mods) }

// List returns a copy of the members.
func (m *Moderators) List() []modcert.Moderator {
	out := make([]modcert.Moderator, len(m.mods))
	copy(out, m.mods)
	return out
}

func (m *Moderators) GetByPubKey(pubK []byte) (modcert.Moderator, bool) {
	idx, ok := m.index[string(pubK)]
	if !ok {
		return modcert.Moderator{}, false
	}
	return m.mods[idx], true
}

// DefaultThreshold is the byzantine quorum 2f+1 out of 3f+1, i.e. more than two thirds.
func (m *Moderators) DefaultThreshold() int {
	return len(m.mods)*faultNumerator/faultDenominator + 1
}
