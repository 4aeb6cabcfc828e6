// Package store is the durable certificate store backed by pebble.
//
// Certificates are keyed by author public key and timestamp. Deletion only tombstones a
// certificate, content stays for audit.
package store

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/cockroachdb/pebble"
	"github.com/cockroachdb/pebble/vfs"

	"github.com/iykyk-syn/modcert"
	"github.com/iykyk-syn/modcert/quorum"
)

var (
	ErrNotFound  = errors.New("certificate not found")
	ErrExists    = errors.New("another certificate with the same author and timestamp exists")
	ErrNotAuthor = errors.New("delete intent is not signed by the author")

	// ErrNotCertified means the certificate lacks enough approvals of known moderators.
	ErrNotCertified = errors.New("certificate lacks moderator quorum")
)

var (
	certPrefix = []byte("cert:")
	tsPrefix   = []byte("ts:")
	logPrefix  = []byte("log:")
	configKey  = []byte("config")
)

// QuorumSource provides the moderator set and approval threshold that published
// certificates are checked against.
type QuorumSource interface {
	// Moderators returns the current set. Nil disables membership checks.
	Moderators() *quorum.Moderators
	// Threshold returns the required approvals. Zero means the set's default threshold.
	Threshold() int
}

type options struct {
	pebble *pebble.Options
	quorum QuorumSource
}

type Option func(*options)

// WithInMemory keeps the whole store in memory. Useful for tests.
func WithInMemory() Option {
	return func(o *options) {
		o.pebble.FS = vfs.NewMem()
	}
}

// WithQuorum makes Publish count only approvals of the source's moderators against its threshold.
// Without it any certificate with at least one valid approval is accepted.
func WithQuorum(src QuorumSource) Option {
	return func(o *options) {
		o.quorum = src
	}
}

// Store implements modcert.Publisher, modcert.DeleteRequester, modcert.Fetcher,
// modcert.ModLogSink, modcert.ModLogSource and modcert.ModConfigStore.
type Store struct {
	db     *pebble.DB
	quorum QuorumSource

	// guards read-modify-write sequences
	mu     sync.Mutex
	logSeq uint64

	log *slog.Logger
}

// Open opens or creates the store at the given path.
func Open(path string, opts ...Option) (*Store, error) {
	o := &options{pebble: &pebble.Options{}}
	for _, opt := range opts {
		opt(o)
	}
	if o.pebble.FS == nil {
		if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
			return nil, err
		}
	}

	db, err := pebble.Open(path, o.pebble)
	if err != nil {
		return nil, fmt.Errorf("opening pebble: %w", err)
	}

	s := &Store{db: db, quorum: o.quorum, log: slog.With("module", "store")}
	if s.logSeq, err = s.lastLogSeq(); err != nil {
		return nil, errors.Join(err, db.Close())
	}
	return s, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Publish persists the certificate after checking the author signature, every judgment and
// the moderator quorum. Publishing the same certificate twice is a no-op.
func (s *Store) Publish(ctx context.Context, cert modcert.MsgCert) error {
	if err := cert.VerifyAll(); err != nil {
		return fmt.Errorf("refusing to publish %s: %w", cert.ID(), err)
	}
	if err := s.checkQuorum(cert); err != nil {
		return fmt.Errorf("refusing to publish %s: %w", cert.ID(), err)
	}
	cert.Reason = ""

	s.mu.Lock()
	defer s.mu.Unlock()

	key := certKey(cert.PublicKey, cert.Msg.Ts)
	existing, err := s.get(key)
	switch {
	case err == nil:
		if sameCert(existing.MsgCert, cert) {
			return nil
		}
		return fmt.Errorf("%w: %s", ErrExists, cert.ID())
	case !errors.Is(err, ErrNotFound):
		return err
	}

	val, err := modcert.RetMsgCert{MsgCert: cert, Deleted: modcert.DeletedNo}.MarshalBinary()
	if err != nil {
		return err
	}

	b := s.db.NewBatch()
	defer b.Close()
	if err = b.Set(key, val, nil); err != nil {
		return err
	}
	if err = b.Set(tsKey(cert.Msg.Ts, cert.PublicKey), nil, nil); err != nil {
		return err
	}
	if err = b.Commit(pebble.Sync); err != nil {
		return fmt.Errorf("committing %s: %w", cert.ID(), err)
	}

	s.log.DebugContext(ctx, "published", "cert", cert.ID(), "mod_certs", len(cert.ModCerts))
	return nil
}

// checkQuorum counts distinct approvals, only of known moderators when a QuorumSource is set.
func (s *Store) checkQuorum(cert modcert.MsgCert) error {
	var mods *quorum.Moderators
	if s.quorum != nil {
		mods = s.quorum.Moderators()
	}

	approvals := make(map[string]struct{}, len(cert.ModCerts))
	for _, mc := range cert.ModCerts {
		if mc.Status != modcert.StatusApprove {
			continue
		}
		if mods != nil {
			if _, ok := mods.GetByPubKey(mc.PublicKey); !ok {
				continue
			}
		}
		approvals[string(mc.PublicKey)] = struct{}{}
	}

	threshold := 1
	if mods != nil {
		threshold = s.quorum.Threshold()
		if threshold <= 0 {
			threshold = mods.DefaultThreshold()
		}
	}
	if len(approvals) < threshold {
		return fmt.Errorf("%w: %d approvals of %d required", ErrNotCertified, len(approvals), threshold)
	}
	return nil
}

// RequestDelete tombstones the certificate the intent refers to.
func (s *Store) RequestDelete(ctx context.Context, intent modcert.DeleteIntent) error {
	if err := intent.Verify(); err != nil {
		return fmt.Errorf("%w: %w", ErrNotAuthor, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	key := certKey(intent.Cert.PublicKey, intent.Cert.Msg.Ts)
	stored, err := s.get(key)
	if err != nil {
		return err
	}
	if stored.Msg != intent.Cert.Msg || !bytes.Equal(stored.Sign, intent.Cert.Sign) {
		return fmt.Errorf("%w: intent does not match %s", ErrNotFound, intent.Cert.ID())
	}
	if stored.Deleted == modcert.DeletedYes {
		return nil
	}

	stored.Deleted = modcert.DeletedYes
	val, err := stored.MarshalBinary()
	if err != nil {
		return err
	}
	if err = s.db.Set(key, val, pebble.Sync); err != nil {
		return err
	}

	s.log.InfoContext(ctx, "tombstoned", "cert", stored.ID())
	return nil
}

// Get returns the stored certificate of the author at the timestamp.
func (s *Store) Get(_ context.Context, author []byte, ts int64) (modcert.RetMsgCert, error) {
	return s.get(certKey(author, ts))
}

func (s *Store) FetchAll(context.Context) ([]modcert.RetMsgCert, error) {
	var out []modcert.RetMsgCert
	err := s.iterate(certPrefix, func(_, val []byte) error {
		var r modcert.RetMsgCert
		if err := r.UnmarshalBinary(val); err != nil {
			return err
		}
		out = append(out, r)
		return nil
	})
	return out, err
}

func (s *Store) FetchByTimestamp(_ context.Context, ts int64) ([]modcert.RetMsgCert, error) {
	prefix := tsKey(ts, nil)

	var out []modcert.RetMsgCert
	err := s.iterate(prefix, func(key, _ []byte) error {
		r, err := s.get(certKey(key[len(prefix):], ts))
		if err != nil {
			return err
		}
		out = append(out, r)
		return nil
	})
	return out, err
}

func (s *Store) AppendModerationLog(_ context.Context, entry modcert.ModLogEntry) error {
	val, err := entry.MarshalBinary()
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.logSeq++
	return s.db.Set(logKey(entry.Timestamp, s.logSeq), val, pebble.Sync)
}

// FetchModerationLogs returns the audit trail ordered by entry timestamp.
func (s *Store) FetchModerationLogs(context.Context) ([]modcert.ModLogEntry, error) {
	var out []modcert.ModLogEntry
	err := s.iterate(logPrefix, func(_, val []byte) error {
		var e modcert.ModLogEntry
		if err := e.UnmarshalBinary(val); err != nil {
			return err
		}
		out = append(out, e)
		return nil
	})
	return out, err
}

// GetModConfig returns the saved ModConfig or an empty one if nothing was saved yet.
func (s *Store) GetModConfig(context.Context) (modcert.ModConfig, error) {
	val, closer, err := s.db.Get(configKey)
	if errors.Is(err, pebble.ErrNotFound) {
		return modcert.ModConfig{}, nil
	}
	if err != nil {
		return modcert.ModConfig{}, err
	}
	defer closer.Close()

	var cfg modcert.ModConfig
	return cfg, cfg.UnmarshalBinary(val)
}

func (s *Store) SaveModConfig(_ context.Context, cfg modcert.ModConfig) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	val, err := cfg.MarshalBinary()
	if err != nil {
		return err
	}
	return s.db.Set(configKey, val, pebble.Sync)
}

func (s *Store) get(key []byte) (modcert.RetMsgCert, error) {
	val, closer, err := s.db.Get(key)
	if errors.Is(err, pebble.ErrNotFound) {
		return modcert.RetMsgCert{}, ErrNotFound
	}
	if err != nil {
		return modcert.RetMsgCert{}, err
	}
	defer closer.Close()

	var r modcert.RetMsgCert
	if err = r.UnmarshalBinary(val); err != nil {
		return modcert.RetMsgCert{}, fmt.Errorf("decoding stored certificate: %w", err)
	}
	return r, nil
}

func (s *Store) iterate(prefix []byte, fn func(key, val []byte) error) error {
	it, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: prefixEnd(prefix),
	})
	if err != nil {
		return err
	}
	defer it.Close()

	for ok := it.First(); ok; ok = it.Next() {
		// values are only valid until the iterator moves, decoders copy what they keep
		if err = fn(it.Key(), it.Value()); err != nil {
			return err
		}
	}
	return it.Error()
}

func (s *Store) lastLogSeq() (uint64, error) {
	it, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: logPrefix,
		UpperBound: prefixEnd(logPrefix),
	})
	if err != nil {
		return 0, err
	}
	defer it.Close()

	var last uint64
	for ok := it.First(); ok; ok = it.Next() {
		if seq := binary.BigEndian.Uint64(it.Key()[len(it.Key())-8:]); seq > last {
			last = seq
		}
	}
	return last, it.Error()
}

func sameCert(a, b modcert.MsgCert) bool {
	x, err := a.MarshalBinary()
	if err != nil {
		return false
	}
	y, err := b.MarshalBinary()
	if err != nil {
		return false
	}
	return bytes.Equal(x, y)
}

func certKey(author []byte, ts int64) []byte {
	key := make([]byte, 0, len(certPrefix)+len(author)+8)
	key = append(key, certPrefix...)
	key = append(key, author...)
	return binary.BigEndian.AppendUint64(key, uint64(ts))
}

func tsKey(ts int64, author []byte) []byte {
	key := make([]byte, 0, len(tsPrefix)+8+len(author))
	key = append(key, tsPrefix...)
	key = binary.BigEndian.AppendUint64(key, uint64(ts))
	return append(key, author...)
}

func logKey(ts int64, seq uint64) []byte {
	key := make([]byte, 0, len(logPrefix)+16)
	key = append(key, logPrefix...)
	key = binary.BigEndian.AppendUint64(key, uint64(ts))
	return binary.BigEndian.AppendUint64(key, seq)
}

func prefixEnd(prefix []byte) []byte {
	end := bytes.Clone(prefix)
	for i := len(end) - 1; i >= 0; i-- {
		end[i]++
		if end[i] != 0 {
			return end[:i+1]
		}
	}
	return nil
}
