package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/libp2p/go-libp2p"
	pubsub "github.com/libp2p/go-libp2p-pubsub"
	libp2pcrypto "github.com/libp2p/go-libp2p/core/crypto"
	p2phost "github.com/libp2p/go-libp2p/core/host"
	"github.com/libp2p/go-libp2p/core/network"
	"github.com/libp2p/go-libp2p/core/peer"

	"github.com/iykyk-syn/modcert"
	"github.com/iykyk-syn/modcert/config"
	"github.com/iykyk-syn/modcert/crypto/ed25519"
	"github.com/iykyk-syn/modcert/crypto/local"
	"github.com/iykyk-syn/modcert/p2p"
	"github.com/iykyk-syn/modcert/store"
)

// clientListenAddrs are used by commands that do not serve anything.
var clientListenAddrs = []string{"/ip4/0.0.0.0/udp/0/quic-v1"}

type mode uint8

const (
	// offline nodes only use the local store and identity
	offline mode = iota
	// client nodes dial out on an ephemeral port
	client
	// serving nodes listen on configured addresses
	serving
)

// node bundles what every command needs.
type node struct {
	holder *config.Holder
	signer *local.Signer
	host   p2phost.Host
	store  *store.Store

	closers []io.Closer
}

// openNode loads config, identity and store and, unless offline, starts the p2p host.
func openNode(m mode) (n *node, err error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	holder, err := config.NewHolder(cfg)
	if err != nil {
		return nil, err
	}

	p2pKey, signer, err := getIdentity(cfg.KeyPath)
	if err != nil {
		return nil, err
	}

	st, err := store.Open(config.ExpandHome(cfg.StorePath), store.WithQuorum(holder))
	if err != nil {
		return nil, err
	}
	n = &node{
		holder:  holder,
		signer:  signer,
		store:   st,
		closers: []io.Closer{st},
	}
	if m == offline {
		return n, nil
	}

	listenAddrs := clientListenAddrs
	if m == serving {
		listenAddrs = cfg.ListenAddrs
	}
	n.host, err = libp2p.New(
		libp2p.Identity(p2pKey),
		libp2p.ListenAddrStrings(listenAddrs...),
		libp2p.ResourceManager(&network.NullResourceManager{}),
	)
	if err != nil {
		return nil, errors.Join(err, n.Close())
	}
	// the host goes first, so nothing is stored after the store is closed
	n.closers = append([]io.Closer{n.host}, n.closers...)
	return n, nil
}

func (n *node) Close() (err error) {
	for _, c := range n.closers {
		err = errors.Join(err, c.Close())
	}
	return err
}

func (n *node) printAddrs() error {
	addrs, err := peer.AddrInfoToP2pAddrs(p2phost.InfoFromHost(n.host))
	if err != nil {
		return err
	}

	fmt.Println("The p2p host is listening on:")
	for _, addr := range addrs {
		fmt.Println("* ", addr.String())
	}
	fmt.Println()
	return nil
}

// connectModerators dials every configured moderator. Unreachable ones are logged and skipped.
func (n *node) connectModerators(ctx context.Context) int {
	mods := n.holder.Moderators()
	if mods == nil {
		return 0
	}

	var connected int
	for _, m := range mods.List() {
		info, err := p2p.AddrInfo(m)
		if err != nil {
			slog.Warn("bad moderator address", "addr", m.Addr, "err", err)
			continue
		}
		if err = n.host.Connect(ctx, *info); err != nil {
			slog.Warn("connecting to moderator", "addr", m.Addr, "err", err)
			continue
		}
		connected++
	}
	return connected
}

// reportTopic joins the report topic and waits until a peer is subscribed or wait elapses.
// When nobody joined in time, reporting through the topic fails with p2p.ErrNoSubscribers.
func (n *node) reportTopic(ctx context.Context, wait time.Duration) (*p2p.ReportTopic, error) {
	pSub, err := pubsub.NewFloodSub(ctx, n.host)
	if err != nil {
		return nil, err
	}
	topic := p2p.NewReportTopic(n.holder.Config().Network, pSub, nil)
	if err = topic.Start(); err != nil {
		return nil, err
	}
	if n.connectModerators(ctx) == 0 {
		slog.Warn("no moderator reachable")
	}

	timer := time.NewTimer(wait)
	defer timer.Stop()
	ticker := time.NewTicker(time.Millisecond * 100)
	defer ticker.Stop()
	for len(topic.Peers()) == 0 {
		select {
		case <-ticker.C:
		case <-timer.C:
			return topic, nil
		case <-ctx.Done():
			return nil, errors.Join(ctx.Err(), topic.Stop(ctx))
		}
	}
	return topic, nil
}

// findCert looks up a stored certificate by hex encoded author key and timestamp.
func (n *node) findCert(ctx context.Context, author, ts string) (modcert.RetMsgCert, error) {
	pk, err := hex.DecodeString(author)
	if err != nil {
		return modcert.RetMsgCert{}, fmt.Errorf("decoding author key: %w", err)
	}
	t, err := strconv.ParseInt(ts, 10, 64)
	if err != nil {
		return modcert.RetMsgCert{}, fmt.Errorf("parsing timestamp: %w", err)
	}
	return n.store.Get(ctx, pk, t)
}

// getIdentity reads libp2p key from the file, generating a new one if there is none.
// The same ed25519 key identifies the node in libp2p and signs messages and judgments.
func getIdentity(path string) (libp2pcrypto.PrivKey, *local.Signer, error) {
	path = config.ExpandHome(path)
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, nil, err
	}

	keyBytes, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		privKey, _, err := libp2pcrypto.GenerateEd25519Key(rand.Reader)
		if err != nil {
			return nil, nil, err
		}
		if keyBytes, err = libp2pcrypto.MarshalPrivateKey(privKey); err != nil {
			return nil, nil, err
		}
		if err = os.WriteFile(path, keyBytes, 0600); err != nil {
			return nil, nil, err
		}
		slog.Info("generated new identity", "path", path)
	} else if err != nil {
		return nil, nil, err
	}

	p2pKey, err := libp2pcrypto.UnmarshalPrivateKey(keyBytes)
	if err != nil {
		return nil, nil, err
	}
	if p2pKey.Type() != libp2pcrypto.Ed25519 {
		return nil, nil, fmt.Errorf("identity must be an ed25519 key, got %s", p2pKey.Type())
	}

	keyRaw, err := p2pKey.Raw()
	if err != nil {
		return nil, nil, err
	}
	key, err := ed25519.BytesToPrivKey(keyRaw)
	if err != nil {
		return nil, nil, err
	}
	signer, err := local.NewSigner(key)
	if err != nil {
		return nil, nil, err
	}
	return p2pKey, signer, nil
}
