// Package p2p carries the certification protocol over libp2p: moderation requests over
// request/response streams and reports over pubsub.
package p2p

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/libp2p/go-libp2p/core/host"
	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/libp2p/go-libp2p/core/peerstore"
	"github.com/libp2p/go-libp2p/core/protocol"
	"github.com/multiformats/go-multiaddr"

	"github.com/iykyk-syn/modcert"
)

var defaultProtocolID = protocol.ID("/modcert/moderate/v0.0.1")

// maxMessageSize bounds how much is read from a single stream.
const maxMessageSize = 1 << 20

var errDeclined = errors.New("moderator declined the request")

// AddrInfo resolves moderator address. The address must end with /p2p/<peer-id>.
func AddrInfo(mod modcert.Moderator) (*peer.AddrInfo, error) {
	maddr, err := multiaddr.NewMultiaddr(mod.Addr)
	if err != nil {
		return nil, fmt.Errorf("parsing moderator address: %w", err)
	}
	return peer.AddrInfoFromP2pAddr(maddr)
}

// Transport sends moderation requests to moderators over libp2p streams.
type Transport struct {
	host       host.Host
	protocolID protocol.ID

	log *slog.Logger
}

// NewTransport instantiates a new Transport over the given host.
func NewTransport(host host.Host) *Transport {
	return &Transport{
		host:       host,
		protocolID: defaultProtocolID,
		log:        slog.With("module", "p2p-transport"),
	}
}

// SendToModerator implements modcert.Transport.
func (t *Transport) SendToModerator(ctx context.Context, mod modcert.Moderator, cert modcert.MsgCert) (modcert.ModCert, error) {
	info, err := AddrInfo(mod)
	if err != nil {
		return modcert.ModCert{}, err
	}
	if len(info.Addrs) > 0 {
		t.host.Peerstore().AddAddrs(info.ID, info.Addrs, peerstore.TempAddrTTL)
	}

	req, err := cert.MarshalBinary()
	if err != nil {
		return modcert.ModCert{}, fmt.Errorf("marshalling request: %w", err)
	}

	resp, err := t.roundTrip(ctx, info.ID, req)
	if err != nil {
		return modcert.ModCert{}, err
	}

	var mc modcert.ModCert
	if err = mc.UnmarshalBinary(resp); err != nil {
		return modcert.ModCert{}, fmt.Errorf("unmarshalling ModCert: %w", err)
	}
	return mc, nil
}

func (t *Transport) roundTrip(ctx context.Context, to peer.ID, req []byte) ([]byte, error) {
	stream, err := t.host.NewStream(ctx, to, t.protocolID)
	if err != nil {
		return nil, fmt.Errorf("failed to open stream: %w", err)
	}
	defer stream.Close()

	// set stream deadline from the context deadline.
	// if it is empty, then we assume that it will
	// hang until the server will close the stream by the timeout.
	if dl, ok := ctx.Deadline(); ok {
		if err = stream.SetDeadline(dl); err != nil {
			t.log.WarnContext(ctx, "error setting deadline", "err", err)
		}
	}

	if _, err = stream.Write(req); err != nil {
		return nil, fmt.Errorf("writing request to stream: %w", err)
	}
	if err = stream.CloseWrite(); err != nil {
		return nil, err
	}

	resp, err := io.ReadAll(io.LimitReader(stream, maxMessageSize))
	if err != nil {
		return nil, fmt.Errorf("awaiting response: %w", err)
	}
	if len(resp) == 0 {
		return nil, errDeclined
	}
	return resp, nil
}
