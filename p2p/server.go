package p2p

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/libp2p/go-libp2p/core/host"
	"github.com/libp2p/go-libp2p/core/network"
	"github.com/libp2p/go-libp2p/core/protocol"

	"github.com/iykyk-syn/modcert"
)

// Handler judges moderation requests on the moderator side.
type Handler interface {
	Moderate(context.Context, modcert.MsgCert) (modcert.ModCert, error)
}

// requestTimeout bounds handling of a single moderation request.
var requestTimeout = time.Second * 30

// Server serves moderation requests over libp2p streams.
type Server struct {
	host       host.Host
	handler    Handler
	protocolID protocol.ID

	log *slog.Logger
}

// NewServer instantiates a new Server. It does not serve until started.
func NewServer(host host.Host, handler Handler) *Server {
	return &Server{
		host:       host,
		handler:    handler,
		protocolID: defaultProtocolID,
		log:        slog.With("module", "p2p-server"),
	}
}

func (s *Server) Start() {
	s.host.SetStreamHandler(s.protocolID, func(stream network.Stream) {
		if err := s.serve(stream); err != nil {
			s.log.Error("serving moderation request", "peer", stream.Conn().RemotePeer(), "err", err)
			_ = stream.Reset()
		}
	})
}

func (s *Server) Stop() {
	s.host.RemoveStreamHandler(s.protocolID)
}

func (s *Server) serve(stream network.Stream) error {
	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()

	if err := stream.SetDeadline(time.Now().Add(requestTimeout)); err != nil {
		s.log.Warn("error setting deadline", "err", err)
	}

	req, err := io.ReadAll(io.LimitReader(stream, maxMessageSize))
	if err != nil {
		return fmt.Errorf("reading request: %w", err)
	}

	var cert modcert.MsgCert
	if err = cert.UnmarshalBinary(req); err != nil {
		return fmt.Errorf("unmarshalling request: %w", err)
	}

	mc, err := s.handler.Moderate(ctx, cert)
	if err != nil {
		return fmt.Errorf("moderating %s: %w", cert.ID(), err)
	}

	resp, err := mc.MarshalBinary()
	if err != nil {
		return fmt.Errorf("marshalling ModCert: %w", err)
	}
	if _, err = stream.Write(resp); err != nil {
		return fmt.Errorf("writing response: %w", err)
	}
	return stream.Close()
}
