package p2p

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	pubsub "github.com/libp2p/go-libp2p-pubsub"
	"github.com/libp2p/go-libp2p/core/host"
	mocknet "github.com/libp2p/go-libp2p/p2p/net/mock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iykyk-syn/modcert"
	"github.com/iykyk-syn/modcert/crypto/ed25519"
	"github.com/iykyk-syn/modcert/crypto/local"
)

func newSigner(t *testing.T) *local.Signer {
	_, priv, err := ed25519.GenKeys()
	require.NoError(t, err)
	s, err := local.NewSigner(priv)
	require.NoError(t, err)
	return s
}

type judge struct {
	signer *local.Signer
	status modcert.Status
	err    error
}

func (j *judge) Moderate(_ context.Context, cert modcert.MsgCert) (modcert.ModCert, error) {
	if j.err != nil {
		return modcert.ModCert{}, j.err
	}
	return modcert.SignJudgment(j.signer, cert.Msg, j.status)
}

func moderatorOf(h host.Host, s *local.Signer) modcert.Moderator {
	return modcert.Moderator{PublicKey: s.ID(), Addr: "/p2p/" + h.ID().String()}
}

func TestTransport(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second*10)
	t.Cleanup(cancel)

	net, err := mocknet.FullMeshConnected(3)
	require.NoError(t, err)
	hosts := net.Hosts()

	approver, rejecter := newSigner(t), newSigner(t)
	srv1 := NewServer(hosts[1], &judge{signer: approver, status: modcert.StatusApprove})
	srv1.Start()
	t.Cleanup(srv1.Stop)
	srv2 := NewServer(hosts[2], &judge{signer: rejecter, status: modcert.StatusReject})
	srv2.Start()
	t.Cleanup(srv2.Stop)

	author := newSigner(t)
	cert, err := modcert.NewMsgCert(author, modcert.Msg{Content: "hello", Ts: 1000})
	require.NoError(t, err)

	tr := NewTransport(hosts[0])

	mc, err := tr.SendToModerator(ctx, moderatorOf(hosts[1], approver), cert)
	require.NoError(t, err)
	assert.Equal(t, modcert.StatusApprove, mc.Status)
	require.NoError(t, mc.Verify(cert.Msg))

	mc, err = tr.SendToModerator(ctx, moderatorOf(hosts[2], rejecter), cert)
	require.NoError(t, err)
	assert.Equal(t, modcert.StatusReject, mc.Status)
	require.NoError(t, mc.Verify(cert.Msg))
}

func TestTransportDeclined(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second*10)
	t.Cleanup(cancel)

	net, err := mocknet.FullMeshConnected(2)
	require.NoError(t, err)
	hosts := net.Hosts()

	mod := newSigner(t)
	srv := NewServer(hosts[1], &judge{signer: mod, err: errors.New("not today")})
	srv.Start()
	t.Cleanup(srv.Stop)

	cert, err := modcert.NewMsgCert(newSigner(t), modcert.Msg{Content: "hello", Ts: 1000})
	require.NoError(t, err)

	_, err = NewTransport(hosts[0]).SendToModerator(ctx, moderatorOf(hosts[1], mod), cert)
	require.Error(t, err)

	_, err = NewTransport(hosts[0]).SendToModerator(ctx, modcert.Moderator{Addr: "not-an-addr"}, cert)
	require.Error(t, err)
}

func TestReportTopic(t *testing.T) {
	const nodeCount = 3

	ctx, cancel := context.WithTimeout(context.Background(), time.Second*10)
	t.Cleanup(cancel)

	net, err := mocknet.FullMeshConnected(nodeCount)
	require.NoError(t, err)

	var (
		mu       sync.Mutex
		received []modcert.MsgCert
	)
	handler := func(_ context.Context, env modcert.MsgCert) {
		mu.Lock()
		defer mu.Unlock()
		received = append(received, env)
	}

	topics := make([]*ReportTopic, nodeCount)
	for i, h := range net.Hosts() {
		ps, err := pubsub.NewFloodSub(ctx, h)
		require.NoError(t, err)

		var hdl ReportHandler
		if i > 0 {
			hdl = handler
		}
		topics[i] = NewReportTopic("test", ps, hdl)
		require.NoError(t, topics[i].Start())
	}
	t.Cleanup(func() {
		for _, tp := range topics {
			_ = tp.Stop(ctx)
		}
	})

	require.Eventually(t, func() bool {
		return len(topics[0].Peers()) == nodeCount-1
	}, time.Second*5, time.Millisecond*50)

	author, mod := newSigner(t), newSigner(t)
	cert, err := modcert.NewMsgCert(author, modcert.Msg{Content: "hello", Ts: 1000})
	require.NoError(t, err)
	mc, err := modcert.SignJudgment(mod, cert.Msg, modcert.StatusApprove)
	require.NoError(t, err)
	cert.ModCerts = append(cert.ModCerts, mc)

	forged := cert
	forged.Reason = "forged"
	forged.Msg.Content = "tampered"
	// local validation refuses to publish it at all
	require.Error(t, topics[0].RequestReport(ctx, forged))

	cert.Reason = "offensive"
	require.NoError(t, topics[0].RequestReport(ctx, cert))

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(received) == nodeCount-1
	}, time.Second*5, time.Millisecond*50)

	mu.Lock()
	defer mu.Unlock()
	for _, env := range received {
		assert.Equal(t, "offensive", env.Reason)
		assert.Equal(t, cert.ID(), env.ID())
	}
}

func TestReportTopicNoSubscribers(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second*10)
	t.Cleanup(cancel)

	net, err := mocknet.FullMeshConnected(1)
	require.NoError(t, err)

	ps, err := pubsub.NewFloodSub(ctx, net.Hosts()[0])
	require.NoError(t, err)
	topic := NewReportTopic("test", ps, nil)
	require.NoError(t, topic.Start())
	t.Cleanup(func() { _ = topic.Stop(ctx) })

	author, mod := newSigner(t), newSigner(t)
	cert, err := modcert.NewMsgCert(author, modcert.Msg{Content: "hello", Ts: 1000})
	require.NoError(t, err)
	mc, err := modcert.SignJudgment(mod, cert.Msg, modcert.StatusApprove)
	require.NoError(t, err)
	cert.ModCerts = append(cert.ModCerts, mc)
	cert.Reason = "offensive"

	require.Empty(t, topic.Peers())
	require.ErrorIs(t, topic.RequestReport(ctx, cert), ErrNoSubscribers)
}
