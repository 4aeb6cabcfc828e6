package broadcast

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iykyk-syn/modcert"
)

type behaviour struct {
	delay time.Duration
	err   error
}

// testTransport answers with a ModCert carrying the moderator key after the configured delay.
type testTransport struct {
	behaviour map[string]behaviour
}

func (t *testTransport) SendToModerator(ctx context.Context, mod modcert.Moderator, _ modcert.MsgCert) (modcert.ModCert, error) {
	bh := t.behaviour[mod.Addr]
	select {
	case <-time.After(bh.delay):
	case <-ctx.Done():
		return modcert.ModCert{}, ctx.Err()
	}
	if bh.err != nil {
		return modcert.ModCert{}, bh.err
	}
	return modcert.ModCert{PublicKey: []byte(mod.Addr), Status: modcert.StatusApprove}, nil
}

func collect(ch <-chan Response) map[string][]Response {
	out := make(map[string][]Response)
	for resp := range ch {
		out[resp.Moderator.Addr] = append(out[resp.Moderator.Addr], resp)
	}
	return out
}

func TestBroadcast(t *testing.T) {
	errUnreachable := errors.New("unreachable")
	transport := &testTransport{behaviour: map[string]behaviour{
		"fast":   {},
		"late":   {delay: time.Millisecond * 150},
		"broken": {err: errUnreachable},
		"silent": {delay: time.Hour},
	}}
	mods := []modcert.Moderator{{Addr: "fast"}, {Addr: "late"}, {Addr: "broken"}, {Addr: "silent"}}

	ctx, cancel := context.WithTimeout(context.Background(), time.Millisecond*500)
	t.Cleanup(cancel)

	bro := NewBroadcaster(transport)
	got := collect(bro.Broadcast(ctx, modcert.MsgCert{}, mods, time.Millisecond*50))

	require.Len(t, got["fast"], 1)
	assert.NoError(t, got["fast"][0].Err)
	assert.False(t, got["fast"][0].Late)
	assert.Equal(t, []byte("fast"), got["fast"][0].Cert.PublicKey)

	require.Len(t, got["late"], 2)
	assert.True(t, got["late"][0].Timeout())
	assert.NoError(t, got["late"][1].Err)
	assert.True(t, got["late"][1].Late)

	require.Len(t, got["broken"], 1)
	assert.ErrorIs(t, got["broken"][0].Err, errUnreachable)

	// never answers before the overall deadline, so only the timeout is seen
	require.Len(t, got["silent"], 1)
	assert.True(t, got["silent"][0].Timeout())
}

func TestBroadcastNoAttemptTimeout(t *testing.T) {
	transport := &testTransport{behaviour: map[string]behaviour{
		"a": {delay: time.Millisecond * 20},
		"b": {delay: time.Millisecond * 10},
	}}
	mods := []modcert.Moderator{{Addr: "a"}, {Addr: "b"}}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	t.Cleanup(cancel)

	got := collect(NewBroadcaster(transport).Broadcast(ctx, modcert.MsgCert{}, mods, 0))
	for _, addr := range []string{"a", "b"} {
		require.Len(t, got[addr], 1)
		assert.NoError(t, got[addr][0].Err)
	}
}
