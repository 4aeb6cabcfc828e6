package quorum

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iykyk-syn/modcert"
	"github.com/iykyk-syn/modcert/crypto/ed25519"
	"github.com/iykyk-syn/modcert/crypto/local"
)

var testMsg = modcert.Msg{Content: "hello", Ts: 1000}

func moderators(t *testing.T, n int) (*Moderators, []*local.Signer) {
	signers := make([]*local.Signer, n)
	mods := make([]modcert.Moderator, n)
	for i := range n {
		_, priv, err := ed25519.GenKeys()
		require.NoError(t, err)
		signers[i], err = local.NewSigner(priv)
		require.NoError(t, err)
		mods[i] = modcert.Moderator{PublicKey: signers[i].ID()}
	}
	set, err := NewModerators(1, mods)
	require.NoError(t, err)
	return set, signers
}

func judge(t *testing.T, s *local.Signer, status modcert.Status) modcert.ModCert {
	mc, err := modcert.SignJudgment(s, testMsg, status)
	require.NoError(t, err)
	return mc
}

func TestModerators(t *testing.T) {
	set, signers := moderators(t, 4)
	assert.Equal(t, 4, set.Len())
	assert.Equal(t, 3, set.DefaultThreshold())
	assert.EqualValues(t, 1, set.Version())

	_, ok := set.GetByPubKey(signers[2].ID())
	assert.True(t, ok)
	_, ok = set.GetByPubKey([]byte("nope"))
	assert.False(t, ok)

	_, err := NewModerators(2, append(set.List(), set.List()[0]))
	require.Error(t, err)
	_, err = NewModerators(2, nil)
	require.Error(t, err)
	_, err = NewModerators(2, []modcert.Moderator{{PublicKey: []byte{1, 2}}})
	require.Error(t, err)
}

func TestAggregatorApproved(t *testing.T) {
	set, signers := moderators(t, 4)
	agg, err := NewAggregator(testMsg, set)
	require.NoError(t, err)
	require.Equal(t, 3, agg.Threshold())

	for i, s := range signers[:3] {
		d, err := agg.Add(judge(t, s, modcert.StatusApprove))
		require.NoError(t, err)
		if i < 2 {
			assert.Equal(t, Pending, d)
		}
	}
	assert.Equal(t, Approved, agg.Decision())
	assert.Len(t, agg.Certs(), 3)
}

func TestAggregatorRejected(t *testing.T) {
	set, signers := moderators(t, 4)
	agg, err := NewAggregator(testMsg, set)
	require.NoError(t, err)

	_, err = agg.Add(judge(t, signers[0], modcert.StatusApprove))
	require.NoError(t, err)
	_, err = agg.Add(judge(t, signers[1], modcert.StatusReject))
	require.NoError(t, err)
	assert.Equal(t, Pending, agg.Decision())
	_, err = agg.Add(judge(t, signers[2], modcert.StatusApprove))
	require.NoError(t, err)
	assert.Equal(t, Pending, agg.Decision())

	d, err := agg.Add(judge(t, signers[3], modcert.StatusReject))
	require.NoError(t, err)
	assert.Equal(t, Rejected, d)
}

func TestAggregatorRejectOnFirst(t *testing.T) {
	set, signers := moderators(t, 4)
	agg, err := NewAggregator(testMsg, set, WithRejectRule(RejectOnFirst))
	require.NoError(t, err)

	d, err := agg.Add(judge(t, signers[0], modcert.StatusReject))
	require.NoError(t, err)
	assert.Equal(t, Rejected, d)
}

func TestAggregatorThreshold(t *testing.T) {
	set, signers := moderators(t, 4)
	_, err := NewAggregator(testMsg, set, WithThreshold(5))
	require.Error(t, err)
	_, err = NewAggregator(testMsg, set, WithThreshold(0))
	require.Error(t, err)

	agg, err := NewAggregator(testMsg, set, WithThreshold(1))
	require.NoError(t, err)
	d, err := agg.Add(judge(t, signers[0], modcert.StatusApprove))
	require.NoError(t, err)
	assert.Equal(t, Approved, d)
}

func TestAggregatorDiscardsInvalid(t *testing.T) {
	set, signers := moderators(t, 4)
	agg, err := NewAggregator(testMsg, set)
	require.NoError(t, err)

	forged := judge(t, signers[0], modcert.StatusReject)
	forged.Status = modcert.StatusApprove
	_, err = agg.Add(forged)
	require.ErrorIs(t, err, ErrInvalidCert)

	_, stranger := moderators(t, 1)
	_, err = agg.Add(judge(t, stranger[0], modcert.StatusApprove))
	require.ErrorIs(t, err, ErrUnknownModerator)

	approve, reject, abstain := agg.Counts()
	assert.Zero(t, approve+reject+abstain)
	assert.Empty(t, agg.Certs())
}

func TestAggregatorLastWriteWins(t *testing.T) {
	set, signers := moderators(t, 4)
	agg, err := NewAggregator(testMsg, set)
	require.NoError(t, err)

	_, err = agg.Add(judge(t, signers[0], modcert.StatusReject))
	require.NoError(t, err)
	_, err = agg.Add(judge(t, signers[0], modcert.StatusApprove))
	require.NoError(t, err)
	// replaying the same approval must not inflate the count
	_, err = agg.Add(judge(t, signers[0], modcert.StatusApprove))
	require.NoError(t, err)

	approve, reject, _ := agg.Counts()
	assert.Equal(t, 1, approve)
	assert.Equal(t, 0, reject)
	assert.Equal(t, Pending, agg.Decision())

	certs := agg.Certs()
	require.Len(t, certs, 1)
	assert.Equal(t, modcert.StatusApprove, certs[0].Status)
}

func TestAggregatorMonotonic(t *testing.T) {
	set, signers := moderators(t, 4)
	agg, err := NewAggregator(testMsg, set)
	require.NoError(t, err)

	for _, s := range signers[:3] {
		_, err = agg.Add(judge(t, s, modcert.StatusApprove))
		require.NoError(t, err)
	}
	require.Equal(t, Approved, agg.Decision())

	d, err := agg.Add(judge(t, signers[0], modcert.StatusReject))
	require.ErrorIs(t, err, ErrFinalized)
	assert.Equal(t, Approved, d)
	d, err = agg.Add(judge(t, signers[3], modcert.StatusReject))
	require.ErrorIs(t, err, ErrFinalized)
	assert.Equal(t, Approved, d)

	assert.Equal(t, Approved, agg.Expire())
	assert.Len(t, agg.Late(), 2)
	for _, mc := range agg.Certs() {
		assert.Equal(t, modcert.StatusApprove, mc.Status)
	}
}

func TestAggregatorAbstentions(t *testing.T) {
	set, signers := moderators(t, 4)

	t.Run("all unreachable", func(t *testing.T) {
		agg, err := NewAggregator(testMsg, set)
		require.NoError(t, err)
		for _, s := range signers {
			agg.Abstain(s.ID())
		}
		assert.Equal(t, TimedOut, agg.Decision())
	})

	t.Run("tolerated while reachable", func(t *testing.T) {
		agg, err := NewAggregator(testMsg, set)
		require.NoError(t, err)
		assert.Equal(t, Pending, agg.Abstain(signers[3].ID()))
		for _, s := range signers[:3] {
			_, err = agg.Add(judge(t, s, modcert.StatusApprove))
			require.NoError(t, err)
		}
		assert.Equal(t, Approved, agg.Decision())
	})

	t.Run("reject with abstention", func(t *testing.T) {
		agg, err := NewAggregator(testMsg, set)
		require.NoError(t, err)
		agg.Abstain(signers[3].ID())
		d, err := agg.Add(judge(t, signers[0], modcert.StatusReject))
		require.NoError(t, err)
		assert.Equal(t, Rejected, d)
	})

	t.Run("expire", func(t *testing.T) {
		agg, err := NewAggregator(testMsg, set)
		require.NoError(t, err)
		assert.Equal(t, TimedOut, agg.Expire())
	})
}

// TestAggregatorCommutative folds the same judgments in random orders and expects the same result.
func TestAggregatorCommutative(t *testing.T) {
	set, signers := moderators(t, 7)
	cases := [][]modcert.Status{
		{1, 1, 1, 1, 1, 0, 0},
		{1, 1, 1, 0, 0, 0, 1},
		{0, 0, 0, 1, 1, 1, 1},
		{1, 1, 1, 1, 0, 0, 0},
	}

	for _, statuses := range cases {
		certs := make([]modcert.ModCert, len(statuses))
		for i, st := range statuses {
			certs[i] = judge(t, signers[i], st)
		}

		var expected Decision
		for round := range 20 {
			rand.Shuffle(len(certs), func(i, j int) { certs[i], certs[j] = certs[j], certs[i] })
			agg, err := NewAggregator(testMsg, set)
			require.NoError(t, err)
			for _, mc := range certs {
				_, _ = agg.Add(mc)
			}
			agg.Expire()
			if round == 0 {
				expected = agg.Decision()
				continue
			}
			assert.Equal(t, expected, agg.Decision(), statuses)
		}
	}
}
