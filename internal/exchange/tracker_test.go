package exchange

import (
	"math"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tendermint/tm-exchange/config"
	"github.com/tendermint/tm-exchange/internal/eth"
	"github.com/tendermint/tm-exchange/types"
)

type fixedHead uint64

func (h fixedHead) Head() (uint64, bool) { return uint64(h), true }

var (
	peerA = types.NodeID("aa00000000000000000000000000000000000000000000000000000000000000")
	peerB = types.NodeID("bb00000000000000000000000000000000000000000000000000000000000000")
)

func newTestTracker(head HeadProvider) *Tracker {
	return NewTracker(config.TestExchangeConfig(), head)
}

func TestTrackerExpectedItemCount(t *testing.T) {
	tracker := newTestTracker(nil)

	n, ok := tracker.ExpectedItemCount(HeadersRequest{Origin: eth.ByNumber(10), Amount: 5, Skip: 1})
	require.True(t, ok)
	require.Equal(t, 5, n)

	n, ok = tracker.ExpectedItemCount(HeadersRequest{Origin: eth.ByNumber(4), Amount: 10, Skip: 1, Reverse: true})
	require.True(t, ok)
	require.Equal(t, 3, n)

	_, ok = tracker.ExpectedItemCount(HeadersRequest{Origin: eth.ByHash(common.Hash{1}), Amount: 5})
	require.False(t, ok)

	n, ok = tracker.ExpectedItemCount(NewNodeDataRequest([]common.Hash{{1}, {2}, {3}}))
	require.True(t, ok)
	require.Equal(t, 3, n)

	// the chain head bounds what a peer can return
	tracker = newTestTracker(fixedHead(12))
	n, ok = tracker.ExpectedItemCount(HeadersRequest{Origin: eth.ByNumber(10), Amount: 5, Skip: 1})
	require.True(t, ok)
	require.Equal(t, 2, n)

	n, _ = tracker.ExpectedItemCount(HeadersRequest{Origin: eth.ByNumber(0), Amount: math.MaxUint64})
	require.Equal(t, 13, n)
}

func TestTrackerRecord(t *testing.T) {
	tracker := newTestTracker(nil)
	now := time.Now()

	require.False(t, tracker.Record(peerA, KindBlockHeaders, Sample{At: now, Elapsed: time.Second, Returned: 10}),
		"samples of unknown peers are ignored")

	tracker.AddPeer(peerA)
	require.True(t, tracker.Record(peerA, KindBlockHeaders, Sample{
		At: now, Elapsed: time.Second, Expected: 20, ExpectedKnown: true, Returned: 10,
	}))

	st, ok := tracker.Stats(peerA, KindBlockHeaders)
	require.True(t, ok)
	require.EqualValues(t, 1, st.Samples)
	require.Equal(t, time.Second, st.RoundTrip)
	require.Equal(t, 10.0, st.ItemsPerRequest)
	require.Equal(t, 10.0, st.Throughput)
	require.Equal(t, 0.5, st.Completeness)

	require.True(t, tracker.Record(peerA, KindBlockHeaders, Sample{
		At: now.Add(time.Second), Elapsed: 2 * time.Second, Returned: 40,
	}))
	st, _ = tracker.Stats(peerA, KindBlockHeaders)
	require.EqualValues(t, 2, st.Samples)
	assert.InDelta(t, 0.9*float64(time.Second)+0.1*float64(2*time.Second), float64(st.RoundTrip), 1)
	assert.InDelta(t, 13.0, st.ItemsPerRequest, 1e-9)
	assert.InDelta(t, 11.0, st.Throughput, 1e-9)
	assert.Equal(t, 0.5, st.Completeness, "unknown expectations leave completeness alone")

	// older samples are dropped
	require.False(t, tracker.Record(peerA, KindBlockHeaders, Sample{At: now, Elapsed: time.Millisecond, Returned: 1}))
	st2, _ := tracker.Stats(peerA, KindBlockHeaders)
	require.Equal(t, st, st2)

	// other kinds are tracked separately
	_, has := tracker.PeerStats(peerA)[KindReceipts]
	require.False(t, has)
	require.Len(t, tracker.PeerStats(peerA), 1)

	tracker.RemovePeer(peerA)
	_, ok = tracker.Stats(peerA, KindBlockHeaders)
	require.False(t, ok)
	require.Nil(t, tracker.PeerStats(peerA))
}

func TestTrackerConvergence(t *testing.T) {
	tracker := newTestTracker(nil)
	tracker.AddPeer(peerA)

	now := time.Now()
	tracker.Record(peerA, KindNodeData, Sample{At: now, Elapsed: time.Second, Returned: 1000})

	for i := 1; i <= 200; i++ {
		tracker.Record(peerA, KindNodeData, Sample{
			At:       now.Add(time.Duration(i) * time.Millisecond),
			Elapsed:  100 * time.Millisecond,
			Returned: 10,
		})
	}
	st, _ := tracker.Stats(peerA, KindNodeData)
	assert.InDelta(t, 100.0, st.Throughput, 0.01)
	assert.InDelta(t, float64(100*time.Millisecond), float64(st.RoundTrip), float64(time.Millisecond))
	assert.InDelta(t, 10.0, st.ItemsPerRequest, 0.01)
}

func TestTrackerRecommendedBatchSize(t *testing.T) {
	cfg := config.TestExchangeConfig()
	cfg.TargetRTT = time.Second
	cfg.MaxHeaderFetch = 192
	tracker := NewTracker(cfg, nil)

	// no history: a quarter of the maximum
	require.Equal(t, 48, tracker.RecommendedBatchSize(peerA, KindBlockHeaders))

	tracker.AddPeer(peerA)
	require.Equal(t, 48, tracker.RecommendedBatchSize(peerA, KindBlockHeaders))

	now := time.Now()
	tracker.Record(peerA, KindBlockHeaders, Sample{At: now, Elapsed: time.Second, Returned: 20})
	require.Equal(t, 21, tracker.RecommendedBatchSize(peerA, KindBlockHeaders))

	tracker.AddPeer(peerB)
	tracker.Record(peerB, KindBlockHeaders, Sample{At: now, Elapsed: 10 * time.Millisecond, Returned: 100})
	require.Equal(t, 192, tracker.RecommendedBatchSize(peerB, KindBlockHeaders))

	tracker.Record(peerB, KindBlockBodies, Sample{At: now.Add(time.Second), Elapsed: time.Second, Returned: 0})
	require.Equal(t, 1, tracker.RecommendedBatchSize(peerB, KindBlockBodies))
}

func TestTrackerStampsSamples(t *testing.T) {
	tracker := newTestTracker(nil)
	tracker.AddPeer(peerA)

	clock := time.Unix(1000, 0)
	tracker.now = func() time.Time { return clock }

	require.True(t, tracker.Record(peerA, KindReceipts, Sample{Elapsed: time.Second, Returned: 1}))
	st, _ := tracker.Stats(peerA, KindReceipts)
	require.Equal(t, clock, st.LastUpdate)

	// explicit timestamps are checked against the stamped ones
	require.False(t, tracker.Record(peerA, KindNodeData, Sample{At: clock.Add(-time.Second), Elapsed: time.Second}))
	require.True(t, tracker.Record(peerA, KindNodeData, Sample{At: clock, Elapsed: time.Second}))
}
