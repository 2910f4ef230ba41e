package exchange

import (
	"math"
	"sync"
	"time"

	"github.com/tendermint/tm-exchange/config"
	"github.com/tendermint/tm-exchange/types"
)

// HeadProvider reports the number of the local chain head, if known.
type HeadProvider interface {
	Head() (uint64, bool)
}

// Sample is the measurement of one successful exchange.
type Sample struct {
	// At is when the sample was taken. Samples older than the last one
	// recorded for the peer are dropped. A zero At is stamped with the
	// current time when the sample is recorded.
	At       time.Time
	Elapsed  time.Duration
	Expected int
	// ExpectedKnown is false when the request's cardinality could not be
	// determined, e.g. for hash-anchored header requests.
	ExpectedKnown bool
	Returned      int
}

// Stats holds the moving averages kept for one peer and kind.
type Stats struct {
	RoundTrip       time.Duration
	ItemsPerRequest float64
	Throughput      float64 // items per second
	Completeness    float64 // returned / expected
	Samples         uint64
	LastUpdate      time.Time

	completenessSamples uint64
}

// HasHistory reports whether at least one sample was recorded.
func (s Stats) HasHistory() bool { return s.Samples > 0 }

type batchLimits struct {
	min, max, def int
}

func newBatchLimits(max int) batchLimits {
	l := batchLimits{min: 1, max: max}
	if max < 1 {
		l.max = 1
	}
	l.def = l.max / 4
	if l.def < l.min {
		l.def = l.min
	}
	return l
}

func (l batchLimits) clamp(n float64) int {
	switch {
	case math.IsNaN(n) || n < float64(l.min):
		return l.min
	case n > float64(l.max):
		return l.max
	default:
		return int(n)
	}
}

type peerPerformance struct {
	mtx   sync.Mutex
	last  time.Time
	stats [numKinds]Stats
}

// ExpectedCountFunc returns the number of items a request should yield and
// whether that number is known.
type ExpectedCountFunc func(req Request, head HeadProvider) (int, bool)

// Tracker keeps per peer, per kind moving averages of round trip time, items
// per response, throughput and completeness, and uses them to recommend
// request sizes. All methods are safe for concurrent use and never fail.
type Tracker struct {
	impact    float64
	targetRTT time.Duration
	head      HeadProvider
	limits    [numKinds]batchLimits
	counters  [numKinds]ExpectedCountFunc
	now       func() time.Time

	peers sync.Map // types.NodeID -> *peerPerformance
}

// NewTracker creates a tracker. head may be nil.
func NewTracker(cfg *config.ExchangeConfig, head HeadProvider) *Tracker {
	return &Tracker{
		impact:    cfg.MeasurementImpact,
		targetRTT: cfg.TargetRTT,
		head:      head,
		limits: [numKinds]batchLimits{
			KindBlockHeaders: newBatchLimits(cfg.MaxHeaderFetch),
			KindBlockBodies:  newBatchLimits(cfg.MaxBodyFetch),
			KindReceipts:     newBatchLimits(cfg.MaxReceiptFetch),
			KindNodeData:     newBatchLimits(cfg.MaxNodeDataFetch),
		},
		counters: [numKinds]ExpectedCountFunc{
			KindBlockHeaders: headersExpectedCount,
			KindBlockBodies:  hashesExpectedCount,
			KindReceipts:     hashesExpectedCount,
			KindNodeData:     hashesExpectedCount,
		},
		now: time.Now,
	}
}

func headersExpectedCount(req Request, head HeadProvider) (int, bool) {
	r, ok := req.(HeadersRequest)
	if !ok {
		return 0, false
	}
	seq, ok := r.Sequence()
	if !ok {
		return 0, false
	}
	n := seq.Len()
	if head != nil {
		if h, ok := head.Head(); ok {
			n = seq.LenUpTo(h)
		}
	}
	if n > math.MaxInt32 {
		n = math.MaxInt32
	}
	return int(n), true
}

func hashesExpectedCount(req Request, _ HeadProvider) (int, bool) {
	r, ok := req.(HashesRequest)
	if !ok {
		return 0, false
	}
	return r.Len(), true
}

// ExpectedItemCount returns how many items a complete response to req
// contains, if that can be determined up front.
func (t *Tracker) ExpectedItemCount(req Request) (int, bool) {
	kind := req.Kind()
	if kind >= numKinds {
		return 0, false
	}
	return t.counters[kind](req, t.head)
}

// AddPeer starts tracking peer. Samples for untracked peers are ignored.
func (t *Tracker) AddPeer(peer types.NodeID) {
	t.peers.LoadOrStore(peer, &peerPerformance{})
}

// RemovePeer discards everything known about peer.
func (t *Tracker) RemovePeer(peer types.NodeID) {
	t.peers.Delete(peer)
}

// Record folds a sample into the peer's averages for kind. It reports
// whether the sample was used.
func (t *Tracker) Record(peer types.NodeID, kind Kind, s Sample) bool {
	if kind >= numKinds {
		return false
	}
	v, ok := t.peers.Load(peer)
	if !ok {
		return false
	}
	p := v.(*peerPerformance)

	p.mtx.Lock()
	defer p.mtx.Unlock()

	if s.At.IsZero() {
		s.At = t.now()
	}
	if s.At.Before(p.last) {
		return false
	}
	p.last = s.At

	elapsed := s.Elapsed
	if elapsed <= 0 {
		elapsed = time.Nanosecond
	}
	throughput := float64(s.Returned) / elapsed.Seconds()

	st := &p.stats[kind]
	if st.Samples == 0 {
		st.RoundTrip = elapsed
		st.ItemsPerRequest = float64(s.Returned)
		st.Throughput = throughput
	} else {
		st.RoundTrip = time.Duration(t.ewma(float64(st.RoundTrip), float64(elapsed)))
		st.ItemsPerRequest = t.ewma(st.ItemsPerRequest, float64(s.Returned))
		st.Throughput = t.ewma(st.Throughput, throughput)
	}

	if s.ExpectedKnown && s.Expected > 0 {
		completeness := float64(s.Returned) / float64(s.Expected)
		if st.completenessSamples == 0 {
			st.Completeness = completeness
		} else {
			st.Completeness = t.ewma(st.Completeness, completeness)
		}
		st.completenessSamples++
	}

	st.Samples++
	st.LastUpdate = s.At
	return true
}

func (t *Tracker) ewma(old, sample float64) float64 {
	return (1-t.impact)*old + t.impact*sample
}

// Stats returns the averages for peer and kind. The second result is false
// if the peer is not tracked.
func (t *Tracker) Stats(peer types.NodeID, kind Kind) (Stats, bool) {
	if kind >= numKinds {
		return Stats{}, false
	}
	v, ok := t.peers.Load(peer)
	if !ok {
		return Stats{}, false
	}
	p := v.(*peerPerformance)
	p.mtx.Lock()
	defer p.mtx.Unlock()
	return p.stats[kind], true
}

// PeerStats returns the averages for every kind that has history.
func (t *Tracker) PeerStats(peer types.NodeID) map[Kind]Stats {
	v, ok := t.peers.Load(peer)
	if !ok {
		return nil
	}
	p := v.(*peerPerformance)
	p.mtx.Lock()
	defer p.mtx.Unlock()

	stats := make(map[Kind]Stats)
	for _, kind := range Kinds {
		if p.stats[kind].HasHistory() {
			stats[kind] = p.stats[kind]
		}
	}
	return stats
}

// RecommendedBatchSize returns how many items to ask peer for in one request
// of the given kind: as many as it is expected to deliver within the target
// round trip time, clamped to the kind's limits. Without history it returns
// a conservative default.
func (t *Tracker) RecommendedBatchSize(peer types.NodeID, kind Kind) int {
	if kind >= numKinds {
		return 1
	}
	limits := t.limits[kind]
	st, ok := t.Stats(peer, kind)
	if !ok || !st.HasHistory() {
		return limits.def
	}
	return limits.clamp(1 + st.Throughput*t.targetRTT.Seconds())
}
