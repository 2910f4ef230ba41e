// Package simulation runs the exchange against in-memory peers serving a
// generated chain, fetching every header, body, receipt list and state node
// with the batch sizes the tracker recommends.
package simulation

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/mroth/weightedrand"
	"golang.org/x/sync/errgroup"

	"github.com/tendermint/tm-exchange/config"
	"github.com/tendermint/tm-exchange/internal/eth"
	"github.com/tendermint/tm-exchange/internal/exchange"
	"github.com/tendermint/tm-exchange/internal/p2p"
	"github.com/tendermint/tm-exchange/internal/test/factory"
	"github.com/tendermint/tm-exchange/libs/log"
	"github.com/tendermint/tm-exchange/libs/service"
	"github.com/tendermint/tm-exchange/types"
)

const (
	maxWeight = 1_000_000
	idleWait  = 5 * time.Millisecond
)

var errNoPeers = errors.New("no usable peers left")

// Options describes the simulated network.
type Options struct {
	Peers   int
	Blocks  int
	Seed    int64
	Workers int

	// Latency is the one-way delay to the fastest peer; peer i is i+1
	// times slower.
	Latency time.Duration

	// MaxServe caps the items per response of the first peer; peer i
	// serves i+1 times as many. Zero means no cap.
	MaxServe int

	// Faulty is the number of peers that corrupt their responses.
	Faulty int
}

// DefaultOptions returns a small network that completes in seconds.
func DefaultOptions() Options {
	return Options{
		Peers:    4,
		Blocks:   512,
		Seed:     1,
		Workers:  4,
		Latency:  20 * time.Millisecond,
		MaxServe: 32,
		Faulty:   1,
	}
}

// Validate checks the options for obvious mistakes.
func (o Options) Validate() error {
	switch {
	case o.Peers < 1:
		return fmt.Errorf("need at least one peer, got %d", o.Peers)
	case o.Blocks < 1:
		return fmt.Errorf("need at least one block, got %d", o.Blocks)
	case o.Workers < 1:
		return fmt.Errorf("need at least one worker, got %d", o.Workers)
	case o.Faulty < 0 || o.Faulty >= o.Peers:
		return fmt.Errorf("faulty peers must be in [0, %d), got %d", o.Peers, o.Faulty)
	case o.Latency < 0 || o.MaxServe < 0:
		return errors.New("latency and max serve can't be negative")
	}
	return nil
}

// PeerReport is what the simulation learned about one peer.
type PeerReport struct {
	ID     types.NodeID
	Faulty bool
	Banned bool
	Stats  map[exchange.Kind]exchange.Stats
}

// Report summarizes a simulation run.
type Report struct {
	Headers    int
	Bodies     int
	Receipts   int
	Nodes      int
	Mismatches int
	Elapsed    time.Duration
	Peers      []PeerReport
}

type simulation struct {
	logger  log.Logger
	chain   *factory.Chain
	reactor *exchange.Reactor
	workers int

	mtx    sync.Mutex
	peers  []types.NodeID
	faulty map[types.NodeID]bool
	banned map[types.NodeID]bool

	headers map[uint64]*ethtypes.Header
	report  Report
}

// Run builds the network described by opts, fetches the whole chain from it
// and reports the outcome.
func Run(ctx context.Context, logger log.Logger, cfg *config.ExchangeConfig, opts Options, metrics *exchange.Metrics) (*Report, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	chain, err := factory.MakeChain(opts.Blocks, opts.Seed)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	network := p2p.NewMemoryNetwork(logger.With("module", "network"), 256)
	defer network.Close()

	localID, err := newNodeID()
	if err != nil {
		return nil, err
	}
	local := network.AddNode(localID)
	reactor := exchange.NewReactor(logger.With("module", "exchange"), cfg, local.Channel, local.PeerUpdates, chain, metrics)
	if err := reactor.Start(ctx); err != nil {
		return nil, err
	}
	defer func() {
		if err := reactor.Stop(); err != nil && !errors.Is(err, service.ErrAlreadyStopped) {
			logger.Error("failed to stop exchange reactor", "err", err)
		}
	}()

	s := &simulation{
		logger:  logger.With("module", "simulation"),
		chain:   chain,
		reactor: reactor,
		workers: opts.Workers,
		faulty:  make(map[types.NodeID]bool),
		banned:  make(map[types.NodeID]bool),
		headers: make(map[uint64]*ethtypes.Header, opts.Blocks),
	}

	latencies := make(map[types.NodeID]time.Duration, opts.Peers)
	for i := 0; i < opts.Peers; i++ {
		id, err := newNodeID()
		if err != nil {
			return nil, err
		}
		node := network.AddNode(id)
		responder := factory.NewResponder(logger.With("module", "responder", "peer", id.ShortString()), chain, node.Channel)
		if opts.MaxServe > 0 {
			responder.SetMaxItems(opts.MaxServe * (i + 1))
		}
		if i < opts.Faulty {
			responder.SetTamper(corrupt)
			s.faulty[id] = true
		}
		go responder.Run(ctx)

		latencies[id] = opts.Latency * time.Duration(i+1)
		s.peers = append(s.peers, id)
	}
	network.SetLatency(func(from, to types.NodeID) time.Duration {
		if d, ok := latencies[from]; ok {
			return d
		}
		return latencies[to]
	})
	for _, id := range s.peers {
		network.Connect(localID, id)
	}
	if err := s.awaitPeers(ctx); err != nil {
		return nil, err
	}

	start := time.Now()
	if err := s.run(ctx); err != nil {
		return nil, err
	}
	s.report.Elapsed = time.Since(start)
	s.verify()

	for _, id := range s.peers {
		s.report.Peers = append(s.report.Peers, PeerReport{
			ID:     id,
			Faulty: s.faulty[id],
			Banned: s.banned[id],
			Stats:  reactor.PeerStats(id),
		})
	}
	return &s.report, nil
}

func newNodeID() (types.NodeID, error) {
	key, err := crypto.GenerateKey()
	if err != nil {
		return "", err
	}
	return types.NodeIDFromPubKey(&key.PublicKey), nil
}

func (s *simulation) awaitPeers(ctx context.Context) error {
	ticker := time.NewTicker(idleWait)
	defer ticker.Stop()
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		connected := 0
		for _, id := range s.peers {
			if s.reactor.HasPeer(id) {
				connected++
			}
		}
		if connected == len(s.peers) {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (s *simulation) run(ctx context.Context) error {
	head, _ := s.chain.Head()
	numbers := make([]uint64, 0, head+1)
	for n := uint64(0); n <= head; n++ {
		numbers = append(numbers, n)
	}
	if err := runStage(ctx, s, exchange.KindBlockHeaders, newWorkQueue(numbers), s.fetchHeaders); err != nil {
		return fmt.Errorf("fetching headers: %w", err)
	}

	headers := s.sortedHeaders()
	if err := runStage(ctx, s, exchange.KindBlockBodies, newWorkQueue(headers), s.fetchBodies); err != nil {
		return fmt.Errorf("fetching bodies: %w", err)
	}
	if err := runStage(ctx, s, exchange.KindReceipts, newWorkQueue(headers), s.fetchReceipts); err != nil {
		return fmt.Errorf("fetching receipts: %w", err)
	}
	if err := runStage(ctx, s, exchange.KindNodeData, newWorkQueue(s.chain.NodeHashes()), s.fetchNodes); err != nil {
		return fmt.Errorf("fetching state: %w", err)
	}
	return nil
}

type fetchFunc[T any] func(ctx context.Context, peer *exchange.PeerExchange, batch []T) (rest []T, err error)

func runStage[T any](ctx context.Context, s *simulation, kind exchange.Kind, q *workQueue[T], fetch fetchFunc[T]) error {
	g, ctx := errgroup.WithContext(ctx)
	for w := 0; w < s.workers; w++ {
		g.Go(func() error {
			for !q.finished() {
				if err := ctx.Err(); err != nil {
					return err
				}
				peer, err := s.pickPeer(kind)
				if err != nil {
					return err
				}
				batch := q.take(s.reactor.RecommendedBatchSize(peer, kind))
				if len(batch) == 0 {
					select {
					case <-ctx.Done():
						return ctx.Err()
					case <-time.After(idleWait):
					}
					continue
				}

				rest, err := fetch(ctx, s.reactor.Peer(peer), batch)
				q.done(rest)
				if err != nil {
					if ctx.Err() != nil {
						return ctx.Err()
					}
					s.handleError(peer, kind, err)
				}
			}
			return nil
		})
	}
	return g.Wait()
}

// pickPeer chooses a usable peer at random, weighted by its throughput for
// kind.
func (s *simulation) pickPeer(kind exchange.Kind) (types.NodeID, error) {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	choices := make([]weightedrand.Choice, 0, len(s.peers))
	for _, id := range s.peers {
		if s.banned[id] {
			continue
		}
		weight := uint(1)
		if st, ok := s.reactor.Tracker().Stats(id, kind); ok && st.HasHistory() {
			weight += uint(minFloat(st.Throughput, maxWeight))
		}
		choices = append(choices, weightedrand.NewChoice(id, weight))
	}
	if len(choices) == 0 {
		return "", errNoPeers
	}
	chooser, err := weightedrand.NewChooser(choices...)
	if err != nil {
		return "", err
	}
	return chooser.Pick().(types.NodeID), nil
}

func (s *simulation) handleError(peer types.NodeID, kind exchange.Kind, err error) {
	var (
		verr exchange.ErrValidation
		lost exchange.ErrPeerConnectionLost
	)
	switch {
	case errors.As(err, &verr), errors.As(err, &lost):
		s.logger.Info("banning peer", "peer", peer.ShortString(), "kind", kind, "err", err)
		s.mtx.Lock()
		s.banned[peer] = true
		s.mtx.Unlock()
	default:
		s.logger.Debug("request failed", "peer", peer.ShortString(), "kind", kind, "err", err)
	}
}

func (s *simulation) fetchHeaders(ctx context.Context, peer *exchange.PeerExchange, batch []uint64) ([]uint64, error) {
	// only a contiguous run can be asked for in one request
	run := 1
	for run < len(batch) && batch[run] == batch[run-1]+1 {
		run++
	}
	headers, err := peer.GetBlockHeaders(ctx, eth.ByNumber(batch[0]), uint64(run), 0, false, 0)
	if err != nil {
		return batch, err
	}

	s.mtx.Lock()
	for _, h := range headers {
		s.headers[h.Number.Uint64()] = h
	}
	s.report.Headers += len(headers)
	s.mtx.Unlock()
	return batch[len(headers):], nil
}

func (s *simulation) fetchBodies(ctx context.Context, peer *exchange.PeerExchange, batch []*ethtypes.Header) ([]*ethtypes.Header, error) {
	bundles, err := peer.GetBlockBodies(ctx, batch, 0)
	if err != nil {
		return batch, err
	}
	received := make([]*ethtypes.Header, len(bundles))
	for i, b := range bundles {
		received[i] = b.Header
	}

	s.mtx.Lock()
	s.report.Bodies += len(bundles)
	s.mtx.Unlock()
	return missingHeaders(batch, received), nil
}

func (s *simulation) fetchReceipts(ctx context.Context, peer *exchange.PeerExchange, batch []*ethtypes.Header) ([]*ethtypes.Header, error) {
	bundles, err := peer.GetReceipts(ctx, batch, 0)
	if err != nil {
		return batch, err
	}
	received := make([]*ethtypes.Header, len(bundles))
	for i, b := range bundles {
		received[i] = b.Header
	}

	s.mtx.Lock()
	s.report.Receipts += len(bundles)
	s.mtx.Unlock()
	return missingHeaders(batch, received), nil
}

func (s *simulation) fetchNodes(ctx context.Context, peer *exchange.PeerExchange, batch []common.Hash) ([]common.Hash, error) {
	nodes, err := peer.GetNodeData(ctx, batch, 0)
	if err != nil {
		return batch, err
	}

	var rest []common.Hash
	for _, hash := range batch {
		if _, ok := nodes[hash]; !ok {
			rest = append(rest, hash)
		}
	}

	s.mtx.Lock()
	s.report.Nodes += len(nodes)
	s.mtx.Unlock()
	return rest, nil
}

// missingHeaders returns the requested headers that were not received. Each
// received header accounts for one requested header.
func missingHeaders(requested, received []*ethtypes.Header) []*ethtypes.Header {
	got := make(map[*ethtypes.Header]int, len(received))
	for _, h := range received {
		got[h]++
	}
	var missing []*ethtypes.Header
	for _, h := range requested {
		if got[h] > 0 {
			got[h]--
			continue
		}
		missing = append(missing, h)
	}
	return missing
}

func (s *simulation) sortedHeaders() []*ethtypes.Header {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	headers := make([]*ethtypes.Header, 0, len(s.headers))
	for _, h := range s.headers {
		headers = append(headers, h)
	}
	sort.Slice(headers, func(i, j int) bool {
		return headers[i].Number.Cmp(headers[j].Number) < 0
	})
	return headers
}

// verify counts fetched headers that differ from the generated chain.
func (s *simulation) verify() {
	for number, h := range s.headers {
		if want := s.chain.HeaderByNumber(number); want == nil || want.Hash() != h.Hash() {
			s.report.Mismatches++
		}
	}
}

// corrupt is the tamper function of faulty peers.
func corrupt(resp eth.Packet) eth.Packet {
	switch msg := resp.(type) {
	case *eth.BlockHeadersPacket:
		for i, j := 0, len(msg.Headers)-1; i < j; i, j = i+1, j-1 {
			msg.Headers[i], msg.Headers[j] = msg.Headers[j], msg.Headers[i]
		}
	case *eth.BlockBodiesPacket:
		msg.Bodies = append(msg.Bodies, &ethtypes.Body{Uncles: []*ethtypes.Header{{Extra: []byte("bogus")}}})
	case *eth.ReceiptsPacket:
		msg.Receipts = append(msg.Receipts, []*ethtypes.Receipt{{Status: ethtypes.ReceiptStatusFailed, Logs: []*ethtypes.Log{}}})
	case *eth.NodeDataPacket:
		msg.Data = append(msg.Data, []byte("bogus"))
	}
	return resp
}

func minFloat(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}
