package exchange

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/tendermint/tm-exchange/config"
	"github.com/tendermint/tm-exchange/internal/eth"
	"github.com/tendermint/tm-exchange/internal/p2p"
	"github.com/tendermint/tm-exchange/libs/log"
	"github.com/tendermint/tm-exchange/libs/service"
	"github.com/tendermint/tm-exchange/types"
)

var _ service.Service = (*Reactor)(nil)

// peerErrorQueueSize bounds the peer error reports waiting to be handed to
// the p2p layer.
const peerErrorQueueSize = 64

// Reactor owns the exchange channel. It routes every inbound response to
// the waiter expecting it, keeps the set of connected peers in step with
// peer updates and hands out PeerExchange handles for issuing requests.
type Reactor struct {
	*service.BaseService
	logger log.Logger

	cfg         *config.ExchangeConfig
	channel     *p2p.Channel
	peerUpdates *p2p.PeerUpdates
	registry    *Registry
	tracker     *Tracker
	metrics     *Metrics
	peerErrCh   chan p2p.PeerError

	lastRequestID uint64
}

// NewReactor returns a reactor using channel for exchange messages. head
// may be nil if the local chain head is unknown.
func NewReactor(
	logger log.Logger,
	cfg *config.ExchangeConfig,
	channel *p2p.Channel,
	peerUpdates *p2p.PeerUpdates,
	head HeadProvider,
	metrics *Metrics,
) *Reactor {
	if metrics == nil {
		metrics = NopMetrics()
	}
	r := &Reactor{
		logger:      logger,
		cfg:         cfg,
		channel:     channel,
		peerUpdates: peerUpdates,
		registry:    NewRegistry(),
		tracker:     NewTracker(cfg, head),
		metrics:     metrics,
		peerErrCh:   make(chan p2p.PeerError, peerErrorQueueSize),
	}
	r.BaseService = service.NewBaseService(logger, "Exchange", r)
	return r
}

// OnStart starts the inbound message, peer update and peer error routines.
// All of them stop when ctx is canceled.
func (r *Reactor) OnStart(ctx context.Context) error {
	go r.processChannel(ctx)
	go r.processPeerUpdates(ctx)
	go r.processPeerErrors(ctx)
	return nil
}

// OnStop fails every pending request.
func (r *Reactor) OnStop() {
	if n := r.registry.RemoveAll(); n > 0 {
		r.logger.Debug("failed pending requests on stop", "count", n)
	}
	r.metrics.PendingRequests.Set(0)
}

// Peer returns a handle for issuing requests to peer. Requests fail with
// ErrPeerConnectionLost unless the peer is connected.
func (r *Reactor) Peer(peer types.NodeID) *PeerExchange {
	return &PeerExchange{reactor: r, peer: peer}
}

// HasPeer reports whether peer is connected.
func (r *Reactor) HasPeer(peer types.NodeID) bool {
	return r.registry.HasPeer(peer)
}

// RecommendedBatchSize returns how many items of kind to request from peer.
func (r *Reactor) RecommendedBatchSize(peer types.NodeID, kind Kind) int {
	return r.tracker.RecommendedBatchSize(peer, kind)
}

// PeerStats returns the performance averages of peer for every kind with
// history.
func (r *Reactor) PeerStats(peer types.NodeID) map[Kind]Stats {
	return r.tracker.PeerStats(peer)
}

// Tracker returns the reactor's performance tracker.
func (r *Reactor) Tracker() *Tracker { return r.tracker }

func (r *Reactor) nextRequestID() uint64 {
	// zero is reserved for requests without an id
	for {
		if id := atomic.AddUint64(&r.lastRequestID, 1); id != 0 {
			return id
		}
	}
}

func (r *Reactor) handleMessage(envelope *p2p.Envelope, received time.Time) error {
	msg := envelope.Message
	if !eth.IsResponse(msg.Code()) {
		// serving requests is the job of another reactor
		r.logger.Debug("ignoring request", "peer", envelope.From, "code", msg.Code())
		return nil
	}
	return r.registry.Deliver(envelope.From, msg, received)
}

// processChannel delivers inbound responses to their waiters in arrival
// order.
func (r *Reactor) processChannel(ctx context.Context) {
	iter := r.channel.Receive(ctx)
	for iter.Next(ctx) {
		envelope := iter.Envelope()
		err := r.handleMessage(envelope, time.Now())
		switch {
		case errors.Is(err, errUnsolicitedResponse):
			kind, _ := kindOfResponse(envelope.Message.Code())
			r.metrics.UnsolicitedResponses.With("kind", kind.String()).Add(1)
			r.logger.Debug("dropping unsolicited response",
				"peer", envelope.From, "kind", kind, "request_id", envelope.Message.ID())
		case err != nil:
			r.logger.Error("failed to process message", "peer", envelope.From, "err", err)
		}
		r.metrics.PendingRequests.Set(float64(r.registry.Len()))
	}
}

func (r *Reactor) processPeerUpdate(peerUpdate p2p.PeerUpdate) {
	r.logger.Debug("received peer update", "peer", peerUpdate.NodeID, "status", peerUpdate.Status)

	switch peerUpdate.Status {
	case p2p.PeerStatusUp:
		r.registry.AddPeer(peerUpdate.NodeID)
		r.tracker.AddPeer(peerUpdate.NodeID)

	case p2p.PeerStatusDown:
		if n := r.registry.RemovePeer(peerUpdate.NodeID); n > 0 {
			r.logger.Debug("failed pending requests of disconnected peer", "peer", peerUpdate.NodeID, "count", n)
		}
		r.tracker.RemovePeer(peerUpdate.NodeID)
		r.metrics.PendingRequests.Set(float64(r.registry.Len()))
	}
}

func (r *Reactor) processPeerUpdates(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-r.peerUpdates.Done():
			return
		case peerUpdate := <-r.peerUpdates.Updates():
			r.processPeerUpdate(peerUpdate)
		}
	}
}

// processPeerErrors forwards reports of misbehaving peers to the p2p layer,
// so callers never wait on it.
func (r *Reactor) processPeerErrors(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case pe := <-r.peerErrCh:
			if err := r.channel.SendError(ctx, pe); err != nil && ctx.Err() == nil {
				r.logger.Error("failed to report peer error", "peer", pe.NodeID, "err", err)
			}
		}
	}
}
