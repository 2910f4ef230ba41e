package exchange

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/tendermint/tm-exchange/internal/eth"
	"github.com/tendermint/tm-exchange/internal/p2p"
	tmtypes "github.com/tendermint/tm-exchange/types"
)

// exchangeSpec composes the stages one exchange kind runs a response
// through.
type exchangeSpec[Raw, Res any] struct {
	request    Request
	payload    PayloadValidator[Raw]
	normalizer Normalizer[Raw, Res]
	validator  ResultValidator[Res]
	itemCount  func(Res) int
}

// getResult sends spec's request to peer and waits for the matching
// response, which is validated, normalized and recorded in the tracker. A
// timeout of zero selects the configured default.
func getResult[Raw, Res any](
	ctx context.Context,
	r *Reactor,
	peer tmtypes.NodeID,
	spec exchangeSpec[Raw, Res],
	timeout time.Duration,
) (Res, error) {
	var zero Res
	if timeout <= 0 {
		timeout = r.cfg.RequestTimeout
	}
	kind := spec.request.Kind()
	kindLabel := kind.String()

	var requestID uint64
	if r.cfg.UseRequestIDs {
		requestID = r.nextRequestID()
	}

	issued := time.Now()
	w, err := r.registry.Register(peer, kind, requestID, issued, issued.Add(timeout))
	if err != nil {
		r.metrics.PeerLost.With("kind", kindLabel).Add(1)
		return zero, err
	}
	r.metrics.PendingRequests.Set(float64(r.registry.Len()))

	// a full outbound queue counts against the same deadline as the response
	sendCtx, cancel := context.WithDeadline(ctx, w.deadline)
	err = r.channel.Send(sendCtx, p2p.Envelope{To: peer, Message: spec.request.Packet(requestID)})
	cancel()
	if err != nil {
		r.registry.Cancel(w)
		r.metrics.PendingRequests.Set(float64(r.registry.Len()))
		switch {
		case ctx.Err() != nil:
			return zero, ctx.Err()
		case errors.Is(err, context.DeadlineExceeded):
			r.metrics.Timeouts.With("kind", kindLabel).Add(1)
			return zero, ErrTimeout{Peer: peer, Kind: kind, Timeout: timeout}
		}
		return zero, fmt.Errorf("sending %v request to %s: %w", kind, peer.ShortString(), err)
	}
	r.metrics.Requests.With("kind", kindLabel).Add(1)

	timer := time.NewTimer(time.Until(w.deadline))
	defer timer.Stop()

	var d delivery
	select {
	case d = <-w.doneCh:
	case <-timer.C:
		if r.registry.Cancel(w) {
			r.metrics.Timeouts.With("kind", kindLabel).Add(1)
			r.metrics.PendingRequests.Set(float64(r.registry.Len()))
			return zero, ErrTimeout{Peer: peer, Kind: kind, Timeout: timeout}
		}
		d = <-w.doneCh
	case <-ctx.Done():
		if r.registry.Cancel(w) {
			r.metrics.PendingRequests.Set(float64(r.registry.Len()))
			return zero, ctx.Err()
		}
		d = <-w.doneCh
	}
	r.metrics.PendingRequests.Set(float64(r.registry.Len()))

	if d.err != nil {
		r.metrics.PeerLost.With("kind", kindLabel).Add(1)
		return zero, d.err
	}

	raw, err := spec.payload(d.packet)
	if err != nil {
		return zero, r.rejectResponse(peer, kind, err)
	}
	result := spec.normalizer.Normalize(raw)
	if err := spec.validator.Validate(result); err != nil {
		return zero, r.rejectResponse(peer, kind, err)
	}

	elapsed := d.received.Sub(w.issued)
	returned := spec.itemCount(result)
	expected, known := r.tracker.ExpectedItemCount(spec.request)
	r.tracker.Record(peer, kind, Sample{
		Elapsed:       elapsed,
		Expected:      expected,
		ExpectedKnown: known,
		Returned:      returned,
	})

	r.metrics.Responses.With("kind", kindLabel).Add(1)
	r.metrics.ItemsReceived.With("kind", kindLabel).Add(float64(returned))
	r.metrics.ResponseTime.With("kind", kindLabel).Observe(elapsed.Seconds())
	return result, nil
}

// rejectResponse queues a report of a protocol violation by peer for the p2p
// layer and returns the error for the caller. It never blocks; a report that
// does not fit in the queue is dropped.
func (r *Reactor) rejectResponse(peer tmtypes.NodeID, kind Kind, reason error) error {
	r.metrics.ValidationFailures.With("kind", kind.String()).Add(1)
	err := ErrValidation{Peer: peer, Kind: kind, Reason: reason}
	r.logger.Debug("rejecting response", "peer", peer, "kind", kind, "err", reason)

	select {
	case r.peerErrCh <- p2p.PeerError{NodeID: peer, Err: err}:
	default:
		r.logger.Error("dropping peer error report; queue is full", "peer", peer, "err", err)
	}
	return err
}

// PeerExchange issues requests to a single peer.
type PeerExchange struct {
	reactor *Reactor
	peer    tmtypes.NodeID
}

// ID returns the peer's node id.
func (p *PeerExchange) ID() tmtypes.NodeID { return p.peer }

// GetBlockHeaders requests amount headers starting at origin, walking the
// chain backwards if reverse is set and skipping skip blocks between each
// returned header. The peer may return fewer headers than asked for.
func (p *PeerExchange) GetBlockHeaders(
	ctx context.Context,
	origin eth.HashOrNumber,
	amount, skip uint64,
	reverse bool,
	timeout time.Duration,
) ([]*types.Header, error) {
	if amount == 0 {
		return nil, fmt.Errorf("%w: header amount must be positive", errInvalidRequest)
	}
	req := HeadersRequest{Origin: origin, Amount: amount, Skip: skip, Reverse: reverse}
	return getResult(ctx, p.reactor, p.peer, exchangeSpec[[]*types.Header, []*types.Header]{
		request:    req,
		payload:    blockHeadersPayload,
		normalizer: NoopNormalizer[[]*types.Header]{},
		validator:  NewBlockHeadersValidator(req),
		itemCount:  func(headers []*types.Header) int { return len(headers) },
	}, timeout)
}

// GetNodeData requests the trie nodes with the given hashes. The result maps
// each returned node's hash to its data; missing nodes are simply absent.
func (p *PeerExchange) GetNodeData(
	ctx context.Context,
	hashes []common.Hash,
	timeout time.Duration,
) (map[common.Hash][]byte, error) {
	if len(hashes) == 0 {
		return nil, fmt.Errorf("%w: no node hashes", errInvalidRequest)
	}
	bundles, err := getResult(ctx, p.reactor, p.peer, exchangeSpec[[][]byte, []NodeDataBundle]{
		request:    NewNodeDataRequest(hashes),
		payload:    nodeDataPayload,
		normalizer: nodeDataNormalizer{},
		validator:  NewNodeDataValidator(hashes),
		itemCount:  func(b []NodeDataBundle) int { return len(b) },
	}, timeout)
	if err != nil {
		return nil, err
	}

	nodes := make(map[common.Hash][]byte, len(bundles))
	for _, b := range bundles {
		nodes[b.Hash] = b.Data
	}
	return nodes, nil
}

// GetReceipts requests the receipts of the given blocks. Every returned
// bundle is paired with the header it belongs to.
func (p *PeerExchange) GetReceipts(
	ctx context.Context,
	headers []*types.Header,
	timeout time.Duration,
) (ReceiptsBundles, error) {
	hashes, err := headerHashes(headers)
	if err != nil {
		return nil, err
	}
	return getResult(ctx, p.reactor, p.peer, exchangeSpec[[][]*types.Receipt, ReceiptsBundles]{
		request:    NewReceiptsRequest(hashes),
		payload:    receiptsPayload,
		normalizer: receiptsNormalizer{headers: headers},
		validator:  NewReceiptsValidator(headers),
		itemCount:  func(b ReceiptsBundles) int { return len(b) },
	}, timeout)
}

// GetBlockBodies requests the bodies of the given blocks. Every returned
// bundle is paired with the header it belongs to.
func (p *PeerExchange) GetBlockBodies(
	ctx context.Context,
	headers []*types.Header,
	timeout time.Duration,
) (BlockBodyBundles, error) {
	hashes, err := headerHashes(headers)
	if err != nil {
		return nil, err
	}
	return getResult(ctx, p.reactor, p.peer, exchangeSpec[[]*types.Body, BlockBodyBundles]{
		request:    NewBlockBodiesRequest(hashes),
		payload:    blockBodiesPayload,
		normalizer: blockBodiesNormalizer{headers: headers},
		validator:  NewBlockBodiesValidator(headers),
		itemCount:  func(b BlockBodyBundles) int { return len(b) },
	}, timeout)
}

// RecommendedBatchSize returns the number of items to request from this
// peer in one request of the given kind.
func (p *PeerExchange) RecommendedBatchSize(kind Kind) int {
	return p.reactor.tracker.RecommendedBatchSize(p.peer, kind)
}

// Stats returns the performance averages of this peer for kind.
func (p *PeerExchange) Stats(kind Kind) (Stats, bool) {
	return p.reactor.tracker.Stats(p.peer, kind)
}

func headerHashes(headers []*types.Header) ([]common.Hash, error) {
	if len(headers) == 0 {
		return nil, fmt.Errorf("%w: no headers", errInvalidRequest)
	}
	hashes := make([]common.Hash, len(headers))
	for i, h := range headers {
		if h == nil {
			return nil, fmt.Errorf("%w: header %d is nil", errInvalidRequest, i)
		}
		hashes[i] = h.Hash()
	}
	return hashes, nil
}
