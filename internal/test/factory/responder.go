package factory

import (
	"context"
	"math"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/tendermint/tm-exchange/internal/eth"
	"github.com/tendermint/tm-exchange/internal/p2p"
	"github.com/tendermint/tm-exchange/libs/log"
)

// Responder serves exchange requests from a Chain over a channel, the way a
// well behaved remote peer would. Tests can limit, drop or tamper with its
// responses.
type Responder struct {
	logger  log.Logger
	chain   *Chain
	channel *p2p.Channel

	mtx      sync.Mutex
	maxItems int
	drop     func(req eth.Packet) bool
	tamper   func(resp eth.Packet) eth.Packet
	served   int
}

func NewResponder(logger log.Logger, chain *Chain, channel *p2p.Channel) *Responder {
	return &Responder{logger: logger, chain: chain, channel: channel}
}

// SetMaxItems caps the number of items in each response. Zero means no cap.
func (r *Responder) SetMaxItems(n int) {
	r.mtx.Lock()
	defer r.mtx.Unlock()
	r.maxItems = n
}

// SetDrop makes the responder ignore every request for which fn returns true.
func (r *Responder) SetDrop(fn func(req eth.Packet) bool) {
	r.mtx.Lock()
	defer r.mtx.Unlock()
	r.drop = fn
}

// SetTamper makes the responder send fn(resp) instead of resp.
func (r *Responder) SetTamper(fn func(resp eth.Packet) eth.Packet) {
	r.mtx.Lock()
	defer r.mtx.Unlock()
	r.tamper = fn
}

// Served returns the number of responses sent.
func (r *Responder) Served() int {
	r.mtx.Lock()
	defer r.mtx.Unlock()
	return r.served
}

// Run serves requests until ctx is canceled.
func (r *Responder) Run(ctx context.Context) {
	iter := r.channel.Receive(ctx)
	for iter.Next(ctx) {
		envelope := iter.Envelope()

		r.mtx.Lock()
		drop, tamper := r.drop, r.tamper
		r.mtx.Unlock()

		if drop != nil && drop(envelope.Message) {
			continue
		}
		resp := r.Respond(envelope.Message)
		if resp == nil {
			continue
		}
		if tamper != nil {
			resp = tamper(resp)
		}
		if err := r.channel.Send(ctx, p2p.Envelope{To: envelope.From, Message: resp}); err != nil {
			r.logger.Debug("failed to send response", "peer", envelope.From, "err", err)
			return
		}

		r.mtx.Lock()
		r.served++
		r.mtx.Unlock()
	}
}

// Respond builds the response to req, echoing its request id. It returns nil
// for anything that is not a request.
func (r *Responder) Respond(req eth.Packet) eth.Packet {
	limit := r.limit()
	switch msg := req.(type) {
	case *eth.GetBlockHeadersPacket:
		return &eth.BlockHeadersPacket{RequestID: msg.RequestID, Headers: r.headers(msg.Query, limit)}

	case *eth.GetBlockBodiesPacket:
		bodies := []*types.Body{}
		r.each(msg.Hashes, limit, func(hash common.Hash) bool {
			body := r.chain.Body(hash)
			if body != nil {
				bodies = append(bodies, body)
			}
			return body != nil
		})
		return &eth.BlockBodiesPacket{RequestID: msg.RequestID, Bodies: bodies}

	case *eth.GetReceiptsPacket:
		receipts := [][]*types.Receipt{}
		r.each(msg.Hashes, limit, func(hash common.Hash) bool {
			if r.chain.HeaderByHash(hash) == nil {
				return false
			}
			receipts = append(receipts, r.chain.Receipts(hash))
			return true
		})
		return &eth.ReceiptsPacket{RequestID: msg.RequestID, Receipts: receipts}

	case *eth.GetNodeDataPacket:
		data := [][]byte{}
		r.each(msg.Hashes, limit, func(hash common.Hash) bool {
			blob := r.chain.NodeData(hash)
			if blob != nil {
				data = append(data, blob)
			}
			return blob != nil
		})
		return &eth.NodeDataPacket{RequestID: msg.RequestID, Data: data}
	}
	return nil
}

func (r *Responder) limit() uint64 {
	r.mtx.Lock()
	defer r.mtx.Unlock()
	if r.maxItems <= 0 {
		return math.MaxUint64
	}
	return uint64(r.maxItems)
}

// each calls fn for hashes until limit calls returned true.
func (r *Responder) each(hashes []common.Hash, limit uint64, fn func(common.Hash) bool) {
	var n uint64
	for _, hash := range hashes {
		if n >= limit {
			return
		}
		if fn(hash) {
			n++
		}
	}
}

func (r *Responder) headers(q *eth.HeaderQuery, limit uint64) []*types.Header {
	headers := []*types.Header{}
	if q == nil {
		return headers
	}

	var origin *types.Header
	if q.Origin.IsHash() {
		origin = r.chain.HeaderByHash(q.Origin.Hash)
	} else {
		origin = r.chain.HeaderByNumber(q.Origin.Number)
	}
	if origin == nil {
		return headers
	}
	if q.Amount < limit {
		limit = q.Amount
	}

	number := origin.Number.Uint64()
	for uint64(len(headers)) < limit {
		h := r.chain.HeaderByNumber(number)
		if h == nil {
			break
		}
		headers = append(headers, h)

		if q.Skip == math.MaxUint64 {
			break
		}
		step := q.Skip + 1
		if q.Reverse {
			if number < step {
				break
			}
			number -= step
		} else {
			if number > math.MaxUint64-step {
				break
			}
			number += step
		}
	}
	return headers
}
