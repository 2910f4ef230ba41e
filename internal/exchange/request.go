package exchange

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"github.com/tendermint/tm-exchange/internal/eth"
)

// Request is an immutable description of one outbound ask.
type Request interface {
	Kind() Kind

	// Packet builds the wire request carrying the given request id.
	Packet(requestID uint64) eth.Packet
}

var (
	_ Request = HeadersRequest{}
	_ Request = HashesRequest{}
)

// HeadersRequest asks for a sequence of headers starting at Origin.
type HeadersRequest struct {
	Origin  eth.HashOrNumber
	Amount  uint64
	Skip    uint64
	Reverse bool
}

func (HeadersRequest) Kind() Kind { return KindBlockHeaders }

func (r HeadersRequest) Packet(requestID uint64) eth.Packet {
	return &eth.GetBlockHeadersPacket{
		RequestID: requestID,
		Query: &eth.HeaderQuery{
			Origin:  r.Origin,
			Amount:  r.Amount,
			Skip:    r.Skip,
			Reverse: r.Reverse,
		},
	}
}

// Sequence returns the block numbers the request enumerates. It is only
// known for requests anchored at a block number.
func (r HeadersRequest) Sequence() (BlockNumberSequence, bool) {
	if r.Origin.IsHash() {
		return BlockNumberSequence{}, false
	}
	return BlockNumberSequence{
		Start:     r.Origin.Number,
		MaxLength: r.Amount,
		Skip:      r.Skip,
		Reverse:   r.Reverse,
	}, true
}

func (r HeadersRequest) String() string {
	return fmt.Sprintf("HeadersRequest{origin:%v amount:%d skip:%d reverse:%v}", r.Origin, r.Amount, r.Skip, r.Reverse)
}

// HashesRequest asks for content addressed items: block bodies or receipts
// by block hash, or state trie nodes by node hash.
type HashesRequest struct {
	kind   Kind
	hashes []common.Hash
}

// NewBlockBodiesRequest returns a request for the bodies of the given blocks.
func NewBlockBodiesRequest(hashes []common.Hash) HashesRequest {
	return newHashesRequest(KindBlockBodies, hashes)
}

// NewReceiptsRequest returns a request for the receipts of the given blocks.
func NewReceiptsRequest(hashes []common.Hash) HashesRequest {
	return newHashesRequest(KindReceipts, hashes)
}

// NewNodeDataRequest returns a request for the given trie nodes.
func NewNodeDataRequest(hashes []common.Hash) HashesRequest {
	return newHashesRequest(KindNodeData, hashes)
}

func newHashesRequest(kind Kind, hashes []common.Hash) HashesRequest {
	return HashesRequest{kind: kind, hashes: append([]common.Hash(nil), hashes...)}
}

func (r HashesRequest) Kind() Kind { return r.kind }

// Hashes returns a copy of the requested hashes.
func (r HashesRequest) Hashes() []common.Hash {
	return append([]common.Hash(nil), r.hashes...)
}

// Len returns the number of requested hashes.
func (r HashesRequest) Len() int { return len(r.hashes) }

func (r HashesRequest) Packet(requestID uint64) eth.Packet {
	hashes := r.Hashes()
	switch r.kind {
	case KindBlockBodies:
		return &eth.GetBlockBodiesPacket{RequestID: requestID, Hashes: hashes}
	case KindReceipts:
		return &eth.GetReceiptsPacket{RequestID: requestID, Hashes: hashes}
	case KindNodeData:
		return &eth.GetNodeDataPacket{RequestID: requestID, Hashes: hashes}
	default:
		panic(fmt.Sprintf("no hashes request for %v", r.kind))
	}
}
