package exchange

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/tendermint/tm-exchange/internal/eth"
)

// PayloadValidator extracts the raw payload from a response packet, checking
// only its structure: the packet type and the absence of nil entries.
type PayloadValidator[Raw any] func(eth.Packet) (Raw, error)

// ResultValidator checks a normalized result against the request it answers.
type ResultValidator[Res any] interface {
	Validate(result Res) error
}

var (
	errNilEntry        = errors.New("nil entry")
	errUnexpectedItem  = errors.New("item does not match any requested entry")
	errTooManyHeaders  = errors.New("more headers than requested")
	errUnexpectedStart = errors.New("first header does not match the requested origin")
	errBrokenChain     = errors.New("headers are not parent-linked")
)

func unexpectedPacket(want string, got eth.Packet) error {
	return fmt.Errorf("expected %s, got %T", want, got)
}

func blockHeadersPayload(p eth.Packet) ([]*types.Header, error) {
	msg, ok := p.(*eth.BlockHeadersPacket)
	if !ok {
		return nil, unexpectedPacket("block headers", p)
	}
	for i, h := range msg.Headers {
		if h == nil || h.Number == nil {
			return nil, fmt.Errorf("header %d: %w", i, errNilEntry)
		}
	}
	return msg.Headers, nil
}

func blockBodiesPayload(p eth.Packet) ([]*types.Body, error) {
	msg, ok := p.(*eth.BlockBodiesPacket)
	if !ok {
		return nil, unexpectedPacket("block bodies", p)
	}
	for i, b := range msg.Bodies {
		if b == nil {
			return nil, fmt.Errorf("body %d: %w", i, errNilEntry)
		}
		for j, tx := range b.Transactions {
			if tx == nil {
				return nil, fmt.Errorf("body %d transaction %d: %w", i, j, errNilEntry)
			}
		}
		for j, u := range b.Uncles {
			if u == nil {
				return nil, fmt.Errorf("body %d uncle %d: %w", i, j, errNilEntry)
			}
		}
	}
	return msg.Bodies, nil
}

func receiptsPayload(p eth.Packet) ([][]*types.Receipt, error) {
	msg, ok := p.(*eth.ReceiptsPacket)
	if !ok {
		return nil, unexpectedPacket("receipts", p)
	}
	for i, receipts := range msg.Receipts {
		for j, r := range receipts {
			if r == nil {
				return nil, fmt.Errorf("block %d receipt %d: %w", i, j, errNilEntry)
			}
		}
	}
	return msg.Receipts, nil
}

func nodeDataPayload(p eth.Packet) ([][]byte, error) {
	msg, ok := p.(*eth.NodeDataPacket)
	if !ok {
		return nil, unexpectedPacket("node data", p)
	}
	return msg.Data, nil
}

// BlockHeadersValidator accepts a header response if its block numbers are a
// prefix of the sequence the request enumerates.
type BlockHeadersValidator struct {
	req HeadersRequest
}

func NewBlockHeadersValidator(req HeadersRequest) *BlockHeadersValidator {
	return &BlockHeadersValidator{req: req}
}

func (v *BlockHeadersValidator) Validate(headers []*types.Header) error {
	if len(headers) == 0 {
		return nil
	}
	if uint64(len(headers)) > v.req.Amount {
		return fmt.Errorf("%w: got %d, asked for %d", errTooManyHeaders, len(headers), v.req.Amount)
	}

	seq, ok := v.req.Sequence()
	if !ok {
		if hash := headers[0].Hash(); hash != v.req.Origin.Hash {
			return fmt.Errorf("%w: got %x, want %x", errUnexpectedStart, hash, v.req.Origin.Hash)
		}
		if !headers[0].Number.IsUint64() {
			return fmt.Errorf("header 0: block number %v out of range", headers[0].Number)
		}
		seq = BlockNumberSequence{
			Start:     headers[0].Number.Uint64(),
			MaxLength: v.req.Amount,
			Skip:      v.req.Skip,
			Reverse:   v.req.Reverse,
		}
	}

	if n := seq.Len(); uint64(len(headers)) > n {
		return fmt.Errorf("%w: got %d, sequence has %d", errTooManyHeaders, len(headers), n)
	}
	for i, h := range headers {
		want := seq.At(uint64(i))
		if !h.Number.IsUint64() || h.Number.Uint64() != want {
			return fmt.Errorf("header %d: got block #%v, want #%d", i, h.Number, want)
		}
	}

	if v.req.Skip == 0 {
		for i := 1; i < len(headers); i++ {
			parent, child := headers[i-1], headers[i]
			if v.req.Reverse {
				parent, child = child, parent
			}
			if child.ParentHash != parent.Hash() {
				return fmt.Errorf("%w: block #%v does not follow %x", errBrokenChain, child.Number, parent.Hash())
			}
		}
	}
	return nil
}

// NodeDataValidator accepts trie nodes whose hashes were requested, each
// requested hash satisfying at most one node.
type NodeDataValidator struct {
	requested map[common.Hash]int
}

func NewNodeDataValidator(hashes []common.Hash) *NodeDataValidator {
	requested := make(map[common.Hash]int, len(hashes))
	for _, h := range hashes {
		requested[h]++
	}
	return &NodeDataValidator{requested: requested}
}

func (v *NodeDataValidator) Validate(bundles []NodeDataBundle) error {
	remaining := make(map[common.Hash]int, len(v.requested))
	for h, n := range v.requested {
		remaining[h] = n
	}
	for i, b := range bundles {
		if remaining[b.Hash] == 0 {
			return fmt.Errorf("node %d (%x): %w", i, b.Hash, errUnexpectedItem)
		}
		remaining[b.Hash]--
	}
	return nil
}

// requestedHeaders tracks which requested headers a response already used.
type requestedHeaders struct {
	remaining map[common.Hash]int
}

func newRequestedHeaders(headers []*types.Header) requestedHeaders {
	remaining := make(map[common.Hash]int, len(headers))
	for _, h := range headers {
		remaining[h.Hash()]++
	}
	return requestedHeaders{remaining: remaining}
}

func (r requestedHeaders) use(h *types.Header) bool {
	if h == nil {
		return false
	}
	hash := h.Hash()
	if r.remaining[hash] == 0 {
		return false
	}
	r.remaining[hash]--
	return true
}

// ReceiptsValidator accepts receipt lists that each pair with a distinct
// requested header by receipt root.
type ReceiptsValidator struct {
	headers []*types.Header
}

func NewReceiptsValidator(headers []*types.Header) *ReceiptsValidator {
	return &ReceiptsValidator{headers: headers}
}

func (v *ReceiptsValidator) Validate(bundles ReceiptsBundles) error {
	requested := newRequestedHeaders(v.headers)
	for i, b := range bundles {
		if !requested.use(b.Header) || !receiptsMatch(b.Header, b) {
			return fmt.Errorf("receipts %d (root %x): %w", i, b.Root, errUnexpectedItem)
		}
	}
	return nil
}

// BlockBodiesValidator accepts bodies that each pair with a distinct
// requested header by transaction root, uncle hash and withdrawals root.
type BlockBodiesValidator struct {
	headers []*types.Header
}

func NewBlockBodiesValidator(headers []*types.Header) *BlockBodiesValidator {
	return &BlockBodiesValidator{headers: headers}
}

func (v *BlockBodiesValidator) Validate(bundles BlockBodyBundles) error {
	requested := newRequestedHeaders(v.headers)
	for i, b := range bundles {
		if !requested.use(b.Header) || !bodyMatches(b.Header, b) {
			return fmt.Errorf("body %d (tx root %x, uncle hash %x): %w", i, b.TxRoot, b.UncleHash, errUnexpectedItem)
		}
	}
	return nil
}
