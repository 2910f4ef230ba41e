package eth

import (
	"fmt"
	"io"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/rlp"
)

// Message codes of the request/response pairs served by the exchange layer.
const (
	GetBlockHeadersMsg = 0x03
	BlockHeadersMsg    = 0x04
	GetBlockBodiesMsg  = 0x05
	BlockBodiesMsg     = 0x06
	GetNodeDataMsg     = 0x0d
	NodeDataMsg        = 0x0e
	GetReceiptsMsg     = 0x0f
	ReceiptsMsg        = 0x10
)

// maxMessageSize is the maximum cap on the size of a protocol message.
const maxMessageSize = 10 * 1024 * 1024

// Packet is a decoded protocol message. Every packet carries the request id
// that correlates a response with its request; zero means the sender did not
// assign one.
type Packet interface {
	Code() uint64
	ID() uint64
}

// IsResponse reports whether code identifies a response message.
func IsResponse(code uint64) bool {
	switch code {
	case BlockHeadersMsg, BlockBodiesMsg, NodeDataMsg, ReceiptsMsg:
		return true
	}
	return false
}

// ResponseCode returns the message code answering a request code.
func ResponseCode(code uint64) (uint64, bool) {
	switch code {
	case GetBlockHeadersMsg:
		return BlockHeadersMsg, true
	case GetBlockBodiesMsg:
		return BlockBodiesMsg, true
	case GetNodeDataMsg:
		return NodeDataMsg, true
	case GetReceiptsMsg:
		return ReceiptsMsg, true
	}
	return 0, false
}

// HashOrNumber is a combined field for specifying an origin block.
type HashOrNumber struct {
	Hash   common.Hash // Block hash from which to retrieve headers (excludes Number)
	Number uint64      // Block number from which to retrieve headers (excludes Hash)
}

// ByNumber returns an origin anchored at a block number.
func ByNumber(n uint64) HashOrNumber { return HashOrNumber{Number: n} }

// ByHash returns an origin anchored at a block hash.
func ByHash(h common.Hash) HashOrNumber { return HashOrNumber{Hash: h} }

// IsHash reports whether the origin is anchored at a hash.
func (hn HashOrNumber) IsHash() bool { return hn.Hash != (common.Hash{}) }

func (hn HashOrNumber) String() string {
	if hn.IsHash() {
		return hn.Hash.TerminalString()
	}
	return fmt.Sprintf("#%d", hn.Number)
}

// EncodeRLP is a specialized encoder for HashOrNumber to encode only one of the
// two contained union fields.
func (hn *HashOrNumber) EncodeRLP(w io.Writer) error {
	if hn.Hash == (common.Hash{}) {
		return rlp.Encode(w, hn.Number)
	}
	if hn.Number != 0 {
		return fmt.Errorf("both origin hash (%x) and number (%d) provided", hn.Hash, hn.Number)
	}
	return rlp.Encode(w, hn.Hash)
}

// DecodeRLP is a specialized decoder for HashOrNumber to decode the contents
// into either a block hash or a block number.
func (hn *HashOrNumber) DecodeRLP(s *rlp.Stream) error {
	_, size, err := s.Kind()
	switch {
	case err != nil:
		return err
	case size == 32:
		hn.Number = 0
		return s.Decode(&hn.Hash)
	case size <= 8:
		hn.Hash = common.Hash{}
		return s.Decode(&hn.Number)
	default:
		return fmt.Errorf("invalid input size %d for origin", size)
	}
}

// HeaderQuery selects the headers a GetBlockHeadersPacket asks for.
type HeaderQuery struct {
	Origin  HashOrNumber // Block from which to retrieve headers
	Amount  uint64       // Maximum number of headers to retrieve
	Skip    uint64       // Blocks to skip between consecutive headers
	Reverse bool         // Query direction (false = rising towards latest, true = falling towards genesis)
}

// GetBlockHeadersPacket requests a sequence of block headers.
type GetBlockHeadersPacket struct {
	RequestID uint64
	Query     *HeaderQuery
}

// BlockHeadersPacket is the response to GetBlockHeadersPacket.
type BlockHeadersPacket struct {
	RequestID uint64
	Headers   []*types.Header
}

// GetBlockBodiesPacket requests the bodies of the blocks with the given hashes.
type GetBlockBodiesPacket struct {
	RequestID uint64
	Hashes    []common.Hash
}

// BlockBodiesPacket is the response to GetBlockBodiesPacket.
type BlockBodiesPacket struct {
	RequestID uint64
	Bodies    []*types.Body
}

// GetReceiptsPacket requests the receipts of the blocks with the given hashes.
type GetReceiptsPacket struct {
	RequestID uint64
	Hashes    []common.Hash
}

// ReceiptsPacket is the response to GetReceiptsPacket, one receipt list per
// block.
type ReceiptsPacket struct {
	RequestID uint64
	Receipts  [][]*types.Receipt
}

// GetNodeDataPacket requests state trie nodes or contract code by hash.
type GetNodeDataPacket struct {
	RequestID uint64
	Hashes    []common.Hash
}

// NodeDataPacket is the response to GetNodeDataPacket.
type NodeDataPacket struct {
	RequestID uint64
	Data      [][]byte
}

func (*GetBlockHeadersPacket) Code() uint64 { return GetBlockHeadersMsg }
func (*BlockHeadersPacket) Code() uint64    { return BlockHeadersMsg }
func (*GetBlockBodiesPacket) Code() uint64  { return GetBlockBodiesMsg }
func (*BlockBodiesPacket) Code() uint64     { return BlockBodiesMsg }
func (*GetReceiptsPacket) Code() uint64     { return GetReceiptsMsg }
func (*ReceiptsPacket) Code() uint64        { return ReceiptsMsg }
func (*GetNodeDataPacket) Code() uint64     { return GetNodeDataMsg }
func (*NodeDataPacket) Code() uint64        { return NodeDataMsg }

func (p *GetBlockHeadersPacket) ID() uint64 { return p.RequestID }
func (p *BlockHeadersPacket) ID() uint64    { return p.RequestID }
func (p *GetBlockBodiesPacket) ID() uint64  { return p.RequestID }
func (p *BlockBodiesPacket) ID() uint64     { return p.RequestID }
func (p *GetReceiptsPacket) ID() uint64     { return p.RequestID }
func (p *ReceiptsPacket) ID() uint64        { return p.RequestID }
func (p *GetNodeDataPacket) ID() uint64     { return p.RequestID }
func (p *NodeDataPacket) ID() uint64        { return p.RequestID }
