package exchange

import (
	"fmt"

	"github.com/tendermint/tm-exchange/internal/eth"
)

// Kind identifies one of the request/response exchanges.
type Kind uint8

const (
	KindBlockHeaders Kind = iota
	KindBlockBodies
	KindReceipts
	KindNodeData

	numKinds
)

// Kinds lists every exchange kind.
var Kinds = []Kind{KindBlockHeaders, KindBlockBodies, KindReceipts, KindNodeData}

func (k Kind) String() string {
	switch k {
	case KindBlockHeaders:
		return "block_headers"
	case KindBlockBodies:
		return "block_bodies"
	case KindReceipts:
		return "receipts"
	case KindNodeData:
		return "node_data"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// kindOfResponse maps a response message code to its exchange kind.
func kindOfResponse(code uint64) (Kind, bool) {
	switch code {
	case eth.BlockHeadersMsg:
		return KindBlockHeaders, true
	case eth.BlockBodiesMsg:
		return KindBlockBodies, true
	case eth.ReceiptsMsg:
		return KindReceipts, true
	case eth.NodeDataMsg:
		return KindNodeData, true
	}
	return 0, false
}
