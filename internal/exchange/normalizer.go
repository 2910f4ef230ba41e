package exchange

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/trie"
)

// Normalizer converts a raw payload into its canonical domain form. It never
// fails and never rejects; whether the result is acceptable is decided by a
// ResultValidator afterwards.
type Normalizer[Raw, Res any] interface {
	Normalize(raw Raw) Res
}

// NoopNormalizer returns the payload unchanged.
type NoopNormalizer[T any] struct{}

func (NoopNormalizer[T]) Normalize(raw T) T { return raw }

// NodeDataBundle is a trie node together with its keccak256 hash.
type NodeDataBundle struct {
	Hash common.Hash
	Data []byte
}

type nodeDataNormalizer struct{}

func (nodeDataNormalizer) Normalize(data [][]byte) []NodeDataBundle {
	bundles := make([]NodeDataBundle, len(data))
	for i, blob := range data {
		bundles[i] = NodeDataBundle{Hash: crypto.Keccak256Hash(blob), Data: blob}
	}
	return bundles
}

// ReceiptsBundle pairs a block's receipts with the requested header whose
// receipt root they match. Header is nil when no requested header matched.
type ReceiptsBundle struct {
	Header   *types.Header
	Receipts types.Receipts
	Root     common.Hash
}

// ReceiptsBundles is the result of a receipts exchange.
type ReceiptsBundles []ReceiptsBundle

type receiptsNormalizer struct {
	headers []*types.Header
}

func (n receiptsNormalizer) Normalize(raw [][]*types.Receipt) ReceiptsBundles {
	claims := newHeaderClaims(n.headers)
	bundles := make(ReceiptsBundles, len(raw))
	for i, receipts := range raw {
		b := ReceiptsBundle{
			Receipts: receipts,
			Root:     types.DeriveSha(types.Receipts(receipts), trie.NewStackTrie(nil)),
		}
		b.Header = claims.claim(func(h *types.Header) bool { return receiptsMatch(h, b) })
		bundles[i] = b
	}
	return bundles
}

func receiptsMatch(h *types.Header, b ReceiptsBundle) bool {
	return h.ReceiptHash == b.Root
}

// BlockBodyBundle pairs a block body with the requested header whose
// transaction root, uncle hash and withdrawals root it matches. Header is nil
// when no requested header matched.
type BlockBodyBundle struct {
	Header          *types.Header
	Body            *types.Body
	TxRoot          common.Hash
	UncleHash       common.Hash
	WithdrawalsRoot *common.Hash
}

// BlockBodyBundles is the result of a block bodies exchange.
type BlockBodyBundles []BlockBodyBundle

type blockBodiesNormalizer struct {
	headers []*types.Header
}

func (n blockBodiesNormalizer) Normalize(raw []*types.Body) BlockBodyBundles {
	claims := newHeaderClaims(n.headers)
	bundles := make(BlockBodyBundles, len(raw))
	for i, body := range raw {
		b := BlockBodyBundle{
			Body:      body,
			TxRoot:    types.DeriveSha(types.Transactions(body.Transactions), trie.NewStackTrie(nil)),
			UncleHash: types.CalcUncleHash(body.Uncles),
		}
		if body.Withdrawals != nil {
			root := types.DeriveSha(types.Withdrawals(body.Withdrawals), trie.NewStackTrie(nil))
			b.WithdrawalsRoot = &root
		}
		b.Header = claims.claim(func(h *types.Header) bool { return bodyMatches(h, b) })
		bundles[i] = b
	}
	return bundles
}

func bodyMatches(h *types.Header, b BlockBodyBundle) bool {
	if h.TxHash != b.TxRoot || h.UncleHash != b.UncleHash {
		return false
	}
	switch {
	case h.WithdrawalsHash == nil && b.WithdrawalsRoot == nil:
		return true
	case h.WithdrawalsHash == nil || b.WithdrawalsRoot == nil:
		return false
	default:
		return *h.WithdrawalsHash == *b.WithdrawalsRoot
	}
}

// headerClaims hands out requested headers to returned items. Each header is
// given out at most once, in request order, so two empty blocks with the
// same roots pair with two distinct headers.
type headerClaims struct {
	headers []*types.Header
	claimed []bool
}

func newHeaderClaims(headers []*types.Header) *headerClaims {
	return &headerClaims{headers: headers, claimed: make([]bool, len(headers))}
}

func (c *headerClaims) claim(match func(*types.Header) bool) *types.Header {
	for i, h := range c.headers {
		if !c.claimed[i] && match(h) {
			c.claimed[i] = true
			return h
		}
	}
	return nil
}
