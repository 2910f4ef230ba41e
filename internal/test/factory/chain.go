package factory

import (
	"fmt"
	"math/big"
	"math/rand"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/trie"
)

const (
	gasLimit     = 30_000_000
	blockTime    = 12
	genesisTime  = 1_600_000_000
	maxTxs       = 4
	nodesInBlock = 2
)

var baseFee = big.NewInt(1_000_000_000)

// Chain is a generated, internally consistent chain: every header commits to
// its body and receipts, and every block contributes a few state nodes.
type Chain struct {
	headers  []*types.Header
	byHash   map[common.Hash]*types.Header
	bodies   map[common.Hash]*types.Body
	receipts map[common.Hash]types.Receipts
	nodes    map[common.Hash][]byte
	nodeList []common.Hash
}

// MakeChain generates a chain with blocks 0 to length-1. The same seed
// always yields the same chain.
func MakeChain(length int, seed int64) (*Chain, error) {
	if length < 1 {
		return nil, fmt.Errorf("chain length must be positive, got %d", length)
	}
	rng := rand.New(rand.NewSource(seed))
	key, err := crypto.ToECDSA(crypto.Keccak256(big.NewInt(seed).Bytes()))
	if err != nil {
		return nil, err
	}

	c := &Chain{
		byHash:   make(map[common.Hash]*types.Header, length),
		bodies:   make(map[common.Hash]*types.Body, length),
		receipts: make(map[common.Hash]types.Receipts, length),
		nodes:    make(map[common.Hash][]byte, length*nodesInBlock),
	}

	var nonce uint64
	for number := 0; number < length; number++ {
		var (
			txs    []*types.Transaction
			uncles []*types.Header
			parent common.Hash
		)
		if number > 0 {
			parent = c.headers[number-1].Hash()
			txs, err = MakeTxs(key, nonce, rng.Intn(maxTxs+1), rng)
			if err != nil {
				return nil, err
			}
			nonce += uint64(len(txs))
		}
		if number > 1 && rng.Intn(4) == 0 {
			uncles = append(uncles, makeUncle(c.headers[number-2], rng))
		}
		receipts := MakeReceipts(txs, rng)
		withdrawals := makeWithdrawals(uint64(number), rng)

		c.addBlock(makeHeader(uint64(number), parent, txs, uncles, receipts, withdrawals, rng),
			&types.Body{Transactions: txs, Uncles: uncles, Withdrawals: withdrawals},
			receipts)

		for i := 0; i < nodesInBlock; i++ {
			blob := make([]byte, 32+rng.Intn(64))
			rng.Read(blob)
			c.addNode(blob)
		}
	}
	return c, nil
}

func makeHeader(
	number uint64,
	parent common.Hash,
	txs []*types.Transaction,
	uncles []*types.Header,
	receipts types.Receipts,
	withdrawals []*types.Withdrawal,
	rng *rand.Rand,
) *types.Header {
	var gasUsed uint64
	if len(receipts) > 0 {
		gasUsed = receipts[len(receipts)-1].CumulativeGasUsed
	}
	withdrawalsHash := types.DeriveSha(types.Withdrawals(withdrawals), trie.NewStackTrie(nil))
	h := &types.Header{
		ParentHash:      parent,
		UncleHash:       types.CalcUncleHash(uncles),
		TxHash:          types.DeriveSha(types.Transactions(txs), trie.NewStackTrie(nil)),
		ReceiptHash:     types.DeriveSha(receipts, trie.NewStackTrie(nil)),
		Bloom:           types.CreateBloom(receipts),
		Difficulty:      big.NewInt(0),
		Number:          new(big.Int).SetUint64(number),
		GasLimit:        gasLimit,
		GasUsed:         gasUsed,
		Time:            genesisTime + number*blockTime,
		BaseFee:         new(big.Int).Set(baseFee),
		WithdrawalsHash: &withdrawalsHash,
	}
	rng.Read(h.Root[:])
	rng.Read(h.Coinbase[:])
	return h
}

func makeUncle(parent *types.Header, rng *rand.Rand) *types.Header {
	uncle := &types.Header{
		ParentHash:  parent.Hash(),
		UncleHash:   types.EmptyUncleHash,
		TxHash:      types.EmptyTxsHash,
		ReceiptHash: types.EmptyReceiptsHash,
		Difficulty:  big.NewInt(1),
		Number:      new(big.Int).Add(parent.Number, big.NewInt(1)),
		GasLimit:    gasLimit,
		Time:        parent.Time + blockTime,
		Extra:       []byte("uncle"),
	}
	rng.Read(uncle.Root[:])
	return uncle
}

func makeWithdrawals(number uint64, rng *rand.Rand) []*types.Withdrawal {
	withdrawals := make([]*types.Withdrawal, rng.Intn(3))
	for i := range withdrawals {
		w := &types.Withdrawal{
			Index:     number*10 + uint64(i),
			Validator: rng.Uint64() % 1_000_000,
			Amount:    rng.Uint64() % 32_000_000_000,
		}
		rng.Read(w.Address[:])
		withdrawals[i] = w
	}
	return withdrawals
}

func (c *Chain) addBlock(header *types.Header, body *types.Body, receipts types.Receipts) {
	hash := header.Hash()
	c.headers = append(c.headers, header)
	c.byHash[hash] = header
	c.bodies[hash] = body
	c.receipts[hash] = receipts
}

func (c *Chain) addNode(blob []byte) {
	hash := crypto.Keccak256Hash(blob)
	if _, ok := c.nodes[hash]; ok {
		return
	}
	c.nodes[hash] = blob
	c.nodeList = append(c.nodeList, hash)
}

// Len returns the number of blocks.
func (c *Chain) Len() int { return len(c.headers) }

// Head returns the number of the last block.
func (c *Chain) Head() (uint64, bool) {
	return uint64(len(c.headers) - 1), true
}

// Headers returns the headers of blocks from to to inclusive.
func (c *Chain) Headers(from, to uint64) []*types.Header {
	if to >= uint64(len(c.headers)) {
		to = uint64(len(c.headers)) - 1
	}
	if from > to {
		return nil
	}
	return append([]*types.Header(nil), c.headers[from:to+1]...)
}

func (c *Chain) HeaderByNumber(number uint64) *types.Header {
	if number >= uint64(len(c.headers)) {
		return nil
	}
	return c.headers[number]
}

func (c *Chain) HeaderByHash(hash common.Hash) *types.Header { return c.byHash[hash] }

func (c *Chain) Body(hash common.Hash) *types.Body { return c.bodies[hash] }

func (c *Chain) Receipts(hash common.Hash) types.Receipts { return c.receipts[hash] }

func (c *Chain) NodeData(hash common.Hash) []byte { return c.nodes[hash] }

// NodeHashes returns the hashes of all state nodes in generation order.
func (c *Chain) NodeHashes() []common.Hash {
	return append([]common.Hash(nil), c.nodeList...)
}
