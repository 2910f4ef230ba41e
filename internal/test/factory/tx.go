package factory

import (
	"crypto/ecdsa"
	"math/big"
	"math/rand"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

const txGas = 21000

var txGasPrice = big.NewInt(1_000_000_000)

// MakeTxs returns n signed value transfers from key, starting at nonce.
func MakeTxs(key *ecdsa.PrivateKey, nonce uint64, n int, rng *rand.Rand) ([]*types.Transaction, error) {
	txs := make([]*types.Transaction, n)
	for i := range txs {
		var to common.Address
		rng.Read(to[:])
		tx := types.NewTx(&types.LegacyTx{
			Nonce:    nonce + uint64(i),
			GasPrice: txGasPrice,
			Gas:      txGas,
			To:       &to,
			Value:    big.NewInt(rng.Int63n(1_000_000_000_000)),
		})
		signed, err := types.SignTx(tx, types.HomesteadSigner{}, key)
		if err != nil {
			return nil, err
		}
		txs[i] = signed
	}
	return txs, nil
}

// MakeReceipts returns successful receipts for txs. Every other receipt
// carries a log so that the blooms are not all empty.
func MakeReceipts(txs []*types.Transaction, rng *rand.Rand) types.Receipts {
	receipts := make(types.Receipts, len(txs))
	var cumulative uint64
	for i, tx := range txs {
		cumulative += tx.Gas()
		r := &types.Receipt{
			Type:              types.LegacyTxType,
			Status:            types.ReceiptStatusSuccessful,
			CumulativeGasUsed: cumulative,
			Logs:              []*types.Log{},
		}
		if i%2 == 0 {
			var topic common.Hash
			rng.Read(topic[:])
			r.Logs = append(r.Logs, &types.Log{
				Address: *tx.To(),
				Topics:  []common.Hash{topic},
				Data:    []byte{byte(i)},
			})
		}
		r.Bloom = types.CreateBloom(types.Receipts{r})
		receipts[i] = r
	}
	return receipts
}
