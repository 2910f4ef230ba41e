package eth

import (
	"bytes"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/rlp"
	pool "github.com/libp2p/go-buffer-pool"
	"github.com/stretchr/testify/require"
)

func TestHashOrNumberEncoding(t *testing.T) {
	testCases := []struct {
		name   string
		origin HashOrNumber
		ok     bool
	}{
		{"number", ByNumber(314), true},
		{"zero number", ByNumber(0), true},
		{"max number", ByNumber(^uint64(0)), true},
		{"hash", ByHash(common.HexToHash("0xdeadbeef")), true},
		{"both", HashOrNumber{Hash: common.HexToHash("0x01"), Number: 1}, false},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			bz, err := rlp.EncodeToBytes(&tc.origin)
			if !tc.ok {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)

			var decoded HashOrNumber
			require.NoError(t, rlp.DecodeBytes(bz, &decoded))
			require.Equal(t, tc.origin, decoded)
			require.Equal(t, tc.origin.IsHash(), decoded.IsHash())
		})
	}
}

func TestHashOrNumberRejectsBadSize(t *testing.T) {
	bz, err := rlp.EncodeToBytes(bytes.Repeat([]byte{0xff}, 16))
	require.NoError(t, err)

	var decoded HashOrNumber
	require.Error(t, rlp.DecodeBytes(bz, &decoded))
}

func TestCodecPreservesRequestIDAndContent(t *testing.T) {
	header := &types.Header{Number: big.NewInt(7), Difficulty: big.NewInt(1), Extra: []byte("x")}

	packets := []Packet{
		&GetBlockHeadersPacket{RequestID: 1, Query: &HeaderQuery{Origin: ByNumber(7), Amount: 3, Skip: 1, Reverse: true}},
		&BlockHeadersPacket{RequestID: 2, Headers: []*types.Header{header}},
		&GetNodeDataPacket{RequestID: 3, Hashes: []common.Hash{{0x01}, {0x02}}},
		&NodeDataPacket{RequestID: 4, Data: [][]byte{{0x01, 0x02}, {}}},
		&GetReceiptsPacket{RequestID: 5, Hashes: []common.Hash{header.Hash()}},
		&ReceiptsPacket{RequestID: 6, Receipts: [][]*types.Receipt{{}}},
		&GetBlockBodiesPacket{RequestID: 7, Hashes: []common.Hash{header.Hash()}},
		&BlockBodiesPacket{RequestID: 8, Bodies: []*types.Body{{}}},
	}

	for _, p := range packets {
		code, payload, err := Encode(p)
		require.NoError(t, err)
		require.Equal(t, p.Code(), code)

		decoded, err := Decode(code, payload)
		require.NoError(t, err)
		require.Equal(t, p.ID(), decoded.ID())
		require.Equal(t, p.Code(), decoded.Code())
	}

	code, payload, err := Encode(packets[1])
	require.NoError(t, err)
	decoded, err := Decode(code, payload)
	require.NoError(t, err)
	require.Equal(t, header.Hash(), decoded.(*BlockHeadersPacket).Headers[0].Hash())
}

func TestEncodeTo(t *testing.T) {
	packet := &GetNodeDataPacket{RequestID: 9, Hashes: []common.Hash{{0x01}}}
	_, want, err := Encode(packet)
	require.NoError(t, err)

	buf := new(pool.Buffer)
	defer buf.Reset()
	_, err = buf.Write([]byte{0xaa})
	require.NoError(t, err)

	code, err := EncodeTo(buf, packet)
	require.NoError(t, err)
	require.Equal(t, uint64(GetNodeDataMsg), code)
	require.Equal(t, append([]byte{0xaa}, want...), buf.Bytes())

	// the list header pushes the payload over the limit
	_, err = EncodeTo(new(bytes.Buffer), &NodeDataPacket{Data: [][]byte{make([]byte, maxMessageSize)}})
	require.ErrorIs(t, err, errMsgTooLarge)
}

func TestDecodeErrors(t *testing.T) {
	_, err := Decode(0x42, []byte{0xc0})
	require.ErrorIs(t, err, errUnknownMsgCode)

	_, err = Decode(NodeDataMsg, []byte{0x01})
	require.Error(t, err)

	_, err = Decode(NodeDataMsg, make([]byte, maxMessageSize+1))
	require.ErrorIs(t, err, errMsgTooLarge)
}

func TestResponseCodes(t *testing.T) {
	for req, resp := range map[uint64]uint64{
		GetBlockHeadersMsg: BlockHeadersMsg,
		GetBlockBodiesMsg:  BlockBodiesMsg,
		GetReceiptsMsg:     ReceiptsMsg,
		GetNodeDataMsg:     NodeDataMsg,
	} {
		got, ok := ResponseCode(req)
		require.True(t, ok)
		require.Equal(t, resp, got)
		require.True(t, IsResponse(resp))
		require.False(t, IsResponse(req))
	}
	_, ok := ResponseCode(BlockHeadersMsg)
	require.False(t, ok)
}
