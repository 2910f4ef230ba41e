package p2p

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/fortytw2/leaktest"
	"github.com/stretchr/testify/require"

	"github.com/tendermint/tm-exchange/internal/eth"
	"github.com/tendermint/tm-exchange/libs/log"
	"github.com/tendermint/tm-exchange/types"
)

func testNodeID(c string) types.NodeID {
	return types.NodeID(strings.Repeat(c, 2*types.NodeIDByteLength))
}

func requireUpdate(t *testing.T, node *MemoryNode, expect PeerUpdate) {
	t.Helper()
	select {
	case update := <-node.PeerUpdates.Updates():
		require.Equal(t, expect, update)
	case <-time.After(time.Second):
		t.Fatalf("timed out waiting for %v", expect)
	}
}

func requireEnvelope(t *testing.T, node *MemoryNode) Envelope {
	t.Helper()
	select {
	case envelope := <-node.inCh:
		return envelope
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for message")
	}
	return Envelope{}
}

func TestMemoryNetworkDeliversDecodedCopies(t *testing.T) {
	t.Cleanup(leaktest.Check(t))

	network := NewMemoryNetwork(log.NewTestingLogger(t), 16)
	defer network.Close()

	a, b := network.AddNode(testNodeID("a")), network.AddNode(testNodeID("b"))
	network.Connect(a.NodeID, b.NodeID)
	requireUpdate(t, a, PeerUpdate{NodeID: b.NodeID, Status: PeerStatusUp})
	requireUpdate(t, b, PeerUpdate{NodeID: a.NodeID, Status: PeerStatusUp})

	blob := []byte{0x01, 0x02, 0x03}
	msg := &eth.NodeDataPacket{RequestID: 9, Data: [][]byte{blob}}
	require.NoError(t, a.Channel.Send(ctx(t), Envelope{To: b.NodeID, Message: msg}))

	envelope := requireEnvelope(t, b)
	require.Equal(t, a.NodeID, envelope.From)
	received, ok := envelope.Message.(*eth.NodeDataPacket)
	require.True(t, ok)
	require.Equal(t, uint64(9), received.RequestID)
	require.Equal(t, blob, received.Data[0])

	blob[0] = 0xff
	require.Equal(t, byte(0x01), received.Data[0][0])
}

func TestMemoryNetworkDropsUnlinked(t *testing.T) {
	t.Cleanup(leaktest.Check(t))

	network := NewMemoryNetwork(log.NewTestingLogger(t), 16)
	defer network.Close()

	a, b := network.AddNode(testNodeID("a")), network.AddNode(testNodeID("b"))
	network.Connect(a.NodeID, b.NodeID)
	requireUpdate(t, a, PeerUpdate{NodeID: b.NodeID, Status: PeerStatusUp})
	requireUpdate(t, b, PeerUpdate{NodeID: a.NodeID, Status: PeerStatusUp})

	network.Disconnect(a.NodeID, b.NodeID)
	requireUpdate(t, a, PeerUpdate{NodeID: b.NodeID, Status: PeerStatusDown})
	requireUpdate(t, b, PeerUpdate{NodeID: a.NodeID, Status: PeerStatusDown})

	msg := &eth.GetNodeDataPacket{RequestID: 1, Hashes: []common.Hash{{0x01}}}
	require.NoError(t, a.Channel.Send(ctx(t), Envelope{To: b.NodeID, Message: msg}))

	select {
	case envelope := <-b.inCh:
		t.Fatalf("unexpected delivery %v", envelope)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestMemoryNetworkLatency(t *testing.T) {
	t.Cleanup(leaktest.Check(t))

	network := NewMemoryNetwork(log.NewTestingLogger(t), 16)
	defer network.Close()

	const delay = 50 * time.Millisecond
	network.SetLatency(func(from, to types.NodeID) time.Duration { return delay })

	a, b := network.AddNode(testNodeID("a")), network.AddNode(testNodeID("b"))
	network.Connect(a.NodeID, b.NodeID)

	start := time.Now()
	require.NoError(t, a.Channel.Send(ctx(t), Envelope{To: b.NodeID, Message: &eth.NodeDataPacket{}}))
	requireEnvelope(t, b)
	require.GreaterOrEqual(t, time.Since(start), delay)
}

func TestMemoryNetworkRecordsPeerErrors(t *testing.T) {
	t.Cleanup(leaktest.Check(t))

	network := NewMemoryNetwork(log.NewTestingLogger(t), 16)
	defer network.Close()

	a := network.AddNode(testNodeID("a"))
	pe := PeerError{NodeID: testNodeID("b"), Err: errors.New("bad headers")}
	require.NoError(t, a.Channel.SendError(ctx(t), pe))

	require.Eventually(t, func() bool { return len(a.PeerErrors()) == 1 }, time.Second, 5*time.Millisecond)
	require.Equal(t, pe, a.PeerErrors()[0])
}
