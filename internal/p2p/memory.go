package p2p

import (
	"sync"
	"time"

	pool "github.com/libp2p/go-buffer-pool"

	"github.com/tendermint/tm-exchange/internal/eth"
	"github.com/tendermint/tm-exchange/libs/log"
	"github.com/tendermint/tm-exchange/types"
)

// MemoryNetwork is an in-memory network of nodes exchanging protocol packets,
// used for testing and simulation. Packets are RLP encoded on send and decoded
// on delivery, so receivers never share memory with senders.
type MemoryNetwork struct {
	logger     log.Logger
	bufferSize int

	mtx     sync.RWMutex
	nodes   map[types.NodeID]*MemoryNode
	links   map[link]struct{}
	latency func(from, to types.NodeID) time.Duration

	wg        sync.WaitGroup
	closeOnce sync.Once
	closeCh   chan struct{}
}

// MemoryNode is a node attached to a MemoryNetwork. Its Channel and
// PeerUpdates are what a reactor consumes.
type MemoryNode struct {
	NodeID      types.NodeID
	Channel     *Channel
	PeerUpdates *PeerUpdates

	inCh      chan Envelope
	outCh     chan Envelope
	errCh     chan PeerError
	updatesCh chan PeerUpdate

	mtx        sync.Mutex
	peerErrors []PeerError
}

// link is an undirected connection between two nodes, with a < b.
type link struct{ a, b types.NodeID }

func newLink(x, y types.NodeID) link {
	if x > y {
		x, y = y, x
	}
	return link{a: x, b: y}
}

// NewMemoryNetwork creates a new in-memory network. bufferSize is the
// capacity of each node's inbound, outbound and update queues.
func NewMemoryNetwork(logger log.Logger, bufferSize int) *MemoryNetwork {
	return &MemoryNetwork{
		logger:     logger,
		bufferSize: bufferSize,
		nodes:      make(map[types.NodeID]*MemoryNode),
		links:      make(map[link]struct{}),
		closeCh:    make(chan struct{}),
	}
}

// SetLatency installs a function returning the one-way delivery delay between
// two nodes. A nil function or non-positive delay delivers immediately.
func (n *MemoryNetwork) SetLatency(fn func(from, to types.NodeID) time.Duration) {
	n.mtx.Lock()
	defer n.mtx.Unlock()
	n.latency = fn
}

// AddNode attaches a new node and starts routing its outbound messages.
func (n *MemoryNetwork) AddNode(id types.NodeID) *MemoryNode {
	node := &MemoryNode{
		NodeID:    id,
		inCh:      make(chan Envelope, n.bufferSize),
		outCh:     make(chan Envelope, n.bufferSize),
		errCh:     make(chan PeerError, n.bufferSize),
		updatesCh: make(chan PeerUpdate, n.bufferSize),
	}
	node.Channel = NewChannel(node.inCh, node.outCh, node.errCh)
	node.PeerUpdates = NewPeerUpdates(node.updatesCh)

	n.mtx.Lock()
	n.nodes[id] = node
	n.mtx.Unlock()

	n.wg.Add(1)
	go n.route(node)

	return node
}

// Connect links two nodes and notifies both of the new peer.
func (n *MemoryNetwork) Connect(a, b types.NodeID) {
	n.mtx.Lock()
	nodeA, nodeB := n.nodes[a], n.nodes[b]
	if nodeA == nil || nodeB == nil {
		n.mtx.Unlock()
		return
	}
	n.links[newLink(a, b)] = struct{}{}
	n.mtx.Unlock()

	n.publish(nodeA, PeerUpdate{NodeID: b, Status: PeerStatusUp})
	n.publish(nodeB, PeerUpdate{NodeID: a, Status: PeerStatusUp})
}

// Disconnect removes the link between two nodes and notifies both. Messages
// already in flight are still delivered.
func (n *MemoryNetwork) Disconnect(a, b types.NodeID) {
	n.mtx.Lock()
	l := newLink(a, b)
	if _, ok := n.links[l]; !ok {
		n.mtx.Unlock()
		return
	}
	delete(n.links, l)
	nodeA, nodeB := n.nodes[a], n.nodes[b]
	n.mtx.Unlock()

	n.publish(nodeA, PeerUpdate{NodeID: b, Status: PeerStatusDown})
	n.publish(nodeB, PeerUpdate{NodeID: a, Status: PeerStatusDown})
}

// Close stops all routing and waits for in-flight deliveries to finish.
func (n *MemoryNetwork) Close() {
	n.closeOnce.Do(func() { close(n.closeCh) })
	n.wg.Wait()
}

func (n *MemoryNetwork) publish(node *MemoryNode, update PeerUpdate) {
	if node == nil {
		return
	}
	select {
	case node.updatesCh <- update:
	case <-node.PeerUpdates.Done():
	case <-n.closeCh:
	}
}

func (n *MemoryNetwork) route(node *MemoryNode) {
	defer n.wg.Done()

	for {
		select {
		case <-n.closeCh:
			return

		case envelope := <-node.outCh:
			n.deliver(node.NodeID, envelope)

		case pe := <-node.errCh:
			n.logger.Info("peer error reported", "node", node.NodeID.ShortString(), "peer", pe.NodeID.ShortString(), "err", pe.Err)
			node.mtx.Lock()
			node.peerErrors = append(node.peerErrors, pe)
			node.mtx.Unlock()
		}
	}
}

func (n *MemoryNetwork) deliver(from types.NodeID, envelope Envelope) {
	n.mtx.RLock()
	target := n.nodes[envelope.To]
	_, linked := n.links[newLink(from, envelope.To)]
	var latency time.Duration
	if n.latency != nil {
		latency = n.latency(from, envelope.To)
	}
	n.mtx.RUnlock()

	if target == nil || !linked {
		n.logger.Debug("dropping message", "from", from.ShortString(), "to", envelope.To.ShortString(), "err", ErrPeerNotConnected)
		return
	}

	// the frame lives in pooled memory until the receiver has decoded it
	frame := new(pool.Buffer)
	code, err := eth.EncodeTo(frame, envelope.Message)
	if err != nil {
		frame.Reset()
		n.logger.Error("failed to encode message", "from", from.ShortString(), "err", err)
		return
	}

	send := func() {
		msg, err := eth.Decode(code, frame.Bytes())
		frame.Reset()
		if err != nil {
			n.logger.Error("failed to decode message", "from", from.ShortString(), "err", err)
			return
		}

		select {
		case target.inCh <- Envelope{From: from, Message: msg}:
		case <-target.Channel.Done():
		case <-n.closeCh:
		}
	}

	if latency <= 0 {
		send()
		return
	}

	n.wg.Add(1)
	time.AfterFunc(latency, func() {
		defer n.wg.Done()
		send()
	})
}

// PeerErrors returns the peer errors this node's reactors have reported.
func (node *MemoryNode) PeerErrors() []PeerError {
	node.mtx.Lock()
	defer node.mtx.Unlock()
	return append([]PeerError(nil), node.peerErrors...)
}
