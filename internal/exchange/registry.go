package exchange

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/tendermint/tm-exchange/internal/eth"
	"github.com/tendermint/tm-exchange/types"
)

// delivery is the terminal event of a waiter: either a response packet or
// the error that ended the wait.
type delivery struct {
	packet   eth.Packet
	received time.Time
	err      error
}

// waiter is a pending expectation of one response from one peer.
type waiter struct {
	peer      types.NodeID
	kind      Kind
	requestID uint64
	issued    time.Time
	deadline  time.Time

	// buffered so the registry never blocks while holding a peer lock
	doneCh chan delivery
}

type peerWaiters struct {
	mtx    sync.Mutex
	closed bool
	queues [numKinds][]*waiter
}

func (p *peerWaiters) remove(w *waiter) bool {
	queue := p.queues[w.kind]
	for i, other := range queue {
		if other == w {
			p.queues[w.kind] = append(queue[:i:i], queue[i+1:]...)
			return true
		}
	}
	return false
}

// Registry matches inbound responses to pending waiters. A response goes to
// the oldest waiter of the same peer and kind whose request id equals the
// response's, so with request ids disabled (id 0) matching is first in,
// first out. Every waiter leaves the registry exactly once: on delivery, on
// peer loss or through Cancel.
type Registry struct {
	peers   sync.Map // types.NodeID -> *peerWaiters
	pending int64
}

func NewRegistry() *Registry {
	return &Registry{}
}

// AddPeer allows waiters to be registered for peer.
func (r *Registry) AddPeer(peer types.NodeID) {
	r.peers.LoadOrStore(peer, &peerWaiters{})
}

// HasPeer reports whether peer is connected.
func (r *Registry) HasPeer(peer types.NodeID) bool {
	_, ok := r.peers.Load(peer)
	return ok
}

// RemovePeer fails every waiter of peer with ErrPeerConnectionLost and
// returns how many there were.
func (r *Registry) RemovePeer(peer types.NodeID) int {
	v, ok := r.peers.LoadAndDelete(peer)
	if !ok {
		return 0
	}
	p := v.(*peerWaiters)

	p.mtx.Lock()
	defer p.mtx.Unlock()

	p.closed = true
	n := 0
	for kind := range p.queues {
		for _, w := range p.queues[kind] {
			w.doneCh <- delivery{err: ErrPeerConnectionLost{Peer: peer}}
			n++
		}
		p.queues[kind] = nil
	}
	atomic.AddInt64(&r.pending, -int64(n))
	return n
}

// RemoveAll removes every peer, failing all waiters.
func (r *Registry) RemoveAll() int {
	n := 0
	r.peers.Range(func(key, _ interface{}) bool {
		n += r.RemovePeer(key.(types.NodeID))
		return true
	})
	return n
}

// Register adds a waiter for a response of the given kind. It fails with
// ErrPeerConnectionLost if peer is not connected.
func (r *Registry) Register(peer types.NodeID, kind Kind, requestID uint64, issued, deadline time.Time) (*waiter, error) {
	v, ok := r.peers.Load(peer)
	if !ok {
		return nil, ErrPeerConnectionLost{Peer: peer}
	}
	p := v.(*peerWaiters)

	p.mtx.Lock()
	defer p.mtx.Unlock()

	if p.closed {
		return nil, ErrPeerConnectionLost{Peer: peer}
	}
	w := &waiter{
		peer:      peer,
		kind:      kind,
		requestID: requestID,
		issued:    issued,
		deadline:  deadline,
		doneCh:    make(chan delivery, 1),
	}
	p.queues[kind] = append(p.queues[kind], w)
	atomic.AddInt64(&r.pending, 1)
	return w, nil
}

// Deliver hands a response packet from peer to its waiter. It returns
// errUnsolicitedResponse if no waiter matches.
func (r *Registry) Deliver(peer types.NodeID, packet eth.Packet, received time.Time) error {
	kind, ok := kindOfResponse(packet.Code())
	if !ok {
		return errUnsolicitedResponse
	}
	v, ok := r.peers.Load(peer)
	if !ok {
		return errUnsolicitedResponse
	}
	p := v.(*peerWaiters)

	p.mtx.Lock()
	defer p.mtx.Unlock()

	for _, w := range p.queues[kind] {
		if w.requestID != packet.ID() {
			continue
		}
		p.remove(w)
		atomic.AddInt64(&r.pending, -1)
		w.doneCh <- delivery{packet: packet, received: received}
		return nil
	}
	return errUnsolicitedResponse
}

// Cancel removes w if it is still pending. If it returns false the waiter
// already received its terminal delivery, which can be read from w.doneCh
// without blocking.
func (r *Registry) Cancel(w *waiter) bool {
	v, ok := r.peers.Load(w.peer)
	if !ok {
		return false
	}
	p := v.(*peerWaiters)

	p.mtx.Lock()
	defer p.mtx.Unlock()

	if !p.remove(w) {
		return false
	}
	atomic.AddInt64(&r.pending, -1)
	return true
}

// Len returns the number of pending waiters.
func (r *Registry) Len() int {
	return int(atomic.LoadInt64(&r.pending))
}
