package p2p

import (
	"sync"

	"github.com/tendermint/tm-exchange/types"
)

// PeerStatus is a peer status.
type PeerStatus string

const (
	PeerStatusUp   PeerStatus = "up"   // connected and ready
	PeerStatusDown PeerStatus = "down" // disconnected
)

// PeerUpdate is a peer update event sent via PeerUpdates.
type PeerUpdate struct {
	NodeID types.NodeID
	Status PeerStatus
}

// PeerUpdates is a peer update subscription with notifications about peer
// connections and disconnections. The transport owns the underlying Go
// channel; the subscriber must call Close() when done.
type PeerUpdates struct {
	updatesCh chan PeerUpdate

	closeOnce sync.Once
	doneCh    chan struct{}
}

// NewPeerUpdates creates a new PeerUpdates subscription.
func NewPeerUpdates(updatesCh chan PeerUpdate) *PeerUpdates {
	return &PeerUpdates{
		updatesCh: updatesCh,
		doneCh:    make(chan struct{}),
	}
}

// Updates returns a channel for consuming peer updates.
func (pu *PeerUpdates) Updates() <-chan PeerUpdate {
	return pu.updatesCh
}

// Close closes the peer updates subscription.
func (pu *PeerUpdates) Close() {
	pu.closeOnce.Do(func() { close(pu.doneCh) })
}

// Done returns a channel that is closed when the subscription is closed.
func (pu *PeerUpdates) Done() <-chan struct{} {
	return pu.doneCh
}
