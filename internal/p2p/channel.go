package p2p

import (
	"context"
	"fmt"
	"sync"

	"github.com/tendermint/tm-exchange/internal/eth"
	"github.com/tendermint/tm-exchange/types"
)

// Envelope contains a message with sender/receiver routing info.
type Envelope struct {
	From    types.NodeID // sender (empty if outbound)
	To      types.NodeID // receiver (empty if inbound)
	Message eth.Packet   // message payload
}

// PeerError is a peer error reported by a reactor, typically when a peer sent
// an invalid or malicious message.
type PeerError struct {
	NodeID types.NodeID
	Err    error
}

func (pe PeerError) Error() string { return fmt.Sprintf("peer=%q: %s", pe.NodeID, pe.Err.Error()) }
func (pe PeerError) Unwrap() error { return pe.Err }

// Channel is a bidirectional channel to exchange protocol packets with peers.
// A Channel is safe for concurrent use by multiple goroutines.
type Channel struct {
	inCh  <-chan Envelope  // inbound messages (peers to reactors)
	outCh chan<- Envelope  // outbound messages (reactors to peers)
	errCh chan<- PeerError // peer error reporting

	closeOnce sync.Once
	doneCh    chan struct{}
}

// NewChannel creates a new channel. It is primarily for internal and test
// use, reactors should use the channels handed to them by the transport.
func NewChannel(inCh <-chan Envelope, outCh chan<- Envelope, errCh chan<- PeerError) *Channel {
	return &Channel{
		inCh:   inCh,
		outCh:  outCh,
		errCh:  errCh,
		doneCh: make(chan struct{}),
	}
}

// Send blocks until the envelope is queued for delivery, the context is
// canceled or the channel is closed.
func (ch *Channel) Send(ctx context.Context, envelope Envelope) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-ch.doneCh:
		return ErrChannelClosed
	case ch.outCh <- envelope:
		return nil
	}
}

// SendError blocks until the given error has been sent to the transport, the
// context is canceled or the channel is closed.
func (ch *Channel) SendError(ctx context.Context, pe PeerError) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-ch.doneCh:
		return ErrChannelClosed
	case ch.errCh <- pe:
		return nil
	}
}

// Receive returns a new unbuffered iterator to receive messages from ch.
// The iterator runs until ctx ends or the channel is closed.
func (ch *Channel) Receive(ctx context.Context) *ChannelIterator {
	iter := &ChannelIterator{
		pipe: make(chan Envelope), // unbuffered
	}
	go func() {
		defer close(iter.pipe)
		for {
			select {
			case <-ctx.Done():
				return
			case <-ch.doneCh:
				return
			case envelope, ok := <-ch.inCh:
				if !ok {
					return
				}
				select {
				case <-ctx.Done():
					return
				case <-ch.doneCh:
					return
				case iter.pipe <- envelope:
				}
			}
		}
	}()

	return iter
}

// Close marks the channel as done. Pending and future sends return
// ErrChannelClosed and receive iterators terminate. The underlying Go
// channels are owned by the transport and are never closed here.
func (ch *Channel) Close() {
	ch.closeOnce.Do(func() { close(ch.doneCh) })
}

// Done returns a channel that is closed once the Channel is closed.
func (ch *Channel) Done() <-chan struct{} {
	return ch.doneCh
}

// ChannelIterator provides a context-aware path for callers
// (reactors) to process messages from the P2P layer without relying
// on the implementation details of the P2P layer. Channel provides
// access to a ChannelIterator through the Receive method.
type ChannelIterator struct {
	pipe    chan Envelope
	current *Envelope
}

// Next returns true when the Envelope value has advanced, and false
// when the context is canceled or iteration should stop. If an iterator has returned false,
// it will never return true again.
// in general, use Next, as in:
//
//	for iter.Next(ctx) {
//	     envelope := iter.Envelope()
//	     // ... do things ...
//	}
func (iter *ChannelIterator) Next(ctx context.Context) bool {
	select {
	case <-ctx.Done():
		iter.current = nil
		return false
	case envelope, ok := <-iter.pipe:
		if !ok {
			iter.current = nil
			return false
		}

		iter.current = &envelope

		return true
	}
}

// Envelope returns the current Envelope object held by the
// iterator. When the last call to Next returned true, Envelope will
// return a non-nil object. If Next returned false then Envelope is
// always nil.
func (iter *ChannelIterator) Envelope() *Envelope { return iter.current }
