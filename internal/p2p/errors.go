package p2p

import "errors"

var (
	// ErrChannelClosed is returned by sends on a closed Channel.
	ErrChannelClosed = errors.New("channel closed")

	// ErrPeerNotConnected is returned when routing to a node that has no
	// link to the sender.
	ErrPeerNotConnected = errors.New("peer not connected")
)
