package exchange

import (
	"errors"
	"fmt"
	"time"

	"github.com/tendermint/tm-exchange/types"
)

var (
	errUnsolicitedResponse = errors.New("unsolicited response")
	errInvalidRequest      = errors.New("invalid request")
)

// ErrTimeout is returned when no matching response arrived before the
// deadline. The tracker is not updated; the caller may retry elsewhere.
type ErrTimeout struct {
	Peer    types.NodeID
	Kind    Kind
	Timeout time.Duration
}

func (e ErrTimeout) Error() string {
	return fmt.Sprintf("peer %s: %v request timed out after %v", e.Peer.ShortString(), e.Kind, e.Timeout)
}

// ErrPeerConnectionLost is returned when the peer disconnected, or was never
// connected, while a request was outstanding.
type ErrPeerConnectionLost struct {
	Peer types.NodeID
}

func (e ErrPeerConnectionLost) Error() string {
	return fmt.Sprintf("peer %s: connection lost", e.Peer.ShortString())
}

// ErrValidation is returned when a response failed structural or semantic
// validation. It indicates a protocol violation by the peer.
type ErrValidation struct {
	Peer   types.NodeID
	Kind   Kind
	Reason error
}

func (e ErrValidation) Error() string {
	return fmt.Sprintf("peer %s: invalid %v response: %v", e.Peer.ShortString(), e.Kind, e.Reason)
}

func (e ErrValidation) Unwrap() error { return e.Reason }
