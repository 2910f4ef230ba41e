package eth

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/ethereum/go-ethereum/rlp"
)

var (
	errMsgTooLarge    = errors.New("message too long")
	errUnknownMsgCode = errors.New("unknown message code")
)

// Buffer is what EncodeTo writes to, e.g. a bytes.Buffer or a pooled buffer.
type Buffer interface {
	io.Writer
	Len() int
}

// EncodeTo appends the RLP payload of p to buf and returns the message code.
func EncodeTo(buf Buffer, p Packet) (uint64, error) {
	start := buf.Len()
	if err := rlp.Encode(buf, p); err != nil {
		return 0, fmt.Errorf("encoding %T: %w", p, err)
	}
	if size := buf.Len() - start; size > maxMessageSize {
		return 0, fmt.Errorf("%w: %v > %v", errMsgTooLarge, size, maxMessageSize)
	}
	return p.Code(), nil
}

// Encode returns the message code and RLP payload of p.
func Encode(p Packet) (uint64, []byte, error) {
	var buf bytes.Buffer
	code, err := EncodeTo(&buf, p)
	if err != nil {
		return 0, nil, err
	}
	return code, buf.Bytes(), nil
}

// Decode parses an RLP payload received with the given message code.
func Decode(code uint64, payload []byte) (Packet, error) {
	if len(payload) > maxMessageSize {
		return nil, fmt.Errorf("%w: %v > %v", errMsgTooLarge, len(payload), maxMessageSize)
	}

	var p Packet
	switch code {
	case GetBlockHeadersMsg:
		p = new(GetBlockHeadersPacket)
	case BlockHeadersMsg:
		p = new(BlockHeadersPacket)
	case GetBlockBodiesMsg:
		p = new(GetBlockBodiesPacket)
	case BlockBodiesMsg:
		p = new(BlockBodiesPacket)
	case GetReceiptsMsg:
		p = new(GetReceiptsPacket)
	case ReceiptsMsg:
		p = new(ReceiptsPacket)
	case GetNodeDataMsg:
		p = new(GetNodeDataPacket)
	case NodeDataMsg:
		p = new(NodeDataPacket)
	default:
		return nil, fmt.Errorf("%w: %#x", errUnknownMsgCode, code)
	}

	if err := rlp.DecodeBytes(payload, p); err != nil {
		return nil, fmt.Errorf("decoding %T: %w", p, err)
	}
	return p, nil
}
