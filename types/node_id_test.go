package types

import (
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/require"
)

func TestNodeIDFromPubKey(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)

	id := NodeIDFromPubKey(&key.PublicKey)
	require.NoError(t, id.Validate())

	bz, err := id.Bytes()
	require.NoError(t, err)
	require.Len(t, bz, NodeIDByteLength)
	require.Equal(t, string(id[:8]), id.ShortString())
}

func TestNewNodeID(t *testing.T) {
	testCases := []struct {
		name  string
		input string
		ok    bool
	}{
		{"empty", "", false},
		{"too short", "00ff", false},
		{"non hex", strings.Repeat("zz", NodeIDByteLength), false},
		{"upper case normalized", strings.Repeat("AB", NodeIDByteLength), true},
		{"valid", strings.Repeat("0a", NodeIDByteLength), true},
	}
	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			id, err := NewNodeID(tc.input)
			if !tc.ok {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.Equal(t, strings.ToLower(tc.input), string(id))
		})
	}
}
