package script

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEncodeProgramRoundTrip(t *testing.T) {
	original, err := DecodeProgram([]byte(sampleBundle))
	require.NoError(t, err)

	encoded, err := EncodeProgram(original)
	require.NoError(t, err)

	decoded, err := DecodeProgram(encoded)
	require.NoError(t, err)

	require.Equal(t, original.EntryScript, decoded.EntryScript)
	require.Equal(t, original.DefsInitOrder, decoded.DefsInitOrder)
	require.Len(t, decoded.Scripts, len(original.Scripts))
	for name, sc := range original.Scripts {
		peer := decoded.Scripts[name]
		require.NotNil(t, peer, "script %q lost in round trip", name)
		require.Equal(t, sc.RootGroupID, peer.RootGroupID)
		require.Equal(t, len(sc.Groups), len(peer.Groups))
		for gid, group := range sc.Groups {
			require.Equal(t, group.Nodes, peer.Groups[gid].Nodes, "group %q drifted", gid)
		}
	}
	for name, value := range original.JSONGlobals {
		require.True(t, value.Equal(decoded.JSONGlobals[name]))
	}
}

func TestEncodeProgramRejectsInvalid(t *testing.T) {
	_, err := EncodeProgram(&Program{})
	require.Equal(t, CodeProgramInvalid, ErrorCode(err))
}
