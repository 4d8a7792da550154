package replay_test

import (
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/dedis-lab/bcast/internal/demo/replay"
	"github.com/stretchr/testify/require"
)

func TestStoreAppendPreservesOrder(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "transcript.db")
	store, err := replay.Open(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, store.Close())
	})

	const sessionID = "session-a"
	for i := 0; i < 5; i++ {
		require.NoError(t, store.Append(sessionID, map[string]int{"step": i}))
	}

	entries, err := store.Replay(sessionID)
	require.NoError(t, err)
	require.Len(t, entries, 5)

	for i, raw := range entries {
		var decoded map[string]int
		require.NoError(t, json.Unmarshal(raw, &decoded))
		require.Equal(t, i, decoded["step"])
	}
}

func TestStoreReplayUnknownSessionIsEmpty(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "transcript.db")
	store, err := replay.Open(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, store.Close())
	})

	entries, err := store.Replay("does-not-exist")
	require.NoError(t, err)
	require.Empty(t, entries)
}
