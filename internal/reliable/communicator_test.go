package reliable

import (
	"context"
	"testing"
	"time"

	"github.com/dedis-lab/bcast/common/testlogger"
	"github.com/dedis-lab/bcast/internal/hub"
	"github.com/stretchr/testify/require"
)

func startAll[T comparable](ctx context.Context, h *Hub[T]) {
	for _, c := range h.All() {
		c.Start(ctx)
	}
}

func TestReliableBroadcastDeliversToAllFourParticipants(t *testing.T) {
	l := testlogger.New(t)
	h := NewHub[string](4, hub.WithLogger(l))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	startAll(ctx, h)

	h.Communicator(0).Broadcast("value", 0, 0)

	recvCtx, recvCancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer recvCancel()

	for id := uint32(0); id < 4; id++ {
		m, ok := h.Communicator(id).Recv(recvCtx, nil, 0, 0)
		require.True(t, ok, "participant %d failed to deliver", id)
		require.Equal(t, "value", m.Payload)
		require.Equal(t, uint32(0), m.SenderID)
	}
}

// TestReliableBroadcastSingleParticipantNeverDelivers documents the N=1
// degenerate case of the V=N-f+1 threshold (see DESIGN.md): Thresholds(1)
// yields V=2, but a lone participant can only ever produce one Echo for an
// instance - its own, emitted on Input - and the echo-amplification branch
// is dead once echoed is already set. Echo count is capped at 1, one short
// of V, so the Vote phase is never entered and the broadcast never
// delivers, even to its own sender.
func TestReliableBroadcastSingleParticipantNeverDelivers(t *testing.T) {
	l := testlogger.New(t)
	h := NewHub[string](1, hub.WithLogger(l))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	startAll(ctx, h)

	h.Communicator(0).Broadcast("solo", 0, 0)

	recvCtx, recvCancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer recvCancel()
	_, ok := h.Communicator(0).Recv(recvCtx, nil, 0, 0)
	require.False(t, ok, "delivery should not occur with echoes capped at 1 below V=2")
}

// TestReliableBroadcastWithOneSilentParticipantDoesNotDeliver documents the
// liveness consequence of the V=N-f+1 threshold (see DESIGN.md): with N=4
// (f=1, V=4, A=2), a single participant that never starts means echoes can
// never exceed 3, one short of V, so the remaining three correct
// participants never cross the validity threshold and never deliver.
func TestReliableBroadcastWithOneSilentParticipantDoesNotDeliver(t *testing.T) {
	l := testlogger.New(t)
	h := NewHub[string](4, hub.WithLogger(l))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	const silent = uint32(3)
	for id := uint32(0); id < 4; id++ {
		if id == silent {
			continue
		}
		h.Communicator(id).Start(ctx)
	}

	h.Communicator(0).Broadcast("quorum", 0, 0)

	recvCtx, recvCancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer recvCancel()

	_, ok := h.Communicator(1).Recv(recvCtx, nil, 0, 0)
	require.False(t, ok, "delivery should not occur once echoes are capped below V by a silent participant")
}

func TestThresholdsMatchSpecFormula(t *testing.T) {
	v, a := Thresholds(4)
	require.Equal(t, uint32(4), v)
	require.Equal(t, uint32(2), a)

	v, a = Thresholds(7)
	require.Equal(t, uint32(6), v)
	require.Equal(t, uint32(3), a)
}
