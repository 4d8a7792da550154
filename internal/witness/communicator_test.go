package witness

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/dedis-lab/bcast/common/testlogger"
	"github.com/dedis-lab/bcast/internal/framing"
	"github.com/dedis-lab/bcast/internal/hub"
	"github.com/stretchr/testify/require"
)

// valueFor gives every participant in these tests its own tagged string, so
// a sender-index mixup in promotion or delivery would surface as a missing
// or misattributed payload rather than just a wrong count.
func valueFor(id uint32) string {
	return fmt.Sprintf("value-from-%d", id)
}

// requireAllValuesFrom asserts that messages contains exactly one message
// per participant 0..n-1, each carrying that participant's own tagged
// value - not merely n messages of some value.
func requireAllValuesFrom(t *testing.T, n uint32, messages []framing.Message[string]) {
	t.Helper()
	require.Equal(t, int(n), len(messages))
	bySender := make(map[uint32]string, len(messages))
	for _, m := range messages {
		bySender[m.SenderID] = m.Payload
	}
	for id := uint32(0); id < n; id++ {
		require.Equal(t, valueFor(id), bySender[id], "sender %d's value missing or mismatched", id)
	}
}

func startAll[T comparable](ctx context.Context, h *Hub[T]) {
	for _, c := range h.All() {
		c.Start(ctx)
	}
}

// TestWitnessBroadcastDeliversWitnessToEveryParticipant: every participant
// broadcasts its own value, and once enough
// values and reports have crossed the validity threshold, every participant
// receives a Witness containing the full set of values.
func TestWitnessBroadcastDeliversWitnessToEveryParticipant(t *testing.T) {
	l := testlogger.New(t)
	const n = 4
	h := NewHub[string](n, framing.ProtocolWitness, hub.WithLogger(l))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	startAll(ctx, h)

	for id := uint32(0); id < n; id++ {
		h.Communicator(id).Broadcast(valueFor(id), 0)
	}

	recvCtx, recvCancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer recvCancel()

	for id := uint32(0); id < n; id++ {
		report, ok := h.Communicator(id).RecvWitness(recvCtx, 0)
		require.True(t, ok, "participant %d failed to receive a witness", id)
		require.Equal(t, framing.ReportKindWitness, report.Kind)
		requireAllValuesFrom(t, n, report.Messages)
	}
}

// TestAggregatedWitnessBroadcastDeliversToEveryParticipant: in an
// aggregated-witness hub, once each participant's witness count crosses the
// validity threshold it broadcasts its witness set as an AggregatedReport
// instead of emitting a terminal witness; the terminal output arrives only
// after enough aggregated reports have been promoted, and carries the
// original values.
func TestAggregatedWitnessBroadcastDeliversToEveryParticipant(t *testing.T) {
	l := testlogger.New(t)
	const n = 4
	h := NewHub[string](n, framing.ProtocolAggregatedWitness, hub.WithLogger(l))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	startAll(ctx, h)

	for id := uint32(0); id < n; id++ {
		h.Communicator(id).Broadcast(valueFor(id), 0)
	}

	recvCtx, recvCancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer recvCancel()

	for id := uint32(0); id < n; id++ {
		report, ok := h.Communicator(id).RecvAggregatedWitness(recvCtx, 0)
		require.True(t, ok, "participant %d failed to receive an aggregated witness", id)
		require.Equal(t, framing.ReportKindWitness, report.Kind)
		requireAllValuesFrom(t, n, report.Messages)
	}
}

// TestAggregatedReportOnWitnessChannelIsFatal: a plain-witness Communicator
// handed an AggregatedReport aborts its round-processing loop and reports
// the abort on Err, rather than silently accepting content its protocol
// never produces.
func TestAggregatedReportOnWitnessChannelIsFatal(t *testing.T) {
	l := testlogger.New(t)
	h := NewHub[string](4, framing.ProtocolWitness, hub.WithLogger(l))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	c := h.Communicator(0)
	c.Start(ctx)

	c.Deliver(framing.AggregatedReportContent(framing.AggregatedReport[string]{
		Kind:     framing.ReportKindReport,
		Protocol: framing.ProtocolAggregatedWitness,
		SenderID: 1,
		Round:    0,
	}))

	select {
	case err := <-c.Err():
		require.Error(t, err)
		require.Contains(t, err.Error(), "aborted")
	case <-time.After(2 * time.Second):
		t.Fatal("incompatible content did not abort the witness handler")
	}
}
