package witness

import "github.com/dedis-lab/bcast/internal/framing"

// roundContent accumulates everything a participant has observed for one
// witness round: the raw values broadcast by each sender, the Reports built
// from those values, the subset of Reports promoted to Witnesses, and one
// layer up, the AggregatedReports built from Witnesses and the subset of
// those promoted to AggregatedWitnesses. Unifying both layers' state in one
// struct lets a single round monitor serve both protocols.
type roundContent[T comparable] struct {
	values              []framing.Message[T]
	reports             []framing.Report[T]
	witnesses           []framing.Report[T]
	aggregatedReports   []framing.AggregatedReport[T]
	aggregatedWitnesses []framing.AggregatedReport[T]
}

// roundState flags each milestone a participant passes at most once per
// round: broadcasting its own Report, resolving the witness threshold
// (terminal delivery for WB, aggregated-report broadcast for AWB), and
// delivering the aggregated terminal output.
type roundState struct {
	reportBroadcast     bool
	witnessesResolved   bool
	aggregatedDelivered bool
}

type roundCount struct {
	values              uint32
	reports             uint32
	witnesses           uint32
	aggregatedReports   uint32
	aggregatedWitnesses uint32
}

type roundMonitor[T comparable] struct {
	content roundContent[T]
	state   roundState
	count   roundCount

	seenValue      map[string]struct{}
	seenReport     map[string]struct{}
	seenAggregated map[string]struct{}
}

func newRoundMonitor[T comparable]() *roundMonitor[T] {
	return &roundMonitor[T]{
		seenValue:      make(map[string]struct{}),
		seenReport:     make(map[string]struct{}),
		seenAggregated: make(map[string]struct{}),
	}
}

func isSubsetMessages[T comparable](sub, super []framing.Message[T]) bool {
	set := make(map[string]struct{}, len(super))
	for _, m := range super {
		set[m.Key()] = struct{}{}
	}
	for _, m := range sub {
		if _, ok := set[m.Key()]; !ok {
			return false
		}
	}
	return true
}

func isSubsetReports[T comparable](sub, super []framing.Report[T]) bool {
	set := make(map[string]struct{}, len(super))
	for _, r := range super {
		set[r.Key()] = struct{}{}
	}
	for _, r := range sub {
		if _, ok := set[r.Key()]; !ok {
			return false
		}
	}
	return true
}

func cloneMessages[T comparable](in []framing.Message[T]) []framing.Message[T] {
	out := make([]framing.Message[T], len(in))
	copy(out, in)
	return out
}

func cloneReports[T comparable](in []framing.Report[T]) []framing.Report[T] {
	out := make([]framing.Report[T], len(in))
	copy(out, in)
	return out
}
