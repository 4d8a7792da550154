package barycentric

import "github.com/dedis-lab/bcast/internal/framing"

// roundContent accumulates one round's view of Barycentric Agreement: the
// per-sender message slots (nil until that sender's value arrives), the
// per-sender rebroadcast reports built from those slots, and the buddy flags
// recording which senders currently report the exact same view this
// participant holds. Slots are indexed by sender id rather than appended: a
// sender's first message fills its message slot and later ones are ignored,
// while each new barycentric report from a peer overwrites its previous one.
type roundContent[T comparable] struct {
	messages           []*framing.Message[T]
	barycentricReports []*framing.BarycentricReport[T]
	buddies            []bool
}

type roundState struct {
	messages bool
	trusted  bool
	buddies  bool
}

type roundCount struct {
	messages           uint32
	barycentricReports uint32
	buddies            uint32
}

type roundMonitor[T comparable] struct {
	content roundContent[T]
	state   roundState
	count   roundCount
}

func newRoundMonitor[T comparable](n uint32) *roundMonitor[T] {
	return &roundMonitor[T]{
		content: roundContent[T]{
			messages:           make([]*framing.Message[T], n),
			barycentricReports: make([]*framing.BarycentricReport[T], n),
			buddies:            make([]bool, n),
		},
	}
}

// messageVectorEqual reports whether two sender-indexed message vectors hold
// the same payload at every slot, treating a nil slot and a slot holding the
// zero-value payload sentinel as equivalent.
func messageVectorEqual[T comparable](a []*framing.Message[T], b []framing.Message[T]) bool {
	if len(a) != len(b) {
		return false
	}
	var zero T
	for i := range a {
		var av T
		if a[i] != nil {
			av = a[i].Payload
		} else {
			av = zero
		}
		if av != b[i].Payload {
			return false
		}
	}
	return true
}

// denseMessages converts a sender-indexed pointer vector into a plain value
// slice for wire transmission, filling empty slots with the zero-value
// Message sentinel.
func denseMessages[T comparable](in []*framing.Message[T]) []framing.Message[T] {
	out := make([]framing.Message[T], len(in))
	for i, m := range in {
		if m != nil {
			out[i] = *m
		}
	}
	return out
}
