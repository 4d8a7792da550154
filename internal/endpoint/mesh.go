// Package endpoint provides the bounded-channel transport each protocol
// layer uses to move wire-encoded frames between participants, along with a
// fan-out table that dispatches a broadcast across all peers in a random
// order so no peer is consistently the first to receive it.
package endpoint

import (
	"math/rand"
	"strconv"
	"sync"

	"github.com/dedis-lab/bcast/common/log"
	"github.com/dedis-lab/bcast/internal/metrics"
)

// participantLabel formats a participant id as the label value metrics uses,
// factored out so every call site agrees on the string form.
func participantLabel(id uint32) string {
	return strconv.FormatUint(uint64(id), 10)
}

// DefaultQueueSize is the per-endpoint channel capacity used when a Config
// does not override it.
const DefaultQueueSize = 256

// Endpoint is the inbound side of one participant's channel for a single
// mesh (the basic mesh or one layer's signal mesh).
type Endpoint chan []byte

// Mesh owns one Endpoint per participant and the fan-out logic for sending
// to one or all of them. A Hub constructs one Mesh per protocol layer so
// that, e.g., reliable-broadcast signals never share a channel with basic
// messages.
type Mesh struct {
	l         log.Logger
	endpoints []Endpoint
}

// NewMesh allocates n bounded endpoints of the given queue size.
func NewMesh(l log.Logger, n int, queueSize int) *Mesh {
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	endpoints := make([]Endpoint, n)
	for i := range endpoints {
		endpoints[i] = make(Endpoint, queueSize)
	}
	return &Mesh{l: l.Named("endpoint"), endpoints: endpoints}
}

// Endpoint returns the inbound channel owned by participant id.
func (m *Mesh) Endpoint(id uint32) Endpoint {
	return m.endpoints[id]
}

// Len reports the number of participants wired into this mesh.
func (m *Mesh) Len() int {
	return len(m.endpoints)
}

// Send delivers raw to a single participant, awaiting capacity if that
// participant's endpoint is currently full - a full endpoint is
// backpressure, not data loss. A send on a closed endpoint, the peer-gone
// case where teardown has torn down the receiving side, is caught and
// treated as a lost frame rather than a crash.
func (m *Mesh) Send(to uint32, raw []byte) {
	defer func() {
		if r := recover(); r != nil {
			metrics.DroppedFrames.WithLabelValues(participantLabel(to)).Inc()
			m.l.Warnw("endpoint closed, dropping frame", "to", to, "recovered", r)
		}
	}()
	m.endpoints[to] <- raw
	metrics.QueueDepth.WithLabelValues(participantLabel(to)).Set(float64(len(m.endpoints[to])))
}

// Broadcast delivers raw to every participant concurrently, in a random
// fan-out order, so that no single participant is consistently first or
// last to observe a signal. A goroutine per peer means one peer's full
// endpoint does not hold back delivery to the other peers. Broadcast still
// returns only after every send has completed, so a full endpoint keeps the
// caller waiting until that peer drains it.
func (m *Mesh) Broadcast(raw []byte) {
	var wg sync.WaitGroup
	for _, i := range rand.Perm(len(m.endpoints)) {
		wg.Add(1)
		go func(to uint32) {
			defer wg.Done()
			m.Send(to, raw)
		}(uint32(i))
	}
	wg.Wait()
}

// BroadcastExcept behaves like Broadcast but skips the given sender, used
// when a participant's own handler already applied a signal locally and
// only needs to fan it out to the rest of the group.
func (m *Mesh) BroadcastExcept(raw []byte, except uint32) {
	var wg sync.WaitGroup
	for _, i := range rand.Perm(len(m.endpoints)) {
		if uint32(i) == except {
			continue
		}
		wg.Add(1)
		go func(to uint32) {
			defer wg.Done()
			m.Send(to, raw)
		}(uint32(i))
	}
	wg.Wait()
}
