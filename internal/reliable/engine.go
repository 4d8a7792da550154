// Package reliable implements Bracha-style reliable broadcast (RB): a
// three-phase Input/Echo/Vote state machine that delivers a value to every
// correct participant once enough of the group has voted for it, tolerant of
// up to f = floor((n-1)/3) Byzantine participants.
//
// The state machine itself is factored into Engine, parameterized by a
// Deliverer so that witness and barycentric broadcast - which each run their
// own instance of this same machine over Reports and BarycentricReports
// rather than plain Messages - can reuse it instead of duplicating the
// transition logic per layer.
package reliable

import (
	"context"
	"fmt"
	"sync"

	"github.com/dedis-lab/bcast/common/log"
	"github.com/dedis-lab/bcast/internal/endpoint"
	"github.com/dedis-lab/bcast/internal/framing"
	"github.com/dedis-lab/bcast/internal/metrics"
)

// Deliverer receives the content of a signal once its instance has crossed
// the validity threshold on Vote. Each layer supplies its own Deliverer:
// plain reliable broadcast pushes Messages into its own basic queue;
// witness/aggregated-witness broadcast route Messages, Reports, and
// AggregatedReports into the witness layer's round monitor instead.
type Deliverer[T comparable] interface {
	Deliver(content framing.Content[T])
}

// Thresholds returns the validity (V) and agreement (A) thresholds for a
// group of size n: f = floor((n-1)/3), V = n-f+1, A = f+1. V is one higher
// than the textbook 2f+1 bound; this repo preserves that formula rather
// than silently "fixing" it - see DESIGN.md.
func Thresholds(n uint32) (v, a uint32) {
	f := (n - 1) / 3
	v = n - f + 1
	a = f + 1
	return v, a
}

type instanceState struct {
	echoed, voted, delivered bool
}

type instanceCount struct {
	echo, vote uint32
}

type monitor struct {
	inputSeen bool
	state     instanceState
	count     instanceCount
}

// Engine runs one participant's copy of the Bracha state machine over a
// dedicated signal Mesh. All monitor mutation happens on the single
// goroutine running Run, so no locking is needed around the monitor map
// itself - only the map's initial construction needs to be visible before
// Run starts.
type Engine[T comparable] struct {
	id   uint32
	n    uint32
	l    log.Logger
	mesh *endpoint.Mesh
	v, a uint32

	deliverer Deliverer[T]

	monitors map[framing.InstanceKey]*monitor
	errOnce  sync.Once
	errCh    chan error
}

// NewEngine constructs an Engine for participant id in a group of n,
// broadcasting signals over mesh and delivering validated content to d.
func NewEngine[T comparable](id, n uint32, l log.Logger, mesh *endpoint.Mesh, d Deliverer[T]) *Engine[T] {
	v, a := Thresholds(n)
	return &Engine[T]{
		id:        id,
		n:         n,
		l:         l.Named("reliable").With("participant", id),
		mesh:      mesh,
		v:         v,
		a:         a,
		deliverer: d,
		monitors:  make(map[framing.InstanceKey]*monitor),
		errCh:     make(chan error, 1),
	}
}

// Err reports a fatal abort of the engine's Run loop, surfaced once via a
// recovered panic rather than crashing the process; the other handlers of
// the same participant keep running.
func (e *Engine[T]) Err() <-chan error {
	return e.errCh
}

// Broadcast initiates a new reliable broadcast instance by sending an Input
// signal carrying content to every participant, including the sender.
func (e *Engine[T]) Broadcast(content framing.Content[T], instance, round uint32) {
	s := framing.Signal[T]{Type: framing.SignalInput, Content: content, InstanceID: instance, Round: round}
	e.broadcastSignal(s)
}

// Run drains the engine's endpoint until ctx is cancelled, applying the
// Input/Echo/Vote transitions for every arriving signal.
func (e *Engine[T]) Run(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			err := fmt.Errorf("reliable engine %d aborted: %v", e.id, r)
			e.errOnce.Do(func() { e.errCh <- err })
		}
	}()

	src := e.mesh.Endpoint(e.id)
	for {
		select {
		case raw := <-src:
			e.handle(raw)
		case <-ctx.Done():
			return
		}
	}
}

func (e *Engine[T]) handle(raw []byte) {
	kind, err := framing.PeekKind(raw)
	if err != nil || kind != framing.WireSignal {
		return
	}
	signal, err := framing.DecodeSignal[T](raw)
	if err != nil {
		e.l.Warnw("dropping malformed signal", "err", err)
		return
	}

	key := framing.KeyForSignal[T](e.id, signal)

	m, ok := e.monitors[key]
	if !ok {
		// An Echo or Vote can arrive before this participant sees the
		// matching Input - Mesh.Broadcast gives no cross-broadcast ordering
		// guarantee, so another participant's derived Echo/Vote can race
		// ahead of this instance's own Input. This seeds a zero monitor
		// instead of treating it as fatal, so a reordered network degrades
		// gracefully rather than crashing - a deliberate hardening, noted in
		// DESIGN.md. inputSeen tracks the real re-registration condition
		// separately from map presence, so this hardening's own allocation
		// never masquerades as the genuine Input.
		m = &monitor{}
		e.monitors[key] = m
	}

	if signal.Type == framing.SignalInput {
		if m.inputSeen {
			e.l.Panicw("reliable broadcast instance id already used", "instance", key.String())
		}
		m.inputSeen = true
	}

	protocol := string(signal.Content.ProtocolTag())

	switch signal.Type {
	case framing.SignalInput:
		if !m.state.echoed {
			e.echo(signal)
			m.state.echoed = true
		}
	case framing.SignalEcho:
		m.count.echo++
		switch {
		case m.count.echo >= e.v && !m.state.voted:
			metrics.ThresholdCrossings.WithLabelValues(protocol, "validity_echo").Inc()
			e.vote(signal)
			m.state.voted = true
		case m.count.echo >= e.a && !m.state.echoed:
			metrics.ThresholdCrossings.WithLabelValues(protocol, "agreement_echo").Inc()
			e.echo(signal)
			m.state.echoed = true
		}
	case framing.SignalVote:
		m.count.vote++
		switch {
		case m.count.vote >= e.v && !m.state.delivered:
			metrics.ThresholdCrossings.WithLabelValues(protocol, "validity_vote").Inc()
			e.deliverer.Deliver(signal.Content)
			m.state.delivered = true
		case m.count.vote >= e.a && !m.state.voted:
			metrics.ThresholdCrossings.WithLabelValues(protocol, "agreement_vote").Inc()
			e.vote(signal)
			m.state.voted = true
		}
	}
}

func (e *Engine[T]) echo(signal framing.Signal[T]) {
	out := framing.Signal[T]{Type: framing.SignalEcho, Content: signal.Content, InstanceID: signal.InstanceID, Round: signal.Round}
	e.broadcastSignal(out)
}

func (e *Engine[T]) vote(signal framing.Signal[T]) {
	out := framing.Signal[T]{Type: framing.SignalVote, Content: signal.Content, InstanceID: signal.InstanceID, Round: signal.Round}
	e.broadcastSignal(out)
}

func (e *Engine[T]) broadcastSignal(s framing.Signal[T]) {
	raw, err := framing.EncodeSignal(s)
	if err != nil {
		e.l.Errorw("failed to encode signal", "err", err)
		return
	}
	metrics.SignalsSent.WithLabelValues(string(s.Content.ProtocolTag()), string(s.Type)).Inc()
	e.mesh.Broadcast(raw)
}
