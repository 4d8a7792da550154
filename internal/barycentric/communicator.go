// Package barycentric implements Barycentric Agreement (BA), the top layer
// of the broadcast stack. Each participant reliably broadcasts its own
// value, then reliably rebroadcasts a report of everything it has observed
// so far every time a new value arrives. A value becomes "trusted" once
// enough reports corroborate it, and a peer becomes a "buddy" once its
// report matches this participant's own full view; once enough buddies
// agree, the trusted set is delivered as this participant's final output.
package barycentric

import (
	"context"
	"fmt"
	"sync"

	"github.com/dedis-lab/bcast/common/log"
	"github.com/dedis-lab/bcast/internal/basic"
	"github.com/dedis-lab/bcast/internal/endpoint"
	"github.com/dedis-lab/bcast/internal/framing"
	"github.com/dedis-lab/bcast/internal/reliable"
)

const internalQueueSize = 256

// Communicator layers Barycentric Agreement over a basic.Communicator,
// following the same shape as witness.Communicator: a dedicated signal mesh
// drives an embedded reliable.Engine whose Deliverer feeds this
// Communicator's own round-processing loop instead of the basic queue.
type Communicator[T comparable] struct {
	id uint32
	n  uint32
	v  uint32
	a  uint32
	l  log.Logger

	basic  *basic.Communicator[T]
	engine *reliable.Engine[T]

	internal chan framing.Content[T]
	monitors map[uint32]*roundMonitor[T]

	errOnce sync.Once
	errCh   chan error
}

// New constructs a barycentric Communicator. signalMesh is the dedicated
// signal mesh for this layer's embedded reliable-broadcast engine, distinct
// from every other layer's signal mesh.
func New[T comparable](basicComm *basic.Communicator[T], l log.Logger, signalMesh *endpoint.Mesh) *Communicator[T] {
	v, a := reliable.Thresholds(basicComm.N())
	c := &Communicator[T]{
		id:       basicComm.ID(),
		n:        basicComm.N(),
		v:        v,
		a:        a,
		l:        l.Named("barycentric").With("participant", basicComm.ID()),
		basic:    basicComm,
		internal: make(chan framing.Content[T], internalQueueSize),
		monitors: make(map[uint32]*roundMonitor[T]),
		errCh:    make(chan error, 1),
	}
	c.engine = reliable.NewEngine[T](basicComm.ID(), basicComm.N(), l, signalMesh, c)
	return c
}

// Deliver implements reliable.Deliverer.
func (c *Communicator[T]) Deliver(content framing.Content[T]) {
	c.internal <- content
}

// Start launches the embedded reliable engine and this Communicator's own
// round-processing loop, and forwards an engine abort onto Err.
func (c *Communicator[T]) Start(ctx context.Context) {
	go c.engine.Run(ctx)
	go c.run(ctx)
	go func() {
		select {
		case err := <-c.engine.Err():
			c.errOnce.Do(func() { c.errCh <- err })
		case <-ctx.Done():
		}
	}()
}

// Err surfaces a fatal abort of either the embedded engine or the
// round-processing loop.
func (c *Communicator[T]) Err() <-chan error {
	return c.errCh
}

func (c *Communicator[T]) run(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			err := fmt.Errorf("barycentric communicator %d aborted: %v", c.id, r)
			c.errOnce.Do(func() { c.errCh <- err })
		}
	}()
	for {
		select {
		case content := <-c.internal:
			c.process(content)
		case <-ctx.Done():
			return
		}
	}
}

// Broadcast starts a new barycentric agreement round for payload.
func (c *Communicator[T]) Broadcast(payload T, round uint32) {
	m := framing.Message[T]{Protocol: framing.ProtocolBarycentric, SenderID: c.id, Payload: payload, Round: round}
	c.engine.Broadcast(framing.MessageContent(m), 0, round)
}

// Recv blocks until this participant's own barycentric agreement output for
// round is available: the set of trusted values once enough buddies agree.
func (c *Communicator[T]) Recv(ctx context.Context, round uint32) (framing.Report[T], bool) {
	return c.basic.RecvReport(ctx, c.id, framing.ProtocolBarycentric, round)
}

func (c *Communicator[T]) process(content framing.Content[T]) {
	round := content.Round()
	m, ok := c.monitors[round]
	if !ok {
		m = newRoundMonitor[T](c.n)
		c.monitors[round] = m
	}

	switch content.Kind {
	case framing.ContentMessage:
		c.admitMessage(round, m, *content.Message)
	case framing.ContentBarycentricReport:
		c.admitBarycentricReport(m, *content.BarycentricReport)
	default:
		c.l.Panicw("incompatible content kind for barycentric agreement", "kind", content.Kind)
	}

	if m.count.barycentricReports >= c.a && !m.state.trusted {
		if len(c.trusted(m)) > 0 {
			m.state.trusted = true
		}
	}

	if m.count.buddies >= c.v && !m.state.buddies {
		trusted := c.trusted(m)
		c.l.Debugw("barycentric agreement reached", "round", round, "trusted", len(trusted))
		report := framing.Report[T]{
			Kind:       framing.ReportKindWitness,
			Protocol:   framing.ProtocolBarycentric,
			SenderID:   c.id,
			Messages:   trusted,
			InstanceID: 0,
			Round:      round,
		}
		c.basic.PushLocalReport(report)
		m.state.buddies = true
	}
}

func (c *Communicator[T]) admitMessage(round uint32, m *roundMonitor[T], msg framing.Message[T]) {
	if m.content.messages[msg.SenderID] == nil {
		stored := msg
		m.content.messages[msg.SenderID] = &stored
		m.count.messages++
		c.broadcastBarycentricReport(round, m)
	}
	if m.count.messages >= c.v && !m.state.messages {
		m.state.messages = true
	}
}

func (c *Communicator[T]) admitBarycentricReport(m *roundMonitor[T], br framing.BarycentricReport[T]) {
	stored := br
	m.content.barycentricReports[br.SenderID] = &stored
	m.count.barycentricReports++

	if m.state.messages && m.state.trusted {
		c.initializeBuddies(m)
	}
}

// broadcastBarycentricReport reliably rebroadcasts this participant's full
// current view every time a new value is admitted, tagging each rebroadcast
// with a fresh instance number (the post-increment message count) so every
// rebroadcast gets its own reliable-broadcast instance rather than reusing
// one.
func (c *Communicator[T]) broadcastBarycentricReport(round uint32, m *roundMonitor[T]) {
	report := framing.BarycentricReport[T]{
		Protocol:   framing.ProtocolBarycentric,
		SenderID:   c.id,
		Messages:   denseMessages(m.content.messages),
		InstanceID: m.count.messages,
		Round:      round,
	}
	c.engine.Broadcast(framing.BarycentricReportContent(report), report.InstanceID, round)
}

// trusted returns every message that at least A barycentric reports
// corroborate against this participant's own message vector.
func (c *Communicator[T]) trusted(m *roundMonitor[T]) []framing.Message[T] {
	corroborations := make([]uint32, c.n)
	for _, br := range m.content.barycentricReports {
		if br == nil {
			continue
		}
		for id, msg := range br.Messages {
			if uint32(id) >= c.n {
				continue
			}
			own := m.content.messages[id]
			var zero T
			if own != nil && msg.Payload != zero && own.Payload == msg.Payload {
				corroborations[id]++
			}
		}
	}

	var out []framing.Message[T]
	for id, count := range corroborations {
		if count >= c.a && m.content.messages[id] != nil {
			out = append(out, *m.content.messages[id])
		}
	}
	return out
}

// initializeBuddies recomputes the full buddy vector from scratch on every
// new report once trust has been established: a peer is a buddy for this
// round if its last-seen barycentric report's message vector matches this
// participant's own.
func (c *Communicator[T]) initializeBuddies(m *roundMonitor[T]) {
	m.count.buddies = 0
	for id, br := range m.content.barycentricReports {
		if br != nil && messageVectorEqual(m.content.messages, br.Messages) {
			m.content.buddies[id] = true
			m.count.buddies++
		} else {
			m.content.buddies[id] = false
		}
	}
}

// ID returns the participant id this Communicator belongs to.
func (c *Communicator[T]) ID() uint32 { return c.id }
