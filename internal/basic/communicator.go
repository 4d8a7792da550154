// Package basic implements the lowest layer of the broadcast stack: direct
// send, all-to-all broadcast, and a local receive queue keyed by sender,
// protocol, instance, and round. Every higher layer embeds a Communicator
// and rides its queue for final delivery.
package basic

import (
	"context"
	"sync"

	"github.com/dedis-lab/bcast/common/log"
	"github.com/dedis-lab/bcast/internal/endpoint"
	"github.com/dedis-lab/bcast/internal/framing"
)

// Communicator is one participant's view of the basic layer: it owns the
// send-side Mesh shared with its peers and a local queue of everything
// addressed to it, whether delivered by draining its own inbound endpoint or
// pushed directly by an upper layer's terminal delivery step.
type Communicator[T comparable] struct {
	id   uint32
	n    uint32
	l    log.Logger
	mesh *endpoint.Mesh

	mu           sync.Mutex
	queues       map[uint32][]framing.Message[T]
	reportQueues map[uint32][]framing.Report[T]
	wake         chan struct{}
}

// New constructs a Communicator bound to participant id within a group of n,
// communicating over mesh.
func New[T comparable](id, n uint32, l log.Logger, mesh *endpoint.Mesh) *Communicator[T] {
	queues := make(map[uint32][]framing.Message[T], n)
	reportQueues := make(map[uint32][]framing.Report[T], n)
	for i := uint32(0); i < n; i++ {
		queues[i] = nil
		reportQueues[i] = nil
	}
	return &Communicator[T]{
		id:           id,
		n:            n,
		l:            l.Named("basic").With("participant", id),
		mesh:         mesh,
		queues:       queues,
		reportQueues: reportQueues,
		wake:         make(chan struct{}, 1),
	}
}

func (c *Communicator[T]) ID() uint32 { return c.id }
func (c *Communicator[T]) N() uint32  { return c.n }

// Send delivers message directly to participant `to`.
func (c *Communicator[T]) Send(to uint32, payload T, round uint32) {
	m := framing.Message[T]{Protocol: framing.ProtocolBasic, SenderID: c.id, Payload: payload, Round: round}
	c.sendMessage(to, m)
}

// Broadcast delivers message to every participant, including the caller.
func (c *Communicator[T]) Broadcast(payload T, round uint32) {
	m := framing.Message[T]{Protocol: framing.ProtocolBasic, SenderID: c.id, Payload: payload, Round: round}
	c.broadcastMessage(m)
}

func (c *Communicator[T]) sendMessage(to uint32, m framing.Message[T]) {
	raw, err := framing.EncodeMessage(m)
	if err != nil {
		c.l.Errorw("failed to encode message", "err", err)
		return
	}
	c.mesh.Send(to, raw)
}

func (c *Communicator[T]) broadcastMessage(m framing.Message[T]) {
	raw, err := framing.EncodeMessage(m)
	if err != nil {
		c.l.Errorw("failed to encode message", "err", err)
		return
	}
	c.mesh.Broadcast(raw)
}

// Recv blocks until a Message matching protocol/instance/round is available,
// optionally restricted to a single sender. When sender is nil, queues are
// scanned in ascending sender-id order and the first match wins.
func (c *Communicator[T]) Recv(ctx context.Context, sender *uint32, protocol framing.Protocol, instance *uint32, round uint32) (framing.Message[T], bool) {
	for {
		if m, ok := c.tryTake(sender, protocol, instance, round); ok {
			return m, true
		}
		select {
		case <-c.wake:
			continue
		case raw := <-c.drainSource():
			c.store(raw)
		case <-ctx.Done():
			var zero framing.Message[T]
			return zero, false
		}
	}
}

// drainSource exposes the endpoint this Communicator reads its own inbound
// frames from; factored out so upper layers (which never read their own
// endpoint directly) don't need it.
func (c *Communicator[T]) drainSource() endpoint.Endpoint {
	return c.mesh.Endpoint(c.id)
}

func (c *Communicator[T]) store(raw []byte) {
	kind, err := framing.PeekKind(raw)
	if err != nil {
		c.l.Warnw("dropping malformed frame", "err", err)
		return
	}
	switch kind {
	case framing.WireMessage:
		m, err := framing.DecodeMessage[T](raw)
		if err != nil {
			c.l.Warnw("dropping malformed message", "err", err)
			return
		}
		c.PushLocal(m)
	case framing.WireReport:
		r, err := framing.DecodeReport[T](raw)
		if err != nil {
			c.l.Warnw("dropping malformed report", "err", err)
			return
		}
		c.PushLocalReport(r)
	default:
		c.l.Warnw("basic layer received unexpected frame kind, dropping", "kind", kind)
	}
}

// PushLocal enqueues m directly into this participant's queue, bypassing the
// channel mesh entirely. Upper layers call this for terminal deliveries
// (e.g. a reliable broadcast's Vote-triggered delivery) so Recv observes
// them without a round trip through the network endpoint.
func (c *Communicator[T]) PushLocal(m framing.Message[T]) {
	c.mu.Lock()
	c.queues[m.SenderID] = append(c.queues[m.SenderID], m)
	c.mu.Unlock()
	select {
	case c.wake <- struct{}{}:
	default:
	}
}

// PushLocalReport enqueues a terminal Report delivery (the Witness or
// Aggregated-Witness output the witness layer produces once its thresholds
// are crossed), the Report analogue of PushLocal.
func (c *Communicator[T]) PushLocalReport(r framing.Report[T]) {
	c.mu.Lock()
	c.reportQueues[r.SenderID] = append(c.reportQueues[r.SenderID], r)
	c.mu.Unlock()
	select {
	case c.wake <- struct{}{}:
	default:
	}
}

// RecvReport blocks until a Report matching protocol/round is available for
// participant id's own final-witness output.
func (c *Communicator[T]) RecvReport(ctx context.Context, sender uint32, protocol framing.Protocol, round uint32) (framing.Report[T], bool) {
	for {
		if r, ok := c.tryTakeReport(sender, protocol, round); ok {
			return r, true
		}
		select {
		case <-c.wake:
			continue
		case raw := <-c.drainSource():
			c.store(raw)
		case <-ctx.Done():
			var zero framing.Report[T]
			return zero, false
		}
	}
}

func (c *Communicator[T]) tryTakeReport(sender uint32, protocol framing.Protocol, round uint32) (framing.Report[T], bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	q := c.reportQueues[sender]
	for i, r := range q {
		if r.Protocol == protocol && r.Round == round {
			c.reportQueues[sender] = append(q[:i], q[i+1:]...)
			return r, true
		}
	}
	return framing.Report[T]{}, false
}

func (c *Communicator[T]) tryTake(sender *uint32, protocol framing.Protocol, instance *uint32, round uint32) (framing.Message[T], bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	matches := func(m framing.Message[T]) bool {
		if m.Protocol != protocol || m.Round != round {
			return false
		}
		if (instance == nil) != (m.InstanceID == nil) {
			return false
		}
		if instance != nil && *instance != *m.InstanceID {
			return false
		}
		return true
	}

	if sender != nil {
		q := c.queues[*sender]
		for i, m := range q {
			if matches(m) {
				c.queues[*sender] = append(q[:i], q[i+1:]...)
				return m, true
			}
		}
		return framing.Message[T]{}, false
	}

	for id := uint32(0); id < c.n; id++ {
		q := c.queues[id]
		for i, m := range q {
			if matches(m) {
				c.queues[id] = append(q[:i], q[i+1:]...)
				return m, true
			}
		}
	}
	return framing.Message[T]{}, false
}
