// Package witness implements Witness Broadcast (WB) and, one layer up,
// Aggregated Witness Broadcast (AWB). Both protocols reliably broadcast
// collections built from lower-layer output - WB reliably broadcasts each
// participant's observed Messages as a Report, AWB reliably broadcasts each
// participant's observed Witnesses as an AggregatedReport - and promote a
// collection to a Witness/AggregatedWitness once its contents are confirmed
// a subset of the round's accepted values (for a Report) or of the round's
// witnesses (for an AggregatedReport). They are combined in this one
// package because a single round monitor carries both layers' bookkeeping
// and a single event loop drives both sets of promotion rules; which of the
// two protocols a Communicator runs is fixed at construction by its
// protocol tag.
package witness

import (
	"context"
	"fmt"
	"sync"

	"github.com/dedis-lab/bcast/common/log"
	"github.com/dedis-lab/bcast/internal/basic"
	"github.com/dedis-lab/bcast/internal/endpoint"
	"github.com/dedis-lab/bcast/internal/framing"
	"github.com/dedis-lab/bcast/internal/metrics"
	"github.com/dedis-lab/bcast/internal/reliable"
)

const internalQueueSize = 256

// Communicator layers WB/AWB over a basic.Communicator. It owns a dedicated
// reliable.Engine (its own signal mesh, never shared with the plain
// reliable-broadcast layer) whose Deliverer feeds this Communicator's own
// round-processing goroutine rather than the basic queue directly.
type Communicator[T comparable] struct {
	id       uint32
	n        uint32
	v        uint32
	protocol framing.Protocol
	l        log.Logger

	basic  *basic.Communicator[T]
	engine *reliable.Engine[T]

	internal chan framing.Content[T]
	monitors map[uint32]*roundMonitor[T]

	errOnce sync.Once
	errCh   chan error
}

// New constructs a witness Communicator running either plain witness
// broadcast (framing.ProtocolWitness) or aggregated witness broadcast
// (framing.ProtocolAggregatedWitness); the tag decides what happens once a
// round's witness count crosses the validity threshold. signalMesh is the
// dedicated signal mesh for this layer's embedded reliable-broadcast engine.
func New[T comparable](basicComm *basic.Communicator[T], protocol framing.Protocol, l log.Logger, signalMesh *endpoint.Mesh) *Communicator[T] {
	v, _ := reliable.Thresholds(basicComm.N())
	c := &Communicator[T]{
		id:       basicComm.ID(),
		n:        basicComm.N(),
		v:        v,
		protocol: protocol,
		l:        l.Named("witness").With("participant", basicComm.ID()),
		basic:    basicComm,
		internal: make(chan framing.Content[T], internalQueueSize),
		monitors: make(map[uint32]*roundMonitor[T]),
		errCh:    make(chan error, 1),
	}
	c.engine = reliable.NewEngine[T](basicComm.ID(), basicComm.N(), l, signalMesh, c)
	return c
}

// Deliver implements reliable.Deliverer: a validated Message, Report, or
// AggregatedReport is handed to this Communicator's own round-processing
// loop. Content is passed as a typed value rather than re-serialized, since
// this handoff never crosses a real wire boundary.
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
			err := fmt.Errorf("witness communicator %d aborted: %v", c.id, r)
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

// Broadcast starts a new witness broadcast round for payload, tagged with
// this Communicator's protocol.
func (c *Communicator[T]) Broadcast(payload T, round uint32) {
	m := framing.Message[T]{Protocol: c.protocol, SenderID: c.id, Payload: payload, Round: round}
	c.engine.Broadcast(framing.MessageContent(m), 0, round)
}

// RecvWitness blocks until this participant's own Witness-level output for
// round is available: the set of values confirmed by at least V reports.
// Only a ProtocolWitness Communicator emits this output.
func (c *Communicator[T]) RecvWitness(ctx context.Context, round uint32) (framing.Report[T], bool) {
	return c.basic.RecvReport(ctx, c.id, framing.ProtocolWitness, round)
}

// RecvAggregatedWitness blocks until this participant's own
// AggregatedWitness-level output for round is available: the set of values
// confirmed by at least V aggregated reports built from witnesses. Only a
// ProtocolAggregatedWitness Communicator emits this output.
func (c *Communicator[T]) RecvAggregatedWitness(ctx context.Context, round uint32) (framing.Report[T], bool) {
	return c.basic.RecvReport(ctx, c.id, framing.ProtocolAggregatedWitness, round)
}

func (c *Communicator[T]) process(content framing.Content[T]) {
	round := content.Round()
	m, ok := c.monitors[round]
	if !ok {
		m = newRoundMonitor[T]()
		c.monitors[round] = m
	}

	switch content.Kind {
	case framing.ContentMessage:
		c.admitValue(m, *content.Message)
	case framing.ContentReport:
		c.admitReport(m, *content.Report)
	case framing.ContentAggregatedReport:
		if c.protocol != framing.ProtocolAggregatedWitness {
			c.l.Panicw("incompatible content kind for witness broadcast", "kind", content.Kind)
		}
		c.admitAggregatedReport(m, *content.AggregatedReport)
	default:
		c.l.Panicw("incompatible content kind for witness broadcast", "kind", content.Kind)
	}

	if m.count.values >= c.v && !m.state.reportBroadcast {
		c.broadcastReport(round, m)
		m.state.reportBroadcast = true
	}
	if m.count.witnesses >= c.v && !m.state.witnessesResolved {
		if c.protocol == framing.ProtocolWitness {
			c.deliverWitness(round, m)
		} else {
			c.broadcastAggregatedReport(round, m)
		}
		m.state.witnessesResolved = true
	}
	if m.count.aggregatedWitnesses >= c.v && !m.state.aggregatedDelivered {
		c.deliverAggregatedWitness(round, m)
		m.state.aggregatedDelivered = true
	}
}

func (c *Communicator[T]) admitValue(m *roundMonitor[T], msg framing.Message[T]) {
	key := msg.Key()
	if _, seen := m.seenValue[key]; seen {
		return
	}
	m.seenValue[key] = struct{}{}
	m.content.values = append(m.content.values, msg)
	m.count.values++

	if m.count.values >= c.v {
		c.updateWitnesses(m)
	}
}

func (c *Communicator[T]) admitReport(m *roundMonitor[T], rep framing.Report[T]) {
	key := rep.Key()
	if _, seen := m.seenReport[key]; seen {
		return
	}
	m.seenReport[key] = struct{}{}
	m.content.reports = append(m.content.reports, rep)
	m.count.reports++
	c.promoteReportAt(m, len(m.content.reports)-1)
}

func (c *Communicator[T]) admitAggregatedReport(m *roundMonitor[T], ar framing.AggregatedReport[T]) {
	key := ar.Key()
	if _, seen := m.seenAggregated[key]; seen {
		return
	}
	m.seenAggregated[key] = struct{}{}
	m.content.aggregatedReports = append(m.content.aggregatedReports, ar)
	m.count.aggregatedReports++
	c.promoteAggregatedReportAt(m, len(m.content.aggregatedReports)-1)
}

// updateWitnesses re-walks every currently-held Report and promotes any
// still-pending one whose messages are now a subset of the round's values.
// Called whenever a newly-admitted value pushes count.values across V;
// all currently-held Reports are re-checked against the new count.
func (c *Communicator[T]) updateWitnesses(m *roundMonitor[T]) {
	for i := range m.content.reports {
		if m.content.reports[i].Kind == framing.ReportKindReport {
			c.promoteReportAt(m, i)
		}
	}
}

func (c *Communicator[T]) promoteReportAt(m *roundMonitor[T], idx int) {
	rep := &m.content.reports[idx]
	if rep.Kind == framing.ReportKindWitness {
		return
	}
	if !isSubsetMessages(rep.Messages, m.content.values) {
		return
	}
	rep.Kind = framing.ReportKindWitness
	m.content.witnesses = append(m.content.witnesses, *rep)
	m.count.witnesses++
	metrics.Promotions.WithLabelValues(string(rep.Protocol)).Inc()

	if m.count.witnesses >= c.v {
		c.updateAggregatedWitnesses(m)
	}
}

// updateAggregatedWitnesses re-walks every currently-held AggregatedReport,
// the aggregated-layer counterpart of updateWitnesses - triggered whenever a
// newly-promoted witness pushes count.witnesses across V.
func (c *Communicator[T]) updateAggregatedWitnesses(m *roundMonitor[T]) {
	for i := range m.content.aggregatedReports {
		if m.content.aggregatedReports[i].Kind == framing.ReportKindReport {
			c.promoteAggregatedReportAt(m, i)
		}
	}
}

func (c *Communicator[T]) promoteAggregatedReportAt(m *roundMonitor[T], idx int) {
	ar := &m.content.aggregatedReports[idx]
	if ar.Kind == framing.ReportKindWitness {
		return
	}
	if !isSubsetReports(ar.Reports, m.content.witnesses) {
		return
	}
	ar.Kind = framing.ReportKindWitness
	m.content.aggregatedWitnesses = append(m.content.aggregatedWitnesses, *ar)
	m.count.aggregatedWitnesses++
	metrics.Promotions.WithLabelValues(string(ar.Protocol)).Inc()
}

func (c *Communicator[T]) broadcastReport(round uint32, m *roundMonitor[T]) {
	report := framing.Report[T]{
		Kind:       framing.ReportKindReport,
		Protocol:   c.protocol,
		SenderID:   c.id,
		Messages:   cloneMessages(m.content.values),
		InstanceID: 0,
		Round:      round,
	}
	c.l.Debugw("broadcasting report", "round", round, "values", len(report.Messages))
	c.engine.Broadcast(framing.ReportContent(report), 0, round)
}

func (c *Communicator[T]) broadcastAggregatedReport(round uint32, m *roundMonitor[T]) {
	ar := framing.AggregatedReport[T]{
		Kind:       framing.ReportKindReport,
		Protocol:   framing.ProtocolAggregatedWitness,
		SenderID:   c.id,
		Reports:    cloneReports(m.content.witnesses),
		InstanceID: 0,
		Round:      round,
	}
	c.l.Debugw("broadcasting aggregated report", "round", round, "witnesses", len(ar.Reports))
	c.engine.Broadcast(framing.AggregatedReportContent(ar), 0, round)
}

func (c *Communicator[T]) deliverWitness(round uint32, m *roundMonitor[T]) {
	report := framing.Report[T]{
		Kind:       framing.ReportKindWitness,
		Protocol:   framing.ProtocolWitness,
		SenderID:   c.id,
		Messages:   cloneMessages(m.content.values),
		InstanceID: 0,
		Round:      round,
	}
	c.basic.PushLocalReport(report)
}

func (c *Communicator[T]) deliverAggregatedWitness(round uint32, m *roundMonitor[T]) {
	report := framing.Report[T]{
		Kind:       framing.ReportKindWitness,
		Protocol:   framing.ProtocolAggregatedWitness,
		SenderID:   c.id,
		Messages:   cloneMessages(m.content.values),
		InstanceID: 0,
		Round:      round,
	}
	c.basic.PushLocalReport(report)
}

// ID returns the participant id this Communicator belongs to.
func (c *Communicator[T]) ID() uint32 { return c.id }
