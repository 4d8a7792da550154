// Package framing defines the wire-level entities exchanged by every layer
// of the broadcast toolkit: messages, reports, aggregated reports,
// barycentric reports, and the signals that drive reliable broadcast.
package framing

import "fmt"

// Protocol tags a wire entity with the layer that produced it; routing at
// the reliable layer's delivery step dispatches on this tag.
type Protocol string

const (
	ProtocolBasic             Protocol = "basic"
	ProtocolReliable          Protocol = "reliable"
	ProtocolWitness           Protocol = "witness"
	ProtocolAggregatedWitness Protocol = "aggregated_witness"
	ProtocolBarycentric       Protocol = "barycentric"
)

// SignalType names the phase of a reliable broadcast instance.
type SignalType string

const (
	SignalInput SignalType = "input"
	SignalEcho  SignalType = "echo"
	SignalVote  SignalType = "vote"
)

// ReportKind distinguishes a plain Report from one that has been promoted to
// a Witness because its contents were confirmed a subset of the round's
// values.
type ReportKind string

const (
	ReportKindReport  ReportKind = "report"
	ReportKindWitness ReportKind = "witness"
)

// Message is a single payload sent by one participant, tagged with the
// producing protocol layer and, where relevant, the reliable-broadcast
// instance and dimension it belongs to.
type Message[T comparable] struct {
	Protocol   Protocol `json:"protocol"`
	SenderID   uint32   `json:"sender_id"`
	Payload    T        `json:"payload"`
	Dimension  *uint32  `json:"dimension,omitempty"`
	InstanceID *uint32  `json:"instance_id,omitempty"`
	Round      uint32   `json:"round"`
}

// Key returns a string identifying this message for de-duplication and
// subset checks. The payload is part of the key: two messages differing only
// in payload are distinct observations, not duplicates.
func (m Message[T]) Key() string {
	inst := "-"
	if m.InstanceID != nil {
		inst = fmt.Sprintf("%d", *m.InstanceID)
	}
	dim := "-"
	if m.Dimension != nil {
		dim = fmt.Sprintf("%d", *m.Dimension)
	}
	return fmt.Sprintf("%s::%d::%s::%s::%d::%v", m.Protocol, m.SenderID, inst, dim, m.Round, m.Payload)
}

// Report bundles the set of Messages a participant has observed for a round,
// either as a plain Report awaiting promotion or, once validated, a Witness.
type Report[T comparable] struct {
	Kind       ReportKind  `json:"kind"`
	Protocol   Protocol    `json:"protocol"`
	SenderID   uint32      `json:"sender_id"`
	Messages   []Message[T] `json:"messages"`
	Dimension  *uint32     `json:"dimension,omitempty"`
	InstanceID uint32      `json:"instance_id"`
	Round      uint32      `json:"round"`
}

// Key identifies a Report for de-duplication and subset checks. Kind is
// deliberately excluded so a locally-promoted copy still matches the plain
// Report it arrived as; the message list is included so two reports from the
// same sender with different contents never collapse into one.
func (r Report[T]) Key() string {
	keys := make([]string, len(r.Messages))
	for i, m := range r.Messages {
		keys[i] = m.Key()
	}
	return fmt.Sprintf("%s::%d::%d::%d::%v", r.Protocol, r.SenderID, r.InstanceID, r.Round, keys)
}

// AggregatedReport bundles the set of Witnesses (Reports already promoted)
// that a participant has observed, one layer up from Report.
type AggregatedReport[T comparable] struct {
	Kind       ReportKind  `json:"kind"`
	Protocol   Protocol    `json:"protocol"`
	SenderID   uint32      `json:"sender_id"`
	Reports    []Report[T] `json:"reports"`
	InstanceID uint32      `json:"instance_id"`
	Round      uint32      `json:"round"`
}

func (a AggregatedReport[T]) Key() string {
	keys := make([]string, len(a.Reports))
	for i, r := range a.Reports {
		keys[i] = r.Key()
	}
	return fmt.Sprintf("%s::%d::%d::%d::%v", a.Protocol, a.SenderID, a.InstanceID, a.Round, keys)
}

// BarycentricReport carries the set of Messages a participant has observed
// for the barycentric agreement layer, re-broadcast reliably each time a new
// message is admitted to that participant's view.
type BarycentricReport[T comparable] struct {
	Protocol   Protocol     `json:"protocol"`
	SenderID   uint32       `json:"sender_id"`
	Messages   []Message[T] `json:"messages"`
	InstanceID uint32       `json:"instance_id"`
	Round      uint32       `json:"round"`
}

func (b BarycentricReport[T]) Key() string {
	return fmt.Sprintf("%s::%d::%d::%d", b.Protocol, b.SenderID, b.InstanceID, b.Round)
}

// ContentKind discriminates the payload carried by a Signal.
type ContentKind string

const (
	ContentMessage           ContentKind = "message"
	ContentReport            ContentKind = "report"
	ContentAggregatedReport  ContentKind = "aggregated_report"
	ContentBarycentricReport ContentKind = "barycentric_report"
)

// Content is a tagged union over the four payload types a Signal can carry.
// Go has no sum type, so exactly one of the pointer fields is populated,
// selected by Kind - the in-memory shape of an externally tagged JSON enum.
type Content[T comparable] struct {
	Kind              ContentKind        `json:"kind"`
	Message           *Message[T]           `json:"message,omitempty"`
	Report            *Report[T]            `json:"report,omitempty"`
	AggregatedReport  *AggregatedReport[T]  `json:"aggregated_report,omitempty"`
	BarycentricReport *BarycentricReport[T] `json:"barycentric_report,omitempty"`
}

func MessageContent[T comparable](m Message[T]) Content[T] {
	return Content[T]{Kind: ContentMessage, Message: &m}
}

func ReportContent[T comparable](r Report[T]) Content[T] {
	return Content[T]{Kind: ContentReport, Report: &r}
}

func AggregatedReportContent[T comparable](a AggregatedReport[T]) Content[T] {
	return Content[T]{Kind: ContentAggregatedReport, AggregatedReport: &a}
}

func BarycentricReportContent[T comparable](b BarycentricReport[T]) Content[T] {
	return Content[T]{Kind: ContentBarycentricReport, BarycentricReport: &b}
}

// ProtocolTag returns the protocol tag of whichever payload is populated.
func (c Content[T]) ProtocolTag() Protocol {
	switch c.Kind {
	case ContentMessage:
		return c.Message.Protocol
	case ContentReport:
		return c.Report.Protocol
	case ContentAggregatedReport:
		return c.AggregatedReport.Protocol
	case ContentBarycentricReport:
		return c.BarycentricReport.Protocol
	default:
		return ""
	}
}

// Signal is the envelope exchanged during a reliable broadcast instance:
// an Input, Echo, or Vote carrying one of the four content kinds.
type Signal[T comparable] struct {
	Type       SignalType `json:"type"`
	Content    Content[T] `json:"content"`
	InstanceID uint32     `json:"instance_id"`
	Round      uint32     `json:"round"`
}

// InstanceKey identifies one reliable broadcast instance for monitor lookup:
// the observing participant, the originating sender, the content kind, and
// the instance/round pair. A comparable struct instead of a formatted string
// avoids allocation on every signal and lets instance monitors live in a
// plain Go map.
type InstanceKey struct {
	ObserverID uint32
	Protocol   Protocol
	SenderID   uint32
	Content    ContentKind
	InstanceID uint32
	Round      uint32
}

func (k InstanceKey) String() string {
	return fmt.Sprintf("%d::%s::%d::%s::%d::%d", k.ObserverID, k.Protocol, k.SenderID, k.Content, k.InstanceID, k.Round)
}

// KeyForSignal derives the InstanceKey an observer uses to track a signal.
func KeyForSignal[T comparable](observerID uint32, s Signal[T]) InstanceKey {
	return InstanceKey{
		ObserverID: observerID,
		Protocol:   s.Content.ProtocolTag(),
		SenderID:   s.Content.senderID(),
		Content:    s.Content.Kind,
		InstanceID: s.InstanceID,
		Round:      s.Round,
	}
}

// Round returns the round number of whichever payload is populated.
func (c Content[T]) Round() uint32 {
	switch c.Kind {
	case ContentMessage:
		return c.Message.Round
	case ContentReport:
		return c.Report.Round
	case ContentAggregatedReport:
		return c.AggregatedReport.Round
	case ContentBarycentricReport:
		return c.BarycentricReport.Round
	default:
		return 0
	}
}

func (c Content[T]) senderID() uint32 {
	switch c.Kind {
	case ContentMessage:
		return c.Message.SenderID
	case ContentReport:
		return c.Report.SenderID
	case ContentAggregatedReport:
		return c.AggregatedReport.SenderID
	case ContentBarycentricReport:
		return c.BarycentricReport.SenderID
	default:
		return 0
	}
}
