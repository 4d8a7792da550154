package witness

import (
	"github.com/dedis-lab/bcast/internal/basic"
	"github.com/dedis-lab/bcast/internal/endpoint"
	"github.com/dedis-lab/bcast/internal/framing"
	"github.com/dedis-lab/bcast/internal/hub"
)

// Hub wires N witness Communicators over a shared basic Hub and a dedicated
// signal Mesh for the embedded reliable-broadcast engines - never the same
// mesh used by a plain reliable.Hub, so WB/AWB signals never collide with
// plain RB traffic.
type Hub[T comparable] struct {
	basicHub      *basic.Hub[T]
	communicators []*Communicator[T]
}

// NewHub constructs a Hub for n participants running protocol - either
// framing.ProtocolWitness or framing.ProtocolAggregatedWitness.
func NewHub[T comparable](n uint32, protocol framing.Protocol, opts ...hub.Option) *Hub[T] {
	cfg := hub.NewConfig(opts...)
	basicHub := basic.NewHub[T](n, opts...)
	signalMesh := endpoint.NewMesh(cfg.Logger.Named("witness-signal"), int(n), cfg.QueueSize)

	communicators := make([]*Communicator[T], n)
	for i := uint32(0); i < n; i++ {
		communicators[i] = New[T](basicHub.Communicator(i), protocol, cfg.Logger, signalMesh)
	}
	return &Hub[T]{basicHub: basicHub, communicators: communicators}
}

func (h *Hub[T]) Communicator(id uint32) *Communicator[T] { return h.communicators[id] }
func (h *Hub[T]) All() []*Communicator[T]                 { return h.communicators }
func (h *Hub[T]) BasicHub() *basic.Hub[T]                 { return h.basicHub }
