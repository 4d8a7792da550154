package reliable

import (
	"github.com/dedis-lab/bcast/internal/basic"
	"github.com/dedis-lab/bcast/internal/endpoint"
	"github.com/dedis-lab/bcast/internal/hub"
)

// Hub wires N reliable Communicators over a shared signal Mesh and the
// basic layer each of them embeds.
type Hub[T comparable] struct {
	basicHub      *basic.Hub[T]
	communicators []*Communicator[T]
}

// NewHub allocates a basic.Hub plus a dedicated signal Mesh and returns N
// reliable Communicators, one per participant.
func NewHub[T comparable](n uint32, opts ...hub.Option) *Hub[T] {
	cfg := hub.NewConfig(opts...)
	basicHub := basic.NewHub[T](n, opts...)
	signalMesh := endpoint.NewMesh(cfg.Logger.Named("reliable-signal"), int(n), cfg.QueueSize)

	communicators := make([]*Communicator[T], n)
	for i := uint32(0); i < n; i++ {
		communicators[i] = New[T](basicHub.Communicator(i), cfg.Logger, signalMesh)
	}
	return &Hub[T]{basicHub: basicHub, communicators: communicators}
}

func (h *Hub[T]) Communicator(id uint32) *Communicator[T] {
	return h.communicators[id]
}

func (h *Hub[T]) All() []*Communicator[T] {
	return h.communicators
}

// BasicHub exposes the underlying basic hub, e.g. for a demo harness that
// also wants to exercise plain basic.Communicator.Send/Broadcast directly.
func (h *Hub[T]) BasicHub() *basic.Hub[T] {
	return h.basicHub
}
