package barycentric

import (
	"github.com/dedis-lab/bcast/internal/basic"
	"github.com/dedis-lab/bcast/internal/endpoint"
	"github.com/dedis-lab/bcast/internal/hub"
)

// Hub wires N barycentric Communicators over a shared basic Hub and a
// dedicated signal Mesh for the embedded reliable-broadcast engines.
type Hub[T comparable] struct {
	basicHub      *basic.Hub[T]
	communicators []*Communicator[T]
}

// NewHub constructs a Hub for n participants.
func NewHub[T comparable](n uint32, opts ...hub.Option) *Hub[T] {
	cfg := hub.NewConfig(opts...)
	basicHub := basic.NewHub[T](n, opts...)
	signalMesh := endpoint.NewMesh(cfg.Logger.Named("barycentric-signal"), int(n), cfg.QueueSize)

	communicators := make([]*Communicator[T], n)
	for i := uint32(0); i < n; i++ {
		communicators[i] = New[T](basicHub.Communicator(i), cfg.Logger, signalMesh)
	}
	return &Hub[T]{basicHub: basicHub, communicators: communicators}
}

func (h *Hub[T]) Communicator(id uint32) *Communicator[T] { return h.communicators[id] }
func (h *Hub[T]) All() []*Communicator[T]                 { return h.communicators }
func (h *Hub[T]) BasicHub() *basic.Hub[T]                 { return h.basicHub }
