package basic

import (
	"github.com/dedis-lab/bcast/internal/endpoint"
	"github.com/dedis-lab/bcast/internal/hub"
)

// Hub wires N Communicators sharing one Mesh, owning every per-participant
// instance and handing them out one at a time to the scenario driving the
// demo or test.
type Hub[T comparable] struct {
	communicators []*Communicator[T]
}

// NewHub allocates a fresh Mesh and one Communicator per participant.
func NewHub[T comparable](n uint32, opts ...hub.Option) *Hub[T] {
	cfg := hub.NewConfig(opts...)
	mesh := endpoint.NewMesh(cfg.Logger, int(n), cfg.QueueSize)
	communicators := make([]*Communicator[T], n)
	for i := uint32(0); i < n; i++ {
		communicators[i] = New[T](i, n, cfg.Logger, mesh)
	}
	return &Hub[T]{communicators: communicators}
}

// Communicator returns the Communicator owned by participant id.
func (h *Hub[T]) Communicator(id uint32) *Communicator[T] {
	return h.communicators[id]
}

// All returns every Communicator in the hub, ordered by id.
func (h *Hub[T]) All() []*Communicator[T] {
	return h.communicators
}
