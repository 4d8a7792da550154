package reliable

import (
	"context"

	"github.com/dedis-lab/bcast/common/log"
	"github.com/dedis-lab/bcast/internal/basic"
	"github.com/dedis-lab/bcast/internal/endpoint"
	"github.com/dedis-lab/bcast/internal/framing"
)

// Communicator layers plain reliable broadcast over a basic.Communicator:
// Broadcast starts a new RB instance, Recv retrieves a reliably-delivered
// Message once the local Engine has pushed it into the basic queue.
type Communicator[T comparable] struct {
	basic  *basic.Communicator[T]
	engine *Engine[T]
}

// New constructs a reliable Communicator. signalMesh must have the same
// participant count as basicComm's hub and is owned exclusively by the
// reliable layer - never shared with the basic message mesh.
func New[T comparable](basicComm *basic.Communicator[T], l log.Logger, signalMesh *endpoint.Mesh) *Communicator[T] {
	c := &Communicator[T]{basic: basicComm}
	c.engine = NewEngine[T](basicComm.ID(), basicComm.N(), l, signalMesh, c)
	return c
}

// Deliver implements Deliverer: a validated reliable-broadcast Message is
// pushed straight into the owning participant's own basic queue, where Recv
// picks it up.
func (c *Communicator[T]) Deliver(content framing.Content[T]) {
	if content.Kind != framing.ContentMessage {
		return
	}
	c.basic.PushLocal(*content.Message)
}

// Start launches the engine's signal-processing loop; callers must invoke
// this once per Communicator before Broadcast/Recv are used.
func (c *Communicator[T]) Start(ctx context.Context) {
	go c.engine.Run(ctx)
}

// Err surfaces a fatal engine abort.
func (c *Communicator[T]) Err() <-chan error {
	return c.engine.Err()
}

// Broadcast starts a new reliable broadcast instance for payload.
func (c *Communicator[T]) Broadcast(payload T, instance, round uint32) {
	inst := instance
	m := framing.Message[T]{Protocol: framing.ProtocolReliable, SenderID: c.basic.ID(), Payload: payload, InstanceID: &inst, Round: round}
	c.engine.Broadcast(framing.MessageContent(m), instance, round)
}

// Recv blocks until the reliably-delivered Message from sender (or any
// sender, if nil) for the given instance/round is available.
func (c *Communicator[T]) Recv(ctx context.Context, sender *uint32, instance, round uint32) (framing.Message[T], bool) {
	return c.basic.Recv(ctx, sender, framing.ProtocolReliable, &instance, round)
}

// ID returns the participant id this Communicator belongs to.
func (c *Communicator[T]) ID() uint32 { return c.basic.ID() }
