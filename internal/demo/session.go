// Package demo implements the scripted multi-participant session harness
// that backs the CLI's five demo modes. It sits outside the core protocol
// machinery but is still written against the real layer APIs in
// internal/basic, internal/reliable, internal/witness, and
// internal/barycentric - it drives them the same way a production caller
// would.
package demo

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/dedis-lab/bcast/common/log"
	"github.com/dedis-lab/bcast/internal/barycentric"
	"github.com/dedis-lab/bcast/internal/basic"
	"github.com/dedis-lab/bcast/internal/demo/replay"
	"github.com/dedis-lab/bcast/internal/framing"
	"github.com/dedis-lab/bcast/internal/hub"
	"github.com/dedis-lab/bcast/internal/reliable"
	"github.com/dedis-lab/bcast/internal/witness"
)

// collectTimeout bounds how long Run waits for a participant's terminal
// output before declaring the session stuck; a real deployment would instead
// run until an operator cancels it, but a scripted demo needs a deadline.
const collectTimeout = 5 * time.Second

// teardownWindow bounds how long Run waits, after cancelling the session
// context, for handler goroutines to report a fatal error on their Err()
// channel before giving up on collecting it - abort is asynchronous, so
// there is no guaranteed flush to wait for.
const teardownWindow = 200 * time.Millisecond

// Outcome is the result of one scripted session: the session id assigned for
// this run, the mode it drove, and a human-readable summary of what each
// participant observed, suitable for printing from the CLI.
type Outcome struct {
	SessionID string
	Mode      Mode
	Summaries map[uint32]string
}

// transcriptEntry is the shape appended to the replay store for each
// observable step of a session, the demo's debugging side-channel.
type transcriptEntry struct {
	Mode    Mode   `json:"mode"`
	Step    string `json:"step"`
	Detail  string `json:"detail"`
	AtNanos int64  `json:"at_nanos"`
}

type recorder func(step, detail string)

// Run drives one scripted session end to end: it wires the Hub the mode
// requires, replays the script's actions, collects each participant's
// terminal output, tears the session down, and returns a summary. If store
// is non-nil, every step is also appended to it under the session's uuid so
// a later run can replay the transcript for debugging.
func Run(ctx context.Context, l log.Logger, script Script, store *replay.Store) (Outcome, error) {
	sessionID := uuid.New().String()
	sl := l.Named("demo").With("session", sessionID, "mode", string(script.Mode))
	sl.Infow("starting session", "n", script.N, "actions", len(script.Actions))

	record := func(step, detail string) {
		if store == nil {
			return
		}
		entry := transcriptEntry{Mode: script.Mode, Step: step, Detail: detail, AtNanos: time.Now().UnixNano()}
		if err := store.Append(sessionID, entry); err != nil {
			sl.Warnw("failed to append transcript entry", "err", err)
		}
	}
	record("start", fmt.Sprintf("n=%d actions=%d", script.N, len(script.Actions)))

	var outcome Outcome
	var err error
	switch script.Mode {
	case ModeBasic:
		outcome, err = runBasic(ctx, sl, script, record)
	case ModeReliable:
		outcome, err = runReliable(ctx, sl, script, record)
	case ModeWitness:
		outcome, err = runWitness(ctx, sl, script, record, framing.ProtocolWitness)
	case ModeAggregatedWitness:
		outcome, err = runWitness(ctx, sl, script, record, framing.ProtocolAggregatedWitness)
	case ModeBarycentric:
		outcome, err = runBarycentric(ctx, sl, script, record)
	default:
		return Outcome{}, fmt.Errorf("unknown demo mode %q", script.Mode)
	}
	outcome.SessionID = sessionID
	outcome.Mode = script.Mode
	record("end", fmt.Sprintf("err=%v", err))
	return outcome, err
}

func runBasic(ctx context.Context, l log.Logger, script Script, record recorder) (Outcome, error) {
	h := basic.NewHub[string](script.N, hub.WithLogger(l))

	for _, a := range script.Actions {
		c := h.Communicator(a.From)
		if a.To != nil {
			c.Send(*a.To, a.Payload, a.Round)
			record("send", fmt.Sprintf("%d->%d: %s", a.From, *a.To, a.Payload))
		} else {
			c.Broadcast(a.Payload, a.Round)
			record("broadcast", fmt.Sprintf("%d: %s", a.From, a.Payload))
		}
	}

	recvCtx, cancel := context.WithTimeout(ctx, collectTimeout)
	defer cancel()

	summaries := make(map[uint32]string, script.N)
	for id := uint32(0); id < script.N; id++ {
		c := h.Communicator(id)
		var seen []string
		for _, a := range script.Actions {
			if a.To != nil && *a.To != id {
				continue
			}
			sender := a.From
			m, ok := c.Recv(recvCtx, &sender, "basic", nil, a.Round)
			if !ok {
				return Outcome{}, fmt.Errorf("participant %d never received basic message from %d", id, a.From)
			}
			seen = append(seen, m.Payload)
		}
		summaries[id] = fmt.Sprintf("received %v", seen)
	}
	return Outcome{Summaries: summaries}, nil
}

func runReliable(ctx context.Context, l log.Logger, script Script, record recorder) (Outcome, error) {
	h := reliable.NewHub[string](script.N, hub.WithLogger(l))
	runCtx, cancel := context.WithCancel(ctx)

	errChans := make([]<-chan error, script.N)
	for id := uint32(0); id < script.N; id++ {
		c := h.Communicator(id)
		c.Start(runCtx)
		errChans[id] = c.Err()
	}

	for _, a := range script.Actions {
		h.Communicator(a.From).Broadcast(a.Payload, a.Instance, a.Round)
		record("reliable-broadcast", fmt.Sprintf("%d: %s (instance=%d round=%d)", a.From, a.Payload, a.Instance, a.Round))
	}

	recvCtx, recvCancel := context.WithTimeout(ctx, collectTimeout)
	summaries := make(map[uint32]string, script.N)
	var recvErr error
	for id := uint32(0); id < script.N && recvErr == nil; id++ {
		for _, a := range script.Actions {
			m, ok := h.Communicator(id).Recv(recvCtx, &a.From, a.Instance, a.Round)
			if !ok {
				recvErr = fmt.Errorf("participant %d never delivered reliable broadcast from %d", id, a.From)
				break
			}
			summaries[id] = fmt.Sprintf("delivered %q from %d", m.Payload, a.From)
		}
	}
	recvCancel()
	cancel()

	teardownErr := hub.CollectErrors(teardownWindow, errChans...)
	if recvErr != nil {
		return Outcome{}, recvErr
	}
	return Outcome{Summaries: summaries}, teardownErr
}

func runWitness(ctx context.Context, l log.Logger, script Script, record recorder, protocol framing.Protocol) (Outcome, error) {
	h := witness.NewHub[string](script.N, protocol, hub.WithLogger(l))
	runCtx, cancel := context.WithCancel(ctx)

	errChans := make([]<-chan error, script.N)
	for id := uint32(0); id < script.N; id++ {
		c := h.Communicator(id)
		c.Start(runCtx)
		errChans[id] = c.Err()
	}

	for _, a := range script.Actions {
		h.Communicator(a.From).Broadcast(a.Payload, a.Round)
		record("witness-broadcast", fmt.Sprintf("%d: %s", a.From, a.Payload))
	}

	round := uint32(0)
	if len(script.Actions) > 0 {
		round = script.Actions[0].Round
	}

	recvCtx, recvCancel := context.WithTimeout(ctx, collectTimeout)
	summaries := make(map[uint32]string, script.N)
	var recvErr error
	for id := uint32(0); id < script.N && recvErr == nil; id++ {
		c := h.Communicator(id)
		var count int
		var ok bool
		if protocol == framing.ProtocolAggregatedWitness {
			rep, got := c.RecvAggregatedWitness(recvCtx, round)
			ok = got
			count = len(rep.Messages)
		} else {
			rep, got := c.RecvWitness(recvCtx, round)
			ok = got
			count = len(rep.Messages)
		}
		if !ok {
			recvErr = fmt.Errorf("participant %d never received a witness report", id)
			continue
		}
		summaries[id] = fmt.Sprintf("witness report with %d messages", count)
	}
	recvCancel()
	cancel()

	teardownErr := hub.CollectErrors(teardownWindow, errChans...)
	if recvErr != nil {
		return Outcome{}, recvErr
	}
	return Outcome{Summaries: summaries}, teardownErr
}

func runBarycentric(ctx context.Context, l log.Logger, script Script, record recorder) (Outcome, error) {
	h := barycentric.NewHub[string](script.N, hub.WithLogger(l))
	runCtx, cancel := context.WithCancel(ctx)

	errChans := make([]<-chan error, script.N)
	for id := uint32(0); id < script.N; id++ {
		c := h.Communicator(id)
		c.Start(runCtx)
		errChans[id] = c.Err()
	}

	for _, a := range script.Actions {
		h.Communicator(a.From).Broadcast(a.Payload, a.Round)
		record("barycentric-broadcast", fmt.Sprintf("%d: %s", a.From, a.Payload))
	}

	round := uint32(0)
	if len(script.Actions) > 0 {
		round = script.Actions[0].Round
	}

	recvCtx, recvCancel := context.WithTimeout(ctx, collectTimeout)
	summaries := make(map[uint32]string, script.N)
	var recvErr error
	for id := uint32(0); id < script.N && recvErr == nil; id++ {
		r, ok := h.Communicator(id).Recv(recvCtx, round)
		if !ok {
			recvErr = fmt.Errorf("participant %d never reached barycentric agreement", id)
			continue
		}
		summaries[id] = fmt.Sprintf("trusted %d messages", len(r.Messages))
	}
	recvCancel()
	cancel()

	teardownErr := hub.CollectErrors(teardownWindow, errChans...)
	if recvErr != nil {
		return Outcome{}, recvErr
	}
	return Outcome{Summaries: summaries}, teardownErr
}
