package demo

import (
	"fmt"

	"github.com/BurntSushi/toml"
)

// Mode names one of the five demo sessions the CLI can drive via
// <binary> <N> <mode>.
type Mode string

const (
	ModeBasic              Mode = "basic"
	ModeReliable           Mode = "reliable"
	ModeWitness            Mode = "witness"
	ModeAggregatedWitness  Mode = "aggregated_witness"
	ModeBarycentric        Mode = "barycentric"
)

// Action is one scripted step: participant `From` either sends Payload
// directly to `To` or, when To is nil, broadcasts it to the whole group.
// Round/Instance are only meaningful for protocols that key on them; zero
// values are harmless for modes that ignore a field.
type Action struct {
	From     uint32  `toml:"from"`
	To       *uint32 `toml:"to,omitempty"`
	Payload  string  `toml:"payload"`
	Round    uint32  `toml:"round"`
	Instance uint32  `toml:"instance"`
}

// Script describes one scripted multi-participant session: the group size
// and the ordered actions each participant performs. Loaded from a TOML file
// via LoadScript, or one of the five embedded defaults via DefaultScript.
type Script struct {
	Mode    Mode     `toml:"mode"`
	N       uint32   `toml:"n"`
	Actions []Action `toml:"actions"`
}

// LoadScript decodes a TOML session script from path.
func LoadScript(path string) (Script, error) {
	var s Script
	if _, err := toml.DecodeFile(path, &s); err != nil {
		return Script{}, fmt.Errorf("decoding session script %q: %w", path, err)
	}
	if s.N == 0 {
		return Script{}, fmt.Errorf("session script %q: n must be > 0", path)
	}
	return s, nil
}

// DefaultScript returns the embedded default session for mode.
func DefaultScript(mode Mode) (Script, error) {
	switch mode {
	case ModeBasic:
		one, two := uint32(1), uint32(2)
		return Script{
			Mode: mode,
			N:    3,
			Actions: []Action{
				{From: 0, To: &one, Payload: "m01"},
				{From: 1, To: &two, Payload: "m12"},
				{From: 0, Payload: "b0"},
			},
		}, nil
	case ModeReliable:
		return Script{
			Mode: mode,
			N:    4,
			Actions: []Action{
				{From: 0, Payload: "hello", Instance: 0, Round: 0},
			},
		}, nil
	case ModeWitness, ModeAggregatedWitness:
		const n = 6
		actions := make([]Action, n)
		for i := uint32(0); i < n; i++ {
			actions[i] = Action{From: i, Payload: fmt.Sprintf("witness value from %d", i), Round: 0}
		}
		return Script{Mode: mode, N: n, Actions: actions}, nil
	case ModeBarycentric:
		const n = 6
		actions := make([]Action, n)
		for i := uint32(0); i < n; i++ {
			actions[i] = Action{From: i, Payload: fmt.Sprintf("barycentric value from %d", i), Round: 0}
		}
		return Script{Mode: mode, N: n, Actions: actions}, nil
	default:
		return Script{}, fmt.Errorf("unknown demo mode %q", mode)
	}
}
