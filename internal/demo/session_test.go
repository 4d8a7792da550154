package demo_test

import (
	"context"
	"testing"
	"time"

	"github.com/dedis-lab/bcast/common/testlogger"
	"github.com/dedis-lab/bcast/internal/demo"
	"github.com/stretchr/testify/require"
)

func TestRunBasicScenario(t *testing.T) {
	l := testlogger.New(t)
	script, err := demo.DefaultScript(demo.ModeBasic)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	outcome, err := demo.Run(ctx, l, script, nil)
	require.NoError(t, err)
	require.Equal(t, demo.ModeBasic, outcome.Mode)
	require.NotEmpty(t, outcome.SessionID)
	require.Len(t, outcome.Summaries, 3)
}

func TestRunReliableScenario(t *testing.T) {
	l := testlogger.New(t)
	script, err := demo.DefaultScript(demo.ModeReliable)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	outcome, err := demo.Run(ctx, l, script, nil)
	require.NoError(t, err)
	require.Len(t, outcome.Summaries, 4)
}

func TestRunWitnessScenario(t *testing.T) {
	l := testlogger.New(t)
	script, err := demo.DefaultScript(demo.ModeWitness)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	outcome, err := demo.Run(ctx, l, script, nil)
	require.NoError(t, err)
	require.Len(t, outcome.Summaries, 6)
}

func TestRunAggregatedWitnessScenario(t *testing.T) {
	l := testlogger.New(t)
	script, err := demo.DefaultScript(demo.ModeAggregatedWitness)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	outcome, err := demo.Run(ctx, l, script, nil)
	require.NoError(t, err)
	require.Len(t, outcome.Summaries, 6)
}

func TestRunBarycentricScenario(t *testing.T) {
	l := testlogger.New(t)
	script, err := demo.DefaultScript(demo.ModeBarycentric)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	outcome, err := demo.Run(ctx, l, script, nil)
	require.NoError(t, err)
	require.Len(t, outcome.Summaries, 6)
}

func TestRunUnknownModeIsRejected(t *testing.T) {
	l := testlogger.New(t)
	_, err := demo.Run(context.Background(), l, demo.Script{Mode: "nonsense", N: 1}, nil)
	require.Error(t, err)
}
