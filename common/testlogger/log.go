// Package testlogger constructs the per-test Logger every _test.go in this
// toolkit passes to a Hub: every concurrent RB/WB/AWB/BA scenario spawns one
// handler goroutine per participant, so tests rely on each log line being
// tagged with the originating test name to stay legible when several
// participants' Named/With-scoped loggers interleave in one run's output.
package testlogger

import (
	"os"
	"testing"

	"github.com/dedis-lab/bcast/common/log"
)

// Level defaults a test's logger to Info, raised to Debug when
// BCAST_TEST_LOGS=DEBUG is set, so a concurrent scenario's phase-transition
// logging (Input/Echo/Vote, promotions, barycentric views) can be dialed up
// without touching the test itself.
func Level(t testing.TB) int {
	logLevel := log.InfoLevel
	debugEnv, isDebug := os.LookupEnv("BCAST_TEST_LOGS")
	if isDebug && debugEnv == "DEBUG" {
		t.Log("Enabling DebugLevel logs")
		logLevel = log.DebugLevel
	}

	return logLevel
}

// New returns a Logger tagged with the test's name, ready to hand to a
// Hub constructor; each layer's Communicator further scopes it with
// Named/With per participant.
func New(t testing.TB) log.Logger {
	return log.New(nil, Level(t), true).
		With("testName", t.Name())
}
