package log

import (
	"bufio"
	"bytes"
	"io"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

// TestLoggerLevelFiltering exercises exactly the methods every handler loop
// in this toolkit calls - Infow/Debugw/Warnw/Errorw - at the thresholds
// internal/demo and cmd/broadcast-toolkit actually construct (Info by
// default, Debug behind -debug).
func TestLoggerLevelFiltering(t *testing.T) {
	type logTest struct {
		with       []interface{}
		allowedLvl int
		logging    func(l Logger)
		out        []string
	}

	w := func(kv ...interface{}) []interface{} {
		return kv
	}
	o := func(outs ...string) []string {
		return outs
	}
	var tests = []logTest{
		{nil, InfoLevel, func(l Logger) { l.Infow("starting session") }, o("starting session")},
		{nil, InfoLevel, func(l Logger) { l.Debugw("broadcasting report") }, nil},
		{nil, DebugLevel, func(l Logger) { l.Warnw("dropping malformed frame") }, o("dropping malformed frame")},
		{nil, ErrorLevel, func(l Logger) { l.Warnw("dropping malformed frame") }, nil},
		{nil, DebugLevel, func(l Logger) { l.Errorw("failed to encode message") }, o("failed to encode message")},
		{w("round", 3), InfoLevel, func(l Logger) { l.Infow("delivered") }, o("round", "3", "delivered")},
	}

	for i, test := range tests {
		t.Logf(" -- test %d -- \n", i)

		var b bytes.Buffer
		writer := bufio.NewWriter(&b)
		syncer := zapcore.AddSync(writer)

		logger := New(syncer, test.allowedLvl, true)
		if test.with != nil {
			logger = logger.With(test.with...)
		}

		test.logging(logger)
		writer.Flush()

		if test.out != nil {
			requireContains(t, &b, test.out, true)
		} else {
			requireContains(t, &b, nil, false)
		}
	}
}

// TestNamedScopesLoggerOutput matches the `l.Named("reliable").With(...)`
// scoping every layer's Communicator/Engine constructor applies.
func TestNamedScopesLoggerOutput(t *testing.T) {
	var b bytes.Buffer
	writer := bufio.NewWriter(&b)
	syncer := zapcore.AddSync(writer)

	logger := New(syncer, InfoLevel, true).Named("reliable").With("participant", 2)
	logger.Infow("echo broadcast", "instance", 1)
	writer.Flush()

	out := b.String()
	require.Contains(t, out, "reliable")
	require.Contains(t, out, "participant")
	require.Contains(t, out, "echo broadcast")
}

// TestPanicwLogsBeforePanicking exercises the path the reliable engine's
// repeated-Input abort depends on: Panicw still writes its entry before
// panicking, so the owning goroutine's recovered panic can report a clean
// error alongside a log line that actually reached the sink.
func TestPanicwLogsBeforePanicking(t *testing.T) {
	var b bytes.Buffer
	writer := bufio.NewWriter(&b)
	syncer := zapcore.AddSync(writer)

	logger := New(syncer, InfoLevel, true)

	func() {
		defer func() {
			require.NotNil(t, recover())
		}()
		logger.Panicw("reliable broadcast instance id already used", "instance", "0::reliable::0::message::0::0")
	}()

	writer.Flush()
	require.Contains(t, b.String(), "instance id already used")
}

func requireContains(t *testing.T, r io.Reader, outs []string, present bool) {
	out, err := io.ReadAll(r)
	require.NoError(t, err)
	if !present {
		require.Equal(t, string(out), "")
		return
	}
	for _, o := range outs {
		require.Contains(t, string(out), o)
	}
}
