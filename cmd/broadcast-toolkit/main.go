// Command broadcast-toolkit is the CLI entry point: `<binary> <N> <mode>`
// runs one scripted demo session and exits 0 on normal completion, non-zero
// on an unhandled protocol error. It is deliberately thin and delegates all
// session logic to internal/demo.
package main

import (
	"context"
	"fmt"
	"os"
	"strconv"

	"github.com/urfave/cli/v2"

	"github.com/dedis-lab/bcast/common/log"
	"github.com/dedis-lab/bcast/internal/demo"
	"github.com/dedis-lab/bcast/internal/demo/replay"
)

var scriptFlag = &cli.StringFlag{
	Name:  "script",
	Usage: "path to a TOML session script overriding the mode's default scenario",
}

var replayFlag = &cli.StringFlag{
	Name:  "replay-db",
	Usage: "optional bbolt file to append this session's transcript to, for later debugging replay",
}

var debugFlag = &cli.BoolFlag{
	Name:  "debug",
	Usage: "log at debug level instead of info",
}

func main() {
	app := &cli.App{
		Name:      "broadcast-toolkit",
		Usage:     "run a scripted Byzantine-tolerant broadcast demo session",
		ArgsUsage: "<n> <mode>",
		Flags:     []cli.Flag{scriptFlag, replayFlag, debugFlag},
		Action:    run,
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(c *cli.Context) error {
	if c.Args().Len() < 2 {
		return cli.Exit("usage: broadcast-toolkit <n> <mode>", 1)
	}

	n, err := strconv.ParseUint(c.Args().Get(0), 10, 32)
	if err != nil {
		return cli.Exit(fmt.Errorf("invalid n %q: %w", c.Args().Get(0), err), 1)
	}
	mode := demo.Mode(c.Args().Get(1))

	level := log.InfoLevel
	if c.Bool(debugFlag.Name) {
		level = log.DebugLevel
	}
	l := log.New(nil, level, true)

	var store *replay.Store
	if path := c.String(replayFlag.Name); path != "" {
		store, err = replay.Open(path)
		if err != nil {
			return cli.Exit(fmt.Errorf("opening replay db %q: %w", path, err), 1)
		}
		defer func() {
			if cerr := store.Close(); cerr != nil {
				l.Warnw("failed to close replay db", "err", cerr)
			}
		}()
	}

	script, err := resolveScript(mode, uint32(n), c.String(scriptFlag.Name))
	if err != nil {
		return cli.Exit(err, 1)
	}

	outcome, err := demo.Run(context.Background(), l, script, store)
	if err != nil {
		return cli.Exit(fmt.Errorf("session %s failed: %w", outcome.SessionID, err), 1)
	}

	fmt.Fprintf(c.App.Writer, "session %s (%s) completed:\n", outcome.SessionID, outcome.Mode)
	for id := uint32(0); id < uint32(n); id++ {
		fmt.Fprintf(c.App.Writer, "  participant %d: %s\n", id, outcome.Summaries[id])
	}
	return nil
}

// resolveScript loads scriptPath if given (the script's own mode and group
// size then apply), otherwise falls back to mode's embedded default
// scenario. A default scenario has a fixed group size: a non-zero n that
// differs from it is rejected with an error.
func resolveScript(mode demo.Mode, n uint32, scriptPath string) (demo.Script, error) {
	if scriptPath != "" {
		return demo.LoadScript(scriptPath)
	}
	script, err := demo.DefaultScript(mode)
	if err != nil {
		return demo.Script{}, err
	}
	if n != 0 && n != script.N {
		return demo.Script{}, fmt.Errorf("mode %q's default scenario requires n=%d, got n=%d (use -script for a custom group size)", mode, script.N, n)
	}
	return script, nil
}
