package main

import (
	"context"
	"fmt"
	"os"

	cli "github.com/urfave/cli/v3"
	"go.uber.org/zap"

	"bloomepub/config"
	"bloomepub/state"
)

// outputConfiguration writes active (or embedded default) configuration to
// the file named by the first argument or to stdout.
func outputConfiguration(ctx context.Context, cmd *cli.Command) error {
	env := state.EnvFromContext(ctx)
	if cmd.Args().Len() > 1 {
		env.Log.Warn("Malformed command line, too many destinations", zap.Strings("ignoring", cmd.Args().Slice()[1:]))
	}

	var (
		data []byte
		err  error
		kind = "actual"
	)
	if cmd.Bool("default") {
		kind = "default"
		data, err = config.Prepare()
	} else {
		data, err = config.Dump(env.Cfg)
	}
	if err != nil {
		return fmt.Errorf("unable to get configuration: %w", err)
	}

	fname := cmd.Args().Get(0)
	if len(fname) == 0 {
		env.Log.Info("Outputting configuration", zap.String("state", kind), zap.String("file", "STDOUT"))
		if _, err := os.Stdout.Write(data); err != nil {
			return fmt.Errorf("unable to write configuration: %w", err)
		}
		return nil
	}

	env.Log.Info("Outputting configuration", zap.String("state", kind), zap.String("file", fname))
	if err := os.WriteFile(fname, data, 0644); err != nil {
		return fmt.Errorf("unable to write configuration to '%s': %w", fname, err)
	}
	return nil
}
