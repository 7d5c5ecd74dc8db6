package app

import (
	"context"
	"fmt"
	"os"

	"golang.org/x/term"

	"remote-sync/internal/state"
)

func defaultIsInteractiveTerminal() bool {
	return term.IsTerminal(int(os.Stdout.Fd()))
}

func (a *App) interactive() bool {
	return a.IsInteractiveTerminal != nil && a.IsInteractiveTerminal()
}

// RunConfig prints the fully resolved configuration, including discovered
// remotes and environment overrides, as YAML.
func (a *App) RunConfig(ctx context.Context) (int, error) {
	loaded, err := a.loadConfig(ctx)
	if err != nil {
		return 1, err
	}
	out, err := state.MarshalConfig(loaded.Config)
	if err != nil {
		return 2, fmt.Errorf("render config: %w", err)
	}
	if loaded.Path != "" {
		fmt.Fprintf(a.Stdout, "# source: %s\n", loaded.Path)
	} else {
		fmt.Fprintln(a.Stdout, "# source: defaults (no config file found)")
	}
	_, err = a.Stdout.Write(out)
	if err != nil {
		return 2, err
	}
	return 0, nil
}
