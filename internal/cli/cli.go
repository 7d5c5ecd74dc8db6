package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"remote-sync/internal/app"
	"remote-sync/internal/domain"
	"remote-sync/internal/state"
	"github.com/spf13/cobra"
)

type appRunner interface {
	Configure(opts app.GlobalOptions)
	RunPush(ctx context.Context, opts app.PushOptions) (int, error)
	RunPushAll(ctx context.Context, opts app.PushOptions) (int, error)
	RunStatus(ctx context.Context, opts app.StatusOptions) (int, error)
	RunHealth(ctx context.Context, jsonOut bool) (int, error)
	RunQueueShow(jsonOut bool) (int, error)
	RunQueueProcess(ctx context.Context, opts app.PushOptions) (int, error)
	RunQueueClear() (int, error)
	RunTargetsSync(ctx context.Context, names []string) (int, error)
	RunSyncAll(ctx context.Context, opts app.PushOptions, targets []string) (int, error)
	RunConfig(ctx context.Context) (int, error)
	RunVersion() (int, error)
}

type runDeps struct {
	workingDir func() (string, error)
	newApp     func(paths state.Paths, stdout io.Writer, stderr io.Writer) appRunner
}

type runtimeState struct {
	stdout io.Writer
	stderr io.Writer
	global app.GlobalOptions

	deps runDeps
	app  appRunner
}

type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string {
	if e.err != nil {
		return e.err.Error()
	}
	return fmt.Sprintf("exit code %d", e.code)
}

func (e *exitError) Unwrap() error {
	return e.err
}

func defaultRunDeps() runDeps {
	return runDeps{
		workingDir: os.Getwd,
		newApp: func(paths state.Paths, stdout io.Writer, stderr io.Writer) appRunner {
			return app.New(paths, stdout, stderr)
		},
	}
}

func Run(args []string, stdout io.Writer, stderr io.Writer) int {
	return runWithDeps(args, stdout, stderr, defaultRunDeps())
}

func NewRootCommand(stdout io.Writer, stderr io.Writer) *cobra.Command {
	runtime := &runtimeState{
		stdout: stdout,
		stderr: stderr,
		deps:   defaultRunDeps(),
	}
	cmd := newRootCommand(runtime)
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)
	return cmd
}

func runWithDeps(args []string, stdout io.Writer, stderr io.Writer, deps runDeps) int {
	runtime := &runtimeState{
		stdout: stdout,
		stderr: stderr,
		deps:   deps,
	}

	cmd := newRootCommand(runtime)
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)
	cmd.SetArgs(args)

	err := cmd.ExecuteContext(context.Background())
	if err == nil {
		return 0
	}

	var codedErr *exitError
	if errors.As(err, &codedErr) {
		if codedErr.err != nil {
			fmt.Fprintln(stderr, codedErr.err)
		}
		if codedErr.code == 0 {
			return 2
		}
		return codedErr.code
	}

	fmt.Fprintln(stderr, err)
	return 2
}

func (r *runtimeState) appRunner() (appRunner, error) {
	if r.app != nil {
		r.app.Configure(r.global)
		return r.app, nil
	}

	root, err := r.deps.workingDir()
	if err != nil {
		return nil, fmt.Errorf("resolve working directory: %w", err)
	}

	a := r.deps.newApp(state.NewPaths(root), r.stdout, r.stderr)
	a.Configure(r.global)
	r.app = a
	return r.app, nil
}

// run resolves the app and maps its (code, err) result onto an exitError.
func (r *runtimeState) run(fn func(appRunner) (int, error)) error {
	runner, err := r.appRunner()
	if err != nil {
		return withExitCode(2, err)
	}
	code, err := fn(runner)
	return withExitCode(code, err)
}

func newRootCommand(runtime *runtimeState) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "remote-sync",
		Short: "Push branches to every configured git remote.",
		Long: "remote-sync pushes the current branch to several git remotes at once, " +
			"bringing up VPNs where needed and queueing pushes that fail for later replay.",
		Version:       domain.Version,
		SilenceErrors: true,
		SilenceUsage:  true,
		Args:          cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runtime.run(func(a appRunner) (int, error) {
				return a.RunStatus(cmd.Context(), app.StatusOptions{})
			})
		},
	}
	cmd.SetVersionTemplate("remote-sync {{.Version}}\n")

	cmd.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return withExitCode(2, err)
	})

	flags := cmd.PersistentFlags()
	flags.StringVar(&runtime.global.ConfigPath, "config", "", "Path to the config file.")
	flags.BoolVar(&runtime.global.DryRun, "dry-run", false, "Show what would happen without pushing or syncing.")
	flags.BoolVarP(&runtime.global.Verbose, "verbose", "v", false, "Enable debug logging.")
	flags.BoolVarP(&runtime.global.Quiet, "quiet", "q", false, "Only log errors.")
	flags.BoolVar(&runtime.global.NoParallel, "no-parallel", false, "Push to remotes one at a time.")

	cmd.AddCommand(
		newPushCommand(runtime),
		newPushAllCommand(runtime),
		newStatusCommand(runtime),
		newHealthCommand(runtime),
		newQueueCommand(runtime),
		newTargetsCommand(runtime),
		newSyncAllCommand(runtime),
		newConfigCommand(runtime),
		newVersionCommand(runtime),
	)
	cmd.AddCommand(newCompletionCommand(runtime, cmd))

	return cmd
}

func withExitCode(code int, err error) error {
	if err == nil {
		if code == 0 {
			return nil
		}
		return &exitError{code: code}
	}
	if code == 0 {
		code = 2
	}
	return &exitError{code: code, err: err}
}

func addPushFlags(cmd *cobra.Command, opts *app.PushOptions) {
	cmd.Flags().StringSliceVar(&opts.Remotes, "remote", nil, "Limit to these remotes (comma separated or repeatable).")
	cmd.Flags().StringVar(&opts.Branch, "branch", "", "Branch to push instead of the current one.")
	cmd.Flags().BoolVar(&opts.Force, "force", false, "Push with --force-with-lease, overriding force-push policy.")
}

func newPushCommand(runtime *runtimeState) *cobra.Command {
	var opts app.PushOptions
	cmd := &cobra.Command{
		Use:   "push",
		Short: "Push the current branch to its configured remotes.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runtime.run(func(a appRunner) (int, error) {
				return a.RunPush(cmd.Context(), opts)
			})
		},
	}
	addPushFlags(cmd, &opts)
	return cmd
}

func newPushAllCommand(runtime *runtimeState) *cobra.Command {
	var opts app.PushOptions
	cmd := &cobra.Command{
		Use:   "push-all",
		Short: "Push every local branch to its matching remotes.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runtime.run(func(a appRunner) (int, error) {
				return a.RunPushAll(cmd.Context(), opts)
			})
		},
	}
	addPushFlags(cmd, &opts)
	return cmd
}

func newStatusCommand(runtime *runtimeState) *cobra.Command {
	var opts app.StatusOptions
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show how the branch compares to every remote.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runtime.run(func(a appRunner) (int, error) {
				return a.RunStatus(cmd.Context(), opts)
			})
		},
	}
	cmd.Flags().StringVar(&opts.Branch, "branch", "", "Branch to compare instead of the current one.")
	cmd.Flags().BoolVar(&opts.JSON, "json", false, "Print sync status as JSON.")
	return cmd
}

func newHealthCommand(runtime *runtimeState) *cobra.Command {
	var jsonOut bool
	cmd := &cobra.Command{
		Use:   "health",
		Short: "Check that remotes and sync targets are reachable.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runtime.run(func(a appRunner) (int, error) {
				return a.RunHealth(cmd.Context(), jsonOut)
			})
		},
	}
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Print health results as JSON.")
	return cmd
}

func newQueueCommand(runtime *runtimeState) *cobra.Command {
	queueCmd := &cobra.Command{
		Use:           "queue",
		Short:         "Inspect, replay or clear the offline push queue.",
		SilenceErrors: true,
		SilenceUsage:  true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := cmd.Help(); err != nil {
				return withExitCode(2, err)
			}
			return withExitCode(2, errors.New("queue subcommand is required"))
		},
	}

	var jsonOut bool
	showCmd := &cobra.Command{
		Use:   "show",
		Short: "List queued pushes.",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			return runtime.run(func(a appRunner) (int, error) {
				return a.RunQueueShow(jsonOut)
			})
		},
	}
	showCmd.Flags().BoolVar(&jsonOut, "json", false, "Print the queue as JSON.")

	var opts app.PushOptions
	processCmd := &cobra.Command{
		Use:   "process",
		Short: "Retry queued pushes; successes leave the queue.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runtime.run(func(a appRunner) (int, error) {
				return a.RunQueueProcess(cmd.Context(), opts)
			})
		},
	}
	addPushFlags(processCmd, &opts)

	clearCmd := &cobra.Command{
		Use:   "clear",
		Short: "Drop every queued push.",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			return runtime.run(func(a appRunner) (int, error) {
				return a.RunQueueClear()
			})
		},
	}

	queueCmd.AddCommand(showCmd, processCmd, clearCmd)
	return queueCmd
}

func newTargetsCommand(runtime *runtimeState) *cobra.Command {
	targetsCmd := &cobra.Command{
		Use:           "targets",
		Short:         "Mirror the working tree to filesystem and rsync targets.",
		SilenceErrors: true,
		SilenceUsage:  true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := cmd.Help(); err != nil {
				return withExitCode(2, err)
			}
			return withExitCode(2, errors.New("targets subcommand is required"))
		},
	}

	var names []string
	syncCmd := &cobra.Command{
		Use:   "sync",
		Short: "Sync the working tree to configured targets.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runtime.run(func(a appRunner) (int, error) {
				return a.RunTargetsSync(cmd.Context(), names)
			})
		},
	}
	syncCmd.Flags().StringSliceVar(&names, "target", nil, "Limit to these targets (comma separated or repeatable).")

	targetsCmd.AddCommand(syncCmd)
	return targetsCmd
}

func newSyncAllCommand(runtime *runtimeState) *cobra.Command {
	var opts app.PushOptions
	var names []string
	cmd := &cobra.Command{
		Use:   "sync-all",
		Short: "Push to remotes, then sync every target.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runtime.run(func(a appRunner) (int, error) {
				return a.RunSyncAll(cmd.Context(), opts, names)
			})
		},
	}
	addPushFlags(cmd, &opts)
	cmd.Flags().StringSliceVar(&names, "target", nil, "Limit to these targets (comma separated or repeatable).")
	return cmd
}

func newConfigCommand(runtime *runtimeState) *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Print the resolved configuration as YAML.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runtime.run(func(a appRunner) (int, error) {
				return a.RunConfig(cmd.Context())
			})
		},
	}
}

func newVersionCommand(runtime *runtimeState) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version.",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			return runtime.run(func(a appRunner) (int, error) {
				return a.RunVersion()
			})
		},
	}
}

func newCompletionCommand(runtime *runtimeState, root *cobra.Command) *cobra.Command {
	return &cobra.Command{
		Use:       "completion [bash|zsh|fish|powershell]",
		Short:     "Generate shell completion scripts.",
		Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		ValidArgs: []string{"bash", "zsh", "fish", "powershell"},
		RunE: func(_ *cobra.Command, args []string) error {
			var err error
			switch args[0] {
			case "bash":
				err = root.GenBashCompletionV2(runtime.stdout, true)
			case "zsh":
				err = root.GenZshCompletion(runtime.stdout)
			case "fish":
				err = root.GenFishCompletion(runtime.stdout, true)
			case "powershell":
				err = root.GenPowerShellCompletionWithDesc(runtime.stdout)
			default:
				err = fmt.Errorf("unsupported shell %q", args[0])
			}
			return withExitCode(0, err)
		},
	}
}
