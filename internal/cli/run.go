package cli

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"roller/internal/config"
	"roller/internal/discovery"
	"roller/internal/engine"
	"roller/internal/flags"
	"roller/internal/output"
	"roller/internal/vcs"
	"roller/internal/workspace"

	"github.com/spf13/cobra"
)

var runFlags struct {
	configPath  string
	dryRun      bool
	failFast    bool
	concurrency int
	timeout     time.Duration
	out         string
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Execute a patch series",
	Long: `Execute the patch series described by a configuration file.

Each repository is cloned into a fresh workspace directory, the patch script
runs inside it, and resulting changes are committed. Review submission and a
test gate are optional per the configuration. Repositories where the script
produces no changes are skipped, which makes reruns of an already-applied
series safe.

Exit codes:
	0 = every repository succeeded or was skipped
	1 = at least one repository failed
	3 = fatal error (the run did not start)

Examples:
  roller run --config series.yaml
  roller run --config series.yaml --dry-run
  roller run --config series.yaml --fail-fast --concurrency 1
  roller run --config series.yaml --out report.json`,
	Run: func(cmd *cobra.Command, args []string) {
		os.Exit(runSeries(cmd))
	},
}

func runSeries(cmd *cobra.Command) int {
	cfg, err := config.Load(runFlags.configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 3
	}
	applyRunOverrides(cmd, cfg)

	ctx := context.Background()
	projects, err := expandProjects(ctx, cfg.Series.Projects)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 3
	}

	out := output.NewManager()
	defer func() {
		if err := out.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "Error: closing output: %v\n", err)
		}
	}()
	if err := out.AddSink(output.NewConsoleSink(os.Stdout, verbose)); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 3
	}
	if runFlags.out != "" {
		sink, err := output.NewFileSink(runFlags.out)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			return 3
		}
		if err := out.AddSink(sink); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			return 3
		}
	}

	eng := engine.New(
		engine.RunOptions{
			Concurrency:            cfg.Options.Concurrency,
			ExitOnFirstFailure:     cfg.Options.ExitOnFirstFailure,
			ContinueOnCommandError: cfg.Options.ContinueOnCommandError,
			DryRun:                 cfg.Options.DryRun,
			Verbose:                verbose,
			CommandTimeout:         time.Duration(cfg.Options.CommandTimeout),
		},
		engine.PatchSpec{
			ScriptPath:   cfg.Series.Script,
			PreCommands:  cfg.Series.PreCommands,
			PostCommands: cfg.Series.PostCommands,
			Commit:       cfg.Series.Commit,
			Review:       cfg.Series.Review,
			Topic:        cfg.Series.Topic,
		},
		engine.TestSpec{
			Enabled:  cfg.Tests.Run,
			Blocking: cfg.Tests.Blocking,
			Command:  cfg.Tests.Command,
		},
		workspace.NewManager(""),
		out,
	)

	rep, runErr := eng.Run(ctx, buildDescriptors(cfg, projects))
	if runErr != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", runErr)
	}
	return engine.ExitCode(rep, runErr != nil)
}

func applyRunOverrides(cmd *cobra.Command, cfg *config.Config) {
	if cmd == nil {
		return
	}
	if cmd.Flags().Changed(flags.FlagDryRun) {
		cfg.Options.DryRun = runFlags.dryRun
	}
	if cmd.Flags().Changed(flags.FlagFailFast) {
		cfg.Options.ExitOnFirstFailure = runFlags.failFast
	}
	if cmd.Flags().Changed(flags.FlagConcurrency) && runFlags.concurrency > 0 {
		cfg.Options.Concurrency = runFlags.concurrency
	}
	if cmd.Flags().Changed(flags.FlagTimeout) && runFlags.timeout > 0 {
		cfg.Options.CommandTimeout = config.Duration(runFlags.timeout)
	}
}

// expandProjects resolves github-org: and github-user: entries. Token
// resolution and API access are skipped entirely when no entry needs them.
func expandProjects(ctx context.Context, projects []string) ([]string, error) {
	if !discovery.NeedsExpansion(projects) {
		return projects, nil
	}

	token, _, err := discovery.ResolveAuthToken(ctx, "")
	if err != nil {
		return nil, fmt.Errorf("failed to resolve GitHub auth token: %w", err)
	}
	if strings.TrimSpace(token) == "" {
		return nil, fmt.Errorf("a GitHub auth token is required to expand github-org/github-user entries (set GITHUB_TOKEN or run 'gh auth login')")
	}

	client, err := discovery.NewClient(ctx, token, discovery.WithVerbose(verbose, nil))
	if err != nil {
		return nil, fmt.Errorf("failed to create GitHub client: %w", err)
	}
	return discovery.Expand(ctx, client, projects)
}

func buildDescriptors(cfg *config.Config, projects []string) []engine.RepositoryDescriptor {
	descs := make([]engine.RepositoryDescriptor, 0, len(projects))
	for _, project := range projects {
		name := vcs.RepoNameFromURL(project)
		descs = append(descs, engine.RepositoryDescriptor{
			URL:           project,
			Name:          name,
			Branch:        cfg.Series.Branch,
			CreateBranch:  cfg.Series.CreateBranch,
			StayOnBranch:  cfg.Series.StayOnBranch,
			CommitMessage: config.RenderCommitMessage(cfg.Series.CommitMessage, name),
		})
	}
	return descs
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringVar(&runFlags.configPath, flags.FlagConfig, "series.yaml", "Path to the series configuration file")
	runCmd.Flags().BoolVar(&runFlags.dryRun, flags.FlagDryRun, false, "Print the plan without cloning or modifying any repository")
	runCmd.Flags().BoolVar(&runFlags.failFast, flags.FlagFailFast, false, "Stop dispatching new repositories after the first failure")
	runCmd.Flags().IntVar(&runFlags.concurrency, flags.FlagConcurrency, 0, "Concurrent workers (overrides options.concurrency)")
	runCmd.Flags().DurationVar(&runFlags.timeout, flags.FlagTimeout, 0, "Per-command timeout (overrides options.command_timeout)")
	runCmd.Flags().StringVar(&runFlags.out, flags.FlagOut, "", "Write a JSON run report to this path")
}
