package cli

import (
	"fmt"
	"os"

	"roller/internal/flags"

	"github.com/spf13/cobra"
)

const configTemplate = `# Patch series configuration.
#
# Run with: roller run --config series.yaml

series:
  # Repository sources: clone URLs, local paths, or account expansions
  # (github-org:NAME, github-user:NAME).
  projects:
    - https://example.org/widget.git

  # Executable script applied inside each cloned repository. It runs with
  # the repository root as its working directory.
  script: ./patch.sh

  # Commit message. {{ project_name }} is replaced with the repository name.
  commit_message: "Apply patch series to {{ project_name }}"

  # Set to false to leave changes uncommitted in the workspace.
  commit: true

  # Submit each commit for code review. Requires commit: true.
  review: false

  # Topic attached to review submissions so the series can be tracked as
  # one unit.
  # topic: widget-refresh

  # Branch to switch to before patching. Created when create_branch is set
  # and neither a local nor a remote branch of that name exists.
  # branch: stable
  # create_branch: false

  # Keep the repository on the series branch after a successful run instead
  # of restoring the branch that was checked out at clone time.
  # stay_on_branch: false

  # Shell command lines run before patching / after committing.
  # pre_commands:
  #   - git fetch --all
  # post_commands:
  #   - make docs

tests:
  # Run the test command after patching, before committing.
  run: false
  # When blocking, a test failure prevents the commit; otherwise it is
  # reported as a warning.
  blocking: false
  command: tox

options:
  # Number of repositories processed in parallel.
  concurrency: 4
  # Timeout applied to every external command.
  command_timeout: 10m
  # Treat pre/post command failures as warnings instead of aborting the
  # repository.
  continue_on_command_error: false
  # Stop dispatching new repositories after the first failure.
  exit_on_first_failure: false
`

var initFlags struct {
	output string
	force  bool
}

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a starter series configuration",
	Long: `Write a documented series configuration template to the given path.

The template lists every supported setting with its default. Edit the
projects list, script path, and commit message, then execute the series
with 'roller run'.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		path := initFlags.output
		if !initFlags.force {
			if _, err := os.Stat(path); err == nil {
				return fmt.Errorf("%s already exists (use --%s to overwrite)", path, flags.FlagForce)
			}
		}
		if err := os.WriteFile(path, []byte(configTemplate), 0o644); err != nil {
			return fmt.Errorf("writing %s: %w", path, err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", path)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(initCmd)

	initCmd.Flags().StringVar(&initFlags.output, flags.FlagOutput, "series.yaml", "Path to write the configuration template")
	initCmd.Flags().BoolVar(&initFlags.force, flags.FlagForce, false, "Overwrite an existing file")
}
