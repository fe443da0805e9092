package cli

import (
	"fmt"
	"os"

	"roller/internal/flags"

	"github.com/spf13/cobra"
)

var (
	buildVersion = "dev"
	buildCommit  = "unknown"
	buildDate    = "unknown"
)

var verbose bool

var rootCmd = &cobra.Command{
	Use:   "roller",
	Short: "Apply a scripted patch series across many repositories",
	Long: `Roller clones a list of repositories, applies a patch script to each,
and commits the result, optionally submitting it for code review.

Each repository is processed independently in an isolated workspace; one
repository failing never blocks the others unless --fail-fast is set.

Examples:
	# Write a starter configuration
	roller init

	# Execute a patch series
	roller run --config series.yaml

	# Preview the plan without touching any repository
	roller run --config series.yaml --dry-run

	# Print build info
	roller version`,
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&verbose, flags.FlagVerbose, false, "Enable verbose logging (prints every pipeline step and full error details)")
}

func SetBuildInfo(version, commit, date string) {
	if version != "" {
		buildVersion = version
	}
	if commit != "" {
		buildCommit = commit
	}
	if date != "" {
		buildDate = date
	}

	rootCmd.Version = fmt.Sprintf("%s (%s) %s", buildVersion, buildCommit, buildDate)
	rootCmd.SetVersionTemplate("{{.Version}}\n")
}

func BuildInfo() (version, commit, date string) {
	return buildVersion, buildCommit, buildDate
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
