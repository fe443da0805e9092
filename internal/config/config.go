// Package config loads and validates the series configuration file. The
// engine never sees this layer: by the time a run starts, the file has been
// reduced to validated descriptors and specs with every commit message
// already rendered.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration wraps time.Duration so YAML values like "10m" or "90s" parse.
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

type Config struct {
	Series  Series  `yaml:"series"`
	Tests   Tests   `yaml:"tests"`
	Options Options `yaml:"options"`
}

// Series describes the patch series itself: which repositories, what to
// run, and what to do with the result.
type Series struct {
	// Projects lists repository sources: clone URLs, local paths, or
	// github-org:NAME / github-user:NAME entries expanded via the API.
	Projects []string `yaml:"projects"`

	// Script is the path to the executable patch procedure.
	Script string `yaml:"script"`

	// CommitMessage may use {{ project_name }} to insert the repository
	// name.
	CommitMessage string `yaml:"commit_message"`

	// Topic groups related review submissions.
	Topic string `yaml:"topic"`

	Commit bool `yaml:"commit"`
	Review bool `yaml:"review"`

	Branch       string `yaml:"branch"`
	CreateBranch bool   `yaml:"create_branch"`
	StayOnBranch bool   `yaml:"stay_on_branch"`

	PreCommands  []string `yaml:"pre_commands"`
	PostCommands []string `yaml:"post_commands"`
}

type Tests struct {
	Run      bool   `yaml:"run"`
	Blocking bool   `yaml:"blocking"`
	Command  string `yaml:"command"`
}

type Options struct {
	// Concurrency is the worker pool width. Must be >= 1.
	Concurrency int `yaml:"concurrency"`

	// CommandTimeout bounds every external command invocation.
	CommandTimeout Duration `yaml:"command_timeout"`

	ContinueOnCommandError bool `yaml:"continue_on_command_error"`
	ExitOnFirstFailure     bool `yaml:"exit_on_first_failure"`
	DryRun                 bool `yaml:"dry_run"`
}

func New() *Config {
	return &Config{
		Series: Series{
			Commit: true,
		},
		Tests: Tests{
			Command: "tox",
		},
		Options: Options{
			Concurrency:    4,
			CommandTimeout: Duration(10 * time.Minute),
		},
	}
}

// Load reads and validates a series configuration file. Unknown keys are
// rejected so typos surface instead of silently disabling behavior.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading configuration: %w", err)
	}

	cfg := New()
	dec := yaml.NewDecoder(strings.NewReader(string(data)))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	projects := make([]string, 0, len(c.Series.Projects))
	for _, p := range c.Series.Projects {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			projects = append(projects, trimmed)
		}
	}
	c.Series.Projects = projects

	if len(c.Series.Projects) == 0 {
		return errors.New("configuration must list at least one project")
	}
	if strings.TrimSpace(c.Series.Script) == "" {
		return errors.New("configuration must specify the patch script path")
	}
	if c.Series.Commit && strings.TrimSpace(c.Series.CommitMessage) == "" {
		return errors.New("configuration must specify commit_message when commit is enabled")
	}
	if c.Series.Review && !c.Series.Commit {
		return errors.New("review requires commit to be enabled")
	}
	if c.Tests.Run && strings.TrimSpace(c.Tests.Command) == "" {
		return errors.New("tests.command must be set when tests.run is enabled")
	}
	if c.Options.Concurrency < 1 {
		return errors.New("options.concurrency must be >= 1")
	}
	if c.Options.CommandTimeout <= 0 {
		return errors.New("options.command_timeout must be > 0")
	}
	return nil
}

// RenderCommitMessage substitutes the repository name into the commit
// message template. Both spellings of the placeholder are accepted.
func RenderCommitMessage(template, projectName string) string {
	message := strings.ReplaceAll(template, "{{ project_name }}", projectName)
	return strings.ReplaceAll(message, "{{project_name}}", projectName)
}
