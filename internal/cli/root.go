// Package cli implements the imagediff command line.
package cli

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/CageChen/imagediff/internal/config"
	"github.com/CageChen/imagediff/internal/logging"
)

var (
	version = "dev"

	// Colors for help output sections
	sectionTitleColor = color.New(color.FgBlue, color.Bold)
)

// SetVersion sets the version reported by `imagediff version` and --version.
func SetVersion(v string) {
	if v == "" {
		return
	}
	version = v
}

// globalOptions holds the persistent flags shared by every command.
type globalOptions struct {
	configPath string
	logLevel   string
	logJSON    bool
}

// NewRootCmd builds the imagediff command tree.
func NewRootCmd() *cobra.Command {
	opts := &globalOptions{}

	rootCmd := &cobra.Command{
		Use:     "imagediff",
		Version: version,
		Short:   "Compare two folders of images",
		Long: `imagediff compares a source and a destination folder of images.

Every image path is classified as new (source only), common (both sides)
or deleted (destination only). Diffs can be rendered in batch with
"compare --render" or browsed interactively with "serve".`,
		SilenceUsage:  true,
		SilenceErrors: true,
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
	}
	rootCmd.SetVersionTemplate("{{.Version}}\n")
	rootCmd.SetHelpFunc(customHelpFunc)
	rootCmd.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return &UsageError{Err: err}
	})

	rootCmd.PersistentFlags().StringVar(&opts.configPath, "config", "", "config file (default: .imagediff.yaml or ~/.config/imagediff/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "log level: debug, info, warn or error (env "+logging.EnvLevel+")")
	rootCmd.PersistentFlags().BoolVar(&opts.logJSON, "log-json", false, "emit logs as JSON")

	rootCmd.AddCommand(newCompareCmd(opts))
	rootCmd.AddCommand(newServeCmd(opts))
	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the imagediff version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), version)
		},
	})

	return rootCmd
}

// Execute runs the command line with os.Args.
func Execute() error {
	return NewRootCmd().Execute()
}

// setup loads the configuration and builds the logger. Flags override the
// config file and environment.
func (o *globalOptions) setup(cmd *cobra.Command) (*config.Config, *slog.Logger, error) {
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return nil, nil, &UsageError{Err: err}
	}

	if cmd.Flags().Changed("log-level") {
		cfg.LogLevel = o.logLevel
	}
	if cmd.Flags().Changed("log-json") {
		cfg.LogJSON = o.logJSON
	}

	logger, err := logging.New(cmd.ErrOrStderr(), logging.Options{Level: cfg.LogLevel, JSON: cfg.LogJSON})
	if err != nil {
		return nil, nil, &UsageError{Err: err}
	}
	if path := cfg.GetConfigFilePath(); path != "" {
		logger.Debug("loaded config", "path", path)
	}
	return cfg, logger, nil
}

// customHelpFunc colors the section titles of the help output
func customHelpFunc(cmd *cobra.Command, _ []string) {
	var help strings.Builder

	if cmd.Long != "" {
		help.WriteString(cmd.Long)
		help.WriteString("\n\n")
	} else if cmd.Short != "" {
		help.WriteString(cmd.Short)
		help.WriteString("\n\n")
	}

	help.WriteString(sectionTitleColor.Sprint("Usage:"))
	help.WriteString("\n")
	fmt.Fprintf(&help, "  %s\n\n", cmd.UseLine())

	if cmd.HasAvailableSubCommands() {
		help.WriteString(sectionTitleColor.Sprint("Commands:"))
		help.WriteString("\n")
		for _, c := range cmd.Commands() {
			if c.IsAvailableCommand() {
				fmt.Fprintf(&help, "  %-11s %s\n", c.Name(), c.Short)
			}
		}
		help.WriteString("\n")
	}

	if cmd.HasAvailableLocalFlags() || cmd.HasAvailableInheritedFlags() {
		help.WriteString(sectionTitleColor.Sprint("Flags:"))
		help.WriteString("\n")
		help.WriteString(cmd.LocalFlags().FlagUsages())
		help.WriteString(cmd.InheritedFlags().FlagUsages())
		help.WriteString("\n")
	}

	if cmd.HasAvailableSubCommands() {
		fmt.Fprintf(&help, "Use \"%s [command] --help\" for more information about a command.\n", cmd.CommandPath())
	}

	fmt.Fprint(cmd.OutOrStdout(), help.String())
}

// ExitCode maps an error returned by Execute to a process exit status.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	if IsUsageError(err) {
		return 2
	}
	return 1
}
