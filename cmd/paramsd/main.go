// Command paramsd serves a parameterised page whose widget values are
// reflected in the URL query string.
package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/vango-dev/params/internal/config"
	"github.com/vango-dev/params/internal/errors"
)

// Version information set at build time.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// globalFlags are shared by every subcommand.
type globalFlags struct {
	configPath string
	dir        string
	noColor    bool
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		errors.Fprint(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	flags := &globalFlags{}

	rootCmd := &cobra.Command{
		Use:   "paramsd",
		Short: "Reflect page parameters in the URL query string",
		Long: `paramsd serves a page of typed parameters.

Every parameter starts from its default, or from the URL query string
when the page is first opened. Widget edits update the parameter and
rewrite the query string, so the URL always reproduces the page:

  • Ten parameter types: bool, int, float, string, date, int/float/date
    ranges, string and bool lists
  • Partial export (edited parameters only) or export of everything
  • HTTP and WebSocket widget endpoints
  • Sessions that survive restarts when a SQL store is configured`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if flags.noColor {
				errors.DisableColors()
			}
		},
	}

	rootCmd.PersistentFlags().StringVarP(&flags.configPath, "config", "c", "", "Config file (default: paramsd.json/.yaml in --dir)")
	rootCmd.PersistentFlags().StringVar(&flags.dir, "dir", ".", "Directory to look for config and .env in")
	rootCmd.PersistentFlags().BoolVar(&flags.noColor, "no-color", false, "Disable colored error output")

	rootCmd.AddCommand(
		serveCmd(flags),
		inspectCmd(flags),
		versionCmd(),
	)
	return rootCmd
}

// loadConfig loads and validates the configuration the flags point at.
func loadConfig(flags *globalFlags) (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	if flags.configPath != "" {
		cfg, err = config.LoadFile(flags.configPath)
	} else {
		cfg, err = config.Load(flags.dir)
	}
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// success prints a success message.
func success(w io.Writer, format string, args ...any) {
	fmt.Fprintf(w, "\033[32m✓\033[0m %s\n", fmt.Sprintf(format, args...))
}

// info prints an info message.
func info(w io.Writer, format string, args ...any) {
	fmt.Fprintf(w, "  %s\n", fmt.Sprintf(format, args...))
}
