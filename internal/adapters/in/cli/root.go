// Package cli implements the ephemera command line.
// Commands are thin: they load configuration, build the Docker runtime and
// hand off to the fixture use case.
package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/bnema/ephemera/internal/config"
)

var (
	// Version information (set at build time)
	Version   = "dev"
	Commit    = "unknown"
	BuildDate = "unknown"
)

// rootOptions holds the persistent flags shared by every command.
type rootOptions struct {
	configPath string
	envFiles   []string
	logLevel   string
	host       string
}

// NewRootCmd creates the root command for the ephemera CLI.
func NewRootCmd() *cobra.Command {
	opts := &rootOptions{}

	rootCmd := &cobra.Command{
		Use:   "ephemera",
		Short: "Ephemera - disposable containers for tests and local tooling",
		Long: `Ephemera starts a container from an image, waits until it is running,
reports where its ports can be reached and removes it again when done.

Commands can be run inside the fixture in a fresh shell each time or in one
persistent shell session.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&opts.configPath, "config", "c", "", "Path to config file (default "+config.DefaultPath()+")")
	flags.StringSliceVar(&opts.envFiles, "env-file", nil, "Load environment variables from .env files")
	flags.StringVar(&opts.logLevel, "log-level", "", "Log level (debug, info, warn, error)")
	flags.StringVarP(&opts.host, "host", "H", "", "Docker daemon address (default $DOCKER_HOST)")

	rootCmd.AddCommand(newRunCmd(opts))
	rootCmd.AddCommand(newPullCmd(opts))
	rootCmd.AddCommand(newVersionCmd(opts))

	return rootCmd
}

// SetVersionInfo sets the version information from build-time variables.
func SetVersionInfo(version, commit, date string) {
	if version != "" {
		Version = version
	}
	if commit != "" {
		Commit = commit
	}
	if date != "" {
		BuildDate = date
	}
}

// Execute runs the CLI until it finishes or the process is interrupted.
// Interrupts cancel the command context so running fixtures are still removed.
func Execute(version, commit, date string) {
	SetVersionInfo(version, commit, date)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := NewRootCmd().ExecuteContext(ctx)
	stop()
	cobra.CheckErr(err)
}
