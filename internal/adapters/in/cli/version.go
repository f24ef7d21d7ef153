package cli

import (
	"fmt"
	"io"
	"runtime"

	"github.com/spf13/cobra"
)

// versionInfo is what the version command prints. Daemon fields stay empty
// when the daemon was not queried or could not be reached.
type versionInfo struct {
	Version   string
	Commit    string
	BuildDate string
	GoVersion string

	DaemonVersion string
	APIVersion    string
	DaemonErr     error
}

func newVersionCmd(root *rootOptions) *cobra.Command {
	var withDaemon bool

	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		RunE: func(cmd *cobra.Command, args []string) error {
			info := versionInfo{
				Version:   Version,
				Commit:    Commit,
				BuildDate: BuildDate,
				GoVersion: runtime.Version(),
			}

			if withDaemon {
				a, err := root.newApp()
				if err != nil {
					return err
				}
				defer a.Close()

				ctx := cmd.Context()
				info.APIVersion, info.DaemonErr = a.runtime.Ping(ctx)
				if info.DaemonErr == nil {
					info.DaemonVersion, info.DaemonErr = a.runtime.Version(ctx)
				}
			}

			return printVersion(cmd.OutOrStdout(), info, withDaemon)
		},
	}

	cmd.Flags().BoolVar(&withDaemon, "daemon", false, "Also query the Docker daemon")
	return cmd
}

func printVersion(w io.Writer, info versionInfo, withDaemon bool) error {
	lines := []string{
		cliRenderTitle("Ephemera " + info.Version),
		cliRenderMeta("Commit", info.Commit),
		cliRenderMeta("Built", info.BuildDate),
		cliRenderMeta("Go", info.GoVersion),
	}

	if withDaemon {
		if info.DaemonErr != nil {
			lines = append(lines, cliRenderWarning(fmt.Sprintf("Docker daemon unavailable: %v", info.DaemonErr)))
		} else {
			lines = append(lines,
				cliRenderMeta("Docker", info.DaemonVersion),
				cliRenderMeta("API", info.APIVersion),
			)
		}
	}

	for _, line := range lines {
		if err := cliWriteLine(w, line); err != nil {
			return err
		}
	}
	return nil
}
