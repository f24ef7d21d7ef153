package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/bnema/ephemera/internal/usecase/fixture"
)

func newPullCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "pull IMAGE",
		Short: "Make sure an image is present locally",
		Long:  `Pull an image unless the daemon already has it, using the configured registry credentials.`,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := root.newApp()
			if err != nil {
				return err
			}
			defer a.Close()

			ctx := cmd.Context()
			if _, err := a.runtime.Ping(ctx); err != nil {
				return err
			}
			if err := fixture.NewImageResolver(a.runtime, a.registryAuth(), a.log).Ensure(ctx, args[0]); err != nil {
				return err
			}
			return cliWriteLine(cmd.OutOrStdout(), cliRenderSuccess(fmt.Sprintf("Image %s is available", args[0])))
		},
	}
}
