package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newLayoutsCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "layouts",
		Short: "List the layouts of the database",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, release, err := connect(cmd.Context(), *configPath)
			if err != nil {
				return err
			}
			defer release()

			names, err := client.Layouts(cmd.Context())
			if err != nil {
				return err
			}
			for _, name := range names {
				fmt.Fprintln(cmd.OutOrStdout(), name)
			}
			return nil
		},
	}
}
