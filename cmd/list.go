package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list [names...]",
		Short: "Print the icons a fetch would download, with their URLs",
		Long: `Resolves icon names the same way fetch does and prints one
"name<TAB>url" line per icon without touching the network.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := configFromContext(cmd.Context())
			if err != nil {
				return err
			}
			icons, err := resolveTargets(cfg, args)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, icon := range icons {
				fmt.Fprintf(out, "%s\t%s\n", icon.Name, icon.URL)
			}
			return nil
		},
	}
}
