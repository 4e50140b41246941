package app

import (
	"fmt"

	"github.com/spf13/cobra"

	v1 "github.com/cos/gravyvalet/pkg/api/v1"
)

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the GravyValet version",
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, err := fmt.Fprintln(cmd.OutOrStdout(), v1.Version)
			return err
		},
	}
}
