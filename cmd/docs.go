package cmd

import (
	"github.com/spf13/cobra"
)

var docsCmd = &cobra.Command{
	Use:     "docs",
	Aliases: []string{"list"},
	Short:   "List uploaded documents",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd, nil)
		if err != nil {
			return err
		}
		defer a.close()

		if err := a.session.Start(cmd.Context()); err != nil {
			return a.sessionError(err)
		}
		snap := a.session.Snapshot()
		a.console.Documents(snap.Documents, snap.ActiveDocumentID)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(docsCmd)
}
