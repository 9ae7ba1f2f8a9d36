package cmd

import (
	"errors"

	"github.com/spf13/cobra"
)

var historyDocID string

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show the conversation of the active or given document",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd, nil)
		if err != nil {
			return err
		}
		defer a.close()

		if err := a.openDocument(cmd, historyDocID); err != nil {
			return err
		}
		if msg := a.session.Err(); msg != "" {
			return errors.New(msg)
		}
		a.console.Turns(a.session.Turns())
		return nil
	},
}

func init() {
	rootCmd.AddCommand(historyCmd)
	historyCmd.Flags().StringVar(&historyDocID, "doc", "", "document id (default: last uploaded)")
}
