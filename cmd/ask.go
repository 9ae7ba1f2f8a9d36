package cmd

import (
	"errors"
	"fmt"
	"strings"

	"github.com/KaramelBytes/docqa-cli/internal/session"
	"github.com/spf13/cobra"
)

var askDocID string

var askCmd = &cobra.Command{
	Use:   "ask <question...>",
	Short: "Ask one question about the active or given document",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		question := strings.Join(args, " ")
		if strings.TrimSpace(question) == "" {
			return errors.New("question cannot be empty")
		}

		a, err := newApp(cmd, nil)
		if err != nil {
			return err
		}
		defer a.close()

		if err := a.openDocument(cmd, askDocID); err != nil {
			return err
		}
		turn, err := a.session.SubmitQuestion(cmd.Context(), question)
		if err != nil {
			if errors.Is(err, session.ErrTurnDiscarded) {
				return fmt.Errorf("question cancelled: %w", err)
			}
			return a.sessionError(err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), turn.Answer)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(askCmd)
	askCmd.Flags().StringVar(&askDocID, "doc", "", "document id (default: last uploaded)")
}
