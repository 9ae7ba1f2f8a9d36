package cmd

import (
	"errors"
	"fmt"

	"github.com/KaramelBytes/docqa-cli/internal/pdf"
	"github.com/spf13/cobra"
)

var uploadCmd = &cobra.Command{
	Use:   "upload <file.pdf>",
	Short: "Upload a PDF and make it the active document",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		f, err := pdf.Open(args[0])
		if err != nil {
			if errors.Is(err, pdf.ErrNotPDF) {
				return fmt.Errorf("%s: %w", pdf.InvalidFileMessage, err)
			}
			return err
		}

		a, err := newApp(cmd, nil)
		if err != nil {
			return err
		}
		defer a.close()

		doc, err := a.session.UploadDocument(cmd.Context(), f.Name, f.Data)
		if err != nil {
			return a.sessionError(err)
		}
		a.console.Success("Document uploaded: %s", doc.Filename)
		a.console.Info("id: %s", doc.ID)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(uploadCmd)
}
