package cli

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/partsregistry/registry/internal/services"
	"github.com/spf13/cobra"
)

type validationReport struct {
	UploadID     uuid.UUID             `json:"uploadID"`
	Valid        bool                  `json:"valid"`
	FailedFields []services.EntryField `json:"failedFields"`
}

func newValidateUploadCommand(e *env, opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "validate-upload <upload-id>",
		Short: "Validate a bulk upload without submitting it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			uploadID, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid upload id %q", args[0])
			}

			valid, failed, err := e.serviceRegistry().Uploads.Validate(cmd.Context(), opts.actor, uploadID)
			if err != nil {
				return fmt.Errorf("validating upload %s: %w", uploadID, err)
			}
			if failed == nil {
				failed = []services.EntryField{}
			}

			if opts.json {
				return writeJSON(e.out, validationReport{UploadID: uploadID, Valid: valid, FailedFields: failed})
			}
			if valid {
				fmt.Fprintf(e.out, "Upload %s is valid\n", uploadID)
				return nil
			}
			rows := make([][]string, 0, len(failed))
			for _, field := range failed {
				rows = append(rows, []string{string(field)})
			}
			fmt.Fprintf(e.out, "Upload %s failed validation\n", uploadID)
			return writeTable(e.out, "FIELD", rows)
		},
	}
}
