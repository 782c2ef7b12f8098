package cli

import (
	"errors"
	"fmt"

	"github.com/partsregistry/registry/internal/services"
	"github.com/partsregistry/registry/internal/storage"
	"github.com/spf13/cobra"
)

func newExportAuditCommand(e *env, opts *options) *cobra.Command {
	var list bool

	cmd := &cobra.Command{
		Use:   "export-audit",
		Short: "Ship audit rows newer than the export cursor to object storage",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !e.cfg.MinIO.Enabled() {
				return errors.New("audit export needs MINIO_ENDPOINT and MINIO_BUCKET")
			}
			client, err := storage.NewMinIOClient(e.cfg.MinIO)
			if err != nil {
				return fmt.Errorf("minio initialization failed: %w", err)
			}
			if err := client.EnsureBucket(cmd.Context()); err != nil {
				return fmt.Errorf("failed ensuring minio bucket: %w", err)
			}

			if list {
				names, err := client.ListExports(cmd.Context(), "audit-logs/")
				if err != nil {
					return fmt.Errorf("listing exports: %w", err)
				}
				if opts.json {
					return writeJSON(e.out, names)
				}
				rows := make([][]string, 0, len(names))
				for _, name := range names {
					rows = append(rows, []string{name})
				}
				return writeTable(e.out, "OBJECT", rows)
			}

			exported, err := services.NewAuditService(e.db, client).Export(cmd.Context())
			if err != nil {
				return err
			}
			if opts.json {
				return writeJSON(e.out, map[string]int{"exported": exported})
			}
			fmt.Fprintf(e.out, "Exported %d audit rows\n", exported)
			return nil
		},
	}
	cmd.Flags().BoolVar(&list, "list", false, "List exported objects instead of exporting")
	return cmd
}
