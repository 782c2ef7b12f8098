package cli

import (
	"errors"
	"fmt"

	"github.com/partsregistry/registry/internal/services"
	"github.com/spf13/cobra"
)

func newPropagateCommand(e *env, opts *options) *cobra.Command {
	var disable bool

	cmd := &cobra.Command{
		Use:   "propagate <folder-id>",
		Short: "Re-run permission propagation for a folder",
		Long: `Push a folder's grants down to its entries again. Without flags the direction
follows the folder's propagation setting; --disable withdraws propagated grants.

Entries that already hold an equal or stronger grant are left alone, so running
this repeatedly is safe.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			folderID, err := services.ParseFolderID(args[0])
			if err != nil {
				return err
			}

			registry := e.serviceRegistry()
			ctx := cmd.Context()
			if disable {
				err = registry.Propagator.PropagateFolderPermissions(ctx, opts.actor, folderID, false)
			} else {
				err = registry.Folders.RetryPropagation(ctx, opts.actor, folderID)
			}

			var failed *services.PropagationError
			if errors.As(err, &failed) {
				rows := make([][]string, 0, len(failed.Failures))
				for _, f := range failed.Failures {
					rows = append(rows, []string{f.EntryID.String(), f.Err.Error()})
				}
				if opts.json {
					_ = writeJSON(e.out, map[string]interface{}{"folderID": folderID, "failed": rows})
				} else {
					_ = writeTable(e.out, "ENTRY\tERROR", rows)
				}
				return fmt.Errorf("%d entries were not updated; run propagate again", len(failed.Failures))
			}
			if err != nil {
				return fmt.Errorf("propagating folder %s: %w", folderID, err)
			}

			if opts.json {
				return writeJSON(e.out, map[string]interface{}{"folderID": folderID, "failed": []string{}})
			}
			fmt.Fprintf(e.out, "Propagation complete for folder %s\n", folderID)
			return nil
		},
	}
	cmd.Flags().BoolVar(&disable, "disable", false, "Withdraw propagated grants instead of applying them")
	return cmd
}
