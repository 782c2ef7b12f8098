package cli

import (
	"fmt"

	"github.com/partsregistry/registry/internal/database"
	"github.com/spf13/cobra"
)

func newSeedCommand(e *env, opts *options) *cobra.Command {
	var file string

	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Create accounts, groups and folders from a YAML file",
		Long: `Apply a seed document. Existing accounts, groups and folders are skipped,
so the same file can be applied more than once.

  accounts:
    - email: curator@lab.org
      password: change-me
      type: admin
  groups:
    - name: Cloning
      owner: curator@lab.org
      members: [tech@lab.org]
  folders:
    - name: Shared plasmids
      owner: curator@lab.org
      public: true
      shares:
        - group: Cloning
          write: true`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			doc, err := database.LoadSeedFile(file)
			if err != nil {
				return err
			}
			if err := database.Seed(cmd.Context(), e.db, e.cfg.Admin); err != nil {
				return fmt.Errorf("seeding defaults: %w", err)
			}

			report, err := database.ApplySeedFile(cmd.Context(), e.serviceRegistry(), doc)
			if err != nil {
				return err
			}
			if opts.json {
				return writeJSON(e.out, report)
			}
			return writeTable(e.out, "ACCOUNTS\tGROUPS\tMEMBERS\tFOLDERS\tSHARES", [][]string{{
				fmt.Sprint(report.Accounts),
				fmt.Sprint(report.Groups),
				fmt.Sprint(report.Members),
				fmt.Sprint(report.Folders),
				fmt.Sprint(report.Shares),
			}})
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "Path to the seed YAML document")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}
