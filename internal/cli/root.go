package cli

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/partsregistry/registry/internal/cache"
	"github.com/partsregistry/registry/internal/config"
	"github.com/partsregistry/registry/internal/database"
	"github.com/partsregistry/registry/internal/services"
	"github.com/partsregistry/registry/pkg/logger"
	"github.com/spf13/cobra"
	"gorm.io/gorm"
)

// env is what every subcommand works against once the root pre-run has connected.
type env struct {
	cfg      *config.Config
	db       *gorm.DB
	registry *services.Registry
	out      io.Writer
}

type options struct {
	json  bool
	actor string
}

// NewRootCommand builds registryctl. Subcommands share one database connection
// opened in the persistent pre-run.
func NewRootCommand() *cobra.Command {
	opts := &options{}
	e := &env{out: os.Stdout}

	root := &cobra.Command{
		Use:   "registryctl",
		Short: "Operator tooling for the parts registry",
		Long: `registryctl runs maintenance tasks directly against the registry database.

  registryctl propagate <folder-id>          Re-run folder permission propagation
  registryctl validate-upload <upload-id>    Report failed fields of a bulk upload
  registryctl seed --file seed.yaml          Create accounts, groups and folders
  registryctl export-audit                   Ship new audit rows to object storage`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			logger.Init()
			e.cfg = config.Load()
			if opts.actor == "" {
				opts.actor = e.cfg.Admin.Email
			}
			db, err := database.Connect(e.cfg.DB)
			if err != nil {
				return fmt.Errorf("connecting to database: %w", err)
			}
			e.db = db
			e.out = cmd.OutOrStdout()
			return nil
		},
	}
	root.PersistentFlags().BoolVar(&opts.json, "json", false, "Output as JSON")
	root.PersistentFlags().StringVar(&opts.actor, "actor", "", "Account email the command acts as (default: ADMIN_EMAIL)")

	root.AddCommand(
		newPropagateCommand(e, opts),
		newValidateUploadCommand(e, opts),
		newSeedCommand(e, opts),
		newExportAuditCommand(e, opts),
	)
	return root
}

// serviceRegistry builds the service registry. Commands exit before an async audit
// queue would drain, so none is attached.
func (e *env) serviceRegistry() *services.Registry {
	if e.registry == nil {
		e.registry = services.NewRegistry(e.db, cache.New(e.cfg.Redis), nil)
	}
	return e.registry
}

// Execute runs the root command.
func Execute() error {
	if err := NewRootCommand().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		return err
	}
	return nil
}
