// Package cli implements creditsctl, the operator tool for balances,
// plans and migrations.
package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/Muneerali199/DocMagic-sub004/internal/config"
	"github.com/Muneerali199/DocMagic-sub004/internal/db"
	"github.com/Muneerali199/DocMagic-sub004/internal/repository"
	"github.com/Muneerali199/DocMagic-sub004/pkg/logger"
	"github.com/spf13/cobra"
)

// Deps is what the commands operate on.
type Deps struct {
	Credits repository.CreditsRepository
	Plans   repository.PlanRepository
	Migrate func(ctx context.Context) (int, error)
	Now     func() time.Time
}

// Opener builds Deps for one invocation; the returned func releases them.
type Opener func(ctx context.Context, configPath string) (*Deps, func(), error)

type depsKey struct{}

// NewRootCmd assembles the command tree.
func NewRootCmd(open Opener) *cobra.Command {
	var (
		configPath string
		closeDeps  func()
	)

	root := &cobra.Command{
		Use:           "creditsctl",
		Short:         "Operate DocMagic credit balances and subscription plans",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			deps, release, err := open(cmd.Context(), configPath)
			if err != nil {
				return err
			}
			if deps.Now == nil {
				deps.Now = time.Now
			}
			closeDeps = release
			cmd.SetContext(context.WithValue(cmd.Context(), depsKey{}, deps))
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if closeDeps != nil {
				closeDeps()
			}
		},
	}
	root.PersistentFlags().StringVar(&configPath, "env-file", ".env", "path to the .env file")

	root.AddCommand(migrateCmd(), showCmd(), resetCmd(), setTierCmd(), sweepCmd(), plansCmd())
	return root
}

func depsFrom(cmd *cobra.Command) *Deps {
	return cmd.Context().Value(depsKey{}).(*Deps)
}

// OpenDatabase is the production Opener backed by PostgreSQL.
func OpenDatabase(ctx context.Context, configPath string) (*Deps, func(), error) {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return nil, nil, err
	}
	if cfg.Database.DSN == "" {
		return nil, nil, fmt.Errorf("database.dsn is required")
	}

	log := logger.New(logger.ParseLevel(cfg.App.LogLevel)).Named("creditsctl")
	client, err := db.NewDBClient(ctx, cfg.Database.DSN, db.Options{MaxOpenConns: 2}, log)
	if err != nil {
		return nil, nil, err
	}

	deps := &Deps{
		Credits: repository.NewPostgresCreditsRepository(client.DB(), log),
		Plans:   repository.NewPostgresPlanRepository(client.DB(), log),
		Migrate: client.Migrate,
		Now:     time.Now,
	}
	return deps, func() {
		_ = client.Close()
		log.Sync()
	}, nil
}
