package migrate

import (
	"context"

	"github.com/charmbracelet/log"
	"github.com/urfave/cli/v3"
	"github.com/workstream-im/chat-service/internal/config"
	registrymigrate "github.com/workstream-im/chat-service/internal/registry/migrate"

	// Import plugins to trigger init() registration of their migrators.
	// Store plugins register their own migrators alongside their primary interface.
	_ "github.com/workstream-im/chat-service/internal/plugin/store/mongo"
	_ "github.com/workstream-im/chat-service/internal/plugin/store/postgres"
)

// Command returns the migrate sub-command.
func Command() *cli.Command {
	return &cli.Command{
		Name:  "migrate",
		Usage: "Run database migrations for the configured regional backends",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "region-a-db-url",
				Sources: cli.EnvVars("CHAT_SERVICE_REGION_A_DB_URL"),
				Usage:   "Region A database connection URL",
			},
			&cli.StringFlag{
				Name:    "region-a-mongo-database",
				Sources: cli.EnvVars("CHAT_SERVICE_REGION_A_MONGO_DATABASE"),
				Usage:   "Mongo database name for the region A deployment",
				Value:   "workspace_chat",
			},
			&cli.StringFlag{
				Name:    "region-b-db-url",
				Sources: cli.EnvVars("CHAT_SERVICE_REGION_B_DB_URL"),
				Usage:   "Region B database connection URL",
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			cfg := config.DefaultConfig()
			cfg.RegionADBURL = cmd.String("region-a-db-url")
			cfg.MongoDatabase = cmd.String("region-a-mongo-database")
			cfg.RegionBDBURL = cmd.String("region-b-db-url")
			ctx = config.WithContext(ctx, &cfg)

			log.Info("Running migrations...")
			if err := registrymigrate.RunAll(ctx); err != nil {
				return err
			}
			log.Info("All migrations completed successfully")
			return nil
		},
	}
}
