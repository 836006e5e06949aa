package main

import (
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/urfave/cli/v2"

	"github.com/anhnq-lab/cic-ttb-erp--sub001/internal/config"
	"github.com/anhnq-lab/cic-ttb-erp--sub001/internal/events"
	"github.com/anhnq-lab/cic-ttb-erp--sub001/internal/logger"
	"github.com/anhnq-lab/cic-ttb-erp--sub001/internal/middleware"
	"github.com/anhnq-lab/cic-ttb-erp--sub001/internal/notify"
	"github.com/anhnq-lab/cic-ttb-erp--sub001/internal/service"
)

func main() {
	// values from .env fill in unset environment variables; the file is optional
	_ = godotenv.Load()

	app := &cli.App{
		Name:  "taskflow",
		Usage: "Task workflow engine for construction projects",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "log-level",
				Aliases: []string{"l"},
				Value:   "info",
				Usage:   "Log level (debug, info, warn, error)",
				EnvVars: []string{"LOG_LEVEL"},
			},
			&cli.StringFlag{
				Name:    "log-format",
				Value:   "json",
				Usage:   "Log format (json, text)",
				EnvVars: []string{"LOG_FORMAT"},
			},
			&cli.StringFlag{
				Name:    "storage",
				Value:   string(config.StorageMemory),
				Usage:   "Storage backend (memory, postgres)",
				EnvVars: []string{"STORAGE"},
			},
			&cli.StringFlag{
				Name:    "database-url",
				Aliases: []string{"d"},
				Value:   config.DefaultDatabaseURL,
				Usage:   "PostgreSQL database URL",
				EnvVars: []string{"DATABASE_URL"},
			},
			&cli.IntFlag{
				Name:    "db-max-conns",
				Value:   config.DefaultMaxConns,
				Usage:   "Maximum PostgreSQL pool connections",
				EnvVars: []string{"DB_MAX_CONNS"},
			},
			&cli.StringFlag{
				Name:    "directory-file",
				Usage:   "YAML file of employees and projects loaded at startup",
				EnvVars: []string{"DIRECTORY_FILE"},
			},
			&cli.StringFlag{
				Name:    "redis-url",
				Value:   config.DefaultRedisURL,
				Usage:   "Redis URL for sharing live events between instances",
				EnvVars: []string{"REDIS_URL"},
			},
			&cli.StringFlag{
				Name:    "redis-prefix",
				Value:   events.DefaultChannelPrefix,
				Usage:   "Redis channel prefix for project events",
				EnvVars: []string{"REDIS_PREFIX"},
			},
			&cli.StringFlag{
				Name:    "policy",
				Value:   config.DefaultPolicy,
				Usage:   "Transition policy: permissive, linear or a YAML file path",
				EnvVars: []string{"WORKFLOW_POLICY"},
			},
			&cli.BoolFlag{
				Name:    "strict-concurrency",
				Usage:   "Reject status writes when the stored status moved since it was read",
				EnvVars: []string{"STRICT_CONCURRENCY"},
			},
			&cli.DurationFlag{
				Name:    "store-timeout",
				Value:   service.DefaultStoreTimeout,
				Usage:   "Timeout of each store call on the request path",
				EnvVars: []string{"STORE_TIMEOUT"},
			},
			&cli.DurationFlag{
				Name:    "side-effect-timeout",
				Value:   service.DefaultSideEffectTimeout,
				Usage:   "Timeout of history writes and event handlers",
				EnvVars: []string{"SIDE_EFFECT_TIMEOUT"},
			},
			&cli.StringFlag{
				Name:    "jwt-secret",
				Usage:   "HS256 signing key for API tokens",
				EnvVars: []string{"JWT_SECRET"},
			},
			&cli.StringFlag{
				Name:    "jwt-issuer",
				Value:   middleware.DefaultIssuer,
				Usage:   "Issuer claim of API tokens",
				EnvVars: []string{"JWT_ISSUER"},
			},
		},
		Before: func(c *cli.Context) error {
			logger.Setup(logger.ParseLevel(c.String("log-level")), c.String("log-format"))
			return nil
		},
		Commands: []*cli.Command{
			{
				Name:  "serve",
				Usage: "Start the API server",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "port",
						Aliases: []string{"p"},
						Value:   config.DefaultPort,
						Usage:   "HTTP server port",
						EnvVars: []string{"PORT"},
					},
					&cli.StringFlag{
						Name:    "kafka-brokers",
						Usage:   "Comma-separated Kafka brokers; events are exported when set",
						EnvVars: []string{"KAFKA_BROKERS"},
					},
					&cli.StringFlag{
						Name:    "kafka-topic",
						Value:   events.DefaultKafkaTopic,
						Usage:   "Kafka topic for task events",
						EnvVars: []string{"KAFKA_TOPIC"},
					},
					&cli.StringFlag{
						Name:    "telegram-token",
						Usage:   "Telegram bot token; notifications are only logged when empty",
						EnvVars: []string{"TELEGRAM_BOT_TOKEN"},
					},
					&cli.StringFlag{
						Name:    "telegram-chat",
						Usage:   "Telegram chat id receiving notifications",
						EnvVars: []string{"TELEGRAM_CHAT_ID"},
					},
					&cli.StringFlag{
						Name:    "telegram-api",
						Value:   notify.DefaultTelegramAPI,
						Usage:   "Telegram Bot API base URL",
						EnvVars: []string{"TELEGRAM_API_URL"},
					},
				},
				Action: runServe,
			},
			{
				Name:  "migrate",
				Usage: "Apply database migrations",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "down",
						Usage: "Roll back the latest migration instead",
					},
				},
				Action: runMigrate,
			},
			{
				Name:  "directory",
				Usage: "Manage employees and projects",
				Subcommands: []*cli.Command{
					{
						Name:      "import",
						Usage:     "Upsert employees and projects from a YAML file",
						ArgsUsage: "FILE",
						Action:    runDirectoryImport,
					},
				},
			},
			{
				Name:  "token",
				Usage: "Issue an API token for an employee",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "employee",
						Aliases:  []string{"e"},
						Usage:    "Employee id (token subject)",
						Required: true,
					},
					&cli.DurationFlag{
						Name:  "ttl",
						Value: config.DefaultTokenTTL,
						Usage: "Token lifetime",
					},
				},
				Action: runToken,
			},
			boardCommand(),
		},
		Action: runServe,
	}

	if err := app.Run(os.Args); err != nil {
		slog.Error("application error", "error", err)
		os.Exit(1)
	}
}
