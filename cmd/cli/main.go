package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/glizzus/voice-rooms/internal/compose"
	"github.com/glizzus/voice-rooms/internal/config"
	"github.com/glizzus/voice-rooms/internal/datalayer"
	"github.com/glizzus/voice-rooms/internal/repository"
	"github.com/glizzus/voice-rooms/internal/util"
	"github.com/glizzus/voice-rooms/internal/worker"
	"github.com/urfave/cli/v2"
)

var composeFlags = []cli.Flag{
	&cli.StringSliceFlag{
		Name:    "file",
		Aliases: []string{"f"},
		Usage:   "Compose file to use",
		EnvVars: []string{"COMPOSE_FILE"},
		Value:   cli.NewStringSlice("docker-compose.yml"),
	},
	&cli.StringFlag{
		Name:    "project",
		Aliases: []string{"p"},
		Usage:   "Compose project name",
		EnvVars: []string{"COMPOSE_PROJECT_NAME"},
		Value:   "voice-rooms",
	},
	&cli.StringFlag{
		Name:  "service",
		Usage: "Service the shell target opens",
		Value: compose.DefaultService,
	},
}

func runnerFrom(c *cli.Context) *compose.Runner {
	return &compose.Runner{
		Files:   c.StringSlice("file"),
		Project: c.String("project"),
		Service: c.String("service"),
		Stdin:   os.Stdin,
		Stdout:  os.Stdout,
		Stderr:  os.Stderr,
	}
}

func lifecycleCommands() []*cli.Command {
	var commands []*cli.Command
	for _, target := range compose.Targets(compose.DefaultService) {
		commands = append(commands, &cli.Command{
			Name:     target.Name,
			Usage:    target.Usage,
			Category: "lifecycle",
			Action: func(c *cli.Context) error {
				code, err := runnerFrom(c).Run(c.Context, target.Name)
				if err != nil {
					return cli.Exit(err.Error(), 1)
				}
				if code != 0 {
					return cli.Exit("", code)
				}
				return nil
			},
		})
	}
	return commands
}

func openRepository(c *cli.Context) (*repository.PostgresRoomRepository, func(), error) {
	pool, err := datalayer.NewPostgresPoolFromEnv(c.Context)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create postgres pool: %w", err)
	}
	if err := datalayer.MigratePostgres(pool); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("failed to migrate postgres: %w", err)
	}
	return repository.NewPostgresRoomRepository(pool), pool.Close, nil
}

func roomsCommand() *cli.Command {
	return &cli.Command{
		Name:     "rooms",
		Usage:    "Inspect the tracked room store",
		Category: "development",
		Subcommands: []*cli.Command{
			{
				Name:  "list",
				Usage: "List tracked rooms, grouped by guild",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "guild-id",
						Usage: "Only list rooms of this guild",
					},
				},
				Action: func(c *cli.Context) error {
					repo, closeRepo, err := openRepository(c)
					if err != nil {
						return cli.Exit(err.Error(), 1)
					}
					defer closeRepo()

					rooms, err := repo.List(c.Context, c.String("guild-id"))
					if err != nil {
						return cli.Exit("Failed to retrieve rooms: "+err.Error(), 1)
					}
					if len(rooms) == 0 {
						log.Println("No tracked rooms found.")
						return nil
					}

					byGuild := util.GroupBy(rooms, func(r repository.Room) string { return r.GuildID })
					for _, guildID := range util.SortedKeys(byGuild) {
						fmt.Printf("guild %s\n", guildID)
						for _, r := range byGuild[guildID] {
							fmt.Printf("  %s  %-32q creator=%s since=%s\n",
								r.ChannelID, r.Name, r.CreatorID, r.CreatedAt.Format("2006-01-02 15:04:05"))
						}
					}
					return nil
				},
			},
			{
				Name:      "forget",
				Usage:     "Stop tracking a room without touching Discord",
				ArgsUsage: "<channel-id>",
				Action: func(c *cli.Context) error {
					channelID := strings.TrimSpace(c.Args().First())
					if channelID == "" {
						return cli.Exit("Please provide a channel ID", 1)
					}

					repo, closeRepo, err := openRepository(c)
					if err != nil {
						return cli.Exit(err.Error(), 1)
					}
					defer closeRepo()

					deleted, err := repo.Delete(c.Context, channelID)
					if err != nil {
						return cli.Exit("Failed to forget room: "+err.Error(), 1)
					}
					if !deleted {
						return cli.Exit("Room "+channelID+" is not tracked", 1)
					}
					log.Println("Room forgotten.")
					return nil
				},
			},
		},
	}
}

func archiveCommand() *cli.Command {
	return &cli.Command{
		Name:     "archive",
		Usage:    "Read archived room sessions",
		Category: "development",
		Subcommands: []*cli.Command{
			{
				Name:  "show",
				Usage: "Print the archived session of a room",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "guild-id", Required: true},
					&cli.StringFlag{Name: "channel-id", Required: true},
				},
				Action: func(c *cli.Context) error {
					storage, err := datalayer.NewMinioStorageFromEnv()
					if err != nil {
						return cli.Exit("Failed to create minio storage: "+err.Error(), 1)
					}

					session, err := worker.LoadSession(c.Context, storage, c.String("guild-id"), c.String("channel-id"))
					if errors.Is(err, datalayer.ErrBlobNotFound) {
						return cli.Exit("No archived session for that room", 1)
					}
					if err != nil {
						return cli.Exit("Failed to load session: "+err.Error(), 1)
					}

					enc := json.NewEncoder(os.Stdout)
					enc.SetIndent("", "  ")
					return enc.Encode(session)
				},
			},
		},
	}
}

func main() {
	if err := config.LoadEnv(); err != nil && !os.IsNotExist(err) {
		log.Fatalf("Failed to load .env file: %v", err)
	}

	app := &cli.App{
		Name:        "voice-rooms-cli",
		Usage:       "Operate the voice rooms bot",
		Description: "Lifecycle commands wrap docker compose; development commands read the bot's stores directly",
		Flags:       composeFlags,
		Commands: append(lifecycleCommands(),
			roomsCommand(),
			archiveCommand(),
		),
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatalf("Error running CLI: %v", err)
	}
}
