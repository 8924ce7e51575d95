package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/urfave/cli/v2"

	"github.com/brojonat/tzwriter/service/db"
)

func migrateCommand() *cli.Command {
	return &cli.Command{
		Name:  "migrate",
		Usage: "Create the journal tables",
		Action: func(c *cli.Context) error {
			store, closer, err := getStore(c)
			if err != nil {
				return err
			}
			defer closer()

			if err := store.Migrate(c.Context); err != nil {
				return err
			}
			fmt.Fprintln(os.Stderr, "✓ Schema applied")
			return nil
		},
	}
}

func listGroupsCommand() *cli.Command {
	return &cli.Command{
		Name:      "list-groups",
		Usage:     "List journaled operation groups of a source",
		Aliases:   []string{"ls"},
		ArgsUsage: "<source>",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "network",
				Usage: "Filter by network",
			},
			&cli.IntFlag{
				Name:    "limit",
				Aliases: []string{"n"},
				Usage:   "Limit number of groups",
				Value:   50,
			},
			&cli.IntFlag{
				Name:  "offset",
				Usage: "Number of groups to skip",
			},
		},
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return fmt.Errorf("requires exactly one argument: source address")
			}

			store, closer, err := getStore(c)
			if err != nil {
				return err
			}
			defer closer()

			groups, err := store.ListOperationGroupsBySource(c.Context, db.ListOperationGroupsBySourceParams{
				Source:  c.Args().First(),
				Network: c.String("network"),
				Limit:   int32(c.Int("limit")),
				Offset:  int32(c.Int("offset")),
			})
			if err != nil {
				return fmt.Errorf("failed to list operation groups: %w", err)
			}

			if c.Bool("json") || c.String("jq") != "" {
				return outputJSON(c, groups)
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "HASH\tNETWORK\tKINDS\tCOUNTERS\tSTATUS\tCREATED")
			for _, g := range groups {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
					g.Hash,
					g.Network,
					strings.Join(g.Kinds, ","),
					formatCounters(g.Counters),
					g.Status,
					g.CreatedAt.Format(time.RFC3339),
				)
			}
			w.Flush()

			fmt.Fprintf(os.Stderr, "\nTotal: %d operation groups\n", len(groups))
			return nil
		},
	}
}

func getGroupCommand() *cli.Command {
	return &cli.Command{
		Name:      "get-group",
		Usage:     "Get an operation group by hash",
		Aliases:   []string{"get"},
		ArgsUsage: "<operation hash>",
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return fmt.Errorf("requires exactly one argument: operation hash")
			}

			store, closer, err := getStore(c)
			if err != nil {
				return err
			}
			defer closer()

			group, err := store.GetOperationGroup(c.Context, c.Args().First())
			if errors.Is(err, pgx.ErrNoRows) {
				return fmt.Errorf("operation group %s not found", c.Args().First())
			}
			if err != nil {
				return fmt.Errorf("failed to get operation group: %w", err)
			}

			if c.Bool("json") || c.String("jq") != "" {
				return outputJSON(c, group)
			}

			fmt.Printf("Hash:        %s\n", group.Hash)
			fmt.Printf("Group ID:    %s\n", strings.TrimSpace(group.GroupID))
			fmt.Printf("Source:      %s\n", group.Source)
			fmt.Printf("Network:     %s\n", group.Network)
			fmt.Printf("Kinds:       %s\n", strings.Join(group.Kinds, ", "))
			fmt.Printf("Counters:    %s\n", formatCounters(group.Counters))
			fmt.Printf("Status:      %s\n", group.Status)
			if group.WorkflowID != nil {
				fmt.Printf("Workflow ID: %s\n", *group.WorkflowID)
			}
			fmt.Printf("Created:     %s\n", group.CreatedAt.Format(time.RFC3339))
			return nil
		},
	}
}

// getStore connects to the database named by the global flag.
func getStore(c *cli.Context) (*db.Store, func(), error) {
	dbURL := c.String("database-url")
	if dbURL == "" {
		dbURL = os.Getenv("DATABASE_URL")
	}
	if dbURL == "" {
		return nil, nil, fmt.Errorf("database-url is required (set DATABASE_URL env var or use --database-url)")
	}

	pool, err := pgxpool.New(context.Background(), dbURL)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := pool.Ping(context.Background()); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return db.NewStore(pool, nil), pool.Close, nil
}

func formatCounters(counters []int64) string {
	if len(counters) == 0 {
		return "-"
	}
	parts := make([]string, len(counters))
	for i, n := range counters {
		parts[i] = fmt.Sprint(n)
	}
	return strings.Join(parts, ",")
}
