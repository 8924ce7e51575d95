package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/brojonat/tzwriter/client"
	"github.com/brojonat/tzwriter/service/tezos"
)

func clientCommands() *cli.Command {
	return &cli.Command{
		Name:  "client",
		Usage: "HTTP client commands for the tzwriter service",
		Subcommands: []*cli.Command{
			submitCommand(),
			statusCommand(),
			awaitCommand(),
			groupsCommand(),
			groupCommand(),
		},
	}
}

func newServiceClient(c *cli.Context) *client.Client {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelError, // Only errors to stderr
	}))
	return client.NewClient(c.String("server-url"), nil, logger)
}

func submitCommand() *cli.Command {
	return &cli.Command{
		Name:  "submit",
		Usage: "Submit an operation to the service",
		ArgsUsage: "REQUEST\n\n" +
			"REQUEST is one of transaction, contract_invocation, delegation, undelegation,\n" +
			"account_origination, contract_origination, reveal, activation",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "source",
				Usage:    "Address the worker signs for",
				EnvVars:  []string{"TEZOS_SOURCE"},
				Required: true,
			},
			&cli.StringFlag{Name: "destination", Usage: "Transaction destination"},
			&cli.Uint64Flag{Name: "amount", Usage: "Transaction amount in mutez"},
			&cli.StringFlag{Name: "parameters", Usage: "Contract parameters"},
			&cli.StringFlag{Name: "parameter-format", Usage: "micheline or michelson"},
			&cli.StringFlag{Name: "delegate", Usage: "Delegate address"},
			&cli.Uint64Flag{Name: "balance", Usage: "Origination balance in mutez"},
			&cli.BoolFlag{Name: "spendable", Usage: "Originated contract is spendable"},
			&cli.BoolFlag{Name: "delegatable", Usage: "Originated contract is delegatable"},
			&cli.StringFlag{Name: "code", Usage: "Contract code"},
			&cli.StringFlag{Name: "storage", Usage: "Initial contract storage"},
			&cli.StringFlag{Name: "code-format", Usage: "micheline or michelson"},
			&cli.Uint64Flag{Name: "fee", Usage: "Fee in mutez"},
			&cli.StringFlag{Name: "secret", Usage: "Activation secret"},
			&cli.BoolFlag{
				Name:    "wait",
				Aliases: []string{"w"},
				Usage:   "Wait for the submission to finish",
			},
			&cli.DurationFlag{
				Name:  "timeout",
				Usage: "How long to wait with --wait",
				Value: 5 * time.Minute,
			},
		},
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return fmt.Errorf("requires exactly one argument: request kind")
			}
			request := submitRequest(c, c.Args().First())

			cl := newServiceClient(c)
			submission, err := cl.Submit(c.Context, request)
			if err != nil {
				return fmt.Errorf("failed to submit %s: %w", request.Request, err)
			}
			if !c.Bool("wait") {
				return outputJSON(c, submission)
			}

			fmt.Fprintf(os.Stderr, "Waiting for %s (run %s)...\n", submission.WorkflowID, submission.RunID)
			ctx, cancel := context.WithTimeout(c.Context, c.Duration("timeout"))
			defer cancel()
			status, err := cl.Await(ctx, submission.WorkflowID, submission.RunID, time.Second)
			if status != nil {
				if outErr := outputJSON(c, status); outErr != nil {
					return outErr
				}
			}
			return err
		},
	}
}

// submitRequest maps the flags of the submit command to the block the
// request kind reads.
func submitRequest(c *cli.Context, kind string) client.SubmitRequest {
	request := client.SubmitRequest{
		Request: kind,
		Source:  c.String("source"),
		Fee:     c.Uint64("fee"),
		Secret:  c.String("secret"),
	}

	switch kind {
	case "transaction", "contract_invocation":
		request.Transaction = &tezos.TransactionParams{
			Destination:     c.String("destination"),
			Amount:          c.Uint64("amount"),
			Fee:             c.Uint64("fee"),
			Parameters:      c.String("parameters"),
			ParameterFormat: tezos.CodeFormat(c.String("parameter-format")),
		}
	case "delegation":
		request.Delegation = &tezos.DelegationParams{
			Delegate: c.String("delegate"),
			Fee:      c.Uint64("fee"),
		}
	case "account_origination", "contract_origination":
		request.Origination = &tezos.OriginationParams{
			Balance:     c.Uint64("balance"),
			Delegate:    c.String("delegate"),
			Spendable:   c.Bool("spendable"),
			Delegatable: c.Bool("delegatable"),
			Fee:         c.Uint64("fee"),
			Code:        c.String("code"),
			Storage:     c.String("storage"),
			CodeFormat:  tezos.CodeFormat(c.String("code-format")),
		}
	}
	return request
}

func statusCommand() *cli.Command {
	return &cli.Command{
		Name:      "status",
		Usage:     "Show the status of a submission",
		ArgsUsage: "WORKFLOW_ID",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "run-id", Usage: "Run of the workflow (latest when empty)"},
		},
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return fmt.Errorf("requires exactly one argument: workflow id")
			}
			status, err := newServiceClient(c).Status(c.Context, c.Args().First(), c.String("run-id"))
			if err != nil {
				return fmt.Errorf("failed to get status: %w", err)
			}
			return outputJSON(c, status)
		},
	}
}

func awaitCommand() *cli.Command {
	return &cli.Command{
		Name:      "await",
		Usage:     "Block until a submission finishes",
		ArgsUsage: "WORKFLOW_ID",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "run-id", Usage: "Run of the workflow (latest when empty)"},
			&cli.DurationFlag{
				Name:    "timeout",
				Aliases: []string{"t"},
				Value:   5 * time.Minute,
				Usage:   "How long to wait",
			},
			&cli.DurationFlag{
				Name:  "poll-interval",
				Value: time.Second,
				Usage: "How often to poll the status",
			},
		},
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return fmt.Errorf("requires exactly one argument: workflow id")
			}
			ctx, cancel := context.WithTimeout(c.Context, c.Duration("timeout"))
			defer cancel()

			status, err := newServiceClient(c).Await(ctx, c.Args().First(), c.String("run-id"), c.Duration("poll-interval"))
			if status != nil {
				if outErr := outputJSON(c, status); outErr != nil {
					return outErr
				}
			}
			return err
		},
	}
}

func groupsCommand() *cli.Command {
	return &cli.Command{
		Name:      "groups",
		Usage:     "List journaled operation groups of a source",
		ArgsUsage: "SOURCE",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "network", Usage: "Network (server default when empty)"},
			&cli.IntFlag{Name: "limit", Aliases: []string{"n"}, Value: 50, Usage: "Maximum number of groups"},
			&cli.IntFlag{Name: "offset", Usage: "Number of groups to skip"},
		},
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return fmt.Errorf("requires exactly one argument: source address")
			}
			groups, err := newServiceClient(c).ListOperationGroups(c.Context, c.Args().First(), client.ListOperationGroupsParams{
				Network: c.String("network"),
				Limit:   c.Int("limit"),
				Offset:  c.Int("offset"),
			})
			if err != nil {
				return fmt.Errorf("failed to list operation groups: %w", err)
			}
			return outputJSON(c, groups)
		},
	}
}

func groupCommand() *cli.Command {
	return &cli.Command{
		Name:      "group",
		Usage:     "Show one journaled operation group",
		ArgsUsage: "OPERATION_HASH",
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return fmt.Errorf("requires exactly one argument: operation hash")
			}
			group, err := newServiceClient(c).GetOperationGroup(c.Context, c.Args().First())
			if err != nil {
				return fmt.Errorf("failed to get operation group: %w", err)
			}
			return outputJSON(c, group)
		},
	}
}
