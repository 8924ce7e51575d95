package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/brojonat/tzwriter/service/tezos"
	"github.com/brojonat/tzwriter/service/tezos/rpc"
)

func sendCommands() *cli.Command {
	return &cli.Command{
		Name:  "send",
		Usage: "Sign and inject operations directly against a Tezos node",
		Description: `Builds, forges, signs, preapplies and injects one operation group with the
key in TEZOS_SECRET_KEY. A reveal is prepended when the key is not on chain yet.
Manager operations accept --dry-run, which stops after preapply.`,
		Subcommands: []*cli.Command{
			sendTransactionCommand(),
			sendInvokeCommand(),
			sendDelegateCommand(),
			sendUndelegateCommand(),
			sendOriginateAccountCommand(),
			sendOriginateContractCommand(),
			sendRevealCommand(),
			sendActivateCommand(),
		},
	}
}

// nodeFlags are shared by every send subcommand.
func nodeFlags(extra ...cli.Flag) []cli.Flag {
	flags := []cli.Flag{
		&cli.StringFlag{
			Name:    "node-url",
			Usage:   "Tezos node RPC URL",
			EnvVars: []string{"TEZOS_NODE_URL"},
		},
		&cli.StringFlag{
			Name:    "secret-key",
			Usage:   "Encoded secret key (edsk, spsk or p2sk)",
			EnvVars: []string{"TEZOS_SECRET_KEY"},
		},
		&cli.BoolFlag{
			Name:  "remote-forge",
			Usage: "Forge on the node and check the result locally",
		},
		&cli.DurationFlag{
			Name:  "node-timeout",
			Usage: "Timeout of each node call",
			Value: 30 * time.Second,
		},
		&cli.Uint64Flag{
			Name:  "fee",
			Usage: "Fee in mutez (0 uses the default for the operation)",
		},
		&cli.BoolFlag{
			Name:  "debug",
			Usage: "Log pipeline stages to stderr",
		},
	}
	return append(flags, extra...)
}

func manageFlags(extra ...cli.Flag) []cli.Flag {
	return nodeFlags(append([]cli.Flag{
		&cli.Uint64Flag{
			Name:  "gas-limit",
			Usage: "Gas limit (0 uses the default for the operation)",
		},
		&cli.Uint64Flag{
			Name:  "storage-limit",
			Usage: "Storage limit (0 uses the default for the operation)",
		},
		&cli.BoolFlag{
			Name:  "dry-run",
			Usage: "Preapply without injecting",
		},
	}, extra...)...)
}

// sender holds what a send subcommand needs to reach the node.
type sender struct {
	writer  *tezos.Writer
	account tezos.Account
	dryRun  bool
}

func newSender(c *cli.Context) (*sender, error) {
	nodeURL := c.String("node-url")
	if nodeURL == "" {
		return nil, fmt.Errorf("node-url is required (set TEZOS_NODE_URL env var or use --node-url)")
	}
	secretKey := c.String("secret-key")
	if secretKey == "" {
		return nil, fmt.Errorf("secret-key is required (set TEZOS_SECRET_KEY env var or use --secret-key)")
	}

	account, err := rpc.NewAccount(secretKey)
	if err != nil {
		return nil, fmt.Errorf("failed to load secret key: %w", err)
	}

	level := slog.LevelWarn
	if c.Bool("debug") {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	node := rpc.NewClient(nodeURL, &http.Client{Timeout: c.Duration("node-timeout")}, "cli", nil, logger)
	return &sender{
		writer:  rpc.NewWriter(node, c.Bool("remote-forge"), nil, logger),
		account: account,
		dryRun:  c.Bool("dry-run"),
	}, nil
}

func (s *sender) source() string {
	return s.account.KeyStore.PublicKeyHash
}

// submit injects op through send, or preapplies it alone on a dry run.
func (s *sender) submit(ctx context.Context, op tezos.Stackable, send func() (tezos.OperationResult, error)) (interface{}, error) {
	if s.dryRun {
		applied, err := s.writer.SimulateOperation(ctx, s.account, []tezos.Stackable{op})
		if err != nil {
			return nil, err
		}
		return applied, nil
	}
	result, err := send()
	if err != nil {
		return nil, err
	}
	return result, nil
}

// runSend builds a sender and prints what run returns.
func runSend(c *cli.Context, run func(ctx context.Context, s *sender) (interface{}, error)) error {
	s, err := newSender(c)
	if err != nil {
		return err
	}
	out, err := run(c.Context, s)
	if err != nil {
		return fmt.Errorf("%s failed: %w", c.Command.Name, err)
	}
	return outputJSON(c, out)
}

func parseMutez(s, what string) (uint64, error) {
	n, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: must be an amount in mutez", what, s)
	}
	return n, nil
}

func transactionParams(c *cli.Context, destination string, amount uint64) tezos.TransactionParams {
	return tezos.TransactionParams{
		Destination:     destination,
		Amount:          amount,
		Fee:             c.Uint64("fee"),
		GasLimit:        c.Uint64("gas-limit"),
		StorageLimit:    c.Uint64("storage-limit"),
		Parameters:      c.String("parameters"),
		ParameterFormat: tezos.CodeFormat(c.String("parameter-format")),
	}
}

func parameterFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:  "parameters",
			Usage: "Contract parameters",
		},
		&cli.StringFlag{
			Name:  "parameter-format",
			Usage: "Format of --parameters: micheline or michelson",
			Value: string(tezos.FormatMicheline),
		},
	}
}

func sendTransactionCommand() *cli.Command {
	return &cli.Command{
		Name:      "transaction",
		Aliases:   []string{"tx"},
		Usage:     "Transfer tez",
		ArgsUsage: "DESTINATION AMOUNT_MUTEZ",
		Flags:     manageFlags(parameterFlags()...),
		Action: func(c *cli.Context) error {
			if c.NArg() != 2 {
				return fmt.Errorf("requires destination and amount in mutez")
			}
			amount, err := parseMutez(c.Args().Get(1), "amount")
			if err != nil {
				return err
			}
			p := transactionParams(c, c.Args().Get(0), amount)
			return runSend(c, func(ctx context.Context, s *sender) (interface{}, error) {
				op, err := s.writer.Builder().Transaction(s.source(), p)
				if err != nil {
					return nil, err
				}
				return s.submit(ctx, op, func() (tezos.OperationResult, error) {
					return s.writer.SendTransactionOperation(ctx, s.account, p)
				})
			})
		},
	}
}

func sendInvokeCommand() *cli.Command {
	return &cli.Command{
		Name:      "invoke",
		Usage:     "Call a smart contract",
		ArgsUsage: "CONTRACT",
		Flags: manageFlags(append(parameterFlags(), &cli.Uint64Flag{
			Name:  "amount",
			Usage: "Amount in mutez sent with the call",
		})...),
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return fmt.Errorf("requires exactly one argument: contract address")
			}
			p := transactionParams(c, c.Args().First(), c.Uint64("amount"))
			return runSend(c, func(ctx context.Context, s *sender) (interface{}, error) {
				if p.Parameters == "" {
					p.Parameters = `{"prim":"Unit"}`
					p.ParameterFormat = tezos.FormatMicheline
				}
				op, err := s.writer.Builder().Transaction(s.source(), p)
				if err != nil {
					return nil, err
				}
				return s.submit(ctx, op, func() (tezos.OperationResult, error) {
					return s.writer.SendContractInvocationOperation(ctx, s.account, p)
				})
			})
		},
	}
}

func sendDelegateCommand() *cli.Command {
	return &cli.Command{
		Name:      "delegate",
		Usage:     "Set the delegate of the account",
		ArgsUsage: "DELEGATE",
		Flags:     manageFlags(),
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return fmt.Errorf("requires exactly one argument: delegate address")
			}
			p := tezos.DelegationParams{
				Delegate:     c.Args().First(),
				Fee:          c.Uint64("fee"),
				GasLimit:     c.Uint64("gas-limit"),
				StorageLimit: c.Uint64("storage-limit"),
			}
			return runSend(c, func(ctx context.Context, s *sender) (interface{}, error) {
				op, err := s.writer.Builder().Delegation(s.source(), p)
				if err != nil {
					return nil, err
				}
				return s.submit(ctx, op, func() (tezos.OperationResult, error) {
					return s.writer.SendDelegationOperation(ctx, s.account, p)
				})
			})
		},
	}
}

func sendUndelegateCommand() *cli.Command {
	return &cli.Command{
		Name:  "undelegate",
		Usage: "Withdraw the delegate of the account",
		Flags: manageFlags(),
		Action: func(c *cli.Context) error {
			fee := c.Uint64("fee")
			return runSend(c, func(ctx context.Context, s *sender) (interface{}, error) {
				op, err := s.writer.Builder().Delegation(s.source(), tezos.DelegationParams{Fee: fee})
				if err != nil {
					return nil, err
				}
				return s.submit(ctx, op, func() (tezos.OperationResult, error) {
					return s.writer.SendUndelegationOperation(ctx, s.account, fee)
				})
			})
		},
	}
}

func originationFlags() []cli.Flag {
	return []cli.Flag{
		&cli.Uint64Flag{
			Name:  "balance",
			Usage: "Initial balance in mutez",
		},
		&cli.StringFlag{
			Name:  "delegate",
			Usage: "Delegate of the new contract",
		},
		&cli.BoolFlag{
			Name:  "spendable",
			Usage: "Let the manager spend from the contract",
		},
		&cli.BoolFlag{
			Name:  "delegatable",
			Usage: "Let the manager change the delegate",
		},
	}
}

func originationParams(c *cli.Context) tezos.OriginationParams {
	return tezos.OriginationParams{
		Balance:      c.Uint64("balance"),
		Delegate:     c.String("delegate"),
		Spendable:    c.Bool("spendable"),
		Delegatable:  c.Bool("delegatable"),
		Fee:          c.Uint64("fee"),
		GasLimit:     c.Uint64("gas-limit"),
		StorageLimit: c.Uint64("storage-limit"),
		Code:         c.String("code"),
		Storage:      c.String("storage"),
		CodeFormat:   tezos.CodeFormat(c.String("code-format")),
	}
}

func sendOriginateAccountCommand() *cli.Command {
	return &cli.Command{
		Name:  "originate-account",
		Usage: "Originate an account managed by the key",
		Flags: manageFlags(originationFlags()...),
		Action: func(c *cli.Context) error {
			p := originationParams(c)
			return runSend(c, func(ctx context.Context, s *sender) (interface{}, error) {
				op, err := s.writer.Builder().Origination(s.source(), p)
				if err != nil {
					return nil, err
				}
				return s.submit(ctx, op, func() (tezos.OperationResult, error) {
					return s.writer.SendAccountOriginationOperation(ctx, s.account, p)
				})
			})
		},
	}
}

func sendOriginateContractCommand() *cli.Command {
	return &cli.Command{
		Name:  "originate-contract",
		Usage: "Originate a smart contract",
		Flags: manageFlags(append(originationFlags(),
			&cli.StringFlag{
				Name:     "code",
				Usage:    "Contract code",
				Required: true,
			},
			&cli.StringFlag{
				Name:     "storage",
				Usage:    "Initial storage",
				Required: true,
			},
			&cli.StringFlag{
				Name:  "code-format",
				Usage: "Format of --code and --storage: micheline or michelson",
				Value: string(tezos.FormatMicheline),
			},
		)...),
		Action: func(c *cli.Context) error {
			p := originationParams(c)
			return runSend(c, func(ctx context.Context, s *sender) (interface{}, error) {
				op, err := s.writer.Builder().Origination(s.source(), p)
				if err != nil {
					return nil, err
				}
				return s.submit(ctx, op, func() (tezos.OperationResult, error) {
					return s.writer.SendContractOriginationOperation(ctx, s.account, p)
				})
			})
		},
	}
}

func sendRevealCommand() *cli.Command {
	return &cli.Command{
		Name:  "reveal",
		Usage: "Reveal the public key on its own",
		Flags: nodeFlags(),
		Action: func(c *cli.Context) error {
			fee := c.Uint64("fee")
			return runSend(c, func(ctx context.Context, s *sender) (interface{}, error) {
				return s.writer.SendKeyRevealOperation(ctx, s.account, fee)
			})
		},
	}
}

func sendActivateCommand() *cli.Command {
	return &cli.Command{
		Name:      "activate",
		Usage:     "Activate a fundraiser account",
		ArgsUsage: "SECRET",
		Flags:     nodeFlags(),
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return fmt.Errorf("requires exactly one argument: activation secret")
			}
			secret := c.Args().First()
			return runSend(c, func(ctx context.Context, s *sender) (interface{}, error) {
				return s.writer.SendIdentityActivationOperation(ctx, s.account, secret)
			})
		},
	}
}
