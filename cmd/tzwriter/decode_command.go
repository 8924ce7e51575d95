package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/urfave/cli/v2"

	"github.com/brojonat/tzwriter/service/tezos"
)

type decodedGroup struct {
	Branch   string            `json:"branch"`
	Contents []tezos.Operation `json:"contents"`
}

func decodeCommand() *cli.Command {
	return &cli.Command{
		Name:      "decode",
		Usage:     "Decode forged operation bytes",
		ArgsUsage: "HEX (or - to read stdin)",
		Description: `Decodes an unsigned forged operation group into its branch and contents.
Activations, reveals, transactions, originations and delegations are known.`,
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return fmt.Errorf("requires exactly one argument: forged hex")
			}
			forged := c.Args().First()
			if forged == "-" {
				in, err := io.ReadAll(c.App.Reader)
				if err != nil {
					return fmt.Errorf("failed to read stdin: %w", err)
				}
				forged = string(in)
			}
			forged = strings.Trim(strings.TrimSpace(forged), `"`)

			branch, ops, err := tezos.DecodeOperations(forged)
			if err != nil {
				return fmt.Errorf("failed to decode operations: %w", err)
			}
			if ops == nil {
				ops = []tezos.Operation{}
			}
			return outputJSON(c, decodedGroup{Branch: branch, Contents: ops})
		},
	}
}
