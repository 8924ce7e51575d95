package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"runtime"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/brojonat/tzwriter/service/tezos/rpc"
)

// healthReport is what `server health` prints with --json.
type healthReport struct {
	ServerURL     string `json:"serverURL"`
	ServerStatus  int    `json:"serverStatus"`
	NodeURL       string `json:"nodeURL,omitempty"`
	NodeHead      string `json:"nodeHead,omitempty"`
	NodeProtocol  string `json:"nodeProtocol,omitempty"`
	CheckDuration string `json:"checkDuration"`
}

func healthCommand() *cli.Command {
	return &cli.Command{
		Name:  "health",
		Usage: "Check the tzwriter server and, with --node-url, the Tezos node it submits to",
		Flags: []cli.Flag{
			&cli.DurationFlag{
				Name:  "timeout",
				Usage: "Timeout of each check",
				Value: 5 * time.Second,
			},
			&cli.StringFlag{
				Name:    "node-url",
				Usage:   "Tezos node RPC URL to read the head from",
				EnvVars: []string{"TEZOS_NODE_URL"},
			},
		},
		Action: func(c *cli.Context) error {
			serverURL := c.String("server-url")
			if serverURL == "" {
				return fmt.Errorf("server-url is required (set SERVER_URL env var or use --server-url)")
			}

			start := time.Now()
			httpClient := &http.Client{Timeout: c.Duration("timeout")}
			report := healthReport{ServerURL: serverURL}

			resp, err := httpClient.Get(serverURL + "/health")
			if err != nil {
				return fmt.Errorf("tzwriter server unreachable: %w", err)
			}
			resp.Body.Close()
			report.ServerStatus = resp.StatusCode
			if resp.StatusCode != http.StatusOK {
				return fmt.Errorf("tzwriter server unhealthy: status %d", resp.StatusCode)
			}

			if nodeURL := c.String("node-url"); nodeURL != "" {
				logger := slog.New(slog.NewJSONHandler(io.Discard, nil))
				node := rpc.NewClient(nodeURL, httpClient, "cli", nil, logger)
				ctx, cancel := context.WithTimeout(c.Context, c.Duration("timeout"))
				defer cancel()

				head, err := node.GetBlockHead(ctx)
				if err != nil {
					return fmt.Errorf("tezos node head unavailable: %w", err)
				}
				report.NodeURL = nodeURL
				report.NodeHead = head.Hash
				report.NodeProtocol = head.Protocol
			}
			report.CheckDuration = time.Since(start).Round(time.Millisecond).String()

			if c.Bool("json") || c.String("jq") != "" {
				return outputJSON(c, report)
			}

			w := c.App.Writer
			fmt.Fprintf(w, "tzwriter server %s: ok\n", report.ServerURL)
			if report.NodeURL != "" {
				fmt.Fprintf(w, "tezos node %s: head %s (protocol %s)\n", report.NodeURL, report.NodeHead, report.NodeProtocol)
			}
			return nil
		},
	}
}

func versionCommand() *cli.Command {
	return &cli.Command{
		Name:  "version",
		Usage: "Print the tzwriter build",
		Action: func(c *cli.Context) error {
			fmt.Fprintf(c.App.Writer, "tzwriter %s (commit %s, built %s, %s %s/%s)\n",
				version, commit, date, runtime.Version(), runtime.GOOS, runtime.GOARCH)
			return nil
		},
	}
}
