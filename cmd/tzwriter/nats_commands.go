package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/urfave/cli/v2"

	natspkg "github.com/brojonat/tzwriter/service/nats"
)

// subscribeCommand streams operation events.
func subscribeCommand() *cli.Command {
	return &cli.Command{
		Name:      "subscribe",
		Usage:     "Stream operation events, optionally for one source",
		ArgsUsage: "[source]",
		Description: `Subscribe to operation events published to NATS JetStream after injection.

Events are published to the subject ops.{source}. Without a source every
event on the stream is shown.

Example:
  tzwriter nats subscribe tz1KqTpEZ7Yob7QbPE4Hy4Wo8fHG8LhKxZSx --json`,
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:    "durable",
				Aliases: []string{"d"},
				Usage:   "Create a durable consumer (survives restarts)",
			},
			&cli.StringFlag{
				Name:  "consumer-name",
				Usage: "Consumer name (required for durable)",
				Value: "tzwriter-cli",
			},
		},
		Action: func(c *cli.Context) error {
			if c.NArg() > 1 {
				return fmt.Errorf("at most one source address is accepted")
			}
			subject := subscriptionSubject(c.Args().First())
			return streamOperations(c, subject, c.Bool("durable"), c.String("consumer-name"))
		},
	}
}

func subscriptionSubject(source string) string {
	if source == "" {
		return natspkg.StreamSubjects
	}
	return natspkg.SubjectPrefix + source
}

// streamOperations consumes events matching subject until interrupted.
func streamOperations(c *cli.Context, subject string, durable bool, consumerName string) error {
	natsURL := c.String("nats-url")
	jsonOutput := c.Bool("json")

	nc, err := nats.Connect(natsURL)
	if err != nil {
		return fmt.Errorf("failed to connect to NATS: %w", err)
	}
	defer nc.Close()

	js, err := jetstream.New(nc)
	if err != nil {
		return fmt.Errorf("failed to create JetStream context: %w", err)
	}

	if !jsonOutput {
		fmt.Printf("📡 Subscribing to: %s\n", subject)
		fmt.Printf("   NATS: %s\n", natsURL)
		if durable {
			fmt.Printf("   Consumer: %s (durable)\n", consumerName)
		}
		fmt.Printf("\nWaiting for operations... (Ctrl-C to exit)\n\n")
	}

	consumerConfig := jetstream.ConsumerConfig{
		FilterSubject: subject,
		AckPolicy:     jetstream.AckExplicitPolicy,
	}
	if durable {
		consumerConfig.Durable = consumerName
		consumerConfig.Name = consumerName
	}

	cons, err := js.CreateOrUpdateConsumer(context.Background(), natspkg.StreamName, consumerConfig)
	if err != nil {
		return fmt.Errorf("failed to create consumer: %w", err)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	msgChan := make(chan jetstream.Msg, 10)
	consumeCtx, err := cons.Consume(func(msg jetstream.Msg) {
		msgChan <- msg
	})
	if err != nil {
		return fmt.Errorf("failed to consume: %w", err)
	}
	defer consumeCtx.Stop()

	count := 0
	for {
		select {
		case msg := <-msgChan:
			var event natspkg.OperationEvent
			if err := json.Unmarshal(msg.Data(), &event); err != nil {
				fmt.Fprintf(os.Stderr, "Error parsing event: %v\n", err)
				msg.Ack()
				continue
			}
			count++

			if jsonOutput || c.String("jq") != "" {
				if err := outputJSON(c, event); err != nil {
					fmt.Fprintf(os.Stderr, "Error writing event: %v\n", err)
				}
			} else {
				printOperationEvent(count, &event)
			}
			msg.Ack()

		case <-sigChan:
			if !jsonOutput {
				fmt.Printf("\n\n✅ Received %d operation groups\n", count)
			}
			return nil
		}
	}
}

func printOperationEvent(n int, event *natspkg.OperationEvent) {
	fmt.Printf("─────────────────────────────────────────────────────\n")
	fmt.Printf("Operation group #%d\n", n)
	fmt.Printf("─────────────────────────────────────────────────────\n")
	fmt.Printf("Hash:         %s\n", event.Hash)
	fmt.Printf("Source:       %s\n", event.Source)
	fmt.Printf("Network:      %s\n", event.Network)
	fmt.Printf("Kinds:        %s\n", strings.Join(event.Kinds, ", "))
	fmt.Printf("Counters:     %s\n", formatCounters(event.Counters))
	if event.WorkflowID != nil {
		fmt.Printf("Workflow ID:  %s\n", *event.WorkflowID)
	}
	fmt.Printf("Injected:     %s\n", event.InjectedAt.Format(time.RFC3339))
	fmt.Printf("Published:    %s\n\n", event.PublishedAt.Format(time.RFC3339))
}

// inspectStreamCommand shows information about the JetStream stream.
func inspectStreamCommand() *cli.Command {
	return &cli.Command{
		Name:  "inspect-stream",
		Usage: "Inspect the OPERATIONS JetStream stream",
		Action: func(c *cli.Context) error {
			nc, err := nats.Connect(c.String("nats-url"))
			if err != nil {
				return fmt.Errorf("failed to connect to NATS: %w", err)
			}
			defer nc.Close()

			js, err := jetstream.New(nc)
			if err != nil {
				return fmt.Errorf("failed to create JetStream context: %w", err)
			}

			stream, err := js.Stream(c.Context, natspkg.StreamName)
			if err != nil {
				return fmt.Errorf("failed to get stream: %w", err)
			}
			info, err := stream.Info(c.Context)
			if err != nil {
				return fmt.Errorf("failed to get stream info: %w", err)
			}

			if c.Bool("json") || c.String("jq") != "" {
				return outputJSON(c, info)
			}

			fmt.Printf("Stream: %s\n", info.Config.Name)
			fmt.Printf("─────────────────────────────────────────────────────\n")
			fmt.Printf("Subjects:     %v\n", info.Config.Subjects)
			fmt.Printf("Messages:     %d\n", info.State.Msgs)
			fmt.Printf("Bytes:        %d\n", info.State.Bytes)
			fmt.Printf("First Seq:    %d\n", info.State.FirstSeq)
			fmt.Printf("Last Seq:     %d\n", info.State.LastSeq)
			fmt.Printf("Consumers:    %d\n", info.State.Consumers)
			fmt.Printf("Max Age:      %s\n", info.Config.MaxAge)
			fmt.Printf("Storage:      %s\n", info.Config.Storage)
			return nil
		},
	}
}
