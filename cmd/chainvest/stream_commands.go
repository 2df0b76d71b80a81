package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/chainvest/chainvest/client"
	natspkg "github.com/chainvest/chainvest/service/nats"
)

func streamCommand() *cli.Command {
	return &cli.Command{
		Name:  "stream",
		Usage: "Stream credited deposits via SSE",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "server",
				Aliases: []string{"s"},
				Usage:   "Server URL",
				EnvVars: []string{"CHAINVEST_SERVER_URL"},
				Value:   "http://localhost:3000",
			},
			&cli.BoolFlag{
				Name:    "json",
				Aliases: []string{"j"},
				Usage:   "Output deposits as JSON (one per line)",
			},
		},
		Action: func(c *cli.Context) error {
			jsonOutput := c.Bool("json")

			// Cancel the stream on interrupt.
			ctx, cancel := context.WithCancel(c.Context)
			defer cancel()

			sigChan := make(chan os.Signal, 1)
			signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
			go func() {
				<-sigChan
				cancel()
			}()

			if !jsonOutput {
				fmt.Fprintln(os.Stderr, "Streaming deposits... (Ctrl+C to stop)")
			}

			cl := client.NewClient(c.String("server"), nil, nil)
			err := cl.StreamDeposits(ctx, func(event natspkg.DepositEvent) error {
				if jsonOutput {
					data, err := json.Marshal(event)
					if err != nil {
						return err
					}
					fmt.Println(string(data))
				} else {
					printDepositEvent(event)
				}
				return nil
			})
			if err != nil && ctx.Err() != nil {
				if !jsonOutput {
					fmt.Fprintln(os.Stderr, "\nDisconnected")
				}
				return nil
			}
			return err
		},
	}
}

func printDepositEvent(event natspkg.DepositEvent) {
	fmt.Println("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	fmt.Printf("TxID:      %s\n", event.TxID)
	fmt.Printf("Address:   %s\n", event.Address)
	fmt.Printf("Amount:    %s BTC (%d sats)\n", event.AmountBTC, event.AmountSats)
	fmt.Printf("Network:   %s\n", event.Network)
	fmt.Printf("Credited:  %s\n", event.CreditedAt.Format(time.RFC3339))
	fmt.Printf("Published: %s\n", event.PublishedAt.Format(time.RFC3339))
	fmt.Println()
}
