package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/itchyny/gojq"
	"github.com/urfave/cli/v2"

	"github.com/chainvest/chainvest/client"
	natspkg "github.com/chainvest/chainvest/service/nats"
)

func awaitCommand() *cli.Command {
	return &cli.Command{
		Name:  "await",
		Usage: "Block until a matching deposit is credited",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "server",
				Aliases: []string{"s"},
				Usage:   "Server URL",
				EnvVars: []string{"CHAINVEST_SERVER_URL"},
				Value:   "http://localhost:3000",
			},
			&cli.StringFlag{
				Name:  "txid",
				Usage: "Wait for this exact transaction id",
			},
			&cli.Int64Flag{
				Name:  "amount-sats",
				Usage: "Wait for a deposit of exactly this many satoshis",
			},
			&cli.StringSliceFlag{
				Name:    "must-jq",
				Usage:   "jq filter expression over the deposit event that must evaluate to true (can be specified multiple times, all must match)",
				Aliases: []string{"jq"},
			},
			&cli.DurationFlag{
				Name:    "timeout",
				Aliases: []string{"t"},
				Value:   5 * time.Minute,
				Usage:   "How long to wait for the deposit",
			},
			&cli.BoolFlag{
				Name:    "json",
				Aliases: []string{"j"},
				Usage:   "Output the matched deposit as JSON",
			},
		},
		Action: func(c *cli.Context) error {
			txid := c.String("txid")
			amountSats := c.Int64("amount-sats")
			jqFilters := c.StringSlice("must-jq")
			jsonOutput := c.Bool("json")

			if txid == "" && amountSats == 0 && len(jqFilters) == 0 {
				return fmt.Errorf("must specify at least one filter: --txid, --amount-sats, or --must-jq")
			}

			compiledJQFilters := make([]*gojq.Code, len(jqFilters))
			for i, filter := range jqFilters {
				query, err := gojq.Parse(filter)
				if err != nil {
					return fmt.Errorf("failed to parse jq filter %q: %w", filter, err)
				}
				compiledJQFilters[i], err = gojq.Compile(query)
				if err != nil {
					return fmt.Errorf("failed to compile jq filter %q: %w", filter, err)
				}
			}

			matcher := buildDepositMatcher(txid, amountSats, compiledJQFilters)

			if !jsonOutput {
				fmt.Fprintln(os.Stderr, "Waiting for deposit...")
				if txid != "" {
					fmt.Fprintf(os.Stderr, "  TxID: %s\n", txid)
				}
				if amountSats != 0 {
					fmt.Fprintf(os.Stderr, "  Amount: %d sats\n", amountSats)
				}
				for _, filter := range jqFilters {
					fmt.Fprintf(os.Stderr, "  jq Filter: %s\n", filter)
				}
				fmt.Fprintf(os.Stderr, "  Timeout: %v\n\n", c.Duration("timeout"))
			}

			ctx, cancel := context.WithTimeout(c.Context, c.Duration("timeout"))
			defer cancel()

			cl := client.NewClient(c.String("server"), nil, nil)
			event, err := cl.Await(ctx, matcher)
			if err != nil {
				return fmt.Errorf("failed to await deposit: %w", err)
			}

			if jsonOutput {
				data, err := json.MarshalIndent(event, "", "  ")
				if err != nil {
					return fmt.Errorf("failed to marshal deposit: %w", err)
				}
				fmt.Println(string(data))
			} else {
				printDepositEvent(*event)
			}
			return nil
		},
	}
}

// buildDepositMatcher combines the flag filters into a single predicate.
// All specified filters must match.
func buildDepositMatcher(txid string, amountSats int64, jqFilters []*gojq.Code) func(natspkg.DepositEvent) bool {
	return func(event natspkg.DepositEvent) bool {
		if txid != "" && event.TxID != txid {
			return false
		}
		if amountSats != 0 && event.AmountSats != amountSats {
			return false
		}

		if len(jqFilters) > 0 {
			// Round-trip through JSON so jq sees the wire shape.
			data, err := json.Marshal(event)
			if err != nil {
				return false
			}
			var eventJSON interface{}
			if err := json.Unmarshal(data, &eventJSON); err != nil {
				return false
			}

			for _, code := range jqFilters {
				iter := code.Run(eventJSON)
				v, ok := iter.Next()
				if !ok {
					return false
				}
				if _, isErr := v.(error); isErr {
					return false
				}
				if !isTruthy(v) {
					return false
				}
			}
		}

		return true
	}
}

// isTruthy mirrors jq semantics: false and null are falsy, everything
// else is truthy.
func isTruthy(v interface{}) bool {
	switch val := v.(type) {
	case bool:
		return val
	case nil:
		return false
	default:
		return true
	}
}
