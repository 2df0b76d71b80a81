package main

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/chainvest/chainvest/client"
)

func accountCommands() *cli.Command {
	return &cli.Command{
		Name:  "account",
		Usage: "Account ledger commands",
		Subcommands: []*cli.Command{
			showAccountCommand(),
			listDepositsCommand(),
		},
	}
}

func showAccountCommand() *cli.Command {
	return &cli.Command{
		Name:  "show",
		Usage: "Show the account balance and deposit count",
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
				Usage:   "Output account as JSON",
			},
		},
		Action: func(c *cli.Context) error {
			cl := client.NewClient(c.String("server"), nil, nil)
			account, err := cl.GetAccount(c.Context)
			if err != nil {
				return fmt.Errorf("failed to fetch account: %w", err)
			}

			if c.Bool("json") {
				data, err := json.MarshalIndent(account, "", "  ")
				if err != nil {
					return fmt.Errorf("failed to marshal account: %w", err)
				}
				fmt.Println(string(data))
				return nil
			}

			fmt.Printf("Balance:  %s BTC (%d sats)\n", account.BalanceBTC, account.BalanceSats)
			fmt.Printf("Deposits: %d\n", len(account.Deposits))
			return nil
		},
	}
}

func listDepositsCommand() *cli.Command {
	return &cli.Command{
		Name:  "deposits",
		Usage: "List credited deposits",
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
				Usage:   "Output deposits as JSON",
			},
		},
		Action: func(c *cli.Context) error {
			cl := client.NewClient(c.String("server"), nil, nil)
			account, err := cl.GetAccount(c.Context)
			if err != nil {
				return fmt.Errorf("failed to fetch account: %w", err)
			}

			if c.Bool("json") {
				data, err := json.MarshalIndent(account.Deposits, "", "  ")
				if err != nil {
					return fmt.Errorf("failed to marshal deposits: %w", err)
				}
				fmt.Println(string(data))
				return nil
			}

			if len(account.Deposits) == 0 {
				fmt.Fprintln(os.Stderr, "No deposits credited yet")
				return nil
			}

			for _, d := range account.Deposits {
				printDeposit(d)
			}
			fmt.Printf("Total: %s BTC across %d deposits\n", account.BalanceBTC, len(account.Deposits))
			return nil
		},
	}
}

func printDeposit(d client.Deposit) {
	fmt.Println("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	fmt.Printf("TxID:     %s\n", d.TxID)
	fmt.Printf("Amount:   %s BTC (%d sats)\n", d.AmountBTC, d.AmountSats)
	fmt.Printf("Credited: %s\n", d.CreditedAt.Format(time.RFC3339))
	fmt.Println()
}
