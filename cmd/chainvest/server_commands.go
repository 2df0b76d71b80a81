package main

import (
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/chainvest/chainvest/client"
)

func healthCommand() *cli.Command {
	return &cli.Command{
		Name:  "health",
		Usage: "Check server health",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "server",
				Aliases: []string{"s"},
				Usage:   "Server URL",
				EnvVars: []string{"CHAINVEST_SERVER_URL"},
				Value:   "http://localhost:3000",
			},
		},
		Action: func(c *cli.Context) error {
			cl := client.NewClient(c.String("server"), nil, nil)
			if err := cl.Health(c.Context); err != nil {
				return fmt.Errorf("health check failed: %w", err)
			}
			fmt.Println("OK")
			return nil
		},
	}
}
