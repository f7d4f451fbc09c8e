package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/gatewatch/gatewatch/client"
)

func watchCommands() *cli.Command {
	return &cli.Command{
		Name:  "watch",
		Usage: "Manage watched addresses",
		Subcommands: []*cli.Command{
			addWatchCommand(),
			removeWatchCommand(),
			listWatchesCommand(),
			watchStatsCommand(),
		},
	}
}

func addWatchCommand() *cli.Command {
	return &cli.Command{
		Name:      "add",
		Usage:     "Start monitoring an address",
		ArgsUsage: "<address>",
		Action: func(c *cli.Context) error {
			if c.NArg() < 1 {
				return fmt.Errorf("address is required")
			}
			address := c.Args().Get(0)

			cl := client.NewClient(c.String("server-url"), nil, nil)
			watch, err := cl.AddWatch(c.Context, address)
			if err != nil {
				return err
			}

			if c.Bool("json") {
				return json.NewEncoder(os.Stdout).Encode(watch)
			}
			fmt.Printf("Watching %s (registered at %s)\n", watch.Address, watch.RegisteredAt.Format("2006-01-02 15:04:05"))
			return nil
		},
	}
}

func removeWatchCommand() *cli.Command {
	return &cli.Command{
		Name:      "remove",
		Usage:     "Stop monitoring an address",
		ArgsUsage: "<address>",
		Action: func(c *cli.Context) error {
			if c.NArg() < 1 {
				return fmt.Errorf("address is required")
			}
			address := c.Args().Get(0)

			cl := client.NewClient(c.String("server-url"), nil, nil)
			if err := cl.RemoveWatch(c.Context, address); err != nil {
				return err
			}

			fmt.Printf("Stopped watching %s\n", address)
			return nil
		},
	}
}

func listWatchesCommand() *cli.Command {
	return &cli.Command{
		Name:  "list",
		Usage: "List all watched addresses",
		Action: func(c *cli.Context) error {
			cl := client.NewClient(c.String("server-url"), nil, nil)
			watches, stats, err := cl.ListWatches(c.Context)
			if err != nil {
				return err
			}

			if c.Bool("json") {
				return json.NewEncoder(os.Stdout).Encode(map[string]interface{}{
					"watches": watches,
					"stats":   stats,
				})
			}

			if len(watches) == 0 {
				fmt.Println("No addresses are being watched.")
			}
			for _, w := range watches {
				cursor := "(no cursor yet)"
				if w.Cursor != nil {
					cursor = *w.Cursor
				}
				fmt.Printf("%s  cursor=%s\n", w.Address, cursor)
			}
			fmt.Printf("\n%d of %d slots in use\n", stats.CurrentCount, stats.MaxWallets)
			return nil
		},
	}
}

func watchStatsCommand() *cli.Command {
	return &cli.Command{
		Name:  "stats",
		Usage: "Show watch capacity",
		Action: func(c *cli.Context) error {
			cl := client.NewClient(c.String("server-url"), nil, nil)
			stats, err := cl.GetStats(c.Context)
			if err != nil {
				return err
			}

			if c.Bool("json") {
				return json.NewEncoder(os.Stdout).Encode(stats)
			}
			fmt.Printf("Current: %d\nMax:     %d\nCan add: %v\n", stats.CurrentCount, stats.MaxWallets, stats.CanAddMore)
			return nil
		},
	}
}

func healthCommand() *cli.Command {
	return &cli.Command{
		Name:  "health",
		Usage: "Check server health",
		Action: func(c *cli.Context) error {
			cl := client.NewClient(c.String("server-url"), nil, nil)
			if err := cl.Health(c.Context); err != nil {
				return err
			}
			fmt.Println("OK")
			return nil
		},
	}
}
