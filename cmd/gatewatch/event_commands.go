package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/itchyny/gojq"
	"github.com/urfave/cli/v2"

	"github.com/gatewatch/gatewatch/client"
)

func eventCommands() *cli.Command {
	return &cli.Command{
		Name:  "events",
		Usage: "Inspect persisted activity events",
		Subcommands: []*cli.Command{
			listEventsCommand(),
		},
	}
}

func listEventsCommand() *cli.Command {
	return &cli.Command{
		Name:  "list",
		Usage: "List persisted activity events, newest first",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "address",
				Aliases: []string{"a"},
				Usage:   "Only events for this address",
			},
			&cli.IntFlag{
				Name:    "limit",
				Aliases: []string{"l"},
				Value:   50,
				Usage:   "Maximum number of events to return",
			},
			&cli.IntFlag{
				Name:  "offset",
				Usage: "Number of events to skip",
			},
			&cli.StringFlag{
				Name:  "jq",
				Usage: "jq expression applied to each event (e.g. 'select(.outcome == \"failed\")')",
			},
		},
		Action: func(c *cli.Context) error {
			cl := client.NewClient(c.String("server-url"), nil, nil)
			events, total, err := cl.ListEvents(c.Context, client.ListEventsParams{
				Address: c.String("address"),
				Limit:   c.Int("limit"),
				Offset:  c.Int("offset"),
			})
			if err != nil {
				return err
			}

			var code *gojq.Code
			if expr := c.String("jq"); expr != "" {
				query, err := gojq.Parse(expr)
				if err != nil {
					return fmt.Errorf("failed to parse jq expression %q: %w", expr, err)
				}
				code, err = gojq.Compile(query)
				if err != nil {
					return fmt.Errorf("failed to compile jq expression %q: %w", expr, err)
				}
			}

			encoder := json.NewEncoder(os.Stdout)
			for _, event := range events {
				if code == nil {
					if c.Bool("json") {
						if err := encoder.Encode(event); err != nil {
							return err
						}
						continue
					}
					observed := "-"
					if event.ObservedAt != nil {
						observed = event.ObservedAt.Format("2006-01-02 15:04:05")
					}
					fmt.Printf("%s  %-9s %-8s  observed=%s  cost=%d\n",
						event.ActivityID, event.Outcome, event.DeliveryClass, observed, event.CostEstimate)
					continue
				}

				// jq runs on the event's JSON form, so expressions use the
				// wire field names.
				raw, err := json.Marshal(event)
				if err != nil {
					return err
				}
				var doc interface{}
				if err := json.Unmarshal(raw, &doc); err != nil {
					return err
				}

				iter := code.Run(doc)
				for {
					v, ok := iter.Next()
					if !ok {
						break
					}
					if err, isErr := v.(error); isErr {
						return fmt.Errorf("jq evaluation failed: %w", err)
					}
					if err := encoder.Encode(v); err != nil {
						return err
					}
				}
			}

			if !c.Bool("json") && code == nil {
				fmt.Printf("\n%d of %d events shown\n", len(events), total)
			}
			return nil
		},
	}
}
