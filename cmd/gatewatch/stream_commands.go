package main

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/gorilla/websocket"
	"github.com/urfave/cli/v2"
)

func streamCommand() *cli.Command {
	return &cli.Command{
		Name:  "stream",
		Usage: "Tail the live activity event stream over WebSocket",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "all",
				Usage: "Include protocol messages (connection, pong), not just activity events",
			},
		},
		Action: func(c *cli.Context) error {
			wsURL, err := websocketURL(c.String("server-url"))
			if err != nil {
				return err
			}

			conn, _, err := websocket.DefaultDialer.DialContext(c.Context, wsURL, nil)
			if err != nil {
				return fmt.Errorf("failed to connect to %s: %w", wsURL, err)
			}
			defer conn.Close()

			fmt.Fprintf(os.Stderr, "Connected to %s, waiting for events...\n", wsURL)

			// Close the connection on interrupt so ReadMessage unblocks.
			interrupt := make(chan os.Signal, 1)
			signal.Notify(interrupt, os.Interrupt, syscall.SIGTERM)
			go func() {
				select {
				case <-interrupt:
				case <-c.Context.Done():
				}
				_ = conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				conn.Close()
			}()

			encoder := json.NewEncoder(os.Stdout)
			for {
				_, raw, err := conn.ReadMessage()
				if err != nil {
					if websocket.IsCloseError(err, websocket.CloseNormalClosure) {
						return nil
					}
					return fmt.Errorf("stream closed: %w", err)
				}

				var envelope struct {
					Type string          `json:"type"`
					Data json.RawMessage `json:"data"`
				}
				if err := json.Unmarshal(raw, &envelope); err != nil {
					fmt.Fprintf(os.Stderr, "skipping unparseable message: %v\n", err)
					continue
				}

				if !c.Bool("all") && !strings.HasPrefix(envelope.Type, "activity:") {
					continue
				}

				var doc interface{}
				if err := json.Unmarshal(raw, &doc); err != nil {
					continue
				}
				if err := encoder.Encode(doc); err != nil {
					return err
				}
			}
		},
	}
}

// websocketURL derives the subscription endpoint from the HTTP base URL.
func websocketURL(baseURL string) (string, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return "", fmt.Errorf("invalid server URL %q: %w", baseURL, err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	u.Path = "/api/v1/ws"
	return u.String(), nil
}
