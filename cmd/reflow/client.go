package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/spf13/cobra"
)

// client talks to a running sync server.
type client struct {
	base string
	http *http.Client
}

func newClient(addr string) *client {
	return &client{
		base: "http://" + addr,
		http: &http.Client{Timeout: 10 * time.Second},
	}
}

func (c *client) do(method, path string, body any) ([]byte, error) {
	var buf io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		buf = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, c.base+path, buf)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("server returned %s: %s", resp.Status, bytes.TrimSpace(data))
	}
	return data, nil
}

func getCmd() *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "get <path>",
		Short: "Read a value from a running server",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := newClient(addr).do(http.MethodGet, "/model/"+url.PathEscape(args[0]), nil)
			if err != nil {
				return err
			}

			var out struct {
				Value any `json:"value"`
			}
			if err := json.Unmarshal(data, &out); err != nil {
				return err
			}

			pretty, err := json.MarshalIndent(out.Value, "", "  ")
			if err != nil {
				return err
			}
			fmt.Println(string(pretty))
			return nil
		},
	}

	cmd.Flags().StringVarP(&addr, "addr", "a", "localhost:8420", "Server address")
	return cmd
}

func setCmd() *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "set <path> <value>",
		Short: "Write a value on a running server",
		Long: `Write a value through the tracked accessor on a running server.
The value is parsed as JSON when possible (numbers, booleans, null,
quoted strings, objects); anything else is sent as a plain string.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			body := map[string]any{"value": parseValue(args[1])}
			_, err := newClient(addr).do(http.MethodPut, "/model/"+url.PathEscape(args[0]), body)
			return err
		},
	}

	cmd.Flags().StringVarP(&addr, "addr", "a", "localhost:8420", "Server address")
	return cmd
}

// parseValue interprets a CLI argument as a JSON value, falling back
// to a plain string.
func parseValue(s string) any {
	if n, err := strconv.Atoi(s); err == nil {
		return n
	}
	var v any
	if err := json.Unmarshal([]byte(s), &v); err == nil {
		return v
	}
	return s
}

func snapshotCmd() *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "snapshot",
		Short: "Manage model snapshots on a running server",
	}
	cmd.PersistentFlags().StringVarP(&addr, "addr", "a", "localhost:8420", "Server address")

	cmd.AddCommand(
		&cobra.Command{
			Use:   "save <name>",
			Short: "Save the current model state",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				_, err := newClient(addr).do(http.MethodPost, "/snapshots/"+url.PathEscape(args[0]), nil)
				if err == nil {
					fmt.Printf("saved snapshot %q\n", args[0])
				}
				return err
			},
		},
		&cobra.Command{
			Use:   "restore <name>",
			Short: "Restore a saved snapshot into the model",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				_, err := newClient(addr).do(http.MethodPost, "/snapshots/"+url.PathEscape(args[0])+"/restore", nil)
				if err == nil {
					fmt.Printf("restored snapshot %q\n", args[0])
				}
				return err
			},
		},
		&cobra.Command{
			Use:   "list",
			Short: "List saved snapshots",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				data, err := newClient(addr).do(http.MethodGet, "/snapshots", nil)
				if err != nil {
					return err
				}
				var names []string
				if err := json.Unmarshal(data, &names); err != nil {
					return err
				}
				for _, name := range names {
					fmt.Println(name)
				}
				return nil
			},
		},
	)

	return cmd
}
