// Command ringctl is a small operator client for a ringd node's HTTP
// control surface, standing in for ad-hoc curl invocations.
package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/loopvia/ringd/internal/node"
	"github.com/loopvia/ringd/internal/transport"
)

func main() {
	var serverAddr string

	cmd := &cobra.Command{Use: "ringctl"}
	cmd.PersistentFlags().StringVarP(&serverAddr, "server-addr", "s", "", "base URL of the node to control, e.g. http://127.0.0.1:8001 (required)")

	cmd.AddCommand(&cobra.Command{
		Use:   "join [node_id] [host] [socket_port]",
		Short: "insert a node into the ring rooted at server-addr",
		Args:  cobra.ExactArgs(3),
		RunE: func(c *cobra.Command, args []string) error {
			if serverAddr == "" {
				return fmt.Errorf("--server-addr not set")
			}
			nodeID, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("invalid node_id: %w", err)
			}
			socketPort, err := strconv.Atoi(args[2])
			if err != nil {
				return fmt.Errorf("invalid socket_port: %w", err)
			}
			var out map[string]interface{}
			if err := postJSON(serverAddr+"/join", map[string]interface{}{
				"node_id": nodeID, "host": args[1], "socket_port": socketPort,
			}, &out); err != nil {
				return err
			}
			return printJSON(out)
		},
	})

	cmd.AddCommand(postOnlyCommand(&serverAddr, "leave", "leave", "gracefully detach from the ring"))
	cmd.AddCommand(postOnlyCommand(&serverAddr, "kill", "kill", "mark this node administratively dead"))
	cmd.AddCommand(postOnlyCommand(&serverAddr, "revive", "revive", "mark this node alive again"))
	cmd.AddCommand(postOnlyCommand(&serverAddr, "start-election", "startElection", "begin a Chang-Roberts election"))

	cmd.AddCommand(&cobra.Command{
		Use:   "set-delay [seconds]",
		Short: "set this node's per-send artificial delay",
		Args:  cobra.ExactArgs(1),
		RunE: func(c *cobra.Command, args []string) error {
			if serverAddr == "" {
				return fmt.Errorf("--server-addr not set")
			}
			delay, err := strconv.ParseFloat(args[0], 64)
			if err != nil {
				return fmt.Errorf("invalid delay: %w", err)
			}
			var out map[string]interface{}
			if err := postJSON(serverAddr+"/setDelay", map[string]interface{}{"delay": delay}, &out); err != nil {
				return err
			}
			return printJSON(out)
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "health",
		Short: "print this node's health snapshot",
		Args:  cobra.NoArgs,
		RunE: func(c *cobra.Command, args []string) error {
			if serverAddr == "" {
				return fmt.Errorf("--server-addr not set")
			}
			var snap node.HealthSnapshot
			if err := getJSON(serverAddr+"/health", &snap); err != nil {
				return err
			}
			return printJSON(snap)
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "dump",
		Short: "print a text snapshot of this node's topology",
		Args:  cobra.NoArgs,
		RunE: func(c *cobra.Command, args []string) error {
			if serverAddr == "" {
				return fmt.Errorf("--server-addr not set")
			}
			var snap node.HealthSnapshot
			if err := getJSON(serverAddr+"/health", &snap); err != nil {
				return err
			}
			return transport.DumpState(os.Stdout, snap)
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "get",
		Short: "read the shared variable (routes to the leader)",
		Args:  cobra.NoArgs,
		RunE: func(c *cobra.Command, args []string) error {
			if serverAddr == "" {
				return fmt.Errorf("--server-addr not set")
			}
			var out map[string]interface{}
			if err := getJSON(serverAddr+"/variable", &out); err != nil {
				return err
			}
			return printJSON(out)
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "set [value]",
		Short: "write the shared variable (routes to the leader)",
		Args:  cobra.ExactArgs(1),
		RunE: func(c *cobra.Command, args []string) error {
			if serverAddr == "" {
				return fmt.Errorf("--server-addr not set")
			}
			value, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("invalid value: %w", err)
			}
			var out map[string]interface{}
			if err := postJSON(serverAddr+"/variable", map[string]interface{}{"value": value}, &out); err != nil {
				return err
			}
			return printJSON(out)
		},
	})

	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// postOnlyCommand builds a no-argument subcommand that POSTs to path on
// *serverAddr with no body and prints the JSON reply.
func postOnlyCommand(serverAddr *string, name, path, short string) *cobra.Command {
	return &cobra.Command{
		Use:   name,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(c *cobra.Command, args []string) error {
			if *serverAddr == "" {
				return fmt.Errorf("--server-addr not set")
			}
			var out map[string]interface{}
			if err := postJSON(*serverAddr+"/"+path, nil, &out); err != nil {
				return err
			}
			return printJSON(out)
		},
	}
}

func getJSON(url string, out interface{}) error {
	resp, err := http.Get(url)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return json.NewDecoder(resp.Body).Decode(out)
}

func postJSON(url string, body interface{}, out interface{}) error {
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(b)
	}
	resp, err := http.Post(url, "application/json", reader)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return json.NewDecoder(resp.Body).Decode(out)
}

func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
