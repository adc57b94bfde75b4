// Command lockctl is a standalone lock client CLI: it spins up a
// callback listener and a lockclient.Client, exercises one acquire or
// stat against a running lockd, and after an acquire releases the
// lock before exiting. It is a thin demonstration of the full client protocol,
// not a long-running process.
package main

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"yfslock/internal/rpcwire"
	"yfslock/internal/xid"
	"yfslock/lockclient"
)

func main() {
	var server string
	var listen string
	var timeout time.Duration

	root := &cobra.Command{
		Use:   "lockctl",
		Short: "exercise acquire/release/stat against a lockd server",
	}
	root.PersistentFlags().StringVar(&server, "server", "127.0.0.1:7070", "lockd server address")
	root.PersistentFlags().StringVar(&listen, "listen", "127.0.0.1:0", "local callback listener address")
	root.PersistentFlags().DurationVar(&timeout, "timeout", 1*time.Second, "server RPC timeout")

	acquire := &cobra.Command{
		Use:   "acquire <lid>",
		Short: "acquire a lock, hold it briefly, then release it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			lid, err := parseLid(args[0])
			if err != nil {
				return err
			}
			return withClient(server, listen, timeout, func(c *lockclient.Client) error {
				h, err := c.Acquire(lid)
				if err != nil {
					return err
				}
				fmt.Printf("acquired lock %d as %s\n", lid, c.ClientId())
				return h.Release()
			})
		},
	}

	stat := &cobra.Command{
		Use:   "stat <lid>",
		Short: "print a lock's acquire count",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			lid, err := parseLid(args[0])
			if err != nil {
				return err
			}
			return withClient(server, listen, timeout, func(c *lockclient.Client) error {
				n, err := c.Stat(lid)
				if err != nil {
					return err
				}
				fmt.Printf("lock %d: %d acquires\n", lid, n)
				return nil
			})
		},
	}

	root.AddCommand(acquire, stat)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func parseLid(s string) (xid.LockId, error) {
	v, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("lockctl: invalid lock id %q: %w", s, err)
	}
	return xid.LockId(v), nil
}

func withClient(server, listen string, timeout time.Duration, fn func(*lockclient.Client) error) error {
	c, err := lockclient.New(lockclient.Config{
		ListenAddr:  listen,
		Handles:     rpcwire.NewHandleManager(timeout),
		ServerAddr:  server,
		CallTimeout: timeout,
	})
	if err != nil {
		return err
	}
	defer c.Close()
	return fn(c)
}
