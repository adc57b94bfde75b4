// Command lockd runs the cache-coherent lock service described by
// this repository: standalone, or replicated over Paxos/RSM when
// configured with peers.
package main

import (
	"fmt"
	"net/http"
	"os"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"yfslock/internal/config"
	"yfslock/internal/logging"
	"yfslock/internal/paxoslog"
	"yfslock/internal/rpcwire"
	"yfslock/internal/xid"
	"yfslock/lockserver"
	"yfslock/metrics"
	"yfslock/paxos"
	"yfslock/rsm"
)

func main() {
	var cfgPath string

	root := &cobra.Command{
		Use:   "lockd",
		Short: "cache-coherent distributed lock server",
	}

	serve := &cobra.Command{
		Use:   "serve",
		Short: "run the lock server until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(cfgPath)
			if err != nil {
				return err
			}
			return run(cfg)
		},
	}
	serve.Flags().StringVar(&cfgPath, "config", "", "path to lockd.yaml")
	root.AddCommand(serve)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(cfg config.Config) error {
	if level, err := logging.ParseLevel(cfg.LogLevel); err == nil {
		logging.SetLevel(level)
	}

	m := metrics.New()
	hm := rpcwire.NewHandleManager(cfg.CallTimeout)
	rs := rpcwire.NewServer(cfg.ListenAddr)

	var lsCfg lockserver.Config
	lsCfg.Handles = hm
	lsCfg.CallTimeout = cfg.CallTimeout
	lsCfg.Metrics = m

	var mgr *rsm.Manager
	var plog *paxoslog.Log

	if cfg.Replicated {
		nodes := make([]xid.NodeId, len(cfg.Peers))
		for i, p := range cfg.Peers {
			nodes[i] = xid.NodeId(p)
		}
		me := xid.NodeId(cfg.ListenAddr)

		var err error
		plog, err = paxoslog.Open(cfg.PaxosLogPath)
		if err != nil {
			return fmt.Errorf("lockd: opening paxos log: %w", err)
		}
		defer plog.Close()

		pnode, err := paxos.New(paxos.Config{
			Me:      me,
			Server:  rs,
			Handles: hm,
			Log:     plog,
			Metrics: m,
			Commit:  func(instance paxos.InstanceId, v paxos.Value) { mgr.Apply(instance, v) },
		})
		if err != nil {
			return fmt.Errorf("lockd: starting paxos: %w", err)
		}

		mgr = rsm.New(rsm.Config{
			Me:      me,
			Nodes:   nodes,
			Paxos:   pnode,
			Handles: hm,
			Server:  rs,
		})
		lsCfg.AmIPrimary = mgr.AmIPrimary
	}

	ls := lockserver.New(lsCfg)

	if cfg.Replicated {
		mgr.SetStateTransfer(ls)

		if cfg.Peers[0] != cfg.ListenAddr {
			if err := mgr.FetchState(cfg.Peers[0]); err != nil {
				return fmt.Errorf("lockd: fetching state from primary %s: %w", cfg.Peers[0], err)
			}
			logger.Info("lockd: fetched initial state from primary %s", cfg.Peers[0])
		}

		ls.RegisterReplicated(mgr, rs)
		mgr.StartHeartbeat()
		logger.Info("lockd: replicated mode, peers=%v", cfg.Peers)
	} else {
		ls.RegisterStandalone(rs)
		logger.Info("lockd: standalone mode")
	}

	if err := rs.Start(); err != nil {
		return fmt.Errorf("lockd: listen on %s: %w", cfg.ListenAddr, err)
	}
	logger.Info("lockd: listening on %s", rs.Addr())

	if cfg.MetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(m.Gatherer(), promhttp.HandlerOpts{}))
		go func() {
			if err := http.ListenAndServe(cfg.MetricsAddr, mux); err != nil {
				logger.Error("lockd: metrics server: %v", err)
			}
		}()
		logger.Info("lockd: metrics on http://%s/metrics", cfg.MetricsAddr)
	}

	select {}
}

var logger = logging.Get("lockd")
