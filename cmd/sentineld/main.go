// Copyright (c) 2026 Sentinel Gate Authors
// SPDX-License-Identifier: MIT

// Command sentineld is the composition root: it parses CLI flags and a
// config file (cobra + viper, mirroring the teacher's config/shell.go
// flag-to-viper binding), wires C1-C10 together, serves the operator HTTP
// surface, and runs the registry janitor sweep on a fixed cadence. It
// never opens a Minecraft-protocol listener itself: the wire codec and
// the backend catalog/connector are the external collaborators spec.md
// §1 scopes out of this module, so this binary exposes Pipeline's three
// entry points (OnAccept/OnPacket/OnClose) for that collaborator to call,
// rather than fabricating a protocol implementation that isn't this
// repo's to own.
package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/sentinelgate/admission/clock"
	"github.com/sentinelgate/admission/detector"
	"github.com/sentinelgate/admission/event"
	"github.com/sentinelgate/admission/httpapi"
	"github.com/sentinelgate/admission/logging"
	"github.com/sentinelgate/admission/pipeline"
	"github.com/sentinelgate/admission/policy"
	"github.com/sentinelgate/admission/registry"
	"github.com/sentinelgate/admission/world"
)

// sweepInterval is the janitor cadence the spec fixes at C2's 60s figure.
const sweepInterval = 60 * time.Second

// idleThreshold is C2's 30-minute idle-record reclamation window.
const idleThreshold = 30 * time.Minute

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	v := viper.New()

	cmd := &cobra.Command{
		Use:   "sentineld",
		Short: "Admission and verification proxy for a Minecraft server fleet",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, v)
		},
	}

	cmd.PersistentFlags().String("http-addr", ":8282", "operator HTTP surface bind address")
	cmd.PersistentFlags().String("dns-resolver", "", "upstream DNS resolver (host:port) for PTR enrichment; empty disables it")
	cmd.PersistentFlags().Int("scheduler-workers", 4, "worker pool size for the verification-deadline scheduler")

	if err := v.BindPFlag("http_addr", cmd.PersistentFlags().Lookup("http-addr")); err != nil {
		panic(err)
	}
	if err := v.BindPFlag("dns_resolver", cmd.PersistentFlags().Lookup("dns-resolver")); err != nil {
		panic(err)
	}
	if err := v.BindPFlag("scheduler_workers", cmd.PersistentFlags().Lookup("scheduler-workers")); err != nil {
		panic(err)
	}
	if err := policy.RegisterFlags(cmd, v); err != nil {
		panic(err)
	}

	v.SetEnvPrefix("SENTINEL")
	v.AutomaticEnv()

	return cmd
}

func run(cmd *cobra.Command, v *viper.Viper) error {
	cfgFile, _ := cmd.PersistentFlags().GetString("config")
	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("reading config file: %w", err)
		}
	}

	snap, err := policy.Load(v)
	if err != nil {
		return fmt.Errorf("loading policy snapshot: %w", err)
	}
	pol := policy.New(snap)

	log := logging.New(os.Stdout, logging.InfoLevel)

	sink := event.New(1024, nil, func(e event.Event) {
		log.Debug(string(e.Kind), logging.Fields{
			"correlation_id": e.CorrelationID,
			"reason":         e.Reason,
		})
	})
	defer sink.Close()

	reg := registry.New()
	sched := clock.NewScheduler(v.GetInt("scheduler_workers"))
	defer sched.Stop()

	w := world.New(world.DefaultArena, 5*time.Second, func(sessionID string) {
		log.Debug("keep-alive tick", logging.Fields{"session_id": sessionID})
	})
	defer w.Close()

	var resolver detector.Resolver
	if addr := v.GetString("dns_resolver"); addr != "" {
		resolver = detector.NewCachingResolver(detector.NewResolver(addr, 500*time.Millisecond), 4096, 10*time.Minute)
	}

	pipe := pipeline.New(pipeline.Config{
		Clock:     clock.System,
		Scheduler: sched,
		Policy:    pol,
		Registry:  reg,
		World:     w,
		Sink:      sink,
		Log:       log,
		Resolver:  resolver,
		// Catalog/Connector are left nil: the backend-server catalog and
		// its forwarding logic are collaborators this module consumes but
		// never implements (spec.md §1). A real deployment plugs in its
		// own backend.Catalog/backend.Connector here.
	})

	reloader := &httpapi.Reloader{Policy: pol, Viper: v}
	srv := httpapi.New(v.GetString("http_addr"), statsAdapter{pipe}, reloader, log)
	if err := srv.Listen(); err != nil {
		return fmt.Errorf("starting operator http surface: %w", err)
	}
	defer srv.Shutdown()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM, syscall.SIGHUP)

	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()

	log.Info("sentineld started", logging.Fields{"http_addr": v.GetString("http_addr")})

	for {
		select {
		case sig := <-stop:
			if sig == syscall.SIGHUP {
				if err := reloader.ReloadNow(); err != nil {
					log.Error("policy reload failed", logging.Fields{"error": err.Error()})
				} else {
					log.Info("policy reloaded via SIGHUP", nil)
				}
				continue
			}
			log.Info("shutting down", logging.Fields{"signal": sig.String()})
			return nil
		case now := <-ticker.C:
			pipe.Sweep(now, idleThreshold)
		}
	}
}

// statsAdapter satisfies httpapi.StatsProvider without httpapi importing
// pipeline directly.
type statsAdapter struct {
	p *pipeline.Pipeline
}

func (s statsAdapter) Stats() httpapi.Stats {
	st := s.p.Stats()
	return httpapi.Stats{ActiveConnections: st.ActiveConnections}
}
