// Copyright (c) 2026 Sentinel Gate Authors
// SPDX-License-Identifier: MIT

// Package httpapi exposes the admission pipeline's operator-facing HTTP
// surface: liveness, a load/status snapshot, Prometheus metrics, and a
// policy-reload trigger. It is deliberately small next to the teacher's
// full httpserver component (no TLS, no HTTP/2 tuning, one handler) since
// this surface only serves an operator's own tooling, never game traffic.
package httpapi

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/viper"

	atm "github.com/sentinelgate/admission/atomic"
	"github.com/sentinelgate/admission/logging"
	"github.com/sentinelgate/admission/policy"
)

const shutdownTimeout = 10 * time.Second

// StatsProvider is the read-only view of pipeline load the status
// endpoint reports. Implemented in cmd/sentineld by an adapter over
// *pipeline.Pipeline.
type StatsProvider interface {
	Stats() Stats
}

// Stats mirrors pipeline.Stats; kept as a distinct type so this package
// never needs to import pipeline just to read one struct (pipeline
// already imports half of this module's tree; this keeps the graph
// acyclic and the coupling to one method).
type Stats struct {
	ActiveConnections int
}

// Reloader reloads the policy Snapshot from v and swaps it into p.
// Separated from Server so a reload failure can be reported without the
// server needing to know about viper's config-loading internals.
type Reloader struct {
	Policy *policy.Policy
	Viper  *viper.Viper
}

// ReloadNow re-reads the config file and swaps the new Snapshot in,
// discarding the result. Exposed for callers outside this package (e.g. a
// SIGHUP handler) that only care whether the reload succeeded.
func (r *Reloader) ReloadNow() error {
	_, err := r.reload()
	return err
}

func (r *Reloader) reload() (policy.Snapshot, error) {
	if err := r.Viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return policy.Snapshot{}, err
		}
	}
	next, err := policy.Load(r.Viper)
	if err != nil {
		return policy.Snapshot{}, err
	}
	r.Policy.Swap(next)
	return next, nil
}

// Server is the operator HTTP surface (C10's "operator-facing status
// reports" plus a reload trigger), wrapping a gin.Engine the way the
// teacher's httpserver wraps an arbitrary http.Handler.
type Server struct {
	addr     string
	stats    StatsProvider
	reloader *Reloader
	log      logging.Logger

	engine *gin.Engine
	srv    *http.Server
	cancel context.CancelFunc
	running atm.Value[bool]
}

// New builds a Server bound to addr (host:port). log may be nil (becomes
// logging.Nop()); reloader may be nil, in which case POST /reload answers
// 404.
func New(addr string, stats StatsProvider, reloader *Reloader, log logging.Logger) *Server {
	if log == nil {
		log = logging.Nop()
	}
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())

	s := &Server{addr: addr, stats: stats, reloader: reloader, log: log, engine: engine, running: atm.NewValue[bool]()}
	s.registerRoutes()
	return s
}

func (s *Server) registerRoutes() {
	s.engine.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	s.engine.GET("/status", func(c *gin.Context) {
		st := s.stats.Stats()
		c.JSON(http.StatusOK, gin.H{"active_connections": st.ActiveConnections})
	})
	s.engine.GET("/metrics", gin.WrapH(promhttp.Handler()))
	s.engine.POST("/reload", func(c *gin.Context) {
		if s.reloader == nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "reload not configured"})
			return
		}
		next, err := s.reloader.reload()
		if err != nil {
			s.log.Error("policy reload failed", logging.Fields{"error": err.Error()})
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		s.log.Info("policy reloaded", logging.Fields{"enabled": next.Enabled, "pass_threshold": next.PassThreshold})
		c.JSON(http.StatusOK, gin.H{"status": "reloaded"})
	})
}

// Listen starts the server in the background. A non-nil error only means
// the listener failed to bind; errors arising after that are logged, not
// returned, matching the teacher's fire-and-forget Listen contract.
func (s *Server) Listen() error {
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel

	srv := &http.Server{Addr: s.addr, Handler: s.engine}
	s.srv = srv
	s.srv.BaseContext = func(net.Listener) context.Context { return ctx }

	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		cancel()
		return err
	}

	s.running.Store(true)
	s.log.Info("operator http surface starting", logging.Fields{"addr": s.addr})

	go func() {
		defer s.running.Store(false)
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error("operator http surface stopped unexpectedly", logging.Fields{"error": err.Error()})
		}
	}()
	return nil
}

// Shutdown gracefully stops the server, waiting up to shutdownTimeout for
// in-flight requests to finish.
func (s *Server) Shutdown() {
	if s.cancel != nil {
		s.cancel()
	}
	if s.srv == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	s.log.Info("operator http surface shutting down", logging.Fields{"addr": s.addr})
	if err := s.srv.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		s.log.Error("operator http surface shutdown error", logging.Fields{"error": err.Error()})
	}
}

// IsRunning reports whether the server's accept loop is live.
func (s *Server) IsRunning() bool {
	return s.running.Load()
}
