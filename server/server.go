// Package server exposes a running registry over Connect (HTTP/JSON and
// binary protobuf) together with Prometheus metrics, and optionally reloads
// the registry when its image changes on disk.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"connectrpc.com/connect"
	"github.com/tliron/commonlog"
	"golang.org/x/sync/errgroup"

	"github.com/chazu/liveobjects/image"
	"github.com/chazu/liveobjects/object"
)

var log = commonlog.GetLogger("liveobjects.server")

// shutdownTimeout bounds graceful shutdown once the serve context ends.
const shutdownTimeout = 5 * time.Second

// LiveServer serves one registry.
type LiveServer struct {
	worker  *Worker
	metrics *Metrics
	mux     *http.ServeMux
	cfg     *serverConfig
}

// ServerOption configures a LiveServer.
type ServerOption func(*serverConfig)

type serverConfig struct {
	store   *image.Store
	watch   bool
	startup bool
}

// WithStore attaches the image store used by Snapshot and the watcher.
func WithStore(store *image.Store) ServerOption {
	return func(c *serverConfig) { c.store = store }
}

// WithWatch reloads the registry when the store's artifact changes on disk.
// When startup is set, startup hooks run after each reload.
func WithWatch(startup bool) ServerOption {
	return func(c *serverConfig) {
		c.watch = true
		c.startup = startup
	}
}

// New creates a LiveServer around reg. From here on reg must only be used
// through the server's Worker.
func New(reg *object.Registry, opts ...ServerOption) *LiveServer {
	cfg := &serverConfig{}
	for _, opt := range opts {
		opt(cfg)
	}

	s := &LiveServer{
		worker:  NewWorker(reg),
		metrics: NewMetrics(),
		mux:     http.NewServeMux(),
		cfg:     cfg,
	}

	svc := NewCommandService(s.worker, cfg.store, s.metrics)
	handlerOpts := connect.WithInterceptors(s.metrics.Interceptor())

	s.mux.Handle(RunCommandProcedure, connect.NewUnaryHandler(RunCommandProcedure, svc.RunCommand, handlerOpts))
	s.mux.Handle(RunCommandsProcedure, connect.NewUnaryHandler(RunCommandsProcedure, svc.RunCommands, handlerOpts))
	s.mux.Handle(SnapshotProcedure, connect.NewUnaryHandler(SnapshotProcedure, svc.Snapshot, handlerOpts))
	s.mux.Handle(ListObjectsProcedure, connect.NewUnaryHandler(ListObjectsProcedure, svc.ListObjects, handlerOpts))
	s.mux.Handle(DescribeObjectProcedure, connect.NewUnaryHandler(DescribeObjectProcedure, svc.DescribeObject, handlerOpts))
	s.mux.Handle(MetricsPath, s.metrics.Handler())

	return s
}

// Handler returns the server's HTTP handler.
func (s *LiveServer) Handler() http.Handler {
	return s.mux
}

// Worker returns the worker that owns the registry.
func (s *LiveServer) Worker() *Worker {
	return s.worker
}

// ListenAndServe serves on addr until ctx is cancelled or the listener fails.
// The image watcher, when enabled, runs alongside.
func (s *LiveServer) ListenAndServe(ctx context.Context, addr string) error {
	httpSrv := &http.Server{
		Addr:              addr,
		Handler:           s.mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	var watcher *Watcher
	if s.cfg.watch && s.cfg.store != nil {
		w, err := NewWatcher(s.cfg.store, s.worker, s.metrics, s.cfg.startup)
		if err != nil {
			return fmt.Errorf("watch %s: %w", s.cfg.store.Path, err)
		}
		watcher = w
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		fmt.Printf("LiveObjects server listening on %s\n", addr)
		fmt.Printf("  Connect (HTTP/JSON): http://%s%s\n", addr, RunCommandProcedure)
		fmt.Printf("  Metrics:             http://%s%s\n", addr, MetricsPath)
		if err := httpSrv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return httpSrv.Shutdown(shutdownCtx)
	})
	if watcher != nil {
		g.Go(func() error { return watcher.Run(ctx) })
	}
	return g.Wait()
}

// Stop shuts down the worker. Requests still in flight fail with ErrStopped.
func (s *LiveServer) Stop() {
	s.worker.Stop()
}
