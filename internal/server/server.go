// Package server assembles the halcyond runtime: codec, notification
// bus, registries, account store, file area and the two listeners, all
// built from one Config.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/halcyonline/halcyon/internal/account"
	"github.com/halcyonline/halcyon/internal/adapter"
	"github.com/halcyonline/halcyon/internal/adapter/control"
	"github.com/halcyonline/halcyon/internal/adapter/transfer"
	"github.com/halcyonline/halcyon/internal/encoding"
	"github.com/halcyonline/halcyon/internal/files"
	"github.com/halcyonline/halcyon/internal/logger"
	"github.com/halcyonline/halcyon/internal/notify"
	"github.com/halcyonline/halcyon/internal/registry"
	"github.com/halcyonline/halcyon/pkg/config"
)

// Server owns every long-lived component of a running halcyond.
type Server struct {
	cfg *config.Config

	bus       *notify.Bus
	users     *registry.Users
	chats     *registry.Chats
	news      *registry.News
	transfers *registry.Transfers

	accounts *account.Store
	area     *files.Area

	control  *control.Adapter
	transfer *transfer.Adapter

	metricsServer *http.Server
}

// New builds a server from configuration. Nothing is listening yet;
// call Serve.
func New(cfg *config.Config) (*Server, error) {
	codec, err := encoding.ForName(cfg.News.Encoding)
	if err != nil {
		return nil, fmt.Errorf("news encoding: %w", err)
	}

	area, err := files.New(cfg.Files.Root)
	if err != nil {
		return nil, fmt.Errorf("file area: %w", err)
	}

	accounts, err := account.NewStore(cfg.Accounts.Path, cfg.Server.AllowGuests)
	if err != nil {
		return nil, fmt.Errorf("account store: %w", err)
	}

	bus := notify.New(cfg.Limits.SubscriberBuffer)
	queueDepth := cfg.Limits.QueueDepth

	users := registry.NewUsers(bus, queueDepth)
	chats := registry.NewChats(bus, queueDepth)
	news, err := registry.NewNews(bus, codec, cfg.News.Path, queueDepth)
	if err != nil {
		return nil, fmt.Errorf("news board: %w", err)
	}
	transfers := registry.NewTransfers(registry.DefaultTransferTTL, queueDepth)

	var metrics *adapter.Metrics
	var metricsServer *http.Server
	if cfg.Metrics.Enabled {
		reg := prometheus.NewRegistry()
		reg.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		metrics = adapter.NewMetrics(reg)

		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
		metricsServer = &http.Server{
			Addr:              fmt.Sprintf(":%d", cfg.Metrics.Port),
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		}
	}

	controlAdapter := control.New(control.Config{
		BindAddress:     cfg.Server.BindAddress,
		Port:            cfg.Server.Port,
		ServerName:      cfg.Server.Name,
		MaxConnections:  cfg.Server.MaxConnections,
		ReadTimeout:     cfg.Server.ReadTimeout,
		WriteTimeout:    cfg.Server.WriteTimeout,
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
		IdleAway:        cfg.Server.IdleAway,
		AgreementPath:   cfg.Server.AgreementPath,
		MaxFramePayload: uint32(cfg.Limits.MaxFramePayload),
	}, control.Deps{
		Bus:       bus,
		Users:     users,
		Chats:     chats,
		News:      news,
		Transfers: transfers,
		Accounts:  accounts,
		Files:     area,
		Codec:     codec,
		Metrics:   metrics,
	})

	transferAdapter := transfer.New(transfer.Config{
		BindAddress:     cfg.Server.BindAddress,
		Port:            cfg.Server.TransferPort,
		MaxTransfers:    cfg.Server.MaxTransfers,
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
	}, transfer.Deps{
		Transfers: transfers,
		Files:     area,
		Codec:     codec,
		Metrics:   metrics,
	})

	return &Server{
		cfg:           cfg,
		bus:           bus,
		users:         users,
		chats:         chats,
		news:          news,
		transfers:     transfers,
		accounts:      accounts,
		area:          area,
		control:       controlAdapter,
		transfer:      transferAdapter,
		metricsServer: metricsServer,
	}, nil
}

// Accounts exposes the account store, for CLI tooling built on a
// constructed server.
func (s *Server) Accounts() *account.Store { return s.accounts }

// ControlPort returns the bound control port once serving.
func (s *Server) ControlPort() int { return s.control.Port() }

// TransferPort returns the bound transfer port once serving.
func (s *Server) TransferPort() int { return s.transfer.Port() }

// Ready is closed once both listeners accept connections.
func (s *Server) Ready() <-chan struct{} {
	ready := make(chan struct{})
	go func() {
		<-s.control.ListenerReady()
		<-s.transfer.ListenerReady()
		close(ready)
	}()
	return ready
}

// Serve runs the registries, the listeners and the metrics endpoint
// until ctx is cancelled or a listener fails. The first fatal error
// wins; everything else is shut down behind it.
func (s *Server) Serve(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	go s.users.Run(runCtx)
	go s.chats.Run(runCtx)
	go s.news.Run(runCtx)
	go s.transfers.Run(runCtx)

	fatal := make(chan error, 3)

	if s.metricsServer != nil {
		go func() {
			logger.Info("metrics endpoint up", "addr", s.metricsServer.Addr)
			if err := s.metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				fatal <- fmt.Errorf("metrics server: %w", err)
			}
		}()
	}

	go func() {
		if err := s.control.Serve(runCtx); err != nil {
			fatal <- err
		}
	}()
	go func() {
		if err := s.transfer.Serve(runCtx); err != nil {
			fatal <- err
		}
	}()

	logger.Info("server assembled",
		"name", s.cfg.Server.Name,
		"accounts", s.accounts.Len(),
		"allow_guests", s.cfg.Server.AllowGuests,
	)

	var cause error
	select {
	case <-ctx.Done():
	case cause = <-fatal:
		logger.Error("fatal server error, shutting down", "error", cause)
	}

	cancel()
	if err := s.stop(); err != nil && cause == nil {
		cause = err
	}
	return cause
}

// stop tears the listeners down within the configured shutdown window.
func (s *Server) stop() error {
	stopCtx, cancel := context.WithTimeout(context.Background(), s.cfg.Server.ShutdownTimeout)
	defer cancel()

	var errs []error
	if err := s.control.Stop(stopCtx); err != nil {
		errs = append(errs, err)
	}
	if err := s.transfer.Stop(stopCtx); err != nil {
		errs = append(errs, err)
	}
	if s.metricsServer != nil {
		if err := s.metricsServer.Shutdown(stopCtx); err != nil {
			errs = append(errs, fmt.Errorf("metrics shutdown: %w", err))
		}
	}
	return errors.Join(errs...)
}
