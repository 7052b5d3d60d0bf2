// Command payswitch runs the terminal-facing ISO8583 switch: TCP and TLS
// listeners for terminal JSON, Postgres persistence, Kafka result events and
// a Prometheus metrics endpoint.
package main

import (
	"context"
	"crypto/tls"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/sync/errgroup"

	"github.com/mkadit/payswitch/internal/config"
	"github.com/mkadit/payswitch/internal/handler"
	"github.com/mkadit/payswitch/internal/notify"
	"github.com/mkadit/payswitch/internal/observability"
	"github.com/mkadit/payswitch/internal/postgres"
	"github.com/mkadit/payswitch/internal/repository"
	"github.com/mkadit/payswitch/internal/security"
	"github.com/mkadit/payswitch/internal/server"
	"github.com/mkadit/payswitch/internal/stan"
	"github.com/mkadit/payswitch/internal/transaction"
	"github.com/mkadit/payswitch/iso8583"
)

func main() {
	configPath := flag.String("config", "", "optional config file (yaml, json or toml)")
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, *configPath); err != nil {
		slog.Error("payswitch stopped", slog.Any("error", err))
		os.Exit(1)
	}
}

func run(ctx context.Context, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	logger := observability.InitLogger(observability.LogConfig{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
	})
	logger.Info("starting payswitch",
		slog.String("tcp_addr", cfg.TCPAddr()),
		slog.Bool("tls", cfg.TLSEnabled()),
		slog.String("framing", cfg.App.Framing),
	)

	framing, err := server.ParseFraming(cfg.App.Framing)
	if err != nil {
		return err
	}

	pgCfg := postgres.Config{
		Host:     cfg.DB.Host,
		Port:     cfg.DB.Port,
		User:     cfg.DB.Username,
		Password: cfg.DB.Password,
		Database: cfg.DB.Name,
		SSLMode:  cfg.DB.SSLMode,
		MaxConns: cfg.DB.MaxConnections,
		MinConns: cfg.DB.MinConnections,
	}
	if cfg.DB.Migrations != "" {
		if err := postgres.RunMigrations(pgCfg.DSN(), cfg.DB.Migrations); err != nil {
			return err
		}
		logger.Info("migrations applied", slog.String("source", cfg.DB.Migrations))
	}
	pool, err := postgres.NewPool(ctx, pgCfg)
	if err != nil {
		return err
	}
	defer pool.Close()

	metrics := observability.NewMetrics()
	packager, err := loadPackager(cfg.App.PackagerFile)
	if err != nil {
		return err
	}

	opts := []transaction.Option{
		transaction.WithPackager(packager),
		transaction.WithSigner(security.NewMessageSigner(security.NewMockMAC(), packager)),
		transaction.WithMetrics(metrics),
		transaction.WithLogger(logger),
		transaction.WithCurrency(cfg.App.CurrencyCode),
		transaction.WithResponseTimeout(cfg.App.ResponseTimeout),
	}
	if brokers := cfg.KafkaBrokers(); len(brokers) > 0 {
		notifier := notify.NewKafkaNotifier(notify.Config{Brokers: brokers}, logger)
		defer notifier.Close()
		opts = append(opts, transaction.WithNotifier(notifier, cfg.Kafka.Producer.PaymentResponseTopic))
	} else {
		logger.Warn("kafka bootstrap servers not set, payment result events disabled")
	}

	responder := transaction.NewMockResponder(
		transaction.WithSuccessRate(cfg.App.MockSuccessRate),
		transaction.WithMockLogger(logger),
	)
	svc := transaction.NewService(stan.New(), repository.NewPostgres(pool), responder, opts...)
	h := handler.New(svc, handler.WithLogger(logger))

	serverOpts := []server.Option{
		server.WithFraming(framing),
		server.WithReadTimeout(cfg.App.ReadTimeout),
		server.WithMaxConnections(cfg.App.MaxConnections),
		server.WithLogger(logger),
		server.WithMetrics(metrics),
	}

	var tlsSrv *server.Server
	if cfg.TLSEnabled() {
		tlsCfg, err := tlsConfig(cfg, logger)
		if err != nil {
			return err
		}
		tlsSrv = server.New(h, append(serverOpts, server.WithTLS(tlsCfg))...)
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return serve(gctx, server.New(h, serverOpts...), cfg.TCPAddr())
	})
	if tlsSrv != nil {
		g.Go(func() error {
			return serve(gctx, tlsSrv, cfg.TLSAddr())
		})
	}

	metricsSrv := &http.Server{
		Addr:              cfg.MetricsAddr(),
		Handler:           metricsMux(metrics, pool),
		ReadHeaderTimeout: 5 * time.Second,
	}
	g.Go(func() error {
		logger.Info("metrics listener started", slog.String("addr", metricsSrv.Addr))
		if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("metrics server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return metricsSrv.Shutdown(shutdownCtx)
	})

	err = g.Wait()
	logger.Info("payswitch stopped")
	return err
}

// loadPackager returns the default packager, or one overridden by the JSON
// field table at path.
func loadPackager(path string) (*iso8583.Packager, error) {
	if path == "" {
		return iso8583.DefaultPackager(), nil
	}
	p, err := iso8583.LoadPackagerFromFile(path)
	if err != nil {
		return nil, fmt.Errorf("packager %s: %w", path, err)
	}
	return p, nil
}

func serve(ctx context.Context, srv *server.Server, addr string) error {
	err := srv.ListenAndServe(ctx, addr)
	if errors.Is(err, server.ErrServerClosed) {
		return nil
	}
	return err
}

func tlsConfig(cfg *config.Config, logger *slog.Logger) (*tls.Config, error) {
	if cfg.App.TLSCertFile != "" && cfg.App.TLSKeyFile != "" {
		return server.LoadTLSConfig(cfg.App.TLSCertFile, cfg.App.TLSKeyFile)
	}
	logger.Warn("no tls certificate configured, using a generated self-signed certificate")
	hosts := []string{"localhost", "127.0.0.1"}
	if cfg.App.Host != "" {
		hosts = append(hosts, cfg.App.Host)
	}
	tlsCfg, _, err := server.SelfSignedTLSConfig(hosts)
	return tlsCfg, err
}

func metricsMux(metrics *observability.Metrics, pool *pgxpool.Pool) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if err := postgres.HealthCheck(r.Context(), pool); err != nil {
			http.Error(w, err.Error(), http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	})
	return mux
}
