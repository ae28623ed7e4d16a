package cmd

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/jmcleod/ironpki/api"
	"github.com/jmcleod/ironpki/internal/config"
	"github.com/jmcleod/ironpki/metrics"
	"github.com/jmcleod/ironpki/pki"
)

var (
	addr           string
	tlsCert        string
	tlsKey         string
	trustedProxies []string
)

var serverCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the HTTP API",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		if cmd.Flags().Changed("addr") {
			cfg.Server.Addr = addr
		}
		if cmd.Flags().Changed("trusted-proxies") {
			cfg.Server.TrustedProxies = trustedProxies
		}
		proxies, err := cfg.TrustedProxies()
		if err != nil {
			return err
		}

		reg := prometheus.NewRegistry()
		reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		m := metrics.New()
		if err := m.Register(reg); err != nil {
			return fmt.Errorf("registering metrics: %w", err)
		}

		logger := slog.Default()
		s, err := openSession(pki.WithObserver(m), pki.WithDiagnosticFunc(m.Diagnostic))
		if err != nil {
			return err
		}
		defer s.close()

		secret, err := cfg.TokenSecret()
		if err != nil {
			return err
		}
		if secret == nil {
			logger.Warn("API token auth disabled; set server.auth.secret_file or " + config.APISecretEnv)
		}

		apiOpts := []api.Option{
			api.WithTokenAuth(secret, cfg.Server.Auth.Audience),
			api.WithLogger(logger),
			api.WithTrustedProxies(proxies),
			api.WithAuditWebhook(cfg.Server.AuditWebhook.URL, cfg.Server.AuditWebhook.AuthHeader),
		}
		if s.journal != nil {
			apiOpts = append(apiOpts, api.WithJournal(s.journal))
		}
		a := api.New(s.PKI, apiOpts...)
		defer a.Close()

		r := chi.NewRouter()
		r.Use(middleware.RequestID)
		r.Use(middleware.Logger)
		r.Use(middleware.Recoverer)

		r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte("OK"))
		})
		r.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
		r.Mount("/api/v1", a.Router())

		server := &http.Server{
			Addr:              cfg.Server.Addr,
			Handler:           r,
			ReadHeaderTimeout: 10 * time.Second,
			ReadTimeout:       15 * time.Second,
			// Tool invocations (key generation in particular) can be slow.
			WriteTimeout: 5 * time.Minute,
			IdleTimeout:  60 * time.Second,
		}
		if tlsCert != "" || tlsKey != "" {
			cert, err := tls.LoadX509KeyPair(tlsCert, tlsKey)
			if err != nil {
				return fmt.Errorf("failed to load TLS key pair: %w", err)
			}
			server.TLSConfig = &tls.Config{
				Certificates: []tls.Certificate{cert},
				MinVersion:   tls.VersionTLS12,
			}
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			var err error
			if server.TLSConfig != nil {
				err = server.ListenAndServeTLS("", "")
			} else {
				err = server.ListenAndServe()
			}
			if err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("server failed: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			logger.Info("shutting down")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := server.Shutdown(shutdownCtx); err != nil {
				return fmt.Errorf("server shutdown failed: %w", err)
			}
			return nil
		})

		printBanner(cmd.OutOrStdout())
		logger.Info("serving", "addr", cfg.Server.Addr, "pki_dir", s.Config().PKIDir,
			"tls", server.TLSConfig != nil, "auth", secret != nil)
		return g.Wait()
	},
}

func init() {
	rootCmd.AddCommand(serverCmd)
	serverCmd.Flags().StringVar(&addr, "addr", ":8080", "Address to listen on")
	serverCmd.Flags().StringVar(&tlsCert, "tls-cert", "", "Path to TLS certificate file")
	serverCmd.Flags().StringVar(&tlsKey, "tls-key", "", "Path to TLS key file")
	serverCmd.Flags().StringSliceVar(&trustedProxies, "trusted-proxies", nil, "CIDR ranges of reverse proxies whose X-Forwarded-For is trusted")
}
