package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"jobscout-engine/internal/httpapi"
)

func newServeCmd(opts *rootOptions) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := newApp(ctx, opts)
			if err != nil {
				return err
			}
			defer a.close()
			if addr == "" {
				addr = a.cfg.Server.Addr
			}

			token := os.Getenv("JOBSCOUT_SHUTDOWN_TOKEN")
			if token == "" {
				if token, err = randomToken(16); err != nil {
					return err
				}
				// a parent process reads the generated token from stdout
				fmt.Fprintf(cmd.OutOrStdout(), "shutdown-token: %s\n", token)
			}

			handler := httpapi.NewHandler(httpapi.Deps{
				Search:        a.orch,
				Registry:      a.reg,
				Priorities:    a.cfg.Orchestrator.Priorities,
				Cache:         a.cache,
				Browser:       a.browser,
				Proxies:       a.proxies,
				Hub:           a.hub,
				Log:           a.log,
				CORSOrigins:   a.cfg.Server.CORSOrigins,
				ShutdownToken: token,
				Shutdown:      stop,
			})

			ln, err := net.Listen("tcp", addr)
			if err != nil {
				return err
			}
			srv := &http.Server{
				Handler:           handler,
				ReadHeaderTimeout: 5 * time.Second,
			}

			a.start(ctx)
			a.log.Info("engine listening", zap.String("addr", "http://"+ln.Addr().String()))

			errCh := make(chan error, 1)
			go func() { errCh <- srv.Serve(ln) }()

			select {
			case <-ctx.Done():
			case err := <-errCh:
				if !errors.Is(err, http.ErrServerClosed) {
					return err
				}
			}

			a.log.Info("shutting down")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default server.addr)")
	return cmd
}

func randomToken(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
