package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP and websocket server",
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	log.Info("starting outfred-gateway",
		zap.String("env", cfg.Env),
		zap.String("port", cfg.Port),
	)

	a, err := newApp(cmd.Context(), cfg, log)
	if err != nil {
		return err
	}
	defer a.close()

	return run(a.handler)
}

// run serves handler until the listener fails or the process is interrupted,
// then drains in-flight requests for up to 10 seconds.
func run(handler http.Handler) error {
	addr := fmt.Sprintf(":%s", cfg.Port)
	l, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	log.Info("server listening", zap.String("addr", l.Addr().String()))

	// WriteTimeout stays unset: websocket connections are long lived and
	// manage their own write deadlines.
	s := &http.Server{
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		errc <- s.Serve(l)
	}()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errc:
		log.Error("failed to serve", zap.Error(err))
	case sig := <-sigs:
		log.Info("shutting down server", zap.Stringer("signal", sig))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	return s.Shutdown(ctx)
}
