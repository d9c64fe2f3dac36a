// Command edgelb runs a reverse-proxy load balancer: a single HTTP
// ingress that routes, health-checks, and forwards to configured
// target groups.
package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/songzhibin97/edgelb/internal/config"
	"github.com/songzhibin97/edgelb/internal/proxy"
)

// writeTimeoutGrace is added on top of the forwarder's upstream
// timeout when setting the server's WriteTimeout, so a timeout
// response always has room to flush.
const writeTimeoutGrace = 5 * time.Second

var (
	configFile = flag.String("config", "config.yaml", "path to the YAML configuration bundle")
	devLogging = flag.Bool("dev", false, "use human-readable development logging instead of JSON")
)

func main() {
	flag.Parse()

	logger, err := newLogger(*devLogging)
	if err != nil {
		log.Fatalf("edgelb: building logger: %v", err)
	}
	defer logger.Sync()

	bundle, err := config.Load(*configFile)
	if err != nil {
		logger.Fatal("loading configuration", zap.Error(err))
	}

	built, err := config.Build(bundle, logger)
	if err != nil {
		logger.Fatal("building pipeline", zap.Error(err))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	for _, g := range built.Groups {
		g.StartHealth(ctx)
	}

	forwarder := proxy.NewForwarder(bundle.ConnectionTimeout, bundle.ProxyHeadersEnabled, bundle.ListenerPort)
	listener := proxy.NewListener(built.Matcher, built.Groups, forwarder, logger)

	// WriteTimeout must exceed the forwarder's own upstream timeout so a
	// 504 written after that timeout fires isn't racing the server's own
	// write deadline.
	srv := &http.Server{
		Addr:         portAddr(bundle.ListenerPort),
		Handler:      listener,
		ReadTimeout:  bundle.ConnectionTimeout,
		WriteTimeout: bundle.ConnectionTimeout + writeTimeoutGrace,
	}

	logger.Info("starting listener",
		zap.Int("port", bundle.ListenerPort),
		zap.Int("groups", len(built.Groups)),
		zap.Int("rules", len(bundle.Rules)))

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("listener exited", zap.Error(err))
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	received := <-sig
	logger.Info("shutdown signal received", zap.String("signal", received.String()))

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), bundle.ConnectionTimeout)
	defer shutdownCancel()

	for _, g := range built.Groups {
		g.StopHealth()
	}
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown did not complete cleanly", zap.Error(err))
	}
	logger.Info("shutdown complete")
}

func newLogger(dev bool) (*zap.Logger, error) {
	if dev {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

func portAddr(port int) string {
	return ":" + strconv.Itoa(port)
}
