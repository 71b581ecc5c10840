package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/gaspardpetit/chatrelay/internal/api"
	"github.com/gaspardpetit/chatrelay/internal/config"
	"github.com/gaspardpetit/chatrelay/internal/inflight"
	"github.com/gaspardpetit/chatrelay/internal/logx"
	"github.com/gaspardpetit/chatrelay/internal/metrics"
	"github.com/gaspardpetit/chatrelay/internal/ollama"
	"github.com/gaspardpetit/chatrelay/internal/relay"
	"github.com/gaspardpetit/chatrelay/internal/server"
	"github.com/gaspardpetit/chatrelay/internal/serverstate"
)

var (
	version   = "dev"
	buildSHA  = "unknown"
	buildDate = "unknown"
)

func main() {
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Usage = func() {
		_, _ = fmt.Fprintf(flag.CommandLine.Output(), "chatrelay version=%s sha=%s date=%s\n\n", version, buildSHA, buildDate)
		flag.PrintDefaults()
	}
	cfg, err := config.Load(flag.CommandLine, os.Args[1:])
	if err != nil {
		logx.Log.Fatal().Err(err).Str("path", cfg.ConfigFile).Msg("load config")
	}
	if *showVersion {
		fmt.Printf("chatrelay version=%s sha=%s date=%s\n", version, buildSHA, buildDate)
		return
	}
	logx.Configure(cfg.LogLevel)
	metrics.SetBuildInfo(version, buildSHA, buildDate)

	var store serverstate.Store
	if cfg.RedisAddr != "" {
		rctx, rcancel := context.WithTimeout(context.Background(), 5*time.Second)
		rs, err := serverstate.NewRedisStore(rctx, cfg.RedisAddr)
		rcancel()
		if err != nil {
			logx.Log.Fatal().Err(err).Msg("connect redis")
		}
		defer func() {
			_ = rs.Close()
		}()
		store = rs
		logx.Log.Info().Str("addr", cfg.RedisAddr).Msg("using redis state store")
	}
	tracker := serverstate.NewTracker(store)
	counter := &inflight.Counter{}

	a := api.New(ollama.New(cfg.OllamaURL, cfg.RequestTimeout), api.Options{
		DefaultModel:   cfg.DefaultModel,
		ServiceName:    cfg.ServiceName,
		Relay:          relay.Options{SkipMalformedLines: cfg.SkipMalformedLines},
		State:          tracker,
		Inflight:       counter,
		AllowedOrigins: cfg.AllowedOrigins,
		MetricModels:   cfg.MetricModels,
	})
	srv := &http.Server{Addr: fmt.Sprintf(":%d", cfg.Port), Handler: server.New(cfg, a)}
	var metricsSrv *http.Server
	if !cfg.SameListener() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		metricsSrv = &http.Server{Addr: cfg.MetricsAddr, Handler: mux}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	d := &drainer{tracker: tracker, counter: counter, timeout: cfg.DrainTimeout, cancel: cancel}
	go d.run(ctx, sigCh)
	shutdownDone := make(chan struct{})
	go func() {
		defer close(shutdownDone)
		<-ctx.Done()
		sctx, scancel := context.WithTimeout(context.Background(), time.Second)
		defer scancel()
		if err := srv.Shutdown(sctx); err != nil {
			logx.Log.Error().Err(err).Msg("server shutdown")
		}
		if metricsSrv != nil {
			if err := metricsSrv.Shutdown(sctx); err != nil {
				logx.Log.Error().Err(err).Msg("metrics server shutdown")
			}
		}
	}()

	if metricsSrv != nil {
		go func() {
			logx.Log.Info().Str("addr", cfg.MetricsAddr).Msg("metrics server starting")
			if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logx.Log.Error().Err(err).Msg("metrics server error")
			}
		}()
	}
	tracker.SetStatus(ctx, serverstate.StatusReady)
	logx.Log.Info().Int("port", cfg.Port).Str("ollama_url", cfg.OllamaURL).Str("default_model", cfg.DefaultModel).Str("version", version).Msg("server starting")
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logx.Log.Fatal().Err(err).Msg("server error")
	}
	<-shutdownDone
}
