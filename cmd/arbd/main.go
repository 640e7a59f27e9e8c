// arbd is the cross-venue sports mispricing daemon. It discovers winner
// markets on both venues, binds them to canonical events, computes
// after-cost edges, paper-trades the signals, and streams snapshots to
// dashboard clients.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sourcegraph/conc"

	"github.com/phenomenon0/sportsarb/pkg/canonical"
	"github.com/phenomenon0/sportsarb/pkg/config"
	"github.com/phenomenon0/sportsarb/pkg/connectors"
	"github.com/phenomenon0/sportsarb/pkg/metrics"
	"github.com/phenomenon0/sportsarb/pkg/resolve"
	"github.com/phenomenon0/sportsarb/pkg/scheduler"
	"github.com/phenomenon0/sportsarb/pkg/store"
	"github.com/phenomenon0/sportsarb/pkg/stream"
	"github.com/phenomenon0/sportsarb/pkg/telemetry"
)

func main() {
	cfg := config.Load()
	telemetry.Init(telemetry.ParseLogLevel(cfg.LogLevel))
	log := telemetry.L()

	st, err := store.Open(cfg.DatabaseURL)
	if err != nil {
		log.Error("open store", "path", cfg.DatabaseURL, "err", err)
		os.Exit(1)
	}
	defer st.Close()

	overrides, err := resolve.LoadOverrides(cfg.OverridesPath)
	if err != nil {
		log.Warn("overrides load failed, continuing without", "path", cfg.OverridesPath, "err", err)
		overrides = nil
	}

	hub := stream.NewHub()
	met := metrics.Default()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	opts := scheduler.Options{
		Config:    cfg,
		Store:     st,
		Hub:       hub,
		Metrics:   met,
		Overrides: overrides,
		Poly:      connectors.NewGamma(cfg.GammaBaseURL, cfg.RequestTimeout, cfg.MarketDiscoveryLimit),
		Kalshi:    connectors.NewKalshiREST(cfg.KalshiBaseURL, cfg.KalshiAPIKey, cfg.RequestTimeout, cfg.MarketDiscoveryLimit),
		Clob:      connectors.NewCLOB(cfg.ClobBaseURL, cfg.RequestTimeout),
	}
	if cfg.PolyrouterURL != "" {
		opts.Router = connectors.NewPolyrouter(
			cfg.PolyrouterURL, cfg.PolyrouterKey, cfg.RequestTimeout,
			cfg.PolyrouterPageLimit, cfg.PolyrouterBatchSize, cfg.PolyrouterReqPerMinute)
	}

	var kalshiWS *connectors.KalshiWS
	if cfg.KalshiWSURL != "" && cfg.ActiveDataSource() == "direct" {
		kalshiWS = connectors.NewKalshiWS(cfg.KalshiWSURL, cfg.KalshiAPIKey, func(top store.OrderBookTop) {
			if err := st.UpsertTop(ctx, top); err != nil {
				log.Warn("stream top upsert failed", "market", top.VenueMarketID, "err", err)
				return
			}
			met.RecordTopUpsert(string(canonical.VenueKalshi), "ws")
		})
		opts.Stream = kalshiWS
	}

	sched := scheduler.New(opts)
	app := newApp(cfg, st, hub, met, sched)

	server := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      app.routes(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	var lifecycle conc.WaitGroup
	lifecycle.Go(func() { sched.Run(ctx) })
	if kalshiWS != nil {
		lifecycle.Go(func() {
			if err := kalshiWS.Run(ctx); err != nil && ctx.Err() == nil {
				log.Error("kalshi stream stopped", "err", err)
			}
		})
	}
	lifecycle.Go(func() {
		log.Info("http listening", "addr", cfg.HTTPAddr, "source", cfg.ActiveDataSource())
		if err := server.ListenAndServe(); err != http.ErrServerClosed {
			log.Error("http server", "err", err)
			cancel()
		}
	})
	lifecycle.Go(func() {
		<-ctx.Done()
		shutdownCtx, stop := context.WithTimeout(context.Background(), 5*time.Second)
		defer stop()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Warn("http shutdown", "err", err)
		}
	})

	log.Info("arbd running", "db", cfg.DatabaseURL, "demo_fallback", cfg.EnableDemoFallback)
	lifecycle.Wait()

	if stats, err := st.Stats(context.Background()); err == nil {
		log.Info("final paper stats",
			"open", stats.OpenPositions, "closed", stats.ClosedPositions,
			"realized", stats.TotalRealized, "equity", stats.Equity)
	}
	log.Info("shutdown complete")
}
