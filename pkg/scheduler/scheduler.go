// Package scheduler runs the detector's periodic loops: market discovery
// and pair resolution, signal refresh with paper upkeep, and snapshot
// broadcast to live subscribers.
package scheduler

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	json "github.com/goccy/go-json"
	"github.com/sourcegraph/conc"

	"github.com/phenomenon0/sportsarb/pkg/canonical"
	"github.com/phenomenon0/sportsarb/pkg/config"
	"github.com/phenomenon0/sportsarb/pkg/connectors"
	"github.com/phenomenon0/sportsarb/pkg/metrics"
	"github.com/phenomenon0/sportsarb/pkg/paper"
	"github.com/phenomenon0/sportsarb/pkg/pricing"
	"github.com/phenomenon0/sportsarb/pkg/resolve"
	"github.com/phenomenon0/sportsarb/pkg/signal"
	"github.com/phenomenon0/sportsarb/pkg/store"
	"github.com/phenomenon0/sportsarb/pkg/stream"
	"github.com/phenomenon0/sportsarb/pkg/telemetry"
)

// MarketLister is a direct venue discovery client.
type MarketLister interface {
	DiscoverMarkets(ctx context.Context, force bool) []canonical.VenueMarket
}

// TopFetcher polls top-of-book for a set of market ids.
type TopFetcher interface {
	FetchTops(ctx context.Context, marketIDs []string) []store.OrderBookTop
}

// RouterClient is the unified router: discovery per platform plus batched
// orderbooks keyed by native market ids.
type RouterClient interface {
	DiscoverMarkets(ctx context.Context, platform string, force bool) []canonical.VenueMarket
	FetchOrderbooks(ctx context.Context, nativeIDs []string) []store.OrderBookTop
}

// TickerSubscriber retargets a streaming connector at the bound tickers.
type TickerSubscriber interface {
	SetTickers(tickers []string)
}

// Options wires the scheduler's collaborators. Poly, Kalshi, Clob, Router
// and Stream may each be nil when the configured data source does not use
// them.
type Options struct {
	Config    *config.Config
	Store     *store.Store
	Hub       *stream.Hub
	Metrics   *metrics.Metrics
	Overrides map[resolve.OverrideKey]resolve.Override

	Poly   MarketLister
	Kalshi MarketLister
	Clob   TopFetcher
	Router RouterClient
	Stream TickerSubscriber
}

// Scheduler drives the three loops over one shared store.
type Scheduler struct {
	cfg       *config.Config
	st        *store.Store
	hub       *stream.Hub
	met       *metrics.Metrics
	overrides map[resolve.OverrideKey]resolve.Override

	poly   MarketLister
	kalshi MarketLister
	clob   TopFetcher
	router RouterClient
	stream TickerSubscriber

	signaler *signal.Signaler
	sim      *paper.Simulator

	healthMu sync.Mutex
	health   map[string]ConnectorHealth
}

// ConnectorHealth is the last observed state of one upstream connector.
type ConnectorHealth struct {
	OK        bool       `json:"ok"`
	LastOK    *time.Time `json:"last_ok,omitempty"`
	LastError string     `json:"last_error,omitempty"`
	Detail    string     `json:"detail,omitempty"`
}

// Health returns a copy of the connector health map.
func (s *Scheduler) Health() map[string]ConnectorHealth {
	s.healthMu.Lock()
	defer s.healthMu.Unlock()
	out := make(map[string]ConnectorHealth, len(s.health))
	for k, v := range s.health {
		out[k] = v
	}
	return out
}

func (s *Scheduler) setHealth(name string, ok bool, detail string) {
	s.healthMu.Lock()
	defer s.healthMu.Unlock()
	h := s.health[name]
	h.OK = ok
	h.Detail = detail
	if ok {
		now := time.Now().UTC()
		h.LastOK = &now
		h.LastError = ""
	} else {
		h.LastError = detail
	}
	s.health[name] = h
}

// New builds a scheduler from its collaborators.
func New(opts Options) *Scheduler {
	cfg := opts.Config
	met := opts.Metrics
	if met == nil {
		met = metrics.Default()
	}
	return &Scheduler{
		cfg:       cfg,
		st:        opts.Store,
		hub:       opts.Hub,
		met:       met,
		overrides: opts.Overrides,
		poly:      opts.Poly,
		kalshi:    opts.Kalshi,
		clob:      opts.Clob,
		router:    opts.Router,
		stream:    opts.Stream,
		signaler: signal.New(signal.Params{
			MinEdge:           cfg.MinEdge,
			MinSecondsToStart: cfg.MinSecondsToStart,
			Costs: pricing.Costs{
				SlippageK:           cfg.SlippageK,
				MaxNotionalPerEvent: cfg.MaxNotionalPerEvent,
				DepthMultiplier:     cfg.DepthMultiplier,
				FeeBps: map[canonical.Venue]float64{
					canonical.VenuePoly:   cfg.FeePolyBps,
					canonical.VenueKalshi: cfg.FeeKalshiBps,
				},
			},
		}),
		sim:    paper.New(opts.Store),
		health: map[string]ConnectorHealth{},
	}
}

// Run starts the loops and blocks until ctx is canceled.
func (s *Scheduler) Run(ctx context.Context) {
	if !s.cfg.EnableDemoFallback {
		if err := s.st.PurgeDemoRows(ctx); err != nil {
			telemetry.L().Warn("demo purge failed", "err", err)
		}
	}

	var wg conc.WaitGroup
	wg.Go(func() { s.loop(ctx, "discovery", s.cfg.DiscoveryInterval, s.discoverCycle) })
	wg.Go(func() { s.loop(ctx, "signal", s.cfg.SignalInterval, s.signalCycle) })
	wg.Go(func() { s.loop(ctx, "broadcast", s.cfg.WSBroadcastInterval, s.broadcastCycle) })
	wg.Wait()
}

// loop runs fn once immediately and then on every tick until ctx is done.
// Cycle errors are logged and converted into a skipped cycle.
func (s *Scheduler) loop(ctx context.Context, name string, interval time.Duration, fn func(ctx context.Context) error) {
	run := func() {
		start := time.Now()
		status := "ok"
		if err := fn(ctx); err != nil && ctx.Err() == nil {
			status = "error"
			telemetry.L().Error("cycle failed", "loop", name, "err", err)
		}
		s.met.RecordLoop(name, status, time.Since(start).Seconds())
	}

	run()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			run()
		}
	}
}

// discoverCycle lists both venues, resolves pairs, persists events and
// bindings, seeds order books from listing payloads, and refreshes tops
// through the source-appropriate transport.
func (s *Scheduler) discoverCycle(ctx context.Context) error {
	now := time.Now().UTC()
	source := s.cfg.ActiveDataSource()

	var polyMarkets, kalshiMarkets []canonical.VenueMarket
	if source == "router" && s.router != nil {
		polyMarkets = s.router.DiscoverMarkets(ctx, connectors.PlatformPolymarket, false)
		kalshiMarkets = s.router.DiscoverMarkets(ctx, connectors.PlatformKalshi, false)
		if polyMarkets != nil && kalshiMarkets != nil {
			s.setHealth("polyrouter", true,
				fmt.Sprintf("poly=%d kalshi=%d", len(polyMarkets), len(kalshiMarkets)))
		} else {
			s.setHealth("polyrouter", false, "discovery failed")
		}
	} else {
		if s.poly != nil {
			polyMarkets = s.poly.DiscoverMarkets(ctx, false)
			s.setHealth("gamma", polyMarkets != nil, discoveryDetail(polyMarkets))
		}
		if s.kalshi != nil {
			kalshiMarkets = s.kalshi.DiscoverMarkets(ctx, false)
			s.setHealth("kalshi", kalshiMarkets != nil, discoveryDetail(kalshiMarkets))
		}
	}
	polyMarkets = s.applySportToggles(polyMarkets)
	kalshiMarkets = s.applySportToggles(kalshiMarkets)

	s.met.RecordDiscovery(string(canonical.VenuePoly), source, len(polyMarkets), polyMarkets != nil)
	s.met.RecordDiscovery(string(canonical.VenueKalshi), source, len(kalshiMarkets), kalshiMarkets != nil)

	if len(polyMarkets) == 0 || len(kalshiMarkets) == 0 {
		if !s.cfg.EnableDemoFallback {
			telemetry.L().Warn("discovery returned an empty side, skipping cycle",
				"poly", len(polyMarkets), "kalshi", len(kalshiMarkets))
			return nil
		}
		telemetry.L().Info("discovery empty, using demo markets")
		polyMarkets, kalshiMarkets = demoMarkets(now)
		polyMarkets = s.applySportToggles(polyMarkets)
		kalshiMarkets = s.applySportToggles(kalshiMarkets)
	}

	pairs := resolve.Resolve(polyMarkets, kalshiMarkets, s.overrides, now)

	byStatus := map[string]int{}
	for _, pair := range pairs {
		byStatus[string(pair.Status)]++
		if err := s.persistPair(ctx, pair); err != nil {
			telemetry.L().Warn("pair persist failed", "event", pair.EventID, "err", err)
		}
	}
	s.met.RecordPairs(byStatus)

	for _, m := range polyMarkets {
		s.seedTops(ctx, m)
	}
	for _, m := range kalshiMarkets {
		s.seedTops(ctx, m)
	}

	s.refreshTops(ctx, source, now)

	telemetry.L().Info("discovery cycle done",
		"source", source, "poly", len(polyMarkets), "kalshi", len(kalshiMarkets),
		"pairs", len(pairs), "by_status", byStatus)
	return nil
}

func discoveryDetail(markets []canonical.VenueMarket) string {
	if markets == nil {
		return "discovery failed"
	}
	return fmt.Sprintf("markets=%d", len(markets))
}

func (s *Scheduler) applySportToggles(markets []canonical.VenueMarket) []canonical.VenueMarket {
	out := markets[:0:0]
	for _, m := range markets {
		switch m.Sport {
		case canonical.SportNBA:
			if s.cfg.EnableNBA {
				out = append(out, m)
			}
		case canonical.SportSoccer:
			if s.cfg.EnableSoccer {
				out = append(out, m)
			}
		}
	}
	if markets != nil && out == nil {
		out = []canonical.VenueMarket{}
	}
	return out
}

// persistPair upserts the event first, then both bindings, so a binding
// never references a missing event.
func (s *Scheduler) persistPair(ctx context.Context, pair resolve.ResolvedPair) error {
	var start *time.Time
	if !pair.StartTimeUTC.IsZero() {
		t := pair.StartTimeUTC
		start = &t
	}
	if err := s.st.UpsertEvent(ctx, store.Event{
		ID:             pair.EventID,
		Sport:          pair.Sport,
		Competition:    pair.Competition,
		StartTimeUTC:   start,
		HomeTeam:       pair.HomeTeam,
		AwayTeam:       pair.AwayTeam,
		TitleCanonical: pair.TitleCanonical,
	}); err != nil {
		return err
	}
	evidence := pair.EvidenceJSON()
	for _, m := range []canonical.VenueMarket{pair.A, pair.B} {
		if err := s.st.UpsertBinding(ctx, store.Binding{
			CanonicalEventID: pair.EventID,
			Venue:            m.Venue,
			VenueMarketID:    m.VenueMarketID,
			OutcomeSchema:    strings.Join(m.Outcomes, "|"),
			MarketType:       m.MarketType,
			Status:           pair.Status,
			Confidence:       pair.Confidence,
			Evidence:         evidence,
		}); err != nil {
			return err
		}
	}
	return nil
}

// seedTops writes whatever top-of-book the listing payload carried.
func (s *Scheduler) seedTops(ctx context.Context, m canonical.VenueMarket) {
	if m.Raw == nil {
		return
	}
	if top, ok := connectors.TopFromRaw(m.Venue, m.VenueMarketID, m.Raw); ok {
		if err := s.st.UpsertTop(ctx, top); err == nil {
			s.met.RecordTopUpsert(string(m.Venue), "seed")
		}
	}
	if top, ok := connectors.NoTopFromRaw(m.Venue, m.VenueMarketID, m.Raw); ok {
		if err := s.st.UpsertTop(ctx, top); err == nil {
			s.met.RecordTopUpsert(string(m.Venue), "seed")
		}
	}
}

// refreshTops pulls fresh tops for the bound tradeable pairs through the
// active transport.
func (s *Scheduler) refreshTops(ctx context.Context, source string, now time.Time) {
	pairs, err := s.st.ListTradeablePairs(ctx, now.Add(-24*time.Hour))
	if err != nil {
		telemetry.L().Warn("listing tradeable pairs failed", "err", err)
		return
	}

	var polyIDs, kalshiIDs, allIDs []string
	for _, p := range pairs {
		polyIDs = append(polyIDs, p.Poly.VenueMarketID)
		kalshiIDs = append(kalshiIDs, p.Kalshi.VenueMarketID)
		allIDs = append(allIDs, p.Poly.VenueMarketID, p.Kalshi.VenueMarketID)
	}

	if source == "router" && s.router != nil {
		for _, top := range s.router.FetchOrderbooks(ctx, allIDs) {
			if err := s.st.UpsertTop(ctx, top); err == nil {
				s.met.RecordTopUpsert(string(top.Venue), "router")
			}
		}
		return
	}
	if s.clob != nil {
		for _, top := range s.clob.FetchTops(ctx, polyIDs) {
			if err := s.st.UpsertTop(ctx, top); err == nil {
				s.met.RecordTopUpsert(string(top.Venue), "rest")
			}
		}
	}
	if s.stream != nil {
		s.stream.SetTickers(kalshiIDs)
	}
}

// signalCycle refreshes signals, settles started events, and marks open
// positions, all inside one transaction.
func (s *Scheduler) signalCycle(ctx context.Context) error {
	now := time.Now().UTC()
	var emitted, closed int
	err := s.st.WithTx(ctx, func(tx *store.Store) error {
		var err error
		if emitted, err = s.signaler.Refresh(ctx, tx, now); err != nil {
			return err
		}
		if closed, err = s.sim.AutoCloseStarted(ctx, tx, now); err != nil {
			return err
		}
		return s.sim.MarkToMarket(ctx, tx, now)
	})
	if err != nil {
		return err
	}

	if stats, err := s.st.Stats(ctx); err == nil {
		s.met.UpdatePaper(stats.OpenPositions, stats.ClosedPositions, stats.Equity)
	}
	if emitted > 0 || closed > 0 {
		telemetry.L().Info("signal cycle", "signals", emitted, "auto_closed", closed)
	}
	return nil
}

// snapshotPayload is the wire format pushed to dashboard subscribers.
type snapshotPayload struct {
	Type        string                  `json:"type"`
	TS          time.Time               `json:"ts"`
	DataSource  string                  `json:"data_source"`
	Signals     []store.SignalWithEvent `json:"signals"`
	Orderbooks  []store.OrderBookTop    `json:"orderbooks"`
	EquityCurve []store.Snapshot        `json:"equity_curve"`
}

// broadcastCycle publishes the current snapshot to all subscribers; the hub
// keeps it as "latest" for replay to new connections.
func (s *Scheduler) broadcastCycle(ctx context.Context) error {
	payload, err := s.buildSnapshot(ctx, time.Now().UTC())
	if err != nil {
		return err
	}
	s.hub.Broadcast(payload)
	s.met.UpdateStreamSubscribers(s.hub.Count())
	return nil
}

func (s *Scheduler) buildSnapshot(ctx context.Context, now time.Time) ([]byte, error) {
	excludeDemo := !s.cfg.EnableDemoFallback

	signals, err := s.st.ListOpenSignalsWithEvents(ctx, 100, excludeDemo)
	if err != nil {
		return nil, err
	}
	tops, err := s.st.RecentTops(ctx, 200, excludeDemo)
	if err != nil {
		return nil, err
	}
	curve, err := s.st.RecentSnapshots(ctx, 100)
	if err != nil {
		return nil, err
	}

	if signals == nil {
		signals = []store.SignalWithEvent{}
	}
	if tops == nil {
		tops = []store.OrderBookTop{}
	}
	if curve == nil {
		curve = []store.Snapshot{}
	}
	return json.Marshal(snapshotPayload{
		Type:        "snapshot",
		TS:          now,
		DataSource:  s.cfg.ActiveDataSource(),
		Signals:     signals,
		Orderbooks:  tops,
		EquityCurve: curve,
	})
}
