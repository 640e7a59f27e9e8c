package connectors

import (
	"context"
	"sync"

	json "github.com/goccy/go-json"

	"github.com/phenomenon0/sportsarb/pkg/canonical"
	"github.com/phenomenon0/sportsarb/pkg/store"
	"github.com/phenomenon0/sportsarb/pkg/telemetry"
	"github.com/phenomenon0/sportsarb/pkg/wss"
)

// TopSink receives live top-of-book updates from a streaming connector.
type TopSink func(top store.OrderBookTop)

// KalshiWS streams orderbook deltas for a set of bound Kalshi tickers and
// forwards YES tops to a sink. Tickers may be swapped at any time; the new
// set is subscribed on the next (re)connect.
type KalshiWS struct {
	client *wss.Client
	sink   TopSink

	mu      sync.Mutex
	tickers []string
}

// NewKalshiWS builds the streaming connector. apiKey may be empty.
func NewKalshiWS(wsURL, apiKey string, sink TopSink) *KalshiWS {
	k := &KalshiWS{sink: sink}

	var headers map[string]string
	if apiKey != "" {
		headers = map[string]string{"Authorization": "Bearer " + apiKey}
	}
	k.client = wss.New(wss.Config{URL: wsURL, Headers: headers}, wss.Handlers{
		OnConnect:    func(*wss.Client) error { return k.subscribe() },
		OnMessage:    k.handleMessage,
		OnDisconnect: func(err error) { telemetry.L().Warn("kalshi ws disconnected", "err", err) },
	})
	return k
}

// SetTickers replaces the subscription set. An active session keeps its old
// subscriptions until it reconnects.
func (k *KalshiWS) SetTickers(tickers []string) {
	k.mu.Lock()
	k.tickers = append([]string(nil), tickers...)
	k.mu.Unlock()
}

// Run blocks, maintaining the connection until ctx is canceled.
func (k *KalshiWS) Run(ctx context.Context) error {
	return k.client.Run(ctx)
}

func (k *KalshiWS) subscribe() error {
	k.mu.Lock()
	tickers := append([]string(nil), k.tickers...)
	k.mu.Unlock()
	if len(tickers) == 0 {
		return nil
	}
	msg := map[string]any{
		"id":  1,
		"cmd": "subscribe",
		"params": map[string]any{
			"channels":       []string{"orderbook_delta"},
			"market_tickers": tickers,
		},
	}
	return k.client.SendJSON(msg)
}

// handleMessage accepts both wrapped frames ({"type": ..., "msg": {...}})
// and bare payloads.
func (k *KalshiWS) handleMessage(data []byte) {
	var frame map[string]any
	if err := json.Unmarshal(data, &frame); err != nil {
		return
	}
	payload := frame
	if inner, ok := frame["msg"].(map[string]any); ok {
		payload = inner
	}

	ticker := firstString(payload, "market_ticker", "ticker")
	if ticker == "" {
		return
	}
	if top, ok := topFromBag(canonical.VenueKalshi, ticker, payload); ok {
		k.sink(top)
	}
}
