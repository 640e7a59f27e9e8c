package paper

import (
	"hash/fnv"
	"math"
	"math/rand"
	"strconv"
)

// Passive fill probabilities by limit placement.
const (
	probAtTouch  = 0.60
	probInSpread = 0.12
	probBehind   = 0.03
)

// priceEps absorbs float64 noise when comparing a limit to the touch.
const priceEps = 1e-9

// LegFill is the outcome of simulating one limit order leg.
type LegFill struct {
	LimitPrice  float64
	FillPrice   float64
	Requested   float64
	Filled      float64
	Probability float64
}

// newFillRNG derives the deterministic fill RNG from "{signal_id}:{size}".
// Identical signal and size always replay the same fills.
func newFillRNG(signalID string, size float64) *rand.Rand {
	seed := signalID + ":" + strconv.FormatFloat(size, 'g', -1, 64)
	h := fnv.New64a()
	h.Write([]byte(seed))
	return rand.New(rand.NewSource(int64(h.Sum64())))
}

// simulateBuy fills a buy limit against (bid, ask). Crossing the ask fills
// immediately at the ask; otherwise the fill is stochastic at the limit.
func simulateBuy(rng *rand.Rand, limit, bid, ask, depth, requested float64) LegFill {
	if limit >= ask && ask > 0 {
		return LegFill{
			LimitPrice:  limit,
			FillPrice:   ask,
			Requested:   requested,
			Filled:      math.Min(requested, depth),
			Probability: 1,
		}
	}
	var p float64
	switch {
	case math.Abs(limit-bid) < priceEps:
		p = probAtTouch
	case limit > bid && limit < ask:
		p = probInSpread
	default:
		p = probBehind
	}
	return passiveFill(rng, limit, depth, requested, p)
}

// simulateSell mirrors simulateBuy against the bid side.
func simulateSell(rng *rand.Rand, limit, bid, ask, depth, requested float64) LegFill {
	if limit <= bid && bid > 0 {
		return LegFill{
			LimitPrice:  limit,
			FillPrice:   bid,
			Requested:   requested,
			Filled:      math.Min(requested, depth),
			Probability: 1,
		}
	}
	var p float64
	switch {
	case math.Abs(limit-ask) < priceEps:
		p = probAtTouch
	case limit > bid && limit < ask:
		p = probInSpread
	default:
		p = probBehind
	}
	return passiveFill(rng, limit, depth, requested, p)
}

func passiveFill(rng *rand.Rand, limit, depth, requested, p float64) LegFill {
	f := LegFill{
		LimitPrice:  limit,
		FillPrice:   limit,
		Requested:   requested,
		Probability: p,
	}
	if rng.Float64() <= p {
		f.Filled = math.Min(requested, depth*p)
	}
	return f
}
