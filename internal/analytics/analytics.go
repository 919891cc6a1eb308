package analytics

import (
	"context"
	"sort"
	"sync"
	"time"

	"tickflow/logger"
	"tickflow/models"
)

// TradeAnalytics aggregates executions for one normalized symbol.
type TradeAnalytics struct {
	Symbol      string
	TotalVolume float64
	BuyVolume   float64
	SellVolume  float64
	TradeCount  uint64
	BuyCount    uint64
	SellCount   uint64
	VWAP        float64
	HighPrice   float32
	LowPrice    float32
	LastPrice   float32
	LargeTrades []LargeTrade
}

// LargeTrade records an execution whose notional value crossed the threshold.
type LargeTrade struct {
	Timestamp uint32
	Price     float32
	Size      float32
	Side      models.TradeSide
	Value     float64
}

const largeTradeHistory = 100

// Engine keeps rolling per-symbol trade aggregates and logs a periodic
// report of the most active markets.
type Engine struct {
	mu        sync.RWMutex
	analytics map[string]*TradeAnalytics

	largeTradeThreshold float64
	reportInterval      time.Duration
	log                 *logger.Log
}

func NewEngine(largeTradeThreshold float64, reportInterval time.Duration) *Engine {
	return &Engine{
		analytics:           make(map[string]*TradeAnalytics),
		largeTradeThreshold: largeTradeThreshold,
		reportInterval:      reportInterval,
		log:                 logger.GetLogger(),
	}
}

// ProcessTrade folds one execution into the symbol's aggregates.
func (e *Engine) ProcessTrade(trade *models.UnifiedTradeData) {
	e.mu.Lock()
	defer e.mu.Unlock()

	a, ok := e.analytics[trade.Symbol]
	if !ok {
		a = &TradeAnalytics{
			Symbol:    trade.Symbol,
			HighPrice: trade.Price,
			LowPrice:  trade.Price,
			LastPrice: trade.Price,
		}
		e.analytics[trade.Symbol] = a
	}

	volume := float64(trade.Size)
	value := volume * float64(trade.Price)

	// VWAP folds in the new trade before total volume moves.
	oldTotalValue := a.VWAP * a.TotalVolume
	newTotalVolume := a.TotalVolume + volume
	if newTotalVolume > 0 {
		a.VWAP = (oldTotalValue + value) / newTotalVolume
	} else {
		a.VWAP = float64(trade.Price)
	}

	a.TotalVolume = newTotalVolume
	a.TradeCount++

	switch trade.Side {
	case models.Buy:
		a.BuyVolume += volume
		a.BuyCount++
	case models.Sell:
		a.SellVolume += volume
		a.SellCount++
	}

	if trade.Price > a.HighPrice {
		a.HighPrice = trade.Price
	}
	if trade.Price < a.LowPrice {
		a.LowPrice = trade.Price
	}
	a.LastPrice = trade.Price

	if value >= e.largeTradeThreshold {
		a.LargeTrades = append(a.LargeTrades, LargeTrade{
			Timestamp: trade.Timestamp,
			Price:     trade.Price,
			Size:      trade.Size,
			Side:      trade.Side,
			Value:     value,
		})
		if len(a.LargeTrades) > largeTradeHistory {
			a.LargeTrades = a.LargeTrades[len(a.LargeTrades)-largeTradeHistory:]
		}
	}
}

// Get returns a copy of the aggregates for one symbol.
func (e *Engine) Get(symbol string) (TradeAnalytics, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	a, ok := e.analytics[symbol]
	if !ok {
		return TradeAnalytics{}, false
	}
	out := *a
	out.LargeTrades = append([]LargeTrade(nil), a.LargeTrades...)
	return out, true
}

// Report returns all aggregates sorted by total volume, busiest first.
func (e *Engine) Report() []TradeAnalytics {
	e.mu.RLock()
	report := make([]TradeAnalytics, 0, len(e.analytics))
	for _, a := range e.analytics {
		out := *a
		out.LargeTrades = append([]LargeTrade(nil), a.LargeTrades...)
		report = append(report, out)
	}
	e.mu.RUnlock()

	sort.Slice(report, func(i, j int) bool {
		return report[i].TotalVolume > report[j].TotalVolume
	})
	return report
}

// ResetPeriod discards all aggregates, starting a fresh window.
func (e *Engine) ResetPeriod() {
	e.mu.Lock()
	e.analytics = make(map[string]*TradeAnalytics)
	e.mu.Unlock()
}

// Run logs the top markets on the report interval until the context is
// cancelled.
func (e *Engine) Run(ctx context.Context) {
	ticker := time.NewTicker(e.reportInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.logReport()
		}
	}
}

func (e *Engine) logReport() {
	report := e.Report()
	if len(report) == 0 {
		return
	}
	if len(report) > 10 {
		report = report[:10]
	}

	log := e.log.WithComponent("analytics")
	for _, a := range report {
		buyRatio := 0.0
		if a.TradeCount > 0 {
			buyRatio = float64(a.BuyCount) / float64(a.TradeCount) * 100
		}
		log.WithFields(logger.Fields{
			"symbol":       a.Symbol,
			"volume":       a.TotalVolume,
			"vwap":         a.VWAP,
			"high":         a.HighPrice,
			"low":          a.LowPrice,
			"last":         a.LastPrice,
			"trades":       a.TradeCount,
			"buy_pct":      buyRatio,
			"large_trades": len(a.LargeTrades),
		}).Info("trade analytics")
	}
}
