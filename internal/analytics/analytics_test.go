package analytics

import (
	"math"
	"testing"
	"time"

	"tickflow/models"
)

func TestProcessTradeAggregates(t *testing.T) {
	e := NewEngine(10000, 30*time.Second)

	trade := models.NewTradeData(models.Coinbase, "BTC-USD", 1)
	trade.Price = 50000
	trade.Size = 0.5
	trade.Side = models.Buy
	e.ProcessTrade(&trade)

	a, ok := e.Get("BTC-USD")
	if !ok {
		t.Fatal("symbol missing")
	}
	if a.TotalVolume != 0.5 || a.BuyVolume != 0.5 || a.TradeCount != 1 {
		t.Errorf("aggregates = %+v", a)
	}
	if a.VWAP != 50000 || a.HighPrice != 50000 || a.LowPrice != 50000 {
		t.Errorf("prices = %+v", a)
	}
}

func TestVWAPAcrossTrades(t *testing.T) {
	e := NewEngine(1e12, time.Minute)

	for _, tc := range []struct {
		price float32
		size  float32
	}{
		{100, 1},
		{200, 1},
		{300, 2},
	} {
		trade := models.NewTradeData(models.Binance, "ETH-USDT", 1)
		trade.Price = tc.price
		trade.Size = tc.size
		trade.Side = models.Sell
		e.ProcessTrade(&trade)
	}

	a, _ := e.Get("ETH-USDT")
	want := (100.0 + 200.0 + 600.0) / 4.0
	if math.Abs(a.VWAP-want) > 1e-9 {
		t.Errorf("vwap = %v, want %v", a.VWAP, want)
	}
	if a.HighPrice != 300 || a.LowPrice != 100 || a.LastPrice != 300 {
		t.Errorf("prices = %+v", a)
	}
	if a.SellCount != 3 || a.BuyCount != 0 {
		t.Errorf("side counts = %+v", a)
	}
}

func TestLargeTradeDetection(t *testing.T) {
	e := NewEngine(10000, time.Minute)

	trade := models.NewTradeData(models.Binance, "ETH-USDT", 1)
	trade.Price = 3000
	trade.Size = 5 // $15,000 notional
	trade.Side = models.Sell
	e.ProcessTrade(&trade)

	small := models.NewTradeData(models.Binance, "ETH-USDT", 2)
	small.Price = 3000
	small.Size = 0.1
	e.ProcessTrade(&small)

	a, _ := e.Get("ETH-USDT")
	if len(a.LargeTrades) != 1 {
		t.Fatalf("large trades = %d, want 1", len(a.LargeTrades))
	}
	if a.LargeTrades[0].Value != 15000 {
		t.Errorf("value = %v", a.LargeTrades[0].Value)
	}
}

func TestReportSortedByVolume(t *testing.T) {
	e := NewEngine(1e12, time.Minute)

	for i, sym := range []string{"A-USD", "B-USD", "C-USD"} {
		trade := models.NewTradeData(models.Coinbase, sym, uint64(i))
		trade.Price = 10
		trade.Size = float32(i + 1)
		e.ProcessTrade(&trade)
	}

	report := e.Report()
	if len(report) != 3 {
		t.Fatalf("report size = %d", len(report))
	}
	if report[0].Symbol != "C-USD" || report[2].Symbol != "A-USD" {
		t.Errorf("report order = %v, %v, %v", report[0].Symbol, report[1].Symbol, report[2].Symbol)
	}

	e.ResetPeriod()
	if len(e.Report()) != 0 {
		t.Error("reset did not clear aggregates")
	}
}
