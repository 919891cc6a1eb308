package okx

import (
	"encoding/json"
	"testing"

	"tickflow/models"
)

func TestParseTicker(t *testing.T) {
	raw := json.RawMessage(`{
		"instType": "SPOT",
		"instId": "BTC-USDT",
		"last": "43508.1",
		"lastSz": "0.00001",
		"askPx": "43508.1",
		"bidPx": "43508",
		"open24h": "43000",
		"ts": "1609459200000"
	}`)

	data, err := ParseTicker(raw)
	if err != nil {
		t.Fatalf("ParseTicker: %v", err)
	}
	if data == nil {
		t.Fatal("ticker not parsed")
	}
	if data.Exchange != models.OKX || data.Symbol != "BTC-USDT" {
		t.Errorf("exchange/symbol = %v/%s", data.Exchange, data.Symbol)
	}
	if data.Price != 43508.1 || data.Volume != 0.00001 {
		t.Errorf("price/volume = %v/%v", data.Price, data.Volume)
	}
	if data.BestBid != 43508 || data.BestAsk != 43508.1 {
		t.Errorf("bid/ask = %v/%v", data.BestBid, data.BestAsk)
	}
	if data.Side != models.Buy {
		t.Errorf("side = %v, want buy above 24h open", data.Side)
	}
	if data.Timestamp != 1609459200 || data.Nanos != 0 {
		t.Errorf("timestamp = %d.%d", data.Timestamp, data.Nanos)
	}
}

func TestParseTickerPriceDecreaseIsSell(t *testing.T) {
	raw := json.RawMessage(`{"instId":"ETH-USDT","last":"2500","open24h":"2600","ts":"1609459200000"}`)
	data, err := ParseTicker(raw)
	if err != nil || data == nil {
		t.Fatalf("parse: %v %v", data, err)
	}
	if data.Side != models.Sell {
		t.Errorf("side = %v", data.Side)
	}
}

func TestParseTrade(t *testing.T) {
	raw := json.RawMessage(`{
		"instId": "BTC-USDT",
		"tradeId": "242720720",
		"px": "43508.1",
		"sz": "0.00001",
		"side": "sell",
		"ts": "1609459200000"
	}`)

	data, err := ParseTrade(raw)
	if err != nil {
		t.Fatalf("ParseTrade: %v", err)
	}
	if data == nil {
		t.Fatal("trade not parsed")
	}
	if data.TradeID != 242720720 {
		t.Errorf("trade id = %d", data.TradeID)
	}
	if data.Price != 43508.1 || data.Size != 0.00001 {
		t.Errorf("price/size = %v/%v", data.Price, data.Size)
	}
	if data.Side != models.Sell {
		t.Errorf("side = %v", data.Side)
	}
	if data.Timestamp != 1609459200 {
		t.Errorf("timestamp = %d", data.Timestamp)
	}
	if data.MakerOrderID == ([16]byte{}) || data.TakerOrderID == ([16]byte{}) {
		t.Error("synthetic order ids not set")
	}
	if data.MakerOrderID != data.TakerOrderID {
		t.Error("synthetic maker and taker ids should match")
	}
}

func TestSyntheticOrderIDDeterministic(t *testing.T) {
	a := syntheticOrderID(42, 1609459200, "BTC-USDT")
	b := syntheticOrderID(42, 1609459200, "BTC-USDT")
	if a != b {
		t.Error("same inputs must give the same id")
	}
	c := syntheticOrderID(43, 1609459200, "BTC-USDT")
	if a == c {
		t.Error("different trade ids must give different ids")
	}
}
