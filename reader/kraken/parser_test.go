package kraken

import (
	"encoding/json"
	"testing"

	"tickflow/models"
)

func TestParseTicker(t *testing.T) {
	data := json.RawMessage(`{
		"a": ["50001.00", "1", "1.000"],
		"b": ["49999.00", "1", "1.000"],
		"c": ["50000.00", "0.10000000"],
		"o": "49000.00"
	}`)

	md, err := ParseTicker(data, "BTC-USD")
	if err != nil {
		t.Fatalf("ParseTicker: %v", err)
	}
	if md.Exchange != models.Kraken || md.Symbol != "BTC-USD" {
		t.Errorf("exchange/symbol = %v/%s", md.Exchange, md.Symbol)
	}
	if md.Price != 50000 || md.Volume != 0.1 {
		t.Errorf("price/volume = %v/%v", md.Price, md.Volume)
	}
	if md.BestBid != 49999 || md.BestAsk != 50001 {
		t.Errorf("bid/ask = %v/%v", md.BestBid, md.BestAsk)
	}
	if md.Side != models.Buy {
		t.Errorf("side = %v, want buy above open", md.Side)
	}
	if md.Timestamp == 0 {
		t.Error("ticker should carry a receive-time stamp")
	}
}

func TestParseTickerBelowOpenIsSell(t *testing.T) {
	data := json.RawMessage(`{"c":["48000.00","0.1"],"o":"49000.00"}`)
	md, err := ParseTicker(data, "BTC-USD")
	if err != nil {
		t.Fatalf("ParseTicker: %v", err)
	}
	if md.Side != models.Sell {
		t.Errorf("side = %v", md.Side)
	}
}

func TestParseTrade(t *testing.T) {
	trade := json.RawMessage(`["3000.00", "0.50000000", "1612345678.123456", "s", "l", ""]`)

	data, err := ParseTrade(trade, "ETH-USD")
	if err != nil {
		t.Fatalf("ParseTrade: %v", err)
	}
	if data == nil {
		t.Fatal("trade not parsed")
	}
	if data.Price != 3000 || data.Size != 0.5 {
		t.Errorf("price/size = %v/%v", data.Price, data.Size)
	}
	if data.Side != models.Sell {
		t.Errorf("side = %v", data.Side)
	}
	if data.Timestamp != 1612345678 {
		t.Errorf("timestamp = %d", data.Timestamp)
	}
	if data.Nanos == 0 {
		t.Error("nanos should carry the fractional second")
	}
	if data.TradeID/1_000_000 != 1612345678 {
		t.Errorf("trade id = %d, want microsecond trade time", data.TradeID)
	}
	if data.MakerOrderID != ([16]byte{}) || data.TakerOrderID != ([16]byte{}) {
		t.Error("kraken publishes no order ids, fields must stay zeroed")
	}
}

func TestParseTradeShortArray(t *testing.T) {
	data, err := ParseTrade(json.RawMessage(`["1", "2"]`), "BTC-USD")
	if err != nil {
		t.Fatalf("ParseTrade: %v", err)
	}
	if data != nil {
		t.Error("short array should be skipped")
	}
}
