package binance

import (
	"encoding/binary"
	"testing"

	"tickflow/models"
	"tickflow/reader"
)

func TestParseTicker(t *testing.T) {
	raw := []byte(`{
		"e": "24hrTicker",
		"E": 1672531200000,
		"s": "BTCUSDT",
		"c": "50000.00",
		"o": "49000.00",
		"v": "1234.56",
		"b": "49999.00",
		"a": "50001.00"
	}`)

	data, err := ParseTicker(raw)
	if err != nil {
		t.Fatalf("ParseTicker: %v", err)
	}
	if data == nil {
		t.Fatal("ticker event not parsed")
	}
	if data.Exchange != models.Binance || data.Symbol != "BTCUSDT" {
		t.Errorf("exchange/symbol = %v/%s", data.Exchange, data.Symbol)
	}
	if data.Price != 50000 || data.Volume != 1234.56 {
		t.Errorf("price/volume = %v/%v", data.Price, data.Volume)
	}
	if data.BestBid != 49999 || data.BestAsk != 50001 {
		t.Errorf("bid/ask = %v/%v", data.BestBid, data.BestAsk)
	}
	if data.Side != models.Buy {
		t.Errorf("side = %v, want buy with last above open", data.Side)
	}
	if data.Timestamp != 1672531200 || data.Nanos != 0 {
		t.Errorf("timestamp = %d.%d", data.Timestamp, data.Nanos)
	}
}

func TestParseTickerLastBelowOpenIsSell(t *testing.T) {
	raw := []byte(`{"e":"24hrTicker","s":"ETHUSDT","c":"2900","o":"3000"}`)
	data, err := ParseTicker(raw)
	if err != nil || data == nil {
		t.Fatalf("parse: %v %v", data, err)
	}
	if data.Side != models.Sell {
		t.Errorf("side = %v", data.Side)
	}
}

func TestParseTickerIgnoresOtherEvents(t *testing.T) {
	data, err := ParseTicker([]byte(`{"e":"depthUpdate","s":"BTCUSDT"}`))
	if err != nil {
		t.Fatalf("ParseTicker: %v", err)
	}
	if data != nil {
		t.Error("depth event should not produce market data")
	}
}

func TestParseTrade(t *testing.T) {
	raw := []byte(`{
		"e": "trade",
		"E": 1672531200123,
		"s": "ETHUSDT",
		"t": 123456789,
		"p": "3000.50",
		"q": "0.5",
		"T": 1672531200100,
		"m": true
	}`)

	data, err := ParseTrade(raw)
	if err != nil {
		t.Fatalf("ParseTrade: %v", err)
	}
	if data == nil {
		t.Fatal("trade event not parsed")
	}
	if data.TradeID != 123456789 {
		t.Errorf("trade id = %d", data.TradeID)
	}
	if data.Price != 3000.5 || data.Size != 0.5 {
		t.Errorf("price/size = %v/%v", data.Price, data.Size)
	}
	if data.Side != models.Sell {
		t.Errorf("side = %v, buyer-is-maker means the aggressor sold", data.Side)
	}
	if data.Timestamp != 1672531200 || data.Nanos != 100_000_000 {
		t.Errorf("timestamp = %d.%d", data.Timestamp, data.Nanos)
	}

	if got := binary.LittleEndian.Uint64(data.MakerOrderID[:8]); got != data.TradeID {
		t.Errorf("maker order id low bytes = %d", got)
	}
	if got := binary.LittleEndian.Uint64(data.TakerOrderID[8:]); got != data.TradeID {
		t.Errorf("taker order id high bytes = %d", got)
	}
	if [8]byte(data.MakerOrderID[8:]) != ([8]byte{}) || [8]byte(data.TakerOrderID[:8]) != ([8]byte{}) {
		t.Error("unused order id halves should stay zeroed")
	}
}

func TestParseTradeSellerIsMakerIsBuy(t *testing.T) {
	raw := []byte(`{"e":"trade","s":"BTCUSDT","t":1,"p":"1","q":"1","T":1672531200000,"m":false}`)
	data, err := ParseTrade(raw)
	if err != nil || data == nil {
		t.Fatalf("parse: %v %v", data, err)
	}
	if data.Side != models.Buy {
		t.Errorf("side = %v", data.Side)
	}
}

func TestStreamURL(t *testing.T) {
	c := New("wss://stream.binance.com:9443", []string{"BTCUSDT", "ETHUSDT"}, nil, nil)
	url := c.streamURL([]reader.Channel{reader.Ticker, reader.Trades})
	want := "wss://stream.binance.com:9443/stream?streams=btcusdt@ticker/btcusdt@trade/ethusdt@ticker/ethusdt@trade"
	if url != want {
		t.Errorf("url = %q\nwant %q", url, want)
	}
}
