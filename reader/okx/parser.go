package okx

import (
	"encoding/binary"
	"encoding/json"
	"hash/fnv"
	"strconv"

	"tickflow/models"
)

type tickerPayload struct {
	InstID  string `json:"instId"`
	Last    string `json:"last"`
	LastSz  string `json:"lastSz"`
	AskPx   string `json:"askPx"`
	BidPx   string `json:"bidPx"`
	Open24h string `json:"open24h"`
	Ts      string `json:"ts"`
}

type tradePayload struct {
	InstID  string `json:"instId"`
	TradeID string `json:"tradeId"`
	Px      string `json:"px"`
	Sz      string `json:"sz"`
	Side    string `json:"side"`
	Ts      string `json:"ts"`
}

func f32(s string) float32 {
	v, err := strconv.ParseFloat(s, 32)
	if err != nil {
		return 0
	}
	return float32(v)
}

func stampMillis(ts string, sec, nanos *uint32) {
	if ms, err := strconv.ParseInt(ts, 10, 64); err == nil {
		*sec, *nanos = models.TimestampPartsFromMillis(ms)
	}
}

// ParseTicker converts one element of a tickers channel data array.
func ParseTicker(raw json.RawMessage) (*models.UnifiedMarketData, error) {
	var payload tickerPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, err
	}
	if payload.InstID == "" {
		return nil, nil
	}

	data := models.NewMarketData(models.OKX, payload.InstID)
	stampMillis(payload.Ts, &data.Timestamp, &data.Nanos)
	data.Price = f32(payload.Last)
	data.Volume = f32(payload.LastSz)
	data.BestBid = f32(payload.BidPx)
	data.BestAsk = f32(payload.AskPx)

	data.Side = models.Buy
	if payload.Last != "" && payload.Open24h != "" && f32(payload.Last) < f32(payload.Open24h) {
		data.Side = models.Sell
	}

	return &data, nil
}

// ParseTrade converts one element of a trades channel data array. The public
// feed carries no order ids, so both fields get a deterministic synthetic id
// derived from the trade id, timestamp and instrument.
func ParseTrade(raw json.RawMessage) (*models.UnifiedTradeData, error) {
	var payload tradePayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, err
	}
	if payload.InstID == "" {
		return nil, nil
	}

	tradeID, _ := strconv.ParseUint(payload.TradeID, 10, 64)

	data := models.NewTradeData(models.OKX, payload.InstID, tradeID)
	stampMillis(payload.Ts, &data.Timestamp, &data.Nanos)
	data.Price = f32(payload.Px)
	data.Size = f32(payload.Sz)
	if side, ok := models.ParseTradeSide(payload.Side); ok {
		data.Side = side
	}

	id := syntheticOrderID(tradeID, data.Timestamp, payload.InstID)
	data.MakerOrderID = id
	data.TakerOrderID = id

	return &data, nil
}

func syntheticOrderID(tradeID uint64, timestamp uint32, instID string) [16]byte {
	h := fnv.New64a()
	var buf [12]byte
	binary.LittleEndian.PutUint64(buf[:8], tradeID)
	binary.LittleEndian.PutUint32(buf[8:], timestamp)
	h.Write(buf[:])
	h.Write([]byte(instID))
	sum := h.Sum64()

	var id [16]byte
	binary.LittleEndian.PutUint64(id[:8], sum)
	binary.BigEndian.PutUint64(id[8:], sum)
	return id
}
