package bitfinex

import (
	"encoding/json"
	"math"

	"tickflow/models"
)

// ParseTickerUpdate converts a ticker channel frame of
// [CHANNEL_ID, [BID, BID_SIZE, ASK, ASK_SIZE, DAILY_CHANGE, DAILY_CHANGE_PERC,
// LAST_PRICE, VOLUME, HIGH, LOW]]. Heartbeats return nil.
func ParseTickerUpdate(raw []byte, symbol string) (*models.UnifiedMarketData, error) {
	var frame []json.RawMessage
	if err := json.Unmarshal(raw, &frame); err != nil {
		return nil, err
	}
	if len(frame) < 2 {
		return nil, nil
	}

	var fields []*float64
	if err := json.Unmarshal(frame[1], &fields); err != nil {
		// [CHANNEL_ID, "hb"] and other non-numeric payloads.
		return nil, nil
	}
	if len(fields) < 10 {
		return nil, nil
	}

	at := func(i int) float32 {
		if fields[i] == nil {
			return 0
		}
		return float32(*fields[i])
	}

	// Ticker updates carry no timestamp, keep the receive-time stamp.
	data := models.NewMarketData(models.Bitfinex, symbol)
	data.BestBid = at(0)
	data.BestAsk = at(2)
	data.Price = at(6)
	data.Volume = at(7)

	data.Side = models.Buy
	if fields[4] != nil && *fields[4] < 0 {
		data.Side = models.Sell
	}

	return &data, nil
}

// ParseTradeUpdate converts a trades channel frame. Two shapes arrive: the
// snapshot [CHANNEL_ID, [[ID, MTS, AMOUNT, PRICE], ...]] sent after
// subscribing, and live updates [CHANNEL_ID, "te"|"tu", [ID, MTS, AMOUNT,
// PRICE]]. The amount's sign carries the side.
func ParseTradeUpdate(raw []byte, symbol string) ([]models.UnifiedTradeData, error) {
	var frame []json.RawMessage
	if err := json.Unmarshal(raw, &frame); err != nil {
		return nil, err
	}
	if len(frame) < 2 {
		return nil, nil
	}

	// Live update: second element is the event tag.
	var tag string
	if err := json.Unmarshal(frame[1], &tag); err == nil {
		if (tag != "te" && tag != "tu") || len(frame) < 3 {
			return nil, nil
		}
		trade, err := parseSingleTrade(frame[2], symbol)
		if err != nil || trade == nil {
			return nil, err
		}
		return []models.UnifiedTradeData{*trade}, nil
	}

	// Snapshot: second element is an array of trades.
	var items []json.RawMessage
	if err := json.Unmarshal(frame[1], &items); err != nil {
		return nil, nil
	}
	var trades []models.UnifiedTradeData
	for _, item := range items {
		trade, err := parseSingleTrade(item, symbol)
		if err != nil || trade == nil {
			continue
		}
		trades = append(trades, *trade)
	}
	return trades, nil
}

func parseSingleTrade(raw json.RawMessage, symbol string) (*models.UnifiedTradeData, error) {
	var fields []float64
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, nil
	}
	if len(fields) < 4 {
		return nil, nil
	}

	tradeID := uint64(fields[0])
	amount := fields[2]

	data := models.NewTradeData(models.Bitfinex, symbol, tradeID)
	data.Timestamp, data.Nanos = models.TimestampPartsFromMillis(int64(fields[1]))
	data.Price = float32(fields[3])
	data.Size = float32(math.Abs(amount))
	if amount < 0 {
		data.Side = models.Sell
	} else {
		data.Side = models.Buy
	}

	return &data, nil
}
