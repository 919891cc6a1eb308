package coinbase

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/gorilla/websocket"

	"tickflow/internal/channel"
	"tickflow/internal/symbols"
	"tickflow/logger"
	"tickflow/models"
	"tickflow/reader"
)

// Connection is one session with the Coinbase Exchange websocket feed.
type Connection struct {
	url      string
	symbols  []string
	channels *channel.Channels
	mapper   *symbols.Mapper
	ws       *websocket.Conn
	writeMu  sync.Mutex
	log      *logger.Entry
}

func New(url string, syms []string, ch *channel.Channels, mapper *symbols.Mapper) *Connection {
	return &Connection{
		url:      url,
		symbols:  syms,
		channels: ch,
		mapper:   mapper,
		log:      logger.GetLogger().WithComponent("coinbase_reader"),
	}
}

func (c *Connection) Exchange() models.ExchangeID { return models.Coinbase }
func (c *Connection) Symbols() []string           { return c.symbols }

func (c *Connection) Connect(ctx context.Context) error {
	ws, _, err := websocket.DefaultDialer.DialContext(ctx, c.url, nil)
	if err != nil {
		return fmt.Errorf("failed to dial %s: %w", c.url, err)
	}
	c.ws = ws
	c.log.WithFields(logger.Fields{"url": c.url}).Info("connected")
	return nil
}

func channelName(ch reader.Channel) string {
	if ch == reader.Trades {
		return "matches"
	}
	return "ticker"
}

func (c *Connection) Subscribe(channels []reader.Channel) error {
	names := make([]string, 0, len(channels)+1)
	for _, ch := range channels {
		names = append(names, channelName(ch))
	}
	names = append(names, "heartbeat")

	msg := map[string]interface{}{
		"type":        "subscribe",
		"product_ids": c.symbols,
		"channels":    names,
	}
	if err := c.writeJSON(msg); err != nil {
		return fmt.Errorf("failed to subscribe: %w", err)
	}
	c.log.WithFields(logger.Fields{"symbols": len(c.symbols), "channels": names}).Info("subscribed")
	return nil
}

func (c *Connection) writeJSON(v interface{}) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if c.ws == nil {
		return fmt.Errorf("not connected")
	}
	return c.ws.WriteMessage(websocket.TextMessage, raw)
}

func (c *Connection) ReadMessage(ctx context.Context) error {
	if c.ws == nil {
		return fmt.Errorf("not connected")
	}
	_, raw, err := c.ws.ReadMessage()
	if err != nil {
		return err
	}
	return c.process(ctx, raw)
}

func (c *Connection) process(ctx context.Context, raw []byte) error {
	var envelope struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(raw, &envelope); err != nil {
		c.log.WithError(err).Debug("unparseable frame")
		return nil
	}

	switch envelope.Type {
	case "ticker":
		data, err := ParseTicker(raw)
		if err != nil || data == nil {
			return nil
		}
		data.Symbol = c.mapper.Normalize(models.Coinbase, data.Symbol)
		logger.IncrementMarketDataRead(len(raw))
		c.channels.Send(ctx, models.NewMarketDataMessage(*data))
	case "match", "last_match":
		data, err := ParseTrade(raw)
		if err != nil || data == nil {
			return nil
		}
		data.Symbol = c.mapper.Normalize(models.Coinbase, data.Symbol)
		logger.IncrementTradeRead(len(raw))
		c.channels.Send(ctx, models.NewTradeMessage(*data))
	case "subscriptions":
		c.log.Debug("subscription confirmed")
	case "error":
		c.log.WithFields(logger.Fields{"message": envelope.Message}).Warn("exchange error")
		c.channels.TrySend(ctx, models.NewErrorMessage(envelope.Message))
	case "heartbeat":
		// Keeps the subscription fresh, nothing to record.
	}
	return nil
}

// SendPing is a no-op: Coinbase does not require client pings, the heartbeat
// channel keeps the session alive.
func (c *Connection) SendPing() error {
	return nil
}

func (c *Connection) Close() {
	if c.ws != nil {
		c.ws.Close()
		c.ws = nil
	}
}
