package bitfinex

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"tickflow/internal/channel"
	"tickflow/internal/symbols"
	"tickflow/logger"
	"tickflow/models"
	"tickflow/reader"
)

// channelInfo remembers what a numeric channel id was subscribed to. Bitfinex
// assigns the id in the "subscribed" event and tags every later data frame
// with it only.
type channelInfo struct {
	channel string
	symbol  string
}

// Connection is one session with the Bitfinex v2 public websocket.
type Connection struct {
	url      string
	symbols  []string
	channels *channel.Channels
	mapper   *symbols.Mapper
	ws       *websocket.Conn
	writeMu  sync.Mutex

	chanMu  sync.RWMutex
	chanMap map[int64]channelInfo

	log *logger.Entry
}

func New(url string, syms []string, ch *channel.Channels, mapper *symbols.Mapper) *Connection {
	return &Connection{
		url:      url,
		symbols:  syms,
		channels: ch,
		mapper:   mapper,
		chanMap:  make(map[int64]channelInfo),
		log:      logger.GetLogger().WithComponent("bitfinex_reader"),
	}
}

func (c *Connection) Exchange() models.ExchangeID { return models.Bitfinex }
func (c *Connection) Symbols() []string           { return c.symbols }

func (c *Connection) Connect(ctx context.Context) error {
	ws, _, err := websocket.DefaultDialer.DialContext(ctx, c.url, nil)
	if err != nil {
		return fmt.Errorf("failed to dial %s: %w", c.url, err)
	}
	c.ws = ws
	c.chanMu.Lock()
	c.chanMap = make(map[int64]channelInfo)
	c.chanMu.Unlock()
	c.log.WithFields(logger.Fields{"url": c.url}).Info("connected")
	return nil
}

func channelName(ch reader.Channel) string {
	if ch == reader.Trades {
		return "trades"
	}
	return "ticker"
}

// Subscribe sends one request per channel and symbol; Bitfinex has no batch
// form.
func (c *Connection) Subscribe(channels []reader.Channel) error {
	for _, symbol := range c.symbols {
		for _, ch := range channels {
			msg := map[string]interface{}{
				"event":   "subscribe",
				"channel": channelName(ch),
				"symbol":  symbol,
			}
			if err := c.writeJSON(msg); err != nil {
				return fmt.Errorf("failed to subscribe %s/%s: %w", channelName(ch), symbol, err)
			}
		}
	}
	c.log.WithFields(logger.Fields{"symbols": len(c.symbols), "channels": len(channels)}).Info("subscribed")
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
	if len(raw) > 0 && raw[0] == '[' {
		return c.processChannelFrame(ctx, raw)
	}
	return c.processEvent(ctx, raw)
}

func (c *Connection) processChannelFrame(ctx context.Context, raw []byte) error {
	var frame []json.RawMessage
	if err := json.Unmarshal(raw, &frame); err != nil || len(frame) < 2 {
		return nil
	}

	var chanID int64
	if err := json.Unmarshal(frame[0], &chanID); err != nil {
		return nil
	}

	c.chanMu.RLock()
	info, ok := c.chanMap[chanID]
	c.chanMu.RUnlock()
	if !ok {
		return nil
	}

	// [CHANNEL_ID, "hb"] keepalives.
	var tag string
	if len(frame) == 2 && json.Unmarshal(frame[1], &tag) == nil && tag == "hb" {
		return nil
	}

	normalized := c.mapper.Normalize(models.Bitfinex, info.symbol)

	switch info.channel {
	case "ticker":
		data, err := ParseTickerUpdate(raw, normalized)
		if err != nil || data == nil {
			return nil
		}
		logger.IncrementMarketDataRead(len(raw))
		c.channels.Send(ctx, models.NewMarketDataMessage(*data))
	case "trades":
		trades, err := ParseTradeUpdate(raw, normalized)
		if err != nil {
			return nil
		}
		for _, trade := range trades {
			logger.IncrementTradeRead(len(raw))
			c.channels.Send(ctx, models.NewTradeMessage(trade))
		}
	}
	return nil
}

func (c *Connection) processEvent(ctx context.Context, raw []byte) error {
	var msg struct {
		Event   string `json:"event"`
		ChanID  int64  `json:"chanId"`
		Channel string `json:"channel"`
		Symbol  string `json:"symbol"`
		Code    int64  `json:"code"`
		Msg     string `json:"msg"`
		Version int    `json:"version"`
	}
	if err := json.Unmarshal(raw, &msg); err != nil {
		return nil
	}

	switch msg.Event {
	case "info":
		c.log.WithFields(logger.Fields{"version": msg.Version}).Info("platform info")
	case "subscribed":
		c.chanMu.Lock()
		c.chanMap[msg.ChanID] = channelInfo{channel: msg.Channel, symbol: msg.Symbol}
		c.chanMu.Unlock()
		c.log.WithFields(logger.Fields{
			"channel": msg.Channel,
			"symbol":  msg.Symbol,
			"chan_id": msg.ChanID,
		}).Debug("channel mapped")
	case "error":
		c.log.WithFields(logger.Fields{"code": msg.Code, "message": msg.Msg}).Warn("exchange error")
		c.channels.TrySend(ctx, models.NewErrorMessage(msg.Msg))
	case "pong":
	}
	return nil
}

// SendPing uses Bitfinex's event ping with a correlation id.
func (c *Connection) SendPing() error {
	return c.writeJSON(map[string]interface{}{
		"event": "ping",
		"cid":   time.Now().UnixMilli(),
	})
}

// Close holds the write lock so an in-flight ping cannot observe a half
// torn-down session.
func (c *Connection) Close() {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if c.ws != nil {
		c.ws.Close()
		c.ws = nil
	}
}
