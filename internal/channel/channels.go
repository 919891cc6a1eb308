package channel

import (
	"context"
	"sync"
	"time"

	"tickflow/logger"
	"tickflow/models"
)

type ChannelStats struct {
	Sent    int64
	Dropped int64
	Blocked int64
}

// Channels carries normalized records from the exchange connections to the
// processor. The buffer is bounded: Send blocks the producing read loop when
// the processor falls behind, which throttles intake instead of growing
// memory without limit.
type Channels struct {
	Messages chan models.Message

	stats      ChannelStats
	statsMutex sync.RWMutex
	log        *logger.Log
}

func NewChannels(bufferSize int) *Channels {
	log := logger.GetLogger()
	c := &Channels{
		Messages: make(chan models.Message, bufferSize),
		log:      log,
	}

	log.WithComponent("channels").WithFields(logger.Fields{
		"buffer_size": bufferSize,
	}).Info("message channel initialized")

	return c
}

func (c *Channels) Close() {
	close(c.Messages)
	c.log.WithComponent("channels").Info("message channel closed")
}

// Send delivers a message, blocking while the channel is full. It returns
// false only when the context is cancelled before the message is accepted.
func (c *Channels) Send(ctx context.Context, msg models.Message) bool {
	select {
	case c.Messages <- msg:
		c.incrementSent()
		return true
	case <-ctx.Done():
		return false
	default:
	}

	// Channel full: block and count the stall.
	c.incrementBlocked()
	select {
	case c.Messages <- msg:
		c.incrementSent()
		return true
	case <-ctx.Done():
		return false
	}
}

// TrySend delivers a message without blocking, dropping it when the channel
// is full. Used for best-effort payloads such as exchange error reports.
func (c *Channels) TrySend(ctx context.Context, msg models.Message) bool {
	select {
	case c.Messages <- msg:
		c.incrementSent()
		return true
	case <-ctx.Done():
		return false
	default:
		c.incrementDropped()
		return false
	}
}

func (c *Channels) incrementSent() {
	c.statsMutex.Lock()
	c.stats.Sent++
	c.statsMutex.Unlock()
}

func (c *Channels) incrementDropped() {
	c.statsMutex.Lock()
	c.stats.Dropped++
	c.statsMutex.Unlock()
}

func (c *Channels) incrementBlocked() {
	c.statsMutex.Lock()
	c.stats.Blocked++
	c.statsMutex.Unlock()
}

func (c *Channels) GetStats() ChannelStats {
	c.statsMutex.RLock()
	defer c.statsMutex.RUnlock()
	return c.stats
}

// Depth reports how many messages are waiting in the channel.
func (c *Channels) Depth() int {
	return len(c.Messages)
}

// StartMetricsReporting periodically logs channel usage until the context is
// cancelled.
func (c *Channels) StartMetricsReporting(ctx context.Context) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			stats := c.GetStats()
			c.log.WithComponent("channels").WithFields(logger.Fields{
				"sent":    stats.Sent,
				"dropped": stats.Dropped,
				"blocked": stats.Blocked,
				"depth":   c.Depth(),
				"cap":     cap(c.Messages),
			}).Info("channel stats")
			logger.RecordChannelMessage("messages", c.Depth())
		}
	}
}
