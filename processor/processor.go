package processor

import (
	"context"
	"fmt"
	"sync"
	"time"

	appconfig "tickflow/config"
	"tickflow/internal/analytics"
	"tickflow/internal/channel"
	"tickflow/internal/metrics"
	"tickflow/logger"
	"tickflow/models"
	"tickflow/writer"
)

// Processor drains the fan-in channel into the data buffer and drives the
// periodic flush to disk. A flush also fires early when the buffer passes the
// configured record threshold, so a burst cannot hold data in memory for a
// full interval.
type Processor struct {
	config    *appconfig.Config
	channels  *channel.Channels
	buffer    *writer.DataBuffer
	analytics *analytics.Engine
	metrics   *metrics.Metrics
	flushKick chan struct{}
	ctx       context.Context
	wg        *sync.WaitGroup
	mu        sync.RWMutex
	running   bool
	log       *logger.Log
}

func NewProcessor(cfg *appconfig.Config, ch *channel.Channels, buf *writer.DataBuffer, eng *analytics.Engine, m *metrics.Metrics) *Processor {
	return &Processor{
		config:    cfg,
		channels:  ch,
		buffer:    buf,
		analytics: eng,
		metrics:   m,
		flushKick: make(chan struct{}, 1),
		wg:        &sync.WaitGroup{},
		log:       logger.GetLogger(),
	}
}

func (p *Processor) Start(ctx context.Context) error {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return fmt.Errorf("processor already running")
	}
	p.running = true
	p.ctx = ctx
	p.mu.Unlock()

	log := p.log.WithComponent("processor")
	log.WithFields(logger.Fields{
		"flush_interval": p.config.Recorder.FlushInterval.String(),
		"max_buffered":   p.config.Recorder.MaxBufferedRecords,
	}).Info("starting processor")

	p.wg.Add(1)
	go p.consume()

	p.wg.Add(1)
	go p.flushLoop()

	return nil
}

// Stop waits for the consumer and flush loop, then writes out whatever is
// still buffered. Cancel the Start context and close the channel first.
func (p *Processor) Stop() {
	p.mu.Lock()
	p.running = false
	p.mu.Unlock()
	p.wg.Wait()

	if err := p.flush(); err != nil {
		p.log.WithComponent("processor").WithError(err).Error("final flush failed")
	}
	p.buffer.Close()
	p.log.WithComponent("processor").Info("processor stopped")
}

func (p *Processor) consume() {
	defer p.wg.Done()
	log := p.log.WithComponent("processor")

	for {
		select {
		case <-p.ctx.Done():
			return
		case msg, ok := <-p.channels.Messages:
			if !ok {
				return
			}
			p.route(msg)
			p.metrics.ChannelDepth.Set(float64(p.channels.Depth()))
			p.metrics.BufferSize.Set(float64(p.buffer.Len()))

			if p.buffer.Len() >= p.config.Recorder.MaxBufferedRecords {
				select {
				case p.flushKick <- struct{}{}:
					log.WithFields(logger.Fields{"buffered": p.buffer.Len()}).Debug("buffer threshold reached")
				default:
				}
			}
		}
	}
}

func (p *Processor) route(msg models.Message) {
	switch msg.Type {
	case models.MarketDataMessage:
		p.buffer.AddMarketData(msg.MarketData)
		p.metrics.MessagesTotal.WithLabelValues(msg.MarketData.Exchange.String()).Inc()
	case models.TradeMessage:
		p.buffer.AddTradeData(msg.Trade)
		p.metrics.TradesTotal.WithLabelValues(msg.Trade.Exchange.String()).Inc()
		if p.analytics != nil {
			p.analytics.ProcessTrade(&msg.Trade)
		}
	case models.ErrorMessage:
		p.log.WithComponent("processor").WithFields(logger.Fields{"error": msg.Err}).Debug("exchange error forwarded")
	}
}

func (p *Processor) flushLoop() {
	defer p.wg.Done()

	ticker := time.NewTicker(p.config.Recorder.FlushInterval)
	defer ticker.Stop()
	log := p.log.WithComponent("processor")

	for {
		select {
		case <-p.ctx.Done():
			return
		case <-ticker.C:
		case <-p.flushKick:
		}

		if err := p.flush(); err != nil {
			log.WithError(err).Error("flush failed")
		}
	}
}

func (p *Processor) flush() error {
	now := time.Now().UTC()
	start := time.Now()

	records, bytes, err := p.buffer.FlushToDisk(now)
	if err != nil {
		return err
	}
	if records > 0 {
		duration := time.Since(start)
		p.metrics.RecordsFlushed.Add(float64(records))
		p.metrics.BytesWritten.Add(float64(bytes))
		p.metrics.FlushDuration.Observe(duration.Seconds())
		logger.IncrementRecordFlush(records)
		logger.LogPerformanceEntry(p.log.WithComponent("processor"), "processor", "flush", duration, logger.Fields{
			"records": records,
			"bytes":   bytes,
		})
	}
	p.metrics.BufferSize.Set(float64(p.buffer.Len()))

	return p.buffer.RotateIfNeeded(now)
}
