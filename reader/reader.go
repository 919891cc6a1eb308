package reader

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jpillora/backoff"

	appconfig "tickflow/config"
	"tickflow/internal/metrics"
	"tickflow/logger"
	"tickflow/models"
)

// Channel is a subscription type requested from an exchange.
type Channel int

const (
	Ticker Channel = iota
	Trades
)

// DefaultChannels is what every connection subscribes to.
var DefaultChannels = []Channel{Ticker, Trades}

// Connection is one websocket session with an exchange. Implementations own
// the exchange-specific subscribe payloads, ping styles and frame parsing;
// the Runner owns the lifecycle around them.
type Connection interface {
	Exchange() models.ExchangeID
	Symbols() []string

	Connect(ctx context.Context) error
	Subscribe(channels []Channel) error

	// ReadMessage blocks for one frame, parses it and forwards any records.
	// A returned error means the session is dead and must be re-dialed.
	ReadMessage(ctx context.Context) error

	SendPing() error
	Close()
}

// DistributeSymbols splits the symbol list into per-connection batches of at
// most maxPerConnection each. 255 symbols at 50 per connection become five
// full batches and one of five.
func DistributeSymbols(symbols []string, maxPerConnection int) [][]string {
	if maxPerConnection <= 0 || len(symbols) == 0 {
		return nil
	}

	var batches [][]string
	for start := 0; start < len(symbols); start += maxPerConnection {
		end := start + maxPerConnection
		if end > len(symbols) {
			end = len(symbols)
		}
		batches = append(batches, symbols[start:end])
	}
	return batches
}

// Runner drives one Connection: dial, subscribe, ping, read until failure,
// then reconnect with capped exponential backoff. Failures never propagate
// past the runner, so one bad session cannot take down its siblings.
type Runner struct {
	conn    Connection
	config  appconfig.ExchangeConfig
	metrics *metrics.Metrics
	ctx     context.Context
	wg      *sync.WaitGroup
	mu      sync.RWMutex
	running bool
	log     *logger.Log
}

func NewRunner(conn Connection, cfg appconfig.ExchangeConfig, m *metrics.Metrics) *Runner {
	return &Runner{
		conn:    conn,
		config:  cfg,
		metrics: m,
		wg:      &sync.WaitGroup{},
		log:     logger.GetLogger(),
	}
}

// Start launches the connection loop. It returns immediately; the loop runs
// until the context is cancelled.
func (r *Runner) Start(ctx context.Context) error {
	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		return fmt.Errorf("%s runner already running", r.conn.Exchange())
	}
	r.running = true
	r.ctx = ctx
	r.mu.Unlock()

	log := r.log.WithComponent(r.component())
	log.WithFields(logger.Fields{"symbols": len(r.conn.Symbols())}).Info("starting exchange runner")

	r.wg.Add(1)
	go r.run()
	return nil
}

// Stop waits for the connection loop to exit. Cancel the Start context first.
func (r *Runner) Stop() {
	r.mu.Lock()
	r.running = false
	r.mu.Unlock()
	r.wg.Wait()
	r.log.WithComponent(r.component()).Info("exchange runner stopped")
}

func (r *Runner) component() string {
	return r.conn.Exchange().String() + "_runner"
}

// newRetry builds the reconnect backoff for one session: delays double from
// the configured minimum and never exceed the configured ceiling.
func newRetry(cfg appconfig.ExchangeConfig) *backoff.Backoff {
	return &backoff.Backoff{
		Min:    cfg.ReconnectDelay,
		Max:    cfg.MaxReconnectDelay,
		Factor: 2,
	}
}

func (r *Runner) run() {
	defer r.wg.Done()
	log := r.log.WithComponent(r.component())

	retry := newRetry(r.config)

	for {
		if r.ctx.Err() != nil {
			return
		}

		if err := r.conn.Connect(r.ctx); err != nil {
			r.metrics.ReconnectsTotal.WithLabelValues(r.conn.Exchange().String()).Inc()
			r.metrics.RecordError(r.conn.Exchange(), err.Error())
			delay := retry.Duration()
			log.WithError(err).WithFields(logger.Fields{"retry_in": delay.String()}).Warn("connect failed")
			select {
			case <-time.After(delay):
				continue
			case <-r.ctx.Done():
				return
			}
		}

		if err := r.conn.Subscribe(DefaultChannels); err != nil {
			r.metrics.RecordError(r.conn.Exchange(), err.Error())
			r.conn.Close()
			delay := retry.Duration()
			log.WithError(err).WithFields(logger.Fields{"retry_in": delay.String()}).Warn("subscribe failed")
			select {
			case <-time.After(delay):
				continue
			case <-r.ctx.Done():
				return
			}
		}

		retry.Reset()
		r.metrics.SetConnected(r.conn.Exchange(), true)
		r.metrics.SymbolsMonitored.WithLabelValues(r.conn.Exchange().String()).Set(float64(len(r.conn.Symbols())))
		log.Info("connected and subscribed")

		r.readUntilFailure(log)

		r.metrics.SetConnected(r.conn.Exchange(), false)
		r.metrics.ReconnectsTotal.WithLabelValues(r.conn.Exchange().String()).Inc()
		r.conn.Close()

		if r.ctx.Err() != nil {
			return
		}
		delay := retry.Duration()
		log.WithFields(logger.Fields{"retry_in": delay.String()}).Warn("session lost, reconnecting")
		select {
		case <-time.After(delay):
		case <-r.ctx.Done():
			return
		}
	}
}

// readUntilFailure pumps frames and keeps the exchange's ping cadence until
// the session errors or the context ends.
func (r *Runner) readUntilFailure(log *logger.Entry) {
	done := make(chan struct{})
	defer close(done)

	if r.config.PingInterval > 0 {
		go func() {
			ticker := time.NewTicker(r.config.PingInterval)
			defer ticker.Stop()
			for {
				select {
				case <-done:
					return
				case <-r.ctx.Done():
					return
				case <-ticker.C:
					if err := r.conn.SendPing(); err != nil {
						log.WithError(err).Debug("ping failed")
						return
					}
				}
			}
		}()
	}

	for {
		if r.ctx.Err() != nil {
			return
		}
		if err := r.conn.ReadMessage(r.ctx); err != nil {
			if r.ctx.Err() == nil {
				r.metrics.RecordError(r.conn.Exchange(), err.Error())
				log.WithError(err).Warn("read error")
			}
			return
		}
	}
}
