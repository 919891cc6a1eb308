package writer

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sync"
	"time"

	"tickflow/logger"
	"tickflow/models"
)

const fileBufferSize = 64 * 1024

var mdColumns = []string{"time", "nanos", "price", "volume", "side", "best_bid", "best_ask"}

var tradeColumns = []string{"id", "time", "nanos", "price", "size", "side", "maker_order_id", "taker_order_id"}

// Per-record byte counts across all columns of one data type.
const (
	mdRecordBytes    = 7 * 4
	tradeRecordBytes = 8 + 5*4 + 16 + 16
)

// FileManager owns one set of column files per (exchange, symbol, day) and
// hands them out to the flush path.
type FileManager struct {
	basePath string
	mu       sync.Mutex
	handlers map[string]*fileHandlers
	log      *logger.Log
}

// fileHandlers is one day's append-only column files for a single symbol on a
// single exchange.
type fileHandlers struct {
	exchange models.ExchangeID
	symbol   string
	date     time.Time
	md       map[string]*columnFile
	trades   map[string]*columnFile
}

type columnFile struct {
	f *os.File
	w *bufio.Writer
}

func NewFileManager(basePath string) *FileManager {
	return &FileManager{
		basePath: basePath,
		handlers: make(map[string]*fileHandlers),
		log:      logger.GetLogger(),
	}
}

func handlerKey(exchange models.ExchangeID, symbol string, date time.Time) string {
	return fmt.Sprintf("%s:%s:%s", exchange, symbol, date.Format("2006-01-02"))
}

// dateSuffix renders the DD.MM.YY portion of a column file name.
func dateSuffix(date time.Time) string {
	return fmt.Sprintf("%02d.%02d.%02d", date.Day(), int(date.Month()), date.Year()%100)
}

func (m *FileManager) getOrCreate(exchange models.ExchangeID, symbol string, date time.Time) (*fileHandlers, error) {
	key := handlerKey(exchange, symbol, date)
	if h, ok := m.handlers[key]; ok {
		return h, nil
	}

	h, err := newFileHandlers(m.basePath, exchange, symbol, date)
	if err != nil {
		return nil, err
	}
	m.handlers[key] = h
	return h, nil
}

func newFileHandlers(basePath string, exchange models.ExchangeID, symbol string, date time.Time) (*fileHandlers, error) {
	symbolPath := filepath.Join(basePath, exchange.String(), symbol)
	mdPath := filepath.Join(symbolPath, "MD")
	tradesPath := filepath.Join(symbolPath, "TRADES")

	if err := os.MkdirAll(mdPath, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create MD directory %s: %w", mdPath, err)
	}
	if err := os.MkdirAll(tradesPath, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create TRADES directory %s: %w", tradesPath, err)
	}

	suffix := dateSuffix(date)
	h := &fileHandlers{
		exchange: exchange,
		symbol:   symbol,
		date:     date,
		md:       make(map[string]*columnFile, len(mdColumns)),
		trades:   make(map[string]*columnFile, len(tradeColumns)),
	}

	for _, col := range mdColumns {
		cf, err := openColumnFile(mdPath, col, suffix)
		if err != nil {
			h.close()
			return nil, err
		}
		h.md[col] = cf
	}
	for _, col := range tradeColumns {
		cf, err := openColumnFile(tradesPath, col, suffix)
		if err != nil {
			h.close()
			return nil, err
		}
		h.trades[col] = cf
	}

	return h, nil
}

func openColumnFile(dir, name, suffix string) (*columnFile, error) {
	path := filepath.Join(dir, fmt.Sprintf("%s.%s.bin", name, suffix))
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open column file %s: %w", path, err)
	}
	return &columnFile{f: f, w: bufio.NewWriterSize(f, fileBufferSize)}, nil
}

func (c *columnFile) writeU32(v uint32) error {
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], v)
	_, err := c.w.Write(buf[:])
	return err
}

func (c *columnFile) writeU64(v uint64) error {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], v)
	_, err := c.w.Write(buf[:])
	return err
}

func (c *columnFile) writeF32(v float32) error {
	return c.writeU32(math.Float32bits(v))
}

func (h *fileHandlers) writeMarketData(data *models.UnifiedMarketData) error {
	if err := h.md["time"].writeU32(data.Timestamp); err != nil {
		return err
	}
	if err := h.md["nanos"].writeU32(data.Nanos); err != nil {
		return err
	}
	if err := h.md["price"].writeF32(data.Price); err != nil {
		return err
	}
	if err := h.md["volume"].writeF32(data.Volume); err != nil {
		return err
	}
	if err := h.md["side"].writeU32(uint32(data.Side)); err != nil {
		return err
	}
	if err := h.md["best_bid"].writeF32(data.BestBid); err != nil {
		return err
	}
	return h.md["best_ask"].writeF32(data.BestAsk)
}

func (h *fileHandlers) writeTradeData(data *models.UnifiedTradeData) error {
	if err := h.trades["id"].writeU64(data.TradeID); err != nil {
		return err
	}
	if err := h.trades["time"].writeU32(data.Timestamp); err != nil {
		return err
	}
	if err := h.trades["nanos"].writeU32(data.Nanos); err != nil {
		return err
	}
	if err := h.trades["price"].writeF32(data.Price); err != nil {
		return err
	}
	if err := h.trades["size"].writeF32(data.Size); err != nil {
		return err
	}
	if err := h.trades["side"].writeU32(uint32(data.Side)); err != nil {
		return err
	}
	if _, err := h.trades["maker_order_id"].w.Write(data.MakerOrderID[:]); err != nil {
		return err
	}
	_, err := h.trades["taker_order_id"].w.Write(data.TakerOrderID[:])
	return err
}

func (h *fileHandlers) flush() error {
	for _, cf := range h.md {
		if err := cf.w.Flush(); err != nil {
			return err
		}
	}
	for _, cf := range h.trades {
		if err := cf.w.Flush(); err != nil {
			return err
		}
	}
	return nil
}

func (h *fileHandlers) close() {
	for _, cf := range h.md {
		if cf != nil {
			cf.w.Flush()
			cf.f.Close()
		}
	}
	for _, cf := range h.trades {
		if cf != nil {
			cf.w.Flush()
			cf.f.Close()
		}
	}
}

// FlushAll pushes every buffered column write to disk.
func (m *FileManager) FlushAll() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, h := range m.handlers {
		if err := h.flush(); err != nil {
			return fmt.Errorf("failed to flush %s/%s: %w", h.exchange, h.symbol, err)
		}
	}
	return nil
}

// RotateIfNeeded closes handlers opened on a previous day. New writes reopen
// files with the current date suffix.
func (m *FileManager) RotateIfNeeded(now time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	today := now.Format("2006-01-02")
	for key, h := range m.handlers {
		if h.date.Format("2006-01-02") == today {
			continue
		}
		if err := h.flush(); err != nil {
			return fmt.Errorf("failed to flush %s/%s before rotation: %w", h.exchange, h.symbol, err)
		}
		h.close()
		delete(m.handlers, key)
		m.log.WithComponent("file_manager").WithFields(logger.Fields{
			"exchange": h.exchange.String(),
			"symbol":   h.symbol,
			"date":     h.date.Format("2006-01-02"),
		}).Info("rotated column files")
	}
	return nil
}

// Close flushes and closes every open handler.
func (m *FileManager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for key, h := range m.handlers {
		h.close()
		delete(m.handlers, key)
	}
}

// openHandlers reports how many (exchange, symbol, day) sets are open.
func (m *FileManager) openHandlers() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.handlers)
}
