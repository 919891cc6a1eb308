package writer

import (
	"sync"
	"time"

	"github.com/tidwall/btree"

	"tickflow/logger"
	"tickflow/models"
)

type mdEntry struct {
	ts       uint64
	symbol   string
	exchange models.ExchangeID
	data     models.UnifiedMarketData
}

type tradeEntry struct {
	ts       uint64
	symbol   string
	exchange models.ExchangeID
	tradeID  uint64
	data     models.UnifiedTradeData
}

// Records drain in (timestamp, symbol) order. Exchange breaks ties so two
// venues reporting the same symbol at the same nanosecond both survive; for
// trades the trade id does the same within one venue.
func mdLess(a, b mdEntry) bool {
	if a.ts != b.ts {
		return a.ts < b.ts
	}
	if a.symbol != b.symbol {
		return a.symbol < b.symbol
	}
	return a.exchange < b.exchange
}

func tradeLess(a, b tradeEntry) bool {
	if a.ts != b.ts {
		return a.ts < b.ts
	}
	if a.symbol != b.symbol {
		return a.symbol < b.symbol
	}
	if a.exchange != b.exchange {
		return a.exchange < b.exchange
	}
	return a.tradeID < b.tradeID
}

// DataBuffer accumulates normalized records between flushes, globally ordered
// by timestamp. A single mutex guards both trees; flush swaps them for empty
// ones so producers are blocked only for the swap, not the disk writes.
type DataBuffer struct {
	mu         sync.Mutex
	marketData *btree.BTreeG[mdEntry]
	trades     *btree.BTreeG[tradeEntry]
	files      *FileManager
	log        *logger.Log
}

func NewDataBuffer(basePath string) *DataBuffer {
	return &DataBuffer{
		marketData: btree.NewBTreeG(mdLess),
		trades:     btree.NewBTreeG(tradeLess),
		files:      NewFileManager(basePath),
		log:        logger.GetLogger(),
	}
}

// AddMarketData inserts a ticker record. A later record with the same
// timestamp, symbol and exchange replaces the earlier one.
func (b *DataBuffer) AddMarketData(data models.UnifiedMarketData) {
	entry := mdEntry{
		ts:       data.TimestampNanos(),
		symbol:   data.Symbol,
		exchange: data.Exchange,
		data:     data,
	}
	b.mu.Lock()
	b.marketData.Set(entry)
	b.mu.Unlock()
}

// AddTradeData inserts a trade record.
func (b *DataBuffer) AddTradeData(data models.UnifiedTradeData) {
	entry := tradeEntry{
		ts:       data.TimestampNanos(),
		symbol:   data.Symbol,
		exchange: data.Exchange,
		tradeID:  data.TradeID,
		data:     data,
	}
	b.mu.Lock()
	b.trades.Set(entry)
	b.mu.Unlock()
}

// Len reports the number of buffered records of both types.
func (b *DataBuffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.marketData.Len() + b.trades.Len()
}

// FlushToDisk drains the buffer in timestamp order and appends every record
// to its column files. Records that could not be written are re-inserted so
// the next flush retries them instead of losing data. Returns the number of
// records and bytes written.
func (b *DataBuffer) FlushToDisk(now time.Time) (int, int64, error) {
	b.mu.Lock()
	md := b.marketData
	trades := b.trades
	b.marketData = btree.NewBTreeG(mdLess)
	b.trades = btree.NewBTreeG(tradeLess)
	b.mu.Unlock()

	if md.Len() == 0 && trades.Len() == 0 {
		return 0, 0, nil
	}

	var (
		records  int
		bytes    int64
		writeErr error
	)

	b.files.mu.Lock()
	for {
		entry, ok := md.PopMin()
		if !ok {
			break
		}
		h, err := b.files.getOrCreate(entry.exchange, entry.symbol, now)
		if err == nil {
			err = h.writeMarketData(&entry.data)
		}
		if err != nil {
			md.Set(entry)
			writeErr = err
			break
		}
		records++
		bytes += mdRecordBytes
	}
	for writeErr == nil {
		entry, ok := trades.PopMin()
		if !ok {
			break
		}
		h, err := b.files.getOrCreate(entry.exchange, entry.symbol, now)
		if err == nil {
			err = h.writeTradeData(&entry.data)
		}
		if err != nil {
			trades.Set(entry)
			writeErr = err
			break
		}
		records++
		bytes += tradeRecordBytes
	}
	b.files.mu.Unlock()

	if writeErr != nil {
		// Put back everything that was not written.
		b.mu.Lock()
		md.Scan(func(entry mdEntry) bool {
			b.marketData.Set(entry)
			return true
		})
		trades.Scan(func(entry tradeEntry) bool {
			b.trades.Set(entry)
			return true
		})
		retained := b.marketData.Len() + b.trades.Len()
		b.mu.Unlock()

		b.log.WithComponent("data_buffer").WithError(writeErr).WithFields(logger.Fields{
			"written":  records,
			"retained": retained,
		}).Error("flush failed, retaining unwritten records")
		return records, bytes, writeErr
	}

	if err := b.files.FlushAll(); err != nil {
		return records, bytes, err
	}
	return records, bytes, nil
}

// RotateIfNeeded closes column files from previous days.
func (b *DataBuffer) RotateIfNeeded(now time.Time) error {
	return b.files.RotateIfNeeded(now)
}

// Close flushes remaining file buffers and closes every handler.
func (b *DataBuffer) Close() {
	b.files.Close()
}
