package tradejournal

import (
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/vadiminshakov/gowal"

	"github.com/ubc-biztech/btx/internal/domain"
)

const (
	DefaultDir   = "./wal/tradejournal"
	segmentLimit = 100
	maxSegments  = 10

	entryKeyPrefix = "trade_"
)

// Entry one submitted trade command and its outcome.
type Entry struct {
	EventID   string           `json:"eventId"`
	ProjectID string           `json:"projectId"`
	Side      domain.TradeSide `json:"side"`
	Shares    decimal.Decimal  `json:"shares"`
	OK        bool             `json:"ok"`
	Error     string           `json:"error,omitempty"`
	At        time.Time        `json:"at"`
}

// Record an entry with its WAL index.
type Record struct {
	Index uint64 `json:"index"`
	Entry Entry  `json:"entry"`
}

// WALStore persists trade commands in a WAL. Writes are synced to disk.
type WALStore struct {
	wal *gowal.Wal
	mu  sync.RWMutex
}

// NewWALStore initializes a WAL-backed trade journal.
func NewWALStore(dir string) (*WALStore, error) {
	if dir == "" {
		dir = DefaultDir
	}

	cfg := gowal.Config{
		Dir:              dir,
		Prefix:           "trade_",
		SegmentThreshold: segmentLimit,
		MaxSegments:      maxSegments,
		IsInSyncDiskMode: true,
	}

	wal, err := gowal.NewWAL(cfg)
	if err != nil {
		return nil, errors.Wrap(err, "init trade journal WAL")
	}

	return &WALStore{wal: wal}, nil
}

// Save writes the outcome of one trade command.
func (s *WALStore) Save(eventID string, side domain.TradeSide, req domain.TradeRequest, tradeErr error) error {
	if s == nil || s.wal == nil {
		return errors.New("trade journal is not initialized")
	}
	if req.ProjectID == "" {
		return errors.New("trade journal entry project id is required")
	}

	e := Entry{
		EventID:   eventID,
		ProjectID: req.ProjectID,
		Side:      side,
		Shares:    req.Shares,
		OK:        tradeErr == nil,
		At:        time.Now().UTC(),
	}
	if tradeErr != nil {
		e.Error = tradeErr.Error()
	}

	payload, err := json.Marshal(e)
	if err != nil {
		return errors.Wrap(err, "marshal trade journal entry")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	nextIndex := s.wal.CurrentIndex() + 1
	return s.wal.Write(nextIndex, entryKeyPrefix+req.ProjectID, payload)
}

// EntriesAfter returns all entries written after the provided WAL index.
func (s *WALStore) EntriesAfter(index uint64) ([]Record, error) {
	if s == nil || s.wal == nil {
		return nil, errors.New("trade journal is not initialized")
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	current := s.wal.CurrentIndex()
	if current <= index {
		return nil, nil
	}

	records := make([]Record, 0, current-index)
	for idx := index + 1; idx <= current; idx++ {
		key, payload, err := s.wal.Get(idx)
		if err != nil || !strings.HasPrefix(key, entryKeyPrefix) {
			continue
		}

		var e Entry
		if err := json.Unmarshal(payload, &e); err != nil {
			return nil, errors.Wrapf(err, "decode trade journal entry %d", idx)
		}
		records = append(records, Record{Index: idx, Entry: e})
	}

	return records, nil
}

// Close closes the WAL.
func (s *WALStore) Close() error {
	if s == nil || s.wal == nil {
		return nil
	}
	return s.wal.Close()
}
