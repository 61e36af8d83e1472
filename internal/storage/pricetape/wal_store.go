package pricetape

import (
	"encoding/json"
	"strings"
	"sync"

	"github.com/pkg/errors"
	"github.com/vadiminshakov/gowal"

	"github.com/ubc-biztech/btx/internal/domain"
)

const (
	defaultTapeDir   = "./wal/pricetape"
	tapeSegmentLimit = 5000
	tapeMaxSegments  = 50
	pointKeyPrefix   = "price_point_"
)

var errNotInitialized = errors.New("price tape is not initialized")

// Record a price point stored on the tape with its WAL index.
type Record struct {
	Index     uint64            `json:"index"`
	EventID   string            `json:"eventId"`
	ProjectID string            `json:"projectId"`
	Point     domain.PricePoint `json:"point"`
}

type entry struct {
	EventID   string            `json:"eventId"`
	ProjectID string            `json:"projectId"`
	Point     domain.PricePoint `json:"point"`
}

// WALStore appends accepted price points to a WAL for replay and streaming.
type WALStore struct {
	wal *gowal.Wal
	mu  sync.RWMutex
}

// NewWALStore opens (or creates) the tape under dir.
func NewWALStore(dir string) (*WALStore, error) {
	if dir == "" {
		dir = defaultTapeDir
	}

	cfg := gowal.Config{
		Dir:              dir,
		Prefix:           "tape_",
		SegmentThreshold: tapeSegmentLimit,
		MaxSegments:      tapeMaxSegments,
		IsInSyncDiskMode: false,
	}

	wal, err := gowal.NewWAL(cfg)
	if err != nil {
		return nil, errors.Wrap(err, "init price tape WAL")
	}

	return &WALStore{wal: wal}, nil
}

// Append writes one accepted point.
func (s *WALStore) Append(eventID, projectID string, p domain.PricePoint) error {
	if s == nil || s.wal == nil {
		return errNotInitialized
	}
	if projectID == "" {
		return errors.New("price point project id is required")
	}

	payload, err := json.Marshal(entry{EventID: eventID, ProjectID: projectID, Point: p})
	if err != nil {
		return errors.Wrap(err, "marshal price point")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.wal.CurrentIndex() + 1
	return errors.Wrapf(s.wal.Write(next, pointKeyPrefix+projectID, payload), "write price point %d", next)
}

// PointsAfter returns every point written after the given WAL index.
func (s *WALStore) PointsAfter(index uint64) ([]Record, error) {
	if s == nil || s.wal == nil {
		return nil, errNotInitialized
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
		if err != nil || !strings.HasPrefix(key, pointKeyPrefix) {
			continue
		}
		var e entry
		if err := json.Unmarshal(payload, &e); err != nil {
			return nil, errors.Wrapf(err, "decode price point %d", idx)
		}
		records = append(records, Record{Index: idx, EventID: e.EventID, ProjectID: e.ProjectID, Point: e.Point})
	}

	return records, nil
}

// ProjectPoints returns the points of one project written after index.
func (s *WALStore) ProjectPoints(projectID string, index uint64) ([]Record, error) {
	all, err := s.PointsAfter(index)
	if err != nil {
		return nil, err
	}
	out := all[:0]
	for _, r := range all {
		if r.ProjectID == projectID {
			out = append(out, r)
		}
	}
	return out, nil
}

// CurrentIndex returns the latest WAL index stored.
func (s *WALStore) CurrentIndex() uint64 {
	if s == nil || s.wal == nil {
		return 0
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.wal.CurrentIndex()
}

// Close closes the underlying WAL.
func (s *WALStore) Close() error {
	if s == nil || s.wal == nil {
		return errNotInitialized
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	return s.wal.Close()
}
