// Package history keeps the per-project price series used for charting.
//
// Points arrive over two channels (snapshot polling and the push feed) in no
// reliable order. Each channel is de-duplicated against its own watermark and
// the channels are merged by timestamp, so the resulting series does not
// depend on how the two channels interleave.
package history

import (
	"sort"

	"github.com/shopspring/decimal"

	"github.com/ubc-biztech/btx/internal/domain"
)

const (
	// SnapshotCap bounds the growth of the series from snapshot points.
	SnapshotCap = 2000
	// LiveCap bounds the growth of the series from push points.
	LiveCap = 10000
	// FetchedCap bounds the series after a full historical refetch.
	FetchedCap = 10000
	// MinPopulated below this many local points a refetch replaces the series wholesale.
	MinPopulated = 5
)

// echoTolerance price distance under which a same-timestamp push is an echo.
var echoTolerance = decimal.NewFromFloat(0.01)

// Result outcome of adding a point.
type Result int

const (
	// Accepted the point was inserted.
	Accepted Result = iota
	// Replaced the point replaced a snapshot point with the same timestamp.
	Replaced
	// Stale the point was not newer than the channel watermark.
	Stale
	// Echo the point repeats the last push at the same timestamp and price.
	Echo
	// Shadowed a live point already owns the timestamp.
	Shadowed
)

// String returns the string representation.
func (r Result) String() string {
	switch r {
	case Accepted:
		return "accepted"
	case Replaced:
		return "replaced"
	case Stale:
		return "stale"
	case Echo:
		return "echo"
	case Shadowed:
		return "shadowed"
	default:
		return "unknown"
	}
}

// Kept reports whether the point is now part of the series.
func (r Result) Kept() bool {
	return r == Accepted || r == Replaced
}

// Series ordered, timestamp-unique price history of one project.
// Series is not safe for concurrent use; the owner serializes access.
type Series struct {
	points       []domain.PricePoint
	lastSnapshot int64
	lastLive     int64
	hasSnapshot  bool
	hasLive      bool
}

// NewSeries creates an empty series.
func NewSeries() *Series {
	return &Series{}
}

// Len returns the number of points.
func (s *Series) Len() int {
	return len(s.points)
}

// Points returns a copy of the points in ascending timestamp order.
func (s *Series) Points() []domain.PricePoint {
	out := make([]domain.PricePoint, len(s.points))
	copy(out, s.points)
	return out
}

// AddSnapshot merges a point observed by the snapshot poller.
func (s *Series) AddSnapshot(p domain.PricePoint) Result {
	p.Source = domain.SourceSnapshot
	if s.hasSnapshot && p.TS <= s.lastSnapshot {
		return Stale
	}
	s.lastSnapshot, s.hasSnapshot = p.TS, true

	return s.add(p, SnapshotCap)
}

// AddLive merges a point delivered by the push feed.
func (s *Series) AddLive(p domain.PricePoint) Result {
	if p.Source == "" || p.Source == domain.SourceSnapshot {
		p.Source = domain.SourcePush
	}
	if s.hasLive && p.TS <= s.lastLive {
		if p.TS == s.lastLive && s.isEcho(p) {
			return Echo
		}
		return Stale
	}
	s.lastLive, s.hasLive = p.TS, true

	return s.add(p, LiveCap)
}

// MergeFetched merges server-sourced history. A series with fewer than
// MinPopulated points is replaced; otherwise local points newer than the
// newest server point are kept on top of the server rows. An empty response
// leaves the series untouched.
func (s *Series) MergeFetched(rows []domain.PriceRow) {
	server := dedupe(rowsToPoints(rows))
	if len(server) == 0 {
		return
	}

	var merged []domain.PricePoint
	if len(s.points) < MinPopulated {
		merged = server
	} else {
		newest := server[len(server)-1].TS
		merged = server
		for _, p := range s.points {
			if p.TS > newest {
				merged = append(merged, p)
			}
		}
		merged = dedupe(merged)
	}

	s.points = merged
	s.trim(FetchedCap)

	// server rows seed the watermarks so replayed deliveries stay idempotent
	for _, p := range s.points {
		if p.IsLive() {
			if !s.hasLive || p.TS > s.lastLive {
				s.lastLive, s.hasLive = p.TS, true
			}
		} else if !s.hasSnapshot || p.TS > s.lastSnapshot {
			s.lastSnapshot, s.hasSnapshot = p.TS, true
		}
	}
}

// add inserts p and bounds the series to limit. A kept point never shrinks the
// series below its previous length, so a longer refetched history is rolled
// forward rather than cut down to the channel cap.
func (s *Series) add(p domain.PricePoint, limit int) Result {
	before := len(s.points)
	res := s.insert(p)
	if res.Kept() {
		s.trim(max(limit, before))
	}
	return res
}

func (s *Series) isEcho(p domain.PricePoint) bool {
	i := s.search(p.TS)
	if i == len(s.points) || s.points[i].TS != p.TS {
		return false
	}
	return p.Price.Sub(s.points[i].Price).Abs().LessThan(echoTolerance)
}

// insert places p at its sorted position. On a timestamp tie a live point
// wins over a snapshot point regardless of which arrived first.
func (s *Series) insert(p domain.PricePoint) Result {
	i := s.search(p.TS)
	if i < len(s.points) && s.points[i].TS == p.TS {
		existing := s.points[i]
		if existing.IsLive() || !p.IsLive() {
			return Shadowed
		}
		s.points[i] = p
		return Replaced
	}

	s.points = append(s.points, domain.PricePoint{})
	copy(s.points[i+1:], s.points[i:])
	s.points[i] = p
	return Accepted
}

func (s *Series) search(ts int64) int {
	return sort.Search(len(s.points), func(i int) bool { return s.points[i].TS >= ts })
}

func (s *Series) trim(limit int) {
	if len(s.points) <= limit {
		return
	}
	drop := len(s.points) - limit
	kept := make([]domain.PricePoint, limit)
	copy(kept, s.points[drop:])
	s.points = kept
}

func rowsToPoints(rows []domain.PriceRow) []domain.PricePoint {
	points := make([]domain.PricePoint, 0, len(rows))
	for _, r := range rows {
		points = append(points, r.ToPoint())
	}
	return points
}

// dedupe sorts points ascending by timestamp and keeps the last written
// point for every timestamp.
func dedupe(points []domain.PricePoint) []domain.PricePoint {
	sort.SliceStable(points, func(i, j int) bool { return points[i].TS < points[j].TS })

	out := points[:0]
	for _, p := range points {
		if n := len(out); n > 0 && out[n-1].TS == p.TS {
			out[n-1] = p
			continue
		}
		out = append(out, p)
	}
	return out
}
