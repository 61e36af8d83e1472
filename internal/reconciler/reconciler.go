// Package reconciler merges snapshot and push updates into one view of an
// event's market: the project list and per-project price history.
package reconciler

import (
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/ubc-biztech/btx/internal/domain"
	"github.com/ubc-biztech/btx/internal/history"
)

// priceMark time and channel of the price currently stored on a project.
type priceMark struct {
	ts   int64
	live bool
}

// acceptsUpdate reports whether an update at ts may replace the stored price.
// A price pushed at the same timestamp is never replaced, so snapshots that
// raced a push and repeated pushes leave it alone.
func (m priceMark) acceptsUpdate(ts int64) bool {
	if ts != m.ts {
		return ts > m.ts
	}
	return !m.live
}

// Reconciler is the single source of truth for one exchange view. Its state
// lives as long as the instance; nothing is shared between instances.
type Reconciler struct {
	mu         sync.RWMutex
	projects   map[string]*domain.Project
	order      []string
	prevPrices map[string]decimal.Decimal
	marks      map[string]priceMark
	series     map[string]*history.Series
	selected   string
}

// New creates an empty reconciler.
func New() *Reconciler {
	return &Reconciler{
		projects:   make(map[string]*domain.Project),
		prevPrices: make(map[string]decimal.Decimal),
		marks:      make(map[string]priceMark),
		series:     make(map[string]*history.Series),
	}
}

// SnapshotResult outcome of applying a snapshot.
type SnapshotResult struct {
	// Accepted points added to price histories.
	Accepted []domain.ProjectPoint
	// Dropped points rejected by the history merge.
	Dropped int
	// Selected set when the snapshot caused a default selection.
	Selected string
}

// ApplySnapshot merges a full snapshot observed at observedAt.
func (r *Reconciler) ApplySnapshot(rows []domain.ProjectSnapshot, observedAt time.Time) SnapshotResult {
	r.mu.Lock()
	defer r.mu.Unlock()

	var res SnapshotResult

	nextPrev := make(map[string]decimal.Decimal, len(r.prevPrices)+len(rows))
	for id, price := range r.prevPrices {
		nextPrev[id] = price
	}

	points := make([]domain.ProjectPoint, 0, len(rows))
	for _, row := range rows {
		if row.ProjectID == "" {
			continue
		}

		incoming := row.ToProject()
		incoming.UpdatedAt = row.UpdatedAt.OrElse(observedAt)

		existing, known := r.projects[row.ProjectID]
		if known && !r.marks[row.ProjectID].acceptsUpdate(incoming.UpdatedAt) {
			// stored price is newer; keep price fields, refresh display data only
			if incoming.Ticker != "" {
				existing.Ticker = incoming.Ticker
			}
			if incoming.Name != "" {
				existing.Name = incoming.Name
			}
		} else {
			prev, ok := nextPrev[row.ProjectID]
			if !ok {
				prev = incoming.CurrentPrice
			}
			incoming.PriceChange, incoming.PriceChangePct = domain.PriceDelta(prev, incoming.CurrentPrice)
			nextPrev[row.ProjectID] = incoming.CurrentPrice

			if !known {
				r.order = append(r.order, row.ProjectID)
			}
			p := incoming
			r.projects[row.ProjectID] = &p
			r.marks[row.ProjectID] = priceMark{ts: incoming.UpdatedAt}
		}

		points = append(points, domain.ProjectPoint{
			ProjectID: row.ProjectID,
			Point: domain.PricePoint{
				TS:     incoming.UpdatedAt,
				Price:  incoming.CurrentPrice,
				Source: domain.SourceSnapshot,
			},
		})
	}

	r.prevPrices = nextPrev
	r.sortLocked()

	for _, pp := range points {
		if r.seriesLocked(pp.ProjectID).AddSnapshot(pp.Point).Kept() {
			res.Accepted = append(res.Accepted, pp)
		} else {
			res.Dropped++
		}
	}

	if r.selected == "" && len(r.order) > 0 {
		r.selected = r.order[0]
		res.Selected = r.selected
	}

	return res
}

// PushResult outcome of applying a push update.
type PushResult struct {
	// Ignored the project is not known locally; nothing changed.
	Ignored bool
	// Applied the project record was updated.
	Applied bool
	// Point the history point, set when it was kept.
	Point *domain.PricePoint
	// History outcome of the history merge.
	History history.Result
}

// ApplyPush merges an incremental price update. Updates for projects not yet
// seen in a snapshot are ignored.
func (r *Reconciler) ApplyPush(u domain.PriceUpdate, observedAt time.Time) PushResult {
	r.mu.Lock()
	defer r.mu.Unlock()

	project, ok := r.projects[u.ProjectID]
	if !ok {
		return PushResult{Ignored: true}
	}

	ts := u.UpdatedAt.OrElse(observedAt)
	var res PushResult

	if r.marks[u.ProjectID].acceptsUpdate(ts) {
		next := *project
		next.PriceChange, next.PriceChangePct = domain.PriceDelta(project.CurrentPrice, u.Price)
		next.CurrentPrice = u.Price
		next.UpdatedAt = ts
		if u.NetShares.Valid {
			next.NetShares = u.NetShares.Decimal
		}
		if u.TotalVolume.Valid {
			next.TotalVolume = u.TotalVolume.Decimal
		}
		if u.MarketCap.Valid {
			next.MarketCap = u.MarketCap.Decimal
		}
		if u.TotalTrades != nil {
			next.TotalTrades = *u.TotalTrades
		}

		r.projects[u.ProjectID] = &next
		r.prevPrices[u.ProjectID] = u.Price
		r.marks[u.ProjectID] = priceMark{ts: ts, live: true}
		r.sortLocked()
		res.Applied = true
	}

	source := u.Source
	if source == "" {
		source = domain.SourcePush
	}
	point := domain.PricePoint{TS: ts, Price: u.Price, Source: source}
	res.History = r.seriesLocked(u.ProjectID).AddLive(point)
	if res.History.Kept() {
		res.Point = &point
	}

	return res
}

// ApplyHistory merges server-sourced price history for a project.
func (r *Reconciler) ApplyHistory(projectID string, rows []domain.PriceRow) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	s := r.seriesLocked(projectID)
	s.MergeFetched(rows)
	return s.Len()
}

// Projects returns a copy of the projects sorted by descending market cap.
func (r *Reconciler) Projects() []domain.Project {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]domain.Project, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, *r.projects[id])
	}
	return out
}

// Project returns a copy of a single project.
func (r *Reconciler) Project(projectID string) (domain.Project, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.projects[projectID]
	if !ok {
		return domain.Project{}, false
	}
	return *p, true
}

// History returns a copy of a project's price history.
func (r *Reconciler) History(projectID string) []domain.PricePoint {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.series[projectID]
	if !ok {
		return nil
	}
	return s.Points()
}

// Selected returns the selected project id, empty when none.
func (r *Reconciler) Selected() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.selected
}

// Select records an explicit selection.
func (r *Reconciler) Select(projectID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.selected = projectID
}

func (r *Reconciler) seriesLocked(projectID string) *history.Series {
	s, ok := r.series[projectID]
	if !ok {
		s = history.NewSeries()
		r.series[projectID] = s
	}
	return s
}

// sortLocked orders projects by descending market cap; ties keep their order.
func (r *Reconciler) sortLocked() {
	sort.SliceStable(r.order, func(i, j int) bool {
		return r.projects[r.order[i]].MarketCap.GreaterThan(r.projects[r.order[j]].MarketCap)
	})
}
