package reconciler

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ubc-biztech/btx/internal/domain"
	"github.com/ubc-biztech/btx/internal/history"
)

var observedAt = time.UnixMilli(5_000_000_000_000)

func snapshotRow(id string, price, marketCap float64, updatedAt int64) domain.ProjectSnapshot {
	row := domain.ProjectSnapshot{
		ProjectID:    id,
		Ticker:       id,
		BasePrice:    decimal.NewFromInt(10),
		CurrentPrice: decimal.NewNullDecimal(decimal.NewFromFloat(price)),
		MarketCap:    decimal.NewNullDecimal(decimal.NewFromFloat(marketCap)),
	}
	if updatedAt > 0 {
		row.UpdatedAt = domain.NewTimestamp(updatedAt)
	}
	return row
}

func pushUpdate(id string, price float64, updatedAt int64) domain.PriceUpdate {
	return domain.PriceUpdate{
		ProjectID: id,
		Price:     decimal.NewFromFloat(price),
		UpdatedAt: domain.NewTimestamp(updatedAt),
	}
}

func ids(projects []domain.Project) []string {
	out := make([]string, 0, len(projects))
	for _, p := range projects {
		out = append(out, p.ProjectID)
	}
	return out
}

func TestReconciler_SnapshotThenPushScenario(t *testing.T) {
	r := New()

	var rows []domain.ProjectSnapshot
	require.NoError(t, json.Unmarshal([]byte(`[{"projectId":"P1","basePrice":"10","currentPrice":100,"marketCap":1000,"updatedAt":1000}]`), &rows))

	res := r.ApplySnapshot(rows, observedAt)
	require.Len(t, res.Accepted, 1)
	assert.Equal(t, "P1", res.Selected)

	points := r.History("P1")
	require.Len(t, points, 1)
	assert.Equal(t, int64(1000000), points[0].TS)
	assert.True(t, points[0].Price.Equal(decimal.NewFromInt(100)))

	var update struct {
		UpdatedAt domain.Timestamp `json:"updatedAt"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"updatedAt":1000001}`), &update))

	push := r.ApplyPush(domain.PriceUpdate{ProjectID: "P1", Price: decimal.NewFromInt(105), UpdatedAt: update.UpdatedAt}, observedAt)
	require.True(t, push.Applied)
	require.NotNil(t, push.Point)
	assert.Equal(t, history.Accepted, push.History)

	p, ok := r.Project("P1")
	require.True(t, ok)
	assert.True(t, p.PriceChange.Equal(decimal.NewFromInt(5)), "got %s", p.PriceChange)
	assert.True(t, p.PriceChangePct.Equal(decimal.NewFromInt(5)), "got %s", p.PriceChangePct)

	echo := r.ApplyPush(domain.PriceUpdate{ProjectID: "P1", Price: decimal.NewFromFloat(105.005), UpdatedAt: update.UpdatedAt}, observedAt)
	assert.False(t, echo.Applied)
	assert.Equal(t, history.Echo, echo.History)
	assert.Nil(t, echo.Point)
	assert.Len(t, r.History("P1"), 2)

	p, _ = r.Project("P1")
	assert.True(t, p.PriceChange.Equal(decimal.NewFromInt(5)))
}

func TestReconciler_SnapshotDeltas(t *testing.T) {
	tests := []struct {
		name       string
		prices     []float64
		wantChange string
		wantPct    string
	}{
		{name: "first observation has no change", prices: []float64{100}, wantChange: "0", wantPct: "0"},
		{name: "rise", prices: []float64{100, 110}, wantChange: "10", wantPct: "10"},
		{name: "fall", prices: []float64{100, 75}, wantChange: "-25", wantPct: "-25"},
		{name: "from zero price", prices: []float64{0, 5}, wantChange: "5", wantPct: "0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := New()
			for i, price := range tt.prices {
				r.ApplySnapshot([]domain.ProjectSnapshot{snapshotRow("P1", price, 1, int64(1000+i))}, observedAt)
			}

			p, ok := r.Project("P1")
			require.True(t, ok)
			assert.True(t, p.PriceChange.Equal(decimal.RequireFromString(tt.wantChange)), "change %s", p.PriceChange)
			assert.True(t, p.PriceChangePct.Equal(decimal.RequireFromString(tt.wantPct)), "pct %s", p.PriceChangePct)
		})
	}
}

func TestReconciler_SortedByMarketCap(t *testing.T) {
	r := New()
	missingCap := snapshotRow("D", 1, 0, 1000)
	missingCap.MarketCap = decimal.NullDecimal{}

	r.ApplySnapshot([]domain.ProjectSnapshot{
		snapshotRow("A", 1, 50, 1000),
		missingCap,
		snapshotRow("B", 1, 300, 1000),
		snapshotRow("C", 1, 50, 1000),
	}, observedAt)

	assert.Equal(t, []string{"B", "A", "C", "D"}, ids(r.Projects()))

	mc := decimal.NewNullDecimal(decimal.NewFromInt(500))
	r.ApplyPush(domain.PriceUpdate{ProjectID: "C", Price: decimal.NewFromInt(2), UpdatedAt: domain.NewTimestamp(2000), MarketCap: mc}, observedAt)
	assert.Equal(t, []string{"C", "B", "A", "D"}, ids(r.Projects()))
}

func TestReconciler_SelectionDefault(t *testing.T) {
	r := New()

	res := r.ApplySnapshot(nil, observedAt)
	assert.Empty(t, res.Selected)
	assert.Empty(t, r.Selected())

	r.ApplySnapshot([]domain.ProjectSnapshot{snapshotRow("A", 1, 10, 1000), snapshotRow("B", 1, 20, 1000)}, observedAt)
	assert.Equal(t, "B", r.Selected())

	r.ApplySnapshot([]domain.ProjectSnapshot{snapshotRow("C", 1, 99, 2000)}, observedAt)
	assert.Equal(t, "B", r.Selected(), "selection is never overwritten by snapshots")

	r.Select("A")
	r.ApplySnapshot([]domain.ProjectSnapshot{snapshotRow("C", 1, 100, 3000)}, observedAt)
	assert.Equal(t, "A", r.Selected())
}

func TestReconciler_PushForUnknownProjectIgnored(t *testing.T) {
	r := New()
	r.ApplySnapshot([]domain.ProjectSnapshot{snapshotRow("A", 1, 10, 1000)}, observedAt)

	res := r.ApplyPush(pushUpdate("ghost", 5, 2000), observedAt)
	assert.True(t, res.Ignored)
	assert.False(t, res.Applied)
	assert.Nil(t, res.Point)

	_, ok := r.Project("ghost")
	assert.False(t, ok)
	assert.Nil(t, r.History("ghost"))
	assert.Len(t, r.Projects(), 1)
}

func TestReconciler_PushCountersOnlyWhenPresent(t *testing.T) {
	r := New()
	row := snapshotRow("A", 10, 100, 1000)
	row.NetShares = decimal.NewNullDecimal(decimal.NewFromInt(7))
	trades := int64(3)
	row.TotalTrades = &trades
	r.ApplySnapshot([]domain.ProjectSnapshot{row}, observedAt)

	r.ApplyPush(pushUpdate("A", 11, 2000), observedAt)
	p, _ := r.Project("A")
	assert.True(t, p.NetShares.Equal(decimal.NewFromInt(7)))
	assert.Equal(t, int64(3), p.TotalTrades)
	assert.True(t, p.MarketCap.Equal(decimal.NewFromInt(100)))

	more := int64(4)
	u := pushUpdate("A", 12, 3000)
	u.NetShares = decimal.NewNullDecimal(decimal.NewFromInt(8))
	u.TotalTrades = &more
	r.ApplyPush(u, observedAt)

	p, _ = r.Project("A")
	assert.True(t, p.NetShares.Equal(decimal.NewFromInt(8)))
	assert.Equal(t, int64(4), p.TotalTrades)
	assert.True(t, p.CurrentPrice.Equal(decimal.NewFromInt(12)))
}

func TestReconciler_StaleSnapshotKeepsNewerPushPrice(t *testing.T) {
	r := New()
	r.ApplySnapshot([]domain.ProjectSnapshot{snapshotRow("A", 10, 100, 1000)}, observedAt)
	r.ApplyPush(pushUpdate("A", 12, 3000), observedAt)

	// a poll that raced the push reports an older price
	r.ApplySnapshot([]domain.ProjectSnapshot{snapshotRow("A", 11, 100, 2000)}, observedAt)
	p, _ := r.Project("A")
	assert.True(t, p.CurrentPrice.Equal(decimal.NewFromInt(12)))
	assert.Equal(t, int64(3000), p.UpdatedAt)

	// same timestamp as the push still loses
	r.ApplySnapshot([]domain.ProjectSnapshot{snapshotRow("A", 11, 100, 3000)}, observedAt)
	p, _ = r.Project("A")
	assert.True(t, p.CurrentPrice.Equal(decimal.NewFromInt(12)))

	r.ApplySnapshot([]domain.ProjectSnapshot{snapshotRow("A", 13, 100, 4000)}, observedAt)
	p, _ = r.Project("A")
	assert.True(t, p.CurrentPrice.Equal(decimal.NewFromInt(13)))
	assert.True(t, p.PriceChange.Equal(decimal.NewFromInt(1)), "delta against the last accepted price")
}

func TestReconciler_OlderPushDoesNotOverwrite(t *testing.T) {
	r := New()
	r.ApplySnapshot([]domain.ProjectSnapshot{snapshotRow("A", 10, 100, 5000)}, observedAt)

	res := r.ApplyPush(pushUpdate("A", 9, 4000), observedAt)
	assert.False(t, res.Applied)

	p, _ := r.Project("A")
	assert.True(t, p.CurrentPrice.Equal(decimal.NewFromInt(10)))
}

func TestReconciler_MissingTimestampFallsBackToObservedAt(t *testing.T) {
	r := New()
	r.ApplySnapshot([]domain.ProjectSnapshot{snapshotRow("A", 10, 100, 0)}, observedAt)

	p, _ := r.Project("A")
	assert.Equal(t, observedAt.UnixMilli(), p.UpdatedAt)

	points := r.History("A")
	require.Len(t, points, 1)
	assert.Equal(t, observedAt.UnixMilli(), points[0].TS)
}

func TestReconciler_PriceFallsBackToBasePrice(t *testing.T) {
	r := New()
	row := snapshotRow("A", 0, 100, 1000)
	row.CurrentPrice = decimal.NullDecimal{}
	r.ApplySnapshot([]domain.ProjectSnapshot{row}, observedAt)

	p, _ := r.Project("A")
	assert.True(t, p.CurrentPrice.Equal(decimal.NewFromInt(10)))
}

func TestReconciler_ApplyHistory(t *testing.T) {
	r := New()
	r.ApplySnapshot([]domain.ProjectSnapshot{snapshotRow("A", 10, 100, 9000)}, observedAt)

	n := r.ApplyHistory("A", []domain.PriceRow{
		{TS: domain.NewTimestamp(1000), Price: decimal.NewFromInt(1), Source: "trade"},
		{TS: domain.NewTimestamp(2000), Price: decimal.NewFromInt(2), Source: "trade"},
	})
	assert.Equal(t, 2, n)

	points := r.History("A")
	require.Len(t, points, 2)
	assert.Equal(t, "trade", points[0].Source)
}

func TestReconciler_ReadsReturnCopies(t *testing.T) {
	r := New()
	r.ApplySnapshot([]domain.ProjectSnapshot{snapshotRow("A", 10, 100, 1000)}, observedAt)

	projects := r.Projects()
	projects[0].CurrentPrice = decimal.NewFromInt(999)
	points := r.History("A")
	points[0].Price = decimal.NewFromInt(999)

	p, _ := r.Project("A")
	assert.True(t, p.CurrentPrice.Equal(decimal.NewFromInt(10)))
	assert.True(t, r.History("A")[0].Price.Equal(decimal.NewFromInt(10)))
}
