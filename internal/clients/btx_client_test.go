package clients

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ubc-biztech/btx/internal/domain"
)

func newTestServer(t *testing.T, handler http.HandlerFunc) *BTXClient {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewBTXClient(srv.URL+"/", "secret")
}

func TestBTXClient_Snapshot(t *testing.T) {
	client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/btx/projects", r.URL.Path)
		assert.Equal(t, "kickstart", r.URL.Query().Get("eventId"))
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		_, err := uuid.Parse(r.Header.Get("X-Request-Id"))
		assert.NoError(t, err)

		_, _ = w.Write([]byte(`[
			{"projectId":"P1","ticker":"ONE","basePrice":10,"currentPrice":12.5,"marketCap":"1250","updatedAt":1000},
			{"projectId":"P2","basePrice":5,"currentPrice":null,"updatedAt":"2024-01-01T00:00:00Z"}
		]`))
	})

	rows, err := client.Snapshot(context.Background(), "kickstart")
	require.NoError(t, err)
	require.Len(t, rows, 2)

	assert.Equal(t, "ONE", rows[0].Ticker)
	assert.True(t, rows[0].Price().Equal(decimal.NewFromFloat(12.5)))
	assert.Equal(t, int64(1000000), rows[0].UpdatedAt.Millis())

	assert.False(t, rows[1].CurrentPrice.Valid)
	assert.True(t, rows[1].Price().Equal(decimal.NewFromInt(5)))
	assert.Equal(t, int64(1704067200000), rows[1].UpdatedAt.Millis())
}

func TestBTXClient_Unauthorized(t *testing.T) {
	for _, status := range []int{http.StatusUnauthorized, http.StatusForbidden} {
		client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(status)
		})

		p, err := client.Portfolio(context.Background(), "kickstart")
		require.Error(t, err)
		assert.Nil(t, p)
		assert.True(t, errors.Is(err, ErrUnauthorized), "status %d", status)
	}
}

func TestBTXClient_APIError(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		message string
	}{
		{name: "json message", body: `{"message":"insufficient balance"}`, message: "insufficient balance"},
		{name: "json error", body: `{"error":"project closed"}`, message: "project closed"},
		{name: "plain text", body: "boom\n", message: "boom"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusBadRequest)
				_, _ = w.Write([]byte(tt.body))
			})

			err := client.Buy(context.Background(), domain.TradeRequest{ProjectID: "P1", Shares: decimal.NewFromInt(1)})
			require.Error(t, err)

			var apiErr *APIError
			require.True(t, errors.As(err, &apiErr))
			assert.Equal(t, http.StatusBadRequest, apiErr.Status)
			assert.Equal(t, tt.message, apiErr.Message)
		})
	}
}

func TestBTXClient_TradeCommands(t *testing.T) {
	var paths []string
	client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var req domain.TradeRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "P1", req.ProjectID)
		assert.True(t, req.Shares.Equal(decimal.NewFromInt(3)))

		paths = append(paths, r.URL.Path)
		_, _ = w.Write([]byte(`{"ok":true}`))
	})

	req := domain.TradeRequest{ProjectID: "P1", Shares: decimal.NewFromInt(3)}
	require.NoError(t, client.Buy(context.Background(), req))
	require.NoError(t, client.Sell(context.Background(), req))
	assert.Equal(t, []string{"/btx/buy", "/btx/sell"}, paths)
}

func TestBTXClient_DefaultLimits(t *testing.T) {
	client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/btx/trades/recent":
			assert.Equal(t, "50", r.URL.Query().Get("limit"))
			_, _ = w.Write([]byte(`[{"tradeId":"t1","projectId":"P1","side":"buy","shares":1,"price":10,"total":10,"createdAt":1700000000}]`))
		case "/btx/price-history":
			assert.Equal(t, "10000", r.URL.Query().Get("limit"))
			_, _ = w.Write([]byte(`[{"ts":1700000000000,"price":10,"source":"trade"}]`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	})

	trades, err := client.RecentTrades(context.Background(), "P1", 0)
	require.NoError(t, err)
	require.Len(t, trades, 1)
	assert.Equal(t, domain.TradeSideBuy, trades[0].Side)
	assert.Equal(t, int64(1700000000000), trades[0].CreatedAt.Millis())

	rows, err := client.PriceHistory(context.Background(), "P1", -1)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "trade", rows[0].Source)
}

func TestBTXClient_NoTokenOmitsAuthorization(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Empty(t, r.Header.Get("Authorization"))
		_, _ = w.Write([]byte(`{"userId":"u1","cashBalance":100,"holdings":[]}`))
	}))
	defer srv.Close()

	p, err := NewBTXClient(srv.URL, "").Portfolio(context.Background(), "kickstart")
	require.NoError(t, err)
	assert.Equal(t, "u1", p.UserID)
	assert.True(t, p.TotalValue().Equal(decimal.NewFromInt(100)))
}
