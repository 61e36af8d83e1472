package clients

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/ubc-biztech/btx/internal/domain"
)

const (
	defaultTimeout      = 15 * time.Second
	DefaultTradesLimit  = 50
	DefaultHistoryLimit = 10000
)

// ErrUnauthorized the backend rejected the caller's credentials.
var ErrUnauthorized = errors.New("unauthorized")

// APIError non-2xx response from the backend.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("btx api returned status %d", e.Status)
	}
	return fmt.Sprintf("btx api returned status %d: %s", e.Status, e.Message)
}

// Backend operations of the BTX exchange API used by the client.
type Backend interface {
	Snapshot(ctx context.Context, eventID string) ([]domain.ProjectSnapshot, error)
	Portfolio(ctx context.Context, eventID string) (*domain.Portfolio, error)
	RecentTrades(ctx context.Context, projectID string, limit int) ([]domain.Trade, error)
	PriceHistory(ctx context.Context, projectID string, limit int) ([]domain.PriceRow, error)
	Buy(ctx context.Context, req domain.TradeRequest) error
	Sell(ctx context.Context, req domain.TradeRequest) error
}

// BTXClient REST client of the BTX exchange backend.
type BTXClient struct {
	baseURL    string
	authToken  string
	httpClient *http.Client
}

// NewBTXClient creates a client for the API served at baseURL.
// An empty authToken sends unauthenticated requests.
func NewBTXClient(baseURL, authToken string) *BTXClient {
	return &BTXClient{
		baseURL:   strings.TrimRight(baseURL, "/"),
		authToken: authToken,
		httpClient: &http.Client{
			Timeout: defaultTimeout,
		},
	}
}

// Snapshot returns the current state of every project of the event.
func (c *BTXClient) Snapshot(ctx context.Context, eventID string) ([]domain.ProjectSnapshot, error) {
	q := url.Values{}
	q.Set("eventId", eventID)

	var rows []domain.ProjectSnapshot
	if err := c.do(ctx, http.MethodGet, "/btx/projects", q, nil, &rows); err != nil {
		return nil, errors.Wrap(err, "fetch projects")
	}
	return rows, nil
}

// Portfolio returns the caller's holdings for the event.
func (c *BTXClient) Portfolio(ctx context.Context, eventID string) (*domain.Portfolio, error) {
	q := url.Values{}
	q.Set("eventId", eventID)

	var p domain.Portfolio
	if err := c.do(ctx, http.MethodGet, "/btx/portfolio", q, nil, &p); err != nil {
		return nil, errors.Wrap(err, "fetch portfolio")
	}
	return &p, nil
}

// RecentTrades returns the latest trades of a project, newest first.
func (c *BTXClient) RecentTrades(ctx context.Context, projectID string, limit int) ([]domain.Trade, error) {
	if limit <= 0 {
		limit = DefaultTradesLimit
	}
	q := url.Values{}
	q.Set("projectId", projectID)
	q.Set("limit", strconv.Itoa(limit))

	var trades []domain.Trade
	if err := c.do(ctx, http.MethodGet, "/btx/trades/recent", q, nil, &trades); err != nil {
		return nil, errors.Wrapf(err, "fetch trades of %s", projectID)
	}
	return trades, nil
}

// PriceHistory returns the server-side price history of a project.
func (c *BTXClient) PriceHistory(ctx context.Context, projectID string, limit int) ([]domain.PriceRow, error) {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	q := url.Values{}
	q.Set("projectId", projectID)
	q.Set("limit", strconv.Itoa(limit))

	var rows []domain.PriceRow
	if err := c.do(ctx, http.MethodGet, "/btx/price-history", q, nil, &rows); err != nil {
		return nil, errors.Wrapf(err, "fetch price history of %s", projectID)
	}
	return rows, nil
}

// Buy submits a buy order.
func (c *BTXClient) Buy(ctx context.Context, req domain.TradeRequest) error {
	return errors.Wrapf(c.do(ctx, http.MethodPost, "/btx/buy", nil, req, nil), "buy %s", req)
}

// Sell submits a sell order.
func (c *BTXClient) Sell(ctx context.Context, req domain.TradeRequest) error {
	return errors.Wrapf(c.do(ctx, http.MethodPost, "/btx/sell", nil, req, nil), "sell %s", req)
}

type errorBody struct {
	Message string `json:"message"`
	Error   string `json:"error"`
}

func (c *BTXClient) do(ctx context.Context, method, path string, query url.Values, in, out any) error {
	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return errors.Wrap(err, "failed to marshal request")
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return errors.Wrap(err, "failed to create HTTP request")
	}

	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-Id", uuid.NewString())
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.authToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.authToken)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return errors.Wrap(err, "HTTP request failed")
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return errors.Wrap(err, "failed to read response body")
	}

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return ErrUnauthorized
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &APIError{Status: resp.StatusCode, Message: errorMessage(data)}
	}

	if out == nil || len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return errors.Wrap(err, "failed to unmarshal response")
	}
	return nil
}

func errorMessage(data []byte) string {
	var eb errorBody
	if err := json.Unmarshal(data, &eb); err == nil {
		if eb.Message != "" {
			return eb.Message
		}
		if eb.Error != "" {
			return eb.Error
		}
	}
	return strings.TrimSpace(string(data))
}
