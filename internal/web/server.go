package web

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/ubc-biztech/btx/internal/domain"
	"github.com/ubc-biztech/btx/internal/events"
	"github.com/ubc-biztech/btx/internal/storage/pricetape"
	"github.com/ubc-biztech/btx/internal/storage/tradejournal"
	"github.com/ubc-biztech/btx/pkg/indicators"
)

const (
	tapePollInterval  = 2 * time.Second
	heartbeatInterval = 30 * time.Second

	defaultCandleWidth = time.Minute
	defaultATRPeriod   = 14
)

type marketReader interface {
	Projects() []domain.Project
	Project(projectID string) (domain.Project, bool)
	PriceHistory(projectID string) []domain.PricePoint
	ChartOverlay(projectID string) []indicators.OverlayPoint
	Portfolio() *domain.Portfolio
	PortfolioError() string
	Subscribe(kinds ...domain.MarketEventKind) *events.Subscription
	Unsubscribe(sub *events.Subscription)
}

type tapeReader interface {
	PointsAfter(index uint64) ([]pricetape.Record, error)
	ProjectPoints(projectID string, index uint64) ([]pricetape.Record, error)
	CurrentIndex() uint64
}

type journalReader interface {
	EntriesAfter(index uint64) ([]tradejournal.Record, error)
}

// Server exposes the local market view as JSON and SSE endpoints.
type Server struct {
	Addr    string
	Market  marketReader
	Tape    tapeReader
	Journal journalReader
	Metrics http.Handler
	logger  *zap.Logger
}

// NewServer creates a new web server instance. tape and metrics may be nil.
func NewServer(addr string, market marketReader, tape tapeReader, metrics http.Handler, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{Addr: addr, Market: market, Tape: tape, Metrics: metrics, logger: logger}
}

// Handler returns the routes of the server.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", s.handleIndex)
	mux.HandleFunc("GET /projects", s.handleProjects)
	mux.HandleFunc("GET /projects/{id}/history", s.handleHistory)
	mux.HandleFunc("GET /projects/{id}/overlay", s.handleOverlay)
	mux.HandleFunc("GET /projects/{id}/candles", s.handleCandles)
	mux.HandleFunc("GET /portfolio", s.handlePortfolio)
	mux.HandleFunc("GET /market/stream", s.handleMarketStream)
	mux.HandleFunc("GET /tape/stream", s.handleTapeStream)
	mux.HandleFunc("GET /journal", s.handleJournal)
	if s.Metrics != nil {
		mux.Handle("GET /metrics", s.Metrics)
	}
	return mux
}

// Start runs the HTTP server (blocking) and shuts it down when ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	server := &http.Server{
		Addr:              s.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	s.logger.Info("Web server listening", zap.String("addr", s.Addr))
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return errors.Wrap(err, "listen")
	}
	return nil
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	fmt.Fprint(w, indexHTML)
}

func (s *Server) handleProjects(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.Market.Projects())
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if _, ok := s.Market.Project(id); !ok {
		http.Error(w, "unknown project", http.StatusNotFound)
		return
	}
	history := s.Market.PriceHistory(id)
	if history == nil {
		history = []domain.PricePoint{}
	}
	s.writeJSON(w, http.StatusOK, history)
}

func (s *Server) handleOverlay(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if _, ok := s.Market.Project(id); !ok {
		http.Error(w, "unknown project", http.StatusNotFound)
		return
	}
	overlay := s.Market.ChartOverlay(id)
	if overlay == nil {
		overlay = []indicators.OverlayPoint{}
	}
	s.writeJSON(w, http.StatusOK, overlay)
}

// handleCandles serves ?width= (duration, default 1m) candles with ?atr= period ATR.
func (s *Server) handleCandles(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if _, ok := s.Market.Project(id); !ok {
		http.Error(w, "unknown project", http.StatusNotFound)
		return
	}

	width := defaultCandleWidth
	if v := r.URL.Query().Get("width"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d < time.Second {
			http.Error(w, "invalid candle width", http.StatusBadRequest)
			return
		}
		width = d
	}

	period := defaultATRPeriod
	if v := r.URL.Query().Get("atr"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			http.Error(w, "invalid atr period", http.StatusBadRequest)
			return
		}
		period = n
	}

	candles := indicators.CandleOverlay(s.Market.PriceHistory(id), width, period)
	s.writeJSON(w, http.StatusOK, candles)
}

type portfolioView struct {
	*domain.Portfolio
	TotalValue decimal.Decimal `json:"totalValue"`
}

func (s *Server) handlePortfolio(w http.ResponseWriter, r *http.Request) {
	p := s.Market.Portfolio()
	if p == nil {
		msg := s.Market.PortfolioError()
		if msg == "" {
			msg = "no portfolio loaded"
		}
		http.Error(w, msg, http.StatusNotFound)
		return
	}
	s.writeJSON(w, http.StatusOK, portfolioView{Portfolio: p, TotalValue: p.TotalValue()})
}

func (s *Server) handleJournal(w http.ResponseWriter, r *http.Request) {
	if s.Journal == nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		fmt.Fprint(w, "trade journal not available")
		return
	}

	after, ok := afterIndex(w, r)
	if !ok {
		return
	}

	records, err := s.Journal.EntriesAfter(after)
	if err != nil {
		s.logger.Warn("Failed to read trade journal", zap.Error(err))
		http.Error(w, "failed to read trade journal", http.StatusInternalServerError)
		return
	}
	if records == nil {
		records = []tradejournal.Record{}
	}
	s.writeJSON(w, http.StatusOK, records)
}

func (s *Server) handleMarketStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := startStream(w)
	if !ok {
		return
	}

	sub := s.Market.Subscribe()
	defer s.Market.Unsubscribe(sub)

	// current state first so a fresh client does not wait for the next poll
	if err := writeEvent(w, string(domain.MarketEventSnapshot), domain.MarketEvent{
		Kind:     domain.MarketEventSnapshot,
		Projects: s.Market.Projects(),
	}); err != nil {
		s.logger.Warn("Market stream initial write failed", zap.Error(err))
		return
	}
	flusher.Flush()

	heartbeat := time.NewTicker(heartbeatInterval)
	defer heartbeat.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-heartbeat.C:
			fmt.Fprintf(w, ": ping\n\n")
			flusher.Flush()
		case ev, open := <-sub.C:
			if !open {
				return
			}
			if err := writeEvent(w, string(ev.Kind), ev); err != nil {
				s.logger.Warn("Market stream write failed", zap.Error(err))
				return
			}
			flusher.Flush()
		}
	}
}

func (s *Server) handleTapeStream(w http.ResponseWriter, r *http.Request) {
	if s.Tape == nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		fmt.Fprint(w, "price tape not available")
		return
	}

	lastIndex, ok := afterIndex(w, r)
	if !ok {
		return
	}

	flusher, ok := startStream(w)
	if !ok {
		return
	}

	project := r.URL.Query().Get("project")
	sendPoints := func() error {
		var (
			records []pricetape.Record
			head    uint64
			err     error
		)
		if project == "" {
			records, err = s.Tape.PointsAfter(lastIndex)
		} else {
			// skip past other projects' points so they are not rescanned
			head = s.Tape.CurrentIndex()
			records, err = s.Tape.ProjectPoints(project, lastIndex)
		}
		if err != nil {
			return err
		}
		for _, record := range records {
			if err := writeEvent(w, "price", record); err != nil {
				return err
			}
			lastIndex = record.Index
		}
		if head > lastIndex {
			lastIndex = head
		}
		if len(records) > 0 {
			flusher.Flush()
		}
		return nil
	}

	if err := sendPoints(); err != nil {
		s.logger.Warn("Tape stream initial load failed", zap.Error(err))
		return
	}

	heartbeat := time.NewTicker(heartbeatInterval)
	defer heartbeat.Stop()

	pollTicker := time.NewTicker(tapePollInterval)
	defer pollTicker.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-heartbeat.C:
			fmt.Fprintf(w, ": ping\n\n")
			flusher.Flush()
		case <-pollTicker.C:
			if err := sendPoints(); err != nil {
				s.logger.Warn("Tape stream poll failed", zap.Error(err))
			}
		}
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Warn("Failed to encode response", zap.Error(err))
	}
}

// afterIndex parses the optional ?after= WAL index.
func afterIndex(w http.ResponseWriter, r *http.Request) (uint64, bool) {
	v := r.URL.Query().Get("after")
	if v == "" {
		return 0, true
	}
	after, err := strconv.ParseUint(v, 10, 64)
	if err != nil {
		http.Error(w, "invalid after index", http.StatusBadRequest)
		return 0, false
	}
	return after, true
}

func startStream(w http.ResponseWriter) (http.Flusher, bool) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return nil, false
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()
	return flusher, true
}

func writeEvent(w http.ResponseWriter, name string, v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return errors.Wrap(err, "marshal event")
	}
	_, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", name, payload)
	return err
}

// Project board: table sorted by market cap, updated from the market stream.
const indexHTML = `<!DOCTYPE html>
<html lang="en">
<head>
  <meta charset="utf-8" />
  <title>BTX</title>
  <style>
    body { margin:2rem; font-family:'Space Mono','JetBrains Mono',monospace; color:#111; }
    table { border-collapse:collapse; width:100%; max-width:960px; }
    th, td { border-bottom:1px solid #ddd; padding:.4rem .8rem; text-align:right; }
    th:first-child, td:first-child { text-align:left; }
    .up { color:#1b9aaa; }
    .down { color:#d7263d; }
    .status { font-size:.7rem; text-transform:uppercase; letter-spacing:.1em; margin-bottom:1rem; }
  </style>
</head>
<body>
  <div id="status" class="status">Connecting…</div>
  <table>
    <thead><tr><th>Ticker</th><th>Price</th><th>Change</th><th>Change %</th><th>Market cap</th></tr></thead>
    <tbody id="projects"></tbody>
  </table>
<script>
const statusEl = document.getElementById('status');
const body = document.getElementById('projects');
let projects = [];

const fmt = (v) => {
  const n = parseFloat(v);
  return Number.isFinite(n) ? n.toFixed(2) : '0.00';
};

function render(){
  body.innerHTML = '';
  for(const p of projects){
    const row = document.createElement('tr');
    const cls = parseFloat(p.priceChange) > 0 ? 'up' : (parseFloat(p.priceChange) < 0 ? 'down' : '');
    row.innerHTML = '<td>' + (p.ticker || p.projectId) + '</td>' +
      '<td>' + fmt(p.currentPrice) + '</td>' +
      '<td class="' + cls + '">' + fmt(p.priceChange) + '</td>' +
      '<td class="' + cls + '">' + fmt(p.priceChangePct) + '</td>' +
      '<td>' + fmt(p.marketCap) + '</td>';
    body.appendChild(row);
  }
}

async function reload(){
  const res = await fetch('/projects');
  if(res.ok){
    projects = await res.json();
    render();
  }
}

function connect(){
  const source = new EventSource('/market/stream');
  source.addEventListener('snapshot', (event) => {
    const payload = JSON.parse(event.data);
    projects = payload.projects || [];
    render();
  });
  source.addEventListener('price', () => reload());
  source.addEventListener('connection', (event) => {
    statusEl.textContent = 'Push: ' + JSON.parse(event.data).connection;
  });
  source.addEventListener('error', () => {
    statusEl.textContent = 'Reconnecting…';
    source.close();
    setTimeout(connect, 2000);
  });
}

connect();
</script>
</body>
</html>`
