package internal

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ubc-biztech/btx/internal/clients"
	"github.com/ubc-biztech/btx/internal/domain"
	"github.com/ubc-biztech/btx/internal/events"
	"github.com/ubc-biztech/btx/internal/metrics"
	"github.com/ubc-biztech/btx/internal/reconciler"
	"github.com/ubc-biztech/btx/internal/services/feed"
	"github.com/ubc-biztech/btx/internal/services/pricer"
	"github.com/ubc-biztech/btx/internal/services/trader"
	"github.com/ubc-biztech/btx/internal/storage/session"
	"github.com/ubc-biztech/btx/pkg/indicators"
	"github.com/ubc-biztech/btx/pkg/retrier"
)

var (
	// ErrClosed the exchange has been shut down.
	ErrClosed = errors.New("exchange is closed")
	// ErrUnknownProject the project has not been seen in a snapshot.
	ErrUnknownProject = errors.New("unknown project")
)

// PriceTape persists accepted price points.
type PriceTape interface {
	Append(eventID, projectID string, p domain.PricePoint) error
}

// TradeJournal records submitted trade commands.
type TradeJournal interface {
	Save(eventID string, side domain.TradeSide, req domain.TradeRequest, tradeErr error) error
}

// SessionStore persists viewer settings across restarts.
type SessionStore interface {
	Load() (*session.State, error)
	Save(state session.State) error
}

// ExchangeConfig parameters of one exchange view.
type ExchangeConfig struct {
	EventID      string
	UserID       string
	PollInterval time.Duration
	TradesLimit  int
	HistoryLimit int

	PushEnabled   bool
	PushURL       string
	PushReconnect bool
	PushRetrier   *retrier.Retrier

	Overlay indicators.OverlayConfig
}

// Option configures optional collaborators of an Exchange.
type Option func(*Exchange)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(e *Exchange) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithTape records every accepted price point on the tape.
func WithTape(t PriceTape) Option {
	return func(e *Exchange) {
		e.tape = t
	}
}

// WithJournal records every trade command in j.
func WithJournal(j TradeJournal) Option {
	return func(e *Exchange) {
		e.journal = j
	}
}

// WithSession restores the selection and feed settings from s and keeps it updated.
func WithSession(s SessionStore) Option {
	return func(e *Exchange) {
		e.session = s
	}
}

// WithMetrics sets the metrics collectors.
func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Exchange) {
		if m != nil {
			e.metrics = m
		}
	}
}

// WithBroadcaster publishes market events on b.
func WithBroadcaster(b *events.MarketBroadcaster) Option {
	return func(e *Exchange) {
		if b != nil {
			e.events = b
		}
	}
}

// WithClock overrides the time source used for missing timestamps.
func WithClock(now func() time.Time) Option {
	return func(e *Exchange) {
		if now != nil {
			e.now = now
		}
	}
}

// Exchange keeps the local market view of one event in sync with the backend.
type Exchange struct {
	cfg       ExchangeConfig
	backend   clients.Backend
	logger    *zap.Logger
	now       func() time.Time
	tape      PriceTape
	journal   TradeJournal
	session   SessionStore
	metrics   *metrics.Metrics
	events    *events.MarketBroadcaster
	state     *reconciler.Reconciler
	poller    *pricer.SnapshotPoller
	submitter *trader.Submitter

	baseCtx    context.Context
	baseCancel context.CancelFunc
	background sync.WaitGroup

	mu           sync.RWMutex
	closed       bool
	trades       map[string][]domain.Trade
	portfolio    *domain.Portfolio
	snapshotErr  string
	portfolioErr string
	tradesErr    string
	historyErr   string
	connState    domain.ConnectionState
	restoreID    string

	pushMu      sync.Mutex
	running     bool
	runCtx      context.Context
	pushEnabled bool
	pushCancel  context.CancelFunc
	pushDone    chan struct{}
}

// NewExchange creates an exchange view bound to cfg.EventID.
func NewExchange(cfg ExchangeConfig, backend clients.Backend, opts ...Option) (*Exchange, error) {
	if cfg.EventID == "" {
		return nil, errors.New("event id is required")
	}
	if backend == nil {
		return nil, errors.New("backend is required")
	}
	if cfg.TradesLimit <= 0 {
		cfg.TradesLimit = clients.DefaultTradesLimit
	}
	if cfg.HistoryLimit <= 0 {
		cfg.HistoryLimit = clients.DefaultHistoryLimit
	}
	if cfg.Overlay == (indicators.OverlayConfig{}) {
		cfg.Overlay = indicators.DefaultOverlayConfig
	}

	e := &Exchange{
		cfg:         cfg,
		backend:     backend,
		logger:      zap.NewNop(),
		now:         time.Now,
		state:       reconciler.New(),
		trades:      make(map[string][]domain.Trade),
		connState:   domain.ConnectionDisconnected,
		pushEnabled: cfg.PushEnabled,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.metrics == nil {
		e.metrics = metrics.New(false)
	}
	if e.events == nil {
		e.events = events.NewMarketBroadcaster(0)
	}
	e.logger = e.logger.With(zap.String("event", cfg.EventID))
	if err := e.metrics.WatchBroadcaster(e.events); err != nil {
		e.logger.Warn("Market event metrics disabled", zap.Error(err))
	}
	e.restoreSession()

	e.baseCtx, e.baseCancel = context.WithCancel(context.Background())
	e.poller = pricer.NewSnapshotPoller(e, e.cfg.PollInterval, e.logger)
	e.submitter = trader.NewSubmitter(backend, e, e.logger)

	return e, nil
}

// Run polls snapshots, listens to the push feed when enabled and loads the
// portfolio once. It returns when ctx is done or Close is called.
func (e *Exchange) Run(ctx context.Context) error {
	if e.isClosed() {
		return ErrClosed
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := context.AfterFunc(e.baseCtx, cancel)
	defer stop()

	e.pushMu.Lock()
	if e.running {
		e.pushMu.Unlock()
		return errors.New("exchange is already running")
	}
	e.running = true
	e.runCtx = ctx
	pushEnabled := e.pushEnabled
	if pushEnabled {
		e.startPushLocked(ctx)
	}
	e.pushMu.Unlock()

	e.logger.Info("Starting exchange",
		zap.Duration("poll_interval", e.poller.Interval()),
		zap.Bool("push_enabled", pushEnabled))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := e.poller.Run(gctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		if err := e.RefreshPortfolio(gctx); err != nil && gctx.Err() == nil {
			e.logger.Warn("Initial portfolio fetch failed", zap.Error(err))
		}
		return nil
	})
	err := g.Wait()

	e.pushMu.Lock()
	e.stopPushLocked()
	e.running = false
	e.runCtx = nil
	e.pushMu.Unlock()

	e.logger.Info("Exchange stopped")
	return err
}

// Close stops Run, discards pending work and closes market event subscriptions.
func (e *Exchange) Close() {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	e.closed = true
	e.mu.Unlock()

	e.baseCancel()

	e.pushMu.Lock()
	e.stopPushLocked()
	e.pushMu.Unlock()

	e.background.Wait()
	e.events.Close()
}

// FetchSnapshot fetches and applies a full snapshot. On failure the error is
// recorded and existing state is kept.
func (e *Exchange) FetchSnapshot(ctx context.Context) error {
	rows, err := e.backend.Snapshot(ctx, e.cfg.EventID)
	if e.isClosed() {
		return ErrClosed
	}
	if err != nil {
		e.metrics.SnapshotErrors.Inc()
		e.setError(&e.snapshotErr, err)
		return err
	}

	res := e.state.ApplySnapshot(rows, e.now())
	e.setError(&e.snapshotErr, nil)

	projects := e.state.Projects()
	e.metrics.Snapshots.Inc()
	e.metrics.Projects.Set(float64(len(projects)))
	e.metrics.DroppedPoints.WithLabelValues("snapshot").Add(float64(res.Dropped))
	for _, pp := range res.Accepted {
		e.record(pp.ProjectID, pp.Point)
	}

	e.events.Publish(domain.MarketEvent{
		Kind:     domain.MarketEventSnapshot,
		EventID:  e.cfg.EventID,
		Projects: projects,
	})

	selected := res.Selected
	if id := e.takeRestoreID(len(projects) > 0); id != "" {
		if _, ok := e.state.Project(id); ok {
			e.state.Select(id)
			selected = id
		}
	}
	if selected != "" {
		e.logger.Info("Project selected", zap.String("project", selected))
		e.saveSession()
		e.goBackground(func(ctx context.Context) {
			_ = e.loadProject(ctx, selected)
		})
	}

	return nil
}

// RefreshPortfolio fetches the caller's portfolio. A 401-class response
// clears the portfolio without recording an error.
func (e *Exchange) RefreshPortfolio(ctx context.Context) error {
	p, err := e.backend.Portfolio(ctx, e.cfg.EventID)
	if e.isClosed() {
		return ErrClosed
	}

	if errors.Is(err, clients.ErrUnauthorized) {
		e.mu.Lock()
		e.portfolio = nil
		e.portfolioErr = ""
		e.mu.Unlock()
		return nil
	}
	if err != nil {
		e.metrics.FetchErrors.WithLabelValues("portfolio").Inc()
		e.setError(&e.portfolioErr, err)
		return err
	}

	e.mu.Lock()
	e.portfolio = p
	e.portfolioErr = ""
	e.mu.Unlock()
	return nil
}

// FetchTrades fetches the recent trade log of a project.
func (e *Exchange) FetchTrades(ctx context.Context, projectID string) error {
	trades, err := e.backend.RecentTrades(ctx, projectID, e.cfg.TradesLimit)
	if e.isClosed() {
		return ErrClosed
	}
	if err != nil {
		e.metrics.FetchErrors.WithLabelValues("trades").Inc()
		e.setError(&e.tradesErr, err)
		return err
	}

	e.mu.Lock()
	e.trades[projectID] = trades
	e.tradesErr = ""
	e.mu.Unlock()
	return nil
}

// FetchPriceHistory fetches server-side history of a project and merges it
// with the locally collected points.
func (e *Exchange) FetchPriceHistory(ctx context.Context, projectID string) error {
	rows, err := e.backend.PriceHistory(ctx, projectID, e.cfg.HistoryLimit)
	if e.isClosed() {
		return ErrClosed
	}
	if err != nil {
		e.metrics.FetchErrors.WithLabelValues("price_history").Inc()
		e.setError(&e.historyErr, err)
		return err
	}

	n := e.state.ApplyHistory(projectID, rows)
	e.setError(&e.historyErr, nil)
	e.logger.Debug("Price history merged", zap.String("project", projectID), zap.Int("rows", len(rows)), zap.Int("points", n))

	e.events.Publish(domain.MarketEvent{
		Kind:      domain.MarketEventHistory,
		EventID:   e.cfg.EventID,
		ProjectID: projectID,
	})
	return nil
}

// SelectProject selects a known project and loads its trade log and price history.
func (e *Exchange) SelectProject(ctx context.Context, projectID string) error {
	if e.isClosed() {
		return ErrClosed
	}
	if _, ok := e.state.Project(projectID); !ok {
		return errors.Wrap(ErrUnknownProject, projectID)
	}

	e.state.Select(projectID)
	e.saveSession()
	return e.loadProject(ctx, projectID)
}

func (e *Exchange) loadProject(ctx context.Context, projectID string) error {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return e.FetchTrades(gctx, projectID) })
	g.Go(func() error { return e.FetchPriceHistory(gctx, projectID) })
	return g.Wait()
}

// BuyShares buys shares and refreshes the affected state.
func (e *Exchange) BuyShares(ctx context.Context, projectID string, shares decimal.Decimal) error {
	return e.trade(ctx, domain.TradeSideBuy, projectID, shares)
}

// SellShares sells shares and refreshes the affected state.
func (e *Exchange) SellShares(ctx context.Context, projectID string, shares decimal.Decimal) error {
	return e.trade(ctx, domain.TradeSideSell, projectID, shares)
}

func (e *Exchange) trade(ctx context.Context, side domain.TradeSide, projectID string, shares decimal.Decimal) error {
	if e.isClosed() {
		return ErrClosed
	}

	req := domain.TradeRequest{ProjectID: projectID, Shares: shares}
	err := e.submitter.Submit(ctx, side, req)
	e.metrics.TradeResult(side, err)
	if e.journal != nil && !errors.Is(err, trader.ErrInvalidTrade) {
		if jerr := e.journal.Save(e.cfg.EventID, side, req, err); jerr != nil {
			e.logger.Warn("Failed to journal trade", zap.Error(jerr))
		}
	}
	if err != nil {
		return err
	}

	e.events.Publish(domain.MarketEvent{
		Kind:      domain.MarketEventTrade,
		EventID:   e.cfg.EventID,
		ProjectID: projectID,
		Trade:     &req,
		Side:      side,
	})
	return nil
}

// SetPollInterval changes the snapshot polling period.
func (e *Exchange) SetPollInterval(d time.Duration) {
	e.poller.SetInterval(d)
	e.saveSession()
}

// SetPushEnabled closes the current push connection, if any, and opens a
// fresh one when enabled and the exchange is running.
func (e *Exchange) SetPushEnabled(enabled bool) {
	if e.isClosed() {
		return
	}

	e.pushMu.Lock()
	e.stopPushLocked()
	e.pushEnabled = enabled
	if enabled && e.running {
		e.startPushLocked(e.runCtx)
	}
	e.pushMu.Unlock()

	e.saveSession()
}

// PushEnabled reports whether the push feed is switched on.
func (e *Exchange) PushEnabled() bool {
	e.pushMu.Lock()
	defer e.pushMu.Unlock()
	return e.pushEnabled
}

// Subscribe returns a subscription to market events of the given kinds (all when none).
func (e *Exchange) Subscribe(kinds ...domain.MarketEventKind) *events.Subscription {
	return e.events.Subscribe(kinds...)
}

// Unsubscribe cancels a subscription.
func (e *Exchange) Unsubscribe(sub *events.Subscription) {
	e.events.Unsubscribe(sub)
}

// Projects returns the projects sorted by descending market cap.
func (e *Exchange) Projects() []domain.Project {
	return e.state.Projects()
}

// Project returns a single project.
func (e *Exchange) Project(projectID string) (domain.Project, bool) {
	return e.state.Project(projectID)
}

// SelectedProjectID returns the selected project id, empty when none.
func (e *Exchange) SelectedProjectID() string {
	return e.state.Selected()
}

// PriceHistory returns the price history of a project.
func (e *Exchange) PriceHistory(projectID string) []domain.PricePoint {
	return e.state.History(projectID)
}

// ChartOverlay returns the indicator overlay of a project's price history.
func (e *Exchange) ChartOverlay(projectID string) []indicators.OverlayPoint {
	return indicators.ChartOverlay(e.state.History(projectID), e.cfg.Overlay)
}

// Trades returns the last fetched trade log of a project.
func (e *Exchange) Trades(projectID string) []domain.Trade {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return append([]domain.Trade(nil), e.trades[projectID]...)
}

// Portfolio returns the last fetched portfolio, nil when unavailable.
func (e *Exchange) Portfolio() *domain.Portfolio {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.portfolio == nil {
		return nil
	}
	p := *e.portfolio
	p.Holdings = append([]domain.Holding(nil), e.portfolio.Holdings...)
	return &p
}

// ConnectionState returns the push connection state.
func (e *Exchange) ConnectionState() domain.ConnectionState {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.connState
}

// SnapshotError returns the last snapshot failure, empty after a success.
func (e *Exchange) SnapshotError() string { return e.getError(&e.snapshotErr) }

// PortfolioError returns the last portfolio failure, empty after a success.
func (e *Exchange) PortfolioError() string { return e.getError(&e.portfolioErr) }

// TradesError returns the last trade log failure, empty after a success.
func (e *Exchange) TradesError() string { return e.getError(&e.tradesErr) }

// HistoryError returns the last price history failure, empty after a success.
func (e *Exchange) HistoryError() string { return e.getError(&e.historyErr) }

// IsSubmittingTrade reports whether a trade command is in flight.
func (e *Exchange) IsSubmittingTrade() bool {
	return e.submitter.IsSubmitting()
}

// pushHandler applies push notifications to the exchange.
type pushHandler struct {
	e *Exchange
}

func (h pushHandler) OnPriceUpdate(u domain.PriceUpdate) {
	e := h.e
	if e.isClosed() {
		return
	}

	res := e.state.ApplyPush(u, e.now())
	switch {
	case res.Ignored:
		e.metrics.PushMessages.WithLabelValues("ignored").Inc()
		return
	case res.Point == nil:
		e.metrics.PushMessages.WithLabelValues(res.History.String()).Inc()
		e.metrics.DroppedPoints.WithLabelValues("push").Inc()
	default:
		e.metrics.PushMessages.WithLabelValues(res.History.String()).Inc()
		e.record(u.ProjectID, *res.Point)
	}

	if res.Applied || res.Point != nil {
		e.events.Publish(domain.MarketEvent{
			Kind:      domain.MarketEventPrice,
			EventID:   e.cfg.EventID,
			ProjectID: u.ProjectID,
			Point:     res.Point,
		})
	}
}

func (h pushHandler) OnConnectionState(state domain.ConnectionState) {
	e := h.e
	if e.isClosed() {
		return
	}

	e.mu.Lock()
	e.connState = state
	e.mu.Unlock()

	e.metrics.SetConnectionState(state)
	e.events.Publish(domain.MarketEvent{
		Kind:       domain.MarketEventConnection,
		EventID:    e.cfg.EventID,
		Connection: state,
	})
}

func (e *Exchange) startPushLocked(ctx context.Context) {
	pushCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	e.pushCancel = cancel
	e.pushDone = done

	listener := feed.NewListener(feed.Config{
		URL:       feed.ResolveURL(e.cfg.PushURL),
		EventID:   e.cfg.EventID,
		UserID:    e.cfg.UserID,
		Reconnect: e.cfg.PushReconnect,
		Retrier:   e.cfg.PushRetrier,
	}, pushHandler{e: e}, e.logger)

	go func() {
		defer close(done)
		if err := listener.Run(pushCtx); err != nil {
			// best effort: the snapshot poller keeps the view fresh
			e.logger.Warn("Push feed stopped", zap.Error(err))
		}
	}()
}

func (e *Exchange) stopPushLocked() {
	if e.pushCancel == nil {
		return
	}
	e.pushCancel()
	<-e.pushDone
	e.pushCancel = nil
	e.pushDone = nil
}

// restoreSession applies saved settings. Runs before the poller is created.
func (e *Exchange) restoreSession() {
	if e.session == nil {
		return
	}

	state, err := e.session.Load()
	if err != nil {
		e.logger.Warn("Failed to load session", zap.Error(err))
		return
	}
	if state == nil {
		return
	}

	if state.PollInterval > 0 {
		e.cfg.PollInterval = state.PollInterval
	}
	if state.PushEnabled != nil {
		e.pushEnabled = *state.PushEnabled
	}
	e.restoreID = state.SelectedProjectID
	e.logger.Info("Session restored",
		zap.String("project", state.SelectedProjectID),
		zap.Duration("poll_interval", e.cfg.PollInterval),
		zap.Bool("push_enabled", e.pushEnabled))
}

// takeRestoreID hands out the restored selection once, after the first
// snapshot that carried projects.
func (e *Exchange) takeRestoreID(populated bool) string {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !populated {
		return ""
	}
	id := e.restoreID
	e.restoreID = ""
	return id
}

func (e *Exchange) saveSession() {
	if e.session == nil || e.isClosed() {
		return
	}

	push := e.PushEnabled()
	err := e.session.Save(session.State{
		EventID:           e.cfg.EventID,
		SelectedProjectID: e.state.Selected(),
		PollInterval:      e.poller.Interval(),
		PushEnabled:       &push,
		SavedAt:           e.now().UTC(),
	})
	if err != nil {
		e.logger.Warn("Failed to save session", zap.Error(err))
	}
}

func (e *Exchange) record(projectID string, p domain.PricePoint) {
	if e.tape == nil {
		return
	}
	if err := e.tape.Append(e.cfg.EventID, projectID, p); err != nil {
		e.logger.Warn("Failed to append price point to tape", zap.String("project", projectID), zap.Error(err))
	}
}

func (e *Exchange) goBackground(fn func(ctx context.Context)) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.closed {
		return
	}
	e.background.Add(1)
	go func() {
		defer e.background.Done()
		fn(e.baseCtx)
	}()
}

func (e *Exchange) isClosed() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.closed
}

func (e *Exchange) setError(field *string, err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err == nil {
		*field = ""
		return
	}
	*field = err.Error()
}

func (e *Exchange) getError(field *string) string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return *field
}
