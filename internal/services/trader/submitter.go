package trader

import (
	"context"
	"sync/atomic"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ubc-biztech/btx/internal/domain"
)

// ErrInvalidTrade the trade request is rejected before reaching the backend.
var ErrInvalidTrade = errors.New("invalid trade request")

// Commander issues trade commands to the backend.
type Commander interface {
	Buy(ctx context.Context, req domain.TradeRequest) error
	Sell(ctx context.Context, req domain.TradeRequest) error
}

// Refresher re-reads the state a trade may have changed.
type Refresher interface {
	FetchSnapshot(ctx context.Context) error
	RefreshPortfolio(ctx context.Context) error
	FetchTrades(ctx context.Context, projectID string) error
	FetchPriceHistory(ctx context.Context, projectID string) error
}

// Submitter submits buy and sell commands and refreshes dependent state afterwards.
type Submitter struct {
	commands  Commander
	refresher Refresher
	logger    *zap.Logger
	inFlight  atomic.Int32
}

// NewSubmitter creates a submitter.
func NewSubmitter(commands Commander, refresher Refresher, logger *zap.Logger) *Submitter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Submitter{
		commands:  commands,
		refresher: refresher,
		logger:    logger,
	}
}

// IsSubmitting reports whether a trade is in flight. Advisory only: it does
// not prevent concurrent submissions.
func (s *Submitter) IsSubmitting() bool {
	return s.inFlight.Load() > 0
}

// Submit issues the command and, once it succeeds, refreshes the snapshot,
// the portfolio and the traded project's trade log and price history
// concurrently. Refresh failures are logged; the command error is returned.
func (s *Submitter) Submit(ctx context.Context, side domain.TradeSide, req domain.TradeRequest) error {
	if !side.IsValid() {
		return errors.Wrapf(ErrInvalidTrade, "unknown side %q", side)
	}
	if req.ProjectID == "" {
		return errors.Wrap(ErrInvalidTrade, "project id is empty")
	}
	if !req.Shares.IsPositive() {
		return errors.Wrapf(ErrInvalidTrade, "shares must be positive, got %s", req.Shares)
	}

	s.inFlight.Add(1)
	defer s.inFlight.Add(-1)

	var err error
	switch side {
	case domain.TradeSideBuy:
		err = s.commands.Buy(ctx, req)
	case domain.TradeSideSell:
		err = s.commands.Sell(ctx, req)
	}
	if err != nil {
		s.logger.Warn("trade command failed",
			zap.String("side", side.String()),
			zap.String("project", req.ProjectID),
			zap.String("shares", req.Shares.String()),
			zap.Error(err))
		return errors.Wrapf(err, "%s %s", side, req)
	}

	s.logger.Info("trade executed",
		zap.String("side", side.String()),
		zap.String("project", req.ProjectID),
		zap.String("shares", req.Shares.String()))

	s.refresh(ctx, req.ProjectID)
	return nil
}

func (s *Submitter) refresh(ctx context.Context, projectID string) {
	// plain Group: one failed refresh must not cancel the others
	var g errgroup.Group

	tasks := map[string]func() error{
		"snapshot":      func() error { return s.refresher.FetchSnapshot(ctx) },
		"portfolio":     func() error { return s.refresher.RefreshPortfolio(ctx) },
		"trades":        func() error { return s.refresher.FetchTrades(ctx, projectID) },
		"price_history": func() error { return s.refresher.FetchPriceHistory(ctx, projectID) },
	}

	for name, task := range tasks {
		g.Go(func() error {
			if err := task(); err != nil {
				s.logger.Warn("post-trade refresh failed",
					zap.String("refresh", name),
					zap.String("project", projectID),
					zap.Error(err))
			}
			return nil
		})
	}

	_ = g.Wait()
}
