package trader

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ubc-biztech/btx/internal/domain"
	traderMock "github.com/ubc-biztech/btx/mocks/trader"
)

func expectAllRefreshes(r *traderMock.Refresher, projectID string, err error) {
	r.On("FetchSnapshot", mock.Anything).Return(err).Once()
	r.On("RefreshPortfolio", mock.Anything).Return(err).Once()
	r.On("FetchTrades", mock.Anything, projectID).Return(err).Once()
	r.On("FetchPriceHistory", mock.Anything, projectID).Return(err).Once()
}

func TestSubmitter_BuyRefreshesEverythingOnce(t *testing.T) {
	commands := traderMock.NewCommander(t)
	refresher := traderMock.NewRefresher(t)

	req := domain.TradeRequest{ProjectID: "P1", Shares: decimal.NewFromInt(2)}
	commands.On("Buy", mock.Anything, req).Return(nil).Once()
	expectAllRefreshes(refresher, "P1", nil)

	s := NewSubmitter(commands, refresher, zap.NewNop())
	require.NoError(t, s.Submit(context.Background(), domain.TradeSideBuy, req))
	assert.False(t, s.IsSubmitting())

	refresher.AssertNumberOfCalls(t, "FetchSnapshot", 1)
	refresher.AssertNumberOfCalls(t, "RefreshPortfolio", 1)
	refresher.AssertNumberOfCalls(t, "FetchTrades", 1)
	refresher.AssertNumberOfCalls(t, "FetchPriceHistory", 1)
}

func TestSubmitter_RefreshFailuresAreAbsorbed(t *testing.T) {
	commands := traderMock.NewCommander(t)
	refresher := traderMock.NewRefresher(t)

	commands.On("Sell", mock.Anything, mock.Anything).Return(nil).Once()
	expectAllRefreshes(refresher, "P1", errors.New("backend hiccup"))

	s := NewSubmitter(commands, refresher, nil)
	require.NoError(t, s.Submit(context.Background(), domain.TradeSideSell, domain.TradeRequest{ProjectID: "P1", Shares: decimal.NewFromInt(1)}))
	assert.False(t, s.IsSubmitting())
}

func TestSubmitter_RefreshesRunConcurrently(t *testing.T) {
	commands := traderMock.NewCommander(t)
	refresher := traderMock.NewRefresher(t)
	commands.On("Buy", mock.Anything, mock.Anything).Return(nil).Once()

	// every refresh waits for all four to start, which only works if they overlap
	started := make(chan struct{}, 4)
	release := make(chan struct{})
	wait := func(args mock.Arguments) {
		started <- struct{}{}
		<-release
	}
	refresher.On("FetchSnapshot", mock.Anything).Run(wait).Return(nil).Once()
	refresher.On("RefreshPortfolio", mock.Anything).Run(wait).Return(nil).Once()
	refresher.On("FetchTrades", mock.Anything, "P1").Run(wait).Return(nil).Once()
	refresher.On("FetchPriceHistory", mock.Anything, "P1").Run(wait).Return(nil).Once()

	s := NewSubmitter(commands, refresher, nil)
	done := make(chan error, 1)
	go func() { done <- s.Submit(context.Background(), domain.TradeSideBuy, domain.TradeRequest{ProjectID: "P1", Shares: decimal.NewFromInt(1)}) }()

	for i := 0; i < 4; i++ {
		select {
		case <-started:
		case <-time.After(time.Second):
			t.Fatalf("only %d refreshes started", i)
		}
	}
	assert.True(t, s.IsSubmitting())
	close(release)

	require.NoError(t, <-done)
	assert.False(t, s.IsSubmitting())
}

func TestSubmitter_CommandErrorPropagates(t *testing.T) {
	commands := traderMock.NewCommander(t)
	refresher := traderMock.NewRefresher(t)

	rejected := errors.New("insufficient balance")
	commands.On("Buy", mock.Anything, mock.Anything).Return(rejected).Once()

	s := NewSubmitter(commands, refresher, nil)
	err := s.Submit(context.Background(), domain.TradeSideBuy, domain.TradeRequest{ProjectID: "P1", Shares: decimal.NewFromInt(1)})
	require.Error(t, err)
	assert.ErrorIs(t, err, rejected)
	assert.False(t, s.IsSubmitting())

	refresher.AssertNotCalled(t, "FetchSnapshot", mock.Anything)
}

func TestSubmitter_RejectsInvalidRequests(t *testing.T) {
	tests := []struct {
		name      string
		side      domain.TradeSide
		projectID string
		shares    decimal.Decimal
	}{
		{name: "empty project", side: domain.TradeSideBuy, projectID: "", shares: decimal.NewFromInt(1)},
		{name: "zero shares", side: domain.TradeSideBuy, projectID: "P1", shares: decimal.Zero},
		{name: "negative shares", side: domain.TradeSideSell, projectID: "P1", shares: decimal.NewFromInt(-1)},
		{name: "unknown side", side: domain.TradeSide("short"), projectID: "P1", shares: decimal.NewFromInt(1)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewSubmitter(traderMock.NewCommander(t), traderMock.NewRefresher(t), nil)
			err := s.Submit(context.Background(), tt.side, domain.TradeRequest{ProjectID: tt.projectID, Shares: tt.shares})
			assert.ErrorIs(t, err, ErrInvalidTrade)
		})
	}
}
