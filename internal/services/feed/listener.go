// Package feed subscribes to the exchange push channel and delivers price updates.
package feed

import (
	"context"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/ubc-biztech/btx/internal/domain"
	"github.com/ubc-biztech/btx/pkg/retrier"
)

const (
	// DefaultURL push endpoint used when neither the environment nor config name one.
	DefaultURL = "ws://localhost:3001"
	// URLEnv environment variable overriding the push endpoint.
	URLEnv = "BTX_WS_URL"

	handshakeTimeout = 10 * time.Second
	closeGracePeriod = time.Second
	stableSession    = 30 * time.Second
)

// ErrClosedByServer the server sent a close frame.
var ErrClosedByServer = errors.New("push connection closed by server")

// ResolveURL picks the push endpoint: environment override, then configured, then default.
func ResolveURL(configured string) string {
	if v := os.Getenv(URLEnv); v != "" {
		return v
	}
	if configured != "" {
		return configured
	}
	return DefaultURL
}

// Handler receives push notifications. Calls come from the listener goroutine.
type Handler interface {
	OnPriceUpdate(update domain.PriceUpdate)
	OnConnectionState(state domain.ConnectionState)
}

// Config parameters of one push subscription.
type Config struct {
	URL     string
	EventID string
	UserID  string
	Header  http.Header
	// Reconnect re-dials with backoff after the connection fails or is closed.
	Reconnect bool
	// Retrier backoff policy used when Reconnect is set.
	Retrier *retrier.Retrier
}

// Listener maintains a WebSocket subscription to price updates of one event.
type Listener struct {
	cfg     Config
	handler Handler
	logger  *zap.Logger
	dialer  websocket.Dialer
	retrier *retrier.Retrier

	mu    sync.Mutex
	state domain.ConnectionState
}

// NewListener creates a listener.
func NewListener(cfg Config, handler Handler, logger *zap.Logger) *Listener {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.URL == "" {
		cfg.URL = DefaultURL
	}

	r := cfg.Retrier
	if r == nil {
		r = retrier.New(
			retrier.WithMaxRetries(retrier.Unlimited),
			retrier.WithOnRetry(func(attempt int, err error, wait time.Duration) {
				logger.Info("Reconnecting push feed", zap.Int("attempt", attempt), zap.Duration("wait", wait), zap.Error(err))
			}),
		)
	}

	return &Listener{
		cfg:     cfg,
		handler: handler,
		logger:  logger.With(zap.String("event", cfg.EventID)),
		dialer:  websocket.Dialer{HandshakeTimeout: handshakeTimeout},
		retrier: r,
		state:   domain.ConnectionDisconnected,
	}
}

// Run connects and delivers updates until ctx is done or the connection ends
// and reconnection is disabled or exhausted. Cancellation returns nil.
//
// With Reconnect set every redial waits for the retrier backoff. The backoff
// starts over only after a session that delivered a message or stayed up for
// stableSession.
func (l *Listener) Run(ctx context.Context) error {
	retry := 0
	for {
		started := time.Now()
		received, err := l.session(ctx)

		if ctx.Err() != nil {
			l.setState(domain.ConnectionDisconnected)
			return nil
		}
		if !l.cfg.Reconnect {
			return err
		}

		if received || time.Since(started) >= stableSession {
			retry = 0
		}
		retry++
		if waitErr := l.retrier.Wait(ctx, retry, err); waitErr != nil {
			if ctx.Err() != nil {
				l.setState(domain.ConnectionDisconnected)
				return nil
			}
			return err
		}
	}
}

// session dials, subscribes and reads until the connection ends. received
// reports whether any message arrived.
func (l *Listener) session(ctx context.Context) (received bool, err error) {
	l.setState(domain.ConnectionConnecting)

	conn, resp, err := l.dialer.DialContext(ctx, l.cfg.URL, l.cfg.Header)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		if ctx.Err() != nil {
			return false, ctx.Err()
		}
		l.setState(domain.ConnectionError)
		l.logger.Warn("Push feed dial failed", zap.String("url", l.cfg.URL), zap.Error(err))
		return false, errors.Wrapf(err, "dial %s", l.cfg.URL)
	}
	defer conn.Close()

	l.setState(domain.ConnectionConnected)
	l.logger.Info("Push feed connected", zap.String("url", l.cfg.URL))

	if err := conn.WriteJSON(newSubscribeMessage(l.cfg.EventID, l.cfg.UserID)); err != nil {
		l.setState(domain.ConnectionError)
		return false, errors.Wrap(err, "send subscription")
	}

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			deadline := time.Now().Add(closeGracePeriod)
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
			conn.Close()
		case <-done:
		}
	}()

	for {
		messageType, data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return received, ctx.Err()
			}

			var closeErr *websocket.CloseError
			if errors.As(err, &closeErr) && closeErr.Code != websocket.CloseAbnormalClosure {
				l.setState(domain.ConnectionDisconnected)
				l.logger.Info("Push feed closed by server", zap.Int("code", closeErr.Code), zap.String("reason", closeErr.Text))
				return received, ErrClosedByServer
			}

			l.setState(domain.ConnectionError)
			l.logger.Warn("Push feed read failed", zap.Error(err))
			return received, errors.Wrap(err, "read push message")
		}

		received = true
		if messageType != websocket.TextMessage {
			continue
		}

		update, ok := ParseMessage(data)
		if !ok {
			continue
		}
		l.handler.OnPriceUpdate(update)
	}
}

func (l *Listener) setState(state domain.ConnectionState) {
	l.mu.Lock()
	if l.state == state {
		l.mu.Unlock()
		return
	}
	l.state = state
	l.mu.Unlock()

	l.handler.OnConnectionState(state)
}
