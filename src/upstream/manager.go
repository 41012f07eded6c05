package upstream

import (
	"context"
	"fmt"
	"sync"

	"market-relay/src/logger"
	"market-relay/src/metrics"
	"market-relay/src/models"

	"github.com/sourcegraph/conc"
)

// Manager owns one Connection per market and routes channel demand to it.
type Manager struct {
	Logger  *logger.Logger
	opts    Options
	handler FrameHandler
	metrics *metrics.Metrics
	enabled map[models.Market]bool
	eager   bool

	mu         sync.RWMutex
	conns      map[models.Market]*Connection
	ctx        context.Context // Lifecycle context (derived)
	cancelFunc context.CancelFunc
	wg         conc.WaitGroup
}

// -----------------------------------------------------------------------------

func NewManager(opts Options, markets []models.Market, eager bool, handler FrameHandler, log *logger.Logger, m *metrics.Metrics) *Manager {
	enabled := make(map[models.Market]bool, len(markets))
	for _, market := range markets {
		enabled[market] = true
	}
	return &Manager{
		Logger:  log,
		opts:    opts,
		handler: handler,
		metrics: m,
		enabled: enabled,
		eager:   eager,
		conns:   make(map[models.Market]*Connection),
	}
}

// -----------------------------------------------------------------------------

// Start binds the manager to parentCtx. With eager connect every enabled
// market is dialed now; otherwise connections open on first demand.
func (m *Manager) Start(parentCtx context.Context) error {
	m.mu.Lock()
	if m.ctx != nil {
		m.mu.Unlock()
		return fmt.Errorf("upstream manager is already running")
	}
	m.ctx, m.cancelFunc = context.WithCancel(parentCtx)
	m.mu.Unlock()

	if m.eager {
		for _, market := range models.AllMarkets {
			if !m.enabled[market] {
				continue
			}
			if _, err := m.EnsureConnection(market); err != nil {
				return err
			}
		}
	}
	return nil
}

// -----------------------------------------------------------------------------

// Stop cancels every connection and waits for their loops to exit.
func (m *Manager) Stop() error {
	m.mu.Lock()
	if m.cancelFunc == nil {
		m.mu.Unlock()
		return nil // Already stopped
	}
	m.Logger.Info("Stopping upstream connections...")
	m.cancelFunc()
	m.cancelFunc = nil
	m.mu.Unlock()

	m.wg.Wait()
	m.Logger.Info("Upstream connections stopped.")
	return nil
}

// -----------------------------------------------------------------------------

// EnsureConnection returns the market's connection, creating and starting it
// on first use.
func (m *Manager) EnsureConnection(market models.Market) (*Connection, error) {
	m.mu.RLock()
	conn, ok := m.conns[market]
	m.mu.RUnlock()
	if ok {
		return conn, nil
	}

	if !m.enabled[market] {
		return nil, fmt.Errorf("market %s is not enabled", market)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if conn, ok := m.conns[market]; ok {
		return conn, nil
	}
	if m.ctx == nil || m.ctx.Err() != nil {
		return nil, fmt.Errorf("upstream manager is not running")
	}

	conn = newConnection(market, m.opts, m.handler, m.Logger, m.metrics)
	m.conns[market] = conn
	ctx := m.ctx
	m.wg.Go(func() { conn.run(ctx) })
	m.Logger.With("market", market).Info("Opened upstream connection")
	return conn, nil
}

// -----------------------------------------------------------------------------

func (m *Manager) SubscribeChannels(market models.Market, channels []string) error {
	conn, err := m.EnsureConnection(market)
	if err != nil {
		return err
	}
	conn.SubscribeChannels(channels)
	return nil
}

// -----------------------------------------------------------------------------

// UnsubscribeChannels never opens a connection just to release channels.
func (m *Manager) UnsubscribeChannels(market models.Market, channels []string) {
	m.mu.RLock()
	conn, ok := m.conns[market]
	m.mu.RUnlock()
	if ok {
		conn.UnsubscribeChannels(channels)
	}
}

// -----------------------------------------------------------------------------

func (m *Manager) Subscribe(market models.Market, symbol string) {
	if err := m.SubscribeChannels(market, ChannelsFor(market, symbol)); err != nil {
		m.Logger.With("market", market).With("error", err.Error()).Warning("Cannot subscribe %s upstream", symbol)
	}
}

func (m *Manager) Unsubscribe(market models.Market, symbol string) {
	m.UnsubscribeChannels(market, ChannelsFor(market, symbol))
}

// -----------------------------------------------------------------------------

// Status lists the opened connections in market order.
func (m *Manager) Status() []models.MUpstreamStatus {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]models.MUpstreamStatus, 0, len(m.conns))
	for _, market := range models.AllMarkets {
		if conn, ok := m.conns[market]; ok {
			out = append(out, conn.Status())
		}
	}
	return out
}

// -----------------------------------------------------------------------------

// Connection returns the market's connection if it was opened.
func (m *Manager) Connection(market models.Market) (*Connection, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	conn, ok := m.conns[market]
	return conn, ok
}
