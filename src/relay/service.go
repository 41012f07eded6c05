package relay

import (
	"errors"
	"sync"

	"market-relay/src/helpers"
	"market-relay/src/interfaces"
	"market-relay/src/logger"
	"market-relay/src/metrics"
	"market-relay/src/models"
	"market-relay/src/registry"
	"market-relay/src/upstream"
)

// Service ties client subscriptions to upstream channel demand: the first
// subscriber of a symbol opens its provider channels and the last one to
// leave closes them.
type Service struct {
	Registry *registry.Registry
	Upstream interfaces.IUpstream
	Logger   *logger.Logger
	metrics  *metrics.Metrics

	// mu serializes demand changes so a symbol's upstream subscribe and
	// release are issued in registry order.
	mu      sync.Mutex
	markets map[string]models.Market // symbol -> market it was opened on
}

// -----------------------------------------------------------------------------

func NewService(reg *registry.Registry, up interfaces.IUpstream, log *logger.Logger, m *metrics.Metrics) *Service {
	return &Service{
		Registry: reg,
		Upstream: up,
		Logger:   log,
		metrics:  m,
		markets:  make(map[string]models.Market),
	}
}

// -----------------------------------------------------------------------------

// Connect registers a new session with an empty subscription set.
func (s *Service) Connect(clientID string) {
	s.Registry.Register(clientID)
	s.metrics.SetClients(s.Registry.ClientCount())
}

// -----------------------------------------------------------------------------

// Disconnect drops the session's set and releases symbols nobody else wants.
func (s *Service) Disconnect(clientID string) {
	s.mu.Lock()
	released := s.Registry.Remove(clientID)
	s.releaseLocked(released)
	s.mu.Unlock()

	s.metrics.SetClients(s.Registry.ClientCount())
	s.Logger.With("client_id", clientID).Debug("Session closed, released %d symbols", len(released))
}

// -----------------------------------------------------------------------------

// Subscribe adds symbols to the client's set. marketTag, when not empty,
// overrides symbol based classification for the whole batch.
func (s *Service) Subscribe(clientID string, symbols []string, marketTag string) ([]string, error) {
	var tagged models.Market
	if marketTag != "" {
		m, err := models.ParseMarket(marketTag)
		if err != nil {
			return nil, helpers.NewValidationError("%v", err)
		}
		tagged = m
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	subscribed, fresh, err := s.Registry.Subscribe(clientID, symbols)
	switch {
	case errors.Is(err, registry.ErrLimitExceeded):
		return nil, helpers.NewLimitExceededError(err)
	case errors.Is(err, registry.ErrUnknownClient):
		return nil, helpers.NewNotFoundError("client "+clientID, err)
	case err != nil:
		return nil, err
	}

	for _, symbol := range fresh {
		market := tagged
		if market == "" {
			market = upstream.Classify(symbol)
		}
		s.markets[symbol] = market
		s.Upstream.Subscribe(market, symbol)
	}
	s.metrics.SetSymbols(s.Registry.SymbolCount())

	if subscribed == nil {
		subscribed = []string{}
	}
	return subscribed, nil
}

// -----------------------------------------------------------------------------

// Unsubscribe never fails; unknown clients and symbols are ignored. It
// echoes the normalized request symbols, held or not.
func (s *Service) Unsubscribe(clientID string, symbols []string) []string {
	symbols = registry.NormalizeSymbols(symbols)

	s.mu.Lock()
	removed, released := s.Registry.Unsubscribe(clientID, symbols)
	s.releaseLocked(released)
	s.mu.Unlock()

	if len(removed) > 0 {
		s.Logger.With("client_id", clientID).Debug("Unsubscribed %d of %d symbols", len(removed), len(symbols))
	}
	return symbols
}

func (s *Service) releaseLocked(symbols []string) {
	for _, symbol := range symbols {
		market, ok := s.markets[symbol]
		delete(s.markets, symbol)
		if !ok {
			market = upstream.Classify(symbol)
		}
		s.Upstream.Unsubscribe(market, symbol)
	}
	if len(symbols) > 0 {
		s.metrics.SetSymbols(s.Registry.SymbolCount())
	}
}

// -----------------------------------------------------------------------------

// Subscribers lists the clients that should receive messages for symbol.
func (s *Service) Subscribers(symbol string) []string {
	return s.Registry.Subscribers(symbol)
}

// MarketOf returns the market a symbol's upstream channels were opened on.
func (s *Service) MarketOf(symbol string) (models.Market, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.markets[symbol]
	return m, ok
}

func (s *Service) ClientCount() int {
	return s.Registry.ClientCount()
}

func (s *Service) UpstreamStatus() []models.MUpstreamStatus {
	return s.Upstream.Status()
}
