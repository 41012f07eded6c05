package relay

import (
	"io"
	"net/http"
	"sync"
	"testing"

	"market-relay/src/helpers"
	"market-relay/src/logger"
	"market-relay/src/models"
	"market-relay/src/registry"

	"github.com/stretchr/testify/require"
)

type upstreamCall struct {
	action string
	market models.Market
	symbol string
}

type fakeUpstream struct {
	mu    sync.Mutex
	calls []upstreamCall
}

func (f *fakeUpstream) Subscribe(market models.Market, symbol string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, upstreamCall{"subscribe", market, symbol})
}

func (f *fakeUpstream) Unsubscribe(market models.Market, symbol string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, upstreamCall{"unsubscribe", market, symbol})
}

func (f *fakeUpstream) Status() []models.MUpstreamStatus {
	return []models.MUpstreamStatus{{Market: models.MarketStocks, Connected: true, State: models.StateAuthenticated}}
}

func (f *fakeUpstream) taken() []upstreamCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := f.calls
	f.calls = nil
	return out
}

func newTestService(max int) (*Service, *fakeUpstream) {
	up := &fakeUpstream{}
	log := logger.NewLoggerWithWriter(io.Discard, "DEBUG", "Relay")
	return NewService(registry.NewRegistry(max), up, log, nil), up
}

// -----------------------------------------------------------------------------

func TestSubscribeOpensUpstreamOnFirstDemandOnly(t *testing.T) {
	s, up := newTestService(100)
	s.Connect("a")
	s.Connect("b")

	got, err := s.Subscribe("a", []string{"aapl", "BTC-USD", "EUR/USD"}, "")
	require.NoError(t, err)
	require.Equal(t, []string{"AAPL", "BTC-USD", "EUR/USD"}, got)
	require.Equal(t, []upstreamCall{
		{"subscribe", models.MarketStocks, "AAPL"},
		{"subscribe", models.MarketCrypto, "BTC-USD"},
		{"subscribe", models.MarketForex, "EUR/USD"},
	}, up.taken())

	_, err = s.Subscribe("b", []string{"AAPL"}, "")
	require.NoError(t, err)
	require.Empty(t, up.taken())
	require.ElementsMatch(t, []string{"a", "b"}, s.Subscribers("AAPL"))
}

func TestSubscribeHonoursMarketTag(t *testing.T) {
	s, up := newTestService(100)
	s.Connect("a")

	_, err := s.Subscribe("a", []string{"ETHE"}, "crypto")
	require.NoError(t, err)
	require.Equal(t, []upstreamCall{{"subscribe", models.MarketCrypto, "ETHE"}}, up.taken())
	m, ok := s.MarketOf("ETHE")
	require.True(t, ok)
	require.Equal(t, models.MarketCrypto, m)

	_, err = s.Subscribe("a", []string{"AAPL"}, "bonds")
	require.Equal(t, http.StatusBadRequest, helpers.HTTPStatus(err))
	require.Empty(t, up.taken())
}

func TestSubscribeErrors(t *testing.T) {
	s, up := newTestService(2)

	_, err := s.Subscribe("ghost", []string{"AAPL"}, "")
	require.Equal(t, http.StatusNotFound, helpers.HTTPStatus(err))
	require.ErrorIs(t, err, registry.ErrUnknownClient)

	s.Connect("a")
	_, err = s.Subscribe("a", []string{"AAPL", "MSFT", "TSLA"}, "")
	require.Equal(t, http.StatusTooManyRequests, helpers.HTTPStatus(err))
	require.ErrorIs(t, err, registry.ErrLimitExceeded)
	require.Empty(t, s.Registry.Symbols("a"))
	require.Empty(t, up.taken())
}

func TestUnsubscribeReleasesOnLastClient(t *testing.T) {
	s, up := newTestService(100)
	s.Connect("a")
	s.Connect("b")
	_, _ = s.Subscribe("a", []string{"ETHE"}, "crypto")
	_, _ = s.Subscribe("b", []string{"ETHE"}, "")
	up.taken()

	require.Equal(t, []string{"ETHE"}, s.Unsubscribe("a", []string{"ethe"}))
	require.Empty(t, up.taken())

	require.Equal(t, []string{"ETHE"}, s.Unsubscribe("b", []string{"ETHE"}))
	// released on the market it was opened on, not the classified one
	require.Equal(t, []upstreamCall{{"unsubscribe", models.MarketCrypto, "ETHE"}}, up.taken())

	// unknown clients and symbols are echoed back, never an error
	require.Equal(t, []string{"AAPL"}, s.Unsubscribe("ghost", []string{" aapl ", "AAPL"}))
	require.Equal(t, []string{}, s.Unsubscribe("a", nil))
}

func TestDisconnectReleasesEverything(t *testing.T) {
	s, up := newTestService(100)
	s.Connect("a")
	_, _ = s.Subscribe("a", []string{"AAPL", "MSFT"}, "")
	up.taken()

	s.Disconnect("a")
	require.ElementsMatch(t, []upstreamCall{
		{"unsubscribe", models.MarketStocks, "AAPL"},
		{"unsubscribe", models.MarketStocks, "MSFT"},
	}, up.taken())
	require.Equal(t, 0, s.ClientCount())

	// a fresh session never inherits the old set
	s.Connect("a")
	require.Empty(t, s.Registry.Symbols("a"))
	require.Len(t, s.UpstreamStatus(), 1)
}
