package models

import (
	"fmt"
	"strings"
)

// Market is one of the provider's asset-class feeds.
type Market string

const (
	MarketStocks  Market = "stocks"
	MarketOptions Market = "options"
	MarketCrypto  Market = "crypto"
	MarketForex   Market = "forex"
)

// AllMarkets lists the markets in a stable order.
var AllMarkets = []Market{MarketStocks, MarketOptions, MarketCrypto, MarketForex}

// -----------------------------------------------------------------------------

// ParseMarket validates a client supplied market tag.
func ParseMarket(s string) (Market, error) {
	switch Market(strings.ToLower(strings.TrimSpace(s))) {
	case MarketStocks:
		return MarketStocks, nil
	case MarketOptions:
		return MarketOptions, nil
	case MarketCrypto:
		return MarketCrypto, nil
	case MarketForex, "fx":
		return MarketForex, nil
	}
	return "", fmt.Errorf("unknown market %q", s)
}

// -----------------------------------------------------------------------------

// Channel is the normalized category of an upstream event.
type Channel string

const (
	ChannelTrade   Channel = "trade"
	ChannelQuote   Channel = "quote"
	ChannelAgg1s   Channel = "agg1s"
	ChannelUnknown Channel = "unknown"
)

// -----------------------------------------------------------------------------

// ConnState is the lifecycle state of an upstream connection.
type ConnState string

const (
	StateConnecting    ConnState = "connecting"
	StateOpen          ConnState = "open"
	StateAuthenticated ConnState = "authenticated"
	StateClosed        ConnState = "closed"
)

// Live reports whether control frames can be written in this state.
func (s ConnState) Live() bool {
	return s == StateOpen || s == StateAuthenticated
}
