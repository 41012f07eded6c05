package upstream

import (
	"regexp"
	"strings"

	"market-relay/src/models"
)

var (
	cryptoPair = regexp.MustCompile(`^[A-Z0-9]+-USDT?$`)
	forexPair  = regexp.MustCompile(`^[A-Z]{3}/[A-Z]{3}$`)
)

// channelPrefixes lists the provider channels opened for every symbol of a market.
var channelPrefixes = map[models.Market][]string{
	models.MarketStocks:  {"T.", "Q.", "A."},
	models.MarketOptions: {"T.", "Q.", "A."},
	models.MarketCrypto:  {"XT.", "XQ.", "XAS."},
	models.MarketForex:   {"C.", "CAS."},
}

// -----------------------------------------------------------------------------

// Classify infers the market of a symbol from the provider's own ticker
// conventions. It is only used when the client did not tag the market.
func Classify(symbol string) models.Market {
	s := strings.ToUpper(strings.TrimSpace(symbol))
	switch {
	case strings.HasPrefix(s, "X:"), cryptoPair.MatchString(s):
		return models.MarketCrypto
	case strings.HasPrefix(s, "C:"), forexPair.MatchString(s):
		return models.MarketForex
	case strings.HasPrefix(s, "O:"):
		return models.MarketOptions
	default:
		return models.MarketStocks
	}
}

// -----------------------------------------------------------------------------

// ChannelsFor returns the provider channel codes for symbol on market, e.g. T.AAPL.
func ChannelsFor(market models.Market, symbol string) []string {
	prefixes := channelPrefixes[market]
	channels := make([]string, 0, len(prefixes))
	for _, p := range prefixes {
		channels = append(channels, p+symbol)
	}
	return channels
}
