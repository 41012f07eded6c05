package interfaces

import "market-relay/src/models"

// -----------------------------------------------------------------------------
// IUpstream is the provider side of the relay: one connection per market.
// -----------------------------------------------------------------------------

type IUpstream interface {

	// Subscribe makes sure the provider streams every channel of symbol on market.
	Subscribe(market models.Market, symbol string)

	// -----------------------------------------------------------------------------

	// Unsubscribe releases the provider channels of symbol on market.
	Unsubscribe(market models.Market, symbol string)

	// -----------------------------------------------------------------------------

	// Status reports the state of every market connection opened so far.
	Status() []models.MUpstreamStatus
}
