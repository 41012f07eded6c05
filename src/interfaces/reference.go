package interfaces

import (
	"context"

	"market-relay/src/models"
)

// -----------------------------------------------------------------------------
// IReferenceData serves ticker and options contract lookups.
// -----------------------------------------------------------------------------

type IReferenceData interface {
	ListTickers(ctx context.Context, q models.MTickerQuery) ([]models.MTicker, error)
	ListOptionsContracts(ctx context.Context, q models.MContractsQuery) ([]models.MOptionsContract, error)
}
