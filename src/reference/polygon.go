package reference

import (
	"context"
	"net/http"
	"time"

	"market-relay/src/helpers"
	"market-relay/src/logger"
	"market-relay/src/models"

	polygonrest "github.com/polygon-io/client-go/rest"
	rmodels "github.com/polygon-io/client-go/rest/models"
)

const (
	DefaultLimit = 100
	MaxLimit     = 1000

	maxRetries = 3
	retryDelay = 500 * time.Millisecond
)

// PolygonSource reads reference data from the provider's REST API.
type PolygonSource struct {
	client *polygonrest.Client
	Logger *logger.Logger
}

// -----------------------------------------------------------------------------

func NewPolygonSource(apiKey string, httpClient *http.Client, log *logger.Logger) *PolygonSource {
	return &PolygonSource{
		client: polygonrest.NewWithClient(apiKey, httpClient),
		Logger: log,
	}
}

// -----------------------------------------------------------------------------

func clampLimit(limit int) int {
	if limit <= 0 {
		return DefaultLimit
	}
	return min(limit, MaxLimit)
}

func assetClass(market models.Market) rmodels.AssetClass {
	switch market {
	case models.MarketOptions:
		return rmodels.AssetOptions
	case models.MarketCrypto:
		return rmodels.AssetCrypto
	case models.MarketForex:
		return rmodels.AssetFx
	default:
		return rmodels.AssetStocks
	}
}

// -----------------------------------------------------------------------------

// ListTickers pages through active tickers until limit rows were collected.
func (p *PolygonSource) ListTickers(ctx context.Context, q models.MTickerQuery) ([]models.MTicker, error) {
	limit := clampLimit(q.Limit)
	params := rmodels.ListTickersParams{}.
		WithMarket(assetClass(q.Market)).
		WithActive(true).
		WithLimit(limit)
	if q.Search != "" {
		params = params.WithSearch(q.Search)
	}

	return helpers.RetryWithBackoff(ctx, p.Logger, "list tickers", maxRetries, retryDelay, func() ([]models.MTicker, error) {
		out := make([]models.MTicker, 0, limit)
		iter := p.client.ListTickers(ctx, params)
		for len(out) < limit && iter.Next() {
			t := iter.Item()
			out = append(out, models.MTicker{
				Ticker:          t.Ticker,
				Name:            t.Name,
				Market:          string(t.Market),
				Locale:          string(t.Locale),
				PrimaryExchange: t.PrimaryExchange,
				Type:            t.Type,
				Active:          t.Active,
				CurrencyName:    t.CurrencyName,
			})
		}
		return out, iter.Err()
	})
}

// -----------------------------------------------------------------------------

// ListOptionsContracts returns contracts on q.Underlying, optionally bounded by expiration.
func (p *PolygonSource) ListOptionsContracts(ctx context.Context, q models.MContractsQuery) ([]models.MOptionsContract, error) {
	limit := clampLimit(q.Limit)
	params := rmodels.ListOptionsContractsParams{}.
		WithUnderlyingTicker(rmodels.EQ, q.Underlying).
		WithLimit(limit)
	if q.ExpFrom != "" {
		from, err := time.Parse("2006-01-02", q.ExpFrom)
		if err != nil {
			return nil, helpers.NewValidationError("exp_from must be YYYY-MM-DD")
		}
		params = params.WithExpirationDate(rmodels.GTE, rmodels.Date(from))
	}
	if q.ExpTo != "" {
		to, err := time.Parse("2006-01-02", q.ExpTo)
		if err != nil {
			return nil, helpers.NewValidationError("exp_to must be YYYY-MM-DD")
		}
		params = params.WithExpirationDate(rmodels.LTE, rmodels.Date(to))
	}

	return helpers.RetryWithBackoff(ctx, p.Logger, "list options contracts", maxRetries, retryDelay, func() ([]models.MOptionsContract, error) {
		out := make([]models.MOptionsContract, 0, limit)
		iter := p.client.ListOptionsContracts(ctx, params)
		for len(out) < limit && iter.Next() {
			c := iter.Item()
			out = append(out, models.MOptionsContract{
				Ticker:            c.Ticker,
				UnderlyingTicker:  c.UnderlyingTicker,
				ContractType:      c.ContractType,
				ExerciseStyle:     c.ExerciseStyle,
				ExpirationDate:    time.Time(c.ExpirationDate).Format("2006-01-02"),
				StrikePrice:       c.StrikePrice,
				SharesPerContract: c.SharesPerContract,
			})
		}
		return out, iter.Err()
	})
}
