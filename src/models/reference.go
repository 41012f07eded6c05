package models

// MTicker is a reference-data row returned by the tickers endpoint.
type MTicker struct {
	Ticker          string `json:"ticker"`
	Name            string `json:"name"`
	Market          string `json:"market"`
	Locale          string `json:"locale,omitempty"`
	PrimaryExchange string `json:"primary_exchange,omitempty"`
	Type            string `json:"type,omitempty"`
	Active          bool   `json:"active"`
	CurrencyName    string `json:"currency_name,omitempty"`
}

// MOptionsContract is a reference-data row returned by the options contracts endpoint.
type MOptionsContract struct {
	Ticker            string  `json:"ticker"`
	UnderlyingTicker  string  `json:"underlying_ticker"`
	ContractType      string  `json:"contract_type"`
	ExerciseStyle     string  `json:"exercise_style,omitempty"`
	ExpirationDate    string  `json:"expiration_date"`
	StrikePrice       float64 `json:"strike_price"`
	SharesPerContract float64 `json:"shares_per_contract,omitempty"`
}

// MTickerQuery holds the validated parameters of a tickers lookup.
type MTickerQuery struct {
	Market Market
	Search string
	Limit  int
}

// MContractsQuery holds the validated parameters of an options contracts lookup.
type MContractsQuery struct {
	Underlying string
	ExpFrom    string // YYYY-MM-DD, optional
	ExpTo      string // YYYY-MM-DD, optional
	Limit      int
}
