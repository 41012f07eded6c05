package models

// -----------------------------------------------------------------------------
// Control API payloads
// -----------------------------------------------------------------------------

type MSubscribeRequest struct {
	Symbols  []string `json:"symbols" binding:"required"`
	ClientID string   `json:"clientId" binding:"required"`
	Market   string   `json:"market,omitempty"`
}

type MSubscribeResponse struct {
	Subscribed []string `json:"subscribed"`
}

type MUnsubscribeResponse struct {
	Unsubscribed []string `json:"unsubscribed"`
}

type MErrorResponse struct {
	Error string `json:"error"`
}

// -----------------------------------------------------------------------------
// Health
// -----------------------------------------------------------------------------

type MUpstreamStatus struct {
	Market    Market    `json:"market"`
	Connected bool      `json:"connected"`
	State     ConnState `json:"state"`
	LastError string    `json:"lastError,omitempty"`
}

type MConnections struct {
	Clients int               `json:"clients"`
	Polygon []MUpstreamStatus `json:"polygon"`
}

type MSession struct {
	StocksOpen bool `json:"stocks_open"`
	ForexOpen  bool `json:"forex_open"`
}

type MHealth struct {
	Status      string       `json:"status"`
	Timestamp   int64        `json:"timestamp"`
	Connections MConnections `json:"connections"`
	Session     MSession     `json:"session"`
}
