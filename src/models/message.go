package models

import "encoding/json"

// MNormalizedMessage is the envelope pushed to every subscribed client.
type MNormalizedMessage struct {
	Timestamp int64           `json:"timestamp"` // arrival time, ms since epoch
	Market    Market          `json:"market"`
	Channel   Channel         `json:"channel"`
	Symbol    string          `json:"symbol"`
	Data      json.RawMessage `json:"data"`
}

// MWelcome is the first frame a client receives; it carries the id used on the control API.
type MWelcome struct {
	Type     string `json:"type"` // "welcome"
	ClientID string `json:"clientId"`
}
