package normalizer

import (
	"time"

	"market-relay/src/interfaces"
	"market-relay/src/logger"
	"market-relay/src/metrics"
	"market-relay/src/models"

	"github.com/goccy/go-json"
)

// eventChannels maps provider event codes to the normalized channel.
var eventChannels = map[string]models.Channel{
	"T":   models.ChannelTrade,
	"XT":  models.ChannelTrade,
	"Q":   models.ChannelQuote,
	"XQ":  models.ChannelQuote,
	"C":   models.ChannelQuote,
	"A":   models.ChannelAgg1s,
	"XAS": models.ChannelAgg1s,
	"CAS": models.ChannelAgg1s,
}

// ChannelFor returns the normalized channel of a provider event code.
func ChannelFor(ev string) models.Channel {
	if ch, ok := eventChannels[ev]; ok {
		return ch
	}
	return models.ChannelUnknown
}

// -----------------------------------------------------------------------------

// Normalizer turns provider frames into relay envelopes.
type Normalizer struct {
	logger  *logger.Logger
	metrics *metrics.Metrics
	now     func() time.Time
}

func NewNormalizer(log *logger.Logger, m *metrics.Metrics) *Normalizer {
	return &Normalizer{logger: log, metrics: m, now: time.Now}
}

// -----------------------------------------------------------------------------

// Normalize parses one provider frame (a JSON array of events). Every event
// in the frame shares the arrival timestamp. Malformed frames yield nothing;
// events without an event code or symbol are skipped.
func (n *Normalizer) Normalize(market models.Market, frame []byte) []models.MNormalizedMessage {
	var events []json.RawMessage
	if err := json.Unmarshal(frame, &events); err != nil {
		n.metrics.RecordNormalizeError(market)
		if n.logger != nil {
			n.logger.With("market", market).With("error", err.Error()).Warning("Dropping malformed frame (%d bytes)", len(frame))
		}
		return nil
	}

	ts := n.now().UnixMilli()
	out := make([]models.MNormalizedMessage, 0, len(events))
	for _, ev := range events {
		var fields map[string]json.RawMessage
		if err := json.Unmarshal(ev, &fields); err != nil {
			continue
		}
		code, ok := stringField(fields, "ev")
		if !ok || code == "" {
			continue
		}
		symbol := symbolOf(fields)
		if symbol == "" {
			continue
		}
		out = append(out, models.MNormalizedMessage{
			Timestamp: ts,
			Market:    market,
			Channel:   ChannelFor(code),
			Symbol:    symbol,
			Data:      []byte(ev),
		})
	}
	return out
}

// -----------------------------------------------------------------------------

// Forward normalizes a frame and hands every resulting message to out, in
// frame order. It has the shape of an upstream frame handler.
func (n *Normalizer) Forward(out interfaces.IBroadcaster, market models.Market, frame []byte) int {
	msgs := n.Normalize(market, frame)
	for _, msg := range msgs {
		out.Broadcast(msg)
	}
	return len(msgs)
}

// -----------------------------------------------------------------------------

// symbolOf prefers sym, then pair, then p when p is a string (forex quotes).
func symbolOf(fields map[string]json.RawMessage) string {
	for _, key := range []string{"sym", "pair", "p"} {
		if s, ok := stringField(fields, key); ok && s != "" {
			return s
		}
	}
	return ""
}

func stringField(fields map[string]json.RawMessage, key string) (string, bool) {
	raw, ok := fields[key]
	if !ok {
		return "", false
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", false
	}
	return s, true
}
