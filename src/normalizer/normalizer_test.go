package normalizer

import (
	"bytes"
	"testing"
	"time"

	"market-relay/src/logger"
	"market-relay/src/metrics"
	"market-relay/src/models"

	"github.com/stretchr/testify/require"
)

func newTestNormalizer(t *testing.T) (*Normalizer, *bytes.Buffer) {
	t.Helper()
	var buf bytes.Buffer
	n := NewNormalizer(logger.NewLoggerWithWriter(&buf, "DEBUG", "Normalizer"), metrics.NewMetrics())
	n.now = func() time.Time { return time.UnixMilli(1_700_000_000_123) }
	return n, &buf
}

func TestNormalizeStockTrade(t *testing.T) {
	n, _ := newTestNormalizer(t)

	msgs := n.Normalize(models.MarketStocks, []byte(`[{"ev":"T","sym":"AAPL","p":189.2,"s":100}]`))

	require.Len(t, msgs, 1)
	m := msgs[0]
	require.Equal(t, int64(1_700_000_000_123), m.Timestamp)
	require.Equal(t, models.MarketStocks, m.Market)
	require.Equal(t, models.ChannelTrade, m.Channel)
	require.Equal(t, "AAPL", m.Symbol)
	require.JSONEq(t, `{"ev":"T","sym":"AAPL","p":189.2,"s":100}`, string(m.Data))
}

func TestNormalizeChannelsAndSymbols(t *testing.T) {
	n, _ := newTestNormalizer(t)

	frame := `[
		{"ev":"XQ","pair":"BTC-USD","bp":1},
		{"ev":"C","p":"EUR/USD","a":1.1},
		{"ev":"CAS","pair":"EUR/USD"},
		{"ev":"XAS","pair":"ETH-USD"},
		{"ev":"LULD","sym":"TSLA"}
	]`
	msgs := n.Normalize(models.MarketCrypto, []byte(frame))

	require.Len(t, msgs, 5)
	require.Equal(t, models.ChannelQuote, msgs[0].Channel)
	require.Equal(t, "BTC-USD", msgs[0].Symbol)
	require.Equal(t, models.ChannelQuote, msgs[1].Channel)
	require.Equal(t, "EUR/USD", msgs[1].Symbol)
	require.Equal(t, models.ChannelAgg1s, msgs[2].Channel)
	require.Equal(t, models.ChannelAgg1s, msgs[3].Channel)
	require.Equal(t, models.ChannelUnknown, msgs[4].Channel)
	for _, m := range msgs {
		require.Equal(t, msgs[0].Timestamp, m.Timestamp)
	}
}

func TestNormalizeSkipsIncompleteEvents(t *testing.T) {
	n, _ := newTestNormalizer(t)

	frame := `[{"sym":"AAPL"},{"ev":"T"},{"ev":"T","p":12.5},{"ev":"status","status":"connected"},{"ev":"A","sym":"MSFT"}]`
	msgs := n.Normalize(models.MarketStocks, []byte(frame))

	require.Len(t, msgs, 1)
	require.Equal(t, "MSFT", msgs[0].Symbol)
	require.Equal(t, models.ChannelAgg1s, msgs[0].Channel)
}

func TestNormalizeMalformedFrame(t *testing.T) {
	n, buf := newTestNormalizer(t)

	require.Empty(t, n.Normalize(models.MarketForex, []byte(`not json`)))
	require.Empty(t, n.Normalize(models.MarketForex, []byte(`{"ev":"T","sym":"X"}`)))
	require.Empty(t, n.Normalize(models.MarketForex, []byte(`[]`)))

	require.Contains(t, buf.String(), `"market":"forex"`)
	require.Equal(t, 2, bytes.Count(buf.Bytes(), []byte("malformed frame")))
}

func TestNormalizeWithoutObservers(t *testing.T) {
	n := NewNormalizer(nil, nil)
	require.Empty(t, n.Normalize(models.MarketStocks, []byte(`{`)))
}

type recordingBroadcaster struct {
	got []models.MNormalizedMessage
}

func (r *recordingBroadcaster) Broadcast(msg models.MNormalizedMessage) {
	r.got = append(r.got, msg)
}

func TestForwardBroadcastsInFrameOrder(t *testing.T) {
	n, _ := newTestNormalizer(t)
	out := &recordingBroadcaster{}

	sent := n.Forward(out, models.MarketCrypto, []byte(`[{"ev":"XT","pair":"BTC-USD"},{"ev":"status"},{"ev":"XQ","pair":"ETH-USD"}]`))
	require.Equal(t, 2, sent)
	require.Len(t, out.got, 2)
	require.Equal(t, "BTC-USD", out.got[0].Symbol)
	require.Equal(t, models.ChannelQuote, out.got[1].Channel)

	require.Equal(t, 0, n.Forward(out, models.MarketCrypto, []byte(`not json`)))
	require.Len(t, out.got, 2)
}
