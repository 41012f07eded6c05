package metrics

import (
	"testing"

	"market-relay/src/models"

	"github.com/stretchr/testify/require"
)

// value reads a single sample from the registry; labels are name/value pairs.
func value(t *testing.T, m *Metrics, name string, labels ...string) float64 {
	t.Helper()
	families, err := m.Registry.Gather()
	require.NoError(t, err)
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
	next:
		for _, metric := range mf.GetMetric() {
			for i := 0; i+1 < len(labels); i += 2 {
				matched := false
				for _, lp := range metric.GetLabel() {
					if lp.GetName() == labels[i] && lp.GetValue() == labels[i+1] {
						matched = true
					}
				}
				if !matched {
					continue next
				}
			}
			if c := metric.GetCounter(); c != nil {
				return c.GetValue()
			}
			return metric.GetGauge().GetValue()
		}
	}
	t.Fatalf("metric %s%v not found", name, labels)
	return 0
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	require.NotPanics(t, func() {
		m.RecordUpstreamFrame(models.MarketStocks)
		m.RecordNormalizeError(models.MarketCrypto)
		m.SetUpstreamState(models.MarketForex, models.StateAuthenticated)
		m.RecordClientDrop("disconnect")
		m.RecordCacheLookup(true)
	})
}

func TestMetricsRecord(t *testing.T) {
	m := NewMetrics()

	m.RecordNormalizeError(models.MarketStocks)
	m.RecordNormalizeError(models.MarketStocks)
	m.SetUpstreamState(models.MarketCrypto, models.StateAuthenticated)
	m.SetUpstreamState(models.MarketForex, models.StateClosed)
	m.RecordCacheLookup(false)
	m.RecordDelivered(3)

	require.Equal(t, 2.0, value(t, m, "relay_normalize_errors_total", "market", "stocks"))
	require.Equal(t, 1.0, value(t, m, "relay_upstream_authenticated", "market", "crypto"))
	require.Equal(t, 0.0, value(t, m, "relay_upstream_authenticated", "market", "forex"))
	require.Equal(t, 1.0, value(t, m, "relay_reference_cache_lookups_total", "result", "miss"))
	require.Equal(t, 3.0, value(t, m, "relay_messages_delivered_total"))
}
