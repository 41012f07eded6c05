package utils

import (
	"sync"
	"time"

	"market-relay/src/models"

	"github.com/scmhub/calendar"
)

// TradingCalendar answers "is this market open now" for the relay's markets.
// Stocks and options follow the NYSE calendar; forex trades from Sunday 17:00
// to Friday 17:00 New York time; crypto never closes.
type TradingCalendar struct {
	Calendar *calendar.Calendar
	Fallback bool
	Timezone *time.Location
}

var (
	defaultCalendar     *TradingCalendar
	defaultCalendarOnce sync.Once
)

// -----------------------------------------------------------------------------

// GetCalendar returns the shared NYSE backed calendar. Loading the holiday
// tables is not free, so it is done once.
func GetCalendar() *TradingCalendar {
	defaultCalendarOnce.Do(func() {
		defaultCalendar = newTradingCalendar("xnys")
	})
	return defaultCalendar
}

func newTradingCalendar(mic string) *TradingCalendar {
	cal := calendar.GetCalendar(mic)
	if cal == nil {
		nyLoc, _ := time.LoadLocation("America/New_York")
		if nyLoc == nil {
			nyLoc = time.UTC // Worst case
		}
		return &TradingCalendar{Fallback: true, Timezone: nyLoc}
	}
	return &TradingCalendar{Calendar: cal, Fallback: false, Timezone: cal.Loc}
}

// -----------------------------------------------------------------------------

func (tc *TradingCalendar) IsTradingDay(date time.Time) bool {
	if tc.Timezone != nil {
		date = date.In(tc.Timezone)
	}

	if tc.Fallback {
		weekday := date.Weekday()
		return weekday != time.Saturday && weekday != time.Sunday
	}
	return tc.Calendar.IsBusinessDay(date)
}

// -----------------------------------------------------------------------------

// IsOpenOnMinute checks if the exchange is in its regular session at t.
func (tc *TradingCalendar) IsOpenOnMinute(t time.Time) bool {
	if tc.Timezone != nil {
		t = t.In(tc.Timezone)
	}

	if tc.Fallback {
		if !tc.IsTradingDay(t) {
			return false
		}
		hour := t.Hour()
		minute := t.Minute()

		// 9:30 - 16:00 NY Time
		return (hour > 9 || (hour == 9 && minute >= 30)) && hour < 16
	}

	return tc.Calendar.IsOpen(t)
}

// -----------------------------------------------------------------------------

// IsForexOpen reports whether the interbank forex week is running at t.
func (tc *TradingCalendar) IsForexOpen(t time.Time) bool {
	loc := tc.Timezone
	if loc == nil {
		loc = time.UTC
	}
	t = t.In(loc)

	switch t.Weekday() {
	case time.Saturday:
		return false
	case time.Sunday:
		return t.Hour() >= 17
	case time.Friday:
		return t.Hour() < 17
	default:
		return true
	}
}

// -----------------------------------------------------------------------------

// IsMarketOpen dispatches on market.
func (tc *TradingCalendar) IsMarketOpen(market models.Market, t time.Time) bool {
	switch market {
	case models.MarketStocks, models.MarketOptions:
		return tc.IsOpenOnMinute(t)
	case models.MarketForex:
		return tc.IsForexOpen(t)
	case models.MarketCrypto:
		return true
	default:
		return false
	}
}

// -----------------------------------------------------------------------------

// Session snapshots the open/closed state reported by the health endpoint.
func (tc *TradingCalendar) Session(t time.Time) models.MSession {
	return models.MSession{
		StocksOpen: tc.IsMarketOpen(models.MarketStocks, t),
		ForexOpen:  tc.IsMarketOpen(models.MarketForex, t),
	}
}
