// Package markethours describes the NSE cash session calendar.
package markethours

import "time"

// IST is Indian Standard Time (UTC+5:30).
var IST = time.FixedZone("IST", 5*3600+30*60)

const (
	OpenHour    = 9
	OpenMinute  = 15
	CloseHour   = 15
	CloseMinute = 30
)

// IsMarketOpen reports whether t falls within 09:15-15:30 IST on a trading day.
func IsMarketOpen(t time.Time) bool {
	ist := t.In(IST)
	if !IsTradingDay(ist) {
		return false
	}

	hm := ist.Hour()*60 + ist.Minute()
	return hm >= OpenHour*60+OpenMinute && hm < CloseHour*60+CloseMinute
}

func IsTradingDay(t time.Time) bool {
	ist := t.In(IST)
	wd := ist.Weekday()
	return wd != time.Saturday && wd != time.Sunday && !IsHoliday(ist)
}

// SessionDate returns IST midnight of the day t belongs to.
func SessionDate(t time.Time) time.Time {
	ist := t.In(IST)
	return time.Date(ist.Year(), ist.Month(), ist.Day(), 0, 0, 0, 0, IST)
}

func SameSession(a, b time.Time) bool {
	return SessionDate(a).Equal(SessionDate(b))
}
