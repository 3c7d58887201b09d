package markethours

import "time"

// NSE trading holidays for 2025 and 2026.
var nseHolidays = []time.Time{
	date(2025, time.February, 26),
	date(2025, time.March, 14),
	date(2025, time.March, 31),
	date(2025, time.April, 10),
	date(2025, time.April, 14),
	date(2025, time.April, 18),
	date(2025, time.May, 1),
	date(2025, time.August, 15),
	date(2025, time.August, 27),
	date(2025, time.October, 2),
	date(2025, time.October, 21),
	date(2025, time.October, 22),
	date(2025, time.November, 5),
	date(2025, time.December, 25),
	date(2026, time.January, 26),
	date(2026, time.March, 3),
	date(2026, time.March, 26),
	date(2026, time.March, 31),
	date(2026, time.April, 3),
	date(2026, time.April, 14),
	date(2026, time.May, 1),
	date(2026, time.May, 28),
	date(2026, time.June, 26),
	date(2026, time.September, 14),
	date(2026, time.October, 2),
	date(2026, time.October, 20),
	date(2026, time.November, 10),
	date(2026, time.November, 24),
	date(2026, time.December, 25),
}

var holidaySet = func() map[time.Time]bool {
	m := make(map[time.Time]bool, len(nseHolidays))
	for _, d := range nseHolidays {
		m[d] = true
	}
	return m
}()

func IsHoliday(t time.Time) bool {
	return holidaySet[SessionDate(t)]
}

func date(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 0, 0, 0, 0, IST)
}
