package core

import "time"

// RangeFor resolves the inclusive business-date range a granularity spans
// around an anchor date. Storage queries use these bounds directly.
func RangeFor(g Granularity, anchor Date) (start, end Date) {
	switch g {
	case Daily:
		return anchor, anchor
	case Weekly:
		start = WeekStart(anchor)
		return start, start.AddDays(6)
	case Monthly:
		start = NewDate(anchor.Year(), int(anchor.Month()), 1)
		// first of next month, minus one day
		return start, Date{Time: start.AddDate(0, 1, -1)}
	case Yearly:
		return NewDate(anchor.Year(), 1, 1), NewDate(anchor.Year(), 12, 31)
	default:
		return anchor, anchor
	}
}

// WeekStart returns the Sunday on or before the given date, so a week always
// runs Sunday through Saturday and contains its anchor. Month and year
// rollovers fall out of the calendar arithmetic.
func WeekStart(d Date) Date {
	return d.AddDays(-int(d.Weekday()))
}

// WeekDates enumerates the seven dates of the week containing d.
func WeekDates(d Date) []Date {
	start := WeekStart(d)
	dates := make([]Date, 7)
	for i := range dates {
		dates[i] = start.AddDays(i)
	}
	return dates
}

// MonthDates enumerates every date of d's month. Length follows the real
// calendar: 28-31 days, leap years included.
func MonthDates(d Date) []Date {
	first := NewDate(d.Year(), int(d.Month()), 1)
	var dates []Date
	for cur := first; cur.Month() == d.Month(); cur = cur.AddDays(1) {
		dates = append(dates, cur)
	}
	return dates
}

// BucketKeys produces the complete ordered set of canonical bucket
// timestamps for a granularity and anchor, including buckets that will stay
// empty. Day granularity buckets by hour, week and month by calendar day,
// year by month.
func BucketKeys(g Granularity, anchor Date) []time.Time {
	switch g {
	case Daily:
		keys := make([]time.Time, 24)
		for hour := range keys {
			keys[hour] = anchor.Add(time.Duration(hour) * time.Hour)
		}
		return keys
	case Weekly:
		return datesToKeys(WeekDates(anchor))
	case Monthly:
		return datesToKeys(MonthDates(anchor))
	case Yearly:
		keys := make([]time.Time, 12)
		for i := range keys {
			keys[i] = NewDate(anchor.Year(), i+1, 1).Time
		}
		return keys
	default:
		return nil
	}
}

// BucketKeyFor maps a single tip onto its bucket timestamp: hour-truncated
// entry time for day granularity, the business date for week/month, and the
// month start for year.
func BucketKeyFor(g Granularity, tip Tip) time.Time {
	switch g {
	case Daily:
		return tip.CreatedAt.UTC().Truncate(time.Hour)
	case Yearly:
		return NewDate(tip.BusinessDate.Year(), int(tip.BusinessDate.Month()), 1).Time
	default:
		return tip.BusinessDate.Time
	}
}

func datesToKeys(dates []Date) []time.Time {
	keys := make([]time.Time, len(dates))
	for i, d := range dates {
		keys[i] = d.Time
	}
	return keys
}
