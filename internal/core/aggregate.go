package core

import (
	"sort"
	"time"
)

// Total sums the tip amounts. Zero for an empty list.
func Total(tips []Tip) Money {
	var cents int64
	for _, t := range tips {
		cents += t.Amount.Cents
	}
	return Money{Cents: cents}
}

// GroupByDay partitions tips by business date for the list view. Days are
// ordered ascending by date, tips within a day ascending by entry time.
// Days without tips are simply absent; gap-filling belongs to BuildSeries.
func GroupByDay(tips []Tip) []Day {
	byDate := make(map[Date][]Tip)
	for _, t := range tips {
		byDate[t.BusinessDate] = append(byDate[t.BusinessDate], t)
	}

	days := make([]Day, 0, len(byDate))
	for date, dayTips := range byDate {
		sort.SliceStable(dayTips, func(i, j int) bool {
			return dayTips[i].CreatedAt.Before(dayTips[j].CreatedAt)
		})
		days = append(days, Day{Date: date, Tips: dayTips})
	}
	sort.Slice(days, func(i, j int) bool {
		return days[i].Date.Before(days[j].Date.Time)
	})
	return days
}

// BuildSeries merges tips into the gap-filled chart series for a granularity
// and anchor. Every canonical bucket appears, zero-valued when empty. A tip
// whose key falls outside the canonical set still gets a bucket of its own
// rather than being dropped.
func BuildSeries(tips []Tip, g Granularity, anchor Date) []Bucket {
	unit := g.Unit()
	amounts := make(map[int64]int64)

	canonical := BucketKeys(g, anchor)
	for _, key := range canonical {
		amounts[key.UnixNano()] = 0
	}
	for _, t := range tips {
		amounts[BucketKeyFor(g, t).UnixNano()] += t.Amount.Cents
	}

	series := make([]Bucket, 0, len(amounts))
	for nanos, cents := range amounts {
		series = append(series, Bucket{
			Timestamp: nanosToUTC(nanos),
			Amount:    Money{Cents: cents},
			Unit:      unit,
		})
	}
	sort.Slice(series, func(i, j int) bool {
		return series[i].Timestamp.Before(series[j].Timestamp)
	})
	return series
}

func nanosToUTC(nanos int64) time.Time {
	return time.Unix(0, nanos).UTC()
}

// Summarize builds the complete bundle a presentation layer consumes for one
// query: the grouped list, the grand total, and the chart series.
func Summarize(tips []Tip, g Granularity, anchor Date) Summary {
	return Summary{
		Days:   GroupByDay(tips),
		Total:  Total(tips),
		Series: BuildSeries(tips, g, anchor),
		Unit:   g.Unit(),
	}
}
