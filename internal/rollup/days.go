package rollup

import (
	"sort"
	"strconv"

	"github.com/roach88/gigledger/internal/ledger"
)

// DailyTotals groups shifts by date, summing grand totals, trips and
// distance. The result is sorted by date. Shifts with an invalid date are
// skipped.
func DailyTotals(shifts []ledger.Shift) []ledger.DailyRollup {
	byDate := make(map[string]*ledger.DailyRollup)
	for _, s := range shifts {
		d, err := ledger.ParseDate(s.Date)
		if err != nil {
			continue
		}

		day, ok := byDate[s.Date]
		if !ok {
			day = &ledger.DailyRollup{Date: s.Date, Day: ledger.WeekdayName(d)}
			byDate[s.Date] = day
		}
		day.Shifts++
		day.Trips += s.Totals.Trips
		day.Distance = day.Distance.Add(s.Totals.Distance)
		day.Total = day.Total.Add(s.Totals.GrandTotal)
	}

	out := make([]ledger.DailyRollup, 0, len(byDate))
	for _, d := range byDate {
		out = append(out, *d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date < out[j].Date })
	return out
}

// WeeklyTotals groups daily rollups into Monday-start weeks.
func WeeklyTotals(days []ledger.DailyRollup) []ledger.WeeklyRollup {
	byWeek := make(map[string]*ledger.WeeklyRollup)
	for _, d := range days {
		t, err := ledger.ParseDate(d.Date)
		if err != nil {
			continue
		}

		begin := ledger.StartOfWeek(t)
		key := ledger.FormatDate(begin)
		w, ok := byWeek[key]
		if !ok {
			w = &ledger.WeeklyRollup{Begin: key, End: ledger.FormatDate(begin.AddDate(0, 0, 6))}
			byWeek[key] = w
		}
		w.Days++
		w.Trips += d.Trips
		w.Total = w.Total.Add(d.Total)
	}

	out := make([]ledger.WeeklyRollup, 0, len(byWeek))
	for _, w := range byWeek {
		out = append(out, *w)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Begin < out[j].Begin })
	return out
}

// YearlyTotals groups daily rollups by calendar year.
func YearlyTotals(days []ledger.DailyRollup) []ledger.YearlyRollup {
	byYear := make(map[int]*ledger.YearlyRollup)
	for _, d := range days {
		t, err := ledger.ParseDate(d.Date)
		if err != nil {
			continue
		}

		y, ok := byYear[t.Year()]
		if !ok {
			y = &ledger.YearlyRollup{Year: t.Year()}
			byYear[t.Year()] = y
		}
		y.Days++
		y.Trips += d.Trips
		y.Total = y.Total.Add(d.Total)
	}

	out := make([]ledger.YearlyRollup, 0, len(byYear))
	for _, y := range byYear {
		out = append(out, *y)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Year < out[j].Year })
	return out
}

func yearKey(y ledger.YearlyRollup) string {
	return strconv.Itoa(y.Year)
}
