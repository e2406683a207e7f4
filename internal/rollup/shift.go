package rollup

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/roach88/gigledger/internal/ledger"
	"github.com/roach88/gigledger/internal/store"
)

// Child is a trip together with its lifecycle state.
type Child struct {
	Trip  ledger.Trip
	State store.LifecycleState
}

// minutesPerDay is added to a dropoff earlier than its pickup.
const minutesPerDay = 24 * 60

// Recompute returns shift with its derived totals rebuilt from the manual
// fields and children. Children marked deleted or excluded are ignored.
//
// With no counted trips, the time window and active time come from the
// manual fields. Otherwise start is the earliest pickup, finish the latest
// pickup or dropoff, and Active is the merged (overlap-free) active time
// when it is strictly less than the raw sum of trip active times, and blank
// otherwise.
func Recompute(shift ledger.Shift, children []Child) ledger.Shift {
	trips := counted(children)

	t := ledger.ShiftTotals{
		Trips:      shift.Trips + len(trips),
		Distance:   shift.Distance,
		Pay:        shift.Pay,
		Tips:       shift.Tip,
		Bonus:      shift.Bonus,
		Cash:       shift.Cash,
		GrandTotal: shift.Total,
		Start:      shift.Start,
		Finish:     shift.Finish,
		Time:       shift.Time,
		Active:     shift.Active,
	}
	for _, trip := range trips {
		t.Distance = t.Distance.Add(trip.Distance)
		t.Pay = t.Pay.Add(trip.Pay)
		t.Tips = t.Tips.Add(trip.Tip)
		t.Bonus = t.Bonus.Add(trip.Bonus)
		t.Cash = t.Cash.Add(trip.Cash)
		t.GrandTotal = t.GrandTotal.Add(trip.Total)
	}

	if len(trips) > 0 {
		applyWindow(&t, trips)
	}

	if secs := int64(time.Duration(t.Time) / time.Second); secs > 0 {
		t.AmountPerTime = t.GrandTotal.Mul(decimal.NewFromInt(3600)).DivRound(decimal.NewFromInt(secs), 2)
	}
	if t.Trips > 0 {
		t.AmountPerTrip = t.GrandTotal.DivRound(decimal.NewFromInt(int64(t.Trips)), 2)
	}
	if t.Distance.IsPositive() {
		t.AmountPerDistance = t.GrandTotal.DivRound(t.Distance, 2)
	}

	shift.Totals = t
	return shift
}

func counted(children []Child) []ledger.Trip {
	var trips []ledger.Trip
	for _, c := range children {
		if c.State == store.PendingDelete || c.Trip.Exclude {
			continue
		}
		trips = append(trips, c.Trip)
	}
	return trips
}

// applyWindow sets start, finish, time and active times from trips.
//
// Raw and merged active time are measured over the same trips: a trip with
// both times contributes its interval, and a trip with only a duration adds
// that duration to both as time off the timeline. Merged is therefore never
// more than raw, and equals it exactly when no two intervals overlap.
func applyWindow(t *ledger.ShiftTotals, trips []ledger.Trip) {
	start, finish := -1, -1
	var (
		intervals []Interval
		raw       int
		untimed   time.Duration
	)

	for _, trip := range trips {
		pickup, hasPickup := ledger.ClockMinutes(trip.PickupTime)
		dropoff, hasDropoff := ledger.ClockMinutes(trip.DropoffTime)
		if hasPickup && hasDropoff && dropoff < pickup {
			dropoff += minutesPerDay
		}

		if hasPickup {
			if start < 0 || pickup < start {
				start = pickup
			}
			if pickup > finish {
				finish = pickup
			}
		}
		if hasDropoff && dropoff > finish {
			finish = dropoff
		}

		switch {
		case hasPickup && hasDropoff:
			iv := Interval{Start: pickup, End: dropoff}
			intervals = append(intervals, iv)
			raw += iv.Len()
		case trip.Duration > 0:
			untimed += time.Duration(trip.Duration)
		}
	}

	if start >= 0 {
		t.Start = ledger.FormatClock(start)
	}
	if finish >= 0 {
		t.Finish = ledger.FormatClock(finish)
	}
	if start >= 0 && finish >= start {
		t.Time = ledger.Minutes(finish - start)
	}

	t.RawActive = ledger.Minutes(raw) + ledger.Duration(untimed)
	t.MergedActive = ledger.Minutes(MergedLength(intervals)) + ledger.Duration(untimed)
	if t.MergedActive < t.RawActive {
		t.Active = t.MergedActive
	} else {
		t.Active = 0
	}
}
