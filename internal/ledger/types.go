package ledger

import (
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"
)

// Indexed is implemented by payloads stored in syncable collections.
// The store copies these values into indexed columns so typed queries
// (by grouping key, by date range) never parse payload JSON.
type Indexed interface {
	IndexKey() string
	IndexDate() string
}

// DecodeIndexed decodes a syncable row into its payload type.
func DecodeIndexed(c Collection, raw json.RawMessage) (Indexed, error) {
	var (
		payload Indexed
		err     error
	)
	switch c {
	case Trips:
		var t Trip
		err = json.Unmarshal(raw, &t)
		payload = t
	case Shifts:
		var s Shift
		err = json.Unmarshal(raw, &s)
		payload = s
	case Expenses:
		var e Expense
		err = json.Unmarshal(raw, &e)
		payload = e
	default:
		return nil, fmt.Errorf("%s is not a syncable collection", c)
	}
	if err != nil {
		return nil, fmt.Errorf("decode %s row: %w", c, err)
	}
	return payload, nil
}

// Trip is a single delivery or ride. Trips are grouped under a shift by Key.
type Trip struct {
	Key          string          `json:"key"`
	Date         string          `json:"date"`
	Service      string          `json:"service"`
	Number       int             `json:"number"`
	Region       string          `json:"region,omitempty"`
	Place        string          `json:"place,omitempty"`
	Type         string          `json:"type,omitempty"`
	Name         string          `json:"name,omitempty"`
	StartAddress string          `json:"start_address,omitempty"`
	EndAddress   string          `json:"end_address,omitempty"`
	EndUnit      string          `json:"end_unit,omitempty"`
	PickupTime   string          `json:"pickup_time,omitempty"`
	DropoffTime  string          `json:"dropoff_time,omitempty"`
	Duration     Duration        `json:"duration"`
	Distance     decimal.Decimal `json:"distance"`
	Pay          decimal.Decimal `json:"pay"`
	Tip          decimal.Decimal `json:"tip"`
	Bonus        decimal.Decimal `json:"bonus"`
	Cash         decimal.Decimal `json:"cash"`
	Total        decimal.Decimal `json:"total"`
	Note         string          `json:"note,omitempty"`
	Exclude      bool            `json:"exclude,omitempty"`
}

func (t Trip) IndexKey() string  { return t.Key }
func (t Trip) IndexDate() string { return t.Date }

// WithTotal returns t with Total recomputed as pay + tip + bonus.
func (t Trip) WithTotal() Trip {
	t.Total = t.Pay.Add(t.Tip).Add(t.Bonus)
	return t
}

// Shift groups trips worked for one service in one session.
//
// The top-level numeric fields are entered manually (e.g. trips logged
// without detail). Totals holds the derived values and is always fully
// recomputed from the manual fields and the shift's current trips.
type Shift struct {
	Key     string `json:"key"`
	Date    string `json:"date"`
	Service string `json:"service"`
	Number  int    `json:"number"`
	Region  string `json:"region,omitempty"`

	Trips    int             `json:"trips"`
	Distance decimal.Decimal `json:"distance"`
	Pay      decimal.Decimal `json:"pay"`
	Tip      decimal.Decimal `json:"tip"`
	Bonus    decimal.Decimal `json:"bonus"`
	Cash     decimal.Decimal `json:"cash"`
	Total    decimal.Decimal `json:"total"`
	Start    string          `json:"start,omitempty"`
	Finish   string          `json:"finish,omitempty"`
	Time     Duration        `json:"time"`
	Active   Duration        `json:"active"`
	Note     string          `json:"note,omitempty"`

	Totals ShiftTotals `json:"totals"`
}

func (s Shift) IndexKey() string  { return s.Key }
func (s Shift) IndexDate() string { return s.Date }

// ShiftTotals are the derived fields of a shift.
type ShiftTotals struct {
	Trips      int             `json:"trips"`
	Distance   decimal.Decimal `json:"distance"`
	Pay        decimal.Decimal `json:"pay"`
	Tips       decimal.Decimal `json:"tips"`
	Bonus      decimal.Decimal `json:"bonus"`
	Cash       decimal.Decimal `json:"cash"`
	GrandTotal decimal.Decimal `json:"grand_total"`
	Start      string          `json:"start,omitempty"`
	Finish     string          `json:"finish,omitempty"`
	Time       Duration        `json:"time"`

	// RawActive is the naive sum of trip durations.
	RawActive Duration `json:"raw_active"`
	// MergedActive is the length of the union of trip intervals.
	MergedActive Duration `json:"merged_active"`
	// Active is MergedActive when trips overlap and blank otherwise.
	Active Duration `json:"active"`

	AmountPerTime     decimal.Decimal `json:"amount_per_time"`
	AmountPerTrip     decimal.Decimal `json:"amount_per_trip"`
	AmountPerDistance decimal.Decimal `json:"amount_per_distance"`
}

// Equal reports whether two totals are the same value. decimal.Decimal
// values are compared numerically, so "1.0" equals "1".
func (t ShiftTotals) Equal(o ShiftTotals) bool {
	return t.Trips == o.Trips &&
		t.Distance.Equal(o.Distance) &&
		t.Pay.Equal(o.Pay) &&
		t.Tips.Equal(o.Tips) &&
		t.Bonus.Equal(o.Bonus) &&
		t.Cash.Equal(o.Cash) &&
		t.GrandTotal.Equal(o.GrandTotal) &&
		t.Start == o.Start &&
		t.Finish == o.Finish &&
		t.Time == o.Time &&
		t.RawActive == o.RawActive &&
		t.MergedActive == o.MergedActive &&
		t.Active == o.Active &&
		t.AmountPerTime.Equal(o.AmountPerTime) &&
		t.AmountPerTrip.Equal(o.AmountPerTrip) &&
		t.AmountPerDistance.Equal(o.AmountPerDistance)
}

// Expense is an out-of-pocket cost (fuel, maintenance, ...).
type Expense struct {
	Date     string          `json:"date"`
	Name     string          `json:"name"`
	Category string          `json:"category,omitempty"`
	Amount   decimal.Decimal `json:"amount"`
	Note     string          `json:"note,omitempty"`
}

func (e Expense) IndexKey() string  { return e.Category }
func (e Expense) IndexDate() string { return e.Date }

// Note is a dated free-text remark attached to an aggregate entity.
type Note struct {
	Date string `json:"date"`
	Text string `json:"text"`
}
