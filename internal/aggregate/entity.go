package aggregate

import (
	"github.com/shopspring/decimal"

	"github.com/roach88/gigledger/internal/ledger"
)

// Entity is a reference record addressed by a natural key.
type Entity struct {
	LocalID    string `json:"local_id"`
	Key        string `json:"key"`
	NaturalKey string `json:"natural_key"`

	Visits   int             `json:"visits"`
	Trips    int             `json:"trips"`
	Distance decimal.Decimal `json:"distance"`
	Pay      decimal.Decimal `json:"pay"`
	Tip      decimal.Decimal `json:"tip"`
	Bonus    decimal.Decimal `json:"bonus"`
	Cash     decimal.Decimal `json:"cash"`
	Total    decimal.Decimal `json:"total"`

	FirstDate string `json:"first_date,omitempty"`
	LastDate  string `json:"last_date,omitempty"`

	Notes []ledger.Note `json:"notes,omitempty"`
	Refs  []string      `json:"refs,omitempty"`
}

// Fact is one externally-sourced observation of a natural key: a trip to
// an address, or a row of a remote reference sheet. A fact with no Visits
// counts as one visit when merged.
type Fact struct {
	Key  string
	Date string

	// FirstDate is the earliest date the fact covers; Date when empty.
	FirstDate string

	Visits   int
	Trips    int
	Distance decimal.Decimal
	Pay      decimal.Decimal
	Tip      decimal.Decimal
	Bonus    decimal.Decimal
	Cash     decimal.Decimal
	Total    decimal.Decimal

	Notes []ledger.Note
	Refs  []string

	// fromEntity marks a fact built from a stored entity row, whose visit
	// count is taken as is, zero included.
	fromEntity bool
}

// FactFromEntity turns a remote reference row into a fact so it can be
// merged into the local entity with the same key.
func FactFromEntity(e Entity) Fact {
	return Fact{
		Key:       e.Key,
		Date:      e.LastDate,
		FirstDate: e.FirstDate,
		Visits:    e.Visits,
		Trips:     e.Trips,
		Distance:  e.Distance,
		Pay:       e.Pay,
		Tip:       e.Tip,
		Bonus:     e.Bonus,
		Cash:      e.Cash,
		Total:     e.Total,
		Notes:     e.Notes,
		Refs:      e.Refs,

		fromEntity: true,
	}
}
