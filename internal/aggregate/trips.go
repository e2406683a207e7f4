package aggregate

import (
	"sort"

	"github.com/shopspring/decimal"

	"github.com/roach88/gigledger/internal/ledger"
)

// FactsFromTrips derives one fact per trip for each aggregate collection
// the trip mentions. Excluded trips are skipped.
func FactsFromTrips(trips []ledger.Trip) map[ledger.Collection][]Fact {
	out := make(map[ledger.Collection][]Fact)
	add := func(c ledger.Collection, key string, t ledger.Trip, refs ...string) {
		if key == "" {
			return
		}
		f := tripFact(t)
		f.Key = key
		for _, r := range refs {
			if r != "" {
				f.Refs = append(f.Refs, r)
			}
		}
		out[c] = append(out[c], f)
	}

	for _, t := range trips {
		if t.Exclude {
			continue
		}
		add(ledger.Addresses, t.EndAddress, t, t.Name)
		add(ledger.Names, t.Name, t, t.EndAddress)
		add(ledger.Places, t.Place, t, t.StartAddress)
		add(ledger.Regions, t.Region, t)
		add(ledger.Services, t.Service, t)
		add(ledger.Types, t.Type, t)
	}
	return out
}

func tripFact(t ledger.Trip) Fact {
	f := Fact{
		Date:     t.Date,
		Visits:   1,
		Trips:    1,
		Distance: t.Distance,
		Pay:      t.Pay,
		Tip:      t.Tip,
		Bonus:    t.Bonus,
		Cash:     t.Cash,
		Total:    t.Total,
	}
	if t.Note != "" {
		f.Notes = []ledger.Note{{Date: t.Date, Text: t.Note}}
	}
	return f
}

// Link adds the cross-references and notes found in trips to entities of c
// without touching accumulators. Used after a full load, where the remote
// rows already carry the totals.
func Link(c ledger.Collection, entities []Entity, trips []ledger.Trip) ([]Entity, error) {
	m, err := NewMerger(c, func() string { return "" })
	if err != nil {
		return nil, err
	}

	facts := FactsFromTrips(trips)[c]
	byKey := make(map[string][]Fact)
	for _, f := range facts {
		nk := m.policy.Key(f.Key)
		byKey[nk] = append(byKey[nk], Fact{Notes: f.Notes, Refs: f.Refs})
	}

	out := make([]Entity, len(entities))
	for i, e := range entities {
		nk := e.NaturalKey
		if nk == "" {
			nk = m.policy.Key(e.Key)
			e.NaturalKey = nk
		}
		for _, f := range byKey[nk] {
			e = m.absorb(e, f)
		}
		out[i] = e
	}
	return out, nil
}

// Delivery is an {address, name} pair with the trips made to it.
type Delivery struct {
	Address  string          `json:"address"`
	Name     string          `json:"name"`
	Visits   int             `json:"visits"`
	Pay      decimal.Decimal `json:"pay"`
	Tip      decimal.Decimal `json:"tip"`
	Bonus    decimal.Decimal `json:"bonus"`
	Cash     decimal.Decimal `json:"cash"`
	Total    decimal.Decimal `json:"total"`
	Dates    []string        `json:"dates,omitempty"`
	Places   []string        `json:"places,omitempty"`
	Services []string        `json:"services,omitempty"`
	Units    []string        `json:"units,omitempty"`
	Notes    []ledger.Note   `json:"notes,omitempty"`
}

// Deliveries groups trips by {end address, name}. Trips with neither are
// skipped. The result is sorted by address then name.
func Deliveries(trips []ledger.Trip) []Delivery {
	type pair struct{ address, name string }

	byPair := make(map[pair]*Delivery)
	for _, t := range trips {
		if t.EndAddress == "" && t.Name == "" {
			continue
		}

		k := pair{NormalizeAddress(t.EndAddress), NormalizeName(t.Name)}
		d, ok := byPair[k]
		if !ok {
			d = &Delivery{Address: t.EndAddress, Name: t.Name}
			byPair[k] = d
		}

		d.Visits++
		d.Pay = d.Pay.Add(t.Pay)
		d.Tip = d.Tip.Add(t.Tip)
		d.Bonus = d.Bonus.Add(t.Bonus)
		d.Cash = d.Cash.Add(t.Cash)
		d.Total = d.Total.Add(t.Total)
		d.Dates = uniqueAppend(d.Dates, t.Date)
		d.Places = uniqueAppend(d.Places, t.Place)
		d.Services = uniqueAppend(d.Services, t.Service)
		d.Units = uniqueAppend(d.Units, t.EndUnit)
		if t.Note != "" {
			d.Notes = addNote(d.Notes, ledger.Note{Date: t.Date, Text: t.Note})
		}
	}

	out := make([]Delivery, 0, len(byPair))
	for _, d := range byPair {
		out = append(out, *d)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Address != out[j].Address {
			return out[i].Address < out[j].Address
		}
		return out[i].Name < out[j].Name
	})
	return out
}

func uniqueAppend(list []string, v string) []string {
	if v == "" {
		return list
	}
	for _, have := range list {
		if have == v {
			return list
		}
	}
	return append(list, v)
}
