package aggregate

import (
	"strings"

	"github.com/roach88/gigledger/internal/ledger"
)

// Lookup finds an existing entity by normalized natural key.
type Lookup func(naturalKey string) (Entity, bool)

// NoExisting is a Lookup that finds nothing.
func NoExisting(string) (Entity, bool) { return Entity{}, false }

// Merger folds facts into entities of one aggregate collection.
type Merger struct {
	policy Policy
	newID  func() string
}

// NewMerger creates a merger for c. newID assigns identities to entities
// seen for the first time.
func NewMerger(c ledger.Collection, newID func() string) (*Merger, error) {
	p, err := PolicyFor(c)
	if err != nil {
		return nil, err
	}
	return &Merger{policy: p, newID: newID}, nil
}

// Merge folds incoming into the entities found by existing and returns every
// entity touched, in order of first appearance.
//
// A matching entity keeps its LocalID and display key; accumulators are
// summed, notes are appended unless an equal {date, text} is present, and
// refs are appended unless an equal normalized ref is present. Facts with
// the same key in one batch fold into the same entity. Facts with a blank
// key are ignored. A fact without a visit count adds one visit.
func (m *Merger) Merge(incoming []Fact, existing Lookup) []Entity {
	if existing == nil {
		existing = NoExisting
	}

	out := []Entity{}
	index := make(map[string]int)
	for _, f := range incoming {
		nk := m.policy.Key(f.Key)
		if nk == "" {
			continue
		}

		i, ok := index[nk]
		if !ok {
			e, found := existing(nk)
			if !found {
				e = Entity{LocalID: m.newID(), Key: strings.TrimSpace(f.Key)}
			}
			e.NaturalKey = nk
			out = append(out, e)
			i = len(out) - 1
			index[nk] = i
		}
		if f.Visits == 0 && !f.fromEntity {
			f.Visits = 1
		}
		out[i] = m.absorb(out[i], f)
	}
	return out
}

func (m *Merger) absorb(e Entity, f Fact) Entity {
	e.Visits += f.Visits
	e.Trips += f.Trips
	e.Distance = e.Distance.Add(f.Distance)
	e.Pay = e.Pay.Add(f.Pay)
	e.Tip = e.Tip.Add(f.Tip)
	e.Bonus = e.Bonus.Add(f.Bonus)
	e.Cash = e.Cash.Add(f.Cash)
	e.Total = e.Total.Add(f.Total)

	first := f.FirstDate
	if first == "" {
		first = f.Date
	}
	if first != "" && (e.FirstDate == "" || first < e.FirstDate) {
		e.FirstDate = first
	}
	if f.Date > e.LastDate {
		e.LastDate = f.Date
	}

	for _, n := range f.Notes {
		e.Notes = addNote(e.Notes, n)
	}
	for _, r := range f.Refs {
		e.Refs = m.addRef(e.Refs, r)
	}
	return e
}

func addNote(notes []ledger.Note, n ledger.Note) []ledger.Note {
	if strings.TrimSpace(n.Text) == "" {
		return notes
	}
	for _, have := range notes {
		if have == n {
			return notes
		}
	}
	return append(notes, n)
}

func (m *Merger) addRef(refs []string, ref string) []string {
	nr := m.policy.Ref(ref)
	if nr == "" {
		return refs
	}
	for _, have := range refs {
		if m.policy.Ref(have) == nr {
			return refs
		}
	}
	return append(refs, strings.TrimSpace(ref))
}
