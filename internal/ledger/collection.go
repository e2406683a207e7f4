package ledger

import "fmt"

// Collection names one table of the local store and one sheet of the
// remote store.
type Collection string

const (
	Trips    Collection = "trips"
	Shifts   Collection = "shifts"
	Expenses Collection = "expenses"

	Addresses Collection = "addresses"
	Names     Collection = "names"
	Places    Collection = "places"
	Regions   Collection = "regions"
	Services  Collection = "services"
	Types     Collection = "types"

	Daily    Collection = "daily"
	Weekdays Collection = "weekdays"
	Weekly   Collection = "weekly"
	Yearly   Collection = "yearly"
)

// Kind groups collections by how the engine treats them.
type Kind int

const (
	// KindSyncable collections carry a lifecycle envelope and are committed
	// to the remote store row by row.
	KindSyncable Kind = iota + 1
	// KindAggregate collections hold natural-key entities built by merging.
	KindAggregate
	// KindRollup collections hold derived totals keyed by date or period.
	KindRollup
)

// SyncableCollections lists collections in commit order. Shifts go first
// so a trip never reaches the remote store before its shift.
var SyncableCollections = []Collection{Shifts, Trips, Expenses}

// AggregateCollections lists natural-key reference collections.
var AggregateCollections = []Collection{Addresses, Names, Places, Regions, Services, Types}

// RollupCollections lists derived rollup collections.
var RollupCollections = []Collection{Daily, Weekdays, Weekly, Yearly}

// Kind reports how the engine treats c. Unknown collections return 0.
func (c Collection) Kind() Kind {
	for _, s := range SyncableCollections {
		if s == c {
			return KindSyncable
		}
	}
	for _, a := range AggregateCollections {
		if a == c {
			return KindAggregate
		}
	}
	for _, r := range RollupCollections {
		if r == c {
			return KindRollup
		}
	}
	return 0
}

// Valid reports whether c is a known collection.
func (c Collection) Valid() bool {
	return c.Kind() != 0
}

// ParseCollection converts a user-supplied name into a Collection.
func ParseCollection(name string) (Collection, error) {
	c := Collection(name)
	if !c.Valid() {
		return "", fmt.Errorf("unknown collection %q", name)
	}
	return c, nil
}
