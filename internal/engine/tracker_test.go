package engine

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/gigledger/internal/ledger"
	"github.com/roach88/gigledger/internal/store"
)

func TestTracker_CreateAppendsPendingRecord(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	a, err := f.tracker.Create(ctx, ledger.Expenses, expense("a"))
	require.NoError(t, err)
	b, err := f.tracker.Create(ctx, ledger.Expenses, expense("b"))
	require.NoError(t, err)

	assert.Equal(t, "rec-0001", a.LocalID)
	assert.Equal(t, int64(1), a.Seq)
	assert.Equal(t, int64(2), b.Seq)
	assert.Equal(t, store.PendingCreate, a.State)
	assert.Equal(t, "fuel", a.Key)
	assert.Equal(t, "2026-10-14", a.Date)
	assert.Greater(t, b.Version, a.Version)

	n, err := f.tracker.PendingCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestTracker_UpdateKeepsPendingCreate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ids := f.createExpenses(t, "a")

	r, err := f.tracker.Update(ctx, ledger.Expenses, ids[0], expense("a2"))
	require.NoError(t, err)

	assert.Equal(t, store.PendingCreate, r.State)
	assert.Equal(t, int64(1), r.Seq)
	assert.JSONEq(t, string(mustJSON(t, expense("a2"))), string(f.get(t, ledger.Expenses, ids[0]).Payload))
}

func TestTracker_UpdateOfCleanRecordBecomesPendingUpdate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ids := f.createExpenses(t, "a")
	f.commit(t)
	require.Equal(t, store.Clean, f.get(t, ledger.Expenses, ids[0]).State)

	r, err := f.tracker.Update(ctx, ledger.Expenses, ids[0], expense("a2"))
	require.NoError(t, err)
	assert.Equal(t, store.PendingUpdate, r.State)
}

func TestTracker_UpdateMissingOrDeleted(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.tracker.Update(ctx, ledger.Expenses, "nope", expense("x"))
	assert.True(t, IsNotFound(err))

	ids := f.createExpenses(t, "a")
	_, err = f.tracker.MarkDeleted(ctx, ledger.Expenses, ids[0])
	require.NoError(t, err)

	_, err = f.tracker.Update(ctx, ledger.Expenses, ids[0], expense("a2"))
	assert.True(t, IsNotFound(err), "a record marked deleted cannot be edited")
}

func TestTracker_MarkDeleted(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ids := f.createExpenses(t, "a")

	first, err := f.tracker.MarkDeleted(ctx, ledger.Expenses, ids[0])
	require.NoError(t, err)
	assert.Equal(t, store.PendingDelete, first.State, "a never-pushed record is still deleted remotely by row")

	again, err := f.tracker.MarkDeleted(ctx, ledger.Expenses, ids[0])
	require.NoError(t, err)
	assert.Equal(t, first.Version, again.Version, "marking twice is a no-op")

	_, err = f.tracker.MarkDeleted(ctx, ledger.Expenses, "nope")
	assert.True(t, IsNotFound(err))
}

func TestTracker_VersionsIncreaseWhenClockStepsBack(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ids := f.createExpenses(t, "a")
	before := f.get(t, ledger.Expenses, ids[0]).Version

	f.clock.Set(testStart.Add(-time.Hour))
	r, err := f.tracker.Update(ctx, ledger.Expenses, ids[0], expense("b"))
	require.NoError(t, err)
	assert.Greater(t, r.Version, before)

	f.clock.Set(testStart.Add(time.Hour))
	r2, err := f.tracker.Update(ctx, ledger.Expenses, ids[0], expense("c"))
	require.NoError(t, err)
	assert.Equal(t, testStart.Add(time.Hour).UnixMilli(), r2.Version)
}

func TestTracker_ConcurrentCreatesStayDense(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	const n = 20

	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func() {
			defer wg.Done()
			_, err := f.tracker.Create(ctx, ledger.Expenses, expense("x"))
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	records, err := f.store.List(ctx, ledger.Expenses)
	require.NoError(t, err)
	require.Len(t, records, n)
	for i, r := range records {
		assert.Equal(t, int64(i+1), r.Seq)
	}
}

func TestTracker_AddNext(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first, err := f.tracker.Create(ctx, ledger.Trips, ledger.Trip{
		Key:          "2026-10-14-1",
		Date:         "2026-10-14",
		Service:      "Uber",
		Number:       1,
		Region:       "North",
		Place:        "Taco Stand",
		Type:         "Pickup",
		Name:         "Ana",
		StartAddress: "1 Main St",
		EndAddress:   "9 Elm St",
		PickupTime:   "10:00",
		DropoffTime:  "10:25",
	})
	require.NoError(t, err)

	next, err := f.tracker.AddNext(ctx, first.LocalID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), next.Seq)
	assert.Equal(t, store.PendingCreate, next.State)

	var trip ledger.Trip
	require.NoError(t, next.Decode(&trip))
	assert.Equal(t, "2026-10-14-1", trip.Key)
	assert.Equal(t, "Uber", trip.Service)
	assert.Equal(t, "Taco Stand", trip.Place)
	assert.Equal(t, "1 Main St", trip.StartAddress)
	assert.Equal(t, "10:25", trip.PickupTime)
	assert.Empty(t, trip.Name)
	assert.Empty(t, trip.EndAddress)
	assert.Empty(t, trip.DropoffTime)
}

func TestTracker_Clone(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ids := f.createExpenses(t, "a")

	clone, err := f.tracker.Clone(ctx, ledger.Expenses, ids[0])
	require.NoError(t, err)
	assert.NotEqual(t, ids[0], clone.LocalID)
	assert.Equal(t, int64(2), clone.Seq)
	assert.Equal(t, "fuel", clone.Key)
	assert.JSONEq(t, string(f.get(t, ledger.Expenses, ids[0]).Payload), string(clone.Payload))

	_, err = f.tracker.Clone(ctx, ledger.Expenses, "nope")
	assert.True(t, IsNotFound(err))
}
