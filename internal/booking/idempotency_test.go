package booking

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestIdempotencyStore(t *testing.T) (*IdempotencyStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewIdempotencyStore(client, time.Minute), mr
}

func TestIdempotencyClaimOnce(t *testing.T) {
	store, _ := newTestIdempotencyStore(t)
	ctx := context.Background()
	businessID := uuid.New()

	claimed, _, err := store.Claim(ctx, businessID, "req-1")
	require.NoError(t, err)
	assert.True(t, claimed)

	// Replay before resolution: not claimed, no appointment yet.
	claimed, existing, err := store.Claim(ctx, businessID, "req-1")
	require.NoError(t, err)
	assert.False(t, claimed)
	assert.Equal(t, uuid.Nil, existing)
}

func TestIdempotencyResolveAndReplay(t *testing.T) {
	store, _ := newTestIdempotencyStore(t)
	ctx := context.Background()
	businessID := uuid.New()
	apptID := uuid.New()

	claimed, _, err := store.Claim(ctx, businessID, "req-1")
	require.NoError(t, err)
	require.True(t, claimed)
	require.NoError(t, store.Resolve(ctx, businessID, "req-1", apptID))

	claimed, existing, err := store.Claim(ctx, businessID, "req-1")
	require.NoError(t, err)
	assert.False(t, claimed)
	assert.Equal(t, apptID, existing)
}

func TestIdempotencyReleaseAllowsRetry(t *testing.T) {
	store, _ := newTestIdempotencyStore(t)
	ctx := context.Background()
	businessID := uuid.New()

	claimed, _, err := store.Claim(ctx, businessID, "req-1")
	require.NoError(t, err)
	require.True(t, claimed)
	require.NoError(t, store.Release(ctx, businessID, "req-1"))

	claimed, _, err = store.Claim(ctx, businessID, "req-1")
	require.NoError(t, err)
	assert.True(t, claimed)
}

func TestIdempotencyKeysScopedPerBusiness(t *testing.T) {
	store, _ := newTestIdempotencyStore(t)
	ctx := context.Background()

	claimed, _, err := store.Claim(ctx, uuid.New(), "req-1")
	require.NoError(t, err)
	require.True(t, claimed)

	claimed, _, err = store.Claim(ctx, uuid.New(), "req-1")
	require.NoError(t, err)
	assert.True(t, claimed)
}

func TestIdempotencyKeyExpires(t *testing.T) {
	store, mr := newTestIdempotencyStore(t)
	ctx := context.Background()
	businessID := uuid.New()

	claimed, _, err := store.Claim(ctx, businessID, "req-1")
	require.NoError(t, err)
	require.True(t, claimed)

	mr.FastForward(2 * time.Minute)

	claimed, _, err = store.Claim(ctx, businessID, "req-1")
	require.NoError(t, err)
	assert.True(t, claimed)
}

func TestIdempotencyDisabledStoreIsNoop(t *testing.T) {
	ctx := context.Background()
	var store *IdempotencyStore

	claimed, _, err := store.Claim(ctx, uuid.New(), "req-1")
	require.NoError(t, err)
	assert.True(t, claimed)
	assert.NoError(t, store.Resolve(ctx, uuid.New(), "req-1", uuid.New()))
	assert.NoError(t, store.Release(ctx, uuid.New(), "req-1"))
}

func TestCoordinatorBookIdempotentReplay(t *testing.T) {
	f := newCoordinatorFixture(t)
	store, _ := newTestIdempotencyStore(t)
	f.coordinator.idempotency = store
	ctx := context.Background()

	req := f.bookRequest(600)
	req.IdempotencyKey = "checkout-42"

	first, err := f.coordinator.Book(ctx, req)
	require.NoError(t, err)

	replayed, err := f.coordinator.Book(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, first.ID, replayed.ID)

	all, err := f.ledger.ListByBusiness(ctx, f.businessID, ListOptions{})
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestCoordinatorRescheduleIdempotentReplay(t *testing.T) {
	f := newCoordinatorFixture(t)
	store, _ := newTestIdempotencyStore(t)
	f.coordinator.idempotency = store
	ctx := context.Background()

	booked, err := f.coordinator.Book(ctx, f.bookRequest(600))
	require.NoError(t, err)

	req := RescheduleRequest{
		AppointmentID:  booked.ID,
		Date:           booked.Date,
		Start:          840,
		Actor:          Actor{ID: booked.CustomerID, Role: RoleCustomer},
		IdempotencyKey: "move-7",
	}
	moved, err := f.coordinator.Reschedule(ctx, req)
	require.NoError(t, err)

	// The retry replays the moved appointment instead of tripping over
	// the already-cancelled original.
	replayed, err := f.coordinator.Reschedule(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, moved.ID, replayed.ID)
	assert.Equal(t, TimeOfDay(840), replayed.StartTime)

	all, err := f.ledger.ListByBusiness(ctx, f.businessID, ListOptions{})
	require.NoError(t, err)
	assert.Len(t, all, 2) // cancelled original + moved
}

func TestCoordinatorRescheduleConflictReleasesKey(t *testing.T) {
	f := newCoordinatorFixture(t)
	store, _ := newTestIdempotencyStore(t)
	f.coordinator.idempotency = store
	ctx := context.Background()

	booked, err := f.coordinator.Book(ctx, f.bookRequest(600))
	require.NoError(t, err)
	_, err = f.coordinator.Book(ctx, f.bookRequest(840))
	require.NoError(t, err)

	req := RescheduleRequest{
		AppointmentID:  booked.ID,
		Date:           booked.Date,
		Start:          840,
		Actor:          Actor{ID: booked.CustomerID, Role: RoleCustomer},
		IdempotencyKey: "move-8",
	}
	_, err = f.coordinator.Reschedule(ctx, req)
	require.True(t, IsConflict(err))

	// The failed attempt's key is released; retrying at a free time
	// under the same key moves the appointment normally.
	req.Start = 720
	moved, err := f.coordinator.Reschedule(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, TimeOfDay(720), moved.StartTime)
}

func TestCoordinatorBookConflictReleasesKey(t *testing.T) {
	f := newCoordinatorFixture(t)
	store, _ := newTestIdempotencyStore(t)
	f.coordinator.idempotency = store
	ctx := context.Background()

	_, err := f.coordinator.Book(ctx, f.bookRequest(600))
	require.NoError(t, err)

	req := f.bookRequest(600)
	req.IdempotencyKey = "checkout-43"
	_, err = f.coordinator.Book(ctx, req)
	require.True(t, IsConflict(err))

	// The failed attempt's key is released, so retrying at a free time
	// under the same key books normally.
	req.Start = 720
	appt, err := f.coordinator.Book(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, TimeOfDay(720), appt.StartTime)
}
