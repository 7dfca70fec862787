package routecache

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trainwatch/internal/types"
)

type fakeRow struct {
	scanErr error
	values  []any
}

func (r fakeRow) Scan(dest ...any) error {
	if r.scanErr != nil {
		return r.scanErr
	}
	for i := range dest {
		switch d := dest[i].(type) {
		case *int:
			*d = r.values[i].(int)
		case *[]byte:
			*d = r.values[i].([]byte)
		case *time.Time:
			*d = r.values[i].(time.Time)
		}
	}
	return nil
}

type fakeDB struct {
	execSQL  []string
	execArgs [][]any
	execErr  error
	row      fakeRow
}

func (f *fakeDB) Exec(_ context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	f.execSQL = append(f.execSQL, sql)
	f.execArgs = append(f.execArgs, args)
	return pgconn.CommandTag{}, f.execErr
}

func (f *fakeDB) Query(_ context.Context, _ string, _ ...any) (pgx.Rows, error) {
	return nil, errors.New("not implemented")
}

func (f *fakeDB) QueryRow(_ context.Context, _ string, _ ...any) pgx.Row {
	return f.row
}

func testPlan() types.TripPlan {
	return types.TripPlan{
		Route: types.Route{
			TrainNumber: "16101",
			TrainName:   "Chennai Egmore - Villupuram Express",
			Stations: []types.Station{
				{Name: "Chennai Egmore", Code: "MS", SequenceIndex: 0, Position: types.NewGeoPoint(13.0732, 80.2609)},
				{Name: "Villupuram Jn", Code: "VM", SequenceIndex: 1, Position: types.NewGeoPoint(11.9393, 79.4924)},
			},
		},
		DestinationIndex: 1,
	}
}

func TestRepository_PutUpsertsSlot(t *testing.T) {
	db := &fakeDB{}
	repo := NewRepository(db)

	err := repo.Put(context.Background(), types.CachedRoute{Plan: testPlan()})
	require.NoError(t, err)
	require.Len(t, db.execArgs, 1)

	assert.Contains(t, db.execSQL[0], "ON CONFLICT (id) DO UPDATE")
	args := db.execArgs[0]
	assert.Equal(t, slotID, args[0])
	assert.Equal(t, types.CacheSchemaVersion, args[1])

	var plan types.TripPlan
	require.NoError(t, json.Unmarshal(args[2].([]byte), &plan))
	assert.Equal(t, "16101", plan.Route.TrainNumber)
	assert.Equal(t, 1, plan.DestinationIndex)

	cachedAt, ok := args[3].(time.Time)
	require.True(t, ok)
	assert.False(t, cachedAt.IsZero())
}

func TestRepository_PutExecError(t *testing.T) {
	db := &fakeDB{execErr: errors.New("connection reset")}
	repo := NewRepository(db)

	err := repo.Put(context.Background(), types.CachedRoute{Plan: testPlan()})
	require.Error(t, err)

	var appErr *types.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, types.ErrCodeInternalDB, appErr.Code)
}

func TestRepository_GetReturnsCachedRoute(t *testing.T) {
	payload, err := json.Marshal(testPlan())
	require.NoError(t, err)
	cachedAt := time.Date(2026, 8, 25, 9, 30, 0, 0, time.UTC)

	db := &fakeDB{row: fakeRow{values: []any{types.CacheSchemaVersion, payload, cachedAt}}}
	repo := NewRepository(db)

	got, err := repo.Get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, types.CacheSchemaVersion, got.SchemaVersion)
	assert.Equal(t, cachedAt, got.CachedAt)
	assert.Equal(t, "16101", got.Plan.Route.TrainNumber)
	assert.Equal(t, "Villupuram Jn", got.Plan.Destination().Name)
}

func TestRepository_GetEmptySlotIsCacheMiss(t *testing.T) {
	db := &fakeDB{row: fakeRow{scanErr: pgx.ErrNoRows}}
	repo := NewRepository(db)

	_, err := repo.Get(context.Background())
	require.Error(t, err)

	var appErr *types.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, types.ErrCodeNotFoundRouteCache, appErr.Code)
}

func TestRepository_GetUnknownSchemaVersionIsCacheMiss(t *testing.T) {
	payload, err := json.Marshal(testPlan())
	require.NoError(t, err)

	db := &fakeDB{row: fakeRow{values: []any{types.CacheSchemaVersion + 1, payload, time.Now()}}}
	repo := NewRepository(db)

	_, err = repo.Get(context.Background())
	require.Error(t, err)

	var appErr *types.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, types.ErrCodeNotFoundRouteCache, appErr.Code)
}

func TestRepository_GetCorruptPayloadIsCacheMiss(t *testing.T) {
	db := &fakeDB{row: fakeRow{values: []any{types.CacheSchemaVersion, []byte("{"), time.Now()}}}
	repo := NewRepository(db)

	_, err := repo.Get(context.Background())
	require.Error(t, err)

	var appErr *types.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, types.ErrCodeNotFoundRouteCache, appErr.Code)
}
