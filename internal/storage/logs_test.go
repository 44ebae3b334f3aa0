package storage_test

import (
	"context"
	"fmt"
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/drtrace/drtrace/internal/model"
	"github.com/drtrace/drtrace/internal/storage"
	"github.com/drtrace/drtrace/internal/testutil"
)

func record(ts float64, level model.Level, message string) model.LogRecord {
	return model.LogRecord{
		TS:            ts,
		Level:         level,
		Message:       message,
		ApplicationID: "shop",
		ModuleName:    "checkout",
	}
}

func mustAppend(t *testing.T, db *storage.DB, records ...model.LogRecord) {
	t.Helper()
	n, err := db.Append(context.Background(), records)
	require.NoError(t, err)
	require.Equal(t, len(records), n)
}

func window(app string) model.QueryParams {
	return model.QueryParams{
		StartTS:       0,
		EndTS:         1e12,
		ApplicationID: app,
		Limit:         model.DefaultQueryLimit,
	}
}

func TestAppendAndQueryRoundTrip(t *testing.T) {
	db := testutil.OpenStore(t)
	ctx := context.Background()

	in := record(1700000000.123456, model.LevelError, "payment declined")
	in.ServiceName = "payments"
	in.FilePath = "/srv/app/pay.go"
	in.LineNo = 42
	in.ExceptionType = "DeclinedError"
	in.Stacktrace = "pay.go:42"
	in.Context = map[string]any{"language": "go", "order": "A-1"}

	mustAppend(t, db, in)

	out, err := db.Query(ctx, window("shop"))
	require.NoError(t, err)
	require.Len(t, out, 1)

	got := out[0]
	assert.Positive(t, got.ID)
	assert.Equal(t, in.TS, got.TS)
	assert.Equal(t, in.Level, got.Level)
	assert.Equal(t, in.Message, got.Message)
	assert.Equal(t, in.ApplicationID, got.ApplicationID)
	assert.Equal(t, in.ModuleName, got.ModuleName)
	assert.Equal(t, in.ServiceName, got.ServiceName)
	assert.Equal(t, in.FilePath, got.FilePath)
	assert.Equal(t, in.LineNo, got.LineNo)
	assert.Equal(t, in.ExceptionType, got.ExceptionType)
	assert.Equal(t, in.Stacktrace, got.Stacktrace)
	assert.Equal(t, "go", got.Context["language"])
	assert.Equal(t, "A-1", got.Context["order"])
}

func TestQueryOrderingWithTiedTimestamps(t *testing.T) {
	db := testutil.OpenStore(t)
	ctx := context.Background()

	// Arrival order: t, t, t-eps. The earlier timestamp must sort first,
	// and the two tied records keep their ingest order via id.
	const tt = 1700000000.0
	mustAppend(t, db,
		record(tt, model.LevelInfo, "first at t"),
		record(tt, model.LevelInfo, "second at t"),
		record(tt-0.001, model.LevelInfo, "before t"),
	)

	out, err := db.Query(ctx, window("shop"))
	require.NoError(t, err)
	require.Len(t, out, 3)

	assert.Equal(t, "before t", out[0].Message)
	assert.Equal(t, "first at t", out[1].Message)
	assert.Equal(t, "second at t", out[2].Message)
	assert.Less(t, out[1].ID, out[2].ID)
}

func TestQueryInstantWindow(t *testing.T) {
	db := testutil.OpenStore(t)
	ctx := context.Background()

	mustAppend(t, db,
		record(100, model.LevelInfo, "at 100"),
		record(100.5, model.LevelInfo, "at 100.5"),
	)

	p := window("shop")
	p.StartTS, p.EndTS = 100, 100
	out, err := db.Query(ctx, p)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "at 100", out[0].Message)
}

func TestQueryLevelFloor(t *testing.T) {
	db := testutil.OpenStore(t)
	ctx := context.Background()

	for _, l := range []model.Level{model.LevelDebug, model.LevelInfo, model.LevelWarn, model.LevelError, model.LevelCritical} {
		mustAppend(t, db, record(1000, l, string(l)+" message"))
	}

	p := window("shop")
	p.MinLevel = model.LevelWarn
	out, err := db.Query(ctx, p)
	require.NoError(t, err)
	require.Len(t, out, 3)
	for _, rec := range out {
		assert.True(t, rec.Level.AtLeast(model.LevelWarn), "level %s below floor", rec.Level)
	}
}

func TestQueryMessageContains(t *testing.T) {
	db := testutil.OpenStore(t)
	ctx := context.Background()

	mustAppend(t, db,
		record(1000, model.LevelInfo, "Connection TIMEOUT to db"),
		record(1001, model.LevelInfo, "all good"),
	)

	p := window("shop")
	p.MessageContains = "timeout"
	out, err := db.Query(ctx, p)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Contains(t, out[0].Message, "TIMEOUT")
}

func TestQueryMessageRegex(t *testing.T) {
	db := testutil.OpenStore(t)
	ctx := context.Background()

	mustAppend(t, db,
		record(1000, model.LevelInfo, "order A-123 failed"),
		record(1001, model.LevelInfo, "order B-9 ok"),
		record(1002, model.LevelInfo, "order A-456 failed"),
	)

	p := window("shop")
	p.MessageRegex = regexp.MustCompile(`A-\d+ failed`)
	out, err := db.Query(ctx, p)
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, "order A-123 failed", out[0].Message)
	assert.Equal(t, "order A-456 failed", out[1].Message)
}

func TestQueryRegexStopsAtLimit(t *testing.T) {
	db := testutil.OpenStore(t)
	ctx := context.Background()

	records := make([]model.LogRecord, 20)
	for i := range records {
		records[i] = record(float64(1000+i), model.LevelInfo, fmt.Sprintf("match %d", i))
	}
	mustAppend(t, db, records...)

	p := window("shop")
	p.MessageRegex = regexp.MustCompile(`match`)
	p.Limit = 5
	out, err := db.Query(ctx, p)
	require.NoError(t, err)
	require.Len(t, out, 5)
	// Earliest matches win under the ordered scan.
	assert.Equal(t, "match 0", out[0].Message)
	assert.Equal(t, "match 4", out[4].Message)
}

func TestQueryLimit(t *testing.T) {
	db := testutil.OpenStore(t)
	ctx := context.Background()

	records := make([]model.LogRecord, 10)
	for i := range records {
		records[i] = record(float64(1000+i), model.LevelInfo, fmt.Sprintf("msg %d", i))
	}
	mustAppend(t, db, records...)

	p := window("shop")
	p.Limit = 3
	out, err := db.Query(ctx, p)
	require.NoError(t, err)
	assert.Len(t, out, 3)
}

func TestQueryModuleFilter(t *testing.T) {
	db := testutil.OpenStore(t)
	ctx := context.Background()

	a := record(1000, model.LevelInfo, "from checkout")
	b := record(1001, model.LevelInfo, "from billing")
	b.ModuleName = "billing"
	mustAppend(t, db, a, b)

	p := window("shop")
	p.ModuleName = "billing"
	out, err := db.Query(ctx, p)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "from billing", out[0].Message)
}

func TestPurgeOlderThan(t *testing.T) {
	db := testutil.OpenStore(t)
	ctx := context.Background()

	mustAppend(t, db,
		record(100, model.LevelInfo, "old"),
		record(200, model.LevelInfo, "boundary"),
		record(300, model.LevelInfo, "recent"),
	)

	// Strict less-than: the boundary record survives.
	n, err := db.PurgeOlderThan(ctx, 200)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	out, err := db.Query(ctx, window("shop"))
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, "boundary", out[0].Message)
}

func TestClearIsIdempotent(t *testing.T) {
	db := testutil.OpenStore(t)
	ctx := context.Background()

	other := record(1000, model.LevelInfo, "kept")
	other.ApplicationID = "warehouse"
	mustAppend(t, db,
		record(1000, model.LevelInfo, "gone"),
		record(1001, model.LevelInfo, "gone too"),
		other,
	)

	n, err := db.Clear(ctx, "shop")
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	n, err = db.Clear(ctx, "shop")
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)

	out, err := db.Query(ctx, window("warehouse"))
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "kept", out[0].Message)
}

func TestIDsStrictlyIncrease(t *testing.T) {
	db := testutil.OpenStore(t)
	ctx := context.Background()

	mustAppend(t, db,
		record(1000, model.LevelInfo, "a"),
		record(1000, model.LevelInfo, "b"),
	)
	_, err := db.Clear(ctx, "shop")
	require.NoError(t, err)

	// Ids never recycle, even after a full clear.
	mustAppend(t, db, record(1000, model.LevelInfo, "c"))
	out, err := db.Query(ctx, window("shop"))
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Greater(t, out[0].ID, int64(2))
}
