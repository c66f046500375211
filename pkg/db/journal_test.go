package db

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestDB(t *testing.T) *Database {
	t.Helper()
	database, err := New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })
	require.NoError(t, ApplyMigrations(database))
	return database
}

func TestJournalRecordAndRecent(t *testing.T) {
	j := NewJournal(openTestDB(t))
	ctx := context.Background()

	at := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	require.NoError(t, j.Record(ctx, Event{
		OpID: "a", Op: "open_stop", Symbol: "BTC_JPY", Side: "BUY",
		Price: "5000000", Size: "0.0363", OrderID: 637000, Outcome: OutcomeAccepted, CreatedAt: at,
	}))
	require.NoError(t, j.Record(ctx, Event{
		OpID: "b", Op: "cancel", Symbol: "BTC_JPY", OrderID: 637000, Outcome: OutcomeRejected, Detail: "ERR-5122",
	}))

	events, err := j.Recent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, events, 2)

	assert.Equal(t, "cancel", events[0].Op)
	assert.Equal(t, OutcomeRejected, events[0].Outcome)
	assert.Equal(t, "ERR-5122", events[0].Detail)
	assert.Empty(t, events[0].Side)

	assert.Equal(t, "open_stop", events[1].Op)
	assert.Equal(t, "0.0363", events[1].Size)
	assert.Equal(t, int64(637000), events[1].OrderID)
	assert.True(t, at.Equal(events[1].CreatedAt))
}

func TestJournalRecentLimit(t *testing.T) {
	j := NewJournal(openTestDB(t))
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		require.NoError(t, j.Record(ctx, Event{OpID: "x", Op: "amend", Symbol: "BTC_JPY", Outcome: OutcomeAccepted}))
	}
	events, err := j.Recent(ctx, 3)
	require.NoError(t, err)
	assert.Len(t, events, 3)
}

func TestMigrationsAreIdempotent(t *testing.T) {
	database := openTestDB(t)
	require.NoError(t, ApplyMigrations(database))

	j := NewJournal(database)
	ctx := context.Background()
	require.NoError(t, j.Record(ctx, Event{OpID: "c", Op: "close_market", Symbol: "BTC_JPY", Outcome: OutcomeAccepted, Balance: "98500"}))
	events, err := j.Recent(ctx, 1)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "98500", events[0].Balance)
}

func TestNewCreatesDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "journal.db")
	database, err := New(path)
	require.NoError(t, err)
	defer database.Close()
	require.NoError(t, ApplyMigrations(database))
	assert.FileExists(t, path)
}

func TestNilJournalDiscards(t *testing.T) {
	var j *Journal
	assert.NoError(t, j.Record(context.Background(), Event{Op: "cancel"}))
	_, err := New("")
	assert.Error(t, err)
}
