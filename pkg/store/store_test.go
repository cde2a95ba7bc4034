package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "audit.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestRecordAndListEventActions(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.RecordEventAction(ctx, EventActionRecord{
		TripID: "lisbon-1", EventID: "ev-1", Kind: "delay_warning",
		Title: "Running 25 minutes behind", Status: "actioned", Note: "compress",
	}))
	require.NoError(t, s.RecordEventAction(ctx, EventActionRecord{
		TripID: "lisbon-1", EventID: "ev-2", Kind: "weather_alert",
		Title: "Rain expected", Status: "dismissed",
	}))
	require.NoError(t, s.RecordEventAction(ctx, EventActionRecord{
		TripID: "porto-2", EventID: "ev-3", Kind: "morning_briefing",
		Title: "Good morning", Status: "delivered",
	}))

	recs, err := s.RecentEventActions(ctx, "lisbon-1", 10)
	require.NoError(t, err)
	require.Len(t, recs, 2)
	// Newest first.
	assert.Equal(t, "ev-2", recs[0].EventID)
	assert.Equal(t, "ev-1", recs[1].EventID)
	assert.Equal(t, "compress", recs[1].Note)
	assert.False(t, recs[0].CreatedAt.IsZero())
}

func TestRecentEventActionsLimit(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		require.NoError(t, s.RecordEventAction(ctx, EventActionRecord{
			TripID: "t", EventID: "ev", Status: "dismissed",
		}))
	}
	recs, err := s.RecentEventActions(ctx, "t", 3)
	require.NoError(t, err)
	assert.Len(t, recs, 3)
}

func TestRecordAndListReshuffles(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.RecordReshuffle(ctx, ReshuffleRecord{
		TripID: "lisbon-1", DayIndex: 0, Action: "apply",
		Strategy: "compress", Success: true, UndoToken: "tok-1",
	}))
	require.NoError(t, s.RecordReshuffle(ctx, ReshuffleRecord{
		TripID: "lisbon-1", DayIndex: 0, Action: "apply",
		Strategy: "swap", Success: false, Message: "no alternative available",
	}))

	recs, err := s.RecentReshuffles(ctx, "lisbon-1", 10)
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, "swap", recs[0].Strategy)
	assert.False(t, recs[0].Success)
	assert.Equal(t, "no alternative available", recs[0].Message)
	assert.True(t, recs[1].Success)
	assert.Equal(t, "tok-1", recs[1].UndoToken)
}

func TestRecentEmptyTrip(t *testing.T) {
	s := newTestStore(t)
	recs, err := s.RecentReshuffles(context.Background(), "nope", 5)
	require.NoError(t, err)
	assert.Empty(t, recs)
}
