package stats

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wricardo/dicerace/game/room"
	"github.com/wricardo/dicerace/storage"
)

type memWriter struct {
	mu      sync.Mutex
	records []storage.MatchRecord
	err     error
}

func (w *memWriter) RecordMatch(ctx context.Context, m storage.MatchRecord) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.err != nil {
		return w.err
	}
	w.records = append(w.records, m)
	return nil
}

func (w *memWriter) Records() []storage.MatchRecord {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]storage.MatchRecord(nil), w.records...)
}

func TestToRecord(t *testing.T) {
	finished := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	rec := ToRecord(room.Match{
		RoomID:       "r1",
		Participants: []string{"a", "b"},
		Winner:       "b",
		Duration:     41600 * time.Millisecond,
		FinishedAt:   finished,
	})

	assert.NotEmpty(t, rec.ID)
	assert.Equal(t, "r1", rec.RoomID)
	assert.Equal(t, []string{"a", "b"}, rec.Participants)
	assert.Equal(t, "b", rec.Winner)
	assert.Equal(t, 42, rec.DurationSeconds)
	assert.Equal(t, finished, rec.FinishedAt)

	other := ToRecord(room.Match{RoomID: "r1"})
	assert.NotEqual(t, rec.ID, other.ID)
	assert.False(t, other.FinishedAt.IsZero())
}

func TestRecorder_WritesQueuedMatches(t *testing.T) {
	w := &memWriter{}
	r := NewRecorder(w)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go r.Run(ctx)

	r.RecordMatch(room.Match{RoomID: "r1", Winner: "a", Participants: []string{"a"}})
	r.RecordMatch(room.Match{RoomID: "r2", Winner: "b", Participants: []string{"b"}})

	assert.Eventually(t, func() bool { return len(w.Records()) == 2 }, 2*time.Second, 10*time.Millisecond)
	r.Close()
}

func TestRecorder_CloseDrains(t *testing.T) {
	w := &memWriter{}
	r := NewRecorder(w)

	for i := 0; i < 5; i++ {
		r.RecordMatch(room.Match{RoomID: "r", Winner: "a"})
	}

	go r.Run(context.Background())
	r.Close()
	r.Close()

	assert.Len(t, w.Records(), 5)
}

func TestRecorder_FullQueueDoesNotBlock(t *testing.T) {
	w := &memWriter{}
	r := NewRecorder(w, WithQueueSize(2))

	done := make(chan struct{})
	go func() {
		for i := 0; i < 10; i++ {
			r.RecordMatch(room.Match{RoomID: "r"})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("RecordMatch blocked on a full queue")
	}

	go r.Run(context.Background())
	r.Close()
	assert.Len(t, w.Records(), 2)
}

func TestRecorder_WriteErrorsAreContained(t *testing.T) {
	w := &memWriter{err: errors.New("disk full")}
	r := NewRecorder(w, WithWriteTimeout(time.Second))

	ctx, cancel := context.WithCancel(context.Background())
	go r.Run(ctx)

	r.RecordMatch(room.Match{RoomID: "r"})
	cancel()
	<-r.done

	assert.Empty(t, w.Records())
}

func TestRecorder_WithSQLite(t *testing.T) {
	ctx := context.Background()
	store, err := storage.NewSQLiteStore(ctx, t.TempDir()+"/stats.db")
	require.NoError(t, err)
	defer store.Close()

	r := NewRecorder(store)
	go r.Run(ctx)

	r.RecordMatch(room.Match{
		RoomID:       "r1",
		Participants: []string{"alice", "bob"},
		Winner:       "alice",
		Duration:     12 * time.Second,
		FinishedAt:   time.Now(),
	})
	r.Close()

	stats, err := store.PlayerStats(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Games)
	assert.Equal(t, 1, stats.Wins)
	assert.InDelta(t, 12.0, stats.MeanGameSeconds, 0.001)
}
