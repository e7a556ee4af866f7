package stats

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/wricardo/dicerace/game/room"
	"github.com/wricardo/dicerace/storage"
)

const (
	defaultQueueSize    = 128
	defaultWriteTimeout = 5 * time.Second
)

// Writer persists one finished match.
type Writer interface {
	RecordMatch(ctx context.Context, match storage.MatchRecord) error
}

// Recorder is a room.StatsSink that hands matches to a background writer.
// RecordMatch never blocks; when the queue is full the match is dropped and
// logged.
type Recorder struct {
	writer  Writer
	queue   chan room.Match
	stop    chan struct{}
	done    chan struct{}
	once    sync.Once
	timeout time.Duration
	logger  zerolog.Logger
}

// Option configures a Recorder.
type Option func(*Recorder)

// WithQueueSize sets how many matches may wait for the writer.
func WithQueueSize(n int) Option {
	return func(r *Recorder) {
		if n > 0 {
			r.queue = make(chan room.Match, n)
		}
	}
}

// WithWriteTimeout bounds each store write.
func WithWriteTimeout(d time.Duration) Option {
	return func(r *Recorder) { r.timeout = d }
}

// WithLogger sets the recorder logger.
func WithLogger(l zerolog.Logger) Option {
	return func(r *Recorder) { r.logger = l }
}

// NewRecorder creates a recorder writing through w. Call Run to start it.
func NewRecorder(w Writer, opts ...Option) *Recorder {
	r := &Recorder{
		writer:  w,
		queue:   make(chan room.Match, defaultQueueSize),
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
		timeout: defaultWriteTimeout,
		logger:  zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// RecordMatch queues m for writing.
func (r *Recorder) RecordMatch(m room.Match) {
	select {
	case r.queue <- m:
	default:
		r.logger.Warn().Str("room", m.RoomID).Str("winner", m.Winner).Msg("stats queue full, match dropped")
	}
}

// Run writes queued matches until ctx is done or Close is called, then
// drains what is left.
func (r *Recorder) Run(ctx context.Context) {
	defer close(r.done)

	for {
		select {
		case m := <-r.queue:
			r.write(m)
		case <-ctx.Done():
			r.drain()
			return
		case <-r.stop:
			r.drain()
			return
		}
	}
}

// Close stops Run after the queue is drained and waits for it. Run must have
// been started.
func (r *Recorder) Close() {
	r.once.Do(func() { close(r.stop) })
	<-r.done
}

func (r *Recorder) drain() {
	for {
		select {
		case m := <-r.queue:
			r.write(m)
		default:
			return
		}
	}
}

func (r *Recorder) write(m room.Match) {
	record := ToRecord(m)

	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()

	if err := r.writer.RecordMatch(ctx, record); err != nil {
		r.logger.Error().Err(err).Str("room", m.RoomID).Str("match", record.ID).Msg("failed to record match")
		return
	}

	r.logger.Info().
		Str("room", m.RoomID).
		Str("match", record.ID).
		Str("winner", m.Winner).
		Int("players", len(m.Participants)).
		Int("game_time", record.DurationSeconds).
		Msg("match recorded")
}

// ToRecord converts a finished match to its stored form. Durations are kept
// in whole seconds.
func ToRecord(m room.Match) storage.MatchRecord {
	finished := m.FinishedAt
	if finished.IsZero() {
		finished = time.Now()
	}
	return storage.MatchRecord{
		ID:              uuid.NewString(),
		RoomID:          m.RoomID,
		Participants:    append([]string(nil), m.Participants...),
		Winner:          m.Winner,
		DurationSeconds: int(m.Duration.Round(time.Second) / time.Second),
		FinishedAt:      finished,
	}
}

var _ room.StatsSink = (*Recorder)(nil)
