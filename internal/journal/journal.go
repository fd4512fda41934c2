// Package journal persists dispatched realtime events to PostgreSQL.
package journal

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	json "github.com/goccy/go-json"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/sourcegraph/conc"

	"github.com/wonny/aegis/kisrt/internal/event"
	"github.com/wonny/aegis/kisrt/internal/realtime"
	"github.com/wonny/aegis/kisrt/pkg/logger"
)

// Table is the journal table name.
const Table = "realtime_events"

var columns = []string{"tr_id", "tr_key", "payload", "received_at"}

const schemaSQL = `
	CREATE TABLE IF NOT EXISTS realtime_events (
		id          BIGSERIAL PRIMARY KEY,
		tr_id       TEXT        NOT NULL,
		tr_key      TEXT        NOT NULL,
		payload     JSONB       NOT NULL,
		received_at TIMESTAMPTZ NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_realtime_events_tr
		ON realtime_events (tr_id, tr_key, received_at);
`

// Store is the part of pgxpool.Pool the journal writes through.
type Store interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	CopyFrom(ctx context.Context, table pgx.Identifier, columns []string, src pgx.CopyFromSource) (int64, error)
}

// Entry is one journal row.
type Entry struct {
	TRID       string
	TRKey      string
	Payload    []byte
	ReceivedAt time.Time
}

// Option configures a Journal.
type Option func(*Journal)

// WithBufferSize sets how many entries may wait for the writer.
func WithBufferSize(n int) Option {
	return func(j *Journal) { j.bufferSize = n }
}

// WithBatchSize sets the maximum rows per COPY.
func WithBatchSize(n int) Option {
	return func(j *Journal) { j.batchSize = n }
}

// WithFlushInterval sets how long a partial batch may wait.
func WithFlushInterval(d time.Duration) Option {
	return func(j *Journal) { j.interval = d }
}

// Journal buffers events and writes them in batches from one worker.
// ⭐ SSOT: 실시간 이벤트 DB 적재는 이 구조체에서만
type Journal struct {
	store  Store
	logger *logger.Logger

	bufferSize int
	batchSize  int
	interval   time.Duration

	entries chan Entry
	closed  atomic.Bool
	dropped atomic.Int64
	written atomic.Int64

	mu     sync.Mutex
	cancel context.CancelFunc
	wg     conc.WaitGroup
}

// New creates a journal. Call Start before recording.
func New(store Store, log *logger.Logger, opts ...Option) *Journal {
	j := &Journal{
		store:      store,
		logger:     log.Component("journal"),
		bufferSize: 4096,
		batchSize:  100,
		interval:   time.Second,
	}
	for _, opt := range opts {
		opt(j)
	}
	j.entries = make(chan Entry, j.bufferSize)
	return j
}

// EnsureSchema creates the journal table if it does not exist.
func (j *Journal) EnsureSchema(ctx context.Context) error {
	if _, err := j.store.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("create journal schema: %w", err)
	}
	return nil
}

// Start runs the writer until ctx is done or Stop is called.
func (j *Journal) Start(ctx context.Context) {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.cancel != nil {
		return
	}
	ctx, j.cancel = context.WithCancel(ctx)
	j.wg.Go(func() { j.run(ctx) })

	j.logger.WithFields(map[string]interface{}{
		"batch_size": j.batchSize,
		"interval":   j.interval,
	}).Info("Starting journal writer")
}

// Stop flushes what is buffered and waits for the writer to exit.
// Entries recorded afterwards are dropped.
func (j *Journal) Stop() {
	j.closed.Store(true)

	j.mu.Lock()
	cancel := j.cancel
	j.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	j.wg.Wait()
}

// Record queues an event without blocking. It returns false when the event
// was dropped because the buffer is full or the journal is stopped.
func (j *Journal) Record(args realtime.SubscriptionEventArgs) bool {
	if j.closed.Load() {
		j.dropped.Add(1)
		return false
	}

	payload, err := json.Marshal(args.Response)
	if err != nil {
		j.dropped.Add(1)
		j.logger.WithError(err).WithField("tr_id", args.TR.ID).Warn("Failed to encode journal entry")
		return false
	}

	receivedAt := time.Now()
	if args.Response != nil {
		if m := args.Response.Metadata(); m != nil && !m.ReceivedAt.IsZero() {
			receivedAt = m.ReceivedAt
		}
	}

	entry := Entry{TRID: args.TR.ID, TRKey: args.TR.Key, Payload: payload, ReceivedAt: receivedAt}
	select {
	case j.entries <- entry:
		return true
	default:
		n := j.dropped.Add(1)
		j.logger.WithFields(map[string]interface{}{
			"tr_id":   args.TR.ID,
			"tr_key":  args.TR.Key,
			"dropped": n,
		}).Warn("Journal buffer full, dropping event")
		return false
	}
}

// Source is where Attach listens for events; *realtime.Client implements it.
type Source interface {
	Event() *event.Handler[realtime.SubscriptionEventArgs]
}

// Attach records every event the client dispatches.
func (j *Journal) Attach(src Source) *event.Ticket {
	return src.Event().On(func(_ any, args realtime.SubscriptionEventArgs) {
		j.Record(args)
	})
}

// Dropped returns how many events were not journaled.
func (j *Journal) Dropped() int64 {
	return j.dropped.Load()
}

// Written returns how many rows were stored.
func (j *Journal) Written() int64 {
	return j.written.Load()
}

func (j *Journal) run(ctx context.Context) {
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	batch := make([]Entry, 0, j.batchSize)
	flush := func(ctx context.Context) {
		if len(batch) == 0 {
			return
		}
		j.flush(ctx, batch)
		batch = batch[:0]
	}

	for {
		select {
		case <-ctx.Done():
			// 남은 항목은 새 컨텍스트로 적재
			drainCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		drain:
			for {
				select {
				case e := <-j.entries:
					batch = append(batch, e)
					if len(batch) >= j.batchSize {
						flush(drainCtx)
					}
				default:
					break drain
				}
			}
			flush(drainCtx)
			cancel()
			j.logger.Info("Journal writer stopped")
			return

		case e := <-j.entries:
			batch = append(batch, e)
			if len(batch) >= j.batchSize {
				flush(ctx)
			}

		case <-ticker.C:
			flush(ctx)
		}
	}
}

func (j *Journal) flush(ctx context.Context, batch []Entry) {
	n, err := j.store.CopyFrom(ctx, pgx.Identifier{Table}, columns,
		pgx.CopyFromSlice(len(batch), func(i int) ([]any, error) {
			e := batch[i]
			return []any{e.TRID, e.TRKey, e.Payload, e.ReceivedAt}, nil
		}),
	)
	if err != nil {
		j.dropped.Add(int64(len(batch)))
		j.logger.WithError(err).WithField("count", len(batch)).Error("Failed to write journal batch")
		return
	}

	j.written.Add(n)
	j.logger.WithField("count", n).Debug("Journal batch written")
}
