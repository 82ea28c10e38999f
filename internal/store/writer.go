package store

import (
	"database/sql"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/krwatch/listingpulse/internal/metrics"
)

// Priority selects the enqueue behaviour when the queue is full.
type Priority int

const (
	// Normal submissions never block the hot path; overflow is dropped
	// and counted.
	Normal Priority = iota
	// Critical submissions block the caller until the queue accepts.
	Critical
)

// Request is one SQL statement with its bind args.
type Request struct {
	SQL  string
	Args []any
}

type writeItem struct {
	req  Request
	stop bool
}

// ErrWriterClosed is returned by Enqueue after Shutdown has been called.
var ErrWriterClosed = errors.New("writer closed")

const (
	defaultQueueCap = 50000
	defaultBatchMax = 100

	// How often a blocked critical sender re-checks for shutdown.
	criticalRecheck = 100 * time.Millisecond
)

// Writer is the single mutator of the database. One goroutine drains the
// queue, committing batches of up to batchMax statements per transaction.
// A failed batch is rolled back and each statement is retried individually
// so one poisonous row cannot starve the rest.
type Writer struct {
	db       *sql.DB
	ch       chan writeItem
	batchMax int

	drops  atomic.Uint64
	closed atomic.Bool

	wg sync.WaitGroup
}

// NewWriter wraps db with a bounded queue. queueCap and batchMax fall back
// to defaults when <= 0.
func NewWriter(db *sql.DB, queueCap, batchMax int) *Writer {
	if queueCap <= 0 {
		queueCap = defaultQueueCap
	}
	if batchMax <= 0 {
		batchMax = defaultBatchMax
	}
	return &Writer{
		db:       db,
		ch:       make(chan writeItem, queueCap),
		batchMax: batchMax,
	}
}

// Start launches the worker goroutine.
func (w *Writer) Start() {
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		w.loop()
	}()
}

// Enqueue submits a statement. Normal priority never blocks: when the
// queue is full the request is dropped, counted, and logged at geometric
// milestones. Critical priority blocks until accepted.
func (w *Writer) Enqueue(sql string, args []any, prio Priority) error {
	if w.closed.Load() {
		return ErrWriterClosed
	}
	item := writeItem{req: Request{SQL: sql, Args: args}}
	if prio == Critical {
		// Re-check closed while blocked: Shutdown can swap the flag right
		// after the check above, and once the worker drains and exits a
		// full queue would hold this send forever.
		for {
			select {
			case w.ch <- item:
				metrics.WriterQueueDepth.Set(float64(len(w.ch)))
				return nil
			case <-time.After(criticalRecheck):
				if w.closed.Load() {
					return ErrWriterClosed
				}
			}
		}
	}
	select {
	case w.ch <- item:
		metrics.WriterQueueDepth.Set(float64(len(w.ch)))
		return nil
	default:
		w.countDrop()
		return nil
	}
}

// Drops reports the lifetime count of dropped normal-priority requests.
func (w *Writer) Drops() uint64 { return w.drops.Load() }

// QueueLen reports the instantaneous queue depth.
func (w *Writer) QueueLen() int { return len(w.ch) }

// Shutdown sends the stop sentinel and waits for the worker to drain and
// commit every remaining request. Safe to call once.
func (w *Writer) Shutdown() {
	if w.closed.Swap(true) {
		return
	}
	w.ch <- writeItem{stop: true}
	w.wg.Wait()
}

func (w *Writer) countDrop() {
	n := w.drops.Add(1)
	metrics.WriterDrops.Inc()
	if n == 1 || n == 10 || n == 100 || n%1000 == 0 {
		log.Warn().Uint64("dropped", n).Msg("writer queue full, dropping normal writes")
	}
}

func (w *Writer) loop() {
	for {
		item, ok := <-w.ch
		if !ok {
			return
		}
		if item.stop {
			w.drain()
			return
		}

		batch := []Request{item.req}
		stopping := false
	gather:
		for len(batch) < w.batchMax {
			select {
			case next := <-w.ch:
				if next.stop {
					stopping = true
					break gather
				}
				batch = append(batch, next.req)
			default:
				break gather
			}
		}
		metrics.WriterQueueDepth.Set(float64(len(w.ch)))
		w.commit(batch)

		if stopping {
			w.drain()
			return
		}
	}
}

// drain commits whatever is still queued after the stop sentinel.
func (w *Writer) drain() {
	var rest []Request
	for {
		select {
		case item := <-w.ch:
			if !item.stop {
				rest = append(rest, item.req)
			}
		default:
			if len(rest) > 0 {
				w.commit(rest)
			}
			log.Info().Int("drained", len(rest)).Msg("writer stopped")
			return
		}
	}
}

// commit executes a batch in one transaction; on any failure it rolls back
// and retries statement-by-statement so valid rows still land.
func (w *Writer) commit(batch []Request) {
	metrics.WriterBatchSize.Observe(float64(len(batch)))

	tx, err := w.db.Begin()
	if err != nil {
		log.Error().Err(err).Msg("writer begin failed")
		w.retryIndividually(batch)
		return
	}
	for _, req := range batch {
		if _, err := tx.Exec(req.SQL, req.Args...); err != nil {
			_ = tx.Rollback()
			log.Warn().Err(err).Int("batch", len(batch)).Msg("batch failed, retrying per statement")
			w.retryIndividually(batch)
			return
		}
	}
	if err := tx.Commit(); err != nil {
		log.Warn().Err(err).Msg("batch commit failed, retrying per statement")
		w.retryIndividually(batch)
	}
}

func (w *Writer) retryIndividually(batch []Request) {
	for _, req := range batch {
		if _, err := w.db.Exec(req.SQL, req.Args...); err != nil {
			log.Error().Err(err).Str("sql", truncateSQL(req.SQL)).Msg("statement dropped after retry")
		}
	}
}

func truncateSQL(s string) string {
	if len(s) > 80 {
		return s[:80] + "…"
	}
	return s
}
