// Package worker implements the single persistence task that owns every
// topic's WAL for the life of the process. It is grounded on the
// request/response event-loop pattern of Hermes's
// store/eventloop_store.go (one goroutine owns all mutable state, no
// locking) combined with its wal/worker.go (a dedicated goroutine
// draining a request channel and performing synchronous file I/O).
package worker

import (
	"os"
	"path/filepath"

	"github.com/rs/zerolog"

	"github.com/mosaicmq/mosaicmq/internal/queue"
	"github.com/mosaicmq/mosaicmq/internal/wal"
)

// Worker owns a topic -> WAL map exclusively; nothing outside this
// goroutine ever touches a *wal.WAL. Go's runtime, unlike a cooperative
// async executor, already moves blocking syscalls (fsync included) off
// the goroutines driving network I/O, so Run only needs to execute on
// its own goroutine — no dedicated OS thread pool is required the way
// the Rust original needs spawn_blocking (spec.md §9).
type Worker struct {
	dataDir string
	wals    map[string]*wal.WAL
	log     zerolog.Logger
}

// New creates a Worker rooted at dataDir. No WAL is opened until the
// first Produce for a topic, or the first successful Fetch-open.
func New(dataDir string, log zerolog.Logger) *Worker {
	return &Worker{
		dataDir: dataDir,
		wals:    make(map[string]*wal.WAL),
		log:     log,
	}
}

// Run drains requests until q's channel closes, then closes every open
// WAL and returns. This is the broker's single point of file mutation;
// it must run on exactly one goroutine for the process's lifetime.
func (w *Worker) Run(q *queue.Queue) {
	for req := range q.Requests() {
		switch r := req.(type) {
		case queue.ProduceRequest:
			w.handleProduce(r)
		case queue.FetchRequest:
			w.handleFetch(r)
		default:
			w.log.Error().Msg("unknown request type on queue")
		}
	}

	for topic, wl := range w.wals {
		if err := wl.Close(); err != nil {
			w.log.Error().Err(err).Str("topic", topic).Msg("error closing wal")
		}
	}
	w.log.Info().Msg("worker stopped")
}

func (w *Worker) handleProduce(r queue.ProduceRequest) {
	wl, err := w.openForWrite(r.Topic)
	if err != nil {
		w.log.Error().Err(err).Str("topic", r.Topic).Msg("wal open failed")
		close(r.Commit)
		return
	}

	offset, err := wl.Append(r.ID, r.Payload)
	if err != nil {
		w.log.Error().Err(err).Str("topic", r.Topic).Uint64("id", r.ID).Msg("wal append failed")
		close(r.Commit)
		return
	}

	w.log.Info().Str("topic", r.Topic).Uint64("id", r.ID).Uint64("offset", offset).Msg("stored")
	r.Commit <- nil
	close(r.Commit)
}

func (w *Worker) handleFetch(r queue.FetchRequest) {
	wl, ok := w.wals[r.Topic]
	if !ok {
		opened, err := w.openForReadIfExists(r.Topic)
		if err != nil {
			r.Reply <- queue.FetchResult{Err: err}
			close(r.Reply)
			return
		}
		if opened == nil {
			// Topic has no segment on disk: an empty result without
			// creating the topic, per spec.md §4.2.
			r.Reply <- queue.FetchResult{}
			close(r.Reply)
			return
		}
		wl = opened
		w.wals[r.Topic] = wl
	}

	records, err := wl.ReadFrom(r.From, r.Limit)
	if err != nil {
		r.Reply <- queue.FetchResult{Err: err}
		close(r.Reply)
		return
	}

	r.Reply <- queue.FetchResult{Records: records}
	close(r.Reply)
}

// openForWrite lazily creates the topic directory and opens (with
// recovery) its WAL on first produce.
func (w *Worker) openForWrite(topic string) (*wal.WAL, error) {
	if wl, ok := w.wals[topic]; ok {
		return wl, nil
	}

	dir := filepath.Join(w.dataDir, topic)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}

	wl, err := wal.Open(dir)
	if err != nil {
		return nil, err
	}
	w.wals[topic] = wl
	return wl, nil
}

// openForReadIfExists opens a topic's WAL for a Fetch only if the topic
// already has a segment on disk (an active wal.log or rotated
// wal.<n>.log files); it never creates a topic directory. Returns
// (nil, nil) when the topic has no segment yet.
func (w *Worker) openForReadIfExists(topic string) (*wal.WAL, error) {
	dir := filepath.Join(w.dataDir, topic)
	activePath := filepath.Join(dir, "wal.log")

	if _, err := os.Stat(activePath); err != nil {
		if !os.IsNotExist(err) {
			return nil, err
		}
		rotated, gerr := filepath.Glob(filepath.Join(dir, "wal.*.log"))
		if gerr != nil {
			return nil, gerr
		}
		if len(rotated) == 0 {
			return nil, nil
		}
	}

	return wal.Open(dir)
}
