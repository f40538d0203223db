// Package queue implements the bounded, single-consumer request channel
// that bridges connection-handling goroutines (many) to the single
// persistence worker (one). It is the broker's only buffer: once full,
// producers are rejected immediately rather than blocked or queued
// further, per spec.md §5's backpressure model.
package queue

import (
	"context"
	"errors"
	"sync/atomic"

	"github.com/mosaicmq/mosaicmq/internal/stats"
	"github.com/mosaicmq/mosaicmq/internal/wal"
)

// Capacity is the bounded queue's fixed size.
const Capacity = 100

// ErrClosed is returned by SubmitFetch once the queue has been closed for
// new work.
var ErrClosed = errors.New("queue: closed")

// Request is the tagged union of work the worker understands. Produce
// and Fetch are the only variants — the Go analogue of the Rust
// implementation's enum, dispatched here with a type switch rather than
// a vtable (spec.md §9).
type Request interface {
	isRequest()
}

// ProduceRequest asks the worker to durably append payload to topic and
// assign it the given id. Commit is a buffered, single-use channel: the
// worker sends nil and closes it once fsync succeeds, or closes it
// without sending on failure. A closed-without-value read is how the
// ingress side observes "commit dropped" (spec.md §3's one-shot sender).
type ProduceRequest struct {
	Topic   string
	ID      uint64
	Payload string
	Commit  chan error
}

func (ProduceRequest) isRequest() {}

// FetchRequest asks the worker for up to Limit records from Topic
// starting at offset From. Reply follows the same one-shot convention as
// Commit.
type FetchRequest struct {
	Topic string
	From  uint64
	Limit int
	Reply chan FetchResult
}

func (FetchRequest) isRequest() {}

// FetchResult is what the worker sends back on a FetchRequest's Reply
// channel.
type FetchResult struct {
	Records []wal.Record
	Err     error
}

// EnqueueResult reports the outcome of a non-blocking produce enqueue.
type EnqueueResult int

const (
	Enqueued EnqueueResult = iota
	Full
	Closed
)

// Queue is the bounded request channel plus the id generator used to
// stamp produces as they're enqueued.
type Queue struct {
	ch     chan Request
	stats  *stats.Stats
	closed atomic.Bool
}

// New creates a Queue at the fixed Capacity, backed by stats for id
// issuance.
func New(s *stats.Stats) *Queue {
	return &Queue{
		ch:    make(chan Request, Capacity),
		stats: s,
	}
}

// TryEnqueueProduce allocates an id from Stats and makes a non-blocking
// attempt to enqueue a Produce request. This is the backpressure
// boundary: a full queue returns Full immediately rather than blocking
// the calling connection.
func (q *Queue) TryEnqueueProduce(topic, payload string, commit chan error) (EnqueueResult, uint64) {
	if q.closed.Load() {
		return Closed, 0
	}

	id := q.stats.NewID()
	req := ProduceRequest{Topic: topic, ID: id, Payload: payload, Commit: commit}

	select {
	case q.ch <- req:
		return Enqueued, id
	default:
		return Full, id
	}
}

// SubmitFetch submits a Fetch request with a blocking send: the client
// initiated the fetch and is willing to wait for queue space, per
// spec.md §4.3.
func (q *Queue) SubmitFetch(ctx context.Context, topic string, from uint64, limit int, reply chan FetchResult) error {
	if q.closed.Load() {
		return ErrClosed
	}

	req := FetchRequest{Topic: topic, From: from, Limit: limit, Reply: reply}
	select {
	case q.ch <- req:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Requests returns the receive side of the queue for the worker to range
// over. The range loop ends — and the worker exits — once Close has been
// called and all buffered requests have drained.
func (q *Queue) Requests() <-chan Request {
	return q.ch
}

// Close marks the queue closed to new work and closes the underlying
// channel. It must only be called once all connection-handling
// goroutines that might call TryEnqueueProduce/SubmitFetch have already
// exited — the Service's shutdown sequence guarantees this (spec.md
// §4.5).
func (q *Queue) Close() {
	q.closed.Store(true)
	close(q.ch)
}
