// Package stats holds the broker's lock-free counters.
//
// Counters are plain atomics, not Prometheus instruments: the hot path
// (every produce and every connection) only ever does a relaxed
// fetch-add. internal/metricsrv mirrors these into real Prometheus
// gauges/counters out of band, the same split dreamsxin-wal's
// walMetrics keeps between appends and their exported metric.
package stats

import "sync/atomic"

// Stats is the broker's process-wide counter block plus id generator.
type Stats struct {
	ack         atomic.Uint64
	nack        atomic.Uint64
	connections atomic.Uint64
	errWAL      atomic.Uint64
	nextID      atomic.Uint64
}

// New returns a zeroed Stats block.
func New() *Stats {
	return &Stats{}
}

// NewID issues the next monotonic, process-local id, starting at 1. Ids
// are assigned at enqueue time and are monotonic across all topics; the
// counter is not persisted, so it starts over on every restart — see
// SPEC_FULL.md §6.
func (s *Stats) NewID() uint64 {
	return s.nextID.Add(1)
}

// IncAck records a successful, durable produce.
func (s *Stats) IncAck() { s.ack.Add(1) }

// IncNack records a produce rejected by backpressure.
func (s *Stats) IncNack() { s.nack.Add(1) }

// IncConnections records a newly accepted connection.
func (s *Stats) IncConnections() { s.connections.Add(1) }

// IncErrWAL records a durability failure observed by a connection.
func (s *Stats) IncErrWAL() { s.errWAL.Add(1) }

// Snapshot is a point-in-time read of all counters.
type Snapshot struct {
	Ack         uint64
	Nack        uint64
	Connections uint64
	ErrWAL      uint64
	NextID      uint64
}

// Snapshot reads every counter without locking.
func (s *Stats) Snapshot() Snapshot {
	return Snapshot{
		Ack:         s.ack.Load(),
		Nack:        s.nack.Load(),
		Connections: s.connections.Load(),
		ErrWAL:      s.errWAL.Load(),
		NextID:      s.nextID.Load(),
	}
}
