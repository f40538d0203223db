// Package service runs the broker's TCP accept loop: one listener, a
// bounded set of live connection handlers, and the graceful-shutdown
// sequence that lets every in-flight command finish before the process
// exits. It generalizes Hermes's server/server.go accept loop (handle
// pruning every N accepts, a connection cap enforced with ERR BUSY) to
// this broker's produce/fetch protocol.
package service

import (
	"context"
	"net"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/mosaicmq/mosaicmq/internal/ingress"
	"github.com/mosaicmq/mosaicmq/internal/protocol"
	"github.com/mosaicmq/mosaicmq/internal/queue"
	"github.com/mosaicmq/mosaicmq/internal/stats"
)

// pruneInterval is how often (in accepted connections) the live-handle
// list is swept for finished handlers, matching spec.md §4.5.
const pruneInterval = 64

const busyWriteTimeout = 5 * time.Second

// Service owns the listener and every live connection handler spawned
// from it.
type Service struct {
	bindAddr       string
	maxConnections int
	q              *queue.Queue
	st             *stats.Stats
	log            zerolog.Logger

	ready chan struct{}
	addr  string
}

// New builds a Service bound to addr, enforcing maxConnections
// concurrent clients.
func New(bindAddr string, maxConnections int, q *queue.Queue, st *stats.Stats, log zerolog.Logger) *Service {
	return &Service{
		bindAddr:       bindAddr,
		maxConnections: maxConnections,
		q:              q,
		st:             st,
		log:            log,
		ready:          make(chan struct{}),
	}
}

// Addr blocks until the listener is bound, then returns its address.
// Tests use this to discover the ephemeral port from "127.0.0.1:0".
func (s *Service) Addr() string {
	<-s.ready
	return s.addr
}

type connHandle struct {
	done chan struct{}
}

// Run listens on the service's bind address and serves connections until
// ctx is cancelled. On cancellation it stops accepting, waits for every
// already-accepted connection to finish its current command and close,
// then returns. It does not close the queue — the caller does that once
// Run returns, so the worker drains exactly the requests submitted by
// connections Run already waited for.
func (s *Service) Run(ctx context.Context) error {
	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", s.bindAddr)
	if err != nil {
		return err
	}
	s.addr = ln.Addr().String()
	close(s.ready)
	s.log.Info().Str("addr", s.addr).Int("max_connections", s.maxConnections).Msg("listening")

	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	var wg sync.WaitGroup
	var handles []*connHandle
	accepts := 0

	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				break
			}
			s.log.Error().Err(err).Msg("accept failed")
			continue
		}

		accepts++
		if accepts%pruneInterval == 0 {
			handles = pruneFinished(handles)
		}

		if len(handles) >= s.maxConnections {
			s.log.Warn().Str("peer", conn.RemoteAddr().String()).Msg("connection cap reached")
			rejectBusy(conn)
			continue
		}

		h := &connHandle{done: make(chan struct{})}
		handles = append(handles, h)

		wg.Add(1)
		go func() {
			defer wg.Done()
			defer close(h.done)
			ingress.Handle(ctx, conn, s.q, s.st, s.log)
		}()
	}

	wg.Wait()
	s.log.Info().Msg("listener stopped, all connections drained")
	return nil
}

func pruneFinished(handles []*connHandle) []*connHandle {
	live := handles[:0]
	for _, h := range handles {
		select {
		case <-h.done:
		default:
			live = append(live, h)
		}
	}
	return live
}

func rejectBusy(conn net.Conn) {
	_ = conn.SetWriteDeadline(time.Now().Add(busyWriteTimeout))
	_, _ = conn.Write(protocol.ResponseErrBusy.Bytes())
	conn.Close()
}
