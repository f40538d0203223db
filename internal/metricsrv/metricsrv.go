// Package metricsrv exposes the broker's counters over HTTP, on a port
// separate from the TCP broker listener. It mirrors internal/stats's
// atomics into real Prometheus instruments via promauto, the same split
// the pack's Prometheus-instrumented services use between a hot-path
// counter and its exported metric.
package metricsrv

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/mosaicmq/mosaicmq/internal/stats"
)

// Server serves /metrics and /healthz.
type Server struct {
	httpServer *http.Server
	st         *stats.Stats
	log        zerolog.Logger

	ack         prometheus.Counter
	nack        prometheus.Counter
	errWAL      prometheus.Counter
	connections prometheus.Counter
	nextID      prometheus.Gauge
}

// New builds a metrics server bound to addr. It does not start listening
// until Run is called.
func New(addr string, st *stats.Stats, log zerolog.Logger) *Server {
	s := &Server{
		st:  st,
		log: log,
		ack: promauto.NewCounter(prometheus.CounterOpts{
			Name: "mosaicmq_produce_ack_total",
			Help: "Total number of produces durably committed.",
		}),
		nack: promauto.NewCounter(prometheus.CounterOpts{
			Name: "mosaicmq_produce_nack_total",
			Help: "Total number of produces rejected by backpressure.",
		}),
		errWAL: promauto.NewCounter(prometheus.CounterOpts{
			Name: "mosaicmq_wal_errors_total",
			Help: "Total number of produce/fetch requests that failed durability or recovery.",
		}),
		connections: promauto.NewCounter(prometheus.CounterOpts{
			Name: "mosaicmq_connections_total",
			Help: "Total number of accepted TCP connections.",
		}),
		nextID: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "mosaicmq_next_id",
			Help: "Next id this process will assign to a produce.",
		}),
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok\n"))
	})

	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// Run serves HTTP and periodically mirrors stats into the Prometheus
// instruments above until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.log.Info().Str("addr", s.httpServer.Addr).Msg("metrics server listening")
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	last := stats.Snapshot{}
	for {
		select {
		case <-ctx.Done():
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = s.httpServer.Shutdown(shutdownCtx)
			return <-errCh

		case <-ticker.C:
			snap := s.st.Snapshot()
			s.ack.Add(float64(snap.Ack - last.Ack))
			s.nack.Add(float64(snap.Nack - last.Nack))
			s.errWAL.Add(float64(snap.ErrWAL - last.ErrWAL))
			s.connections.Add(float64(snap.Connections - last.Connections))
			// snap.NextID is the last id issued; the next one is one more.
			s.nextID.Set(float64(snap.NextID + 1))
			last = snap
		}
	}
}
