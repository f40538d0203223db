// Package ingress runs one task per accepted connection: framed line
// reads, command dispatch, backpressure handling, and the reply writer.
// It generalizes Hermes's server/connection.go (timeouts, line framing,
// ERR on oversize lines) and server/execution.go (command -> response)
// from a single-command KV protocol to PING/PUB/FETCH.
package ingress

import (
	"bufio"
	"context"
	"errors"
	"net"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/mosaicmq/mosaicmq/internal/protocol"
	"github.com/mosaicmq/mosaicmq/internal/queue"
	"github.com/mosaicmq/mosaicmq/internal/stats"
)

const (
	// maxLineBytes bounds a single request line, matching spec.md §6's
	// wire limit.
	maxLineBytes = 64 * 1024

	idleReadTimeout = 30 * time.Second
	writeTimeout    = 30 * time.Second
)

// Handle owns the full lifecycle of one client connection: it returns
// once the connection closes, the idle timeout fires, a transport error
// occurs, or ctx is cancelled (broker shutdown). Handle never panics on
// a misbehaving client; every error path degrades to either a reply or a
// silent close, per spec.md §7.
func Handle(ctx context.Context, conn net.Conn, q *queue.Queue, st *stats.Stats, log zerolog.Logger) {
	st.IncConnections()

	connID := uuid.NewString()
	clog := log.With().Str("conn", connID).Str("peer", conn.RemoteAddr().String()).Logger()
	clog.Info().Msg("client connected")

	defer func() {
		conn.Close()
		clog.Info().Msg("client disconnected")
	}()

	// Race the blocking line read against the shutdown signal by forcing
	// the socket closed when ctx is cancelled; the read then returns an
	// error which the loop below recognizes via ctx.Err().
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	// One extra byte leaves room for the newline of a maxLineBytes line.
	reader := bufio.NewReaderSize(conn, maxLineBytes+1)

	for {
		if err := conn.SetReadDeadline(time.Now().Add(idleReadTimeout)); err != nil {
			return
		}

		line, tooLarge, err := readLine(reader)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				reply(conn, st, protocol.ResponseErrTimeout)
				return
			}
			return // EOF or other transport error: close silently.
		}

		if tooLarge {
			reply(conn, st, protocol.ResponseErrTooLarge)
			continue
		}

		if !dispatch(ctx, conn, q, st, clog, line) {
			return
		}
	}
}

// dispatch executes one parsed command and writes its reply. The bool
// return reports whether the connection should stay open.
func dispatch(ctx context.Context, conn net.Conn, q *queue.Queue, st *stats.Stats, clog zerolog.Logger, line string) bool {
	cmd := protocol.Parse(line)

	switch cmd.Kind {
	case protocol.CommandPing:
		reply(conn, st, protocol.ResponseOK)
		return true

	case protocol.CommandPub:
		return handleProduce(conn, q, st, clog, cmd.Topic, cmd.Payload)

	case protocol.CommandFetch:
		return handleFetch(ctx, conn, q, st, cmd.Topic, cmd.Offset, cmd.Limit)

	default:
		clog.Warn().Str("line", cmd.Raw).Msg("unknown command")
		reply(conn, st, protocol.ResponseNack)
		return true
	}
}

func handleProduce(conn net.Conn, q *queue.Queue, st *stats.Stats, clog zerolog.Logger, topic, payload string) bool {
	commit := make(chan error, 1)
	result, id := q.TryEnqueueProduce(topic, payload, commit)

	switch result {
	case queue.Enqueued:
		err, ok := <-commit
		if !ok || err != nil {
			clog.Error().Uint64("id", id).Str("topic", topic).Msg("commit failed")
			reply(conn, st, protocol.ResponseErrWAL)
			return false
		}
		clog.Info().Uint64("id", id).Str("topic", topic).Msg("committed")
		reply(conn, st, protocol.ResponseAck)
		return true

	case queue.Full:
		st.IncNack()
		reply(conn, st, protocol.ResponseNack)
		return true

	default: // queue.Closed
		return false
	}
}

func handleFetch(ctx context.Context, conn net.Conn, q *queue.Queue, st *stats.Stats, topic string, offset uint64, limit int) bool {
	replyCh := make(chan queue.FetchResult, 1)
	if err := q.SubmitFetch(ctx, topic, offset, limit, replyCh); err != nil {
		reply(conn, st, protocol.ResponseErrWAL)
		return false
	}

	res, ok := <-replyCh
	if !ok || res.Err != nil {
		reply(conn, st, protocol.ResponseErrWAL)
		return false
	}

	if err := conn.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
		return false
	}
	for _, rec := range res.Records {
		if _, err := conn.Write([]byte(protocol.FetchRecordLine(rec.Offset, rec.ID, rec.Payload))); err != nil {
			return false
		}
	}

	reply(conn, st, protocol.ResponseOK)
	return true
}

// readLine reads one '\n'-terminated line, reporting tooLarge instead of
// an error when the line and its newline do not fit in r's buffer (Handle
// sizes it so that lines longer than maxLineBytes are too large). An
// oversized line is
// drained up to (and including) its newline so framing stays intact for
// the next command, per spec.md §4.4.
func readLine(r *bufio.Reader) (line string, tooLarge bool, err error) {
	buf, rerr := r.ReadSlice('\n')
	if rerr == nil {
		return string(buf[:len(buf)-1]), false, nil
	}
	if rerr != bufio.ErrBufferFull {
		return "", false, rerr
	}

	for rerr == bufio.ErrBufferFull {
		_, rerr = r.ReadSlice('\n')
	}
	if rerr != nil {
		return "", false, rerr
	}
	return "", true, nil
}

// reply records the stat associated with r (if any) and writes its
// token. Write errors are swallowed: the next read or write on this
// connection will surface the failure, per spec.md §7.
func reply(conn net.Conn, st *stats.Stats, r protocol.ResponseKind) {
	switch r {
	case protocol.ResponseAck:
		st.IncAck()
	case protocol.ResponseErrWAL:
		st.IncErrWAL()
	}

	_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	_, _ = conn.Write(r.Bytes())
}
