// Package ingress implements TCP/UDP ingestion endpoints (spec.md §4.7):
// a TCP acceptor that vends one session per connection, and a fixed UDP
// worker pool with SO_REUSEPORT port sharing. Grounded on
// _examples/original_source/akumulid/tcp_server.cpp's TcpSession (socket +
// parser + spout) and udp_server.cpp's multi-worker shared-port model,
// reworked from Boost.Asio strands into plain Go goroutines-per-connection.
package ingress

import (
	"context"
	"fmt"
	"log/slog"
	"net"

	"github.com/launix-de/chronostore/internal/ingest"
	"github.com/launix-de/chronostore/internal/pagecodec"
	"github.com/launix-de/chronostore/internal/wire"
)

// Dialect is the subset of wire.DialectA/wire.DialectB this ingress speaks.
type Dialect interface {
	ParseNext(buf *wire.ReadBuffer) ([]wire.Record, error)
}

// Resolver turns a parsed wire.Record's series name into a series id,
// implemented by the storage façade's registry-backed session.
type Resolver interface {
	Resolve(name string) (uint64, error)
}

// TCPServer accepts connections and spawns one session per connection,
// each session reading into its own wire.ReadBuffer and feeding a fresh
// ingest.Spout. There is no shared I/O-executor limiting concurrency here
// (unlike the teacher's Boost.Asio strand pool) since Go's goroutine
// scheduler already multiplexes blocking reads across OS threads cheaply;
// a connection cap is applied instead via a buffered semaphore channel.
type TCPServer struct {
	Addr     string
	Dialect  Dialect
	Pipeline *ingest.Pipeline

	// NewSession vends a fresh Resolver for each accepted connection. A
	// Resolver returned by the storage façade's registry.Session is an
	// unsynchronized per-connection cache (internal/registry doc: "vends a
	// registry-backed session for a single connection"), so it must never
	// be shared across connections; Serve calls this once per accept.
	NewSession func() Resolver
	Log        *slog.Logger

	// MaxConns bounds concurrent sessions; 0 means unbounded.
	MaxConns int

	// Policy is the back-pressure policy applied to every session's spout
	// (spec.md §6 "backoff_policy"); the zero value is ingest.LinearBackoff.
	Policy ingest.BackpressurePolicy
}

func (s *TCPServer) Serve(ctx context.Context) error {
	lc := net.ListenConfig{}
	ln, err := lc.Listen(ctx, "tcp", s.Addr)
	if err != nil {
		return fmt.Errorf("ingress: tcp listen %s: %w", s.Addr, err)
	}
	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	var sem chan struct{}
	if s.MaxConns > 0 {
		sem = make(chan struct{}, s.MaxConns)
	}

	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
				return fmt.Errorf("ingress: tcp accept: %w", err)
			}
		}
		if sem != nil {
			sem <- struct{}{}
		}
		sess := &tcpSession{
			conn:     conn,
			dialect:  s.Dialect,
			resolver: s.NewSession(),
			log:      s.Log,
		}
		sess.spout = s.Pipeline.NewSpout(s.Policy, sess.onWriteError)
		go func() {
			sess.run()
			if sem != nil {
				<-sem
			}
		}()
	}
}

// tcpSession owns one socket, a parser (shared Dialect + a per-session
// wire.ReadBuffer), and a spout. On parser failure it writes back a
// "-PARSER <message>\r\n" frame and closes the socket; database-side
// errors surface asynchronously via the spout's error callback formatted
// as "-DB <message>\r\n" (spec.md §4.7).
type tcpSession struct {
	conn     net.Conn
	dialect  Dialect
	spout    *ingest.Spout
	resolver Resolver
	log      *slog.Logger
}

func (sess *tcpSession) run() {
	defer sess.conn.Close()
	buf := wire.NewReadBuffer()
	for {
		n, err := sess.conn.Read(buf.Pull())
		if err != nil {
			return // EOF or reset: nothing more to reply
		}
		buf.Push(n)
		for {
			records, err := sess.dialect.ParseNext(buf)
			if err == wire.ErrIncomplete {
				break
			}
			if err != nil {
				fmt.Fprintf(sess.conn, "-PARSER %s\r\n", err.Error())
				return
			}
			sess.emit(records)
		}
	}
}

func (sess *tcpSession) emit(records []wire.Record) {
	for _, r := range records {
		id, err := sess.resolver.Resolve(r.Name)
		if err != nil {
			fmt.Fprintf(sess.conn, "-DB %s\r\n", err.Error())
			continue
		}
		sess.spout.Write(pagecodec.Sample{SeriesID: id, Timestamp: r.Timestamp, Value: r.Value})
	}
}

// onWriteError is the spout's error callback: a write that fails after
// parsing succeeded surfaces asynchronously as a "-DB" frame.
func (sess *tcpSession) onWriteError(_ pagecodec.Sample, err error) {
	fmt.Fprintf(sess.conn, "-DB %s\r\n", err.Error())
}
