package ingress

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"syscall"

	"golang.org/x/sys/unix"

	"github.com/launix-de/chronostore/internal/ingest"
	"github.com/launix-de/chronostore/internal/pagecodec"
	"github.com/launix-de/chronostore/internal/wire"
)

// udpBatchSize mirrors akumulid/udp_server.h's NPACKETS: the number of
// datagrams a worker drains before starting a fresh parser.
const udpBatchSize = 512

// udpReadBufSize is generous headroom over a typical MTU for one datagram.
const udpReadBufSize = 65536

// UDPServer runs NWorkers goroutines, each bound to the same port via
// SO_REUSEPORT so the kernel load-balances datagrams across them, per
// akumulid/udp_server.cpp's worker-pool model.
type UDPServer struct {
	Addr     string
	NWorkers int
	Dialect  Dialect
	Pipeline *ingest.Pipeline

	// NewSession vends a fresh Resolver for each worker goroutine. Every
	// worker runs its own receive loop concurrently with the others, so
	// (as with TCPServer) each one needs its own unsynchronized
	// registry.Session rather than a Resolver shared across workers.
	NewSession func() Resolver
	Log        *slog.Logger
}

func (s *UDPServer) Serve(ctx context.Context) error {
	n := s.NWorkers
	if n <= 0 {
		n = 1
	}
	for i := 0; i < n; i++ {
		conn, err := s.listenReusePort()
		if err != nil {
			return fmt.Errorf("ingress: udp listen %s (worker %d): %w", s.Addr, i, err)
		}
		go func() {
			<-ctx.Done()
			conn.Close()
		}()
		go s.worker(conn, s.NewSession())
	}
	<-ctx.Done()
	return nil
}

// listenReusePort binds a fresh socket to the configured address with
// SO_REUSEPORT set, so every worker can share one port.
func (s *UDPServer) listenReusePort() (*net.UDPConn, error) {
	lc := net.ListenConfig{
		Control: func(_, _ string, c syscall.RawConn) error {
			var sockErr error
			err := c.Control(func(fd uintptr) {
				sockErr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEPORT, 1)
			})
			if err != nil {
				return err
			}
			return sockErr
		},
	}
	pc, err := lc.ListenPacket(context.Background(), "udp", s.Addr)
	if err != nil {
		return nil, err
	}
	return pc.(*net.UDPConn), nil
}

// worker receives datagrams in batches of up to udpBatchSize, creating a
// fresh parser per batch so a malformed packet can't poison later ones in
// the same batch (spec.md §4.7).
func (s *UDPServer) worker(conn *net.UDPConn, resolver Resolver) {
	buf := make([]byte, udpReadBufSize)
	// UDP is fire-and-forget: there is no peer to push back against, so the
	// spout always sheds load under backlog (ingest.Throttle) rather than
	// taking the configurable policy TCPServer exposes.
	spout := s.Pipeline.NewSpout(ingest.Throttle, s.onWriteError)

	for {
		parser := wire.NewReadBuffer()
		for i := 0; i < udpBatchSize; i++ {
			n, _, err := conn.ReadFromUDP(buf)
			if err != nil {
				return // socket closed
			}
			copy(parser.Reserve(n), buf[:n])
			parser.Push(n)

			for {
				records, err := s.Dialect.ParseNext(parser)
				if err == wire.ErrIncomplete {
					break
				}
				if err != nil {
					if s.Log != nil {
						s.Log.Warn("ingress: dropping malformed udp datagram", "err", err)
					}
					parser = wire.NewReadBuffer()
					break
				}
				s.emit(records, spout, resolver)
			}
		}
	}
}

func (s *UDPServer) emit(records []wire.Record, spout *ingest.Spout, resolver Resolver) {
	for _, r := range records {
		id, err := resolver.Resolve(r.Name)
		if err != nil {
			if s.Log != nil {
				s.Log.Warn("ingress: udp series resolve failed", "name", r.Name, "err", err)
			}
			continue
		}
		spout.Write(pagecodec.Sample{SeriesID: id, Timestamp: r.Timestamp, Value: r.Value})
	}
}

func (s *UDPServer) onWriteError(sample pagecodec.Sample, err error) {
	if s.Log != nil {
		s.Log.Warn("ingress: udp write failed", "series_id", sample.SeriesID, "err", err)
	}
}
