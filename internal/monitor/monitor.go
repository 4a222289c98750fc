// Package monitor exposes a read-only operational view of a running
// server over HTTP and websocket (spec.md §6 ambient stats; explicitly
// observability, not a query path). Grounded on
// `_examples/launix-de-memcp/scm/network.go`'s `HTTPServe`/
// `websocket.Upgrader` wiring, reworked from a Scheme-callback handler
// into a plain `http.Handler` streaming a fixed JSON snapshot.
package monitor

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

// StatsSource is the subset of internal/facade.Facade and
// internal/ingest.Pipeline the monitor needs; kept as an interface so
// tests can supply a fake snapshot instead of standing up a full façade.
type StatsSource interface {
	QueueDepths() []int
	ActiveVolume() int
	Rotations() uint64
	SeriesCount() int
}

// volumeStats is the subset of internal/facade.Facade's stats accessors.
type volumeStats interface {
	ActiveVolume() int
	Rotations() uint64
	SeriesCount() int
}

// queueStats is the subset of internal/ingest.Pipeline's stats accessors.
type queueStats interface {
	QueueDepths() []int
}

// Combine joins a façade (volume/series stats) and a pipeline (queue
// depths) into a single StatsSource, since neither package imports the
// other and the monitor needs both.
func Combine(volumes volumeStats, queues queueStats) StatsSource {
	return combinedSource{volumes, queues}
}

type combinedSource struct {
	volumeStats
	queueStats
}

// Snapshot is the JSON shape served over both the plain HTTP endpoint and
// the websocket stream.
type Snapshot struct {
	QueueDepths []int  `json:"queue_depths"`
	ActiveIndex int    `json:"active_volume"`
	Rotations   uint64 `json:"rotations"`
	SeriesCount int    `json:"series_count"`
}

func snapshot(s StatsSource) Snapshot {
	return Snapshot{
		QueueDepths: s.QueueDepths(),
		ActiveIndex: s.ActiveVolume(),
		Rotations:   s.Rotations(),
		SeriesCount: s.SeriesCount(),
	}
}

// Server serves /stats (one-shot JSON) and /stats/ws (periodic websocket
// push) over a single http.Server, mirroring network.go's HTTPServe
// pattern of one *http.Server per listener.
type Server struct {
	Addr     string
	Source   StatsSource
	Log      *slog.Logger
	Interval time.Duration // websocket push interval; defaults to one second

	upgrader websocket.Upgrader
}

func (s *Server) interval() time.Duration {
	if s.Interval <= 0 {
		return time.Second
	}
	return s.Interval
}

// Serve blocks until ctx is canceled, then shuts the HTTP server down.
func (s *Server) Serve(ctx context.Context) error {
	s.upgrader = websocket.Upgrader{ReadBufferSize: 1024, WriteBufferSize: 1024}
	s.upgrader.CheckOrigin = func(*http.Request) bool { return true }

	mux := http.NewServeMux()
	mux.HandleFunc("/stats", s.handleStats)
	mux.HandleFunc("/stats/ws", s.handleStatsWS)

	srv := &http.Server{
		Addr:         s.Addr,
		Handler:      mux,
		ReadTimeout:  300 * time.Second,
		WriteTimeout: 300 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return fmt.Errorf("monitor: serve %s: %w", s.Addr, err)
	}
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(snapshot(s.Source)); err != nil && s.Log != nil {
		s.Log.Warn("monitor: write stats response failed", "err", err)
	}
}

func (s *Server) handleStatsWS(w http.ResponseWriter, r *http.Request) {
	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		if s.Log != nil {
			s.Log.Warn("monitor: websocket upgrade failed", "err", err)
		}
		return
	}
	defer ws.Close()

	ticker := time.NewTicker(s.interval())
	defer ticker.Stop()
	for range ticker.C {
		if err := ws.WriteJSON(snapshot(s.Source)); err != nil {
			return // client gone
		}
	}
}
