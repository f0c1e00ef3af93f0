package control

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/proxyutils/stabcheck/internal/config"
	"github.com/proxyutils/stabcheck/internal/geo"
	"github.com/proxyutils/stabcheck/internal/health"
	"github.com/proxyutils/stabcheck/internal/rank"
	"github.com/proxyutils/stabcheck/internal/stats"
	"github.com/proxyutils/stabcheck/internal/util"
	"github.com/proxyutils/stabcheck/internal/version"
)

const (
	wsWriteWait    = 10 * time.Second
	wsPongWait     = 60 * time.Second
	wsPingInterval = 30 * time.Second
)

// Server exposes the measurement state to presentation collaborators:
// /snapshot and /ranking as plain JSON, and /live as a websocket that
// receives an updated ranked view after every completed round. The
// server only ever reads snapshots; it never touches record internals.
type Server struct {
	cfg    config.ControlConfig
	board  *stats.Board
	uplink *health.Checker // may be nil
	geodb  *geo.Resolver   // may be nil
	topN   int
	logger util.Logger
	hub    *hub
	server *http.Server
}

func NewServer(cfg config.ControlConfig, board *stats.Board, uplink *health.Checker, geodb *geo.Resolver, topN int, logger util.Logger) *Server {
	return &Server{
		cfg:    cfg,
		board:  board,
		uplink: uplink,
		geodb:  geodb,
		topN:   topN,
		logger: logger,
		hub:    newHub(),
	}
}

// Start begins serving and shuts the listener down when ctx ends.
func (s *Server) Start(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/snapshot", s.handleSnapshot)
	mux.HandleFunc("/ranking", s.handleRanking)
	mux.HandleFunc("/live", s.handleLive)

	s.server = &http.Server{
		Addr:              util.NetJoin(s.cfg.BindAddr, s.cfg.BindPort),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
	}()
	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error("control server stopped", "error", err)
		}
	}()
	s.logger.Info("control server listening", "addr", s.server.Addr)
	return nil
}

// PublishRound pushes the current ranked view to every live client.
// The scheduler calls this after each completed realtime round.
func (s *Server) PublishRound() {
	data, err := json.Marshal(s.rankingMessage(0))
	if err != nil {
		return
	}
	s.hub.broadcast(data)
}

type entryJSON struct {
	Rank         int     `json:"rank,omitempty"`
	Name         string  `json:"name"`
	Protocol     string  `json:"protocol"`
	Host         string  `json:"host"`
	Port         int     `json:"port"`
	Country      string  `json:"country,omitempty"`
	Attempts     int     `json:"attempts"`
	Successes    int     `json:"successes"`
	HasData      bool    `json:"has_data"`
	LossPct      float64 `json:"loss_pct"`
	AvgLatencyMs float64 `json:"avg_latency_ms"`
	JitterMs     float64 `json:"jitter_ms"`
}

type uplinkJSON struct {
	Up    bool    `json:"up"`
	RTTMs float64 `json:"rtt_ms"`
}

type rankingMessage struct {
	SchemaVersion int         `json:"schema_version"`
	Type          string      `json:"type"`
	Version       string      `json:"version"`
	Timestamp     int64       `json:"timestamp"`
	Network       string      `json:"network"`
	Uplink        *uplinkJSON `json:"uplink,omitempty"`
	Entries       []entryJSON `json:"entries"`
}

type snapshotMessage struct {
	SchemaVersion int         `json:"schema_version"`
	Type          string      `json:"type"`
	Timestamp     int64       `json:"timestamp"`
	Entries       []entryJSON `json:"entries"`
}

func ms(d time.Duration) float64 {
	return float64(d.Microseconds()) / 1000.0
}

func (s *Server) entryJSON(e rank.Entry, rankPos int) entryJSON {
	out := entryJSON{
		Rank:         rankPos,
		Name:         e.Target.DisplayName,
		Protocol:     string(e.Target.Protocol),
		Host:         e.Target.Host,
		Port:         e.Target.Port,
		Attempts:     e.View.Attempts,
		Successes:    e.View.Successes,
		HasData:      e.View.HasData,
		LossPct:      e.View.LossPct,
		AvgLatencyMs: ms(e.View.AvgLatency),
		JitterMs:     ms(e.View.Jitter),
	}
	if s.geodb != nil {
		out.Country = s.geodb.Country(e.Target.Host)
	}
	return out
}

func (s *Server) rankingMessage(n int) rankingMessage {
	if n <= 0 {
		n = s.topN
	}
	ranked := rank.TopN(s.board, 0)
	msg := rankingMessage{
		SchemaVersion: 1,
		Type:          "ranking",
		Version:       version.Version,
		Timestamp:     time.Now().UnixMilli(),
		Network:       string(rank.Health(ranked)),
	}
	if s.uplink != nil {
		msg.Uplink = &uplinkJSON{Up: s.uplink.Up(), RTTMs: ms(s.uplink.RTT())}
	}
	if len(ranked) > n {
		ranked = ranked[:n]
	}
	msg.Entries = make([]entryJSON, 0, len(ranked))
	for i, e := range ranked {
		msg.Entries = append(msg.Entries, s.entryJSON(e, i+1))
	}
	return msg
}

func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	entries := rank.SnapshotAll(s.board)
	msg := snapshotMessage{
		SchemaVersion: 1,
		Type:          "snapshot",
		Timestamp:     time.Now().UnixMilli(),
		Entries:       make([]entryJSON, 0, len(entries)),
	}
	for _, e := range entries {
		msg.Entries = append(msg.Entries, s.entryJSON(e, 0))
	}
	writeJSON(w, msg)
}

func (s *Server) handleRanking(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	n := 0
	if raw := r.URL.Query().Get("n"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			http.Error(w, "n must be a positive integer", http.StatusBadRequest)
			return
		}
		n = parsed
	}
	writeJSON(w, s.rankingMessage(n))
}

func (s *Server) handleLive(w http.ResponseWriter, r *http.Request) {
	upgrader := websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool { return true },
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	_ = conn.SetReadDeadline(time.Now().Add(wsPongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})

	c := &client{send: make(chan []byte, 32)}
	s.hub.register(c)

	var closeOnce sync.Once
	done := make(chan struct{})
	cleanup := func() {
		closeOnce.Do(func() {
			close(done)
			s.hub.unregister(c)
			_ = conn.Close()
		})
	}

	// Seed the client so it does not wait a full round for first data.
	if data, err := json.Marshal(s.rankingMessage(0)); err == nil {
		select {
		case c.send <- data:
		default:
		}
	}

	go func() {
		defer cleanup()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	go func() {
		defer cleanup()
		ticker := time.NewTicker(wsPingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				if err := conn.WriteControl(websocket.PingMessage, []byte("ping"), time.Now().Add(wsWriteWait)); err != nil {
					return
				}
			case data := <-c.send:
				_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
				if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
					return
				}
			}
		}
	}()
}

func writeJSON(w http.ResponseWriter, payload any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(payload)
}
