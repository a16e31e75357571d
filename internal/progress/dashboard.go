package progress

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"

	"index-pump/internal/logger"
)

// EventType classifies a dashboard broadcast event.
type EventType string

const (
	EventTableStart    EventType = "table_start"
	EventChunkComplete EventType = "chunk_complete"
	EventTableComplete EventType = "table_complete"
	EventTableError    EventType = "table_error"
	EventRunComplete   EventType = "run_complete"
)

// Event is the wire format streamed to dashboard clients.
type Event struct {
	Type      EventType       `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	RunID     string          `json:"run_id,omitempty"`
	TableKey  string          `json:"table_key,omitempty"`
	Data      json.RawMessage `json:"data,omitempty"`
}

// TableEventData carries per-table progress detail.
type TableEventData struct {
	Mode         string `json:"mode,omitempty"`
	Reason       string `json:"reason,omitempty"`
	Status       string `json:"status,omitempty"`
	RowsUpserted int    `json:"rows_upserted,omitempty"`
	ChunkIndex   int    `json:"chunk_index,omitempty"`
	ChunkCount   int    `json:"chunk_count,omitempty"`
	Error        string `json:"error,omitempty"`
}

// Dashboard is an optional websocket broadcast server for watching a run
// or estimation live. Events are best-effort: slow or absent clients never
// block the pipeline, and the buffered channel drops its oldest event when
// full.
type Dashboard struct {
	addr     string
	listener net.Listener
	server   *http.Server

	clients   map[*websocket.Conn]bool
	clientsMu sync.RWMutex

	broadcast chan Event

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewDashboard creates a dashboard server listening on addr (e.g. ":8090").
func NewDashboard(addr string) *Dashboard {
	ctx, cancel := context.WithCancel(context.Background())
	return &Dashboard{
		addr:      addr,
		clients:   make(map[*websocket.Conn]bool),
		broadcast: make(chan Event, 100),
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Start begins serving the websocket endpoint and the broadcast loop.
func (d *Dashboard) Start() error {
	ln, err := net.Listen("tcp", d.addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", d.addr, err)
	}
	d.listener = ln

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", d.handleWebSocket)
	mux.HandleFunc("/health", d.handleHealth)

	d.server = &http.Server{
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	d.wg.Add(1)
	go d.broadcastLoop()

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		logger.Infof("dashboard listening on ws://%s/ws", ln.Addr())
		if err := d.server.Serve(ln); err != nil && err != http.ErrServerClosed {
			logger.Warnf("dashboard server error: %v", err)
		}
	}()

	return nil
}

// Stop closes client connections and shuts the server down.
func (d *Dashboard) Stop() error {
	d.cancel()

	d.clientsMu.Lock()
	for conn := range d.clients {
		_ = conn.Close(websocket.StatusGoingAway, "server shutting down")
		delete(d.clients, conn)
	}
	d.clientsMu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := d.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("dashboard shutdown: %w", err)
	}
	d.wg.Wait()
	return nil
}

// Publish queues an event for broadcast. When the buffer is full the oldest
// queued event is discarded so the caller never blocks.
func (d *Dashboard) Publish(ev Event) {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now().UTC()
	}
	for {
		select {
		case d.broadcast <- ev:
			return
		case <-d.ctx.Done():
			return
		default:
		}
		select {
		case <-d.broadcast:
		default:
		}
	}
}

// PublishTable is a convenience wrapper marshaling TableEventData.
func (d *Dashboard) PublishTable(t EventType, runID, tableKey string, data TableEventData) {
	raw, err := json.Marshal(data)
	if err != nil {
		logger.Debugf("dashboard event marshal failed: %v", err)
		return
	}
	d.Publish(Event{Type: t, RunID: runID, TableKey: tableKey, Data: raw})
}

func (d *Dashboard) broadcastLoop() {
	defer d.wg.Done()

	for {
		select {
		case <-d.ctx.Done():
			return
		case ev := <-d.broadcast:
			data, err := json.Marshal(ev)
			if err != nil {
				logger.Debugf("dashboard event marshal failed: %v", err)
				continue
			}

			d.clientsMu.RLock()
			conns := make([]*websocket.Conn, 0, len(d.clients))
			for conn := range d.clients {
				conns = append(conns, conn)
			}
			d.clientsMu.RUnlock()

			// Writes happen outside the lock so a stalled client cannot
			// block new connections.
			for _, conn := range conns {
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				err := conn.Write(ctx, websocket.MessageText, data)
				cancel()
				if err != nil {
					d.removeClient(conn)
				}
			}
		}
	}
}

func (d *Dashboard) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		logger.Debugf("websocket upgrade failed: %v", err)
		return
	}

	d.clientsMu.Lock()
	d.clients[conn] = true
	count := len(d.clients)
	d.clientsMu.Unlock()
	logger.Debugf("dashboard client connected (total %d)", count)

	go d.readLoop(conn)
}

// readLoop drains client frames so pings are answered and disconnects are
// noticed; inbound payloads are ignored.
func (d *Dashboard) readLoop(conn *websocket.Conn) {
	defer d.removeClient(conn)
	for {
		if _, _, err := conn.Read(d.ctx); err != nil {
			return
		}
	}
}

func (d *Dashboard) removeClient(conn *websocket.Conn) {
	d.clientsMu.Lock()
	if _, ok := d.clients[conn]; ok {
		delete(d.clients, conn)
		d.clientsMu.Unlock()
		_ = conn.Close(websocket.StatusNormalClosure, "")
		return
	}
	d.clientsMu.Unlock()
}

func (d *Dashboard) handleHealth(w http.ResponseWriter, r *http.Request) {
	d.clientsMu.RLock()
	count := len(d.clients)
	d.clientsMu.RUnlock()

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"status":  "ok",
		"clients": count,
	})
}

// Addr returns the bound listen address once Start has succeeded.
func (d *Dashboard) Addr() string {
	if d.listener != nil {
		return d.listener.Addr().String()
	}
	return d.addr
}

// ClientCount reports the number of connected clients.
func (d *Dashboard) ClientCount() int {
	d.clientsMu.RLock()
	defer d.clientsMu.RUnlock()
	return len(d.clients)
}
