package events

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

	"backtest-lab/internal/domain"
)

// wire format for one snapshot frame.
type snapshotFrame struct {
	RunID      string   `json:"run_id"`
	Sequence   int      `json:"sequence"`
	Phase      string   `json:"phase"`
	Progress   float64  `json:"progress"`
	TradeCount int      `json:"trade_count"`
	PValue     *float64 `json:"p_value,omitempty"`
	FinalEq    *float64 `json:"final_equity,omitempty"`
}

// WSHub is a Sink that broadcasts snapshots to WebSocket subscribers.
// Clients that cannot keep up have their send buffer dropped, never
// the pipeline blocked.
type WSHub struct {
	upgrader websocket.Upgrader
	logger   *log.Logger

	mu      sync.Mutex
	clients map[*wsClient]struct{}
	closed  bool
}

type wsClient struct {
	conn *websocket.Conn
	send chan []byte
}

// clientBuffer is the per-client outbound frame buffer.
const clientBuffer = 64

// NewWSHub creates a hub with no connected clients.
func NewWSHub(logger *log.Logger) *WSHub {
	if logger == nil {
		logger = log.Default()
	}
	return &WSHub{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		logger:  logger,
		clients: make(map[*wsClient]struct{}),
	}
}

var _ Sink = (*WSHub)(nil)

// ServeHTTP upgrades the request and registers the client.
func (h *WSHub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Printf("[events] upgrade failed: %v", err)
		return
	}

	client := &wsClient{conn: conn, send: make(chan []byte, clientBuffer)}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		conn.Close()
		return
	}
	h.clients[client] = struct{}{}
	h.mu.Unlock()

	go h.writeLoop(client)
	go h.readLoop(client)
}

// Publish implements Sink. Full client buffers drop the frame for that
// client only.
func (h *WSHub) Publish(_ context.Context, snap *domain.SummarySnapshot) {
	frame := snapshotFrame{
		RunID:      snap.RunID,
		Sequence:   snap.Sequence,
		Phase:      string(snap.Phase),
		Progress:   snap.Progress,
		TradeCount: snap.TradeCount,
		PValue:     snap.PValue,
		FinalEq:    snap.FinalEquity,
	}
	data, err := json.Marshal(frame)
	if err != nil {
		h.logger.Printf("[events] marshal snapshot: %v", err)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for client := range h.clients {
		select {
		case client.send <- data:
		default:
			// slow client, frame dropped
		}
	}
}

// Close disconnects all clients.
func (h *WSHub) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil
	}
	h.closed = true
	for client := range h.clients {
		close(client.send)
		delete(h.clients, client)
	}
	return nil
}

func (h *WSHub) writeLoop(client *wsClient) {
	defer client.conn.Close()
	for data := range client.send {
		if err := client.conn.WriteMessage(websocket.TextMessage, data); err != nil {
			h.drop(client)
			return
		}
	}
}

// readLoop drains control frames and detects disconnects.
func (h *WSHub) readLoop(client *wsClient) {
	for {
		if _, _, err := client.conn.ReadMessage(); err != nil {
			h.drop(client)
			return
		}
	}
}

func (h *WSHub) drop(client *wsClient) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[client]; ok {
		delete(h.clients, client)
		close(client.send)
	}
}
