// Package observer broadcasts a run's events to websocket observers.
package observer

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"renderbot.ai/internal/nav"
	"renderbot.ai/internal/observerproto"
	"renderbot.ai/internal/protocol"
)

const (
	clientQueue = 256
	maxBacklog  = 1024
)

// Hub fans events out to observers. It implements nav.Sink.
type Hub struct {
	session  string
	renderer string
	goal     protocol.Coord
	log      *zap.Logger

	upgrader websocket.Upgrader
	nextID   atomic.Uint64
	dropped  atomic.Uint64

	mu      sync.Mutex
	clients map[uint64]chan []byte
	backlog [][]byte
	seq     int
	closed  bool
}

func NewHub(session, renderer string, goal protocol.Coord, logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		session:  session,
		renderer: renderer,
		goal:     goal,
		log:      logger,
		clients:  map[uint64]chan []byte{},
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4 * 1024,
			WriteBufferSize: 16 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true }, // loopback only
		},
	}
}

func (h *Hub) Append(ev protocol.GameEvent) error {
	h.mu.Lock()
	h.seq++
	msg := observerproto.EventMsg{
		Type:            observerproto.TypeEvent,
		ProtocolVersion: observerproto.Version,
		Session:         h.session,
		Seq:             h.seq,
		Instruction:     ev.Instruction.Tag(),
		Status:          ev.Status,
		Message:         ev.Message,
		Position:        ev.Position,
	}
	h.mu.Unlock()

	b, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	h.broadcast(b, true)
	return nil
}

// Finish sends the run summary to every observer.
func (h *Hub) Finish(res nav.Result, runErr error) {
	msg := observerproto.SummaryMsg{
		Type:            observerproto.TypeSummary,
		ProtocolVersion: observerproto.Version,
		Session:         h.session,
		Iterations:      res.Iterations,
		ReachedGoal:     res.ReachedGoal,
		Final:           res.Final,
	}
	if runErr != nil {
		msg.Error = runErr.Error()
	}
	b, _ := json.Marshal(msg)
	h.broadcast(b, false)
}

func (h *Hub) broadcast(b []byte, keep bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	if keep {
		h.backlog = append(h.backlog, b)
		if len(h.backlog) > maxBacklog {
			h.backlog = h.backlog[len(h.backlog)-maxBacklog:]
		}
	}
	for id, out := range h.clients {
		select {
		case out <- b:
		default:
			// Slow observer: drop rather than stall the run.
			h.dropped.Add(1)
			h.log.Debug("observer queue full", zap.Uint64("observer", id))
		}
	}
}

func (h *Hub) Observers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

func (h *Hub) Dropped() uint64 { return h.dropped.Load() }

// Close disconnects every observer.
func (h *Hub) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil
	}
	h.closed = true
	for id, out := range h.clients {
		close(out)
		delete(h.clients, id)
	}
	return nil
}

func (h *Hub) join(backlog int) (uint64, chan []byte, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return 0, nil, false
	}
	if backlog > len(h.backlog) {
		backlog = len(h.backlog)
	}
	out := make(chan []byte, clientQueue+backlog)
	for _, b := range h.backlog[len(h.backlog)-backlog:] {
		out <- b
	}
	id := h.nextID.Add(1)
	h.clients[id] = out
	return id, out, true
}

func (h *Hub) leave(id uint64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if out, ok := h.clients[id]; ok {
		close(out)
		delete(h.clients, id)
	}
}

// Mux serves /v1/bootstrap and /v1/events.
func (h *Hub) Mux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/bootstrap", h.BootstrapHandler())
	mux.HandleFunc("/v1/events", h.WSHandler())
	return mux
}

func (h *Hub) BootstrapHandler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			rw.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		if !isLoopbackRemote(r.RemoteAddr) {
			http.Error(rw, "forbidden", http.StatusForbidden)
			return
		}
		h.mu.Lock()
		resp := observerproto.BootstrapResponse{
			ProtocolVersion: observerproto.Version,
			Session:         h.session,
			Renderer:        h.renderer,
			Goal:            h.goal,
			Events:          h.seq,
			Observers:       len(h.clients),
		}
		h.mu.Unlock()

		rw.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(rw).Encode(resp)
	}
}

func (h *Hub) WSHandler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		if !isLoopbackRemote(r.RemoteAddr) {
			http.Error(rw, "forbidden", http.StatusForbidden)
			return
		}

		conn, err := h.upgrader.Upgrade(rw, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		// Handshake: must send SUBSCRIBE first.
		_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var sub observerproto.SubscribeMsg
		if err := json.Unmarshal(msg, &sub); err != nil || sub.Type != observerproto.TypeSubscribe || sub.ProtocolVersion != observerproto.Version {
			_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "expected SUBSCRIBE"), time.Now().Add(time.Second))
			return
		}
		if sub.Backlog < 0 {
			sub.Backlog = 0
		}

		id, out, ok := h.join(sub.Backlog)
		if !ok {
			_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, "feed closed"), time.Now().Add(time.Second))
			return
		}
		defer h.leave(id)
		h.log.Info("observer joined", zap.String("observer", fmt.Sprintf("O%d", id)), zap.String("remote", r.RemoteAddr))

		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()

		// Writer goroutine.
		writeErr := make(chan error, 1)
		go func() {
			for {
				select {
				case <-ctx.Done():
					writeErr <- ctx.Err()
					return
				case b, ok := <-out:
					if !ok {
						_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye"), time.Now().Add(time.Second))
						writeErr <- nil
						return
					}
					_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
					if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
						writeErr <- err
						return
					}
				}
			}
		}()

		// Reader loop: only detects the observer going away.
		go func() {
			for {
				_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
				if _, _, err := conn.ReadMessage(); err != nil {
					cancel()
					return
				}
			}
		}()

		<-writeErr
		h.log.Info("observer left", zap.String("observer", fmt.Sprintf("O%d", id)))
	}
}

func isLoopbackRemote(remoteAddr string) bool {
	host := remoteAddr
	if h, _, err := net.SplitHostPort(remoteAddr); err == nil {
		host = h
	}
	host = strings.TrimPrefix(host, "[")
	host = strings.TrimSuffix(host, "]")
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
