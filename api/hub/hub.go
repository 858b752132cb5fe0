// Package hub fans SLA events out to websocket subscribers. A subscriber
// may narrow its feed with ?job=<id> and ?types=sla.breach,job.stage.
package hub

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	TypeSLAStatus = "sla.status"
	TypeSLABreach = "sla.breach"
	TypeJobStage  = "job.stage"
	TypeJobStatus = "job.status"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
	sendBuffer = 64
)

type Event struct {
	Type    string      `json:"type"`
	JobID   string      `json:"jobId"`
	Payload interface{} `json:"payload"`
}

// Filter selects the events a subscriber receives. Zero values match all.
type Filter struct {
	JobID string
	Types map[string]bool
}

// ParseFilter reads a Filter from subscription query parameters.
func ParseFilter(q url.Values) Filter {
	f := Filter{JobID: strings.TrimSpace(q.Get("job"))}
	for _, t := range strings.Split(q.Get("types"), ",") {
		if t = strings.TrimSpace(t); t != "" {
			if f.Types == nil {
				f.Types = make(map[string]bool)
			}
			f.Types[t] = true
		}
	}
	return f
}

func (f Filter) Match(evt Event) bool {
	if f.JobID != "" && evt.JobID != f.JobID {
		return false
	}
	return f.Types == nil || f.Types[evt.Type]
}

type message struct {
	evt  Event
	data []byte
}

type subscriber struct {
	conn   *websocket.Conn
	send   chan []byte
	filter Filter
}

type Hub struct {
	mu          sync.RWMutex
	subscribers map[*subscriber]struct{}
	messages    chan message
	join        chan *subscriber
	leave       chan *subscriber
	done        chan struct{}
	upgrader    websocket.Upgrader
}

func New(allowedOrigins []string) *Hub {
	allowed := make(map[string]bool, len(allowedOrigins))
	for _, o := range allowedOrigins {
		allowed[o] = true
	}

	return &Hub{
		subscribers: make(map[*subscriber]struct{}),
		messages:    make(chan message, 256),
		join:        make(chan *subscriber),
		leave:       make(chan *subscriber),
		done:        make(chan struct{}),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return originAllowed(r.Header.Get("Origin"), allowed)
			},
		},
	}
}

func originAllowed(origin string, allowed map[string]bool) bool {
	if origin == "" {
		return true // CLI and curl send none
	}
	if allowed[origin] {
		return true
	}
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	host := u.Hostname()
	return host == "localhost" || host == "127.0.0.1" || host == "::1"
}

// Run delivers messages until ctx is cancelled, then disconnects everyone.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for s := range h.subscribers {
				h.drop(s)
			}
			h.mu.Unlock()
			close(h.done)
			return
		case s := <-h.join:
			h.mu.Lock()
			h.subscribers[s] = struct{}{}
			h.mu.Unlock()
		case s := <-h.leave:
			h.mu.Lock()
			h.drop(s)
			h.mu.Unlock()
		case m := <-h.messages:
			h.mu.Lock()
			for s := range h.subscribers {
				if !s.filter.Match(m.evt) {
					continue
				}
				select {
				case s.send <- m.data:
				default:
					log.Printf("hub: dropping slow subscriber %s", s.conn.RemoteAddr())
					h.drop(s)
				}
			}
			h.mu.Unlock()
		}
	}
}

// drop must be called with mu held.
func (h *Hub) drop(s *subscriber) {
	if _, ok := h.subscribers[s]; ok {
		delete(h.subscribers, s)
		close(s.send)
	}
}

// Broadcast queues evt for every subscriber whose filter matches it.
func (h *Hub) Broadcast(evt Event) {
	data, err := json.Marshal(evt)
	if err != nil {
		log.Printf("hub: marshal %s: %v", evt.Type, err)
		return
	}
	select {
	case h.messages <- message{evt: evt, data: data}:
	case <-h.done:
	}
}

// ClientCount reports connected subscribers for the health endpoint.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subscribers)
}

func (h *Hub) HandleConnect(w http.ResponseWriter, r *http.Request) {
	filter := ParseFilter(r.URL.Query())
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("hub: ws upgrade: %v", err)
		return
	}

	s := &subscriber{conn: conn, send: make(chan []byte, sendBuffer), filter: filter}
	select {
	case h.join <- s:
	case <-h.done:
		conn.Close()
		return
	}

	go s.writePump()
	go s.readPump(h)
}

func (s *subscriber) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		s.conn.Close()
	}()
	for {
		select {
		case msg, ok := <-s.send:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				s.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, ""))
				return
			}
			if err := s.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump discards client messages; it exists to process control frames
// and notice disconnects.
func (s *subscriber) readPump(h *Hub) {
	defer func() {
		select {
		case h.leave <- s:
		case <-h.done:
		}
		s.conn.Close()
	}()
	s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := s.conn.ReadMessage(); err != nil {
			return
		}
	}
}
