// Package ws streams committed engine events to websocket clients as
// protobuf Struct frames.
package ws

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"regexp"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/alanyoungcy/convictionmarket/internal/domain"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = pongWait * 9 / 10
	maxMessageSize = 4096
	sendBufferSize = 256
)

var streamIDPattern = regexp.MustCompile(`^[0-9]+(-[0-9]+)?$`)

// Config wires the hub to an optional signal bus.
type Config struct {
	// Bus and Channel select the pub/sub source. With a nil Bus the hub only
	// relays events handed to Publish.
	Bus     domain.SignalBus
	Channel string
	// Stream is the durable event log on Bus. When set, a client may pass
	// ?since=<entry id> to receive up to Backlog logged events before live
	// ones.
	Stream  string
	Backlog int
	// AllowedOrigins restricts browser upgrades; empty allows any origin.
	AllowedOrigins []string
}

// Hub fans events out to connected clients according to each client's
// filter.
type Hub struct {
	cfg      Config
	upgrader websocket.Upgrader
	logger   *slog.Logger

	mu      sync.RWMutex
	clients map[*client]struct{}
}

// NewHub creates a Hub.
func NewHub(cfg Config, logger *slog.Logger) *Hub {
	if cfg.Backlog <= 0 || cfg.Backlog > sendBufferSize/2 {
		cfg.Backlog = sendBufferSize / 2
	}
	h := &Hub{
		cfg:     cfg,
		logger:  logger.With(slog.String("component", "ws")),
		clients: make(map[*client]struct{}),
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     h.checkOrigin,
	}
	return h
}

func (h *Hub) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" || len(h.cfg.AllowedOrigins) == 0 {
		return true
	}
	for _, o := range h.cfg.AllowedOrigins {
		if o == "*" || o == origin {
			return true
		}
	}
	return false
}

// Run relays bus messages until ctx ends, then disconnects every client.
// Without a bus it only waits for ctx.
func (h *Hub) Run(ctx context.Context) error {
	defer h.closeAll()
	if h.cfg.Bus == nil {
		<-ctx.Done()
		return nil
	}

	msgs, err := h.cfg.Bus.Subscribe(ctx, h.cfg.Channel)
	if err != nil {
		return fmt.Errorf("ws: subscribe %s: %w", h.cfg.Channel, err)
	}
	h.logger.InfoContext(ctx, "ws: relaying", slog.String("channel", h.cfg.Channel))
	for {
		select {
		case <-ctx.Done():
			return nil
		case payload, ok := <-msgs:
			if !ok {
				return nil
			}
			var ev domain.Event
			if err := json.Unmarshal(payload, &ev); err != nil {
				h.logger.WarnContext(ctx, "ws: undecodable event", slog.String("error", err.Error()))
				continue
			}
			h.broadcast(ev, payload)
		}
	}
}

// Publish implements domain.EventPublisher for in-process delivery.
func (h *Hub) Publish(_ context.Context, ev domain.Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("ws: marshal event: %w", err)
	}
	h.broadcast(ev, payload)
	return nil
}

func (h *Hub) broadcast(ev domain.Event, payload []byte) {
	frame, err := EncodeFrame(payload)
	if err != nil {
		h.logger.Warn("ws: encode frame", slog.String("error", err.Error()))
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		if !c.wants(ev) {
			continue
		}
		if c.hold(ev.ID, frame) {
			continue
		}
		h.push(c, frame)
	}
}

// push must be called with h.mu held.
func (h *Hub) push(c *client, frame []byte) {
	select {
	case c.send <- frame:
	default:
		h.logger.Warn("ws: dropping frame for slow client")
	}
}

// catchUp sends c the logged events after since, then the live events that
// arrived meanwhile, skipping any the log already covered.
func (h *Hub) catchUp(ctx context.Context, c *client, since string) {
	msgs, err := h.cfg.Bus.StreamRead(ctx, h.cfg.Stream, since, h.cfg.Backlog)
	if err != nil {
		h.logger.WarnContext(ctx, "ws: catch-up read failed", slog.String("error", err.Error()))
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	c.mu.Lock()
	defer c.mu.Unlock()
	pending := c.pending
	c.pending, c.catchingUp = nil, false
	if _, ok := h.clients[c]; !ok {
		return
	}

	sent := make(map[string]bool, len(msgs))
	for _, m := range msgs {
		var ev domain.Event
		if err := json.Unmarshal(m.Payload, &ev); err != nil || !c.filter.match(ev) {
			continue
		}
		frame, err := EncodeFrame(m.Payload)
		if err != nil {
			continue
		}
		if ev.ID != "" {
			sent[ev.ID] = true
		}
		h.push(c, frame)
	}
	for _, p := range pending {
		if p.id != "" && sent[p.id] {
			continue
		}
		h.push(c, p.frame)
	}
}

// EncodeFrame converts a JSON event payload into a binary
// google.protobuf.Struct message.
func EncodeFrame(payload []byte) ([]byte, error) {
	var fields map[string]any
	if err := json.Unmarshal(payload, &fields); err != nil {
		return nil, err
	}
	s, err := structpb.NewStruct(fields)
	if err != nil {
		return nil, err
	}
	return proto.Marshal(s)
}

// Clients reports the number of connected clients.
func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// HandleWS upgrades the request and registers the client. The query
// parameters "types" and "markets" (comma separated) seed its filter;
// "since" asks for logged events after that stream entry id.
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f, err := parseFilter(q.Get("types"), q.Get("markets"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	since := q.Get("since")
	if since != "" {
		if h.cfg.Bus == nil || h.cfg.Stream == "" {
			http.Error(w, "catch-up needs the event log", http.StatusBadRequest)
			return
		}
		if !streamIDPattern.MatchString(since) {
			http.Error(w, fmt.Sprintf("bad since %q", since), http.StatusBadRequest)
			return
		}
	}
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("ws: upgrade failed", slog.String("error", err.Error()))
		return
	}

	c := &client{hub: h, conn: conn, send: make(chan []byte, sendBufferSize), filter: f, catchingUp: since != ""}
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
	h.logger.Info("ws: client connected", slog.Int("clients", h.Clients()))

	go c.writePump()
	go c.readPump()
	if since != "" {
		h.catchUp(r.Context(), c, since)
	}
}

func (h *Hub) remove(c *client) {
	h.mu.Lock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
	h.mu.Unlock()
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		delete(h.clients, c)
		close(c.send)
	}
}

var _ domain.EventPublisher = (*Hub)(nil)
