package ws

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/alanyoungcy/convictionmarket/internal/domain"
)

// filter selects events by type and market. Empty sets match everything.
type filter struct {
	types   map[domain.EventType]bool
	markets map[uint64]bool
}

func (f filter) match(ev domain.Event) bool {
	if len(f.types) > 0 && !f.types[ev.Type] {
		return false
	}
	if len(f.markets) > 0 && !f.markets[ev.MarketID] {
		return false
	}
	return true
}

func parseFilter(types, markets string) (filter, error) {
	f := filter{types: map[domain.EventType]bool{}, markets: map[uint64]bool{}}
	for _, t := range strings.Split(types, ",") {
		if t = strings.TrimSpace(t); t != "" {
			f.types[domain.EventType(t)] = true
		}
	}
	for _, m := range strings.Split(markets, ",") {
		if m = strings.TrimSpace(m); m == "" {
			continue
		}
		id, err := strconv.ParseUint(m, 10, 64)
		if err != nil {
			return filter{}, fmt.Errorf("bad market id %q", m)
		}
		f.markets[id] = true
	}
	return f, nil
}

// control is a client request to replace its filter, e.g.
// {"types":["market_resolved"],"markets":[3,4]}.
type control struct {
	Types   []domain.EventType `json:"types"`
	Markets []uint64           `json:"markets"`
}

type client struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte

	mu     sync.RWMutex
	filter filter
	// While catchingUp, live frames wait in pending behind the backlog.
	catchingUp bool
	pending    []heldFrame
}

type heldFrame struct {
	id    string
	frame []byte
}

// hold parks a live frame while the client is catching up.
func (c *client) hold(id string, frame []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.catchingUp {
		return false
	}
	c.pending = append(c.pending, heldFrame{id: id, frame: frame})
	return true
}

func (c *client) wants(ev domain.Event) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.filter.match(ev)
}

func (c *client) apply(ctl control) {
	f := filter{types: map[domain.EventType]bool{}, markets: map[uint64]bool{}}
	for _, t := range ctl.Types {
		f.types[t] = true
	}
	for _, m := range ctl.Markets {
		f.markets[m] = true
	}
	c.mu.Lock()
	c.filter = f
	c.mu.Unlock()
}

func (c *client) readPump() {
	defer func() {
		c.hub.remove(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, msg, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.logger.Warn("ws: unexpected close", slog.String("error", err.Error()))
			}
			return
		}
		var ctl control
		if err := json.Unmarshal(msg, &ctl); err != nil {
			continue
		}
		c.apply(ctl)
	}
}

func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case frame, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.BinaryMessage, frame); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
