package api

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/radiomesh/radiomesh/internal/models"
)

const (
	wsWriteTimeout = 10 * time.Second
	wsPingInterval = 30 * time.Second
)

var upgrader = websocket.Upgrader{
	// The API is fronted by the same CORS policy as the REST routes; a
	// browser dashboard on a different origin is the expected caller.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// eventFeed fans every published event out to connected websocket clients.
// Its handle method is the handler cmd/meshd registers on the
// events.Subscriber; events are persisted separately, by meshd's bridge
// loop writing to coordstore directly.
type eventFeed struct {
	mu      sync.Mutex
	clients map[*wsClient]struct{}
}

func newEventFeed() *eventFeed {
	return &eventFeed{clients: make(map[*wsClient]struct{})}
}

type wsClient struct {
	conn *websocket.Conn
	send chan *models.Event
}

func (f *eventFeed) add(c *wsClient) {
	f.mu.Lock()
	f.clients[c] = struct{}{}
	f.mu.Unlock()
}

func (f *eventFeed) remove(c *wsClient) {
	f.mu.Lock()
	delete(f.clients, c)
	f.mu.Unlock()
	close(c.send)
}

func (f *eventFeed) closeAll() {
	f.mu.Lock()
	defer f.mu.Unlock()
	for c := range f.clients {
		c.conn.Close()
	}
}

// handle is registered as an events.Handler so every event published to
// NATS (internal/events) also reaches connected dashboards.
func (f *eventFeed) handle(e *models.Event) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for c := range f.clients {
		select {
		case c.send <- e:
		default:
			// slow client: drop rather than block the whole fan-out
		}
	}
}

func (s *Server) handleEventStream(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error().Err(err).Msg("websocket upgrade failed")
		return
	}

	client := &wsClient{conn: conn, send: make(chan *models.Event, 64)}
	s.feed.add(client)

	go s.writeLoop(client)
	s.readLoop(client)
}

// readLoop's only job is to notice the client went away; the API has no
// inbound websocket messages to act on.
func (s *Server) readLoop(c *wsClient) {
	defer s.feed.remove(c)
	defer c.conn.Close()
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (s *Server) writeLoop(c *wsClient) {
	ticker := time.NewTicker(wsPingInterval)
	defer ticker.Stop()

	for {
		select {
		case e, ok := <-c.send:
			if !ok {
				return
			}
			data, err := json.Marshal(e)
			if err != nil {
				continue
			}
			c.conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
