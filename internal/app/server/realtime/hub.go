package realtime

import (
	"net/http"
	gosync "sync"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/exp/slog"

	"shiptrack/internal/domain/record"
)

const (
	writeWait   = 10 * time.Second
	pongWait    = 60 * time.Second
	pingPeriod  = pongWait * 9 / 10
	sendBuffer  = 64
	readLimit   = 512
	bufferBytes = 1024
)

type subscriber struct {
	conn *websocket.Conn
	send chan record.Change
}

// Hub рассылает изменения записей всем подключенным клиентам.
// Клиент, который не успевает читать, отключается и перечитает данные при сверке.
type Hub struct {
	log      *slog.Logger
	upgrader websocket.Upgrader

	mu      gosync.Mutex
	clients map[*subscriber]struct{}
	closed  bool
	wg      gosync.WaitGroup
}

func NewHub(log *slog.Logger) *Hub {
	return &Hub{
		log: log.With("component", "realtime_hub"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  bufferBytes,
			WriteBufferSize: bufferBytes,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		clients: make(map[*subscriber]struct{}),
	}
}

func (h *Hub) Publish(change record.Change) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for s := range h.clients {
		select {
		case s.send <- change:
		default:
			h.log.Warn("Клиент не успевает читать ленту, отключаем")
			h.dropLocked(s)
		}
	}
}

func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Debug("websocket upgrade failed", "error", err)
		return
	}

	s := &subscriber{conn: conn, send: make(chan record.Change, sendBuffer)}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"), time.Now().Add(writeWait))
		conn.Close()
		return
	}
	h.clients[s] = struct{}{}
	h.wg.Add(1)
	h.mu.Unlock()

	h.log.Debug("Клиент подписался на ленту", "remote_addr", r.RemoteAddr)

	go h.writeLoop(s)
	h.readLoop(s)
}

// Clients число активных подписчиков
func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Close отключает всех клиентов и ждет завершения их горутин
func (h *Hub) Close() {
	h.mu.Lock()
	h.closed = true
	for s := range h.clients {
		h.dropLocked(s)
	}
	h.mu.Unlock()

	h.wg.Wait()
}

func (h *Hub) dropLocked(s *subscriber) {
	if _, ok := h.clients[s]; !ok {
		return
	}
	delete(h.clients, s)
	close(s.send)
}

func (h *Hub) readLoop(s *subscriber) {
	defer func() {
		h.mu.Lock()
		h.dropLocked(s)
		h.mu.Unlock()
	}()

	s.conn.SetReadLimit(readLimit)
	_ = s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	// клиенты ничего не шлют, чтение нужно для control-фреймов и обнаружения закрытия
	for {
		if _, _, err := s.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Hub) writeLoop(s *subscriber) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		s.conn.Close()
		h.wg.Done()
	}()

	for {
		select {
		case change, ok := <-s.send:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = s.conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := s.conn.WriteJSON(change); err != nil {
				return
			}
		case <-ticker.C:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
