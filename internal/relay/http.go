package relay

import (
	"encoding/json"
	"net/http"

	"cardlink/internal/logs"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
)

type Handler struct {
	hub      *Hub
	upgrader websocket.Upgrader
}

// NewHandler — пустой allowedOrigins = принимаем любой Origin
// (как и исходный relay, живущий за доверенным периметром).
func NewHandler(hub *Hub, allowedOrigins []string) *Handler {
	return &Handler{
		hub: hub,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				if len(allowedOrigins) == 0 {
					return true
				}
				origin := r.Header.Get("Origin")
				for _, o := range allowedOrigins {
					if o == origin || o == "*" {
						return true
					}
				}
				return false
			},
		},
	}
}

func (h *Handler) RegisterRoutes(r *mux.Router) {
	// websocket: GET /relay/socket?role=reader|client
	r.HandleFunc("/relay/socket", h.serveSocket)

	// REST-вид статуса для панелей портала
	r.HandleFunc("/api/v1/reader/status", h.readerStatus).Methods(http.MethodGet)
}

func (h *Handler) serveSocket(w http.ResponseWriter, r *http.Request) {
	role := RoleClient
	if r.URL.Query().Get("role") == string(RoleReader) {
		role = RoleReader
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade сам пишет ответ клиенту
		logs.Logger.Warnf("relay: upgrade failed: %v", err)
		return
	}

	c := newClient(h.hub, conn, role)
	h.hub.Register(c)
	go c.writePump()
	go c.readPump()
}

func (h *Handler) readerStatus(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(h.hub.Status())
}
