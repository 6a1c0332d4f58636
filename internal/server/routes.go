package server

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/oklog/ulid/v2"

	"github.com/zakirhyder/huddle/internal/coordinator"
	"github.com/zakirhyder/huddle/internal/store"
)

// Configure the websocket upgrader
var upgrader = websocket.Upgrader{
	ReadBufferSize:  64 * 1024, // 64 KB
	WriteBufferSize: 64 * 1024, // 64 KB

	// Origin checks are left to the deployment's reverse proxy; the
	// coordinator itself accepts any origin.
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// ServeWs returns an http.HandlerFunc that upgrades the connection and hands
// it to the hub.
func ServeWs(hub *coordinator.Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			slog.Error("failed to upgrade connection", "error", err)
			return
		}

		client := &coordinator.Client{
			ID:   ulid.Make().String(),
			Hub:  hub,
			Conn: conn,
			Send: make(chan *coordinator.Envelope, 256),
		}

		client.Hub.Register <- client

		go client.WritePump()
		go client.ReadPump()
	}
}

type createRoomRequest struct {
	HostID    string `json:"hostId"`
	MaxGuests int    `json:"maxGuests"`
}

type createRoomResponse struct {
	RoomID string `json:"roomId"`
}

// createRoom provisions room metadata in the record store. Room creation is
// plumbing around the store, not coordinator state; the session itself is
// created lazily on first join.
func createRoom(st store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}

		var req createRoomRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.HostID == "" {
			http.Error(w, "invalid request", http.StatusBadRequest)
			return
		}
		if req.MaxGuests <= 0 || req.MaxGuests > 3 {
			req.MaxGuests = 3
		}

		roomID := coordinator.GenerateRoomID()
		meta := store.RoomMeta{RoomID: roomID, HostID: req.HostID, MaxGuests: req.MaxGuests, Status: store.RoomActive}
		if err := st.CreateRoom(r.Context(), meta); err != nil {
			slog.Error("failed to create room", "error", err)
			http.Error(w, "failed to create room", http.StatusInternalServerError)
			return
		}

		slog.Info("room created", "room", roomID, "host", req.HostID, "maxGuests", req.MaxGuests)
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(createRoomResponse{RoomID: roomID})
	}
}

func healthCheck(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("Coordinator is healthy."))
}

// NewMux wires the coordinator's HTTP surface.
func NewMux(hub *coordinator.Hub, st store.Store) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", healthCheck)
	mux.HandleFunc("/rooms", createRoom(st))
	mux.HandleFunc("/ws", ServeWs(hub))
	return mux
}
