package main

import (
	"encoding/json"
	"net"
	"net/http"
	"net/url"

	"github.com/gorilla/websocket"
	"github.com/rs/cors"
	"github.com/skip2/go-qrcode"
	"go.uber.org/zap"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true // Non-browser clients don't send Origin
		}
		u, err := url.Parse(origin)
		if err != nil {
			return false
		}
		return u.Host == r.Host
	},
}

func extractIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// SetupRoutes configures HTTP routes and wraps them in CORS middleware
func SetupRoutes(hub *Hub, cfg *Config, admin *AdminAuth, log *zap.SugaredLogger) http.Handler {
	mux := http.NewServeMux()
	snapshots := NewSnapshotService(hub.engine)

	// WebSocket endpoint
	mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		ip := extractIP(r)
		if !hub.CanAccept(ip) {
			http.Error(w, "too many connections", http.StatusServiceUnavailable)
			return
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Warnw("upgrade error", "err", err)
			return
		}

		hub.TrackConnect(ip)

		client := NewClient(hub, conn, ip)
		hub.register <- client

		go client.WritePump()
		go client.ReadPump()
	})

	// Read-only diagnostic queries
	mux.HandleFunc("/status", snapshots.HandleStatus)
	mux.HandleFunc("/state", snapshots.HandleState)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})

	// Join QR code so phones can scan their way into the lounge
	mux.HandleFunc("/qr", func(w http.ResponseWriter, r *http.Request) {
		target := cfg.PublicURL
		if target == "" {
			scheme := "http"
			if r.TLS != nil {
				scheme = "https"
			}
			target = scheme + "://" + r.Host + "/"
		}
		png, err := qrcode.Encode(target, qrcode.Medium, 256)
		if err != nil {
			http.Error(w, "qr encode failed", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "image/png")
		w.Write(png)
	})

	// Operator endpoints (disabled unless an admin password is configured)
	mux.HandleFunc("/admin/login", handleAdminLogin(admin))
	mux.HandleFunc("/admin/config", handleAdminConfig(hub.engine, admin, log))

	c := cors.New(cors.Options{
		AllowedMethods: []string{http.MethodGet, http.MethodPost},
		AllowedHeaders: []string{"Authorization", "Content-Type"},
	})
	return c.Handler(mux)
}

// handleAdminLogin exchanges the operator password for a bearer token
// POST /admin/login {"password": "..."}
func handleAdminLogin(admin *AdminAuth) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if admin == nil || !admin.Enabled() {
			http.Error(w, "admin disabled", http.StatusNotFound)
			return
		}
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		var body struct {
			Password string `json:"password"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			http.Error(w, "invalid json", http.StatusBadRequest)
			return
		}
		token, err := admin.Login(body.Password)
		if err != nil {
			http.Error(w, "invalid credentials", http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"token": token})
	}
}

// handleAdminConfig reads or hot-updates the engine tunables
// GET  /admin/config              returns current values
// POST /admin/config {json body}  updates provided fields
func handleAdminConfig(engine *Engine, admin *AdminAuth, log *zap.SugaredLogger) http.HandlerFunc {
	type cfg struct {
		ThrottleMs          *int  `json:"throttleMs,omitempty"`
		RejectWhenExhausted *bool `json:"rejectWhenExhausted,omitempty"`
	}

	return func(w http.ResponseWriter, r *http.Request) {
		if admin == nil || !admin.Enabled() {
			http.Error(w, "admin disabled", http.StatusNotFound)
			return
		}
		if err := admin.Authorize(r); err != nil {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}

		switch r.Method {
		case http.MethodGet:
			ms := int(engine.ThrottleInterval().Milliseconds())
			reject := engine.RejectWhenExhausted()
			w.Header().Set("Content-Type", "application/json")
			json.NewEncoder(w).Encode(cfg{ThrottleMs: &ms, RejectWhenExhausted: &reject})
		case http.MethodPost:
			var body cfg
			if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
				http.Error(w, "invalid json", http.StatusBadRequest)
				return
			}
			if body.ThrottleMs != nil && *body.ThrottleMs > 0 {
				engine.SetThrottleInterval(msToDuration(*body.ThrottleMs))
			}
			if body.RejectWhenExhausted != nil {
				engine.SetRejectWhenExhausted(*body.RejectWhenExhausted)
			}
			w.Header().Set("Content-Type", "application/json")
			json.NewEncoder(w).Encode(map[string]bool{"ok": true})
			log.Infow("config updated",
				"throttle", engine.ThrottleInterval(),
				"rejectWhenExhausted", engine.RejectWhenExhausted())
		default:
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		}
	}
}
