// meshcore-web serves a browser UI for a MeshCore node: an HTTP/WebSocket
// gateway in front of the companion-radio client.
package main

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/teabreakninja/go-meshcore/app/client"
	"github.com/teabreakninja/go-meshcore/app/config"
	"github.com/teabreakninja/go-meshcore/app/protocol"
)

var (
	flagConfig string
	flagListen string
)

func main() {
	root := &cobra.Command{
		Use:          "meshcore-web",
		Short:        "Web gateway for a MeshCore companion radio",
		SilenceUsage: true,
		RunE:         run,
	}
	root.Flags().StringVarP(&flagConfig, "config", "c", "", "path to TOML config file")
	root.Flags().StringVarP(&flagListen, "listen", "l", "", "listen address (overrides config)")

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(flagConfig)
	if err != nil {
		return err
	}
	if flagListen != "" {
		cfg.ListenAddr = flagListen
	}

	log := newLogger(cfg.LogLevel)

	hub := NewHub(log)
	go hub.Run()
	gw := NewGateway(cfg, hub, log)

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/", func(w http.ResponseWriter, req *http.Request) {
		http.ServeFile(w, req, "static/index.html")
	})
	r.Handle("/static/*", http.StripPrefix("/static/", http.FileServer(http.Dir("static"))))

	r.Get("/ws", func(w http.ResponseWriter, req *http.Request) {
		serveWs(hub, gw, log, w, req)
	})

	r.Post("/api/connect", handleConnect(gw, hub, log))
	r.Post("/api/disconnect", handleDisconnect(gw, hub))
	r.Post("/api/add-channel", handleAddChannel(gw, hub, log))
	r.Post("/api/clear-channel", handleClearChannel(gw, hub, log))

	log.Info().Str("addr", cfg.ListenAddr).Msg("meshcore web gateway listening")
	if err := http.ListenAndServe(cfg.ListenAddr, r); err != nil {
		log.Error().Err(err).Msg("server stopped")
		return err
	}
	return nil
}

func newLogger(level string) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || level == "" {
		lvl = zerolog.InfoLevel
	}
	out := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
	return zerolog.New(out).Level(lvl).With().Timestamp().Logger()
}

func serveWs(hub *Hub, gw *Gateway, log zerolog.Logger, w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}
	c := &wsClient{hub: hub, conn: conn, send: make(chan []byte, 256), log: log}
	hub.register <- c
	go c.writePump()

	c.sendJSON(OutgoingMessage{
		Type: "node_status",
		Payload: NodeStatusPayload{
			Connected:  gw.IsConnected(),
			DeviceInfo: gw.DeviceInfo(),
		},
	})

	// Push the full state up front so the frontend does not have to poll.
	if gw.IsConnected() {
		ctx, cancel := context.WithTimeout(r.Context(), client.DefaultCommandTimeout)
		state, err := gw.State(ctx)
		cancel()
		if err != nil {
			log.Warn().Err(err).Msg("error loading initial state for new client")
			c.sendJSON(OutgoingMessage{Type: "error", ErrorMsg: "failed to load initial state"})
		} else {
			c.sendJSON(OutgoingMessage{Type: "state", Payload: state})
		}
	}
	c.readPump(gw)
}

type connectRequest struct {
	Host string `json:"host"`
	Port int    `json:"port"`
}

type connectResponse struct {
	Success   bool   `json:"success"`
	Error     string `json:"error,omitempty"`
	Connected bool   `json:"connected"`
	Address   string `json:"address"`
	Firmware  string `json:"firmware,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func handleConnect(gw *Gateway, hub *Hub, log zerolog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req connectRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, connectResponse{Success: false, Error: "invalid request"})
			return
		}

		if err := gw.Connect(req.Host, req.Port); err != nil {
			writeJSON(w, http.StatusBadRequest, connectResponse{Success: false, Error: err.Error()})
			return
		}

		info := gw.DeviceInfo()
		writeJSON(w, http.StatusOK, connectResponse{
			Success:   true,
			Connected: true,
			Address:   gw.Address(),
			Firmware:  info.FirmwareVersion,
		})

		hub.Broadcast(OutgoingMessage{
			Type: "node_status",
			Payload: NodeStatusPayload{
				Connected:  true,
				DeviceInfo: info,
			},
		})

		// Push the full state so the frontend updates without a refresh.
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), client.DefaultCommandTimeout)
			defer cancel()
			state, err := gw.State(ctx)
			if err != nil {
				log.Warn().Err(err).Msg("error loading state after connect")
				return
			}
			hub.Broadcast(OutgoingMessage{Type: "state", Payload: state})
		}()
	}
}

func handleDisconnect(gw *Gateway, hub *Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		gw.Disconnect()
		writeJSON(w, http.StatusOK, connectResponse{Success: true, Connected: false})
		hub.Broadcast(OutgoingMessage{
			Type:    "node_status",
			Payload: NodeStatusPayload{Connected: false},
		})
	}
}

func handleAddChannel(gw *Gateway, hub *Hub, log zerolog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			ChannelIdx int    `json:"channelIdx"`
			Name       string `json:"name"`
			Secret     string `json:"secret"` // hex-encoded 16-byte secret
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]interface{}{"success": false, "error": "invalid request"})
			return
		}

		var secret []byte
		if req.Secret != "" {
			var err error
			secret, err = hex.DecodeString(req.Secret)
			if err != nil || len(secret) != protocol.ChannelSecretSize {
				writeJSON(w, http.StatusBadRequest, map[string]interface{}{
					"success": false,
					"error":   "secret must be 32 hex characters (16 bytes)",
				})
				return
			}
		}

		ctx, cancel := context.WithTimeout(r.Context(), client.DefaultCommandTimeout)
		defer cancel()
		if err := gw.SetChannel(ctx, req.ChannelIdx, req.Name, secret); err != nil {
			writeJSON(w, http.StatusInternalServerError, map[string]interface{}{"success": false, "error": err.Error()})
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{"success": true})

		broadcastState(ctx, gw, hub, log)
	}
}

func handleClearChannel(gw *Gateway, hub *Hub, log zerolog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			ChannelIdx int `json:"channelIdx"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]interface{}{"success": false, "error": "invalid request"})
			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), client.DefaultCommandTimeout)
		defer cancel()

		// Clearing a slot writes a blank name and a zeroed secret.
		if err := gw.SetChannel(ctx, req.ChannelIdx, "", make([]byte, protocol.ChannelSecretSize)); err != nil {
			writeJSON(w, http.StatusInternalServerError, map[string]interface{}{"success": false, "error": err.Error()})
			return
		}
		gw.ClearChannelMessages(fmt.Sprintf("ch%d", req.ChannelIdx))
		writeJSON(w, http.StatusOK, map[string]interface{}{"success": true})

		broadcastState(ctx, gw, hub, log)
	}
}

func broadcastState(ctx context.Context, gw *Gateway, hub *Hub, log zerolog.Logger) {
	state, err := gw.State(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("failed to refresh state")
		return
	}
	hub.Broadcast(OutgoingMessage{Type: "state", Payload: state})
}
