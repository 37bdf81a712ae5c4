package runtime

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/loqalabs/signbridge/internal/device"
	"github.com/loqalabs/signbridge/internal/gesture"
	"github.com/loqalabs/signbridge/internal/protocol"
	"github.com/loqalabs/signbridge/internal/status"
)

type settingsApplier interface {
	ApplySettings(base, gender string) error
}

type buttonPresser interface {
	Known(button string) bool
	Press(button string) bool
}

type gestureViewer interface {
	View() gesture.View
}

type transcriptFeed interface {
	Text() string
	Subscribe() (<-chan string, func())
}

type statusSource interface {
	Current() protocol.DeviceStatus
	Peers() []status.Peer
}

// api is the local HTTP surface of the device.
type api struct {
	state    *device.State
	settings settingsApplier
	buttons  buttonPresser
	gesture  gestureViewer
	feed     transcriptFeed
	status   statusSource
	metrics  http.Handler
	ready    func() bool
	log      *slog.Logger
	upgrader websocket.Upgrader
}

func newAPI(a api) *api {
	a.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     func(*http.Request) bool { return true },
	}
	return &a
}

func (a *api) routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", a.handleHealth)
	mux.HandleFunc("/readyz", a.handleReady)
	if a.metrics != nil {
		mux.Handle("/metrics", a.metrics)
	}
	mux.HandleFunc("GET /settings", a.handleGetSettings)
	mux.HandleFunc("POST /settings", a.handleSetSettings)
	mux.HandleFunc("POST /set_settings", a.handleSetSettings)
	mux.HandleFunc("POST /buttons/{name}", a.handleButton)
	mux.HandleFunc("GET /status", a.handleStatus)
	mux.HandleFunc("GET /transcript", a.handleTranscript)
	mux.HandleFunc("/ws/transcript", a.handleTranscriptSocket)
	return mux
}

type statusMessage struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func (a *api) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (a *api) handleReady(w http.ResponseWriter, _ *http.Request) {
	if a.ready != nil && a.ready() {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
		return
	}
	w.WriteHeader(http.StatusServiceUnavailable)
	_, _ = w.Write([]byte("not ready"))
}

type settingsRequest struct {
	BaseLanguage *string `json:"baseLanguage"`
	Gender       *string `json:"gender"`
}

type settingsResponse struct {
	BaseLanguage string               `json:"baseLanguage"`
	Gender       string               `json:"gender"`
	Supported    []string             `json:"supported"`
	Mode         string               `json:"mode"`
	Pair         *device.LanguagePair `json:"pair"`
}

func (a *api) handleGetSettings(w http.ResponseWriter, _ *http.Request) {
	snap := a.state.Snapshot()
	writeJSON(w, http.StatusOK, settingsResponse{
		BaseLanguage: snap.Settings.BaseLanguage,
		Gender:       snap.Settings.Gender,
		Supported:    a.state.Supported(),
		Mode:         snap.Mode.String(),
		Pair:         snap.Pair,
	})
}

func (a *api) handleSetSettings(w http.ResponseWriter, r *http.Request) {
	invalid := statusMessage{Status: "error", Message: "Invalid settings."}
	var req settingsRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 4096)).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, invalid)
		return
	}
	if req.BaseLanguage == nil || req.Gender == nil {
		writeJSON(w, http.StatusBadRequest, invalid)
		return
	}
	if err := a.settings.ApplySettings(*req.BaseLanguage, *req.Gender); err != nil {
		a.log.Debug("settings rejected", slog.String("error", err.Error()))
		writeJSON(w, http.StatusBadRequest, invalid)
		return
	}
	writeJSON(w, http.StatusOK, statusMessage{Status: "success", Message: "Settings updated."})
}

func (a *api) handleButton(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	if !a.buttons.Known(name) {
		writeJSON(w, http.StatusNotFound, statusMessage{Status: "error", Message: "Unknown button."})
		return
	}
	if !a.buttons.Press(name) {
		writeJSON(w, http.StatusTooManyRequests, statusMessage{Status: "ignored", Message: "Press debounced."})
		return
	}
	writeJSON(w, http.StatusAccepted, statusMessage{Status: "success", Message: "Press accepted."})
}

type statusResponse struct {
	Device  protocol.DeviceStatus `json:"device"`
	Gesture gesture.View          `json:"gesture"`
	Peers   []status.Peer         `json:"peers"`
}

func (a *api) handleStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, statusResponse{
		Device:  a.status.Current(),
		Gesture: a.gesture.View(),
		Peers:   a.status.Peers(),
	})
}

func (a *api) handleTranscript(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, protocol.TranscriptUpdate{Text: a.feed.Text(), Timestamp: time.Now().UTC()})
}

// handleTranscriptSocket pushes the current transcript and every later update
// until the client goes away.
func (a *api) handleTranscriptSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := a.upgrader.Upgrade(w, r, nil)
	if err != nil {
		a.log.Debug("websocket upgrade failed", slog.String("error", err.Error()))
		return
	}
	defer conn.Close()

	updates, unsubscribe := a.feed.Subscribe()
	defer unsubscribe()

	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-closed:
			return
		case <-r.Context().Done():
			return
		case text, ok := <-updates:
			if !ok {
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
			if err := conn.WriteJSON(protocol.TranscriptUpdate{Text: text, Timestamp: time.Now().UTC()}); err != nil {
				a.log.Debug("websocket write failed", slog.String("error", err.Error()))
				return
			}
		}
	}
}
