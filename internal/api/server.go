// Package api exposes sessions over HTTP and streams their events over
// WebSocket.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/websocket"

	"github.com/loqalabs/loqa-concierge/internal/bus"
	"github.com/loqalabs/loqa-concierge/internal/calendar"
	"github.com/loqalabs/loqa-concierge/internal/eventstore"
	"github.com/loqalabs/loqa-concierge/internal/intent"
	"github.com/loqalabs/loqa-concierge/internal/interaction"
	"github.com/loqalabs/loqa-concierge/internal/locale"
	"github.com/loqalabs/loqa-concierge/internal/weather"
)

const maxBodyBytes = 64 << 10

// Weather serves the weather screens.
type Weather interface {
	Today(ctx context.Context) (weather.Today, error)
	Week(ctx context.Context) (weather.Week, error)
}

type Server struct {
	sessions *interaction.Manager
	weather  Weather
	store    *eventstore.Store
	bus      *bus.Client
	logger   *slog.Logger
	upgrader websocket.Upgrader
}

// Options wires the optional collaborators. A nil Weather disables the
// weather routes and a nil Bus disables the event stream.
type Options struct {
	Weather Weather
	Store   *eventstore.Store
	Bus     *bus.Client
}

func New(sessions *interaction.Manager, opts Options, logger *slog.Logger) *Server {
	return &Server{
		sessions: sessions,
		weather:  opts.Weather,
		store:    opts.Store,
		bus:      opts.Bus,
		logger:   logger.With(slog.String("component", "api")),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
}

// Register adds the session routes to mux.
func (s *Server) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /sessions", s.handleMount)
	mux.HandleFunc("GET /sessions", s.handleList)
	mux.HandleFunc("GET /sessions/{id}", s.handleSnapshot)
	mux.HandleFunc("DELETE /sessions/{id}", s.handleUnmount)
	mux.HandleFunc("PUT /sessions/{id}/message", s.handleMessage)
	mux.HandleFunc("PUT /sessions/{id}/language", s.handleLanguage)
	mux.HandleFunc("POST /sessions/{id}/send", s.handleSend)
	mux.HandleFunc("POST /sessions/{id}/listen", s.handleListen)
	mux.HandleFunc("POST /sessions/{id}/listen/stop", s.handleStop)
	mux.HandleFunc("POST /sessions/{id}/screen", s.handleNavigate)
	mux.HandleFunc("POST /sessions/{id}/screen/back", s.handleBack)
	mux.HandleFunc("GET /sessions/{id}/calendar", s.handleCalendar)
	mux.HandleFunc("POST /sessions/{id}/calendar", s.handleCalendarCommand)
	mux.HandleFunc("GET /sessions/{id}/weather/{kind}", s.handleWeather)
	mux.HandleFunc("GET /sessions/{id}/events", s.handleEvents)
	mux.HandleFunc("GET /sessions/{id}/ws", s.handleStream)
}

type mountRequest struct {
	Language string `json:"language"`
}

func (s *Server) handleMount(w http.ResponseWriter, r *http.Request) {
	var req mountRequest
	if r.ContentLength != 0 {
		if !decode(w, r, &req) {
			return
		}
	}
	var lang locale.Tag
	if req.Language != "" {
		tag, err := locale.Parse(req.Language)
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		lang = tag
	}
	c, err := s.sessions.Mount(lang)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, interaction.ErrTooManySessions) {
			status = http.StatusTooManyRequests
		}
		writeError(w, status, err)
		return
	}
	writeJSON(w, http.StatusCreated, c.Snapshot())
}

func (s *Server) handleList(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string][]string{"sessions": s.sessions.IDs()})
}

func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	c, ok := s.session(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, c.Snapshot())
}

func (s *Server) handleUnmount(w http.ResponseWriter, r *http.Request) {
	if err := s.sessions.Unmount(r.PathValue("id")); err != nil {
		writeError(w, http.StatusNotFound, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type messageRequest struct {
	Text string `json:"text"`
}

func (s *Server) handleMessage(w http.ResponseWriter, r *http.Request) {
	c, ok := s.session(w, r)
	if !ok {
		return
	}
	var req messageRequest
	if !decode(w, r, &req) {
		return
	}
	if err := c.SetMessage(req.Text); err != nil {
		writeError(w, http.StatusConflict, err)
		return
	}
	writeJSON(w, http.StatusOK, c.Snapshot())
}

type languageRequest struct {
	Language string `json:"language"`
}

func (s *Server) handleLanguage(w http.ResponseWriter, r *http.Request) {
	c, ok := s.session(w, r)
	if !ok {
		return
	}
	var req languageRequest
	if !decode(w, r, &req) {
		return
	}
	tag, err := locale.Parse(req.Language)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := c.SetLanguage(tag); err != nil {
		writeError(w, http.StatusConflict, err)
		return
	}
	writeJSON(w, http.StatusOK, c.Snapshot())
}

// handleSend accepts the send and returns at once; ?wait=true blocks until
// the reply has been applied.
func (s *Server) handleSend(w http.ResponseWriter, r *http.Request) {
	c, ok := s.session(w, r)
	if !ok {
		return
	}
	done := c.SubmitMessage()
	s.respondAsync(w, r, c, done)
}

func (s *Server) handleListen(w http.ResponseWriter, r *http.Request) {
	c, ok := s.session(w, r)
	if !ok {
		return
	}
	done := c.StartListening()
	s.respondAsync(w, r, c, done)
}

func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	c, ok := s.session(w, r)
	if !ok {
		return
	}
	c.StopListening()
	writeJSON(w, http.StatusAccepted, c.Snapshot())
}

func (s *Server) respondAsync(w http.ResponseWriter, r *http.Request, c *interaction.Controller, done <-chan struct{}) {
	if wait, _ := strconv.ParseBool(r.URL.Query().Get("wait")); wait {
		select {
		case <-done:
			writeJSON(w, http.StatusOK, c.Snapshot())
		case <-r.Context().Done():
		}
		return
	}
	writeJSON(w, http.StatusAccepted, c.Snapshot())
}

type navigateRequest struct {
	Destination string `json:"destination"`
}

func (s *Server) handleNavigate(w http.ResponseWriter, r *http.Request) {
	c, ok := s.session(w, r)
	if !ok {
		return
	}
	var req navigateRequest
	if !decode(w, r, &req) {
		return
	}
	dest, err := intent.Parse(req.Destination)
	if err != nil || !dest.IsDestination() {
		writeError(w, http.StatusBadRequest, errors.New("destination must be one of home|bus|calendar|today_weather|week_weather"))
		return
	}
	if _, err := c.NavigateTo(dest); err != nil {
		writeError(w, http.StatusConflict, err)
		return
	}
	writeJSON(w, http.StatusOK, c.Snapshot())
}

func (s *Server) handleBack(w http.ResponseWriter, r *http.Request) {
	c, ok := s.session(w, r)
	if !ok {
		return
	}
	if _, err := c.Back(); err != nil {
		writeError(w, http.StatusConflict, err)
		return
	}
	writeJSON(w, http.StatusOK, c.Snapshot())
}

type calendarView struct {
	Events  calendar.EventSet `json:"events"`
	Verb    calendar.Verb     `json:"verb,omitempty"`
	Changed bool              `json:"changed"`
}

func (s *Server) handleCalendar(w http.ResponseWriter, r *http.Request) {
	c, ok := s.session(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, calendarView{Events: c.Calendar()})
}

type calendarRequest struct {
	Command string `json:"command"`
	Pending string `json:"pending"`
}

func (s *Server) handleCalendarCommand(w http.ResponseWriter, r *http.Request) {
	c, ok := s.session(w, r)
	if !ok {
		return
	}
	var req calendarRequest
	if !decode(w, r, &req) {
		return
	}
	verb, changed, err := c.ApplyCalendar(req.Command, req.Pending)
	if err != nil {
		writeError(w, http.StatusConflict, err)
		return
	}
	writeJSON(w, http.StatusOK, calendarView{Events: c.Calendar(), Verb: verb, Changed: changed})
}

func (s *Server) handleWeather(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.session(w, r); !ok {
		return
	}
	if s.weather == nil {
		writeError(w, http.StatusServiceUnavailable, errors.New("weather lookup disabled"))
		return
	}
	var (
		v   any
		err error
	)
	switch r.PathValue("kind") {
	case "today":
		v, err = s.weather.Today(r.Context())
	case "week":
		v, err = s.weather.Week(r.Context())
	default:
		writeError(w, http.StatusNotFound, errors.New("weather kind must be today or week"))
		return
	}
	if err != nil {
		s.logger.Warn("weather lookup failed", slogError(err))
		writeError(w, http.StatusBadGateway, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

type eventView struct {
	ID        int64           `json:"id"`
	Type      string          `json:"type"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	CreatedAt string          `json:"created_at"`
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	c, ok := s.session(w, r)
	if !ok {
		return
	}
	if s.store == nil {
		writeError(w, http.StatusServiceUnavailable, errors.New("event timeline unavailable"))
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	events, err := s.store.ListSessionEvents(r.Context(), c.ID(), limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	views := make([]eventView, 0, len(events))
	for _, e := range events {
		v := eventView{ID: e.ID, Type: e.Type, CreatedAt: e.CreatedAt.Format(time.RFC3339Nano)}
		if json.Valid(e.Payload) {
			v.Payload = e.Payload
		}
		views = append(views, v)
	}
	writeJSON(w, http.StatusOK, map[string]any{"events": views})
}

func (s *Server) session(w http.ResponseWriter, r *http.Request) (*interaction.Controller, bool) {
	id := r.PathValue("id")
	c, ok := s.sessions.Get(id)
	if !ok {
		writeError(w, http.StatusNotFound, interaction.ErrUnknownSession)
		return nil, false
	}
	return c, true
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func slogError(err error) slog.Attr {
	return slog.String("error", err.Error())
}
