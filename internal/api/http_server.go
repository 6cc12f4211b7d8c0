package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"p5glab/internal/catalog"
	"p5glab/internal/clock"
	"p5glab/internal/config"
	"p5glab/internal/database"
	"p5glab/internal/domain"
	"p5glab/internal/export"
	"p5glab/internal/models"
	"p5glab/internal/service"

	"github.com/rs/zerolog"
)

// HTTPServer is the HTTP boundary of the booking system. All time parsing
// happens here; the services below only see time.Time values.
type HTTPServer struct {
	cfg      config.APIConfig
	booking  config.BookingConfig
	bookings *service.BookingService
	planner  *service.SlotPlanner
	gate     *service.ActivationGate
	runner   domain.ActionRunner
	exporter *export.Exporter
	catalog  *catalog.Catalog
	clk      clock.Clock
	logger   *zerolog.Logger
	server   *http.Server
	auth     *HTTPAuth
}

type Deps struct {
	Bookings *service.BookingService
	Planner  *service.SlotPlanner
	Gate     *service.ActivationGate
	Runner   domain.ActionRunner
	Exporter *export.Exporter
	Catalog  *catalog.Catalog
	Clock    clock.Clock
	Logger   *zerolog.Logger
}

func NewHTTPServer(cfg config.APIConfig, booking config.BookingConfig, deps Deps) *HTTPServer {
	srv := &HTTPServer{
		cfg:      cfg,
		booking:  booking,
		bookings: deps.Bookings,
		planner:  deps.Planner,
		gate:     deps.Gate,
		runner:   deps.Runner,
		exporter: deps.Exporter,
		catalog:  deps.Catalog,
		clk:      deps.Clock,
		logger:   deps.Logger,
	}
	srv.auth = NewHTTPAuth(cfg)

	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/bookings", srv.handleBookings)
	mux.HandleFunc("/api/v1/bookings/", srv.handleBookingAction)
	mux.HandleFunc("/api/v1/slots", srv.handleSlots)
	mux.HandleFunc("/api/v1/experiments", srv.handleExperiments)
	mux.HandleFunc("/api/v1/export", srv.handleExport)
	mux.HandleFunc("/healthz", srv.handleHealth)

	handler := srv.loggingMiddleware(srv.auth.Wrap(mux))

	srv.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      15 * time.Second,
	}

	return srv
}

func (s *HTTPServer) Start() error {
	if s.server == nil {
		return errors.New("http server is not initialized")
	}
	s.logger.Info().Str("addr", s.server.Addr).Msg("http api listening")
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *HTTPServer) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// Handler exposes the full middleware chain for tests.
func (s *HTTPServer) Handler() http.Handler {
	return s.server.Handler
}

func (s *HTTPServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleBookings serves POST (create) and GET (dashboard listing).
func (s *HTTPServer) handleBookings(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		s.createBooking(w, r)
	case http.MethodGet:
		s.listBookings(w, r)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

type createBookingRequest struct {
	Exp             string `json:"exp"`
	StartTime       string `json:"start_time"`
	DurationMinutes int    `json:"duration_minutes"`
	Username        string `json:"username"`
}

func (s *HTTPServer) createBooking(w http.ResponseWriter, r *http.Request) {
	var body createBookingRequest
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	if body.Exp == "" || body.Username == "" {
		writeError(w, http.StatusBadRequest, "exp and username are required")
		return
	}

	start, err := parseTimestamp(body.StartTime)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid start_time; expected ISO-8601")
		return
	}

	minutes := body.DurationMinutes
	if minutes == 0 {
		minutes = s.booking.DefaultDurationMinutes
	}

	booking, err := s.bookings.CreateBooking(r.Context(), body.Exp, body.Username, start, time.Duration(minutes)*time.Minute)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, bookingResponse(booking, s.clk.Now()))
}

func (s *HTTPServer) listBookings(w http.ResponseWriter, r *http.Request) {
	username := strings.TrimSpace(r.URL.Query().Get("username"))
	if username == "" {
		writeError(w, http.StatusBadRequest, "username is required")
		return
	}

	bookings, err := s.bookings.UserBookings(r.Context(), username)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}

	now := s.clk.Now()
	out := make([]map[string]any, 0, len(bookings))
	for _, b := range bookings {
		out = append(out, bookingResponse(b, now))
	}
	writeJSON(w, http.StatusOK, map[string]any{"bookings": out})
}

// handleBookingAction routes /api/v1/bookings/{id}/cancel and {id}/activate.
func (s *HTTPServer) handleBookingAction(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	rest := strings.TrimPrefix(r.URL.Path, "/api/v1/bookings/")
	parts := strings.Split(rest, "/")
	if len(parts) != 2 {
		writeError(w, http.StatusNotFound, "not found")
		return
	}

	id, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, "invalid booking id")
		return
	}

	var body struct {
		Username string `json:"username"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if body.Username == "" {
		writeError(w, http.StatusBadRequest, "username is required")
		return
	}

	switch parts[1] {
	case "cancel":
		s.cancelBooking(w, r, id, body.Username)
	case "activate":
		s.activateBooking(w, r, id, body.Username)
	default:
		writeError(w, http.StatusNotFound, "not found")
	}
}

func (s *HTTPServer) cancelBooking(w http.ResponseWriter, r *http.Request, id int64, username string) {
	if err := s.bookings.CancelBooking(r.Context(), id, username); err != nil {
		s.writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *HTTPServer) activateBooking(w http.ResponseWriter, r *http.Request, id int64, username string) {
	ref, booking, err := s.gate.Activate(r.Context(), id, username)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}

	// The restart runs in the background; the response never waits for it.
	if s.runner != nil {
		s.runner.Submit(ref)
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"exp":               ref.ExpKey,
		"url":               ref.URL,
		"script":            ref.Script,
		"minutes_remaining": booking.MinutesRemaining(s.clk.Now()),
	})
}

func (s *HTTPServer) handleSlots(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	q := r.URL.Query()
	expKey := strings.TrimSpace(q.Get("exp"))
	if expKey == "" {
		writeError(w, http.StatusBadRequest, "exp is required")
		return
	}

	username := strings.TrimSpace(q.Get("username"))

	now := s.clk.Now()
	targetDate := now
	if raw := strings.TrimSpace(q.Get("date")); raw != "" {
		parsed, err := time.ParseInLocation("2006-01-02", raw, now.Location())
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid date format; expected YYYY-MM-DD")
			return
		}
		targetDate = parsed
	}

	minutes := s.booking.DefaultDurationMinutes
	if raw := strings.TrimSpace(q.Get("duration")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			writeError(w, http.StatusBadRequest, "invalid duration")
			return
		}
		minutes = parsed
	}

	slots, err := s.planner.Generate(r.Context(), expKey, targetDate, now, time.Duration(minutes)*time.Minute, username)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"slots": slots})
}

func (s *HTTPServer) handleExperiments(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	statuses, err := s.bookings.ExperimentStatuses(r.Context())
	if err != nil {
		s.writeServiceError(w, err)
		return
	}

	now := s.clk.Now()
	out := make([]map[string]any, 0, len(statuses))
	for _, st := range statuses {
		entry := map[string]any{"experiment": st.Experiment}
		if st.CurrentBooking != nil {
			entry["current_booking"] = bookingResponse(st.CurrentBooking, now)
		}
		out = append(out, entry)
	}
	writeJSON(w, http.StatusOK, map[string]any{"experiments": out})
}

func (s *HTTPServer) handleExport(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if s.exporter == nil {
		writeError(w, http.StatusNotImplemented, "export is not configured")
		return
	}

	now := s.clk.Now()
	start := startOfDay(now)
	end := start.AddDate(0, 0, 7)

	q := r.URL.Query()
	if raw := strings.TrimSpace(q.Get("from")); raw != "" {
		parsed, err := time.ParseInLocation("2006-01-02", raw, now.Location())
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid from date; expected YYYY-MM-DD")
			return
		}
		start = parsed
	}
	if raw := strings.TrimSpace(q.Get("to")); raw != "" {
		parsed, err := time.ParseInLocation("2006-01-02", raw, now.Location())
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid to date; expected YYYY-MM-DD")
			return
		}
		end = parsed.AddDate(0, 0, 1)
	}
	if !start.Before(end) {
		writeError(w, http.StatusBadRequest, "from must be before to")
		return
	}

	bookings, err := s.bookings.GetBookingsByDateRange(r.Context(), start, end)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}

	path, err := s.exporter.ExportBookings(start, end, bookings, s.catalog.All())
	if err != nil {
		s.logger.Error().Err(err).Msg("export failed")
		writeError(w, http.StatusInternalServerError, "export failed")
		return
	}

	w.Header().Set("Content-Disposition", "attachment; filename=\"bookings.xlsx\"")
	http.ServeFile(w, r, path)
}

func (s *HTTPServer) writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, database.ErrInvalidWindow),
		errors.Is(err, database.ErrDateTooFar),
		errors.Is(err, database.ErrAlreadyStarted),
		errors.Is(err, database.ErrNotActiveWindow):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, database.ErrConflict):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, database.ErrBookingNotFound),
		errors.Is(err, database.ErrUnknownExperiment):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, database.ErrNotOwner):
		writeError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, database.ErrRateLimited):
		writeError(w, http.StatusTooManyRequests, err.Error())
	default:
		s.logger.Error().Err(err).Msg("internal error")
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func bookingResponse(b *models.Booking, now time.Time) map[string]any {
	return map[string]any{
		"id":                b.ID,
		"exp_key":           b.ExpKey,
		"username":          b.Username,
		"start_time":        b.StartTime,
		"end_time":          b.EndTime,
		"status":            b.Status,
		"is_active":         b.IsActive(now),
		"minutes_remaining": b.MinutesRemaining(now),
	}
}

// parseTimestamp accepts RFC 3339 and falls back to a naive local timestamp
// for clients that omit the zone offset.
func parseTimestamp(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, errors.New("empty timestamp")
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t, nil
	}
	return time.ParseInLocation("2006-01-02T15:04:05", raw, time.Local)
}

func startOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

func writeJSON(w http.ResponseWriter, statusCode int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, statusCode int, message string) {
	writeJSON(w, statusCode, map[string]string{"error": message})
}
