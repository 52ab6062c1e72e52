package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"time"

	"github.com/kapu/hololive-widget-go/internal/domain"
	"github.com/kapu/hololive-widget-go/internal/service/birthday"
	"github.com/kapu/hololive-widget-go/internal/service/countdown"
	"github.com/kapu/hololive-widget-go/internal/service/events"
	"github.com/kapu/hololive-widget-go/internal/util"
	"go.uber.org/zap"
)

const (
	maxUpcomingDays     = 366
	defaultUpcomingDays = 7
	shutdownTimeout     = 5 * time.Second
)

type IndexProvider interface {
	Current() *domain.BirthdayIndex
	Status() birthday.PipelineStatus
}

type EventLister interface {
	Events() []events.EventView
}

type CountdownReporter interface {
	Active() int
	Snapshots() []countdown.Snapshot
}

type Dependencies struct {
	Index      IndexProvider
	Events     EventLister
	Countdowns CountdownReporter
	Hub        *Hub
	Location   *time.Location
	Clock      util.Clock
	Logger     *zap.Logger
}

// Server exposes the published birthday index, tracked events and the
// countdown WebSocket feed.
type Server struct {
	deps Dependencies
	mux  *http.ServeMux
}

func New(deps Dependencies) *Server {
	if deps.Clock == nil {
		deps.Clock = util.RealClock{}
	}
	if deps.Location == nil {
		deps.Location = time.Local
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}

	s := &Server{deps: deps, mux: http.NewServeMux()}
	s.mux.HandleFunc("GET /api/birthdays/today", s.handleToday)
	s.mux.HandleFunc("GET /api/birthdays/upcoming", s.handleUpcoming)
	s.mux.HandleFunc("GET /api/birthdays/{month}/{day}", s.handleDay)
	s.mux.HandleFunc("GET /api/events", s.handleEvents)
	s.mux.HandleFunc("GET /api/status", s.handleStatus)
	s.mux.HandleFunc("GET /api/countdowns", s.handleCountdowns)
	s.mux.HandleFunc("GET /birthdays.ics", s.handleCalendar)
	if deps.Hub != nil {
		s.mux.HandleFunc("GET /ws", deps.Hub.ServeWS)
	}
	return s
}

func (s *Server) Handler() http.Handler {
	return s.mux
}

// Start serves on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.mux,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	serverError := make(chan error, 1)
	go func() {
		s.deps.Logger.Info("HTTP server listening", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverError <- err
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("http shutdown: %w", err)
		}
		s.deps.Logger.Info("HTTP server stopped")
		return nil
	case err := <-serverError:
		return fmt.Errorf("http server: %w", err)
	}
}

type dayResponse struct {
	Month   int                   `json:"month"`
	Day     int                   `json:"day"`
	Entries []domain.DisplayEntry `json:"entries"`
}

type upcomingResponse struct {
	From string              `json:"from"`
	Days []domain.DayEntries `json:"days"`
}

type fallbackResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

type statusResponse struct {
	Pipeline   birthday.PipelineStatus `json:"pipeline"`
	Countdowns int                     `json:"countdowns"`
	Events     int                     `json:"events"`
	Indexed    int                     `json:"indexed"`
}

// index returns the current index or writes the static fallback.
func (s *Server) index(w http.ResponseWriter) (*domain.BirthdayIndex, bool) {
	idx := s.deps.Index.Current()
	if idx == nil {
		w.Header().Set("Retry-After", "30")
		s.writeJSON(w, http.StatusServiceUnavailable, fallbackResponse{
			Status:  "unavailable",
			Message: "Birthday data is not available yet",
		})
		return nil, false
	}
	return idx, true
}

func (s *Server) handleToday(w http.ResponseWriter, r *http.Request) {
	idx, ok := s.index(w)
	if !ok {
		return
	}
	today := s.deps.Clock.Now().In(s.deps.Location)
	s.writeJSON(w, http.StatusOK, dayResponse{
		Month:   int(today.Month()),
		Day:     today.Day(),
		Entries: nonNil(idx.OnDate(today)),
	})
}

func (s *Server) handleDay(w http.ResponseWriter, r *http.Request) {
	month, errMonth := strconv.Atoi(r.PathValue("month"))
	day, errDay := strconv.Atoi(r.PathValue("day"))
	if errMonth != nil || errDay != nil || month < 1 || month > 12 || day < 1 || day > 31 {
		s.writeJSON(w, http.StatusBadRequest, fallbackResponse{Status: "error", Message: "invalid month or day"})
		return
	}

	idx, ok := s.index(w)
	if !ok {
		return
	}
	s.writeJSON(w, http.StatusOK, dayResponse{
		Month:   month,
		Day:     day,
		Entries: nonNil(idx.Lookup(month, day)),
	})
}

func (s *Server) handleUpcoming(w http.ResponseWriter, r *http.Request) {
	days := defaultUpcomingDays
	if raw := r.URL.Query().Get("days"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > maxUpcomingDays {
			s.writeJSON(w, http.StatusBadRequest, fallbackResponse{
				Status:  "error",
				Message: fmt.Sprintf("days must be between 1 and %d", maxUpcomingDays),
			})
			return
		}
		days = n
	}

	idx, ok := s.index(w)
	if !ok {
		return
	}
	from := s.deps.Clock.Now().In(s.deps.Location)
	s.writeJSON(w, http.StatusOK, upcomingResponse{
		From: from.Format("2006-01-02"),
		Days: idx.Upcoming(from, days),
	})
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	views := []events.EventView{}
	if s.deps.Events != nil {
		views = s.deps.Events.Events()
	}
	s.writeJSON(w, http.StatusOK, views)
}

func (s *Server) handleCountdowns(w http.ResponseWriter, r *http.Request) {
	snapshots := []countdown.Snapshot{}
	if s.deps.Countdowns != nil {
		snapshots = s.deps.Countdowns.Snapshots()
	}
	sort.Slice(snapshots, func(i, j int) bool {
		if !snapshots[i].End.Equal(snapshots[j].End) {
			return snapshots[i].End.Before(snapshots[j].End)
		}
		return snapshots[i].TargetID < snapshots[j].TargetID
	})
	s.writeJSON(w, http.StatusOK, snapshots)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	resp := statusResponse{Pipeline: s.deps.Index.Status()}
	if s.deps.Countdowns != nil {
		resp.Countdowns = s.deps.Countdowns.Active()
	}
	if s.deps.Events != nil {
		resp.Events = len(s.deps.Events.Events())
	}
	resp.Indexed = s.deps.Index.Current().Len()

	code := http.StatusOK
	if !resp.Pipeline.Healthy {
		code = http.StatusServiceUnavailable
	}
	s.writeJSON(w, code, resp)
}

func (s *Server) handleCalendar(w http.ResponseWriter, r *http.Request) {
	idx, ok := s.index(w)
	if !ok {
		return
	}

	data, err := BuildCalendar(idx, s.deps.Clock.Now().In(s.deps.Location))
	if err != nil {
		s.deps.Logger.Error("Failed to render calendar", zap.Error(err))
		http.Error(w, "calendar unavailable", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
	w.Header().Set("Content-Disposition", `inline; filename="birthdays.ics"`)
	if !idx.BuiltAt().IsZero() {
		w.Header().Set("Last-Modified", idx.BuiltAt().UTC().Format(http.TimeFormat))
	}
	_, _ = w.Write(data)
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.deps.Logger.Warn("Failed to encode response", zap.Error(err))
	}
}

func nonNil(entries []domain.DisplayEntry) []domain.DisplayEntry {
	if entries == nil {
		return []domain.DisplayEntry{}
	}
	return entries
}
