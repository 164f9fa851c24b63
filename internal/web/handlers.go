package web

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"schedulr/internal/booking"
	"schedulr/internal/calsync"
	appLog "schedulr/internal/log"
	"schedulr/internal/model"
	"schedulr/internal/scheduling"
	"schedulr/internal/store"
)

const defaultListDays = 7

var durationError = fmt.Sprintf("duration_minutes must not exceed %d", scheduling.MaxDurationMinutes)

type createEventRequest struct {
	Title string    `json:"title"`
	Start time.Time `json:"start"`
}

type conflictRequest struct {
	Start           time.Time `json:"start"`
	DurationMinutes int       `json:"duration_minutes"`
	ExcludeEventID  string    `json:"exclude_event_id"`
}

type suggestionRequest struct {
	// Date is YYYY-MM-DD in the configured timezone.
	Date            string                    `json:"date"`
	DurationMinutes int                       `json:"duration_minutes"`
	Preferences     model.PreferenceOverrides `json:"preferences"`
}

type linkActiveRequest struct {
	Active *bool `json:"active"`
}

type eventsResponse struct {
	From   time.Time               `json:"from"`
	To     time.Time               `json:"to"`
	Events []model.FirstPartyEvent `json:"events"`
}

type slotsResponse struct {
	Link  model.BookingLink          `json:"link"`
	Date  string                     `json:"date"`
	Slots []model.TimeSlotSuggestion `json:"slots"`
}

// handleListEvents returns first-party events in [from, to]. Both bounds are
// RFC3339 and default to today and today + 7 days. completed=true lists
// completed events instead of open ones.
func (s *Server) handleListEvents(c *gin.Context) {
	e := s.current()
	today := startOfDay(s.now().In(e.loc))

	from, err := parseTimeDefault(c.Query("from"), today)
	if err != nil {
		writeError(c, http.StatusBadRequest, "invalid from: "+err.Error())
		return
	}
	days := parseIntDefault(c.Query("days"), defaultListDays)
	to, err := parseTimeDefault(c.Query("to"), from.AddDate(0, 0, days))
	if err != nil {
		writeError(c, http.StatusBadRequest, "invalid to: "+err.Error())
		return
	}
	if to.Before(from) {
		writeError(c, http.StatusBadRequest, "to must not be before from")
		return
	}
	completed, _ := strconv.ParseBool(c.Query("completed"))

	events, err := s.store.ListFirstPartyEvents(c.Request.Context(), c.Param("user"), from, to, completed)
	if err != nil {
		s.writeStoreError(c, err)
		return
	}
	if events == nil {
		events = []model.FirstPartyEvent{}
	}
	c.JSON(http.StatusOK, eventsResponse{From: from, To: to, Events: events})
}

func (s *Server) handleCreateEvent(c *gin.Context) {
	var req createEventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid body: "+err.Error())
		return
	}
	if req.Title == "" || req.Start.IsZero() {
		writeError(c, http.StatusBadRequest, "title and start are required")
		return
	}
	ev, err := s.store.CreateEvent(c.Request.Context(), model.FirstPartyEvent{
		UserID: c.Param("user"),
		Title:  req.Title,
		Start:  req.Start,
	})
	if err != nil {
		s.writeStoreError(c, err)
		return
	}
	c.JSON(http.StatusCreated, ev)
}

func (s *Server) handleCompleteEvent(c *gin.Context) {
	if err := s.store.CompleteEvent(c.Request.Context(), c.Param("user"), c.Param("id")); err != nil {
		s.writeStoreError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) handleDeleteEvent(c *gin.Context) {
	if err := s.store.DeleteEvent(c.Request.Context(), c.Param("user"), c.Param("id")); err != nil {
		s.writeStoreError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) handleConflicts(c *gin.Context) {
	var req conflictRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid body: "+err.Error())
		return
	}
	if req.Start.IsZero() {
		writeError(c, http.StatusBadRequest, "start is required")
		return
	}
	if !scheduling.ValidDuration(req.DurationMinutes) {
		writeError(c, http.StatusBadRequest, durationError)
		return
	}
	res := s.current().detector.CheckForConflicts(c.Request.Context(), scheduling.ConflictQuery{
		UserID:          c.Param("user"),
		Start:           req.Start,
		DurationMinutes: req.DurationMinutes,
		ExcludeEventID:  req.ExcludeEventID,
	})
	if res.Conflicts == nil {
		res.Conflicts = []model.Conflict{}
	}
	c.JSON(http.StatusOK, res)
}

func (s *Server) handleSuggestions(c *gin.Context) {
	var req suggestionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid body: "+err.Error())
		return
	}
	if !scheduling.ValidDuration(req.DurationMinutes) {
		writeError(c, http.StatusBadRequest, durationError)
		return
	}
	e := s.current()
	date, err := time.ParseInLocation(time.DateOnly, req.Date, e.loc)
	if err != nil {
		writeError(c, http.StatusBadRequest, "date must be YYYY-MM-DD")
		return
	}
	slots := e.scorer.FindBestTimeSlots(c.Request.Context(), scheduling.SlotQuery{
		UserID:          c.Param("user"),
		Date:            date,
		DurationMinutes: req.DurationMinutes,
		Preferences:     req.Preferences,
	})
	if slots == nil {
		slots = []model.TimeSlotSuggestion{}
	}
	c.JSON(http.StatusOK, slots)
}

func (s *Server) handleListLinks(c *gin.Context) {
	links, err := s.current().booking.ListLinks(c.Request.Context(), c.Param("user"))
	if err != nil {
		s.writeStoreError(c, err)
		return
	}
	if links == nil {
		links = []model.BookingLink{}
	}
	c.JSON(http.StatusOK, links)
}

func (s *Server) handleCreateLink(c *gin.Context) {
	var req booking.CreateLinkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid body: "+err.Error())
		return
	}
	link, err := s.current().booking.CreateLink(c.Request.Context(), c.Param("user"), req)
	if err != nil {
		s.writeStoreError(c, err)
		return
	}
	c.JSON(http.StatusCreated, link)
}

func (s *Server) handleSetLinkActive(c *gin.Context) {
	var req linkActiveRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Active == nil {
		writeError(c, http.StatusBadRequest, "body must be {\"active\": bool}")
		return
	}
	if err := s.store.SetBookingLinkActive(c.Request.Context(), c.Param("user"), c.Param("slug"), *req.Active); err != nil {
		s.writeStoreError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) handleBookingSlots(c *gin.Context) {
	e := s.current()
	dateStr := c.Query("date")
	date, err := time.ParseInLocation(time.DateOnly, dateStr, e.loc)
	if err != nil {
		writeError(c, http.StatusBadRequest, "date must be YYYY-MM-DD")
		return
	}
	link, slots, err := e.booking.Availability(c.Request.Context(), c.Param("slug"), date)
	if err != nil {
		s.writeStoreError(c, err)
		return
	}
	if slots == nil {
		slots = []model.TimeSlotSuggestion{}
	}
	c.JSON(http.StatusOK, slotsResponse{Link: link, Date: dateStr, Slots: slots})
}

func (s *Server) handleBook(c *gin.Context) {
	var req booking.BookRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid body: "+err.Error())
		return
	}
	ev, err := s.current().booking.Book(c.Request.Context(), c.Param("slug"), req)
	if err != nil {
		s.writeStoreError(c, err)
		return
	}
	c.JSON(http.StatusCreated, ev)
}

func (s *Server) handleSync(c *gin.Context) {
	if s.syncer == nil {
		writeError(c, http.StatusServiceUnavailable, "calendar sync is not configured")
		return
	}
	rep, err := s.syncer.SyncAll(c.Request.Context())
	if err != nil {
		if errors.Is(err, calsync.ErrSyncInProgress) {
			writeError(c, http.StatusConflict, err.Error())
			return
		}
		appLog.Error("manual sync failed", err)
		writeError(c, http.StatusBadGateway, err.Error())
		return
	}
	c.JSON(http.StatusOK, rep)
}

// writeStoreError maps domain sentinels to HTTP statuses.
func (s *Server) writeStoreError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		writeError(c, http.StatusNotFound, "not found")
	case errors.Is(err, booking.ErrLinkInactive):
		writeError(c, http.StatusGone, err.Error())
	case errors.Is(err, booking.ErrSlotTaken), errors.Is(err, store.ErrSlugTaken):
		writeError(c, http.StatusConflict, err.Error())
	case errors.Is(err, booking.ErrInvalidRequest):
		writeError(c, http.StatusBadRequest, err.Error())
	default:
		appLog.Error("request failed", err, "path", c.FullPath())
		writeError(c, http.StatusInternalServerError, "internal error")
	}
}

func writeError(c *gin.Context, status int, msg string) {
	c.JSON(status, gin.H{"error": msg})
}

func parseIntDefault(s string, def int) int {
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return n
}

func parseTimeDefault(s string, def time.Time) (time.Time, error) {
	if s == "" {
		return def, nil
	}
	return time.Parse(time.RFC3339, s)
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

func resolveLocationOrLocal(name string) *time.Location {
	if name == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		appLog.Error("failed to load timezone; falling back to local", err, "name", name)
		return time.Local
	}
	return loc
}
