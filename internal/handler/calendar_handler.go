package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/AcelinoMargotti/scinexa-project-nexus/internal/model"
	"github.com/AcelinoMargotti/scinexa-project-nexus/internal/service"
)

const (
	defaultUpcomingLimit = 5
	defaultInboxDays     = 7
)

type CalendarHandler struct {
	svc    *service.ProjectService
	now    func() time.Time
	logger *zap.Logger
}

func NewCalendarHandler(svc *service.ProjectService, logger *zap.Logger) *CalendarHandler {
	return &CalendarHandler{svc: svc, now: time.Now, logger: logger}
}

// EventsOn serves GET /calendar/events?date=YYYY-MM-DD.
func (h *CalendarHandler) EventsOn(c *gin.Context) {
	date, err := h.dateParam(c, "date")
	if err != nil {
		respondError(c, h.logger, "EventsOn", err)
		return
	}
	events, err := h.svc.EventsOnDate(c.Request.Context(), date)
	if err != nil {
		respondError(c, h.logger, "EventsOn", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"date": date, "events": events})
}

// Upcoming serves GET /calendar/upcoming?from=&limit=; from defaults to today, limit to 5.
func (h *CalendarHandler) Upcoming(c *gin.Context) {
	from, err := h.dateParam(c, "from")
	if err != nil {
		respondError(c, h.logger, "Upcoming", err)
		return
	}
	limit := defaultUpcomingLimit
	if raw := c.Query("limit"); raw != "" {
		if limit, err = strconv.Atoi(raw); err != nil {
			respondError(c, h.logger, "Upcoming", badRequest("limit", "must be an integer"))
			return
		}
	}
	events, err := h.svc.UpcomingEvents(c.Request.Context(), from, limit)
	if err != nil {
		respondError(c, h.logger, "Upcoming", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"from": from, "events": events})
}

// Inbox serves GET /inbox?days=; days defaults to 7.
func (h *CalendarHandler) Inbox(c *gin.Context) {
	days := defaultInboxDays
	if raw := c.Query("days"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			respondError(c, h.logger, "Inbox", badRequest("days", "must be an integer"))
			return
		}
		days = n
	}
	inbox, err := h.svc.Inbox(c.Request.Context(), days)
	if err != nil {
		respondError(c, h.logger, "Inbox", err)
		return
	}
	c.JSON(http.StatusOK, inbox)
}

// Month serves GET /calendar/month?year=&month=; both default to the current month.
func (h *CalendarHandler) Month(c *gin.Context) {
	today := h.now().UTC()
	year, month := today.Year(), int(today.Month())
	var err error
	if raw := c.Query("year"); raw != "" {
		if year, err = strconv.Atoi(raw); err != nil {
			respondError(c, h.logger, "Month", badRequest("year", "must be an integer"))
			return
		}
	}
	if raw := c.Query("month"); raw != "" {
		if month, err = strconv.Atoi(raw); err != nil {
			respondError(c, h.logger, "Month", badRequest("month", "must be an integer"))
			return
		}
	}
	view, err := h.svc.MonthView(c.Request.Context(), year, time.Month(month))
	if err != nil {
		respondError(c, h.logger, "Month", err)
		return
	}
	c.JSON(http.StatusOK, view)
}

// dateParam parses a YYYY-MM-DD query value, defaulting to today in UTC.
func (h *CalendarHandler) dateParam(c *gin.Context, name string) (model.Date, error) {
	raw := c.Query(name)
	if raw == "" {
		return model.DateOf(h.now().UTC()), nil
	}
	d, err := model.ParseDate(raw)
	if err != nil {
		return model.Date{}, badRequest(name, "must be a date in YYYY-MM-DD format")
	}
	return d, nil
}
