package calendar

import (
	"sort"
	"time"

	"github.com/AcelinoMargotti/scinexa-project-nexus/internal/model"
)

// EventStatus is how a dated entry looks from today.
// Milestones are completed, overdue or pending; scheduled project events are scheduled or past.
type EventStatus string

const (
	StatusCompleted EventStatus = "completed"
	StatusOverdue   EventStatus = "overdue"
	StatusPending   EventStatus = "pending"
	StatusScheduled EventStatus = "scheduled"
	StatusPast      EventStatus = "past"
)

// EventType tells milestones apart from the kinds of model.ProjectEvent.
type EventType string

const (
	TypeMilestone    EventType = "milestone"
	TypeDeadline     EventType = EventType(model.ProjectEventDeadline)
	TypeMeeting      EventType = EventType(model.ProjectEventMeeting)
	TypePresentation EventType = EventType(model.ProjectEventPresentation)
)

// Event is one milestone or scheduled project event placed on the calendar.
type Event struct {
	Date         model.Date `json:"date"`
	Type         EventType  `json:"type"`
	Title        string     `json:"title"`
	ProjectID    string     `json:"project_id"`
	ProjectTitle string     `json:"project_title"`
	// Set for milestones only.
	MilestoneID    string `json:"milestone_id,omitempty"`
	MilestoneTitle string `json:"milestone_title,omitempty"`
	// Set for scheduled project events only.
	ScheduledID string      `json:"scheduled_id,omitempty"`
	Completed   bool        `json:"completed"`
	Status      EventStatus `json:"status"`
}

// Day groups the events due on one date.
type Day struct {
	Date   model.Date `json:"date"`
	Events []Event    `json:"events"`
}

// MonthView lists every day of a month, including days without events.
type MonthView struct {
	Year  int        `json:"year"`
	Month time.Month `json:"month"`
	Days  []Day      `json:"days"`
}

// Projector derives calendar views from project state on every call. It keeps nothing between calls.
type Projector struct {
	now func() time.Time
}

type Option func(*Projector)

func WithClock(now func() time.Time) Option {
	return func(p *Projector) { p.now = now }
}

func NewProjector(opts ...Option) *Projector {
	p := &Projector{now: time.Now}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// EventsOn returns the milestones and project events falling exactly on date across the actor's projects.
func (p *Projector) EventsOn(actor model.Actor, projects []*model.Project, date model.Date) []Event {
	return p.collect(actor, projects, func(d model.Date) bool { return d.Equal(date) }, -1)
}

// Upcoming returns milestones and project events dated on or after from across the actor's projects, truncated to limit.
// A non-positive limit yields no events.
func (p *Projector) Upcoming(actor model.Actor, projects []*model.Project, from model.Date, limit int) []Event {
	if limit <= 0 {
		return []Event{}
	}
	return p.collect(actor, projects, func(d model.Date) bool { return !d.Before(from) }, limit)
}

// Month aggregates the actor's milestones and project events per day of the given month.
func (p *Projector) Month(actor model.Actor, projects []*model.Project, year int, month time.Month) MonthView {
	first := model.NewDate(year, month, 1)
	next := first.AddDays(daysIn(year, month))

	events := p.collect(actor, projects, func(d model.Date) bool {
		return !d.Before(first) && d.Before(next)
	}, -1)

	view := MonthView{Year: year, Month: month}
	for d := first; d.Before(next); d = d.AddDays(1) {
		view.Days = append(view.Days, Day{Date: d, Events: []Event{}})
	}
	for _, ev := range events {
		i := ev.Date.Day() - 1
		view.Days[i].Events = append(view.Days[i].Events, ev)
	}
	return view
}

// DueSoon returns what still needs attention from today through today+days: pending milestones
// and scheduled project events. Completed milestones are left out. A negative days yields no events.
func (p *Projector) DueSoon(actor model.Actor, projects []*model.Project, days int) []Event {
	if days < 0 {
		return []Event{}
	}
	today := model.DateOf(p.now().UTC())
	end := today.AddDays(days)
	all := p.collect(actor, projects, func(d model.Date) bool {
		return !d.Before(today) && !d.After(end)
	}, -1)

	out := make([]Event, 0, len(all))
	for _, ev := range all {
		if !ev.Completed {
			out = append(out, ev)
		}
	}
	return out
}

func (p *Projector) collect(actor model.Actor, projects []*model.Project, match func(model.Date) bool, limit int) []Event {
	today := model.DateOf(p.now().UTC())
	out := []Event{}
	for _, proj := range projects {
		if proj == nil || !proj.IsParticipant(actor.ID) {
			continue
		}
		for _, m := range proj.Milestones {
			if !match(m.DueDate) {
				continue
			}
			out = append(out, Event{
				Date:           m.DueDate,
				Type:           TypeMilestone,
				Title:          m.Title,
				ProjectID:      proj.ID,
				ProjectTitle:   proj.Title,
				MilestoneID:    m.ID,
				MilestoneTitle: m.Title,
				Completed:      m.Completed,
				Status:         statusOf(m, today),
			})
		}
		for _, pe := range proj.Events {
			if !match(pe.Date) {
				continue
			}
			out = append(out, Event{
				Date:         pe.Date,
				Type:         EventType(pe.Type),
				Title:        pe.Title,
				ProjectID:    proj.ID,
				ProjectTitle: proj.Title,
				ScheduledID:  pe.ID,
				Status:       scheduledStatusOf(pe, today),
			})
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if c := a.Date.Compare(b.Date); c != 0 {
			return c < 0
		}
		if a.ProjectTitle != b.ProjectTitle {
			return a.ProjectTitle < b.ProjectTitle
		}
		return a.Title < b.Title
	})
	if limit >= 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

func statusOf(m model.Milestone, today model.Date) EventStatus {
	switch {
	case m.Completed:
		return StatusCompleted
	case m.DueDate.Before(today):
		return StatusOverdue
	default:
		return StatusPending
	}
}

func scheduledStatusOf(pe model.ProjectEvent, today model.Date) EventStatus {
	if pe.Date.Before(today) {
		return StatusPast
	}
	return StatusScheduled
}

func daysIn(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}
