package progress

import (
	"math"
	"sort"

	"github.com/AcelinoMargotti/scinexa-project-nexus/internal/model"
)

// Progress summarises how far a project is along.
type Progress struct {
	CompletedCount int `json:"completed_count"`
	TotalCount     int `json:"total_count"`
	Percentage     int `json:"percentage"`
	// Remaining holds the pending milestones in due date order, uncapped.
	Remaining []model.Milestone `json:"remaining"`
}

// Of computes progress from the project's current milestones.
func Of(p *model.Project) Progress {
	out := Progress{
		TotalCount: len(p.Milestones),
		Remaining:  []model.Milestone{},
	}
	for _, m := range p.Milestones {
		if m.Completed {
			out.CompletedCount++
			continue
		}
		out.Remaining = append(out.Remaining, m)
	}
	sort.SliceStable(out.Remaining, func(i, j int) bool {
		a, b := out.Remaining[i], out.Remaining[j]
		if c := a.DueDate.Compare(b.DueDate); c != 0 {
			return c < 0
		}
		return a.Seq < b.Seq
	})
	out.Percentage = Percentage(out.CompletedCount, out.TotalCount)
	return out
}

// Percentage returns round(100*completed/total), or 0 when total is 0.
func Percentage(completed, total int) int {
	if total <= 0 {
		return 0
	}
	pct := int(math.Round(100 * float64(completed) / float64(total)))
	if pct < 0 {
		return 0
	}
	if pct > 100 {
		return 100
	}
	return pct
}
