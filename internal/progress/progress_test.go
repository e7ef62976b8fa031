package progress

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AcelinoMargotti/scinexa-project-nexus/internal/model"
)

func milestone(id string, seq int, due model.Date, completed bool) model.Milestone {
	m := model.Milestone{ID: id, Title: id, DueDate: due, Seq: seq}
	if completed {
		m.MarkCompleted("prof-1", time.Date(2024, 6, 2, 0, 0, 0, 0, time.UTC))
	}
	return m
}

func TestOfScenario(t *testing.T) {
	p := &model.Project{
		ID: "p1",
		Milestones: []model.Milestone{
			milestone("M1", 1, model.NewDate(2024, time.June, 1), true),
			milestone("M2", 2, model.NewDate(2024, time.July, 1), false),
			milestone("M3", 3, model.NewDate(2024, time.May, 1), false),
		},
	}

	got := Of(p)
	assert.Equal(t, 1, got.CompletedCount)
	assert.Equal(t, 3, got.TotalCount)
	assert.Equal(t, 33, got.Percentage)
	require.Len(t, got.Remaining, 2)
	assert.Equal(t, "M3", got.Remaining[0].ID)
	assert.Equal(t, "M2", got.Remaining[1].ID)
}

func TestOfEmptyProject(t *testing.T) {
	got := Of(&model.Project{ID: "p1"})
	assert.Equal(t, 0, got.TotalCount)
	assert.Equal(t, 0, got.Percentage)
	assert.NotNil(t, got.Remaining)
	assert.Empty(t, got.Remaining)
}

func TestOfRemainingTiesKeepCreationOrder(t *testing.T) {
	due := model.NewDate(2024, time.June, 1)
	p := &model.Project{Milestones: []model.Milestone{
		milestone("b", 2, due, false),
		milestone("a", 1, due, false),
		milestone("c", 3, due.AddDays(-1), false),
	}}

	var ids []string
	for _, m := range Of(p).Remaining {
		ids = append(ids, m.ID)
	}
	assert.Equal(t, []string{"c", "a", "b"}, ids)
}

func TestPercentage(t *testing.T) {
	tests := []struct {
		completed, total, want int
	}{
		{0, 0, 0},
		{0, 5, 0},
		{1, 3, 33},
		{2, 3, 67},
		{1, 2, 50},
		{1, 8, 13},
		{3, 3, 100},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Percentage(tt.completed, tt.total), "%d/%d", tt.completed, tt.total)
	}
}

func TestPercentageBounds(t *testing.T) {
	for total := 0; total <= 12; total++ {
		for completed := 0; completed <= total; completed++ {
			pct := Percentage(completed, total)
			assert.GreaterOrEqual(t, pct, 0)
			assert.LessOrEqual(t, pct, 100)
		}
	}
}
