package content

import (
	"context"
	"fmt"
	"strings"

	"github.com/courseforge/backend/internal/domain"
)

// EchoGenerator produces deterministic placeholder materials from the week
// plan alone, without any model backend. It keeps the pipeline runnable in
// development and in tests when no generation service is configured.
type EchoGenerator struct{}

// NewEchoGenerator creates a generator that renders week-plan outlines.
func NewEchoGenerator() *EchoGenerator {
	return &EchoGenerator{}
}

// GenerateMaterial renders one item per expected slot for the material type,
// built from the week plan's topics and activities.
func (g *EchoGenerator) GenerateMaterial(ctx context.Context, module *domain.ModuleData, week domain.WeekPlan, materialType string) ([]domain.ContentItem, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	mt, ok := domain.MaterialTypeByKey(materialType)
	if !ok {
		return nil, fmt.Errorf("unknown material type %q", materialType)
	}

	count := mt.ItemsPerWeek
	if count < 1 {
		count = 1
	}

	moduleTitle := "Module"
	if module != nil && module.Title != "" {
		moduleTitle = module.Title
	}

	items := make([]domain.ContentItem, 0, count)
	for i := 1; i <= count; i++ {
		title := fmt.Sprintf("%s - Week %d %s", moduleTitle, week.WeekNumber, mt.Name)
		if count > 1 {
			title = fmt.Sprintf("%s (Part %d)", title, i)
		}

		var b strings.Builder
		fmt.Fprintf(&b, "Week %d: %s\n\n", week.WeekNumber, week.Title)
		if len(week.LectureTopics) > 0 {
			b.WriteString("Topics:\n")
			for _, t := range week.LectureTopics {
				fmt.Fprintf(&b, "- %s\n", t)
			}
			b.WriteString("\n")
		}
		if len(week.TutorialActivities) > 0 {
			b.WriteString("Activities:\n")
			for _, a := range week.TutorialActivities {
				fmt.Fprintf(&b, "- %s\n", a)
			}
		}

		items = append(items, domain.ContentItem{
			Title:   title,
			Content: b.String(),
			Format:  mt.Format,
		})
	}
	return items, nil
}
