package content

import (
	"context"
	"testing"

	"github.com/courseforge/backend/internal/domain"
)

func TestFallbackModuleData(t *testing.T) {
	module := FallbackModuleData("spec.pdf")

	if module.Title != "Module from spec.pdf" {
		t.Errorf("Expected title derived from filename, got %q", module.Title)
	}
	if len(module.LearningOutcomes) != 3 {
		t.Errorf("Expected 3 learning outcomes, got %d", len(module.LearningOutcomes))
	}

	var totalWeight float64
	for _, a := range module.Assessments {
		totalWeight += a.Weight
	}
	if totalWeight != 100 {
		t.Errorf("Expected assessment weights to sum to 100, got %v", totalWeight)
	}
}

func TestFallbackWeekPlans(t *testing.T) {
	plans := FallbackWeekPlans(12)
	if len(plans) != 12 {
		t.Fatalf("Expected 12 week plans, got %d", len(plans))
	}
	if plans[0].WeekNumber != 1 || plans[11].WeekNumber != 12 {
		t.Errorf("Expected weeks numbered 1..12, got %d..%d", plans[0].WeekNumber, plans[11].WeekNumber)
	}

	// Labs every third week, deliverables every fourth.
	if len(plans[2].LabActivities) == 0 {
		t.Error("Expected week 3 to have lab activities")
	}
	if len(plans[1].LabActivities) != 0 {
		t.Error("Expected week 2 to have no lab activities")
	}
	if len(plans[3].Deliverables) == 0 {
		t.Error("Expected week 4 to have a deliverable")
	}
}

func TestFallbackWeekPlans_DefaultLength(t *testing.T) {
	if got := len(FallbackWeekPlans(0)); got != 12 {
		t.Errorf("Expected default of 12 weeks, got %d", got)
	}
}

func TestEchoGenerator(t *testing.T) {
	g := NewEchoGenerator()
	module := &domain.ModuleData{Title: "Operating Systems"}
	week := domain.WeekPlan{WeekNumber: 2, Title: "Scheduling", LectureTopics: []string{"Round robin"}}

	items, err := g.GenerateMaterial(context.Background(), module, week, domain.MaterialLectureNotes)
	if err != nil {
		t.Fatalf("GenerateMaterial failed: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("Expected 2 lecture note items, got %d", len(items))
	}
	if items[0].Title == items[1].Title {
		t.Error("Expected distinct item titles")
	}

	if _, err := g.GenerateMaterial(context.Background(), module, week, "bogus"); err == nil {
		t.Error("Expected an error for an unknown material type")
	}
}
