package content

import (
	"fmt"

	"github.com/courseforge/backend/internal/domain"
)

// FallbackModuleData returns placeholder module data for when the ingestion
// capability is unavailable or returns nothing usable for a field.
func FallbackModuleData(filename string) *domain.ModuleData {
	return &domain.ModuleData{
		Title:        fmt.Sprintf("Module from %s", filename),
		Code:         "UNKNOWN",
		Credits:      15,
		Semester:     "Unknown",
		AcademicYear: "2024/25",
		LearningOutcomes: []domain.LearningOutcome{
			{ID: "LO1", Description: "Understand key concepts"},
			{ID: "LO2", Description: "Apply knowledge to problems"},
			{ID: "LO3", Description: "Analyze and evaluate information"},
		},
		Assessments: []domain.Assessment{
			{Name: "Exam", Type: "exam", Weight: 60.0},
			{Name: "Coursework", Type: "coursework", Weight: 40.0},
		},
		Description:        "Module description will be extracted from uploaded file",
		TeachingMethods:    []string{"lectures", "tutorials"},
		LearningApproaches: []string{"collaborative"},
	}
}

// FallbackWeekPlans returns a generic weekly breakdown for when the planning
// capability is unavailable.
func FallbackWeekPlans(weeks int) []domain.WeekPlan {
	if weeks <= 0 {
		weeks = 12
	}
	plans := make([]domain.WeekPlan, 0, weeks)
	for i := 1; i <= weeks; i++ {
		plan := domain.WeekPlan{
			WeekNumber:         i,
			Title:              fmt.Sprintf("Week %d - Topic %d", i, i),
			Description:        fmt.Sprintf("This week covers topic %d with related activities and assessments", i),
			LearningOutcomes:   []string{fmt.Sprintf("LO%d", min(i, 3))},
			LectureTopics:      []string{fmt.Sprintf("Topic %d.1", i), fmt.Sprintf("Topic %d.2", i)},
			TutorialActivities: []string{fmt.Sprintf("Tutorial Activity %d", i)},
			Readings:           []string{fmt.Sprintf("Reading %d", i)},
			TeachingNotes:      fmt.Sprintf("Focus on practical application of concepts in week %d", i),
		}
		if i%3 == 0 {
			plan.LabActivities = []string{fmt.Sprintf("Lab Exercise %d", i)}
		}
		if i%4 == 0 {
			plan.Deliverables = []string{fmt.Sprintf("Assignment %d", i)}
		}
		plans = append(plans, plan)
	}
	return plans
}
