package domain

// LearningOutcome is a single learning outcome extracted from a module
// specification document.
type LearningOutcome struct {
	ID          string `json:"id"`
	Description string `json:"description"`
	Level       string `json:"level,omitempty"`
}

// Assessment describes one assessment component and its weighting.
type Assessment struct {
	Name        string  `json:"name"`
	Type        string  `json:"type"` // exam, coursework, presentation, ...
	Weight      float64 `json:"weight"`
	Description string  `json:"description,omitempty"`
}

// ModuleData is the structured module specification produced by the
// ingestion capability and consumed by planning and generation.
type ModuleData struct {
	Title              string            `json:"title"`
	Code               string            `json:"code"`
	Credits            int               `json:"credits"`
	Semester           string            `json:"semester"`
	AcademicYear       string            `json:"academic_year"`
	LearningOutcomes   []LearningOutcome `json:"learning_outcomes"`
	Assessments        []Assessment      `json:"assessments"`
	Description        string            `json:"description,omitempty"`
	Prerequisites      []string          `json:"prerequisites,omitempty"`
	Textbooks          []string          `json:"textbooks,omitempty"`
	Topics             []string          `json:"topics,omitempty"`
	TeachingMethods    []string          `json:"teaching_methods,omitempty"`
	LearningApproaches []string          `json:"learning_approaches,omitempty"`
}

// WeekPlan is one week of the syllabus produced by the planning capability.
type WeekPlan struct {
	WeekNumber         int      `json:"week_number"`
	Title              string   `json:"title"`
	Description        string   `json:"description,omitempty"`
	LearningOutcomes   []string `json:"learning_outcomes"`
	LectureTopics      []string `json:"lecture_topics"`
	TutorialActivities []string `json:"tutorial_activities"`
	LabActivities      []string `json:"lab_activities,omitempty"`
	Readings           []string `json:"readings,omitempty"`
	Deliverables       []string `json:"deliverables,omitempty"`
	ExternalResources  []string `json:"external_resources,omitempty"`
	TeachingNotes      string   `json:"teaching_notes,omitempty"`
}

// ContentItem is a single generated piece of content before export.
type ContentItem struct {
	Title   string `json:"title"`
	Content string `json:"content"`
	Format  string `json:"format"` // markdown, text, ...
}
