package domain

import (
	"strings"
	"time"
)

// Per-week material type keys, in generation order.
const (
	MaterialLectureNotes  = "lecture_notes"
	MaterialLectureSlides = "lecture_slides"
	MaterialTranscripts   = "transcripts"
	MaterialLabMaterials  = "lab_materials"
	MaterialAssessments   = "assessments"
	MaterialSeminars      = "seminar_materials"
)

// Overview material type keys, generated once per module rather than per week.
const (
	MaterialModuleOverview  = "module_overview"
	MaterialInstructorGuide = "instructor_guide"
)

// MaterialType describes one generatable material category: its display name,
// the output subdirectory it lands in, the exported file format, and how many
// items a week of it typically yields (estimate used for progress reporting).
type MaterialType struct {
	Key          string
	Name         string
	Dir          string
	Format       string
	ItemsPerWeek int
}

// WeekMaterialTypes lists per-week material types in the order a job
// processes them within a week.
var WeekMaterialTypes = []MaterialType{
	{Key: MaterialLectureNotes, Name: "Lecture Notes", Dir: "01_Lecture_Notes", Format: "md", ItemsPerWeek: 2},
	{Key: MaterialLectureSlides, Name: "Lecture Slides", Dir: "02_Lecture_Slides", Format: "md", ItemsPerWeek: 2},
	{Key: MaterialTranscripts, Name: "Lecture Transcripts", Dir: "06_Transcripts", Format: "txt", ItemsPerWeek: 2},
	{Key: MaterialLabMaterials, Name: "Lab Materials", Dir: "03_Lab_Materials", Format: "md", ItemsPerWeek: 1},
	{Key: MaterialAssessments, Name: "Assessments", Dir: "04_Assessments", Format: "md", ItemsPerWeek: 1},
	{Key: MaterialSeminars, Name: "Seminar Materials", Dir: "05_Seminar_Materials", Format: "md", ItemsPerWeek: 1},
}

// OverviewMaterialTypes lists module-level materials generated after all
// weeks complete. They live at the session output root with a 00_ prefix.
var OverviewMaterialTypes = []MaterialType{
	{Key: MaterialModuleOverview, Name: "Module Overview", Dir: "", Format: "md", ItemsPerWeek: 1},
	{Key: MaterialInstructorGuide, Name: "Instructor Guide", Dir: "", Format: "md", ItemsPerWeek: 1},
}

// MaterialTypeByKey looks up a per-week or overview material type.
func MaterialTypeByKey(key string) (MaterialType, bool) {
	for _, mt := range WeekMaterialTypes {
		if mt.Key == key {
			return mt, true
		}
	}
	for _, mt := range OverviewMaterialTypes {
		if mt.Key == key {
			return mt, true
		}
	}
	return MaterialType{}, false
}

// MaterialTypeForPath infers a material type key from a generated file's
// relative path, used when rebuilding session state by rescanning output.
func MaterialTypeForPath(relPath string) string {
	p := strings.ToLower(relPath)
	keys := []string{
		MaterialLectureNotes, MaterialLectureSlides, MaterialTranscripts,
		MaterialLabMaterials, MaterialAssessments, MaterialSeminars,
		MaterialModuleOverview, MaterialInstructorGuide,
	}
	for _, key := range keys {
		if strings.Contains(p, key) {
			return key
		}
	}
	return "other"
}

// MaterialRecord is one produced artifact, recorded in the session document
// once its file has been written.
type MaterialRecord struct {
	Week        int       `json:"week"`
	Type        string    `json:"type"`
	Name        string    `json:"name"`
	Path        string    `json:"path"` // relative to the session output dir
	Format      string    `json:"format"`
	Size        int64     `json:"size"`
	GeneratedAt time.Time `json:"generated_at"`
}

// EstimateTotalMaterials computes the expected material count for a selection
// over a number of weeks. Used only for progress percentages, never for
// correctness decisions.
func EstimateTotalMaterials(materials []string, weeks int) int {
	total := 0
	for _, key := range materials {
		mt, ok := MaterialTypeByKey(key)
		if !ok {
			continue
		}
		if key == MaterialModuleOverview || key == MaterialInstructorGuide {
			total++
			continue
		}
		total += mt.ItemsPerWeek * weeks
	}
	return total
}
